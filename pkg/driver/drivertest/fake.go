// Package drivertest provides an in-memory driver.Driver for tests.
package drivertest

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/entrhq/nwregress/pkg/driver"
)

// Window is one fake top-level window.
type Window struct {
	Handle string
	URL    string
}

// Element is a fake clickable element. OnClick runs on every successful click.
type Element struct {
	Name     string
	ClickErr error
	OnClick  func()

	mu     sync.Mutex
	clicks int
}

// Click records the click and runs OnClick.
func (e *Element) Click() error {
	if e.ClickErr != nil {
		return e.ClickErr
	}
	e.mu.Lock()
	e.clicks++
	e.mu.Unlock()
	if e.OnClick != nil {
		e.OnClick()
	}
	return nil
}

// Clicks returns how many times the element was clicked.
func (e *Element) Clicks() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clicks
}

// Driver is a scripted driver.Driver. Zero values are usable: no windows, no
// elements, document.readyState "complete".
type Driver struct {
	mu sync.Mutex

	windows []Window
	current string
	inFrame bool

	// Scripts maps an element script to the element it returns.
	Scripts map[string]*Element
	// Selectors maps a CSS selector to its element.
	Selectors map[string]*Element
	// Frames lists CSS selectors of iframes that exist.
	Frames map[string]bool
	// ReadyStates are returned by successive readyState checks; the last one repeats.
	ReadyStates []string

	// BeforeHandles runs before each WindowHandles call with the 1-based call number.
	BeforeHandles func(call int)

	HandlesErr error
	SwitchErr  error
	URLErr     error
	QuitErr    error

	implicitWait time.Duration
	handleCalls  int
	readyCalls   int
	quitCount    int
	calls        []string
}

var _ driver.Driver = (*Driver)(nil)

// New returns a driver with the given windows open. The first window is active.
func New(windows ...Window) *Driver {
	d := &Driver{
		Scripts:   make(map[string]*Element),
		Selectors: make(map[string]*Element),
		Frames:    make(map[string]bool),
	}
	d.windows = append(d.windows, windows...)
	if len(windows) > 0 {
		d.current = windows[0].Handle
	}
	return d
}

// OpenWindow adds a window, as the shell would when a link opens.
func (d *Driver) OpenWindow(w Window) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.windows = append(d.windows, w)
}

func (d *Driver) record(format string, args ...interface{}) {
	d.calls = append(d.calls, fmt.Sprintf(format, args...))
}

// SetImplicitWait records the timeout.
func (d *Driver) SetImplicitWait(timeout time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("implicit_wait %s", timeout)
	d.implicitWait = timeout
	return nil
}

// CurrentURL returns the active window's URL.
func (d *Driver) CurrentURL() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.URLErr != nil {
		return "", d.URLErr
	}
	for _, w := range d.windows {
		if w.Handle == d.current {
			return w.URL, nil
		}
	}
	return "", fmt.Errorf("no such window: %s", d.current)
}

// WindowHandles returns the open handles in opening order.
func (d *Driver) WindowHandles() ([]string, error) {
	d.mu.Lock()
	d.handleCalls++
	call := d.handleCalls
	hook := d.BeforeHandles
	d.mu.Unlock()

	if hook != nil {
		hook(call)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.HandlesErr != nil {
		return nil, d.HandlesErr
	}
	handles := make([]string, 0, len(d.windows))
	for _, w := range d.windows {
		handles = append(handles, w.Handle)
	}
	return handles, nil
}

// SwitchWindow activates a window.
func (d *Driver) SwitchWindow(handle string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("switch %s", handle)
	if d.SwitchErr != nil {
		return d.SwitchErr
	}
	for _, w := range d.windows {
		if w.Handle == handle {
			d.current = handle
			d.inFrame = false
			return nil
		}
	}
	return fmt.Errorf("no such window: %s", handle)
}

// EnterFrame enters a frame listed in Frames.
func (d *Driver) EnterFrame(css string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.Frames[css] {
		return false, nil
	}
	d.record("frame %s", css)
	d.inFrame = true
	return true, nil
}

// ExecuteScript answers readyState checks from ReadyStates.
func (d *Driver) ExecuteScript(script string) (interface{}, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if strings.Contains(script, "readyState") {
		d.readyCalls++
		if len(d.ReadyStates) == 0 {
			return "complete", nil
		}
		i := d.readyCalls - 1
		if i >= len(d.ReadyStates) {
			i = len(d.ReadyStates) - 1
		}
		return d.ReadyStates[i], nil
	}
	d.record("script %s", script)
	return nil, nil
}

// ExecuteScriptElement returns the element registered for script.
func (d *Driver) ExecuteScriptElement(script string) (driver.Element, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("script_element %s", script)
	if el, ok := d.Scripts[script]; ok && el != nil {
		return el, nil
	}
	return nil, fmt.Errorf("%w: script returned null", driver.ErrNoSuchElement)
}

// FindElement returns the element registered for css.
func (d *Driver) FindElement(css string) (driver.Element, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("find %s", css)
	if el, ok := d.Selectors[css]; ok && el != nil {
		return el, nil
	}
	return nil, fmt.Errorf("%w: %s", driver.ErrNoSuchElement, css)
}

// Quit counts calls and returns QuitErr.
func (d *Driver) Quit() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.quitCount++
	return d.QuitErr
}

// QuitCount returns how many times Quit was called.
func (d *Driver) QuitCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.quitCount
}

// Current returns the active window handle.
func (d *Driver) Current() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

// InFrame reports whether EnterFrame succeeded since the last window switch.
func (d *Driver) InFrame() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inFrame
}

// ImplicitWait returns the last implicit wait set.
func (d *Driver) ImplicitWait() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.implicitWait
}

// HandleCalls returns how many times WindowHandles was called.
func (d *Driver) HandleCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.handleCalls
}

// Calls returns the recorded calls in order.
func (d *Driver) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}
