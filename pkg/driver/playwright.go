package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/nwregress/pkg/config"
	"github.com/entrhq/nwregress/pkg/logging"
)

const (
	cdpConnectAttempts = 30
	cdpConnectInterval = 500 * time.Millisecond
	lookupInterval     = 100 * time.Millisecond
)

// ShellArgs returns the command line used to start the shell for the
// playwright backend.
func ShellArgs(cfg *config.Config, port int) []string {
	args := []string{fmt.Sprintf("--remote-debugging-port=%d", port)}
	args = append(args, cfg.Driver.ExtraArgs...)
	return append(args, cfg.App.Dir)
}

func openPlaywright(ctx context.Context, cfg *config.Config, log *logging.Logger) (*Session, error) {
	port := cfg.Driver.Port
	if port == 0 {
		p, err := freePort()
		if err != nil {
			return nil, err
		}
		port = p
	}

	cmd := exec.Command(cfg.Driver.Binary, ShellArgs(cfg, port)...)
	cmd.Stdout = log.Writer()
	cmd.Stderr = log.Writer()
	log.Infof("launching %s %v", cfg.Driver.Binary, cmd.Args[1:])
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to launch shell: %w", err)
	}
	kill := func() error {
		if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return fmt.Errorf("failed to kill shell: %w", err)
		}
		_ = cmd.Wait()
		return nil
	}

	// The shell only needs the driver; it brings its own Chromium.
	opts := &playwright.RunOptions{
		SkipInstallBrowsers: true,
		Verbose:             false,
		Stdout:              io.Discard,
		Stderr:              io.Discard,
	}
	if err := playwright.Install(opts); err != nil {
		_ = kill()
		return nil, fmt.Errorf("failed to install playwright: %w", err)
	}
	pw, err := playwright.Run(opts)
	if err != nil {
		_ = kill()
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	endpoint := fmt.Sprintf("http://127.0.0.1:%d", port)
	browser, err := connectCDP(ctx, pw, endpoint, log)
	if err != nil {
		_ = pw.Stop()
		_ = kill()
		return nil, err
	}

	d := &playwrightDriver{
		browser: browser,
		handles: make(map[playwright.Page]string),
	}
	stop := func() error {
		if err := pw.Stop(); err != nil {
			return fmt.Errorf("failed to stop playwright: %w", err)
		}
		return nil
	}
	return NewSession(d, config.BackendPlaywright, stop, kill), nil
}

func connectCDP(ctx context.Context, pw *playwright.Playwright, endpoint string, log *logging.Logger) (playwright.Browser, error) {
	var lastErr error
	for attempt := 1; attempt <= cdpConnectAttempts; attempt++ {
		browser, err := pw.Chromium.ConnectOverCDP(endpoint)
		if err == nil {
			return browser, nil
		}
		lastErr = err
		log.Debugf("CDP endpoint %s not ready (attempt %d): %v", endpoint, attempt, err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(cdpConnectInterval):
		}
	}
	return nil, fmt.Errorf("failed to connect to %s: %w", endpoint, lastErr)
}

// evaluator is the part of playwright.Page and playwright.Frame the driver
// runs scripts against.
type evaluator interface {
	Evaluate(expression string, arg ...interface{}) (interface{}, error)
	EvaluateHandle(expression string, arg ...interface{}) (playwright.JSHandle, error)
	URL() string
}

// playwrightDriver presents every page of every browser context as a window.
// Handles are assigned in discovery order and never reused.
type playwrightDriver struct {
	browser  playwright.Browser
	handles  map[playwright.Page]string
	order    []playwright.Page
	next     int
	current  playwright.Page
	frame    playwright.Frame
	implicit time.Duration
}

func (d *playwrightDriver) refresh() []string {
	for _, bc := range d.browser.Contexts() {
		for _, page := range bc.Pages() {
			if _, ok := d.handles[page]; ok {
				continue
			}
			d.next++
			d.handles[page] = fmt.Sprintf("page-%d", d.next)
			d.order = append(d.order, page)
		}
	}

	open := d.order[:0]
	for _, page := range d.order {
		if page.IsClosed() {
			delete(d.handles, page)
			continue
		}
		open = append(open, page)
	}
	d.order = open

	handles := make([]string, 0, len(d.order))
	for _, page := range d.order {
		handles = append(handles, d.handles[page])
	}
	return handles
}

func (d *playwrightDriver) target() (evaluator, error) {
	if d.frame != nil {
		return d.frame, nil
	}
	if d.current == nil {
		d.refresh()
		if len(d.order) == 0 {
			return nil, fmt.Errorf("no open window")
		}
		d.current = d.order[0]
	}
	return d.current, nil
}

func (d *playwrightDriver) SetImplicitWait(timeout time.Duration) error {
	d.implicit = timeout
	return nil
}

func (d *playwrightDriver) CurrentURL() (string, error) {
	t, err := d.target()
	if err != nil {
		return "", err
	}
	return t.URL(), nil
}

func (d *playwrightDriver) WindowHandles() ([]string, error) {
	return d.refresh(), nil
}

func (d *playwrightDriver) SwitchWindow(handle string) error {
	d.refresh()
	for _, page := range d.order {
		if d.handles[page] == handle {
			d.current = page
			d.frame = nil
			return nil
		}
	}
	return fmt.Errorf("switch to window %s: no such window", handle)
}

func (d *playwrightDriver) EnterFrame(css string) (bool, error) {
	el, err := d.lookup(`sel => document.querySelector(sel)`, css, 0)
	if errors.Is(err, ErrNoSuchElement) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	frame, err := el.ContentFrame()
	if err != nil {
		return false, fmt.Errorf("enter frame %q: %w", css, err)
	}
	if frame == nil {
		return false, nil
	}
	d.frame = frame
	return true, nil
}

func (d *playwrightDriver) ExecuteScript(script string) (interface{}, error) {
	t, err := d.target()
	if err != nil {
		return nil, err
	}
	return t.Evaluate(asFunction(script))
}

func (d *playwrightDriver) ExecuteScriptElement(script string) (Element, error) {
	el, err := d.lookup(asFunction(script), nil, d.implicit)
	if err != nil {
		return nil, err
	}
	return playwrightElement{el: el}, nil
}

func (d *playwrightDriver) FindElement(css string) (Element, error) {
	el, err := d.lookup(`sel => document.querySelector(sel)`, css, d.implicit)
	if err != nil {
		return nil, fmt.Errorf("%w (%s)", err, css)
	}
	return playwrightElement{el: el}, nil
}

// lookup evaluates expression until it yields an element or wait elapses.
func (d *playwrightDriver) lookup(expression string, arg interface{}, wait time.Duration) (playwright.ElementHandle, error) {
	deadline := time.Now().Add(wait)
	for {
		t, err := d.target()
		if err != nil {
			return nil, err
		}
		var h playwright.JSHandle
		if arg != nil {
			h, err = t.EvaluateHandle(expression, arg)
		} else {
			h, err = t.EvaluateHandle(expression)
		}
		if err != nil {
			return nil, fmt.Errorf("evaluate: %w", err)
		}
		if el := h.AsElement(); el != nil {
			return el, nil
		}
		if !time.Now().Before(deadline) {
			return nil, ErrNoSuchElement
		}
		time.Sleep(lookupInterval)
	}
}

func (d *playwrightDriver) Quit() error {
	if err := d.browser.Close(); err != nil {
		return fmt.Errorf("failed to close browser: %w", err)
	}
	return nil
}

type playwrightElement struct {
	el playwright.ElementHandle
}

func (e playwrightElement) Click() error {
	return e.el.Click()
}

// asFunction turns a WebDriver-style script body into an arrow function.
func asFunction(body string) string {
	return "() => {" + body + "}"
}
