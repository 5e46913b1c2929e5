// Package windows holds the polling helpers shared by shell regression
// scenarios: waiting for a window count, picking a window by position, and
// attaching to a devtools window once it has loaded.
package windows

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/entrhq/nwregress/pkg/driver"
)

// ErrTimeout is returned when a poll runs out of attempts.
var ErrTimeout = errors.New("timed out")

// LegacyDevtoolsFrame is the iframe older shells load devtools into.
const LegacyDevtoolsFrame = "#inspector-app-iframe"

const readyStateScript = `return document.readyState`

// Poll bounds a wait: at most Attempts checks, Interval apart.
type Poll struct {
	Attempts int
	Interval time.Duration
}

// Condition is checked once per attempt. A non-nil error stops the wait.
type Condition func() (bool, error)

// WaitFor checks cond until it holds, an attempt errors, the attempts run out
// or ctx is done. what describes the wait in the timeout error.
func WaitFor(ctx context.Context, p Poll, what string, cond Condition) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; ; attempt++ {
		ok, err := cond()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if attempt >= attempts {
			return fmt.Errorf("%w after %d attempts waiting for %s", ErrTimeout, attempts, what)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.Interval):
		}
	}
}

// WaitHandles waits until exactly count windows are open and returns their
// handles.
func WaitHandles(ctx context.Context, d driver.Driver, count int, p Poll) ([]string, error) {
	var handles []string
	err := WaitFor(ctx, p, fmt.Sprintf("%d windows", count), func() (bool, error) {
		h, err := d.WindowHandles()
		if err != nil {
			return false, fmt.Errorf("failed to list windows: %w", err)
		}
		handles = h
		return len(h) == count, nil
	})
	if err != nil {
		if errors.Is(err, ErrTimeout) {
			return handles, fmt.Errorf("%w (last saw %d: %v)", err, len(handles), handles)
		}
		return handles, err
	}
	return handles, nil
}

// SwitchToIndex activates handles[index].
func SwitchToIndex(d driver.Driver, handles []string, index int) error {
	if index < 0 || index >= len(handles) {
		return fmt.Errorf("window index %d out of range (%d windows)", index, len(handles))
	}
	return d.SwitchWindow(handles[index])
}

// SwitchToDevtools activates the devtools window and waits until its document
// has loaded. Older shells host devtools inside an iframe; it is entered first.
func SwitchToDevtools(ctx context.Context, d driver.Driver, handle string, p Poll) error {
	if err := d.SwitchWindow(handle); err != nil {
		return err
	}
	if _, err := d.EnterFrame(LegacyDevtoolsFrame); err != nil {
		return err
	}
	return WaitFor(ctx, p, "devtools to load", func() (bool, error) {
		state, err := d.ExecuteScript(readyStateScript)
		if err != nil {
			return false, fmt.Errorf("failed to read document state: %w", err)
		}
		return state == "complete", nil
	})
}
