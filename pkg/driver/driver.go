// Package driver wraps a WebDriver-style automation connection to a browser
// shell behind a small interface, and owns the lifetime of that connection.
//
// Two backends exist: chromedriver (the WebDriver wire protocol, via
// github.com/tebeka/selenium) and playwright (CDP, via playwright-go). Both
// expose the shell's top-level windows as an ordered list of opaque handles.
package driver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/entrhq/nwregress/pkg/config"
	"github.com/entrhq/nwregress/pkg/logging"
)

// ErrNoSuchElement is returned when a selector or script finds nothing.
var ErrNoSuchElement = errors.New("no such element")

// Element is a located element that can be activated.
type Element interface {
	Click() error
}

// Driver is one automation connection. All calls block until the remote end
// answers. Implementations are not safe for concurrent use.
type Driver interface {
	// SetImplicitWait sets how long element lookups poll before giving up.
	SetImplicitWait(d time.Duration) error

	// CurrentURL returns the URL of the active window (or frame).
	CurrentURL() (string, error)

	// WindowHandles returns the handles of all open top-level windows, in the
	// order the shell reports them.
	WindowHandles() ([]string, error)

	// SwitchWindow makes the window with the given handle active.
	SwitchWindow(handle string) error

	// EnterFrame switches into the first iframe matching css, if any.
	// It reports whether a frame was entered.
	EnterFrame(css string) (bool, error)

	// ExecuteScript runs a function body in the active context and returns
	// its JSON-decoded result.
	ExecuteScript(script string) (interface{}, error)

	// ExecuteScriptElement runs a function body that returns a DOM element.
	ExecuteScriptElement(script string) (Element, error)

	// FindElement returns the first element matching a CSS selector.
	FindElement(css string) (Element, error)

	// Quit ends the automation session.
	Quit() error
}

// Session owns a Driver and everything started to serve it. Release must run on
// every exit path; it is safe to call more than once and only acts the first
// time.
type Session struct {
	Driver  Driver
	Backend config.Backend

	cleanups []func() error
	once     sync.Once
	released bool
	err      error
}

// NewSession wraps d. Cleanups run after Quit, in order, on Release.
func NewSession(d Driver, backend config.Backend, cleanups ...func() error) *Session {
	return &Session{
		Driver:   d,
		Backend:  backend,
		cleanups: cleanups,
	}
}

// Release quits the driver and runs the cleanups. Every step runs even when an
// earlier one fails; the errors are joined.
func (s *Session) Release() error {
	s.once.Do(func() {
		var errs []error
		if err := s.Driver.Quit(); err != nil {
			errs = append(errs, fmt.Errorf("failed to quit session: %w", err))
		}
		for _, cleanup := range s.cleanups {
			if err := cleanup(); err != nil {
				errs = append(errs, err)
			}
		}
		s.released = true
		s.err = errors.Join(errs...)
	})
	return s.err
}

// Released reports whether Release has run.
func (s *Session) Released() bool {
	return s.released
}

// Open starts a session with the backend named in cfg. cfg must have passed
// Validate.
func Open(ctx context.Context, cfg *config.Config, log *logging.Logger) (*Session, error) {
	switch cfg.Driver.Backend {
	case config.BackendChromeDriver:
		return openChromeDriver(cfg, log)
	case config.BackendPlaywright:
		return openPlaywright(ctx, cfg, log)
	default:
		return nil, fmt.Errorf("unsupported backend %q", cfg.Driver.Backend)
	}
}
