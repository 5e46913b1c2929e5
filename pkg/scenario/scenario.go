// Package scenario runs shell regression scenarios: ordered, blocking steps
// against one automation session, with the session released on every exit
// path.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/entrhq/nwregress/pkg/config"
	"github.com/entrhq/nwregress/pkg/driver"
	"github.com/entrhq/nwregress/pkg/logging"
	"github.com/entrhq/nwregress/pkg/windows"
)

// ErrAssertion marks a failed expectation, as opposed to a driver error.
var ErrAssertion = errors.New("assertion failed")

// Step names recorded around the scenario's own steps.
const (
	StepStartSession   = "start session"
	StepReleaseSession = "release session"
)

// State is shared by the steps of one run.
type State struct {
	Config  *config.Config
	Driver  driver.Driver
	Console *logging.Console
	Log     *logging.Logger

	// Handles is the last window handle list a step observed.
	Handles []string
	// FinalURL is the URL the scenario asserted on.
	FinalURL string

	sleep func(context.Context, time.Duration) error
}

// Sleep pauses for d unless ctx ends first.
func (s *State) Sleep(ctx context.Context, d time.Duration) error {
	return s.sleep(ctx, d)
}

// Poll returns the configured window-count polling bound.
func (s *State) Poll() windows.Poll {
	return windows.Poll{Attempts: s.Config.Wait.MaxAttempts, Interval: s.Config.Wait.Interval}
}

// Step is one blocking action. A returned error fails the scenario.
type Step struct {
	Name string
	Run  func(ctx context.Context, s *State) error
}

// Scenario is a named sequence of steps.
type Scenario struct {
	Name        string
	Description string
	Steps       []Step
}

// OpenFunc acquires the automation session for a run.
type OpenFunc func(ctx context.Context) (*driver.Session, error)

// Runner executes scenarios.
type Runner struct {
	Console *logging.Console
	Log     *logging.Logger

	// Sleep is used for fixed delays. Defaults to a context-aware sleep.
	Sleep func(context.Context, time.Duration) error
}

// NewRunner creates a runner that traces to console and logs to log.
func NewRunner(console *logging.Console, log *logging.Logger) *Runner {
	return &Runner{
		Console: console,
		Log:     log,
		Sleep:   sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run opens a session, runs the steps in order until one fails, and releases
// the session. The release happens even if a step panics.
func (r *Runner) Run(ctx context.Context, sc Scenario, cfg *config.Config, open OpenFunc) (res *Result) {
	res = &Result{
		RunID:     logging.GetRunID(),
		Scenario:  sc.Name,
		Status:    StatusFailed,
		StartTime: time.Now(),
	}
	r.Log.Infof("scenario %s starting", sc.Name)
	r.Console.Header(sc.Name)

	r.Console.Phase(StepStartSession)
	started := time.Now()
	session, err := open(ctx)
	res.record(StepStartSession, started, err)
	if err != nil {
		res.fail(fmt.Errorf("%s: %w", StepStartSession, err))
		r.finish(res)
		return res
	}

	state := &State{
		Config:  cfg,
		Driver:  session.Driver,
		Console: r.Console,
		Log:     r.Log,
		sleep:   r.Sleep,
	}

	defer func() {
		released := time.Now()
		relErr := session.Release()
		res.record(StepReleaseSession, released, relErr)
		if relErr != nil {
			r.Log.Errorf("release failed: %v", relErr)
			res.ReleaseError = relErr.Error()
			if res.err == nil {
				res.fail(fmt.Errorf("%s: %w", StepReleaseSession, relErr))
			}
		}
		res.Handles = state.Handles
		res.FinalURL = state.FinalURL
		r.finish(res)
	}()

	for _, step := range sc.Steps {
		r.Console.Phase(step.Name)
		r.Log.Infof("step %q", step.Name)
		started := time.Now()
		err := step.Run(ctx, state)
		res.record(step.Name, started, err)
		if err != nil {
			r.Log.Errorf("step %q failed: %v", step.Name, err)
			res.fail(fmt.Errorf("%s: %w", step.Name, err))
			return res
		}
	}

	res.Status = StatusPassed
	return res
}

func (r *Runner) finish(res *Result) {
	res.EndTime = time.Now()
	res.Duration = res.EndTime.Sub(res.StartTime)
	if res.err != nil {
		r.Console.Errorf("%v", res.err)
	}
	r.Console.Verdict(res.Scenario, res.Passed())
	r.Log.Infof("scenario %s %s in %s", res.Scenario, res.Status, res.Duration)
}
