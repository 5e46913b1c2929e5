package scenario

import (
	"context"
	"fmt"
	"strings"

	"github.com/gobwas/glob"

	"github.com/entrhq/nwregress/pkg/config"
	"github.com/entrhq/nwregress/pkg/windows"
)

// Issue4269Name is the registry name of the console external-link scenario.
const Issue4269Name = "issue4269-click-link-crash"

// Issue4269 checks that clicking an external link printed in the devtools
// console opens a new window at that URL instead of crashing the shell.
//
// Windows are picked by position: devtools at Expect.DevtoolsIndex and the
// opened link at Expect.OpenedIndex. The shell gives no better way to tell
// them apart at that point.
func Issue4269(cfg *config.Config) Scenario {
	return Scenario{
		Name:        Issue4269Name,
		Description: "clicking an external link in the devtools console opens it in a new window",
		Steps: []Step{
			{Name: "settle", Run: settle},
			{Name: "wait for devtools window", Run: waitWindows(cfg.Expect.InitialWindows)},
			{Name: "switch to devtools window", Run: switchToDevtools},
			{Name: "open console tab", Run: clickScriptElement(cfg.Selectors.ConsoleTabScript)},
			{Name: "click external link", Run: clickSelector(cfg.Selectors.ExternalLink)},
			{Name: "wait for link window", Run: waitWindows(cfg.Expect.WindowsAfterLink)},
			{Name: "switch to link window", Run: switchToIndex(cfg.Expect.OpenedIndex)},
			{Name: "check opened url", Run: checkURL},
		},
	}
}

func settle(ctx context.Context, s *State) error {
	if err := s.Driver.SetImplicitWait(s.Config.Timing.ImplicitWait); err != nil {
		return fmt.Errorf("failed to set implicit wait: %w", err)
	}
	if err := s.Sleep(ctx, s.Config.Timing.Settle); err != nil {
		return err
	}
	url, err := s.Driver.CurrentURL()
	if err != nil {
		return fmt.Errorf("failed to read current url: %w", err)
	}
	s.Console.Infof("%s", url)
	return nil
}

func waitWindows(count int) func(context.Context, *State) error {
	return func(ctx context.Context, s *State) error {
		handles, err := windows.WaitHandles(ctx, s.Driver, count, s.Poll())
		s.Handles = handles
		if err != nil {
			return err
		}
		s.Console.Infof("%v", handles)
		return nil
	}
}

func switchToDevtools(ctx context.Context, s *State) error {
	index := s.Config.Expect.DevtoolsIndex
	if index < 0 || index >= len(s.Handles) {
		return fmt.Errorf("devtools window index %d out of range (%d windows)", index, len(s.Handles))
	}
	if err := windows.SwitchToDevtools(ctx, s.Driver, s.Handles[index], s.Poll()); err != nil {
		return err
	}

	if pattern := s.Config.Expect.DevtoolsURLGlob; pattern != "" {
		url, err := s.Driver.CurrentURL()
		if err != nil {
			return fmt.Errorf("failed to read devtools url: %w", err)
		}
		g, err := glob.Compile(pattern)
		if err != nil {
			return fmt.Errorf("invalid devtools url glob %q: %w", pattern, err)
		}
		// Index order is what the scenario relies on; a mismatch is only reported.
		if !g.Match(url) {
			s.Console.Warnf("window %d is %s, which does not match %s", index, url, pattern)
			s.Log.Warnf("devtools window url %s does not match %s", url, pattern)
		}
	}
	return nil
}

func clickScriptElement(script string) func(context.Context, *State) error {
	return func(_ context.Context, s *State) error {
		el, err := s.Driver.ExecuteScriptElement(script)
		if err != nil {
			return err
		}
		s.Console.Debugf("clicking element returned by %s", script)
		return el.Click()
	}
}

func clickSelector(css string) func(context.Context, *State) error {
	return func(_ context.Context, s *State) error {
		el, err := s.Driver.FindElement(css)
		if err != nil {
			return err
		}
		s.Console.Debugf("clicking %s", css)
		return el.Click()
	}
}

func switchToIndex(index int) func(context.Context, *State) error {
	return func(_ context.Context, s *State) error {
		return windows.SwitchToIndex(s.Driver, s.Handles, index)
	}
}

func checkURL(_ context.Context, s *State) error {
	url, err := s.Driver.CurrentURL()
	if err != nil {
		return fmt.Errorf("failed to read current url: %w", err)
	}
	s.FinalURL = url
	s.Console.Infof("%s", url)

	want := s.Config.Expect.URLContains
	if !strings.Contains(url, want) {
		return fmt.Errorf("%w: url %q does not contain %q", ErrAssertion, url, want)
	}
	if pattern := s.Config.Expect.URLGlob; pattern != "" {
		g, err := glob.Compile(pattern)
		if err != nil {
			return fmt.Errorf("invalid url glob %q: %w", pattern, err)
		}
		if !g.Match(url) {
			return fmt.Errorf("%w: url %q does not match %q", ErrAssertion, url, pattern)
		}
	}
	return nil
}
