package scenario

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/entrhq/nwregress/pkg/config"
	"github.com/entrhq/nwregress/pkg/driver"
	"github.com/entrhq/nwregress/pkg/driver/drivertest"
	"github.com/entrhq/nwregress/pkg/logging"
	"github.com/entrhq/nwregress/pkg/windows"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const googleURL = "https://www.google.com/"

// shell is a fake browser shell in the state the scenario expects: an app
// window, its devtools and a background page. Clicking the console link opens
// a fourth window at linkURL.
type shell struct {
	driver  *drivertest.Driver
	tab     *drivertest.Element
	link    *drivertest.Element
	console *bytes.Buffer
	sleeps  []time.Duration
}

func newShell(linkURL string) *shell {
	d := drivertest.New(
		drivertest.Window{Handle: "CDwindow-app", URL: "chrome-extension://app/index.html"},
		drivertest.Window{Handle: "CDwindow-devtools", URL: "devtools://devtools/bundled/inspector.html"},
		drivertest.Window{Handle: "CDwindow-bg", URL: "chrome-extension://app/_generated_background_page.html"},
	)
	s := &shell{driver: d, console: &bytes.Buffer{}}
	s.tab = &drivertest.Element{Name: "tab-console"}
	s.link = &drivertest.Element{
		Name: "external-link",
		OnClick: func() {
			d.OpenWindow(drivertest.Window{Handle: "CDwindow-link", URL: linkURL})
		},
	}
	d.Scripts[config.DefaultConsoleTabScript] = s.tab
	d.Selectors[".console-message-text .webkit-html-external-link"] = s.link
	return s
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.App.Dir = "/tests/issue4269"
	cfg.Wait = config.WaitConfig{MaxAttempts: 3, Interval: time.Millisecond}
	return cfg
}

func (s *shell) runner() *Runner {
	r := NewRunner(logging.NewConsoleWriter(logging.LevelNormal, s.console), logging.Discard("test"))
	r.Sleep = func(_ context.Context, d time.Duration) error {
		s.sleeps = append(s.sleeps, d)
		return nil
	}
	return r
}

func (s *shell) open(_ context.Context) (*driver.Session, error) {
	return driver.NewSession(s.driver, config.BackendChromeDriver), nil
}

func stepNames(res *Result) []string {
	names := make([]string, 0, len(res.Steps))
	for _, step := range res.Steps {
		names = append(names, step.Name)
	}
	return names
}

func TestIssue4269Passes(t *testing.T) {
	s := newShell(googleURL)
	cfg := testConfig()

	res := s.runner().Run(context.Background(), Issue4269(cfg), cfg, s.open)

	require.NoError(t, res.Err())
	assert.True(t, res.Passed())
	assert.Equal(t, []string{
		StepStartSession,
		"settle",
		"wait for devtools window",
		"switch to devtools window",
		"open console tab",
		"click external link",
		"wait for link window",
		"switch to link window",
		"check opened url",
		StepReleaseSession,
	}, stepNames(res))

	assert.Equal(t, 2*time.Second, s.driver.ImplicitWait())
	assert.Equal(t, []time.Duration{time.Second}, s.sleeps)
	assert.Equal(t, 1, s.tab.Clicks())
	assert.Equal(t, 1, s.link.Clicks())
	assert.Equal(t, "CDwindow-link", s.driver.Current())
	assert.Equal(t, googleURL, res.FinalURL)
	assert.Len(t, res.Handles, 4)
	assert.Equal(t, 1, s.driver.QuitCount())

	calls := s.driver.Calls()
	assert.Contains(t, calls, "switch CDwindow-devtools")
	assert.Contains(t, calls, "switch CDwindow-link")

	out := s.console.String()
	assert.Contains(t, out, "chrome-extension://app/index.html")
	assert.Contains(t, out, "[CDwindow-app CDwindow-devtools CDwindow-bg]")
	assert.Contains(t, out, googleURL)
	assert.Contains(t, out, "✓ PASS "+Issue4269Name)
}

func TestIssue4269Failures(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(s *shell, cfg *config.Config)
		failedAt  string
		wantErr   error
		errSubstr string
	}{
		{
			name:      "opened window is not the link",
			setup:     func(s *shell, _ *config.Config) {},
			failedAt:  "check opened url",
			wantErr:   ErrAssertion,
			errSubstr: `does not contain "https://www.google.com"`,
		},
		{
			name: "console tab missing",
			setup: func(s *shell, _ *config.Config) {
				delete(s.driver.Scripts, config.DefaultConsoleTabScript)
			},
			failedAt: "open console tab",
			wantErr:  driver.ErrNoSuchElement,
		},
		{
			name: "link not rendered",
			setup: func(s *shell, cfg *config.Config) {
				cfg.Selectors.ExternalLink = ".missing"
			},
			failedAt: "click external link",
			wantErr:  driver.ErrNoSuchElement,
		},
		{
			name: "devtools never opens",
			setup: func(s *shell, cfg *config.Config) {
				cfg.Expect.InitialWindows = 5
				cfg.Expect.DevtoolsIndex = 1
			},
			failedAt:  "wait for devtools window",
			wantErr:   windows.ErrTimeout,
			errSubstr: "5 windows",
		},
		{
			name: "link click opens nothing",
			setup: func(s *shell, _ *config.Config) {
				s.link.OnClick = nil
			},
			failedAt: "wait for link window",
			wantErr:  windows.ErrTimeout,
		},
		{
			name: "url glob mismatch",
			setup: func(s *shell, cfg *config.Config) {
				cfg.Expect.URLContains = "https://www.google.com"
				cfg.Expect.URLGlob = "https://www.google.com/search*"
			},
			failedAt:  "check opened url",
			wantErr:   ErrAssertion,
			errSubstr: "does not match",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			linkURL := googleURL
			if tt.name == "opened window is not the link" {
				linkURL = "about:blank"
			}
			s := newShell(linkURL)
			cfg := testConfig()
			tt.setup(s, cfg)

			res := s.runner().Run(context.Background(), Issue4269(cfg), cfg, s.open)

			assert.False(t, res.Passed())
			assert.Equal(t, StatusFailed, res.Status)
			require.Error(t, res.Err())
			assert.ErrorIs(t, res.Err(), tt.wantErr)
			assert.ErrorContains(t, res.Err(), tt.failedAt)
			if tt.errSubstr != "" {
				assert.ErrorContains(t, res.Err(), tt.errSubstr)
			}

			names := stepNames(res)
			assert.Equal(t, StepReleaseSession, names[len(names)-1], "session is released after a failure")
			assert.Equal(t, tt.failedAt, names[len(names)-2])
			assert.Equal(t, 1, s.driver.QuitCount())
			assert.Contains(t, s.console.String(), "✗ FAIL "+Issue4269Name)
		})
	}
}

func TestDevtoolsGlobMismatchOnlyWarns(t *testing.T) {
	s := newShell(googleURL)
	cfg := testConfig()
	cfg.Expect.DevtoolsURLGlob = "chrome-devtools://*"

	res := s.runner().Run(context.Background(), Issue4269(cfg), cfg, s.open)

	require.NoError(t, res.Err())
	assert.Contains(t, s.console.String(), "does not match chrome-devtools://*")
}

func TestRunOpenFailure(t *testing.T) {
	s := newShell(googleURL)
	cfg := testConfig()
	openErr := errors.New("chromedriver exited")

	res := s.runner().Run(context.Background(), Issue4269(cfg), cfg, func(context.Context) (*driver.Session, error) {
		return nil, openErr
	})

	assert.ErrorIs(t, res.Err(), openErr)
	assert.Equal(t, []string{StepStartSession}, stepNames(res))
	assert.Equal(t, 0, s.driver.QuitCount())
}

func TestRunReleaseFailureFailsPassingRun(t *testing.T) {
	s := newShell(googleURL)
	s.driver.QuitErr = errors.New("invalid session id")
	cfg := testConfig()

	res := s.runner().Run(context.Background(), Issue4269(cfg), cfg, s.open)

	assert.False(t, res.Passed())
	assert.ErrorIs(t, res.Err(), s.driver.QuitErr)
	assert.Contains(t, res.ReleaseError, "invalid session id")
}

func TestRunReleaseFailureDoesNotMaskStepError(t *testing.T) {
	s := newShell("about:blank")
	s.driver.QuitErr = errors.New("invalid session id")
	cfg := testConfig()

	res := s.runner().Run(context.Background(), Issue4269(cfg), cfg, s.open)

	assert.ErrorIs(t, res.Err(), ErrAssertion)
	assert.NotErrorIs(t, res.Err(), s.driver.QuitErr)
	assert.NotEmpty(t, res.ReleaseError)
}

func TestRunReleasesOnPanic(t *testing.T) {
	s := newShell(googleURL)
	cfg := testConfig()
	sc := Scenario{
		Name: "panics",
		Steps: []Step{{
			Name: "explode",
			Run:  func(context.Context, *State) error { panic("driver bug") },
		}},
	}

	assert.PanicsWithValue(t, "driver bug", func() {
		s.runner().Run(context.Background(), sc, cfg, s.open)
	})
	assert.Equal(t, 1, s.driver.QuitCount())
}

func TestRunCancelled(t *testing.T) {
	s := newShell(googleURL)
	cfg := testConfig()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := s.runner()
	r.Sleep = sleepContext

	res := r.Run(ctx, Issue4269(cfg), cfg, s.open)
	assert.ErrorIs(t, res.Err(), context.Canceled)
	assert.Equal(t, 1, s.driver.QuitCount())
}

func TestSleepContext(t *testing.T) {
	require.NoError(t, sleepContext(context.Background(), time.Millisecond))
	require.NoError(t, sleepContext(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}

func TestRegistry(t *testing.T) {
	c, ok := Lookup(Issue4269Name)
	require.True(t, ok)
	assert.Equal(t, Issue4269Name, c(config.DefaultConfig()).Name)

	_, ok = Lookup("issue0000")
	assert.False(t, ok)
	assert.Equal(t, []string{Issue4269Name}, Names())
}
