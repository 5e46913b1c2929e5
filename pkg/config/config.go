// Package config holds the run configuration of a regression scenario:
// which WebDriver backend launches the shell, how long to wait for windows,
// which elements to click and what the opened window must look like.
//
// A config starts from DefaultConfig, is overlaid with an optional YAML file,
// then with environment variables and CLI flags, and is checked by Validate.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/gobwas/glob"
	"gopkg.in/yaml.v3"

	"github.com/entrhq/nwregress/pkg/logging"
)

// Environment variables read by ApplyEnv.
const (
	EnvDriverPath = "CHROMEDRIVER"
	EnvShellPath  = "NW_BINARY"
)

// Backend selects how the browser shell is driven.
type Backend string

const (
	// BackendChromeDriver drives the shell through a chromedriver binary
	BackendChromeDriver Backend = "chromedriver"
	// BackendPlaywright launches the shell itself and attaches over CDP
	BackendPlaywright Backend = "playwright"
)

// ErrDriverPathMissing is returned by Validate when the chromedriver backend has
// no driver path. The run must stop before anything is launched.
var ErrDriverPathMissing = errors.New("CHROMEDRIVER is not set")

// Config is the full run configuration.
type Config struct {
	Driver    DriverConfig    `yaml:"driver" json:"driver"`
	App       AppConfig       `yaml:"app" json:"app"`
	Timing    TimingConfig    `yaml:"timing" json:"timing"`
	Wait      WaitConfig      `yaml:"wait" json:"wait"`
	Expect    ExpectConfig    `yaml:"expect" json:"expect"`
	Selectors SelectorConfig  `yaml:"selectors" json:"selectors"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
	Artifacts ArtifactsConfig `yaml:"artifacts" json:"artifacts"`
}

// DriverConfig selects and locates the automation backend.
type DriverConfig struct {
	Backend Backend `yaml:"backend" json:"backend"`

	// Path is the chromedriver executable (chromedriver backend)
	Path string `yaml:"path" json:"path"`

	// Binary is the shell executable (playwright backend)
	Binary string `yaml:"binary" json:"binary"`

	// Port for the chromedriver service or the CDP endpoint; 0 picks a free one
	Port int `yaml:"port" json:"port"`

	// ExtraArgs are appended to the shell's command line
	ExtraArgs []string `yaml:"extra_args" json:"extra_args"`
}

// AppConfig locates the application under test.
type AppConfig struct {
	// Dir is passed to the shell as nwapp=<Dir>
	Dir string `yaml:"dir" json:"dir"`
}

// TimingConfig holds the fixed delays applied after launch.
type TimingConfig struct {
	ImplicitWait time.Duration `yaml:"implicit_wait" json:"implicit_wait"`
	Settle       time.Duration `yaml:"settle" json:"settle"`
}

// WaitConfig bounds every window-count poll.
type WaitConfig struct {
	MaxAttempts int           `yaml:"max_attempts" json:"max_attempts"`
	Interval    time.Duration `yaml:"interval" json:"interval"`
}

// ExpectConfig describes the window layout and the final URL check.
//
// Window indices are positions in the driver's handle list. The shell is
// expected to order devtools second; nothing in the windows themselves
// identifies them.
type ExpectConfig struct {
	InitialWindows   int    `yaml:"initial_windows" json:"initial_windows"`
	DevtoolsIndex    int    `yaml:"devtools_index" json:"devtools_index"`
	WindowsAfterLink int    `yaml:"windows_after_link" json:"windows_after_link"`
	OpenedIndex      int    `yaml:"opened_index" json:"opened_index"`
	URLContains      string `yaml:"url_contains" json:"url_contains"`
	URLGlob          string `yaml:"url_glob,omitempty" json:"url_glob,omitempty"`
	DevtoolsURLGlob  string `yaml:"devtools_url_glob,omitempty" json:"devtools_url_glob,omitempty"`
}

// SelectorConfig holds the element lookups.
type SelectorConfig struct {
	// ConsoleTabScript is a script body returning the Console tab element
	ConsoleTabScript string `yaml:"console_tab_script" json:"console_tab_script"`
	// ExternalLink is a CSS selector for the link rendered in the console
	ExternalLink string `yaml:"external_link" json:"external_link"`
}

// LoggingConfig defines logging configuration
type LoggingConfig struct {
	// Verbosity controls the console trace: quiet, normal, verbose, debug
	Verbosity string `yaml:"verbosity" json:"verbosity"`
}

// ArtifactsConfig controls the result files written after a run.
type ArtifactsConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	OutputDir string `yaml:"output_dir" json:"output_dir"`
}

// DefaultConsoleTabScript finds the Console tab inside the devtools tabbed pane's shadow root.
const DefaultConsoleTabScript = `return document.querySelector(".inspector-view-tabbed-pane").shadowRoot.getElementById("tab-console")`

// DefaultConfig returns the values of the external-link crash scenario.
func DefaultConfig() *Config {
	return &Config{
		Driver: DriverConfig{
			Backend: BackendChromeDriver,
		},
		Timing: TimingConfig{
			ImplicitWait: 2 * time.Second,
			Settle:       1 * time.Second,
		},
		Wait: WaitConfig{
			MaxAttempts: 60,
			Interval:    time.Second,
		},
		Expect: ExpectConfig{
			InitialWindows:   3,
			DevtoolsIndex:    1,
			WindowsAfterLink: 4,
			OpenedIndex:      3,
			URLContains:      "https://www.google.com",
		},
		Selectors: SelectorConfig{
			ConsoleTabScript: DefaultConsoleTabScript,
			ExternalLink:     ".console-message-text .webkit-html-external-link",
		},
		Logging: LoggingConfig{
			Verbosity: "normal",
		},
		Artifacts: ArtifactsConfig{
			OutputDir: ".nwregress/artifacts",
		},
	}
}

// Load returns DefaultConfig overlaid with the YAML file at path.
// An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv fills driver locations from the environment. Values already set
// (from a file or flags) are kept.
func (c *Config) ApplyEnv() {
	if c.Driver.Path == "" {
		c.Driver.Path = os.Getenv(EnvDriverPath)
	}
	if c.Driver.Binary == "" {
		c.Driver.Binary = os.Getenv(EnvShellPath)
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Driver.Backend {
	case BackendChromeDriver:
		if c.Driver.Path == "" {
			return ErrDriverPathMissing
		}
		if _, err := os.Stat(c.Driver.Path); err != nil {
			return fmt.Errorf("driver.path: %w", err)
		}
	case BackendPlaywright:
		if c.Driver.Binary == "" {
			return fmt.Errorf("driver.binary is required for the playwright backend (or set %s)", EnvShellPath)
		}
	default:
		return fmt.Errorf("invalid driver.backend: %q (must be %q or %q)", c.Driver.Backend, BackendChromeDriver, BackendPlaywright)
	}

	if c.Driver.Port < 0 {
		return fmt.Errorf("driver.port cannot be negative")
	}

	if c.App.Dir == "" {
		return fmt.Errorf("app.dir is required")
	}
	if info, err := os.Stat(c.App.Dir); err != nil {
		return fmt.Errorf("app.dir: %w", err)
	} else if !info.IsDir() {
		return fmt.Errorf("app.dir %s is not a directory", c.App.Dir)
	}

	if c.Timing.ImplicitWait < 0 || c.Timing.Settle < 0 || c.Wait.Interval < 0 {
		return fmt.Errorf("durations cannot be negative")
	}
	if c.Wait.MaxAttempts < 1 {
		return fmt.Errorf("wait.max_attempts must be at least 1")
	}

	if err := checkIndex("expect.devtools_index", c.Expect.DevtoolsIndex, c.Expect.InitialWindows); err != nil {
		return err
	}
	if err := checkIndex("expect.opened_index", c.Expect.OpenedIndex, c.Expect.WindowsAfterLink); err != nil {
		return err
	}

	if c.Expect.URLContains == "" {
		return fmt.Errorf("expect.url_contains is required")
	}
	for field, pattern := range map[string]string{
		"expect.url_glob":          c.Expect.URLGlob,
		"expect.devtools_url_glob": c.Expect.DevtoolsURLGlob,
	} {
		if pattern == "" {
			continue
		}
		if _, err := glob.Compile(pattern); err != nil {
			return fmt.Errorf("invalid %s %q: %w", field, pattern, err)
		}
	}

	if c.Selectors.ConsoleTabScript == "" {
		return fmt.Errorf("selectors.console_tab_script is required")
	}
	if c.Selectors.ExternalLink == "" {
		return fmt.Errorf("selectors.external_link is required")
	}

	if c.Logging.Verbosity == "" {
		c.Logging.Verbosity = "normal"
	}
	if !logging.ValidLevel(c.Logging.Verbosity) {
		return fmt.Errorf("invalid logging.verbosity: %s (must be 'quiet', 'normal', 'verbose', or 'debug')", c.Logging.Verbosity)
	}

	if c.Artifacts.Enabled && c.Artifacts.OutputDir == "" {
		return fmt.Errorf("artifacts.output_dir is required when artifacts are enabled")
	}

	return nil
}

func checkIndex(field string, index, count int) error {
	if count < 1 {
		return fmt.Errorf("%s: window count must be at least 1, got %d", field, count)
	}
	if index < 0 || index >= count {
		return fmt.Errorf("%s %d is outside the expected %d windows", field, index, count)
	}
	return nil
}
