package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/entrhq/nwregress/pkg/config"
	"github.com/entrhq/nwregress/pkg/driver"
	"github.com/entrhq/nwregress/pkg/logging"
	"github.com/entrhq/nwregress/pkg/scenario"
)

var errScenarioFailed = errors.New("scenario failed")

// runOptions holds the run command's flags. Empty values leave the config
// file and environment untouched.
type runOptions struct {
	configPath string
	appDir     string
	backend    string
	driverPath string
	verbosity  string
	artifacts  string
}

func newRootCmd(version, commit, buildDate string) *cobra.Command {
	root := &cobra.Command{
		Use:           "nwregress",
		Short:         "Regression scenarios for NW.js-style browser shells",
		Long:          `Drives a browser shell and its devtools through WebDriver and checks known crash scenarios stay fixed.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newRunCmd(), newListCmd(), &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "nwregress %s\n", version)
			fmt.Fprintf(out, "commit: %s\n", commit)
			fmt.Fprintf(out, "built: %s\n", buildDate)
		},
	})
	return root
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered scenarios",
		Run: func(cmd *cobra.Command, _ []string) {
			for _, name := range scenario.Names() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
		},
	}
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run [scenario]",
		Short: "Run a regression scenario",
		Long: `Run a regression scenario (default ` + scenario.Issue4269Name + `).

The chromedriver backend needs CHROMEDRIVER; the playwright backend needs NW_BINARY.
The application directory defaults to test/remoting/<scenario>.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := scenario.Issue4269Name
			if len(args) == 1 {
				name = args[0]
			}
			return runScenario(cmd.Context(), name, opts, cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "YAML run configuration")
	flags.StringVar(&opts.appDir, "app", "", "application directory passed as nwapp=<dir>")
	flags.StringVar(&opts.backend, "backend", "", "driver backend: chromedriver or playwright")
	flags.StringVar(&opts.driverPath, "driver", "", "chromedriver path (overrides CHROMEDRIVER)")
	flags.StringVarP(&opts.verbosity, "verbosity", "v", "", "quiet, normal, verbose or debug")
	flags.StringVar(&opts.artifacts, "artifacts", "", "write result.json and summary.md to this directory")
	return cmd
}

// buildConfig layers flags over env over the config file over defaults.
func buildConfig(name string, opts *runOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}

	if opts.backend != "" {
		cfg.Driver.Backend = config.Backend(opts.backend)
	}
	if opts.driverPath != "" {
		cfg.Driver.Path = opts.driverPath
	}
	if opts.appDir != "" {
		cfg.App.Dir = opts.appDir
	}
	if opts.verbosity != "" {
		cfg.Logging.Verbosity = opts.verbosity
	}
	if opts.artifacts != "" {
		cfg.Artifacts.Enabled = true
		cfg.Artifacts.OutputDir = opts.artifacts
	}
	cfg.ApplyEnv()

	if cfg.App.Dir == "" {
		cfg.App.Dir = filepath.Join("test", "remoting", name)
	}
	if abs, err := filepath.Abs(cfg.App.Dir); err == nil {
		cfg.App.Dir = abs
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	return cfg, nil
}

func runScenario(ctx context.Context, name string, opts *runOptions, out io.Writer) error {
	build, ok := scenario.Lookup(name)
	if !ok {
		return fmt.Errorf("unknown scenario %q", name)
	}

	cfg, err := buildConfig(name, opts)
	if err != nil {
		return err
	}

	log, err := logging.NewLogger("nwregress")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	defer log.Close()

	console := logging.NewConsoleWriter(logging.ParseLevel(cfg.Logging.Verbosity), out)
	runner := scenario.NewRunner(console, log.With("runner"))

	res := runner.Run(ctx, build(cfg), cfg, func(ctx context.Context) (*driver.Session, error) {
		return driver.Open(ctx, cfg, log.With("driver"))
	})
	scenario.Report(console, res)

	if cfg.Artifacts.Enabled {
		if err := scenario.NewArtifactWriter(cfg.Artifacts.OutputDir).WriteAll(res); err != nil {
			console.Warnf("failed to write artifacts: %v", err)
		}
	}
	if log.LogPath() != "" {
		console.Verbosef("log: %s", log.LogPath())
	}

	if !res.Passed() {
		return fmt.Errorf("%w: %s: %w", errScenarioFailed, name, res.Err())
	}
	return nil
}
