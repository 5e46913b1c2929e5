package issue4269

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/entrhq/nwregress/pkg/config"
	"github.com/entrhq/nwregress/pkg/driver"
	"github.com/entrhq/nwregress/pkg/logging"
	"github.com/entrhq/nwregress/pkg/scenario"
)

// appDir is the directory holding this test and the app it launches.
func appDir(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok, "cannot locate test file")
	return filepath.Dir(file)
}

// Clicking an external link in the devtools console used to crash the shell.
func TestClickConsoleLinkOpensWindow(t *testing.T) {
	if os.Getenv(config.EnvDriverPath) == "" {
		t.Skipf("%s not set", config.EnvDriverPath)
	}

	cfg := config.DefaultConfig()
	cfg.App.Dir = appDir(t)
	cfg.ApplyEnv()
	require.NoError(t, cfg.Validate())

	log := logging.Discard("issue4269")
	console := logging.NewConsole(logging.LevelNormal)
	runner := scenario.NewRunner(console, log)

	res := runner.Run(context.Background(), scenario.Issue4269(cfg), cfg, func(ctx context.Context) (*driver.Session, error) {
		return driver.Open(ctx, cfg, log)
	})
	require.NoError(t, res.Err())
	require.Contains(t, res.FinalURL, "https://www.google.com")
}
