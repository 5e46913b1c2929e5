package logging

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// setupTestDir points the log directory at a temp dir and resets global state
func setupTestDir(t *testing.T) {
	t.Helper()

	tempDir := t.TempDir()

	origLogDir := logDir
	origInitErr := initErr
	origRunID := runID

	logDir = tempDir
	initErr = nil
	initOnce = sync.Once{}
	initOnce.Do(func() {})
	runID = ""
	runIDOnce = sync.Once{}

	t.Cleanup(func() {
		logDir = origLogDir
		initErr = origInitErr
		initOnce = sync.Once{}
		runID = origRunID
		runIDOnce = sync.Once{}
	})
}

func TestNewLogger(t *testing.T) {
	setupTestDir(t)

	logger, err := NewLogger("test-component")
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Close()

	if logger.component != "test-component" {
		t.Errorf("Expected component 'test-component', got %q", logger.component)
	}
	if logger.runID == "" {
		t.Error("Expected non-empty run ID")
	}
	if _, err := os.Stat(logger.LogPath()); os.IsNotExist(err) {
		t.Errorf("Log file does not exist at %s", logger.LogPath())
	}
}

func TestLoggerFormatting(t *testing.T) {
	setupTestDir(t)

	logger, err := NewLogger("runner")
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	logger.Debugf("handles %v", []string{"a", "b"})
	logger.Infof("Info message %d", 4269)
	logger.Warnf("Warning message")
	logger.Errorf("Error message")
	logger.With("driver").Infof("from driver")
	logger.Close()

	content, err := os.ReadFile(logger.LogPath())
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}

	for _, pattern := range []string{
		"[runner] [DEBUG] handles [a b]",
		"[runner] [INFO] Info message 4269",
		"[runner] [WARN] Warning message",
		"[runner] [ERROR] Error message",
		"[driver] [INFO] from driver",
	} {
		if !strings.Contains(string(content), pattern) {
			t.Errorf("Log content missing %q\nContent:\n%s", pattern, content)
		}
	}
}

func TestLoggersShareRunFile(t *testing.T) {
	setupTestDir(t)

	l1, err := NewLogger("a")
	if err != nil {
		t.Fatal(err)
	}
	defer l1.Close()
	l2, err := NewLogger("b")
	if err != nil {
		t.Fatal(err)
	}
	defer l2.Close()

	if l1.RunID() != l2.RunID() {
		t.Errorf("Expected same run ID, got %q and %q", l1.RunID(), l2.RunID())
	}
	if l1.LogPath() != l2.LogPath() {
		t.Errorf("Expected same log path, got %q and %q", l1.LogPath(), l2.LogPath())
	}
	if GetRunID() != l1.RunID() {
		t.Error("GetRunID disagrees with logger run ID")
	}
}

func TestLoggerClose(t *testing.T) {
	setupTestDir(t)

	logger, err := NewLogger("test")
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("First close failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("Second close failed: %v", err)
	}
}

func TestLogPathFormat(t *testing.T) {
	setupTestDir(t)

	logger, err := NewLogger("test")
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Close()

	fileName := filepath.Base(logger.LogPath())
	if !strings.HasSuffix(fileName, "-nwregress.log") {
		t.Errorf("Expected log file to end with '-nwregress.log', got %q", fileName)
	}
	if strings.Count(strings.TrimSuffix(fileName, "-nwregress.log"), "-") != 4 {
		t.Errorf("Expected UUID run ID in %q", fileName)
	}
}

func TestDiscard(t *testing.T) {
	l := Discard("quiet")
	l.Infof("nothing %s", "here")
	if l.LogPath() != "" {
		t.Errorf("Discard logger should have no path, got %q", l.LogPath())
	}
	if err := l.Close(); err != nil {
		t.Errorf("Close on discard logger: %v", err)
	}
}
