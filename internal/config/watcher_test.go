package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, path, logLevel string) {
	t.Helper()
	data := "server:\n  log_level: " + logLevel + "\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestWatcherInitialLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "info")

	w, err := NewWatcher(path, nil, WithInterval(time.Hour))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Stop()

	if got := w.Current().Server.LogLevel; got != LogInfo {
		t.Errorf("Current().Server.LogLevel = %q, want info", got)
	}
}

func TestWatcherInitialLoadInvalid(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "verbose")

	if _, err := NewWatcher(path, nil, WithInterval(time.Hour)); err == nil {
		t.Error("NewWatcher() should fail on an invalid initial config")
	}
}

func TestWatcherDetectsChange(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "info")

	changed := make(chan *Config, 1)
	w, err := NewWatcher(path, func(_, new *Config) {
		changed <- new
	}, WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Stop()

	// Ensure a distinct mtime on coarse-grained filesystems.
	time.Sleep(20 * time.Millisecond)
	writeConfig(t, path, "debug")
	now := time.Now()
	os.Chtimes(path, now, now)

	select {
	case cfg := <-changed:
		if cfg.Server.LogLevel != LogDebug {
			t.Errorf("reloaded log_level = %q, want debug", cfg.Server.LogLevel)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not report the change")
	}

	if got := w.Current().Server.LogLevel; got != LogDebug {
		t.Errorf("Current().Server.LogLevel = %q, want debug", got)
	}
}

func TestWatcherKeepsOldConfigOnInvalidChange(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "info")

	w, err := NewWatcher(path, nil, WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Stop()

	time.Sleep(20 * time.Millisecond)
	writeConfig(t, path, "verbose")
	now := time.Now()
	os.Chtimes(path, now, now)

	time.Sleep(100 * time.Millisecond)
	if got := w.Current().Server.LogLevel; got != LogInfo {
		t.Errorf("Current().Server.LogLevel = %q, want the old valid config kept", got)
	}
}
