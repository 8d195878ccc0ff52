package config_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/soundmind-app/soundmind/internal/config"
)

const watcherYAML = `
server:
  listen_addr: ":8080"
  log_level: info
storage:
  state_dir: /tmp/soundmind
`

func writeConfigFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
}

func TestWatcherInitialLoad(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfigFile(t, path, watcherYAML)

	w, err := config.NewWatcher(path, nil, config.WithInterval(time.Hour))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Stop()

	if got := w.Current().Server.ListenAddr; got != ":8080" {
		t.Errorf("Current().Server.ListenAddr = %q, want :8080", got)
	}
}

func TestWatcherInitialLoadFailure(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := config.NewWatcher(path, nil); err == nil {
		t.Fatal("NewWatcher() on missing file succeeded, want error")
	}
}

func TestWatcherDetectsChange(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfigFile(t, path, watcherYAML)

	var (
		mu      sync.Mutex
		changed *config.Config
	)
	onChange := func(old, new *config.Config) {
		mu.Lock()
		changed = new
		mu.Unlock()
	}

	w, err := config.NewWatcher(path, onChange, config.WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Stop()

	// Ensure the mtime moves even on coarse-grained filesystems.
	time.Sleep(20 * time.Millisecond)
	updated := `
server:
  listen_addr: ":9090"
  log_level: debug
storage:
  state_dir: /tmp/soundmind
`
	writeConfigFile(t, path, updated)
	now := time.Now()
	if err := os.Chtimes(path, now, now); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		got := changed
		mu.Unlock()
		if got != nil {
			if got.Server.ListenAddr != ":9090" {
				t.Errorf("onChange new.Server.ListenAddr = %q, want :9090", got.Server.ListenAddr)
			}
			if w.Current().Server.LogLevel != config.LogDebug {
				t.Errorf("Current().Server.LogLevel = %q, want debug", w.Current().Server.LogLevel)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("watcher did not report the config change in time")
}

func TestWatcherKeepsOldConfigOnInvalidChange(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfigFile(t, path, watcherYAML)

	w, err := config.NewWatcher(path, nil, config.WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Stop()

	time.Sleep(20 * time.Millisecond)
	writeConfigFile(t, path, "server:\n  log_level: loud\n")
	now := time.Now()
	if err := os.Chtimes(path, now, now); err != nil {
		t.Fatal(err)
	}

	time.Sleep(100 * time.Millisecond)
	if got := w.Current().Server.ListenAddr; got != ":8080" {
		t.Errorf("Current() after invalid reload = %q, want previous :8080", got)
	}
}
