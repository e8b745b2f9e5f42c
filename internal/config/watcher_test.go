package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nexus.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tick_ms: 50\n"), 0o644))

	reloads := make(chan Config, 4)
	w, err := NewWatcher(path, func(cfg Config) { reloads <- cfg }, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("tick_ms: 20\n"), 0o644))

	select {
	case cfg := <-reloads:
		assert.Equal(t, uint64(20), cfg.TickMs)
	case <-time.After(3 * time.Second):
		t.Fatal("no reload observed")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatcherKeepsPreviousOnInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nexus.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tick_ms: 50\n"), 0o644))

	reloads := make(chan Config, 4)
	w, err := NewWatcher(path, func(cfg Config) { reloads <- cfg }, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("tick_ms: [\n"), 0o644))

	select {
	case <-reloads:
		t.Fatal("invalid config must not reach the callback")
	case <-time.After(700 * time.Millisecond):
	}

	// Ignored sibling files never trigger reloads either.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x: 1\n"), 0o644))
	select {
	case <-reloads:
		t.Fatal("sibling file must not trigger a reload")
	case <-time.After(500 * time.Millisecond):
	}
}
