package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startWatch(t *testing.T, paths []string) (<-chan []string, context.CancelFunc, <-chan error) {
	t.Helper()

	w := NewWatcher(zerolog.Nop())
	w.Debounce = 50 * time.Millisecond

	changes := make(chan []string, 8)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	ready := make(chan struct{})

	go func() {
		close(ready)
		done <- w.Watch(ctx, paths, func(_ context.Context, changed []string) error {
			changes <- changed
			return nil
		})
	}()
	<-ready
	// Let the watcher register before the test writes.
	time.Sleep(100 * time.Millisecond)

	t.Cleanup(cancel)
	return changes, cancel, done
}

func waitChange(t *testing.T, changes <-chan []string) []string {
	t.Helper()
	select {
	case c := <-changes:
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
		return nil
	}
}

func TestWatcher_File(t *testing.T) {
	dir := t.TempDir()
	inputs := writeFile(t, dir, "inputs.yaml", "tidal_constituents: [M2]\n")
	writeFile(t, dir, "other.txt", "x")

	changes, cancel, done := startWatch(t, []string{inputs})

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("y"), 0o644))
	require.NoError(t, os.WriteFile(inputs, []byte("tidal_constituents: [M2, S2]\n"), 0o644))
	require.NoError(t, os.WriteFile(inputs, []byte("tidal_constituents: [M2, S2, K1]\n"), 0o644))

	changed := waitChange(t, changes)
	abs, _ := filepath.Abs(inputs)
	assert.Equal(t, []string{abs}, changed)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestWatcher_Directory(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "components")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	changes, _, _ := startWatch(t, []string{dir})

	def := filepath.Join(sub, "mixing.yaml")
	require.NoError(t, os.WriteFile(def, []byte("name: mixing\n"), 0o644))

	changed := waitChange(t, changes)
	assert.Contains(t, changed, def)
}

func TestWatcher_MissingPath(t *testing.T) {
	w := NewWatcher(zerolog.Nop())
	err := w.Watch(context.Background(), []string{filepath.Join(t.TempDir(), "absent.yaml")}, func(context.Context, []string) error {
		return nil
	})
	assert.Error(t, err)
}
