package filewatch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatchFiresOnWriteAndIgnoresSiblings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tasks.json")
	require.NoError(t, os.WriteFile(path, []byte("[]"), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var hits atomic.Int32
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = Watch(ctx, path, Options{Debounce: 20 * time.Millisecond}, func() { hits.Add(1) })
	}()

	// Give the watcher time to register.
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.json"), []byte("{}"), 0o600))
	time.Sleep(100 * time.Millisecond)
	require.Zero(t, hits.Load())

	require.NoError(t, os.WriteFile(path, []byte("[1]"), 0o600))
	require.Eventually(t, func() bool { return hits.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not return after cancel")
	}
}
