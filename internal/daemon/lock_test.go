//go:build unix

package daemon

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reportd/internal/task"
	logx "reportd/pkg/logx"
)

func writeLock(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scheduler_daemon.lock")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestAcquireWritesPidAndReleaseRemoves(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "daemon.lock")

	l, err := AcquireLock(path, logx.Nop())
	require.NoError(t, err)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid())+"\n", string(b))

	require.NoError(t, l.Release())
	_, err = os.Stat(path)
	assert.True(t, errors.Is(err, os.ErrNotExist))
	require.NoError(t, l.Release())
}

func TestStaleLockIsReclaimed(t *testing.T) {
	path := writeLock(t, "2147483647\n")

	l, err := AcquireLock(path, logx.Nop())
	require.NoError(t, err)
	defer l.Release()

	pid, err := ReadLockPID(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestUnreadableLockIsReclaimed(t *testing.T) {
	path := writeLock(t, "not a pid")

	l, err := AcquireLock(path, logx.Nop())
	require.NoError(t, err)
	require.NoError(t, l.Release())
}

func TestLiveLockConflicts(t *testing.T) {
	path := writeLock(t, strconv.Itoa(os.Getppid()))

	_, err := AcquireLock(path, logx.Nop())
	require.Error(t, err)
	assert.ErrorIs(t, err, task.ErrLockConflict)
	assert.Contains(t, err.Error(), strconv.Itoa(os.Getppid()))

	// the foreign lock is untouched
	pid, err := ReadLockPID(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getppid(), pid)
}

func TestReleaseLeavesForeignLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.lock")
	l, err := AcquireLock(path, logx.Nop())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(os.Getppid())), 0o644))
	require.NoError(t, l.Release())

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestHolder(t *testing.T) {
	pid, alive, err := Holder(filepath.Join(t.TempDir(), "missing.lock"))
	require.NoError(t, err)
	assert.Zero(t, pid)
	assert.False(t, alive)

	pid, alive, err = Holder(writeLock(t, strconv.Itoa(os.Getppid())))
	require.NoError(t, err)
	assert.Equal(t, os.Getppid(), pid)
	assert.True(t, alive)

	_, alive, err = Holder(writeLock(t, "2147483647"))
	require.NoError(t, err)
	assert.False(t, alive)
}

type fakeApp struct {
	startErr error
	started  atomic.Bool
	stopped  atomic.Bool
	done     chan struct{}
	err      error
}

func newFakeApp() *fakeApp { return &fakeApp{done: make(chan struct{})} }

func (a *fakeApp) Start(ctx context.Context) error {
	a.started.Store(true)
	return a.startErr
}

func (a *fakeApp) Stop(ctx context.Context) error {
	a.stopped.Store(true)
	return nil
}

func (a *fakeApp) Done() <-chan struct{} { return a.done }
func (a *fakeApp) Err() error            { return a.err }
func (a *fakeApp) Logger() logx.Logger   { return logx.Nop() }
func (a *fakeApp) Status() string        { return "fake" }

func (a *fakeApp) build() (App, error) { return a, nil }

func TestRunStopsAppAndReleasesLockOnCancel(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	path := filepath.Join(t.TempDir(), "daemon.lock")
	app := newFakeApp()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- Run(ctx, Options{LockFile: path, ShutdownTimeout: time.Second}, app.build) }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return app.started.Load() && err == nil
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.True(t, app.stopped.Load())
	_, err := os.Stat(path)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestRunReturnsFatalAppError(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	app := newFakeApp()
	app.err = errors.New("boom")
	close(app.done)

	err := Run(context.Background(), Options{LockFile: filepath.Join(t.TempDir(), "daemon.lock")}, app.build)
	require.EqualError(t, err, "boom")
	assert.True(t, app.stopped.Load())
}

func TestRunRefusesWhenLocked(t *testing.T) {
	path := writeLock(t, strconv.Itoa(os.Getppid()))
	built := false

	err := Run(context.Background(), Options{LockFile: path}, func() (App, error) {
		built = true
		return newFakeApp(), nil
	})
	require.ErrorIs(t, err, task.ErrLockConflict)
	assert.False(t, built, "app must not be built without the lock")
}

func TestRunBuildsAppUnderLockAndReleasesOnBuildError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.lock")
	boom := errors.New("open history: boom")

	err := Run(context.Background(), Options{LockFile: path}, func() (App, error) {
		pid, err := ReadLockPID(path)
		require.NoError(t, err)
		assert.Equal(t, os.Getpid(), pid)
		return nil, boom
	})
	require.ErrorIs(t, err, boom)
	_, err = os.Stat(path)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
