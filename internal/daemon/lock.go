package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"reportd/internal/task"
	logx "reportd/pkg/logx"
)

// Lock is an acquired lock file. The file holds the owner's pid on a single
// line.
type Lock struct {
	path string
	pid  int
	log  logx.Logger

	once sync.Once
}

// AcquireLock creates the lock file at path. A lock left behind by a process
// that is no longer running (or that cannot be parsed) is reclaimed; a lock
// owned by a live process yields task.ErrLockConflict.
func AcquireLock(path string, log logx.Logger) (*Lock, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("daemon: empty lock file path")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	self := os.Getpid()

	for attempt := 0; attempt < 3; attempt++ {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			_, werr := f.WriteString(strconv.Itoa(self) + "\n")
			cerr := f.Close()
			if werr == nil {
				werr = cerr
			}
			if werr != nil {
				_ = os.Remove(path)
				return nil, fmt.Errorf("write lock %s: %w", path, werr)
			}
			return &Lock{path: path, pid: self, log: log}, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create lock %s: %w", path, err)
		}

		pid, perr := ReadLockPID(path)
		switch {
		case errors.Is(perr, os.ErrNotExist):
			continue
		case perr != nil:
			log.Warn("unreadable lock file; reclaiming", logx.String("path", path), logx.Err(perr))
		case pid != self && processAlive(pid):
			return nil, fmt.Errorf("%w: pid %d owns %s; stop that process first, or delete the file if it is not a reportd daemon",
				task.ErrLockConflict, pid, path)
		default:
			log.Warn("stale lock file; reclaiming", logx.String("path", path), logx.Int("pid", pid))
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("remove stale lock %s: %w", path, err)
		}
	}
	return nil, fmt.Errorf("%w: could not acquire %s", task.ErrLockConflict, path)
}

// ReadLockPID returns the pid recorded in the lock file at path.
func ReadLockPID(path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("lock %s: invalid pid %q", path, strings.TrimSpace(string(b)))
	}
	return pid, nil
}

// Holder reports the pid that owns the lock at path and whether it is alive.
// A missing lock returns pid 0.
func Holder(path string) (pid int, alive bool, err error) {
	pid, err = ReadLockPID(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return pid, processAlive(pid), nil
}

func (l *Lock) Path() string { return l.path }

// Release removes the lock file if it still names this process.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	var err error
	l.once.Do(func() {
		pid, rerr := ReadLockPID(l.path)
		if errors.Is(rerr, os.ErrNotExist) {
			return
		}
		if rerr == nil && pid != l.pid {
			l.log.Warn("lock file taken over by another process; leaving it", logx.String("path", l.path), logx.Int("pid", pid))
			return
		}
		if rmErr := os.Remove(l.path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			err = rmErr
		}
	})
	return err
}
