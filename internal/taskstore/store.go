package taskstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"reportd/internal/filewatch"
	"reportd/internal/task"
	logx "reportd/pkg/logx"
)

const DefaultPath = "scheduled_tasks.json"

// RunRecord is the outcome of one execution as written back to a task.
type RunRecord struct {
	LastRun *time.Time
	NextRun *time.Time
	Err     string
}

type Store struct {
	path string
	log  logx.Logger

	mu sync.Mutex
	// corrupt is set when the last load failed to decode; the bad file is
	// moved aside before the next write.
	corrupt bool
	now     func() time.Time
}

// Open returns a store backed by path, creating an empty file if needed.
func Open(path string, log logx.Logger) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = DefaultPath
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Store{
		path: path,
		log:  log.With(logx.String("comp", "taskstore")),
		now:  time.Now,
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("taskstore: create dir: %w", err)
		}
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := writeAtomic(path, []byte("[]\n")); err != nil {
			return nil, fmt.Errorf("taskstore: init %s: %w", path, err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("taskstore: stat %s: %w", path, err)
	}
	return s, nil
}

func (s *Store) Path() string { return s.path }

// Add stores t and returns its id. An empty id gets a fresh UUID. The
// schedule config is stored normalized; see task.ScheduleConfig.Normalize.
func (s *Store) Add(t task.Task) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc, err := t.ScheduleConfig.Normalize()
	if err != nil {
		return "", err
	}
	tasks, err := s.loadLocked()
	if err != nil {
		return "", err
	}
	t = t.Clone()
	t.ScheduleConfig = sc
	if strings.TrimSpace(t.ID) == "" {
		t.ID = uuid.NewString()
	}
	for _, existing := range tasks {
		if existing.ID == t.ID {
			return "", fmt.Errorf("%w: %s", task.ErrDuplicateID, t.ID)
		}
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now().Round(0)
	}
	tasks = append(tasks, t)
	if err := s.saveLocked(tasks); err != nil {
		return "", err
	}
	return t.ID, nil
}

// Get returns a copy of the task. A missing id is ok=false, not an error.
func (s *Store) Get(id string) (task.Task, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks, err := s.loadLocked()
	if err != nil {
		return task.Task{}, false, err
	}
	for _, t := range tasks {
		if t.ID == id {
			return t, true, nil
		}
	}
	return task.Task{}, false, nil
}

func (s *Store) List() ([]task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *Store) ListActive() ([]task.Task, error) {
	all, err := s.List()
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, t := range all {
		if t.IsActive {
			out = append(out, t)
		}
	}
	return out, nil
}

// Update replaces the stored record with the same id.
func (s *Store) Update(t task.Task) error {
	sc, err := t.ScheduleConfig.Normalize()
	if err != nil {
		return err
	}
	return s.mutate(t.ID, func(cur *task.Task) {
		*cur = t.Clone()
		cur.ScheduleConfig = sc
	})
}

// Delete removes the task and reports whether it existed.
func (s *Store) Delete(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks, err := s.loadLocked()
	if err != nil {
		return false, err
	}
	for i, t := range tasks {
		if t.ID != id {
			continue
		}
		tasks = append(tasks[:i], tasks[i+1:]...)
		if err := s.saveLocked(tasks); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// SetActive flips is_active for id.
func (s *Store) SetActive(id string, active bool) error {
	return s.mutate(id, func(cur *task.Task) {
		cur.IsActive = active
	})
}

// RecordRun writes one execution outcome back to the task.
// run_count grows when LastRun is set; error_count grows when Err is set;
// last_error is cleared by a run without error.
func (s *Store) RecordRun(id string, rec RunRecord) error {
	return s.mutate(id, func(cur *task.Task) {
		if rec.LastRun != nil {
			v := *rec.LastRun
			cur.LastRun = &v
			cur.RunCount++
		}
		if rec.NextRun != nil {
			v := *rec.NextRun
			cur.NextRun = &v
		} else {
			cur.NextRun = nil
		}
		if rec.Err != "" {
			cur.ErrorCount++
			cur.LastError = rec.Err
		} else {
			cur.LastError = ""
		}
	})
}

// SetNextRun updates only next_run, leaving run statistics untouched.
func (s *Store) SetNextRun(id string, next *time.Time) error {
	return s.mutate(id, func(cur *task.Task) {
		if next == nil {
			cur.NextRun = nil
			return
		}
		v := *next
		cur.NextRun = &v
	})
}

func (s *Store) mutate(id string, fn func(*task.Task)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks, err := s.loadLocked()
	if err != nil {
		return err
	}
	for i := range tasks {
		if tasks[i].ID != id {
			continue
		}
		fn(&tasks[i])
		tasks[i].ID = id
		return s.saveLocked(tasks)
	}
	return fmt.Errorf("%w: %s", task.ErrNotFound, id)
}

// Watch calls onChange whenever the backing file changes on disk.
// It blocks until ctx is done.
func (s *Store) Watch(ctx context.Context, onChange func()) error {
	return filewatch.Watch(ctx, s.path, filewatch.Options{Log: s.log}, onChange)
}

func (s *Store) loadLocked() ([]task.Task, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.corrupt = false
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("taskstore: read %s: %w", s.path, err)
	}
	if len(bytes.TrimSpace(b)) == 0 {
		s.corrupt = false
		return nil, nil
	}

	var tasks []task.Task
	if err := json.Unmarshal(b, &tasks); err != nil {
		s.corrupt = true
		s.log.Error("task file unreadable; treating as empty",
			logx.String("path", s.path),
			logx.Err(fmt.Errorf("%w: %s: %v", task.ErrStorageCorruption, s.path, err)),
		)
		return nil, nil
	}
	s.corrupt = false
	return tasks, nil
}

func (s *Store) saveLocked(tasks []task.Task) error {
	if s.corrupt {
		backup := fmt.Sprintf("%s.corrupt-%d", s.path, s.now().Unix())
		if err := os.Rename(s.path, backup); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("taskstore: preserve corrupt file: %w", err)
		}
		s.log.Warn("corrupt task file preserved", logx.String("backup", backup))
		s.corrupt = false
	}
	if tasks == nil {
		tasks = []task.Task{}
	}
	b, err := json.MarshalIndent(tasks, "", "  ")
	if err != nil {
		return fmt.Errorf("taskstore: encode: %w", err)
	}
	b = append(b, '\n')
	if err := writeAtomic(s.path, b); err != nil {
		return fmt.Errorf("taskstore: write %s: %w", s.path, err)
	}
	return nil
}

// writeAtomic writes data to a temp file in the same directory and renames it
// over path.
func writeAtomic(path string, data []byte) error {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
