package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/robfig/cron/v3"

	"reportd/internal/eventbus"
	"reportd/internal/task"
	"reportd/internal/task/engine"
	"reportd/internal/trigger"
	logx "reportd/pkg/logx"
)

// LoadAll registers every active task in the store. Tasks whose schedule does
// not parse are logged and skipped. It returns the number of registered jobs.
func (s *Service) LoadAll(ctx context.Context) (int, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadAllLocked(); err != nil {
		return 0, err
	}
	return len(s.jobs), nil
}

func (s *Service) loadAllLocked() error {
	tasks, err := s.store.ListActive()
	if err != nil {
		return err
	}
	for _, t := range tasks {
		if _, err := s.registerLocked(t); err != nil {
			s.log.Warn("task skipped: invalid schedule", logx.String("task_id", t.ID), logx.String("name", t.Name), logx.Err(err))
		}
	}
	s.log.Info("jobs loaded", logx.Int("active", len(tasks)), logx.Int("registered", len(s.jobs)))
	return nil
}

// Add persists an active task and registers its job. The schedule is
// validated before anything is written.
func (s *Service) Add(ctx context.Context, t task.Task) (string, error) {
	_ = ctx
	if !t.IsActive {
		return "", fmt.Errorf("%w: task %q is not active", task.ErrInvalidTask, t.Name)
	}
	if err := t.Validate(); err != nil {
		return "", err
	}
	if _, err := trigger.ForTask(t, s.Location()); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	id, err := s.store.Add(t)
	if err != nil {
		return "", err
	}
	stored, ok, err := s.store.Get(id)
	if err != nil {
		return id, err
	}
	if !ok {
		return id, fmt.Errorf("task %s: %w", id, task.ErrNotFound)
	}
	if _, err := s.registerLocked(stored); err != nil {
		return id, err
	}
	return id, nil
}

// Remove unregisters the job (no-op if absent) and deletes the task from the
// store. A run already in flight finishes normally.
func (s *Service) Remove(ctx context.Context, id string) (bool, error) {
	_ = ctx
	id = strings.TrimSpace(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unregisterLocked(id)
	return s.store.Delete(id)
}

// Update replaces the stored task and re-registers its job when active.
func (s *Service) Update(ctx context.Context, t task.Task) error {
	_ = ctx
	if t.IsActive {
		if err := t.Validate(); err != nil {
			return err
		}
		if _, err := trigger.ForTask(t, s.Location()); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.unregisterLocked(t.ID)
	if err := s.store.Update(t); err != nil {
		return err
	}
	if !t.IsActive {
		return nil
	}
	stored, ok, err := s.store.Get(t.ID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("task %s: %w", t.ID, task.ErrNotFound)
	}
	_, err = s.registerLocked(stored)
	return err
}

// Reload reconciles registered jobs with the store: new active tasks are
// registered, deactivated or deleted ones removed, and tasks whose schedule
// changed re-registered.
func (s *Service) Reload(ctx context.Context) (ReloadResult, error) {
	_ = ctx
	var res ReloadResult

	s.mu.Lock()
	tasks, err := s.store.ListActive()
	if err != nil {
		s.mu.Unlock()
		return res, err
	}

	seen := make(map[string]struct{}, len(tasks))
	for _, t := range tasks {
		seen[t.ID] = struct{}{}
		fp := fingerprint(t)
		cur := s.jobs[t.ID]
		if cur != nil && cur.fingerprint == fp {
			continue
		}
		registered, err := s.registerLocked(t)
		if err != nil {
			s.log.Warn("task skipped: invalid schedule", logx.String("task_id", t.ID), logx.String("name", t.Name), logx.Err(err))
			if cur != nil {
				s.unregisterLocked(t.ID)
				res.Removed++
			}
			continue
		}
		switch {
		case registered && cur != nil:
			res.Updated++
		case registered:
			res.Added++
		case cur != nil:
			res.Removed++
		}
	}
	for id := range s.jobs {
		if _, ok := seen[id]; ok {
			continue
		}
		s.unregisterLocked(id)
		res.Removed++
	}
	s.mu.Unlock()

	if res.Added+res.Updated+res.Removed > 0 {
		s.log.Info("jobs reloaded", logx.Int("added", res.Added), logx.Int("updated", res.Updated), logx.Int("removed", res.Removed))
		eventbus.Emit(s.bus, eventbus.TypeJobsReloaded, res)
	}
	return res, nil
}

// ListJobs returns the registered jobs ordered by next fire time. Next is read
// back from the timer loop.
func (s *Service) ListJobs() []JobInfo {
	s.mu.Lock()
	jobs := make([]job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, *j)
	}
	c := s.c
	s.mu.Unlock()

	out := make([]JobInfo, 0, len(jobs))
	for _, j := range jobs {
		info := JobInfo{ID: j.id, Name: j.name, Kind: j.kind, Spec: j.spec, Running: j.state.Busy()}
		if c != nil && j.entryID != 0 {
			e := c.Entry(j.entryID)
			info.Next = e.Next
			info.Prev = e.Prev
		}
		if info.Next.IsZero() && info.Prev.IsZero() {
			// Timer loop not started yet.
			info.Next = j.first
		}
		out = append(out, info)
	}
	sort.SliceStable(out, func(i, k int) bool {
		a, b := out[i].Next, out[k].Next
		if a.IsZero() != b.IsZero() {
			return !a.IsZero()
		}
		if !a.Equal(b) {
			return a.Before(b)
		}
		return out[i].ID < out[k].ID
	})
	return out
}

// registerLocked (re)places the cron entry for t. It returns false without an
// error when the schedule has no future run. Call with s.mu held.
func (s *Service) registerLocked(t task.Task) (bool, error) {
	tr, err := trigger.ForTask(t, s.loc)
	if err != nil {
		return false, err
	}
	s.unregisterLocked(t.ID)

	now := s.now()
	first, ok := tr.NextRun(t.LastRun, now)
	if !ok {
		s.log.Debug("schedule exhausted", logx.String("task_id", t.ID), logx.String("name", t.Name))
		if t.NextRun != nil {
			if err := s.store.SetNextRun(t.ID, nil); err != nil {
				s.log.Warn("next_run update failed", logx.String("task_id", t.ID), logx.Err(err))
			}
		}
		return false, nil
	}

	id := t.ID
	j := &job{
		id:          id,
		name:        t.Name,
		kind:        t.ScheduleType,
		spec:        tr.String(),
		fingerprint: fingerprint(t),
		first:       first,
		state:       s.engine.StateFor(id),
	}
	j.entryID = s.c.Schedule(trigger.NewSchedule(tr, t.LastRun, now), cron.FuncJob(func() { s.fire(id) }))
	s.jobs[id] = j

	if t.NextRun == nil || !t.NextRun.Equal(first) {
		if err := s.store.SetNextRun(id, &first); err != nil {
			s.log.Warn("next_run update failed", logx.String("task_id", id), logx.Err(err))
		}
	}
	s.log.Debug("job registered",
		logx.String("task_id", id),
		logx.String("name", t.Name),
		logx.String("trigger", j.spec),
		logx.Time("next", first),
	)
	return true, nil
}

// unregisterLocked removes the cron entry for id. Call with s.mu held.
func (s *Service) unregisterLocked(id string) bool {
	j := s.jobs[id]
	if j == nil {
		return false
	}
	if j.entryID != 0 {
		s.c.Remove(j.entryID)
	}
	delete(s.jobs, id)
	s.log.Debug("job removed", logx.String("task_id", id), logx.String("name", j.name))
	return true
}

func (s *Service) fire(id string) {
	s.mu.Lock()
	j := s.jobs[id]
	var name string
	var once bool
	if j != nil {
		name = j.name
		once = j.kind == task.ScheduleOnce
	}
	s.mu.Unlock()
	if j == nil {
		return
	}

	if err := s.enqueue(id, name); err != nil {
		s.reportEnqueueError(id, name, err)
	}
	if once {
		s.mu.Lock()
		if s.jobs[id] == j {
			s.unregisterLocked(id)
		}
		s.mu.Unlock()
	}
}

func (s *Service) enqueue(id, name string) error {
	if s.engine == nil {
		return engine.ErrStopped
	}
	s.mu.Lock()
	timeout := s.cfg.Timeout
	s.mu.Unlock()
	return s.engine.Enqueue(engine.Task{
		ID:      id,
		Name:    name,
		Timeout: timeout,
		State:   s.engine.StateFor(id),
		Run: func(ctx context.Context) error {
			return s.run(ctx, id)
		},
	})
}

// run re-reads the task so edits made since registration are honored.
func (s *Service) run(ctx context.Context, id string) error {
	t, ok, err := s.store.Get(id)
	if err != nil {
		return err
	}
	if !ok {
		s.log.Debug("task removed before run", logx.String("task_id", id))
		return nil
	}
	if !t.IsActive {
		s.log.Debug("task deactivated before run", logx.String("task_id", id))
		return nil
	}
	if s.exec == nil {
		return errors.New("scheduler: no executor")
	}
	return s.exec(ctx, t)
}
