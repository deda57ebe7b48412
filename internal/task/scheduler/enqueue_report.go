package scheduler

import (
	"errors"
	"time"

	"reportd/internal/task/engine"
	logx "reportd/pkg/logx"
)

const enqueueWarnThrottle = 5 * time.Second

func (s *Service) reportEnqueueError(id, name string, err error) {
	if err == nil {
		return
	}
	// Overlap skips happen whenever a run outlasts its interval.
	if errors.Is(err, engine.ErrOverlapSkip) {
		s.log.Info("run skipped: previous run still in flight", logx.String("task_id", id), logx.String("name", name))
		return
	}

	now := time.Now()
	s.enqMu.Lock()
	last := s.lastEnqWarn[id]
	if !last.IsZero() && now.Sub(last) < enqueueWarnThrottle {
		s.enqMu.Unlock()
		return
	}
	s.lastEnqWarn[id] = now
	s.enqMu.Unlock()

	// Queue full / stopping are important but can be bursty.
	s.log.Warn("schedule failed to enqueue task", logx.String("task_id", id), logx.String("name", name), logx.Err(err))
}
