package trigger

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// maxCatchUp bounds how many missed fire times Schedule skips in one call.
const maxCatchUp = 10000

// Schedule adapts a Trigger to cron.Schedule.
//
// The first call to Next returns the run computed from the task's last run,
// even when it is already in the past, so overdue tasks fire as soon as the
// timer loop picks them up. Later calls continue from the previous fire time
// and skip any instants that were missed.
type Schedule struct {
	mu      sync.Mutex
	tr      Trigger
	first   time.Time
	pending bool
	last    time.Time
}

var _ cron.Schedule = (*Schedule)(nil)

func NewSchedule(tr Trigger, lastRun *time.Time, now time.Time) *Schedule {
	s := &Schedule{tr: tr}
	if first, ok := tr.NextRun(lastRun, now); ok {
		s.first = first
		s.pending = true
	}
	return s
}

func (s *Schedule) Trigger() Trigger { return s.tr }

func (s *Schedule) Next(after time.Time) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending {
		s.pending = false
		s.last = s.first
		return s.first
	}
	if s.last.IsZero() && s.first.IsZero() {
		// Exhausted before the first call.
		return time.Time{}
	}

	from := after
	if !s.last.IsZero() && s.last.Before(after) {
		from = s.last
	}
	n := s.tr.Next(from)
	for i := 0; !n.IsZero() && !n.After(after) && i < maxCatchUp; i++ {
		n = s.tr.Next(n)
	}
	if !n.IsZero() && !n.After(after) {
		n = s.tr.Next(after)
	}
	s.last = n
	return n
}
