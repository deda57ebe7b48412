package trigger

import (
	"fmt"
	"time"

	"reportd/internal/task"
)

// Once fires a single time at At.
type Once struct {
	At time.Time
}

func parseOnce(cfg task.ScheduleConfig, loc *time.Location) (*Once, error) {
	if err := checkKeys(cfg, "run_date", "timezone"); err != nil {
		return nil, err
	}
	raw, ok := cfg["run_date"]
	if !ok || raw == nil {
		return nil, fmt.Errorf("%w: run_date is required", task.ErrInvalidSchedule)
	}
	s, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("%w: run_date must be a string", task.ErrInvalidSchedule)
	}
	at, err := ParseDate(s, loc)
	if err != nil {
		return nil, err
	}
	return &Once{At: at}, nil
}

func (o *Once) Kind() task.ScheduleType { return task.ScheduleOnce }

func (o *Once) String() string { return "once at " + o.At.Format(time.RFC3339) }

func (o *Once) Next(after time.Time) time.Time {
	if o.At.After(after) {
		return o.At
	}
	return time.Time{}
}

// NextRun reports a past run date as due now until the task has run once.
func (o *Once) NextRun(lastRun *time.Time, now time.Time) (time.Time, bool) {
	if lastRun != nil {
		return time.Time{}, false
	}
	if o.At.After(now) {
		return o.At, true
	}
	return now, true
}
