package trigger

import (
	"fmt"
	"strings"
	"time"

	"reportd/internal/task"
)

var intervalUnits = []struct {
	key  string
	unit time.Duration
}{
	{"weeks", 7 * 24 * time.Hour},
	{"days", 24 * time.Hour},
	{"hours", time.Hour},
	{"minutes", time.Minute},
	{"seconds", time.Second},
}

// Interval fires every Every, optionally anchored at Start.
type Interval struct {
	Every time.Duration
	Start time.Time
	End   time.Time
}

func parseInterval(cfg task.ScheduleConfig, loc *time.Location) (*Interval, error) {
	if err := checkKeys(cfg, "weeks", "days", "hours", "minutes", "seconds", "start_date", "end_date", "timezone"); err != nil {
		return nil, err
	}
	var total time.Duration
	for _, u := range intervalUnits {
		v, err := numberValue(u.key, cfg[u.key])
		if err != nil {
			return nil, err
		}
		if v < 0 {
			return nil, fmt.Errorf("%w: %s must not be negative", task.ErrInvalidSchedule, u.key)
		}
		total += time.Duration(v * float64(u.unit))
	}
	if total <= 0 {
		return nil, fmt.Errorf("%w: interval must be greater than zero", task.ErrInvalidSchedule)
	}

	iv := &Interval{Every: total}
	var err error
	if iv.Start, err = optionalDate(cfg, "start_date", loc); err != nil {
		return nil, err
	}
	if iv.End, err = optionalDate(cfg, "end_date", loc); err != nil {
		return nil, err
	}
	return iv, nil
}

func (iv *Interval) Kind() task.ScheduleType { return task.ScheduleInterval }

func (iv *Interval) String() string {
	var b strings.Builder
	b.WriteString("every ")
	b.WriteString(iv.Every.String())
	if !iv.Start.IsZero() {
		b.WriteString(" from ")
		b.WriteString(iv.Start.Format(time.RFC3339))
	}
	return b.String()
}

func (iv *Interval) Next(after time.Time) time.Time {
	var t time.Time
	if iv.Start.IsZero() {
		t = after.Add(iv.Every)
	} else {
		t = iv.anchored(after)
	}
	return iv.clamp(t)
}

func (iv *Interval) NextRun(lastRun *time.Time, now time.Time) (time.Time, bool) {
	var t time.Time
	switch {
	case lastRun != nil:
		t = lastRun.Add(iv.Every)
	case !iv.Start.IsZero():
		if iv.Start.After(now) {
			t = iv.Start
		} else {
			t = iv.anchored(now)
		}
	default:
		t = now.Add(iv.Every)
	}
	t = iv.clamp(t)
	return t, !t.IsZero()
}

// anchored returns the first Start + k*Every strictly after the given instant.
func (iv *Interval) anchored(after time.Time) time.Time {
	if after.Before(iv.Start) {
		return iv.Start
	}
	k := after.Sub(iv.Start)/iv.Every + 1
	return iv.Start.Add(k * iv.Every)
}

func (iv *Interval) clamp(t time.Time) time.Time {
	if !iv.End.IsZero() && t.After(iv.End) {
		return time.Time{}
	}
	return t
}
