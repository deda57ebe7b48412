package trigger

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"reportd/internal/task"
)

// Trigger produces fire times for one schedule definition.
type Trigger interface {
	// Next returns the first fire time strictly after the given instant,
	// or the zero time when the trigger will never fire again.
	Next(after time.Time) time.Time
	// NextRun returns the upcoming run for a task that last ran at lastRun
	// (nil = never). ok=false means the task will not run again.
	NextRun(lastRun *time.Time, now time.Time) (next time.Time, ok bool)
	Kind() task.ScheduleType
	String() string
}

// Parse builds a Trigger from a task's schedule type and config.
// Cron fields are evaluated in the config's "timezone" or the local zone.
func Parse(kind task.ScheduleType, cfg task.ScheduleConfig) (Trigger, error) {
	return ParseAt(kind, cfg, time.Now())
}

// ParseAt is Parse with an explicit reference time for validation.
func ParseAt(kind task.ScheduleType, cfg task.ScheduleConfig, now time.Time) (Trigger, error) {
	return ParseIn(kind, cfg, time.Local, now)
}

// ParseIn is ParseAt with def used when the config carries no timezone.
func ParseIn(kind task.ScheduleType, cfg task.ScheduleConfig, def *time.Location, now time.Time) (Trigger, error) {
	loc, err := location(cfg, def)
	if err != nil {
		return nil, err
	}
	switch kind {
	case task.ScheduleCron:
		return parseCron(cfg, loc, now)
	case task.ScheduleInterval:
		return parseInterval(cfg, loc)
	case task.ScheduleOnce:
		return parseOnce(cfg, loc)
	default:
		return nil, fmt.Errorf("%w: unknown schedule type %q", task.ErrInvalidSchedule, kind)
	}
}

// ForTask parses the trigger of t and annotates errors with the task id.
// A nil loc means the local zone.
func ForTask(t task.Task, loc *time.Location) (Trigger, error) {
	if loc == nil {
		loc = time.Local
	}
	tr, err := ParseIn(t.ScheduleType, t.ScheduleConfig, loc, time.Now())
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", t.ID, err)
	}
	return tr, nil
}

// NextRun computes the next run for a schedule. A nil result means the
// schedule is exhausted.
func NextRun(kind task.ScheduleType, cfg task.ScheduleConfig, lastRun *time.Time, now time.Time) (*time.Time, error) {
	tr, err := ParseAt(kind, cfg, now)
	if err != nil {
		return nil, err
	}
	next, ok := tr.NextRun(lastRun, now)
	if !ok {
		return nil, nil
	}
	return &next, nil
}

func location(cfg task.ScheduleConfig, def *time.Location) (*time.Location, error) {
	if def == nil {
		def = time.Local
	}
	raw, ok := cfg["timezone"]
	if !ok || raw == nil {
		return def, nil
	}
	name, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("%w: timezone must be a string", task.ErrInvalidSchedule)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return def, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %v", task.ErrInvalidSchedule, name, err)
	}
	return loc, nil
}

func checkKeys(cfg task.ScheduleConfig, allowed ...string) error {
	var unknown []string
	for k := range cfg {
		found := false
		for _, a := range allowed {
			if k == a {
				found = true
				break
			}
		}
		if !found {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return fmt.Errorf("%w: unknown keys %s", task.ErrInvalidSchedule, strings.Join(unknown, ", "))
}

// exprString renders a schedule value as a field expression.
// JSON numbers arrive as float64 and must be integral.
func exprString(key string, v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case int:
		return strconv.Itoa(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case float64:
		if x != math.Trunc(x) {
			return "", fmt.Errorf("%w: %s must be a whole number, got %v", task.ErrInvalidSchedule, key, x)
		}
		return strconv.FormatInt(int64(x), 10), nil
	case json.Number:
		return x.String(), nil
	default:
		return "", fmt.Errorf("%w: %s has unsupported type %T", task.ErrInvalidSchedule, key, v)
	}
}

func numberValue(key string, v any) (float64, error) {
	switch x := v.(type) {
	case nil:
		return 0, nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case float64:
		return x, nil
	case json.Number:
		return x.Float64()
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %q is not a number", task.ErrInvalidSchedule, key, x)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%w: %s has unsupported type %T", task.ErrInvalidSchedule, key, v)
	}
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseDate accepts RFC3339 or a zone-less ISO timestamp interpreted in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty date", task.ErrInvalidSchedule)
	}
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range dateLayouts {
		if layout == time.RFC3339Nano {
			if t, err := time.Parse(layout, s); err == nil {
				return t, nil
			}
			continue
		}
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: invalid date %q (use 2006-01-02T15:04:05 or RFC3339)", task.ErrInvalidSchedule, s)
}

func optionalDate(cfg task.ScheduleConfig, key string, loc *time.Location) (time.Time, error) {
	raw, ok := cfg[key]
	if !ok || raw == nil {
		return time.Time{}, nil
	}
	s, ok := raw.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %s must be a string", task.ErrInvalidSchedule, key)
	}
	if strings.TrimSpace(s) == "" {
		return time.Time{}, nil
	}
	t, err := ParseDate(s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", key, err)
	}
	return t, nil
}
