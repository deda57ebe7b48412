package trigger

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"reportd/internal/task"
)

// lookAhead bounds the search for the next matching instant.
const lookAhead = 5 // years

var cronKeys = []string{"year", "month", "day", "week", "day_of_week", "hour", "minute", "second"}

var monthNames = map[string]int{
	"jan": 1, "feb": 2, "mar": 3, "apr": 4, "may": 5, "jun": 6,
	"jul": 7, "aug": 8, "sep": 9, "oct": 10, "nov": 11, "dec": 12,
}

var weekdayNames = map[string]int{
	"mon": 0, "tue": 1, "wed": 2, "thu": 3, "fri": 4, "sat": 5, "sun": 6,
}

type fieldSpec struct {
	name     string
	min, max int
	names    map[string]int
	// floor is used when the field is unset but a more significant one is
	// set, so {"hour": 9} means 09:00:00 and not every minute of 09h.
	floor string
}

var fieldSpecs = map[string]fieldSpec{
	"year":        {name: "year", min: 1970, max: 9999, floor: "*"},
	"month":       {name: "month", min: 1, max: 12, names: monthNames, floor: "1"},
	"day":         {name: "day", min: 1, max: 31, floor: "1"},
	"week":        {name: "week", min: 1, max: 53, floor: "*"},
	"day_of_week": {name: "day_of_week", min: 0, max: 6, names: weekdayNames, floor: "*"},
	"hour":        {name: "hour", min: 0, max: 23, floor: "0"},
	"minute":      {name: "minute", min: 0, max: 59, floor: "0"},
	"second":      {name: "second", min: 0, max: 59, floor: "0"},
}

// field is a parsed cron field: a set of allowed values.
type field struct {
	spec fieldSpec
	expr string
	all  bool
	set  []bool // index = value - spec.min
	last bool   // day only: last day of the month
}

func (f *field) match(v int) bool {
	if f.all {
		return true
	}
	i := v - f.spec.min
	return i >= 0 && i < len(f.set) && f.set[i]
}

func parseField(spec fieldSpec, expr string) (*field, error) {
	expr = strings.ToLower(strings.TrimSpace(expr))
	if expr == "" {
		expr = "*"
	}
	f := &field{spec: spec, expr: expr}
	if expr == "*" {
		f.all = true
		return f, nil
	}
	f.set = make([]bool, spec.max-spec.min+1)
	for _, part := range strings.Split(expr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, fmt.Errorf("%w: %s: empty list item in %q", task.ErrInvalidSchedule, spec.name, expr)
		}
		if part == "last" {
			if spec.name != "day" {
				return nil, fmt.Errorf("%w: %s: \"last\" is only valid for day", task.ErrInvalidSchedule, spec.name)
			}
			f.last = true
			continue
		}
		if err := f.addPart(part); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func (f *field) addPart(part string) error {
	spec := f.spec
	base, step := part, 1
	if i := strings.IndexByte(part, '/'); i >= 0 {
		base = part[:i]
		s, err := strconv.Atoi(strings.TrimSpace(part[i+1:]))
		if err != nil || s <= 0 {
			return fmt.Errorf("%w: %s: invalid step in %q", task.ErrInvalidSchedule, spec.name, part)
		}
		step = s
	}

	lo, hi := spec.min, spec.max
	switch {
	case base == "*":
	case strings.Contains(base, "-"):
		a, b, _ := strings.Cut(base, "-")
		var err error
		if lo, err = f.value(a); err != nil {
			return err
		}
		if hi, err = f.value(b); err != nil {
			return err
		}
		if lo > hi {
			return fmt.Errorf("%w: %s: range %q is reversed", task.ErrInvalidSchedule, spec.name, base)
		}
	default:
		v, err := f.value(base)
		if err != nil {
			return err
		}
		lo = v
		if step == 1 {
			hi = v
		}
	}

	for v := lo; v <= hi; v += step {
		f.set[v-spec.min] = true
	}
	return nil
}

func (f *field) value(s string) (int, error) {
	s = strings.TrimSpace(s)
	if n, ok := f.spec.names[s]; ok {
		return n, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: invalid value %q", task.ErrInvalidSchedule, f.spec.name, s)
	}
	if v < f.spec.min || v > f.spec.max {
		return 0, fmt.Errorf("%w: %s: %d out of range %d-%d", task.ErrInvalidSchedule, f.spec.name, v, f.spec.min, f.spec.max)
	}
	return v, nil
}

// Cron fires at instants matching every calendar field.
type Cron struct {
	year, month, day, week, dow, hour, minute, second *field

	loc   *time.Location
	start time.Time
	end   time.Time
}

func parseCron(cfg task.ScheduleConfig, loc *time.Location, now time.Time) (*Cron, error) {
	allowed := append(append([]string(nil), cronKeys...), "timezone", "start_date", "end_date")
	if err := checkKeys(cfg, allowed...); err != nil {
		return nil, err
	}

	exprs := make([]string, len(cronKeys))
	lastSet := -1
	for i, key := range cronKeys {
		raw, ok := cfg[key]
		if !ok || raw == nil {
			continue
		}
		s, err := exprString(key, raw)
		if err != nil {
			return nil, err
		}
		if exprs[i] = strings.TrimSpace(s); exprs[i] != "" {
			lastSet = i
		}
	}

	// Unset fields above the least significant set field match anything;
	// those below it take their floor. second is 0 unless given.
	fields := make(map[string]*field, len(cronKeys))
	for i, key := range cronKeys {
		spec := fieldSpecs[key]
		expr := exprs[i]
		if expr == "" && (key == "second" || (lastSet >= 0 && i > lastSet)) {
			expr = spec.floor
		}
		f, err := parseField(spec, expr)
		if err != nil {
			return nil, err
		}
		fields[key] = f
	}

	c := &Cron{
		year:   fields["year"],
		month:  fields["month"],
		day:    fields["day"],
		week:   fields["week"],
		dow:    fields["day_of_week"],
		hour:   fields["hour"],
		minute: fields["minute"],
		second: fields["second"],
		loc:    loc,
	}
	var err error
	if c.start, err = optionalDate(cfg, "start_date", loc); err != nil {
		return nil, err
	}
	if c.end, err = optionalDate(cfg, "end_date", loc); err != nil {
		return nil, err
	}

	from := now
	if c.start.After(from) {
		from = c.start
	}
	if c.search(from).IsZero() {
		return nil, fmt.Errorf("%w: cron %s never fires within %d years", task.ErrInvalidSchedule, c, lookAhead)
	}
	return c, nil
}

func (c *Cron) Kind() task.ScheduleType { return task.ScheduleCron }

func (c *Cron) String() string {
	var parts []string
	for _, f := range []*field{c.year, c.month, c.day, c.week, c.dow, c.hour, c.minute, c.second} {
		if f.all {
			continue
		}
		parts = append(parts, f.spec.name+"="+f.expr)
	}
	if len(parts) == 0 {
		return "cron(every minute)"
	}
	return "cron(" + strings.Join(parts, " ") + ")"
}

func (c *Cron) Next(after time.Time) time.Time {
	if !c.start.IsZero() && after.Before(c.start) {
		after = c.start.Add(-time.Nanosecond)
	}
	t := c.search(after)
	if t.IsZero() || (!c.end.IsZero() && t.After(c.end)) {
		return time.Time{}
	}
	return t
}

// NextRun ignores lastRun: a cron schedule is anchored to the calendar.
func (c *Cron) NextRun(_ *time.Time, now time.Time) (time.Time, bool) {
	t := c.Next(now)
	return t, !t.IsZero()
}

// search walks forward from the most significant field, resetting the less
// significant ones whenever a field does not match.
func (c *Cron) search(after time.Time) time.Time {
	t := after.In(c.loc)
	t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, c.loc).Add(time.Second)
	limit := t.Year() + lookAhead

	for t.Year() <= limit {
		y, mo, d := t.Date()
		h, mi, s := t.Clock()

		var next time.Time
		switch {
		case !c.year.match(y):
			next = time.Date(y+1, 1, 1, 0, 0, 0, 0, c.loc)
		case !c.month.match(int(mo)):
			next = time.Date(y, mo+1, 1, 0, 0, 0, 0, c.loc)
		case !c.dayMatches(t):
			next = time.Date(y, mo, d+1, 0, 0, 0, 0, c.loc)
		case !c.hour.match(h):
			next = time.Date(y, mo, d, h+1, 0, 0, 0, c.loc)
		case !c.minute.match(mi):
			next = time.Date(y, mo, d, h, mi+1, 0, 0, c.loc)
		case !c.second.match(s):
			next = time.Date(y, mo, d, h, mi, s+1, 0, c.loc)
		default:
			return t
		}
		// DST transitions can normalize a wall clock backwards.
		if !next.After(t) {
			next = t.Add(time.Hour)
		}
		t = next
	}
	return time.Time{}
}

func (c *Cron) dayMatches(t time.Time) bool {
	d := t.Day()
	dayOK := c.day.match(d)
	if !dayOK && c.day.last {
		dayOK = d == daysIn(t.Month(), t.Year())
	}
	if !dayOK {
		return false
	}
	if _, w := t.ISOWeek(); !c.week.match(w) {
		return false
	}
	// Monday is 0.
	return c.dow.match((int(t.Weekday()) + 6) % 7)
}

func daysIn(m time.Month, year int) int {
	return time.Date(year, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
