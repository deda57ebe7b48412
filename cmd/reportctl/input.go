package main

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"reportd/internal/report"
	"reportd/internal/task"
	"reportd/internal/trigger"
)

// taskInput holds the add form answers as typed.
type taskInput struct {
	Name        string
	Description string

	DBType string
	DBURL  string
	Query  string

	ScheduleType string
	// cron fields; a blank minute is 0, other blanks mean any
	Minute    string
	Hour      string
	Day       string
	Month     string
	DayOfWeek string
	// interval, e.g. "30m" or "1d12h"
	Every string
	// once, ISO date or natural language ("tomorrow 9am")
	RunAt    string
	Timezone string

	SendEmail  bool
	Recipients string
	CC         string
	Subject    string

	ExportExcel bool
	ExportPDF   bool
	ExcelPath   string
	PDFPath     string
}

// build turns the answers into an active task and checks that its schedule
// parses. loc is the default zone for dates without an offset.
func (in taskInput) build(loc *time.Location, now time.Time) (task.Task, error) {
	dbType, err := report.NormalizeType(in.DBType)
	if err != nil {
		return task.Task{}, err
	}
	url := strings.TrimSpace(in.DBURL)
	if err := report.ValidateURL(dbType, url); err != nil {
		return task.Task{}, err
	}
	kind := task.ScheduleType(strings.ToLower(strings.TrimSpace(in.ScheduleType)))
	sc, err := in.scheduleConfig(kind, loc, now)
	if err != nil {
		return task.Task{}, err
	}

	t := task.Task{
		Name:              strings.TrimSpace(in.Name),
		Description:       strings.TrimSpace(in.Description),
		DatabaseType:      dbType,
		DatabaseURL:       url,
		Query:             strings.TrimSpace(in.Query),
		ScheduleType:      kind,
		ScheduleConfig:    sc,
		EmailRecipients:   splitList(in.Recipients),
		EmailCCRecipients: splitList(in.CC),
		EmailSubject:      strings.TrimSpace(in.Subject),
		SendEmail:         task.Bool(in.SendEmail),
		ExportExcel:       in.ExportExcel,
		ExportPDF:         in.ExportPDF,
		ExcelPath:         strings.TrimSpace(in.ExcelPath),
		PDFPath:           strings.TrimSpace(in.PDFPath),
		IsActive:          true,
	}
	if !t.ExportExcel {
		t.ExcelPath = ""
	}
	if !t.ExportPDF {
		t.PDFPath = ""
	}
	if err := t.Validate(); err != nil {
		return task.Task{}, err
	}
	if _, err := trigger.ParseIn(t.ScheduleType, t.ScheduleConfig, loc, now); err != nil {
		return task.Task{}, err
	}
	return t, nil
}

func (in taskInput) scheduleConfig(kind task.ScheduleType, loc *time.Location, now time.Time) (task.ScheduleConfig, error) {
	sc := task.ScheduleConfig{}
	switch kind {
	case task.ScheduleCron:
		minute := in.Minute
		if strings.TrimSpace(minute) == "" {
			minute = "0"
		}
		for key, v := range map[string]string{
			"minute":      minute,
			"hour":        in.Hour,
			"day":         in.Day,
			"month":       in.Month,
			"day_of_week": in.DayOfWeek,
		} {
			if v = strings.TrimSpace(v); v != "" {
				sc[key] = v
			}
		}
	case task.ScheduleInterval:
		every, err := parseEvery(in.Every)
		if err != nil {
			return nil, err
		}
		sc = every
	case task.ScheduleOnce:
		at, err := parseRunAt(in.RunAt, loc, now)
		if err != nil {
			return nil, err
		}
		sc["run_date"] = at.Format(time.RFC3339)
	default:
		return nil, fmt.Errorf("%w: unknown schedule type %q", task.ErrInvalidSchedule, in.ScheduleType)
	}
	if tz := strings.TrimSpace(in.Timezone); tz != "" && kind != task.ScheduleOnce {
		sc["timezone"] = tz
	}
	return sc, nil
}

var everyRe = regexp.MustCompile(`(\d+)\s*(w|d|h|m|s)`)

var everyUnits = map[string]string{
	"w": "weeks",
	"d": "days",
	"h": "hours",
	"m": "minutes",
	"s": "seconds",
}

// parseEvery reads "1w2d", "90m" or "1h 30m" into interval fields.
func parseEvery(s string) (task.ScheduleConfig, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return nil, fmt.Errorf("%w: interval is required", task.ErrInvalidSchedule)
	}
	matches := everyRe.FindAllStringSubmatchIndex(s, -1)
	sc := task.ScheduleConfig{}
	pos := 0
	for _, m := range matches {
		if strings.TrimSpace(s[pos:m[0]]) != "" {
			break
		}
		n, err := strconv.Atoi(s[m[2]:m[3]])
		if err != nil {
			return nil, fmt.Errorf("%w: interval %q: %v", task.ErrInvalidSchedule, s, err)
		}
		key := everyUnits[s[m[4]:m[5]]]
		if _, dup := sc[key]; dup {
			return nil, fmt.Errorf("%w: interval %q repeats %s", task.ErrInvalidSchedule, s, key)
		}
		sc[key] = float64(n)
		pos = m[1]
	}
	if len(sc) == 0 || strings.TrimSpace(s[pos:]) != "" {
		return nil, fmt.Errorf("%w: cannot read interval %q (use e.g. 30m, 2h, 1d12h, 1w)", task.ErrInvalidSchedule, s)
	}
	return sc, nil
}

var naturalDates = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// parseRunAt accepts an ISO/RFC3339 timestamp or an English phrase such as
// "tomorrow at 9am" or "in 2 hours", resolved against now in loc.
func parseRunAt(s string, loc *time.Location, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: run date is required", task.ErrInvalidSchedule)
	}
	if loc == nil {
		loc = time.Local
	}
	if t, err := trigger.ParseDate(s, loc); err == nil {
		return t, nil
	}
	r, err := naturalDates.Parse(s, now.In(loc))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: run date %q: %v", task.ErrInvalidSchedule, s, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("%w: cannot read run date %q", task.ErrInvalidSchedule, s)
	}
	return r.Time.Truncate(time.Second), nil
}

// splitList splits comma or semicolon separated addresses.
func splitList(s string) []string {
	var out []string
	for _, p := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' }) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func required(name string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return errors.New(name + " is required")
		}
		return nil
	}
}

func validEmails(s string) error {
	for _, a := range splitList(s) {
		if !strings.Contains(a, "@") {
			return fmt.Errorf("%q is not an email address", a)
		}
	}
	return nil
}
