package task

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type ScheduleType string

const (
	ScheduleCron     ScheduleType = "cron"
	ScheduleInterval ScheduleType = "interval"
	ScheduleOnce     ScheduleType = "once"
)

func (t ScheduleType) Valid() bool {
	switch t {
	case ScheduleCron, ScheduleInterval, ScheduleOnce:
		return true
	default:
		return false
	}
}

// DatabaseType names the SQL engine a task queries.
type DatabaseType string

const (
	DatabasePostgres DatabaseType = "postgresql"
	DatabaseOracle   DatabaseType = "oracle"
	DatabaseSQLite   DatabaseType = "sqlite"
)

const DefaultEmailSubject = "Scheduled Database Report"

// ScheduleConfig carries the trigger parameters for a ScheduleType.
// Stored values are whatever JSON decoding produced (strings, float64, bool);
// Normalize brings a hand-built map into that form.
type ScheduleConfig map[string]any

// Normalize returns a copy with every value replaced by its JSON-decoded
// form, so an int 5 becomes float64 5. Values JSON cannot encode are an
// ErrInvalidTask.
func (c ScheduleConfig) Normalize() (ScheduleConfig, error) {
	if c == nil {
		return nil, nil
	}
	b, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("%w: schedule_config: %v", ErrInvalidTask, err)
	}
	var out ScheduleConfig
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("%w: schedule_config: %v", ErrInvalidTask, err)
	}
	return out, nil
}

// Task is one persisted report job.
type Task struct {
	ID          string `json:"task_id"`
	Name        string `json:"name"`
	Description string `json:"description"`

	DatabaseType DatabaseType `json:"database_type"`
	DatabaseURL  string       `json:"database_url"`
	Query        string       `json:"query"`

	ScheduleType   ScheduleType   `json:"schedule_type"`
	ScheduleConfig ScheduleConfig `json:"schedule_config"`

	EmailRecipients   []string `json:"email_recipients"`
	EmailCCRecipients []string `json:"email_cc_recipients,omitempty"`
	EmailSubject      string   `json:"email_subject"`
	// nil means enabled; older task files do not carry the field.
	SendEmail *bool `json:"send_email,omitempty"`

	ExportExcel bool   `json:"export_excel"`
	ExportPDF   bool   `json:"export_pdf"`
	ExcelPath   string `json:"excel_path,omitempty"`
	PDFPath     string `json:"pdf_path,omitempty"`

	IsActive   bool       `json:"is_active"`
	CreatedAt  time.Time  `json:"created_at"`
	LastRun    *time.Time `json:"last_run"`
	NextRun    *time.Time `json:"next_run"`
	RunCount   int        `json:"run_count"`
	ErrorCount int        `json:"error_count"`
	LastError  string     `json:"last_error,omitempty"`
}

func (t Task) EmailEnabled() bool { return t.SendEmail == nil || *t.SendEmail }

func (t Task) Subject() string {
	if s := strings.TrimSpace(t.EmailSubject); s != "" {
		return s
	}
	return DefaultEmailSubject
}

// Clone returns a copy that shares no slices, maps or pointers with t.
func (t Task) Clone() Task {
	cp := t
	cp.EmailRecipients = append([]string(nil), t.EmailRecipients...)
	cp.EmailCCRecipients = append([]string(nil), t.EmailCCRecipients...)
	if t.ScheduleConfig != nil {
		cp.ScheduleConfig = make(ScheduleConfig, len(t.ScheduleConfig))
		for k, v := range t.ScheduleConfig {
			cp.ScheduleConfig[k] = v
		}
	}
	if t.SendEmail != nil {
		v := *t.SendEmail
		cp.SendEmail = &v
	}
	cp.LastRun = clonePtr(t.LastRun)
	cp.NextRun = clonePtr(t.NextRun)
	return cp
}

func clonePtr(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Validate checks the fields that do not depend on trigger parsing.
func (t Task) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidTask)
	}
	if strings.TrimSpace(t.Query) == "" {
		return fmt.Errorf("%w: query is required (task %s)", ErrInvalidTask, t.ID)
	}
	if !t.ScheduleType.Valid() {
		return fmt.Errorf("%w: unknown schedule_type %q (task %s)", ErrInvalidSchedule, t.ScheduleType, t.ID)
	}
	if t.EmailEnabled() && len(t.EmailRecipients) == 0 {
		return fmt.Errorf("%w: email enabled but no recipients (task %s)", ErrInvalidTask, t.ID)
	}
	return nil
}

func Bool(v bool) *bool { return &v }
