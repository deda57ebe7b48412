package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": JSON Lines file
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Run statuses.
const (
	StatusSuccess = "success"
	StatusEmpty   = "empty"
	StatusFailed  = "failed"
)

// RunEntry records one task execution.
// Keep it compact and schema-stable.
type RunEntry struct {
	TaskID     string    `json:"task_id"`
	TaskName   string    `json:"task_name"`
	Trigger    string    `json:"trigger"` // "schedule" or "manual"
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Status     string    `json:"status"`
	Rows       int       `json:"rows"`
	Files      []string  `json:"files,omitempty"`
	Error      string    `json:"error,omitempty"`
}

func (e RunEntry) Took() time.Duration { return e.FinishedAt.Sub(e.StartedAt) }
