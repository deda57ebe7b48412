package eventbus

import "time"

// Event types published by the scheduler and executor.
const (
	TypeRunStarted   = "run.started"
	TypeRunFinished  = "run.finished"
	TypeRunSkipped   = "run.skipped"
	TypeJobsReloaded = "scheduler.reloaded"
)

// RunStarted is the Data of a TypeRunStarted event.
type RunStarted struct {
	TaskID   string
	TaskName string
	Trigger  string
}

// RunFinished is the Data of a TypeRunFinished event.
type RunFinished struct {
	TaskID   string
	TaskName string
	Trigger  string
	Success  bool
	Rows     int
	Files    []string
	Err      string
	Took     time.Duration
	NextRun  *time.Time
}

// RunSkipped is the Data of a TypeRunSkipped event.
type RunSkipped struct {
	TaskID string
	Reason string
}

// JobsReloaded is the Data of a TypeJobsReloaded event.
type JobsReloaded struct {
	Added   int
	Updated int
	Removed int
}
