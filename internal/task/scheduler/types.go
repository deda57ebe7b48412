package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"reportd/internal/eventbus"
	"reportd/internal/task"
	"reportd/internal/task/engine"
	"reportd/internal/taskstore"
	logx "reportd/pkg/logx"
)

// Config controls the scheduler (trigger) service.
type Config struct {
	// Timezone is the IANA zone used for cron fields when a task's
	// schedule_config has no "timezone". Empty means the local zone.
	Timezone string

	// Timeout bounds a single run. 0 falls back to the engine default.
	Timeout time.Duration
}

// ExecFunc runs one task end to end. The returned error only marks the run as
// failed in engine counters; outcome bookkeeping belongs to the callee.
type ExecFunc func(ctx context.Context, t task.Task) error

type job struct {
	id          string
	name        string
	kind        task.ScheduleType
	spec        string
	fingerprint uint64
	entryID     cron.EntryID
	first       time.Time
	state       *engine.RunState
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location
	bus eventbus.Bus

	store  *taskstore.Store
	engine *engine.Service
	exec   ExecFunc

	c       *cron.Cron
	started bool
	jobs    map[string]*job

	now func() time.Time

	// Enqueue error throttling: key is task id.
	enqMu       sync.Mutex
	lastEnqWarn map[string]time.Time
}

// JobInfo describes one registered job.
type JobInfo struct {
	ID      string
	Name    string
	Kind    task.ScheduleType
	Spec    string
	Next    time.Time
	Prev    time.Time
	Running bool
}

// Snapshot is a diagnostics view of the scheduler and its engine.
type Snapshot struct {
	Running  bool
	Timezone string
	Jobs     []JobInfo
	Engine   engine.Snapshot
}

// ReloadResult counts what Reload changed.
type ReloadResult = eventbus.JobsReloaded
