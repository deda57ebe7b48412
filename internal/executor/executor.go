// Package executor runs one task end to end: query, export, mail, then one
// write-back of the run statistics to the task store.
package executor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"reportd/internal/eventbus"
	"reportd/internal/report"
	"reportd/internal/storage"
	"reportd/internal/task"
	"reportd/internal/taskstore"
	"reportd/internal/trigger"
	logx "reportd/pkg/logx"
)

// Run sources, recorded in history and run events.
const (
	SourceSchedule = "schedule"
	SourceManual   = "manual"
)

type Config struct {
	// OutputDir holds generated files when a task has no explicit path.
	OutputDir string
	// Location is the initial default zone for cron fields. nil means
	// local. SetLocation replaces it on config reload.
	Location *time.Location
}

// Result of one execution. Success=false with a nil Err means the query
// returned no rows.
type Result struct {
	Success bool
	Rows    int
	Files   []string
	Err     error
	NextRun *time.Time
}

type Service struct {
	cfg     Config
	store   *taskstore.Store
	runner  report.Runner
	history storage.Store
	bus     eventbus.Bus
	log     logx.Logger
	now     func() time.Time
	loc     atomic.Pointer[time.Location]
}

// New wires an executor. history and bus may be nil.
func New(cfg Config, store *taskstore.Store, runner report.Runner, history storage.Store, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		cfg:     cfg,
		store:   store,
		runner:  runner,
		history: history,
		bus:     bus,
		log:     log.With(logx.String("comp", "executor")),
		now:     time.Now,
	}
	s.SetLocation(cfg.Location)
	return s
}

// SetLocation changes the default zone used when computing next_run after
// a run. It must track the scheduler's zone.
func (s *Service) SetLocation(loc *time.Location) {
	if loc == nil {
		loc = time.Local
	}
	s.loc.Store(loc)
}

// Execute is Run for a scheduled firing.
func (s *Service) Execute(ctx context.Context, t task.Task) Result {
	return s.Run(ctx, t, SourceSchedule)
}

// Run executes t once. It never retries; whatever happens, the store gets
// exactly one RecordRun for the task.
func (s *Service) Run(ctx context.Context, t task.Task, source string) Result {
	started := s.now()
	log := s.log.With(logx.String("task_id", t.ID), logx.String("name", t.Name), logx.String("source", source))
	eventbus.Emit(s.bus, eventbus.TypeRunStarted, eventbus.RunStarted{TaskID: t.ID, TaskName: t.Name, Trigger: source})
	log.Info("run started")

	res := s.run(ctx, t)
	finished := s.now()

	res.NextRun = s.nextRun(t, started, finished, log)
	rec := taskstore.RunRecord{LastRun: &started, NextRun: res.NextRun}
	if res.Err != nil {
		rec.Err = res.Err.Error()
	}
	if err := s.store.RecordRun(t.ID, rec); err != nil {
		if errors.Is(err, task.ErrNotFound) {
			log.Warn("task removed during run; statistics not recorded")
		} else {
			log.Error("record run failed", logx.Err(err))
		}
	}

	status := storage.StatusSuccess
	switch {
	case res.Err != nil:
		status = storage.StatusFailed
	case !res.Success:
		status = storage.StatusEmpty
	}
	s.appendHistory(ctx, storage.RunEntry{
		TaskID:     t.ID,
		TaskName:   t.Name,
		Trigger:    source,
		StartedAt:  started,
		FinishedAt: finished,
		Status:     status,
		Rows:       res.Rows,
		Files:      res.Files,
		Error:      rec.Err,
	}, log)

	took := finished.Sub(started)
	eventbus.Emit(s.bus, eventbus.TypeRunFinished, eventbus.RunFinished{
		TaskID:   t.ID,
		TaskName: t.Name,
		Trigger:  source,
		Success:  res.Success,
		Rows:     res.Rows,
		Files:    res.Files,
		Err:      rec.Err,
		Took:     took,
		NextRun:  res.NextRun,
	})

	fields := []logx.Field{logx.String("status", status), logx.Int("rows", res.Rows), logx.Duration("took", took)}
	if res.NextRun != nil {
		fields = append(fields, logx.Time("next_run", *res.NextRun))
	}
	switch status {
	case storage.StatusFailed:
		log.Error("run failed", append(fields, logx.Err(res.Err))...)
	case storage.StatusEmpty:
		log.Warn("run finished: query returned no rows", fields...)
	default:
		log.Info("run finished", append(fields, logx.Int("files", len(res.Files)))...)
	}
	return res
}

func (s *Service) run(ctx context.Context, t task.Task) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{Err: fmt.Errorf("task %s: %w: panic: %v", t.ID, task.ErrExecution, r)}
		}
	}()

	if err := t.Validate(); err != nil {
		return Result{Err: fmt.Errorf("task %s: %w: %w", t.ID, task.ErrExecution, err)}
	}
	if s.runner == nil {
		return Result{Err: fmt.Errorf("task %s: %w: no report runner", t.ID, task.ErrExecution)}
	}

	exp := report.ExportOptions{
		Excel:     t.ExportExcel,
		PDF:       t.ExportPDF,
		ExcelPath: s.outputPath(t.ExcelPath, t.ID, "xlsx"),
		PDFPath:   s.outputPath(t.PDFPath, t.ID, "pdf"),
	}
	em := report.EmailOptions{
		Send:    t.EmailEnabled(),
		To:      t.EmailRecipients,
		CC:      t.EmailCCRecipients,
		Subject: t.Subject(),
	}
	out, err := s.runner.ExecuteAndExport(ctx, report.Target{Type: t.DatabaseType, URL: t.DatabaseURL}, t.Query, exp, em)
	if err != nil {
		return Result{Rows: out.Rows, Files: out.Files, Err: fmt.Errorf("task %s: %w: %w", t.ID, task.ErrExecution, err)}
	}
	if out.Rows == 0 {
		return Result{}
	}
	return Result{Success: true, Rows: out.Rows, Files: out.Files}
}

// outputPath returns p, or report_<id>.<ext> under the output dir.
func (s *Service) outputPath(p, id, ext string) string {
	if strings.TrimSpace(p) != "" {
		return p
	}
	return filepath.Join(s.cfg.OutputDir, fmt.Sprintf("report_%s.%s", id, ext))
}

// nextRun is recomputed after every run, failed or not, so a failing task
// keeps advancing through its schedule.
func (s *Service) nextRun(t task.Task, lastRun, now time.Time, log logx.Logger) *time.Time {
	tr, err := trigger.ForTask(t, s.loc.Load())
	if err != nil {
		log.Warn("next run not computed", logx.Err(err))
		return nil
	}
	next, ok := tr.NextRun(&lastRun, now)
	if !ok {
		return nil
	}
	return &next
}

func (s *Service) appendHistory(ctx context.Context, e storage.RunEntry, log logx.Logger) {
	if s.history == nil {
		return
	}
	// The run context may already be done (timeout); history should still land.
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.history.AppendRun(hctx, e); err != nil {
		log.Warn("history append failed", logx.Err(err))
	}
}
