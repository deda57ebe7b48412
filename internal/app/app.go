package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"reportd/internal/config"
	"reportd/internal/eventbus"
	"reportd/internal/notify"
	"reportd/internal/observability/debugsrv"
	"reportd/internal/runtime/supervisor"
	"reportd/internal/task"
	"reportd/internal/task/engine"
	"reportd/internal/task/scheduler"
	logx "reportd/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	base logx.Logger
	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus
	deps *Deps

	engine *engine.Service
	sched  *scheduler.Service
	notif  *notify.Service

	stopOnce  sync.Once
	closeOnce sync.Once
}

// NewApp loads the config and wires every daemon component. Nothing runs
// until Start.
func NewApp(cfgPath string) (*App, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, base := logx.New(LogConfig(cfg))
	log := base.With(logx.String("comp", "app"))

	bus := eventbus.New()

	deps, err := OpenDeps(cfg, log, bus)
	if err != nil {
		logSvc.Close()
		return nil, err
	}

	engCfg, err := mapEngineConfig(cfg)
	if err != nil {
		_ = deps.Close()
		logSvc.Close()
		return nil, err
	}
	engineSvc := engine.New(engCfg, log, bus)

	exec := deps.Executor
	schedSvc := scheduler.New(mapSchedulerConfig(cfg), deps.Store, engineSvc,
		func(ctx context.Context, t task.Task) error { return exec.Execute(ctx, t).Err },
		log, bus)

	senders := []notify.Sender{notify.LogSender{Log: log.With(logx.String("comp", "notify"))}}
	if cfg.Notify.Enabled && cfg.Notify.Telegram.Enabled {
		tg, err := notify.NewTelegram(cfg.Notify.Telegram.Token, cfg.Notify.Telegram.ChatID)
		if err != nil {
			_ = deps.Close()
			logSvc.Close()
			return nil, fmt.Errorf("notify.telegram: %w", err)
		}
		senders = append(senders, tg)
	}
	notifSvc := notify.New(mapNotifyConfig(cfg), log, bus, senders...)

	return &App{
		cfgm:   cfgm,
		base:   base,
		log:    log,
		logs:   logSvc,
		bus:    bus,
		deps:   deps,
		engine: engineSvc,
		sched:  schedSvc,
		notif:  notifSvc,
	}, nil
}

func (a *App) Config() *config.Config { return a.cfgm.Get() }

// Logger returns the configured logger without a component tag.
func (a *App) Logger() logx.Logger { return a.base }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.NewSupervisor(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	cfg := a.cfgm.Get()

	a.engine.Start(a.sup.Context())
	n, err := a.sched.LoadAll(a.sup.Context())
	if err != nil {
		return fmt.Errorf("load tasks from %s: %w", a.deps.Store.Path(), err)
	}
	a.sched.Start(a.sup.Context())
	a.notif.Start(a.sup.Context())

	// Skips and reloads are traced here; the executor logs runs itself.
	events, unsub := a.bus.Subscribe(64, eventbus.TypeRunSkipped, eventbus.TypeJobsReloaded)
	a.sup.Go0("eventbus.trace", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.traceEvent(e)
			}
		}
	})

	if cfg.Store.WatchEnabled() {
		a.sup.Go("taskstore.watch", func(c context.Context) error {
			return a.deps.Store.Watch(c, func() {
				if _, err := a.sched.Reload(c); err != nil {
					a.log.Warn("task store reload failed; keeping current jobs", logx.Err(err))
				}
			})
		})
	}

	if cfg.Debug.Enabled {
		srv := debugsrv.New(debugsrv.Config{Addr: cfg.Debug.Addr, Token: cfg.Debug.Token},
			a.log.With(logx.String("comp", "debug")), func() any { return a.snapshot() })
		a.sup.GoRestart("debug.http", srv.Serve, supervisor.WithRestartBackoff(500*time.Millisecond, 10*time.Second))
	}

	a.startConfigReload()

	a.logSummary(n)
	a.log.Info("app started")
	return nil
}

func (a *App) traceEvent(e eventbus.Event) {
	switch d := e.Data.(type) {
	case eventbus.RunSkipped:
		a.log.Debug("run skipped", logx.String("task_id", d.TaskID), logx.String("reason", d.Reason))
	case eventbus.JobsReloaded:
		a.log.Debug("jobs reloaded",
			logx.Int("added", d.Added), logx.Int("updated", d.Updated), logx.Int("removed", d.Removed),
			logx.Uint64("events_dropped", a.bus.Dropped()))
	default:
		a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
	}
}

// startConfigReload applies hot config changes. Logging and the scheduler
// timezone apply live; everything else needs a restart.
func (a *App) startConfigReload() {
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						break drain
					}
				}

				sections, attrs := config.SummarizeConfigChange(lastApplied, newCfg)
				lastApplied = newCfg
				if len(sections) == 0 {
					a.log.Info("config reloaded (no changes)")
					continue
				}

				a.logs.Apply(LogConfig(newCfg))
				a.sched.Apply(mapSchedulerConfig(newCfg))
				a.deps.Executor.SetLocation(a.sched.Location())

				var restart []string
				for _, s := range sections {
					switch s {
					case "logging", "scheduler":
					default:
						restart = append(restart, s)
					}
				}
				if len(restart) > 0 {
					a.log.Warn("config sections changed; restart required for changes to take effect",
						logx.String("sections", strings.Join(restart, ",")))
				}
				fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
				a.log.Info("config reloaded", fields...)
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})
}

// logSummary prints the loaded jobs with their next run times.
func (a *App) logSummary(loaded int) {
	jobs := a.sched.ListJobs()
	a.log.Info("scheduler daemon ready",
		logx.Int("jobs", len(jobs)),
		logx.Int("loaded", loaded),
		logx.String("store", a.deps.Store.Path()),
		logx.String("tz", a.sched.Location().String()))
	for _, j := range jobs {
		fields := []logx.Field{
			logx.String("task_id", j.ID),
			logx.String("name", j.Name),
			logx.String("type", string(j.Kind)),
		}
		if !j.Next.IsZero() {
			fields = append(fields, logx.Time("next_run", j.Next))
		}
		a.log.Info("scheduled", fields...)
	}
}

// Status is a one-line summary for the service manager.
func (a *App) Status() string {
	jobs := a.sched.ListJobs()
	if len(jobs) == 0 {
		return "no active tasks"
	}
	first := jobs[0]
	if first.Next.IsZero() {
		return fmt.Sprintf("%d tasks scheduled", len(jobs))
	}
	return fmt.Sprintf("%d tasks scheduled; next %q at %s", len(jobs), first.Name, first.Next.Format(time.RFC3339))
}

type jobStatus struct {
	ID      string     `json:"id"`
	Name    string     `json:"name"`
	Type    string     `json:"type"`
	Spec    string     `json:"spec,omitempty"`
	Next    *time.Time `json:"next_run,omitempty"`
	Prev    *time.Time `json:"prev_run,omitempty"`
	Running bool       `json:"running"`
}

type statusView struct {
	Status        string      `json:"status"`
	Store         string      `json:"store"`
	EventsDropped uint64      `json:"events_dropped"`
	Jobs          []jobStatus `json:"jobs"`
}

// snapshot backs the debug /status endpoint.
func (a *App) snapshot() statusView {
	jobs := a.sched.ListJobs()
	v := statusView{
		Status:        a.Status(),
		Store:         a.deps.Store.Path(),
		EventsDropped: a.bus.Dropped(),
		Jobs:          make([]jobStatus, 0, len(jobs)),
	}
	for _, j := range jobs {
		js := jobStatus{ID: j.ID, Name: j.Name, Type: string(j.Kind), Spec: j.Spec, Running: j.Running}
		if !j.Next.IsZero() {
			next := j.Next
			js.Next = &next
		}
		if !j.Prev.IsZero() {
			prev := j.Prev
			js.Prev = &prev
		}
		v.Jobs = append(v.Jobs, js)
	}
	return v
}

// Stop shuts components down in dependency order: timers and in-flight runs
// first, then notifications, then the history store. Later calls are no-ops.
func (a *App) Stop(ctx context.Context) error {
	a.stopOnce.Do(func() { a.stop(ctx) })
	return nil
}

func (a *App) stop(ctx context.Context) {
	if a.sup == nil {
		a.closeResources()
		return
	}
	a.log.Info("stopping")

	// Helper: run a shutdown step with an upper bound so one component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

		stepCtx := ctx
		if max > 0 {
			// respect the caller's deadline; never extend it
			var cancel context.CancelFunc
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			took := time.Since(start)
			if took >= 500*time.Millisecond {
				a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
			} else {
				a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
			}
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", time.Since(start)))
		}
	}

	// The scheduler drains in-flight runs within the caller's deadline.
	step("scheduler", 0, func(c context.Context) error { a.sched.Shutdown(c); return nil })

	// Cancel background loops (watchers, config reload) once no run can fire.
	a.sup.Cancel()

	step("notify", 3*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	a.closeResources()
}

func (a *App) closeResources() {
	a.closeOnce.Do(a.close)
}

func (a *App) close() {
	if err := a.deps.Close(); err != nil {
		a.log.Warn("close run history failed", logx.Err(err))
	}
	if a.logs != nil {
		_ = a.logs.Close()
	}
}
