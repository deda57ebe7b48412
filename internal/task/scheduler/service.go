package scheduler

import (
	"context"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"reportd/internal/eventbus"
	"reportd/internal/task/engine"
	"reportd/internal/taskstore"
	logx "reportd/pkg/logx"
)

func New(cfg Config, store *taskstore.Store, eng *engine.Service, exec ExecFunc, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		cfg:         cfg,
		log:         log.With(logx.String("comp", "scheduler")),
		bus:         bus,
		store:       store,
		engine:      eng,
		exec:        exec,
		jobs:        map[string]*job{},
		now:         time.Now,
		lastEnqWarn: map[string]time.Time{},
	}
	s.loc = s.loadLocation(cfg.Timezone)
	s.c = s.newCron()
	return s
}

func (s *Service) newCron() *cron.Cron {
	cl := cronLogger{log: s.log}
	return cron.New(
		cron.WithLocation(s.loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl)),
	)
}

// Location returns the default zone used for cron fields.
func (s *Service) Location() *time.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loc
}

// Apply updates the runtime config. A timezone change restarts the timer
// loop and re-registers every job from the store.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	oldTZ := strings.TrimSpace(s.cfg.Timezone)
	newTZ := strings.TrimSpace(cfg.Timezone)
	s.cfg = cfg
	if oldTZ == newTZ {
		return
	}
	s.restartLocked()
}

// Start starts the timer loop. Jobs registered before Start fire once it runs.
func (s *Service) Start(ctx context.Context) {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.c.Start()
	s.log.Info("service started", logx.String("tz", s.loc.String()), logx.Int("jobs", len(s.jobs)))
}

// Shutdown stops the timer loop and then the task engine, which lets
// in-flight runs finish until ctx expires. Registered jobs are dropped.
func (s *Service) Shutdown(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	s.log.Info("stop requested")

	s.mu.Lock()
	c := s.c
	wasStarted := s.started
	s.started = false
	s.jobs = map[string]*job{}
	s.c = s.newCron()
	s.mu.Unlock()

	if wasStarted {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
			// best-effort
		}
	}
	if s.engine != nil {
		s.engine.Stop(ctx)
	}

	s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
}

// restartLocked swaps the timer loop for one in the new zone. Call with s.mu held.
func (s *Service) restartLocked() {
	wasStarted := s.started
	if wasStarted {
		// Don't wait for running entries here: they take s.mu.
		s.c.Stop()
	}
	s.loc = s.loadLocation(s.cfg.Timezone)
	s.c = s.newCron()
	s.jobs = map[string]*job{}
	if err := s.loadAllLocked(); err != nil {
		s.log.Error("reload after timezone change failed", logx.Err(err))
	}
	if wasStarted {
		s.c.Start()
	}
	s.log.Info("service restarted", logx.String("tz", s.loc.String()), logx.Int("jobs", len(s.jobs)))
}

func (s *Service) loadLocation(tz string) *time.Location {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

// cronLogger routes robfig/cron's logging into logx. Its info output is
// per-tick chatter, so it goes to debug.
type cronLogger struct {
	log logx.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	if !l.log.Enabled(logx.LevelDebug) {
		return
	}
	l.log.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	fields := append(kvFields(keysAndValues), logx.Err(err))
	l.log.Error("cron: "+msg, fields...)
}

func kvFields(kv []interface{}) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2+1)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			continue
		}
		out = append(out, logx.Any(k, kv[i+1]))
	}
	return out
}
