package app

import (
	"reportd/internal/config"
	"reportd/internal/eventbus"
	"reportd/internal/executor"
	"reportd/internal/report"
	"reportd/internal/storage"
	"reportd/internal/taskstore"
	logx "reportd/pkg/logx"
)

// Deps are the components shared by the daemon and reportctl.
type Deps struct {
	Store    *taskstore.Store
	History  storage.Store // nil when history.driver=none
	Runner   report.Runner
	Executor *executor.Service
}

// OpenDeps opens the task store and run history and wires the executor.
// bus may be nil.
func OpenDeps(cfg *config.Config, log logx.Logger, bus eventbus.Bus) (*Deps, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	store, err := taskstore.Open(cfg.Store.Path, log.With(logx.String("comp", "taskstore")))
	if err != nil {
		return nil, err
	}

	var hist storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		hist, err = storage.Open(sc, log)
		if err != nil {
			return nil, err
		}
		log.Debug("run history enabled", logx.String("driver", sc.Driver), logx.String("path", sc.Path))
	}

	runner, err := NewRunner(cfg, log)
	if err != nil {
		if hist != nil {
			_ = hist.Close()
		}
		return nil, err
	}
	exec := executor.New(mapExecutorConfig(cfg), store, runner, hist, log, bus)
	return &Deps{Store: store, History: hist, Runner: runner, Executor: exec}, nil
}

// NewRunner builds the production query/export/mail pipeline.
func NewRunner(cfg *config.Config, log logx.Logger) (*report.Service, error) {
	smtp, err := mapSMTPConfig(cfg)
	if err != nil {
		return nil, err
	}
	d, err := cfg.Durations()
	if err != nil {
		return nil, err
	}
	return report.NewService(
		report.SQLQuerier{Timeout: d.QueryTimeout},
		report.NewSMTPMailer(smtp),
		mapReportOptions(cfg),
		log.With(logx.String("comp", "report")),
	), nil
}

func (d *Deps) Close() error {
	if d == nil || d.History == nil {
		return nil
	}
	return d.History.Close()
}
