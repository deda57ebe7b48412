package storage

import (
	"context"
	"errors"
	"strings"

	logx "reportd/pkg/logx"
)

// Store is the run history API used by the executor and the CLI.
type Store interface {
	AppendRun(ctx context.Context, e RunEntry) error
	// RecentRuns returns up to limit entries for taskID, newest first.
	// An empty taskID matches every task.
	RecentRuns(ctx context.Context, taskID string, limit int) ([]RunEntry, error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "storage"), logx.String("driver", driver))

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
