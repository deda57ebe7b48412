package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "reportd/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) AppendRun(ctx context.Context, e RunEntry) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	var files any
	if len(e.Files) > 0 {
		b, err := json.Marshal(e.Files)
		if err != nil {
			return err
		}
		files = string(b)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs(task_id, task_name, source, started_at, finished_at, status, row_count, files, err)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		e.TaskID, e.TaskName, e.Trigger,
		e.StartedAt.Format(time.RFC3339Nano), e.FinishedAt.Format(time.RFC3339Nano),
		e.Status, e.Rows, files, nullStr(e.Error),
	)
	return err
}

func (s *sqliteStore) RecentRuns(ctx context.Context, taskID string, limit int) ([]RunEntry, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		limit = -1 // sqlite: no limit
	}
	q := `SELECT task_id, task_name, source, started_at, finished_at, status, row_count, files, err
	      FROM runs WHERE (? = '' OR task_id = ?) ORDER BY id DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, q, taskID, taskID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunEntry
	for rows.Next() {
		var (
			e                 RunEntry
			started, finished string
			files, errStr     sql.NullString
		)
		if err := rows.Scan(&e.TaskID, &e.TaskName, &e.Trigger, &started, &finished, &e.Status, &e.Rows, &files, &errStr); err != nil {
			return nil, err
		}
		e.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		e.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
		if files.Valid && files.String != "" {
			if err := json.Unmarshal([]byte(files.String), &e.Files); err != nil {
				s.log.Debug("bad files column", logx.Err(err))
			}
		}
		e.Error = errStr.String
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
