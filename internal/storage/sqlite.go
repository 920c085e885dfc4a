package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"taskbeat/internal/task"
	logx "taskbeat/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrations string

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
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

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.ExecContext(context.Background(), migrations); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	log.Debug("sqlite store opened", logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) AppendExecution(ctx context.Context, e task.Execution) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO executions(task, kind, scheduled_ns, started_ns, duration_ns, status, err)
		 VALUES(?,?,?,?,?,?,?)`,
		e.Task, e.Kind, e.Scheduled.UnixNano(), e.Started.UnixNano(), int64(e.Duration), string(e.Status), nullStr(e.Error),
	)
	return err
}

const selectCols = `task, kind, scheduled_ns, started_ns, duration_ns, status, err`

func (s *sqliteStore) LastExecutions(ctx context.Context) ([]task.Execution, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectCols+` FROM executions
		 WHERE id IN (SELECT MAX(id) FROM executions GROUP BY task)
		 ORDER BY task`)
	if err != nil {
		return nil, err
	}
	return scanExecutions(rows)
}

func (s *sqliteStore) RecentExecutions(ctx context.Context, name string, limit int) ([]task.Execution, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		limit = -1 // sqlite: no limit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectCols+` FROM executions
		 WHERE ? = '' OR task = ?
		 ORDER BY id DESC LIMIT ?`,
		name, name, limit)
	if err != nil {
		return nil, err
	}
	return scanExecutions(rows)
}

func (s *sqliteStore) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, ErrDisabled
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM executions WHERE started_ns < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func scanExecutions(rows *sql.Rows) ([]task.Execution, error) {
	defer rows.Close()
	var out []task.Execution
	for rows.Next() {
		var (
			e      task.Execution
			status string
			errMsg sql.NullString

			scheduled, started, dur int64
		)
		if err := rows.Scan(&e.Task, &e.Kind, &scheduled, &started, &dur, &status, &errMsg); err != nil {
			return nil, err
		}
		e.Scheduled = time.Unix(0, scheduled)
		e.Started = time.Unix(0, started)
		e.Duration = time.Duration(dur)
		e.Status = task.Status(status)
		e.Error = errMsg.String
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
