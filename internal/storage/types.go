package storage

import (
	"context"
	"errors"
	"time"

	"taskbeat/internal/task"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the execution history API.
type Store interface {
	AppendExecution(ctx context.Context, e task.Execution) error
	// LastExecutions returns the newest execution of every task, sorted by task name.
	LastExecutions(ctx context.Context) ([]task.Execution, error)
	// RecentExecutions returns up to limit executions, newest first. An empty
	// name means all tasks; limit <= 0 means no limit.
	RecentExecutions(ctx context.Context, name string, limit int) ([]task.Execution, error)
	// Prune deletes executions started before cutoff and reports how many were removed.
	Prune(ctx context.Context, cutoff time.Time) (int, error)
	Close() error
}
