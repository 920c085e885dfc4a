package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"taskbeat/internal/clock"
	"taskbeat/internal/eventbus"
	"taskbeat/internal/runtime/supervisor"
	"taskbeat/internal/task"
	"taskbeat/internal/task/trigger"
	logx "taskbeat/pkg/logx"
)

// ErrNotFound is returned for unknown task names.
var ErrNotFound = errors.New("task not found")

// Config controls the scheduler service.
type Config struct {
	Enabled  bool
	Timezone string // IANA TZ, e.g. "Asia/Jakarta"; empty means local time

	// TaskTimeout bounds a run when the registration sets no timeout. 0 disables.
	TaskTimeout time.Duration

	// HistorySize is the number of executions kept in memory (default 200).
	HistorySize int
}

// Job is the work a task performs.
type Job func(ctx context.Context) error

// Registration binds a task name to its trigger and job.
type Registration struct {
	Name string
	// Target identifies the callable in listings, e.g. "fixture.ScheduledTasks.cronTask".
	Target  string
	Trigger trigger.Trigger
	Timeout time.Duration
	Job     Job
}

type entry struct {
	reg Registration

	// guarded by Service.mu
	gen     uint64
	cancel  context.CancelFunc
	next    time.Time
	last    *task.Execution
	running bool
}

type Service struct {
	mu sync.Mutex

	log   logx.Logger
	cfg   Config
	loc   *time.Location
	bus   eventbus.Bus
	clock clock.Clock

	sup     *supervisor.Supervisor // nil when stopped
	started time.Time
	tasks   map[string]*entry
	seeded  map[string]task.Execution

	hmu     sync.Mutex
	history []task.Execution
}

// TaskInfo describes one registered task.
type TaskInfo struct {
	Name    string
	Target  string
	Trigger trigger.Trigger
	Next    time.Time
	Last    *task.Execution
	Running bool
}

type Snapshot struct {
	Enabled  bool
	Running  bool
	Timezone string
	Started  time.Time
	Tasks    []TaskInfo
}
