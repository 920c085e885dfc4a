package management

import (
	"context"
	"net/http"
	hpprof "net/http/pprof"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"taskbeat/internal/metrics"
	"taskbeat/internal/task"
	"taskbeat/internal/task/scheduler"
	logx "taskbeat/pkg/logx"
)

// TaskSource is the scheduler view served by the scheduledtasks endpoints.
type TaskSource interface {
	Snapshot() scheduler.Snapshot
	Task(name string) (scheduler.TaskInfo, error)
	History(name string, limit int) []task.Execution
}

// LevelRegistry backs the loggers endpoints.
type LevelRegistry interface {
	Loggers() []logx.LoggerLevel
	Lookup(name string) (logx.LoggerLevel, bool)
	SetLevel(name, level string) error
}

// ExecutionStore serves persisted execution history.
type ExecutionStore interface {
	RecentExecutions(ctx context.Context, name string, limit int) ([]task.Execution, error)
}

// HealthCheck reports one health component.
type HealthCheck func(ctx context.Context) HealthComponent

// Deps are the components the endpoints read from. Nil fields disable the
// endpoints that need them.
type Deps struct {
	Tasks   TaskSource
	Loggers LevelRegistry
	Metrics *metrics.Metrics
	// Store, when set, serves execution history instead of the scheduler's
	// in-memory ring.
	Store  ExecutionStore
	Checks map[string]HealthCheck
	Info   func() map[string]any
	// Env lists property sources in precedence order. Sensitive values are
	// masked before they are served.
	Env func() Env
}

type handlers struct {
	base string
	deps Deps
	log  logx.Logger
}

// NewRouter builds the management routes under cfg.BasePath.
func NewRouter(cfg Config, deps Deps, log logx.Logger) http.Handler {
	if log.IsZero() {
		log = logx.Nop()
	}
	h := &handlers{base: normalizeBasePath(cfg.BasePath), deps: deps, log: log}

	r := chi.NewRouter()
	r.Use(requestLogger(log))
	r.Use(recoverer(log))
	if cfg.RatePerSec > 0 {
		r.Use(rateLimit(rate.NewLimiter(rate.Limit(cfg.RatePerSec), max(1, cfg.RatePerSec))))
	}
	r.Use(withAuth(cfg.Token))
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "no such endpoint")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Route(h.base, func(r chi.Router) {
		r.Get("/", h.index)
		r.Get("/health", h.health)
		r.Get("/info", h.info)
		r.Get("/threaddump", h.threadDump)
		if deps.Env != nil {
			r.Get("/env", h.env)
			r.Get("/env/{name}", h.envProperty)
		}
		if deps.Tasks != nil {
			r.Get("/scheduledtasks", h.scheduledTasks)
			r.Get("/scheduledtasks/{name}/executions", h.executions)
		}
		if deps.Loggers != nil {
			r.Get("/loggers", h.loggers)
			r.Get("/loggers/{name}", h.logger)
			r.Post("/loggers/{name}", h.setLogger)
		}
		if deps.Metrics != nil {
			r.Get("/metrics", h.metricNames)
			r.Get("/metrics/{name}", h.metric)
			r.Method(http.MethodGet, "/prometheus", deps.Metrics.Handler())
		}
	})

	if cfg.Pprof {
		r.Route("/debug/pprof", func(r chi.Router) {
			r.Get("/", hpprof.Index)
			r.Get("/cmdline", hpprof.Cmdline)
			r.Get("/profile", hpprof.Profile)
			r.Get("/symbol", hpprof.Symbol)
			r.Post("/symbol", hpprof.Symbol)
			r.Get("/trace", hpprof.Trace)
			r.Get("/{profile}", hpprof.Index)
		})
	}
	return r
}
