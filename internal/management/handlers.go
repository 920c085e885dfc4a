package management

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"taskbeat/internal/task"
	"taskbeat/internal/task/scheduler"
	"taskbeat/internal/task/trigger"
	logx "taskbeat/pkg/logx"
)

const (
	defaultExecutionLimit = 20
	maxExecutionLimit     = 1000
)

func (h *handlers) index(w http.ResponseWriter, r *http.Request) {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	root := scheme + "://" + r.Host + h.base
	links := map[string]Link{
		"self":       {Href: root},
		"health":     {Href: root + "/health"},
		"info":       {Href: root + "/info"},
		"threaddump": {Href: root + "/threaddump"},
	}
	if h.deps.Env != nil {
		links["env"] = Link{Href: root + "/env"}
		links["env-toMatch"] = Link{Href: root + "/env/{toMatch}", Templated: true}
	}
	if h.deps.Tasks != nil {
		links["scheduledtasks"] = Link{Href: root + "/scheduledtasks"}
		links["scheduledtasks-name"] = Link{Href: root + "/scheduledtasks/{name}/executions", Templated: true}
	}
	if h.deps.Loggers != nil {
		links["loggers"] = Link{Href: root + "/loggers"}
		links["loggers-name"] = Link{Href: root + "/loggers/{name}", Templated: true}
	}
	if h.deps.Metrics != nil {
		links["metrics"] = Link{Href: root + "/metrics"}
		links["metrics-requiredMetricName"] = Link{Href: root + "/metrics/{requiredMetricName}", Templated: true}
		links["prometheus"] = Link{Href: root + "/prometheus"}
	}
	writeJSON(w, http.StatusOK, Index{Links: links})
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	out := Health{Status: StatusUp, Components: map[string]HealthComponent{
		"ping": {Status: StatusUp},
	}}
	if h.deps.Tasks != nil {
		out.Components["scheduler"] = schedulerHealth(h.deps.Tasks.Snapshot())
	}
	for name, check := range h.deps.Checks {
		if check != nil {
			out.Components[name] = check(r.Context())
		}
	}
	for _, c := range out.Components {
		if c.Status == StatusDown {
			out.Status = StatusDown
			break
		}
	}
	code := http.StatusOK
	if out.Status == StatusDown {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, out)
}

func schedulerHealth(snap scheduler.Snapshot) HealthComponent {
	c := HealthComponent{Details: map[string]any{
		"enabled":  snap.Enabled,
		"timezone": snap.Timezone,
		"tasks":    len(snap.Tasks),
	}}
	switch {
	case !snap.Enabled:
		c.Status = StatusUnknown
	case snap.Running:
		c.Status = StatusUp
		c.Details["started"] = formatTime(snap.Started)
	default:
		c.Status = StatusDown
	}
	return c
}

func (h *handlers) info(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{}
	if h.deps.Info != nil {
		for k, v := range h.deps.Info() {
			out[k] = v
		}
	}
	if _, ok := out["go"]; !ok {
		out["go"] = map[string]any{"version": runtime.Version(), "os": runtime.GOOS, "arch": runtime.GOARCH}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) scheduledTasks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, BuildScheduledTasks(h.deps.Tasks.Snapshot()))
}

// BuildScheduledTasks groups a scheduler snapshot by trigger kind.
func BuildScheduledTasks(snap scheduler.Snapshot) ScheduledTasks {
	out := ScheduledTasks{
		Cron:       []CronTask{},
		FixedDelay: []FixedIntervalTask{},
		FixedRate:  []FixedIntervalTask{},
		Custom:     []CustomTask{},
	}
	for _, it := range snap.Tasks {
		run := Runnable{Target: it.Target}
		next := nextExecution(it.Next)
		last := lastExecution(it.Last)
		switch it.Trigger.Kind {
		case trigger.KindCron:
			out.Cron = append(out.Cron, CronTask{Runnable: run, Expression: it.Trigger.Expression, NextExecution: next, LastExecution: last})
		case trigger.KindFixedDelay, trigger.KindFixedRate:
			ft := FixedIntervalTask{
				Runnable:      run,
				InitialDelay:  it.Trigger.InitialDelay.Milliseconds(),
				Interval:      it.Trigger.Interval.Milliseconds(),
				NextExecution: next,
				LastExecution: last,
			}
			if it.Trigger.Kind == trigger.KindFixedDelay {
				out.FixedDelay = append(out.FixedDelay, ft)
			} else {
				out.FixedRate = append(out.FixedRate, ft)
			}
		default:
			out.Custom = append(out.Custom, CustomTask{Runnable: run, Trigger: it.Trigger.String(), NextExecution: next, LastExecution: last})
		}
	}
	return out
}

func nextExecution(t time.Time) *TimeOnly {
	if t.IsZero() {
		return nil
	}
	return &TimeOnly{Time: formatTime(t)}
}

func lastExecution(ex *task.Execution) *LastExecution {
	if ex == nil {
		return nil
	}
	out := &LastExecution{Time: formatTime(ex.Started), Status: string(ex.Status)}
	if ex.Status == task.StatusError && ex.Error != "" {
		out.Exception = &Exception{Message: ex.Error, Type: "error"}
	}
	return out
}

func (h *handlers) executions(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if _, err := h.deps.Tasks.Task(name); err != nil {
		if errors.Is(err, scheduler.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "unknown task "+strconv.Quote(name))
			return
		}
		writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}

	limit := defaultExecutionLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, r, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxExecutionLimit)
	}

	var execs []task.Execution
	if h.deps.Store != nil {
		var err error
		execs, err = h.deps.Store.RecentExecutions(r.Context(), name, limit)
		if err != nil {
			h.log.Warn("execution history read failed", logx.String("task", name), logx.Err(err))
			writeError(w, r, http.StatusInternalServerError, "execution history unavailable")
			return
		}
	} else {
		execs = h.deps.Tasks.History(name, limit)
	}

	out := Executions{Task: name, Executions: make([]ExecutionRecord, 0, len(execs))}
	for _, ex := range execs {
		rec := ExecutionRecord{
			Task:       ex.Task,
			Started:    formatTime(ex.Started),
			DurationMs: ex.Duration.Milliseconds(),
			Status:     string(ex.Status),
			Error:      ex.Error,
		}
		if !ex.Scheduled.IsZero() {
			rec.Scheduled = formatTime(ex.Scheduled)
		}
		out.Executions = append(out.Executions, rec)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) loggers(w http.ResponseWriter, r *http.Request) {
	rows := h.deps.Loggers.Loggers()
	out := Loggers{Levels: logx.SupportedLevels(), Loggers: make(map[string]LoggerLevels, len(rows))}
	for _, row := range rows {
		out.Loggers[row.Name] = loggerLevels(row)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) logger(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	row, ok := h.deps.Loggers.Lookup(name)
	if !ok {
		writeError(w, r, http.StatusNotFound, "unknown logger "+strconv.Quote(name))
		return
	}
	writeJSON(w, http.StatusOK, loggerLevels(row))
}

func (h *handlers) setLogger(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var req SetLevelRequest
	body := http.MaxBytesReader(w, r.Body, 4<<10)
	if err := json.NewDecoder(body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, r, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	level := ""
	if req.ConfiguredLevel != nil {
		level = strings.TrimSpace(*req.ConfiguredLevel)
	}
	if err := h.deps.Loggers.SetLevel(name, level); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	h.log.Info("logger level changed", logx.String("logger", name), logx.String("level", levelOrReset(level)))
	w.WriteHeader(http.StatusNoContent)
}

func levelOrReset(level string) string {
	if level == "" {
		return "(reset)"
	}
	return strings.ToUpper(level)
}

func loggerLevels(row logx.LoggerLevel) LoggerLevels {
	eff := logx.LevelName(row.Effective)
	out := LoggerLevels{EffectiveLevel: &eff}
	if row.Configured != nil {
		c := logx.LevelName(*row.Configured)
		out.ConfiguredLevel = &c
	}
	return out
}

func (h *handlers) metricNames(w http.ResponseWriter, r *http.Request) {
	names, err := h.deps.Metrics.Names()
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, MetricNames{Names: names})
}

func (h *handlers) metric(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	f, ok, err := h.deps.Metrics.Family(name)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeError(w, r, http.StatusNotFound, "unknown metric "+strconv.Quote(name))
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339Nano)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeJSON(w, code, errorBody{Status: code, Error: http.StatusText(code), Message: msg, Path: r.URL.Path})
}

