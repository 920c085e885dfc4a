package management

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"taskbeat/internal/metrics"
	"taskbeat/internal/task"
	"taskbeat/internal/task/scheduler"
	"taskbeat/internal/task/trigger"
	logx "taskbeat/pkg/logx"
)

var t0 = time.Date(2024, 5, 6, 10, 0, 30, 0, time.UTC)

type fakeTasks struct {
	snap    scheduler.Snapshot
	history []task.Execution
}

func (f *fakeTasks) Snapshot() scheduler.Snapshot { return f.snap }

func (f *fakeTasks) Task(name string) (scheduler.TaskInfo, error) {
	for _, it := range f.snap.Tasks {
		if it.Name == name {
			return it, nil
		}
	}
	return scheduler.TaskInfo{}, scheduler.ErrNotFound
}

func (f *fakeTasks) History(name string, limit int) []task.Execution {
	var out []task.Execution
	for _, ex := range f.history {
		if ex.Task == name && (limit <= 0 || len(out) < limit) {
			out = append(out, ex)
		}
	}
	return out
}

type fakeStore struct {
	execs []task.Execution
	err   error
}

func (f *fakeStore) RecentExecutions(ctx context.Context, name string, limit int) ([]task.Execution, error) {
	return f.execs, f.err
}

func newFakeTasks() *fakeTasks {
	failed := task.Execution{Task: "fixedRateTask", Started: t0.Add(-time.Minute), Status: task.StatusError, Error: "boom"}
	ok := task.Execution{Task: "cronTask", Started: t0.Add(-30 * time.Second), Duration: 3 * time.Millisecond, Status: task.StatusSuccess}
	return &fakeTasks{
		snap: scheduler.Snapshot{
			Enabled:  true,
			Running:  true,
			Timezone: "UTC",
			Started:  t0.Add(-time.Hour),
			Tasks: []scheduler.TaskInfo{
				{Name: "cronTask", Target: "fixture.ScheduledTasks.cronTask", Trigger: trigger.MustCron("0 * * * * *"), Next: t0.Add(30 * time.Second), Last: &ok},
				{Name: "fixedDelayTask", Target: "fixture.ScheduledTasks.fixedDelayTask", Trigger: trigger.FixedDelay(5 * time.Minute), Next: t0.Add(5 * time.Minute)},
				{Name: "fixedDelayWithInitialDelayTask", Target: "fixture.ScheduledTasks.fixedDelayWithInitialDelayTask", Trigger: trigger.FixedDelay(12 * time.Hour).WithInitialDelay(15 * time.Minute)},
				{Name: "fixedRateTask", Target: "fixture.ScheduledTasks.fixedRateTask", Trigger: trigger.FixedRate(30 * time.Minute), Next: t0.Add(29 * time.Minute), Last: &failed},
			},
		},
		history: []task.Execution{ok, ok, ok},
	}
}

func newLogService(t *testing.T) *logx.Service {
	t.Helper()
	svc, _ := logx.New(logx.Config{Level: "INFO", File: logx.FileConfig{Enabled: true, Path: filepath.Join(t.TempDir(), "test.log")}})
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func newTestRouter(t *testing.T, cfg Config, deps Deps) http.Handler {
	t.Helper()
	if deps.Tasks == nil {
		deps.Tasks = newFakeTasks()
	}
	if deps.Loggers == nil {
		deps.Loggers = newLogService(t)
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New("test", nil)
	}
	return NewRouter(cfg, deps, logx.Nop())
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func TestScheduledTasksGroupsByKind(t *testing.T) {
	h := newTestRouter(t, Config{}, Deps{})
	w := do(t, h, http.MethodGet, "/actuator/scheduledtasks", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	got := decode[ScheduledTasks](t, w)

	if len(got.Cron) != 1 || len(got.FixedDelay) != 2 || len(got.FixedRate) != 1 || len(got.Custom) != 0 {
		t.Fatalf("groups = %d/%d/%d/%d", len(got.Cron), len(got.FixedDelay), len(got.FixedRate), len(got.Custom))
	}
	c := got.Cron[0]
	if c.Expression != "0 * * * * *" || c.Runnable.Target != "fixture.ScheduledTasks.cronTask" {
		t.Fatalf("cron = %+v", c)
	}
	if c.NextExecution == nil || c.NextExecution.Time != "2024-05-06T10:01:00Z" {
		t.Fatalf("cron next = %+v", c.NextExecution)
	}
	if c.LastExecution == nil || c.LastExecution.Status != "SUCCESS" || c.LastExecution.Exception != nil {
		t.Fatalf("cron last = %+v", c.LastExecution)
	}

	d := got.FixedDelay[0]
	if d.Interval != 300000 || d.InitialDelay != 0 {
		t.Fatalf("fixed delay = %+v", d)
	}
	di := got.FixedDelay[1]
	if di.Interval != 43200000 || di.InitialDelay != 900000 || di.NextExecution != nil || di.LastExecution != nil {
		t.Fatalf("fixed delay with initial delay = %+v", di)
	}

	r := got.FixedRate[0]
	if r.Interval != 1800000 {
		t.Fatalf("fixed rate interval = %d", r.Interval)
	}
	if r.LastExecution == nil || r.LastExecution.Status != "ERROR" || r.LastExecution.Exception == nil || r.LastExecution.Exception.Message != "boom" {
		t.Fatalf("fixed rate last = %+v", r.LastExecution)
	}
}

func TestScheduledTasksEmptyGroupsAreArrays(t *testing.T) {
	h := newTestRouter(t, Config{}, Deps{Tasks: &fakeTasks{}})
	w := do(t, h, http.MethodGet, "/actuator/scheduledtasks", "")
	want := `{"cron":[],"fixedDelay":[],"fixedRate":[],"custom":[]}`
	if got := strings.TrimSpace(w.Body.String()); got != want {
		t.Fatalf("body = %s, want %s", got, want)
	}
}

func TestExecutionsEndpoint(t *testing.T) {
	h := newTestRouter(t, Config{}, Deps{})

	w := do(t, h, http.MethodGet, "/actuator/scheduledtasks/cronTask/executions?limit=2", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	got := decode[Executions](t, w)
	if got.Task != "cronTask" || len(got.Executions) != 2 {
		t.Fatalf("executions = %+v", got)
	}
	if got.Executions[0].DurationMs != 3 || got.Executions[0].Status != "SUCCESS" {
		t.Fatalf("record = %+v", got.Executions[0])
	}

	if w := do(t, h, http.MethodGet, "/actuator/scheduledtasks/nope/executions", ""); w.Code != http.StatusNotFound {
		t.Fatalf("unknown task status = %d", w.Code)
	}
	if w := do(t, h, http.MethodGet, "/actuator/scheduledtasks/cronTask/executions?limit=x", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("bad limit status = %d", w.Code)
	}
}

func TestExecutionsPreferStore(t *testing.T) {
	store := &fakeStore{execs: []task.Execution{{Task: "cronTask", Started: t0, Status: task.StatusError, Error: "disk"}}}
	h := newTestRouter(t, Config{}, Deps{Store: store})

	got := decode[Executions](t, do(t, h, http.MethodGet, "/actuator/scheduledtasks/cronTask/executions", ""))
	if len(got.Executions) != 1 || got.Executions[0].Error != "disk" {
		t.Fatalf("executions = %+v", got.Executions)
	}

	store.err = errors.New("closed")
	if w := do(t, h, http.MethodGet, "/actuator/scheduledtasks/cronTask/executions", ""); w.Code != http.StatusInternalServerError {
		t.Fatalf("store error status = %d", w.Code)
	}
}

func TestLoggersEndpoints(t *testing.T) {
	logs := newLogService(t)
	logs.Logger().Named("tasks")
	h := newTestRouter(t, Config{}, Deps{Loggers: logs})

	list := decode[Loggers](t, do(t, h, http.MethodGet, "/actuator/loggers", ""))
	root, ok := list.Loggers["ROOT"]
	if !ok || root.ConfiguredLevel == nil || *root.ConfiguredLevel != "INFO" {
		t.Fatalf("ROOT = %+v", root)
	}
	tasks := list.Loggers["tasks"]
	if tasks.ConfiguredLevel != nil || tasks.EffectiveLevel == nil || *tasks.EffectiveLevel != "INFO" {
		t.Fatalf("tasks = %+v", tasks)
	}
	if len(list.Levels) == 0 {
		t.Fatal("levels missing")
	}

	if w := do(t, h, http.MethodPost, "/actuator/loggers/tasks", `{"configuredLevel":"DEBUG"}`); w.Code != http.StatusNoContent {
		t.Fatalf("set status = %d body %s", w.Code, w.Body.String())
	}
	one := decode[LoggerLevels](t, do(t, h, http.MethodGet, "/actuator/loggers/tasks", ""))
	if one.ConfiguredLevel == nil || *one.ConfiguredLevel != "DEBUG" || *one.EffectiveLevel != "DEBUG" {
		t.Fatalf("after set = %+v", one)
	}

	if w := do(t, h, http.MethodPost, "/actuator/loggers/tasks", `{"configuredLevel":null}`); w.Code != http.StatusNoContent {
		t.Fatalf("reset status = %d", w.Code)
	}
	one = decode[LoggerLevels](t, do(t, h, http.MethodGet, "/actuator/loggers/tasks", ""))
	if one.ConfiguredLevel != nil || *one.EffectiveLevel != "INFO" {
		t.Fatalf("after reset = %+v", one)
	}

	if w := do(t, h, http.MethodPost, "/actuator/loggers/tasks", `{"configuredLevel":"LOUD"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("invalid level status = %d", w.Code)
	}
	if w := do(t, h, http.MethodGet, "/actuator/loggers/unknown.logger", ""); w.Code != http.StatusNotFound {
		t.Fatalf("unknown logger status = %d", w.Code)
	}
}

func TestLoggerHandlerWithRouteContext(t *testing.T) {
	logs := newLogService(t)
	h := &handlers{base: "/actuator", deps: Deps{Loggers: logs}, log: logx.Nop()}

	req := httptest.NewRequest(http.MethodGet, "/actuator/loggers/ROOT", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("name", "ROOT")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	w := httptest.NewRecorder()

	h.logger(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	got := decode[LoggerLevels](t, w)
	if got.EffectiveLevel == nil || *got.EffectiveLevel != "INFO" {
		t.Fatalf("ROOT = %+v", got)
	}
}

type staticCheck HealthComponent

func (c staticCheck) check(context.Context) HealthComponent { return HealthComponent(c) }

func TestHealth(t *testing.T) {
	h := newTestRouter(t, Config{}, Deps{})
	w := do(t, h, http.MethodGet, "/actuator/health", "")
	got := decode[Health](t, w)
	if w.Code != http.StatusOK || got.Status != StatusUp {
		t.Fatalf("health = %d %+v", w.Code, got)
	}
	if got.Components["scheduler"].Status != StatusUp {
		t.Fatalf("scheduler = %+v", got.Components["scheduler"])
	}

	h = newTestRouter(t, Config{}, Deps{Checks: map[string]HealthCheck{
		"storage": staticCheck{Status: StatusDown, Details: map[string]any{"error": "closed"}}.check,
	}})
	w = do(t, h, http.MethodGet, "/actuator/health", "")
	got = decode[Health](t, w)
	if w.Code != http.StatusServiceUnavailable || got.Status != StatusDown {
		t.Fatalf("health = %d %+v", w.Code, got)
	}
}

func TestInfoMergesProvider(t *testing.T) {
	h := newTestRouter(t, Config{}, Deps{Info: func() map[string]any {
		return map[string]any{"app": map[string]any{"name": "taskbeat"}}
	}})
	got := decode[map[string]any](t, do(t, h, http.MethodGet, "/actuator/info", ""))
	if _, ok := got["app"]; !ok {
		t.Fatalf("app missing: %v", got)
	}
	if _, ok := got["go"]; !ok {
		t.Fatalf("go missing: %v", got)
	}
}

func TestMetricsEndpoints(t *testing.T) {
	h := newTestRouter(t, Config{}, Deps{})

	names := decode[MetricNames](t, do(t, h, http.MethodGet, "/actuator/metrics", ""))
	found := false
	for _, n := range names.Names {
		if n == "taskbeat_build_info" {
			found = true
		}
	}
	if !found {
		t.Fatalf("names = %v", names.Names)
	}

	fam := decode[metrics.Family](t, do(t, h, http.MethodGet, "/actuator/metrics/taskbeat_build_info", ""))
	if len(fam.Measurements) != 1 || fam.Measurements[0].Value != 1 {
		t.Fatalf("family = %+v", fam)
	}
	if w := do(t, h, http.MethodGet, "/actuator/metrics/nope", ""); w.Code != http.StatusNotFound {
		t.Fatalf("unknown metric status = %d", w.Code)
	}

	w := do(t, h, http.MethodGet, "/actuator/prometheus", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "taskbeat_build_info") {
		t.Fatalf("prometheus = %d", w.Code)
	}
}

func TestIndexLinks(t *testing.T) {
	h := newTestRouter(t, Config{BasePath: "manage/"}, Deps{})
	req := httptest.NewRequest(http.MethodGet, "/manage", nil)
	req.Host = "example:8081"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	got := decode[Index](t, w)
	if got.Links["self"].Href != "http://example:8081/manage" {
		t.Fatalf("self = %+v", got.Links["self"])
	}
	if l := got.Links["loggers-name"]; !l.Templated || l.Href != "http://example:8081/manage/loggers/{name}" {
		t.Fatalf("loggers-name = %+v", l)
	}
	if w := do(t, h, http.MethodGet, "/actuator/health", ""); w.Code != http.StatusNotFound {
		t.Fatalf("old base path status = %d", w.Code)
	}
}

func TestAuth(t *testing.T) {
	h := newTestRouter(t, Config{Token: "s3cret"}, Deps{})

	if w := do(t, h, http.MethodGet, "/actuator/health", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("no token status = %d", w.Code)
	}
	if w := do(t, h, http.MethodGet, "/actuator/health?token=wrong", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token status = %d", w.Code)
	}
	if w := do(t, h, http.MethodGet, "/actuator/health?token=s3cret", ""); w.Code != http.StatusOK {
		t.Fatalf("query token status = %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/actuator/health", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("bearer status = %d", w.Code)
	}
}

func TestRateLimit(t *testing.T) {
	h := newTestRouter(t, Config{RatePerSec: 1}, Deps{})
	if w := do(t, h, http.MethodGet, "/actuator/health", ""); w.Code != http.StatusOK {
		t.Fatalf("first status = %d", w.Code)
	}
	w := do(t, h, http.MethodGet, "/actuator/health", "")
	if w.Code != http.StatusTooManyRequests || w.Header().Get("Retry-After") == "" {
		t.Fatalf("second status = %d", w.Code)
	}
}

func TestPprofMount(t *testing.T) {
	off := newTestRouter(t, Config{}, Deps{})
	if w := do(t, off, http.MethodGet, "/debug/pprof/", ""); w.Code != http.StatusNotFound {
		t.Fatalf("pprof off status = %d", w.Code)
	}
	on := newTestRouter(t, Config{Pprof: true}, Deps{})
	if w := do(t, on, http.MethodGet, "/debug/pprof/", ""); w.Code != http.StatusOK {
		t.Fatalf("pprof on status = %d", w.Code)
	}
}
