package fixture

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"taskbeat/internal/clock"
	"taskbeat/internal/config"
	"taskbeat/internal/task/scheduler"
	"taskbeat/internal/task/trigger"
	logx "taskbeat/pkg/logx"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) count(substr string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, line := range strings.Split(b.buf.String(), "\n") {
		if strings.Contains(line, `"message":"`+substr+`"`) {
			n++
		}
	}
	return n
}

func (b *syncBuffer) lines() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Count(b.buf.String(), "\n")
}

var messages = map[string]string{
	CronTaskName:                       "Executing cron task",
	FixedDelayTaskName:                 "Executing fixed delay task",
	FixedRateTaskName:                  "Executing fixed rate task",
	FixedDelayWithInitialDelayTaskName: "Executing fixed delay with initial delay task",
}

func TestEachTaskLogsOneLine(t *testing.T) {
	regs, err := Registrations(New(logx.Nop()), nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, reg := range regs {
		t.Run(reg.Name, func(t *testing.T) {
			buf := &syncBuffer{}
			regs, err := Registrations(New(logx.NewWriter(buf, "INFO")), nil)
			if err != nil {
				t.Fatal(err)
			}
			for _, r := range regs {
				if r.Name == reg.Name {
					if err := r.Job(context.Background()); err != nil {
						t.Fatalf("job: %v", err)
					}
				}
			}
			if buf.lines() != 1 {
				t.Fatalf("lines = %d, want 1", buf.lines())
			}
			if buf.count(messages[reg.Name]) != 1 {
				t.Fatalf("missing %q in output", messages[reg.Name])
			}
		})
	}
}

func TestDefaultRegistrations(t *testing.T) {
	regs, err := Registrations(New(logx.Nop()), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(regs) != 4 {
		t.Fatalf("registrations = %d, want 4", len(regs))
	}
	want := map[string]struct {
		kind     trigger.Kind
		expr     string
		interval time.Duration
		initial  time.Duration
	}{
		CronTaskName:                       {kind: trigger.KindCron, expr: "0 * * * * *"},
		FixedDelayTaskName:                 {kind: trigger.KindFixedDelay, interval: 300000 * time.Millisecond},
		FixedRateTaskName:                  {kind: trigger.KindFixedRate, interval: 1800000 * time.Millisecond},
		FixedDelayWithInitialDelayTaskName: {kind: trigger.KindFixedDelay, interval: 43200000 * time.Millisecond, initial: 900000 * time.Millisecond},
	}
	for _, r := range regs {
		w, ok := want[r.Name]
		if !ok {
			t.Fatalf("unexpected task %s", r.Name)
		}
		tr := r.Trigger
		if tr.Kind != w.kind || tr.Expression != w.expr || tr.Interval != w.interval || tr.InitialDelay != w.initial {
			t.Errorf("%s trigger = %s", r.Name, tr)
		}
		if r.Target != "fixture.ScheduledTasks."+r.Name {
			t.Errorf("%s target = %s", r.Name, r.Target)
		}
	}
}

func boolPtr(v bool) *bool { return &v }

func TestRegistrationOverrides(t *testing.T) {
	regs, err := Registrations(New(logx.Nop()), map[string]config.TaskConfig{
		CronTaskName:                       {Cron: "@hourly", Timeout: "30s"},
		FixedDelayTaskName:                 {FixedRate: "60000"},
		FixedRateTaskName:                  {Enabled: boolPtr(false)},
		FixedDelayWithInitialDelayTaskName: {InitialDelay: "1m"},
	})
	if err != nil {
		t.Fatal(err)
	}
	byName := map[string]scheduler.Registration{}
	for _, r := range regs {
		byName[r.Name] = r
	}
	if _, ok := byName[FixedRateTaskName]; ok {
		t.Fatal("disabled task registered")
	}
	if c := byName[CronTaskName]; c.Trigger.Expression != "@hourly" || c.Timeout != 30*time.Second {
		t.Fatalf("cron override = %s timeout %v", c.Trigger, c.Timeout)
	}
	if d := byName[FixedDelayTaskName].Trigger; d.Kind != trigger.KindFixedRate || d.Interval != time.Minute {
		t.Fatalf("fixed delay override = %s", d)
	}
	if d := byName[FixedDelayWithInitialDelayTaskName].Trigger; d.Interval != 12*time.Hour || d.InitialDelay != time.Minute {
		t.Fatalf("initial delay override = %s", d)
	}
}

func TestRegistrationOverrideErrors(t *testing.T) {
	tests := []struct {
		name string
		ovr  map[string]config.TaskConfig
		want string
	}{
		{"unknown task", map[string]config.TaskConfig{"nope": {}}, "tasks.nope: unknown task"},
		{"bad cron", map[string]config.TaskConfig{CronTaskName: {Cron: "61 * * * * *"}}, "tasks.cronTask"},
		{"cron with initial delay", map[string]config.TaskConfig{CronTaskName: {InitialDelay: "5s"}}, "initial delay"},
		{"bad interval", map[string]config.TaskConfig{FixedRateTaskName: {FixedRate: "soon"}}, "fixed_rate"},
		{"bad timeout", map[string]config.TaskConfig{FixedRateTaskName: {Timeout: "-1s"}}, "tasks.fixedRateTask.timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Registrations(New(logx.Nop()), tt.ovr)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want containing %q", err, tt.want)
			}
		})
	}
}

type env struct {
	t   *testing.T
	clk *clock.Fake
	s   *scheduler.Service
	buf *syncBuffer
}

var t0 = time.Date(2024, 5, 6, 10, 0, 30, 0, time.UTC)

func startAll(t *testing.T) *env {
	t.Helper()
	buf := &syncBuffer{}
	clk := clock.NewFake(t0)
	s := scheduler.New(scheduler.Config{Enabled: true, Timezone: "UTC"}, clk, logx.Nop(), nil)
	regs, err := Registrations(New(logx.NewWriter(buf, "INFO")), nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range regs {
		if err := s.Register(r); err != nil {
			t.Fatalf("Register(%s): %v", r.Name, err)
		}
	}
	s.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	e := &env{t: t, clk: clk, s: s, buf: buf}
	e.armed()
	return e
}

// armed waits until all four task loops are parked on a timer.
func (e *env) armed() {
	e.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := e.clk.BlockUntil(ctx, 4); err != nil {
		e.t.Fatalf("waiting for timers: %v (have %d)", err, e.clk.Waiters())
	}
}

func (e *env) advance(d time.Duration) {
	e.clk.Advance(d)
	e.armed()
}

func TestOneMinuteRunsOnlyCron(t *testing.T) {
	e := startAll(t)
	e.advance(time.Minute)

	if n := e.buf.count(messages[CronTaskName]); n < 1 {
		t.Fatalf("cron lines = %d, want >= 1", n)
	}
	for _, name := range []string{FixedDelayTaskName, FixedRateTaskName, FixedDelayWithInitialDelayTaskName} {
		if n := e.buf.count(messages[name]); n != 0 {
			t.Fatalf("%s lines = %d, want 0", name, n)
		}
	}
}

func TestInitialDelayThenLongDelay(t *testing.T) {
	e := startAll(t)
	msg := messages[FixedDelayWithInitialDelayTaskName]

	e.advance(InitialDelay - time.Second)
	if n := e.buf.count(msg); n != 0 {
		t.Fatalf("fired before initial delay (%d)", n)
	}
	e.advance(time.Second)
	if n := e.buf.count(msg); n != 1 {
		t.Fatalf("lines after initial delay = %d, want 1", n)
	}

	// Step in one-hour increments so every other task keeps re-arming.
	for i := 0; i < 11; i++ {
		e.advance(time.Hour)
	}
	e.advance(time.Hour - time.Second)
	if n := e.buf.count(msg); n != 1 {
		t.Fatalf("fired again before 12h (%d)", n)
	}
	e.advance(time.Second)
	if n := e.buf.count(msg); n != 2 {
		t.Fatalf("lines after 12h = %d, want 2", n)
	}
}

func TestFixedRateSpacing(t *testing.T) {
	e := startAll(t)
	msg := messages[FixedRateTaskName]
	for i := 1; i <= 3; i++ {
		e.advance(FixedRateInterval)
		if n := e.buf.count(msg); n != i {
			t.Fatalf("after %d intervals lines = %d", i, n)
		}
	}
}
