package main

import (
	"bytes"
	"strings"
	"testing"

	"taskbeat/internal/management"
)

func intp(n int) *int { return &n }

func testDump() *management.ThreadDump {
	frames := make([]management.StackFrame, 12)
	for i := range frames {
		frames[i] = management.StackFrame{ClassName: "taskbeat/internal/task/scheduler.(*Scheduler)", MethodName: "loop", FileName: strp("scheduler.go"), LineNumber: intp(100 + i)}
	}
	return &management.ThreadDump{Threads: []management.Thread{
		{ThreadName: "main.main", ThreadID: 1, ThreadState: management.ThreadRunnable, StackTrace: frames[:1]},
		{ThreadName: "scheduler.(*Scheduler).Start.func1", ThreadID: 7, ThreadState: management.ThreadWaiting, Daemon: true, WaitedCount: 1, WaitedTime: 180_000, StackTrace: frames},
		{ThreadName: "sync.(*Mutex).lockSlow", ThreadID: 9, ThreadState: management.ThreadBlocked, Daemon: true, BlockedCount: 1},
	}}
}

func TestPrintThreadDumpSummary(t *testing.T) {
	var buf bytes.Buffer
	if err := printThreadDump(&buf, testDump(), &threadDumpOptions{summary: true}); err != nil {
		t.Fatal(err)
	}
	want := "Total Threads: 3\n\nThread States:\n  RUNNABLE: 1\n  BLOCKED: 1\n  WAITING: 1\n"
	if buf.String() != want {
		t.Fatalf("summary =\n%s\nwant\n%s", buf.String(), want)
	}
}

func TestPrintThreadDumpFiltersAndTruncates(t *testing.T) {
	o := &threadDumpOptions{state: "waiting"}
	if err := o.validate(); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := printThreadDump(&buf, testDump(), o); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, s := range []string{
		"Showing 1 filtered threads:",
		"Thread #1: scheduler.(*Scheduler).Start.func1 (ID: 7)",
		"  Daemon: true, In Native: false, Suspended: false",
		"  Waited Count: 1, Time: 180000 ms",
		"    at taskbeat/internal/task/scheduler.(*Scheduler).loop(scheduler.go:100)",
		"    ... 2 more frames",
	} {
		if !strings.Contains(out, s) {
			t.Fatalf("missing %q in:\n%s", s, out)
		}
	}
	if strings.Contains(out, "main.main") {
		t.Fatalf("filtered thread printed:\n%s", out)
	}

	buf.Reset()
	wide := &threadDumpOptions{output: "wide", name: "SCHEDULER"}
	if err := printThreadDump(&buf, testDump(), wide); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), "more frames") || !strings.Contains(buf.String(), "scheduler.go:111") {
		t.Fatalf("wide output truncated:\n%s", buf.String())
	}

	buf.Reset()
	none := &threadDumpOptions{name: "nothing"}
	if err := printThreadDump(&buf, testDump(), none); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "No threads match the specified filters.") {
		t.Fatalf("no-match output:\n%s", buf.String())
	}
}

func TestThreadDumpRejectsUnknownState(t *testing.T) {
	if err := (&threadDumpOptions{state: "sleeping"}).validate(); err == nil {
		t.Fatal("expected error for unknown state")
	}
	if err := (&threadDumpOptions{output: "json"}).validate(); err == nil {
		t.Fatal("expected error for unknown output")
	}
}

func TestFormatFrameLocation(t *testing.T) {
	tests := []struct {
		f    management.StackFrame
		want string
	}{
		{management.StackFrame{FileName: strp("a.go"), LineNumber: intp(3)}, "a.go:3"},
		{management.StackFrame{FileName: strp("a.go")}, "a.go"},
		{management.StackFrame{NativeMethod: true}, "Native Method"},
		{management.StackFrame{}, "Unknown Source"},
	}
	for _, tt := range tests {
		if got := formatFrameLocation(tt.f); got != tt.want {
			t.Errorf("formatFrameLocation(%+v) = %q, want %q", tt.f, got, tt.want)
		}
	}
}

func TestPrintEnv(t *testing.T) {
	env := &management.Env{
		ActiveProfiles: []string{},
		PropertySources: []management.PropertySource{
			{Name: "config: /etc/taskbeat.yaml", Properties: map[string]management.PropertyDetails{
				"app.name":           {Value: "taskbeat", Origin: "/etc/taskbeat.yaml"},
				"app.info.motd":      {Value: "line1\nline2", Origin: "/etc/taskbeat.yaml"},
				"scheduler.timezone": {Value: "UTC", Origin: "/etc/taskbeat.yaml"},
			}},
			{Name: "runtime", Properties: map[string]management.PropertyDetails{
				"go.os": {Value: "linux"},
			}},
		},
	}
	var buf bytes.Buffer
	if err := printEnv(&buf, env, ""); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if lines[0] != "Active Profiles: []" {
		t.Fatalf("profiles line = %q", lines[0])
	}
	got := make([]string, 0, len(lines))
	for _, l := range lines[2:] {
		got = append(got, strings.Join(strings.Fields(l), " "))
	}
	want := []string{
		"NAME VALUE ORIGIN",
		`app.info.motd line1\nline2 /etc/taskbeat.yaml`,
		"app.name taskbeat /etc/taskbeat.yaml",
		"scheduler.timezone UTC /etc/taskbeat.yaml",
		"go.os linux runtime",
	}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("env table =\n%s", buf.String())
	}

	buf.Reset()
	if err := printEnv(&buf, env, "go."); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "go.os") || strings.Contains(buf.String(), "app.name") {
		t.Fatalf("filtered env =\n%s", buf.String())
	}
}

func TestPrintEnvProperty(t *testing.T) {
	p := &management.EnvProperty{
		Property: management.PropertyValue{Source: "config: /etc/taskbeat.yaml", Value: float64(8081)},
		PropertySources: []management.PropertySourceRef{
			{Name: "config: /etc/taskbeat.yaml", Property: &management.PropertyDetails{Value: float64(8081), Origin: "/etc/taskbeat.yaml"}},
			{Name: "defaults"},
		},
	}
	var buf bytes.Buffer
	if err := printEnvProperty(&buf, "management.port", p); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, s := range []string{"NAME:", "management.port", "VALUE:", "8081", "SOURCE:", "ORIGIN:"} {
		if !strings.Contains(out, s) {
			t.Fatalf("missing %q in:\n%s", s, out)
		}
	}
}

func TestPrintRaw(t *testing.T) {
	var buf bytes.Buffer
	if err := printRaw(&buf, []byte("{\"a\":[1,2]}\n")); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "{\n  \"a\": [\n    1,\n    2\n  ]\n}\n" {
		t.Fatalf("indented = %q", buf.String())
	}

	buf.Reset()
	text := "# HELP x\nx 1\n"
	if err := printRaw(&buf, []byte(text)); err != nil {
		t.Fatal(err)
	}
	if buf.String() != text {
		t.Fatalf("text = %q", buf.String())
	}
}
