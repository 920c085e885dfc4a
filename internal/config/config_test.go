package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"
)

func TestParseEmptyPathUsesDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := NewConfigManager("").Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Scheduler.Enabled || cfg.Management.Addr != DefaultManagementAddr || cfg.Logging.Level != "INFO" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestDecodeYAMLOntoDefaults(t *testing.T) {
	t.Parallel()
	src := `
logging:
  level: DEBUG
  levels:
    scheduler: TRACE
scheduler:
  timezone: UTC
tasks:
  fixedDelayTask:
    fixed_delay: 60000
  fixedRateTask:
    fixed_rate: "10m"
    enabled: false
storage:
  driver: sqlite
  path: ./x.db
`
	cfg, err := Decode("taskbeat.yaml", []byte(src))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.Logging.Level != "DEBUG" || cfg.Logging.Levels["scheduler"] != "TRACE" {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
	// Untouched sections keep defaults.
	if !cfg.Logging.Console || cfg.Management.BasePath != DefaultBasePath {
		t.Fatalf("defaults lost: %+v", cfg)
	}
	if got := cfg.Tasks["fixedDelayTask"].FixedDelay; got != "60000" {
		t.Fatalf("fixed_delay = %q, want 60000", got)
	}
	if cfg.Tasks["fixedRateTask"].IsEnabled() {
		t.Fatal("fixedRateTask should be disabled")
	}
	if cfg.Storage == nil || cfg.Storage.Driver != "sqlite" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	if _, err := Decode("c.json", []byte(`{"scheduler":{"workers":3}}`)); err == nil {
		t.Fatal("expected unknown field error")
	}
	if _, err := Decode("c.json", []byte(`{} {}`)); err == nil {
		t.Fatal("expected trailing data error")
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	t.Parallel()
	cfg := Default()
	cfg.Logging.Level = "LOUD"
	cfg.Scheduler.Timezone = "Mars/Olympus"
	cfg.Scheduler.TaskTimeout = "soon"
	cfg.Tasks = map[string]TaskConfig{"cronTask": {Cron: "0 * * * * *", FixedDelay: "5m"}}
	cfg.Management.BasePath = "actuator"
	cfg.Storage = &StorageConfig{Driver: "redis"}

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected errors")
	}
	for _, want := range []string{"logging.level", "scheduler.timezone", "scheduler.task_timeout", "tasks.cronTask", "management.base_path", "storage.driver"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	a := Default()
	b := Default()
	b.Management.Token = "secret"
	b.Scheduler.Timezone = "UTC"
	b.Tasks = map[string]TaskConfig{"cronTask": {Cron: "*/5 * * * * *"}}

	sections, attrs, tasks := SummarizeConfigChange(a, b)
	if strings.Join(sections, ",") != "management,scheduler,tasks" {
		t.Fatalf("sections = %v", sections)
	}
	if len(attrs) == 0 {
		t.Fatal("expected attrs")
	}
	if len(tasks) != 1 || tasks[0] != "cronTask" {
		t.Fatalf("tasks = %v", tasks)
	}

	if s, _, _ := SummarizeConfigChange(a, Default()); len(s) != 0 {
		t.Fatalf("identical configs reported changes: %v", s)
	}
}

func TestWatchPublishesOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "taskbeat.json")
	if err := os.WriteFile(path, []byte(`{"scheduler":{"timezone":"UTC"}}`), 0o600); err != nil {
		t.Fatal(err)
	}

	m := NewConfigManager(path)
	m.debounce = 10 * time.Millisecond
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Watch(ctx)
	}()

	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		// Rewrite until the watcher (which may still be starting) notices.
		_ = os.WriteFile(path, []byte(`{"scheduler":{"timezone":"Asia/Jakarta"}}`), 0o600)
		select {
		case cfg := <-ch:
			if cfg.Scheduler.Timezone != "Asia/Jakarta" {
				t.Fatalf("timezone = %q", cfg.Scheduler.Timezone)
			}
			if m.Get().Scheduler.Timezone != "Asia/Jakarta" {
				t.Fatal("Get did not return committed config")
			}
			cancel()
			<-done
			return
		case <-tick.C:
		case <-deadline:
			t.Fatal("no config published")
		}
	}
}

func TestReloadRejectsInvalid(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "c.json")
	if err := os.WriteFile(path, []byte(`{}`), 0o600); err != nil {
		t.Fatal(err)
	}
	m := NewConfigManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(`{"logging":{"level":"LOUD"}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if ok, err := m.Reload(context.Background()); ok || err == nil {
		t.Fatalf("Reload = %v, %v; want rejection", ok, err)
	}
	if m.Get().Logging.Level != "INFO" {
		t.Fatal("rejected config was committed")
	}
}
