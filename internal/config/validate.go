package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	logx "taskbeat/pkg/logx"
)

// Validate checks values that can be verified without building components.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error

	if _, ok := logx.ParseLevel(cfg.Logging.Level); !ok {
		errs = append(errs, fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level))
	}
	for name, lvl := range cfg.Logging.Levels {
		if _, ok := logx.ParseLevel(lvl); !ok {
			errs = append(errs, fmt.Errorf("logging.levels.%s: unknown level %q", name, lvl))
		}
	}

	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("scheduler.timezone: %w", err))
		}
	}
	errs = appendDurErr(errs, "scheduler.task_timeout", cfg.Scheduler.TaskTimeout)
	errs = appendDurErr(errs, "scheduler.shutdown_timeout", cfg.Scheduler.ShutdownTimeout)

	for name, t := range cfg.Tasks {
		set := 0
		for _, v := range []string{t.Cron, string(t.FixedDelay), string(t.FixedRate)} {
			if strings.TrimSpace(v) != "" {
				set++
			}
		}
		if set > 1 {
			errs = append(errs, fmt.Errorf("tasks.%s: set only one of cron, fixed_delay, fixed_rate", name))
		}
		if strings.TrimSpace(t.Cron) != "" && strings.TrimSpace(string(t.InitialDelay)) != "" {
			errs = append(errs, fmt.Errorf("tasks.%s: initial_delay cannot be combined with cron", name))
		}
		errs = appendDurErr(errs, "tasks."+name+".timeout", t.Timeout)
	}

	m := cfg.Management
	if m.Enabled && strings.TrimSpace(m.Addr) == "" {
		errs = append(errs, errors.New("management.addr: required when management is enabled"))
	}
	if bp := strings.TrimSpace(m.BasePath); bp != "" && !strings.HasPrefix(bp, "/") {
		errs = append(errs, fmt.Errorf("management.base_path: must start with '/' (got %q)", bp))
	}
	if m.RatePerSec < 0 {
		errs = append(errs, errors.New("management.rate_per_sec: must be >= 0"))
	}
	errs = appendDurErr(errs, "management.read_timeout", m.ReadTimeout)
	errs = appendDurErr(errs, "management.write_timeout", m.WriteTimeout)
	errs = appendDurErr(errs, "management.idle_timeout", m.IdleTimeout)

	if s := cfg.Storage; s != nil {
		switch strings.ToLower(strings.TrimSpace(s.Driver)) {
		case "", "none", "file", "sqlite":
		default:
			errs = append(errs, fmt.Errorf("storage.driver: unsupported driver %q", s.Driver))
		}
		errs = appendDurErr(errs, "storage.busy_timeout", s.BusyTimeout)
		errs = appendDurErr(errs, "storage.retention", s.Retention)
	}

	return errors.Join(errs...)
}

func appendDurErr(errs []error, path, raw string) []error {
	if _, err := ParseDurationField(path, raw); err != nil {
		return append(errs, err)
	}
	return errs
}
