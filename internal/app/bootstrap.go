package app

import (
	"time"

	"taskbeat/internal/config"
	"taskbeat/internal/management"
	"taskbeat/internal/task/scheduler"
	logx "taskbeat/pkg/logx"
)

// Config mappers turn the file config into component configs. They are also
// run by the reload validator so a bad reload is rejected before commit.

func mapLogConfig(cfg *config.Config) logx.Config {
	l := cfg.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File: logx.FileConfig{
			Enabled: l.File.Enabled,
			Path:    l.File.Path,
		},
		Levels: l.Levels,
		ErrorMirror: logx.ErrorMirrorConfig{
			Enabled:    l.ErrorMirror.Enabled,
			RatePerSec: l.ErrorMirror.RatePerSec,
		},
	}
}

func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	sc := cfg.Scheduler
	timeout, err := config.ParseDurationField("scheduler.task_timeout", sc.TaskTimeout)
	if err != nil {
		return scheduler.Config{}, err
	}
	if _, err := scheduler.LoadLocation(sc.Timezone); err != nil {
		return scheduler.Config{}, err
	}
	history := sc.HistorySize
	if history <= 0 {
		history = 200
	}
	return scheduler.Config{
		Enabled:     sc.Enabled,
		Timezone:    sc.Timezone,
		TaskTimeout: timeout,
		HistorySize: history,
	}, nil
}

func mapManagementConfig(cfg *config.Config) (management.Config, error) {
	m := cfg.Management
	read, err := config.ParseDurationField("management.read_timeout", m.ReadTimeout)
	if err != nil {
		return management.Config{}, err
	}
	write, err := config.ParseDurationField("management.write_timeout", m.WriteTimeout)
	if err != nil {
		return management.Config{}, err
	}
	idle, err := config.ParseDurationField("management.idle_timeout", m.IdleTimeout)
	if err != nil {
		return management.Config{}, err
	}
	return management.Config{
		Enabled:       m.Enabled,
		Addr:          m.Addr,
		BasePath:      m.BasePath,
		Token:         m.Token,
		AllowInsecure: m.AllowInsecure,
		Pprof:         m.Pprof,
		RatePerSec:    m.RatePerSec,
		ReadTimeout:   read,
		WriteTimeout:  write,
		IdleTimeout:   idle,
	}, nil
}

// ShutdownTimeout bounds App.Stop.
func ShutdownTimeout(cfg *config.Config) time.Duration {
	d, err := config.ParseDurationOrDefault("scheduler.shutdown_timeout", cfg.Scheduler.ShutdownTimeout, 10*time.Second)
	if err != nil {
		return 10 * time.Second
	}
	return d
}
