package config

// Config is the taskbeat configuration file (JSON or YAML).
//
// Every section is optional; omitted fields keep the values from Default().
type Config struct {
	App        AppConfig        `json:"app"`
	Logging    LoggingConfig    `json:"logging"`
	Scheduler  SchedulerConfig  `json:"scheduler"`
	Management ManagementConfig `json:"management"`

	// Tasks overrides the triggers of the built-in tasks, keyed by task name
	// ("cronTask", "fixedDelayTask", ...).
	Tasks map[string]TaskConfig `json:"tasks,omitempty"`

	// Storage enables the execution history store. Nil means disabled.
	Storage *StorageConfig `json:"storage,omitempty"`
}

type AppConfig struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	// Info is free-form metadata served under "app" by the info endpoint.
	Info map[string]string `json:"info,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
	// Levels sets per-logger levels, e.g. {"scheduler": "DEBUG"}.
	Levels      map[string]string  `json:"levels,omitempty"`
	ErrorMirror LoggingErrorMirror `json:"error_mirror"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingErrorMirror copies ERROR lines to stderr when console output is off.
type LoggingErrorMirror struct {
	Enabled    bool `json:"enabled"`
	RatePerSec int  `json:"rate_per_sec"`
}

// SchedulerConfig controls the scheduler service.
//
// Durations are Go duration strings (e.g. "500ms", "10s", "1m").
type SchedulerConfig struct {
	Enabled bool `json:"enabled"`

	// Trigger timezone (IANA). Empty means local time.
	Timezone string `json:"timezone,omitempty"`

	// TaskTimeout bounds each run. "0s" disables.
	TaskTimeout string `json:"task_timeout,omitempty"`

	// ShutdownTimeout bounds the whole app stop sequence.
	ShutdownTimeout string `json:"shutdown_timeout,omitempty"`

	HistorySize int `json:"history_size,omitempty"`
}

// TaskConfig overrides one task's trigger.
//
// At most one of Cron, FixedDelay and FixedRate may be set; it replaces the
// built-in trigger. InitialDelay alone adjusts the built-in fixed trigger.
// Intervals accept Go durations ("5m"), integer milliseconds ("300000") or HH:MM.
type TaskConfig struct {
	Enabled      *bool    `json:"enabled,omitempty"`
	Cron         string   `json:"cron,omitempty"`
	FixedDelay   Interval `json:"fixed_delay,omitempty"`
	FixedRate    Interval `json:"fixed_rate,omitempty"`
	InitialDelay Interval `json:"initial_delay,omitempty"`
	Timeout      string   `json:"timeout,omitempty"`
}

// IsEnabled reports whether the task should be registered (default true).
func (t TaskConfig) IsEnabled() bool { return t.Enabled == nil || *t.Enabled }

// ManagementConfig controls the management HTTP server (actuator endpoints).
//
// Security note:
//   - Prefer binding to localhost (the default "127.0.0.1:8081").
//   - A non-loopback address requires a token or an explicit allow_insecure.
type ManagementConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	BasePath      string `json:"base_path,omitempty"`
	Token         string `json:"token,omitempty"` // bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	// Pprof mounts /debug/pprof/ on the management server.
	Pprof bool `json:"pprof,omitempty"`

	// RatePerSec limits requests per second across all clients. 0 disables.
	RatePerSec int `json:"rate_per_sec,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

// StorageConfig controls the execution history store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./taskbeat.db" }
type StorageConfig struct {
	Driver      string `json:"driver"` // "file" | "sqlite"
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
	// Retention drops executions older than this duration at startup. Empty keeps everything.
	Retention string `json:"retention,omitempty"`
}

const (
	DefaultManagementAddr = "127.0.0.1:8081"
	DefaultBasePath       = "/actuator"
)

// Default returns the built-in configuration used when no file is given and
// as the base every config file is decoded onto.
func Default() *Config {
	return &Config{
		App: AppConfig{Name: "taskbeat"},
		Logging: LoggingConfig{
			Level:       "INFO",
			Console:     true,
			File:        LoggingFile{Path: "./taskbeat.log"},
			ErrorMirror: LoggingErrorMirror{RatePerSec: 5},
		},
		Scheduler: SchedulerConfig{
			Enabled:         true,
			TaskTimeout:     "0s",
			ShutdownTimeout: "10s",
			HistorySize:     200,
		},
		Management: ManagementConfig{
			Enabled:      true,
			Addr:         DefaultManagementAddr,
			BasePath:     DefaultBasePath,
			RatePerSec:   50,
			ReadTimeout:  "5s",
			WriteTimeout: "0s",
			IdleTimeout:  "60s",
		},
	}
}
