package management

// Wire types shared by the server handlers and Client. Field names follow the
// actuator JSON layout so existing actuator tooling can read them.

type Link struct {
	Href      string `json:"href"`
	Templated bool   `json:"templated"`
}

type Index struct {
	Links map[string]Link `json:"_links"`
}

type HealthComponent struct {
	Status     string                     `json:"status"`
	Components map[string]HealthComponent `json:"components,omitempty"`
	Details    map[string]any             `json:"details,omitempty"`
}

type Health struct {
	Status     string                     `json:"status"`
	Components map[string]HealthComponent `json:"components"`
}

const (
	StatusUp      = "UP"
	StatusDown    = "DOWN"
	StatusUnknown = "UNKNOWN"
)

type ScheduledTasks struct {
	Cron       []CronTask          `json:"cron"`
	FixedDelay []FixedIntervalTask `json:"fixedDelay"`
	FixedRate  []FixedIntervalTask `json:"fixedRate"`
	Custom     []CustomTask        `json:"custom"`
}

type Runnable struct {
	Target string `json:"target"`
}

type TimeOnly struct {
	Time string `json:"time"`
}

type Exception struct {
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
}

type LastExecution struct {
	Time      string     `json:"time"`
	Status    string     `json:"status,omitempty"`
	Exception *Exception `json:"exception,omitempty"`
}

type CronTask struct {
	Runnable      Runnable       `json:"runnable"`
	Expression    string         `json:"expression"`
	NextExecution *TimeOnly      `json:"nextExecution,omitempty"`
	LastExecution *LastExecution `json:"lastExecution,omitempty"`
}

// FixedIntervalTask describes fixed-delay and fixed-rate tasks. Durations are
// milliseconds.
type FixedIntervalTask struct {
	Runnable      Runnable       `json:"runnable"`
	InitialDelay  int64          `json:"initialDelay"`
	Interval      int64          `json:"interval"`
	NextExecution *TimeOnly      `json:"nextExecution,omitempty"`
	LastExecution *LastExecution `json:"lastExecution,omitempty"`
}

type CustomTask struct {
	Runnable      Runnable       `json:"runnable"`
	Trigger       string         `json:"trigger,omitempty"`
	NextExecution *TimeOnly      `json:"nextExecution,omitempty"`
	LastExecution *LastExecution `json:"lastExecution,omitempty"`
}

// ExecutionRecord is one entry of a task's execution history.
type ExecutionRecord struct {
	Task       string `json:"task"`
	Scheduled  string `json:"scheduled,omitempty"`
	Started    string `json:"started"`
	DurationMs int64  `json:"durationMs"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
}

type Executions struct {
	Task       string            `json:"task"`
	Executions []ExecutionRecord `json:"executions"`
}

// LoggerLevels is one logger row. ConfiguredLevel is nil when inherited.
type LoggerLevels struct {
	ConfiguredLevel *string `json:"configuredLevel"`
	EffectiveLevel  *string `json:"effectiveLevel"`
}

type Loggers struct {
	Levels  []string                `json:"levels"`
	Loggers map[string]LoggerLevels `json:"loggers"`
}

// SetLevelRequest is the loggers POST body; a nil level resets the logger.
type SetLevelRequest struct {
	ConfiguredLevel *string `json:"configuredLevel"`
}

type MetricNames struct {
	Names []string `json:"names"`
}

type errorBody struct {
	Status  int    `json:"status"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Path    string `json:"path,omitempty"`
}

type Env struct {
	ActiveProfiles  []string         `json:"activeProfiles"`
	PropertySources []PropertySource `json:"propertySources"`
}

type PropertySource struct {
	Name       string                     `json:"name"`
	Properties map[string]PropertyDetails `json:"properties"`
}

type PropertyDetails struct {
	Value  any    `json:"value"`
	Origin string `json:"origin,omitempty"`
}

// EnvProperty is the /env/{name} body: the winning value plus every source
// that defines the property.
type EnvProperty struct {
	Property        PropertyValue       `json:"property"`
	ActiveProfiles  []string            `json:"activeProfiles"`
	DefaultProfiles []string            `json:"defaultProfiles"`
	PropertySources []PropertySourceRef `json:"propertySources"`
}

type PropertyValue struct {
	Source string `json:"source"`
	Value  any    `json:"value"`
}

type PropertySourceRef struct {
	Name     string           `json:"name"`
	Property *PropertyDetails `json:"property,omitempty"`
}

type ThreadDump struct {
	Threads []Thread `json:"threads"`
}

// Thread is one goroutine in actuator thread layout.
type Thread struct {
	ThreadName    string       `json:"threadName"`
	ThreadID      int64        `json:"threadId"`
	ThreadState   string       `json:"threadState"`
	BlockedCount  int64        `json:"blockedCount"`
	BlockedTime   int64        `json:"blockedTime"`
	WaitedCount   int64        `json:"waitedCount"`
	WaitedTime    int64        `json:"waitedTime"`
	LockOwnerID   int64        `json:"lockOwnerId"`
	Daemon        bool         `json:"daemon"`
	InNative      bool         `json:"inNative"`
	Suspended     bool         `json:"suspended"`
	Priority      int          `json:"priority"`
	StackTrace    []StackFrame `json:"stackTrace"`
	WaitReason    string       `json:"waitReason,omitempty"`
	WaitedMinutes int          `json:"waitedMinutes,omitempty"`
}

type StackFrame struct {
	ClassName    string  `json:"className"`
	MethodName   string  `json:"methodName"`
	FileName     *string `json:"fileName"`
	LineNumber   *int    `json:"lineNumber"`
	NativeMethod bool    `json:"nativeMethod"`
}
