package config

import (
	"reflect"
	"sort"
	"strings"

	logx "taskbeat/pkg/logx"
)

// SummarizeConfigChange returns (1) a compact list of changed sections,
// (2) safe structured attrs for logging (never includes secrets like tokens),
// and (3) the names of tasks whose overrides changed.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 20)

	if !reflect.DeepEqual(oldCfg.App, newCfg.App) {
		changed = append(changed, "app")
		attrs = append(attrs, logx.String("app.name", newCfg.App.Name))
	}

	ol, nl := oldCfg.Logging, newCfg.Logging
	if ol.Level != nl.Level ||
		ol.Console != nl.Console ||
		ol.File.Enabled != nl.File.Enabled ||
		strings.TrimSpace(ol.File.Path) != strings.TrimSpace(nl.File.Path) ||
		!reflect.DeepEqual(ol.Levels, nl.Levels) ||
		ol.ErrorMirror != nl.ErrorMirror {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", nl.Level),
			logx.Bool("logging.console", nl.Console),
			logx.Bool("logging.file_enabled", nl.File.Enabled),
			logx.Int("logging.levels_count", len(nl.Levels)),
			logx.Bool("logging.error_mirror", nl.ErrorMirror.Enabled),
		)
	}

	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Bool("scheduler.enabled", newCfg.Scheduler.Enabled),
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
			logx.String("scheduler.task_timeout", strings.TrimSpace(newCfg.Scheduler.TaskTimeout)),
			logx.String("scheduler.shutdown_timeout", strings.TrimSpace(newCfg.Scheduler.ShutdownTimeout)),
		)
	}

	// Management (never log token)
	om, nm := oldCfg.Management, newCfg.Management
	om.Token, nm.Token = tokenMarker(om.Token), tokenMarker(nm.Token)
	if om != nm {
		changed = append(changed, "management")
		attrs = append(attrs,
			logx.Bool("management.enabled", nm.Enabled),
			logx.String("management.addr", strings.TrimSpace(nm.Addr)),
			logx.String("management.base_path", strings.TrimSpace(nm.BasePath)),
			logx.Bool("management.token_set", nm.Token != ""),
			logx.Bool("management.allow_insecure", nm.AllowInsecure),
			logx.Bool("management.pprof", nm.Pprof),
		)
	}

	// Storage. Nil means disabled.
	var oS, nS StorageConfig
	if oldCfg.Storage != nil {
		oS = *oldCfg.Storage
	}
	if newCfg.Storage != nil {
		nS = *newCfg.Storage
	}
	if oS != nS {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(nS.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(nS.Path) != ""),
			logx.String("storage.busy_timeout", strings.TrimSpace(nS.BusyTimeout)),
		)
	}

	taskChanged := diffTasks(oldCfg.Tasks, newCfg.Tasks)
	if len(taskChanged) > 0 {
		changed = append(changed, "tasks")
		attrs = append(attrs, logx.Int("tasks.changed_count", len(taskChanged)))
	}

	sort.Strings(changed)
	return changed, attrs, taskChanged
}

// tokenMarker keeps only whether a token is set.
func tokenMarker(tok string) string {
	if strings.TrimSpace(tok) == "" {
		return ""
	}
	return "set"
}

func diffTasks(oldM, newM map[string]TaskConfig) []string {
	set := map[string]struct{}{}
	for k := range oldM {
		set[k] = struct{}{}
	}
	for k := range newM {
		set[k] = struct{}{}
	}

	out := make([]string, 0, len(set))
	for name := range set {
		o, n := oldM[name], newM[name]
		if o.IsEnabled() != n.IsEnabled() {
			out = append(out, name)
			continue
		}
		o.Enabled, n.Enabled = nil, nil
		if o != n {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
