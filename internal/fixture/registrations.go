package fixture

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"taskbeat/internal/config"
	"taskbeat/internal/task/scheduler"
	"taskbeat/internal/task/trigger"
)

// Registrations returns the scheduler registrations for the built-in tasks
// with config overrides applied. Disabled tasks are left out. Overrides
// naming an unknown task are an error.
func Registrations(tasks *ScheduledTasks, overrides map[string]config.TaskConfig) ([]scheduler.Registration, error) {
	var errs []error
	known := map[string]bool{}
	out := make([]scheduler.Registration, 0, 4)

	for _, b := range builtins() {
		known[b.name] = true
		oc, hasOverride := overrides[b.name]
		if hasOverride && !oc.IsEnabled() {
			continue
		}
		reg := scheduler.Registration{
			Name:    b.name,
			Target:  targetPrefix + b.name,
			Trigger: b.trigger,
			Job:     func(ctx context.Context) error { return b.run(tasks, ctx) },
		}
		if hasOverride {
			tr, err := applyOverride(b.trigger, oc)
			if err != nil {
				errs = append(errs, fmt.Errorf("tasks.%s: %w", b.name, err))
				continue
			}
			reg.Trigger = tr
			reg.Timeout, err = config.ParseDurationField("tasks."+b.name+".timeout", oc.Timeout)
			if err != nil {
				errs = append(errs, err)
				continue
			}
		}
		out = append(out, reg)
	}

	var unknown []string
	for name := range overrides {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	for _, name := range unknown {
		errs = append(errs, fmt.Errorf("tasks.%s: unknown task (known: %s)", name, strings.Join(Names(), ", ")))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return out, nil
}

// applyOverride replaces def with the configured trigger. A lone
// initial_delay keeps def's kind and interval.
func applyOverride(def trigger.Trigger, oc config.TaskConfig) (trigger.Trigger, error) {
	tr := def
	switch {
	case strings.TrimSpace(oc.Cron) != "":
		var err error
		if tr, err = trigger.Cron(strings.TrimSpace(oc.Cron)); err != nil {
			return trigger.Trigger{}, err
		}
	case strings.TrimSpace(string(oc.FixedDelay)) != "":
		d, err := trigger.ParseInterval(string(oc.FixedDelay))
		if err != nil {
			return trigger.Trigger{}, fmt.Errorf("fixed_delay: %w", err)
		}
		tr = trigger.FixedDelay(d)
	case strings.TrimSpace(string(oc.FixedRate)) != "":
		d, err := trigger.ParseInterval(string(oc.FixedRate))
		if err != nil {
			return trigger.Trigger{}, fmt.Errorf("fixed_rate: %w", err)
		}
		tr = trigger.FixedRate(d)
	}

	if raw := strings.TrimSpace(string(oc.InitialDelay)); raw != "" {
		d, err := trigger.ParseInterval(raw)
		if err != nil {
			return trigger.Trigger{}, fmt.Errorf("initial_delay: %w", err)
		}
		tr = tr.WithInitialDelay(d)
	}
	if err := tr.Validate(); err != nil {
		return trigger.Trigger{}, err
	}
	return tr, nil
}
