package app

import (
	"context"
	"slices"
	"strings"
	"time"

	"taskbeat/internal/config"
	"taskbeat/internal/eventbus"
	"taskbeat/internal/fixture"
	"taskbeat/internal/task/scheduler"
	logx "taskbeat/pkg/logx"
)

// reloadLoop applies published configs until ctx is done.
func (a *App) reloadLoop(c context.Context, sub chan *config.Config) {
	// Track last applied config to generate a safe diff summary.
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-c.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config in the channel.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					break drain
				}
			}
			a.applyConfig(c, lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

func (a *App) applyConfig(c context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs, tasksChanged := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Debug("config change summary", fields...)

	if slices.Contains(sections, "storage") {
		a.log.Warn("storage config changed; restart required for changes to take effect")
	}

	// Runtime level overrides set via the loggers endpoint are replaced here.
	if slices.Contains(sections, "logging") {
		a.logs.Apply(mapLogConfig(newCfg))
	}

	if slices.Contains(sections, "scheduler") {
		a.applyScheduler(c, newCfg)
	}

	if len(tasksChanged) > 0 {
		a.applyTasks(newCfg, tasksChanged)
	}

	if slices.Contains(sections, "management") {
		mc, err := mapManagementConfig(newCfg)
		if err != nil {
			a.log.Warn("invalid management config; keeping previous", logx.Err(err))
		} else if err := a.mgmt.Reconfigure(c, mc); err != nil {
			a.log.Error("management reconfigure failed", logx.Err(err))
		}
	}

	a.bus.Publish(eventbus.Event{Type: eventbus.ConfigReloaded, Time: a.clock.Now(), Data: sections})
	a.log.Info("config reloaded", fields...)
}

func (a *App) applyScheduler(c context.Context, cfg *config.Config) {
	sc, err := mapSchedulerConfig(cfg)
	if err != nil {
		a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
		return
	}
	a.sched.Apply(sc)
	switch {
	case sc.Enabled && !a.sched.Running():
		a.sched.Start(a.sup.Context())
	case !sc.Enabled && a.sched.Running():
		stopCtx, cancel := context.WithTimeout(c, 3*time.Second)
		defer cancel()
		if err := a.sched.Stop(stopCtx); err != nil {
			a.log.Warn("scheduler stop incomplete", logx.Err(err))
		}
	}
}

// applyTasks re-registers changed tasks with their new overrides and
// removes the ones that are now disabled.
func (a *App) applyTasks(cfg *config.Config, names []string) {
	regs, err := fixture.Registrations(a.tasks, cfg.Tasks)
	if err != nil {
		a.log.Warn("invalid task overrides; keeping previous", logx.Err(err))
		return
	}
	for _, name := range names {
		idx := slices.IndexFunc(regs, func(r scheduler.Registration) bool { return r.Name == name })
		if idx < 0 {
			if a.sched.Remove(name) {
				a.log.Info("task disabled", logx.String("task", name))
			}
			continue
		}
		if err := a.sched.Register(regs[idx]); err != nil {
			a.log.Warn("task re-register failed", logx.String("task", name), logx.Err(err))
			continue
		}
		a.log.Info("task rescheduled", logx.String("task", name), logx.String("trigger", regs[idx].Trigger.String()))
	}
}
