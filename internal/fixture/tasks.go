// Package fixture holds the built-in scheduled tasks: four independently
// triggered jobs that each log one line per firing.
package fixture

import (
	"context"
	"time"

	"taskbeat/internal/task/trigger"
	logx "taskbeat/pkg/logx"
)

// Task names, as used in config overrides and the scheduledtasks endpoint.
const (
	CronTaskName                       = "cronTask"
	FixedDelayTaskName                 = "fixedDelayTask"
	FixedRateTaskName                  = "fixedRateTask"
	FixedDelayWithInitialDelayTaskName = "fixedDelayWithInitialDelayTask"
)

// Built-in triggers.
const (
	CronExpression     = "0 * * * * *"
	FixedDelayInterval = 300_000 * time.Millisecond
	FixedRateInterval  = 1_800_000 * time.Millisecond
	InitialDelay       = 900_000 * time.Millisecond
	LongFixedDelay     = 43_200_000 * time.Millisecond
)

const targetPrefix = "fixture.ScheduledTasks."

// ScheduledTasks holds the task bodies. Tasks share no state; each call
// writes exactly one INFO line.
type ScheduledTasks struct {
	log logx.Logger
}

func New(log logx.Logger) *ScheduledTasks {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &ScheduledTasks{log: log}
}

func (t *ScheduledTasks) CronTask(context.Context) error {
	t.log.Info("Executing cron task")
	return nil
}

func (t *ScheduledTasks) FixedDelayTask(context.Context) error {
	t.log.Info("Executing fixed delay task")
	return nil
}

func (t *ScheduledTasks) FixedRateTask(context.Context) error {
	t.log.Info("Executing fixed rate task")
	return nil
}

func (t *ScheduledTasks) FixedDelayWithInitialDelayTask(context.Context) error {
	t.log.Info("Executing fixed delay with initial delay task")
	return nil
}

type builtin struct {
	name    string
	trigger trigger.Trigger
	run     func(*ScheduledTasks, context.Context) error
}

func builtins() []builtin {
	return []builtin{
		{CronTaskName, trigger.MustCron(CronExpression), (*ScheduledTasks).CronTask},
		{FixedDelayTaskName, trigger.FixedDelay(FixedDelayInterval), (*ScheduledTasks).FixedDelayTask},
		{FixedRateTaskName, trigger.FixedRate(FixedRateInterval), (*ScheduledTasks).FixedRateTask},
		{FixedDelayWithInitialDelayTaskName, trigger.FixedDelay(LongFixedDelay).WithInitialDelay(InitialDelay), (*ScheduledTasks).FixedDelayWithInitialDelayTask},
	}
}

// Names lists the built-in task names in registration order.
func Names() []string {
	bs := builtins()
	out := make([]string, len(bs))
	for i, b := range bs {
		out[i] = b.name
	}
	return out
}
