// Package trigger models when a scheduled task fires.
//
// Three kinds are supported:
//   - cron: a robfig/cron expression (6 fields with seconds, 5 fields, or a
//     descriptor such as "@hourly"). Fires on every match.
//   - fixed-delay: the next run starts Interval after the previous run completed.
//   - fixed-rate: runs start every Interval measured from the previous start.
//     A run that overruns its slot causes one immediate run, never a burst.
//
// Fixed kinds may declare an InitialDelay for the first run; without one the
// first run happens one Interval after the scheduler starts.
package trigger

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Kind is the trigger type.
type Kind string

const (
	KindCron       Kind = "cron"
	KindFixedDelay Kind = "fixed-delay"
	KindFixedRate  Kind = "fixed-rate"
)

// ErrInvalidTrigger is returned (wrapped) for malformed triggers.
var ErrInvalidTrigger = errors.New("invalid trigger")

var parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Trigger describes when a task fires. Build it with Cron, FixedDelay,
// FixedRate or Parse.
type Trigger struct {
	Kind         Kind
	Expression   string
	Interval     time.Duration
	InitialDelay time.Duration

	sched cron.Schedule
}

// Cron returns a cron trigger for expr.
func Cron(expr string) (Trigger, error) {
	t := Trigger{Kind: KindCron, Expression: expr}
	if err := t.Validate(); err != nil {
		return Trigger{}, err
	}
	return t, nil
}

// MustCron is like Cron but panics on a malformed expression.
func MustCron(expr string) Trigger {
	t, err := Cron(expr)
	if err != nil {
		panic(err)
	}
	return t
}

func FixedDelay(interval time.Duration) Trigger {
	return Trigger{Kind: KindFixedDelay, Interval: interval}
}

func FixedRate(interval time.Duration) Trigger {
	return Trigger{Kind: KindFixedRate, Interval: interval}
}

// WithInitialDelay returns a copy of t whose first run is deferred by d.
func (t Trigger) WithInitialDelay(d time.Duration) Trigger {
	t.InitialDelay = d
	return t
}

// Validate checks the trigger and, for cron, compiles the expression.
func (t *Trigger) Validate() error {
	switch t.Kind {
	case KindCron:
		if t.Expression == "" {
			return fmt.Errorf("%w: cron expression required", ErrInvalidTrigger)
		}
		if t.InitialDelay != 0 {
			return fmt.Errorf("%w: initial delay is not supported for cron triggers", ErrInvalidTrigger)
		}
		s, err := parser.Parse(t.Expression)
		if err != nil {
			return fmt.Errorf("%w: cron %q: %v", ErrInvalidTrigger, t.Expression, err)
		}
		t.sched = s
	case KindFixedDelay, KindFixedRate:
		if t.Interval <= 0 {
			return fmt.Errorf("%w: %s interval must be > 0", ErrInvalidTrigger, t.Kind)
		}
		if t.InitialDelay < 0 {
			return fmt.Errorf("%w: initial delay must be >= 0", ErrInvalidTrigger)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidTrigger, t.Kind)
	}
	return nil
}

func (t Trigger) schedule() cron.Schedule {
	if t.sched != nil {
		return t.sched
	}
	s, err := parser.Parse(t.Expression)
	if err != nil {
		return nil
	}
	return s
}

// First returns the first fire time for a scheduler started at start.
// Cron times are computed in start's location. A zero time means the
// trigger is invalid or never fires.
func (t Trigger) First(start time.Time) time.Time {
	switch t.Kind {
	case KindCron:
		s := t.schedule()
		if s == nil {
			return time.Time{}
		}
		return s.Next(start)
	case KindFixedDelay, KindFixedRate:
		if t.InitialDelay > 0 {
			return start.Add(t.InitialDelay)
		}
		return start.Add(t.Interval)
	}
	return time.Time{}
}

// Next returns the fire time following a run that was scheduled for
// scheduled and completed at completed.
func (t Trigger) Next(scheduled, completed time.Time) time.Time {
	switch t.Kind {
	case KindCron:
		s := t.schedule()
		if s == nil {
			return time.Time{}
		}
		base := scheduled
		if completed.After(base) {
			base = completed
		}
		return s.Next(base)
	case KindFixedDelay:
		return completed.Add(t.Interval)
	case KindFixedRate:
		next := scheduled.Add(t.Interval)
		if next.After(completed) {
			return next
		}
		// Overran: run once now, staying on the rate grid.
		missed := completed.Sub(scheduled) / t.Interval
		return scheduled.Add(missed * t.Interval)
	}
	return time.Time{}
}

func (t Trigger) String() string {
	switch t.Kind {
	case KindCron:
		return "cron(" + t.Expression + ")"
	case KindFixedDelay, KindFixedRate:
		if t.InitialDelay > 0 {
			return fmt.Sprintf("%s(%s, initial %s)", t.Kind, t.Interval, t.InitialDelay)
		}
		return fmt.Sprintf("%s(%s)", t.Kind, t.Interval)
	}
	return string(t.Kind)
}
