package scheduler

import (
	"context"
	"strings"
	"time"

	"taskbeat/internal/clock"
	"taskbeat/internal/eventbus"
	"taskbeat/internal/runtime/supervisor"
	"taskbeat/internal/task"
	logx "taskbeat/pkg/logx"
)

func New(cfg Config, clk clock.Clock, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Service{
		cfg:    cfg,
		log:    log,
		bus:    bus,
		clock:  clk,
		tasks:  map[string]*entry{},
		seeded: map[string]task.Execution{},
	}
}

// Enabled reports the current config flag.
func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Running reports whether task loops are active.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sup != nil
}

// Apply swaps the config. A timezone change restarts the task loops so cron
// triggers are recomputed in the new location.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	oldTZ := strings.TrimSpace(s.cfg.Timezone)
	newTZ := strings.TrimSpace(cfg.Timezone)
	s.cfg = cfg

	if s.sup == nil || oldTZ == newTZ {
		return
	}
	s.loc = s.loadLocationLocked()
	now := s.clock.Now().In(s.loc)
	for _, e := range s.tasks {
		s.launchLocked(e, now)
	}
	s.log.Info("timezone changed, task loops restarted", logx.String("tz", s.loc.String()))
}

// Start launches one loop per registered task. It is a no-op when the
// scheduler is disabled or already running. Loops stop when ctx is canceled
// or Stop is called.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil {
		return
	}
	if !s.cfg.Enabled {
		s.log.Info("scheduler disabled; tasks will not run")
		return
	}

	s.loc = s.loadLocationLocked()
	s.sup = supervisor.New(ctx, supervisor.WithLogger(s.log))
	s.started = s.clock.Now().In(s.loc)
	for _, e := range s.tasks {
		s.launchLocked(e, s.started)
	}
	s.log.Info("scheduler started", logx.String("tz", s.loc.String()), logx.Int("tasks", len(s.tasks)))
}

// Stop cancels every task loop and waits for them, bounded by ctx.
// Registrations are kept so a later Start resumes them.
func (s *Service) Stop(ctx context.Context) error {
	start := time.Now()

	s.mu.Lock()
	sup := s.sup
	s.sup = nil
	for _, e := range s.tasks {
		s.haltLocked(e)
	}
	s.mu.Unlock()

	if sup == nil {
		return nil
	}
	s.log.Info("stop requested")
	err := sup.Stop(ctx)
	s.log.Info("scheduler stopped", logx.Duration("took", time.Since(start)))
	return err
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; using local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

// LoadLocation validates an IANA timezone name ("" is local time).
func LoadLocation(tz string) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.Local, nil
	}
	return time.LoadLocation(tz)
}
