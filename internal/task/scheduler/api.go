package scheduler

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"taskbeat/internal/task"
	logx "taskbeat/pkg/logx"
)

// Register adds a task, replacing any task with the same name. When the
// scheduler is running the task's loop starts immediately; otherwise it
// starts with Start.
func (s *Service) Register(reg Registration) error {
	reg.Name = strings.TrimSpace(reg.Name)
	if reg.Name == "" {
		return errors.New("task name required")
	}
	if reg.Job == nil {
		return fmt.Errorf("task %s: job required", reg.Name)
	}
	if err := reg.Trigger.Validate(); err != nil {
		return fmt.Errorf("task %s: %w", reg.Name, err)
	}
	if reg.Target == "" {
		reg.Target = reg.Name
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e := &entry{reg: reg}
	if old, ok := s.tasks[reg.Name]; ok {
		s.haltLocked(old)
		e.last = old.last
	} else if ex, ok := s.seeded[reg.Name]; ok {
		e.last = &ex
	}
	s.tasks[reg.Name] = e

	if s.sup != nil {
		s.launchLocked(e, s.clock.Now().In(s.loc))
	}
	s.log.Debug("task registered",
		logx.String("task", reg.Name),
		logx.String("trigger", reg.Trigger.String()),
		logx.Time("next", e.next),
	)
	return nil
}

// Remove unregisters a task and cancels its loop. It reports whether the task existed.
func (s *Service) Remove(name string) bool {
	name = strings.TrimSpace(name)
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.tasks[name]
	if !ok {
		return false
	}
	s.haltLocked(e)
	delete(s.tasks, name)
	s.log.Debug("task removed", logx.String("task", name))
	return true
}

// Seed restores last-execution state, typically loaded from storage at
// startup. Seeds for tasks not yet registered apply when they register.
func (s *Service) Seed(execs []task.Execution) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ex := range execs {
		ex := ex
		s.seeded[ex.Task] = ex
		if e, ok := s.tasks[ex.Task]; ok && e.last == nil {
			e.last = &ex
		}
	}
}

// History returns up to limit recent executions (newest first), optionally
// filtered by task name.
func (s *Service) History(name string, limit int) []task.Execution {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	out := make([]task.Execution, 0, min(max(limit, 0), len(s.history)))
	for i := len(s.history) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		if name != "" && s.history[i].Task != name {
			continue
		}
		out = append(out, s.history[i])
	}
	return out
}

func (s *Service) haltLocked(e *entry) {
	e.gen++
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.next = time.Time{}
}
