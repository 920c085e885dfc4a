package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"taskbeat/internal/eventbus"
	"taskbeat/internal/task"
	logx "taskbeat/pkg/logx"
)

// launchLocked (re)starts the loop for e. Call with s.mu held and s.sup set.
func (s *Service) launchLocked(e *entry, start time.Time) {
	s.haltLocked(e)
	ctx, cancel := context.WithCancel(s.sup.Context())
	e.cancel = cancel
	gen := e.gen
	first := e.reg.Trigger.First(start)
	e.next = first
	s.sup.Go("task."+e.reg.Name, func(context.Context) error {
		defer cancel()
		s.loop(ctx, e, gen, first)
		return nil
	})
}

func (s *Service) loop(ctx context.Context, e *entry, gen uint64, next time.Time) {
	name := e.reg.Name
	for {
		if next.IsZero() {
			s.log.Warn("trigger has no future fire time; task loop stopped", logx.String("task", name))
			return
		}
		t := s.clock.NewTimer(next.Sub(s.clock.Now()))
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C():
		}
		if ctx.Err() != nil {
			return
		}

		s.execute(ctx, e, gen, next)
		if ctx.Err() != nil {
			return
		}

		s.mu.Lock()
		loc := s.loc
		s.mu.Unlock()
		completed := s.clock.Now().In(loc)
		next = e.reg.Trigger.Next(next.In(loc), completed)

		s.mu.Lock()
		if e.gen != gen {
			s.mu.Unlock()
			return
		}
		e.next = next
		s.mu.Unlock()
	}
}

// execute runs the job once. Panics and errors become an ERROR execution;
// the loop keeps scheduling.
func (s *Service) execute(ctx context.Context, e *entry, gen uint64, scheduled time.Time) task.Execution {
	reg := e.reg
	s.mu.Lock()
	timeout := reg.Timeout
	if timeout <= 0 {
		timeout = s.cfg.TaskTimeout
	}
	s.mu.Unlock()

	started := s.clock.Now()
	ex := task.Execution{
		Task:      reg.Name,
		Kind:      string(reg.Trigger.Kind),
		Scheduled: scheduled,
		Started:   started,
		Status:    task.StatusStarted,
	}
	s.record(e, gen, ex, true)
	s.publish(eventbus.TaskStarted, ex)

	runCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
				s.log.Error("task panicked", logx.String("task", reg.Name), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			}
		}()
		return reg.Job(runCtx)
	}()
	if cancel != nil {
		cancel()
	}

	ex.Duration = s.clock.Now().Sub(started)
	if err != nil {
		ex.Status = task.StatusError
		ex.Error = err.Error()
		s.log.Warn("task failed", logx.String("task", reg.Name), logx.Err(err), logx.Duration("dur", ex.Duration))
		s.record(e, gen, ex, false)
		s.publish(eventbus.TaskFailed, ex)
		return ex
	}
	ex.Status = task.StatusSuccess
	s.log.Debug("task completed", logx.String("task", reg.Name), logx.Duration("dur", ex.Duration))
	s.record(e, gen, ex, false)
	s.publish(eventbus.TaskFinished, ex)
	return ex
}

func (s *Service) record(e *entry, gen uint64, ex task.Execution, running bool) {
	s.mu.Lock()
	size := s.cfg.HistorySize
	if e.gen == gen || !running {
		e.running = running
	}
	e.last = &ex
	s.mu.Unlock()

	if running {
		return
	}
	if size <= 0 {
		size = 200
	}
	s.hmu.Lock()
	s.history = append(s.history, ex)
	if len(s.history) > size {
		s.history = s.history[len(s.history)-size:]
	}
	s.hmu.Unlock()
}

func (s *Service) publish(typ string, ex task.Execution) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: s.clock.Now(), Data: ex})
}
