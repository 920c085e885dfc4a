package storage

import (
	"context"
	"time"

	"taskbeat/internal/eventbus"
	"taskbeat/internal/task"
	logx "taskbeat/pkg/logx"
)

// Recorder appends finished executions published on the bus to a Store.
type Recorder struct {
	store Store
	log   logx.Logger

	ch    <-chan eventbus.Event
	unsub func()
}

// NewRecorder subscribes immediately, so executions published before Run
// starts are buffered rather than lost.
func NewRecorder(store Store, bus eventbus.Bus, log logx.Logger) *Recorder {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Recorder{store: store, log: log}
	if store != nil && bus != nil {
		r.ch, r.unsub = bus.Subscribe(256, eventbus.TaskFinished, eventbus.TaskFailed)
	}
	return r
}

// Run consumes task.finished/task.failed events until ctx is done.
func (r *Recorder) Run(ctx context.Context) error {
	if r.ch == nil {
		return nil
	}
	defer r.unsub()
	ch := r.ch
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			ex, ok := ev.Data.(task.Execution)
			if !ok {
				continue
			}
			wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			err := r.store.AppendExecution(wctx, ex)
			cancel()
			if err != nil {
				r.log.Warn("execution append failed", logx.String("task", ex.Task), logx.Err(err))
			}
		}
	}
}
