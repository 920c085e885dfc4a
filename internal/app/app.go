// Package app wires taskbeat's components: config, logging, scheduler,
// built-in tasks, execution history, metrics and the management server.
package app

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"taskbeat/internal/clock"
	"taskbeat/internal/config"
	"taskbeat/internal/eventbus"
	"taskbeat/internal/fixture"
	"taskbeat/internal/management"
	"taskbeat/internal/metrics"
	rtsup "taskbeat/internal/runtime/supervisor"
	"taskbeat/internal/storage"
	"taskbeat/internal/task/scheduler"
	logx "taskbeat/pkg/logx"
)

type App struct {
	cfgPath string
	version string
	clock   clock.Clock

	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	tasks   *fixture.ScheduledTasks
	sched   *scheduler.Service
	metrics *metrics.Metrics
	mgmt    *management.Service

	mu      sync.Mutex
	started time.Time
}

type Option func(*App)

// WithClock replaces the wall clock driving the scheduler.
func WithClock(c clock.Clock) Option { return func(a *App) { a.clock = c } }

// WithVersion sets the version reported by info and metrics.
func WithVersion(v string) Option { return func(a *App) { a.version = v } }

// NewApp loads the config and builds every component. Nothing runs until Start.
func NewApp(cfgPath string, opts ...Option) (*App, error) {
	a := &App{cfgPath: cfgPath, version: "dev", clock: clock.Real()}
	for _, o := range opts {
		o(a)
	}

	a.cfgm = config.NewConfigManager(cfgPath)
	cfg, err := a.cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, root := logx.New(mapLogConfig(cfg))
	a.logs = logSvc
	a.log = root.Named("app")
	a.bus = eventbus.New()

	// Storage (optional)
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, a.closeOnErr(err)
	} else if enabled {
		st, err := storage.Open(sc, root.Named("storage"))
		if err != nil {
			return nil, a.closeOnErr(fmt.Errorf("storage: %w", err))
		}
		a.store = st
		a.log.Info("storage enabled", logx.String("driver", sc.Driver), logx.String("path", sc.Path))
	}

	schedCfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		return nil, a.closeOnErr(err)
	}
	a.sched = scheduler.New(schedCfg, a.clock, root.Named("scheduler"), a.bus)

	a.tasks = fixture.New(root.Named("tasks"))
	regs, err := fixture.Registrations(a.tasks, cfg.Tasks)
	if err != nil {
		return nil, a.closeOnErr(err)
	}
	for _, reg := range regs {
		if err := a.sched.Register(reg); err != nil {
			return nil, a.closeOnErr(err)
		}
	}

	bus := a.bus
	a.metrics = metrics.New(a.version, func() float64 { return float64(eventbus.Dropped(bus)) })

	mcfg, err := mapManagementConfig(cfg)
	if err != nil {
		return nil, a.closeOnErr(err)
	}
	deps := management.Deps{
		Tasks:   a.sched,
		Loggers: a.logs,
		Metrics: a.metrics,
		Checks:  a.healthChecks(),
		Info:    a.info,
		Env:     a.env,
	}
	if a.store != nil {
		deps.Store = a.store
	}
	a.mgmt = management.New(mcfg, deps, root.Named("management"))

	return a, nil
}

func (a *App) closeOnErr(err error) error {
	if a.store != nil {
		_ = a.store.Close()
	}
	_ = a.logs.Close()
	return err
}

// Config returns the active config.
func (a *App) Config() *config.Config { return a.cfgm.Get() }

// Scheduler exposes the scheduler service.
func (a *App) Scheduler() *scheduler.Service { return a.sched }

// ManagementAddr returns the bound management address ("" when not serving).
func (a *App) ManagementAddr() string { return a.mgmt.Addr() }

// Done is closed when the app supervisor context is canceled.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log))

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.Named("config"))
	a.cfgm.SetValidator(func(c context.Context, cfg *config.Config) error {
		return a.validate(cfg)
	})

	if a.store != nil {
		a.prepareHistory(ctx)
		rec := storage.NewRecorder(a.store, a.bus, a.log.Named("recorder"))
		a.sup.Go("storage.recorder", rec.Run)
	}
	a.sup.Go("metrics", func(c context.Context) error {
		return a.metrics.Run(c, a.bus)
	})

	if a.mgmt.Enabled() {
		if err := a.mgmt.Start(a.sup.Context()); err != nil {
			a.sup.Cancel()
			return err
		}
	}

	a.mu.Lock()
	a.started = a.clock.Now()
	a.mu.Unlock()
	a.sched.Start(a.sup.Context())

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.Go("config.watch", a.cfgm.Watch)
	a.sup.Go("systemd.watchdog", func(c context.Context) error {
		return runWatchdog(c, a.log.Named("systemd"))
	})

	sdNotify(a.log, "READY=1\nSTATUS=scheduling "+fmt.Sprint(len(a.sched.Snapshot().Tasks))+" tasks")
	a.log.Info("app started",
		logx.String("version", a.version),
		logx.String("config", a.cfgPath),
		logx.String("management", a.mgmt.Addr()),
	)
	return nil
}

// prepareHistory prunes expired executions and seeds last-execution state.
func (a *App) prepareHistory(ctx context.Context) {
	cfg := a.cfgm.Get()
	if keep, err := storageRetention(cfg); err == nil && keep > 0 {
		n, err := a.store.Prune(ctx, a.clock.Now().Add(-keep))
		if err != nil {
			a.log.Warn("execution history prune failed", logx.Err(err))
		} else if n > 0 {
			a.log.Info("execution history pruned", logx.Int("removed", n), logx.Duration("retention", keep))
		}
	}
	last, err := a.store.LastExecutions(ctx)
	if err != nil {
		a.log.Warn("execution history load failed", logx.Err(err))
		return
	}
	a.sched.Seed(last)
}

func (a *App) validate(cfg *config.Config) error {
	if _, err := mapSchedulerConfig(cfg); err != nil {
		return err
	}
	if _, err := mapManagementConfig(cfg); err != nil {
		return err
	}
	if _, _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	if _, err := storageRetention(cfg); err != nil {
		return err
	}
	_, err := fixture.Registrations(a.tasks, cfg.Tasks)
	return err
}

func (a *App) info() map[string]any {
	cfg := a.cfgm.Get()
	appInfo := map[string]any{"name": cfg.App.Name}
	if cfg.App.Description != "" {
		appInfo["description"] = cfg.App.Description
	}
	for k, v := range cfg.App.Info {
		appInfo[k] = v
	}

	a.mu.Lock()
	started := a.started
	a.mu.Unlock()
	snap := a.sched.Snapshot()

	return map[string]any{
		"app":   appInfo,
		"build": map[string]any{"version": a.version},
		"go":    map[string]any{"version": runtime.Version(), "os": runtime.GOOS, "arch": runtime.GOARCH},
		"process": map[string]any{
			"started": started.Format(time.RFC3339),
			"uptime":  a.clock.Now().Sub(started).Round(time.Second).String(),
		},
		"scheduler": map[string]any{
			"enabled":  snap.Enabled,
			"timezone": snap.Timezone,
			"tasks":    len(snap.Tasks),
		},
	}
}

func (a *App) healthChecks() map[string]management.HealthCheck {
	checks := map[string]management.HealthCheck{
		"supervisor": func(context.Context) management.HealthComponent {
			return supervisorHealth(a.sup)
		},
		"management": func(context.Context) management.HealthComponent {
			return supervisorHealth(a.mgmt.Supervisor())
		},
	}
	if a.store != nil {
		checks["storage"] = func(ctx context.Context) management.HealthComponent {
			if _, err := a.store.RecentExecutions(ctx, "", 1); err != nil {
				return management.HealthComponent{Status: management.StatusDown, Details: map[string]any{"error": err.Error()}}
			}
			return management.HealthComponent{Status: management.StatusUp}
		}
	}
	return checks
}

// supervisorHealth is DOWN once a supervised goroutine failed, UNKNOWN when
// the supervisor is not running.
func supervisorHealth(sup *rtsup.Supervisor) management.HealthComponent {
	if sup == nil {
		return management.HealthComponent{Status: management.StatusUnknown}
	}
	snap := sup.Snapshot()
	c := management.HealthComponent{Status: management.StatusUp, Details: map[string]any{
		"active":  snap.Counters.Active,
		"started": snap.Counters.Started,
	}}
	var restarts uint64
	for _, g := range snap.Goroutines {
		restarts += g.Restarts
	}
	if restarts > 0 {
		c.Details["restarts"] = restarts
	}
	if snap.FirstError != "" {
		c.Status = management.StatusDown
		c.Details["error"] = snap.FirstError
	}
	return c
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	if reason == "" {
		reason = StopUnknown
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	sdNotify(a.log, "STOPPING=1")

	// First, cancel the app run context so background loops start unwinding immediately.
	a.sup.Cancel()

	step := func(name string, limit time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", limit))

		stepCtx := ctx
		if limit > 0 {
			// respect the caller's deadline; never extend it
			if dl, ok := ctx.Deadline(); ok {
				if rem := time.Until(dl); rem < limit {
					limit = max(rem, 0)
				}
			}
			var cancel context.CancelFunc
			stepCtx, cancel = context.WithTimeout(ctx, limit)
			defer cancel()
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			// Contract: fn MUST honor stepCtx and return promptly. If it doesn't, log a leak signal.
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", time.Since(start)),
			)
			go func() {
				err := <-done
				a.log.Info("stop step finished after deadline", logx.String("name", name), logx.Err(err), logx.Duration("took", time.Since(start)))
			}()
		}
	}

	step("scheduler", 3*time.Second, a.sched.Stop)
	step("management", 2*time.Second, func(c context.Context) error { a.mgmt.Stop(c); return nil })
	// Waits for the recorder, metrics and config loops.
	step("supervisor", 2*time.Second, a.sup.Wait)
	step("storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped")
	return a.logs.Close()
}
