package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"scriptsched/internal/config"
	"scriptsched/internal/console"
	"scriptsched/internal/eventbus"
	"scriptsched/internal/executor"
	"scriptsched/internal/notifier"
	"scriptsched/internal/observability/debugsrv"
	"scriptsched/internal/runtime/supervisor"
	"scriptsched/internal/storage"
	"scriptsched/internal/task/scheduler"
	logx "scriptsched/pkg/logx"
)

// ErrNoConsole is returned by RunConsole when the app was built without input.
var ErrNoConsole = errors.New("console disabled")

type App struct {
	cfgPath string

	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	exec  *executor.Process
	sched *scheduler.Service
	notif *notifier.Service
	debug *debugsrv.Service

	in  io.Reader
	out io.Writer

	stopRecorder context.CancelFunc
}

// NewApp loads the config and builds every component without starting any
// goroutine. in may be nil for a headless run; out receives console output.
func NewApp(cfgPath string, in io.Reader, out io.Writer) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	logSvc, log := logx.NewService(mapLogConfig(cfg))
	if in != nil {
		// keep log lines off the prompt stream
		logSvc.SetConsole(logx.Stderr())
	}
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	// Storage (optional)
	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver), logx.String("path", sc.Path))
	}

	exCfg, err := mapExecutorConfig(cfg)
	if err != nil {
		return nil, err
	}
	execSvc := executor.NewProcess(exCfg, log.With(logx.String("comp", "executor")))

	schedCfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		return nil, err
	}
	schedSvc := scheduler.New(schedCfg, execSvc, log.With(logx.String("comp", "scheduler")), bus)

	notifSvc := notifier.New(mapNotifierConfig(cfg), log.With(logx.String("comp", "notifier")), bus)

	if out == nil {
		out = io.Discard
	}
	a := &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		exec:    execSvc,
		sched:   schedSvc,
		notif:   notifSvc,
		in:      in,
		out:     out,
	}
	a.debug = debugsrv.New(mapDebugConfig(cfg), a.status, log.With(logx.String("comp", "debug")))
	return a, nil
}

// status is served read-only at /status by the debug server.
func (a *App) status() any {
	return map[string]any{
		"scheduler":      a.sched.Stats(),
		"notifier":       a.notif.Stats(),
		"events_dropped": a.bus.Dropped(),
	}
}

// Scheduler exposes the scheduler for embedding and tests.
func (a *App) Scheduler() *scheduler.Service { return a.sched }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
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
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return validateConfig(cfg)
	})

	if a.store != nil {
		events, unsub := a.bus.Subscribe(256, "task.")
		// The recorder outlives the supervisor context so the CANCELLED
		// events published while the scheduler stops are still written.
		recCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		a.stopRecorder = cancel
		log := a.log.With(logx.String("comp", "history"))
		a.sup.Go("history.record", func(context.Context) error {
			defer unsub()
			record(recCtx, events, a.store, log)
			return nil
		})
	}

	a.sched.Start(a.sup.Context())

	if a.notif.Enabled() {
		if err := a.notif.Start(a.sup.Context()); err != nil {
			return fmt.Errorf("notifier: %w", err)
		}
	}

	if err := a.debug.Start(a.sup.Context()); err != nil {
		return err
	}

	// Optional: log events for observability/debug.
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go("eventbus.log", func(c context.Context) error {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return nil
			case e, ok := <-events:
				if !ok {
					return nil
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	// hot reload config fan-out
	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
		return nil
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started", logx.String("config", a.cfgPath))
	return nil
}

func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	// Track last applied config to generate a safe diff summary for logx.
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
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
			if newCfg == nil {
				continue
			}
			a.applyConfig(ctx, lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

func (a *App) applyConfig(ctx context.Context, prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Debug("config change summary", fields...)

	if slices.Contains(sections, "storage") {
		a.log.Warn("storage config changed; restart required for changes to take effect")
	}

	a.logs.Apply(mapLogConfig(next))

	if exCfg, err := mapExecutorConfig(next); err != nil {
		a.log.Warn("invalid executor config; keeping previous", logx.Err(err))
	} else {
		a.exec.Apply(exCfg)
	}

	if sc, err := mapSchedulerConfig(next); err != nil {
		a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
	} else {
		a.sched.Apply(sc)
	}

	prevNotifEnabled := a.notif.Enabled()
	ncfg := mapNotifierConfig(next)
	a.notif.Apply(ncfg)
	switch {
	case prevNotifEnabled && !ncfg.Enabled:
		a.log.Info("notifier disabled via config")
		stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		a.notif.Stop(stopCtx)
		cancel()
	case !prevNotifEnabled && ncfg.Enabled:
		a.log.Info("notifier enabled via config")
		if err := a.notif.Start(ctx); err != nil {
			a.log.Warn("notifier start failed", logx.Err(err))
		}
	}

	if err := a.debug.Reconfigure(ctx, mapDebugConfig(next)); err != nil {
		a.log.Warn("debug server reconfigure failed", logx.Err(err))
	}

	a.log.Info("config reloaded", fields...)
}

// RunConsole serves the interactive menu until the operator exits, input
// ends or ctx is done.
func (a *App) RunConsole(ctx context.Context) error {
	if a.in == nil {
		return ErrNoConsole
	}
	events, unsub := a.bus.Subscribe(64, eventbus.TaskStarted, eventbus.TaskFinished, eventbus.TaskCancelled)
	defer unsub()

	var hist console.History
	if a.store != nil {
		hist = a.store
	}
	c := console.New(a.in, a.out, a.sched, hist, a.log.With(logx.String("comp", "console")), console.WithEvents(events))
	return c.Run(ctx)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	stopTimeout := defaultStopTimeout
	if sc, err := mapSchedulerConfig(a.cfgm.Get()); err == nil && sc.StopTimeout > 0 {
		stopTimeout = sc.StopTimeout
	}

	// Stop the scheduler before canceling the app context so running
	// scripts are aborted through the task state machine.
	a.step(ctx, "scheduler", stopTimeout, func(c context.Context) error { return a.sched.Stop(c) })

	a.sup.Cancel()

	a.step(ctx, "debug", 1*time.Second, func(c context.Context) error { a.debug.Stop(c); return nil })
	a.step(ctx, "notifier", 2*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	if a.stopRecorder != nil {
		a.stopRecorder()
	}

	// Wait for supervised goroutines (recorder drain, config watch/reload).
	a.step(ctx, "supervisor", 3*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.step(ctx, "storage", 1*time.Second, func(c context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return a.sup.Err()
}

// step runs one shutdown step with an upper bound so a single component
// cannot stall the whole stop. The caller's deadline is never extended.
func (a *App) step(ctx context.Context, name string, limit time.Duration, fn func(context.Context) error) {
	start := time.Now()
	a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", limit))

	stepCtx := ctx
	if limit > 0 {
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
		took := time.Since(start)
		if took >= 500*time.Millisecond {
			a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
		} else {
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
		}
	case <-stepCtx.Done():
		// fn must honor stepCtx; if it doesn't, log when it eventually returns.
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Err(stepCtx.Err()),
			logx.Duration("elapsed", time.Since(start)),
		)
		go func() {
			err := <-done
			took := time.Since(start)
			if err != nil {
				a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err), logx.Duration("took", took))
			} else {
				a.log.Info("stop step finished after deadline", logx.String("name", name), logx.Duration("took", took))
			}
		}()
	}
}
