package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"rimetick/internal/config"
	"rimetick/internal/eventbus"
	"rimetick/internal/observability/debughttp"
	"rimetick/internal/runtime/sdnotify"
	"rimetick/internal/runtime/supervisor"
	"rimetick/internal/storage"
	"rimetick/internal/task/engine"
	"rimetick/internal/task/scheduler"
	"rimetick/internal/ticker"
	logx "rimetick/pkg/logx"
)

// App owns the tick loop and everything hanging off it.
type App struct {
	cfgPath string
	cfgm    *config.Manager
	sup     *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store   storage.Store
	rec     *recorder
	recStop context.CancelFunc

	engine *engine.Service
	sched  *scheduler.Scheduler
	cron   *scheduler.Cron
	ticker *ticker.Ticker
	notify *sdnotify.Notifier
	debug  *debughttp.Service

	status statusReporter
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := validateSchedules(cfg); err != nil {
		return nil, err
	}

	logSvc, log := logx.NewService(mapLoggingConfig(cfg))
	appLog := log.With(logx.String("comp", "app"))
	bus := eventbus.New()

	var (
		store storage.Store
		rec   *recorder
	)
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		store = st
		rec = newRecorder(st, bus, log.With(logx.String("comp", "recorder")))
		appLog.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	schedCfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		return nil, err
	}
	tickCfg, err := mapTickerConfig(cfg)
	if err != nil {
		return nil, err
	}
	debugCfg, err := mapDebugConfig(cfg)
	if err != nil {
		return nil, err
	}

	eng := engine.New(mapEngineConfig(cfg), log.With(logx.String("comp", "engine")), bus)
	sched := scheduler.New(schedCfg, eng, log.With(logx.String("comp", "scheduler")), bus)
	cr := scheduler.NewCron(sched, mapCronConfig(cfg), log.With(logx.String("comp", "cron")))
	tk := ticker.New(tickCfg, sched, log.With(logx.String("comp", "ticker")), bus)
	notify := sdnotify.New(log.With(logx.String("comp", "sdnotify")))
	tk.OnTick(notify.OnTick)

	a := &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     appLog,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		rec:     rec,
		engine:  eng,
		sched:   sched,
		cron:    cr,
		ticker:  tk,
		notify:  notify,
	}
	a.status = statusReporter{app: a, log: log.With(logx.String("comp", "status"))}
	a.debug = debughttp.New(debugCfg, debughttp.Sources{State: a.state, Healthy: a.healthy},
		log.With(logx.String("comp", "debug")))
	return a, nil
}

// Scheduler is where callers register tick tasks.
func (a *App) Scheduler() *scheduler.Scheduler { return a.sched }

// Cron registers wall-clock triggers onto the scheduler.
func (a *App) Cron() *scheduler.Cron { return a.cron }

func (a *App) Ticker() *ticker.Ticker { return a.ticker }

// Store is nil when storage is disabled.
func (a *App) Store() storage.Store { return a.store }

func (a *App) Bus() eventbus.Bus { return a.bus }

// Done is closed when the app context is cancelled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error seen by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log.With(logx.String("comp", "supervisor"))),
		supervisor.WithCancelOnError(true),
	)
	runCtx := a.sup.Context()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if err := validateSchedules(cfg); err != nil {
			return err
		}
		if _, err := mapTickerConfig(cfg); err != nil {
			return err
		}
		if _, err := mapSchedulerConfig(cfg); err != nil {
			return err
		}
		if _, err := mapDebugConfig(cfg); err != nil {
			return err
		}
		_, _, err := mapStorageConfig(cfg)
		return err
	})

	a.engine.Start(runCtx)
	if a.rec != nil {
		// outlives the run context so shutdown cancellations still get recorded
		recCtx, recStop := context.WithCancel(context.WithoutCancel(ctx))
		a.recStop = recStop
		a.sup.Go("history.recorder", func(context.Context) error { return a.rec.run(recCtx) })
	}

	cfg := a.cfgm.Get()
	if err := a.status.install(cfg); err != nil {
		a.sup.Cancel()
		return err
	}
	a.cron.Start()

	a.sup.GoRestart("ticker", a.ticker.Run,
		supervisor.WithRestartBackoff(50*time.Millisecond, 2*time.Second),
		supervisor.WithMaxRestarts(10),
	)
	a.sup.GoRestart("debug.http", a.debug.Serve,
		supervisor.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
	)
	a.sup.Go("config.reload", a.reloadLoop)
	a.sup.Go("config.watch", a.cfgm.Watch)

	a.notify.Ready()
	a.log.Info("app started",
		logx.String("config", a.cfgPath),
		logx.Int("tps", a.ticker.Snapshot().TPS),
		logx.Bool("storage", a.store != nil),
	)
	return nil
}

// Stop shuts the app down in dependency order. Each step is bounded so a
// stuck component cannot stall the rest.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.notify.Stopping()

	// ticker and config loops unwind from here
	a.sup.Cancel()

	var errs []error
	step := func(name string, limit time.Duration, fn func(context.Context) error) {
		start := time.Now()
		sctx, cancel := context.WithTimeout(ctx, limit)
		defer cancel()
		if err := fn(sctx); err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	}

	step("triggers", 2*time.Second, func(c context.Context) error {
		// cron and the tick loop are independent; stop them together
		g, gctx := errgroup.WithContext(c)
		g.Go(func() error {
			a.cron.Stop(gctx)
			return nil
		})
		g.Go(func() error {
			return a.waitTicker(gctx)
		})
		return g.Wait()
	})
	step("scheduler", 2*time.Second, a.sched.Close)
	step("engine", 3*time.Second, a.engine.Stop)
	if a.recStop != nil {
		a.recStop()
	}
	step("supervisor", 2*time.Second, a.sup.Wait)
	step("storage", time.Second, func(context.Context) error {
		if a.store == nil {
			return nil
		}
		return a.store.Close()
	})

	a.log.Info("stopped", logx.Uint64("tick", a.sched.CurrentTick()))
	_ = a.logs.Close()
	return errors.Join(errs...)
}

func (a *App) waitTicker(ctx context.Context) error {
	t := time.NewTicker(5 * time.Millisecond)
	defer t.Stop()
	for a.ticker.Snapshot().Running {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return nil
}
