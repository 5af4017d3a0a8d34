package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"adlytics/internal/config"
	"adlytics/internal/eventbus"
	"adlytics/internal/ingestion"
	"adlytics/internal/notify"
	"adlytics/internal/observability/ops"
	"adlytics/internal/runtime/supervisor"
	"adlytics/internal/storage"
	logx "adlytics/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	disp    *notify.Dispatcher
	closers []io.Closer
	poller  *ingestion.Poller
	ops     *ops.Server

	started time.Time
}

type Option func(*options)

type options struct {
	lazyTelegram bool
}

// WithLazyTelegram defers building the Telegram bot until the first message.
// One-shot commands use it so an unused channel costs nothing.
func WithLazyTelegram() Option {
	return func(o *options) { o.lazyTelegram = true }
}

// New loads cfgPath and builds every component. Nothing runs until Start.
func New(cfgPath string, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, err := logx.New(mapLogConfig(cfg))
	if err != nil {
		return nil, err
	}
	log := logSvc.Logger().With(logx.String("comp", "app"))

	bus := eventbus.New()

	a := &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
	}
	fail := func(err error) (*App, error) {
		a.release()
		_ = logSvc.Close()
		return nil, err
	}

	// Storage (optional)
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return fail(err)
	} else if enabled {
		st, err := storage.Open(sc, logSvc.Logger())
		if err != nil {
			return fail(err)
		}
		a.store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver), logx.Int("keep", sc.Keep))
	}

	senders, closers, err := buildSenders(cfg, logSvc.Logger(), o.lazyTelegram)
	a.closers = closers
	if err != nil {
		return fail(err)
	}
	a.disp = notify.NewDispatcher(senders, logSvc.Logger(), bus)

	loc, err := loadLocation(cfg.Ingestion.Timezone)
	if err != nil {
		return fail(fmt.Errorf("ingestion.timezone: %w", err))
	}
	sources, err := ingestion.BuildSources(cfg.Ingestion.Sources, logSvc.Logger().With(logx.String("comp", "ingestion")))
	if err != nil {
		return fail(err)
	}
	a.poller = ingestion.NewPoller(sources, a.store, bus, logSvc.Logger(), loc)

	log.Info("app configured",
		logx.String("config", cfgPath),
		logx.String("channels", strings.Join(a.disp.Channels(), ",")),
		logx.Int("sources", len(sources)),
	)
	return a, nil
}

func (a *App) Logger() logx.Logger                { return a.log }
func (a *App) Config() *config.Config             { return a.cfgm.Get() }
func (a *App) Dispatcher() *notify.Dispatcher     { return a.disp }
func (a *App) Poller() *ingestion.Poller          { return a.poller }
func (a *App) Store() storage.Store               { return a.store }
func (a *App) Bus() eventbus.Bus                  { return a.bus }
func (a *App) Supervisor() *supervisor.Supervisor { return a.sup }
func (a *App) Ops() *ops.Server                   { return a.ops }

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

// Start runs the poller, config hot reload and the alert bridge under one
// supervisor.
func (a *App) Start(ctx context.Context) error {
	if a.sup != nil {
		return errors.New("app already started")
	}
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.cfgm.SetLogger(a.logs.Logger().With(logx.String("comp", "config")))

	if err := a.poller.Start(a.sup.Context()); err != nil {
		a.sup.Cancel()
		return err
	}

	// Alert subscription is taken before Start returns so no failure is missed.
	alerts, unsubAlerts := a.bus.Subscribe(64, eventbus.IngestFailed, eventbus.IngestFetched)
	bridge := newAlertBridge(a.disp, func() *config.AlertTarget { return a.cfgm.Get().Notify.Alert }, a.logs.Logger())
	a.sup.Go("alerts", func(c context.Context) error {
		defer unsubAlerts()
		return bridge.run(c, alerts)
	})

	events, unsubEvents := a.bus.Subscribe(128)
	a.sup.Go("eventbus.log", func(c context.Context) error {
		defer unsubEvents()
		for {
			select {
			case <-c.Done():
				return nil
			case e, ok := <-events:
				if !ok {
					return nil
				}
				// debug only; pollers can be chatty
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return nil
			case newCfg, ok := <-sub:
				if !ok {
					return nil
				}
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.GoRestart("config.watch", a.cfgm.Watch, supervisor.WithRestartBackoff(time.Second, 30*time.Second))

	if oc, enabled := mapOpsConfig(a.cfgm.Get()); enabled {
		a.ops = ops.New(oc, func(c context.Context) any { return a.Status(c) }, a.logs.Logger())
		// optional listener; a failure is retried but never stops the app
		a.sup.GoRestart("ops.http", a.ops.Run, supervisor.WithRestartBackoff(500*time.Millisecond, 10*time.Second))
	}

	a.started = time.Now()

	a.log.Info("app started")
	return nil
}

// applyConfig swaps what can change live. Logging and the alert target
// follow the new config; channels, storage and sources need a restart.
func (a *App) applyConfig(prev, next *config.Config) {
	sections, _, sources := config.SummarizeChange(prev, next)
	if err := a.logs.Apply(mapLogConfig(next)); err != nil {
		a.log.Warn("logging config not applied", logx.Err(err))
	}

	for _, s := range sections {
		switch s {
		case "telegram", "smtp", "sms", "storage":
			a.log.Warn(s + " config changed; restart required for changes to take effect")
		case "notify":
			if !equalChannels(prev.Notify.Channels, next.Notify.Channels) {
				a.log.Warn("notify.channels changed; restart required for changes to take effect")
			}
		case "ingestion":
			a.log.Warn("ingestion config changed; restart required for changes to take effect",
				logx.String("sources", strings.Join(sources, ",")))
		}
	}
}

func equalChannels(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !strings.EqualFold(strings.TrimSpace(a[i]), strings.TrimSpace(b[i])) {
			return false
		}
	}
	return true
}

// Send dispatches one message outside of Start/Stop.
func (a *App) Send(ctx context.Context, m notify.Message) bool {
	return a.disp.Send(ctx, m)
}

// FetchOnce runs one ingestion of the named source and stores the result
// when storage is enabled.
func (a *App) FetchOnce(ctx context.Context, source string) (storage.Snapshot, error) {
	return a.poller.RunOnce(ctx, source)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	a.log.Info("stopping", logx.String("reason", string(reason)))

	if a.sup != nil {
		// cancel first so loops start unwinding while the poller drains
		a.sup.Cancel()
	}

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()
		if err := fn(stepCtx); err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	}

	step("ingestion", 5*time.Second, a.poller.Stop)
	if a.sup != nil {
		step("supervisor", 2*time.Second, a.sup.Wait)
	}
	a.release()

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return a.Err()
}

// release closes sender sessions and the store.
func (a *App) release() {
	for _, c := range a.closers {
		_ = c.Close()
	}
	a.closers = nil
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("storage close failed", logx.Err(err))
		}
		a.store = nil
	}
}
