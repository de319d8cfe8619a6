// Package app wires configuration, transport, the poll loop and the side
// services into one process.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"trendwatch/internal/config"
	"trendwatch/internal/dispatch"
	"trendwatch/internal/eventbus"
	"trendwatch/internal/fetcher"
	"trendwatch/internal/liveness"
	"trendwatch/internal/metrics"
	"trendwatch/internal/runtime/supervisor"
	"trendwatch/internal/storage"
	"trendwatch/internal/transport"
	"trendwatch/internal/transport/console"
	"trendwatch/internal/transport/telegram"
	"trendwatch/internal/trend"
	"trendwatch/internal/watcher"
	"trendwatch/pkg/systemd"
	logx "trendwatch/pkg/logx"
)

type Options struct {
	ConfigPath string
	// DryRun prints messages instead of sending them.
	DryRun bool
	// Stdout receives dry-run output; nil means os.Stdout.
	Stdout io.Writer
}

type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	sender     transport.Sender
	fetch      fetcher.Fetcher
	dispatcher *dispatch.Dispatcher
	loop       *watcher.Loop
	metrics    *metrics.Collector
	live       net.Listener
}

func New(opt Options) (*App, error) {
	cfgm := config.NewConfigManager(opt.ConfigPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}

	sender, err := newSender(cfg, opt)
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLoggingConfig(cfg), sender)
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		if store, err = storage.Open(sc, log.With(logx.String("comp", "storage"))); err != nil {
			return nil, err
		}
		log.Info("delivery journal enabled", logx.String("driver", sc.Driver))
	}

	dcfg, err := mapDispatchConfig(cfg)
	if err != nil {
		return nil, err
	}
	disp := dispatch.New(sender, dcfg,
		dispatch.WithLogger(log.With(logx.String("comp", "dispatch"))),
		dispatch.WithBus(bus),
		dispatch.WithJournal(store),
	)

	f, err := buildFetcher(cfg)
	if err != nil {
		return nil, err
	}
	sched, fetchTimeout, err := mapPollConfig(cfg)
	if err != nil {
		return nil, err
	}
	loop, err := watcher.New(watcher.Config{
		Fetcher:      f,
		Renderer:     mapRenderer(cfg),
		Dispatcher:   disp,
		Routes:       mapRoutes(cfg, log),
		Schedule:     sched,
		FetchTimeout: fetchTimeout,
		Log:          log.With(logx.String("comp", "watcher")),
		Bus:          bus,
	})
	if err != nil {
		return nil, err
	}

	return &App{
		cfgm:       cfgm,
		log:        log,
		logs:       logSvc,
		bus:        bus,
		store:      store,
		sender:     sender,
		fetch:      f,
		dispatcher: disp,
		loop:       loop,
		metrics:    metrics.New(),
	}, nil
}

func newSender(cfg *config.Config, opt Options) (transport.Sender, error) {
	if opt.DryRun {
		out := opt.Stdout
		if out == nil {
			out = os.Stdout
		}
		return console.New(out), nil
	}
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return nil, fmt.Errorf("telegram token is required (telegram.token or %s); use --dry-run to print instead", config.EnvToken)
	}
	timeout, err := config.ParseDurationOrDefault("telegram.request_timeout", cfg.Telegram.RequestTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	boot := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))
	return telegram.New(telegram.Config{Token: cfg.Telegram.Token, RequestTimeout: timeout}, boot)
}

func (a *App) Logger() logx.Logger { return a.log }

// Loop exposes the poll loop (tests, the once command).
func (a *App) Loop() *watcher.Loop { return a.loop }

// Done is closed when the app context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	cfg := a.cfgm.Get()

	// Bind before anything runs so a busy port fails startup instead of
	// surfacing later as a supervised error.
	var srv *liveness.Server
	if enabled, addr, withMetrics := mapLivenessConfig(cfg); enabled {
		lc := liveness.Config{Addr: addr, Pprof: cfg.Liveness.Pprof}
		if withMetrics {
			lc.Metrics = a.metrics.Handler()
		}
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("liveness listen: %w", err)
		}
		a.live = ln
		srv = liveness.New(lc, a.log.With(logx.String("comp", "liveness")))
	}

	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error { return Validate(cfg) })

	if srv != nil {
		a.sup.Go("liveness", a.serveLiveness(srv, a.live))
	}
	a.sup.Go("metrics", func(c context.Context) error { return a.metrics.Run(c, a.bus) })
	a.sup.GoRestart("poll", a.loop.Run)
	a.sup.Go("config.reload", a.reloadLoop)
	a.sup.Go("config.watch", a.cfgm.Watch)
	a.sup.Go("systemd.status", a.reportStatus)
	a.sup.Go("systemd.watchdog", func(c context.Context) error {
		if err := systemd.Watchdog(c, a.log.With(logx.String("comp", "systemd"))); err != nil {
			a.log.Warn("systemd watchdog unavailable", logx.Err(err))
		}
		return nil
	})

	systemd.Ready(a.log)
	a.log.Info("app started", logx.String("source", a.fetch.Name()), logx.String("config", a.cfgm.Path()))
	return nil
}

// serveLiveness never fails the supervisor: losing the endpoint must not
// stop the poll loop.
func (a *App) serveLiveness(srv *liveness.Server, ln net.Listener) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := srv.Serve(ctx, ln); err != nil {
			a.log.Error("liveness endpoint stopped; poll loop continues", logx.Err(err))
		}
		return nil
	}
}

// reloadLoop applies published configs. Routes, rendering, interval,
// dispatch tuning and logging apply live; source, liveness and storage
// need a restart.
func (a *App) reloadLoop(ctx context.Context) error {
	sub := a.cfgm.Subscribe(4)
	defer a.cfgm.Unsubscribe(sub)
	last := a.cfgm.Get()

	for {
		select {
		case <-ctx.Done():
			return nil
		case cfg, ok := <-sub:
			if !ok {
				return nil
			}
			sections, attrs := config.SummarizeChange(last, cfg)
			last = cfg
			if len(sections) == 0 {
				a.log.Debug("config reload received, but no effective changes detected")
				continue
			}
			a.apply(cfg, sections)
			fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
			a.log.Info("config reloaded", fields...)
		}
	}
}

func (a *App) apply(cfg *config.Config, sections []string) {
	for _, s := range sections {
		switch s {
		case "logging":
			a.logs.Apply(mapLoggingConfig(cfg))
		case "channels":
			a.loop.SetRoutes(mapRoutes(cfg, a.log))
		case "render":
			a.loop.SetRenderer(mapRenderer(cfg))
		case "poll":
			// validated before publish
			if sched, _, err := mapPollConfig(cfg); err == nil {
				a.loop.SetSchedule(sched)
			}
		case "dispatch":
			if dc, err := mapDispatchConfig(cfg); err == nil {
				a.dispatcher.Apply(dc)
			}
		case "telegram", "source", "liveness", "storage":
			a.log.Warn("config section changed; restart required for changes to take effect", logx.String("section", s))
		}
	}
}

// Preview fetches and renders the current list without dispatching or
// touching loop state.
func (a *App) Preview(ctx context.Context) (string, error) {
	cfg := a.cfgm.Get()
	_, fetchTimeout, err := mapPollConfig(cfg)
	if err != nil {
		return "", err
	}
	fctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()
	list, err := a.fetch.Fetch(fctx)
	if err != nil {
		return "", err
	}
	if len(list) == 0 {
		return "", &fetcher.Error{Source: a.fetch.Name(), Kind: fetcher.KindEmpty}
	}
	return mapRenderer(cfg).List(trend.FromList(list)), nil
}

func (a *App) JournalEnabled() bool { return a.store != nil }

// Journal returns the newest delivery records, or nil when the journal is
// disabled.
func (a *App) Journal(ctx context.Context, limit int) ([]storage.DeliveryRecord, error) {
	if a.store == nil {
		return nil, nil
	}
	return a.store.Recent(ctx, limit)
}

// Close releases resources of an app that was never started.
func (a *App) Close() error {
	var err error
	if a.store != nil {
		err = a.store.Close()
	}
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return err
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	a.log.Info("stopping", logx.String("reason", string(reason)))
	systemd.Stopping(a.log)

	var errs []error
	if a.sup != nil {
		a.sup.Cancel()
		if err := a.sup.Wait(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errs = append(errs, err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage close: %w", err))
		}
	}
	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return errors.Join(errs...)
}
