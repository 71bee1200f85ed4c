// Package app assembles the bot: store, job registry, dispatcher, engagement
// tracker, the telegram front-end and the optional web panel, with one
// lifecycle for all of them.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"postbot/internal/config"
	"postbot/internal/dispatch"
	"postbot/internal/engage"
	"postbot/internal/logging"
	"postbot/internal/metrics"
	"postbot/internal/schedule"
	"postbot/internal/storage"
	"postbot/internal/telegram"
	"postbot/internal/web"
)

type App struct {
	cfgPath string
	cfg     *config.Config
	log     zerolog.Logger

	store      *storage.Store
	registry   *schedule.Registry
	dispatcher *dispatch.Dispatcher
	tracker    *engage.Tracker
	adapter    *telegram.Adapter
	webSrv     *web.Server

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	log := logging.New(cfg.Logging.Level, cfg.Logging.Console)

	store, err := storage.Open(storage.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: cfg.BusyTimeout(),
		MaxConns:    cfg.Storage.MaxConns,
	}, log.With().Str("comp", "storage").Logger())
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	adapter, err := telegram.New(telegram.Config{
		Token:        cfg.Telegram.Token,
		PollTimeout:  cfg.PollTimeout(),
		NotifyPerSec: cfg.Telegram.NotifyPerSec,
	}, log.With().Str("comp", "telegram").Logger())
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("telegram adapter: %w", err)
	}

	a := &App{
		cfgPath: cfgPath,
		cfg:     cfg,
		log:     log,
		store:   store,
		adapter: adapter,
	}

	a.dispatcher = dispatch.New(store, adapter, log.With().Str("comp", "dispatch").Logger())
	a.tracker = engage.NewTracker(store, log.With().Str("comp", "engage").Logger())
	a.registry = schedule.NewRegistry(func(ctx context.Context, postID int64) {
		a.dispatcher.Execute(ctx, postID)
	}, log.With().Str("comp", "schedule").Logger())

	metrics.MustRegister(prometheus.DefaultRegisterer)
	a.registry.SizeHook = func(n int) { metrics.ScheduledJobs.Set(float64(n)) }

	handlers := telegram.NewHandlers(adapter, store, a.tracker, a.dispatcher, a.registry, cfg.Web.BaseURL)
	handlers.Register()

	if cfg.Web.Enabled {
		a.webSrv = web.NewServer(web.Config{Addr: cfg.Web.Addr}, store, a.registry,
			log.With().Str("comp", "web").Logger())
	}
	return a, nil
}

// Start brings everything up: registry, recovered jobs, polling, the panel and
// the config watcher. It returns once startup is complete.
func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	a.registry.Start(runCtx)

	n, err := recoverJobs(ctx, a.store, a.registry, a.log)
	if err != nil {
		return fmt.Errorf("job recovery: %w", err)
	}
	a.log.Info().Int("jobs", n).Msg("schedule recovered")

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.adapter.Start()
	}()

	if a.webSrv != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := a.webSrv.Start(); err != nil {
				a.log.Error().Err(err).Msg("web panel failed")
			}
		}()
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		err := config.Watch(runCtx, a.cfgPath, a.log.With().Str("comp", "config").Logger(), a.applyConfig)
		if err != nil {
			a.log.Warn().Err(err).Msg("config watcher unavailable")
		}
	}()

	a.log.Info().Msg("started")
	return nil
}

// applyConfig picks up the runtime-adjustable settings from a reloaded config.
// Only the log level is live today; everything else needs a restart. The
// level changes through the atomic global setter alone, never by replacing
// a.log, which other goroutines read concurrently.
func (a *App) applyConfig(cfg *config.Config) {
	lvl := logging.ParseLevel(cfg.Logging.Level)
	if lvl != zerolog.GlobalLevel() {
		zerolog.SetGlobalLevel(lvl)
		a.log.Info().Str("level", lvl.String()).Msg("log level changed")
	}
}

// Stop shuts down in dependency order: no new fires, then no new updates, then
// the panel, then the store.
func (a *App) Stop(ctx context.Context) {
	if a.cancel != nil {
		a.cancel()
	}
	a.registry.Stop()
	a.adapter.Stop()
	if a.webSrv != nil {
		shutCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := a.webSrv.Shutdown(shutCtx); err != nil {
			a.log.Warn().Err(err).Msg("web shutdown failed")
		}
		cancel()
	}
	a.wg.Wait()
	if err := a.store.Close(); err != nil {
		a.log.Warn().Err(err).Msg("store close failed")
	}
	a.log.Info().Msg("stopped")
}
