package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/genricoloni/glowcard/internal/card"
	"github.com/genricoloni/glowcard/internal/config"
	"github.com/genricoloni/glowcard/internal/domain"
	"github.com/genricoloni/glowcard/internal/engine"
	"github.com/genricoloni/glowcard/internal/fetcher"
	"github.com/genricoloni/glowcard/internal/monitor"
	"github.com/genricoloni/glowcard/internal/overlay"
	"github.com/genricoloni/glowcard/internal/palette"
	"github.com/genricoloni/glowcard/internal/proxy"
	"github.com/genricoloni/glowcard/internal/stream"
	"github.com/genricoloni/glowcard/internal/theme"
	"github.com/genricoloni/glowcard/internal/tuna"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// AppOptions is the complete application graph
var AppOptions = fx.Options(
	fx.Provide(
		newLogger,
		config.NewAppConfig,
		func(cfg *config.AppConfig) domain.Config { return cfg },

		// Cover palette
		fx.Annotate(fetcher.NewHTTPFetcher, fx.As(new(domain.ImageLoader))),
		fx.Annotate(newSampler, fx.As(new(domain.PaletteSampler))),
		newProxy,

		// Card and its publishers
		newOverlay,
		theme.NewFileWriter,
		newPublishers,
		newPresenter,

		// Sources
		newStreamClient,
		newTunaPoller,
		monitor.NewMprisMonitor,
		newSources,
		newEngine,
	),

	// Lifecycle hooks
	fx.Invoke(registerHooks),
)

func main() {
	app := fx.New(
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
		AppOptions,
	)

	// Handle graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := app.Start(ctx); err != nil {
		panic(err)
	}

	<-ctx.Done()

	if err := app.Stop(context.Background()); err != nil {
		panic(err)
	}
}

// newLogger creates a production logger, or a development one when
// GLOWCARD_LOG_LEVEL=debug
func newLogger() (*zap.Logger, error) {
	if strings.EqualFold(os.Getenv("GLOWCARD_LOG_LEVEL"), "debug") {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func newSampler(logger *zap.Logger, loader domain.ImageLoader, cfg *config.AppConfig) *palette.Sampler {
	return palette.NewSampler(logger, loader, palette.Options{
		ProxyBase: cfg.Palette.ProxyBase,
		Timeout:   cfg.PaletteTimeout(),
	})
}

func newProxy(logger *zap.Logger, cfg *config.AppConfig) *proxy.Server {
	return proxy.NewServer(logger, cfg.Proxy.Addr)
}

func newOverlay(logger *zap.Logger, cfg *config.AppConfig) *overlay.Server {
	return overlay.NewServer(logger, overlay.Options{
		Addr:           cfg.Overlay.Addr,
		AllowedOrigins: cfg.Overlay.AllowedOrigins,
	})
}

// newPublishers lists where card changes go. The overlay server always
// keeps the latest state, the stylesheet is written only on request.
func newPublishers(cfg *config.AppConfig, srv *overlay.Server, css *theme.FileWriter) []domain.Publisher {
	publishers := []domain.Publisher{srv}
	if cfg.Card.WriteCSS {
		publishers = append(publishers, css)
	}
	return publishers
}

func newPresenter(logger *zap.Logger, sampler domain.PaletteSampler, publishers []domain.Publisher, cfg *config.AppConfig) *card.Presenter {
	return card.NewPresenter(logger, sampler, publishers, card.Layout{
		RowWidthPx:  cfg.Card.RowWidthPx,
		CharWidthPx: cfg.Card.CharWidthPx,
		GapPx:       cfg.Card.GapPx,
	})
}

func newStreamClient(logger *zap.Logger, cfg *config.AppConfig) *stream.Client {
	return stream.NewClient(logger, stream.Options{
		URL:            cfg.Stream.URL,
		ConnectTimeout: cfg.ConnectTimeout(),
		RetryDelay:     cfg.RetryDelay(),
	})
}

func newTunaPoller(logger *zap.Logger, cfg *config.AppConfig) *tuna.Poller {
	return tuna.NewPoller(logger, tuna.Options{
		URL:      cfg.Tuna.URL,
		Interval: cfg.TunaInterval(),
	})
}

// newSources lists the enabled feeds in priority order
func newSources(cfg *config.AppConfig, client *stream.Client, poller *tuna.Poller, mon *monitor.MprisMonitor) []engine.Source {
	var sources []engine.Source
	if cfg.Stream.Enabled {
		sources = append(sources, engine.Source{ID: domain.SourceWNP, Feed: client, Subscribe: client.Subscribe})
	}
	if cfg.Tuna.Enabled {
		sources = append(sources, engine.Source{ID: domain.SourceTuna, Feed: poller, Subscribe: poller.Subscribe})
	}
	if cfg.Mpris.Enabled {
		sources = append(sources, engine.Source{ID: domain.SourceMpris, Feed: mon, Subscribe: mon.Subscribe, Optional: true})
	}
	return sources
}

func newEngine(logger *zap.Logger, presenter *card.Presenter, sources []engine.Source) *engine.Engine {
	return engine.NewEngine(logger, presenter, sources)
}

// registerHooks sets up application lifecycle hooks. fx stops hooks in
// reverse, so the engine stops before the servers it publishes to.
func registerHooks(lc fx.Lifecycle, logger *zap.Logger, cfg *config.AppConfig, px *proxy.Server, srv *overlay.Server, eng *engine.Engine) {
	if cfg.Proxy.Enabled {
		lc.Append(fx.Hook{OnStart: px.Start, OnStop: px.Stop})
	}
	if cfg.Overlay.Enabled {
		lc.Append(fx.Hook{OnStart: srv.Start, OnStop: srv.Stop})
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := eng.Start(ctx); err != nil {
				return err
			}
			logger.Info("Glowcard Daemon Started")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Shutting down")
			return eng.Stop(ctx)
		},
	})
}
