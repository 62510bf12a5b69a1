package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"gowa-blast/config"
	"gowa-blast/database"
	"gowa-blast/internal/handler"
	"gowa-blast/internal/helper"
	"gowa-blast/internal/metrics"
	customMiddleware "gowa-blast/internal/middleware"
	"gowa-blast/internal/model"
	"gowa-blast/internal/service"
	"gowa-blast/internal/whatsapp"
	"gowa-blast/internal/worker"
	"gowa-blast/internal/ws"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const shutdownTimeout = 15 * time.Second

// runServer wires every component and serves until ctx is cancelled. On the
// way out running jobs are stopped first, then every client is disconnected
// while keeping its auth data on disk.
func runServer(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	var audit *model.AuditLog
	if cfg.AppDatabaseURL != "" {
		db, err := database.OpenAppDB(cfg.AppDatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		audit = model.NewAuditLog(db)
		log.Info().Msg("audit trail enabled")
	} else {
		log.Warn().Msg("APP_DATABASE_URL is not set, audit trail disabled")
	}

	dirs := helper.SessionDirs{AuthDir: cfg.AuthDir, CacheDir: cfg.CacheDir}
	m := metrics.New()
	hub := ws.NewHub(log)
	webhook := service.NewWebhookNotifier(cfg.WebhookURL, cfg.WebhookSecret, cfg.WebhookEvents, log)
	var publisher ws.RealtimePublisher = hub
	if webhook != nil {
		publisher = ws.Fanout{hub, webhook}
		defer webhook.Close()
	}
	factory := whatsapp.NewFactory(dirs, cfg.DeviceName, log)

	registry := service.NewRegistry(service.RegistryConfig{
		MaxSessions: cfg.MaxSessions,
		NewClient:   factory.New,
		Artifacts:   dirs,
		Audit:       audit,
		Publisher:   publisher,
		Metrics:     m,
		Log:         log,
	})
	m.RegisterGauge("gowa_sessions_live", "Sessions currently tracked by the registry.", func() float64 {
		return float64(registry.Stats().Total)
	})

	dispatcher := service.NewDispatcher(service.DispatcherConfig{
		Registry:     registry,
		Jobs:         service.NewJobStore(cfg.JobHistorySize),
		Audit:        audit,
		Publisher:    publisher,
		Metrics:      m,
		Log:          log,
		DefaultDelay: cfg.DefaultDelay,
		MaxDelay:     cfg.MaxDelay,
		CountryCode:  cfg.DefaultCountryCode,
		Spintax:      cfg.Spintax,
	})

	cleanup := worker.NewCleanup(registry, cfg.CleanupInterval, cfg.IdleTimeout, log)

	e := newEcho(cfg, log)
	routes := handler.Routes{
		Sessions:     handler.NewSessionHandler(registry),
		Messages:     handler.NewMessageHandler(dispatcher, registry, dirs, cfg.MediaMaxBytes, log),
		Jobs:         handler.NewJobHandler(dispatcher),
		Capabilities: handler.NewCapabilityHandler(registry),
		Health:       handler.NewHealthHandler(registry, cfg, hub),
		WebSocket:    handler.WebSocketHandler(hub, handler.NewUpgrader(cfg.CORSAllowOrigins), log),
		Metrics:      m.Handler(),
	}
	if cfg.JWTSecret != "" {
		routes.Auth = customMiddleware.JWTAuthMiddleware(service.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTokenExpiry))
	} else {
		log.Warn().Msg("JWT_SECRET is not set, API is unauthenticated")
	}
	routes.Register(e)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return cleanup.Run(gctx)
	})
	g.Go(func() error {
		log.Info().
			Str("port", cfg.Port).
			Int("max_sessions", cfg.MaxSessions).
			Dur("idle_timeout", cfg.IdleTimeout).
			Msg("server starting")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := e.Shutdown(shutdownCtx)

		dispatcher.Close()
		registry.Shutdown()
		return err
	})
	return g.Wait()
}

func newEcho(cfg *config.Config, log zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handler.HTTPErrorHandler(log)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			ev := log.Debug()
			if v.Error != nil || v.Status >= http.StatusInternalServerError {
				ev = log.Warn().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	}))

	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.CORSAllowOrigins,
		AllowMethods: []string{
			echo.GET,
			echo.POST,
			echo.DELETE,
			echo.OPTIONS,
		},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			echo.HeaderXRequestedWith,
			echo.HeaderAuthorization,
		},
	}))

	e.Use(middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(cfg.RateLimit),
				Burst:     cfg.RateBurst,
				ExpiresIn: cfg.RateWindow,
			},
		),
	}))

	// base64 JSON media is a third larger than the file itself
	limitKB := cfg.MediaMaxBytes*3/2/1024 + 1024
	e.Use(middleware.BodyLimit(fmt.Sprintf("%dK", limitKB)))
	return e
}
