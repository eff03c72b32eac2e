package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/ers/ers/internal/config"
	"github.com/ers/ers/internal/domain/emergency"
	"github.com/ers/ers/internal/platform/middleware"
	"github.com/ers/ers/internal/platform/sandbox"
	"github.com/ers/ers/internal/platform/telemetry"
)

type server struct {
	echo      *echo.Echo
	svc       *emergency.Service
	telemetry *telemetry.Provider
}

// newServer wires the ledger, telemetry and HTTP routes. Extra telemetry
// options are passed through (tests attach a ManualReader).
func newServer(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts ...telemetry.Option) (*server, error) {
	ipExtractor, err := middleware.IPExtractor(cfg.TrustedProxies)
	if err != nil {
		return nil, err
	}

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		ServiceName:    "ers-server",
		ServiceVersion: version,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.OTLPEndpoint,
	}, opts...)
	if err != nil {
		return nil, err
	}

	ledger := emergency.NewLedger(emergency.Metrics{
		AvailableBeds:   cfg.InitialBeds,
		AvgResponseTime: cfg.InitialAvgResponseTime,
	})
	svc := emergency.NewService(ledger, logger)
	svc.SetRecorder(tp)
	svc.SetBookingGenerator(sandbox.NewGenerator(cfg.SimulationSeed))
	if err := tp.ObserveLedger(svc); err != nil {
		return nil, err
	}

	seeder := sandbox.NewSeeder(svc)
	if cfg.SeedDemo {
		res := seeder.SeedDemo(ctx)
		logger.Info().Int("cases", len(res.Cases)).Msg("demo cases seeded")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.IPExtractor = ipExtractor

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(tp.Middleware())
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch},
		AllowHeaders: []string{"Content-Type", middleware.RequestIDHeader, middleware.DashboardHeader},
	}))
	e.Use(middleware.Audit(logger, tp))

	rateLimitCfg := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rateLimitCfg.RequestsPerSecond = cfg.RateLimitRPS
	}
	if cfg.RateLimitBurst > 0 {
		rateLimitCfg.BurstSize = cfg.RateLimitBurst
	}

	apiV1 := e.Group("/api/v1")
	apiV1.Use(middleware.RateLimit(rateLimitCfg))
	emergency.NewHandler(svc).RegisterRoutes(apiV1)
	if !cfg.IsProduction() {
		sandbox.NewSeedHandler(seeder).RegisterRoutes(apiV1)
	}

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})

	return &server{echo: e, svc: svc, telemetry: tp}, nil
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return err
	}

	ctx := context.Background()
	srv, err := newServer(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to build server")
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Bool("tls", cfg.TLSEnabled).Msg("starting server")
		var err error
		if cfg.TLSEnabled {
			err = srv.echo.StartTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = srv.echo.Start(addr)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.echo.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	if err := srv.telemetry.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("telemetry shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
