package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"cobros/internal/cli"
	apphttp "cobros/internal/http"
	"cobros/internal/log"
	"cobros/internal/metrics"
	"cobros/internal/services"
)

func main() {
	cfg, logger := cli.Bootstrap(log.ComponentApp)

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	be := cli.OpenBackend(ctx, logger, cfg)
	defer func() {
		if err := be.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", log.FieldError, err)
		}
	}()

	m := metrics.New(nil)
	opts := []services.Option{
		services.WithMetrics(m),
		services.WithLogger(logger.WithComponent(log.ComponentBilling)),
	}
	if be.Publisher != nil {
		opts = append(opts, services.WithPublisher(be.Publisher))
	}
	svc := services.NewBillingService(be.Store, opts...)

	srv := apphttp.NewServer(svc, apphttp.Options{
		Addr:               ":" + cfg.Port,
		DefaultOwnerID:     cfg.DefaultOwnerID,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		DashboardCacheSize: cfg.DashboardCacheSize,
		DashboardCacheTTL:  cfg.DashboardCacheTTL,
		Metrics:            m,
		Logger:             logger.WithComponent(log.ComponentHTTP),
	})
	srv.ReadTimeout = 15 * time.Second
	srv.WriteTimeout = 30 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting cobros server",
			"port", cfg.Port,
			"backend", cfg.DataBackend,
			"events", be.Publisher != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", log.FieldError, err)
	}
	logger.Info("Server stopped gracefully", log.FieldOperation, log.OpShutdown)
}
