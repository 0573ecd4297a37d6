package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"moviments/internal/backend"
	"moviments/internal/cli"
	apphttp "moviments/internal/http"
	applog "moviments/internal/log"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	res, err := backend.NewFactory(logger.Logger).Build(ctx, cfg)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize backend", err, "backend", cfg.DataBackend)
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Cleanup failed", "error", err)
		}
	}()
	res.Caches.StartCleanup(time.Minute)
	if err := res.ScheduleReferenceRefresh(ctx, cfg.ReferenceRefresh); err != nil {
		cli.Fatal(logger, "Failed to schedule reference refresh", err)
	}

	srv := apphttp.NewServer(":"+cfg.Port, res.Service, apphttp.Options{
		Logger:             logger.WithComponent(applog.ComponentHTTP),
		MaxUploadBytes:     cfg.MaxUploadBytes,
		CORSOrigins:        cfg.CORSOrigins,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		TrustProxyHeaders:  cfg.TrustProxyHeaders,
		Ready:              res.Ledger.Ping,
	})

	errc := make(chan error, 1)
	go func() {
		logger.Info("Starting moviments server", "port", cfg.Port, "backend", cfg.DataBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			cli.Fatal(logger, "Server error", err, "port", cfg.Port)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}
	logger.Info("Server stopped gracefully")
}
