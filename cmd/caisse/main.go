package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"
	_ "time/tzdata"

	"caisse/internal/backend"
	"caisse/internal/cli"
	"caisse/internal/config"
	apphttp "caisse/internal/http"
	"caisse/internal/log"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.MustLoadConfig((*config.Config).Validate)
	logger := cli.SetupLogger(cfg, log.ComponentApp)

	ctx, stop := cli.SignalContext()
	defer stop()

	b, err := backend.NewFactory(logger.WithComponent(log.ComponentBackend).Logger).Create(ctx, cfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err.Error())
		os.Exit(1)
	}
	defer func() {
		if err := b.Close(); err != nil {
			logger.Error("Backend close error", log.FieldError, err.Error())
		}
	}()

	deps := apphttp.Deps{
		Loader:  b.Loader,
		Deleter: b.Deleter,
		Booking: b.API,
		Ready: map[string]apphttp.Checker{
			"storage": b.Storage.Ping,
		},
	}
	if b.Sheets != nil {
		deps.Sheets = b.Sheets
	}
	if b.Queue != nil {
		deps.Ready["broker"] = func(context.Context) error {
			if !b.Queue.Healthy() {
				return errors.New("broker unavailable")
			}
			return nil
		}
	}

	srv, err := apphttp.NewServer(":"+cfg.Port, deps, apphttp.Options{
		SessionTTL:         cfg.SessionTTL,
		SessionMax:         cfg.SessionMax,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		TrustedProxies:     cfg.TrustedProxies,
		Location:           cfg.TimeLocation(),
		Logger:             logger.WithComponent(log.ComponentHTTP),
	})
	if err != nil {
		logger.Error("Failed to create HTTP server", log.FieldError, err.Error())
		os.Exit(1)
	}
	srv.MaxHeaderBytes = 1 << 16

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting caisse server", "port", cfg.Port, "data_backend", cfg.DataBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error("Server error", log.FieldError, err.Error(), "port", cfg.Port)
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", log.FieldOperation, log.OpShutdown, log.FieldError, err.Error())
	}
	logger.Info("Server stopped gracefully")
}
