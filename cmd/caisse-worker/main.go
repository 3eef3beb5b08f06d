package main

import (
	"context"
	"errors"
	"os"
	"time"
	_ "time/tzdata"

	"caisse/internal/backend"
	"caisse/internal/cli"
	"caisse/internal/config"
	"caisse/internal/log"
	"caisse/internal/services"
	"caisse/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.MustLoadConfig((*config.Config).ValidateWorker)
	logger := cli.SetupLogger(cfg, log.ComponentWorker)

	logger.Info("Starting caisse-worker")

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

	// Each deletion runs with the token of the session that asked for it.
	w := worker.NewDeletionWorker(b.Storage, b.API, b.Credentials, cfg.SyncBatchSize, cfg.WorkerMaxAttempts)

	// The sweep sends what the consumer missed, and everything when the
	// broker is down.
	sweeper := services.NewSweeper(w, b.Storage, services.SweeperConfig{Interval: cfg.SyncInterval})
	if err := sweeper.Start(ctx); err != nil {
		logger.Error("Failed to start outbox sweeper", log.FieldError, err.Error())
		os.Exit(1)
	}

	if b.Queue != nil {
		go func() {
			err := b.Queue.ConsumeDeletions(ctx, w.HandleDeletionMessage)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption failed", log.FieldError, err.Error())
				stop()
			}
		}()
	} else {
		logger.Warn("Broker unavailable, relying on the outbox sweep only")
	}

	<-ctx.Done()
	logger.Info("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := sweeper.Stop(shutdownCtx); err != nil {
		logger.Error("Sweeper shutdown error", log.FieldOperation, log.OpShutdown, log.FieldError, err.Error())
	}
	logger.Info("Worker stopped gracefully")
}
