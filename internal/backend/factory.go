package backend

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"caisse/internal/amqp"
	"caisse/internal/config"
	"caisse/internal/credential"
	"caisse/internal/export/sheets"
	"caisse/internal/loader"
	"caisse/internal/remote"
	"caisse/internal/remote/memory"
	"caisse/internal/remote/rest"
	"caisse/internal/services"
	"caisse/internal/storage"
)

type Factory struct {
	logger *slog.Logger
	now    func() time.Time
}

func NewFactory(logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{logger: logger, now: time.Now}
}

// Create builds the backend. A broker that cannot be reached is not fatal:
// deletions are still written to the outbox and the worker sweep sends them.
func (f *Factory) Create(ctx context.Context, cfg *config.Config) (*Backend, error) {
	b := &Backend{}

	api, err := f.createAPI(cfg)
	if err != nil {
		return nil, err
	}
	b.API = api

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}
	b.Storage = repo
	b.onClose(repo.Close)

	opts := []loader.Option{loader.WithSnapshots(repo)}
	if cfg.Queued() {
		box, err := credential.NewBox(cfg.CredentialKey)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("queued deletions: %w", err)
		}
		b.Credentials = box
		opts = append(opts, loader.WithPending(repo))
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, deletions wait for the sweep", "error", err)
			b.Deleter = services.NewQueuedDeletionService(repo, nil, box)
		} else {
			f.logger.Info("Initialized AMQP client", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
			b.Queue = client
			b.onClose(client.Close)
			b.Deleter = services.NewQueuedDeletionService(repo, client, box)
		}
	} else {
		b.Deleter = services.NewInlineDeletionService(api)
	}
	b.Loader = loader.New(api, opts...)

	if cfg.SheetsEnabled() {
		sc, err := sheets.New(ctx, cfg.GoogleSpreadsheetID, sheets.Credentials{
			JSON: cfg.GoogleServiceAccountJSON,
			File: cfg.GoogleServiceAccountFile,
		})
		if err != nil {
			// Exports are optional; the ledger works without them.
			f.logger.Warn("Google Sheets export disabled", "error", err)
		} else {
			b.Sheets = sc
		}
	}

	f.logger.Info("Initialized backend",
		"data_backend", cfg.DataBackend,
		"db_path", cfg.SQLiteDBPath,
		"deletions", deletionMode(b),
		"sheets_export", b.Sheets != nil)
	return b, nil
}

func (f *Factory) createAPI(cfg *config.Config) (remote.API, error) {
	switch cfg.DataBackend {
	case config.BackendREST:
		c, err := rest.New(cfg.APIBaseURL, cfg.APITimeout)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize salon API client: %w", err)
		}
		return c, nil
	case config.BackendMemory:
		s, err := memory.NewFromFiles(cfg.DataDir, f.now().In(cfg.TimeLocation()))
		if err != nil {
			return nil, fmt.Errorf("failed to load memory backend: %w", err)
		}
		f.logger.Info("Using in-memory salon data", "data_directory", cfg.DataDir)
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported data backend: %s", cfg.DataBackend)
	}
}

func deletionMode(b *Backend) string {
	switch {
	case !b.Deleter.Queued():
		return "inline"
	case b.Queue == nil:
		return "outbox"
	default:
		return "queued"
	}
}
