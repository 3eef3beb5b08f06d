// Package worker performs the remote side of queued deletions.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"caisse/internal/amqp"
	"caisse/internal/remote"
	"caisse/internal/storage"
)

const DefaultMaxAttempts = 5

// DeletionStore is the part of the outbox the worker drives.
type DeletionStore interface {
	GetDeletion(ctx context.Context, id int64) (storage.Deletion, error)
	PendingDeletions(ctx context.Context, limit int) ([]storage.Deletion, error)
	ClaimDeletion(ctx context.Context, id int64) (bool, error)
	MarkDeletionDone(ctx context.Context, id int64) error
	MarkDeletionFailed(ctx context.Context, id int64, cause error) error
	ReleaseDeletion(ctx context.Context, id int64, cause error) error
}

// TokenOpener recovers the session token sealed into an outbox row.
type TokenOpener interface {
	Open(sealed []byte) (string, error)
}

// DeletionWorker issues the REST DELETE for outbox rows, authenticated
// with the token of the session that asked for the deletion.
type DeletionWorker struct {
	store       DeletionStore
	api         remote.RecordDeleter
	opener      TokenOpener
	batchSize   int
	maxAttempts int64
}

func NewDeletionWorker(store DeletionStore, api remote.RecordDeleter, opener TokenOpener, batchSize, maxAttempts int) *DeletionWorker {
	if batchSize <= 0 {
		batchSize = 10
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &DeletionWorker{
		store:       store,
		api:         api,
		opener:      opener,
		batchSize:   batchSize,
		maxAttempts: int64(maxAttempts),
	}
}

// HandleDeletionMessage processes one AMQP delivery. A returned error asks
// the broker to redeliver.
func (w *DeletionWorker) HandleDeletionMessage(ctx context.Context, msg *amqp.DeletionMessage) error {
	slog.InfoContext(ctx, "Processing deletion message",
		"deletion_id", msg.DeletionID,
		"record_id", msg.RecordID)

	d, err := w.store.GetDeletion(ctx, msg.DeletionID)
	if errors.Is(err, storage.ErrDeletionNotFound) {
		slog.WarnContext(ctx, "Deletion message for unknown outbox row, dropping", "deletion_id", msg.DeletionID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get deletion: %w", err)
	}
	return w.process(ctx, d)
}

// ProcessPending handles one batch of pending rows and returns how many
// were attempted.
func (w *DeletionWorker) ProcessPending(ctx context.Context) (int, error) {
	items, err := w.store.PendingDeletions(ctx, w.batchSize)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, d := range items {
		if ctx.Err() != nil {
			return n, ctx.Err()
		}
		if err := w.process(ctx, d); err != nil {
			slog.ErrorContext(ctx, "Failed to process pending deletion", "deletion_id", d.ID, "error", err)
		}
		n++
	}
	return n, nil
}

func (w *DeletionWorker) process(ctx context.Context, d storage.Deletion) error {
	if d.Status != storage.StatusPending {
		slog.DebugContext(ctx, "Deletion already handled", "deletion_id", d.ID, "status", d.Status)
		return nil
	}
	claimed, err := w.store.ClaimDeletion(ctx, d.ID)
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}
	attempts := d.Attempts + 1

	token, err := w.opener.Open(d.Credential)
	if err != nil {
		slog.ErrorContext(ctx, "Deletion credential unusable",
			"deletion_id", d.ID, "record_id", d.RecordID, "error", err)
		return w.store.MarkDeletionFailed(ctx, d.ID, fmt.Errorf("open credential: %w", err))
	}

	err = w.api.DeleteRecord(ctx, token, d.RecordID)
	switch {
	case err == nil, errors.Is(err, remote.ErrNotFound):
		slog.InfoContext(ctx, "Encaissement deleted", "deletion_id", d.ID, "record_id", d.RecordID)
		return w.store.MarkDeletionDone(ctx, d.ID)

	case errors.Is(err, remote.ErrUnauthorized):
		// The session expired or may not delete this record.
		return w.store.MarkDeletionFailed(ctx, d.ID, err)

	case attempts >= w.maxAttempts:
		slog.ErrorContext(ctx, "Giving up on deletion",
			"deletion_id", d.ID, "record_id", d.RecordID, "attempts", attempts, "error", err)
		return w.store.MarkDeletionFailed(ctx, d.ID, err)

	default:
		if rerr := w.store.ReleaseDeletion(ctx, d.ID, err); rerr != nil {
			slog.ErrorContext(ctx, "Failed to release deletion", "deletion_id", d.ID, "error", rerr)
		}
		return fmt.Errorf("delete encaissement %d: %w", d.RecordID, err)
	}
}
