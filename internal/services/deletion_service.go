package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"caisse/internal/ledger"
	"caisse/internal/remote"
	"caisse/internal/storage"
)

type (
	// DeletionQueue is the local outbox of deletions.
	DeletionQueue interface {
		EnqueueDeletion(ctx context.Context, recordID int64, owner string, credential []byte) (storage.Deletion, error)
	}

	// TokenSealer protects the session token stored with a queued deletion.
	TokenSealer interface {
		Seal(token string) ([]byte, error)
	}

	DeletionPublisher interface {
		PublishDeletion(ctx context.Context, deletionID, recordID int64) error
	}
)

// DeletionService deletes encaissements either inline, with a synchronous
// call to the salon API, or queued through the outbox and the worker.
type DeletionService struct {
	api       remote.RecordDeleter
	queue     DeletionQueue
	publisher DeletionPublisher
	sealer    TokenSealer
}

var _ ledger.Deleter = (*DeletionService)(nil)

// NewInlineDeletionService calls the API directly.
func NewInlineDeletionService(api remote.RecordDeleter) *DeletionService {
	return &DeletionService{api: api}
}

// NewQueuedDeletionService stores each deletion in the outbox together with
// the caller's sealed token, then publishes a message for the worker. The
// worker deletes with that token, so the salon API still decides whether
// the caller may delete. publisher may be nil; the worker sweep then picks
// the row up.
func NewQueuedDeletionService(queue DeletionQueue, publisher DeletionPublisher, sealer TokenSealer) *DeletionService {
	return &DeletionService{queue: queue, publisher: publisher, sealer: sealer}
}

func (s *DeletionService) Queued() bool { return s.queue != nil }

func (s *DeletionService) Delete(ctx context.Context, token string, id int64) (ledger.Outcome, error) {
	if s.queue != nil {
		return s.enqueue(ctx, token, id)
	}
	if s.api == nil {
		return ledger.OutcomeFailed, errors.New("no deletion backend configured")
	}
	err := s.api.DeleteRecord(ctx, token, id)
	switch {
	case err == nil:
		return ledger.OutcomeDeleted, nil
	case errors.Is(err, remote.ErrNotFound):
		// Already gone remotely, which is what the user asked for.
		slog.InfoContext(ctx, "Encaissement already deleted", "record_id", id)
		return ledger.OutcomeDeleted, nil
	default:
		return ledger.OutcomeFailed, fmt.Errorf("delete encaissement %d: %w", id, err)
	}
}

func (s *DeletionService) enqueue(ctx context.Context, token string, id int64) (ledger.Outcome, error) {
	if token == "" {
		return ledger.OutcomeFailed, fmt.Errorf("queue deletion of %d: %w", id, remote.ErrUnauthorized)
	}
	if s.sealer == nil {
		return ledger.OutcomeFailed, errors.New("no credential sealer configured")
	}
	credential, err := s.sealer.Seal(token)
	if err != nil {
		return ledger.OutcomeFailed, fmt.Errorf("seal credential: %w", err)
	}
	d, err := s.queue.EnqueueDeletion(ctx, id, storage.OwnerKey(token), credential)
	if err != nil {
		return ledger.OutcomeFailed, fmt.Errorf("queue deletion of %d: %w", id, err)
	}
	if s.publisher == nil {
		slog.WarnContext(ctx, "AMQP client not available, deletion left for the sweep", "deletion_id", d.ID)
		return ledger.OutcomeQueued, nil
	}
	if err := s.publisher.PublishDeletion(ctx, d.ID, id); err != nil {
		// The outbox row is pending either way.
		slog.ErrorContext(ctx, "Failed to publish deletion message",
			"deletion_id", d.ID, "record_id", id, "error", err)
	}
	return ledger.OutcomeQueued, nil
}
