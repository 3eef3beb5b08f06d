package storage

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"caisse/internal/core"

	_ "modernc.org/sqlite"
)

// Deletion statuses.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusDone       = "done"
	StatusFailed     = "failed"
)

var (
	ErrNoSnapshot       = errors.New("no snapshot")
	ErrDeletionNotFound = errors.New("deletion not found")
)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, queries: New(db)}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping is used by the readiness probe.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// OwnerKey derives the key that snapshots and outbox rows are filed under
// for a session token.
func OwnerKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func (r *SQLiteRepository) SaveSnapshot(ctx context.Context, token string, ds core.Dataset) error {
	payload, err := json.Marshal(ds)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	err = r.queries.UpsertSnapshot(ctx, UpsertSnapshotParams{
		Owner:     OwnerKey(token),
		Payload:   payload,
		Records:   int64(len(ds.Records)),
		FetchedAt: ds.FetchedAt,
	})
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	slog.DebugContext(ctx, "Snapshot saved", "records", len(ds.Records))
	return nil
}

// LoadSnapshot returns the last dataset saved for the token, flagged Stale.
func (r *SQLiteRepository) LoadSnapshot(ctx context.Context, token string) (core.Dataset, error) {
	s, err := r.queries.GetSnapshot(ctx, OwnerKey(token))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Dataset{}, ErrNoSnapshot
	}
	if err != nil {
		return core.Dataset{}, fmt.Errorf("load snapshot: %w", err)
	}
	var ds core.Dataset
	if err := json.Unmarshal(s.Payload, &ds); err != nil {
		return core.Dataset{}, fmt.Errorf("decode snapshot: %w", err)
	}
	ds.Stale = true
	return ds, nil
}

// EnqueueDeletion records a pending deletion for the record on behalf of
// owner. credential is the sealed token the worker deletes with. If a
// deletion is already open for the record it is returned unchanged.
func (r *SQLiteRepository) EnqueueDeletion(ctx context.Context, recordID int64, owner string, credential []byte) (Deletion, error) {
	if d, err := r.queries.GetOpenDeletionByRecord(ctx, recordID); err == nil {
		return d, nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return Deletion{}, fmt.Errorf("find open deletion: %w", err)
	}
	d, err := r.queries.CreateDeletion(ctx, CreateDeletionParams{
		RecordID:   recordID,
		Owner:      owner,
		Credential: credential,
	})
	if err != nil {
		return Deletion{}, fmt.Errorf("create deletion: %w", err)
	}
	slog.InfoContext(ctx, "Deletion queued", "deletion_id", d.ID, "record_id", recordID)
	return d, nil
}

func (r *SQLiteRepository) GetDeletion(ctx context.Context, id int64) (Deletion, error) {
	d, err := r.queries.GetDeletion(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Deletion{}, fmt.Errorf("deletion %d: %w", id, ErrDeletionNotFound)
	}
	if err != nil {
		return Deletion{}, fmt.Errorf("get deletion: %w", err)
	}
	return d, nil
}

func (r *SQLiteRepository) PendingDeletions(ctx context.Context, limit int) ([]Deletion, error) {
	if limit <= 0 {
		limit = 50
	}
	items, err := r.queries.ListPendingDeletions(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("list pending deletions: %w", err)
	}
	return items, nil
}

// PendingRecordIDs returns the records whose deletion has not settled yet.
func (r *SQLiteRepository) PendingRecordIDs(ctx context.Context) (map[int64]struct{}, error) {
	ids, err := r.queries.ListOpenDeletionRecordIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list open deletions: %w", err)
	}
	out := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out, nil
}

// ClaimDeletion marks a pending deletion as processing. It reports false
// when the row is not pending anymore.
func (r *SQLiteRepository) ClaimDeletion(ctx context.Context, id int64) (bool, error) {
	n, err := r.queries.ClaimDeletion(ctx, id)
	if err != nil {
		return false, fmt.Errorf("claim deletion: %w", err)
	}
	return n == 1, nil
}

func (r *SQLiteRepository) MarkDeletionDone(ctx context.Context, id int64) error {
	return r.setStatus(ctx, id, StatusDone, "")
}

func (r *SQLiteRepository) MarkDeletionFailed(ctx context.Context, id int64, cause error) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	slog.WarnContext(ctx, "Deletion marked as failed", "deletion_id", id, "error", msg)
	return r.setStatus(ctx, id, StatusFailed, msg)
}

// ReleaseDeletion puts a processing deletion back to pending for a retry.
func (r *SQLiteRepository) ReleaseDeletion(ctx context.Context, id int64, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return r.setStatus(ctx, id, StatusPending, msg)
}

// ResetStaleProcessing releases deletions stuck in processing for longer
// than olderThan, e.g. after a worker crash.
func (r *SQLiteRepository) ResetStaleProcessing(ctx context.Context, olderThan time.Duration) (int64, error) {
	n, err := r.queries.ResetStaleDeletions(ctx, time.Now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("reset stale deletions: %w", err)
	}
	if n > 0 {
		slog.InfoContext(ctx, "Released stale deletions", "count", n)
	}
	return n, nil
}

func (r *SQLiteRepository) setStatus(ctx context.Context, id int64, status, lastError string) error {
	n, err := r.queries.SetDeletionStatus(ctx, SetDeletionStatusParams{
		ID:        id,
		Status:    status,
		LastError: sql.NullString{String: lastError, Valid: lastError != ""},
	})
	if err != nil {
		return fmt.Errorf("set deletion %d %s: %w", id, status, err)
	}
	if n == 0 {
		return fmt.Errorf("deletion %d: %w", id, ErrDeletionNotFound)
	}
	return nil
}
