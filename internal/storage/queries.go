package storage

import (
	"context"
	"database/sql"
	"time"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type Snapshot struct {
	Owner     string
	Payload   []byte
	Records   int64
	FetchedAt time.Time
	UpdatedAt time.Time
}

type Deletion struct {
	ID         int64
	RecordID   int64
	Owner      string
	Credential []byte
	Status     string
	Attempts   int64
	LastError  sql.NullString
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

const upsertSnapshot = `
INSERT INTO snapshots (owner, payload, records, fetched_at, updated_at)
VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(owner) DO UPDATE SET
    payload = excluded.payload,
    records = excluded.records,
    fetched_at = excluded.fetched_at,
    updated_at = CURRENT_TIMESTAMP
`

type UpsertSnapshotParams struct {
	Owner     string
	Payload   []byte
	Records   int64
	FetchedAt time.Time
}

func (q *Queries) UpsertSnapshot(ctx context.Context, arg UpsertSnapshotParams) error {
	_, err := q.db.ExecContext(ctx, upsertSnapshot, arg.Owner, arg.Payload, arg.Records, arg.FetchedAt.UTC())
	return err
}

const getSnapshot = `
SELECT owner, payload, records, fetched_at, updated_at FROM snapshots WHERE owner = ?
`

func (q *Queries) GetSnapshot(ctx context.Context, owner string) (Snapshot, error) {
	var s Snapshot
	err := q.db.QueryRowContext(ctx, getSnapshot, owner).Scan(&s.Owner, &s.Payload, &s.Records, &s.FetchedAt, &s.UpdatedAt)
	return s, err
}

const createDeletion = `
INSERT INTO deletions (record_id, owner, credential) VALUES (?, ?, ?)
RETURNING id, record_id, owner, credential, status, attempts, last_error, created_at, updated_at
`

type CreateDeletionParams struct {
	RecordID   int64
	Owner      string
	Credential []byte
}

func (q *Queries) CreateDeletion(ctx context.Context, arg CreateDeletionParams) (Deletion, error) {
	return scanDeletion(q.db.QueryRowContext(ctx, createDeletion, arg.RecordID, arg.Owner, arg.Credential))
}

const getOpenDeletionByRecord = `
SELECT id, record_id, owner, credential, status, attempts, last_error, created_at, updated_at
FROM deletions WHERE record_id = ? AND status IN ('pending', 'processing')
`

func (q *Queries) GetOpenDeletionByRecord(ctx context.Context, recordID int64) (Deletion, error) {
	return scanDeletion(q.db.QueryRowContext(ctx, getOpenDeletionByRecord, recordID))
}

const getDeletion = `
SELECT id, record_id, owner, credential, status, attempts, last_error, created_at, updated_at
FROM deletions WHERE id = ?
`

func (q *Queries) GetDeletion(ctx context.Context, id int64) (Deletion, error) {
	return scanDeletion(q.db.QueryRowContext(ctx, getDeletion, id))
}

const listPendingDeletions = `
SELECT id, record_id, owner, credential, status, attempts, last_error, created_at, updated_at
FROM deletions WHERE status = 'pending'
ORDER BY created_at, id
LIMIT ?
`

func (q *Queries) ListPendingDeletions(ctx context.Context, limit int64) ([]Deletion, error) {
	rows, err := q.db.QueryContext(ctx, listPendingDeletions, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Deletion
	for rows.Next() {
		d, err := scanDeletion(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, rows.Err()
}

const listOpenDeletionRecordIDs = `
SELECT record_id FROM deletions WHERE status IN ('pending', 'processing')
`

func (q *Queries) ListOpenDeletionRecordIDs(ctx context.Context) ([]int64, error) {
	rows, err := q.db.QueryContext(ctx, listOpenDeletionRecordIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const claimDeletion = `
UPDATE deletions
SET status = 'processing', attempts = attempts + 1, updated_at = CURRENT_TIMESTAMP
WHERE id = ? AND status = 'pending'
`

// ClaimDeletion moves a pending deletion to processing and returns the
// number of rows changed (0 when another consumer got there first).
func (q *Queries) ClaimDeletion(ctx context.Context, id int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, claimDeletion, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Settled rows drop their credential.
const setDeletionStatus = `
UPDATE deletions
SET status = ?1,
    last_error = ?2,
    credential = CASE WHEN ?1 IN ('done', 'failed') THEN NULL ELSE credential END,
    updated_at = CURRENT_TIMESTAMP
WHERE id = ?3
`

type SetDeletionStatusParams struct {
	ID        int64
	Status    string
	LastError sql.NullString
}

func (q *Queries) SetDeletionStatus(ctx context.Context, arg SetDeletionStatusParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, setDeletionStatus, arg.Status, arg.LastError, arg.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const resetStaleDeletions = `
UPDATE deletions SET status = 'pending', updated_at = CURRENT_TIMESTAMP
WHERE status = 'processing' AND updated_at < ?
`

func (q *Queries) ResetStaleDeletions(ctx context.Context, before time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx, resetStaleDeletions, before.UTC().Format(sqliteTimeLayout))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// sqliteTimeLayout matches CURRENT_TIMESTAMP so text comparison orders correctly.
const sqliteTimeLayout = "2006-01-02 15:04:05"

type scanner interface {
	Scan(dest ...any) error
}

func scanDeletion(row scanner) (Deletion, error) {
	var d Deletion
	err := row.Scan(&d.ID, &d.RecordID, &d.Owner, &d.Credential, &d.Status, &d.Attempts, &d.LastError, &d.CreatedAt, &d.UpdatedAt)
	return d, err
}
