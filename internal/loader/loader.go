// Package loader fetches the ledger collections from the salon API.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"caisse/internal/core"
	"caisse/internal/remote"
)

type (
	SnapshotStore interface {
		SaveSnapshot(ctx context.Context, token string, ds core.Dataset) error
		LoadSnapshot(ctx context.Context, token string) (core.Dataset, error)
	}

	// PendingSource lists records whose deletion is queued but not settled.
	PendingSource interface {
		PendingRecordIDs(ctx context.Context) (map[int64]struct{}, error)
	}

	Source interface {
		remote.RecordLister
		remote.ServiceLister
		remote.EmployeeLister
	}
)

type Option func(*Loader)

func WithSnapshots(s SnapshotStore) Option { return func(l *Loader) { l.snapshots = s } }

func WithPending(p PendingSource) Option { return func(l *Loader) { l.pending = p } }

func WithClock(now func() time.Time) Option { return func(l *Loader) { l.now = now } }

type Loader struct {
	src       Source
	snapshots SnapshotStore
	pending   PendingSource
	now       func() time.Time
	group     singleflight.Group
}

func New(src Source, opts ...Option) *Loader {
	l := &Loader{src: src, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load fetches records, services and employees concurrently. Any failure
// fails the whole load. Concurrent loads for the same token share one
// fetch. Successful loads are saved as the token's snapshot.
func (l *Loader) Load(ctx context.Context, token string) (core.Dataset, error) {
	v, err, shared := l.group.Do(token, func() (any, error) {
		// Detached so one caller going away does not fail the others.
		return l.fetch(context.WithoutCancel(ctx), token)
	})
	if err != nil {
		return core.Dataset{}, err
	}
	if shared {
		slog.DebugContext(ctx, "Ledger load shared with a concurrent request")
	}
	return l.hidePending(ctx, v.(core.Dataset)), nil
}

func (l *Loader) fetch(ctx context.Context, token string) (core.Dataset, error) {
	var ds core.Dataset
	start := l.now()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		records, err := l.src.ListRecords(gctx, token)
		ds.Records = records
		return err
	})
	g.Go(func() error {
		services, err := l.src.ListServices(gctx, token)
		ds.Services = services
		return err
	})
	g.Go(func() error {
		employees, err := l.src.ListEmployees(gctx, token)
		ds.Employees = employees
		return err
	})
	if err := g.Wait(); err != nil {
		slog.WarnContext(ctx, "Ledger load failed", "error", err)
		return core.Dataset{}, fmt.Errorf("load ledger: %w", err)
	}
	ds.FetchedAt = l.now()

	slog.InfoContext(ctx, "Ledger loaded",
		"records", len(ds.Records),
		"services", len(ds.Services),
		"employees", len(ds.Employees),
		"duration_ms", ds.FetchedAt.Sub(start).Milliseconds())

	if l.snapshots != nil {
		if err := l.snapshots.SaveSnapshot(ctx, token, ds); err != nil {
			slog.WarnContext(ctx, "Failed to save ledger snapshot", "error", err)
		}
	}
	return ds, nil
}

// Fallback returns the token's last snapshot, flagged Stale. It is meant
// for sessions that have nothing to show after a failed Load.
func (l *Loader) Fallback(ctx context.Context, token string) (core.Dataset, error) {
	if l.snapshots == nil {
		return core.Dataset{}, errors.New("no snapshot store configured")
	}
	ds, err := l.snapshots.LoadSnapshot(ctx, token)
	if err != nil {
		return core.Dataset{}, fmt.Errorf("load snapshot: %w", err)
	}
	ds.Stale = true
	slog.InfoContext(ctx, "Serving ledger snapshot", "records", len(ds.Records), "fetched_at", ds.FetchedAt)
	return l.hidePending(ctx, ds), nil
}

func (l *Loader) hidePending(ctx context.Context, ds core.Dataset) core.Dataset {
	if l.pending == nil {
		return ds
	}
	ids, err := l.pending.PendingRecordIDs(ctx)
	if err != nil {
		slog.WarnContext(ctx, "Failed to read pending deletions", "error", err)
		return ds
	}
	return ds.Without(ids)
}
