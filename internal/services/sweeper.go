package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

type (
	PendingProcessor interface {
		ProcessPending(ctx context.Context) (int, error)
	}

	StaleResetter interface {
		ResetStaleProcessing(ctx context.Context, olderThan time.Duration) (int64, error)
	}
)

type SweeperConfig struct {
	// Interval between two sweeps of the outbox (default 30s).
	Interval time.Duration
	// StaleAfter is how long a row may stay processing before it is
	// considered abandoned (default 5m).
	StaleAfter time.Duration
}

func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Interval:   30 * time.Second,
		StaleAfter: 5 * time.Minute,
	}
}

// Sweeper periodically hands pending outbox rows to the processor. It
// covers messages that were never published or got lost.
type Sweeper struct {
	processor PendingProcessor
	resetter  StaleResetter
	config    SweeperConfig

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewSweeper(processor PendingProcessor, resetter StaleResetter, config SweeperConfig) *Sweeper {
	def := DefaultSweeperConfig()
	if config.Interval <= 0 {
		config.Interval = def.Interval
	}
	if config.StaleAfter <= 0 {
		config.StaleAfter = def.StaleAfter
	}
	return &Sweeper{processor: processor, resetter: resetter, config: config}
}

// Start runs a first sweep right away, then one per interval.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("sweeper is already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	go s.runLoop(ctx)

	slog.InfoContext(ctx, "Deletion sweeper started", "interval", s.config.Interval)
	return nil
}

// Stop waits for the current sweep to finish or ctx to expire.
func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	done := s.doneCh
	s.mu.Unlock()

	select {
	case <-done:
		slog.InfoContext(ctx, "Deletion sweeper stopped")
		return nil
	case <-ctx.Done():
		slog.WarnContext(ctx, "Deletion sweeper stop timed out")
		return ctx.Err()
	}
}

func (s *Sweeper) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Sweeper) runLoop(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.SweepOnce(ctx)
	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce releases stale rows and processes one batch.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	if s.resetter != nil {
		if _, err := s.resetter.ResetStaleProcessing(ctx, s.config.StaleAfter); err != nil {
			slog.WarnContext(ctx, "Failed to reset stale deletions", "error", err)
		}
	}
	n, err := s.processor.ProcessPending(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Deletion sweep failed", "error", err)
		return
	}
	if n > 0 {
		slog.InfoContext(ctx, "Deletion sweep completed", "processed", n)
	}
}
