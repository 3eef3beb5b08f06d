package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"caisse/internal/core"
)

// Page is a consistent copy of a session for rendering.
type Page struct {
	Rows     []Row     `json:"rows"`
	Summary  Summary   `json:"summary"`
	State    State     `json:"state"`
	Phase    Phase     `json:"-"`
	Target   int64     `json:"-"`
	Loaded   bool      `json:"loaded"`
	Stale    bool      `json:"stale"`
	LoadedAt time.Time `json:"loaded_at"`
}

func (p Page) Selecting() bool  { return p.Phase == PhaseSelecting }
func (p Page) Confirming() bool { return p.Phase == PhaseConfirming }

// Session is one user's ledger view plus their deletion flow.
type Session struct {
	mu       sync.Mutex
	view     *View
	flow     Flow
	loaded   bool
	stale    bool
	loadedAt time.Time
}

func NewSession(now func() time.Time) *Session {
	return &Session{view: NewView(now)}
}

// Load formats a dataset and replaces the rows. On error the previous rows
// are kept.
func (s *Session) Load(ds core.Dataset) error {
	rows, err := FormatDataset(ds)
	if err != nil {
		return fmt.Errorf("format dataset: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view.Replace(rows)
	s.loaded = true
	s.stale = ds.Stale
	s.loadedAt = ds.FetchedAt
	return nil
}

func (s *Session) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

func (s *Session) SetBucket(b Bucket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view.SetBucket(b)
}

func (s *Session) SetSearch(term string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view.SetSearch(term)
}

func (s *Session) SetSort(k SortKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view.SetSort(k)
}

func (s *Session) ToggleInvert() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view.ToggleInvert()
}

func (s *Session) Page() Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Page{
		Rows:     s.view.Results(),
		Summary:  s.view.Summary(),
		State:    s.view.State(),
		Phase:    s.flow.Phase(),
		Target:   s.flow.Target(),
		Loaded:   s.loaded,
		Stale:    s.stale,
		LoadedAt: s.loadedAt,
	}
}

func (s *Session) ToggleDeleteMode() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flow.ToggleDeleteMode()
}

func (s *Session) Choose(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.view.Find(id); !ok {
		return fmt.Errorf("%w: %d", ErrUnknownRecord, id)
	}
	return s.flow.Choose(id)
}

func (s *Session) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flow.Cancel()
}

// Confirm deletes the chosen record. The row leaves the view before the
// deleter runs and comes back if the deleter fails. The lock is released
// while the deleter runs; a second Confirm in the meantime gets
// ErrInvalidTransition.
func (s *Session) Confirm(ctx context.Context, token string, d Deleter) (Notice, error) {
	s.mu.Lock()
	id, err := s.flow.begin()
	if err != nil {
		s.mu.Unlock()
		return Notice{}, err
	}
	rm, _ := s.view.Remove(id)
	s.mu.Unlock()

	outcome, derr := d.Delete(ctx, token, id)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.flow.finish()
	if derr != nil || outcome == OutcomeFailed {
		s.view.Restore(rm)
		return NewNotice(id, OutcomeFailed), derr
	}
	return NewNotice(id, outcome), nil
}
