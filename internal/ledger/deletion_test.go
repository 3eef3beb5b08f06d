package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caisse/internal/core"
)

func TestFlow_Transitions(t *testing.T) {
	var f Flow
	assert.Equal(t, PhaseIdle, f.Phase())

	assert.ErrorIs(t, f.Choose(1), ErrInvalidTransition, "choose needs delete mode")
	assert.ErrorIs(t, f.Cancel(), ErrInvalidTransition)

	require.NoError(t, f.ToggleDeleteMode())
	assert.Equal(t, PhaseSelecting, f.Phase())

	require.NoError(t, f.Choose(7))
	assert.Equal(t, PhaseConfirming, f.Phase())
	assert.Equal(t, int64(7), f.Target())
	assert.ErrorIs(t, f.ToggleDeleteMode(), ErrInvalidTransition)

	require.NoError(t, f.Cancel())
	assert.Equal(t, PhaseSelecting, f.Phase())
	assert.Zero(t, f.Target())

	require.NoError(t, f.ToggleDeleteMode())
	assert.Equal(t, PhaseIdle, f.Phase())
}

func TestNewNotice(t *testing.T) {
	tests := []struct {
		outcome Outcome
		title   string
		refresh bool
	}{
		{OutcomeDeleted, "Encaissement supprimé", true},
		{OutcomeQueued, "Suppression programmée", false},
		{OutcomeFailed, "Échec de la suppression", false},
		{"", "Échec de la suppression", false},
	}
	for _, tt := range tests {
		t.Run(string(tt.outcome), func(t *testing.T) {
			n := NewNotice(12, tt.outcome)
			assert.Equal(t, tt.title, n.Title)
			assert.Contains(t, n.Message, "12")
			assert.Equal(t, 10*time.Second, n.Duration)
			assert.Equal(t, tt.refresh, n.Refresh)
		})
	}
}

func loadedSession(t *testing.T) *Session {
	t.Helper()
	s := NewSession(fixedNow)
	ds := core.Dataset{
		Records: []core.Record{
			{ID: 1, Date: "2024-03-01", Time: "10:00:00", Service: id(1), Employee: id(1), Amount: amount("50.00")},
			{ID: 2, Date: "2024-03-15", Time: "11:00:00", Amount: amount("30.00")},
		},
		Services:  testServices,
		Employees: testEmployees,
		FetchedAt: fixedNow(),
	}
	require.NoError(t, s.Load(ds))
	return s
}

func TestSession_ConfirmDeletes(t *testing.T) {
	s := loadedSession(t)
	require.NoError(t, s.ToggleDeleteMode())
	require.NoError(t, s.Choose(1))

	var gotToken string
	var gotID int64
	d := DeleterFunc(func(_ context.Context, token string, id int64) (Outcome, error) {
		gotToken, gotID = token, id
		return OutcomeDeleted, nil
	})

	n, err := s.Confirm(context.Background(), "tok", d)
	require.NoError(t, err)
	assert.Equal(t, "tok", gotToken)
	assert.Equal(t, int64(1), gotID)
	assert.Equal(t, OutcomeDeleted, n.Outcome)

	p := s.Page()
	assert.Equal(t, PhaseSelecting, p.Phase)
	assert.Equal(t, []int64{2}, ids(p.Rows))
	assert.Equal(t, "30.00", p.Summary.Total.StringFixed(2))
}

func TestSession_ConfirmRevertsOnFailure(t *testing.T) {
	s := loadedSession(t)
	require.NoError(t, s.ToggleDeleteMode())
	require.NoError(t, s.Choose(1))

	boom := errors.New("remote down")
	n, err := s.Confirm(context.Background(), "tok", DeleterFunc(func(context.Context, string, int64) (Outcome, error) {
		return "", boom
	}))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, OutcomeFailed, n.Outcome)

	p := s.Page()
	assert.Equal(t, PhaseSelecting, p.Phase)
	assert.Equal(t, []int64{2, 1}, ids(p.Rows))
	assert.Equal(t, 2, p.Summary.Count)
}

func TestSession_ConfirmHidesRowWhileDeleting(t *testing.T) {
	s := loadedSession(t)
	require.NoError(t, s.ToggleDeleteMode())
	require.NoError(t, s.Choose(2))

	started := make(chan struct{})
	release := make(chan struct{})
	d := DeleterFunc(func(context.Context, string, int64) (Outcome, error) {
		close(started)
		<-release
		return OutcomeQueued, nil
	})

	var wg sync.WaitGroup
	wg.Add(1)
	var n Notice
	go func() {
		defer wg.Done()
		n, _ = s.Confirm(context.Background(), "tok", d)
	}()

	<-started
	p := s.Page()
	assert.Equal(t, PhaseDeleting, p.Phase)
	assert.Equal(t, []int64{1}, ids(p.Rows))

	_, err := s.Confirm(context.Background(), "tok", d)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	close(release)
	wg.Wait()
	assert.Equal(t, OutcomeQueued, n.Outcome)
}

func TestSession_FailedDeleteHonoursSearchChangedMeanwhile(t *testing.T) {
	s := loadedSession(t)
	require.NoError(t, s.ToggleDeleteMode())
	require.NoError(t, s.Choose(2))

	started := make(chan struct{})
	release := make(chan struct{})
	boom := errors.New("remote down")
	d := DeleterFunc(func(context.Context, string, int64) (Outcome, error) {
		close(started)
		<-release
		return OutcomeFailed, boom
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = s.Confirm(context.Background(), "tok", d)
	}()

	<-started
	s.SetSearch("smith")
	close(release)
	wg.Wait()

	p := s.Page()
	assert.Equal(t, "smith", p.State.Search)
	assert.Equal(t, []int64{1}, ids(p.Rows))
	assert.Equal(t, 1, p.Summary.Count)
	assert.Equal(t, "50.00", p.Summary.Total.StringFixed(2))

	s.SetSearch("")
	assert.ElementsMatch(t, []int64{1, 2}, ids(s.Page().Rows))
}

func TestSession_ChooseUnknownRecord(t *testing.T) {
	s := loadedSession(t)
	require.NoError(t, s.ToggleDeleteMode())
	assert.ErrorIs(t, s.Choose(99), ErrUnknownRecord)
	assert.Equal(t, PhaseSelecting, s.Page().Phase)
}

func TestSession_LoadFailureKeepsRows(t *testing.T) {
	s := loadedSession(t)
	err := s.Load(core.Dataset{Records: []core.Record{{ID: 9, Date: "bad", Time: "10:00:00"}}})
	assert.ErrorIs(t, err, core.ErrInvalidDate)
	assert.Len(t, s.Page().Rows, 2)
}
