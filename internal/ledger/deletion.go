package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Phase is the step of the deletion flow.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSelecting
	PhaseConfirming
	PhaseDeleting
)

func (p Phase) String() string {
	switch p {
	case PhaseSelecting:
		return "selecting"
	case PhaseConfirming:
		return "confirming"
	case PhaseDeleting:
		return "deleting"
	default:
		return "idle"
	}
}

// Outcome is what a deleter did with a request.
type Outcome string

const (
	OutcomeDeleted Outcome = "deleted"
	OutcomeQueued  Outcome = "queued"
	OutcomeFailed  Outcome = "failed"
)

// NoticeDuration is how long the deletion notice stays on screen.
const NoticeDuration = 10 * time.Second

var (
	ErrInvalidTransition = errors.New("invalid deletion transition")
	ErrUnknownRecord     = errors.New("unknown record")
)

// Deleter removes a record remotely, either right away or by queueing it.
type Deleter interface {
	Delete(ctx context.Context, token string, id int64) (Outcome, error)
}

// DeleterFunc adapts a function to Deleter.
type DeleterFunc func(ctx context.Context, token string, id int64) (Outcome, error)

func (f DeleterFunc) Delete(ctx context.Context, token string, id int64) (Outcome, error) {
	return f(ctx, token, id)
}

// Notice is the dismissible message shown after a confirmed deletion.
type Notice struct {
	RecordID int64         `json:"record_id"`
	Outcome  Outcome       `json:"outcome"`
	Title    string        `json:"title"`
	Message  string        `json:"message"`
	Duration time.Duration `json:"duration"`
	// Refresh asks the caller to reload the ledger.
	Refresh bool `json:"refresh"`
}

func NewNotice(id int64, outcome Outcome) Notice {
	n := Notice{RecordID: id, Outcome: outcome, Duration: NoticeDuration}
	switch outcome {
	case OutcomeDeleted:
		n.Title = "Encaissement supprimé"
		n.Message = fmt.Sprintf("L'encaissement %d a été supprimé", id)
		n.Refresh = true
	case OutcomeQueued:
		n.Title = "Suppression programmée"
		n.Message = fmt.Sprintf("La suppression de l'encaissement %d est en cours", id)
	default:
		n.Outcome = OutcomeFailed
		n.Title = "Échec de la suppression"
		n.Message = fmt.Sprintf("L'encaissement %d n'a pas pu être supprimé", id)
	}
	return n
}

// Flow is the idle → selecting → confirming → deleting state machine.
// The zero value is idle.
type Flow struct {
	phase  Phase
	target int64
}

func (f *Flow) Phase() Phase { return f.phase }

// Target is the record awaiting confirmation or deletion, 0 otherwise.
func (f *Flow) Target() int64 { return f.target }

// ToggleDeleteMode switches between idle and selecting.
func (f *Flow) ToggleDeleteMode() error {
	switch f.phase {
	case PhaseIdle:
		f.phase = PhaseSelecting
	case PhaseSelecting:
		f.phase = PhaseIdle
	default:
		return fmt.Errorf("%w: toggle while %s", ErrInvalidTransition, f.phase)
	}
	return nil
}

// Choose captures the record to delete and asks for confirmation.
func (f *Flow) Choose(id int64) error {
	if f.phase != PhaseSelecting {
		return fmt.Errorf("%w: choose while %s", ErrInvalidTransition, f.phase)
	}
	f.phase = PhaseConfirming
	f.target = id
	return nil
}

// Cancel dismisses the confirmation and goes back to selecting.
func (f *Flow) Cancel() error {
	if f.phase != PhaseConfirming {
		return fmt.Errorf("%w: cancel while %s", ErrInvalidTransition, f.phase)
	}
	f.phase = PhaseSelecting
	f.target = 0
	return nil
}

func (f *Flow) begin() (int64, error) {
	if f.phase != PhaseConfirming {
		return 0, fmt.Errorf("%w: confirm while %s", ErrInvalidTransition, f.phase)
	}
	f.phase = PhaseDeleting
	return f.target, nil
}

func (f *Flow) finish() {
	f.phase = PhaseSelecting
	f.target = 0
}
