package pipeline

import (
	"fmt"

	"github.com/joseph-ayodele/expense-auditor/internal/entity"
)

// State is a node of the session state machine.
type State int

const (
	StateCreated State = iota
	StateExpensesExtracted
	StateReferenceExtracted
	StateValidated
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "CREATED"
	case StateExpensesExtracted:
		return "EXPENSES_EXTRACTED"
	case StateReferenceExtracted:
		return "REFERENCE_EXTRACTED"
	case StateValidated:
		return "VALIDATED"
	case StateErrored:
		return "ERRORED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateValidated || s == StateErrored
}

// Session is one immutable snapshot of a session. Each stage returns a new snapshot;
// slices held by a snapshot are never written after it is returned.
type Session struct {
	ID                string
	ExpenseLocation   string
	ReferenceLocation string

	State      State
	Expenses   []entity.ExpenseRecord
	References []entity.ReferenceRecord
	// Reference is the canonical reference record, set once REFERENCE_EXTRACTED is reached.
	Reference *entity.ReferenceRecord
	Verdicts  []entity.Verdict
	Failures  []entity.PageFailure

	// Err is the cause of the move to ERRORED.
	Err error
}

// NewSession returns a CREATED session over two source locations.
func NewSession(id, expenseLocation, referenceLocation string) Session {
	return Session{
		ID:                id,
		ExpenseLocation:   expenseLocation,
		ReferenceLocation: referenceLocation,
		State:             StateCreated,
	}
}

func (s Session) errored(err error) Session {
	s.State = StateErrored
	s.Err = err
	return s
}

// withFailures returns failures appended to a fresh copy of the snapshot's list.
func (s Session) withFailures(more []entity.PageFailure) []entity.PageFailure {
	out := make([]entity.PageFailure, 0, len(s.Failures)+len(more))
	out = append(out, s.Failures...)
	return append(out, more...)
}
