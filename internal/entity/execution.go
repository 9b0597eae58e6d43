package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/expense-auditor/constants"
)

// Execution is the persisted record of one session run.
type Execution struct {
	ID           uuid.UUID                 `json:"id"`
	AgentID      string                    `json:"agent_id"`
	Status       constants.ExecutionStatus `json:"status"`
	StartTime    time.Time                 `json:"start_time"`
	EndTime      *time.Time                `json:"end_time,omitempty"`
	InputSummary InputSummary              `json:"input_summary"`
	Result       *Result                   `json:"result"`
	Error        *string                   `json:"error,omitempty"`
}

// InputSummary describes what a session was given.
type InputSummary struct {
	ExpenseDocuments   []string `json:"expense_documents"`
	ReferenceDocuments []string `json:"reference_documents"`
	ValidationMode     string   `json:"validation_mode"`
	AmountThreshold    float64  `json:"amount_threshold"`
}

// Result is the terminal output of a completed session.
type Result struct {
	Reference *ReferenceRecord `json:"reference,omitempty"`
	Expenses  []ExpenseRecord  `json:"expenses"`
	Verdicts  []Verdict        `json:"verdicts"`
	Failures  []PageFailure    `json:"failures,omitempty"`
}

// Completion is the single terminal update applied to a running execution.
type Completion struct {
	Status  constants.ExecutionStatus
	EndTime time.Time
	Result  *Result
	Error   *string
}
