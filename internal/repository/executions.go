package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/expense-auditor/internal/entity"
)

// DefaultListLimit caps list queries when the caller passes no limit.
const DefaultListLimit = 100

// ExecutionRepository persists execution records. A record is created running and
// completed exactly once.
type ExecutionRepository interface {
	Create(ctx context.Context, exec *entity.Execution) error
	// Complete applies the terminal update. It fails with ErrInvalidTransition when the
	// record is already terminal.
	Complete(ctx context.Context, id uuid.UUID, c entity.Completion) (*entity.Execution, error)
	Get(ctx context.Context, id uuid.UUID) (*entity.Execution, error)
	// List returns the most recent executions first.
	List(ctx context.Context, limit int) ([]*entity.Execution, error)
	ListByAgent(ctx context.Context, agentID string, limit int) ([]*entity.Execution, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Ping(ctx context.Context) error
}

const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func listLimit(n int) int {
	if n <= 0 || n > 1000 {
		return DefaultListLimit
	}
	return n
}
