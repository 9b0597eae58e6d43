package async

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrQueueClosed is returned by Enqueue once Shutdown has started.
var ErrQueueClosed = errors.New("queue is shutting down")

// Job is one accepted session waiting for a worker.
type Job struct {
	ExecutionID       uuid.UUID
	AgentID           string
	ExpenseLocation   string
	ReferenceLocation string
	SubmittedAt       time.Time
	// Cleanup releases the job's inputs once it has been processed. Optional.
	Cleanup func()
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}

// Processor runs one job to completion.
type Processor interface {
	Process(ctx context.Context, job Job) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, job Job) error

func (f ProcessorFunc) Process(ctx context.Context, job Job) error { return f(ctx, job) }
