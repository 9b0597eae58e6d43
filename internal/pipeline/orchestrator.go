package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/joseph-ayodele/expense-auditor/internal/common"
	"github.com/joseph-ayodele/expense-auditor/internal/document"
	"github.com/joseph-ayodele/expense-auditor/internal/entity"
	"github.com/joseph-ayodele/expense-auditor/internal/ingest"
	"github.com/joseph-ayodele/expense-auditor/internal/llm"
	"github.com/joseph-ayodele/expense-auditor/internal/validation"
)

// Decomposer expands a document into ordered page images.
type Decomposer interface {
	Decompose(ctx context.Context, doc document.Document) ([]document.Page, error)
}

// Config tunes stage execution.
type Config struct {
	// Concurrency bounds in-flight inference calls within a stage.
	Concurrency int
}

// Orchestrator walks a session through the state machine.
type Orchestrator struct {
	cfg        Config
	source     ingest.Source
	decomposer Decomposer
	extractor  llm.FieldExtractor
	validator  validation.Validator
	logger     *zap.Logger
}

func NewOrchestrator(cfg Config, source ingest.Source, decomposer Decomposer, extractor llm.FieldExtractor, validator validation.Validator, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 4
	}
	return &Orchestrator{
		cfg:        cfg,
		source:     source,
		decomposer: decomposer,
		extractor:  extractor,
		validator:  validator,
		logger:     logger,
	}
}

// Run steps s until it reaches a terminal state. The returned error is the session's
// terminal cause, nil when VALIDATED.
func (o *Orchestrator) Run(ctx context.Context, s Session) (Session, error) {
	for !s.State.Terminal() {
		s = o.Step(ctx, s)
	}
	return s, s.Err
}

// Step performs the single transition leaving s.State. A failed transition yields an
// ERRORED snapshot that keeps the state accumulated so far.
func (o *Orchestrator) Step(ctx context.Context, s Session) (next Session) {
	logger := common.LoggerFromContext(common.WithSessionID(ctx, s.ID), o.logger).With(zap.Stringer("from", s.State))
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			next = s.errored(fmt.Errorf("stage %s: panic: %v", s.State, r))
		}
		if next.State == StateErrored {
			logger.Error("pipeline.stage.failed", zap.Error(next.Err), zap.Int64("elapsed_ms", time.Since(start).Milliseconds()))
			return
		}
		logger.Info("pipeline.stage.ok", zap.Stringer("to", next.State), zap.Int64("elapsed_ms", time.Since(start).Milliseconds()))
	}()

	switch s.State {
	case StateCreated:
		return o.extractExpenses(ctx, s, logger)
	case StateExpensesExtracted:
		return o.extractReference(ctx, s, logger)
	case StateReferenceExtracted:
		return o.validate(ctx, s)
	default:
		return s.errored(fmt.Errorf("%w: no transition from %s", common.ErrInvalidTransition, s.State))
	}
}

func (o *Orchestrator) extractExpenses(ctx context.Context, s Session, logger *zap.Logger) Session {
	outcomes, failures, err := o.extractLocation(ctx, s.ExpenseLocation, llm.SchemaExpense, logger)
	if err != nil {
		return s.errored(fmt.Errorf("extract expenses: %w", err))
	}
	s.Expenses = aggregateExpenses(outcomes)
	s.Failures = s.withFailures(failures)
	s.State = StateExpensesExtracted
	return s
}

func (o *Orchestrator) extractReference(ctx context.Context, s Session, logger *zap.Logger) Session {
	outcomes, failures, err := o.extractLocation(ctx, s.ReferenceLocation, llm.SchemaReference, logger)
	if err != nil {
		return s.errored(fmt.Errorf("extract reference: %w", err))
	}
	records, blank := aggregateReferences(outcomes)
	s.References = records
	s.Failures = s.withFailures(append(failures, blank...))
	if len(records) == 0 {
		return s.errored(common.NewAppError("MISSING_REFERENCE", "no reference record could be extracted", common.ErrMissingReference))
	}

	canon, conflicts := CanonicalReference(records)
	for _, c := range conflicts {
		logger.Warn("pipeline.reference.conflict",
			zap.String("field", c.Field),
			zap.String("kept", c.Kept),
			zap.String("ignored", c.Ignored),
			zap.String("source_id", c.SourceID),
		)
	}
	s.Reference = &canon
	s.State = StateReferenceExtracted
	return s
}

func (o *Orchestrator) validate(ctx context.Context, s Session) Session {
	if s.Reference == nil {
		return s.errored(fmt.Errorf("%w: validation without a canonical reference", common.ErrInvalidTransition))
	}
	verdicts, err := o.validator.Validate(ctx, s.Expenses, *s.Reference)
	if err != nil {
		return s.errored(fmt.Errorf("validate: %w", err))
	}
	if len(verdicts) != len(s.Expenses) {
		return s.errored(fmt.Errorf("validate: %d verdicts for %d expense records", len(verdicts), len(s.Expenses)))
	}
	s.Verdicts = verdicts
	s.State = StateValidated
	return s
}

// Result converts a VALIDATED session into the persisted result shape.
func (s Session) Result() *entity.Result {
	if s.State != StateValidated {
		return nil
	}
	return &entity.Result{
		Reference: s.Reference,
		Expenses:  s.Expenses,
		Verdicts:  s.Verdicts,
		Failures:  s.Failures,
	}
}
