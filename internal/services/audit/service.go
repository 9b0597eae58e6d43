package audit

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/joseph-ayodele/expense-auditor/constants"
	"github.com/joseph-ayodele/expense-auditor/internal/async"
	"github.com/joseph-ayodele/expense-auditor/internal/common"
	"github.com/joseph-ayodele/expense-auditor/internal/entity"
	"github.com/joseph-ayodele/expense-auditor/internal/pipeline"
	"github.com/joseph-ayodele/expense-auditor/internal/repository"
)

// completeTimeout bounds the terminal store update, which runs even after the session
// context has ended.
const completeTimeout = 15 * time.Second

// Runner drives a session to a terminal state.
type Runner interface {
	Run(ctx context.Context, s pipeline.Session) (pipeline.Session, error)
}

// Config describes how sessions are run and summarized.
type Config struct {
	ValidationMode  string
	AmountThreshold float64
	// SessionTimeout bounds one synchronous run. Zero means no bound.
	SessionTimeout time.Duration
}

// Service runs audit sessions and manages their execution records.
type Service struct {
	cfg    Config
	repo   repository.ExecutionRepository
	runner Runner
	queue  async.Queue
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates a new audit service. queue may be nil, in which case Submit is unavailable.
func NewService(cfg Config, repo repository.ExecutionRepository, runner Runner, queue async.Queue, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		cfg:    cfg,
		repo:   repo,
		runner: runner,
		queue:  queue,
		logger: logger,
		now:    time.Now,
	}
}

// AttachQueue sets the queue used by Submit. The queue's processor is usually the service itself.
func (s *Service) AttachQueue(q async.Queue) {
	s.queue = q
}

// SessionRequest represents one batch of expense documents and its reference.
type SessionRequest struct {
	AgentID            string
	ExpenseLocation    string
	ReferenceLocation  string
	ExpenseDocuments   []string
	ReferenceDocuments []string
	// Cleanup releases the request's inputs after the run. Optional.
	Cleanup func()
}

func (s *Service) validate(req SessionRequest) error {
	if req.AgentID != "" && !common.ValidAgentID(req.AgentID) {
		return common.InvalidInputf("agent_id %q is not a valid identifier", req.AgentID)
	}
	if strings.TrimSpace(req.ExpenseLocation) == "" {
		return common.InvalidInputf("at least one expense document is required")
	}
	if strings.TrimSpace(req.ReferenceLocation) == "" {
		return common.InvalidInputf("a reference document is required")
	}
	return nil
}

func (s *Service) start(ctx context.Context, req SessionRequest) (*entity.Execution, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	exec := &entity.Execution{
		ID:        uuid.New(),
		AgentID:   req.AgentID,
		Status:    constants.ExecutionRunning,
		StartTime: s.now().UTC(),
		InputSummary: entity.InputSummary{
			ExpenseDocuments:   nonNil(req.ExpenseDocuments),
			ReferenceDocuments: nonNil(req.ReferenceDocuments),
			ValidationMode:     s.cfg.ValidationMode,
			AmountThreshold:    s.cfg.AmountThreshold,
		},
	}
	if err := s.repo.Create(ctx, exec); err != nil {
		s.logger.Error("audit.start.failed", zap.Error(err))
		return nil, err
	}
	return exec, nil
}

// Run creates a running execution, drives the pipeline to a terminal state and records the
// outcome. The returned execution is set whenever a record was created; the error is the
// session's terminal cause or a store failure.
func (s *Service) Run(ctx context.Context, req SessionRequest) (*entity.Execution, error) {
	if req.Cleanup != nil {
		defer req.Cleanup()
	}
	exec, err := s.start(ctx, req)
	if err != nil {
		return nil, err
	}
	if s.cfg.SessionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.SessionTimeout)
		defer cancel()
	}
	return s.execute(ctx, exec.ID, req.AgentID, req.ExpenseLocation, req.ReferenceLocation)
}

// Submit creates a running execution and hands the session to the queue.
func (s *Service) Submit(ctx context.Context, req SessionRequest) (*entity.Execution, error) {
	if s.queue == nil {
		if req.Cleanup != nil {
			req.Cleanup()
		}
		return nil, common.NewAppError("QUEUE_DISABLED", "asynchronous submission is not enabled", common.ErrInvalidInput)
	}
	exec, err := s.start(ctx, req)
	if err != nil {
		if req.Cleanup != nil {
			req.Cleanup()
		}
		return nil, err
	}
	job := async.Job{
		ExecutionID:       exec.ID,
		AgentID:           req.AgentID,
		ExpenseLocation:   req.ExpenseLocation,
		ReferenceLocation: req.ReferenceLocation,
		SubmittedAt:       exec.StartTime,
		Cleanup:           req.Cleanup,
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		if req.Cleanup != nil {
			req.Cleanup()
		}
		s.fail(exec.ID, err)
		return nil, common.Transport("enqueue session", err)
	}
	s.logger.Info("audit.submit.ok", zap.Stringer("execution_id", exec.ID), zap.String("agent_id", req.AgentID))
	return exec, nil
}

// Process runs a queued job. It satisfies async.Processor.
func (s *Service) Process(ctx context.Context, job async.Job) error {
	_, err := s.execute(ctx, job.ExecutionID, job.AgentID, job.ExpenseLocation, job.ReferenceLocation)
	return err
}

func (s *Service) execute(ctx context.Context, id uuid.UUID, agentID, expenseLocation, referenceLocation string) (*entity.Execution, error) {
	ctx = common.WithAgentID(common.WithSessionID(ctx, id.String()), agentID)
	logger := s.logger.With(zap.Stringer("execution_id", id))
	start := s.now()

	final, runErr := s.runner.Run(ctx, pipeline.NewSession(id.String(), expenseLocation, referenceLocation))

	completion := entity.Completion{Status: constants.ExecutionCompleted, EndTime: s.now().UTC(), Result: final.Result()}
	if runErr != nil {
		msg := runErr.Error()
		completion = entity.Completion{Status: constants.ExecutionErrored, EndTime: s.now().UTC(), Error: &msg}
	}

	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), completeTimeout)
	defer cancel()
	exec, err := s.repo.Complete(cctx, id, completion)
	if err != nil {
		logger.Error("audit.complete.failed", zap.Error(err))
		return nil, errors.Join(runErr, err)
	}

	fields := []zap.Field{
		zap.String("status", string(completion.Status)),
		zap.Stringer("state", final.State),
		zap.Int("verdicts", len(final.Verdicts)),
		zap.Int("failures", len(final.Failures)),
		zap.Int64("elapsed_ms", s.now().Sub(start).Milliseconds()),
	}
	if runErr != nil {
		logger.Warn("audit.run.errored", append(fields, zap.Error(runErr))...)
		return exec, runErr
	}
	logger.Info("audit.run.ok", fields...)
	return exec, nil
}

// fail records a terminal error for an execution that never reached the pipeline.
func (s *Service) fail(id uuid.UUID, cause error) {
	msg := cause.Error()
	ctx, cancel := context.WithTimeout(context.Background(), completeTimeout)
	defer cancel()
	if _, err := s.repo.Complete(ctx, id, entity.Completion{Status: constants.ExecutionErrored, EndTime: s.now().UTC(), Error: &msg}); err != nil {
		s.logger.Error("audit.complete.failed", zap.Stringer("execution_id", id), zap.Error(err))
	}
}

// Get returns one execution by id.
func (s *Service) Get(ctx context.Context, rawID string) (*entity.Execution, error) {
	id, err := common.ParseExecutionID(rawID)
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

// List returns recent executions, restricted to agentID when it is set.
func (s *Service) List(ctx context.Context, agentID string, limit int) ([]*entity.Execution, error) {
	if agentID == "" {
		return s.repo.List(ctx, limit)
	}
	if !common.ValidAgentID(agentID) {
		return nil, common.InvalidInputf("agent_id %q is not a valid identifier", agentID)
	}
	return s.repo.ListByAgent(ctx, agentID, limit)
}

// Delete removes an execution record.
func (s *Service) Delete(ctx context.Context, rawID string) error {
	id, err := common.ParseExecutionID(rawID)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("audit.delete.ok", zap.Stringer("execution_id", id))
	return nil
}

// Ping checks the execution store.
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
