package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/joseph-ayodele/expense-auditor/constants"
	"github.com/joseph-ayodele/expense-auditor/internal/common"
	"github.com/joseph-ayodele/expense-auditor/internal/entity"
)

const executionsTable = "executions"

var executionColumns = []string{
	"id", "agent_id", "status", "start_time", "end_time", "input_summary", "result", "error",
}

type sqlExecutionRepo struct {
	db     *DB
	logger *zap.Logger
}

// NewSQLExecutionRepository stores executions in the executions table of db.
func NewSQLExecutionRepository(db *DB, logger *zap.Logger) ExecutionRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &sqlExecutionRepo{db: db, logger: logger}
}

func (r *sqlExecutionRepo) builder() *entsql.DialectBuilder {
	return entsql.Dialect(r.db.Driver.Dialect())
}

func (r *sqlExecutionRepo) Create(ctx context.Context, exec *entity.Execution) error {
	summary, err := json.Marshal(exec.InputSummary)
	if err != nil {
		return fmt.Errorf("encode input summary: %w", err)
	}
	result, err := encodeResult(exec.Result)
	if err != nil {
		return err
	}
	var endTime *string
	if exec.EndTime != nil {
		s := formatTime(*exec.EndTime)
		endTime = &s
	}

	query, args := r.builder().Insert(executionsTable).
		Columns(executionColumns...).
		Values(exec.ID.String(), exec.AgentID, string(exec.Status), formatTime(exec.StartTime), endTime, string(summary), result, exec.Error).
		Query()
	if _, err := r.db.Driver.DB().ExecContext(ctx, query, args...); err != nil {
		r.logger.Error("execution.create.failed", zap.Stringer("execution_id", exec.ID), zap.Error(err))
		return dbError("insert execution", err)
	}
	r.logger.Info("execution.created", zap.Stringer("execution_id", exec.ID), zap.String("agent_id", exec.AgentID))
	return nil
}

func (r *sqlExecutionRepo) Complete(ctx context.Context, id uuid.UUID, c entity.Completion) (*entity.Execution, error) {
	if !c.Status.Terminal() {
		return nil, common.InvalidInputf("completion status %q is not terminal", c.Status)
	}
	result, err := encodeResult(c.Result)
	if err != nil {
		return nil, err
	}

	query, args := r.builder().Update(executionsTable).
		Set("status", string(c.Status)).
		Set("end_time", formatTime(c.EndTime)).
		Set("result", result).
		Set("error", c.Error).
		Where(entsql.And(
			entsql.EQ("id", id.String()),
			entsql.EQ("status", string(constants.ExecutionRunning)),
		)).
		Query()
	res, err := r.db.Driver.DB().ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("execution.complete.failed", zap.Stringer("execution_id", id), zap.Error(err))
		return nil, dbError("complete execution", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, dbError("complete execution", err)
	}
	if n == 0 {
		current, err := r.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: execution %s is already %s", common.ErrInvalidTransition, id, current.Status)
	}
	r.logger.Info("execution.completed", zap.Stringer("execution_id", id), zap.String("status", string(c.Status)))
	return r.Get(ctx, id)
}

func (r *sqlExecutionRepo) Get(ctx context.Context, id uuid.UUID) (*entity.Execution, error) {
	query, args := r.builder().Select(executionColumns...).
		From(entsql.Table(executionsTable)).
		Where(entsql.EQ("id", id.String())).
		Query()
	execs, err := r.query(ctx, query, args)
	if err != nil {
		return nil, err
	}
	if len(execs) == 0 {
		return nil, common.NotFoundf("execution %s not found", id)
	}
	return execs[0], nil
}

func (r *sqlExecutionRepo) List(ctx context.Context, limit int) ([]*entity.Execution, error) {
	query, args := r.builder().Select(executionColumns...).
		From(entsql.Table(executionsTable)).
		OrderBy(entsql.Desc("start_time")).
		Limit(listLimit(limit)).
		Query()
	return r.query(ctx, query, args)
}

func (r *sqlExecutionRepo) ListByAgent(ctx context.Context, agentID string, limit int) ([]*entity.Execution, error) {
	query, args := r.builder().Select(executionColumns...).
		From(entsql.Table(executionsTable)).
		Where(entsql.EQ("agent_id", agentID)).
		OrderBy(entsql.Desc("start_time")).
		Limit(listLimit(limit)).
		Query()
	return r.query(ctx, query, args)
}

func (r *sqlExecutionRepo) Delete(ctx context.Context, id uuid.UUID) error {
	query, args := r.builder().Delete(executionsTable).
		Where(entsql.EQ("id", id.String())).
		Query()
	res, err := r.db.Driver.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return dbError("delete execution", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dbError("delete execution", err)
	}
	if n == 0 {
		return common.NotFoundf("execution %s not found", id)
	}
	r.logger.Info("execution.deleted", zap.Stringer("execution_id", id))
	return nil
}

func (r *sqlExecutionRepo) Ping(ctx context.Context) error {
	return r.db.HealthCheck(ctx, 0)
}

func (r *sqlExecutionRepo) query(ctx context.Context, query string, args []any) ([]*entity.Execution, error) {
	rows, err := r.db.Driver.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbError("query executions", err)
	}
	defer rows.Close()

	var out []*entity.Execution
	for rows.Next() {
		var (
			id, agentID, status, start, summary string
			end, result, errMsg                 sql.NullString
		)
		if err := rows.Scan(&id, &agentID, &status, &start, &end, &summary, &result, &errMsg); err != nil {
			return nil, dbError("scan execution", err)
		}
		exec, err := decodeExecutionRow(id, agentID, status, start, end, summary, result, errMsg)
		if err != nil {
			return nil, err
		}
		out = append(out, exec)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("query executions", err)
	}
	return out, nil
}

func decodeExecutionRow(id, agentID, status, start string, end sql.NullString, summary string, result, errMsg sql.NullString) (*entity.Execution, error) {
	exec := &entity.Execution{
		AgentID: agentID,
		Status:  constants.ExecutionStatus(status),
	}
	var err error
	if exec.ID, err = uuid.Parse(id); err != nil {
		return nil, corrupt(id, "id", err)
	}
	if exec.StartTime, err = parseTime(start); err != nil {
		return nil, corrupt(id, "start_time", err)
	}
	if end.Valid {
		t, err := parseTime(end.String)
		if err != nil {
			return nil, corrupt(id, "end_time", err)
		}
		exec.EndTime = &t
	}
	if err := json.Unmarshal([]byte(summary), &exec.InputSummary); err != nil {
		return nil, corrupt(id, "input_summary", err)
	}
	if result.Valid {
		exec.Result = &entity.Result{}
		if err := json.Unmarshal([]byte(result.String), exec.Result); err != nil {
			return nil, corrupt(id, "result", err)
		}
	}
	if errMsg.Valid {
		msg := errMsg.String
		exec.Error = &msg
	}
	return exec, nil
}

func encodeResult(res *entity.Result) (*string, error) {
	if res == nil {
		return nil, nil
	}
	b, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	s := string(b)
	return &s, nil
}

func corrupt(id, column string, err error) error {
	return common.NewAppError("CORRUPT_RECORD", fmt.Sprintf("execution %s: column %s", id, column), errors.Join(common.ErrDatabase, err))
}
