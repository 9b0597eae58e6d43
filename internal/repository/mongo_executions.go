package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/joseph-ayodele/expense-auditor/constants"
	"github.com/joseph-ayodele/expense-auditor/internal/common"
	"github.com/joseph-ayodele/expense-auditor/internal/entity"
)

// ExecutionsCollection holds one document per execution keyed by its id string.
const ExecutionsCollection = "executions"

type executionDoc struct {
	ID           string              `bson:"_id"`
	AgentID      string              `bson:"agent_id"`
	Status       string              `bson:"status"`
	StartTime    time.Time           `bson:"start_time"`
	EndTime      *time.Time          `bson:"end_time,omitempty"`
	InputSummary entity.InputSummary `bson:"input_summary"`
	Result       *entity.Result      `bson:"result,omitempty"`
	Error        *string             `bson:"error,omitempty"`
}

func toDoc(e *entity.Execution) executionDoc {
	return executionDoc{
		ID:           e.ID.String(),
		AgentID:      e.AgentID,
		Status:       string(e.Status),
		StartTime:    e.StartTime.UTC(),
		EndTime:      e.EndTime,
		InputSummary: e.InputSummary,
		Result:       e.Result,
		Error:        e.Error,
	}
}

func (d executionDoc) toEntity() (*entity.Execution, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, corrupt(d.ID, "_id", err)
	}
	return &entity.Execution{
		ID:           id,
		AgentID:      d.AgentID,
		Status:       constants.ExecutionStatus(d.Status),
		StartTime:    d.StartTime,
		EndTime:      d.EndTime,
		InputSummary: d.InputSummary,
		Result:       d.Result,
		Error:        d.Error,
	}, nil
}

type mongoExecutionRepo struct {
	provider CollectionProvider
	logger   *zap.Logger
}

// NewMongoExecutionRepository stores executions in the executions collection.
func NewMongoExecutionRepository(provider CollectionProvider, logger *zap.Logger) ExecutionRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &mongoExecutionRepo{provider: provider, logger: logger}
}

func (r *mongoExecutionRepo) coll() DataStore {
	return r.provider.Collection(ExecutionsCollection)
}

func (r *mongoExecutionRepo) Create(ctx context.Context, exec *entity.Execution) error {
	if _, err := r.coll().InsertOne(ctx, toDoc(exec)); err != nil {
		r.logger.Error("execution.create.failed", zap.Stringer("execution_id", exec.ID), zap.Error(err))
		return dbError("insert execution", err)
	}
	r.logger.Info("execution.created", zap.Stringer("execution_id", exec.ID), zap.String("agent_id", exec.AgentID))
	return nil
}

func (r *mongoExecutionRepo) Complete(ctx context.Context, id uuid.UUID, c entity.Completion) (*entity.Execution, error) {
	if !c.Status.Terminal() {
		return nil, common.InvalidInputf("completion status %q is not terminal", c.Status)
	}
	set := bson.M{
		"status":   string(c.Status),
		"end_time": c.EndTime.UTC(),
	}
	if c.Result != nil {
		set["result"] = c.Result
	}
	if c.Error != nil {
		set["error"] = *c.Error
	}
	filter := bson.M{"_id": id.String(), "status": string(constants.ExecutionRunning)}
	res, err := r.coll().UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		r.logger.Error("execution.complete.failed", zap.Stringer("execution_id", id), zap.Error(err))
		return nil, dbError("complete execution", err)
	}
	if res.MatchedCount == 0 {
		current, err := r.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: execution %s is already %s", common.ErrInvalidTransition, id, current.Status)
	}
	r.logger.Info("execution.completed", zap.Stringer("execution_id", id), zap.String("status", string(c.Status)))
	return r.Get(ctx, id)
}

func (r *mongoExecutionRepo) Get(ctx context.Context, id uuid.UUID) (*entity.Execution, error) {
	var doc executionDoc
	err := r.coll().FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, common.NotFoundf("execution %s not found", id)
	}
	if err != nil {
		return nil, dbError("get execution", err)
	}
	return doc.toEntity()
}

func (r *mongoExecutionRepo) List(ctx context.Context, limit int) ([]*entity.Execution, error) {
	return r.find(ctx, bson.M{}, limit)
}

func (r *mongoExecutionRepo) ListByAgent(ctx context.Context, agentID string, limit int) ([]*entity.Execution, error) {
	return r.find(ctx, bson.M{"agent_id": agentID}, limit)
}

func (r *mongoExecutionRepo) find(ctx context.Context, filter bson.M, limit int) ([]*entity.Execution, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "start_time", Value: -1}}).
		SetLimit(int64(listLimit(limit)))
	cur, err := r.coll().Find(ctx, filter, opts)
	if err != nil {
		return nil, dbError("find executions", err)
	}
	var docs []executionDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, dbError("decode executions", err)
	}
	out := make([]*entity.Execution, 0, len(docs))
	for _, d := range docs {
		e, err := d.toEntity()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *mongoExecutionRepo) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.coll().DeleteOne(ctx, bson.M{"_id": id.String()})
	if err != nil {
		return dbError("delete execution", err)
	}
	if res.DeletedCount == 0 {
		return common.NotFoundf("execution %s not found", id)
	}
	r.logger.Info("execution.deleted", zap.Stringer("execution_id", id))
	return nil
}

func (r *mongoExecutionRepo) Ping(ctx context.Context) error {
	if err := r.provider.Ping(ctx); err != nil {
		return dbError("ping", err)
	}
	return nil
}
