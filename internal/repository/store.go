package repository

import (
	"context"

	"go.uber.org/zap"

	"github.com/joseph-ayodele/expense-auditor/internal/common"
)

// OpenStore opens the execution store selected by cfg.Driver and applies the SQL
// schema when needed. The returned close func releases the connection.
func OpenStore(ctx context.Context, cfg common.StoreConfig, logger *zap.Logger) (ExecutionRepository, func(context.Context) error, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Driver {
	case "mongo":
		client, err := ConnectMongo(ctx, cfg.MongoURI, logger)
		if err != nil {
			return nil, nil, err
		}
		repo := NewMongoExecutionRepository(NewMongoProvider(client, cfg.MongoDatabase), logger)
		return repo, client.Disconnect, nil
	default:
		db, err := Open(ctx, cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := Migrate(ctx, db, logger); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		closeFn := func(context.Context) error { return db.Close() }
		return NewSQLExecutionRepository(db, logger), closeFn, nil
	}
}
