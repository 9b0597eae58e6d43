package repository

import (
	"context"

	"go.uber.org/zap"
)

// Timestamps are stored as fixed-width UTC text so they sort lexically on every dialect.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS executions (
		id            TEXT PRIMARY KEY,
		agent_id      TEXT NOT NULL DEFAULT '',
		status        TEXT NOT NULL,
		start_time    TEXT NOT NULL,
		end_time      TEXT,
		input_summary TEXT NOT NULL,
		result        TEXT,
		error         TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS executions_agent_id_idx ON executions (agent_id, start_time)`,
	`CREATE INDEX IF NOT EXISTS executions_start_time_idx ON executions (start_time)`,
}

// Migrate creates the execution tables when they do not exist.
func Migrate(ctx context.Context, db *DB, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	for _, stmt := range schema {
		if _, err := db.Driver.DB().ExecContext(ctx, stmt); err != nil {
			return dbError("migrate", err)
		}
	}
	logger.Info("db.migrate.ok", zap.String("dialect", db.Driver.Dialect()), zap.Int("statements", len(schema)))
	return nil
}
