package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/joseph-ayodele/expense-auditor/internal/common"
)

// DB is an open SQL execution store. Driver carries the dialect used to build queries.
type DB struct {
	Driver *entsql.Driver
	pool   *pgxpool.Pool
}

// Open connects to postgres through a pgx pool, or opens a sqlite file, and wraps the
// connection for the ent query builder.
func Open(ctx context.Context, cfg common.StoreConfig, logger *zap.Logger) (*DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Driver {
	case "postgres":
		return openPostgres(ctx, cfg, logger)
	case "sqlite":
		return openSQLite(ctx, cfg, logger)
	default:
		return nil, common.InvalidInputf("sql store does not support driver %q", cfg.Driver)
	}
}

func openPostgres(ctx context.Context, cfg common.StoreConfig, logger *zap.Logger) (*DB, error) {
	logger.Info("db.connect.start", zap.String("driver", cfg.Driver))
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, common.InvalidInputf("parse DB_URL: %v", err)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	pc.MinConns = cfg.MinConns
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	pc.ConnConfig.RuntimeParams["application_name"] = "expense-auditor"
	if cfg.StatementTimeout > 0 {
		pc.ConnConfig.RuntimeParams["statement_timeout"] = fmt.Sprint(cfg.StatementTimeout.Milliseconds())
	}

	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		logger.Error("db.connect.failed", zap.Error(err))
		return nil, dbError("connect postgres", err)
	}

	// Wrap pool as *sql.DB for the ent driver
	db := stdlib.OpenDBFromPool(pool)
	logger.Info("db.connect.ok", zap.String("driver", cfg.Driver))
	return &DB{Driver: entsql.OpenDB(dialect.Postgres, db), pool: pool}, nil
}

func openSQLite(ctx context.Context, cfg common.StoreConfig, logger *zap.Logger) (*DB, error) {
	logger.Info("db.connect.start", zap.String("driver", cfg.Driver), zap.String("dsn", cfg.DSN))
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, dbError("open sqlite", err)
	}
	// one writer avoids SQLITE_BUSY under the worker queue
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, dbError("open sqlite", err)
	}
	logger.Info("db.connect.ok", zap.String("driver", cfg.Driver))
	return &DB{Driver: entsql.OpenDB(dialect.SQLite, db)}, nil
}

// Close releases the connection and the pool behind it.
func (d *DB) Close() error {
	err := d.Driver.Close()
	if d.pool != nil {
		d.pool.Close()
	}
	return err
}

// HealthCheck pings the database within timeout.
func (d *DB) HealthCheck(ctx context.Context, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if d.pool != nil {
		if err := d.pool.Ping(ctx); err != nil {
			return dbError("ping", err)
		}
		return nil
	}
	if err := d.Driver.DB().PingContext(ctx); err != nil {
		return dbError("ping", err)
	}
	return nil
}

func dbError(op string, err error) error {
	return common.Transport(op, errors.Join(common.ErrDatabase, err))
}
