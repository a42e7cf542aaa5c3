package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/mattn/go-sqlite3"

	"github.com/smks17/feed_distribution/lib/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

func ConnectPostgres(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		logger.GetLogger().WithError(err).Error("Unable to connect to database")
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	logger.GetLogger().Info("Connect to database")

	return pool, nil
}

// OpenSQLite opens the database read by the engine. The file must already
// carry the posts_post and interactions_followlinks tables.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	conn, err := sql.Open(DriverSQLite, path)
	if err != nil {
		logger.GetLogger().WithError(err).Error("Unable to open database")
		return nil, err
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	logger.GetLogger().WithField("path", path).Info("Connect to database")

	return conn, nil
}
