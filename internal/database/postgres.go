// Package database opens the Postgres connection shared by the API and workers.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"
)

// NormalizeDSN disables SSL for local development unless the DSN already sets sslmode.
// Production connection strings are expected to carry the right SSL settings.
func NormalizeDSN(dsn, environment string) string {
	if environment != "development" || strings.Contains(dsn, "sslmode") {
		return dsn
	}
	separator := " "
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		if strings.Contains(dsn, "?") {
			separator = "&"
		} else {
			separator = "?"
		}
	}
	return dsn + separator + "sslmode=disable"
}

// Open builds a pgx pool and exposes it through database/sql. The returned
// close function releases both. Outside development the pool uses the simple
// query protocol so it works behind a transaction pooler such as pgbouncer.
func Open(ctx context.Context, dsn, environment string, logger zerolog.Logger) (*sql.DB, func(), error) {
	poolCfg, err := pgxpool.ParseConfig(NormalizeDSN(dsn, environment))
	if err != nil {
		return nil, nil, fmt.Errorf("parsing DB connection string: %w", err)
	}
	poolCfg.MaxConns = 25
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	if environment != "development" {
		poolCfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("creating DB pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("pinging DB: %w", err)
	}
	logger.Info().
		Str("host", poolCfg.ConnConfig.Host).
		Uint16("port", poolCfg.ConnConfig.Port).
		Msg("Database connection successful")

	db := stdlib.OpenDBFromPool(pool)
	return db, func() {
		_ = db.Close()
		pool.Close()
	}, nil
}
