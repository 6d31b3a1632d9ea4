package crdb

import (
	"context"
	"fmt"
	"time"

	"github.com/danthegoodman1/parquetlayout/gologger"
	"github.com/jackc/pgx/v4/pgxpool"
)

var (
	StandardContextTimeout = 10 * time.Second

	logger = gologger.NewLogger()
)

// ConnectToDB opens a pool for the layout catalog. The caller closes it.
func ConnectToDB(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("error in pgxpool.ParseConfig: %w", err)
	}
	// Catalog writes are one upsert per output file, a small pool is plenty.
	config.MaxConns = 10
	config.MinConns = 1
	config.HealthCheckPeriod = 5 * time.Second
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 30 * time.Minute

	ctx, cancel := context.WithTimeout(ctx, StandardContextTimeout)
	defer cancel()

	start := time.Now()
	pool, err := pgxpool.ConnectConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("error in pgxpool.ConnectConfig to %s: %w", config.ConnConfig.Host, err)
	}
	logger.Debug().Str("host", config.ConnConfig.Host).Dur("took", time.Since(start)).Msg("connected to CRDB")
	return pool, nil
}
