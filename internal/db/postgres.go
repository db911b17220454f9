package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xclinic/dental-clinic/internal/config"
)

const appNamePrefix = "dental-clinic/"

// ConnectPostgres opens a pool sized from cfg and pings it. Connections are
// tagged with service as application_name unless the DSN names one.
func ConnectPostgres(ctx context.Context, cfg config.Config, service string) (*pgxpool.Pool, error) {
	poolCfg, err := poolConfig(cfg, service)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	pingTimeout := cfg.PGPingTimeout
	if pingTimeout <= 0 {
		pingTimeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres (%s): %w", service, err)
	}

	return pool, nil
}

func poolConfig(cfg config.Config, service string) (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	if cfg.PGMaxConns > 0 {
		poolCfg.MaxConns = cfg.PGMaxConns
	}
	if cfg.PGMinConns > 0 {
		poolCfg.MinConns = min(cfg.PGMinConns, poolCfg.MaxConns)
	}
	poolCfg.HealthCheckPeriod = 30 * time.Second
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 15 * time.Minute

	params := poolCfg.ConnConfig.RuntimeParams
	if _, ok := params["application_name"]; !ok && service != "" {
		params["application_name"] = appNamePrefix + service
	}
	return poolCfg, nil
}
