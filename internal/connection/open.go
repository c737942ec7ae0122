package connection

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

const defaultPingTimeout = 5 * time.Second

type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
	PingTimeout     time.Duration
}

// Open builds a bounded database/sql pool backed by pgx and verifies it with
// a ping before returning.
func Open(ctx context.Context, provider Provider, cfg PoolConfig) (*sql.DB, error) {
	if provider == nil {
		return nil, fmt.Errorf("connection provider is required")
	}
	connConfig, err := provider.ConnConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve database connection: %w", err)
	}

	var options []stdlib.OptionOpenDB
	if source, ok := provider.(PasswordSource); ok {
		options = append(options, stdlib.OptionBeforeConnect(func(ctx context.Context, cc *pgx.ConnConfig) error {
			password, err := source.Password(ctx)
			if err != nil {
				return fmt.Errorf("refresh database password: %w", err)
			}
			cc.Password = password
			return nil
		}))
	}
	db := stdlib.OpenDB(*connConfig, options...)

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	timeout := cfg.PingTimeout
	if timeout <= 0 {
		timeout = defaultPingTimeout
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database %s: %w", provider.Describe(), err)
	}

	return db, nil
}
