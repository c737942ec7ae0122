// Package app wires configuration into the running components shared by the
// CLI and the API server.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pgagents/pgagents/internal/agent"
	"github.com/pgagents/pgagents/internal/audit"
	"github.com/pgagents/pgagents/internal/config"
	"github.com/pgagents/pgagents/internal/connection"
	"github.com/pgagents/pgagents/internal/gateway"
	"github.com/pgagents/pgagents/internal/llm"
	"github.com/pgagents/pgagents/internal/observability"
	"github.com/pgagents/pgagents/internal/storage"
	s3store "github.com/pgagents/pgagents/internal/storage/s3"
	"github.com/pgagents/pgagents/internal/workflow"
)

type App struct {
	Config  config.Config
	Logger  *slog.Logger
	DB      *sql.DB
	Gateway *gateway.Gateway
	Runner  *workflow.Runner
	Store   storage.ObjectStore
	Archive *audit.ArchiveSink
}

// OpenDatabase resolves the configured connection provider and opens the
// bounded pool.
func OpenDatabase(ctx context.Context, cfg config.Config, logger *slog.Logger) (*sql.DB, error) {
	provider, err := connection.FromConfig(cfg.Database)
	if err != nil {
		return nil, err
	}
	observability.LoggerOrDiscard(logger).Debug("opening database", slog.String("target", provider.Describe()))
	return connection.Open(ctx, provider, connection.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		PingTimeout:     cfg.Database.PingTimeout,
	})
}

func NewLLM(cfg config.LLMConfig) (llm.LLM, error) {
	return llm.New(llm.Config{
		Provider:        cfg.Provider,
		APIKey:          cfg.APIKey,
		Model:           cfg.Model,
		BaseURL:         cfg.BaseURL,
		APIVersion:      cfg.APIVersion,
		Temperature:     cfg.Temperature,
		Timeout:         cfg.Timeout,
		AzureCredential: cfg.AzureCredential,
	})
}

func OpenObjectStore(ctx context.Context, cfg config.ObjectStoreConfig) (*s3store.Store, error) {
	return s3store.New(ctx, s3store.Config{
		Endpoint:         cfg.Endpoint,
		Region:           cfg.Region,
		Bucket:           cfg.Bucket,
		AccessKeyID:      cfg.AccessKeyID,
		SecretAccessKey:  cfg.SecretAccessKey,
		UseSSL:           cfg.UseSSL,
		Prefix:           cfg.Prefix,
		AutoCreateBucket: cfg.AutoCreateBucket,
	})
}

// New opens every dependency named by cfg. The object store is only opened
// when audit archiving is enabled.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	db, err := OpenDatabase(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	model, err := NewLLM(cfg.LLM)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init llm: %w", err)
	}
	var store storage.ObjectStore
	if cfg.Audit.ArchiveEnabled {
		s, err := OpenObjectStore(ctx, cfg.ObjectStore)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("open object store: %w", err)
		}
		store = s
	}
	a, err := Assemble(ctx, cfg, logger, db, model, store)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return a, nil
}

// Assemble builds the gateway, audit sinks and runner over already opened
// dependencies and probes the database once.
func Assemble(ctx context.Context, cfg config.Config, logger *slog.Logger, db *sql.DB, model llm.LLM, store storage.ObjectStore) (*App, error) {
	logger = observability.LoggerOrDiscard(logger)
	gw := gateway.New(db,
		gateway.WithSchema(cfg.Gateway.Schema),
		gateway.WithHealthCheck(cfg.Gateway.HealthCheckCheckout),
		gateway.WithLogger(logger),
	)
	if err := gw.Probe(ctx); err != nil {
		return nil, fmt.Errorf("probe database: %w", err)
	}

	a := &App{Config: cfg, Logger: logger, DB: db, Gateway: gw, Store: store}
	sinks := audit.MultiSink{audit.NewLogSink(logger)}
	if cfg.Audit.ArchiveEnabled && store != nil {
		archive, err := audit.NewArchiveSink(store, cfg.Audit.ArchivePrefix,
			audit.WithFlushSize(cfg.Audit.FlushSize),
			audit.WithMaxPending(cfg.Audit.MaxPending),
			audit.WithArchiveLogger(logger),
		)
		if err != nil {
			return nil, fmt.Errorf("init audit archive: %w", err)
		}
		a.Archive = archive
		sinks = append(sinks, archive)
	}

	a.Runner = &workflow.Runner{
		Model:        model,
		Gateway:      gw,
		Sink:         sinks,
		Logger:       logger,
		AgentOptions: []agent.Option{agent.WithMaxIterations(cfg.LLM.MaxToolIterations)},
	}
	return a, nil
}

// Close flushes buffered audit records and closes the pool.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Archive != nil {
		if err := a.Archive.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flush audit archive: %w", err))
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	return errors.Join(errs...)
}
