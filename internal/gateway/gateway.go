// Package gateway exposes read-only SQL execution, schema introspection and
// the product lookup over a bounded PostgreSQL pool. Every operation checks a
// connection out for its own duration and returns it on every exit path.
package gateway

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pgagents/pgagents/internal/observability"
)

const DefaultSchema = "public"

type Gateway struct {
	db          *sql.DB
	schema      string
	healthCheck bool
	logger      *slog.Logger
}

type Option func(*Gateway)

// WithSchema sets the namespace SchemaInfo reports on.
func WithSchema(schema string) Option {
	return func(g *Gateway) {
		if s := strings.TrimSpace(schema); s != "" {
			g.schema = s
		}
	}
}

// WithHealthCheck pings each connection when it is checked out.
func WithHealthCheck(enabled bool) Option {
	return func(g *Gateway) {
		g.healthCheck = enabled
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		g.logger = observability.LoggerOrDiscard(logger)
	}
}

func New(db *sql.DB, opts ...Option) *Gateway {
	g := &Gateway{
		db:     db,
		schema: DefaultSchema,
		logger: observability.DiscardLogger(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gateway) Schema() string {
	return g.schema
}

// Probe checks a connection out once and logs success. Binaries call it at
// startup so a bad DSN fails fast.
func (g *Gateway) Probe(ctx context.Context) error {
	conn, err := g.checkout(ctx)
	if err != nil {
		return err
	}
	defer g.checkin(conn)
	if err := conn.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	g.logger.InfoContext(ctx, "connected to database", slog.String("schema", g.schema))
	return nil
}

func (g *Gateway) checkout(ctx context.Context) (*sql.Conn, error) {
	if g.db == nil {
		return nil, fmt.Errorf("gateway database is not configured")
	}
	conn, err := g.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("checkout connection: %w", err)
	}
	if g.healthCheck {
		if err := conn.PingContext(ctx); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("health check connection: %w", err)
		}
	}
	return conn, nil
}

func (g *Gateway) checkin(conn *sql.Conn) {
	if err := conn.Close(); err != nil {
		g.logger.Warn("return connection to pool", slog.Any("error", err))
	}
}
