package gateway

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pgagents/pgagents/internal/observability"
)

// ReadOnlyViolation is the sole result for statements that are not SELECTs.
const ReadOnlyViolation = "Only read-only SELECT queries are allowed."

type OutcomeKind int

const (
	OutcomeRows OutcomeKind = iota
	OutcomePolicyRejected
	OutcomeDriverError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeRows:
		return "rows"
	case OutcomePolicyRejected:
		return "policy_rejected"
	case OutcomeDriverError:
		return "driver_error"
	default:
		return "unknown"
	}
}

// Row maps result column names to JSON-safe values.
type Row map[string]any

// Outcome is the result of ExecuteQuery. Rows is set only for OutcomeRows;
// Message carries the sentinel or driver error text otherwise.
type Outcome struct {
	Kind    OutcomeKind
	Rows    []Row
	Message string
}

// Values flattens the outcome into the sequence handed to the model: the rows
// on success, or a single string element on rejection or failure.
func (o Outcome) Values() []any {
	if o.Kind != OutcomeRows {
		return []any{o.Message}
	}
	out := make([]any, 0, len(o.Rows))
	for _, row := range o.Rows {
		out = append(out, row)
	}
	return out
}

// IsReadOnlyStatement reports whether statement passes the SELECT prefix
// check.
func IsReadOnlyStatement(statement string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(statement)), "SELECT")
}

// ExecuteQuery runs statement inside a read-only transaction. Statements
// that fail the prefix check are rejected before a connection is used.
func (g *Gateway) ExecuteQuery(ctx context.Context, statement string) Outcome {
	start := time.Now()
	outcome := g.executeQuery(ctx, statement)
	observability.ObserveGatewayOperation("execute_query", outcome.Kind.String(), time.Since(start))
	return outcome
}

func (g *Gateway) executeQuery(ctx context.Context, statement string) Outcome {
	if !IsReadOnlyStatement(statement) {
		g.logger.WarnContext(ctx, "rejected non-select statement", slog.String("statement", truncate(statement, 200)))
		return Outcome{Kind: OutcomePolicyRejected, Message: ReadOnlyViolation}
	}

	conn, err := g.checkout(ctx)
	if err != nil {
		return g.driverError(ctx, err)
	}
	defer g.checkin(conn)

	tx, err := conn.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return g.driverError(ctx, err)
	}
	rows, err := tx.QueryContext(ctx, statement)
	if err != nil {
		_ = tx.Rollback()
		return g.driverError(ctx, err)
	}
	result, err := scanRows(rows)
	if err != nil {
		_ = tx.Rollback()
		return g.driverError(ctx, err)
	}
	if err := tx.Commit(); err != nil {
		return g.driverError(ctx, err)
	}

	g.logger.DebugContext(ctx, "query executed", slog.Int("rows", len(result)))
	return Outcome{Kind: OutcomeRows, Rows: result}
}

func (g *Gateway) driverError(ctx context.Context, err error) Outcome {
	message := err.Error()
	if message == "" {
		message = "query failed"
	}
	g.logger.WarnContext(ctx, "query failed", slog.Any("error", err))
	return Outcome{Kind: OutcomeDriverError, Message: message}
}

// truncate cuts s to at most limit bytes without splitting a rune.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
