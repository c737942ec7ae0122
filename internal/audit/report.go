package audit

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/pgagents/pgagents/internal/storage"
)

type WorkflowSummary struct {
	Workflow    string `json:"workflow"`
	Runs        int64  `json:"runs"`
	Errors      int64  `json:"errors"`
	TotalTokens int64  `json:"total_tokens"`
}

type Summary struct {
	Batches     int               `json:"batches"`
	Runs        int64             `json:"runs"`
	Errors      int64             `json:"errors"`
	TotalTokens int64             `json:"total_tokens"`
	FirstEvent  string            `json:"first_event,omitempty"`
	LastEvent   string            `json:"last_event,omitempty"`
	Workflows   []WorkflowSummary `json:"workflows"`
}

// Reporter aggregates archived audit batches with an in-process DuckDB.
type Reporter struct {
	Store storage.ObjectStore
}

func NewReporter(store storage.ObjectStore) *Reporter {
	return &Reporter{Store: store}
}

// The event range is ordered by the numeric timestamp; RFC 3339 strings with
// trimmed fractions do not sort chronologically.
const summaryQuery = `SELECT
	COUNT(*),
	CAST(COALESCE(SUM(CASE WHEN status = 'Error' THEN 1 ELSE 0 END), 0) AS BIGINT),
	CAST(COALESCE(SUM(total_tokens), 0) AS BIGINT),
	arg_min(event_time, event_time_unix_ms),
	arg_max(event_time, event_time_unix_ms)
FROM audit`

const workflowQuery = `SELECT
	COALESCE(NULLIF(workflow, ''), 'agent') AS workflow,
	COUNT(*),
	CAST(COALESCE(SUM(CASE WHEN status = 'Error' THEN 1 ELSE 0 END), 0) AS BIGINT),
	CAST(COALESCE(SUM(total_tokens), 0) AS BIGINT)
FROM audit
GROUP BY 1
ORDER BY 1`

func (r *Reporter) Summarize(ctx context.Context, prefix string) (Summary, error) {
	if r.Store == nil {
		return Summary{}, fmt.Errorf("object store is required")
	}
	objects, err := r.batches(ctx, prefix)
	if err != nil {
		return Summary{}, err
	}
	summary := Summary{Batches: len(objects), Workflows: []WorkflowSummary{}}
	if len(objects) == 0 {
		return summary, nil
	}

	workDir, err := os.MkdirTemp("", "pgagents-audit-")
	if err != nil {
		return Summary{}, fmt.Errorf("create report temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	localPaths := make([]string, 0, len(objects))
	for index, object := range objects {
		localPath := filepath.Join(workDir, fmt.Sprintf("batch_%d.parquet", index))
		if err := r.download(ctx, object.Key, localPath); err != nil {
			return Summary{}, err
		}
		localPaths = append(localPaths, localPath)
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return Summary{}, fmt.Errorf("open duckdb: %w", err)
	}
	defer func() { _ = db.Close() }()

	viewSQL := fmt.Sprintf(`CREATE OR REPLACE VIEW audit AS SELECT * FROM read_parquet(%s)`, quoteStringArray(localPaths))
	if _, err := db.ExecContext(ctx, viewSQL); err != nil {
		return Summary{}, fmt.Errorf("create audit view: %w", err)
	}

	var first, last sql.NullString
	if err := db.QueryRowContext(ctx, summaryQuery).Scan(&summary.Runs, &summary.Errors, &summary.TotalTokens, &first, &last); err != nil {
		return Summary{}, fmt.Errorf("summarize audit: %w", err)
	}
	summary.FirstEvent = first.String
	summary.LastEvent = last.String

	rows, err := db.QueryContext(ctx, workflowQuery)
	if err != nil {
		return Summary{}, fmt.Errorf("summarize workflows: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var item WorkflowSummary
		if err := rows.Scan(&item.Workflow, &item.Runs, &item.Errors, &item.TotalTokens); err != nil {
			return Summary{}, fmt.Errorf("scan workflow summary: %w", err)
		}
		summary.Workflows = append(summary.Workflows, item)
	}
	if err := rows.Err(); err != nil {
		return Summary{}, fmt.Errorf("iterate workflow summary: %w", err)
	}
	return summary, nil
}

// Expired lists archived batches whose date partition is before cutoff.
func (r *Reporter) Expired(ctx context.Context, prefix string, cutoff time.Time) ([]string, error) {
	if r.Store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	objects, err := r.batches(ctx, prefix)
	if err != nil {
		return nil, err
	}
	cutoffDay := cutoff.UTC().Truncate(24 * time.Hour)
	expired := make([]string, 0)
	for _, object := range objects {
		day, ok := partitionDate(object.Key)
		if !ok || !day.Before(cutoffDay) {
			continue
		}
		expired = append(expired, object.Key)
	}
	return expired, nil
}

// Prune deletes the batches Expired reports and returns the deleted keys.
// Stores that support batch deletion get a single request.
func (r *Reporter) Prune(ctx context.Context, prefix string, cutoff time.Time) ([]string, error) {
	expired, err := r.Expired(ctx, prefix, cutoff)
	if err != nil || len(expired) == 0 {
		return expired, err
	}
	if batch, ok := r.Store.(storage.BatchDeleter); ok {
		deleted, err := batch.DeleteBatch(ctx, expired)
		if err != nil {
			return deleted, fmt.Errorf("delete audit batches: %w", err)
		}
		return deleted, nil
	}
	deleted := make([]string, 0, len(expired))
	for _, key := range expired {
		if err := r.Store.Delete(ctx, key); err != nil {
			return deleted, fmt.Errorf("delete audit batch %q: %w", key, err)
		}
		deleted = append(deleted, key)
	}
	return deleted, nil
}

func (r *Reporter) batches(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	objects, err := r.Store.List(ctx, strings.Trim(prefix, "/"))
	if err != nil {
		return nil, fmt.Errorf("list audit batches: %w", err)
	}
	out := make([]storage.ObjectInfo, 0, len(objects))
	for _, object := range objects {
		if strings.HasSuffix(object.Key, ".parquet") {
			out = append(out, object)
		}
	}
	return out, nil
}

func (r *Reporter) download(ctx context.Context, key, localPath string) error {
	reader, err := r.Store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("get object %q: %w", key, err)
	}
	defer func() { _ = reader.Close() }()
	file, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("create local batch %q: %w", localPath, err)
	}
	if _, err := io.Copy(file, reader); err != nil {
		_ = file.Close()
		return fmt.Errorf("write local batch %q: %w", localPath, err)
	}
	return file.Close()
}

func partitionDate(key string) (time.Time, bool) {
	for _, part := range strings.Split(key, "/") {
		value, ok := strings.CutPrefix(part, "date=")
		if !ok {
			continue
		}
		day, err := time.Parse("2006-01-02", value)
		if err != nil {
			return time.Time{}, false
		}
		return day, true
	}
	return time.Time{}, false
}

func quoteStringArray(values []string) string {
	quoted := make([]string, 0, len(values))
	for _, value := range values {
		quoted = append(quoted, `'`+strings.ReplaceAll(value, `'`, `''`)+`'`)
	}
	return "[" + strings.Join(quoted, ",") + "]"
}
