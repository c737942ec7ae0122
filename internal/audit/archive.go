package audit

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"

	"github.com/pgagents/pgagents/internal/observability"
	"github.com/pgagents/pgagents/internal/storage"
)

const (
	defaultFlushSize    = 50
	defaultMaxPending   = 1000
	defaultFlushTimeout = 30 * time.Second
)

type parquetRecord struct {
	RunID           string `parquet:"run_id"`
	Workflow        string `parquet:"workflow"`
	EventTime       string `parquet:"event_time"`
	EventTimeUnixMs int64  `parquet:"event_time_unix_ms"`
	UserMessage     string `parquet:"user_msg"`
	Status          string `parquet:"status"`
	Response        string `parquet:"response"`
	TotalTokens     int64  `parquet:"total_tokens"`
}

// EncodeRecords writes records as one Parquet file.
func EncodeRecords(records []Record) ([]byte, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("records are required")
	}
	rows := make([]parquetRecord, 0, len(records))
	for _, record := range records {
		row := parquetRecord{
			RunID:       record.RunID,
			Workflow:    record.Workflow,
			EventTime:   record.EventTime,
			UserMessage: record.UserMessage,
			Status:      string(record.Status),
			Response:    record.Response,
			TotalTokens: int64(record.TotalTokens),
		}
		if at, err := record.Time(); err == nil {
			row.EventTimeUnixMs = at.UnixMilli()
		}
		rows = append(rows, row)
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[parquetRecord](buf)
	if _, err := writer.Write(rows); err != nil {
		return nil, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

type ArchiveOption func(*ArchiveSink)

func WithFlushSize(size int) ArchiveOption {
	return func(s *ArchiveSink) {
		if size > 0 {
			s.flushSize = size
		}
	}
}

// WithMaxPending caps the backlog kept while the store is failing. The oldest
// records are dropped first. Values below the flush size are raised to it.
func WithMaxPending(records int) ArchiveOption {
	return func(s *ArchiveSink) {
		if records > 0 {
			s.maxPending = records
		}
	}
}

func WithFlushTimeout(timeout time.Duration) ArchiveOption {
	return func(s *ArchiveSink) {
		if timeout > 0 {
			s.flushTimeout = timeout
		}
	}
}

func WithClock(now func() time.Time) ArchiveOption {
	return func(s *ArchiveSink) {
		if now != nil {
			s.now = now
		}
	}
}

func WithArchiveLogger(logger *slog.Logger) ArchiveOption {
	return func(s *ArchiveSink) {
		s.logger = observability.LoggerOrDiscard(logger)
	}
}

// ArchiveSink buffers records and writes them to the object store as Parquet
// batches once the buffer reaches the flush size. A failed write keeps the
// batch buffered; the next attempt waits for another flush size of records,
// and the backlog never exceeds the max pending size.
type ArchiveSink struct {
	store        storage.ObjectStore
	prefix       string
	flushSize    int
	maxPending   int
	flushTimeout time.Duration
	now          func() time.Time
	logger       *slog.Logger

	mu      sync.Mutex
	pending []Record
	// deferred counts emits to skip before retrying a failed flush.
	deferred int
}

func NewArchiveSink(store storage.ObjectStore, prefix string, opts ...ArchiveOption) (*ArchiveSink, error) {
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return nil, fmt.Errorf("archive prefix is required")
	}
	sink := &ArchiveSink{
		store:        store,
		prefix:       prefix,
		flushSize:    defaultFlushSize,
		maxPending:   defaultMaxPending,
		flushTimeout: defaultFlushTimeout,
		now:          func() time.Time { return time.Now().UTC() },
		logger:       observability.DiscardLogger(),
	}
	for _, opt := range opts {
		opt(sink)
	}
	if sink.maxPending < sink.flushSize {
		sink.maxPending = sink.flushSize
	}
	if _, err := storage.BuildAuditBatchPath(sink.prefix, time.Unix(0, 0), "probe"); err != nil {
		return nil, fmt.Errorf("archive prefix: %w", err)
	}
	return sink, nil
}

func (s *ArchiveSink) Emit(ctx context.Context, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, record)
	s.dropOverflowLocked()
	if len(s.pending) < s.flushSize {
		return nil
	}
	if s.deferred > 0 {
		s.deferred--
		return nil
	}
	return s.flushLocked(ctx)
}

func (s *ArchiveSink) dropOverflowLocked() {
	over := len(s.pending) - s.maxPending
	if over <= 0 {
		return
	}
	clear(s.pending[:over])
	s.pending = s.pending[over:]
	observability.ObserveArchiveDropped(over)
	s.logger.Warn("audit archive backlog full, dropping oldest records",
		slog.Int("dropped", over),
		slog.Int("max_pending", s.maxPending),
	)
}

// Pending reports how many records are waiting for the next batch.
func (s *ArchiveSink) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Flush writes the backlog now, ignoring any retry backoff.
func (s *ArchiveSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked(ctx)
}

// Close writes whatever is still buffered.
func (s *ArchiveSink) Close(ctx context.Context) error {
	return s.Flush(ctx)
}

func (s *ArchiveSink) flushLocked(ctx context.Context) error {
	if len(s.pending) == 0 {
		return nil
	}
	// The batch outlives the request that triggered it.
	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.flushTimeout)
	defer cancel()

	key, err := s.writeBatch(flushCtx, s.pending)
	observability.ObserveArchiveFlush(err)
	if err != nil {
		s.deferred = s.flushSize - 1
		s.logger.Warn("audit archive flush failed", slog.Int("records", len(s.pending)), slog.Any("error", err))
		return err
	}
	s.logger.Debug("audit batch archived", slog.String("key", key), slog.Int("records", len(s.pending)))
	s.pending = nil
	s.deferred = 0
	return nil
}

func (s *ArchiveSink) writeBatch(ctx context.Context, records []Record) (string, error) {
	payload, err := EncodeRecords(records)
	if err != nil {
		return "", err
	}
	key, err := storage.BuildAuditBatchPath(s.prefix, s.now(), uuid.NewString())
	if err != nil {
		return "", err
	}
	opts := storage.PutOptions{Metadata: batchMetadata(records)}
	if _, err := s.store.Put(ctx, key, bytes.NewReader(payload), int64(len(payload)), opts); err != nil {
		return "", fmt.Errorf("put audit batch %q: %w", key, err)
	}
	return key, nil
}

// batchMetadata is stored with each batch so listings can be triaged
// without downloading the Parquet file.
func batchMetadata(records []Record) map[string]string {
	failed := 0
	for _, record := range records {
		if record.Status == StatusError {
			failed++
		}
	}
	return map[string]string{
		"record-count": strconv.Itoa(len(records)),
		"error-count":  strconv.Itoa(failed),
		"first-event":  records[0].EventTime,
		"last-event":   records[len(records)-1].EventTime,
	}
}
