//go:build integration

package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/pgagents/pgagents/internal/storage"
)

func TestStoreRoundTripAgainstMinIO(t *testing.T) {
	endpoint := envOr("PGAGENTS_TEST_S3_ENDPOINT", "")
	if endpoint == "" {
		t.Skip("PGAGENTS_TEST_S3_ENDPOINT is not set")
	}

	store, err := New(context.Background(), Config{
		Endpoint:         endpoint,
		Region:           envOr("PGAGENTS_TEST_S3_REGION", "us-east-1"),
		Bucket:           envOr("PGAGENTS_TEST_S3_BUCKET", "pgagents-it"),
		AccessKeyID:      envOr("PGAGENTS_TEST_S3_ACCESS_KEY", "minio"),
		SecretAccessKey:  envOr("PGAGENTS_TEST_S3_SECRET_KEY", "miniostorage"),
		Prefix:           "integration-tests",
		AutoCreateBucket: true,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	key := "audit/date=2026-01-01/hour=00/audit-roundtrip.parquet"
	payload := []byte("pgagents-integration")
	if _, err := store.Put(ctx, key, bytes.NewReader(payload), int64(len(payload)), storage.PutOptions{Metadata: map[string]string{"record-count": "1"}}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	second := "audit/date=2026-01-01/hour=01/audit-second.parquet"
	if _, err := store.Put(ctx, second, bytes.NewReader(payload), int64(len(payload)), storage.PutOptions{}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	objects, err := store.List(ctx, "audit")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	found := false
	for _, object := range objects {
		if object.Key == key && object.Size == int64(len(payload)) {
			found = true
		}
	}
	if !found {
		t.Fatalf("List() = %#v, missing %q", objects, key)
	}

	reader, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	readPayload, err := io.ReadAll(reader)
	_ = reader.Close()
	if err != nil || !bytes.Equal(readPayload, payload) {
		t.Fatalf("Get() payload = %q, err = %v", string(readPayload), err)
	}

	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Get(ctx, key); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Get() after delete error = %v, want ErrObjectNotFound", err)
	}

	deleted, err := store.DeleteBatch(ctx, []string{key, second})
	if err != nil {
		t.Fatalf("DeleteBatch() error = %v", err)
	}
	if len(deleted) != 2 {
		t.Fatalf("DeleteBatch() = %#v", deleted)
	}
	if _, err := store.Get(ctx, second); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Get() after batch delete error = %v, want ErrObjectNotFound", err)
	}
}

func envOr(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}
