// Package storagetest provides an in-memory storage.ObjectStore for tests.
package storagetest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pgagents/pgagents/internal/storage"
)

type Memory struct {
	mu       sync.Mutex
	objects  map[string][]byte
	metadata map[string]map[string]string
	now      func() time.Time

	// PutErr, when set, is returned by every Put.
	PutErr error
	// Batches counts DeleteBatch calls.
	Batches int
	// Puts counts Put calls, failed ones included.
	Puts int
}

func NewMemory() *Memory {
	return &Memory{
		objects:  map[string][]byte{},
		metadata: map[string]map[string]string{},
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (m *Memory) Put(_ context.Context, key string, body io.Reader, _ int64, opts storage.PutOptions) (storage.ObjectInfo, error) {
	m.mu.Lock()
	m.Puts++
	putErr := m.PutErr
	m.mu.Unlock()
	if putErr != nil {
		return storage.ObjectInfo{}, putErr
	}
	key = strings.TrimPrefix(key, "/")
	if key == "" {
		return storage.ObjectInfo{}, errors.New("object key is required")
	}
	payload, err := io.ReadAll(body)
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("read body: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = payload
	m.metadata[key] = maps.Clone(opts.Metadata)
	return storage.ObjectInfo{Key: key, Size: int64(len(payload)), LastModified: m.now()}, nil
}

func (m *Memory) Get(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	payload, ok := m.objects[strings.TrimPrefix(key, "/")]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(payload)), nil
}

func (m *Memory) List(_ context.Context, prefix string) ([]storage.ObjectInfo, error) {
	prefix = strings.TrimPrefix(prefix, "/")
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]storage.ObjectInfo, 0, len(m.objects))
	for key, payload := range m.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, storage.ObjectInfo{Key: key, Size: int64(len(payload))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key = strings.TrimPrefix(key, "/")
	delete(m.objects, key)
	delete(m.metadata, key)
	return nil
}

// DeleteBatch removes keys and counts the calls in Batches.
func (m *Memory) DeleteBatch(ctx context.Context, keys []string) ([]string, error) {
	m.mu.Lock()
	m.Batches++
	m.mu.Unlock()
	deleted := make([]string, 0, len(keys))
	for _, key := range keys {
		if err := m.Delete(ctx, key); err != nil {
			return deleted, err
		}
		deleted = append(deleted, key)
	}
	return deleted, nil
}

// Metadata returns the user metadata stored with key.
func (m *Memory) Metadata(key string) map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.metadata[strings.TrimPrefix(key, "/")])
}

// Keys returns every stored key in order.
func (m *Memory) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for key := range m.objects {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
