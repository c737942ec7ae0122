package audit

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pgagents/pgagents/internal/testutil"
)

func TestLogSinkWritesStructuredLine(t *testing.T) {
	logger, buf := testutil.NewCapturingLogger()
	sink := NewLogSink(logger)

	record := Failed(time.Now(), "what is in stock?", errors.New("boom"))
	if err := sink.Emit(context.Background(), record); err != nil {
		t.Fatalf("Emit() error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{"audit record", "level=WARN", "status=Error", "response=boom", "total_tokens=0"} {
		if !strings.Contains(out, want) {
			t.Fatalf("log output %q missing %q", out, want)
		}
	}
}

func TestMultiSinkDeliversToAllAndJoinsErrors(t *testing.T) {
	var delivered []string
	first := SinkFunc(func(_ context.Context, r Record) error {
		delivered = append(delivered, "first:"+r.UserMessage)
		return errors.New("first failed")
	})
	second := SinkFunc(func(_ context.Context, r Record) error {
		delivered = append(delivered, "second:"+r.UserMessage)
		return nil
	})

	err := MultiSink{first, nil, second}.Emit(context.Background(), Healthy(time.Now(), "q", "a", 1))
	if err == nil || !strings.Contains(err.Error(), "first failed") {
		t.Fatalf("Emit() error = %v", err)
	}
	if len(delivered) != 2 || delivered[0] != "first:q" || delivered[1] != "second:q" {
		t.Fatalf("delivered = %#v", delivered)
	}
}

func TestEmitToleratesNilSink(t *testing.T) {
	if err := Emit(context.Background(), nil, Healthy(time.Now(), "q", "a", 0)); err != nil {
		t.Fatalf("Emit() error = %v", err)
	}
	if err := Emit(context.Background(), Discard, Healthy(time.Now(), "q", "a", 0)); err != nil {
		t.Fatalf("Emit(Discard) error = %v", err)
	}
}
