// Package audit builds the per-run audit record and delivers it to sinks.
//
// A record is the only durable output of a run. Sinks either log it, archive
// it as Parquet batches in the object store, or both.
package audit

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusHealthy Status = "Healthy"
	StatusError   Status = "Error"
)

// Record is built once per run and never mutated afterwards.
type Record struct {
	RunID       string `json:"run_id,omitempty"`
	Workflow    string `json:"workflow,omitempty"`
	EventTime   string `json:"event_time"`
	UserMessage string `json:"user_msg"`
	Status      Status `json:"status"`
	Response    string `json:"response"`
	TotalTokens int    `json:"total_tokens"`
}

func Healthy(at time.Time, userMessage, response string, totalTokens int) Record {
	return Record{
		RunID:       NewRunID(),
		EventTime:   formatEventTime(at),
		UserMessage: userMessage,
		Status:      StatusHealthy,
		Response:    response,
		TotalTokens: totalTokens,
	}
}

// Failed records a run that did not complete. Tokens are always zero.
func Failed(at time.Time, userMessage string, err error) Record {
	response := "unknown error"
	if err != nil && err.Error() != "" {
		response = err.Error()
	}
	return Record{
		RunID:       NewRunID(),
		EventTime:   formatEventTime(at),
		UserMessage: userMessage,
		Status:      StatusError,
		Response:    response,
	}
}

// ForWorkflow returns a copy of the record tagged with the workflow name.
func (r Record) ForWorkflow(name string) Record {
	r.Workflow = name
	return r
}

func (r Record) Time() (time.Time, error) {
	return time.Parse(time.RFC3339Nano, r.EventTime)
}

func NewRunID() string {
	return uuid.NewString()
}

func formatEventTime(at time.Time) string {
	if at.IsZero() {
		at = time.Now()
	}
	return at.UTC().Format(time.RFC3339Nano)
}
