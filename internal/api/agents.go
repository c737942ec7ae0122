package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/pgagents/pgagents/internal/agent"
	"github.com/pgagents/pgagents/internal/audit"
	"github.com/pgagents/pgagents/internal/workflow"
)

type askResponse struct {
	Answer   string          `json:"answer"`
	Messages []agent.Message `json:"messages"`
	Audit    audit.Record    `json:"audit"`
}

// handleAsk answers with 200 whether or not the run succeeded; the audit
// record's status tells the caller which.
func handleAsk(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Runner == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "AGENTS_NOT_CONFIGURED", "agents are not configured", false, nil)
		return
	}
	question, ok := readQuestion(w, r)
	if !ok {
		return
	}

	result, record, err := deps.Runner.RunAgent(r.Context(), question)
	if err != nil && deps.Logger != nil {
		deps.Logger.WarnContext(r.Context(), "ask failed", slog.String("run_id", record.RunID), slog.Any("error", err))
	}
	messages := result.Messages
	if messages == nil {
		messages = []agent.Message{}
	}
	writeJSON(w, http.StatusOK, askResponse{Answer: result.Text, Messages: messages, Audit: record})
}

type streamLine struct {
	Type     string          `json:"type"`
	Event    *workflow.Event `json:"event,omitempty"`
	Messages []agent.Message `json:"messages,omitempty"`
	Audit    *audit.Record   `json:"audit,omitempty"`
}

// handleWorkflow streams the run as newline-delimited JSON: one "event" line
// per workflow event, then one "result" line carrying the final conversation
// and the audit record.
func handleWorkflow(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Runner == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "AGENTS_NOT_CONFIGURED", "agents are not configured", false, nil)
		return
	}
	wf, err := deps.Runner.Workflow(r.PathValue("name"))
	if err != nil {
		if errors.Is(err, workflow.ErrUnknownWorkflow) {
			writeError(r.Context(), w, http.StatusNotFound, "WORKFLOW_NOT_FOUND", err.Error(), false, nil)
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "WORKFLOW_UNAVAILABLE", err.Error(), false, nil)
		return
	}
	question, ok := readQuestion(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	encoder := json.NewEncoder(w)
	flusher, _ := w.(http.Flusher)
	send := func(line streamLine) {
		if err := encoder.Encode(line); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}

	final, record, err := deps.Runner.RunWorkflow(r.Context(), wf, question, func(event workflow.Event) {
		send(streamLine{Type: "event", Event: &event})
	})
	if err != nil && deps.Logger != nil {
		deps.Logger.WarnContext(r.Context(), "workflow failed", slog.String("workflow", wf.Name()), slog.String("run_id", record.RunID), slog.Any("error", err))
	}
	send(streamLine{Type: "result", Messages: final, Audit: &record})
}
