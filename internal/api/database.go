package api

import (
	"net/http"
	"strings"

	"github.com/pgagents/pgagents/internal/gateway"
)

type queryRequest struct {
	Query string `json:"query"`
}

type queryResponse struct {
	Outcome string        `json:"outcome"`
	Rows    []gateway.Row `json:"rows"`
	Message string        `json:"message,omitempty"`
}

func handleSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Database == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "DATABASE_NOT_CONFIGURED", "database is not configured", false, nil)
		return
	}
	columns, err := deps.Database.SchemaInfo(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusBadGateway, "SCHEMA_UNAVAILABLE", err.Error(), true, nil)
		return
	}
	if columns == nil {
		columns = []gateway.ColumnInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"columns": columns})
}

// handleQuery runs a statement through the read-only gateway. A policy
// rejection is a client error; a driver error is reported as unprocessable.
func handleQuery(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Database == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "DATABASE_NOT_CONFIGURED", "database is not configured", false, nil)
		return
	}
	var request queryRequest
	if err := decodeBody(w, r, &request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid query request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.Query) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUERY_REQUIRED", "query is required", false, nil)
		return
	}

	outcome := deps.Database.ExecuteQuery(r.Context(), request.Query)
	switch outcome.Kind {
	case gateway.OutcomePolicyRejected:
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_NOT_ALLOWED", outcome.Message, false, nil)
	case gateway.OutcomeDriverError:
		writeError(r.Context(), w, http.StatusUnprocessableEntity, "QUERY_FAILED", outcome.Message, false, nil)
	default:
		rows := outcome.Rows
		if rows == nil {
			rows = []gateway.Row{}
		}
		writeJSON(w, http.StatusOK, queryResponse{Outcome: outcome.Kind.String(), Rows: rows})
	}
}
