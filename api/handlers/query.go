package handlers

import (
	"net/http"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/acme-corp/enterprise-tool-router/internal/dispatcher"
	"github.com/acme-corp/enterprise-tool-router/internal/routerdomain"
	"github.com/acme-corp/enterprise-tool-router/internal/routererr"
)

// QueryHandler serves POST /query, the router's only functional endpoint.
type QueryHandler struct {
	dispatcher *dispatcher.Dispatcher
	logger     *zap.Logger
}

// NewQueryHandler builds a QueryHandler over d.
func NewQueryHandler(d *dispatcher.Dispatcher, logger *zap.Logger) *QueryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryHandler{dispatcher: d, logger: logger}
}

// queryRequest is the POST /query request body per spec §6.
type queryRequest struct {
	Query       string `json:"query"`
	UserID      string `json:"user_id"`
	BypassCache bool   `json:"bypass_cache"`
}

// queryResponse is the POST /query response body per spec §6. Its
// shape is fixed by the external interface, not wrapped in the
// generic Response envelope.
type queryResponse struct {
	ToolUsed   string  `json:"tool_used"`
	Confidence float64 `json:"confidence"`
	Result     any     `json:"result"`
	TraceID    string  `json:"trace_id"`
	CostUSD    float64 `json:"cost_usd"`
	Notes      *string `json:"notes,omitempty"`
}

const maxQueryLength = 4000

// HandleQuery validates and dispatches one natural-language or raw-SQL
// query. Per spec §7, a malformed request body is the only case that
// produces a non-200 status; every dispatch outcome, success or
// error, rides inside the 200 response envelope.
func (h *QueryHandler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	if utf8.RuneCountInString(req.Query) == 0 || utf8.RuneCountInString(req.Query) > maxQueryLength {
		WriteRouterError(w, http.StatusBadRequest,
			routererr.New(routererr.KindValidation, "query must be between 1 and 4000 characters"),
			h.logger)
		return
	}

	correlationID := r.Header.Get("X-Correlation-ID")

	routed := h.dispatcher.Handle(r.Context(), dispatcher.Request{
		Query:         req.Query,
		CorrelationID: correlationID,
		UserID:        req.UserID,
		BypassCache:   req.BypassCache,
	})

	w.Header().Set("X-Correlation-ID", routed.CorrelationID)
	WriteJSON(w, http.StatusOK, toQueryResponse(routed))
}

func toQueryResponse(routed routerdomain.Routed) queryResponse {
	resp := queryResponse{
		ToolUsed:   routed.Tool,
		Confidence: routed.Confidence,
		Result:     routed.Result.Data,
		TraceID:    routed.CorrelationID,
		CostUSD:    routed.CostUSD,
	}

	if note := extractNotes(routed.Result); note != "" {
		resp.Notes = &note
	}

	return resp
}

// extractNotes surfaces the short tag a caller uses to distinguish
// dispatch outcomes: a tool's own Notes field, or a structured error's
// "note" detail (safety_violation, planner_validation_failed,
// low_confidence, rate_limit_exceeded, ...).
func extractNotes(result routerdomain.ToolResult) string {
	if result.Notes != "" {
		return result.Notes
	}
	if serialized, ok := result.Data.(routererr.Serialized); ok {
		if note, ok := serialized.Details["note"].(string); ok && note != "" {
			return note
		}
		return serialized.Category
	}
	return ""
}
