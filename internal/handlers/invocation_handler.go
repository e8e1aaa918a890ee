// File: internal/handlers/invocation_handler.go
package handlers

import (
	"net/http"
	"strconv"

	"github.com/iyunix/mcp-openai/internal/repository/invocation"
	"github.com/iyunix/mcp-openai/internal/services"
)

type InvocationHandler struct {
	repo   invocation.InvocationRepository
	logger Logger
}

func NewInvocationHandler(repo invocation.InvocationRepository, logger Logger) *InvocationHandler {
	return &InvocationHandler{repo: repo, logger: logger}
}

// Recent lists the newest audit rows. Query: limit (1..200), tool.
func (h *InvocationHandler) Recent(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	limit := invocation.DefaultRecentLimit
	if raw := query.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > invocation.MaxRecentLimit {
			writeError(w, "limit must be between 1 and 200", http.StatusBadRequest)
			return
		}
		limit = n
	}

	tool := query.Get("tool")
	if tool != "" && tool != services.ToolAskOpenAI && tool != services.ToolCreateImage {
		writeError(w, "unknown tool", http.StatusBadRequest)
		return
	}

	rows, err := h.repo.Recent(r.Context(), tool, limit)
	if err != nil {
		h.logger.Error("failed to list invocations", "error", err)
		writeError(w, "Could not retrieve invocations", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"invocations": rows,
		"count":       len(rows),
		"limit":       limit,
	})
}

// Stats reports how many invocations ended in each state.
func (h *InvocationHandler) Stats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.repo.CountByState(r.Context())
	if err != nil {
		h.logger.Error("failed to count invocations", "error", err)
		writeError(w, "Could not retrieve stats", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"states": counts})
}
