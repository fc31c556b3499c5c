package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"outing-workers/internal/common/database"
	"outing-workers/internal/common/observability"
)

type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
}

// StatusSource is the read side of the conversation store.
type StatusSource interface {
	Status(id string) (string, bool)
	UpdatedAt(id string) (time.Time, bool)
}

// TimingSource exposes the per-conversation tool timings.
type TimingSource interface {
	For(conversationID string) []observability.ToolTiming
}

type Options struct {
	PollInterval time.Duration
	IdleTimeout  time.Duration
	ReadyTimeout time.Duration
}

type Handler struct {
	status  StatusSource
	timings TimingSource
	checks  map[string]database.Pinger
	opts    Options
	logger  Logger
}

// NewHandler builds the HTTP handlers. timings may be nil.
func NewHandler(status StatusSource, timings TimingSource, checks map[string]database.Pinger, opts Options, log Logger) *Handler {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 500 * time.Millisecond
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 2 * time.Minute
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = 3 * time.Second
	}
	return &Handler{status: status, timings: timings, checks: checks, opts: opts, logger: log}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready pings every backing service and answers 503 with the failures.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.opts.ReadyTimeout)
	defer cancel()

	failures := database.CheckAll(ctx, h.checks)
	if len(failures) > 0 {
		h.logger.Warn("readiness check failed", map[string]interface{}{
			"failures": database.Summarize(failures),
		})
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":   "unavailable",
			"failures": database.Summarize(failures),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type StatusResponse struct {
	ConversationID string    `json:"conversationId"`
	Status         string    `json:"status"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func (h *Handler) ConversationStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversationID")

	resp, ok := h.snapshot(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "conversation not found"})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) snapshot(id string) (StatusResponse, bool) {
	status, ok := h.status.Status(id)
	if !ok {
		return StatusResponse{}, false
	}
	updated, _ := h.status.UpdatedAt(id)
	return StatusResponse{ConversationID: id, Status: status, UpdatedAt: updated}, true
}

// ConversationTimings lists the tool calls measured for a conversation.
func (h *Handler) ConversationTimings(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversationID")
	if h.timings == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "timings disabled"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"conversationId": id,
		"timings":        h.timings.For(id),
	})
}
