package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// SSE event names.
const (
	EventStatus = "status"
	EventIdle   = "idle"
	EventEnd    = "end"
)

// StreamStatus pushes the conversation status as server-sent events whenever it
// changes. The stream closes when the client leaves, when the conversation is
// cleared, or after IdleTimeout without a change.
func (h *Handler) StreamStatus(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	id := chi.URLParam(r, "conversationID")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(h.opts.PollInterval)
	defer ticker.Stop()

	var (
		last       StatusResponse
		seen       bool
		lastChange = time.Now()
	)

	for {
		snap, exists := h.snapshot(id)
		switch {
		case exists && (!seen || snap.Status != last.Status || !snap.UpdatedAt.Equal(last.UpdatedAt)):
			if err := writeEvent(w, EventStatus, snap); err != nil {
				return
			}
			flusher.Flush()
			last, seen, lastChange = snap, true, time.Now()

		case !exists && seen:
			_ = writeEvent(w, EventEnd, map[string]string{"conversationId": id})
			flusher.Flush()
			return
		}

		if time.Since(lastChange) >= h.opts.IdleTimeout {
			_ = writeEvent(w, EventIdle, map[string]string{"conversationId": id})
			flusher.Flush()
			return
		}

		select {
		case <-r.Context().Done():
			h.logger.Info("status stream closed by client", map[string]interface{}{"conversationId": id})
			return
		case <-ticker.C:
		}
	}
}

func writeEvent(w http.ResponseWriter, event string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	return err
}
