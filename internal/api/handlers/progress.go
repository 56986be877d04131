package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/docuforge/docuforge/internal/api"
	"github.com/docuforge/docuforge/internal/domain"
)

type ProgressSource interface {
	EventsSince(ctx context.Context, correlationID string, afterID int64) ([]*domain.ProgressEvent, error)
}

const (
	progressPollInterval = 1 * time.Second
	progressStreamCap    = 5 * time.Minute
)

type ProgressHandler struct {
	events ProgressSource
}

func NewProgressHandler(events ProgressSource) *ProgressHandler {
	return &ProgressHandler{events: events}
}

// Stream serves the progress feed for a correlation id as server-sent events.
// The handler polls the event store and forwards anything new; the stream
// closes after a terminal event, on client disconnect, or at the hard cap.
func (h *ProgressHandler) Stream(w http.ResponseWriter, r *http.Request) {
	correlationID := chi.URLParam(r, "correlationID")
	if correlationID == "" {
		api.Error(w, http.StatusBadRequest, "correlationID is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		api.Error(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx, cancel := context.WithTimeout(r.Context(), progressStreamCap)
	defer cancel()

	ticker := time.NewTicker(progressPollInterval)
	defer ticker.Stop()

	var lastID int64
	for {
		events, err := h.events.EventsSince(ctx, correlationID, lastID)
		if err != nil {
			// The client reconnects with Last-Event-ID semantics; just end.
			return
		}

		for _, ev := range events {
			fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", ev.ID, ev.Type, ev.Payload)
			lastID = ev.ID
			if ev.Type.IsTerminal() {
				flusher.Flush()
				return
			}
		}
		if len(events) > 0 {
			flusher.Flush()
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
