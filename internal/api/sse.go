package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/internhub/reportwatch/internal/notify"
)

const sseHeartbeat = 25 * time.Second

// StreamEvents handles GET /api/v1/events.
// It replays recent notifications, then streams new ones until the client
// disconnects. A Last-Event-ID header limits the replay to notifications
// published after that id.
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// The stream outlives the server's write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	// Subscribe before reading the backlog so nothing published in between is lost.
	ch := h.hub.Subscribe()
	defer h.hub.Unsubscribe(ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	sent := make(map[string]bool)
	for _, n := range replay(h.hub.Recent(), r.Header.Get("Last-Event-ID")) {
		writeSSEEvent(w, flusher, n)
		sent[n.ID] = true
	}
	flusher.Flush()

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case n, open := <-ch:
			if !open {
				return
			}
			if sent[n.ID] {
				continue
			}
			writeSSEEvent(w, flusher, n)
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// replay returns the notifications after lastID, or all of them when lastID
// is empty or unknown.
func replay(recent []notify.Notification, lastID string) []notify.Notification {
	if lastID == "" {
		return recent
	}
	for i, n := range recent {
		if n.ID == lastID {
			return recent[i+1:]
		}
	}
	return recent
}

// writeSSEEvent serialises a notification as a single SSE event frame.
func writeSSEEvent(w http.ResponseWriter, flusher http.Flusher, n notify.Notification) {
	payload, err := json.Marshal(n)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", n.ID, n.Kind, payload)
	flusher.Flush()
}
