package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// keepaliveInterval paces SSE comment frames so idle connections stay
// open through proxies.
const keepaliveInterval = 25 * time.Second

// handleStream serves workflow events as server-sent events. Each
// event carries its type in the SSE event field and the full payload
// as JSON data.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		s.writeError(w, http.StatusServiceUnavailable,
			fmt.Errorf("event stream not configured"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	sub := s.events.Subscribe()
	defer s.events.Unsubscribe(sub)

	fmt.Fprintf(w, ": connected\n\n")
	flusher.Flush()

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case event, open := <-sub:
			if !open {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				s.logger.Warn("event marshaling failed", "type", event.EventType(), "error", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.EventType(), data)
			flusher.Flush()

		case <-keepalive.C:
			fmt.Fprintf(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}
