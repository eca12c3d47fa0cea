package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// permissionEvents streams prompt outcomes as Server-Sent Events until the
// client goes away.
func (s *Server) permissionEvents(w http.ResponseWriter, r *http.Request) {
	if s.Gate == nil {
		http.Error(w, "permission events unavailable", http.StatusNotFound)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	// The stream outlives the server's write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	events, cancel := s.Gate.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	// Comment line so clients see the stream open before the first event.
	_, _ = fmt.Fprint(w, ": subscribed\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			b, err := json.Marshal(ev)
			if err != nil {
				s.Log.Error("encoding permission event", "err", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: permission\ndata: %s\n\n", b); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
