package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sweeney/power-sensor/internal/logic"
)

// keepAlive is how often an idle stream sends a comment line.
var keepAlive = 30 * time.Second

// ChangeJSON is one server-sent "power" event.
type ChangeJSON struct {
	Kind     logic.Kind  `json:"kind"`
	Source   string      `json:"source"`
	Recorded bool        `json:"recorded"`
	Event    logic.Event `json:"event"`
}

// handleStream pushes every genuine transition to the client as a
// server-sent event until the client goes away or the server shuts down.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	changes, unsubscribe := s.backend.Subscribe(16)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.quit:
			return
		case <-ticker.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case c, ok := <-changes:
			if !ok {
				return
			}
			data, err := json.Marshal(ChangeJSON{
				Kind:     c.Kind,
				Source:   c.Kind.Source(),
				Recorded: c.Recorded,
				Event:    c.Event,
			})
			if err != nil {
				s.log.Warn().Err(err).Msg("encode stream event")
				continue
			}
			fmt.Fprintf(w, "id: %s\nevent: power\ndata: %s\n\n", c.Event.ID, data)
			flusher.Flush()
		}
	}
}
