package api

import (
	"fmt"
	"net/http"
	"time"
)

const heartbeatInterval = 15 * time.Second

// handleEvents handles GET /api/v1/workspaces/{id}/events. Each redraw signal
// becomes one server-sent event naming the table to redraw.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	agg, ok := s.aggregator(w, r)
	if !ok {
		return
	}

	rc := http.NewResponseController(w)
	// streams outlive the server write timeout
	_ = rc.SetWriteDeadline(time.Time{})

	sub := agg.Subscribe()
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	fmt.Fprint(w, ": connected\n\n")
	if err := rc.Flush(); err != nil {
		s.logger.Warn("event stream not supported", "error", err)
		return
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case table, ok := <-sub.C:
			if !ok {
				fmt.Fprint(w, "event: close\ndata: stopped\n\n")
				rc.Flush()
				return
			}
			if _, err := fmt.Fprintf(w, "event: redraw\ndata: %s\n\n", table); err != nil {
				return
			}
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
