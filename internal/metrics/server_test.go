package metrics

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHandlerIPFilter(t *testing.T) {
	m := New()
	m.CommandApplied("ws1", "fetch")
	s := NewServer(m, "", "/metrics", []string{"10.0.0.0/8"}, discardLogger())
	h := s.Handler()

	tests := []struct {
		name       string
		path       string
		remoteAddr string
		wantStatus int
	}{
		{"allowed scrape", "/metrics", "10.1.2.3:5000", http.StatusOK},
		{"denied scrape", "/metrics", "192.168.1.1:5000", http.StatusForbidden},
		{"health is open", "/health", "192.168.1.1:5000", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", tt.path, nil)
			r.RemoteAddr = tt.remoteAddr
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, r)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.path == "/metrics" && tt.wantStatus == http.StatusOK {
				body, _ := io.ReadAll(rec.Body)
				if !strings.Contains(string(body), "phishdash_commands_total") {
					t.Error("scrape is missing phishdash_commands_total")
				}
			}
		})
	}
}
