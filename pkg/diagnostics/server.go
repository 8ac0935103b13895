package diagnostics

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/sshfsmond/sshfsmond/pkg/metrics"
)

// Server exposes /healthz (liveness) and /metrics (Prometheus) over HTTP.
// It is optional scaffolding for an embedder that wants process-level
// monitoring; the core itself never depends on it being running.
type Server struct {
	mux *http.ServeMux
}

// NewServer builds a Server. ring may be nil if a caller only wants the
// liveness/metrics endpoints without a diagnostics-text endpoint.
func NewServer(ring *Ring, inputs func() SnapshotInputs) *Server {
	mux := http.NewServeMux()
	s := &Server{mux: mux}

	mux.HandleFunc("/healthz", s.healthzHandler)
	mux.Handle("/metrics", metrics.Handler())
	if ring != nil && inputs != nil {
		mux.HandleFunc("/diagnostics", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
				return
			}
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			_, _ = w.Write([]byte(ring.Snapshot(inputs())))
		})
	}

	return s
}

type healthzResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) healthzHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(healthzResponse{Status: "ok", Timestamp: time.Now()})
}

// Handler returns the HTTP handler for embedding in another server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe starts the HTTP server on addr, matching the teacher's
// health server's timeout defaults.
func (s *Server) ListenAndServe(addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return server.ListenAndServe()
}
