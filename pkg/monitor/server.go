package monitor

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server wires a Monitor's read-only surface onto a chi router: /metrics
// for Prometheus scraping, /healthz for liveness, /snapshot for the
// structured counters/stages/alerts report (spec.md §4.8, SPEC_FULL.md C8
// additions).
type Server struct {
	monitor *Monitor
	started time.Time
}

// NewServer returns a Server for monitor. started is recorded immediately
// so /healthz can report uptime.
func NewServer(monitor *Monitor) *Server {
	return &Server{monitor: monitor, started: time.Now()}
}

// Routes mounts the monitor's endpoints onto r.
func (s *Server) Routes(r chi.Router) {
	r.Get("/metrics", s.handleMetrics)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/snapshot", s.handleSnapshot)
}

// Handler builds a standalone chi.Mux serving only the monitor's routes,
// for callers that don't already run a chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	s.Routes(r)
	return r
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	promhttp.HandlerFor(s.monitor.Registry(), promhttp.HandlerOpts{}).ServeHTTP(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"uptime": time.Since(s.started).String(),
	})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.monitor.Snapshot())
}
