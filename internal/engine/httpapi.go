package engine

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/sawpanic/orbstream/internal/net/circuit"
)

// HTTPServer exposes the engine's operator-facing surface: health,
// stream inventory, Prometheus metrics, and a manual timetable reload
// hook (spec §6).
type HTTPServer struct {
	engine  *Engine
	poller  Poller
	startAt time.Time
	log     zerolog.Logger
}

// Poller is the subset of config.Poller the HTTP surface needs, named
// here to avoid an import cycle back into config from handler tests.
type Poller interface {
	Reload() error
}

// NewHTTPServer builds the gorilla/mux router. poller may be nil if the
// process has no timetable file configured.
func NewHTTPServer(e *Engine, poller Poller, log zerolog.Logger) *mux.Router {
	h := &HTTPServer{engine: e, poller: poller, startAt: time.Now(), log: log}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/streams", h.handleStreams).Methods(http.MethodGet)
	r.HandleFunc("/account", h.handleAccount).Methods(http.MethodGet)
	r.HandleFunc("/timetable/reload", h.handleReload).Methods(http.MethodPost)
	r.Handle("/metrics", promhttp.HandlerFor(e.deps.Metrics.Registry(), promhttp.HandlerOpts{}))
	return r
}

type healthzResponse struct {
	OK             bool           `json:"ok"`
	UptimeSec      int64          `json:"uptime_seconds"`
	Streams        int            `json:"stream_count"`
	AdapterBreaker *circuit.Stats `json:"adapter_breaker,omitempty"`
}

func (h *HTTPServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := healthzResponse{
		OK:        true,
		UptimeSec: int64(time.Since(h.startAt).Seconds()),
		Streams:   len(h.engine.Streams()),
	}
	if stats, ok := h.engine.AdapterBreakerStats(); ok {
		resp.OK = resp.OK && stats.Healthy()
		resp.AdapterBreaker = &stats
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.log.Error().Err(err).Msg("healthz encode failed")
	}
}

func (h *HTTPServer) handleStreams(w http.ResponseWriter, r *http.Request) {
	snap := h.engine.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		h.log.Error().Err(err).Msg("streams encode failed")
	}
}

// handleAccount reports the adapter's cached account snapshot. 501 if
// the engine was built without an execution adapter.
func (h *HTTPServer) handleAccount(w http.ResponseWriter, r *http.Request) {
	snap, err := h.engine.AccountSnapshot(r.Context(), time.Now())
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotImplemented)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		h.log.Error().Err(err).Msg("account encode failed")
	}
}

func (h *HTTPServer) handleReload(w http.ResponseWriter, r *http.Request) {
	if h.poller == nil {
		http.Error(w, "no timetable configured", http.StatusNotImplemented)
		return
	}
	if err := h.poller.Reload(); err != nil {
		http.Error(w, err.Error(), http.StatusTooManyRequests)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
