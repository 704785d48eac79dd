// Package diag serves a node's health, status and map over HTTP.
package diag

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"espnow-arena/node/internal/node"
	"espnow-arena/node/internal/telemetry"
	"espnow-arena/node/logging"
)

// Source is the node state diag reads. *node.Node satisfies it.
type Source interface {
	Status() node.Status
	CheckReachable() bool
}

type Config struct {
	Logger telemetry.Logger
	// Metrics, when set, is included in /diagnostics.
	Metrics *logging.Metrics
	// RouterStats, when set, reports logging router throughput.
	RouterStats func() logging.RouterStats
	TickRate    int
	Heartbeat   time.Duration
	// Timeout bounds each request; POST /reach blocks for a probe.
	Timeout time.Duration
	Clock   logging.Clock
	// Profiler mounts net/http/pprof under /debug.
	Profiler bool
}

type handler struct {
	src Source
	cfg Config
}

func NewHandler(src Source, cfg Config) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = telemetry.Discard()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = logging.SystemClock{}
	}
	h := &handler{src: src, cfg: cfg}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.Timeout))

	r.Get("/health", h.health)
	r.Get("/diagnostics", h.diagnostics)
	r.Get("/map", h.renderMap)
	r.Get("/reach", h.reachStatus)
	r.Post("/reach", h.probe)
	if cfg.Profiler {
		r.Mount("/debug", middleware.Profiler())
	}
	return r
}

// NewServer wraps handler with the read and write limits used for the
// diagnostics listener.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("ok"))
}

func (h *handler) diagnostics(w http.ResponseWriter, _ *http.Request) {
	payload := struct {
		Status     string               `json:"status"`
		ServerTime int64                `json:"serverTime"`
		TickRate   int                  `json:"tickRate"`
		Heartbeat  int64                `json:"heartbeatMillis"`
		Node       node.Status          `json:"node"`
		Telemetry  map[string]uint64    `json:"telemetry,omitempty"`
		Logging    *logging.RouterStats `json:"logging,omitempty"`
	}{
		Status:     "ok",
		ServerTime: h.cfg.Clock.Now().UnixMilli(),
		TickRate:   h.cfg.TickRate,
		Heartbeat:  h.cfg.Heartbeat.Milliseconds(),
		Node:       h.src.Status(),
	}
	if h.cfg.Metrics != nil {
		payload.Telemetry = h.cfg.Metrics.Snapshot()
	}
	if h.cfg.RouterStats != nil {
		stats := h.cfg.RouterStats()
		payload.Logging = &stats
	}
	h.writeJSON(w, payload)
}

func (h *handler) renderMap(w http.ResponseWriter, _ *http.Request) {
	text := node.Render(h.src.Status())
	if text == "" {
		http.Error(w, "no round in progress", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(text))
}

func (h *handler) reachStatus(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, h.src.Status().Reach)
}

func (h *handler) probe(w http.ResponseWriter, r *http.Request) {
	ok := h.src.CheckReachable()
	h.cfg.Logger.Printf("reachability probe from %s (request %s): reachable=%t", r.RemoteAddr, middleware.GetReqID(r.Context()), ok)
	h.writeJSON(w, h.src.Status().Reach)
}

func (h *handler) writeJSON(w http.ResponseWriter, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.cfg.Logger.Printf("diag: encode response: %v", err)
		http.Error(w, "failed to encode", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}
