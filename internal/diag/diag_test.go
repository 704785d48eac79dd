package diag

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"espnow-arena/node/internal/engine"
	"espnow-arena/node/internal/mapgen"
	"espnow-arena/node/internal/node"
	"espnow-arena/node/logging"
)

type stubSource struct {
	status node.Status
	probes int
	result bool
}

func (s *stubSource) Status() node.Status { return s.status }

func (s *stubSource) CheckReachable() bool {
	s.probes++
	s.status.Reach = node.ReachStatus{Checked: true, Reachable: s.result, At: time.Unix(10, 0)}
	return s.result
}

func newStub() *stubSource {
	return &stubSource{
		result: true,
		status: node.Status{
			NodeID:      "n-1",
			PlayerID:    0,
			Round:       3,
			Seed:        42,
			Fingerprint: "deadbeef",
			Scores:      [2]int{10, 20},
			Player:      engine.Player{ID: 0, X: 1, Y: 1, Lives: 3},
			Grid:        mapgen.Generate(7, 7, 42),
		},
	}
}

func serve(h http.Handler, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	return resp
}

func TestHealth(t *testing.T) {
	resp := serve(NewHandler(newStub(), Config{}), http.MethodGet, "/health")
	if resp.Code != http.StatusOK || resp.Body.String() != "ok" {
		t.Fatalf("unexpected health response %d %q", resp.Code, resp.Body.String())
	}
}

func TestDiagnosticsIncludesStatusAndMetrics(t *testing.T) {
	metrics := &logging.Metrics{}
	metrics.TelemetryAdd("packets_in", 7)
	h := NewHandler(newStub(), Config{
		Metrics:     metrics,
		RouterStats: func() logging.RouterStats { return logging.RouterStats{EventsTotal: 4} },
		TickRate:    30,
		Heartbeat:   time.Second,
		Clock:       logging.ClockFunc(func() time.Time { return time.UnixMilli(1234) }),
	})
	resp := serve(h, http.MethodGet, "/diagnostics")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if ct := resp.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}
	var payload struct {
		ServerTime int64             `json:"serverTime"`
		TickRate   int               `json:"tickRate"`
		Heartbeat  int64             `json:"heartbeatMillis"`
		Node       node.Status       `json:"node"`
		Telemetry  map[string]uint64 `json:"telemetry"`
		Logging    struct {
			EventsTotal uint64
		} `json:"logging"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode diagnostics: %v", err)
	}
	if payload.ServerTime != 1234 || payload.TickRate != 30 || payload.Heartbeat != 1000 {
		t.Fatalf("unexpected header fields %+v", payload)
	}
	if payload.Node.Round != 3 || payload.Node.Scores != [2]int{10, 20} {
		t.Fatalf("node status not included: %+v", payload.Node)
	}
	if payload.Telemetry["packets_in"] != 7 {
		t.Fatalf("metrics not included: %v", payload.Telemetry)
	}
	if payload.Logging.EventsTotal != 4 {
		t.Fatalf("router stats not included: %+v", payload.Logging)
	}
}

func TestMapRendersGrid(t *testing.T) {
	resp := serve(NewHandler(newStub(), Config{}), http.MethodGet, "/map")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	lines := strings.Split(strings.TrimSuffix(resp.Body.String(), "\n"), "\n")
	if len(lines) != 7 {
		t.Fatalf("expected 7 rows, got %d", len(lines))
	}
	if lines[1][1] != '0' {
		t.Fatalf("expected local player at (1,1), got %q", lines[1])
	}
}

func TestMapUnavailableWithoutRound(t *testing.T) {
	src := newStub()
	src.status.Grid = nil
	resp := serve(NewHandler(src, Config{}), http.MethodGet, "/map")
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.Code)
	}
}

func TestReachProbe(t *testing.T) {
	src := newStub()
	src.result = false
	h := NewHandler(src, Config{})

	resp := serve(h, http.MethodGet, "/reach")
	var before node.ReachStatus
	if err := json.Unmarshal(resp.Body.Bytes(), &before); err != nil {
		t.Fatalf("decode reach: %v", err)
	}
	if before.Checked || src.probes != 0 {
		t.Fatalf("GET must not probe")
	}

	resp = serve(h, http.MethodPost, "/reach")
	var after node.ReachStatus
	if err := json.Unmarshal(resp.Body.Bytes(), &after); err != nil {
		t.Fatalf("decode reach: %v", err)
	}
	if src.probes != 1 || !after.Checked || after.Reachable {
		t.Fatalf("unexpected probe result %+v after %d probes", after, src.probes)
	}
}

func TestUnknownRoute(t *testing.T) {
	resp := serve(NewHandler(newStub(), Config{}), http.MethodDelete, "/health")
	if resp.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.Code)
	}
}

func TestProfilerMountedOnRequest(t *testing.T) {
	if resp := serve(NewHandler(newStub(), Config{}), http.MethodGet, "/debug/pprof/"); resp.Code != http.StatusNotFound {
		t.Fatalf("profiler should be off by default, got %d", resp.Code)
	}
	resp := serve(NewHandler(newStub(), Config{Profiler: true}), http.MethodGet, "/debug/pprof/")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected profiler index, got %d", resp.Code)
	}
}
