package dispatch

import (
	"testing"

	"espnow-arena/node/internal/link"
	"espnow-arena/node/internal/net/proto"
	"espnow-arena/node/internal/telemetry"
	"espnow-arena/node/logging"
)

var src = link.Addr{1, 2, 3, 4, 5, 6}

type recorder struct {
	calls map[string]int
	last  any
}

func newRecorder() *recorder {
	return &recorder{calls: make(map[string]int)}
}

func (r *recorder) total() int {
	n := 0
	for _, c := range r.calls {
		n += c
	}
	return n
}

func (r *recorder) handlers() Handlers {
	hit := func(name string, v any) {
		r.calls[name]++
		r.last = v
	}
	return Handlers{
		OnJoin:        func(_ link.Addr, h proto.Header) { hit("join", h) },
		OnJoinAck:     func(_ link.Addr, h proto.Header) { hit("join_ack", h) },
		OnHeartbeat:   func(_ link.Addr, h proto.Header) { hit("heartbeat", h) },
		OnInput:       func(_ link.Addr, m proto.Input) { hit("input", m) },
		OnPosition:    func(_ link.Addr, m proto.Position) { hit("position", m) },
		OnBombPlace:   func(_ link.Addr, m proto.BombPlace) { hit("bomb_place", m) },
		OnBombExplode: func(_ link.Addr, m proto.BombExplode) { hit("bomb_explode", m) },
		OnMapSync:     func(_ link.Addr, m proto.MapSync) { hit("map_sync", m) },
		OnStateSnapshot: func(_ link.Addr, _ proto.Header, p []byte) {
			hit("state_snapshot", append([]byte(nil), p...))
		},
		OnScoreUpdate: func(_ link.Addr, m proto.ScoreUpdate) { hit("score_update", m) },
		OnPlayerDeath: func(_ link.Addr, m proto.PlayerDeath) { hit("player_death", m) },
		OnAck:         func(_ link.Addr, m proto.Ack) { hit("ack", m) },
	}
}

func samplePackets() map[string][]byte {
	enc := proto.NewEncoder(1)
	snap, _ := enc.StateSnapshot([]byte{9, 8, 7})
	return map[string][]byte{
		"join":           enc.Join(),
		"join_ack":       enc.JoinAck(),
		"heartbeat":      enc.Heartbeat(),
		"input":          enc.Input(77, 0x03),
		"position":       enc.Position(3, 4, 1, -1, 0),
		"bomb_place":     enc.BombPlace(2, 5, 5, 1000, 2000),
		"bomb_explode":   enc.BombExplode(2, 5, 5, 3000),
		"map_sync":       enc.MapSync(0xCAFE),
		"state_snapshot": snap,
		"score_update":   enc.ScoreUpdate(0, 10),
		"player_death":   enc.PlayerDeath(1, 0, 20, 10),
		"ack":            enc.Ack(41),
	}
}

func TestDispatchRoutesEveryType(t *testing.T) {
	for name, pkt := range samplePackets() {
		rec := newRecorder()
		d := New(rec.handlers(), nil)
		if !d.Dispatch(src, pkt) {
			t.Fatalf("%s: dispatch rejected a full-size packet", name)
		}
		if rec.calls[name] != 1 || rec.total() != 1 {
			t.Fatalf("%s: unexpected handler calls %v", name, rec.calls)
		}
	}
}

func TestDispatchDropsOneByteShort(t *testing.T) {
	for name, pkt := range samplePackets() {
		if name == "state_snapshot" {
			// Its minimum is the bare header; trim the payload away first.
			pkt = pkt[:proto.HeaderSize]
		}
		rec := newRecorder()
		d := New(rec.handlers(), nil)
		if d.Dispatch(src, pkt[:len(pkt)-1]) {
			t.Fatalf("%s: short packet accepted", name)
		}
		if rec.total() != 0 {
			t.Fatalf("%s: handler invoked for short packet: %v", name, rec.calls)
		}
	}
}

func TestDispatchDecodesFields(t *testing.T) {
	rec := newRecorder()
	d := New(rec.handlers(), nil)

	enc := proto.NewEncoder(1)
	d.Dispatch(src, enc.BombPlace(3, 6, 7, 1234, 2000))
	got, ok := rec.last.(proto.BombPlace)
	if !ok {
		t.Fatalf("expected BombPlace, got %T", rec.last)
	}
	if got.FromID != 1 || got.BombID != 3 || got.X != 6 || got.Y != 7 || got.PlacedMs != 1234 || got.FuseMs != 2000 {
		t.Fatalf("unexpected decode: %+v", got)
	}

	snap, ok := enc.StateSnapshot([]byte("abc"))
	if !ok {
		t.Fatalf("snapshot refused")
	}
	d.Dispatch(src, snap)
	if payload := rec.last.([]byte); string(payload) != "abc" {
		t.Fatalf("snapshot payload not header-stripped: %q", payload)
	}
}

func TestHeartbeatFallsBackToJoin(t *testing.T) {
	var joins int
	d := New(Handlers{OnJoin: func(link.Addr, proto.Header) { joins++ }}, nil)
	d.Dispatch(src, proto.NewEncoder(0).Heartbeat())
	if joins != 1 {
		t.Fatalf("expected heartbeat to reach join handler, got %d calls", joins)
	}
}

func TestMissingHandlersAreNoOps(t *testing.T) {
	d := New(Handlers{}, nil)
	for name, pkt := range samplePackets() {
		if !d.Dispatch(src, pkt) {
			t.Fatalf("%s: packet rejected without handlers", name)
		}
	}
}

func TestUnknownAndRunt(t *testing.T) {
	metrics := logging.Metrics{}
	rec := newRecorder()
	d := New(rec.handlers(), telemetry.WrapMetrics(&metrics))

	d.Dispatch(src, []byte{0xA2, 1, 2, 3, 4})
	d.Dispatch(src, []byte{byte(proto.TypeJoin), 0, 0})
	d.Dispatch(src, nil)

	if rec.total() != 0 {
		t.Fatalf("handlers invoked: %v", rec.calls)
	}
	snap := metrics.Snapshot()
	if snap[telemetry.MetricUnknownType] != 1 {
		t.Fatalf("unknown counter = %d", snap[telemetry.MetricUnknownType])
	}
	if snap[telemetry.MetricShortDropped] != 2 {
		t.Fatalf("short counter = %d", snap[telemetry.MetricShortDropped])
	}
}
