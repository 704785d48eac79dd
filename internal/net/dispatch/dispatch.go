// Package dispatch routes raw inbound datagrams to typed handlers.
package dispatch

import (
	"espnow-arena/node/internal/link"
	"espnow-arena/node/internal/net/proto"
	"espnow-arena/node/internal/telemetry"
)

// Handlers lists the optional per-type callbacks. A nil field means the
// message type is accepted and then ignored.
type Handlers struct {
	OnJoin          func(src link.Addr, h proto.Header)
	OnJoinAck       func(src link.Addr, h proto.Header)
	OnHeartbeat     func(src link.Addr, h proto.Header)
	OnInput         func(src link.Addr, msg proto.Input)
	OnPosition      func(src link.Addr, msg proto.Position)
	OnBombPlace     func(src link.Addr, msg proto.BombPlace)
	OnBombExplode   func(src link.Addr, msg proto.BombExplode)
	OnMapSync       func(src link.Addr, msg proto.MapSync)
	OnStateSnapshot func(src link.Addr, h proto.Header, payload []byte)
	OnScoreUpdate   func(src link.Addr, msg proto.ScoreUpdate)
	OnPlayerDeath   func(src link.Addr, msg proto.PlayerDeath)
	OnAck           func(src link.Addr, msg proto.Ack)
}

// Dispatcher validates datagram length against the declared type before
// decoding. Short and unknown datagrams are dropped without error.
type Dispatcher struct {
	handlers Handlers
	metrics  telemetry.Metrics
}

func New(handlers Handlers, metrics telemetry.Metrics) *Dispatcher {
	if metrics == nil {
		metrics = telemetry.NopMetrics()
	}
	return &Dispatcher{handlers: handlers, metrics: metrics}
}

// minSize returns the minimum packet length for t, or false for an unknown type.
func minSize(t proto.MsgType) (int, bool) {
	switch t {
	case proto.TypeJoin, proto.TypeJoinAck, proto.TypeHeartbeat, proto.TypeStateSnapshot:
		return proto.HeaderSize, true
	case proto.TypeInput:
		return proto.InputSize, true
	case proto.TypePosition:
		return proto.PositionSize, true
	case proto.TypeBombPlace:
		return proto.BombPlaceSize, true
	case proto.TypeBombExplode:
		return proto.BombExplodeSize, true
	case proto.TypeMapSync:
		return proto.MapSyncSize, true
	case proto.TypeScoreUpdate:
		return proto.ScoreUpdateSize, true
	case proto.TypePlayerDeath:
		return proto.PlayerDeathSize, true
	case proto.TypeAck:
		return proto.AckSize, true
	}
	return 0, false
}

// Dispatch decodes data and invokes the matching handler. It reports whether
// the datagram passed validation, whether or not a handler was registered.
func (d *Dispatcher) Dispatch(src link.Addr, data []byte) bool {
	if len(data) < proto.HeaderSize {
		d.metrics.Add(telemetry.MetricShortDropped, 1)
		return false
	}
	h := proto.ReadHeader(data)
	need, known := minSize(h.Type)
	if !known {
		d.metrics.Add(telemetry.MetricUnknownType, 1)
		return false
	}
	if len(data) < need {
		d.metrics.Add(telemetry.MetricShortDropped, 1)
		return false
	}

	hs := d.handlers
	switch h.Type {
	case proto.TypeJoin:
		if hs.OnJoin != nil {
			hs.OnJoin(src, h)
		}
	case proto.TypeJoinAck:
		if hs.OnJoinAck != nil {
			hs.OnJoinAck(src, h)
		}
	case proto.TypeHeartbeat:
		switch {
		case hs.OnHeartbeat != nil:
			hs.OnHeartbeat(src, h)
		case hs.OnJoin != nil:
			hs.OnJoin(src, h)
		}
	case proto.TypeInput:
		if hs.OnInput != nil {
			hs.OnInput(src, proto.DecodeInput(data))
		}
	case proto.TypePosition:
		if hs.OnPosition != nil {
			hs.OnPosition(src, proto.DecodePosition(data))
		}
	case proto.TypeBombPlace:
		if hs.OnBombPlace != nil {
			hs.OnBombPlace(src, proto.DecodeBombPlace(data))
		}
	case proto.TypeBombExplode:
		if hs.OnBombExplode != nil {
			hs.OnBombExplode(src, proto.DecodeBombExplode(data))
		}
	case proto.TypeMapSync:
		if hs.OnMapSync != nil {
			hs.OnMapSync(src, proto.DecodeMapSync(data))
		}
	case proto.TypeStateSnapshot:
		if hs.OnStateSnapshot != nil {
			hs.OnStateSnapshot(src, h, data[proto.HeaderSize:])
		}
	case proto.TypeScoreUpdate:
		if hs.OnScoreUpdate != nil {
			hs.OnScoreUpdate(src, proto.DecodeScoreUpdate(data))
		}
	case proto.TypePlayerDeath:
		if hs.OnPlayerDeath != nil {
			hs.OnPlayerDeath(src, proto.DecodePlayerDeath(data))
		}
	case proto.TypeAck:
		if hs.OnAck != nil {
			hs.OnAck(src, proto.DecodeAck(data))
		}
	}
	return true
}
