package lifecycle

import (
	"context"

	"espnow-arena/node/logging"
)

const (
	// EventRoundStarted is emitted when a node generates a map and resets its pools.
	EventRoundStarted logging.EventType = "lifecycle.round_started"
	// EventPeerJoined is emitted when the peer announces itself.
	EventPeerJoined logging.EventType = "lifecycle.peer_joined"
)

// RoundStartedPayload captures how the round's map was seeded.
type RoundStartedPayload struct {
	Round       uint32 `json:"round"`
	Seed        uint32 `json:"seed"`
	SeedSource  string `json:"seedSource"`
	Fingerprint string `json:"fingerprint"`
	Rows        int    `json:"rows"`
	Cols        int    `json:"cols"`
}

type PeerJoinedPayload struct {
	Address string `json:"address"`
	Ack     bool   `json:"ack,omitempty"`
}

// RoundStarted publishes a round start.
func RoundStarted(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload RoundStartedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventRoundStarted,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
		Extra:    extra,
	})
}

// PeerJoined publishes a join or join-ack from the peer.
func PeerJoined(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload PeerJoinedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventPeerJoined,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
		Extra:    extra,
	})
}
