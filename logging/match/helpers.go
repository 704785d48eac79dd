package match

import (
	"context"

	"espnow-arena/node/logging"
)

const (
	// EventBombPlaced is emitted when a bomb is armed, locally or mirrored from the peer.
	EventBombPlaced logging.EventType = "match.bomb_placed"
	// EventDetonation is emitted once per detonation event.
	EventDetonation logging.EventType = "match.detonation"
	// EventTileDestroyed is emitted when a breakable tile is cleared by a blast.
	EventTileDestroyed logging.EventType = "match.tile_destroyed"
	// EventScoreCommitted is emitted when this node is authoritative for a score change.
	EventScoreCommitted logging.EventType = "match.score_committed"
	// EventScoreApplied is emitted when a score change from the peer is applied.
	EventScoreApplied logging.EventType = "match.score_applied"
	// EventLifeLost is emitted when the local player loses a life.
	EventLifeLost logging.EventType = "match.life_lost"
	// EventCellDropped is emitted when the explosion pool is exhausted.
	EventCellDropped logging.EventType = "match.cell_dropped"
)

type BombPlacedPayload struct {
	BombID uint16 `json:"bombId"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
	FuseMs int64  `json:"fuseMs"`
	Remote bool   `json:"remote,omitempty"`
}

type DetonationPayload struct {
	EventID int  `json:"eventId"`
	X       int  `json:"x"`
	Y       int  `json:"y"`
	Cells   int  `json:"cells"`
	Remote  bool `json:"remote,omitempty"`
}

type TileDestroyedPayload struct {
	X       int  `json:"x"`
	Y       int  `json:"y"`
	EventID int  `json:"eventId"`
	Credit  bool `json:"credit"`
}

type ScorePayload struct {
	Owner uint8 `json:"owner"`
	Delta int   `json:"delta"`
	Total int   `json:"total"`
}

type LifeLostPayload struct {
	KillerID  uint8 `json:"killerId"`
	EventID   int   `json:"eventId"`
	LivesLeft int   `json:"livesLeft"`
	Forced    bool  `json:"forced,omitempty"`
}

type CellDroppedPayload struct {
	X       int `json:"x"`
	Y       int `json:"y"`
	EventID int `json:"eventId"`
}

func publish(ctx context.Context, pub logging.Publisher, eventType logging.EventType, severity logging.Severity, tick uint64, actor logging.EntityRef, targets []logging.EntityRef, payload any, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     eventType,
		Tick:     tick,
		Actor:    actor,
		Targets:  targets,
		Severity: severity,
		Category: logging.CategoryMatch,
		Payload:  payload,
		Extra:    extra,
	})
}

// BombPlaced publishes a bomb arm event.
func BombPlaced(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload BombPlacedPayload, extra map[string]any) {
	publish(ctx, pub, EventBombPlaced, logging.SeverityDebug, tick, actor, nil, payload, extra)
}

// Detonation publishes a detonation summary.
func Detonation(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload DetonationPayload, extra map[string]any) {
	publish(ctx, pub, EventDetonation, logging.SeverityInfo, tick, actor, nil, payload, extra)
}

// TileDestroyed publishes a tile destruction.
func TileDestroyed(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload TileDestroyedPayload, extra map[string]any) {
	publish(ctx, pub, EventTileDestroyed, logging.SeverityDebug, tick, actor, nil, payload, extra)
}

// ScoreCommitted publishes a locally committed, broadcast score change.
func ScoreCommitted(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload ScorePayload, extra map[string]any) {
	publish(ctx, pub, EventScoreCommitted, logging.SeverityInfo, tick, actor, nil, payload, extra)
}

// ScoreApplied publishes a score change received from the peer.
func ScoreApplied(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload ScorePayload, extra map[string]any) {
	publish(ctx, pub, EventScoreApplied, logging.SeverityInfo, tick, actor, nil, payload, extra)
}

// LifeLost publishes a local life loss.
func LifeLost(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, killer logging.EntityRef, payload LifeLostPayload, extra map[string]any) {
	publish(ctx, pub, EventLifeLost, logging.SeverityInfo, tick, actor, []logging.EntityRef{killer}, payload, extra)
}

// CellDropped publishes a warning when an explosion cell could not be allocated.
func CellDropped(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload CellDroppedPayload, extra map[string]any) {
	publish(ctx, pub, EventCellDropped, logging.SeverityWarn, tick, actor, nil, payload, extra)
}
