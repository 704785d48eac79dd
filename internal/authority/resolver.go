// Package authority decides which node commits a score change and applies
// the changes the peer commits.
package authority

import (
	"context"
	"strconv"

	"espnow-arena/node/internal/net/proto"
	"espnow-arena/node/internal/telemetry"
	"espnow-arena/node/logging"
	"espnow-arena/node/logging/match"
	"espnow-arena/node/logging/network"
)

// TileCredit is the score for one destroyed breakable tile.
const TileCredit = 10

// Hooks are the application's score callbacks. With AddScore absent the
// resolver keeps a single global counter instead. Absolute scores from a
// PlayerDeath go through SetScores, or through AddScore deltas against
// Score when SetScores is nil.
type Hooks struct {
	AddScore    func(owner uint8, points int)
	ResetScores func()
	SetScores   func(score0, score1 int)
	// Score, when set, reports a player's total for published events.
	Score func(id uint8) int
}

// Sender transmits to the configured peer; link.Peer satisfies it.
type Sender interface {
	Send(data []byte) bool
}

// Deps carries the resolver's reporting infrastructure.
type Deps struct {
	Logger    telemetry.Logger
	Metrics   telemetry.Metrics
	Publisher logging.Publisher
}

type Resolver struct {
	local   uint8
	enc     *proto.Encoder
	peer    Sender
	hooks   Hooks
	global  int
	recent  *proto.Dedupe
	tick    uint64
	logger  telemetry.Logger
	metrics telemetry.Metrics
	pub     logging.Publisher
}

// New builds a resolver for the local player. ScoreUpdates it commits are
// stamped by enc and sent through peer.
func New(local uint8, enc *proto.Encoder, peer Sender, hooks Hooks, deps Deps) *Resolver {
	if deps.Logger == nil {
		deps.Logger = telemetry.Discard()
	}
	if deps.Metrics == nil {
		deps.Metrics = telemetry.NopMetrics()
	}
	if deps.Publisher == nil {
		deps.Publisher = logging.NopPublisher()
	}
	return &Resolver{
		local:   local,
		enc:     enc,
		peer:    peer,
		hooks:   hooks,
		recent:  proto.NewDedupe(),
		logger:  deps.Logger,
		metrics: deps.Metrics,
		pub:     deps.Publisher,
	}
}

// SetPublisher swaps the event publisher, e.g. for a new round trace.
func (r *Resolver) SetPublisher(p logging.Publisher) {
	if p == nil {
		p = logging.NopPublisher()
	}
	r.pub = p
}

// SetTick records the main-loop tick stamped on published events.
func (r *Resolver) SetTick(tick uint64) {
	r.tick = tick
}

// Global returns the fallback counter used when no AddScore hook is set.
func (r *Resolver) Global() int {
	return r.global
}

// Reset clears scores and the duplicate window for a new round.
func (r *Resolver) Reset() {
	if r.hooks.ResetScores != nil {
		r.hooks.ResetScores()
	} else {
		r.global = 0
	}
	r.recent.Reset()
}

// TileDestroyed commits the tile credit only when the bomb record found on
// the tile belongs to the local player. The peer's node handles its own.
func (r *Resolver) TileDestroyed(x, y, eventID int, owner uint8, matched bool) bool {
	if !matched || owner != r.local {
		return false
	}
	r.Commit(owner, TileCredit)
	return true
}

// Commit applies delta for owner locally and broadcasts it as a ScoreUpdate.
// A failed send is reported but not retried.
func (r *Resolver) Commit(owner uint8, delta int) {
	total := r.add(owner, delta)
	match.ScoreCommitted(context.Background(), r.pub, r.tick, r.actor(), match.ScorePayload{
		Owner: owner,
		Delta: delta,
		Total: total,
	}, nil)

	if r.enc == nil || r.peer == nil {
		return
	}
	pkt := r.enc.ScoreUpdate(owner, int16(delta))
	if !r.peer.Send(pkt) {
		r.metrics.Add(telemetry.MetricSendFailures, 1)
		h := proto.ReadHeader(pkt)
		network.SendFailed(context.Background(), r.pub, r.tick, r.actor(), network.SendFailedPayload{
			MsgType: h.Type.String(),
			Seq:     h.Seq,
			Bytes:   len(pkt),
		}, nil)
	}
}

// ApplyScoreUpdate applies a delta the peer committed. Each datagram is
// applied at most once and is never rebroadcast.
func (r *Resolver) ApplyScoreUpdate(msg proto.ScoreUpdate) bool {
	if msg.FromID == r.local || !r.recent.FirstSeen(msg.Header) {
		return false
	}
	total := r.add(msg.Owner, int(msg.Delta))
	match.ScoreApplied(context.Background(), r.pub, r.tick, peerRef(msg.FromID), match.ScorePayload{
		Owner: msg.Owner,
		Delta: int(msg.Delta),
		Total: total,
	}, nil)
	return true
}

// ApplyPlayerDeath overwrites both scores with the absolute values the
// victim's node reported.
func (r *Resolver) ApplyPlayerDeath(msg proto.PlayerDeath) bool {
	if msg.FromID == r.local || !r.recent.FirstSeen(msg.Header) {
		return false
	}
	switch {
	case r.hooks.SetScores != nil:
		r.hooks.SetScores(int(msg.Score0), int(msg.Score1))
	case r.hooks.AddScore == nil:
		if r.local == 0 {
			r.global = int(msg.Score0)
		} else {
			r.global = int(msg.Score1)
		}
	case r.hooks.Score != nil:
		r.hooks.AddScore(0, int(msg.Score0)-r.hooks.Score(0))
		r.hooks.AddScore(1, int(msg.Score1)-r.hooks.Score(1))
	default:
		r.logger.Printf("player death from %d: scores not applied, hooks need SetScores or Score", msg.FromID)
		return false
	}
	return true
}

func (r *Resolver) add(owner uint8, delta int) int {
	if r.hooks.AddScore != nil {
		r.hooks.AddScore(owner, delta)
		if r.hooks.Score != nil {
			return r.hooks.Score(owner)
		}
		return 0
	}
	r.global += delta
	return r.global
}

func (r *Resolver) actor() logging.EntityRef {
	return logging.EntityRef{ID: strconv.Itoa(int(r.local)), Kind: logging.EntityKindPlayer}
}

func peerRef(id uint8) logging.EntityRef {
	return logging.EntityRef{ID: strconv.Itoa(int(id)), Kind: logging.EntityKindPeer}
}
