package engine

import (
	"context"
	"time"

	"espnow-arena/node/internal/mapgen"
	"espnow-arena/node/logging/match"
)

// Player is the local player's simulation state.
type Player struct {
	ID              uint8
	X, Y            int
	SpawnX, SpawnY  int
	Lives           int
	LastHitAt       time.Time
	SpawnInvulUntil time.Time
	// LastHitEvent is the detonation that last cost a life; later cells of
	// the same detonation do not hit again.
	LastHitEvent int
}

// Alive reports whether the player has lives left.
func (p Player) Alive() bool {
	return p.Lives > 0
}

// Move steps the local player by (dx, dy). The target must be an in-bounds
// Empty tile without an armed bomb.
func (e *Engine) Move(dx, dy int) bool {
	if !e.player.Alive() {
		return false
	}
	nx, ny := e.player.X+dx, e.player.Y+dy
	if !e.grid.InBounds(nx, ny) || e.grid.At(nx, ny) != mapgen.Empty || e.BombAt(nx, ny) {
		return false
	}
	e.player.X, e.player.Y = nx, ny
	return true
}

// Invulnerable reports whether either protection window is open at now.
func (e *Engine) Invulnerable(now time.Time) bool {
	p := e.player
	if !p.LastHitAt.IsZero() && now.Sub(p.LastHitAt) < e.cfg.PostHitInvul {
		return true
	}
	return now.Before(p.SpawnInvulUntil)
}

// damageAt applies a new explosion cell's damage to the local player when
// it stands on (x, y). force bypasses the invulnerability windows, never
// the once-per-detonation rule.
func (e *Engine) damageAt(x, y int, owner uint8, force bool, ev int) {
	p := &e.player
	if !p.Alive() || p.X != x || p.Y != y {
		return
	}
	if ev != 0 && ev == p.LastHitEvent {
		return
	}
	now := e.clock.Now()
	if !force && e.Invulnerable(now) {
		return
	}
	e.loseLife(owner, ev, force, now)
}

// CheckPlayerHit costs the local player a life when a live explosion cell
// covers their tile and no protection window is open.
func (e *Engine) CheckPlayerHit() {
	p := &e.player
	if !p.Alive() {
		return
	}
	now := e.clock.Now()
	if e.Invulnerable(now) {
		return
	}
	cell, ok := e.liveCellAt(p.X, p.Y, now)
	if !ok || (cell.EventID != 0 && cell.EventID == p.LastHitEvent) {
		return
	}
	e.loseLife(cell.Owner, cell.EventID, false, now)
}

func (e *Engine) loseLife(killer uint8, ev int, forced bool, now time.Time) {
	p := &e.player
	if p.Lives > 0 {
		p.Lives--
	}
	p.LastHitAt = now
	p.LastHitEvent = ev
	p.X, p.Y = p.SpawnX, p.SpawnY
	if p.Lives > 0 {
		p.SpawnInvulUntil = now.Add(e.cfg.SpawnInvul)
	}

	match.LifeLost(context.Background(), e.publisher, e.tick, playerRef(p.ID), playerRef(killer), match.LifeLostPayload{
		KillerID:  killer,
		EventID:   ev,
		LivesLeft: p.Lives,
		Forced:    forced,
	}, nil)

	if e.hooks.OnLifeLost != nil {
		e.hooks.OnLifeLost(killer, ev, p.Lives)
	}
	if p.Lives == 0 && e.hooks.OnLivesExhausted != nil {
		e.hooks.OnLivesExhausted()
	}
}
