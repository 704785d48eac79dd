package engine

import "time"

// Config holds the round constants. Both nodes must run with the same
// values for their detonations to agree.
type Config struct {
	MaxBombs          int
	MaxExplosionCells int
	Fuse              time.Duration
	ExplosionVisible  time.Duration
	Radius            int
	PostHitInvul      time.Duration
	SpawnInvul        time.Duration
	Lives             int
}

func DefaultConfig() Config {
	return Config{
		MaxBombs:          8,
		MaxExplosionCells: 64,
		Fuse:              2000 * time.Millisecond,
		ExplosionVisible:  500 * time.Millisecond,
		Radius:            2,
		PostHitInvul:      1000 * time.Millisecond,
		SpawnInvul:        2000 * time.Millisecond,
		Lives:             3,
	}
}

// normalized fills zero fields from DefaultConfig.
func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.MaxBombs <= 0 {
		c.MaxBombs = def.MaxBombs
	}
	if c.MaxExplosionCells <= 0 {
		c.MaxExplosionCells = def.MaxExplosionCells
	}
	if c.Fuse <= 0 {
		c.Fuse = def.Fuse
	}
	if c.ExplosionVisible <= 0 {
		c.ExplosionVisible = def.ExplosionVisible
	}
	if c.Radius <= 0 {
		c.Radius = def.Radius
	}
	if c.PostHitInvul < 0 {
		c.PostHitInvul = 0
	}
	if c.SpawnInvul < 0 {
		c.SpawnInvul = 0
	}
	if c.Lives <= 0 {
		c.Lives = def.Lives
	}
	return c
}

// SpawnPoint returns the spawn tile for player id on a rows×cols grid:
// player 0 top-left, player 1 bottom-right.
func SpawnPoint(id uint8, rows, cols int) (int, int) {
	if id == 1 {
		return cols - 2, rows - 2
	}
	return 1, 1
}
