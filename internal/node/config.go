package node

import (
	"time"

	"espnow-arena/node/internal/engine"
	"espnow-arena/node/internal/mapgen"
	"espnow-arena/node/internal/reach"
)

// Config tunes one node. Rows, Cols, Engine and the seed fields must match
// on both nodes.
type Config struct {
	PlayerID uint8
	// Host distributes the round seed to the peer with MapSync.
	Host bool

	Rows   int
	Cols   int
	Engine engine.Config

	MapSeed       uint32
	AutoRandomize bool

	TickRate          int
	InboundCapacity   int
	ActionCapacity    int
	HeartbeatInterval time.Duration
	JoinInterval      time.Duration
	SnapshotInterval  time.Duration
	PositionRate      float64
	PositionBurst     int
	ReachTimeout      time.Duration
}

func DefaultConfig() Config {
	return Config{
		Rows:              mapgen.DefaultRows,
		Cols:              mapgen.DefaultCols,
		Engine:            engine.DefaultConfig(),
		TickRate:          30,
		InboundCapacity:   256,
		ActionCapacity:    32,
		HeartbeatInterval: time.Second,
		JoinInterval:      2 * time.Second,
		SnapshotInterval:  5 * time.Second,
		PositionRate:      10,
		PositionBurst:     2,
		ReachTimeout:      reach.DefaultTimeout,
	}
}

func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.Rows <= 0 {
		c.Rows = def.Rows
	}
	if c.Cols <= 0 {
		c.Cols = def.Cols
	}
	if c.TickRate <= 0 {
		c.TickRate = def.TickRate
	}
	if c.InboundCapacity <= 0 {
		c.InboundCapacity = def.InboundCapacity
	}
	if c.ActionCapacity <= 0 {
		c.ActionCapacity = def.ActionCapacity
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = def.HeartbeatInterval
	}
	if c.JoinInterval <= 0 {
		c.JoinInterval = def.JoinInterval
	}
	if c.PositionRate <= 0 {
		c.PositionRate = def.PositionRate
	}
	if c.PositionBurst <= 0 {
		c.PositionBurst = def.PositionBurst
	}
	if c.ReachTimeout <= 0 {
		c.ReachTimeout = def.ReachTimeout
	}
	return c
}
