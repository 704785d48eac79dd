package mapgen

import (
	"math/rand"
	"time"
)

// SeedSource names which rule of the seed policy picked a round's seed.
type SeedSource string

const (
	SeedFixed   SeedSource = "fixed"
	SeedPeer    SeedSource = "peer"
	SeedRandom  SeedSource = "random"
	SeedDefault SeedSource = "default"
)

// DefaultSeed seeds rounds when no other rule applies.
const DefaultSeed uint32 = 1

// SeedPolicy picks the seed for each round. It is owned by the node's main
// loop and is not safe for concurrent use.
type SeedPolicy struct {
	// Fixed, when non-zero, wins over every other rule.
	Fixed uint32
	// AutoRandomize enables a non-deterministic seed for solo play.
	AutoRandomize bool
	// Entropy feeds the randomized seed; nil uses math/rand.
	Entropy func() uint32

	pending uint32
}

// SetPending stores a seed received from the peer for the next round.
func (p *SeedPolicy) SetPending(seed uint32) {
	p.pending = seed
}

func (p *SeedPolicy) Pending() uint32 {
	return p.pending
}

// Resolve applies the rules in priority order: fixed seed, pending peer seed
// (consumed), randomized seed, default. elapsed is mixed into the random seed.
func (p *SeedPolicy) Resolve(elapsed time.Duration) (uint32, SeedSource) {
	switch {
	case p.Fixed != 0:
		return p.Fixed, SeedFixed
	case p.pending != 0:
		seed := p.pending
		p.pending = 0
		return seed, SeedPeer
	case p.AutoRandomize:
		entropy := p.Entropy
		if entropy == nil {
			entropy = rand.Uint32
		}
		seed := entropy() ^ uint32(elapsed.Milliseconds())
		if seed == 0 {
			seed = DefaultSeed
		}
		return seed, SeedRandom
	default:
		return DefaultSeed, SeedDefault
	}
}
