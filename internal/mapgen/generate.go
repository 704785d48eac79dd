package mapgen

import (
	"encoding/binary"
	"encoding/hex"
	"math/rand"

	"lukechampine.com/blake3"
)

const (
	DefaultRows = 11
	DefaultCols = 11

	// BreakablePercent is the chance, per eligible interior cell, of a
	// breakable wall.
	BreakablePercent = 50
)

// Generate builds the grid for seed. The same rows, cols and seed always
// yield the same grid.
func Generate(rows, cols int, seed uint32) *Grid {
	return GenerateFrom(rows, cols, rand.New(rand.NewSource(int64(seed))))
}

// GenerateFrom builds a grid drawing breakable walls from rng. Exactly one
// value is drawn per eligible cell, in row-major order.
func GenerateFrom(rows, cols int, rng *rand.Rand) *Grid {
	g := NewGrid(rows, cols)

	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			if y == 0 || y == rows-1 || x == 0 || x == cols-1 {
				g.Set(x, y, Solid)
			}
		}
	}

	for y := 2; y < rows-2; y += 2 {
		for x := 2; x < cols-2; x += 2 {
			g.Set(x, y, Solid)
		}
	}

	for y := 1; y < rows-1; y++ {
		for x := 1; x < cols-1; x++ {
			if g.At(x, y) != Empty || inCornerZone(rows, cols, x, y) {
				continue
			}
			if rng.Intn(100) < BreakablePercent {
				g.Set(x, y, Breakable)
			}
		}
	}

	// Corner zones are cleared unconditionally, pillars included, so every
	// spawn has room to move.
	for y := 1; y < rows-1; y++ {
		for x := 1; x < cols-1; x++ {
			if inCornerZone(rows, cols, x, y) {
				g.Set(x, y, Empty)
			}
		}
	}
	return g
}

// inCornerZone reports whether (x, y) lies in one of the four 2×2 spawn
// zones just inside the border.
func inCornerZone(rows, cols, x, y int) bool {
	nearX := x == 1 || x == 2 || x == cols-2 || x == cols-3
	nearY := y == 1 || y == 2 || y == rows-2 || y == rows-3
	return nearX && nearY
}

// InCornerZone is inCornerZone for an existing grid.
func (g *Grid) InCornerZone(x, y int) bool {
	if x <= 0 || y <= 0 || x >= g.cols-1 || y >= g.rows-1 {
		return false
	}
	return inCornerZone(g.rows, g.cols, x, y)
}

// Fingerprint hashes the grid shape and tiles. Nodes log it at round start
// so divergent generation shows up without sending the grid.
type Fingerprint [32]byte

func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:8])
}

func (g *Grid) Fingerprint() Fingerprint {
	buf := make([]byte, 8+len(g.tiles))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(g.rows))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(g.cols))
	for i, t := range g.tiles {
		buf[8+i] = byte(t)
	}
	return Fingerprint(blake3.Sum256(buf))
}
