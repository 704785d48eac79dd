// Package mapgen builds the round's tile grid. Both nodes generate the grid
// locally from a shared seed; it is never transmitted.
package mapgen

import (
	"strings"
)

type Tile uint8

const (
	Empty Tile = iota
	Solid
	Breakable
)

func (t Tile) String() string {
	switch t {
	case Empty:
		return "empty"
	case Solid:
		return "solid"
	case Breakable:
		return "breakable"
	default:
		return "unknown"
	}
}

// Glyph is the single-character form used by text renderers.
func (t Tile) Glyph() byte {
	switch t {
	case Solid:
		return '#'
	case Breakable:
		return '+'
	default:
		return '.'
	}
}

// Grid is a rows×cols tile map addressed as (x=column, y=row).
type Grid struct {
	rows  int
	cols  int
	tiles []Tile
}

// NewGrid returns an all-Empty grid.
func NewGrid(rows, cols int) *Grid {
	if rows < 0 {
		rows = 0
	}
	if cols < 0 {
		cols = 0
	}
	return &Grid{rows: rows, cols: cols, tiles: make([]Tile, rows*cols)}
}

func (g *Grid) Rows() int { return g.rows }
func (g *Grid) Cols() int { return g.cols }

func (g *Grid) InBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < g.cols && y < g.rows
}

// At returns the tile at (x, y). Out-of-bounds coordinates read as Solid.
func (g *Grid) At(x, y int) Tile {
	if !g.InBounds(x, y) {
		return Solid
	}
	return g.tiles[y*g.cols+x]
}

// Set writes the tile at (x, y), ignoring out-of-bounds coordinates.
func (g *Grid) Set(x, y int, t Tile) {
	if !g.InBounds(x, y) {
		return
	}
	g.tiles[y*g.cols+x] = t
}

// Count returns how many tiles hold t.
func (g *Grid) Count(t Tile) int {
	n := 0
	for _, v := range g.tiles {
		if v == t {
			n++
		}
	}
	return n
}

func (g *Grid) Clone() *Grid {
	out := &Grid{rows: g.rows, cols: g.cols, tiles: make([]Tile, len(g.tiles))}
	copy(out.tiles, g.tiles)
	return out
}

// Equal reports whether both grids have the same shape and tiles.
func (g *Grid) Equal(other *Grid) bool {
	if g == nil || other == nil {
		return g == other
	}
	if g.rows != other.rows || g.cols != other.cols {
		return false
	}
	for i := range g.tiles {
		if g.tiles[i] != other.tiles[i] {
			return false
		}
	}
	return true
}

// String renders one line per row using Tile.Glyph.
func (g *Grid) String() string {
	var b strings.Builder
	b.Grow(g.rows * (g.cols + 1))
	for y := 0; y < g.rows; y++ {
		for x := 0; x < g.cols; x++ {
			b.WriteByte(g.At(x, y).Glyph())
		}
		b.WriteByte('\n')
	}
	return b.String()
}
