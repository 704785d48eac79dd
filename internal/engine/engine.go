// Package engine runs the bomb and explosion simulation for one node. It is
// single-threaded: every method must be called from the node's main loop.
package engine

import (
	"context"
	"strconv"
	"time"

	"espnow-arena/node/internal/mapgen"
	"espnow-arena/node/internal/telemetry"
	"espnow-arena/node/logging"
	"espnow-arena/node/logging/match"
)

// UnknownOwner marks a bomb slot that has never been attributed.
const UnknownOwner uint8 = 0xFF

// CreditPoints is awarded for each breakable tile a bomb destroys.
const CreditPoints = 10

// Deps carries the infrastructure the engine reports through.
type Deps struct {
	Logger    telemetry.Logger
	Metrics   telemetry.Metrics
	Clock     logging.Clock
	Publisher logging.Publisher
}

// Authority decides whether this node credits a destroyed tile. owner and
// matched describe the bomb record found on that tile, if any.
type Authority interface {
	TileDestroyed(x, y, eventID int, owner uint8, matched bool) bool
}

// Hooks are optional callbacks into the surrounding application.
type Hooks struct {
	// OnLocalBombExploded runs when a locally placed bomb's fuse expires,
	// before the blast is applied.
	OnLocalBombExploded func(x, y, bombID int)
	// OnLifeLost runs after the local player loses a life.
	OnLifeLost func(killer uint8, eventID, livesLeft int)
	// OnLivesExhausted runs when the last life is lost.
	OnLivesExhausted func()
}

// Bomb is one slot of the bomb pool. Inactive slots keep their position and
// owner so a later blast on the same tile can still find its record.
type Bomb struct {
	Active   bool
	X, Y     int
	PlacedAt time.Time
	Fuse     time.Duration
	Owner    uint8
	Remote   bool
	RemoteID uint16
}

// Cell is a transient explosion tile. A zero EndAt marks a never-used slot.
type Cell struct {
	X, Y    int
	EndAt   time.Time
	Owner   uint8
	EventID int
}

// Engine owns the tile grid, the bomb pool and the explosion pool.
type Engine struct {
	cfg       Config
	localID   uint8
	grid      *mapgen.Grid
	bombs     []Bomb
	cells     []Cell
	eventSeq  int
	tick      uint64
	player    Player
	authority Authority
	hooks     Hooks

	logger    telemetry.Logger
	metrics   telemetry.Metrics
	clock     logging.Clock
	publisher logging.Publisher
}

// New builds an engine for localID on grid. A nil authority never credits.
func New(cfg Config, localID uint8, grid *mapgen.Grid, authority Authority, hooks Hooks, deps Deps) *Engine {
	cfg = cfg.normalized()
	if grid == nil {
		grid = mapgen.Generate(mapgen.DefaultRows, mapgen.DefaultCols, mapgen.DefaultSeed)
	}
	if deps.Logger == nil {
		deps.Logger = telemetry.Discard()
	}
	if deps.Metrics == nil {
		deps.Metrics = telemetry.NopMetrics()
	}
	if deps.Clock == nil {
		deps.Clock = logging.SystemClock{}
	}
	if deps.Publisher == nil {
		deps.Publisher = logging.NopPublisher()
	}
	e := &Engine{
		cfg:       cfg,
		localID:   localID,
		bombs:     make([]Bomb, cfg.MaxBombs),
		cells:     make([]Cell, cfg.MaxExplosionCells),
		authority: authority,
		hooks:     hooks,
		logger:    deps.Logger,
		metrics:   deps.Metrics,
		clock:     deps.Clock,
		publisher: deps.Publisher,
	}
	e.Reset(grid)
	return e
}

// Reset starts a new round on grid: both pools are cleared, the event
// counter restarts and the local player respawns with full lives.
func (e *Engine) Reset(grid *mapgen.Grid) {
	if grid != nil {
		e.grid = grid
	}
	for i := range e.bombs {
		e.bombs[i] = Bomb{Owner: UnknownOwner}
	}
	for i := range e.cells {
		e.cells[i] = Cell{}
	}
	e.eventSeq = 0
	sx, sy := SpawnPoint(e.localID, e.grid.Rows(), e.grid.Cols())
	e.player = Player{
		ID:     e.localID,
		X:      sx,
		Y:      sy,
		SpawnX: sx,
		SpawnY: sy,
		Lives:  e.cfg.Lives,
	}
}

// SetPublisher swaps the event publisher, e.g. for a new round trace.
func (e *Engine) SetPublisher(p logging.Publisher) {
	if p == nil {
		p = logging.NopPublisher()
	}
	e.publisher = p
}

func (e *Engine) Config() Config     { return e.cfg }
func (e *Engine) LocalID() uint8     { return e.localID }
func (e *Engine) Grid() *mapgen.Grid { return e.grid }
func (e *Engine) Player() Player     { return e.player }
func (e *Engine) EventCount() int    { return e.eventSeq }

// Bombs returns a copy of the bomb pool.
func (e *Engine) Bombs() []Bomb {
	return append([]Bomb(nil), e.bombs...)
}

// LiveCells returns the explosion cells still visible now.
func (e *Engine) LiveCells() []Cell {
	now := e.clock.Now()
	var out []Cell
	for _, c := range e.cells {
		if cellLive(c, now) {
			out = append(out, c)
		}
	}
	return out
}

// ExplosionAt reports whether a live explosion cell covers (x, y).
func (e *Engine) ExplosionAt(x, y int) bool {
	_, ok := e.liveCellAt(x, y, e.clock.Now())
	return ok
}

// BombAt reports whether an armed bomb sits on (x, y).
func (e *Engine) BombAt(x, y int) bool {
	for _, b := range e.bombs {
		if b.Active && b.X == x && b.Y == y {
			return true
		}
	}
	return false
}

// Step advances the engine one main-loop tick: expired fuses detonate, then
// the local player is checked against live explosion cells.
func (e *Engine) Step(tick uint64) {
	e.tick = tick
	e.UpdateBombs()
	e.CheckPlayerHit()
}

// UpdateBombs detonates every armed bomb whose fuse has elapsed. The slot is
// released before the blast so the tile no longer counts as occupied.
func (e *Engine) UpdateBombs() {
	now := e.clock.Now()
	for i := range e.bombs {
		b := &e.bombs[i]
		if !b.Active || now.Sub(b.PlacedAt) < b.Fuse {
			continue
		}
		b.Active = false
		if !b.Remote && e.hooks.OnLocalBombExploded != nil {
			e.hooks.OnLocalBombExploded(b.X, b.Y, i)
		}
		e.explode(b.X, b.Y, b.Owner, b.Remote)
	}
}

// PlaceBomb arms a bomb under the local player. It returns the slot index,
// or false when the tile already holds a bomb or the pool is full.
func (e *Engine) PlaceBomb() (int, bool) {
	return e.arm(e.player.X, e.player.Y, e.cfg.Fuse, e.localID, false, 0)
}

// PlaceRemoteBomb mirrors a bomb the peer armed, timed on the local clock.
func (e *Engine) PlaceRemoteBomb(owner uint8, remoteID uint16, x, y int, fuse time.Duration) (int, bool) {
	if !e.grid.InBounds(x, y) {
		return 0, false
	}
	if fuse <= 0 {
		fuse = e.cfg.Fuse
	}
	return e.arm(x, y, fuse, owner, true, remoteID)
}

func (e *Engine) arm(x, y int, fuse time.Duration, owner uint8, remote bool, remoteID uint16) (int, bool) {
	if e.BombAt(x, y) {
		return 0, false
	}
	for i := range e.bombs {
		if e.bombs[i].Active {
			continue
		}
		e.bombs[i] = Bomb{
			Active:   true,
			X:        x,
			Y:        y,
			PlacedAt: e.clock.Now(),
			Fuse:     fuse,
			Owner:    owner,
			Remote:   remote,
			RemoteID: remoteID,
		}
		match.BombPlaced(context.Background(), e.publisher, e.tick, playerRef(owner), match.BombPlacedPayload{
			BombID: uint16(i),
			X:      x,
			Y:      y,
			FuseMs: fuse.Milliseconds(),
			Remote: remote,
		}, nil)
		return i, true
	}
	e.metrics.Add(telemetry.MetricBombsRefused, 1)
	return 0, false
}

// RemoteExplode applies a detonation the peer reported. A mirrored bomb
// still armed detonates now; one that already went off locally is ignored.
// With no mirror at all, the blast is applied at (x, y).
func (e *Engine) RemoteExplode(owner uint8, remoteID uint16, x, y int) bool {
	for i := range e.bombs {
		b := &e.bombs[i]
		if !b.Remote || b.Owner != owner || b.RemoteID != remoteID || b.X != x || b.Y != y {
			continue
		}
		if !b.Active {
			return false
		}
		b.Active = false
		e.explode(b.X, b.Y, b.Owner, true)
		return true
	}
	if !e.grid.InBounds(x, y) {
		return false
	}
	e.explode(x, y, owner, true)
	return true
}

// ExplodeAt runs one detonation centred on (x, y) for owner and returns its
// event id.
func (e *Engine) ExplodeAt(x, y int, owner uint8) int {
	return e.explode(x, y, owner, false)
}

var directions = [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}

func (e *Engine) explode(bx, by int, owner uint8, remote bool) int {
	e.eventSeq++
	ev := e.eventSeq
	cells := 0

	if e.addCell(bx, by, owner, true, ev) {
		cells++
	}
	if e.grid.At(bx, by) == mapgen.Breakable {
		e.destroyTile(bx, by, ev)
	}

	for _, d := range directions {
		for r := 1; r <= e.cfg.Radius; r++ {
			nx, ny := bx+d[0]*r, by+d[1]*r
			if !e.grid.InBounds(nx, ny) {
				break
			}
			tile := e.grid.At(nx, ny)
			if tile == mapgen.Solid {
				break
			}
			if tile == mapgen.Breakable {
				e.destroyTile(nx, ny, ev)
				if e.addCell(nx, ny, owner, false, ev) {
					cells++
				}
				break
			}
			if e.addCell(nx, ny, owner, false, ev) {
				cells++
			}
		}
	}

	match.Detonation(context.Background(), e.publisher, e.tick, playerRef(owner), match.DetonationPayload{
		EventID: ev,
		X:       bx,
		Y:       by,
		Cells:   cells,
		Remote:  remote,
	}, nil)
	return ev
}

// destroyTile clears a breakable tile and asks the authority whether this
// node credits it, based on the bomb record found on that tile.
func (e *Engine) destroyTile(x, y, ev int) {
	e.grid.Set(x, y, mapgen.Empty)
	owner, matched := e.recordOwnerAt(x, y)
	credited := false
	if e.authority != nil {
		credited = e.authority.TileDestroyed(x, y, ev, owner, matched)
	}
	match.TileDestroyed(context.Background(), e.publisher, e.tick, tileRef(x, y), match.TileDestroyedPayload{
		X:       x,
		Y:       y,
		EventID: ev,
		Credit:  credited,
	}, nil)
}

// recordOwnerAt finds the first bomb slot, armed or not, recorded at (x, y)
// with a known owner.
func (e *Engine) recordOwnerAt(x, y int) (uint8, bool) {
	for _, b := range e.bombs {
		if b.X == x && b.Y == y && b.Owner != UnknownOwner {
			return b.Owner, true
		}
	}
	return UnknownOwner, false
}

// addCell claims a free explosion slot and applies damage at its tile. When
// the pool is exhausted the cell is dropped along with its damage.
func (e *Engine) addCell(x, y int, owner uint8, force bool, ev int) bool {
	now := e.clock.Now()
	for i := range e.cells {
		if cellLive(e.cells[i], now) {
			continue
		}
		e.cells[i] = Cell{X: x, Y: y, EndAt: now.Add(e.cfg.ExplosionVisible), Owner: owner, EventID: ev}
		e.damageAt(x, y, owner, force, ev)
		return true
	}
	e.metrics.Add(telemetry.MetricCellsDropped, 1)
	match.CellDropped(context.Background(), e.publisher, e.tick, tileRef(x, y), match.CellDroppedPayload{X: x, Y: y, EventID: ev}, nil)
	return false
}

func (e *Engine) liveCellAt(x, y int, now time.Time) (Cell, bool) {
	for _, c := range e.cells {
		if c.X == x && c.Y == y && cellLive(c, now) {
			return c, true
		}
	}
	return Cell{}, false
}

// cellLive reports whether c is in use at now. A cell stays live through
// its EndAt instant.
func cellLive(c Cell, now time.Time) bool {
	return !c.EndAt.IsZero() && !now.After(c.EndAt)
}

func playerRef(id uint8) logging.EntityRef {
	if id == UnknownOwner {
		return logging.EntityRef{ID: "unknown", Kind: logging.EntityKindUnknown}
	}
	return logging.EntityRef{ID: strconv.Itoa(int(id)), Kind: logging.EntityKindPlayer}
}

func tileRef(x, y int) logging.EntityRef {
	return logging.EntityRef{ID: strconv.Itoa(x) + "," + strconv.Itoa(y), Kind: logging.EntityKindTile}
}
