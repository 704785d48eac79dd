package engine

import (
	"testing"
	"time"

	"espnow-arena/node/internal/mapgen"
	"espnow-arena/node/internal/telemetry"
	"espnow-arena/node/logging"
	"espnow-arena/node/logging/match"
	"espnow-arena/node/logging/sinks"
)

type manualClock struct {
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *manualClock) Now() time.Time          { return c.now }
func (c *manualClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type creditLog struct {
	local   uint8
	credits [][2]int
	seen    int
}

func (c *creditLog) TileDestroyed(x, y, _ int, owner uint8, matched bool) bool {
	c.seen++
	if !matched || owner != c.local {
		return false
	}
	c.credits = append(c.credits, [2]int{x, y})
	return true
}

// pillarGrid is an 11×11 arena with a solid border and pillars but no
// breakable walls.
func pillarGrid() *mapgen.Grid {
	g := mapgen.NewGrid(11, 11)
	for y := 0; y < 11; y++ {
		for x := 0; x < 11; x++ {
			if x == 0 || y == 0 || x == 10 || y == 10 || (x%2 == 0 && y%2 == 0) {
				g.Set(x, y, mapgen.Solid)
			}
		}
	}
	return g
}

func newTestEngine(t *testing.T, cfg Config, localID uint8, grid *mapgen.Grid, auth Authority, hooks Hooks) (*Engine, *manualClock) {
	t.Helper()
	clock := newManualClock()
	e := New(cfg, localID, grid, auth, hooks, Deps{Clock: clock})
	return e, clock
}

func cellSet(cells []Cell) map[[2]int]int {
	out := make(map[[2]int]int, len(cells))
	for _, c := range cells {
		out[[2]int{c.X, c.Y}] = c.EventID
	}
	return out
}

func TestFuseDetonationScenario(t *testing.T) {
	grid := pillarGrid()
	grid.Set(5, 4, mapgen.Breakable)
	grid.Set(5, 3, mapgen.Breakable)
	grid.Set(4, 5, mapgen.Solid)

	var exploded []int
	cfg := DefaultConfig()
	e, clock := newTestEngine(t, cfg, 0, grid, nil, Hooks{
		OnLocalBombExploded: func(x, y, id int) { exploded = append(exploded, id) },
	})
	e.player.X, e.player.Y = 5, 5
	id, ok := e.PlaceBomb()
	if !ok {
		t.Fatalf("placement refused")
	}
	e.player.X, e.player.Y = 1, 1

	clock.Advance(cfg.Fuse - time.Millisecond)
	e.Step(1)
	if !e.Bombs()[id].Active || len(exploded) != 0 {
		t.Fatalf("bomb detonated before its fuse elapsed")
	}

	clock.Advance(time.Millisecond)
	e.Step(2)
	if e.Bombs()[id].Active {
		t.Fatalf("bomb still armed after fuse")
	}
	if len(exploded) != 1 || exploded[0] != id {
		t.Fatalf("expected one local detonation hook, got %v", exploded)
	}
	if e.EventCount() != 1 {
		t.Fatalf("expected one detonation event, got %d", e.EventCount())
	}

	got := cellSet(e.LiveCells())
	want := [][2]int{{5, 5}, {6, 5}, {7, 5}, {5, 6}, {5, 7}, {5, 4}}
	if len(got) != len(want) {
		t.Fatalf("expected %d cells, got %v", len(want), got)
	}
	for _, w := range want {
		if ev, ok := got[w]; !ok || ev != 1 {
			t.Fatalf("missing cell %v (event %d) in %v", w, ev, got)
		}
	}
	if grid.At(5, 4) != mapgen.Empty {
		t.Fatalf("first breakable wall not destroyed")
	}
	if grid.At(5, 3) != mapgen.Breakable {
		t.Fatalf("blast passed through a destroyed wall")
	}

	clock.Advance(cfg.ExplosionVisible + time.Millisecond)
	if cells := e.LiveCells(); len(cells) != 0 {
		t.Fatalf("cells outlived their visual window: %v", cells)
	}
}

func TestPropagationStopsAtSolid(t *testing.T) {
	grid := pillarGrid()
	e, _ := newTestEngine(t, DefaultConfig(), 0, grid, nil, Hooks{})
	e.player.X, e.player.Y = 9, 9

	// West and north run straight into the border.
	e.ExplodeAt(1, 1, 0)
	got := cellSet(e.LiveCells())
	for _, c := range [][2]int{{1, 1}, {2, 1}, {3, 1}, {1, 2}, {1, 3}} {
		if _, ok := got[c]; !ok {
			t.Fatalf("missing cell %v in %v", c, got)
		}
	}
	if len(got) != 5 {
		t.Fatalf("blast entered solid tiles: %v", got)
	}

	e.ExplodeAt(3, 2, 0)
	got = cellSet(e.LiveCells())
	if ev := got[[2]int{3, 2}]; ev != 2 {
		t.Fatalf("second detonation should use event 2, got %d", ev)
	}
	if _, ok := got[[2]int{2, 2}]; ok {
		t.Fatalf("blast entered pillar at (2,2)")
	}
	if _, ok := got[[2]int{4, 2}]; ok {
		t.Fatalf("blast entered pillar at (4,2)")
	}
}

func TestDamageOncePerDetonation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PostHitInvul = 0
	cfg.SpawnInvul = 0
	e, _ := newTestEngine(t, cfg, 0, pillarGrid(), nil, Hooks{})
	e.player.SpawnX, e.player.SpawnY = 5, 5
	e.player.X, e.player.Y = 5, 5

	ev := e.ExplodeAt(5, 5, 1)
	if e.Player().Lives != cfg.Lives-1 {
		t.Fatalf("expected one life lost, have %d", e.Player().Lives)
	}

	e.damageAt(5, 5, 1, true, ev)
	e.damageAt(5, 5, 1, false, ev)
	e.CheckPlayerHit()
	e.CheckPlayerHit()
	if e.Player().Lives != cfg.Lives-1 {
		t.Fatalf("repeated cells of event %d hit again: lives %d", ev, e.Player().Lives)
	}

	e.ExplodeAt(5, 5, 1)
	if e.Player().Lives != cfg.Lives-2 {
		t.Fatalf("a new detonation should hit, lives %d", e.Player().Lives)
	}
}

func TestInvulnerabilityWindows(t *testing.T) {
	cfg := DefaultConfig()
	e, clock := newTestEngine(t, cfg, 0, pillarGrid(), nil, Hooks{})
	e.player.X, e.player.Y = 3, 3

	e.ExplodeAt(3, 3, 1)
	p := e.Player()
	if p.Lives != cfg.Lives-1 || p.X != p.SpawnX || p.Y != p.SpawnY {
		t.Fatalf("expected respawn after hit: %+v", p)
	}

	// A non-forced cell at spawn inside the spawn window does nothing.
	clock.Advance(cfg.PostHitInvul + time.Millisecond)
	e.ExplodeAt(3, 1, 1)
	if e.Player().Lives != cfg.Lives-1 {
		t.Fatalf("hit during spawn invulnerability")
	}
	e.CheckPlayerHit()
	if e.Player().Lives != cfg.Lives-1 {
		t.Fatalf("continuous check ignored spawn invulnerability")
	}

	// The forced centre cell bypasses both windows.
	e.ExplodeAt(1, 1, 0)
	if e.Player().Lives != cfg.Lives-2 {
		t.Fatalf("forced centre damage should bypass invulnerability")
	}
}

func TestContinuousHitAfterWindowsClose(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ExplosionVisible = 5 * time.Second
	e, clock := newTestEngine(t, cfg, 0, pillarGrid(), nil, Hooks{})

	// Player 0 spawns at (1,1); blast from (3,1) reaches it unforced.
	clock.Advance(time.Second)
	e.player.SpawnInvulUntil = clock.Now().Add(time.Second)
	e.ExplodeAt(3, 1, 1)
	if e.Player().Lives != cfg.Lives {
		t.Fatalf("hit inside spawn window")
	}

	clock.Advance(time.Second)
	e.CheckPlayerHit()
	if e.Player().Lives != cfg.Lives-1 {
		t.Fatalf("live cell should hit once the windows close, lives %d", e.Player().Lives)
	}
}

func TestLivesExhausted(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Lives = 1
	var lost, over int
	e, _ := newTestEngine(t, cfg, 1, pillarGrid(), nil, Hooks{
		OnLifeLost:       func(killer uint8, _, left int) { lost++ },
		OnLivesExhausted: func() { over++ },
	})
	e.player.X, e.player.Y = 5, 5
	e.ExplodeAt(5, 5, 0)

	p := e.Player()
	if p.Alive() || lost != 1 || over != 1 {
		t.Fatalf("expected game over, got %+v lost=%d over=%d", p, lost, over)
	}
	if p.X != 9 || p.Y != 9 {
		t.Fatalf("player 1 should be moved to its spawn, at (%d,%d)", p.X, p.Y)
	}
	if e.Move(-1, 0) {
		t.Fatalf("dead player moved")
	}
}

func TestBombPoolReuse(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxBombs = 2
	metrics := logging.Metrics{}
	clock := newManualClock()
	e := New(cfg, 0, pillarGrid(), nil, Hooks{}, Deps{Clock: clock, Metrics: telemetry.WrapMetrics(&metrics)})

	if _, ok := e.PlaceBomb(); !ok {
		t.Fatalf("first placement refused")
	}
	if _, ok := e.PlaceBomb(); ok {
		t.Fatalf("second bomb on the same tile accepted")
	}
	e.player.X = 2
	if _, ok := e.PlaceBomb(); !ok {
		t.Fatalf("second placement refused")
	}
	e.player.X = 3
	if _, ok := e.PlaceBomb(); ok {
		t.Fatalf("placement accepted with a full pool")
	}
	if got := metrics.Snapshot()[telemetry.MetricBombsRefused]; got != 1 {
		t.Fatalf("refused counter = %d", got)
	}

	e.player.X, e.player.Y = 9, 9
	clock.Advance(cfg.Fuse)
	e.Step(1)
	for i, b := range e.Bombs() {
		if b.Active {
			t.Fatalf("slot %d still armed", i)
		}
	}
	e.player.X, e.player.Y = 3, 1
	if id, ok := e.PlaceBomb(); !ok || id != 0 {
		t.Fatalf("freed slot not reused: id=%d ok=%v", id, ok)
	}
}

func TestExplosionPoolExhaustionDropsCells(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxExplosionCells = 3
	metrics := logging.Metrics{}
	sink := sinks.NewMemorySink()
	clock := newManualClock()
	e := New(cfg, 0, pillarGrid(), nil, Hooks{}, Deps{Clock: clock, Metrics: telemetry.WrapMetrics(&metrics), Publisher: sink})
	e.player.X, e.player.Y = 1, 1

	e.ExplodeAt(5, 5, 0)
	if n := len(e.LiveCells()); n != 3 {
		t.Fatalf("expected the pool to cap cells at 3, got %d", n)
	}
	if got := metrics.Snapshot()[telemetry.MetricCellsDropped]; got != 6 {
		t.Fatalf("dropped counter = %d", got)
	}
	if n := len(sink.OfType(match.EventCellDropped)); n != 6 {
		t.Fatalf("expected 6 cell_dropped events, got %d", n)
	}

	clock.Advance(cfg.ExplosionVisible + time.Millisecond)
	e.ExplodeAt(5, 5, 0)
	if n := len(e.LiveCells()); n != 3 {
		t.Fatalf("expired cells not reused, live %d", n)
	}
}

func TestAuthorityExclusivity(t *testing.T) {
	gridA, gridB := pillarGrid(), pillarGrid()
	authA, authB := &creditLog{local: 0}, &creditLog{local: 1}
	a, clockA := newTestEngine(t, DefaultConfig(), 0, gridA, authA, Hooks{})
	b, clockB := newTestEngine(t, DefaultConfig(), 1, gridB, authB, Hooks{})

	a.player.X, a.player.Y = 5, 5
	id, ok := a.PlaceBomb()
	if !ok {
		t.Fatalf("placement refused")
	}
	if _, ok := b.PlaceRemoteBomb(0, uint16(id), 5, 5, DefaultConfig().Fuse); !ok {
		t.Fatalf("mirror refused")
	}
	a.player.X, a.player.Y = 1, 1

	// A breakable wall under the bomb is credited through the bomb's record.
	gridA.Set(5, 5, mapgen.Breakable)
	gridB.Set(5, 5, mapgen.Breakable)

	clockA.Advance(DefaultConfig().Fuse)
	clockB.Advance(DefaultConfig().Fuse)
	a.Step(1)
	b.Step(1)

	if len(authA.credits) != 1 || authA.credits[0] != [2]int{5, 5} {
		t.Fatalf("owner node should credit once, got %v", authA.credits)
	}
	if len(authB.credits) != 0 {
		t.Fatalf("mirroring node credited %v", authB.credits)
	}
	if authA.seen != 1 || authB.seen != 1 {
		t.Fatalf("each node should evaluate the tile once: %d %d", authA.seen, authB.seen)
	}
}

func TestRemoteExplode(t *testing.T) {
	e, _ := newTestEngine(t, DefaultConfig(), 1, pillarGrid(), nil, Hooks{})

	slot, ok := e.PlaceRemoteBomb(0, 7, 5, 5, 0)
	if !ok {
		t.Fatalf("mirror refused")
	}
	if b := e.Bombs()[slot]; b.Fuse != DefaultConfig().Fuse || b.Owner != 0 || !b.Remote {
		t.Fatalf("unexpected mirror %+v", b)
	}
	if !e.RemoteExplode(0, 7, 5, 5) {
		t.Fatalf("armed mirror should detonate")
	}
	if e.RemoteExplode(0, 7, 5, 5) {
		t.Fatalf("detonated mirror should be ignored")
	}
	if e.EventCount() != 1 {
		t.Fatalf("expected one detonation, got %d", e.EventCount())
	}

	if !e.RemoteExplode(0, 9, 3, 3) || e.EventCount() != 2 {
		t.Fatalf("unmirrored remote detonation should still apply")
	}
	if e.RemoteExplode(0, 10, 40, 40) {
		t.Fatalf("out-of-bounds detonation applied")
	}
}

func TestMoveRules(t *testing.T) {
	grid := pillarGrid()
	grid.Set(1, 2, mapgen.Breakable)
	e, _ := newTestEngine(t, DefaultConfig(), 0, grid, nil, Hooks{})

	if e.Move(-1, 0) {
		t.Fatalf("moved into the border")
	}
	if e.Move(0, 1) {
		t.Fatalf("moved into a breakable wall")
	}
	if !e.Move(1, 0) {
		t.Fatalf("move onto empty tile refused")
	}
	if _, ok := e.PlaceBomb(); !ok {
		t.Fatalf("placement refused")
	}
	if !e.Move(1, 0) {
		t.Fatalf("move off the bomb refused")
	}
	if e.Move(-1, 0) {
		t.Fatalf("moved onto an armed bomb")
	}
}

func TestResetClearsRound(t *testing.T) {
	e, _ := newTestEngine(t, DefaultConfig(), 0, pillarGrid(), nil, Hooks{})
	e.player.X, e.player.Y = 5, 5
	e.PlaceBomb()
	e.ExplodeAt(5, 5, 1)

	e.Reset(mapgen.Generate(11, 11, 3))
	if e.EventCount() != 0 || len(e.LiveCells()) != 0 {
		t.Fatalf("round state survived reset")
	}
	for _, b := range e.Bombs() {
		if b.Active || b.Owner != UnknownOwner {
			t.Fatalf("bomb slot survived reset: %+v", b)
		}
	}
	p := e.Player()
	if p.Lives != DefaultConfig().Lives || p.X != 1 || p.Y != 1 {
		t.Fatalf("player not reset: %+v", p)
	}
}
