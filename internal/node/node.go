// Package node assembles one side of the two-player arena: link, probe
// monitor, dispatcher, simulation engine and score authority, driven by a
// fixed-tick main loop.
package node

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"espnow-arena/node/internal/authority"
	"espnow-arena/node/internal/engine"
	"espnow-arena/node/internal/link"
	"espnow-arena/node/internal/mapgen"
	"espnow-arena/node/internal/net/dispatch"
	"espnow-arena/node/internal/net/proto"
	"espnow-arena/node/internal/reach"
	"espnow-arena/node/internal/snapshot"
	"espnow-arena/node/internal/telemetry"
	"espnow-arena/node/logging"
	"espnow-arena/node/logging/lifecycle"
	"espnow-arena/node/logging/network"
)

// Deps carries the node's infrastructure.
type Deps struct {
	Logger    telemetry.Logger
	Metrics   telemetry.Metrics
	Clock     logging.Clock
	Publisher logging.Publisher
	// Entropy feeds randomized seeds; nil uses math/rand.
	Entropy func() uint32
}

// datagram is an inbound packet copied off the receive path.
type datagram struct {
	src  link.Addr
	data []byte
}

// ActionKind is a local player request staged for the main loop.
type ActionKind uint8

const (
	ActionMove ActionKind = iota + 1
	ActionBomb
	ActionRestart
)

type Action struct {
	Kind   ActionKind
	DX, DY int
}

// Remote is what this node has observed about the peer's player.
type Remote struct {
	Joined   bool
	X, Y     int
	Dir      uint8
	Deaths   int
	LastSeen time.Time
	// InputTick is the last client tick carried by an Input message.
	InputTick uint32
}

// Node is one arena participant. Step and the handlers run on the main loop;
// the link receive callback only stages datagrams.
type Node struct {
	cfg    Config
	nodeID string

	link     link.Link
	peer     *link.Peer
	enc      *proto.Encoder
	monitor  *reach.Monitor
	dispatch *dispatch.Dispatcher
	engine   *engine.Engine
	resolver *authority.Resolver
	scores   *authority.Scoreboard
	seeds    mapgen.SeedPolicy
	bombSeen *proto.Dedupe

	inbound      *ring[datagram]
	inboundDrops atomic.Uint64
	actions      *ring[Action]
	limiter      *rate.Limiter

	logger  telemetry.Logger
	metrics telemetry.Metrics
	clock   logging.Clock
	basePub logging.Publisher
	pub     logging.Publisher

	started       time.Time
	tick          uint64
	round         uint32
	roundTrace    string
	seed          uint32
	seedSource    mapgen.SeedSource
	fingerprint   mapgen.Fingerprint
	remote        Remote
	lastJoin      time.Time
	lastHeartbeat time.Time
	lastSnapshot  time.Time
	posDirty      bool
	lastDir       uint8
	lastMove      [2]int
	lastMapSync   uint16
	gameOver      bool
	acks          uint64
	peerState     *snapshot.State
	snapBuf       proto.SnapshotBuffer

	statusMu sync.RWMutex
	status   Status
	reach    ReachStatus
}

// New builds a node talking to peerAddr over l. A zero peerAddr waits for
// the peer's Join and adopts its address.
func New(cfg Config, l link.Link, peerAddr link.Addr, deps Deps) *Node {
	cfg = cfg.normalized()
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

	n := &Node{
		cfg:     cfg,
		nodeID:  uuid.NewString(),
		link:    l,
		peer:    link.NewPeer(l, peerAddr),
		enc:     proto.NewEncoder(cfg.PlayerID),
		scores:  &authority.Scoreboard{},
		inbound: newRing[datagram](cfg.InboundCapacity),
		actions: newRing[Action](cfg.ActionCapacity),
		limiter: rate.NewLimiter(rate.Limit(cfg.PositionRate), cfg.PositionBurst),
		logger:  deps.Logger,
		metrics: deps.Metrics,
		clock:   deps.Clock,
		seeds: mapgen.SeedPolicy{
			Fixed:         cfg.MapSeed,
			AutoRandomize: cfg.AutoRandomize,
			Entropy:       deps.Entropy,
		},
		bombSeen: proto.NewDedupe(),
	}
	n.basePub = logging.WithFields(deps.Publisher, map[string]any{
		"node":   n.nodeID,
		"player": int(cfg.PlayerID),
	})
	n.pub = n.basePub
	n.started = n.clock.Now()

	n.monitor = reach.NewMonitor(n.peer)
	n.resolver = authority.New(cfg.PlayerID, n.enc, n.peer, n.scores.Hooks(), authority.Deps{
		Logger:    n.logger,
		Metrics:   n.metrics,
		Publisher: n.pub,
	})
	n.engine = engine.New(cfg.Engine, cfg.PlayerID, mapgen.NewGrid(cfg.Rows, cfg.Cols), n.resolver, engine.Hooks{
		OnLocalBombExploded: n.onLocalBombExploded,
		OnLifeLost:          n.onLifeLost,
		OnLivesExhausted:    n.onLivesExhausted,
	}, engine.Deps{
		Logger:    n.logger,
		Metrics:   n.metrics,
		Clock:     n.clock,
		Publisher: n.pub,
	})
	n.dispatch = dispatch.New(dispatch.Handlers{
		OnJoin:          n.handleJoin,
		OnJoinAck:       n.handleJoinAck,
		OnHeartbeat:     n.handleHeartbeat,
		OnInput:         n.handleInput,
		OnPosition:      n.handlePosition,
		OnBombPlace:     n.handleBombPlace,
		OnBombExplode:   n.handleBombExplode,
		OnMapSync:       n.handleMapSync,
		OnStateSnapshot: n.handleStateSnapshot,
		OnScoreUpdate:   n.handleScoreUpdate,
		OnPlayerDeath:   n.handlePlayerDeath,
		OnAck:           n.handleAck,
	}, n.metrics)

	l.SetReceiver(n.receive)
	return n
}

func (n *Node) ID() string                    { return n.nodeID }
func (n *Node) PlayerID() uint8               { return n.cfg.PlayerID }
func (n *Node) Engine() *engine.Engine        { return n.engine }
func (n *Node) Scores() *authority.Scoreboard { return n.scores }
func (n *Node) Peer() *link.Peer              { return n.peer }
func (n *Node) Round() uint32                 { return n.round }

// Start opens the link, begins the first round and announces this node.
func (n *Node) Start() error {
	if err := n.link.Start(); err != nil {
		return err
	}
	n.StartRound()
	n.sendJoin(n.clock.Now())
	n.publishStatus()
	return nil
}

// receive runs on the link's goroutine. Probe traffic is answered here;
// everything else is copied and staged for the main loop.
func (n *Node) receive(src link.Addr, data []byte) {
	if n.monitor.Intercept(src, data) {
		return
	}
	pkt := append([]byte(nil), data...)
	if !n.inbound.Push(datagram{src: src, data: pkt}) {
		n.metrics.Add(telemetry.MetricInboundOverflow, 1)
		network.InboundDropped(context.Background(), n.basePub, 0, n.actor(), network.InboundDroppedPayload{
			Bytes:    len(data),
			Capacity: n.inbound.Capacity(),
			Total:    n.inboundDrops.Add(1),
		}, nil)
	}
}

// Enqueue stages a local player action for the next tick. It is safe to
// call from any goroutine.
func (n *Node) Enqueue(a Action) bool {
	return n.actions.Push(a)
}

// Step runs one main-loop tick.
func (n *Node) Step() {
	n.tick++
	now := n.clock.Now()
	n.resolver.SetTick(n.tick)

	packets := n.inbound.Drain()
	n.metrics.Store(telemetry.MetricInboundDepth, uint64(len(packets)))
	for _, p := range packets {
		n.dispatch.Dispatch(p.src, p.data)
	}

	for _, a := range n.actions.Drain() {
		n.apply(a)
	}

	n.engine.Step(n.tick)

	if n.posDirty && n.limiter.AllowN(now, 1) {
		p := n.engine.Player()
		n.send(n.enc.Position(uint8(p.X), uint8(p.Y), n.lastDir, int8(n.lastMove[0]), int8(n.lastMove[1])))
		n.posDirty = false
	}
	if !n.remote.Joined && now.Sub(n.lastJoin) >= n.cfg.JoinInterval {
		n.sendJoin(now)
	}
	if now.Sub(n.lastHeartbeat) >= n.cfg.HeartbeatInterval {
		n.lastHeartbeat = now
		n.send(n.enc.Heartbeat())
	}
	if n.cfg.SnapshotInterval > 0 && now.Sub(n.lastSnapshot) >= n.cfg.SnapshotInterval {
		n.lastSnapshot = now
		n.sendSnapshot(now)
	}

	n.publishStatus()
}

// Run drives Step at the configured tick rate until ctx is done.
func (n *Node) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second / time.Duration(n.cfg.TickRate))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.Step()
		}
	}
}

// StartRound regenerates the map from the seed policy and resets the
// engine, scores and round state.
func (n *Node) StartRound() {
	now := n.clock.Now()
	seed, source := n.seeds.Resolve(now.Sub(n.started))
	grid := mapgen.Generate(n.cfg.Rows, n.cfg.Cols, seed)

	n.round++
	n.roundTrace = uuid.NewString()
	n.seed = seed
	n.seedSource = source
	n.fingerprint = grid.Fingerprint()
	n.gameOver = false
	n.posDirty = true

	n.pub = logging.WithTrace(n.basePub, n.roundTrace)
	n.engine.SetPublisher(n.pub)
	n.resolver.SetPublisher(n.pub)
	n.engine.Reset(grid)
	n.resolver.Reset()
	n.bombSeen.Reset()
	n.remote.Deaths = 0

	lifecycle.RoundStarted(context.Background(), n.pub, n.tick, n.actor(), lifecycle.RoundStartedPayload{
		Round:       n.round,
		Seed:        seed,
		SeedSource:  string(source),
		Fingerprint: n.fingerprint.String(),
		Rows:        n.cfg.Rows,
		Cols:        n.cfg.Cols,
	}, nil)
	n.logger.Printf("round %d seed=%d source=%s map=%s", n.round, seed, source, n.fingerprint)

	if n.cfg.Host && source != mapgen.SeedPeer {
		n.send(n.enc.MapSync(seed))
	}
}

func (n *Node) apply(a Action) {
	switch a.Kind {
	case ActionMove:
		if n.gameOver || !n.engine.Move(a.DX, a.DY) {
			return
		}
		n.lastMove = [2]int{a.DX, a.DY}
		n.lastDir = direction(a.DX, a.DY)
		n.posDirty = true
	case ActionBomb:
		if n.gameOver {
			return
		}
		id, ok := n.engine.PlaceBomb()
		if !ok {
			return
		}
		b := n.engine.Bombs()[id]
		n.send(n.enc.BombPlace(uint16(id), uint8(b.X), uint8(b.Y), n.elapsedMs(b.PlacedAt), uint16(b.Fuse.Milliseconds())))
	case ActionRestart:
		if n.cfg.Host || n.cfg.MapSeed != 0 || !n.peer.Configured() {
			n.StartRound()
		}
	}
}

// direction encodes a step as 0 up, 1 right, 2 down, 3 left.
func direction(dx, dy int) uint8 {
	switch {
	case dy < 0:
		return 0
	case dx > 0:
		return 1
	case dy > 0:
		return 2
	default:
		return 3
	}
}

func (n *Node) onLocalBombExploded(x, y, bombID int) {
	n.send(n.enc.BombExplode(uint16(bombID), uint8(x), uint8(y), n.elapsedMs(n.clock.Now())))
}

func (n *Node) onLifeLost(killer uint8, _ int, _ int) {
	s := n.scores.Scores()
	n.send(n.enc.PlayerDeath(n.cfg.PlayerID, killer, int32(s[0]), int32(s[1])))
	n.posDirty = true
}

func (n *Node) onLivesExhausted() {
	n.gameOver = true
	n.logger.Printf("player %d is out of lives in round %d", n.cfg.PlayerID, n.round)
}

func (n *Node) sendJoin(now time.Time) {
	n.lastJoin = now
	if n.peer.Configured() {
		n.send(n.enc.Join())
	}
}

func (n *Node) sendSnapshot(now time.Time) {
	st := n.localState()
	if err := snapshot.Encode(st, &n.snapBuf); err != nil {
		n.logger.Printf("snapshot skipped: %v", err)
		return
	}
	if pkt, ok := n.enc.StateSnapshot(n.snapBuf.Bytes()); ok {
		n.send(pkt)
	}
}

func (n *Node) localState() snapshot.State {
	p := n.engine.Player()
	s := n.scores.Scores()
	st := snapshot.State{
		PlayerID:    n.cfg.PlayerID,
		Round:       n.round,
		Tick:        n.tick,
		Scores:      [2]int32{int32(s[0]), int32(s[1])},
		Lives:       uint8(p.Lives),
		X:           uint8(p.X),
		Y:           uint8(p.Y),
		Fingerprint: n.fingerprint.String(),
	}
	now := n.clock.Now()
	for _, b := range n.engine.Bombs() {
		if !b.Active {
			continue
		}
		left := b.Fuse - now.Sub(b.PlacedAt)
		if left < 0 {
			left = 0
		}
		st.Bombs = append(st.Bombs, snapshot.Bomb{X: uint8(b.X), Y: uint8(b.Y), Owner: b.Owner, LeftMs: uint16(left.Milliseconds())})
	}
	return st
}

// send transmits to the peer. Failures are reported and never retried.
func (n *Node) send(pkt []byte) bool {
	if n.peer.Send(pkt) {
		return true
	}
	h := proto.ReadHeader(pkt)
	network.SendFailed(context.Background(), n.pub, n.tick, n.actor(), network.SendFailedPayload{
		MsgType: h.Type.String(),
		Seq:     h.Seq,
		Bytes:   len(pkt),
	}, nil)
	return false
}

func (n *Node) elapsedMs(t time.Time) uint32 {
	return uint32(t.Sub(n.started).Milliseconds())
}

func (n *Node) actor() logging.EntityRef {
	return logging.EntityRef{ID: strconv.Itoa(int(n.cfg.PlayerID)), Kind: logging.EntityKindNode}
}

// CheckReachable probes the peer, blocking for up to the configured timeout.
// It may run on any goroutine.
func (n *Node) CheckReachable() bool {
	ok := n.monitor.CheckReachable(n.cfg.ReachTimeout)
	payload := network.ProbePayload{TimeoutMillis: n.cfg.ReachTimeout.Milliseconds()}
	if ok {
		network.PeerReachable(context.Background(), n.basePub, 0, n.actor(), payload, nil)
	} else {
		if !n.peer.Configured() {
			payload.Reason = "no peer"
		}
		network.PeerUnreachable(context.Background(), n.basePub, 0, n.actor(), payload, nil)
	}

	n.statusMu.Lock()
	n.reach = ReachStatus{Checked: true, Reachable: ok, At: n.clock.Now()}
	n.statusMu.Unlock()
	return ok
}

// RunProbes checks reachability every interval until ctx is done.
func (n *Node) RunProbes(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.CheckReachable()
		}
	}
}
