// Command soak runs two nodes against each other over a lossy in-memory
// link with scripted random input and reports whether they still agree.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"espnow-arena/node/internal/link"
	"espnow-arena/node/internal/link/memlink"
	"espnow-arena/node/internal/node"
	"espnow-arena/node/internal/telemetry"
	"espnow-arena/node/logging"
	loggingSinks "espnow-arena/node/logging/sinks"
)

var (
	hostAddr     = link.Addr{10, 0, 0, 1, 0xb7, 0x98}
	followerAddr = link.Addr{10, 0, 0, 2, 0xb7, 0x98}
)

type options struct {
	Ticks     int
	TickRate  int
	MapSeed   uint32
	InputSeed int64
	Link      memlink.Options
	MoveProb  float64
	BombProb  float64
}

type nodeReport struct {
	PlayerID    uint8  `json:"playerId"`
	Round       uint32 `json:"round"`
	Seed        uint32 `json:"seed"`
	Fingerprint string `json:"fingerprint"`
	Scores      [2]int `json:"scores"`
	Lives       int    `json:"lives"`
	GameOver    bool   `json:"gameOver"`
	Detonations int    `json:"detonations"`
	Acks        uint64 `json:"acks"`
}

type report struct {
	Ticks       int               `json:"ticks"`
	Link        memlink.Stats     `json:"link"`
	Host        nodeReport        `json:"host"`
	Follower    nodeReport        `json:"follower"`
	SameMap     bool              `json:"sameMap"`
	ScoresAgree bool              `json:"scoresAgree"`
	Events      map[string]int    `json:"events"`
	Metrics     map[string]uint64 `json:"metrics"`
}

type stepClock struct {
	now time.Time
}

func (c *stepClock) Now() time.Time { return c.now }

func main() {
	opts := options{TickRate: 30}
	var seed uint
	flag.IntVar(&opts.Ticks, "ticks", 3000, "ticks to simulate")
	flag.UintVar(&seed, "map-seed", 1234, "fixed map seed for both nodes")
	flag.Int64Var(&opts.InputSeed, "input-seed", 1, "seed for scripted input and link faults")
	flag.Float64Var(&opts.Link.Loss, "loss", 0.1, "datagram loss probability")
	flag.Float64Var(&opts.Link.Duplicate, "dup", 0.02, "datagram duplication probability")
	flag.Float64Var(&opts.Link.Reorder, "reorder", 0.02, "datagram reorder probability")
	flag.Float64Var(&opts.MoveProb, "move", 0.3, "per-tick move probability")
	flag.Float64Var(&opts.BombProb, "bomb", 0.02, "per-tick bomb probability")
	flag.Parse()
	opts.MapSeed = uint32(seed)
	opts.Link.Seed = opts.InputSeed

	rep, err := run(opts, telemetry.WrapLogger(log.Default()))
	if err != nil {
		log.Fatalf("soak: %v", err)
	}
	out, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		log.Fatalf("soak: encode report: %v", err)
	}
	fmt.Println(string(out))
	if !rep.SameMap {
		os.Exit(1)
	}
}

func run(opts options, logger telemetry.Logger) (report, error) {
	if opts.TickRate <= 0 {
		opts.TickRate = 30
	}
	clock := &stepClock{now: time.Unix(1_700_000_000, 0)}
	network := memlink.NewNetwork(opts.Link)
	events := loggingSinks.NewMemorySink()
	metrics := &logging.Metrics{}

	build := func(id uint8, host bool, self, peer link.Addr) *node.Node {
		cfg := node.DefaultConfig()
		cfg.PlayerID = id
		cfg.Host = host
		cfg.MapSeed = opts.MapSeed
		cfg.TickRate = opts.TickRate
		return node.New(cfg, network.Endpoint(self), peer, node.Deps{
			Logger:    logger,
			Metrics:   telemetry.WrapMetrics(metrics),
			Clock:     clock,
			Publisher: events,
		})
	}
	host := build(0, true, hostAddr, followerAddr)
	follower := build(1, false, followerAddr, hostAddr)
	for _, n := range []*node.Node{host, follower} {
		if err := n.Start(); err != nil {
			return report{}, fmt.Errorf("start player %d: %w", n.PlayerID(), err)
		}
	}

	rng := rand.New(rand.NewSource(opts.InputSeed))
	dirs := [4][2]int{{0, -1}, {0, 1}, {-1, 0}, {1, 0}}
	tick := time.Second / time.Duration(opts.TickRate)
	for i := 0; i < opts.Ticks; i++ {
		for _, n := range []*node.Node{host, follower} {
			if rng.Float64() < opts.MoveProb {
				d := dirs[rng.Intn(len(dirs))]
				n.Enqueue(node.Action{Kind: node.ActionMove, DX: d[0], DY: d[1]})
			}
			if rng.Float64() < opts.BombProb {
				n.Enqueue(node.Action{Kind: node.ActionBomb})
			}
			n.Step()
		}
		clock.now = clock.now.Add(tick)
	}

	hs, fs := host.Status(), follower.Status()
	rep := report{
		Ticks:       opts.Ticks,
		Link:        network.Stats(),
		Host:        summarize(hs, host),
		Follower:    summarize(fs, follower),
		SameMap:     hs.Fingerprint == fs.Fingerprint,
		ScoresAgree: hs.Scores == fs.Scores,
		Events:      countEvents(events),
		Metrics:     metrics.Snapshot(),
	}
	logger.Printf("soak: %d ticks, %d/%d datagrams delivered, same map=%t, scores host=%v follower=%v",
		rep.Ticks, rep.Link.Delivered, rep.Link.Sent, rep.SameMap, hs.Scores, fs.Scores)
	return rep, nil
}

func summarize(st node.Status, n *node.Node) nodeReport {
	return nodeReport{
		PlayerID:    st.PlayerID,
		Round:       st.Round,
		Seed:        st.Seed,
		Fingerprint: st.Fingerprint,
		Scores:      st.Scores,
		Lives:       st.Player.Lives,
		GameOver:    st.GameOver,
		Detonations: n.Engine().EventCount(),
		Acks:        st.Acks,
	}
}

func countEvents(sink *loggingSinks.MemorySink) map[string]int {
	counts := make(map[string]int)
	for _, ev := range sink.Events() {
		counts[string(ev.Type)]++
	}
	return counts
}
