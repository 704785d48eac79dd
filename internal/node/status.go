package node

import (
	"time"

	"espnow-arena/node/internal/engine"
	"espnow-arena/node/internal/mapgen"
	"espnow-arena/node/internal/snapshot"
)

// ReachStatus is the outcome of the last reachability probe.
type ReachStatus struct {
	Checked   bool      `json:"checked"`
	Reachable bool      `json:"reachable"`
	At        time.Time `json:"at,omitempty"`
}

// Status is a copy of the node's state published after every tick for
// readers outside the main loop.
type Status struct {
	NodeID      string          `json:"nodeId"`
	PlayerID    uint8           `json:"playerId"`
	Host        bool            `json:"host"`
	Tick        uint64          `json:"tick"`
	Round       uint32          `json:"round"`
	Seed        uint32          `json:"seed"`
	SeedSource  string          `json:"seedSource"`
	Fingerprint string          `json:"fingerprint"`
	Peer        string          `json:"peer"`
	Player      engine.Player   `json:"player"`
	Remote      Remote          `json:"remote"`
	Scores      [2]int          `json:"scores"`
	GameOver    bool            `json:"gameOver"`
	Bombs       []engine.Bomb   `json:"bombs"`
	Cells       []engine.Cell   `json:"cells"`
	Acks        uint64          `json:"acks"`
	Reach       ReachStatus     `json:"reach"`
	PeerState   *snapshot.State `json:"peerState,omitempty"`
	Grid        *mapgen.Grid    `json:"-"`
}

func (n *Node) publishStatus() {
	var bombs []engine.Bomb
	for _, b := range n.engine.Bombs() {
		if b.Active {
			bombs = append(bombs, b)
		}
	}
	st := Status{
		NodeID:      n.nodeID,
		PlayerID:    n.cfg.PlayerID,
		Host:        n.cfg.Host,
		Tick:        n.tick,
		Round:       n.round,
		Seed:        n.seed,
		SeedSource:  string(n.seedSource),
		Fingerprint: n.fingerprint.String(),
		Player:      n.engine.Player(),
		Remote:      n.remote,
		Scores:      n.scores.Scores(),
		GameOver:    n.gameOver,
		Bombs:       bombs,
		Cells:       n.engine.LiveCells(),
		Acks:        n.acks,
		Grid:        n.engine.Grid().Clone(),
	}
	if addr := n.peer.Addr(); !addr.IsZero() {
		st.Peer = addr.String()
	}
	if n.peerState != nil {
		ps := *n.peerState
		st.PeerState = &ps
	}
	n.statusMu.Lock()
	n.status = st
	n.statusMu.Unlock()
}

// Status returns the state as of the last completed tick. It is safe to call
// from any goroutine.
func (n *Node) Status() Status {
	n.statusMu.RLock()
	defer n.statusMu.RUnlock()
	st := n.status
	st.Reach = n.reach
	return st
}

// Render draws st as text: the grid with bombs as 'o', live blast cells as
// '*', and the players as their ids.
func Render(st Status) string {
	if st.Grid == nil {
		return ""
	}
	rows, cols := st.Grid.Rows(), st.Grid.Cols()
	buf := make([][]byte, rows)
	for y := 0; y < rows; y++ {
		buf[y] = make([]byte, cols)
		for x := 0; x < cols; x++ {
			buf[y][x] = st.Grid.At(x, y).Glyph()
		}
	}
	put := func(x, y int, c byte) {
		if y >= 0 && y < rows && x >= 0 && x < cols {
			buf[y][x] = c
		}
	}
	for _, c := range st.Cells {
		put(c.X, c.Y, '*')
	}
	for _, b := range st.Bombs {
		put(b.X, b.Y, 'o')
	}
	if st.Remote.Joined {
		put(st.Remote.X, st.Remote.Y, '0'+(1-st.PlayerID))
	}
	put(st.Player.X, st.Player.Y, '0'+st.PlayerID)

	out := make([]byte, 0, rows*(cols+1))
	for _, row := range buf {
		out = append(out, row...)
		out = append(out, '\n')
	}
	return string(out)
}
