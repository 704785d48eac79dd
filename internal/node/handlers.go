package node

import (
	"context"
	"time"

	"espnow-arena/node/internal/link"
	"espnow-arena/node/internal/mapgen"
	"espnow-arena/node/internal/net/proto"
	"espnow-arena/node/internal/snapshot"
	"espnow-arena/node/logging"
	"espnow-arena/node/logging/lifecycle"
	"espnow-arena/node/logging/network"
)

// markJoined records that the peer is up. The host restarts the round the
// first time it hears from a (re)joined peer so both sides share a seed.
func (n *Node) markJoined(src link.Addr, ack bool) {
	if !n.peer.Configured() {
		n.peer.SetAddr(src)
	}
	n.remote.LastSeen = n.clock.Now()
	if n.remote.Joined {
		return
	}
	n.remote.Joined = true
	lifecycle.PeerJoined(context.Background(), n.pub, n.tick, n.actor(), lifecycle.PeerJoinedPayload{
		Address: src.String(),
		Ack:     ack,
	}, nil)
	if n.cfg.Host {
		n.StartRound()
	}
}

func (n *Node) handleJoin(src link.Addr, h proto.Header) {
	if h.FromID == n.cfg.PlayerID {
		return
	}
	// A Join after we already saw the peer means it restarted.
	n.remote.Joined = false
	n.markJoined(src, false)
	n.peer.SendTo(src, n.enc.JoinAck())
}

func (n *Node) handleJoinAck(src link.Addr, h proto.Header) {
	if h.FromID == n.cfg.PlayerID {
		return
	}
	n.markJoined(src, true)
}

func (n *Node) handleHeartbeat(_ link.Addr, _ proto.Header) {
	n.remote.LastSeen = n.clock.Now()
}

func (n *Node) handleInput(_ link.Addr, msg proto.Input) {
	n.remote.InputTick = msg.ClientTick
	n.remote.LastSeen = n.clock.Now()
}

func (n *Node) handlePosition(_ link.Addr, msg proto.Position) {
	n.remote.X, n.remote.Y, n.remote.Dir = int(msg.PX), int(msg.PY), msg.Dir
	n.remote.LastSeen = n.clock.Now()
}

// Bomb datagrams are acked every time so the sender stops resending, but a
// duplicate never reaches the engine.
func (n *Node) handleBombPlace(_ link.Addr, msg proto.BombPlace) {
	defer n.send(n.enc.Ack(msg.Seq))
	if !n.bombSeen.FirstSeen(msg.Header) {
		return
	}
	n.engine.PlaceRemoteBomb(msg.FromID, msg.BombID, int(msg.X), int(msg.Y), time.Duration(msg.FuseMs)*time.Millisecond)
}

func (n *Node) handleBombExplode(_ link.Addr, msg proto.BombExplode) {
	defer n.send(n.enc.Ack(msg.Seq))
	if !n.bombSeen.FirstSeen(msg.Header) {
		return
	}
	n.engine.RemoteExplode(msg.FromID, msg.BombID, int(msg.CX), int(msg.CY))
}

func (n *Node) handleMapSync(_ link.Addr, msg proto.MapSync) {
	if n.cfg.Host || msg.FromID == n.cfg.PlayerID || msg.Seed == 0 {
		return
	}
	if n.seedSource == mapgen.SeedPeer && n.seed == msg.Seed && n.lastMapSync == msg.Seq {
		return
	}
	n.lastMapSync = msg.Seq
	n.seeds.SetPending(msg.Seed)
	n.StartRound()
}

func (n *Node) handleStateSnapshot(_ link.Addr, _ proto.Header, payload []byte) {
	st, err := snapshot.Decode(payload)
	if err != nil {
		n.logger.Printf("peer snapshot: %v", err)
		return
	}
	n.peerState = &st
}

func (n *Node) handleScoreUpdate(_ link.Addr, msg proto.ScoreUpdate) {
	n.resolver.ApplyScoreUpdate(msg)
}

func (n *Node) handlePlayerDeath(_ link.Addr, msg proto.PlayerDeath) {
	if n.resolver.ApplyPlayerDeath(msg) && msg.VictimID != n.cfg.PlayerID {
		n.remote.Deaths++
	}
}

func (n *Node) handleAck(_ link.Addr, msg proto.Ack) {
	n.acks++
	network.AckReceived(context.Background(), n.pub, n.tick, logging.EntityRef{ID: "peer", Kind: logging.EntityKindPeer}, network.AckPayload{AckSeq: msg.AckSeq}, nil)
}
