package proto

import (
	"encoding/binary"
	"sync/atomic"
)

// MsgType identifies the layout that follows the common header.
type MsgType uint8

const (
	TypeJoin          MsgType = 1
	TypeJoinAck       MsgType = 2
	TypeHeartbeat     MsgType = 3
	TypeInput         MsgType = 4
	TypePosition      MsgType = 5
	TypeBombPlace     MsgType = 6
	TypeBombExplode   MsgType = 7
	TypeMapSync       MsgType = 8
	TypeStateSnapshot MsgType = 9
	TypeScoreUpdate   MsgType = 10
	TypePlayerDeath   MsgType = 11
	TypeAck           MsgType = 200
)

func (t MsgType) String() string {
	switch t {
	case TypeJoin:
		return "join"
	case TypeJoinAck:
		return "join_ack"
	case TypeHeartbeat:
		return "heartbeat"
	case TypeInput:
		return "input"
	case TypePosition:
		return "position"
	case TypeBombPlace:
		return "bomb_place"
	case TypeBombExplode:
		return "bomb_explode"
	case TypeMapSync:
		return "map_sync"
	case TypeStateSnapshot:
		return "state_snapshot"
	case TypeScoreUpdate:
		return "score_update"
	case TypePlayerDeath:
		return "player_death"
	case TypeAck:
		return "ack"
	default:
		return "unknown"
	}
}

// Packed sizes in bytes, header included.
const (
	HeaderSize      = 4
	InputSize       = HeaderSize + 6
	PositionSize    = HeaderSize + 5
	BombPlaceSize   = HeaderSize + 10
	BombExplodeSize = HeaderSize + 8
	MapSyncSize     = HeaderSize + 4
	ScoreUpdateSize = HeaderSize + 3
	PlayerDeathSize = HeaderSize + 10
	AckSize         = HeaderSize + 3

	// MaxPacketSize caps a snapshot packet so the link never fragments it.
	MaxPacketSize      = 1450
	MaxSnapshotPayload = MaxPacketSize - HeaderSize
)

// Both nodes are little-endian microcontrollers; the wire keeps that order
// regardless of the host running this code.
var order = binary.LittleEndian

// Header prefixes every message.
type Header struct {
	Type   MsgType
	Seq    uint16
	FromID uint8
}

func (h Header) put(b []byte) {
	b[0] = byte(h.Type)
	order.PutUint16(b[1:3], h.Seq)
	b[3] = h.FromID
}

// ReadHeader decodes the first HeaderSize bytes of b.
func ReadHeader(b []byte) Header {
	return Header{Type: MsgType(b[0]), Seq: order.Uint16(b[1:3]), FromID: b[3]}
}

type Input struct {
	Header
	ClientTick uint32
	InputFlags uint8
	Reserved   uint8
}

// Position is sent unreliably; receivers keep the latest one they see.
type Position struct {
	Header
	PX  uint8
	PY  uint8
	Dir uint8
	VX  int8
	VY  int8
}

type BombPlace struct {
	Header
	BombID   uint16
	X        uint8
	Y        uint8
	PlacedMs uint32
	FuseMs   uint16
}

type BombExplode struct {
	Header
	BombID    uint16
	CX        uint8
	CY        uint8
	ExplodeMs uint32
}

// MapSync distributes the seed for the next round.
type MapSync struct {
	Header
	Seed uint32
}

// ScoreUpdate carries a delta for one player, sent only by the authoritative node.
type ScoreUpdate struct {
	Header
	Owner uint8
	Delta int16
}

// PlayerDeath carries the absolute scores of both players at the moment of death.
type PlayerDeath struct {
	Header
	VictimID uint8
	KillerID uint8
	Score0   int32
	Score1   int32
}

type Ack struct {
	Header
	AckSeq   uint16
	Reserved uint8
}

// The Decode functions reinterpret b as the named layout. They do not check
// the length: callers must confirm len(b) is at least the layout's size.

func DecodeInput(b []byte) Input {
	return Input{
		Header:     ReadHeader(b),
		ClientTick: order.Uint32(b[4:8]),
		InputFlags: b[8],
		Reserved:   b[9],
	}
}

func DecodePosition(b []byte) Position {
	return Position{
		Header: ReadHeader(b),
		PX:     b[4],
		PY:     b[5],
		Dir:    b[6],
		VX:     int8(b[7]),
		VY:     int8(b[8]),
	}
}

func DecodeBombPlace(b []byte) BombPlace {
	return BombPlace{
		Header:   ReadHeader(b),
		BombID:   order.Uint16(b[4:6]),
		X:        b[6],
		Y:        b[7],
		PlacedMs: order.Uint32(b[8:12]),
		FuseMs:   order.Uint16(b[12:14]),
	}
}

func DecodeBombExplode(b []byte) BombExplode {
	return BombExplode{
		Header:    ReadHeader(b),
		BombID:    order.Uint16(b[4:6]),
		CX:        b[6],
		CY:        b[7],
		ExplodeMs: order.Uint32(b[8:12]),
	}
}

func DecodeMapSync(b []byte) MapSync {
	return MapSync{Header: ReadHeader(b), Seed: order.Uint32(b[4:8])}
}

func DecodeScoreUpdate(b []byte) ScoreUpdate {
	return ScoreUpdate{
		Header: ReadHeader(b),
		Owner:  b[4],
		Delta:  int16(order.Uint16(b[5:7])),
	}
}

func DecodePlayerDeath(b []byte) PlayerDeath {
	return PlayerDeath{
		Header:   ReadHeader(b),
		VictimID: b[4],
		KillerID: b[5],
		Score0:   int32(order.Uint32(b[6:10])),
		Score1:   int32(order.Uint32(b[10:14])),
	}
}

func DecodeAck(b []byte) Ack {
	return Ack{
		Header:   ReadHeader(b),
		AckSeq:   order.Uint16(b[4:6]),
		Reserved: b[6],
	}
}

// Encoder builds outbound packets for one device. It owns the device's
// sequence counter, which starts at 1 and wraps at 16 bits.
type Encoder struct {
	fromID uint8
	seq    atomic.Uint32
}

// NewEncoder returns an encoder stamping fromID on every packet.
func NewEncoder(fromID uint8) *Encoder {
	return &Encoder{fromID: fromID}
}

// FromID reports the id stamped on outbound packets.
func (e *Encoder) FromID() uint8 {
	return e.fromID
}

// NextSeq consumes and returns the next sequence number.
func (e *Encoder) NextSeq() uint16 {
	return uint16(e.seq.Add(1))
}

func (e *Encoder) packet(t MsgType, size int) []byte {
	b := make([]byte, size)
	Header{Type: t, Seq: e.NextSeq(), FromID: e.fromID}.put(b)
	return b
}

func (e *Encoder) Join() []byte {
	return e.packet(TypeJoin, HeaderSize)
}

func (e *Encoder) JoinAck() []byte {
	return e.packet(TypeJoinAck, HeaderSize)
}

func (e *Encoder) Heartbeat() []byte {
	return e.packet(TypeHeartbeat, HeaderSize)
}

func (e *Encoder) Input(clientTick uint32, inputFlags uint8) []byte {
	b := e.packet(TypeInput, InputSize)
	order.PutUint32(b[4:8], clientTick)
	b[8] = inputFlags
	return b
}

func (e *Encoder) Position(px, py, dir uint8, vx, vy int8) []byte {
	b := e.packet(TypePosition, PositionSize)
	b[4] = px
	b[5] = py
	b[6] = dir
	b[7] = byte(vx)
	b[8] = byte(vy)
	return b
}

func (e *Encoder) BombPlace(bombID uint16, x, y uint8, placedMs uint32, fuseMs uint16) []byte {
	b := e.packet(TypeBombPlace, BombPlaceSize)
	order.PutUint16(b[4:6], bombID)
	b[6] = x
	b[7] = y
	order.PutUint32(b[8:12], placedMs)
	order.PutUint16(b[12:14], fuseMs)
	return b
}

func (e *Encoder) BombExplode(bombID uint16, cx, cy uint8, explodeMs uint32) []byte {
	b := e.packet(TypeBombExplode, BombExplodeSize)
	order.PutUint16(b[4:6], bombID)
	b[6] = cx
	b[7] = cy
	order.PutUint32(b[8:12], explodeMs)
	return b
}

func (e *Encoder) MapSync(seed uint32) []byte {
	b := e.packet(TypeMapSync, MapSyncSize)
	order.PutUint32(b[4:8], seed)
	return b
}

func (e *Encoder) ScoreUpdate(owner uint8, delta int16) []byte {
	b := e.packet(TypeScoreUpdate, ScoreUpdateSize)
	b[4] = owner
	order.PutUint16(b[5:7], uint16(delta))
	return b
}

func (e *Encoder) PlayerDeath(victimID, killerID uint8, score0, score1 int32) []byte {
	b := e.packet(TypePlayerDeath, PlayerDeathSize)
	b[4] = victimID
	b[5] = killerID
	order.PutUint32(b[6:10], uint32(score0))
	order.PutUint32(b[10:14], uint32(score1))
	return b
}

func (e *Encoder) Ack(ackSeq uint16) []byte {
	b := e.packet(TypeAck, AckSize)
	order.PutUint16(b[4:6], ackSeq)
	return b
}

// StateSnapshot wraps payload in a snapshot packet. It reports false, without
// consuming a sequence number, when the packet would exceed MaxPacketSize.
func (e *Encoder) StateSnapshot(payload []byte) ([]byte, bool) {
	if len(payload) > MaxSnapshotPayload {
		return nil, false
	}
	b := e.packet(TypeStateSnapshot, HeaderSize+len(payload))
	copy(b[HeaderSize:], payload)
	return b, true
}
