// Package snapshot encodes the application's StateSnapshot payload:
// msgpack, then an lz4 frame, bounded by the snapshot packet cap.
package snapshot

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/pierrec/lz4/v4"
	"github.com/vmihailenco/msgpack/v5"

	"espnow-arena/node/internal/net/proto"
)

// ErrTooLarge is returned when the compressed state does not fit one packet.
var ErrTooLarge = errors.New("snapshot: state exceeds packet cap")

// Bomb is an armed bomb as seen by the sending node.
type Bomb struct {
	X     uint8 `msgpack:"x"`
	Y     uint8 `msgpack:"y"`
	Owner uint8 `msgpack:"o"`
	// LeftMs is the remaining fuse.
	LeftMs uint16 `msgpack:"l"`
}

// State is informational only; receivers never apply it to their own
// simulation.
type State struct {
	PlayerID    uint8    `msgpack:"p"`
	Round       uint32   `msgpack:"r"`
	Tick        uint64   `msgpack:"t"`
	Scores      [2]int32 `msgpack:"s"`
	Lives       uint8    `msgpack:"lv"`
	X           uint8    `msgpack:"x"`
	Y           uint8    `msgpack:"y"`
	Fingerprint string   `msgpack:"f"`
	Bombs       []Bomb   `msgpack:"b,omitempty"`
}

// Encode writes st into buf, replacing its contents.
func Encode(st State, buf *proto.SnapshotBuffer) error {
	raw, err := msgpack.Marshal(&st)
	if err != nil {
		return fmt.Errorf("snapshot: marshal: %w", err)
	}
	buf.Reset()
	cw := &capWriter{buf: buf}
	zw := lz4.NewWriter(cw)
	_, err = zw.Write(raw)
	if err == nil {
		err = zw.Close()
	}
	if err != nil {
		buf.Reset()
		if cw.full {
			return ErrTooLarge
		}
		return fmt.Errorf("snapshot: compress: %w", err)
	}
	return nil
}

// capWriter remembers whether the buffer ever refused a write, since the
// compressor may not wrap the error it got.
type capWriter struct {
	buf  *proto.SnapshotBuffer
	full bool
}

func (w *capWriter) Write(p []byte) (int, error) {
	n, err := w.buf.Write(p)
	if errors.Is(err, proto.ErrSnapshotFull) {
		w.full = true
	}
	return n, err
}

// Decode reverses Encode.
func Decode(payload []byte) (State, error) {
	var st State
	zr := lz4.NewReader(bytes.NewReader(payload))
	if err := msgpack.NewDecoder(zr).Decode(&st); err != nil {
		return State{}, fmt.Errorf("snapshot: decode: %w", err)
	}
	return st, nil
}
