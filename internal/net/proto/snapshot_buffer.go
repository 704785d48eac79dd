package proto

import "errors"

// ErrSnapshotFull is returned when a write would overflow a SnapshotBuffer.
var ErrSnapshotFull = errors.New("proto: snapshot payload exceeds packet cap")

// SnapshotBuffer is a fixed-capacity byte buffer sized so that header plus
// contents always fit in a single packet.
type SnapshotBuffer struct {
	data [MaxSnapshotPayload]byte
	n    int
}

// Write appends p, failing without a partial write if it does not fit.
func (b *SnapshotBuffer) Write(p []byte) (int, error) {
	if len(p) > len(b.data)-b.n {
		return 0, ErrSnapshotFull
	}
	copy(b.data[b.n:], p)
	b.n += len(p)
	return len(p), nil
}

func (b *SnapshotBuffer) Bytes() []byte {
	return b.data[:b.n]
}

func (b *SnapshotBuffer) Len() int {
	return b.n
}

func (b *SnapshotBuffer) Cap() int {
	return len(b.data)
}

func (b *SnapshotBuffer) Reset() {
	b.n = 0
}
