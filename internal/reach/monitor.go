// Package reach implements the single-probe ping/pong liveness check that
// runs beside the game protocol on the same link.
package reach

import (
	"encoding/binary"
	"sync"
	"sync/atomic"
	"time"

	"espnow-arena/node/internal/link"
)

const (
	PacketPing byte = 0xA1
	PacketPong byte = 0xA2

	// PacketSize is the type byte plus a 32-bit nonce.
	PacketSize = 5

	DefaultTimeout = 800 * time.Millisecond
	pollInterval   = 5 * time.Millisecond
)

// NonceSource yields probe nonces. Zero is never used as a nonce.
type NonceSource func() uint32

// Monitor holds one outstanding probe. Callers of CheckReachable queue on
// probeMu, so at most one nonce is pending. The receive path only writes the
// pong flag after matching that nonce; CheckReachable only reads it.
type Monitor struct {
	peer  *link.Peer
	nonce NonceSource
	sleep func(time.Duration)
	now   func() time.Time

	probeMu sync.Mutex

	pending  atomic.Uint32
	gotPong  atomic.Bool
	lastPong atomic.Pointer[link.Addr]
}

// Option customises a Monitor.
type Option func(*Monitor)

// WithNonceSource replaces the time-derived nonce source.
func WithNonceSource(src NonceSource) Option {
	return func(m *Monitor) { m.nonce = src }
}

// WithClock replaces time.Now and time.Sleep, for tests.
func WithClock(now func() time.Time, sleep func(time.Duration)) Option {
	return func(m *Monitor) {
		m.now = now
		m.sleep = sleep
	}
}

func NewMonitor(peer *link.Peer, opts ...Option) *Monitor {
	start := time.Now()
	m := &Monitor{
		peer:  peer,
		nonce: func() uint32 { return uint32(time.Since(start).Microseconds()) },
		sleep: time.Sleep,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CheckReachable pings the configured peer and blocks until the matching
// pong arrives or timeout elapses. It fails immediately when no peer is
// configured or the ping cannot be sent. Concurrent calls run one after
// another.
func (m *Monitor) CheckReachable(timeout time.Duration) bool {
	if !m.peer.Configured() {
		return false
	}
	m.probeMu.Lock()
	defer m.probeMu.Unlock()

	nonce := m.nonce()
	if nonce == 0 {
		nonce = 1
	}
	m.gotPong.Store(false)
	m.pending.Store(nonce)
	defer m.pending.CompareAndSwap(nonce, 0)

	if !m.peer.Send(encode(PacketPing, nonce)) {
		return false
	}

	start := m.now()
	for m.now().Sub(start) < timeout {
		if m.gotPong.Load() {
			return true
		}
		m.sleep(pollInterval)
	}
	return m.gotPong.Load()
}

// Pending reports the nonce of the outstanding probe, or zero.
func (m *Monitor) Pending() uint32 {
	return m.pending.Load()
}

// LastPongFrom reports the source of the last accepted pong.
func (m *Monitor) LastPongFrom() (link.Addr, bool) {
	addr := m.lastPong.Load()
	if addr == nil {
		return link.Addr{}, false
	}
	return *addr, true
}

// Intercept handles probe traffic from the receive path. Pings are answered
// straight back to their source. It reports true when data was a ping, which
// the caller must not pass on; pongs are reported false so the game parser
// still sees them and ignores the unknown type.
func (m *Monitor) Intercept(src link.Addr, data []byte) bool {
	if len(data) < PacketSize {
		return false
	}
	nonce := binary.LittleEndian.Uint32(data[1:5])
	switch data[0] {
	case PacketPing:
		m.peer.SendTo(src, encode(PacketPong, nonce))
		return true
	case PacketPong:
		if nonce != 0 && m.pending.CompareAndSwap(nonce, 0) {
			from := src
			m.lastPong.Store(&from)
			m.gotPong.Store(true)
		}
	}
	return false
}

func encode(kind byte, nonce uint32) []byte {
	pkt := make([]byte, PacketSize)
	pkt[0] = kind
	binary.LittleEndian.PutUint32(pkt[1:], nonce)
	return pkt
}
