// Package link defines the raw datagram link both nodes talk over.
package link

import (
	"errors"
	"fmt"
	"net/netip"
	"sync"
)

// ErrClosed is returned when a link is used after Close.
var ErrClosed = errors.New("link: closed")

// Addr is a six-byte peer address. The zero value means "not configured".
type Addr [6]byte

// IsZero reports whether a is the unconfigured sentinel.
func (a Addr) IsZero() bool {
	return a == Addr{}
}

func (a Addr) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", a[0], a[1], a[2], a[3], a[4], a[5])
}

// AddrFromAddrPort packs an IPv4 endpoint into an Addr (four address bytes,
// then the port big-endian).
func AddrFromAddrPort(ap netip.AddrPort) (Addr, error) {
	ip := ap.Addr().Unmap()
	if !ip.Is4() {
		return Addr{}, fmt.Errorf("link: %s is not an IPv4 endpoint", ap)
	}
	var a Addr
	v4 := ip.As4()
	copy(a[:4], v4[:])
	a[4] = byte(ap.Port() >> 8)
	a[5] = byte(ap.Port())
	return a, nil
}

// ParseAddr parses "host:port" with an IPv4 host into an Addr. An empty
// string yields the zero Addr.
func ParseAddr(s string) (Addr, error) {
	if s == "" {
		return Addr{}, nil
	}
	ap, err := netip.ParseAddrPort(s)
	if err != nil {
		return Addr{}, fmt.Errorf("link: parse %q: %w", s, err)
	}
	return AddrFromAddrPort(ap)
}

// AddrPort unpacks a into an IPv4 endpoint.
func (a Addr) AddrPort() netip.AddrPort {
	ip := netip.AddrFrom4([4]byte{a[0], a[1], a[2], a[3]})
	return netip.AddrPortFrom(ip, uint16(a[4])<<8|uint16(a[5]))
}

// ReceiveFunc is invoked by a Link for every inbound datagram. It runs on the
// link's own goroutine, concurrently with the node's main loop, and must not
// retain data after returning.
type ReceiveFunc func(src Addr, data []byte)

// Link moves raw datagrams. Delivery is best effort: datagrams may be lost,
// duplicated or reordered.
type Link interface {
	// SendRaw transmits data to the peer and reports whether the link accepted it.
	SendRaw(to Addr, data []byte) bool
	// SetReceiver installs the inbound callback. It must be called before Start.
	SetReceiver(fn ReceiveFunc)
	// Start begins delivering inbound datagrams.
	Start() error
	Close() error
}

// Peer holds the configured peer address. It is read by the main loop and
// may be written from the receive path.
type Peer struct {
	mu   sync.RWMutex
	addr Addr
	link Link
}

// NewPeer binds a peer address slot to a link.
func NewPeer(l Link, addr Addr) *Peer {
	return &Peer{link: l, addr: addr}
}

func (p *Peer) Addr() Addr {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.addr
}

func (p *Peer) SetAddr(addr Addr) {
	p.mu.Lock()
	p.addr = addr
	p.mu.Unlock()
}

// Configured reports whether a non-zero peer address is set.
func (p *Peer) Configured() bool {
	return !p.Addr().IsZero()
}

// Send transmits data to the configured peer. It refuses, returning false,
// when no peer address is set.
func (p *Peer) Send(data []byte) bool {
	addr := p.Addr()
	if addr.IsZero() || p.link == nil {
		return false
	}
	return p.link.SendRaw(addr, data)
}

// SendTo transmits data to an explicit address, bypassing the peer slot.
func (p *Peer) SendTo(addr Addr, data []byte) bool {
	if addr.IsZero() || p.link == nil {
		return false
	}
	return p.link.SendRaw(addr, data)
}
