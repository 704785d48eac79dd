// Package memlink is an in-process link that loses, duplicates and reorders
// datagrams on demand, driven by a seeded RNG so runs are repeatable.
package memlink

import (
	"math/rand"
	"sync"

	"espnow-arena/node/internal/link"
)

// Options sets per-datagram fault probabilities in [0,1].
type Options struct {
	Loss      float64
	Duplicate float64
	Reorder   float64
	Seed      int64
}

type Stats struct {
	Sent       uint64
	Lost       uint64
	Duplicated uint64
	Reordered  uint64
	Delivered  uint64
}

// Network connects any number of endpoints by address.
type Network struct {
	mu        sync.Mutex
	opts      Options
	rng       *rand.Rand
	endpoints map[link.Addr]*Endpoint
	stats     Stats
}

func NewNetwork(opts Options) *Network {
	seed := opts.Seed
	if seed == 0 {
		seed = 1
	}
	return &Network{
		opts:      opts,
		rng:       rand.New(rand.NewSource(seed)),
		endpoints: make(map[link.Addr]*Endpoint),
	}
}

// SetOptions swaps the fault profile; the RNG sequence continues.
func (n *Network) SetOptions(opts Options) {
	n.mu.Lock()
	n.opts.Loss, n.opts.Duplicate, n.opts.Reorder = opts.Loss, opts.Duplicate, opts.Reorder
	n.mu.Unlock()
}

func (n *Network) Stats() Stats {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.stats
}

// Endpoint attaches a new endpoint at addr, replacing any previous one.
func (n *Network) Endpoint(addr link.Addr) *Endpoint {
	ep := &Endpoint{net: n, addr: addr}
	n.mu.Lock()
	n.endpoints[addr] = ep
	n.mu.Unlock()
	return ep
}

type delivery struct {
	dst  *Endpoint
	data []byte
}

// Endpoint is one side of the network and implements link.Link. Delivery
// happens synchronously on the sender's goroutine.
type Endpoint struct {
	net  *Network
	addr link.Addr

	mu      sync.Mutex
	recv    link.ReceiveFunc
	started bool
	closed  bool

	held *delivery
}

func (e *Endpoint) Addr() link.Addr {
	return e.addr
}

func (e *Endpoint) SetReceiver(fn link.ReceiveFunc) {
	e.mu.Lock()
	e.recv = fn
	e.mu.Unlock()
}

func (e *Endpoint) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return link.ErrClosed
	}
	e.started = true
	return nil
}

func (e *Endpoint) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	return nil
}

// SendRaw reports false only for a closed sender or an unknown destination;
// datagrams lost in flight still count as sent.
func (e *Endpoint) SendRaw(to link.Addr, data []byte) bool {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return false
	}

	n := e.net
	n.mu.Lock()
	dst, ok := n.endpoints[to]
	if !ok {
		n.mu.Unlock()
		return false
	}
	n.stats.Sent++
	pkt := append([]byte(nil), data...)
	var out []delivery
	switch {
	case n.rng.Float64() < n.opts.Loss:
		n.stats.Lost++
	case e.held == nil && n.rng.Float64() < n.opts.Reorder:
		n.stats.Reordered++
		e.held = &delivery{dst: dst, data: pkt}
	default:
		out = append(out, delivery{dst: dst, data: pkt})
		if n.rng.Float64() < n.opts.Duplicate {
			n.stats.Duplicated++
			out = append(out, delivery{dst: dst, data: pkt})
		}
		if e.held != nil {
			out = append(out, *e.held)
			e.held = nil
		}
	}
	n.mu.Unlock()

	for _, d := range out {
		if d.dst.deliver(e.addr, d.data) {
			n.mu.Lock()
			n.stats.Delivered++
			n.mu.Unlock()
		}
	}
	return true
}

// Flush delivers a datagram held back for reordering, if any.
func (e *Endpoint) Flush() {
	e.net.mu.Lock()
	held := e.held
	e.held = nil
	e.net.mu.Unlock()
	if held != nil && held.dst.deliver(e.addr, held.data) {
		e.net.mu.Lock()
		e.net.stats.Delivered++
		e.net.mu.Unlock()
	}
}

func (e *Endpoint) deliver(src link.Addr, data []byte) bool {
	e.mu.Lock()
	recv := e.recv
	ready := e.started && !e.closed
	e.mu.Unlock()
	if !ready || recv == nil {
		return false
	}
	recv(src, data)
	return true
}

var _ link.Link = (*Endpoint)(nil)
