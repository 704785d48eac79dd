// Package udp carries link datagrams over a UDP socket.
package udp

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"

	"espnow-arena/node/internal/link"
	"espnow-arena/node/internal/telemetry"
)

const readBufferSize = 2048

// Link is a UDP-backed link.Link. Peers are addressed by IPv4 endpoint.
type Link struct {
	conn    *net.UDPConn
	logger  telemetry.Logger
	metrics telemetry.Metrics

	mu      sync.Mutex
	recv    link.ReceiveFunc
	started bool

	closed atomic.Bool
	wg     sync.WaitGroup
}

// Listen binds a UDP socket on addr ("host:port" or ":port").
func Listen(addr string, logger telemetry.Logger, metrics telemetry.Metrics) (*Link, error) {
	ap, err := netip.ParseAddrPort(normalizeListen(addr))
	if err != nil {
		return nil, fmt.Errorf("udp: parse listen address %q: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp4", net.UDPAddrFromAddrPort(ap))
	if err != nil {
		return nil, fmt.Errorf("udp: listen on %s: %w", addr, err)
	}
	if logger == nil {
		logger = telemetry.Discard()
	}
	if metrics == nil {
		metrics = telemetry.NopMetrics()
	}
	return &Link{conn: conn, logger: logger, metrics: metrics}, nil
}

func normalizeListen(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "0.0.0.0" + addr
	}
	return addr
}

// LocalAddr reports the bound endpoint as a link address.
func (l *Link) LocalAddr() link.Addr {
	ap := l.conn.LocalAddr().(*net.UDPAddr).AddrPort()
	addr, _ := link.AddrFromAddrPort(ap)
	return addr
}

func (l *Link) SetReceiver(fn link.ReceiveFunc) {
	l.mu.Lock()
	l.recv = fn
	l.mu.Unlock()
}

func (l *Link) Start() error {
	if l.closed.Load() {
		return link.ErrClosed
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return nil
	}
	l.started = true
	l.wg.Add(1)
	go l.readLoop()
	return nil
}

func (l *Link) SendRaw(to link.Addr, data []byte) bool {
	if l.closed.Load() || to.IsZero() {
		return false
	}
	if _, err := l.conn.WriteToUDPAddrPort(data, to.AddrPort()); err != nil {
		l.metrics.Add(telemetry.MetricSendFailures, 1)
		return false
	}
	l.metrics.Add(telemetry.MetricPacketsOut, 1)
	return true
}

func (l *Link) readLoop() {
	defer l.wg.Done()
	buf := make([]byte, readBufferSize)
	for {
		n, ap, err := l.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if l.closed.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			l.logger.Printf("udp: read failed: %v", err)
			continue
		}
		src, err := link.AddrFromAddrPort(ap)
		if err != nil {
			continue
		}
		l.metrics.Add(telemetry.MetricPacketsIn, 1)
		l.mu.Lock()
		recv := l.recv
		l.mu.Unlock()
		if recv != nil {
			recv(src, buf[:n])
		}
	}
}

func (l *Link) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := l.conn.Close()
	l.wg.Wait()
	return err
}

var _ link.Link = (*Link)(nil)
