// Package ws carries link datagrams as binary WebSocket frames, for networks
// where the peers cannot exchange UDP. One side listens, the other dials.
package ws

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"espnow-arena/node/internal/link"
	"espnow-arena/node/internal/telemetry"
)

const (
	writeWait      = 2 * time.Second
	redialInterval = time.Second
	readLimit      = 4096
	DefaultPath    = "/link"
)

type Config struct {
	// ListenAddr accepts a dialing peer on this address when set.
	ListenAddr string
	// DialAddr is the listening peer's host:port when set.
	DialAddr string
	Path     string
	Logger   telemetry.Logger
	Metrics  telemetry.Metrics
}

// Link is a link.Link over a single WebSocket connection. Every datagram is
// one binary message; a dropped connection loses in-flight datagrams, like
// the radio it stands in for.
type Link struct {
	cfg      Config
	upgrader websocket.Upgrader

	mu       sync.Mutex
	recv     link.ReceiveFunc
	conn     *websocket.Conn
	remote   link.Addr
	server   *http.Server
	listener net.Listener
	started  bool

	writeMu sync.Mutex
	closed  atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup
}

func New(cfg Config) *Link {
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}
	if cfg.Logger == nil {
		cfg.Logger = telemetry.Discard()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = telemetry.NopMetrics()
	}
	return &Link{
		cfg:  cfg,
		done: make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  readLimit,
			WriteBufferSize: readLimit,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (l *Link) SetReceiver(fn link.ReceiveFunc) {
	l.mu.Lock()
	l.recv = fn
	l.mu.Unlock()
}

// Start opens the listener and/or begins dialing.
func (l *Link) Start() error {
	if l.closed.Load() {
		return link.ErrClosed
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return nil
	}
	if l.cfg.ListenAddr == "" && l.cfg.DialAddr == "" {
		return errors.New("ws: neither listen nor dial address configured")
	}
	if l.cfg.ListenAddr != "" {
		ln, err := net.Listen("tcp4", l.cfg.ListenAddr)
		if err != nil {
			return fmt.Errorf("ws: listen on %s: %w", l.cfg.ListenAddr, err)
		}
		mux := http.NewServeMux()
		mux.HandleFunc(l.cfg.Path, l.accept)
		l.listener = ln
		l.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			if err := l.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				l.cfg.Logger.Printf("ws: serve failed: %v", err)
			}
		}()
	}
	if l.cfg.DialAddr != "" {
		l.wg.Add(1)
		go l.dialLoop()
	}
	l.started = true
	return nil
}

// ListenAddr reports the bound listener address, if any.
func (l *Link) ListenAddr() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.listener == nil {
		return ""
	}
	return l.listener.Addr().String()
}

func (l *Link) accept(w http.ResponseWriter, r *http.Request) {
	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.cfg.Logger.Printf("ws: upgrade failed: %v", err)
		return
	}
	remote := addrOf(conn.RemoteAddr())
	l.serve(conn, remote)
}

func (l *Link) dialLoop() {
	defer l.wg.Done()
	u := url.URL{Scheme: "ws", Host: l.cfg.DialAddr, Path: l.cfg.Path}
	remote, _ := link.ParseAddr(l.cfg.DialAddr)
	for {
		if l.closed.Load() {
			return
		}
		conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
		if err == nil {
			l.serve(conn, remote)
		}
		select {
		case <-l.done:
			return
		case <-time.After(redialInterval):
		}
	}
}

// serve runs the read loop for conn until it fails; it replaces any
// previously active connection.
func (l *Link) serve(conn *websocket.Conn, remote link.Addr) {
	conn.SetReadLimit(readLimit)
	l.mu.Lock()
	if l.closed.Load() {
		l.mu.Unlock()
		conn.Close()
		return
	}
	if l.conn != nil {
		l.conn.Close()
	}
	l.conn = conn
	l.remote = remote
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		if l.conn == conn {
			l.conn = nil
		}
		l.mu.Unlock()
		conn.Close()
	}()

	for {
		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.BinaryMessage {
			continue
		}
		l.cfg.Metrics.Add(telemetry.MetricPacketsIn, 1)
		l.mu.Lock()
		recv := l.recv
		l.mu.Unlock()
		if recv != nil {
			recv(remote, payload)
		}
	}
}

// SendRaw writes data to the active connection. The address only has to be
// configured: a WebSocket link has exactly one peer.
func (l *Link) SendRaw(to link.Addr, data []byte) bool {
	if l.closed.Load() || to.IsZero() {
		return false
	}
	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()
	if conn == nil {
		return false
	}
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		l.cfg.Metrics.Add(telemetry.MetricSendFailures, 1)
		return false
	}
	l.cfg.Metrics.Add(telemetry.MetricPacketsOut, 1)
	return true
}

// Connected reports whether a peer connection is currently open.
func (l *Link) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn != nil
}

func (l *Link) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(l.done)
	l.mu.Lock()
	conn := l.conn
	server := l.server
	l.mu.Unlock()
	if conn != nil {
		l.writeMu.Lock()
		conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
		l.writeMu.Unlock()
		conn.Close()
	}
	var err error
	if server != nil {
		err = server.Close()
	}
	l.wg.Wait()
	return err
}

func addrOf(a net.Addr) link.Addr {
	tcp, ok := a.(*net.TCPAddr)
	if !ok {
		return link.Addr{}
	}
	ap, ok := netip.AddrFromSlice(tcp.IP)
	if !ok {
		return link.Addr{}
	}
	addr, err := link.AddrFromAddrPort(netip.AddrPortFrom(ap, uint16(tcp.Port)))
	if err != nil {
		return link.Addr{}
	}
	return addr
}

var _ link.Link = (*Link)(nil)
