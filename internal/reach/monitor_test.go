package reach

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"espnow-arena/node/internal/link"
	"espnow-arena/node/internal/link/memlink"
)

var (
	addrA = link.Addr{10, 0, 0, 1, 0x10, 0x72}
	addrB = link.Addr{10, 0, 0, 2, 0x10, 0x72}
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time        { return c.now }
func (c *fakeClock) Sleep(d time.Duration) { c.now = c.now.Add(d) }

func wire(t *testing.T, opts memlink.Options, peerOfA link.Addr) (*Monitor, *Monitor, *fakeClock) {
	t.Helper()
	n := memlink.NewNetwork(opts)
	epA := n.Endpoint(addrA)
	epB := n.Endpoint(addrB)
	clock := &fakeClock{now: time.Unix(0, 0)}
	nonces := uint32(0)
	a := NewMonitor(link.NewPeer(epA, peerOfA), WithClock(clock.Now, clock.Sleep), WithNonceSource(func() uint32 {
		nonces++
		return nonces
	}))
	b := NewMonitor(link.NewPeer(epB, addrA))
	epA.SetReceiver(func(src link.Addr, data []byte) { a.Intercept(src, data) })
	epB.SetReceiver(func(src link.Addr, data []byte) { b.Intercept(src, data) })
	epA.Start()
	epB.Start()
	return a, b, clock
}

func TestCheckReachableSucceedsOnMatchingPong(t *testing.T) {
	a, _, _ := wire(t, memlink.Options{}, addrB)

	if !a.CheckReachable(DefaultTimeout) {
		t.Fatalf("expected peer to be reachable")
	}
	if a.Pending() != 0 {
		t.Fatalf("pending nonce not cleared: %d", a.Pending())
	}
	from, ok := a.LastPongFrom()
	if !ok || from != addrB {
		t.Fatalf("unexpected pong source %s ok=%v", from, ok)
	}
}

func TestCheckReachableTimesOutOnLoss(t *testing.T) {
	a, _, clock := wire(t, memlink.Options{Loss: 1}, addrB)
	start := clock.now

	if a.CheckReachable(100 * time.Millisecond) {
		t.Fatalf("expected probe to time out")
	}
	if elapsed := clock.now.Sub(start); elapsed < 100*time.Millisecond {
		t.Fatalf("returned before the timeout elapsed: %s", elapsed)
	}
	if a.Pending() != 0 {
		t.Fatalf("pending nonce not cleared after timeout")
	}
}

func TestCheckReachableRefusesUnconfiguredPeer(t *testing.T) {
	a, _, clock := wire(t, memlink.Options{}, link.Addr{})
	start := clock.now
	if a.CheckReachable(time.Second) {
		t.Fatalf("expected refusal with zero peer address")
	}
	if clock.now != start {
		t.Fatalf("refusal should not wait")
	}
}

func TestStaleOrMismatchedPongIgnored(t *testing.T) {
	m := NewMonitor(link.NewPeer(nil, addrB))

	m.pending.Store(42)
	m.Intercept(addrB, encode(PacketPong, 41))
	if m.gotPong.Load() {
		t.Fatalf("mismatched pong accepted")
	}
	m.Intercept(addrB, encode(PacketPong, 42))
	if !m.gotPong.Load() || m.Pending() != 0 {
		t.Fatalf("matching pong not accepted")
	}

	m.gotPong.Store(false)
	m.Intercept(addrB, encode(PacketPong, 42))
	if m.gotPong.Load() {
		t.Fatalf("stale pong accepted after nonce was consumed")
	}
}

func TestInterceptConsumesPingOnly(t *testing.T) {
	m := NewMonitor(link.NewPeer(nil, addrB))
	if !m.Intercept(addrB, encode(PacketPing, 7)) {
		t.Fatalf("ping should be consumed")
	}
	if m.Intercept(addrB, encode(PacketPong, 7)) {
		t.Fatalf("pong should continue to the game parser")
	}
	if m.Intercept(addrB, []byte{PacketPing, 1}) {
		t.Fatalf("short ping should be ignored")
	}
}

// gatedClock parks the first Sleep until release is closed.
type gatedClock struct {
	mu      sync.Mutex
	now     time.Time
	entered chan struct{}
	release chan struct{}
}

func (c *gatedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *gatedClock) Sleep(d time.Duration) {
	select {
	case c.entered <- struct{}{}:
	default:
	}
	<-c.release
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestConcurrentChecksRunOneAtATime(t *testing.T) {
	net := memlink.NewNetwork(memlink.Options{Loss: 1})
	epA := net.Endpoint(addrA)
	epB := net.Endpoint(addrB)
	epA.Start()
	epB.Start()

	clock := &gatedClock{
		now:     time.Unix(0, 0),
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	var nonces atomic.Uint32
	a := NewMonitor(link.NewPeer(epA, addrB), WithClock(clock.Now, clock.Sleep), WithNonceSource(func() uint32 {
		return nonces.Add(1)
	}))

	results := make(chan bool, 2)
	go func() { results <- a.CheckReachable(10 * time.Millisecond) }()
	<-clock.entered

	go func() { results <- a.CheckReachable(10 * time.Millisecond) }()
	time.Sleep(20 * time.Millisecond)
	sentWhileWaiting := net.Stats().Sent
	pendingWhileWaiting := a.Pending()

	close(clock.release)
	for i := 0; i < 2; i++ {
		if <-results {
			t.Fatalf("lossy link should time out")
		}
	}

	if sentWhileWaiting != 1 {
		t.Fatalf("second check pinged while the first was outstanding: %d pings", sentWhileWaiting)
	}
	if pendingWhileWaiting != 1 {
		t.Fatalf("first nonce replaced while outstanding: pending=%d", pendingWhileWaiting)
	}
	if got := net.Stats().Sent; got != 2 {
		t.Fatalf("expected 2 pings after both checks, got %d", got)
	}
	if a.Pending() != 0 {
		t.Fatalf("pending nonce not cleared: %d", a.Pending())
	}
}
