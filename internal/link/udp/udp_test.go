package udp

import (
	"bytes"
	"testing"
	"time"

	"espnow-arena/node/internal/link"
)

func TestLinksExchangeDatagrams(t *testing.T) {
	a, err := Listen("127.0.0.1:0", nil, nil)
	if err != nil {
		t.Fatalf("Listen a: %v", err)
	}
	defer a.Close()
	b, err := Listen("127.0.0.1:0", nil, nil)
	if err != nil {
		t.Fatalf("Listen b: %v", err)
	}
	defer b.Close()

	type datagram struct {
		src  link.Addr
		data []byte
	}
	got := make(chan datagram, 1)
	b.SetReceiver(func(src link.Addr, data []byte) {
		got <- datagram{src: src, data: append([]byte(nil), data...)}
	})
	if err := b.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if !a.SendRaw(b.LocalAddr(), []byte{1, 2, 3}) {
		t.Fatalf("SendRaw reported failure")
	}

	select {
	case d := <-got:
		if !bytes.Equal(d.data, []byte{1, 2, 3}) {
			t.Fatalf("unexpected payload %v", d.data)
		}
		if d.src != a.LocalAddr() {
			t.Fatalf("unexpected source %s want %s", d.src, a.LocalAddr())
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("datagram not delivered")
	}
}

func TestSendRefusesZeroAddressAndClosedLink(t *testing.T) {
	l, err := Listen("127.0.0.1:0", nil, nil)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if l.SendRaw(link.Addr{}, []byte{1}) {
		t.Fatalf("expected zero address to be refused")
	}
	target := l.LocalAddr()
	l.Close()
	if l.SendRaw(target, []byte{1}) {
		t.Fatalf("expected closed link to refuse sends")
	}
	if err := l.Start(); err != link.ErrClosed {
		t.Fatalf("expected ErrClosed from Start, got %v", err)
	}
}
