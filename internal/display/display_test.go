package display

import (
	"strings"
	"testing"

	"github.com/nsf/termbox-go"

	"espnow-arena/node/internal/engine"
	"espnow-arena/node/internal/mapgen"
	"espnow-arena/node/internal/node"
)

func TestKeyAction(t *testing.T) {
	cases := []struct {
		name string
		ev   termbox.Event
		want node.Action
		ok   bool
		quit bool
	}{
		{"up", termbox.Event{Type: termbox.EventKey, Key: termbox.KeyArrowUp}, node.Action{Kind: node.ActionMove, DY: -1}, true, false},
		{"right", termbox.Event{Type: termbox.EventKey, Key: termbox.KeyArrowRight}, node.Action{Kind: node.ActionMove, DX: 1}, true, false},
		{"wasd", termbox.Event{Type: termbox.EventKey, Ch: 'a'}, node.Action{Kind: node.ActionMove, DX: -1}, true, false},
		{"bomb", termbox.Event{Type: termbox.EventKey, Key: termbox.KeySpace}, node.Action{Kind: node.ActionBomb}, true, false},
		{"restart", termbox.Event{Type: termbox.EventKey, Ch: 'r'}, node.Action{Kind: node.ActionRestart}, true, false},
		{"quit", termbox.Event{Type: termbox.EventKey, Ch: 'q'}, node.Action{}, false, true},
		{"ctrl-c", termbox.Event{Type: termbox.EventKey, Key: termbox.KeyCtrlC}, node.Action{}, false, true},
		{"other key", termbox.Event{Type: termbox.EventKey, Ch: 'x'}, node.Action{}, false, false},
		{"resize", termbox.Event{Type: termbox.EventResize}, node.Action{}, false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok, quit := KeyAction(tc.ev)
			if got != tc.want || ok != tc.ok || quit != tc.quit {
				t.Fatalf("KeyAction = %+v, %t, %t; want %+v, %t, %t", got, ok, quit, tc.want, tc.ok, tc.quit)
			}
		})
	}
}

func TestFrameLayout(t *testing.T) {
	st := node.Status{
		NodeID:      "n-1",
		PlayerID:    1,
		Round:       2,
		Seed:        9,
		SeedSource:  string(mapgen.SeedPeer),
		Fingerprint: "abcd",
		Peer:        "0a:00:00:02:b7:98",
		Scores:      [2]int{10, 0},
		Player:      engine.Player{ID: 1, X: 5, Y: 5, Lives: 2},
		Grid:        mapgen.Generate(7, 7, 9),
	}
	lines := Frame(st)
	if len(lines) != 2+7+1 {
		t.Fatalf("expected header, 7 map rows and legend, got %d lines", len(lines))
	}
	if !strings.Contains(lines[1], "score 10 : 0") || !strings.Contains(lines[1], "(waiting)") {
		t.Fatalf("unexpected status line %q", lines[1])
	}
	if lines[2+5][5] != '1' {
		t.Fatalf("expected player glyph at (5,5), got %q", lines[2+5])
	}

	st.GameOver = true
	st.Remote.Joined = true
	lines = Frame(st)
	if lines[2] != "GAME OVER" {
		t.Fatalf("expected game over banner, got %q", lines[2])
	}
	if strings.Contains(lines[1], "(waiting)") {
		t.Fatalf("joined peer still shown as waiting: %q", lines[1])
	}
}

func TestGlyphColorHighlightsSelf(t *testing.T) {
	if glyphColor('1', 1) == glyphColor('0', 1) {
		t.Fatalf("local and remote players should be drawn differently")
	}
	if glyphColor('.', 0) != termbox.ColorDefault {
		t.Fatalf("empty floor should use the default color")
	}
}
