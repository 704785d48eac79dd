// Package display draws a node's status in the terminal and turns key
// presses into node actions.
package display

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nsf/termbox-go"

	"espnow-arena/node/internal/node"
)

// Source is what the display reads and drives. *node.Node satisfies it.
type Source interface {
	Status() node.Status
	Enqueue(a node.Action) bool
}

const DefaultRefresh = 100 * time.Millisecond

// Frame lays out st as text lines: a header, the map, and a key legend.
func Frame(st node.Status) []string {
	lines := []string{
		fmt.Sprintf("node %s  player %d  round %d  seed %d (%s)  map %s",
			st.NodeID, st.PlayerID, st.Round, st.Seed, st.SeedSource, st.Fingerprint),
		fmt.Sprintf("score %d : %d  lives %d  peer %s", st.Scores[0], st.Scores[1], st.Player.Lives, peerLabel(st)),
	}
	if st.GameOver {
		lines = append(lines, "GAME OVER")
	}
	if grid := node.Render(st); grid != "" {
		lines = append(lines, strings.Split(strings.TrimSuffix(grid, "\n"), "\n")...)
	}
	lines = append(lines, "arrows move  space bomb  r restart  q quit")
	return lines
}

func peerLabel(st node.Status) string {
	switch {
	case st.Peer == "":
		return "none"
	case !st.Remote.Joined:
		return st.Peer + " (waiting)"
	case st.Reach.Checked && !st.Reach.Reachable:
		return st.Peer + " (unreachable)"
	default:
		return st.Peer
	}
}

// KeyAction maps a key event to a node action. quit is set for q, Esc and
// Ctrl-C.
func KeyAction(ev termbox.Event) (a node.Action, ok bool, quit bool) {
	if ev.Type != termbox.EventKey {
		return node.Action{}, false, false
	}
	switch ev.Key {
	case termbox.KeyArrowUp:
		return node.Action{Kind: node.ActionMove, DY: -1}, true, false
	case termbox.KeyArrowDown:
		return node.Action{Kind: node.ActionMove, DY: 1}, true, false
	case termbox.KeyArrowLeft:
		return node.Action{Kind: node.ActionMove, DX: -1}, true, false
	case termbox.KeyArrowRight:
		return node.Action{Kind: node.ActionMove, DX: 1}, true, false
	case termbox.KeySpace:
		return node.Action{Kind: node.ActionBomb}, true, false
	case termbox.KeyEsc, termbox.KeyCtrlC:
		return node.Action{}, false, true
	}
	switch ev.Ch {
	case 'w':
		return node.Action{Kind: node.ActionMove, DY: -1}, true, false
	case 's':
		return node.Action{Kind: node.ActionMove, DY: 1}, true, false
	case 'a':
		return node.Action{Kind: node.ActionMove, DX: -1}, true, false
	case 'd':
		return node.Action{Kind: node.ActionMove, DX: 1}, true, false
	case 'r':
		return node.Action{Kind: node.ActionRestart}, true, false
	case 'q':
		return node.Action{}, false, true
	}
	return node.Action{}, false, false
}

func glyphColor(ch rune, self uint8) termbox.Attribute {
	switch ch {
	case '#':
		return termbox.ColorWhite
	case '+':
		return termbox.ColorYellow
	case '*':
		return termbox.ColorRed | termbox.AttrBold
	case 'o':
		return termbox.ColorMagenta
	case rune('0' + self):
		return termbox.ColorGreen | termbox.AttrBold
	case '0', '1':
		return termbox.ColorCyan | termbox.AttrBold
	}
	return termbox.ColorDefault
}

func draw(st node.Status) error {
	termbox.Clear(termbox.ColorDefault, termbox.ColorDefault)
	for y, line := range Frame(st) {
		for x, ch := range line {
			termbox.SetCell(x, y, ch, glyphColor(ch, st.PlayerID), termbox.ColorDefault)
		}
	}
	return termbox.Flush()
}

// Run takes over the terminal until ctx is done or the user quits. It
// redraws every refresh interval.
func Run(ctx context.Context, src Source, refresh time.Duration) error {
	if refresh <= 0 {
		refresh = DefaultRefresh
	}
	if err := termbox.Init(); err != nil {
		return fmt.Errorf("display: init terminal: %w", err)
	}
	defer termbox.Close()

	events := make(chan termbox.Event, 16)
	done := make(chan struct{})
	go func() {
		for {
			ev := termbox.PollEvent()
			if ev.Type == termbox.EventInterrupt {
				close(events)
				return
			}
			select {
			case events <- ev:
			case <-done:
				return
			}
		}
	}()
	defer termbox.Interrupt()
	defer close(done)

	ticker := time.NewTicker(refresh)
	defer ticker.Stop()
	if err := draw(src.Status()); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.Type == termbox.EventError {
				return fmt.Errorf("display: %w", ev.Err)
			}
			action, ok, quit := KeyAction(ev)
			if quit {
				return nil
			}
			if ok {
				src.Enqueue(action)
			}
		case <-ticker.C:
			if err := draw(src.Status()); err != nil {
				return err
			}
		}
	}
}
