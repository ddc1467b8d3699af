package listui

import (
	"context"
	"time"

	"github.com/atomicstack/tmux-popup-list/internal/logging/events"
)

// DoubleClickInterval is the longest gap between two clicks on the same
// line that still counts as a double click.
const DoubleClickInterval = 400 * time.Millisecond

// MousePhase is one step of the press, drag, release protocol.
type MousePhase int

const (
	MousePress MousePhase = iota
	MouseDrag
	MouseRelease
)

func (p MousePhase) String() string {
	switch p {
	case MousePress:
		return "press"
	case MouseDrag:
		return "drag"
	default:
		return "release"
	}
}

// MouseEvent carries the 1-based line under the pointer, 0 outside the
// window.
type MouseEvent struct {
	Phase MousePhase
	Line  int
}

// MouseResult tells the caller what a completed gesture asks for.
type MouseResult int

const (
	MouseNone MouseResult = iota
	MouseOpen
)

type mouseState struct {
	pressLine int
	lastLine  int
	lastClick time.Time
}

// OnMouse advances the gesture state. Intermediate drag positions only move
// the cursor; the selection is applied once on release.
func (u *UI) OnMouse(ctx context.Context, ev MouseEvent) (MouseResult, error) {
	events.UI.Mouse(ev.Phase.String(), ev.Line)
	u.mu.Lock()
	valid := ev.Line >= 1 && ev.Line <= len(u.items)
	u.mu.Unlock()

	switch ev.Phase {
	case MousePress:
		u.mu.Lock()
		if !valid {
			u.mouse.pressLine = 0
			u.mu.Unlock()
			return MouseNone, nil
		}
		u.mouse.pressLine = ev.Line
		u.mu.Unlock()
		return MouseNone, u.MoveTo(ctx, ev.Line-1)
	case MouseDrag:
		if !valid {
			return MouseNone, nil
		}
		return MouseNone, u.MoveTo(ctx, ev.Line-1)
	}

	u.mu.Lock()
	press := u.mouse.pressLine
	u.mouse.pressLine = 0
	if press == 0 || !valid {
		u.mu.Unlock()
		return MouseNone, nil
	}
	if ev.Line != press {
		u.mouse.lastLine = 0
		u.mu.Unlock()
		if err := u.SelectLines(ctx, press, ev.Line); err != nil {
			return MouseNone, err
		}
		return MouseNone, u.MoveTo(ctx, ev.Line-1)
	}
	now := u.now()
	double := u.mouse.lastLine == ev.Line && now.Sub(u.mouse.lastClick) <= DoubleClickInterval
	if double {
		u.mouse.lastLine = 0
	} else {
		u.mouse.lastLine = ev.Line
		u.mouse.lastClick = now
	}
	u.mu.Unlock()
	if double {
		return MouseOpen, nil
	}
	return MouseNone, nil
}
