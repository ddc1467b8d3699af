package ui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/atomicstack/tmux-popup-list/internal/listui"
	"github.com/atomicstack/tmux-popup-list/internal/logging/events"
)

// keyName renders a key the way mappings name it.
func keyName(msg tea.KeyMsg) string {
	if msg.Type == tea.KeySpace {
		if msg.Alt {
			return "alt+space"
		}
		return "space"
	}
	return msg.String()
}

func (m *Model) handleKeyMsg(msg tea.Msg) tea.Cmd {
	key := msg.(tea.KeyMsg)
	if m.screen.Choosing() {
		m.handleChoiceKey(key)
		return nil
	}
	if key.Paste || (key.Type == tea.KeyRunes && len(key.Runes) > 1) {
		text := string(key.Runes)
		m.submit("paste", func(ctx context.Context) error {
			return m.controller.Insert(ctx, text)
		})
		return nil
	}
	name := keyName(key)
	events.UI.Key(name)
	m.submit("key "+name, func(ctx context.Context) error {
		return m.controller.OnKey(ctx, name)
	})
	return nil
}

// handleChoiceKey answers a pending choice directly, since the input queue
// is blocked on it.
func (m *Model) handleChoiceKey(key tea.KeyMsg) {
	switch name := keyName(key); name {
	case "up", "k", "ctrl+p", "shift+tab":
		m.screen.MoveChoice(-1)
	case "down", "j", "ctrl+n", "tab":
		m.screen.MoveChoice(1)
	case "enter", "space":
		m.screen.ResolveChoice(-1, true)
	case "esc", "q", "ctrl+c":
		m.screen.ResolveChoice(-1, false)
	default:
		if len(name) == 1 && name[0] >= '1' && name[0] <= '9' {
			m.screen.ResolveChoice(int(name[0]-'1'), false)
		}
	}
}

func (m *Model) handleMouseMsg(msg tea.Msg) tea.Cmd {
	mouse := msg.(tea.MouseMsg)
	if m.screen.Choosing() {
		return nil
	}
	switch mouse.Button {
	case tea.MouseButtonWheelUp:
		if mouse.Action == tea.MouseActionPress {
			m.submit("wheel up", func(ctx context.Context) error {
				return m.controller.OnKey(ctx, "up")
			})
		}
		return nil
	case tea.MouseButtonWheelDown:
		if mouse.Action == tea.MouseActionPress {
			m.submit("wheel down", func(ctx context.Context) error {
				return m.controller.OnKey(ctx, "down")
			})
		}
		return nil
	}
	var phase listui.MousePhase
	switch mouse.Action {
	case tea.MouseActionPress:
		if mouse.Button != tea.MouseButtonLeft {
			return nil
		}
		phase = listui.MousePress
	case tea.MouseActionMotion:
		if mouse.Button != tea.MouseButtonLeft {
			return nil
		}
		phase = listui.MouseDrag
	case tea.MouseActionRelease:
		phase = listui.MouseRelease
	default:
		return nil
	}
	ev := listui.MouseEvent{Phase: phase, Line: m.lineAt(mouse.X, mouse.Y)}
	m.submit("mouse "+phase.String(), func(ctx context.Context) error {
		return m.controller.OnMouse(ctx, ev)
	})
	return nil
}

// lineAt maps a terminal cell to a list line, 0 outside the list.
func (m *Model) lineAt(x, y int) int {
	if m.listWidth > 0 && x >= m.listWidth {
		return 0
	}
	return m.screen.LineAt(y - m.windowTop)
}
