// Package surface describes the display and host capabilities the list
// machinery consumes, and provides Screen, an in-memory implementation
// rendered by the terminal UI.
package surface

import (
	"context"
	"errors"

	"github.com/atomicstack/tmux-popup-list/internal/source"
)

// ErrWindowGone is returned by window operations once the window is closed.
var ErrWindowGone = errors.New("surface: window gone")

// ErrCancelled is returned by Choose when the user dismisses the choice.
var ErrCancelled = errors.New("surface: cancelled")

// Line is one rendered buffer line.
type Line struct {
	Text  string
	Spans []source.Span
}

// WindowSpec describes a window to open.
type WindowSpec struct {
	Title    string
	Height   int
	Position source.Position
}

// Status is shown alongside a list window.
type Status struct {
	Name    string
	Args    []string
	Mode    source.Mode
	Matcher source.Matcher
	Loading bool
	Total   int
	Matched int
}

// PromptState is the rendered prompt line.
type PromptState struct {
	Indicator string
	Input     string
	Cursor    int
	Mode      source.Mode
	Hidden    bool
}

// Preview is the content of the preview panel.
type Preview struct {
	Title      string
	Lines      []string
	Highlight  int
	Group      string
	Height     int
	SplitRight bool
}

// Surface creates windows and owns the shared panels.
type Surface interface {
	OpenWindow(ctx context.Context, spec WindowSpec) (Window, error)
	SetPrompt(ctx context.Context, state PromptState) error
	ShowPreview(ctx context.Context, preview Preview) error
	ClosePreview(ctx context.Context) error
	Choose(ctx context.Context, title string, options []string) (int, error)
	Message(ctx context.Context, text string, isError bool)
	Width() int
}

// Window is a list window. Line numbers are 1-based.
type Window interface {
	ID() string
	SetLines(ctx context.Context, start int, lines []Line) error
	Resize(ctx context.Context, height int) error
	SetCursor(ctx context.Context, line int) error
	Cursor(ctx context.Context) (int, error)
	Visual(ctx context.Context) (start, end int, ok bool, err error)
	PlaceSign(ctx context.Context, line int, text string) error
	RemoveSign(ctx context.Context, line int) error
	ClearSigns(ctx context.Context) error
	SetStatus(ctx context.Context, status Status) error
	Close(ctx context.Context) error
}

// KeyHandler is implemented by surfaces that interpret keys themselves,
// such as cursor motions inside a window.
type KeyHandler interface {
	HandleKey(ctx context.Context, key string) bool
}

// Identity describes where the list was opened from.
type Identity struct {
	Cwd    string
	Window string
	Buffer string
}

// Host is the environment around the list: registers, commands,
// expressions and keystrokes.
type Host interface {
	Register(ctx context.Context, name string) (string, error)
	SetRegister(ctx context.Context, name, value string) error
	Command(ctx context.Context, command string) error
	Eval(ctx context.Context, expr string) (string, error)
	FeedKeys(ctx context.Context, keys string, literal bool) error
	Identity(ctx context.Context) (Identity, error)
}

// EventKind identifies a host or surface event.
type EventKind int

const (
	EventFocus EventKind = iota
	EventBlur
	EventCursor
	EventWindowEnter
	EventBufferUnload
)

func (k EventKind) String() string {
	switch k {
	case EventFocus:
		return "focus"
	case EventBlur:
		return "blur"
	case EventCursor:
		return "cursor"
	case EventWindowEnter:
		return "window-enter"
	default:
		return "buffer-unload"
	}
}

// Event is delivered to subscribers.
type Event struct {
	Kind   EventKind
	Window string
	Line   int
}

// Subscriber delivers events to fn until the returned function is called.
type Subscriber interface {
	Subscribe(fn func(Event)) func()
}
