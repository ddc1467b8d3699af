package ui

import (
	"context"
	"errors"
	"reflect"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/atomicstack/tmux-popup-list/internal/list"
	"github.com/atomicstack/tmux-popup-list/internal/listui"
	"github.com/atomicstack/tmux-popup-list/internal/logging"
	"github.com/atomicstack/tmux-popup-list/internal/surface"
	"github.com/atomicstack/tmux-popup-list/internal/theme"
	"github.com/atomicstack/tmux-popup-list/internal/ui/command"
)

const queueSize = 64

var styles = theme.Default()

type msgHandler func(tea.Msg) tea.Cmd

// Controller receives the input the terminal UI collects.
type Controller interface {
	OnKey(ctx context.Context, key string) error
	Insert(ctx context.Context, text string) error
	OnMouse(ctx context.Context, ev listui.MouseEvent) error
	// Pending reports a list that has not drawn yet.
	Pending() bool
}

// Options configures a Model.
type Options struct {
	Screen     *surface.Screen
	Controller Controller
	// Start runs first, before any key is handled.
	Start      func(ctx context.Context) error
	Width      int
	Height     int
	ShowFooter bool
}

type resultMsg command.Result

type redrawMsg struct{}

// Model renders a surface.Screen and feeds input to a Controller.
type Model struct {
	screen      *surface.Screen
	controller  Controller
	start       func(ctx context.Context) error
	bus         *command.Bus
	redraw      chan struct{}
	width       int
	height      int
	fixedWidth  bool
	fixedHeight bool
	showFooter  bool

	spinner  spinner.Model
	spinning bool
	help     help.Model

	inflight int
	started  bool
	quitting bool
	err      error

	// windowTop is the terminal row of the first list line in the last view.
	windowTop int
	listWidth int

	handlers map[reflect.Type]msgHandler
}

// NewModel wires a model to its screen. The screen's notify hook is taken
// over by the model.
func NewModel(opts Options) *Model {
	m := &Model{
		screen:     opts.Screen,
		controller: opts.Controller,
		start:      opts.Start,
		bus:        command.New(queueSize),
		redraw:     make(chan struct{}, 1),
		showFooter: opts.ShowFooter,
		spinner:    spinner.New(spinner.WithSpinner(spinner.MiniDot), spinner.WithStyle(*styles.Loading)),
		help:       help.New(),
	}
	if opts.Width > 0 {
		m.width = opts.Width
		m.fixedWidth = true
	}
	if opts.Height > 0 {
		m.height = opts.Height
		m.fixedHeight = true
	}
	if m.width > 0 || m.height > 0 {
		m.resizeScreen()
	}
	m.screen.SetNotify(m.notify)
	m.registerHandlers()
	return m
}

// Run executes queued input until ctx is cancelled.
func (m *Model) Run(ctx context.Context) error {
	return m.bus.Run(ctx)
}

// Pump delivers finished input and redraw requests to send, usually
// tea.Program.Send, until ctx is cancelled.
func (m *Model) Pump(ctx context.Context, send func(tea.Msg)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case res := <-m.bus.Results():
			send(resultMsg(res))
		case <-m.redraw:
			send(redrawMsg{})
		}
	}
}

// Err returns the error that ended the program, if any.
func (m *Model) Err() error {
	return m.err
}

func (m *Model) notify() {
	select {
	case m.redraw <- struct{}{}:
	default:
	}
}

// Init is part of the tea.Model interface.
func (m *Model) Init() tea.Cmd {
	start := m.start
	if start == nil {
		start = func(context.Context) error { return nil }
	}
	m.submit("start", start)
	return nil
}

// Update responds to Bubble Tea messages.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if handler := m.handlerFor(msg); handler != nil {
		return m, handler(msg)
	}
	return m, nil
}

func (m *Model) registerHandlers() {
	m.handlers = map[reflect.Type]msgHandler{
		reflect.TypeOf(tea.KeyMsg{}):        m.handleKeyMsg,
		reflect.TypeOf(tea.MouseMsg{}):      m.handleMouseMsg,
		reflect.TypeOf(tea.WindowSizeMsg{}): m.handleWindowSizeMsg,
		reflect.TypeOf(tea.FocusMsg{}):      m.handleFocusMsg,
		reflect.TypeOf(tea.BlurMsg{}):       m.handleBlurMsg,
		reflect.TypeOf(spinner.TickMsg{}):   m.handleSpinnerTickMsg,
		reflect.TypeOf(resultMsg{}):         m.handleResultMsg,
		reflect.TypeOf(redrawMsg{}):         m.handleRedrawMsg,
	}
}

func (m *Model) handlerFor(msg tea.Msg) msgHandler {
	if msg == nil || m.handlers == nil {
		return nil
	}
	t := reflect.TypeOf(msg)
	if handler, ok := m.handlers[t]; ok {
		return handler
	}
	if t.Kind() == reflect.Ptr {
		if handler, ok := m.handlers[t.Elem()]; ok {
			return handler
		}
	}
	return nil
}

func (m *Model) submit(label string, fn func(context.Context) error) {
	if m.bus.Submit(command.Request{Label: label, Run: fn}) {
		m.inflight++
	}
}

func (m *Model) handleWindowSizeMsg(msg tea.Msg) tea.Cmd {
	size := msg.(tea.WindowSizeMsg)
	if !m.fixedWidth {
		m.width = size.Width
	}
	if !m.fixedHeight {
		m.height = size.Height
	}
	m.resizeScreen()
	return nil
}

func (m *Model) resizeScreen() {
	width, height := m.width, m.height
	if width <= 0 {
		width = m.screen.Width()
	}
	if height <= 0 {
		height = m.screen.Frame().Height
	}
	m.screen.Resize(width, height)
}

func (m *Model) handleFocusMsg(tea.Msg) tea.Cmd {
	m.screen.Focus(true)
	return nil
}

func (m *Model) handleBlurMsg(tea.Msg) tea.Cmd {
	m.screen.Focus(false)
	return nil
}

func (m *Model) handleSpinnerTickMsg(msg tea.Msg) tea.Cmd {
	if !m.screen.Frame().Status.Loading {
		m.spinning = false
		return nil
	}
	var cmd tea.Cmd
	m.spinner, cmd = m.spinner.Update(msg)
	return cmd
}

func (m *Model) handleResultMsg(msg tea.Msg) tea.Cmd {
	res := msg.(resultMsg)
	if m.inflight > 0 {
		m.inflight--
	}
	if res.Label == "start" {
		m.started = true
		if res.Err != nil {
			m.err = res.Err
			return m.quit()
		}
	} else if res.Err != nil && !errors.Is(res.Err, list.ErrNoSession) && !errors.Is(res.Err, context.Canceled) {
		logging.Error(res.Err)
	}
	return m.settle()
}

func (m *Model) handleRedrawMsg(tea.Msg) tea.Cmd {
	return m.settle()
}

// settle quits once nothing is left to show and starts the spinner while a
// list loads.
func (m *Model) settle() tea.Cmd {
	frame := m.screen.Frame()
	if m.started && m.inflight == 0 && !frame.HasWindow && frame.Choice == nil && !m.controller.Pending() {
		return m.quit()
	}
	if frame.Status.Loading && !m.spinning {
		m.spinning = true
		return m.spinner.Tick
	}
	return nil
}

func (m *Model) quit() tea.Cmd {
	m.quitting = true
	return tea.Quit
}
