package surface

import (
	"context"
	"fmt"
	"sync"

	"github.com/atomicstack/tmux-popup-list/internal/source"
)

// Screen is an in-memory Surface. The terminal UI renders its Frame and
// feeds user input back through HandleKey, ResolveChoice and Focus.
type Screen struct {
	mu      sync.Mutex
	width   int
	height  int
	windows []*screenWindow
	nextID  int
	prompt  PromptState
	preview *Preview
	choice  *choice
	message string
	isError bool
	subs    map[int]func(Event)
	nextSub int
	notify  func()
}

type choice struct {
	title   string
	options []string
	cursor  int
	reply   chan int
}

// NewScreen returns a screen of the given size. notify, when set, is called
// after every change; it must not block.
func NewScreen(width, height int, notify func()) *Screen {
	return &Screen{width: width, height: height, notify: notify, subs: map[int]func(Event){}}
}

// SetNotify replaces the change callback.
func (s *Screen) SetNotify(fn func()) {
	s.mu.Lock()
	s.notify = fn
	s.mu.Unlock()
}

// Resize records the terminal size.
func (s *Screen) Resize(width, height int) {
	s.mu.Lock()
	s.width, s.height = width, height
	for _, w := range s.windows {
		w.scrollLocked()
	}
	s.mu.Unlock()
	s.changed()
}

func (s *Screen) Width() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width
}

func (s *Screen) changed() {
	s.mu.Lock()
	fn := s.notify
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Subscribe delivers focus, blur and cursor events to fn.
func (s *Screen) Subscribe(fn func(Event)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Screen) publish(ev Event) {
	s.mu.Lock()
	subs := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
}

// Focus reports that the terminal gained or lost focus.
func (s *Screen) Focus(focused bool) {
	kind := EventBlur
	if focused {
		kind = EventFocus
	}
	s.publish(Event{Kind: kind, Window: s.ActiveWindow()})
}

// ActiveWindow returns the id of the visible window, if any.
func (s *Screen) ActiveWindow() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w := s.activeLocked(); w != nil {
		return w.id
	}
	return ""
}

func (s *Screen) activeLocked() *screenWindow {
	if len(s.windows) == 0 {
		return nil
	}
	return s.windows[len(s.windows)-1]
}

func (s *Screen) OpenWindow(_ context.Context, spec WindowSpec) (Window, error) {
	s.mu.Lock()
	s.nextID++
	w := &screenWindow{
		screen: s,
		id:     fmt.Sprintf("list-%d", s.nextID),
		spec:   spec,
		signs:  map[int]string{},
	}
	s.windows = append(s.windows, w)
	s.mu.Unlock()
	s.changed()
	s.publish(Event{Kind: EventFocus, Window: w.id})
	return w, nil
}

func (s *Screen) SetPrompt(_ context.Context, state PromptState) error {
	s.mu.Lock()
	s.prompt = state
	s.mu.Unlock()
	s.changed()
	return nil
}

func (s *Screen) ShowPreview(_ context.Context, preview Preview) error {
	s.mu.Lock()
	p := preview
	p.Lines = append([]string(nil), preview.Lines...)
	s.preview = &p
	s.mu.Unlock()
	s.changed()
	return nil
}

func (s *Screen) ClosePreview(context.Context) error {
	s.mu.Lock()
	s.preview = nil
	s.mu.Unlock()
	s.changed()
	return nil
}

// Choose shows options and blocks until ResolveChoice is called or ctx ends.
func (s *Screen) Choose(ctx context.Context, title string, options []string) (int, error) {
	if len(options) == 0 {
		return -1, ErrCancelled
	}
	c := &choice{title: title, options: append([]string(nil), options...), reply: make(chan int, 1)}
	s.mu.Lock()
	if s.choice != nil {
		s.choice.reply <- -1
	}
	s.choice = c
	s.mu.Unlock()
	s.changed()
	defer func() {
		s.mu.Lock()
		if s.choice == c {
			s.choice = nil
		}
		s.mu.Unlock()
		s.changed()
	}()
	select {
	case idx := <-c.reply:
		if idx < 0 || idx >= len(options) {
			return -1, ErrCancelled
		}
		return idx, nil
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}

// Choosing reports whether a choice is waiting for an answer.
func (s *Screen) Choosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.choice != nil
}

// MoveChoice moves the highlighted option by delta.
func (s *Screen) MoveChoice(delta int) {
	s.mu.Lock()
	if c := s.choice; c != nil {
		c.cursor += delta
		if c.cursor < 0 {
			c.cursor = 0
		}
		if c.cursor >= len(c.options) {
			c.cursor = len(c.options) - 1
		}
	}
	s.mu.Unlock()
	s.changed()
}

// ResolveChoice answers the pending choice. A negative index selects the
// highlighted option when current is set, otherwise it cancels.
func (s *Screen) ResolveChoice(idx int, current bool) {
	s.mu.Lock()
	c := s.choice
	s.choice = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	if current {
		idx = c.cursor
	}
	c.reply <- idx
	s.changed()
}

func (s *Screen) Message(_ context.Context, text string, isError bool) {
	s.mu.Lock()
	s.message = text
	s.isError = isError
	s.mu.Unlock()
	s.changed()
}

// HandleKey interprets cursor motions and visual selection keys in the
// visible window, the way an editor buffer would.
func (s *Screen) HandleKey(_ context.Context, key string) bool {
	s.mu.Lock()
	w := s.activeLocked()
	if w == nil {
		s.mu.Unlock()
		return false
	}
	page := w.viewHeightLocked() / 2
	if page < 1 {
		page = 1
	}
	moved := true
	switch key {
	case "j", "down":
		w.moveLocked(w.cursor + 1)
	case "k", "up":
		w.moveLocked(w.cursor - 1)
	case "g", "home":
		w.moveLocked(1)
	case "G", "end":
		w.moveLocked(len(w.lines))
	case "ctrl+d", "pgdown":
		w.moveLocked(w.cursor + page)
	case "ctrl+u", "pgup":
		w.moveLocked(w.cursor - page)
	case "v", "V":
		if w.visual {
			w.visual = false
		} else if w.cursor > 0 {
			w.visual = true
			w.visualStart = w.cursor
		}
	default:
		moved = false
	}
	line, id := w.cursor, w.id
	s.mu.Unlock()
	if !moved {
		return false
	}
	s.changed()
	s.publish(Event{Kind: EventCursor, Window: id, Line: line})
	return true
}

// LineAt maps a row of the rendered window to a 1-based line, or 0.
func (s *Screen) LineAt(row int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := s.activeLocked()
	if w == nil || row < 0 || row >= w.viewHeightLocked() {
		return 0
	}
	line := w.offset + row + 1
	if line > len(w.lines) {
		return 0
	}
	return line
}

// CloseAll closes every window, as when the terminal UI exits.
func (s *Screen) CloseAll() {
	s.mu.Lock()
	for _, w := range s.windows {
		w.closed = true
	}
	s.windows = nil
	s.preview = nil
	s.mu.Unlock()
	s.changed()
}

// Frame is a snapshot of everything the terminal UI draws.
type Frame struct {
	Width      int
	Height     int
	HasWindow  bool
	WindowID   string
	Title      string
	Position   string
	Lines      []Line
	Signs      map[int]string
	Cursor     int
	Offset     int
	ViewHeight int
	Visual     [2]int
	Status     Status
	Prompt     PromptState
	Preview    *Preview
	Choice     *ChoiceFrame
	Message    string
	IsError    bool
}

// ChoiceFrame is the rendered state of a pending choice.
type ChoiceFrame struct {
	Title   string
	Options []string
	Cursor  int
}

// Frame returns a copy of the visible state.
func (s *Screen) Frame() Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := Frame{
		Width:   s.width,
		Height:  s.height,
		Prompt:  s.prompt,
		Message: s.message,
		IsError: s.isError,
	}
	if s.preview != nil {
		p := *s.preview
		f.Preview = &p
	}
	if c := s.choice; c != nil {
		f.Choice = &ChoiceFrame{Title: c.title, Options: append([]string(nil), c.options...), Cursor: c.cursor}
	}
	w := s.activeLocked()
	if w == nil {
		return f
	}
	f.HasWindow = true
	f.WindowID = w.id
	f.Title = w.spec.Title
	f.Position = string(w.spec.Position)
	f.Lines = append([]Line(nil), w.lines...)
	f.Signs = make(map[int]string, len(w.signs))
	for line, text := range w.signs {
		f.Signs[line] = text
	}
	f.Cursor = w.cursor
	f.Offset = w.offset
	f.ViewHeight = w.viewHeightLocked()
	if w.visual {
		f.Visual = orderedRange(w.visualStart, w.cursor)
	}
	f.Status = w.status
	return f
}

type screenWindow struct {
	screen      *Screen
	id          string
	spec        WindowSpec
	lines       []Line
	signs       map[int]string
	cursor      int
	offset      int
	visual      bool
	visualStart int
	status      Status
	closed      bool
}

func (w *screenWindow) ID() string { return w.id }

// update runs fn under the screen lock unless the window is closed.
func (w *screenWindow) update(fn func()) error {
	s := w.screen
	s.mu.Lock()
	if w.closed {
		s.mu.Unlock()
		return ErrWindowGone
	}
	fn()
	s.mu.Unlock()
	s.changed()
	return nil
}

func (w *screenWindow) read(fn func()) error {
	s := w.screen
	s.mu.Lock()
	defer s.mu.Unlock()
	if w.closed {
		return ErrWindowGone
	}
	fn()
	return nil
}

func (w *screenWindow) SetLines(_ context.Context, start int, lines []Line) error {
	return w.update(func() {
		if start < 0 {
			start = 0
		}
		if start > len(w.lines) {
			start = len(w.lines)
		}
		w.lines = append(w.lines[:start:start], lines...)
		for line := range w.signs {
			if line > len(w.lines) {
				delete(w.signs, line)
			}
		}
		if w.cursor == 0 && len(w.lines) > 0 {
			w.cursor = 1
		}
		if w.cursor > len(w.lines) {
			w.cursor = len(w.lines)
		}
		if w.visual && w.visualStart > len(w.lines) {
			w.visual = false
		}
		w.scrollLocked()
	})
}

func (w *screenWindow) Resize(_ context.Context, height int) error {
	return w.update(func() {
		w.spec.Height = height
		w.scrollLocked()
	})
}

func (w *screenWindow) SetCursor(_ context.Context, line int) error {
	return w.update(func() { w.moveLocked(line) })
}

func (w *screenWindow) Cursor(context.Context) (int, error) {
	var line int
	err := w.read(func() { line = w.cursor })
	return line, err
}

func (w *screenWindow) Visual(context.Context) (int, int, bool, error) {
	var r [2]int
	var ok bool
	err := w.read(func() {
		if w.visual {
			r = orderedRange(w.visualStart, w.cursor)
			ok = true
		}
	})
	return r[0], r[1], ok, err
}

func (w *screenWindow) PlaceSign(_ context.Context, line int, text string) error {
	return w.update(func() {
		if line >= 1 && line <= len(w.lines) {
			w.signs[line] = text
		}
	})
}

func (w *screenWindow) RemoveSign(_ context.Context, line int) error {
	return w.update(func() { delete(w.signs, line) })
}

func (w *screenWindow) ClearSigns(context.Context) error {
	return w.update(func() { w.signs = map[int]string{} })
}

func (w *screenWindow) SetStatus(_ context.Context, status Status) error {
	return w.update(func() { w.status = status })
}

func (w *screenWindow) Close(context.Context) error {
	s := w.screen
	s.mu.Lock()
	if w.closed {
		s.mu.Unlock()
		return ErrWindowGone
	}
	w.closed = true
	w.visual = false
	for i, other := range s.windows {
		if other == w {
			s.windows = append(s.windows[:i], s.windows[i+1:]...)
			break
		}
	}
	next := s.activeLocked()
	s.mu.Unlock()
	s.changed()
	if next != nil {
		s.publish(Event{Kind: EventFocus, Window: next.id})
	}
	return nil
}

func (w *screenWindow) viewHeightLocked() int {
	h := w.spec.Height
	if w.spec.Position == source.PositionTab || h <= 0 {
		h = w.screen.height - 3
	}
	if limit := w.screen.height - 3; limit > 0 && h > limit {
		h = limit
	}
	if h < 1 {
		h = 1
	}
	return h
}

func (w *screenWindow) moveLocked(line int) {
	if len(w.lines) == 0 {
		w.cursor = 0
		return
	}
	if line < 1 {
		line = 1
	}
	if line > len(w.lines) {
		line = len(w.lines)
	}
	w.cursor = line
	w.scrollLocked()
}

func (w *screenWindow) scrollLocked() {
	view := w.viewHeightLocked()
	if w.cursor == 0 {
		w.offset = 0
		return
	}
	if w.cursor-1 < w.offset {
		w.offset = w.cursor - 1
	}
	if w.cursor-1 >= w.offset+view {
		w.offset = w.cursor - view
	}
	if last := len(w.lines) - view; w.offset > last {
		w.offset = last
	}
	if w.offset < 0 {
		w.offset = 0
	}
}

func orderedRange(a, b int) [2]int {
	if a > b {
		a, b = b, a
	}
	return [2]int{a, b}
}
