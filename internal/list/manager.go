package list

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/atomicstack/tmux-popup-list/internal/config"
	"github.com/atomicstack/tmux-popup-list/internal/history"
	"github.com/atomicstack/tmux-popup-list/internal/listui"
	"github.com/atomicstack/tmux-popup-list/internal/logging"
	"github.com/atomicstack/tmux-popup-list/internal/logging/events"
	"github.com/atomicstack/tmux-popup-list/internal/prompt"
	"github.com/atomicstack/tmux-popup-list/internal/source"
	"github.com/atomicstack/tmux-popup-list/internal/surface"
)

// maxDepth bounds bindings that dispatch other bindings.
const maxDepth = 8

var errNoHost = errors.New("list: no host available")

// Func is a named function reachable from "call:" mappings.
type Func func(ctx context.Context, s *Session) error

// Config wires a Manager to its collaborators. Host and Store may be nil.
type Config struct {
	Surface  surface.Surface
	Host     surface.Host
	Store    history.Store
	Settings config.Settings
}

// Manager owns the registered sources and the sessions started from them.
// The most recently started, resumed or focused session is current and
// receives keys.
type Manager struct {
	surface  surface.Surface
	host     surface.Host
	store    history.Store
	prompt   *prompt.Prompt
	mappings *Mappings

	// keyMu serializes key and mouse handling.
	keyMu sync.Mutex

	regMu   sync.RWMutex
	sources map[string]source.Source

	mu       sync.Mutex
	settings config.ListSettings
	sessions map[string]*Session
	current  *Session
	funcs    map[string]Func

	unsubscribe []func()
}

// NewManager returns a manager without sources.
func NewManager(cfg Config) *Manager {
	m := &Manager{
		surface:  cfg.Surface,
		host:     cfg.Host,
		store:    cfg.Store,
		mappings: NewMappings(cfg.Settings.List),
		sources:  map[string]source.Source{},
		settings: cfg.Settings.List,
		sessions: map[string]*Session{},
		funcs:    map[string]Func{},
	}
	var registers prompt.RegisterReader
	if cfg.Host != nil {
		registers = cfg.Host
	}
	m.prompt = prompt.New(registers)
	m.unsubscribe = append(m.unsubscribe, m.prompt.OnChange(m.onInput))
	if sub, ok := cfg.Surface.(surface.Subscriber); ok {
		m.unsubscribe = append(m.unsubscribe, sub.Subscribe(m.onSurfaceEvent))
	}
	return m
}

// Prompt returns the prompt shared by every session.
func (m *Manager) Prompt() *prompt.Prompt { return m.prompt }

// Mappings returns the key tables.
func (m *Manager) Mappings() *Mappings { return m.mappings }

// Register adds src. A source already registered under the same name is
// disposed and replaced.
func (m *Manager) Register(src source.Source) error {
	name := src.Name()
	if name == "" {
		return errors.New("list: source without a name")
	}
	m.regMu.Lock()
	old, replaced := m.sources[name]
	m.sources[name] = src
	m.regMu.Unlock()
	events.List.Register(name, replaced)
	if replaced {
		logging.Notice("list %q registered again, replacing the previous source", name)
		if d, ok := old.(source.Disposer); ok {
			d.Dispose()
		}
	}
	return nil
}

// Unregister removes the named source and disposes its session.
func (m *Manager) Unregister(name string) {
	m.regMu.Lock()
	src, ok := m.sources[name]
	delete(m.sources, name)
	m.regMu.Unlock()
	if !ok {
		return
	}
	if s := m.sessionNamed(name); s != nil {
		s.Dispose()
	}
	if d, ok := src.(source.Disposer); ok {
		d.Dispose()
	}
}

// Source returns the named source.
func (m *Manager) Source(name string) (source.Source, bool) {
	m.regMu.RLock()
	defer m.regMu.RUnlock()
	src, ok := m.sources[name]
	return src, ok
}

// Sources returns every registered source ordered by name.
func (m *Manager) Sources() []source.Source {
	m.regMu.RLock()
	out := make([]source.Source, 0, len(m.sources))
	for _, src := range m.sources {
		out = append(out, src)
	}
	m.regMu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// RegisterFunc makes fn reachable as "call:<name>".
func (m *Manager) RegisterFunc(name string, fn Func) {
	m.mu.Lock()
	m.funcs[name] = fn
	m.mu.Unlock()
}

// SetSettings applies new settings to the mappings and every session.
func (m *Manager) SetSettings(settings config.Settings) {
	if err := m.mappings.Configure(settings.List); err != nil {
		logging.Error(err)
	}
	m.mu.Lock()
	m.settings = settings.List
	sessions := m.sessionsLocked()
	m.mu.Unlock()
	for _, s := range sessions {
		s.SetSettings(settings.List)
	}
}

func (m *Manager) parse(args []string) (Args, source.Source, error) {
	parsed, err := ParseArgs(args)
	if err != nil {
		return Args{}, nil, err
	}
	src, ok := m.Source(parsed.Name)
	if !ok {
		return Args{}, nil, argErrorf("list %q not found", parsed.Name)
	}
	m.mu.Lock()
	defaults := m.settings.SourceDefaults(parsed.Name)
	m.mu.Unlock()
	if len(defaults.DefaultOptions) > 0 {
		combined := append(append([]string(nil), defaults.DefaultOptions...), args...)
		if parsed, err = ParseArgs(combined); err != nil {
			return Args{}, nil, err
		}
	}
	if len(parsed.ListArgs) == 0 && len(defaults.DefaultArgs) > 0 {
		parsed.ListArgs = append([]string(nil), defaults.DefaultArgs...)
	}
	if parsed.Options.Interactive && !source.IsInteractive(src) {
		return Args{}, nil, argErrorf("list %q does not support interactive mode", parsed.Name)
	}
	return parsed, src, nil
}

// Start parses args, replaces any session of the same list and starts a new
// one. Argument errors are *ArgError and leave every session untouched.
func (m *Manager) Start(ctx context.Context, args []string) error {
	parsed, src, err := m.parse(args)
	if err != nil {
		return err
	}
	events.List.Start(parsed.Name, args)

	if cur := m.Session(); cur != nil && cur.Name() != parsed.Name {
		if err := cur.Hide(ctx); err != nil {
			logging.Error(err)
		}
	}
	if old := m.sessionNamed(parsed.Name); old != nil {
		old.Dispose()
	}

	m.mu.Lock()
	deps := sessionDeps{
		surface:   m.surface,
		host:      m.host,
		prompt:    m.prompt,
		store:     m.store,
		settings:  m.settings,
		onDispose: m.forget,
	}
	s := newSession(deps, src, parsed)
	m.sessions[parsed.Name] = s
	m.current = s
	m.mu.Unlock()

	if err := s.Start(ctx); err != nil {
		return err
	}
	if m.store != nil {
		if err := m.store.Touch(ctx, parsed.Name); err != nil {
			logging.Error(err)
		}
	}
	return nil
}

// Resume reopens the named hidden session, or the current one when name is
// empty.
func (m *Manager) Resume(ctx context.Context, name string) error {
	var s *Session
	if name == "" {
		s = m.Session()
	} else {
		s = m.sessionNamed(name)
	}
	if s == nil {
		return ErrNoSession
	}
	if cur := m.Session(); cur != nil && cur != s {
		if err := cur.Hide(ctx); err != nil {
			logging.Error(err)
		}
	}
	m.mu.Lock()
	m.current = s
	m.mu.Unlock()
	return s.Resume(ctx)
}

// forget drops a disposed session.
func (m *Manager) forget(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[s.Name()] == s {
		delete(m.sessions, s.Name())
	}
	if m.current == s {
		m.current = nil
	}
}

// Session returns the current session or nil.
func (m *Manager) Session() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *Manager) sessionNamed(name string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[name]
}

func (m *Manager) sessionsLocked() []*Session {
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Sessions returns every live session ordered by list name.
func (m *Manager) Sessions() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionsLocked()
}

// IsActivated reports whether the current session shows its window.
func (m *Manager) IsActivated() bool {
	s := m.Session()
	return s != nil && s.State() == StateActive
}

// Pending reports whether the current session is still waiting for its
// first draw.
func (m *Manager) Pending() bool {
	s := m.Session()
	return s != nil && s.State() == StateStarting
}

// Focus makes the session owning window current.
func (m *Manager) Focus(window string) {
	if window == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.WindowID() == window {
			if m.current != s {
				m.current = s
				events.List.Focus(s.Name())
			}
			return
		}
	}
}

func (m *Manager) sessionByWindow(window string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.WindowID() == window {
			return s
		}
	}
	return nil
}

func (m *Manager) onSurfaceEvent(ev surface.Event) {
	switch ev.Kind {
	case surface.EventFocus:
		m.Focus(ev.Window)
	case surface.EventCursor:
		if s := m.sessionByWindow(ev.Window); s != nil {
			s.schedulePreview()
		}
	}
}

// HandleHostEvent reacts to changes around the list. Entering another window
// refreshes the origin of the current session; hidden sessions whose origin
// pane is gone are disposed.
func (m *Manager) HandleHostEvent(ctx context.Context, ev surface.Event) {
	switch ev.Kind {
	case surface.EventWindowEnter:
		if s := m.Session(); s != nil {
			s.refreshIdentity(ctx)
		}
	case surface.EventBufferUnload:
		for _, s := range m.Sessions() {
			if s.State() == StateHidden && s.origin() == ev.Window {
				s.Dispose()
			}
		}
	}
}

func (m *Manager) onInput(input string) {
	if s := m.Session(); s != nil && s.visible() {
		s.onInput(input)
	}
}

func (m *Manager) activeSession() (*Session, error) {
	s := m.Session()
	if s == nil || !s.visible() {
		return nil, ErrNoSession
	}
	return s, nil
}

// OnKey handles one key of the current session. Keys are handled one at a
// time.
func (m *Manager) OnKey(ctx context.Context, k string) error {
	m.keyMu.Lock()
	defer m.keyMu.Unlock()
	s, err := m.activeSession()
	if err != nil {
		return err
	}
	err = m.dispatch(ctx, s, m.prompt.Mode(), k)
	if s.visible() {
		s.RenderPrompt(ctx)
	}
	return err
}

// Insert types text into the prompt, as for a bracketed paste.
func (m *Manager) Insert(ctx context.Context, text string) error {
	m.keyMu.Lock()
	defer m.keyMu.Unlock()
	s, err := m.activeSession()
	if err != nil {
		return err
	}
	m.prompt.Insert(text)
	s.RenderPrompt(ctx)
	return nil
}

// OnMouse forwards a mouse event to the current session. A double click runs
// the default action.
func (m *Manager) OnMouse(ctx context.Context, ev listui.MouseEvent) error {
	m.keyMu.Lock()
	defer m.keyMu.Unlock()
	s, err := m.activeSession()
	if err != nil {
		return err
	}
	res, err := s.UI().OnMouse(ctx, ev)
	if err != nil {
		return err
	}
	if res == listui.MouseOpen {
		return s.DoAction(ctx, "")
	}
	return nil
}

func (m *Manager) dispatch(ctx context.Context, s *Session, mode source.Mode, k string) error {
	if mode == source.ModeNormal && s.Options().NumberSelect {
		if n, ok := numberKey(k); ok {
			return s.JumpTo(ctx, n)
		}
	}
	if b, ok := m.mappings.Resolve(mode, k); ok {
		events.Mapping.Resolve(string(mode), k, b.String())
		return m.execute(ctx, s, b, 0)
	}
	if mode == source.ModeInsert {
		if k == "space" {
			k = " "
		}
		if utf8.RuneCountInString(k) == 1 {
			m.prompt.Insert(k)
		}
		return nil
	}
	if kh, ok := m.surface.(surface.KeyHandler); ok && kh.HandleKey(ctx, k) {
		return nil
	}
	if m.host == nil {
		return nil
	}
	return m.host.FeedKeys(ctx, k, true)
}

func (m *Manager) execute(ctx context.Context, s *Session, b Binding, depth int) error {
	if depth > maxDepth {
		return fmt.Errorf("mapping %s: too many nested bindings", b)
	}
	switch b.Verb {
	case VerbDo:
		return m.do(ctx, s, b.Arg)
	case VerbPrompt:
		return m.promptAction(ctx, s, b.Arg)
	case VerbAction:
		return s.DoAction(ctx, b.Arg)
	case VerbEval:
		if m.host == nil {
			return errNoHost
		}
		out, err := m.host.Eval(ctx, b.Arg)
		if err != nil {
			return fmt.Errorf("eval %q: %w", b.Arg, err)
		}
		m.prompt.Insert(out)
		return nil
	case VerbCommand:
		if m.host == nil {
			return errNoHost
		}
		return m.host.Command(ctx, b.Arg)
	case VerbFeedkeys:
		if m.host == nil {
			return errNoHost
		}
		return m.host.FeedKeys(ctx, strings.Join(b.Keys, " "), false)
	case VerbNormal:
		for _, k := range b.Keys {
			if nested, ok := m.mappings.Resolve(source.ModeNormal, k); ok {
				if err := m.execute(ctx, s, nested, depth+1); err != nil {
					return err
				}
				continue
			}
			m.handleSurfaceKey(ctx, k)
		}
		return nil
	case VerbNormalBang:
		for _, k := range b.Keys {
			m.handleSurfaceKey(ctx, k)
		}
		return nil
	case VerbCall:
		m.mu.Lock()
		fn := m.funcs[b.Arg]
		m.mu.Unlock()
		if fn == nil {
			return fmt.Errorf("call %q: no such function", b.Arg)
		}
		return fn(ctx, s)
	case VerbExpr:
		if m.host == nil {
			return errNoHost
		}
		out, err := m.host.Eval(ctx, b.Arg)
		if err != nil {
			return fmt.Errorf("expr %q: %w", b.Arg, err)
		}
		nested, err := ParseBinding(strings.TrimSpace(out))
		if err != nil {
			return err
		}
		if nested.Verb == VerbExpr {
			return fmt.Errorf("expr %q: result %s is another expression", b.Arg, nested)
		}
		return m.execute(ctx, s, nested, depth+1)
	}
	return fmt.Errorf("mapping %s: unknown verb", b)
}

func (m *Manager) handleSurfaceKey(ctx context.Context, k string) {
	if kh, ok := m.surface.(surface.KeyHandler); ok {
		kh.HandleKey(ctx, k)
	}
}

func (m *Manager) do(ctx context.Context, s *Session, name string) error {
	switch name {
	case "refresh":
		s.ReloadItems(ctx)
	case "exit":
		s.Dispose()
	case "stop":
		s.Stop()
	case "cancel":
		return s.Hide(ctx)
	case "toggle":
		return s.UI().ToggleSelection(ctx)
	case "togglemode":
		s.ToggleMode(ctx)
	case "switch":
		s.SwitchMatcher(ctx)
	case "previous":
		return s.Previous(ctx)
	case "next":
		return s.Next(ctx)
	case "first":
		return s.First(ctx)
	case "last":
		return s.Last(ctx)
	case "defaultaction":
		return s.DoAction(ctx, "")
	case "chooseaction":
		return s.ChooseAction(ctx)
	case "selectall":
		return s.UI().SelectAll(ctx)
	case "clear":
		return s.UI().ClearSelection(ctx)
	case "preview":
		return s.TogglePreview(ctx)
	case "help":
		return s.Preview(ctx, "key bindings", m.mappings.Help(m.prompt.Mode()), -1)
	default:
		return fmt.Errorf("do:%s: unknown action", name)
	}
	return nil
}

func (m *Manager) promptAction(ctx context.Context, s *Session, name string) error {
	p := m.prompt
	switch name {
	case "previous":
		if entry, ok := s.History().Previous(); ok {
			p.SetInput(entry)
		}
	case "next":
		if entry, ok := s.History().Next(); ok {
			p.SetInput(entry)
		}
	case "start":
		p.MoveToStart()
	case "end":
		p.MoveToEnd()
	case "left":
		p.MoveLeft()
	case "right":
		p.MoveRight()
	case "leftword":
		p.MoveWordLeft()
	case "rightword":
		p.MoveWordRight()
	case "deletebackward":
		p.RemoveBackward()
	case "deleteforward":
		p.RemoveForward()
	case "removeword":
		p.RemoveWord()
	case "removetail":
		p.RemoveTail()
	case "removeahead":
		p.RemoveAhead()
	case "clear":
		p.Clear()
	case "paste":
		return p.Paste()
	case "insertregister":
		return p.PasteRegister(ctx, "")
	default:
		return fmt.Errorf("prompt:%s: unknown action", name)
	}
	return nil
}

// Cancel hides the current session.
func (m *Manager) Cancel(ctx context.Context) error {
	s := m.Session()
	if s == nil {
		return nil
	}
	return s.Hide(ctx)
}

// Reset disposes every session.
func (m *Manager) Reset() {
	for _, s := range m.Sessions() {
		s.Dispose()
	}
}

// Close disposes every session and source and detaches from the surface.
func (m *Manager) Close() {
	m.Reset()
	for _, fn := range m.unsubscribe {
		fn()
	}
	m.unsubscribe = nil
	m.regMu.Lock()
	sources := m.sources
	m.sources = map[string]source.Source{}
	m.regMu.Unlock()
	for _, src := range sources {
		if d, ok := src.(source.Disposer); ok {
			d.Dispose()
		}
	}
}

// numberKey maps the digit keys to lines 1 to 10, with 0 selecting the
// tenth line.
func numberKey(k string) (int, bool) {
	if len(k) != 1 || k[0] < '0' || k[0] > '9' {
		return 0, false
	}
	if k[0] == '0' {
		return 10, true
	}
	return int(k[0] - '0'), true
}
