package list

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/atomicstack/tmux-popup-list/internal/config"
	"github.com/atomicstack/tmux-popup-list/internal/history"
	"github.com/atomicstack/tmux-popup-list/internal/listui"
	"github.com/atomicstack/tmux-popup-list/internal/logging"
	"github.com/atomicstack/tmux-popup-list/internal/logging/events"
	"github.com/atomicstack/tmux-popup-list/internal/match"
	"github.com/atomicstack/tmux-popup-list/internal/prompt"
	"github.com/atomicstack/tmux-popup-list/internal/source"
	"github.com/atomicstack/tmux-popup-list/internal/surface"
	"github.com/atomicstack/tmux-popup-list/internal/worker"
)

// ReadyTimeout bounds how long Start waits for the first draw.
const ReadyTimeout = 3000 * time.Millisecond

const previewDelay = 50 * time.Millisecond

// State is the lifecycle position of a session.
type State int

const (
	StateCreated State = iota
	StateStarting
	StateActive
	StateHidden
	StateStopped
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarting:
		return "starting"
	case StateActive:
		return "active"
	case StateHidden:
		return "hidden"
	case StateStopped:
		return "stopped"
	default:
		return "disposed"
	}
}

type sessionDeps struct {
	surface   surface.Surface
	host      surface.Host
	prompt    *prompt.Prompt
	store     history.Store
	settings  config.ListSettings
	onDispose func(*Session)
}

// Session is one running instance of a list source.
type Session struct {
	id      string
	name    string
	src     source.Source
	args    []string
	surface surface.Surface
	host    surface.Host
	prompt  *prompt.Prompt
	worker  *worker.Worker
	ui      *listui.UI
	hist    *history.History

	ctx       context.Context
	cancel    context.CancelFunc
	onDispose func(*Session)

	// drawMu orders item draws against hiding and resuming the window.
	drawMu sync.Mutex

	mu            sync.Mutex
	state         State
	options       source.Options
	settings      config.ListSettings
	identity      surface.Identity
	input         string
	loading       bool
	total         int
	matched       int
	drawn         bool
	loadErr       error
	startReturned bool
	pumping       bool
	previewShown  bool
	previewTimer  *time.Timer

	ready       chan struct{}
	readyOnce   sync.Once
	pumpDone    chan struct{}
	disposeOnce sync.Once
}

func newSession(deps sessionDeps, src source.Source, args Args) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	opts := args.Options
	s := &Session{
		id:        uuid.NewString(),
		name:      args.Name,
		src:       src,
		args:      append([]string(nil), args.ListArgs...),
		surface:   deps.surface,
		host:      deps.host,
		prompt:    deps.prompt,
		hist:      history.New(args.Name, deps.store),
		ctx:       ctx,
		cancel:    cancel,
		onDispose: deps.onDispose,
		options:   opts,
		settings:  deps.settings,
		ready:     make(chan struct{}),
		pumpDone:  make(chan struct{}),
	}
	s.ui = listui.New(deps.surface, s.uiConfig(deps.settings, opts))
	s.ui.OnCursor(func(int) { s.schedulePreview() })
	s.worker = worker.New(src, queryFor(opts, opts.Input), worker.Config{
		Debounce:    deps.settings.Debounce(),
		Interactive: opts.Interactive,
	})
	return s
}

func (s *Session) uiConfig(cfg config.ListSettings, opts source.Options) listui.Config {
	return listui.Config{
		Title:      s.name,
		SignText:   cfg.SelectedSignText,
		LimitLines: cfg.LimitLines,
		Height:     cfg.Height,
		Position:   opts.Position,
	}
}

// queryFor builds the matcher query for input. The fuzzy matcher is smart
// case: input without upper case letters ignores case.
func queryFor(opts source.Options, input string) match.Query {
	ignore := opts.IgnoreCase
	if opts.Matcher == source.MatcherFuzzy && !ignore {
		ignore = strings.ToLower(input) == input
	}
	return match.Query{Text: input, Kind: opts.Matcher, IgnoreCase: ignore, Sort: opts.Sort}
}

func (s *Session) ID() string                { return s.id }
func (s *Session) Name() string              { return s.name }
func (s *Session) Source() source.Source     { return s.src }
func (s *Session) UI() *listui.UI            { return s.ui }
func (s *Session) Worker() *worker.Worker    { return s.worker }
func (s *Session) History() *history.History { return s.hist }
func (s *Session) WindowID() string          { return s.ui.WindowID() }

// Args returns the arguments handed to the source.
func (s *Session) Args() []string {
	return append([]string(nil), s.args...)
}

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Options returns the current options snapshot.
func (s *Session) Options() source.Options {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.options
}

// IsLoading reports whether the source is still producing items.
func (s *Session) IsLoading() bool {
	return s.worker.IsLoading()
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	events.List.State(s.name, s.id, state.String())
}

func (s *Session) visible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateStarting || s.state == StateActive
}

func (s *Session) signalReady() {
	s.readyOnce.Do(func() { close(s.ready) })
}

// Start loads the first items and waits, bounded by ReadyTimeout, for them
// to be drawn. A load that fails before anything is drawn disposes the
// session and returns the error.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateCreated {
		s.mu.Unlock()
		return fmt.Errorf("list %s: already started", s.name)
	}
	s.pumping = true
	opts := s.options
	s.mu.Unlock()
	s.setState(StateStarting)

	if s.host != nil {
		identity, err := s.host.Identity(ctx)
		if err != nil {
			logging.Error(fmt.Errorf("list %s: identity: %w", s.name, err))
		} else {
			s.mu.Lock()
			s.identity = identity
			s.mu.Unlock()
		}
	}
	s.hist.Load(ctx)
	s.prompt.Start(opts.Input, opts.Mode)
	s.RenderPrompt(ctx)

	go s.pump()
	s.worker.LoadItems(s.loadContext(opts.Input), false)

	timer := time.NewTimer(ReadyTimeout)
	defer timer.Stop()
	select {
	case <-s.ready:
	case <-timer.C:
		logging.Notice("list %s: nothing drawn after %s", s.name, ReadyTimeout)
	case <-ctx.Done():
		s.Dispose()
		return ctx.Err()
	}

	s.mu.Lock()
	s.startReturned = true
	err := s.loadErr
	s.mu.Unlock()
	if err != nil {
		s.Dispose()
		return fmt.Errorf("list %s: %w", s.name, err)
	}
	return nil
}

// pump applies worker events to the window. It never calls back into the
// worker, whose emitters may be blocked on the event channel.
func (s *Session) pump() {
	defer close(s.pumpDone)
	for ev := range s.worker.Events() {
		switch ev.Kind {
		case worker.EventItems:
			s.onItems(ev)
		case worker.EventLoading:
			s.mu.Lock()
			s.loading = ev.Loading
			s.mu.Unlock()
			s.updateStatus(s.ctx)
		case worker.EventError:
			s.onError(ev.Err)
		}
	}
}

func (s *Session) onItems(ev worker.Event) {
	s.drawMu.Lock()
	s.mu.Lock()
	s.total = ev.Total
	s.matched = len(ev.Items)
	state := s.state
	s.mu.Unlock()
	if state != StateStarting && state != StateActive {
		s.drawMu.Unlock()
		return
	}

	var err error
	if ev.Append && ev.Offset >= 0 && s.ui.Window() != nil && s.ui.Length() == ev.Offset {
		err = s.ui.AppendItems(s.ctx, ev.Items[ev.Offset:])
	} else {
		err = s.ui.DrawItems(s.ctx, ev.Items, 0, ev.Reload || ev.Append)
	}
	if err != nil {
		logging.Error(fmt.Errorf("list %s: draw: %w", s.name, err))
	}

	s.mu.Lock()
	first := !s.drawn
	s.drawn = true
	activate := s.state == StateStarting
	runFirst := first && s.options.First && len(ev.Items) > 0
	s.mu.Unlock()
	if activate {
		s.setState(StateActive)
	}
	s.drawMu.Unlock()

	s.updateStatus(s.ctx)
	s.signalReady()
	s.schedulePreview()
	if runFirst {
		go func() {
			if err := s.DoAction(s.ctx, ""); err != nil {
				logging.Error(err)
			}
		}()
	}
}

func (s *Session) onError(err error) {
	logging.Error(fmt.Errorf("list %s: load: %w", s.name, err))
	s.mu.Lock()
	empty := !s.drawn && s.state == StateStarting
	if empty {
		s.loadErr = err
	}
	returned := s.startReturned
	s.mu.Unlock()
	if empty {
		s.signalReady()
		if returned {
			go func() {
				s.surface.Message(context.Background(), err.Error(), true)
				s.Dispose()
			}()
		}
		return
	}
	s.surface.Message(s.ctx, err.Error(), true)
	s.updateStatus(s.ctx)
}

// loadContext builds the context handed to the source for input.
func (s *Session) loadContext(input string) source.Context {
	s.mu.Lock()
	opts, identity := s.options, s.identity
	s.mu.Unlock()
	return source.Context{
		Options:    opts,
		Args:       s.Args(),
		Input:      input,
		Cwd:        identity.Cwd,
		Window:     identity.Window,
		Buffer:     identity.Buffer,
		ListWindow: s.ui.WindowID(),
		Preview:    s,
	}
}

// onInput reacts to a prompt change.
func (s *Session) onInput(input string) {
	s.hist.Filter(input)
	s.mu.Lock()
	opts := s.options
	s.mu.Unlock()
	s.worker.SetQuery(queryFor(opts, input), s.loadContext(input))
}

// RenderPrompt shows the shared prompt with this session's indicator.
func (s *Session) RenderPrompt(ctx context.Context) {
	s.mu.Lock()
	indicator := s.settings.Indicator
	s.mu.Unlock()
	state := surface.PromptState{
		Indicator: indicator,
		Input:     s.prompt.Input(),
		Cursor:    s.prompt.Cursor(),
		Mode:      s.prompt.Mode(),
	}
	if err := s.surface.SetPrompt(ctx, state); err != nil {
		logging.Error(err)
	}
}

func (s *Session) updateStatus(ctx context.Context) {
	s.mu.Lock()
	status := surface.Status{
		Name:    s.name,
		Args:    append([]string(nil), s.args...),
		Mode:    s.options.Mode,
		Matcher: s.options.Matcher,
		Loading: s.loading,
		Total:   s.total,
		Matched: s.matched,
	}
	s.mu.Unlock()
	if err := s.ui.SetStatus(ctx, status); err != nil {
		logging.Error(err)
	}
}

func (s *Session) report(ctx context.Context, err error) {
	logging.Error(err)
	s.surface.Message(ctx, err.Error(), true)
}

// resolve fills in unresolved items when the source can.
func (s *Session) resolve(ctx context.Context, items []source.Item) []source.Item {
	r, ok := s.src.(source.Resolver)
	if !ok {
		return items
	}
	out := make([]source.Item, len(items))
	for i, item := range items {
		out[i] = item
		if item.Resolved {
			continue
		}
		resolved, err := r.ResolveItem(ctx, item)
		if err != nil {
			logging.Error(fmt.Errorf("list %s: resolve %q: %w", s.name, item.Label, err))
			continue
		}
		resolved.Resolved = true
		out[i] = resolved
		s.ui.Patch(resolved)
		s.worker.Patch(resolved)
	}
	return out
}

// DoAction runs the named action, or the default one when name is empty, on
// the visual range, the selection or the cursor item. Single item actions
// hide the list first unless --no-quit was given or the action persists.
func (s *Session) DoAction(ctx context.Context, name string) error {
	items := s.ui.Items(ctx)
	if len(items) == 0 {
		return nil
	}
	action, err := source.FindAction(s.src, name)
	if err != nil {
		s.report(ctx, err)
		return err
	}
	items = s.resolve(ctx, items)
	input := s.prompt.Input()
	lc := s.loadContext(input)
	closing := !s.Options().NoQuit && !action.Persist && !action.Multiple

	events.Action.Run(s.name, action.Name, len(items))
	s.hist.Add(ctx, input)
	if closing {
		if err := s.Hide(ctx); err != nil {
			logging.Error(err)
		}
	}
	if err := action.Invoke(ctx, lc, items); err != nil {
		events.Action.Error(err)
		s.report(ctx, err)
		return err
	}
	events.Action.Success(fmt.Sprintf("%s %s", s.name, action.Name))
	if action.Reload && !closing {
		s.ReloadItems(ctx)
	}
	return nil
}

// ChooseAction asks for one of the visible actions and runs it.
func (s *Session) ChooseAction(ctx context.Context) error {
	names := source.ActionNames(s.src)
	if len(names) == 0 {
		return fmt.Errorf("%w: %s has no actions", source.ErrNoAction, s.name)
	}
	idx, err := s.surface.Choose(ctx, "Choose action", names)
	if errors.Is(err, surface.ErrCancelled) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.DoAction(ctx, names[idx])
}

// First moves to the first item.
func (s *Session) First(ctx context.Context) error { return s.ui.MoveTo(ctx, 0) }

// Last moves to the last item.
func (s *Session) Last(ctx context.Context) error { return s.ui.MoveTo(ctx, s.ui.Length()-1) }

// Previous moves up one item, stopping at the first.
func (s *Session) Previous(ctx context.Context) error { return s.ui.MoveUp(ctx) }

// Next moves down one item, stopping at the last.
func (s *Session) Next(ctx context.Context) error { return s.ui.MoveDown(ctx) }

// JumpTo moves to 1-based item n. Out of range numbers are ignored.
func (s *Session) JumpTo(ctx context.Context, n int) error {
	if n < 1 || n > s.ui.Length() {
		return nil
	}
	return s.ui.MoveTo(ctx, n-1)
}

// Hide closes the window and stops loading. The session can be resumed.
func (s *Session) Hide(ctx context.Context) error {
	input := s.prompt.Input()
	s.mu.Lock()
	if s.state != StateStarting && s.state != StateActive {
		s.mu.Unlock()
		return nil
	}
	s.input = input
	shown := s.previewShown
	s.previewShown = false
	if s.previewTimer != nil {
		s.previewTimer.Stop()
	}
	s.mu.Unlock()
	s.setState(StateHidden)
	s.signalReady()

	s.worker.Stop()
	if shown {
		if err := s.surface.ClosePreview(ctx); err != nil {
			logging.Error(err)
		}
	}
	s.drawMu.Lock()
	defer s.drawMu.Unlock()
	return s.ui.Hide(ctx)
}

// Resume reopens a hidden session with its items, selection and input. The
// source is not asked for items again.
func (s *Session) Resume(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateHidden {
		s.mu.Unlock()
		return nil
	}
	input, mode := s.input, s.options.Mode
	s.mu.Unlock()

	s.prompt.Start(input, mode)
	s.drawMu.Lock()
	err := s.ui.Resume(ctx)
	if err == nil {
		s.setState(StateActive)
	}
	s.drawMu.Unlock()
	if err != nil {
		return fmt.Errorf("list %s: resume: %w", s.name, err)
	}
	s.RenderPrompt(ctx)
	s.updateStatus(ctx)
	return nil
}

// ReloadItems loads from the source again, keeping the cursor.
func (s *Session) ReloadItems(context.Context) {
	s.worker.LoadItems(s.loadContext(s.prompt.Input()), true)
}

// ToggleMode switches between insert and normal mode.
func (s *Session) ToggleMode(ctx context.Context) {
	mode := s.prompt.ToggleMode()
	s.mu.Lock()
	s.options = s.options.WithMode(mode)
	s.mu.Unlock()
	s.RenderPrompt(ctx)
	s.updateStatus(ctx)
}

// SwitchMatcher cycles fuzzy, strict and regex and refilters.
func (s *Session) SwitchMatcher(ctx context.Context) {
	s.mu.Lock()
	s.options = s.options.WithMatcher(s.options.Matcher.Next())
	opts := s.options
	s.mu.Unlock()
	input := s.prompt.Input()
	s.worker.SetQuery(queryFor(opts, input), s.loadContext(input))
	s.updateStatus(ctx)
}

// TogglePreview turns automatic preview of the cursor item on or off.
func (s *Session) TogglePreview(ctx context.Context) error {
	s.mu.Lock()
	on := !s.options.AutoPreview
	s.options.AutoPreview = on
	shown := s.previewShown
	if !on {
		s.previewShown = false
		if s.previewTimer != nil {
			s.previewTimer.Stop()
		}
	}
	s.mu.Unlock()
	if on {
		return s.preview(ctx)
	}
	if shown {
		return s.surface.ClosePreview(ctx)
	}
	return nil
}

func (s *Session) schedulePreview() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.options.AutoPreview || s.state != StateActive {
		return
	}
	if s.previewTimer != nil {
		s.previewTimer.Stop()
	}
	s.previewTimer = time.AfterFunc(previewDelay, func() {
		if s.State() != StateActive {
			return
		}
		if err := s.preview(s.ctx); err != nil {
			logging.Error(err)
		}
	})
}

// preview runs the source's preview action on the cursor item.
func (s *Session) preview(ctx context.Context) error {
	action, err := source.FindAction(s.src, "preview")
	if err != nil {
		return nil
	}
	item, ok := s.ui.Item(ctx)
	if !ok {
		return nil
	}
	items := s.resolve(ctx, []source.Item{item.Item})
	return action.Invoke(ctx, s.loadContext(s.prompt.Input()), items)
}

// Preview shows lines in the preview panel using the preview settings.
func (s *Session) Preview(ctx context.Context, title string, lines []string, highlight int) error {
	s.mu.Lock()
	cfg := s.settings
	s.previewShown = true
	s.mu.Unlock()
	return s.surface.ShowPreview(ctx, surface.Preview{
		Title:      title,
		Lines:      lines,
		Highlight:  highlight,
		Group:      cfg.PreviewHighlightGroup,
		Height:     cfg.PreviewHeight,
		SplitRight: cfg.PreviewSplitRight,
	})
}

// SetSettings applies changed settings from the next draw on.
func (s *Session) SetSettings(cfg config.ListSettings) {
	s.mu.Lock()
	s.settings = cfg
	opts := s.options
	s.mu.Unlock()
	s.ui.SetConfig(s.uiConfig(cfg, opts))
	s.worker.SetDebounce(cfg.Debounce())
}

// refreshIdentity rereads where the list was opened from.
func (s *Session) refreshIdentity(ctx context.Context) {
	if s.host == nil {
		return
	}
	identity, err := s.host.Identity(ctx)
	if err != nil {
		logging.Error(err)
		return
	}
	s.mu.Lock()
	s.identity = identity
	s.mu.Unlock()
}

// origin returns the pane the list was opened from.
func (s *Session) origin() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity.Buffer
}

// Stop cancels loading. A session stopped before its first draw never
// becomes active.
func (s *Session) Stop() {
	s.worker.Stop()
	s.mu.Lock()
	starting := s.state == StateStarting && !s.drawn
	s.mu.Unlock()
	if starting {
		s.setState(StateStopped)
		s.signalReady()
	}
}

// Dispose stops everything and closes the window. The session cannot be
// used afterwards.
func (s *Session) Dispose() {
	s.disposeOnce.Do(func() {
		s.mu.Lock()
		pumping := s.pumping
		shown := s.previewShown
		s.previewShown = false
		if s.previewTimer != nil {
			s.previewTimer.Stop()
		}
		s.mu.Unlock()
		s.setState(StateDisposed)

		s.worker.Dispose()
		if pumping {
			<-s.pumpDone
		}
		s.cancel()
		s.signalReady()

		ctx := context.Background()
		if shown {
			if err := s.surface.ClosePreview(ctx); err != nil {
				logging.Error(err)
			}
		}
		s.drawMu.Lock()
		if err := s.ui.Reset(ctx); err != nil {
			logging.Error(err)
		}
		s.drawMu.Unlock()
		if s.onDispose != nil {
			s.onDispose(s)
		}
	})
}
