package list

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/atomicstack/tmux-popup-list/internal/config"
	"github.com/atomicstack/tmux-popup-list/internal/listui"
	"github.com/atomicstack/tmux-popup-list/internal/logging"
	"github.com/atomicstack/tmux-popup-list/internal/match"
	"github.com/atomicstack/tmux-popup-list/internal/source"
	"github.com/atomicstack/tmux-popup-list/internal/surface"
)

type fakeHost struct {
	mu        sync.Mutex
	fed       []string
	commands  []string
	evals     map[string]string
	registers map[string]string
}

func (h *fakeHost) Register(_ context.Context, name string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.registers[name], nil
}

func (h *fakeHost) SetRegister(_ context.Context, name, value string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.registers == nil {
		h.registers = map[string]string{}
	}
	h.registers[name] = value
	return nil
}

func (h *fakeHost) Command(_ context.Context, command string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.commands = append(h.commands, command)
	return nil
}

func (h *fakeHost) Eval(_ context.Context, expr string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out, ok := h.evals[expr]
	if !ok {
		return "", fmt.Errorf("unknown expression %q", expr)
	}
	return out, nil
}

func (h *fakeHost) FeedKeys(_ context.Context, keys string, _ bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fed = append(h.fed, keys)
	return nil
}

func (h *fakeHost) Identity(context.Context) (surface.Identity, error) {
	return surface.Identity{Cwd: "/tmp", Window: "@1", Buffer: "%1"}, nil
}

func (h *fakeHost) snapshot() (fed, commands []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.fed...), append([]string(nil), h.commands...)
}

func mousePress(line int) listui.MouseEvent {
	return listui.MouseEvent{Phase: listui.MousePress, Line: line}
}

func mouseRelease(line int) listui.MouseEvent {
	return listui.MouseEvent{Phase: listui.MouseRelease, Line: line}
}

func itemsOf(labels ...string) []source.Item {
	out := make([]source.Item, len(labels))
	for i, label := range labels {
		out[i] = source.Item{Label: label}
	}
	return out
}

func labels(results []match.Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Label
	}
	return out
}

func staticSource(name string, labels ...string) *source.Basic {
	return &source.Basic{
		ListName: name,
		Load: func(context.Context, source.Context) (source.Result, error) {
			return source.Items(itemsOf(labels...)), nil
		},
	}
}

// recorder collects the labels each action call received.
type recorder struct {
	mu    sync.Mutex
	calls [][]string
}

func (r *recorder) action(name string) source.Action {
	return source.Action{Name: name, Run: func(_ context.Context, _ source.Context, items []source.Item) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		call := make([]string, len(items))
		for i, item := range items {
			call[i] = item.Label
		}
		r.calls = append(r.calls, call)
		return nil
	}}
}

func (r *recorder) get() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]string(nil), r.calls...)
}

func newManager(settings config.Settings, host surface.Host) (*Manager, *surface.Screen) {
	screen := surface.NewScreen(80, 40, nil)
	return NewManager(Config{Surface: screen, Host: host, Settings: settings}), screen
}

func TestStartRejectingSourceNeverActivates(t *testing.T) {
	defer goleak.VerifyNone(t)
	cases := map[string]func(context.Context, source.Context) (source.Result, error){
		"error": func(context.Context, source.Context) (source.Result, error) {
			return nil, errors.New("x")
		},
		"deferred": func(context.Context, source.Context) (source.Result, error) {
			return source.Resolved(nil, errors.New("x")), nil
		},
		"stream": func(ctx context.Context, _ source.Context) (source.Result, error) {
			em := source.NewEmitter(ctx)
			go em.Fail(errors.New("x"))
			return em, nil
		},
	}
	for name, load := range cases {
		t.Run(name, func(t *testing.T) {
			m, screen := newManager(config.DefaultSettings(), nil)
			defer m.Close()
			require.NoError(t, m.Register(&source.Basic{ListName: "broken", Load: load}))

			err := m.Start(context.Background(), []string{"broken"})
			require.Error(t, err)
			assert.Contains(t, err.Error(), "x")
			assert.False(t, m.IsActivated())
			assert.Empty(t, m.Sessions())
			assert.False(t, screen.Frame().HasWindow)
		})
	}
}

func TestStreamingSourceShowsItemsWhileLoading(t *testing.T) {
	defer goleak.VerifyNone(t)
	m, _ := newManager(config.DefaultSettings(), nil)
	defer m.Close()

	var producers sync.WaitGroup
	defer producers.Wait()
	require.NoError(t, m.Register(&source.Basic{
		ListName: "stream",
		Load: func(ctx context.Context, _ source.Context) (source.Result, error) {
			em := source.NewEmitter(ctx)
			producers.Add(1)
			go func() {
				defer producers.Done()
				for i := 0; i < 5; i++ {
					em.Emit(itemsOf(fmt.Sprintf("item %d", i)))
					select {
					case <-time.After(300 * time.Millisecond):
					case <-em.Context().Done():
						return
					}
				}
				<-em.Context().Done()
			}()
			return em, nil
		},
	}))

	require.NoError(t, m.Start(context.Background(), []string{"stream"}))
	require.True(t, m.IsActivated())
	s := m.Session()

	time.Sleep(1500 * time.Millisecond)
	assert.Greater(t, s.UI().Length(), 2)
	assert.True(t, s.IsLoading())

	s.Stop()
	assert.Eventually(t, func() bool { return !s.IsLoading() }, time.Second, 10*time.Millisecond)
	assert.Equal(t, StateActive, s.State())
}

func TestStrictIgnoreCaseStart(t *testing.T) {
	defer goleak.VerifyNone(t)
	m, screen := newManager(config.DefaultSettings(), nil)
	defer m.Close()
	require.NoError(t, m.Register(staticSource("words", "foo", "Bar", "option")))

	require.NoError(t, m.Start(context.Background(), []string{"--strict", "--ignore-case", "--input=bar", "words"}))
	s := m.Session()
	assert.Equal(t, []string{"Bar"}, labels(s.UI().All()))
	assert.Equal(t, "bar", screen.Frame().Prompt.Input)
	assert.Equal(t, source.MatcherStrict, screen.Frame().Status.Matcher)
}

func TestTypingRefiltersItems(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	m, screen := newManager(config.DefaultSettings(), nil)
	defer m.Close()
	require.NoError(t, m.Register(staticSource("words", "foo", "bar", "baz")))
	require.NoError(t, m.Start(ctx, []string{"words"}))

	require.NoError(t, m.OnKey(ctx, "b"))
	require.NoError(t, m.OnKey(ctx, "a"))
	s := m.Session()
	assert.Eventually(t, func() bool { return len(s.UI().All()) == 2 }, time.Second, 10*time.Millisecond)
	assert.ElementsMatch(t, []string{"bar", "baz"}, labels(s.UI().All()))
	assert.Equal(t, "ba", screen.Frame().Prompt.Input)

	require.NoError(t, m.OnKey(ctx, "backspace"))
	require.NoError(t, m.OnKey(ctx, "backspace"))
	assert.Eventually(t, func() bool { return len(s.UI().All()) == 3 }, time.Second, 10*time.Millisecond)
}

func TestNumberSelectMovesCursor(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	rec := &recorder{}
	m, screen := newManager(config.DefaultSettings(), nil)
	defer m.Close()
	src := staticSource("letters", "a", "b", "c", "d", "e")
	src.Default = "open"
	src.ActionList = []source.Action{rec.action("open")}
	require.NoError(t, m.Register(src))

	require.NoError(t, m.Start(ctx, []string{"-N", "letters"}))
	assert.Equal(t, source.ModeNormal, m.Prompt().Mode())

	require.NoError(t, m.OnKey(ctx, "3"))
	assert.Equal(t, 2, m.Session().UI().Index())
	assert.Equal(t, 3, screen.Frame().Cursor)
	require.NoError(t, m.OnKey(ctx, "9"))
	assert.Equal(t, 2, m.Session().UI().Index())
	assert.Empty(t, rec.get())
}

func TestDefaultActionRunsOnceWithCursorItem(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	rec := &recorder{}
	m, screen := newManager(config.DefaultSettings(), nil)
	defer m.Close()
	src := staticSource("letters", "a", "b", "c")
	src.Default = "open"
	src.ActionList = []source.Action{rec.action("open"), rec.action("other")}
	require.NoError(t, m.Register(src))
	require.NoError(t, m.Start(ctx, []string{"letters"}))

	require.NoError(t, m.OnKey(ctx, "down"))
	require.NoError(t, m.OnKey(ctx, "enter"))
	assert.Equal(t, [][]string{{"b"}}, rec.get())
	assert.Equal(t, StateHidden, m.Session().State())
	assert.False(t, m.IsActivated())
	assert.False(t, screen.Frame().HasWindow)
}

func TestNoQuitKeepsListOpen(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	rec := &recorder{}
	m, _ := newManager(config.DefaultSettings(), nil)
	defer m.Close()
	src := staticSource("letters", "a", "b")
	src.Default = "open"
	src.ActionList = []source.Action{rec.action("open")}
	require.NoError(t, m.Register(src))
	require.NoError(t, m.Start(ctx, []string{"--no-quit", "letters"}))

	require.NoError(t, m.OnKey(ctx, "enter"))
	assert.Equal(t, [][]string{{"a"}}, rec.get())
	assert.True(t, m.IsActivated())
}

func TestActionErrorsAreJoined(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	m, screen := newManager(config.DefaultSettings(), nil)
	defer m.Close()
	src := staticSource("letters", "a", "b", "c")
	src.ActionList = []source.Action{{Name: "fail", Run: func(_ context.Context, _ source.Context, items []source.Item) error {
		if items[0].Label == "b" {
			return nil
		}
		return fmt.Errorf("fail %s", items[0].Label)
	}}}
	require.NoError(t, m.Register(src))
	require.NoError(t, m.Start(ctx, []string{"letters"}))
	require.NoError(t, m.Session().UI().SelectAll(ctx))

	err := m.Session().DoAction(ctx, "fail")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fail a")
	assert.Contains(t, err.Error(), "fail c")
	assert.NotContains(t, err.Error(), "fail b")
	assert.True(t, screen.Frame().IsError)
}

func TestUnknownActionIsReported(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	m, screen := newManager(config.DefaultSettings(), nil)
	defer m.Close()
	require.NoError(t, m.Register(staticSource("letters", "a")))
	require.NoError(t, m.Start(ctx, []string{"letters"}))

	err := m.Session().DoAction(ctx, "missing")
	assert.ErrorIs(t, err, source.ErrNoAction)
	assert.True(t, screen.Frame().IsError)
	assert.True(t, m.IsActivated())
}

func TestChooseAction(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	open, other := &recorder{}, &recorder{}
	m, screen := newManager(config.DefaultSettings(), nil)
	defer m.Close()
	src := staticSource("letters", "a", "b")
	src.ActionList = []source.Action{open.action("open"), other.action("other")}
	require.NoError(t, m.Register(src))
	require.NoError(t, m.Start(ctx, []string{"letters"}))

	done := make(chan error, 1)
	go func() { done <- m.OnKey(ctx, "tab") }()
	require.Eventually(t, screen.Choosing, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"open", "other"}, screen.Frame().Choice.Options)
	screen.ResolveChoice(1, false)
	require.NoError(t, <-done)
	assert.Empty(t, open.get())
	assert.Equal(t, [][]string{{"a"}}, other.get())
}

func TestRegisterDuplicateDisposesPrevious(t *testing.T) {
	m, _ := newManager(config.DefaultSettings(), nil)
	defer m.Close()
	var disposed atomic.Int32
	first := staticSource("letters", "a")
	first.DisposeFunc = func() { disposed.Add(1) }
	second := staticSource("letters", "b")

	require.NoError(t, m.Register(first))
	require.NoError(t, m.Register(second))
	assert.EqualValues(t, 1, disposed.Load())
	got, ok := m.Source("letters")
	require.True(t, ok)
	assert.Same(t, second, got)
	assert.Error(t, m.Register(&source.Basic{}))
}

func TestSourcesAreSortedAndUnregistered(t *testing.T) {
	m, _ := newManager(config.DefaultSettings(), nil)
	defer m.Close()
	for _, name := range []string{"panes", "files", "lists"} {
		require.NoError(t, m.Register(staticSource(name)))
	}
	var names []string
	for _, src := range m.Sources() {
		names = append(names, src.Name())
	}
	assert.Equal(t, []string{"files", "lists", "panes"}, names)

	m.Unregister("files")
	_, ok := m.Source("files")
	assert.False(t, ok)
	assert.Len(t, m.Sources(), 2)
}

func TestStartArgumentErrors(t *testing.T) {
	m, _ := newManager(config.DefaultSettings(), nil)
	defer m.Close()
	require.NoError(t, m.Register(staticSource("letters", "a")))
	for name, args := range map[string][]string{
		"unknown list":     {"nope"},
		"no name":          {"--normal"},
		"bad flag":         {"--bogus", "letters"},
		"regex and strict": {"-R", "-S", "letters"},
		"not interactive":  {"-I", "letters"},
	} {
		t.Run(name, func(t *testing.T) {
			err := m.Start(context.Background(), args)
			var argErr *ArgError
			require.ErrorAs(t, err, &argErr)
			assert.Nil(t, m.Session())
		})
	}
}

func TestSourceDefaultsFromSettings(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	settings := config.DefaultSettings()
	settings.List.Source = map[string]config.SourceSettings{
		"letters": {DefaultOptions: []string{"--normal", "--strict"}, DefaultArgs: []string{"all"}},
	}
	m, _ := newManager(settings, nil)
	defer m.Close()
	var seen []string
	var mu sync.Mutex
	require.NoError(t, m.Register(&source.Basic{ListName: "letters", Load: func(_ context.Context, lc source.Context) (source.Result, error) {
		mu.Lock()
		seen = append([]string(nil), lc.Args...)
		mu.Unlock()
		return source.Items(itemsOf("a")), nil
	}}))

	require.NoError(t, m.Start(ctx, []string{"letters"}))
	opts := m.Session().Options()
	assert.Equal(t, source.ModeNormal, opts.Mode)
	assert.Equal(t, source.MatcherStrict, opts.Matcher)
	assert.Equal(t, []string{"all"}, m.Session().Args())
	mu.Lock()
	assert.Equal(t, []string{"all"}, seen)
	mu.Unlock()

	require.NoError(t, m.Start(ctx, []string{"letters", "some"}))
	assert.Equal(t, []string{"some"}, m.Session().Args())
	assert.Len(t, m.Sessions(), 1)
}

func TestResumeKeepsItemsWithoutReload(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	var loads atomic.Int32
	m, screen := newManager(config.DefaultSettings(), nil)
	defer m.Close()
	require.NoError(t, m.Register(&source.Basic{ListName: "letters", Load: func(context.Context, source.Context) (source.Result, error) {
		loads.Add(1)
		return source.Items(itemsOf("a", "b", "c")), nil
	}}))
	require.NoError(t, m.Start(ctx, []string{"letters"}))
	require.NoError(t, m.OnKey(ctx, "down"))
	require.NoError(t, m.OnKey(ctx, "esc"))
	assert.Equal(t, StateHidden, m.Session().State())
	assert.ErrorIs(t, m.OnKey(ctx, "down"), ErrNoSession)

	require.NoError(t, m.Resume(ctx, "letters"))
	assert.True(t, m.IsActivated())
	assert.EqualValues(t, 1, loads.Load())
	assert.Equal(t, []string{"a", "b", "c"}, labels(m.Session().UI().All()))
	assert.Equal(t, 2, screen.Frame().Cursor)

	assert.ErrorIs(t, m.Resume(ctx, "missing"), ErrNoSession)
}

func TestStartingAnotherListHidesCurrent(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	m, screen := newManager(config.DefaultSettings(), nil)
	defer m.Close()
	require.NoError(t, m.Register(staticSource("letters", "a")))
	require.NoError(t, m.Register(staticSource("digits", "1", "2")))

	require.NoError(t, m.Start(ctx, []string{"letters"}))
	letters := m.Session()
	require.NoError(t, m.Start(ctx, []string{"digits"}))
	assert.Equal(t, StateHidden, letters.State())
	assert.Equal(t, "digits", m.Session().Name())
	assert.Equal(t, "digits", screen.Frame().Title)

	require.NoError(t, m.Resume(ctx, "letters"))
	assert.Equal(t, "letters", m.Session().Name())
	assert.Equal(t, "letters", screen.Frame().Title)
	assert.Len(t, m.Sessions(), 2)

	m.Reset()
	assert.Empty(t, m.Sessions())
	assert.Nil(t, m.Session())
}

func TestStopBeforeFirstDraw(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	m, screen := newManager(config.DefaultSettings(), nil)
	defer m.Close()
	require.NoError(t, m.Register(&source.Basic{ListName: "slow", Load: func(ctx context.Context, _ source.Context) (source.Result, error) {
		return source.Defer(ctx, func(ctx context.Context) ([]source.Item, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}), nil
	}}))

	done := make(chan error, 1)
	go func() { done <- m.Start(ctx, []string{"slow"}) }()
	require.Eventually(t, func() bool {
		s := m.Session()
		return s != nil && s.IsLoading()
	}, time.Second, 5*time.Millisecond)
	m.Session().Stop()

	require.NoError(t, <-done)
	assert.Equal(t, StateStopped, m.Session().State())
	assert.False(t, m.IsActivated())
	assert.False(t, screen.Frame().HasWindow)
}

func TestUserMappingsAndPassthrough(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	host := &fakeHost{evals: map[string]string{"pick": "do:last", "#{pane_id}": "%3"}}
	settings := config.DefaultSettings()
	settings.List.InsertMappings = map[string]string{
		"ctrl+x": "command:split-window -h",
		"ctrl+y": "eval:#{pane_id}",
	}
	settings.List.NormalMappings = map[string]string{
		"L": "expr:pick",
		"J": "normal:j j",
		"Q": "feedkeys:C-c Enter",
	}
	m, screen := newManager(settings, host)
	defer m.Close()
	require.NoError(t, m.Register(staticSource("letters", "a", "b", "c", "d")))
	require.NoError(t, m.Start(ctx, []string{"letters"}))

	require.NoError(t, m.OnKey(ctx, "ctrl+x"))
	require.NoError(t, m.OnKey(ctx, "ctrl+o"))
	require.Equal(t, source.ModeNormal, m.Prompt().Mode())
	require.NoError(t, m.OnKey(ctx, "L"))
	assert.Equal(t, 4, screen.Frame().Cursor)
	require.NoError(t, m.OnKey(ctx, "g"))
	require.NoError(t, m.OnKey(ctx, "J"))
	assert.Equal(t, 3, screen.Frame().Cursor)
	require.NoError(t, m.OnKey(ctx, "z"))
	require.NoError(t, m.OnKey(ctx, "Q"))

	fed, commands := host.snapshot()
	assert.Equal(t, []string{"split-window -h"}, commands)
	assert.Equal(t, []string{"z", "C-c Enter"}, fed)

	require.NoError(t, m.OnKey(ctx, "i"))
	require.NoError(t, m.OnKey(ctx, "ctrl+y"))
	assert.Equal(t, "%3", m.Prompt().Input())
}

func TestSetSettingsRebuildsMappings(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	host := &fakeHost{}
	m, _ := newManager(config.DefaultSettings(), host)
	defer m.Close()
	require.NoError(t, m.Register(staticSource("letters", "a")))
	require.NoError(t, m.Start(ctx, []string{"letters"}))

	require.NoError(t, m.OnKey(ctx, "ctrl+g"))
	_, commands := host.snapshot()
	assert.Empty(t, commands)

	settings := config.DefaultSettings()
	settings.List.InsertMappings = map[string]string{"ctrl+g": "command:display-message hi", "ctrl+b": "bogus"}
	m.SetSettings(settings)
	require.NoError(t, m.OnKey(ctx, "ctrl+g"))
	_, commands = host.snapshot()
	assert.Equal(t, []string{"display-message hi"}, commands)
	assert.True(t, m.IsActivated())
}

func TestCallBindingRunsRegisteredFunc(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	settings := config.DefaultSettings()
	settings.List.NormalMappings = map[string]string{"X": "call:mark", "Y": "call:missing"}
	m, _ := newManager(settings, nil)
	defer m.Close()
	var called *Session
	m.RegisterFunc("mark", func(_ context.Context, s *Session) error {
		called = s
		return nil
	})
	require.NoError(t, m.Register(staticSource("letters", "a")))
	require.NoError(t, m.Start(ctx, []string{"--normal", "letters"}))

	require.NoError(t, m.OnKey(ctx, "X"))
	assert.Same(t, m.Session(), called)
	assert.Error(t, m.OnKey(ctx, "Y"))
}

func TestHelpShowsBindings(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	m, screen := newManager(config.DefaultSettings(), nil)
	defer m.Close()
	require.NoError(t, m.Register(staticSource("letters", "a")))
	require.NoError(t, m.Start(ctx, []string{"--normal", "letters"}))

	require.NoError(t, m.OnKey(ctx, "?"))
	preview := screen.Frame().Preview
	require.NotNil(t, preview)
	assert.Equal(t, "key bindings", preview.Title)
	assert.NotEmpty(t, preview.Lines)
}

func TestSelectionKeysInNormalMode(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	rec := &recorder{}
	m, screen := newManager(config.DefaultSettings(), nil)
	defer m.Close()
	src := staticSource("letters", "a", "b", "c")
	src.Default = "open"
	src.ActionList = []source.Action{rec.action("open")}
	require.NoError(t, m.Register(src))
	require.NoError(t, m.Start(ctx, []string{"--normal", "letters"}))

	require.NoError(t, m.OnKey(ctx, " "))
	require.NoError(t, m.OnKey(ctx, "j"))
	require.NoError(t, m.OnKey(ctx, "t"))
	assert.Len(t, screen.Frame().Signs, 2)
	require.NoError(t, m.OnKey(ctx, "enter"))
	assert.Equal(t, [][]string{{"a"}, {"c"}}, rec.get())
}

func TestMouseDoubleClickOpens(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	rec := &recorder{}
	m, _ := newManager(config.DefaultSettings(), nil)
	defer m.Close()
	src := staticSource("letters", "a", "b")
	src.Default = "open"
	src.ActionList = []source.Action{rec.action("open")}
	require.NoError(t, m.Register(src))
	require.NoError(t, m.Start(ctx, []string{"letters"}))

	for i := 0; i < 2; i++ {
		require.NoError(t, m.OnMouse(ctx, mousePress(2)))
		require.NoError(t, m.OnMouse(ctx, mouseRelease(2)))
	}
	assert.Equal(t, [][]string{{"b"}}, rec.get())
}

func TestFocusSwitchesCurrentSession(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	m, screen := newManager(config.DefaultSettings(), nil)
	defer m.Close()
	require.NoError(t, m.Register(staticSource("letters", "a")))
	require.NoError(t, m.Register(staticSource("digits", "1")))
	require.NoError(t, m.Start(ctx, []string{"letters"}))
	letters := m.Session()
	require.NoError(t, m.Start(ctx, []string{"digits"}))

	m.Focus(letters.WindowID())
	assert.NotSame(t, letters, m.Session(), "hidden sessions own no window")
	screen.Focus(true)
	assert.Equal(t, "digits", m.Session().Name())
}

func TestBufferUnloadDisposesHiddenSessions(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	m, _ := newManager(config.DefaultSettings(), &fakeHost{})
	defer m.Close()
	require.NoError(t, m.Register(staticSource("letters", "a")))
	require.NoError(t, m.Start(ctx, []string{"letters"}))

	m.HandleHostEvent(ctx, surface.Event{Kind: surface.EventBufferUnload, Window: "%1"})
	require.NotNil(t, m.Session(), "visible sessions survive")

	require.NoError(t, m.Cancel(ctx))
	m.HandleHostEvent(ctx, surface.Event{Kind: surface.EventBufferUnload, Window: "%9"})
	require.Len(t, m.Sessions(), 1)
	m.HandleHostEvent(ctx, surface.Event{Kind: surface.EventBufferUnload, Window: "%1"})
	assert.Empty(t, m.Sessions())
}

func TestOnKeyWithoutSession(t *testing.T) {
	m, _ := newManager(config.DefaultSettings(), nil)
	defer m.Close()
	assert.ErrorIs(t, m.OnKey(context.Background(), "a"), ErrNoSession)
	assert.ErrorIs(t, m.Insert(context.Background(), "a"), ErrNoSession)
	assert.NoError(t, m.Cancel(context.Background()))
}

// lazySource fills in the location of an item on demand.
type lazySource struct {
	*source.Basic
	resolves atomic.Int32
}

func (s *lazySource) ResolveItem(_ context.Context, item source.Item) (source.Item, error) {
	s.resolves.Add(1)
	item.Location = "/src/" + item.Label
	return item, nil
}

func TestResolvedItemsAreKept(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	m, _ := newManager(config.DefaultSettings(), nil)
	defer m.Close()

	var mu sync.Mutex
	var locations []string
	src := &lazySource{Basic: staticSource("lazy", "a", "b")}
	src.Default = "open"
	src.ActionList = []source.Action{{Name: "open", Run: func(_ context.Context, _ source.Context, items []source.Item) error {
		mu.Lock()
		defer mu.Unlock()
		for _, item := range items {
			locations = append(locations, item.Location)
		}
		return nil
	}}}
	require.NoError(t, m.Register(src))
	require.NoError(t, m.Start(ctx, []string{"--no-quit", "lazy"}))

	require.NoError(t, m.OnKey(ctx, "enter"))
	require.NoError(t, m.OnKey(ctx, "enter"))
	assert.Equal(t, int32(1), src.resolves.Load())
	mu.Lock()
	assert.Equal(t, []string{"/src/a", "/src/a"}, locations)
	mu.Unlock()

	item, ok := m.Session().UI().Item(ctx)
	require.True(t, ok)
	assert.True(t, item.Resolved)
	assert.Equal(t, "/src/a", item.Location)
	for _, total := range m.Session().Worker().Total() {
		if total.Label == "a" {
			assert.True(t, total.Resolved)
		}
	}
}

func TestNumberSelectZeroPicksTenthLine(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	m, _ := newManager(config.DefaultSettings(), nil)
	defer m.Close()
	labels := make([]string, 12)
	for i := range labels {
		labels[i] = fmt.Sprintf("item%d", i+1)
	}
	require.NoError(t, m.Register(staticSource("many", labels...)))
	require.NoError(t, m.Start(ctx, []string{"-N", "many"}))

	require.NoError(t, m.OnKey(ctx, "0"))
	assert.Equal(t, 9, m.Session().UI().Index())
	require.NoError(t, m.OnKey(ctx, "4"))
	assert.Equal(t, 3, m.Session().UI().Index())
}

func TestMalformedMappingsAreLoggedAtStartup(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	t.Cleanup(logging.Use(zap.New(core)))

	settings := config.DefaultSettings()
	settings.List.InsertMappings = map[string]string{"ctrl+x": "do:nonsense"}
	m, _ := newManager(settings, nil)
	defer m.Close()

	entries := logs.FilterLevelExact(zap.ErrorLevel).All()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].ContextMap()["error"], "nonsense")
}
