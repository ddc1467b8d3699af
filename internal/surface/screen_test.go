package surface

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atomicstack/tmux-popup-list/internal/source"
)

func lines(texts ...string) []Line {
	out := make([]Line, len(texts))
	for i, text := range texts {
		out[i] = Line{Text: text}
	}
	return out
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) add(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

func TestWindowStack(t *testing.T) {
	ctx := context.Background()
	s := NewScreen(80, 24, nil)
	rec := &recorder{}
	unsubscribe := s.Subscribe(rec.add)
	defer unsubscribe()

	first, err := s.OpenWindow(ctx, WindowSpec{Title: "first"})
	require.NoError(t, err)
	second, err := s.OpenWindow(ctx, WindowSpec{Title: "second"})
	require.NoError(t, err)
	assert.Equal(t, second.ID(), s.ActiveWindow())

	require.NoError(t, second.Close(ctx))
	assert.Equal(t, first.ID(), s.ActiveWindow())
	assert.Equal(t, "first", s.Frame().Title)
	assert.ErrorIs(t, second.Close(ctx), ErrWindowGone)
	assert.ErrorIs(t, second.SetLines(ctx, 0, lines("x")), ErrWindowGone)
	assert.Equal(t, []EventKind{EventFocus, EventFocus, EventFocus}, rec.kinds())
}

func TestSetLinesAppendsAndTruncates(t *testing.T) {
	ctx := context.Background()
	s := NewScreen(80, 24, nil)
	w, err := s.OpenWindow(ctx, WindowSpec{Height: 5})
	require.NoError(t, err)

	require.NoError(t, w.SetLines(ctx, 0, lines("a", "b", "c")))
	require.NoError(t, w.PlaceSign(ctx, 3, "*"))
	cursor, err := w.Cursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, cursor)

	require.NoError(t, w.SetLines(ctx, 3, lines("d")))
	assert.Len(t, s.Frame().Lines, 4)

	require.NoError(t, w.SetLines(ctx, 0, lines("z")))
	frame := s.Frame()
	assert.Equal(t, lines("z"), frame.Lines)
	assert.Empty(t, frame.Signs)
}

func TestHandleKeyMotions(t *testing.T) {
	ctx := context.Background()
	s := NewScreen(80, 8, nil)
	assert.False(t, s.HandleKey(ctx, "j"))

	w, err := s.OpenWindow(ctx, WindowSpec{Height: 4})
	require.NoError(t, err)
	require.NoError(t, w.SetLines(ctx, 0, lines("1", "2", "3", "4", "5", "6", "7", "8")))

	rec := &recorder{}
	defer s.Subscribe(rec.add)()

	assert.True(t, s.HandleKey(ctx, "G"))
	frame := s.Frame()
	assert.Equal(t, 8, frame.Cursor)
	assert.Equal(t, 4, frame.Offset)

	assert.True(t, s.HandleKey(ctx, "ctrl+u"))
	assert.Equal(t, 6, s.Frame().Cursor)
	assert.True(t, s.HandleKey(ctx, "g"))
	assert.Equal(t, 1, s.Frame().Cursor)
	assert.Equal(t, 0, s.Frame().Offset)
	assert.True(t, s.HandleKey(ctx, "k"))
	assert.Equal(t, 1, s.Frame().Cursor)
	assert.False(t, s.HandleKey(ctx, "x"))
	assert.Equal(t, []EventKind{EventCursor, EventCursor, EventCursor, EventCursor}, rec.kinds())
}

func TestVisualRange(t *testing.T) {
	ctx := context.Background()
	s := NewScreen(80, 24, nil)
	w, err := s.OpenWindow(ctx, WindowSpec{})
	require.NoError(t, err)
	require.NoError(t, w.SetLines(ctx, 0, lines("a", "b", "c", "d")))
	require.NoError(t, w.SetCursor(ctx, 3))

	s.HandleKey(ctx, "v")
	s.HandleKey(ctx, "k")
	s.HandleKey(ctx, "k")
	start, end, ok, err := w.Visual(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, [2]int{1, 3}, [2]int{start, end})
	assert.Equal(t, [2]int{1, 3}, s.Frame().Visual)

	s.HandleKey(ctx, "v")
	_, _, ok, err = w.Visual(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestChooseResolves(t *testing.T) {
	s := NewScreen(80, 24, nil)
	type answer struct {
		idx int
		err error
	}
	done := make(chan answer, 1)
	go func() {
		idx, err := s.Choose(context.Background(), "action", []string{"open", "yank", "delete"})
		done <- answer{idx, err}
	}()
	require.Eventually(t, s.Choosing, time.Second, 5*time.Millisecond)

	s.MoveChoice(1)
	s.MoveChoice(5)
	assert.Equal(t, 2, s.Frame().Choice.Cursor)
	s.MoveChoice(-1)
	s.ResolveChoice(-1, true)

	got := <-done
	require.NoError(t, got.err)
	assert.Equal(t, 1, got.idx)
	assert.False(t, s.Choosing())
	assert.Nil(t, s.Frame().Choice)
}

func TestChooseCancel(t *testing.T) {
	s := NewScreen(80, 24, nil)
	done := make(chan error, 1)
	go func() {
		_, err := s.Choose(context.Background(), "", []string{"a"})
		done <- err
	}()
	require.Eventually(t, s.Choosing, time.Second, 5*time.Millisecond)
	s.ResolveChoice(-1, false)
	assert.ErrorIs(t, <-done, ErrCancelled)

	_, err := s.Choose(context.Background(), "", nil)
	assert.ErrorIs(t, err, ErrCancelled)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Choose(ctx, "", []string{"a"})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestLineAt(t *testing.T) {
	ctx := context.Background()
	s := NewScreen(80, 10, nil)
	assert.Equal(t, 0, s.LineAt(0))
	w, err := s.OpenWindow(ctx, WindowSpec{Height: 3})
	require.NoError(t, err)
	require.NoError(t, w.SetLines(ctx, 0, lines("a", "b", "c", "d", "e")))
	require.NoError(t, w.SetCursor(ctx, 5))

	assert.Equal(t, 3, s.LineAt(0))
	assert.Equal(t, 5, s.LineAt(2))
	assert.Equal(t, 0, s.LineAt(3))
}

func TestTabPositionFillsScreen(t *testing.T) {
	ctx := context.Background()
	s := NewScreen(80, 20, nil)
	_, err := s.OpenWindow(ctx, WindowSpec{Height: 4, Position: source.PositionTab})
	require.NoError(t, err)
	assert.Equal(t, 17, s.Frame().ViewHeight)
}

func TestNotifyOnChange(t *testing.T) {
	ctx := context.Background()
	var mu sync.Mutex
	count := 0
	s := NewScreen(80, 24, func() {
		mu.Lock()
		count++
		mu.Unlock()
	})
	require.NoError(t, s.SetPrompt(ctx, PromptState{Input: "x"}))
	require.NoError(t, s.ShowPreview(ctx, Preview{Lines: []string{"p"}}))
	require.NoError(t, s.ClosePreview(ctx))
	s.Message(ctx, "done", false)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 4, count)
	assert.Equal(t, "done", s.Frame().Message)
}

func TestFocusEvents(t *testing.T) {
	ctx := context.Background()
	s := NewScreen(80, 24, nil)
	w, err := s.OpenWindow(ctx, WindowSpec{})
	require.NoError(t, err)
	rec := &recorder{}
	defer s.Subscribe(rec.add)()
	s.Focus(false)
	s.Focus(true)
	assert.Equal(t, []EventKind{EventBlur, EventFocus}, rec.kinds())
	rec.mu.Lock()
	assert.Equal(t, w.ID(), rec.events[0].Window)
	rec.mu.Unlock()
}
