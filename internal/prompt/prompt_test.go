package prompt

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atomicstack/tmux-popup-list/internal/source"
)

type fakeRegisters map[string]string

func (f fakeRegisters) Register(_ context.Context, name string) (string, error) {
	value, ok := f[name]
	if !ok {
		return "", errors.New("no register")
	}
	return value, nil
}

func TestRoundTrip(t *testing.T) {
	p := New(nil)
	p.Start("abc", source.ModeInsert)
	require.True(t, p.MoveToStart())
	require.True(t, p.Insert("x"))
	assert.Equal(t, "xabc", p.Input())
	assert.Equal(t, 1, p.Cursor())

	p.MoveToEnd()
	require.True(t, p.RemoveWord())
	assert.Equal(t, "", p.Input())
	assert.Equal(t, 0, p.Cursor())
}

func TestOneNotificationPerEdit(t *testing.T) {
	p := New(nil)
	var seen []string
	unsubscribe := p.OnChange(func(input string) { seen = append(seen, input) })

	p.Insert("hello world")
	p.MoveWordLeft()
	p.MoveLeft()
	p.RemoveBackward()
	p.RemoveTail()
	p.MoveToEnd()
	p.RemoveBackward()
	assert.Equal(t, []string{"hello world", "hell world", "hell", "hel"}, seen)

	unsubscribe()
	p.Insert("!")
	assert.Len(t, seen, 4)
}

func TestNoNotificationWithoutChange(t *testing.T) {
	p := New(nil)
	calls := 0
	p.OnChange(func(string) { calls++ })
	p.RemoveBackward()
	p.RemoveForward()
	p.RemoveWord()
	p.Insert("\x01�")
	assert.Zero(t, calls)
	assert.Equal(t, "", p.Input())
}

func TestInsertFiltersControlCharacters(t *testing.T) {
	p := New(nil)
	p.Insert("a\x1bb�c\x7f")
	assert.Equal(t, "abc", p.Input())
	assert.Equal(t, 3, p.Cursor())
}

func TestCursorClamps(t *testing.T) {
	p := New(nil)
	p.Start("ab", source.ModeInsert)
	assert.False(t, p.MoveRight())
	p.MoveToStart()
	assert.False(t, p.MoveLeft())
	assert.False(t, p.MoveWordLeft())
	assert.True(t, p.MoveWordRight())
	assert.Equal(t, 2, p.Cursor())
}

func TestRemoveAheadAndForward(t *testing.T) {
	p := New(nil)
	p.Start("one two", source.ModeInsert)
	p.MoveWordLeft()
	p.RemoveAhead()
	assert.Equal(t, "two", p.Input())
	assert.Equal(t, 0, p.Cursor())
	p.RemoveForward()
	assert.Equal(t, "wo", p.Input())
}

func TestWordDeletionSkipsTrailingSpaces(t *testing.T) {
	p := New(nil)
	p.Start("foo bar  ", source.ModeInsert)
	p.RemoveWord()
	assert.Equal(t, "foo ", p.Input())
}

func TestUnicodeEditing(t *testing.T) {
	p := New(nil)
	p.Insert("héllo")
	p.RemoveBackward()
	p.MoveLeft()
	p.MoveLeft()
	p.RemoveBackward()
	assert.Equal(t, "hll", p.Input())
	assert.Equal(t, 1, p.Cursor())
}

func TestToggleMode(t *testing.T) {
	p := New(nil)
	assert.Equal(t, source.ModeInsert, p.Mode())
	assert.Equal(t, source.ModeNormal, p.ToggleMode())
	assert.Equal(t, source.ModeInsert, p.ToggleMode())
}

func TestPasteRegister(t *testing.T) {
	p := New(fakeRegisters{"a": "from register\n"})
	require.NoError(t, p.PasteRegister(context.Background(), "a"))
	assert.Equal(t, "from register", p.Input())
	require.Error(t, p.PasteRegister(context.Background(), "missing"))
}

func TestPasteClipboard(t *testing.T) {
	orig := clipboardRead
	t.Cleanup(func() { clipboardRead = orig })
	clipboardRead = func() (string, error) { return "clip\tboard", nil }

	p := New(fakeRegisters{})
	require.NoError(t, p.PasteRegister(context.Background(), "+"))
	assert.Equal(t, "clip board", p.Input())
}

func TestSetInput(t *testing.T) {
	p := New(nil)
	var last string
	p.OnChange(func(input string) { last = input })
	require.True(t, p.SetInput("recalled"))
	assert.Equal(t, "recalled", last)
	assert.Equal(t, 8, p.Cursor())
	assert.False(t, p.SetInput("recalled"))
}
