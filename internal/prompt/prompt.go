// Package prompt implements the single line input shared by list sessions.
package prompt

import (
	"context"
	"strings"
	"sync"
	"unicode"

	"github.com/atotto/clipboard"

	"github.com/atomicstack/tmux-popup-list/internal/logging/events"
	"github.com/atomicstack/tmux-popup-list/internal/source"
)

// ChangeFunc observes input changes.
type ChangeFunc func(input string)

// RegisterReader reads named registers from the host.
type RegisterReader interface {
	Register(ctx context.Context, name string) (string, error)
}

// clipboardRead is swapped in tests.
var clipboardRead = clipboard.ReadAll

// Prompt owns the input text, its cursor and the key mode.
type Prompt struct {
	mu        sync.Mutex
	input     []rune
	cursor    int
	mode      source.Mode
	listeners map[int]ChangeFunc
	nextID    int
	registers RegisterReader
}

// New returns an empty prompt in insert mode.
func New(registers RegisterReader) *Prompt {
	return &Prompt{mode: source.ModeInsert, registers: registers, listeners: map[int]ChangeFunc{}}
}

// OnChange registers fn for input changes and returns a function removing it.
func (p *Prompt) OnChange(fn ChangeFunc) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

// Start resets the prompt to input and mode without notifying listeners.
func (p *Prompt) Start(input string, mode source.Mode) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.input = []rune(input)
	p.cursor = len(p.input)
	p.mode = mode
}

// Input returns the current text.
func (p *Prompt) Input() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return string(p.input)
}

// Cursor returns the rune offset of the cursor.
func (p *Prompt) Cursor() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor
}

// Mode returns the current key mode.
func (p *Prompt) Mode() source.Mode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mode
}

// SetMode switches the key mode.
func (p *Prompt) SetMode(mode source.Mode) {
	p.mu.Lock()
	p.mode = mode
	p.mu.Unlock()
	events.Prompt.Mode(string(mode))
}

// ToggleMode flips between insert and normal mode and returns the new mode.
func (p *Prompt) ToggleMode() source.Mode {
	next := source.ModeNormal
	if p.Mode() == source.ModeNormal {
		next = source.ModeInsert
	}
	p.SetMode(next)
	return next
}

// edit applies fn under the lock and notifies listeners once if the input
// changed. fn returns the new input and cursor.
func (p *Prompt) edit(fn func(input []rune, cursor int) ([]rune, int)) bool {
	p.mu.Lock()
	before := string(p.input)
	input, cursor := fn(append([]rune(nil), p.input...), p.cursor)
	if cursor < 0 {
		cursor = 0
	}
	if cursor > len(input) {
		cursor = len(input)
	}
	p.input = input
	p.cursor = cursor
	after := string(p.input)
	changed := after != before
	listeners := make([]ChangeFunc, 0, len(p.listeners))
	if changed {
		for _, fn := range p.listeners {
			listeners = append(listeners, fn)
		}
	}
	p.mu.Unlock()
	if changed {
		events.Prompt.Change(after, cursor)
		for _, fn := range listeners {
			fn(after)
		}
	}
	return changed
}

func (p *Prompt) move(fn func(input []rune, cursor int) int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	next := fn(p.input, p.cursor)
	if next < 0 {
		next = 0
	}
	if next > len(p.input) {
		next = len(p.input)
	}
	if next == p.cursor {
		return false
	}
	p.cursor = next
	return true
}

// SetInput replaces the whole input and moves the cursor to its end.
func (p *Prompt) SetInput(text string) bool {
	clean := []rune(Sanitize(text))
	return p.edit(func([]rune, int) ([]rune, int) {
		return clean, len(clean)
	})
}

// Insert adds text at the cursor. Control characters and the replacement
// character are dropped.
func (p *Prompt) Insert(text string) bool {
	clean := []rune(Sanitize(text))
	if len(clean) == 0 {
		return false
	}
	return p.edit(func(input []rune, cursor int) ([]rune, int) {
		out := make([]rune, 0, len(input)+len(clean))
		out = append(out, input[:cursor]...)
		out = append(out, clean...)
		out = append(out, input[cursor:]...)
		return out, cursor + len(clean)
	})
}

// Paste inserts the system clipboard contents.
func (p *Prompt) Paste() error {
	text, err := clipboardRead()
	if err != nil {
		return err
	}
	p.Insert(strings.TrimRight(text, "\r\n"))
	return nil
}

// PasteRegister inserts the contents of the named register. The "+" and "*"
// registers read the system clipboard.
func (p *Prompt) PasteRegister(ctx context.Context, name string) error {
	if name == "+" || name == "*" || p.registers == nil {
		return p.Paste()
	}
	text, err := p.registers.Register(ctx, name)
	if err != nil {
		return err
	}
	p.Insert(strings.TrimRight(text, "\r\n"))
	return nil
}

// RemoveBackward deletes the rune before the cursor.
func (p *Prompt) RemoveBackward() bool {
	return p.edit(func(input []rune, cursor int) ([]rune, int) {
		if cursor == 0 {
			return input, cursor
		}
		return append(input[:cursor-1], input[cursor:]...), cursor - 1
	})
}

// RemoveForward deletes the rune under the cursor.
func (p *Prompt) RemoveForward() bool {
	return p.edit(func(input []rune, cursor int) ([]rune, int) {
		if cursor >= len(input) {
			return input, cursor
		}
		return append(input[:cursor], input[cursor+1:]...), cursor
	})
}

// RemoveWord deletes the word before the cursor, skipping trailing spaces.
func (p *Prompt) RemoveWord() bool {
	return p.edit(func(input []rune, cursor int) ([]rune, int) {
		i := wordStart(input, cursor)
		return append(input[:i], input[cursor:]...), i
	})
}

// RemoveTail deletes from the cursor to the end.
func (p *Prompt) RemoveTail() bool {
	return p.edit(func(input []rune, cursor int) ([]rune, int) {
		return input[:cursor], cursor
	})
}

// RemoveAhead deletes from the start to the cursor.
func (p *Prompt) RemoveAhead() bool {
	return p.edit(func(input []rune, cursor int) ([]rune, int) {
		return input[cursor:], 0
	})
}

// Clear empties the input.
func (p *Prompt) Clear() bool {
	return p.edit(func([]rune, int) ([]rune, int) { return nil, 0 })
}

// MoveLeft moves one rune left.
func (p *Prompt) MoveLeft() bool {
	return p.move(func(_ []rune, cursor int) int { return cursor - 1 })
}

// MoveRight moves one rune right.
func (p *Prompt) MoveRight() bool {
	return p.move(func(_ []rune, cursor int) int { return cursor + 1 })
}

// MoveToStart moves to the beginning of the input.
func (p *Prompt) MoveToStart() bool {
	return p.move(func([]rune, int) int { return 0 })
}

// MoveToEnd moves past the last rune.
func (p *Prompt) MoveToEnd() bool {
	return p.move(func(input []rune, _ int) int { return len(input) })
}

// MoveWordLeft moves to the start of the previous word.
func (p *Prompt) MoveWordLeft() bool {
	return p.move(wordStart)
}

// MoveWordRight moves past the end of the next word.
func (p *Prompt) MoveWordRight() bool {
	return p.move(func(input []rune, cursor int) int {
		i := cursor
		for i < len(input) && unicode.IsSpace(input[i]) {
			i++
		}
		for i < len(input) && !unicode.IsSpace(input[i]) {
			i++
		}
		return i
	})
}

func wordStart(input []rune, cursor int) int {
	i := cursor
	for i > 0 && unicode.IsSpace(input[i-1]) {
		i--
	}
	for i > 0 && !unicode.IsSpace(input[i-1]) {
		i--
	}
	return i
}

// Sanitize drops control characters and U+FFFD from text. Line breaks and
// tabs become spaces.
func Sanitize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			b.WriteRune(' ')
		case r == unicode.ReplacementChar:
		case unicode.IsControl(r):
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
