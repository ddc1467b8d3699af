// Package source defines the contract between list sources and the list
// machinery: items, options, load contexts, actions and the three shapes a
// load may return.
package source

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoAction is returned when a source has no action of the requested name.
var ErrNoAction = errors.New("source: no such action")

// Span marks a byte range of an item label rendered with a highlight group.
type Span struct {
	Start int
	End   int
	Group string
}

// Item is one selectable entry produced by a source.
type Item struct {
	Label          string
	FilterText     string
	Data           interface{}
	AnsiHighlights []Span
	Location       string
	Resolved       bool
}

// Text returns the text the matcher runs against.
func (i Item) Text() string {
	if i.FilterText != "" {
		return i.FilterText
	}
	return i.Label
}

// SameItem reports whether a and b denote the same entry. Resolving an item
// may fill in its location, so only the label and filter text are compared.
func SameItem(a, b Item) bool {
	return a.Label == b.Label && a.FilterText == b.FilterText
}

// Context is rebuilt for every load and handed to Source.LoadItems.
type Context struct {
	Options    Options
	Args       []string
	Input      string
	Cwd        string
	Window     string
	Buffer     string
	ListWindow string
	// Preview is set for action calls and shows content in the preview
	// panel.
	Preview Previewer
}

// Previewer shows lines in the preview panel. highlight is a 0-based line to
// emphasise, or -1.
type Previewer interface {
	Preview(ctx context.Context, title string, lines []string, highlight int) error
}

// Action is a named operation over one or more items. When Multiple is set
// the action is invoked once with every target item, otherwise once per item.
type Action struct {
	Name     string
	Multiple bool
	Persist  bool
	Reload   bool
	Hidden   bool
	Run      func(ctx context.Context, lc Context, items []Item) error
}

// Invoke runs the action over items following its Multiple flag. Errors of
// individual items are collected so one failure does not stop the rest.
func (a Action) Invoke(ctx context.Context, lc Context, items []Item) error {
	if a.Run == nil {
		return fmt.Errorf("%w: %s", ErrNoAction, a.Name)
	}
	if a.Multiple {
		return a.Run(ctx, lc, items)
	}
	var errs []error
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := a.Run(ctx, lc, []Item{item}); err != nil {
			errs = append(errs, fmt.Errorf("%s %q: %w", a.Name, item.Label, err))
		}
	}
	return errors.Join(errs...)
}

// Source provides items and actions for one list.
type Source interface {
	Name() string
	Description() string
	DefaultAction() string
	Actions() []Action
	LoadItems(ctx context.Context, lc Context) (Result, error)
}

// Resolver fills in details of an item on demand.
type Resolver interface {
	ResolveItem(ctx context.Context, item Item) (Item, error)
}

// Disposer releases resources held by a source when it is unregistered.
type Disposer interface {
	Dispose()
}

// Interactive is implemented by sources that filter server side for each
// prompt change instead of relying on the local matcher.
type Interactive interface {
	Interactive() bool
}

// OptionsProvider lists the source specific arguments a source accepts.
type OptionsProvider interface {
	Options() []ArgOption
}

// ArgOption documents one source argument.
type ArgOption struct {
	Name        string
	Description string
}

// IsInteractive reports whether src filters server side.
func IsInteractive(src Source) bool {
	if in, ok := src.(Interactive); ok {
		return in.Interactive()
	}
	return false
}

// FindAction returns the action named name. An empty name selects the
// source's default action.
func FindAction(src Source, name string) (Action, error) {
	if name == "" {
		name = src.DefaultAction()
	}
	for _, action := range src.Actions() {
		if action.Name == name {
			return action, nil
		}
	}
	return Action{}, fmt.Errorf("%w: %s", ErrNoAction, name)
}

// ActionNames lists the names of the visible actions of src in order.
func ActionNames(src Source) []string {
	actions := src.Actions()
	names := make([]string, 0, len(actions))
	for _, action := range actions {
		if action.Hidden {
			continue
		}
		names = append(names, action.Name)
	}
	return names
}

// Basic is a Source assembled from plain values, handy for small built-in
// lists and tests.
type Basic struct {
	ListName    string
	Desc        string
	Default     string
	ActionList  []Action
	Load        func(ctx context.Context, lc Context) (Result, error)
	Server      bool
	DisposeFunc func()
}

func (b *Basic) Name() string          { return b.ListName }
func (b *Basic) Description() string   { return b.Desc }
func (b *Basic) DefaultAction() string { return b.Default }
func (b *Basic) Actions() []Action     { return b.ActionList }
func (b *Basic) Interactive() bool     { return b.Server }

func (b *Basic) LoadItems(ctx context.Context, lc Context) (Result, error) {
	if b.Load == nil {
		return Items(nil), nil
	}
	return b.Load(ctx, lc)
}

func (b *Basic) Dispose() {
	if b.DisposeFunc != nil {
		b.DisposeFunc()
	}
}
