// Package sources holds the lists that ship with tmux-popup-list: the tmux
// objects of the server, paste buffers, key bindings, files and a grep over
// the working directory.
package sources

import (
	"context"
	"fmt"
	"strings"

	"github.com/atotto/clipboard"

	"github.com/atomicstack/tmux-popup-list/internal/history"
	"github.com/atomicstack/tmux-popup-list/internal/source"
	"github.com/atomicstack/tmux-popup-list/internal/tmux"
)

// Launcher opens lists. It is implemented by the list manager.
type Launcher interface {
	Sources() []source.Source
	Start(ctx context.Context, args []string) error
	Resume(ctx context.Context, name string) error
}

// Env is what the built-in sources need from the application.
type Env struct {
	Socket   string
	Store    history.Store
	Launcher Launcher
}

// Builtin returns every built-in source.
func Builtin(env Env) []source.Source {
	out := []source.Source{
		Sessions(env.Socket),
		Windows(env.Socket),
		Panes(env.Socket),
		Buffers(env.Socket),
		KeyBindings(env.Socket),
		Files(env.Socket),
		Grep(env.Socket),
	}
	if env.Launcher != nil {
		out = append(out, Lists(env.Launcher, env.Store))
	}
	return out
}

var (
	writeClipboard = clipboard.WriteAll

	switchToFn      = tmux.SwitchTo
	killSessionFn   = tmux.KillSession
	killWindowFn    = tmux.KillWindow
	killPaneFn      = tmux.KillPane
	fetchSessionsFn = tmux.FetchSessions
	fetchWindowsFn  = tmux.FetchWindows
	fetchPanesFn    = tmux.FetchPanes
)

// yank copies the data text of every item to the system clipboard, one per
// line.
func yank(text func(source.Item) string) source.Action {
	return source.Action{
		Name:     "yank",
		Multiple: true,
		Run: func(ctx context.Context, lc source.Context, items []source.Item) error {
			lines := make([]string, 0, len(items))
			for _, item := range items {
				lines = append(lines, text(item))
			}
			if err := writeClipboard(strings.Join(lines, "\n")); err != nil {
				return fmt.Errorf("write clipboard: %w", err)
			}
			return nil
		},
	}
}

// previewAction runs fn for the first item and shows its lines.
func previewAction(fn func(ctx context.Context, item source.Item) (string, []string, int, error)) source.Action {
	return source.Action{
		Name:    "preview",
		Persist: true,
		Run: func(ctx context.Context, lc source.Context, items []source.Item) error {
			if len(items) == 0 || lc.Preview == nil {
				return nil
			}
			title, lines, highlight, err := fn(ctx, items[0])
			if err != nil {
				return err
			}
			return lc.Preview.Preview(ctx, title, lines, highlight)
		},
	}
}

func dataString(item source.Item) string {
	if s, ok := item.Data.(string); ok {
		return s
	}
	return item.Label
}
