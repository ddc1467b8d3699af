package sources

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/shlex"

	"github.com/atomicstack/tmux-popup-list/internal/format/table"
	"github.com/atomicstack/tmux-popup-list/internal/source"
	"github.com/atomicstack/tmux-popup-list/internal/tmux"
)

var (
	fetchBuffersFn     = tmux.FetchBuffers
	fetchKeyBindingsFn = tmux.FetchKeyBindings
	pasteBufferFn      = tmux.PasteBuffer
	deleteBufferFn     = tmux.DeleteBuffer
	showBufferFn       = tmux.ShowBuffer
	runTmuxFn          = tmux.Run
)

// Buffers lists the paste buffers.
func Buffers(socket string) source.Source {
	return &source.Basic{
		ListName: "buffers",
		Desc:     "tmux paste buffers",
		Default:  "paste",
		ActionList: []source.Action{
			{Name: "paste", Run: func(ctx context.Context, lc source.Context, items []source.Item) error {
				return pasteBufferFn(socket, dataString(items[0]), lc.Buffer)
			}},
			{Name: "delete", Multiple: true, Reload: true, Run: func(ctx context.Context, lc source.Context, items []source.Item) error {
				return killAll(socket, deleteBufferFn)(ctx, lc, items)
			}},
			{Name: "yank", Multiple: true, Run: func(ctx context.Context, lc source.Context, items []source.Item) error {
				parts := make([]string, 0, len(items))
				for _, item := range items {
					content, err := showBufferFn(socket, dataString(item))
					if err != nil {
						return err
					}
					parts = append(parts, content)
				}
				return writeClipboard(strings.Join(parts, "\n"))
			}},
			tmuxPreview(socket, tmux.PreviewBuffer, dataString, nil),
		},
		Load: func(ctx context.Context, lc source.Context) (source.Result, error) {
			return source.Defer(ctx, func(context.Context) ([]source.Item, error) {
				buffers, err := fetchBuffersFn(socket)
				if err != nil {
					return nil, err
				}
				return bufferItems(buffers), nil
			}), nil
		},
	}
}

func bufferItems(buffers []tmux.Buffer) []source.Item {
	rows := make([][]string, 0, len(buffers))
	for _, b := range buffers {
		sample := strings.ReplaceAll(b.Sample, "\t", " ")
		rows = append(rows, []string{b.Name, fmt.Sprintf("%d bytes", b.Size), sample})
	}
	labels := table.Format(rows, []table.Alignment{table.AlignLeft, table.AlignRight, table.AlignLeft})
	items := make([]source.Item, len(labels))
	for i, label := range labels {
		items[i] = source.Item{Label: label, Data: buffers[i].Name, Resolved: true}
	}
	return items
}

// KeyBindings lists the key bindings of every key table.
func KeyBindings(socket string) source.Source {
	return &source.Basic{
		ListName: "keybindings",
		Desc:     "tmux key bindings",
		Default:  "run",
		ActionList: []source.Action{
			{Name: "run", Run: func(ctx context.Context, lc source.Context, items []source.Item) error {
				binding, ok := items[0].Data.(tmux.KeyBinding)
				if !ok {
					return fmt.Errorf("invalid key binding selection")
				}
				return runKeyBinding(socket, binding)
			}},
			yank(func(item source.Item) string {
				if b, ok := item.Data.(tmux.KeyBinding); ok {
					return b.Command
				}
				return item.Label
			}),
		},
		Load: func(ctx context.Context, lc source.Context) (source.Result, error) {
			return source.Defer(ctx, func(context.Context) ([]source.Item, error) {
				bindings, err := fetchKeyBindingsFn(socket)
				if err != nil {
					return nil, err
				}
				return keyBindingItems(bindings), nil
			}), nil
		},
	}
}

func keyBindingItems(bindings []tmux.KeyBinding) []source.Item {
	rows := make([][]string, 0, len(bindings))
	for _, b := range bindings {
		rows = append(rows, []string{b.Table, b.Key, b.Command})
	}
	labels := table.Format(rows, nil)
	items := make([]source.Item, len(labels))
	for i, label := range labels {
		items[i] = source.Item{Label: label, Data: bindings[i], Resolved: true}
	}
	return items
}

// runKeyBinding runs the command of a binding. Copy-mode table commands need
// the pane to be in copy mode first.
func runKeyBinding(socket string, b tmux.KeyBinding) error {
	parts, err := shlex.Split(b.Command)
	if err != nil {
		return fmt.Errorf("parse %q: %w", b.Command, err)
	}
	if len(parts) == 0 {
		return fmt.Errorf("empty key binding")
	}
	if strings.HasPrefix(b.Table, "copy-mode") {
		if _, err := runTmuxFn(socket, "copy-mode"); err != nil {
			return err
		}
	}
	_, err = runTmuxFn(socket, parts...)
	return err
}
