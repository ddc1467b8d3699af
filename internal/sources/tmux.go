package sources

import (
	"context"
	"errors"
	"fmt"

	"github.com/atomicstack/tmux-popup-list/internal/format/table"
	"github.com/atomicstack/tmux-popup-list/internal/source"
	"github.com/atomicstack/tmux-popup-list/internal/tmux"
)

var (
	loadPreviewFn = tmux.LoadPreview
)

// Sessions lists the sessions of the server.
func Sessions(socket string) source.Source {
	return &source.Basic{
		ListName: "sessions",
		Desc:     "tmux sessions",
		Default:  "switch",
		ActionList: []source.Action{
			{Name: "switch", Run: switchTo(socket)},
			{Name: "kill", Multiple: true, Reload: true, Run: killAll(socket, killSessionFn)},
			tmuxPreview(socket, tmux.PreviewSession, dataString, nil),
			yank(dataString),
		},
		Load: func(ctx context.Context, lc source.Context) (source.Result, error) {
			return source.Defer(ctx, func(context.Context) ([]source.Item, error) {
				sessions, err := fetchSessionsFn(socket)
				if err != nil {
					return nil, err
				}
				return sessionItems(sessions), nil
			}), nil
		},
	}
}

func sessionItems(sessions []tmux.Session) []source.Item {
	rows := make([][]string, 0, len(sessions))
	for _, s := range sessions {
		status := ""
		if s.Attached {
			status = "attached"
		}
		current := ""
		if s.Current {
			current = "current"
		}
		windows := fmt.Sprintf("%d windows", s.Windows)
		if s.Windows == 1 {
			windows = "1 window"
		}
		rows = append(rows, []string{s.Name, windows, status, current})
	}
	labels := table.Format(rows, []table.Alignment{table.AlignLeft, table.AlignRight, table.AlignLeft, table.AlignLeft})
	items := make([]source.Item, len(labels))
	for i, label := range labels {
		items[i] = source.Item{Label: label, Data: sessions[i].Name, Resolved: true}
	}
	return items
}

// Windows lists the windows of every session.
func Windows(socket string) source.Source {
	return &source.Basic{
		ListName: "windows",
		Desc:     "tmux windows",
		Default:  "switch",
		ActionList: []source.Action{
			{Name: "switch", Run: switchTo(socket)},
			{Name: "kill", Multiple: true, Reload: true, Run: killAll(socket, killWindowFn)},
			tmuxPreview(socket, tmux.PreviewWindow, dataString, location),
			yank(location),
		},
		Load: func(ctx context.Context, lc source.Context) (source.Result, error) {
			return source.Defer(ctx, func(context.Context) ([]source.Item, error) {
				windows, err := fetchWindowsFn(socket)
				if err != nil {
					return nil, err
				}
				return windowItems(windows), nil
			}), nil
		},
	}
}

func windowItems(windows []tmux.Window) []source.Item {
	rows := make([][]string, 0, len(windows))
	for _, w := range windows {
		marker := ""
		switch {
		case w.Current:
			marker = "current"
		case w.Active:
			marker = "active"
		}
		rows = append(rows, []string{w.Target, w.Name, marker})
	}
	labels := table.Format(rows, []table.Alignment{table.AlignLeft, table.AlignLeft, table.AlignLeft})
	items := make([]source.Item, len(labels))
	for i, label := range labels {
		items[i] = source.Item{Label: label, Data: windows[i].ID, Location: windows[i].Target, Resolved: true}
	}
	return items
}

// Panes lists every pane of the server.
func Panes(socket string) source.Source {
	return &source.Basic{
		ListName: "panes",
		Desc:     "tmux panes",
		Default:  "switch",
		ActionList: []source.Action{
			{Name: "switch", Run: switchTo(socket)},
			{Name: "kill", Multiple: true, Reload: true, Run: killAll(socket, killPaneFn)},
			tmuxPreview(socket, tmux.PreviewPane, dataString, location),
			yank(func(item source.Item) string { return dataString(item) }),
		},
		Load: func(ctx context.Context, lc source.Context) (source.Result, error) {
			return source.Defer(ctx, func(context.Context) ([]source.Item, error) {
				snap, err := fetchPanesFn(socket)
				if err != nil {
					return nil, err
				}
				return paneItems(snap.Panes), nil
			}), nil
		},
	}
}

func paneItems(panes []tmux.Pane) []source.Item {
	rows := make([][]string, 0, len(panes))
	for _, p := range panes {
		title := p.Title
		if p.Current {
			title = "[current] " + title
		}
		rows = append(rows, []string{p.Target, p.Command, title, p.Path})
	}
	labels := table.Format(rows, []table.Alignment{table.AlignLeft, table.AlignLeft, table.AlignLeft, table.AlignLeft})
	items := make([]source.Item, len(labels))
	for i, label := range labels {
		items[i] = source.Item{Label: label, Data: panes[i].ID, Location: panes[i].Target, Resolved: true}
	}
	return items
}

func switchTo(socket string) func(context.Context, source.Context, []source.Item) error {
	return func(ctx context.Context, lc source.Context, items []source.Item) error {
		return switchToFn(socket, dataString(items[0]))
	}
}

func killAll(socket string, kill func(socket, target string) error) func(context.Context, source.Context, []source.Item) error {
	return func(ctx context.Context, lc source.Context, items []source.Item) error {
		var errs []error
		for _, item := range items {
			target := dataString(item)
			if err := kill(socket, target); err != nil {
				errs = append(errs, fmt.Errorf("kill %s: %w", target, err))
			}
		}
		return errors.Join(errs...)
	}
}

func location(item source.Item) string { return item.Location }

// tmuxPreview shows the tmux preview of the entity target names. title
// overrides the panel title when set.
func tmuxPreview(socket string, kind tmux.PreviewKind, target, title func(source.Item) string) source.Action {
	return previewAction(func(_ context.Context, item source.Item) (string, []string, int, error) {
		p, err := loadPreviewFn(socket, kind, target(item))
		if err != nil {
			return "", nil, -1, err
		}
		if title != nil {
			p.Title = title(item)
		}
		return p.Title, p.Lines, p.Highlight, nil
	})
}
