package sources

import (
	"context"
	"errors"
	"sort"

	"github.com/atomicstack/tmux-popup-list/internal/format/table"
	"github.com/atomicstack/tmux-popup-list/internal/history"
	"github.com/atomicstack/tmux-popup-list/internal/list"
	"github.com/atomicstack/tmux-popup-list/internal/logging"
	"github.com/atomicstack/tmux-popup-list/internal/source"
)

const (
	listsName   = "lists"
	recentLimit = 50
)

// Lists lists the registered lists, most recently used first.
func Lists(launcher Launcher, store history.Store) source.Source {
	return &source.Basic{
		ListName: listsName,
		Desc:     "registered lists",
		Default:  "open",
		ActionList: []source.Action{
			{Name: "open", Run: func(ctx context.Context, lc source.Context, items []source.Item) error {
				return launcher.Start(ctx, []string{dataString(items[0])})
			}},
			{Name: "resume", Run: func(ctx context.Context, lc source.Context, items []source.Item) error {
				name := dataString(items[0])
				err := launcher.Resume(ctx, name)
				if errors.Is(err, list.ErrNoSession) {
					return launcher.Start(ctx, []string{name})
				}
				return err
			}},
		},
		Load: func(ctx context.Context, lc source.Context) (source.Result, error) {
			var recent []string
			if store != nil {
				var err error
				if recent, err = store.Recent(ctx, recentLimit); err != nil {
					logging.Error(err)
				}
			}
			return source.Items(listItems(launcher.Sources(), recent)), nil
		},
	}
}

// listItems orders sources by recency. A name at index i of recent scores
// len(recent)-i, unknown names score -1; ties keep name order.
func listItems(srcs []source.Source, recent []string) []source.Item {
	score := make(map[string]int, len(recent))
	for i, name := range recent {
		if _, seen := score[name]; !seen {
			score[name] = len(recent) - i
		}
	}
	filtered := make([]source.Source, 0, len(srcs))
	for _, src := range srcs {
		if src.Name() != listsName {
			filtered = append(filtered, src)
		}
	}
	rank := func(name string) int {
		if s, ok := score[name]; ok {
			return s
		}
		return -1
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return rank(filtered[i].Name()) > rank(filtered[j].Name())
	})
	rows := make([][]string, 0, len(filtered))
	for _, src := range filtered {
		rows = append(rows, []string{src.Name(), src.Description()})
	}
	labels := table.Format(rows, nil)
	items := make([]source.Item, len(labels))
	for i, label := range labels {
		items[i] = source.Item{Label: label, Data: filtered[i].Name(), Resolved: true}
	}
	return items
}
