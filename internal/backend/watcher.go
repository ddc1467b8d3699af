// Package backend follows the tmux server and reports pane changes that
// matter to open lists.
package backend

import (
	"context"
	"time"

	"github.com/atomicstack/tmux-popup-list/internal/logging"
	"github.com/atomicstack/tmux-popup-list/internal/surface"
	"github.com/atomicstack/tmux-popup-list/internal/tmux"
)

// minFetchGap bounds how often tmux is queried, however short the interval.
const minFetchGap = 100 * time.Millisecond

// Fetcher returns the current pane layout of the server.
type Fetcher func(ctx context.Context) (tmux.PaneSnapshot, error)

// Watcher polls tmux at a fixed interval. A change of the active pane is
// published as a window-enter event and every pane that disappeared as a
// buffer-unload event carrying the pane id.
type Watcher struct {
	fetch    Fetcher
	interval time.Duration
	throttle *throttle
	events   chan surface.Event
}

// NewWatcher creates a watcher over the server at socketPath.
func NewWatcher(socketPath string, interval time.Duration) *Watcher {
	return newWatcher(func(context.Context) (tmux.PaneSnapshot, error) {
		return tmux.FetchPanes(socketPath)
	}, interval)
}

func newWatcher(fetch Fetcher, interval time.Duration) *Watcher {
	return &Watcher{
		fetch:    fetch,
		interval: interval,
		throttle: newThrottle(minFetchGap),
		events:   make(chan surface.Event, 16),
	}
}

// Events returns the channel of pane events. It is closed when Run returns.
func (w *Watcher) Events() <-chan surface.Event {
	return w.events
}

// Run polls until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.events)

	var (
		prev    tmux.PaneSnapshot
		primed  bool
		lastErr string
	)
	poll := func() bool {
		if err := w.throttle.wait(ctx); err != nil {
			return false
		}
		snap, err := w.fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return false
			}
			// one log line per distinct failure
			if err.Error() != lastErr {
				lastErr = err.Error()
				logging.Error(err)
			}
			return true
		}
		lastErr = ""
		if primed {
			for _, ev := range diff(prev, snap) {
				select {
				case <-ctx.Done():
					return false
				case w.events <- ev:
				}
			}
		}
		prev, primed = snap, true
		return true
	}

	if !poll() {
		return nil
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !poll() {
				return nil
			}
		}
	}
}

// Forward delivers events to fn until the watcher stops.
func (w *Watcher) Forward(ctx context.Context, fn func(context.Context, surface.Event)) error {
	for ev := range w.events {
		fn(ctx, ev)
	}
	return nil
}

func diff(prev, next tmux.PaneSnapshot) []surface.Event {
	var out []surface.Event
	if next.CurrentPane != "" && (next.CurrentPane != prev.CurrentPane || next.CurrentWindow != prev.CurrentWindow) {
		out = append(out, surface.Event{Kind: surface.EventWindowEnter, Window: next.CurrentWindow})
	}
	alive := make(map[string]bool, len(next.Panes))
	for _, p := range next.Panes {
		alive[p.ID] = true
	}
	for _, p := range prev.Panes {
		if !alive[p.ID] {
			out = append(out, surface.Event{Kind: surface.EventBufferUnload, Window: p.ID})
		}
	}
	return out
}
