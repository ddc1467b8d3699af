// Package worker loads items from a list source in the background, filters
// them as they arrive and reports item and loading changes as events.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/atomicstack/tmux-popup-list/internal/logging/events"
	"github.com/atomicstack/tmux-popup-list/internal/match"
	"github.com/atomicstack/tmux-popup-list/internal/source"
)

// DefaultDebounce delays interactive reloads after prompt changes.
const DefaultDebounce = 100 * time.Millisecond

// EventKind identifies the payload of an Event.
type EventKind int

const (
	EventItems EventKind = iota
	EventLoading
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventItems:
		return "items"
	case EventLoading:
		return "loading"
	default:
		return "error"
	}
}

// Event reports a change of the worker state.
type Event struct {
	Kind EventKind
	// Items is the complete filtered set after the change.
	Items []match.Result
	// Append is set when the change only added data and the query did not
	// change. Offset is then the index of the first new entry, or -1 when
	// the existing prefix was reordered by sorting.
	Append bool
	Offset int
	// Reload is set for results of a reload, whose cursor is kept.
	Reload bool
	// Total counts the items received so far, before filtering.
	Total   int
	Loading bool
	Err     error
}

// Config tunes a Worker. Interactive enables server side filtering for
// sources that support it.
type Config struct {
	Debounce    time.Duration
	Buffer      int
	Interactive bool
}

// Worker drives one source. At most one load is in flight at a time.
type Worker struct {
	src         source.Source
	name        string
	interactive bool
	debounce    time.Duration

	mu          sync.Mutex
	query       match.Query
	loading     bool
	total       []source.Item
	filtered    []match.Result
	gen         uint64
	cancel      context.CancelFunc
	fresh       bool
	reload      bool
	filterGen   uint64
	filterStop  context.CancelFunc
	refiltering bool
	timer       *time.Timer
	closed      bool

	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New returns a worker for src filtering with q.
func New(src source.Source, q match.Query, cfg Config) *Worker {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 64
	}
	return &Worker{
		src:         src,
		name:        src.Name(),
		interactive: cfg.Interactive && source.IsInteractive(src),
		debounce:    cfg.Debounce,
		query:       q,
		events:      make(chan Event, cfg.Buffer),
		done:        make(chan struct{}),
	}
}

// Events delivers state changes in order. The channel is closed by Dispose.
func (w *Worker) Events() <-chan Event {
	return w.events
}

// IsLoading reports whether a load is in flight.
func (w *Worker) IsLoading() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.loading
}

// Total returns every item received by the current load, unfiltered.
func (w *Worker) Total() []source.Item {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]source.Item(nil), w.total...)
}

// Items returns the current filtered set.
func (w *Worker) Items() []match.Result {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]match.Result(nil), w.filtered...)
}

// Query returns the active query.
func (w *Worker) Query() match.Query {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.query
}

// LoadItems cancels any load in flight and starts a new one. With reload
// set, the resulting item events ask the UI to keep its cursor.
func (w *Worker) LoadItems(lc source.Context, reload bool) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.cancelLocked()
	ctx, cancel := context.WithCancel(context.Background())
	w.gen++
	gen := w.gen
	w.cancel = cancel
	w.loading = true
	w.fresh = true
	w.reload = reload
	w.emitLocked(Event{Kind: EventLoading, Loading: true})
	w.mu.Unlock()

	events.Worker.Load(w.name, gen, reload)
	w.wg.Add(1)
	go w.run(ctx, gen, lc)
}

// Stop cancels the load in flight. It is not reported as an error.
func (w *Worker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cancelLocked()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	if w.loading {
		w.loading = false
		w.emitLocked(Event{Kind: EventLoading, Loading: false})
	}
	events.Worker.Stop(w.name)
}

// Dispose stops the worker, waits for its goroutines and closes Events.
func (w *Worker) Dispose() {
	w.closeOnce.Do(func() {
		close(w.done)
		w.mu.Lock()
		w.closed = true
		w.cancelLocked()
		if w.filterStop != nil {
			w.filterStop()
		}
		if w.timer != nil {
			w.timer.Stop()
			w.timer = nil
		}
		w.loading = false
		w.mu.Unlock()
		w.wg.Wait()
		close(w.events)
	})
}

// SetDebounce changes the delay of later interactive reloads.
func (w *Worker) SetDebounce(d time.Duration) {
	if d <= 0 {
		d = DefaultDebounce
	}
	w.mu.Lock()
	w.debounce = d
	w.mu.Unlock()
}

// Patch replaces unresolved items that share a key with item, so later
// filter passes keep the resolved version. It reports how many were
// replaced.
func (w *Worker) Patch(item source.Item) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for i := range w.total {
		if !w.total[i].Resolved && source.SameItem(w.total[i], item) {
			w.total[i] = item
			n++
		}
	}
	for i := range w.filtered {
		if !w.filtered[i].Resolved && source.SameItem(w.filtered[i].Item, item) {
			w.filtered[i].Item = item
		}
	}
	return n
}

// SetQuery applies a new query. Interactive sources get a debounced reload
// built from lc; other sources re-filter every item received so far.
func (w *Worker) SetQuery(q match.Query, lc source.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	previous := w.query
	w.query = q
	if w.interactive {
		if previous.Text == q.Text {
			return
		}
		if w.timer != nil {
			w.timer.Stop()
		}
		lc.Input = q.Text
		w.timer = time.AfterFunc(w.debounce, func() {
			w.LoadItems(lc, false)
		})
		return
	}
	if previous == q {
		return
	}
	w.refilterLocked(q)
}

func (w *Worker) refilterLocked(q match.Query) {
	if w.filterStop != nil {
		w.filterStop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	w.filterStop = cancel
	w.filterGen++
	fg := w.filterGen
	items := w.total[:len(w.total):len(w.total)]
	w.refiltering = true

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer cancel()
		out, err := match.FilterContext(ctx, q, items)
		if err != nil {
			return
		}
		w.mu.Lock()
		defer w.mu.Unlock()
		if fg != w.filterGen || w.closed {
			return
		}
		if len(w.total) > len(items) {
			out = match.Merge(q, out, match.Filter(q, w.total[len(items):]))
		}
		w.refiltering = false
		w.filtered = out
		w.emitLocked(Event{Kind: EventItems, Items: cloneResults(out), Offset: -1, Total: len(w.total)})
	}()
}

func (w *Worker) cancelLocked() {
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
}

func (w *Worker) cancelFilterLocked() {
	if w.filterStop != nil {
		w.filterStop()
		w.filterStop = nil
	}
	w.filterGen++
	w.refiltering = false
}

// effectiveQuery skips local filtering for interactive sources.
func (w *Worker) effectiveQueryLocked() match.Query {
	if w.interactive {
		return match.Query{}
	}
	return w.query
}

func (w *Worker) emitLocked(ev Event) {
	if w.closed {
		return
	}
	select {
	case w.events <- ev:
	case <-w.done:
	}
}

func (w *Worker) run(ctx context.Context, gen uint64, lc source.Context) {
	defer w.wg.Done()
	res, err := w.src.LoadItems(ctx, lc)
	if err != nil {
		w.fail(ctx, gen, err)
		return
	}
	switch r := res.(type) {
	case nil:
		w.complete(ctx, gen, nil)
	case source.Items:
		w.complete(ctx, gen, r)
	case *source.Deferred:
		items, err := r.Wait(ctx)
		if ctx.Err() != nil {
			events.Worker.Discard(w.name, gen)
			return
		}
		if err != nil {
			w.fail(ctx, gen, err)
			return
		}
		w.complete(ctx, gen, items)
	case source.Stream:
		w.consume(ctx, gen, r)
	default:
		w.fail(ctx, gen, fmt.Errorf("%s: unsupported load result %T", w.name, res))
	}
}

func (w *Worker) current(ctx context.Context, gen uint64) bool {
	return ctx.Err() == nil && gen == w.gen && !w.closed
}

// complete replaces every item with items and ends the load.
func (w *Worker) complete(ctx context.Context, gen uint64, items []source.Item) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.current(ctx, gen) {
		events.Worker.Discard(w.name, gen)
		return
	}
	w.replaceLocked(items)
	w.finishLocked()
}

func (w *Worker) replaceLocked(items []source.Item) {
	w.cancelFilterLocked()
	w.fresh = false
	w.total = append([]source.Item(nil), items...)
	w.filtered = match.Filter(w.effectiveQueryLocked(), w.total)
	events.Worker.Batch(w.name, len(items), false)
	w.emitLocked(Event{Kind: EventItems, Items: cloneResults(w.filtered), Offset: -1, Reload: w.reload, Total: len(w.total)})
}

func (w *Worker) finishLocked() {
	w.loading = false
	w.cancel = nil
	w.emitLocked(Event{Kind: EventLoading, Loading: false})
}

func (w *Worker) fail(ctx context.Context, gen uint64, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.current(ctx, gen) {
		events.Worker.Discard(w.name, gen)
		return
	}
	events.Worker.Error(w.name, err)
	w.finishLocked()
	w.emitLocked(Event{Kind: EventError, Err: err})
}

// appendBatch adds a streamed batch, scoring only the new items.
func (w *Worker) appendBatch(ctx context.Context, gen uint64, batch []source.Item) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.current(ctx, gen) {
		return
	}
	if w.fresh {
		w.replaceLocked(batch)
		return
	}
	w.total = append(w.total, batch...)
	if w.refiltering {
		return
	}
	q := w.effectiveQueryLocked()
	scored := match.Filter(q, batch)
	events.Worker.Batch(w.name, len(batch), true)
	if len(scored) == 0 {
		return
	}
	offset := len(w.filtered)
	w.filtered = match.Merge(q, w.filtered, scored)
	if q.Sort && q.Text != "" {
		offset = -1
	}
	w.emitLocked(Event{
		Kind:   EventItems,
		Items:  cloneResults(w.filtered),
		Append: true,
		Offset: offset,
		Reload: w.reload,
		Total:  len(w.total),
	})
}

func (w *Worker) consume(ctx context.Context, gen uint64, st source.Stream) {
	finished := make(chan error, 1)
	var once sync.Once
	end := func(err error) {
		once.Do(func() { finished <- err })
	}
	st.Subscribe(
		func(batch []source.Item) { w.appendBatch(ctx, gen, batch) },
		func() { end(nil) },
		end,
	)
	var err error
	select {
	case err = <-finished:
	case <-ctx.Done():
		st.Cancel()
		events.Worker.Discard(w.name, gen)
		return
	}
	st.Cancel()
	if err != nil {
		w.fail(ctx, gen, err)
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.current(ctx, gen) {
		return
	}
	if w.fresh {
		w.replaceLocked(nil)
	}
	w.finishLocked()
}

func cloneResults(in []match.Result) []match.Result {
	return append([]match.Result(nil), in...)
}
