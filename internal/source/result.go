package source

import (
	"context"
	"sync"
)

// Kind distinguishes the shapes a load may return.
type Kind int

const (
	KindItems Kind = iota
	KindDeferred
	KindStream
)

// Result is what Source.LoadItems returns: Items, *Deferred or a Stream.
type Result interface {
	Kind() Kind
}

// Items is a load that completed immediately.
type Items []Item

func (Items) Kind() Kind { return KindItems }

// Deferred is a load that completes later with a single slice. Its function
// runs on its own goroutine and cannot be preempted; callers that stop
// waiting simply discard the outcome.
type Deferred struct {
	done  chan struct{}
	items []Item
	err   error
}

func (*Deferred) Kind() Kind { return KindDeferred }

// Defer runs fn in the background and returns a handle to its outcome.
func Defer(ctx context.Context, fn func(ctx context.Context) ([]Item, error)) *Deferred {
	d := &Deferred{done: make(chan struct{})}
	go func() {
		defer close(d.done)
		d.items, d.err = fn(ctx)
	}()
	return d
}

// Resolved returns a Deferred that has already completed.
func Resolved(items []Item, err error) *Deferred {
	d := &Deferred{done: make(chan struct{}), items: items, err: err}
	close(d.done)
	return d
}

// Done is closed once the outcome is available.
func (d *Deferred) Done() <-chan struct{} { return d.done }

// Result returns the outcome. It must only be called after Done is closed.
func (d *Deferred) Result() ([]Item, error) { return d.items, d.err }

// Wait blocks until the outcome is available or ctx is cancelled.
func (d *Deferred) Wait(ctx context.Context) ([]Item, error) {
	select {
	case <-d.done:
		return d.items, d.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stream is a load producing batches over time.
type Stream interface {
	Result
	// Subscribe registers the callbacks. onEnd or onError fires exactly once
	// and no onData follows it.
	Subscribe(onData func([]Item), onEnd func(), onError func(error))
	// Cancel stops the producer. No callbacks fire after Cancel returns.
	Cancel()
}

// Emitter is a Stream implementation for producers that push batches from
// their own goroutine.
type Emitter struct {
	mu       sync.Mutex
	onData   func([]Item)
	onEnd    func()
	onError  func(error)
	pending  [][]Item
	finished bool
	endErr   error
	ended    bool
	cancel   context.CancelFunc
	ctx      context.Context
}

// NewEmitter returns an Emitter whose Context is cancelled by Cancel.
func NewEmitter(parent context.Context) *Emitter {
	ctx, cancel := context.WithCancel(parent)
	return &Emitter{ctx: ctx, cancel: cancel}
}

func (*Emitter) Kind() Kind { return KindStream }

// Context is cancelled once the consumer cancels the stream.
func (e *Emitter) Context() context.Context { return e.ctx }

func (e *Emitter) Subscribe(onData func([]Item), onEnd func(), onError func(error)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onData, e.onEnd, e.onError = onData, onEnd, onError
	// Batches produced before subscription are replayed in order.
	for _, batch := range e.pending {
		if e.onData != nil {
			e.onData(batch)
		}
	}
	e.pending = nil
	if e.ended {
		e.fireEndLocked()
	}
}

// Emit delivers a batch. It is a no-op after End, Fail or Cancel.
func (e *Emitter) Emit(items []Item) {
	if len(items) == 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ended || e.finished || e.ctx.Err() != nil {
		return
	}
	if e.onData == nil {
		e.pending = append(e.pending, items)
		return
	}
	e.onData(items)
}

// End terminates the stream successfully.
func (e *Emitter) End() { e.finish(nil) }

// Fail terminates the stream with err.
func (e *Emitter) Fail(err error) { e.finish(err) }

func (e *Emitter) finish(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ended || e.finished || e.ctx.Err() != nil {
		return
	}
	e.ended = true
	e.endErr = err
	if e.onData != nil || e.onEnd != nil || e.onError != nil {
		e.fireEndLocked()
	}
}

func (e *Emitter) fireEndLocked() {
	if e.finished {
		return
	}
	e.finished = true
	if e.endErr != nil {
		if e.onError != nil {
			e.onError(e.endErr)
		}
		return
	}
	if e.onEnd != nil {
		e.onEnd()
	}
}

func (e *Emitter) Cancel() {
	e.cancel()
	e.mu.Lock()
	e.finished = true
	e.onData, e.onEnd, e.onError = nil, nil, nil
	e.mu.Unlock()
}
