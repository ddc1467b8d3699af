package command

import (
	"context"

	"github.com/atomicstack/tmux-popup-list/internal/logging/events"
)

// Request is one unit of input for the list manager: a key, a paste, a
// mouse event or the initial start.
type Request struct {
	Label string
	Run   func(context.Context) error
}

// Result reports a finished request.
type Result struct {
	Label string
	Err   error
}

// Bus runs requests one at a time in submission order, so a key never
// observes the half-applied state of the key before it.
type Bus struct {
	requests chan Request
	results  chan Result
}

// New initialises a bus holding up to size pending requests.
func New(size int) *Bus {
	if size < 1 {
		size = 1
	}
	return &Bus{
		requests: make(chan Request, size),
		results:  make(chan Result, size),
	}
}

// Submit queues req without blocking. It reports false when the queue is
// full and the request was dropped.
func (b *Bus) Submit(req Request) bool {
	select {
	case b.requests <- req:
		events.Command.Queue(req.Label)
		return true
	default:
		events.Command.Drop(req.Label)
		return false
	}
}

// Results delivers one Result per executed request.
func (b *Bus) Results() <-chan Result {
	return b.results
}

// Run executes requests until ctx is cancelled.
func (b *Bus) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case req := <-b.requests:
			var err error
			if req.Run != nil {
				err = req.Run(ctx)
			}
			events.Command.Done(req.Label, err)
			select {
			case b.results <- Result{Label: req.Label, Err: err}:
			case <-ctx.Done():
				return nil
			}
		}
	}
}
