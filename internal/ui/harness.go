package ui

import (
	"context"
	"errors"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// Harness drives the UI model programmatically for integration tests.
type Harness struct {
	model  *Model
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHarness creates a harness for the provided model and starts its input
// queue. Call Close when done.
func NewHarness(model *Model) *Harness {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Harness{model: model, cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(h.done)
		_ = model.Run(ctx)
	}()
	model.Init()
	return h
}

// Send routes a message through the model. Returned commands are not run;
// quitting is observable through Quitting.
func (h *Harness) Send(msg tea.Msg) {
	h.model.Update(msg)
}

// Settle waits until every queued input has been handled.
func (h *Harness) Settle(timeout time.Duration) error {
	deadline := time.After(timeout)
	for h.model.inflight > 0 {
		select {
		case res := <-h.model.bus.Results():
			h.model.Update(resultMsg(res))
		case <-deadline:
			return errors.New("harness: input still pending")
		}
	}
	h.model.Update(redrawMsg{})
	return nil
}

// View returns the current view string.
func (h *Harness) View() string {
	return h.model.View()
}

// Quitting reports whether the model asked the program to exit.
func (h *Harness) Quitting() bool {
	return h.model.quitting
}

// Model exposes the underlying model.
func (h *Harness) Model() *Model {
	return h.model
}

// Close stops the input queue.
func (h *Harness) Close() {
	h.cancel()
	<-h.done
}
