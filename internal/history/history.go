// Package history keeps the inputs previously used with each list and lets
// the prompt cycle through the ones matching the current text.
package history

import (
	"context"
	"strings"
	"sync"

	"github.com/atomicstack/tmux-popup-list/internal/logging"
)

// DefaultSize bounds the entries kept per list.
const DefaultSize = 200

// History is the input ring of one list.
type History struct {
	mu       sync.Mutex
	list     string
	store    Store
	size     int
	entries  []string
	filtered []string
	index    int
	recalled string
}

// New returns an empty history for list. A nil store keeps entries in
// memory only.
func New(list string, store Store) *History {
	return &History{list: list, store: store, size: DefaultSize, index: -1}
}

// Load reads persisted entries. Failures are logged and leave the history
// empty.
func (h *History) Load(ctx context.Context) {
	if h.store == nil {
		return
	}
	entries, err := h.store.Inputs(ctx, h.list, h.size)
	if err != nil {
		logging.Error(err)
		return
	}
	h.mu.Lock()
	h.entries = entries
	h.filtered = append([]string(nil), entries...)
	h.index = -1
	h.mu.Unlock()
}

// Entries returns a copy of every entry, oldest first.
func (h *History) Entries() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.entries...)
}

// Filter narrows the entries available to Previous and Next to those
// starting with input. Changes caused by recalling an entry are ignored.
func (h *History) Filter(input string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.recalled != "" && input == h.recalled {
		return
	}
	h.recalled = ""
	h.filtered = h.filtered[:0]
	for _, entry := range h.entries {
		if strings.HasPrefix(entry, input) {
			h.filtered = append(h.filtered, entry)
		}
	}
	h.index = -1
}

// Previous returns the next older entry of the filtered set.
func (h *History) Previous() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.filtered) == 0 {
		return "", false
	}
	switch {
	case h.index < 0:
		h.index = len(h.filtered) - 1
	case h.index > 0:
		h.index--
	default:
		h.index = len(h.filtered) - 1
	}
	h.recalled = h.filtered[h.index]
	return h.recalled, true
}

// Next returns the next newer entry of the filtered set.
func (h *History) Next() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.filtered) == 0 {
		return "", false
	}
	if h.index < 0 || h.index >= len(h.filtered)-1 {
		h.index = 0
	} else {
		h.index++
	}
	h.recalled = h.filtered[h.index]
	return h.recalled, true
}

// Add records input as the newest entry and persists it.
func (h *History) Add(ctx context.Context, input string) {
	input = strings.TrimSpace(input)
	if input == "" {
		return
	}
	h.mu.Lock()
	kept := h.entries[:0]
	for _, entry := range h.entries {
		if entry != input {
			kept = append(kept, entry)
		}
	}
	h.entries = append(kept, input)
	if len(h.entries) > h.size {
		h.entries = h.entries[len(h.entries)-h.size:]
	}
	h.filtered = append(h.filtered[:0], h.entries...)
	h.index = -1
	h.mu.Unlock()
	if h.store == nil {
		return
	}
	if err := h.store.AddInput(ctx, h.list, input); err != nil {
		logging.Error(err)
	}
}
