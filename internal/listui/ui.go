// Package listui renders filtered items into a display surface window and
// tracks the cursor and the selection. Lines are 1-based: line N shows
// item N-1.
package listui

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/atomicstack/tmux-popup-list/internal/logging/events"
	"github.com/atomicstack/tmux-popup-list/internal/match"
	"github.com/atomicstack/tmux-popup-list/internal/source"
	"github.com/atomicstack/tmux-popup-list/internal/surface"
)

// ReadyTimeout bounds how long opening a window may take.
const ReadyTimeout = 3000 * time.Millisecond

// SearchGroup highlights matched characters.
const SearchGroup = "ListSearch"

// Config holds the settings the UI renders with.
type Config struct {
	Title      string
	SignText   string
	LimitLines int
	Height     int
	Position   source.Position
}

// UI is the list window of one session.
type UI struct {
	surface surface.Surface

	// createMu serializes window creation so concurrent draws open one
	// window.
	createMu sync.Mutex

	mu          sync.Mutex
	cfg         Config
	win         surface.Window
	items       []match.Result
	selected    map[int]struct{}
	index       int
	height      int
	savedHeight int
	mouse       mouseState
	onCursor    func(index int)
	now         func() time.Time
}

// New returns a UI drawing into s.
func New(s surface.Surface, cfg Config) *UI {
	if cfg.SignText == "" {
		cfg.SignText = "*"
	}
	if cfg.Height <= 0 {
		cfg.Height = 10
	}
	return &UI{surface: s, cfg: cfg, selected: map[int]struct{}{}, now: time.Now}
}

// SetConfig replaces the render settings; they apply from the next draw.
func (u *UI) SetConfig(cfg Config) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if cfg.SignText == "" {
		cfg.SignText = "*"
	}
	if cfg.Height <= 0 {
		cfg.Height = 10
	}
	u.cfg = cfg
}

// OnCursor registers fn to be called with the cursor index after moves.
func (u *UI) OnCursor(fn func(index int)) {
	u.mu.Lock()
	u.onCursor = fn
	u.mu.Unlock()
}

// Window returns the current window or nil.
func (u *UI) Window() surface.Window {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.win
}

// WindowID returns the id of the current window or "".
func (u *UI) WindowID() string {
	if w := u.Window(); w != nil {
		return w.ID()
	}
	return ""
}

// Length returns the number of items, displayed or not.
func (u *UI) Length() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.items)
}

// Height returns the height of the window last drawn.
func (u *UI) Height() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.height
}

// All returns every item.
func (u *UI) All() []match.Result {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]match.Result(nil), u.items...)
}

// Index returns the 0-based cursor index.
func (u *UI) Index() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.index
}

func (u *UI) ensureWindow(ctx context.Context, height int) (surface.Window, error) {
	u.createMu.Lock()
	defer u.createMu.Unlock()
	u.mu.Lock()
	if u.win != nil {
		w := u.win
		u.mu.Unlock()
		return w, nil
	}
	spec := surface.WindowSpec{Title: u.cfg.Title, Height: height, Position: u.cfg.Position}
	u.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, ReadyTimeout)
	defer cancel()
	type opened struct {
		win surface.Window
		err error
	}
	ch := make(chan opened, 1)
	go func() {
		w, err := u.surface.OpenWindow(ctx, spec)
		ch <- opened{w, err}
	}()
	var res opened
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, fmt.Errorf("open list window: %w", ctx.Err())
	}
	if res.err != nil {
		return nil, fmt.Errorf("open list window: %w", res.err)
	}
	u.mu.Lock()
	u.win = res.win
	u.height = height
	u.mu.Unlock()
	return res.win, nil
}

// gone drops w when err reports it closed. Such errors are swallowed.
func (u *UI) gone(w surface.Window, err error) error {
	if err == nil {
		return nil
	}
	if !errors.Is(err, surface.ErrWindowGone) {
		return err
	}
	u.mu.Lock()
	if u.win == w {
		u.win = nil
	}
	u.mu.Unlock()
	events.UI.WindowGone(w.ID())
	return nil
}

func (u *UI) windowHeightLocked(count int) int {
	if u.cfg.LimitLines > 0 && count > u.cfg.LimitLines {
		count = u.cfg.LimitLines
	}
	h := u.cfg.Height
	if count < h {
		h = count
	}
	if h < 1 {
		h = 1
	}
	return h
}

// DrawItems replaces the displayed items, opening the window on first use.
// With reload the cursor index is kept, otherwise it returns to the top.
func (u *UI) DrawItems(ctx context.Context, items []match.Result, height int, reload bool) error {
	u.mu.Lock()
	if height <= 0 {
		height = u.windowHeightLocked(len(items))
	}
	u.mu.Unlock()
	w, err := u.ensureWindow(ctx, height)
	if err != nil {
		return err
	}
	u.mu.Lock()
	previous := u.items
	u.items = append([]match.Result(nil), items...)
	u.remapSelectionLocked(previous)
	if !reload {
		u.index = 0
	}
	u.clampLocked()
	resize := height != u.height
	u.height = height
	lines := u.renderLocked(0)
	signs := u.signLinesLocked()
	index := u.index
	sign := u.cfg.SignText
	u.mu.Unlock()

	events.UI.Draw(w.ID(), len(items), height, reload)
	if resize {
		if err := w.Resize(ctx, height); err != nil {
			return u.gone(w, err)
		}
	}
	if err := w.SetLines(ctx, 0, lines); err != nil {
		return u.gone(w, err)
	}
	if err := w.ClearSigns(ctx); err != nil {
		return u.gone(w, err)
	}
	for _, line := range signs {
		if err := w.PlaceSign(ctx, line, sign); err != nil {
			return u.gone(w, err)
		}
	}
	if len(lines) > 0 {
		if err := w.SetCursor(ctx, index+1); err != nil {
			return u.gone(w, err)
		}
	}
	return nil
}

// AppendItems adds items after the current ones. The cursor stays put.
func (u *UI) AppendItems(ctx context.Context, items []match.Result) error {
	if len(items) == 0 {
		return nil
	}
	u.mu.Lock()
	w := u.win
	start := len(u.items)
	u.items = append(u.items, items...)
	lines := u.renderLocked(start)
	height := u.windowHeightLocked(len(u.items))
	resize := height > u.height
	if resize {
		u.height = height
	}
	u.mu.Unlock()
	if w == nil {
		return u.DrawItems(ctx, u.All(), 0, true)
	}
	if resize {
		if err := w.Resize(ctx, height); err != nil {
			return u.gone(w, err)
		}
	}
	if len(lines) == 0 {
		return nil
	}
	return u.gone(w, w.SetLines(ctx, start, lines))
}

// renderLocked renders items[from:] up to the line limit.
func (u *UI) renderLocked(from int) []surface.Line {
	end := len(u.items)
	if u.cfg.LimitLines > 0 && end > u.cfg.LimitLines {
		end = u.cfg.LimitLines
	}
	if from >= end {
		return nil
	}
	lines := make([]surface.Line, 0, end-from)
	for _, item := range u.items[from:end] {
		lines = append(lines, renderLine(item))
	}
	return lines
}

func renderLine(item match.Result) surface.Line {
	line := surface.Line{Text: item.Label}
	line.Spans = append(line.Spans, item.AnsiHighlights...)
	shift := 0
	if item.FilterLabel != item.Label {
		shift = strings.Index(item.Label, item.FilterLabel)
		if item.FilterLabel == "" || shift < 0 {
			return line
		}
	}
	for _, off := range item.Matches {
		start := off + shift
		if start < 0 || start >= len(item.Label) {
			continue
		}
		_, size := utf8.DecodeRuneInString(item.Label[start:])
		line.Spans = append(line.Spans, source.Span{Start: start, End: start + size, Group: SearchGroup})
	}
	return line
}

// remapSelectionLocked keeps selected entries whose label is still present.
func (u *UI) remapSelectionLocked(previous []match.Result) {
	if len(u.selected) == 0 {
		return
	}
	wanted := map[string]int{}
	for line := range u.selected {
		if line >= 1 && line <= len(previous) {
			wanted[previous[line-1].Label]++
		}
	}
	u.selected = map[int]struct{}{}
	for i, item := range u.items {
		if wanted[item.Label] > 0 {
			wanted[item.Label]--
			u.selected[i+1] = struct{}{}
		}
	}
}

func (u *UI) signLinesLocked() []int {
	lines := make([]int, 0, len(u.selected))
	limit := len(u.items)
	if u.cfg.LimitLines > 0 && limit > u.cfg.LimitLines {
		limit = u.cfg.LimitLines
	}
	for line := range u.selected {
		if line <= limit {
			lines = append(lines, line)
		}
	}
	sort.Ints(lines)
	return lines
}

func (u *UI) clampLocked() {
	if u.index >= len(u.items) {
		u.index = len(u.items) - 1
	}
	if u.index < 0 {
		u.index = 0
	}
}

// syncCursor reads the cursor of the window into index.
func (u *UI) syncCursor(ctx context.Context) {
	w := u.Window()
	if w == nil {
		return
	}
	line, err := w.Cursor(ctx)
	if err != nil {
		_ = u.gone(w, err)
		return
	}
	u.mu.Lock()
	if line >= 1 && line <= len(u.items) {
		u.index = line - 1
	}
	u.mu.Unlock()
}

// Item returns the item under the cursor. It reports false when there is no
// window or no item.
func (u *UI) Item(ctx context.Context) (match.Result, bool) {
	if u.Window() == nil {
		return match.Result{}, false
	}
	u.syncCursor(ctx)
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.win == nil || u.index >= len(u.items) {
		return match.Result{}, false
	}
	return u.items[u.index], true
}

// Items returns the action targets: the visual range when active, else the
// selection, else the cursor item.
func (u *UI) Items(ctx context.Context) []source.Item {
	if w := u.Window(); w != nil {
		start, end, ok, err := w.Visual(ctx)
		if err != nil {
			_ = u.gone(w, err)
		} else if ok {
			u.mu.Lock()
			defer u.mu.Unlock()
			return u.rangeLocked(start, end)
		}
	}
	if selected := u.SelectedItems(); len(selected) > 0 {
		return selected
	}
	if item, ok := u.Item(ctx); ok {
		return []source.Item{item.Item}
	}
	return nil
}

func (u *UI) rangeLocked(start, end int) []source.Item {
	if start < 1 {
		start = 1
	}
	if end > len(u.items) {
		end = len(u.items)
	}
	var out []source.Item
	for line := start; line <= end; line++ {
		out = append(out, u.items[line-1].Item)
	}
	return out
}

// Patch stores a resolved item in place of the unresolved entries it
// stands for. Rendering is unchanged since labels are kept.
func (u *UI) Patch(item source.Item) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for i := range u.items {
		if !u.items[i].Resolved && source.SameItem(u.items[i].Item, item) {
			u.items[i].Item = item
		}
	}
}

// SelectedItems returns the selected items in display order.
func (u *UI) SelectedItems() []source.Item {
	u.mu.Lock()
	defer u.mu.Unlock()
	lines := make([]int, 0, len(u.selected))
	for line := range u.selected {
		lines = append(lines, line)
	}
	sort.Ints(lines)
	out := make([]source.Item, 0, len(lines))
	for _, line := range lines {
		out = append(out, u.items[line-1].Item)
	}
	return out
}

// SelectedLines returns the selected 1-based lines in order.
func (u *UI) SelectedLines() []int {
	u.mu.Lock()
	defer u.mu.Unlock()
	lines := make([]int, 0, len(u.selected))
	for line := range u.selected {
		lines = append(lines, line)
	}
	sort.Ints(lines)
	return lines
}

// ToggleSelection flips the selection of the cursor line and moves down.
func (u *UI) ToggleSelection(ctx context.Context) error {
	u.syncCursor(ctx)
	u.mu.Lock()
	if len(u.items) == 0 {
		u.mu.Unlock()
		return nil
	}
	line := u.index + 1
	_, on := u.selected[line]
	if on {
		delete(u.selected, line)
	} else {
		u.selected[line] = struct{}{}
	}
	w, sign, count := u.win, u.cfg.SignText, len(u.selected)
	u.mu.Unlock()
	events.UI.Selection(count)
	if w != nil {
		var err error
		if on {
			err = w.RemoveSign(ctx, line)
		} else {
			err = w.PlaceSign(ctx, line, sign)
		}
		if err := u.gone(w, err); err != nil {
			return err
		}
	}
	return u.MoveDown(ctx)
}

// SelectAll selects every item.
func (u *UI) SelectAll(ctx context.Context) error {
	u.mu.Lock()
	for i := range u.items {
		u.selected[i+1] = struct{}{}
	}
	u.mu.Unlock()
	return u.redrawSigns(ctx)
}

// SelectLines selects lines start through end inclusive, in either order.
func (u *UI) SelectLines(ctx context.Context, start, end int) error {
	if start > end {
		start, end = end, start
	}
	u.mu.Lock()
	if start < 1 {
		start = 1
	}
	if end > len(u.items) {
		end = len(u.items)
	}
	for line := start; line <= end; line++ {
		u.selected[line] = struct{}{}
	}
	u.mu.Unlock()
	return u.redrawSigns(ctx)
}

// ClearSelection drops the whole selection.
func (u *UI) ClearSelection(ctx context.Context) error {
	u.mu.Lock()
	u.selected = map[int]struct{}{}
	u.mu.Unlock()
	return u.redrawSigns(ctx)
}

func (u *UI) redrawSigns(ctx context.Context) error {
	u.mu.Lock()
	w, sign := u.win, u.cfg.SignText
	lines := u.signLinesLocked()
	count := len(u.selected)
	u.mu.Unlock()
	events.UI.Selection(count)
	if w == nil {
		return nil
	}
	if err := w.ClearSigns(ctx); err != nil {
		return u.gone(w, err)
	}
	for _, line := range lines {
		if err := w.PlaceSign(ctx, line, sign); err != nil {
			return u.gone(w, err)
		}
	}
	return nil
}

// MoveTo places the cursor on the 0-based index, clamped to the items.
func (u *UI) MoveTo(ctx context.Context, index int) error {
	u.mu.Lock()
	if len(u.items) == 0 {
		u.mu.Unlock()
		return nil
	}
	u.index = index
	u.clampLocked()
	index = u.index
	w, fn := u.win, u.onCursor
	u.mu.Unlock()
	events.UI.Cursor(index)
	if w != nil {
		if err := u.gone(w, w.SetCursor(ctx, index+1)); err != nil {
			return err
		}
	}
	if fn != nil {
		fn(index)
	}
	return nil
}

// MoveUp moves one line up, stopping at the first line.
func (u *UI) MoveUp(ctx context.Context) error {
	u.syncCursor(ctx)
	index := u.Index()
	if index == 0 {
		return nil
	}
	return u.MoveTo(ctx, index-1)
}

// MoveDown moves one line down, stopping at the last line.
func (u *UI) MoveDown(ctx context.Context) error {
	u.syncCursor(ctx)
	index := u.Index()
	if index >= u.Length()-1 {
		return nil
	}
	return u.MoveTo(ctx, index+1)
}

// SetStatus forwards status to the window.
func (u *UI) SetStatus(ctx context.Context, status surface.Status) error {
	w := u.Window()
	if w == nil {
		return nil
	}
	return u.gone(w, w.SetStatus(ctx, status))
}

// Hide closes the window, remembering its height for Resume.
func (u *UI) Hide(ctx context.Context) error {
	u.mu.Lock()
	w := u.win
	u.win = nil
	u.savedHeight = u.height
	u.mu.Unlock()
	if w == nil {
		return nil
	}
	err := w.Close(ctx)
	if errors.Is(err, surface.ErrWindowGone) {
		return nil
	}
	return err
}

// Resume reopens the window with the saved height and current state.
func (u *UI) Resume(ctx context.Context) error {
	u.mu.Lock()
	height := u.savedHeight
	items := append([]match.Result(nil), u.items...)
	u.mu.Unlock()
	return u.DrawItems(ctx, items, height, true)
}

// Reset closes the window and forgets every item.
func (u *UI) Reset(ctx context.Context) error {
	err := u.Hide(ctx)
	u.mu.Lock()
	u.items = nil
	u.selected = map[int]struct{}{}
	u.index = 0
	u.height = 0
	u.mouse = mouseState{}
	u.mu.Unlock()
	return err
}
