package ui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"

	"github.com/atomicstack/tmux-popup-list/internal/source"
	"github.com/atomicstack/tmux-popup-list/internal/surface"
)

const (
	previewMaxDisplayLines = 20  // used by inline (vertical) preview only
	previewPanelMinWidth   = 40  // minimum cols for the preview panel; below this no split
	previewPanelFraction   = 0.6 // fraction of total width given to the preview panel
	signWidth              = 2
	reservedRows           = 3
	ellipsis               = "…"
)

var (
	insertFooterKeys = []key.Binding{
		key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "open")),
		key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "actions")),
		key.NewBinding(key.WithKeys("ctrl+t"), key.WithHelp("ctrl+t", "select")),
		key.NewBinding(key.WithKeys("ctrl+s"), key.WithHelp("ctrl+s", "matcher")),
		key.NewBinding(key.WithKeys("ctrl+o"), key.WithHelp("ctrl+o", "normal")),
		key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "hide")),
	}
	normalFooterKeys = []key.Binding{
		key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "open")),
		key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "actions")),
		key.NewBinding(key.WithKeys("j", "k"), key.WithHelp("j/k", "move")),
		key.NewBinding(key.WithKeys("v"), key.WithHelp("v", "visual")),
		key.NewBinding(key.WithKeys("i"), key.WithHelp("i", "insert")),
		key.NewBinding(key.WithKeys("q"), key.WithHelp("q", "hide")),
	}
)

// View implements tea.Model.
func (m *Model) View() string {
	if m.quitting {
		return ""
	}
	frame := m.screen.Frame()
	width := frame.Width
	if width <= 0 {
		width = 80
	}
	panel := 0
	if frame.Preview != nil {
		panel = previewPanelWidth(width)
		if panel > 0 && !frame.Preview.SplitRight && inlineRoom(frame) > reservedRows {
			panel = 0
		}
	}
	listWidth := width - panel
	var preview []string
	if frame.Preview != nil && panel == 0 {
		preview = m.inlinePreview(frame, listWidth)
	}
	rows, top := m.listRows(frame, listWidth, preview)
	m.windowTop = top
	m.listWidth = 0
	if panel == 0 {
		return strings.Join(rows, "\n")
	}
	m.listWidth = listWidth
	left := lipgloss.NewStyle().Width(listWidth).Render(strings.Join(rows, "\n"))
	return lipgloss.JoinHorizontal(lipgloss.Top, left, m.sidePreview(frame.Preview, panel, len(rows)))
}

// previewPanelWidth returns the width in columns for the right-hand preview
// panel. Returns 0 when the terminal is too narrow to split.
func previewPanelWidth(width int) int {
	w := int(float64(width) * previewPanelFraction)
	if w < previewPanelMinWidth {
		return 0
	}
	return w
}

func inlineRoom(frame surface.Frame) int {
	view := frame.ViewHeight
	if !frame.HasWindow {
		view = 0
	}
	return frame.Height - reservedRows - view
}

// listRows lays out the list column and reports the row of its first line.
func (m *Model) listRows(frame surface.Frame, width int, preview []string) ([]string, int) {
	body := m.windowRows(frame, width)
	status := m.statusLine(frame, width)
	prompt := m.promptLine(frame, width)
	rows := make([]string, 0, len(body)+len(preview)+reservedRows)
	top := 0
	switch source.Position(frame.Position) {
	case source.PositionTop:
		rows = append(rows, prompt, status)
		top = len(rows)
		rows = append(rows, body...)
		rows = append(rows, preview...)
	case source.PositionTab:
		rows = append(rows, status)
		top = len(rows)
		rows = append(rows, body...)
		rows = append(rows, prompt)
	default:
		rows = append(rows, preview...)
		top = len(rows)
		rows = append(rows, body...)
		rows = append(rows, status, prompt)
	}
	if msg := m.messageLine(frame, width); msg != "" {
		rows = append(rows, msg)
	}
	return rows, top
}

func (m *Model) windowRows(frame surface.Frame, width int) []string {
	if frame.Choice != nil {
		height := frame.ViewHeight
		if !frame.HasWindow {
			height = frame.Height - reservedRows
		}
		return choiceRows(frame.Choice, width, height)
	}
	if !frame.HasWindow {
		return nil
	}
	rows := make([]string, 0, frame.ViewHeight)
	if len(frame.Lines) == 0 {
		rows = append(rows, m.emptyLine(frame, width))
	}
	for i := 0; i < frame.ViewHeight; i++ {
		idx := frame.Offset + i
		if idx >= len(frame.Lines) {
			break
		}
		rows = append(rows, renderLine(frame, idx+1, width))
	}
	for len(rows) < frame.ViewHeight {
		rows = append(rows, "")
	}
	return rows
}

func (m *Model) emptyLine(frame surface.Frame, width int) string {
	if frame.Status.Loading {
		return clip(m.spinner.View()+styles.Loading.Render(" loading"), width)
	}
	msg := "(no entries)"
	if frame.Prompt.Input != "" {
		msg = fmt.Sprintf("No matches for %q", frame.Prompt.Input)
	}
	return clip(styles.Info.Render(msg), width)
}

func renderLine(frame surface.Frame, lineNo, width int) string {
	line := frame.Lines[lineNo-1]
	base := *styles.Item
	cursor := lineNo == frame.Cursor
	switch {
	case cursor:
		base = *styles.CursorItem
	case frame.Visual[0] > 0 && lineNo >= frame.Visual[0] && lineNo <= frame.Visual[1]:
		base = *styles.VisualItem
	}
	sign := frame.Signs[lineNo]
	if sign == "" && cursor {
		sign = ">"
	}
	signCell := styles.Sign.Render(padRight(clip(sign, signWidth), signWidth))
	textWidth := width - signWidth
	if textWidth < 1 {
		return signCell
	}
	text := clip(renderSpans(line, base), textWidth)
	if pad := textWidth - lipgloss.Width(text); cursor && pad > 0 {
		text += base.Render(strings.Repeat(" ", pad))
	}
	return signCell + text
}

// renderSpans styles the highlighted byte ranges of a line on top of base.
func renderSpans(line surface.Line, base lipgloss.Style) string {
	text := line.Text
	if len(line.Spans) == 0 {
		return base.Render(text)
	}
	spans := append([]source.Span(nil), line.Spans...)
	sort.SliceStable(spans, func(i, j int) bool { return spans[i].Start < spans[j].Start })
	var b strings.Builder
	pos := 0
	for _, sp := range spans {
		start, end := sp.Start, sp.End
		if start < pos {
			start = pos
		}
		if end > len(text) {
			end = len(text)
		}
		if end <= start {
			continue
		}
		if start > pos {
			b.WriteString(base.Render(text[pos:start]))
		}
		b.WriteString(styles.Group(sp.Group).Inherit(base).Render(text[start:end]))
		pos = end
	}
	if pos < len(text) {
		b.WriteString(base.Render(text[pos:]))
	}
	return b.String()
}

func (m *Model) statusLine(frame surface.Frame, width int) string {
	if !frame.HasWindow {
		if m.spinning {
			return clip(m.spinner.View()+styles.Loading.Render(" loading"), width)
		}
		return ""
	}
	st := frame.Status
	mode := st.Mode
	if mode == "" {
		mode = source.ModeInsert
	}
	left := styles.StatusMode.Render(" " + strings.ToUpper(string(mode)) + " ")
	name := st.Name
	if len(st.Args) > 0 {
		name += " " + strings.Join(st.Args, " ")
	}
	right := fmt.Sprintf(" %s  %d/%d ", st.Matcher, st.Matched, st.Total)
	if st.Loading {
		right = " " + m.spinner.View() + right
	}
	room := width - lipgloss.Width(left) - lipgloss.Width(right)
	info := clip(" "+name+" ", room)
	fill := room - lipgloss.Width(info)
	if fill < 0 {
		fill = 0
	}
	return clip(left+styles.Status.Render(info+strings.Repeat(" ", fill)+right), width)
}

func (m *Model) promptLine(frame surface.Frame, width int) string {
	p := frame.Prompt
	if p.Hidden || !frame.HasWindow {
		return ""
	}
	runes := []rune(p.Input)
	cur := p.Cursor
	if cur < 0 {
		cur = 0
	}
	if cur > len(runes) {
		cur = len(runes)
	}
	var b strings.Builder
	b.WriteString(styles.FilterPrompt.Render(p.Indicator))
	b.WriteString(styles.Filter.Render(string(runes[:cur])))
	rest := runes[cur:]
	if p.Mode == source.ModeNormal {
		b.WriteString(styles.Filter.Render(string(rest)))
	} else {
		under := " "
		if len(rest) > 0 {
			under = string(rest[0])
			rest = rest[1:]
		}
		b.WriteString(styles.Cursor.Render(under))
		b.WriteString(styles.Filter.Render(string(rest)))
	}
	return clip(b.String(), width)
}

func (m *Model) messageLine(frame surface.Frame, width int) string {
	if frame.Message != "" {
		style := styles.Info
		if frame.IsError {
			style = styles.Error
		}
		return clip(style.Render(frame.Message), width)
	}
	if !m.showFooter || !frame.HasWindow {
		return ""
	}
	bindings := insertFooterKeys
	if frame.Prompt.Mode == source.ModeNormal {
		bindings = normalFooterKeys
	}
	m.help.Width = width
	return clip(styles.Footer.Render(m.help.ShortHelpView(bindings)), width)
}

func choiceRows(c *surface.ChoiceFrame, width, height int) []string {
	rows := []string{clip(styles.ChoiceTitle.Render(c.Title), width)}
	avail := height - 1
	if avail < 1 {
		avail = len(c.Options)
	}
	start := 0
	if c.Cursor >= avail {
		start = c.Cursor - avail + 1
	}
	for i := start; i < len(c.Options) && i < start+avail; i++ {
		prefix := "   "
		if i < 9 {
			prefix = fmt.Sprintf("%d. ", i+1)
		}
		style := styles.Choice
		if i == c.Cursor {
			style = styles.ChoiceCursor
		}
		rows = append(rows, clip(style.Render(prefix+c.Options[i]), width))
	}
	for len(rows) < height {
		rows = append(rows, "")
	}
	return rows
}

func (m *Model) inlinePreview(frame surface.Frame, width int) []string {
	p := frame.Preview
	limit := p.Height
	if limit <= 0 {
		limit = previewMaxDisplayLines
	}
	if room := inlineRoom(frame) - 1; limit > room {
		limit = room
	}
	if limit < 1 {
		return nil
	}
	rows := []string{clip(styles.PreviewTitle.Render(previewTitle(p)), width)}
	return append(rows, previewBody(p, width, limit)...)
}

func (m *Model) sidePreview(p *surface.Preview, width, height int) string {
	inner := width - 2
	limit := height - 3
	if limit < 1 {
		limit = 1
	}
	rows := []string{clip(styles.PreviewTitle.Render(previewTitle(p)), inner)}
	rows = append(rows, previewBody(p, inner, limit)...)
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(styles.PreviewBorder.GetForeground()).
		Width(inner)
	return box.Render(strings.Join(rows, "\n"))
}

func previewTitle(p *surface.Preview) string {
	if p.Title == "" {
		return "preview"
	}
	return p.Title
}

// previewBody returns at most limit lines, scrolled so the highlighted line
// is visible.
func previewBody(p *surface.Preview, width, limit int) []string {
	start := 0
	if p.Highlight > limit {
		start = p.Highlight - limit/2 - 1
	}
	if last := len(p.Lines) - limit; start > last {
		start = last
	}
	if start < 0 {
		start = 0
	}
	rows := make([]string, 0, limit)
	for i := start; i < len(p.Lines) && len(rows) < limit; i++ {
		style := styles.PreviewBody
		if i+1 == p.Highlight {
			style = styles.PreviewLine
			if p.Group != "" {
				if g, ok := styles.Groups[p.Group]; ok {
					style = g
				}
			}
		}
		rows = append(rows, style.Render(clip(p.Lines[i], width)))
	}
	return rows
}

func clip(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if lipgloss.Width(s) <= width {
		return s
	}
	return truncate.StringWithTail(s, uint(width), ellipsis)
}

func padRight(s string, width int) string {
	if w := lipgloss.Width(s); w < width {
		return s + strings.Repeat(" ", width-w)
	}
	return s
}
