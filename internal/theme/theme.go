package theme

import "github.com/charmbracelet/lipgloss"

// Styles defines the palette used when rendering a list.
type Styles struct {
	Loading       *lipgloss.Style
	Item          *lipgloss.Style
	CursorItem    *lipgloss.Style
	VisualItem    *lipgloss.Style
	Sign          *lipgloss.Style
	Match         *lipgloss.Style
	Highlight     *lipgloss.Style
	Error         *lipgloss.Style
	Info          *lipgloss.Style
	Header        *lipgloss.Style
	Status        *lipgloss.Style
	StatusMode    *lipgloss.Style
	Footer        *lipgloss.Style
	Filter        *lipgloss.Style
	FilterPrompt  *lipgloss.Style
	Cursor        *lipgloss.Style
	PreviewTitle  *lipgloss.Style
	PreviewBody   *lipgloss.Style
	PreviewLine   *lipgloss.Style
	PreviewBorder *lipgloss.Style
	ChoiceTitle   *lipgloss.Style
	Choice        *lipgloss.Style
	ChoiceCursor  *lipgloss.Style

	// Groups maps highlight group names carried by item spans to styles.
	Groups map[string]*lipgloss.Style
}

var defaultStyles = Styles{
	Loading:       ptr(lipgloss.NewStyle().Foreground(lipgloss.Color("33")).Italic(true)),
	Item:          ptr(lipgloss.NewStyle().Foreground(lipgloss.Color("249"))),
	CursorItem:    ptr(lipgloss.NewStyle().Foreground(lipgloss.Color("255")).Background(lipgloss.Color("238")).Bold(true)),
	VisualItem:    ptr(lipgloss.NewStyle().Foreground(lipgloss.Color("255")).Background(lipgloss.Color("24"))),
	Sign:          ptr(lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)),
	Match:         ptr(lipgloss.NewStyle().Foreground(lipgloss.Color("33")).Bold(true)),
	Highlight:     ptr(lipgloss.NewStyle().Foreground(lipgloss.Color("108"))),
	Error:         ptr(lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)),
	Info:          ptr(lipgloss.NewStyle().Foreground(lipgloss.Color("249"))),
	Header:        ptr(lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Bold(true)),
	Status:        ptr(lipgloss.NewStyle().Foreground(lipgloss.Color("250")).Background(lipgloss.Color("236"))),
	StatusMode:    ptr(lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("34")).Bold(true)),
	Footer:        ptr(lipgloss.NewStyle().Foreground(lipgloss.Color("241"))),
	Filter:        ptr(lipgloss.NewStyle().Foreground(lipgloss.Color("249"))),
	FilterPrompt:  ptr(lipgloss.NewStyle().Foreground(lipgloss.Color("34")).Bold(true)),
	Cursor:        ptr(lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("33"))),
	PreviewTitle:  ptr(lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Bold(true)),
	PreviewBody:   ptr(lipgloss.NewStyle().Foreground(lipgloss.Color("250"))),
	PreviewLine:   ptr(lipgloss.NewStyle().Foreground(lipgloss.Color("255")).Background(lipgloss.Color("58"))),
	PreviewBorder: ptr(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))),
	ChoiceTitle:   ptr(lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)),
	Choice:        ptr(lipgloss.NewStyle().Foreground(lipgloss.Color("249"))),
	ChoiceCursor:  ptr(lipgloss.NewStyle().Foreground(lipgloss.Color("255")).Background(lipgloss.Color("238")).Bold(true)),
	Groups: map[string]*lipgloss.Style{
		"ListSearch":  ptr(lipgloss.NewStyle().Foreground(lipgloss.Color("33")).Bold(true)),
		"Comment":     ptr(lipgloss.NewStyle().Foreground(lipgloss.Color("241"))),
		"Directory":   ptr(lipgloss.NewStyle().Foreground(lipgloss.Color("75"))),
		"Number":      ptr(lipgloss.NewStyle().Foreground(lipgloss.Color("173"))),
		"Search":      ptr(lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("214"))),
		"Special":     ptr(lipgloss.NewStyle().Foreground(lipgloss.Color("176"))),
		"Identifier":  ptr(lipgloss.NewStyle().Foreground(lipgloss.Color("109"))),
		"ErrorMsg":    ptr(lipgloss.NewStyle().Foreground(lipgloss.Color("196"))),
		"WarningMsg":  ptr(lipgloss.NewStyle().Foreground(lipgloss.Color("214"))),
		"ListCurrent": ptr(lipgloss.NewStyle().Foreground(lipgloss.Color("34")).Bold(true)),
	},
}

// Default exposes the standard style set used across the application.
func Default() *Styles {
	return &defaultStyles
}

// Group returns the style for a highlight group, falling back to Highlight.
func (s *Styles) Group(name string) *lipgloss.Style {
	if style, ok := s.Groups[name]; ok && style != nil {
		return style
	}
	return s.Highlight
}

func ptr(style lipgloss.Style) *lipgloss.Style {
	return &style
}
