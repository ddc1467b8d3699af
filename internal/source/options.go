package source

// Mode selects how keystrokes are interpreted by the prompt.
type Mode string

const (
	ModeInsert Mode = "insert"
	ModeNormal Mode = "normal"
)

// Matcher selects the filtering strategy.
type Matcher string

const (
	MatcherFuzzy  Matcher = "fuzzy"
	MatcherStrict Matcher = "strict"
	MatcherRegex  Matcher = "regex"
)

// Next cycles fuzzy, strict and regex in that order.
func (m Matcher) Next() Matcher {
	switch m {
	case MatcherFuzzy:
		return MatcherStrict
	case MatcherStrict:
		return MatcherRegex
	default:
		return MatcherFuzzy
	}
}

// Position places the list window.
type Position string

const (
	PositionBottom Position = "bottom"
	PositionTop    Position = "top"
	PositionTab    Position = "tab"
)

// Options is the per-session configuration snapshot. It is a value type:
// changes are made on copies.
type Options struct {
	Mode         Mode
	Matcher      Matcher
	Interactive  bool
	IgnoreCase   bool
	Sort         bool
	Position     Position
	Input        string
	First        bool
	AutoPreview  bool
	NoQuit       bool
	NumberSelect bool
}

// DefaultOptions returns the options used when no flags are given.
func DefaultOptions() Options {
	return Options{
		Mode:     ModeInsert,
		Matcher:  MatcherFuzzy,
		Sort:     true,
		Position: PositionBottom,
	}
}

// WithMode returns a copy of o using mode.
func (o Options) WithMode(mode Mode) Options {
	o.Mode = mode
	return o
}

// WithMatcher returns a copy of o using matcher.
func (o Options) WithMatcher(matcher Matcher) Options {
	o.Matcher = matcher
	return o
}
