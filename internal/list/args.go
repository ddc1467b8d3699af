// Package list runs list sessions: it parses start arguments, binds sources
// to workers and windows, and routes keystrokes through the mappings.
package list

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"github.com/atomicstack/tmux-popup-list/internal/source"
)

// ErrNoSession is returned when a key or action arrives without a session.
var ErrNoSession = errors.New("list: no active session")

// ArgError reports invalid start arguments. Nothing is started when it is
// returned.
type ArgError struct {
	Msg string
}

func (e *ArgError) Error() string { return e.Msg }

func argErrorf(format string, args ...interface{}) *ArgError {
	return &ArgError{Msg: fmt.Sprintf(format, args...)}
}

// Args is the parsed form of a start command.
type Args struct {
	Name     string
	Options  source.Options
	ListArgs []string
}

// ParseArgs parses flags followed by a list name. Everything after the name
// is handed to the source untouched.
func ParseArgs(args []string) (Args, error) {
	fs := pflag.NewFlagSet("list", pflag.ContinueOnError)
	fs.SetInterspersed(false)
	fs.SetOutput(io.Discard)
	fs.Usage = func() {}

	input := fs.String("input", "", "initial prompt input")
	numberSelect := fs.BoolP("number-select", "N", false, "type a line number to move to it")
	autoPreview := fs.BoolP("auto-preview", "A", false, "preview the item under the cursor")
	regex := fs.BoolP("regex", "R", false, "use the regex matcher")
	strict := fs.BoolP("strict", "S", false, "use the strict matcher")
	interactive := fs.BoolP("interactive", "I", false, "let the source filter for each input")
	top := fs.Bool("top", false, "open the window at the top")
	tab := fs.Bool("tab", false, "open the window full screen")
	ignoreCase := fs.Bool("ignore-case", false, "ignore case when matching")
	normal := fs.Bool("normal", false, "start in normal mode")
	noSort := fs.Bool("no-sort", false, "keep source order")
	first := fs.Bool("first", false, "run the default action on the first item")
	noQuit := fs.Bool("no-quit", false, "keep the list open after actions")

	if err := fs.Parse(args); err != nil {
		return Args{}, argErrorf("invalid list arguments: %v", err)
	}
	rest := fs.Args()
	if len(rest) == 0 {
		return Args{}, argErrorf("list name required")
	}
	if *regex && *strict {
		return Args{}, argErrorf("--regex and --strict cannot be combined")
	}

	opts := source.DefaultOptions()
	opts.Input = *input
	opts.NumberSelect = *numberSelect
	opts.AutoPreview = *autoPreview
	opts.Interactive = *interactive
	opts.IgnoreCase = *ignoreCase
	opts.Sort = !*noSort
	opts.First = *first
	opts.NoQuit = *noQuit
	switch {
	case *regex:
		opts.Matcher = source.MatcherRegex
	case *strict:
		opts.Matcher = source.MatcherStrict
	}
	switch {
	case *tab:
		opts.Position = source.PositionTab
	case *top:
		opts.Position = source.PositionTop
	}
	if *normal || *numberSelect {
		opts.Mode = source.ModeNormal
	}

	return Args{
		Name:     rest[0],
		Options:  opts,
		ListArgs: append([]string(nil), rest[1:]...),
	}, nil
}
