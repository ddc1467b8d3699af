package list

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/key"
	"github.com/google/shlex"

	"github.com/atomicstack/tmux-popup-list/internal/config"
	"github.com/atomicstack/tmux-popup-list/internal/logging"
	"github.com/atomicstack/tmux-popup-list/internal/logging/events"
	"github.com/atomicstack/tmux-popup-list/internal/source"
)

// Verb selects what a Binding does.
type Verb string

const (
	VerbDo         Verb = "do"
	VerbPrompt     Verb = "prompt"
	VerbEval       Verb = "eval"
	VerbCommand    Verb = "command"
	VerbAction     Verb = "action"
	VerbFeedkeys   Verb = "feedkeys"
	VerbNormal     Verb = "normal"
	VerbNormalBang Verb = "normal!"
	VerbCall       Verb = "call"
	VerbExpr       Verb = "expr"
)

var doNames = map[string]struct{}{
	"refresh": {}, "exit": {}, "stop": {}, "cancel": {}, "toggle": {},
	"togglemode": {}, "switch": {}, "previous": {}, "next": {}, "first": {},
	"last": {}, "defaultaction": {}, "chooseaction": {}, "selectall": {},
	"clear": {}, "preview": {}, "help": {},
}

var promptNames = map[string]struct{}{
	"previous": {}, "next": {}, "start": {}, "end": {}, "left": {}, "right": {},
	"leftword": {}, "rightword": {}, "deletebackward": {}, "deleteforward": {},
	"removeword": {}, "removetail": {}, "removeahead": {}, "clear": {},
	"paste": {}, "insertregister": {},
}

// Binding is a parsed mapping expression such as "do:refresh".
type Binding struct {
	Verb Verb
	Arg  string
	// Keys holds the key sequence of feedkeys and normal bindings.
	Keys []string
}

func (b Binding) String() string {
	return string(b.Verb) + ":" + b.Arg
}

// ParseBinding parses a mapping expression once, so dispatch never
// re-parses it.
func ParseBinding(expr string) (Binding, error) {
	idx := strings.Index(expr, ":")
	if idx <= 0 {
		return Binding{}, fmt.Errorf("mapping %q: missing verb", expr)
	}
	b := Binding{Verb: Verb(expr[:idx]), Arg: strings.TrimSpace(expr[idx+1:])}
	if b.Arg == "" {
		return Binding{}, fmt.Errorf("mapping %q: missing argument", expr)
	}
	switch b.Verb {
	case VerbDo:
		if _, ok := doNames[b.Arg]; !ok {
			return Binding{}, fmt.Errorf("mapping %q: unknown do action %q", expr, b.Arg)
		}
	case VerbPrompt:
		if _, ok := promptNames[b.Arg]; !ok {
			return Binding{}, fmt.Errorf("mapping %q: unknown prompt action %q", expr, b.Arg)
		}
	case VerbCommand:
		argv, err := shlex.Split(b.Arg)
		if err != nil {
			return Binding{}, fmt.Errorf("mapping %q: %w", expr, err)
		}
		if len(argv) == 0 {
			return Binding{}, fmt.Errorf("mapping %q: empty command", expr)
		}
	case VerbFeedkeys, VerbNormal, VerbNormalBang:
		b.Keys = strings.Fields(b.Arg)
	case VerbEval, VerbAction, VerbCall, VerbExpr:
	default:
		return Binding{}, fmt.Errorf("mapping %q: unknown verb %q", expr, b.Verb)
	}
	return b, nil
}

type defaultBinding struct {
	key     key.Binding
	binding Binding
}

func bind(verb Verb, arg, help string, keys ...string) defaultBinding {
	return defaultBinding{
		key:     key.NewBinding(key.WithKeys(keys...), key.WithHelp(strings.Join(keys, "/"), help)),
		binding: Binding{Verb: verb, Arg: arg},
	}
}

func defaultInsertBindings() []defaultBinding {
	return []defaultBinding{
		bind(VerbDo, "cancel", "hide the list", "esc"),
		bind(VerbDo, "exit", "close the list", "ctrl+c"),
		bind(VerbDo, "defaultaction", "run the default action", "enter"),
		bind(VerbDo, "chooseaction", "choose an action", "tab"),
		bind(VerbDo, "togglemode", "switch to normal mode", "ctrl+o"),
		bind(VerbDo, "switch", "cycle the matcher", "ctrl+s"),
		bind(VerbDo, "refresh", "reload items", "ctrl+l"),
		bind(VerbDo, "toggle", "toggle selection", "ctrl+t"),
		bind(VerbDo, "next", "next item", "down", "ctrl+n"),
		bind(VerbDo, "previous", "previous item", "up", "ctrl+p"),
		bind(VerbPrompt, "previous", "older input", "alt+up"),
		bind(VerbPrompt, "next", "newer input", "alt+down"),
		bind(VerbPrompt, "left", "cursor left", "left", "ctrl+b"),
		bind(VerbPrompt, "right", "cursor right", "right", "ctrl+f"),
		bind(VerbPrompt, "leftword", "word left", "alt+left", "alt+b"),
		bind(VerbPrompt, "rightword", "word right", "alt+right", "alt+f"),
		bind(VerbPrompt, "start", "start of input", "home", "ctrl+a"),
		bind(VerbPrompt, "end", "end of input", "end", "ctrl+e"),
		bind(VerbPrompt, "deletebackward", "delete backward", "backspace", "ctrl+h"),
		bind(VerbPrompt, "deleteforward", "delete forward", "delete"),
		bind(VerbPrompt, "removeword", "delete word", "ctrl+w"),
		bind(VerbPrompt, "removeahead", "delete to start", "ctrl+u"),
		bind(VerbPrompt, "paste", "paste clipboard", "ctrl+v"),
		bind(VerbPrompt, "insertregister", "paste tmux buffer", "ctrl+r"),
	}
}

func defaultNormalBindings() []defaultBinding {
	return []defaultBinding{
		bind(VerbDo, "cancel", "hide the list", "esc", "q"),
		bind(VerbDo, "exit", "close the list", "ctrl+c"),
		bind(VerbDo, "defaultaction", "run the default action", "enter"),
		bind(VerbDo, "chooseaction", "choose an action", "tab"),
		bind(VerbDo, "togglemode", "switch to insert mode", "i", "I", "a", "A", "o", "O"),
		bind(VerbDo, "switch", "cycle the matcher", "ctrl+s"),
		bind(VerbDo, "refresh", "reload items", "ctrl+l"),
		bind(VerbDo, "toggle", "toggle selection", " ", "t"),
		bind(VerbDo, "selectall", "select every item", "*"),
		bind(VerbDo, "clear", "clear selection", "c"),
		bind(VerbDo, "preview", "toggle preview", "p"),
		bind(VerbDo, "stop", "stop loading", "x"),
		bind(VerbDo, "help", "show key bindings", "?"),
		bind(VerbDo, "next", "next item", "ctrl+n"),
		bind(VerbDo, "previous", "previous item", "ctrl+p"),
	}
}

// Mappings resolves keys to bindings. Navigation keymaps win over user
// mappings, which win over the defaults.
type Mappings struct {
	mu       sync.RWMutex
	nav      map[string]Binding
	user     map[source.Mode]map[string]Binding
	defaults map[source.Mode][]defaultBinding
}

// NewMappings builds the tables from cfg. Invalid user entries are logged
// and skipped.
func NewMappings(cfg config.ListSettings) *Mappings {
	m := &Mappings{defaults: map[source.Mode][]defaultBinding{
		source.ModeInsert: defaultInsertBindings(),
		source.ModeNormal: defaultNormalBindings(),
	}}
	if err := m.Configure(cfg); err != nil {
		logging.Error(err)
	}
	return m
}

// Configure rebuilds the navigation and user tables. Every malformed entry
// is logged; the valid ones take effect regardless.
func (m *Mappings) Configure(cfg config.ListSettings) error {
	nav := map[string]Binding{}
	if cfg.NextKeymap != "" {
		nav[cfg.NextKeymap] = Binding{Verb: VerbDo, Arg: "next"}
	}
	if cfg.PreviousKeymap != "" {
		nav[cfg.PreviousKeymap] = Binding{Verb: VerbDo, Arg: "previous"}
	}
	var errs []error
	build := func(entries map[string]string) map[string]Binding {
		table := make(map[string]Binding, len(entries))
		keys := make([]string, 0, len(entries))
		for k := range entries {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b, err := ParseBinding(entries[k])
			if err != nil {
				events.Mapping.Invalid(k, entries[k], err)
				errs = append(errs, err)
				continue
			}
			table[k] = b
		}
		return table
	}
	user := map[source.Mode]map[string]Binding{
		source.ModeInsert: build(cfg.InsertMappings),
		source.ModeNormal: build(cfg.NormalMappings),
	}
	m.mu.Lock()
	m.nav = nav
	m.user = user
	m.mu.Unlock()
	return errors.Join(errs...)
}

// Resolve returns the binding of k in mode.
func (m *Mappings) Resolve(mode source.Mode, k string) (Binding, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if b, ok := m.nav[k]; ok {
		return b, true
	}
	if b, ok := m.user[mode][k]; ok {
		return b, true
	}
	for _, d := range m.defaults[mode] {
		if !d.key.Enabled() {
			continue
		}
		for _, candidate := range d.key.Keys() {
			if candidate == k {
				return d.binding, true
			}
		}
	}
	return Binding{}, false
}

// Help lists the bindings of mode, navigation and user entries first.
func (m *Mappings) Help(mode source.Mode) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var lines []string
	navKeys := make([]string, 0, len(m.nav))
	for k := range m.nav {
		navKeys = append(navKeys, k)
	}
	sort.Strings(navKeys)
	for _, k := range navKeys {
		lines = append(lines, fmt.Sprintf("%-16s %s", k, m.nav[k]))
	}
	userKeys := make([]string, 0, len(m.user[mode]))
	for k := range m.user[mode] {
		userKeys = append(userKeys, k)
	}
	sort.Strings(userKeys)
	for _, k := range userKeys {
		lines = append(lines, fmt.Sprintf("%-16s %s", k, m.user[mode][k]))
	}
	for _, d := range m.defaults[mode] {
		h := d.key.Help()
		lines = append(lines, fmt.Sprintf("%-16s %s", h.Key, h.Desc))
	}
	return lines
}
