package tmux

import "strings"

var namedKeys = map[string]string{
	"enter":     "Enter",
	"esc":       "Escape",
	"tab":       "Tab",
	"shift+tab": "BTab",
	"backspace": "BSpace",
	"delete":    "DC",
	"insert":    "IC",
	"space":     "Space",
	" ":         "Space",
	"up":        "Up",
	"down":      "Down",
	"left":      "Left",
	"right":     "Right",
	"home":      "Home",
	"end":       "End",
	"pgup":      "PPage",
	"pgdown":    "NPage",
}

// tmuxKey translates a key name as the terminal UI reports it ("ctrl+x",
// "alt+enter", "pgdown") into tmux key syntax ("C-x", "M-Enter", "NPage").
func tmuxKey(key string) string {
	if named, ok := namedKeys[key]; ok {
		return named
	}
	var prefix strings.Builder
	rest := key
	for {
		switch {
		case strings.HasPrefix(rest, "ctrl+") && len(rest) > len("ctrl+"):
			prefix.WriteString("C-")
			rest = rest[len("ctrl+"):]
			continue
		case strings.HasPrefix(rest, "alt+") && len(rest) > len("alt+"):
			prefix.WriteString("M-")
			rest = rest[len("alt+"):]
			continue
		case strings.HasPrefix(rest, "shift+") && len(rest) > len("shift+"):
			prefix.WriteString("S-")
			rest = rest[len("shift+"):]
			continue
		}
		break
	}
	if named, ok := namedKeys[rest]; ok {
		rest = named
	} else if len(rest) > 1 && rest[0] == 'f' && atoi(rest[1:]) > 0 {
		rest = "F" + rest[1:]
	}
	return prefix.String() + rest
}

// splitKeys turns a feedkeys string into tmux key tokens. A literal string
// is one key.
func splitKeys(keys string, literal bool) []string {
	var tokens []string
	if literal || strings.TrimSpace(keys) == "" {
		tokens = []string{keys}
	} else {
		tokens = strings.Fields(keys)
	}
	out := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if token == "" {
			continue
		}
		out = append(out, tmuxKey(token))
	}
	return out
}
