package tmux

import (
	"fmt"
	"strings"
)

// PreviewKind names the tmux entity a preview describes.
type PreviewKind string

const (
	PreviewSession PreviewKind = "session"
	PreviewWindow  PreviewKind = "window"
	PreviewPane    PreviewKind = "pane"
	PreviewBuffer  PreviewKind = "buffer"
)

// paneTail is how much pane history a preview shows.
const paneTail = 40

// Preview is the content of the preview panel for one entity. Highlight is a
// 0-based line or -1.
type Preview struct {
	Title     string
	Lines     []string
	Highlight int
}

type previewRecipe struct {
	fetch     func(socketPath, target string) (string, error)
	keepBlank bool
	tail      int
	// markLast highlights the newest line, where a prompt usually sits.
	markLast bool
	empty    string
}

var previewRecipes = map[PreviewKind]previewRecipe{
	PreviewSession: {
		fetch: func(socketPath, target string) (string, error) {
			return tmuxOutput(socketPath, "list-windows", "-t", target,
				"-F", "#{?window_active,*, } #{window_index}: #{window_name}")
		},
		empty: "(no windows)",
	},
	PreviewWindow: {
		fetch: func(socketPath, target string) (string, error) {
			return tmuxOutput(socketPath, "list-panes", "-t", target,
				"-F", "#{?pane_active,*, } #{pane_index}: #{pane_title} (#{pane_current_command})")
		},
		empty: "(no panes)",
	},
	PreviewPane: {
		fetch: func(socketPath, target string) (string, error) {
			return tmuxOutput(socketPath, "capture-pane", "-ep", "-S", fmt.Sprintf("-%d", paneTail), "-t", target)
		},
		keepBlank: true,
		tail:      paneTail,
		markLast:  true,
		empty:     "(pane is empty)",
	},
	PreviewBuffer: {
		fetch:     ShowBuffer,
		keepBlank: true,
		empty:     "(buffer is empty)",
	},
}

// LoadPreview fetches the preview of target. An entity without content
// yields a single placeholder line.
func LoadPreview(socketPath string, kind PreviewKind, target string) (Preview, error) {
	recipe, ok := previewRecipes[kind]
	if !ok {
		return Preview{}, fmt.Errorf("unknown preview kind %q", kind)
	}
	target = strings.TrimSpace(target)
	if target == "" {
		return Preview{}, fmt.Errorf("%s preview: target required", kind)
	}
	out, err := recipe.fetch(socketPath, target)
	if err != nil {
		return Preview{}, fmt.Errorf("%s preview %s: %w", kind, target, err)
	}
	p := Preview{Title: target, Lines: previewLines(out, recipe.keepBlank), Highlight: -1}
	if len(p.Lines) == 0 {
		p.Lines = []string{recipe.empty}
		return p, nil
	}
	if recipe.tail > 0 && len(p.Lines) > recipe.tail {
		p.Lines = p.Lines[len(p.Lines)-recipe.tail:]
	}
	if recipe.markLast {
		p.Highlight = len(p.Lines) - 1
	}
	return p, nil
}

// tmuxOutput runs the tmux CLI and returns its standard output.
func tmuxOutput(socketPath string, args ...string) (string, error) {
	out, err := runExecCommand("tmux", append(baseArgs(socketPath), args...)...).Output()
	if err != nil {
		return "", fmt.Errorf("%s: %w", args[0], err)
	}
	return string(out), nil
}

// previewLines splits command output into display lines with trailing
// blanks and carriage returns removed.
func previewLines(text string, keepBlank bool) []string {
	text = strings.TrimRight(strings.NewReplacer("\r\n", "\n", "\r", "\n").Replace(text), "\n")
	if text == "" {
		return nil
	}
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, " \t")
		if line == "" && !keepBlank {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}
