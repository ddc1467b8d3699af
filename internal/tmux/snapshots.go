package tmux

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	sessionFormat = "#{session_name}\t#{session_windows}"
	windowFormat  = "#{window_id}\t#{session_name}\t#{window_index}\t#{window_name}\t#{window_active}"
	paneFormat    = "#{pane_id}\t#{session_name}\t#{window_id}\t#{window_index}\t#{pane_index}\t#{pane_title}\t#{pane_current_command}\t#{pane_current_path}\t#{pane_active}"
	bufferFormat  = "#{buffer_name}\t#{buffer_size}\t#{buffer_created}\t#{buffer_sample}"
	originFormat  = "#{session_name}\t#{window_id}\t#{pane_id}"
)

// origin is the session, window and pane the popup was opened from.
type origin struct {
	session string
	window  string
	pane    string
}

func fetchOrigin(client tmuxClient) origin {
	out, err := client.DisplayMessage(originPane(), originFormat)
	if err != nil {
		return origin{}
	}
	fields := splitFields(strings.TrimSpace(out), 3)
	return origin{session: fields[0], window: fields[1], pane: fields[2]}
}

// FetchSessions lists every session. Control-mode clients do not count as
// attached.
func FetchSessions(socketPath string) ([]Session, error) {
	client, err := newTmux(socketPath)
	if err != nil {
		return nil, err
	}
	lines, err := client.ListSessionsFormat(sessionFormat)
	if err != nil {
		return nil, fmt.Errorf("list-sessions: %w", err)
	}
	attached := map[string]bool{}
	if clients, err := client.ListClients(); err == nil {
		for _, c := range clients {
			if c != nil && !c.ControlMode {
				attached[c.Session] = true
			}
		}
	}
	current := fetchOrigin(client).session
	out := make([]Session, 0, len(lines))
	for _, line := range nonEmpty(lines) {
		fields := splitFields(line, 2)
		out = append(out, Session{
			Name:     fields[0],
			Windows:  atoi(fields[1]),
			Attached: attached[fields[0]],
			Current:  fields[0] == current,
		})
	}
	return out, nil
}

// FetchWindows lists the windows of every session.
func FetchWindows(socketPath string) ([]Window, error) {
	client, err := newTmux(socketPath)
	if err != nil {
		return nil, err
	}
	lines, err := client.ListWindowsFormat("", "", windowFormat)
	if err != nil {
		return nil, fmt.Errorf("list-windows: %w", err)
	}
	current := fetchOrigin(client).window
	out := make([]Window, 0, len(lines))
	for _, line := range nonEmpty(lines) {
		fields := splitFields(line, 5)
		w := Window{
			ID:      fields[0],
			Session: fields[1],
			Index:   atoi(fields[2]),
			Name:    fields[3],
			Active:  fields[4] == "1",
			Current: fields[0] == current,
		}
		w.Target = fmt.Sprintf("%s:%d", w.Session, w.Index)
		out = append(out, w)
	}
	return out, nil
}

// FetchPanes lists every pane of the server.
func FetchPanes(socketPath string) (PaneSnapshot, error) {
	client, err := newTmux(socketPath)
	if err != nil {
		return PaneSnapshot{}, err
	}
	lines, err := client.ListPanesFormat("", "", paneFormat)
	if err != nil {
		return PaneSnapshot{}, fmt.Errorf("list-panes: %w", err)
	}
	from := fetchOrigin(client)
	snapshot := PaneSnapshot{CurrentPane: from.pane, CurrentWindow: from.window}
	for _, line := range nonEmpty(lines) {
		fields := splitFields(line, 9)
		p := Pane{
			ID:       fields[0],
			Session:  fields[1],
			WindowID: fields[2],
			Index:    atoi(fields[4]),
			Title:    fields[5],
			Command:  fields[6],
			Path:     fields[7],
			Active:   fields[8] == "1",
			Current:  fields[0] == from.pane,
		}
		p.Target = fmt.Sprintf("%s:%s.%d", p.Session, fields[3], p.Index)
		snapshot.Panes = append(snapshot.Panes, p)
	}
	return snapshot, nil
}

// FetchBuffers lists the paste buffers, most recent first as tmux orders
// them.
func FetchBuffers(socketPath string) ([]Buffer, error) {
	client, err := newTmux(socketPath)
	if err != nil {
		return nil, err
	}
	out, err := client.Command("list-buffers", "-F", bufferFormat)
	if err != nil {
		return nil, fmt.Errorf("list-buffers: %w", err)
	}
	var buffers []Buffer
	for _, line := range nonEmpty(strings.Split(out, "\n")) {
		fields := splitFields(line, 4)
		created, _ := strconv.ParseInt(fields[2], 10, 64)
		buffers = append(buffers, Buffer{
			Name:    fields[0],
			Size:    atoi(fields[1]),
			Created: created,
			Sample:  fields[3],
		})
	}
	return buffers, nil
}

// FetchKeyBindings parses list-keys output.
func FetchKeyBindings(socketPath string) ([]KeyBinding, error) {
	client, err := newTmux(socketPath)
	if err != nil {
		return nil, err
	}
	out, err := client.Command("list-keys")
	if err != nil {
		return nil, fmt.Errorf("list-keys: %w", err)
	}
	var bindings []KeyBinding
	for _, line := range nonEmpty(strings.Split(out, "\n")) {
		if b, ok := parseKeyBinding(line); ok {
			bindings = append(bindings, b)
		}
	}
	return bindings, nil
}

// parseKeyBinding reads "bind-key [-r] [-N note] -T table key command...".
func parseKeyBinding(line string) (KeyBinding, bool) {
	fields := strings.Fields(line)
	if len(fields) < 2 || fields[0] != "bind-key" {
		return KeyBinding{}, false
	}
	var b KeyBinding
	i := 1
	for i < len(fields) && strings.HasPrefix(fields[i], "-") && len(fields[i]) > 1 {
		switch fields[i] {
		case "-T":
			if i+1 < len(fields) {
				b.Table = fields[i+1]
			}
			i += 2
		case "-N":
			i += 2
		default:
			i++
		}
	}
	if i+1 >= len(fields) {
		return KeyBinding{}, false
	}
	b.Key = fields[i]
	b.Command = strings.Join(fields[i+1:], " ")
	return b, true
}

func nonEmpty(lines []string) []string {
	out := lines[:0:0]
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			out = append(out, strings.TrimRight(line, "\r"))
		}
	}
	return out
}

// splitFields splits a tab separated line into exactly n fields.
func splitFields(line string, n int) []string {
	fields := strings.SplitN(line, "\t", n)
	for len(fields) < n {
		fields = append(fields, "")
	}
	return fields
}

func atoi(s string) int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return v
}
