package tmux

import (
	"context"
	"os/exec"

	gotmux "github.com/atomicstack/gotmuxcc/gotmuxcc"
)

// Session is one row of list-sessions.
type Session struct {
	Name     string
	Windows  int
	Attached bool
	Current  bool
}

// Window is one row of list-windows -a.
type Window struct {
	ID      string
	Target  string
	Session string
	Index   int
	Name    string
	Active  bool
	Current bool
}

// Pane is one row of list-panes -a.
type Pane struct {
	ID       string
	Target   string
	Session  string
	WindowID string
	Index    int
	Title    string
	Command  string
	Path     string
	Active   bool
	Current  bool
}

// Buffer is a tmux paste buffer.
type Buffer struct {
	Name    string
	Size    int
	Sample  string
	Created int64
}

// KeyBinding is one line of list-keys.
type KeyBinding struct {
	Table   string
	Key     string
	Command string
}

// PaneSnapshot is every pane of the server plus the pane the popup was
// opened from.
type PaneSnapshot struct {
	Panes         []Pane
	CurrentPane   string
	CurrentWindow string
}

type tmuxClient interface {
	ListSessionsFormat(format string) ([]string, error)
	ListWindowsFormat(target, filter, format string) ([]string, error)
	ListPanesFormat(target, filter, format string) ([]string, error)
	ListClients() ([]*gotmux.Client, error)
	DisplayMessage(target, format string) (string, error)
	Command(parts ...string) (string, error)
	Close() error
}

var (
	dialTmux = func(ctx context.Context, socketPath string) (tmuxClient, error) {
		if socketPath != "" {
			return gotmux.NewTmuxWithOptions(socketPath, gotmux.WithContext(ctx))
		}
		return gotmux.DefaultTmux()
	}

	newTmux = cachedTmux

	runExecCommand = func(name string, args ...string) commander {
		return realCommander{cmd: exec.Command(name, args...)}
	}
)

type commander interface {
	Run() error
	Output() ([]byte, error)
}

type realCommander struct {
	cmd *exec.Cmd
}

func (r realCommander) Run() error {
	return r.cmd.Run()
}

func (r realCommander) Output() ([]byte, error) {
	return r.cmd.Output()
}
