package tmux

import (
	"fmt"
	"strings"

	"github.com/atomicstack/tmux-popup-list/internal/logging/events"
)

// Run executes a tmux command and returns its output.
func Run(socketPath string, parts ...string) (string, error) {
	if len(parts) == 0 {
		return "", fmt.Errorf("empty tmux command")
	}
	client, err := newTmux(socketPath)
	if err != nil {
		return "", err
	}
	events.Command.Run(parts)
	out, err := client.Command(parts...)
	events.Command.Result(parts, err)
	if err != nil {
		return "", fmt.Errorf("%s: %w", parts[0], err)
	}
	return out, nil
}

// SwitchTo moves the origin client to target, which may name a session, a
// window or a pane.
func SwitchTo(socketPath, target string) error {
	target = strings.TrimSpace(target)
	if target == "" {
		return fmt.Errorf("switch target required")
	}
	args := []string{"switch-client", "-t", target}
	if id, err := CurrentClientID(socketPath); err == nil && id != "" {
		args = []string{"switch-client", "-c", id, "-t", target}
	}
	_, err := Run(socketPath, args...)
	return err
}

// KillSession kills the named session.
func KillSession(socketPath, name string) error {
	_, err := Run(socketPath, "kill-session", "-t", name)
	return err
}

// KillWindow kills the window target.
func KillWindow(socketPath, target string) error {
	_, err := Run(socketPath, "kill-window", "-t", target)
	return err
}

// KillPane kills the pane target.
func KillPane(socketPath, target string) error {
	_, err := Run(socketPath, "kill-pane", "-t", target)
	return err
}

// ShowBuffer returns the content of a paste buffer; an empty name reads the
// most recent one.
func ShowBuffer(socketPath, name string) (string, error) {
	args := []string{"show-buffer"}
	if name != "" {
		args = append(args, "-b", name)
	}
	return Run(socketPath, args...)
}

// SetBuffer stores value in a paste buffer; an empty name creates a new one.
func SetBuffer(socketPath, name, value string) error {
	args := []string{"set-buffer"}
	if name != "" {
		args = append(args, "-b", name)
	}
	_, err := Run(socketPath, append(args, "--", value)...)
	return err
}

// PasteBuffer pastes a buffer into pane, or into the origin pane when pane
// is empty.
func PasteBuffer(socketPath, name, pane string) error {
	if pane == "" {
		pane = originPane()
	}
	args := []string{"paste-buffer", "-b", name}
	if pane != "" {
		args = append(args, "-t", pane)
	}
	_, err := Run(socketPath, args...)
	return err
}

// DeleteBuffer removes a paste buffer.
func DeleteBuffer(socketPath, name string) error {
	_, err := Run(socketPath, "delete-buffer", "-b", name)
	return err
}

// SendKeys types keys into pane, or into the origin pane when pane is empty.
func SendKeys(socketPath, pane string, keys ...string) error {
	if pane == "" {
		pane = originPane()
	}
	args := []string{"send-keys"}
	if pane != "" {
		args = append(args, "-t", pane)
	}
	_, err := Run(socketPath, append(args, keys...)...)
	return err
}
