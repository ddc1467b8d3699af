package tmux

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/shlex"

	"github.com/atomicstack/tmux-popup-list/internal/surface"
)

const identityFormat = "#{pane_current_path}\t#{window_id}\t#{pane_id}"

// Host exposes the tmux server the popup runs in: paste buffers act as
// registers, commands and format expansion go through the control-mode
// client and keys are sent to the pane the popup was opened from.
type Host struct {
	socket string
	pane   string
}

var _ surface.Host = (*Host)(nil)

// NewHost returns a Host for socketPath. pane overrides the origin pane
// taken from TMUX_PANE.
func NewHost(socketPath, pane string) *Host {
	if pane == "" {
		pane = originPane()
	}
	return &Host{socket: socketPath, pane: pane}
}

// Register reads a paste buffer; "" is the most recent one.
func (h *Host) Register(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return ShowBuffer(h.socket, name)
}

func (h *Host) SetRegister(ctx context.Context, name, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return SetBuffer(h.socket, name, value)
}

// Command runs a tmux command line such as "new-window -n 'two words'".
func (h *Host) Command(ctx context.Context, command string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	parts, err := shlex.Split(command)
	if err != nil {
		return fmt.Errorf("parse command %q: %w", command, err)
	}
	if len(parts) == 0 {
		return fmt.Errorf("empty command")
	}
	_, err = Run(h.socket, parts...)
	return err
}

// Eval expands a tmux format in the context of the origin pane.
func (h *Host) Eval(ctx context.Context, expr string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	client, err := newTmux(h.socket)
	if err != nil {
		return "", err
	}
	out, err := client.DisplayMessage(h.pane, expr)
	if err != nil {
		return "", fmt.Errorf("expand %q: %w", expr, err)
	}
	return strings.TrimRight(out, "\n"), nil
}

func (h *Host) FeedKeys(ctx context.Context, keys string, literal bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tokens := splitKeys(keys, literal)
	if len(tokens) == 0 {
		return nil
	}
	return SendKeys(h.socket, h.pane, tokens...)
}

func (h *Host) Identity(ctx context.Context) (surface.Identity, error) {
	if err := ctx.Err(); err != nil {
		return surface.Identity{}, err
	}
	out, err := h.Eval(ctx, identityFormat)
	if err != nil {
		return surface.Identity{}, err
	}
	fields := splitFields(strings.TrimSpace(out), 3)
	return surface.Identity{Cwd: fields[0], Window: fields[1], Buffer: fields[2]}, nil
}
