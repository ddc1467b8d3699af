package tmux

import (
	"context"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"sync"

	"github.com/atomicstack/tmux-popup-list/internal/logging"
)

var (
	clientMu     sync.Mutex
	cachedClient tmuxClient
	cachedSocket string
)

// cachedTmux reuses one control-mode connection per socket.
func cachedTmux(socketPath string) (tmuxClient, error) {
	clientMu.Lock()
	defer clientMu.Unlock()
	if cachedClient != nil && cachedSocket == socketPath {
		return cachedClient, nil
	}
	if cachedClient != nil {
		if err := cachedClient.Close(); err != nil {
			logging.Error(err)
		}
		cachedClient = nil
	}
	client, err := dialTmux(context.Background(), socketPath)
	if err != nil {
		return nil, fmt.Errorf("connect to tmux: %w", err)
	}
	cachedClient = client
	cachedSocket = socketPath
	return client, nil
}

// Shutdown closes the cached connection.
func Shutdown() {
	clientMu.Lock()
	defer clientMu.Unlock()
	if cachedClient != nil {
		if err := cachedClient.Close(); err != nil {
			logging.Error(err)
		}
	}
	cachedClient = nil
	cachedSocket = ""
}

// ResolveSocketPath picks the socket from the flag, the environment or the
// tmux default location, in that order.
func ResolveSocketPath(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if envSocket := os.Getenv("TMUX_POPUP_LIST_SOCKET"); envSocket != "" {
		return envSocket, nil
	}
	if tmuxEnv := os.Getenv("TMUX"); tmuxEnv != "" {
		parts := strings.Split(tmuxEnv, ",")
		if len(parts) > 0 && parts[0] != "" {
			return parts[0], nil
		}
	}
	baseDir := os.Getenv("TMUX_TMPDIR")
	if baseDir == "" {
		baseDir = "/tmp"
	}
	u, err := user.Current()
	if err != nil {
		return "", err
	}
	return filepath.Join(baseDir, fmt.Sprintf("tmux-%s", u.Uid), "default"), nil
}

// CurrentClientID returns the name of the client attached to the pane the
// popup was opened from.
func CurrentClientID(socketPath string) (string, error) {
	client, err := newTmux(socketPath)
	if err != nil {
		return "", err
	}
	name, err := client.DisplayMessage(originPane(), "#{client_name}")
	if err != nil {
		return "", fmt.Errorf("resolve client: %w", err)
	}
	return strings.TrimSpace(name), nil
}

// originPane is the pane that launched the popup, or "" for the current one.
func originPane() string {
	return strings.TrimSpace(os.Getenv("TMUX_PANE"))
}

func baseArgs(socketPath string) []string {
	if socketPath == "" {
		return nil
	}
	return []string{"-S", socketPath}
}
