// Package testutil runs private tmux servers and the built binary for
// integration tests.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gotmux "github.com/atomicstack/gotmuxcc/gotmuxcc"
)

// DefaultSession is created with every server.
const DefaultSession = "tmux-popup-list-test"

// ErrPaneUnavailable is returned by Capture while the target does not exist.
var ErrPaneUnavailable = errors.New("tmux pane unavailable")

// Server is a tmux server bound to a socket in a temporary directory. It is
// killed when the test ends.
type Server struct {
	t      *testing.T
	Socket string
	Dir    string
}

// NewServer starts a server with one detached session. Tests are skipped
// when tmux is missing or refuses to start.
func NewServer(t *testing.T) *Server {
	t.Helper()
	if _, err := exec.LookPath("tmux"); err != nil {
		t.Skip("skipping: tmux binary not available")
	}
	dir, err := os.MkdirTemp("/tmp", "tmux-popup-list-*")
	if err != nil {
		t.Fatalf("failed to create tmux temp dir: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	s := &Server{t: t, Socket: filepath.Join(dir, "tmux.sock"), Dir: dir}
	if err := s.Command("-f", "/dev/null", "new-session", "-d", "-s", DefaultSession, "sleep", "600").Run(); err != nil {
		t.Skipf("skipping: failed to start tmux server: %v", err)
	}
	t.Cleanup(s.stop)
	return s
}

// stop checks the server survived the test, then kills it.
func (s *Server) stop() {
	if err := s.Command("list-sessions").Run(); err != nil {
		s.t.Errorf("tmux server on %s is gone before cleanup: %v", s.Socket, err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	client, err := gotmux.NewTmuxWithOptions(s.Socket, gotmux.WithContext(ctx))
	if err == nil {
		defer client.Close()
		err = client.KillServer()
	}
	if err != nil {
		s.t.Logf("control mode kill on %s failed: %v", s.Socket, err)
		_ = s.Command("kill-server").Run()
	}
}

// Command prepares a tmux invocation against the server. TMUX is cleared so
// an enclosing session is never touched.
func (s *Server) Command(args ...string) *exec.Cmd {
	cmd := exec.Command("tmux", append([]string{"-S", s.Socket}, args...)...)
	env := make([]string, 0, len(os.Environ())+2)
	for _, entry := range os.Environ() {
		if !strings.HasPrefix(entry, "TMUX=") {
			env = append(env, entry)
		}
	}
	cmd.Env = append(env, "TMUX=", "TMUX_TMPDIR="+s.Dir)
	return cmd
}

// Run executes a tmux command and includes its output in the error.
func (s *Server) Run(args ...string) error {
	out, err := s.Command(args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("tmux %s: %w (%s)", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Capture returns what target currently shows.
func (s *Server) Capture(target string) (string, error) {
	out, err := s.Command("capture-pane", "-p", "-t", target).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return "", ErrPaneUnavailable
		}
		return "", fmt.Errorf("capture-pane %s: %w", target, err)
	}
	return string(out), nil
}
