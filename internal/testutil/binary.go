package testutil

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// BuildBinary compiles the command at the repository root into a temporary
// directory.
func BuildBinary(t *testing.T) string {
	t.Helper()
	tdir := t.TempDir()
	bin := filepath.Join(tdir, "tmux-popup-list")
	cmd := exec.Command("go", "build", "-o", bin, ".")
	cmd.Dir = repoRoot(t)
	cmd.Env = append(os.Environ(), "GOCACHE="+filepath.Join(tdir, ".gocache"))
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("failed to build binary: %v\n%s", err, out)
	}
	return bin
}

// WaitFor polls target until it shows want. exitPath, when set, is a file
// the launcher writes the exit code to; a non-zero code fails the test.
func (s *Server) WaitFor(ctx context.Context, target, exitPath, want string) string {
	s.t.Helper()
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			out, _ := s.Capture(target)
			s.t.Fatalf("timeout waiting for %q: %v\n%s", want, ctx.Err(), out)
		case <-tick.C:
			if code := exitCode(exitPath); code != "" && code != "0" {
				s.t.Fatalf("tmux-popup-list exited early with code %s", code)
			}
			out, err := s.Capture(target)
			if errors.Is(err, ErrPaneUnavailable) {
				continue
			}
			if err != nil {
				s.t.Fatalf("%v", err)
			}
			if strings.Contains(out, want) {
				return out
			}
		}
	}
}

func exitCode(path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func repoRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd failed: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return dir
		}
		dir = parent
	}
}
