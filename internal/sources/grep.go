package sources

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/atomicstack/tmux-popup-list/internal/source"
)

const (
	grepBatchSize = 128
	grepMaxLine   = 1024 * 1024
)

// Hit is one matching line.
type Hit struct {
	Path string
	Line int
	Text string
}

// grepCommand builds the search command for pattern below root. ripgrep is
// preferred; grep is the fallback.
var grepCommand = func(ctx context.Context, pattern, root string, ignoreCase bool) (*exec.Cmd, error) {
	if rg, err := exec.LookPath("rg"); err == nil {
		args := []string{"--line-number", "--no-heading", "--with-filename", "--color", "never"}
		if ignoreCase {
			args = append(args, "--ignore-case")
		} else {
			args = append(args, "--smart-case")
		}
		return exec.CommandContext(ctx, rg, append(args, "--", pattern, root)...), nil
	}
	grep, err := exec.LookPath("grep")
	if err != nil {
		return nil, errors.New("neither rg nor grep found in PATH")
	}
	args := []string{"-rnIH", "--exclude-dir=.git"}
	if ignoreCase {
		args = append(args, "-i")
	}
	return exec.CommandContext(ctx, grep, append(args, "--", pattern, root)...), nil
}

type grepSource struct {
	source.Basic
}

func (*grepSource) Options() []source.ArgOption {
	return []source.ArgOption{
		{Name: "pattern", Description: "pattern to search for, taken from the prompt with -I"},
		{Name: "[dir]", Description: "directory to search, relative to the pane directory"},
	}
}

// Grep searches the pane directory. With -I the prompt is the pattern and
// every change runs a new search.
func Grep(socket string) source.Source {
	src := &grepSource{}
	src.Basic = source.Basic{
		ListName: "grep",
		Desc:     "search file contents",
		Default:  "open",
		Server:   true,
		ActionList: []source.Action{
			{Name: "open", Run: func(ctx context.Context, lc source.Context, items []source.Item) error {
				hit, ok := items[0].Data.(Hit)
				if !ok {
					return fmt.Errorf("invalid search result")
				}
				return openInEditor(socket, hit.Path, hit.Line)
			}},
			previewAction(func(ctx context.Context, item source.Item) (string, []string, int, error) {
				hit, ok := item.Data.(Hit)
				if !ok {
					return "", nil, -1, fmt.Errorf("invalid search result")
				}
				lines, err := previewFile(hit.Path, hit.Line)
				return item.Location, lines, hit.Line - previewStart(hit.Line), err
			}),
			yank(func(item source.Item) string {
				if hit, ok := item.Data.(Hit); ok {
					return hit.Text
				}
				return item.Label
			}),
		},
		Load: func(ctx context.Context, lc source.Context) (source.Result, error) {
			pattern, dir := lc.Input, ""
			args := lc.Args
			if !lc.Options.Interactive {
				if len(args) == 0 {
					return source.Items(nil), nil
				}
				pattern, args = args[0], args[1:]
			}
			if len(args) > 0 {
				dir = args[0]
			}
			if strings.TrimSpace(pattern) == "" {
				return source.Items(nil), nil
			}
			root := resolveRoot(lc.Cwd, dir)
			em := source.NewEmitter(ctx)
			cmd, err := grepCommand(em.Context(), pattern, root, lc.Options.IgnoreCase)
			if err != nil {
				em.Cancel()
				return nil, err
			}
			go runGrep(em, cmd, root)
			return em, nil
		},
	}
	return src
}

// runGrep streams the output of cmd as items. Exit status 1 means no match.
func runGrep(em *source.Emitter, cmd *exec.Cmd, root string) {
	out, err := cmd.StdoutPipe()
	if err != nil {
		em.Fail(err)
		return
	}
	if err := cmd.Start(); err != nil {
		em.Fail(err)
		return
	}
	if err := scanHits(out, root, em.Emit); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		if em.Context().Err() == nil {
			em.Fail(fmt.Errorf("search: %w", err))
		}
		return
	}
	err = cmd.Wait()
	if em.Context().Err() != nil {
		return
	}
	var exitErr *exec.ExitError
	if err != nil && !(errors.As(err, &exitErr) && exitErr.ExitCode() == 1) {
		em.Fail(fmt.Errorf("search: %w", err))
		return
	}
	em.End()
}

// scanHits parses grep output from r and hands items to emit in batches.
func scanHits(r io.Reader, root string, emit func([]source.Item)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), grepMaxLine)
	batch := make([]source.Item, 0, grepBatchSize)
	last := time.Now()
	for scanner.Scan() {
		hit, ok := parseHit(scanner.Text())
		if !ok {
			continue
		}
		batch = append(batch, hitItem(hit, root))
		if len(batch) >= grepBatchSize || time.Since(last) > fileBatchLatency {
			emit(batch)
			batch = make([]source.Item, 0, grepBatchSize)
			last = time.Now()
		}
	}
	emit(batch)
	return scanner.Err()
}

// parseHit reads "path:line:text".
func parseHit(line string) (Hit, bool) {
	first := strings.IndexByte(line, ':')
	if first <= 0 {
		return Hit{}, false
	}
	rest := line[first+1:]
	second := strings.IndexByte(rest, ':')
	if second <= 0 {
		return Hit{}, false
	}
	n, err := strconv.Atoi(rest[:second])
	if err != nil {
		return Hit{}, false
	}
	return Hit{Path: line[:first], Line: n, Text: rest[second+1:]}, true
}

func hitItem(hit Hit, root string) source.Item {
	rel := hit.Path
	if r, err := filepath.Rel(root, hit.Path); err == nil {
		rel = r
	}
	text := strings.TrimSpace(strings.ReplaceAll(hit.Text, "\t", " "))
	location := fmt.Sprintf("%s:%d", rel, hit.Line)
	return source.Item{
		Label:    location + ": " + text,
		Data:     hit,
		Location: location,
		Resolved: true,
	}
}
