package sources

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charlievieth/fastwalk"
	ignore "github.com/sabhiram/go-gitignore"
	"github.com/spf13/pflag"

	"github.com/atomicstack/tmux-popup-list/internal/source"
)

const (
	fileBatchSize    = 256
	fileBatchLatency = 100 * time.Millisecond
	previewLines     = 200
	defaultMaxFiles  = 20000
)

var alwaysSkipped = map[string]bool{
	".git":         true,
	".hg":          true,
	".svn":         true,
	"node_modules": true,
}

type filesArgs struct {
	root   string
	globs  []string
	hidden bool
	max    int
}

func parseFilesArgs(lc source.Context) (filesArgs, error) {
	fs := pflag.NewFlagSet("files", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var a filesArgs
	fs.StringArrayVarP(&a.globs, "glob", "g", nil, "only list paths matching the pattern")
	fs.BoolVar(&a.hidden, "hidden", false, "include hidden files")
	fs.IntVar(&a.max, "max", defaultMaxFiles, "stop after this many files")
	if err := fs.Parse(lc.Args); err != nil {
		return filesArgs{}, err
	}
	for _, g := range a.globs {
		if !doublestar.ValidatePattern(g) {
			return filesArgs{}, fmt.Errorf("invalid glob %q", g)
		}
	}
	a.root = resolveRoot(lc.Cwd, fs.Arg(0))
	return a, nil
}

func resolveRoot(cwd, dir string) string {
	if cwd == "" {
		cwd = "."
	}
	if dir == "" {
		return cwd
	}
	if strings.HasPrefix(dir, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, dir[2:])
		}
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(cwd, dir)
}

type filesSource struct {
	source.Basic
}

func (*filesSource) Options() []source.ArgOption {
	return []source.ArgOption{
		{Name: "[dir]", Description: "directory to walk, relative to the pane directory"},
		{Name: "--glob, -g", Description: "only list paths matching the doublestar pattern"},
		{Name: "--hidden", Description: "include dot files"},
		{Name: "--max", Description: "stop after this many files"},
	}
}

// Files streams the files below the pane directory, honouring .gitignore.
func Files(socket string) source.Source {
	src := &filesSource{}
	src.Basic = source.Basic{
		ListName: "files",
		Desc:     "files below the pane directory",
		Default:  "open",
		ActionList: []source.Action{
			{Name: "open", Run: func(ctx context.Context, lc source.Context, items []source.Item) error {
				return openInEditor(socket, dataString(items[0]), 0)
			}},
			previewAction(func(ctx context.Context, item source.Item) (string, []string, int, error) {
				path := dataString(item)
				lines, err := previewFile(path, 0)
				return item.Label, lines, -1, err
			}),
			yank(dataString),
		},
		Load: func(ctx context.Context, lc source.Context) (source.Result, error) {
			args, err := parseFilesArgs(lc)
			if err != nil {
				return nil, err
			}
			em := source.NewEmitter(ctx)
			go walkFiles(em, args)
			return em, nil
		},
	}
	return src
}

type walker struct {
	root   string
	args   filesArgs
	ignore *ignore.GitIgnore
}

func newWalker(args filesArgs) *walker {
	w := &walker{root: args.root, args: args}
	if gi, err := ignore.CompileIgnoreFile(filepath.Join(args.root, ".gitignore")); err == nil {
		w.ignore = gi
	}
	return w
}

func (w *walker) skip(rel string, name string) bool {
	if alwaysSkipped[name] {
		return true
	}
	if !w.args.hidden && strings.HasPrefix(name, ".") && rel != "." {
		return true
	}
	return w.ignore != nil && w.ignore.MatchesPath(rel)
}

func (w *walker) matches(rel string) bool {
	if len(w.args.globs) == 0 {
		return true
	}
	for _, g := range w.args.globs {
		if ok, _ := doublestar.Match(g, filepath.ToSlash(rel)); ok {
			return true
		}
	}
	return false
}

// walkFiles walks args.root and emits the files in batches until the walk
// ends or the stream is cancelled.
func walkFiles(em *source.Emitter, args filesArgs) {
	ctx := em.Context()
	w := newWalker(args)
	paths := make(chan string, fileBatchSize)
	var count int
	var countMu sync.Mutex
	errStop := errors.New("file limit reached")

	walkErr := make(chan error, 1)
	go func() {
		defer close(paths)
		conf := fastwalk.Config{Follow: false, ToSlash: fastwalk.DefaultToSlash()}
		walkErr <- fastwalk.Walk(&conf, w.root, func(path string, d os.DirEntry, err error) error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err != nil {
				return nil
			}
			rel, relErr := filepath.Rel(w.root, path)
			if relErr != nil || rel == "." {
				return nil
			}
			if w.skip(rel, d.Name()) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() || !w.matches(rel) {
				return nil
			}
			countMu.Lock()
			count++
			over := args.max > 0 && count > args.max
			countMu.Unlock()
			if over {
				return errStop
			}
			select {
			case paths <- path:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		})
	}()

	ticker := time.NewTicker(fileBatchLatency)
	defer ticker.Stop()
	batch := make([]source.Item, 0, fileBatchSize)
	flush := func() {
		if len(batch) > 0 {
			em.Emit(batch)
			batch = make([]source.Item, 0, fileBatchSize)
		}
	}
	for {
		select {
		case path, ok := <-paths:
			if !ok {
				flush()
				err := <-walkErr
				if err != nil && !errors.Is(err, errStop) && ctx.Err() == nil {
					em.Fail(err)
					return
				}
				em.End()
				return
			}
			rel, _ := filepath.Rel(w.root, path)
			batch = append(batch, source.Item{Label: rel, Data: path, Location: path, Resolved: true})
			if len(batch) >= fileBatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// previewFile returns the first lines of path. A positive line centres the
// preview around it.
func previewFile(path string, line int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	start := previewStart(line)
	reader := bufio.NewReader(f)
	head, _ := reader.Peek(512)
	if bytes.IndexByte(head, 0) >= 0 {
		return []string{"(binary file)"}, nil
	}
	var lines []string
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	n := 0
	for scanner.Scan() {
		n++
		if n < start {
			continue
		}
		lines = append(lines, strings.ReplaceAll(scanner.Text(), "\t", "    "))
		if len(lines) >= previewLines {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return []string{"(empty file)"}, nil
	}
	return lines, nil
}

// previewStart is the first line previewFile shows for line.
func previewStart(line int) int {
	if line > previewLines/2 {
		return line - previewLines/2
	}
	return 1
}

// openInEditor opens path in a new tmux window running $EDITOR.
func openInEditor(socket, path string, line int) error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = "vi"
	}
	args := []string{"new-window", "-c", filepath.Dir(path), editor}
	if line > 0 {
		args = append(args, fmt.Sprintf("+%d", line))
	}
	_, err := runTmuxFn(socket, append(args, path)...)
	return err
}
