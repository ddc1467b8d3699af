package sources

import (
	"bufio"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atomicstack/tmux-popup-list/internal/list"
	"github.com/atomicstack/tmux-popup-list/internal/source"
	"github.com/atomicstack/tmux-popup-list/internal/tmux"
)

func stub[T any](t *testing.T, target *T, value T) {
	t.Helper()
	prev := *target
	*target = value
	t.Cleanup(func() { *target = prev })
}

func load(t *testing.T, src source.Source, lc source.Context) []source.Item {
	t.Helper()
	res, err := src.LoadItems(context.Background(), lc)
	require.NoError(t, err)
	switch r := res.(type) {
	case source.Items:
		return r
	case *source.Deferred:
		items, err := r.Wait(context.Background())
		require.NoError(t, err)
		return items
	case source.Stream:
		items, err := collect(t, r)
		require.NoError(t, err)
		return items
	}
	t.Fatalf("unexpected result %T", res)
	return nil
}

func collect(t *testing.T, stream source.Stream) ([]source.Item, error) {
	t.Helper()
	var mu sync.Mutex
	var items []source.Item
	done := make(chan error, 1)
	stream.Subscribe(func(batch []source.Item) {
		mu.Lock()
		items = append(items, batch...)
		mu.Unlock()
	}, func() { done <- nil }, func(err error) { done <- err })
	select {
	case err := <-done:
		mu.Lock()
		defer mu.Unlock()
		return items, err
	case <-time.After(5 * time.Second):
		stream.Cancel()
		t.Fatal("stream did not end")
		return nil, nil
	}
}

func labels(items []source.Item) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.Label
	}
	return out
}

type recordingPreview struct {
	title     string
	lines     []string
	highlight int
}

func (r *recordingPreview) Preview(ctx context.Context, title string, lines []string, highlight int) error {
	r.title, r.lines, r.highlight = title, lines, highlight
	return nil
}

func invoke(t *testing.T, src source.Source, name string, lc source.Context, items ...source.Item) error {
	t.Helper()
	action, err := source.FindAction(src, name)
	require.NoError(t, err)
	return action.Invoke(context.Background(), lc, items)
}

func TestSessionsLoadAndActions(t *testing.T) {
	stub(t, &fetchSessionsFn, func(string) ([]tmux.Session, error) {
		return []tmux.Session{
			{Name: "dev", Windows: 12, Attached: true, Current: true},
			{Name: "scratch", Windows: 1},
		}, nil
	})
	var switched, killed []string
	stub(t, &switchToFn, func(_, target string) error {
		switched = append(switched, target)
		return nil
	})
	stub(t, &killSessionFn, func(_, target string) error {
		killed = append(killed, target)
		if target == "scratch" {
			return errors.New("busy")
		}
		return nil
	})

	src := Sessions("sock")
	items := load(t, src, source.Context{})
	assert.Equal(t, []string{
		"dev      12 windows  attached  current",
		"scratch    1 window",
	}, labels(items))

	require.NoError(t, invoke(t, src, "", source.Context{}, items[1]))
	assert.Equal(t, []string{"scratch"}, switched)

	err := invoke(t, src, "kill", source.Context{}, items...)
	assert.ErrorContains(t, err, "kill scratch: busy")
	assert.Equal(t, []string{"dev", "scratch"}, killed)

	kill, _ := source.FindAction(src, "kill")
	assert.True(t, kill.Multiple)
	assert.True(t, kill.Reload)
}

func TestPanesPreviewHighlightsLastLine(t *testing.T) {
	stub(t, &fetchPanesFn, func(string) (tmux.PaneSnapshot, error) {
		return tmux.PaneSnapshot{Panes: []tmux.Pane{
			{ID: "%1", Target: "dev:0.0", Command: "nvim", Title: "edit", Path: "/src"},
			{ID: "%2", Target: "dev:0.1", Command: "zsh", Title: "sh", Path: "/tmp", Current: true},
		}}, nil
	})
	stub(t, &loadPreviewFn, func(_ string, kind tmux.PreviewKind, target string) (tmux.Preview, error) {
		assert.Equal(t, tmux.PreviewPane, kind)
		lines := []string{target, "$ make", "ok"}
		return tmux.Preview{Title: target, Lines: lines, Highlight: len(lines) - 1}, nil
	})
	src := Panes("")
	items := load(t, src, source.Context{})
	require.Len(t, items, 2)
	assert.Equal(t, "dev:0.1  zsh   [current] sh  /tmp", items[1].Label)

	preview := &recordingPreview{}
	require.NoError(t, invoke(t, src, "preview", source.Context{Preview: preview}, items[0]))
	assert.Equal(t, "dev:0.0", preview.title)
	assert.Equal(t, []string{"%1", "$ make", "ok"}, preview.lines)
	assert.Equal(t, 2, preview.highlight)

	action, _ := source.FindAction(src, "preview")
	assert.True(t, action.Persist)
}

func TestWindowsUseIDsForActions(t *testing.T) {
	stub(t, &fetchWindowsFn, func(string) ([]tmux.Window, error) {
		return []tmux.Window{{ID: "@4", Target: "dev:2", Name: "logs", Active: true}}, nil
	})
	var switched string
	stub(t, &switchToFn, func(_, target string) error {
		switched = target
		return nil
	})
	var clip string
	stub(t, &writeClipboard, func(text string) error {
		clip = text
		return nil
	})
	src := Windows("")
	items := load(t, src, source.Context{})
	assert.Equal(t, []string{"dev:2  logs  active"}, labels(items))
	require.NoError(t, invoke(t, src, "switch", source.Context{}, items[0]))
	assert.Equal(t, "@4", switched)
	require.NoError(t, invoke(t, src, "yank", source.Context{}, items[0]))
	assert.Equal(t, "dev:2", clip)
}

func TestBuffersActions(t *testing.T) {
	stub(t, &fetchBuffersFn, func(string) ([]tmux.Buffer, error) {
		return []tmux.Buffer{{Name: "buffer1", Size: 5, Sample: "a\tb"}, {Name: "buffer0", Size: 120, Sample: "x"}}, nil
	})
	var pasted []string
	stub(t, &pasteBufferFn, func(_, name, pane string) error {
		pasted = append(pasted, name, pane)
		return nil
	})
	stub(t, &showBufferFn, func(_, name string) (string, error) { return "content of " + name, nil })
	var clip string
	stub(t, &writeClipboard, func(text string) error {
		clip = text
		return nil
	})

	src := Buffers("")
	items := load(t, src, source.Context{})
	assert.Equal(t, []string{"buffer1    5 bytes  a b", "buffer0  120 bytes  x"}, labels(items))

	require.NoError(t, invoke(t, src, "paste", source.Context{Buffer: "%7"}, items[0]))
	assert.Equal(t, []string{"buffer1", "%7"}, pasted)

	require.NoError(t, invoke(t, src, "yank", source.Context{}, items...))
	assert.Equal(t, "content of buffer1\ncontent of buffer0", clip)

	stub(t, &loadPreviewFn, func(_ string, kind tmux.PreviewKind, target string) (tmux.Preview, error) {
		return tmux.Preview{Title: string(kind) + " " + target, Lines: []string{"x"}, Highlight: -1}, nil
	})
	preview := &recordingPreview{}
	require.NoError(t, invoke(t, src, "preview", source.Context{Preview: preview}, items[1]))
	assert.Equal(t, "buffer buffer0", preview.title)
	assert.Equal(t, -1, preview.highlight)
}

func TestRunKeyBindingEntersCopyMode(t *testing.T) {
	var calls [][]string
	stub(t, &runTmuxFn, func(_ string, parts ...string) (string, error) {
		calls = append(calls, parts)
		return "", nil
	})
	require.NoError(t, runKeyBinding("", tmux.KeyBinding{Table: "copy-mode-vi", Key: "v", Command: `send-keys -X begin-selection`}))
	require.NoError(t, runKeyBinding("", tmux.KeyBinding{Table: "prefix", Key: "c", Command: `new-window -n "two words"`}))
	assert.Equal(t, [][]string{
		{"copy-mode"},
		{"send-keys", "-X", "begin-selection"},
		{"new-window", "-n", "two words"},
	}, calls)
	assert.Error(t, runKeyBinding("", tmux.KeyBinding{Command: `display "open`}))
}

type fakeLauncher struct {
	srcs    []source.Source
	started [][]string
	resumed []string
	hidden  map[string]bool
}

func (f *fakeLauncher) Sources() []source.Source { return f.srcs }

func (f *fakeLauncher) Start(ctx context.Context, args []string) error {
	f.started = append(f.started, args)
	return nil
}

func (f *fakeLauncher) Resume(ctx context.Context, name string) error {
	if !f.hidden[name] {
		return list.ErrNoSession
	}
	f.resumed = append(f.resumed, name)
	return nil
}

type recentStore struct {
	recent []string
}

func (s recentStore) Inputs(context.Context, string, int) ([]string, error) { return nil, nil }
func (s recentStore) AddInput(context.Context, string, string) error { return nil }
func (s recentStore) Recent(context.Context, int) ([]string, error) { return s.recent, nil }
func (s recentStore) Touch(context.Context, string) error { return nil }
func (s recentStore) Close() error { return nil }

func named(names ...string) []source.Source {
	out := make([]source.Source, len(names))
	for i, name := range names {
		out[i] = &source.Basic{ListName: name, Desc: name + " list"}
	}
	return out
}

func TestListsOrderedByRecency(t *testing.T) {
	launcher := &fakeLauncher{
		srcs:   named("buffers", "files", "grep", "lists", "panes", "sessions"),
		hidden: map[string]bool{"panes": true},
	}
	src := Lists(launcher, recentStore{recent: []string{"sessions", "grep", "unknown", "sessions"}})
	items := load(t, src, source.Context{})
	names := make([]string, len(items))
	for i, item := range items {
		names[i] = dataString(item)
	}
	assert.Equal(t, []string{"sessions", "grep", "buffers", "files", "panes"}, names)
	assert.True(t, strings.HasPrefix(items[0].Label, "sessions  sessions list"))

	require.NoError(t, invoke(t, src, "open", source.Context{}, items[1]))
	require.NoError(t, invoke(t, src, "resume", source.Context{}, items[4]))
	require.NoError(t, invoke(t, src, "resume", source.Context{}, items[2]))
	assert.Equal(t, [][]string{{"grep"}, {"buffers"}}, launcher.started)
	assert.Equal(t, []string{"panes"}, launcher.resumed)
}

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, body := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	}
	return root
}

func TestFilesStreamHonoursIgnores(t *testing.T) {
	root := writeTree(t, map[string]string{
		".gitignore":        "build/\n*.log\n",
		"main.go":           "package main\n",
		"internal/a/a.go":   "package a\n",
		"internal/a/a.md":   "# a\n",
		"build/out.bin":     "x",
		"debug.log":         "x",
		".hidden/secret.go": "x",
		".git/HEAD":         "ref",
	})
	src := Files("")

	items := load(t, src, source.Context{Cwd: root})
	got := labels(items)
	sort.Strings(got)
	assert.Equal(t, []string{filepath.Join("internal", "a", "a.go"), filepath.Join("internal", "a", "a.md"), "main.go"}, got)

	items = load(t, src, source.Context{Cwd: root, Args: []string{"--glob", "**/*.go", "--hidden"}})
	got = labels(items)
	sort.Strings(got)
	assert.Equal(t, []string{filepath.Join(".hidden", "secret.go"), filepath.Join("internal", "a", "a.go"), "main.go"}, got)

	items = load(t, src, source.Context{Cwd: root, Args: []string{"internal"}})
	assert.Len(t, items, 2)

	_, err := src.LoadItems(context.Background(), source.Context{Cwd: root, Args: []string{"--glob", "[", "x"}})
	assert.Error(t, err)
}

func TestFilesPreview(t *testing.T) {
	root := writeTree(t, map[string]string{"a.txt": "one\n\ttwo\n", "bin": "a\x00b"})
	src := Files("")
	preview := &recordingPreview{}
	lc := source.Context{Preview: preview}

	require.NoError(t, invoke(t, src, "preview", lc, source.Item{Label: "a.txt", Data: filepath.Join(root, "a.txt")}))
	assert.Equal(t, []string{"one", "    two"}, preview.lines)
	require.NoError(t, invoke(t, src, "preview", lc, source.Item{Label: "bin", Data: filepath.Join(root, "bin")}))
	assert.Equal(t, []string{"(binary file)"}, preview.lines)
}

func TestParseHit(t *testing.T) {
	hit, ok := parseHit("/src/main.go:12:func main() { a := b:c }")
	require.True(t, ok)
	assert.Equal(t, Hit{Path: "/src/main.go", Line: 12, Text: "func main() { a := b:c }"}, hit)
	for _, line := range []string{"", "nocolon", "file:x:text", ":1:text"} {
		_, ok := parseHit(line)
		assert.False(t, ok, line)
	}
}

func TestGrepStreamsHits(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("no sh")
	}
	var gotPattern, gotRoot string
	stub(t, &grepCommand, func(ctx context.Context, pattern, root string, ignoreCase bool) (*exec.Cmd, error) {
		gotPattern, gotRoot = pattern, root
		if pattern == "missing" {
			return exec.CommandContext(ctx, "sh", "-c", "exit 1"), nil
		}
		if pattern == "broken" {
			return exec.CommandContext(ctx, "sh", "-c", "exit 2"), nil
		}
		return exec.CommandContext(ctx, "sh", "-c", `printf '/w/src/a.go:3:\tfoo()\n/w/b.go:10:foo bar\n'`), nil
	})
	src := Grep("")
	assert.True(t, source.IsInteractive(src))

	interactive := source.DefaultOptions()
	interactive.Interactive = true
	items := load(t, src, source.Context{Cwd: "/w", Input: "foo", Options: interactive, Args: []string{"src"}})
	assert.Equal(t, "foo", gotPattern)
	assert.Equal(t, filepath.Join("/w", "src"), gotRoot)
	require.Len(t, items, 2)
	assert.Equal(t, "a.go:3: foo()", items[0].Label)
	assert.Equal(t, Hit{Path: "/w/b.go", Line: 10, Text: "foo bar"}, items[1].Data)

	items = load(t, src, source.Context{Cwd: "/w", Args: []string{"missing"}})
	assert.Empty(t, items)
	assert.Empty(t, load(t, src, source.Context{Cwd: "/w"}), "no pattern, no search")

	res, err := src.LoadItems(context.Background(), source.Context{Args: []string{"broken"}})
	require.NoError(t, err)
	_, err = collect(t, res.(source.Stream))
	assert.ErrorContains(t, err, "search")
}

func TestScanHitsStopsOnOverlongLine(t *testing.T) {
	input := "/w/a.go:1:ok\n" + strings.Repeat("x", grepMaxLine+1) + "\n/w/b.go:2:late\n"
	var got []string
	err := scanHits(strings.NewReader(input), "/w", func(batch []source.Item) {
		got = append(got, labels(batch)...)
	})
	assert.ErrorIs(t, err, bufio.ErrTooLong)
	assert.Equal(t, []string{"a.go:1: ok"}, got)
}

func TestGrepFailsOnOverlongOutput(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("no sh")
	}
	stub(t, &grepCommand, func(ctx context.Context, pattern, root string, ignoreCase bool) (*exec.Cmd, error) {
		return exec.CommandContext(ctx, "sh", "-c", `while :; do printf 'xxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx'; done`), nil
	})
	res, err := Grep("").LoadItems(context.Background(), source.Context{Cwd: "/w", Args: []string{"long"}})
	require.NoError(t, err)
	_, err = collect(t, res.(source.Stream))
	assert.ErrorContains(t, err, "search")
	assert.ErrorIs(t, err, bufio.ErrTooLong)
}
