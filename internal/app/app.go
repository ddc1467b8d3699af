package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	"github.com/atomicstack/tmux-popup-list/internal/backend"
	"github.com/atomicstack/tmux-popup-list/internal/config"
	"github.com/atomicstack/tmux-popup-list/internal/history"
	"github.com/atomicstack/tmux-popup-list/internal/list"
	"github.com/atomicstack/tmux-popup-list/internal/logging"
	"github.com/atomicstack/tmux-popup-list/internal/logging/events"
	"github.com/atomicstack/tmux-popup-list/internal/sources"
	"github.com/atomicstack/tmux-popup-list/internal/surface"
	"github.com/atomicstack/tmux-popup-list/internal/tmux"
	"github.com/atomicstack/tmux-popup-list/internal/ui"
)

const (
	// DefaultList is started when no list is named.
	DefaultList   = "lists"
	watchInterval = 1500 * time.Millisecond
	defaultWidth  = 80
	defaultHeight = 24
)

// Run bootstraps the list manager and executes the Bubble Tea program until
// no list is left on screen.
func Run(ctx context.Context, cfg config.Config) error {
	socketPath, err := tmux.ResolveSocketPath(cfg.App.SocketPath)
	if err != nil {
		return fmt.Errorf("resolve socket path: %w", err)
	}
	defer tmux.Shutdown()

	settings, err := config.OpenStore(cfg.Settings)
	if err != nil {
		logging.Error(err)
	}
	store, closeStore := openHistory(cfg.History)
	defer closeStore()

	screen := surface.NewScreen(defaultWidth, defaultHeight, nil)
	manager := list.NewManager(list.Config{
		Surface:  screen,
		Host:     tmux.NewHost(socketPath, ""),
		Store:    store,
		Settings: settings.Settings(),
	})
	defer manager.Close()
	for _, src := range sources.Builtin(sources.Env{Socket: socketPath, Store: store, Launcher: manager}) {
		if err := manager.Register(src); err != nil {
			return err
		}
	}
	unsubscribe := settings.OnChange(manager.SetSettings)
	defer unsubscribe()

	args := cfg.Args
	if len(args) == 0 {
		args = []string{DefaultList}
	}
	model := ui.NewModel(ui.Options{
		Screen:     screen,
		Controller: manager,
		Start: func(ctx context.Context) error {
			return manager.Start(ctx, args)
		},
		Width:      cfg.App.Width,
		Height:     cfg.App.Height,
		ShowFooter: cfg.App.Footer,
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	program := tea.NewProgram(model,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithReportFocus(),
		tea.WithContext(gctx),
	)

	g.Go(func() error { return model.Run(gctx) })
	g.Go(func() error { return model.Pump(gctx, program.Send) })
	g.Go(func() error {
		if err := settings.Watch(gctx); err != nil {
			logging.Error(err)
		}
		return nil
	})
	if cfg.App.Watch {
		watcher := backend.NewWatcher(socketPath, watchInterval)
		g.Go(func() error {
			if err := watcher.Run(gctx); err != nil {
				logging.Error(err)
			}
			return nil
		})
		g.Go(func() error { return watcher.Forward(gctx, manager.HandleHostEvent) })
	}
	g.Go(func() error {
		defer cancel()
		_, err := program.Run()
		if errors.Is(err, tea.ErrProgramKilled) {
			return nil
		}
		return err
	})

	if err := g.Wait(); err != nil {
		events.App.Stop(err.Error())
		return err
	}
	if err := model.Err(); err != nil {
		events.App.Stop(err.Error())
		return err
	}
	events.App.Stop("done")
	return nil
}

// openHistory opens the input history database. Without one, history is
// kept in memory for the run.
func openHistory(path string) (history.Store, func()) {
	if path == "" {
		var err error
		if path, err = history.DefaultPath(); err != nil {
			logging.Error(err)
			return nil, func() {}
		}
	}
	store, err := history.OpenSQLite(path)
	if err != nil {
		logging.Error(err)
		return nil, func() {}
	}
	return store, func() {
		if err := store.Close(); err != nil {
			logging.Error(err)
		}
	}
}
