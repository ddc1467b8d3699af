package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/atomicstack/tmux-popup-list/internal/logging"
	"github.com/atomicstack/tmux-popup-list/internal/logging/events"
)

// reloadDelay coalesces the bursts of writes editors produce on save.
const reloadDelay = 150 * time.Millisecond

// Settings is the user settings file.
type Settings struct {
	List ListSettings `yaml:"list"`
}

// ListSettings holds the list.* keys.
type ListSettings struct {
	Indicator             string                    `yaml:"indicator"`
	PreviewHeight         int                       `yaml:"previewHeight"`
	PreviewSplitRight     bool                      `yaml:"previewSplitRight"`
	PreviewHighlightGroup string                    `yaml:"previewHighlightGroup"`
	SelectedSignText      string                    `yaml:"selectedSignText"`
	LimitLines            int                       `yaml:"limitLines"`
	Height                int                       `yaml:"height"`
	NextKeymap            string                    `yaml:"nextKeymap"`
	PreviousKeymap        string                    `yaml:"previousKeymap"`
	InsertMappings        map[string]string         `yaml:"insertMappings"`
	NormalMappings        map[string]string         `yaml:"normalMappings"`
	InteractiveDebounce   int                       `yaml:"interactiveDebounce"`
	Source                map[string]SourceSettings `yaml:"source"`
}

// SourceSettings holds the list.source.<name>.* keys.
type SourceSettings struct {
	DefaultOptions []string `yaml:"defaultOptions"`
	DefaultArgs    []string `yaml:"defaultArgs"`
}

// DefaultSettings returns the settings used for missing keys.
func DefaultSettings() Settings {
	return Settings{List: ListSettings{
		Indicator:             ">",
		PreviewHeight:         12,
		PreviewHighlightGroup: "Search",
		SelectedSignText:      "*",
		LimitLines:            30000,
		Height:                10,
		NextKeymap:            "ctrl+j",
		PreviousKeymap:        "ctrl+k",
		InteractiveDebounce:   100,
	}}
}

// Debounce returns the interactive reload delay.
func (l ListSettings) Debounce() time.Duration {
	if l.InteractiveDebounce <= 0 {
		return 0
	}
	return time.Duration(l.InteractiveDebounce) * time.Millisecond
}

// SourceDefaults returns the defaults configured for the named source.
func (l ListSettings) SourceDefaults(name string) SourceSettings {
	return l.Source[name]
}

// DefaultSettingsPath returns $XDG_CONFIG_HOME/tmux-popup-list/config.yaml,
// falling back to ~/.config.
func DefaultSettingsPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "tmux-popup-list", "config.yaml")
}

// LoadSettings reads path over the defaults. A missing file yields the
// defaults.
func LoadSettings(path string) (Settings, error) {
	settings := DefaultSettings()
	if path == "" {
		return settings, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return settings, nil
	}
	if err != nil {
		return settings, fmt.Errorf("read settings: %w", err)
	}
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return DefaultSettings(), fmt.Errorf("parse settings %s: %w", path, err)
	}
	if err := settings.Validate(); err != nil {
		return DefaultSettings(), fmt.Errorf("settings %s: %w", path, err)
	}
	return settings, nil
}

// Validate rejects values the list cannot work with.
func (s Settings) Validate() error {
	l := s.List
	switch {
	case l.PreviewHeight < 0:
		return fmt.Errorf("list.previewHeight must be >= 0 (got %d)", l.PreviewHeight)
	case l.LimitLines < 0:
		return fmt.Errorf("list.limitLines must be >= 0 (got %d)", l.LimitLines)
	case l.Height < 0:
		return fmt.Errorf("list.height must be >= 0 (got %d)", l.Height)
	case l.InteractiveDebounce < 0:
		return fmt.Errorf("list.interactiveDebounce must be >= 0 (got %d)", l.InteractiveDebounce)
	}
	return nil
}

// Store holds the current settings and notifies subscribers of changes.
type Store struct {
	path string

	mu        sync.RWMutex
	settings  Settings
	listeners map[int]func(Settings)
	nextID    int
}

// NewStore returns a store for path holding settings.
func NewStore(path string, settings Settings) *Store {
	return &Store{path: path, settings: settings, listeners: map[int]func(Settings){}}
}

// OpenStore loads path into a new store.
func OpenStore(path string) (*Store, error) {
	settings, err := LoadSettings(path)
	return NewStore(path, settings), err
}

// Path returns the settings file path.
func (s *Store) Path() string { return s.path }

// Settings returns the current settings.
func (s *Store) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// OnChange registers fn for settings changes and returns a function removing
// it.
func (s *Store) OnChange(fn func(Settings)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Set replaces the settings and notifies subscribers.
func (s *Store) Set(settings Settings) {
	s.mu.Lock()
	s.settings = settings
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(Settings), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.listeners[id])
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(settings)
	}
}

// Reload rereads the file. On error the current settings are kept.
func (s *Store) Reload() error {
	settings, err := LoadSettings(s.path)
	events.App.SettingsReload(s.path, err)
	if err != nil {
		return err
	}
	s.Set(settings)
	return nil
}

// Watch reloads the settings whenever the file changes, until ctx ends. The
// parent directory is watched so that editors replacing the file are seen.
func (s *Store) Watch(ctx context.Context) error {
	if s.path == "" {
		<-ctx.Done()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("settings watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		logging.Notice("settings directory %s not watched: %v", dir, err)
		<-ctx.Done()
		return nil
	}

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(s.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDelay)
			} else {
				timer.Reset(reloadDelay)
			}
			fire = timer.C
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.Error(fmt.Errorf("settings watcher: %w", err))
		case <-fire:
			fire = nil
			if err := s.Reload(); err != nil {
				logging.Error(err)
			}
		}
	}
}
