// Package config holds the runtime configuration, taken from flags with
// environment fallbacks, and the YAML settings of the list subsystem.
package config

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
)

// Config captures runtime configuration for the application.
type Config struct {
	App      App
	Logging  Logging
	Settings string
	History  string
	Flags    map[string]string
	// Args is the list start command: flags for the list followed by its
	// name and the list arguments.
	Args []string
}

// App describes how the popup is run.
type App struct {
	SocketPath string
	Width      int
	Height     int
	Footer     bool
	Watch      bool
}

type Logging struct {
	FilePath string
	Trace    bool
}

const (
	envSocketPath = "TMUX_POPUP_LIST_SOCKET"
	envWidth      = "TMUX_POPUP_LIST_WIDTH"
	envHeight     = "TMUX_POPUP_LIST_HEIGHT"
	envFooter     = "TMUX_POPUP_LIST_FOOTER"
	envWatch      = "TMUX_POPUP_LIST_WATCH"
	envTrace      = "TMUX_POPUP_LIST_TRACE"
	envLogFile    = "TMUX_POPUP_LIST_LOG_FILE"
	envSettings   = "TMUX_POPUP_LIST_CONFIG"
	envHistory    = "TMUX_POPUP_LIST_HISTORY"
)

// Flags holds the flag values bound to a flag set until Resolve turns them
// into a Config.
type Flags struct {
	socket   *string
	width    *int
	height   *int
	footer   *bool
	watch    *bool
	trace    *bool
	logFile  *string
	settings *string
	history  *string
}

// Bind declares the runtime flags on fs, defaulting to the matching
// TMUX_POPUP_LIST_* variables of environ.
func Bind(fs *pflag.FlagSet, environ []string) *Flags {
	env := parseEnv(environ)
	return &Flags{
		socket:   fs.String("socket", envOrDefault(env, envSocketPath, ""), "path to the tmux socket (overrides environment detection)"),
		width:    fs.Int("width", envOrInt(env, envWidth, 0), "desired viewport width in cells (0 uses terminal width)"),
		height:   fs.Int("height", envOrInt(env, envHeight, 0), "desired viewport height in rows (0 uses terminal height)"),
		footer:   fs.Bool("footer", envOrBool(env, envFooter, true), "show the key hint row"),
		watch:    fs.Bool("watch", envOrBool(env, envWatch, true), "follow pane changes in tmux"),
		trace:    fs.Bool("trace", envOrBool(env, envTrace, false), "enable verbose JSON trace logging"),
		logFile:  fs.String("log-file", envOrDefault(env, envLogFile, ""), "path to the log file"),
		settings: fs.String("config", envOrDefault(env, envSettings, ""), "path to the settings file"),
		history:  fs.String("history", envOrDefault(env, envHistory, ""), "path to the history database"),
	}
}

// Resolve validates the bound values and builds the Config. args is the
// list start command left after flag parsing.
func (f *Flags) Resolve(args []string) (Config, error) {
	cfg := Config{
		App: App{
			SocketPath: *f.socket,
			Width:      *f.width,
			Height:     *f.height,
			Footer:     *f.footer,
			Watch:      *f.watch,
		},
		Logging: Logging{
			FilePath: *f.logFile,
			Trace:    *f.trace,
		},
		Settings: *f.settings,
		History:  *f.history,
		Flags: map[string]string{
			"socket":   *f.socket,
			"width":    strconv.Itoa(*f.width),
			"height":   strconv.Itoa(*f.height),
			"footer":   strconv.FormatBool(*f.footer),
			"watch":    strconv.FormatBool(*f.watch),
			"trace":    strconv.FormatBool(*f.trace),
			"logFile":  *f.logFile,
			"settings": *f.settings,
			"history":  *f.history,
		},
		Args: append([]string(nil), args...),
	}
	if cfg.Settings == "" {
		cfg.Settings = DefaultSettingsPath()
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadArgs parses args and environ the way the root command does.
func LoadArgs(args []string, environ []string) (Config, error) {
	fs := pflag.NewFlagSet("tmux-popup-list", pflag.ContinueOnError)
	fs.SetInterspersed(false)
	fs.SetOutput(io.Discard)
	flags := Bind(fs, environ)
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return flags.Resolve(fs.Args())
}

func parseEnv(environ []string) map[string]string {
	values := make(map[string]string, len(environ))
	for _, entry := range environ {
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		values[parts[0]] = parts[1]
	}
	return values
}

func envOrDefault(env map[string]string, key, fallback string) string {
	if v, ok := env[key]; ok {
		return v
	}
	return fallback
}

func envOrInt(env map[string]string, key string, fallback int) int {
	v, ok := env[key]
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrBool(env map[string]string, key string, fallback bool) bool {
	v, ok := env[key]
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

// Validate rejects negative viewport sizes.
func Validate(cfg Config) error {
	if cfg.App.Width < 0 {
		return fmt.Errorf("width must be >= 0 (got %d)", cfg.App.Width)
	}
	if cfg.App.Height < 0 {
		return fmt.Errorf("height must be >= 0 (got %d)", cfg.App.Height)
	}
	return nil
}
