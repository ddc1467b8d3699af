package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atomicstack/tmux-popup-list/internal/config"
)

func TestCollectTTYDetailsIncludesStandardDescriptors(t *testing.T) {
	info := collectTTYDetails()
	if len(info.Probes) != 3 {
		t.Fatalf("expected 3 probe entries, got %d", len(info.Probes))
	}
	expected := []string{"stdin", "stdout", "stderr"}
	for i, name := range expected {
		if info.Probes[i].Name != name {
			t.Fatalf("expected probe %d name %q, got %q", i, name, info.Probes[i].Name)
		}
	}
}

func TestStartupTracePayloadIncludesFlags(t *testing.T) {
	cfg := config.Config{
		App: config.App{
			SocketPath: "socket-path",
			Width:      80,
			Height:     24,
			Footer:     true,
			Watch:      true,
		},
		Logging: config.Logging{
			FilePath: "trace.log",
			Trace:    true,
		},
		Flags: map[string]string{
			"socket": "socket-path",
			"width":  "80",
			"height": "24",
			"footer": "true",
		},
		Args: []string{"files", "src"},
	}

	payload := startupTracePayload(cfg)

	flagsValue, ok := payload["flags"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected flags map in payload")
	}
	if flagsValue["socket"] != "socket-path" {
		t.Fatalf("expected socket flag %q, got %v", "socket-path", flagsValue["socket"])
	}
	if flagsValue["width"] != "80" {
		t.Fatalf("expected width 80, got %v", flagsValue["width"])
	}
	if flagsValue["trace"] != true {
		t.Fatalf("expected trace flag true, got %v", flagsValue["trace"])
	}
	if flagsValue["logFile"] != "trace.log" {
		t.Fatalf("expected log file trace.log, got %v", flagsValue["logFile"])
	}
	if _, ok := payload["tty"].(ttyDetails); !ok {
		t.Fatalf("expected tty details in payload")
	}
	if cfgValue, ok := payload["config"].(config.Config); !ok {
		t.Fatalf("expected config in payload")
	} else if cfgValue.App != cfg.App {
		t.Fatalf("expected app config %#v, got %#v", cfg.App, cfgValue.App)
	}
	assert.Equal(t, []string{"files", "src"}, payload["argv"])
}

func TestRootCommandRejectsBadConfig(t *testing.T) {
	cmd := newRootCmd([]string{"TMUX_POPUP_LIST_HEIGHT=-3"})
	cmd.SetArgs([]string{"files"})
	err := cmd.Execute()
	require.Error(t, err)
	var cfgErr configError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestRootCommandStopsAtListName(t *testing.T) {
	cmd := newRootCmd(nil)
	require.NoError(t, cmd.Flags().Parse([]string{"--width", "90", "grep", "--ignore-case", "TODO"}))
	assert.Equal(t, []string{"grep", "--ignore-case", "TODO"}, cmd.Flags().Args())
	width, err := cmd.Flags().GetInt("width")
	require.NoError(t, err)
	assert.Equal(t, 90, width)
}
