package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestLoadConfigFromEnv(t *testing.T) {
	tests := []struct {
		name      string
		format    string
		level     string
		source    string
		want      Config
		wantError bool
	}{
		{name: "defaults", want: Config{Format: "json", Level: slog.LevelInfo}},
		{name: "text debug", format: "TEXT", level: "debug", want: Config{Format: "text", Level: slog.LevelDebug}},
		{name: "warning alias", level: "warning", want: Config{Format: "json", Level: slog.LevelWarn}},
		{name: "source", source: "1", want: Config{Format: "json", Level: slog.LevelInfo, AddSource: true}},
		{name: "invalid format", format: "yaml", wantError: true},
		{name: "invalid level", level: "trace", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvFormat, tt.format)
			t.Setenv(EnvLevel, tt.level)
			t.Setenv(EnvSource, tt.source)

			cfg, err := LoadConfigFromEnv()
			if tt.wantError {
				if err == nil {
					t.Fatalf("LoadConfigFromEnv() error = nil, want non-nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("LoadConfigFromEnv() error = %v", err)
			}
			if cfg != tt.want {
				t.Fatalf("LoadConfigFromEnv() = %+v, want %+v", cfg, tt.want)
			}
		})
	}
}

func TestNewLogger_JSONIncludesStaticAttrs(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	logger := NewLogger(DefaultConfig(), &out, "wafscan scan")
	logger.Info("hello", "check_id", "SE05")

	var payload map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(out.String())), &payload); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if got := payload["app"]; got != "wafscan" {
		t.Fatalf("app = %v, want wafscan", got)
	}
	if got := payload["command"]; got != "wafscan scan" {
		t.Fatalf("command = %v, want %q", got, "wafscan scan")
	}
	if got := payload["check_id"]; got != "SE05" {
		t.Fatalf("check_id = %v, want SE05", got)
	}
}

func TestNewLogger_TextAndLevelFilter(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	logger := NewLogger(Config{Format: "text", Level: slog.LevelWarn}, &out, "")
	logger.Info("dropped")
	logger.Warn("kept")

	got := out.String()
	if strings.Contains(got, "dropped") {
		t.Fatalf("output %q contains info record below warn level", got)
	}
	if !strings.Contains(got, "msg=kept") || !strings.Contains(got, "command=wafscan") {
		t.Fatalf("output %q, want text record with default command", got)
	}
}
