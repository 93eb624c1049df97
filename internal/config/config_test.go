package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/goliatone/go-editorstate"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"EDITORSTATE_FORMAT", "EDITORSTATE_RULES", "EDITORSTATE_SHARE_TTL_SECONDS", "EDITORSTATE_LOG_LEVEL"} {
		t.Setenv(key, "")
	}
	cfg := Load()
	if cfg.Format != "pako" {
		t.Fatalf("expected pako default format, got %q", cfg.Format)
	}
	if len(cfg.Rules) != 0 {
		t.Fatalf("expected no rules, got %v", cfg.Rules)
	}
	if cfg.ShareTTL != 0 {
		t.Fatalf("expected no ttl, got %v", cfg.ShareTTL)
	}
	if cfg.Level() != slog.LevelInfo {
		t.Fatalf("expected info level, got %v", cfg.Level())
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("EDITORSTATE_FORMAT", "base64")
	t.Setenv("EDITORSTATE_RULES", "grid == true; viewMode == 'code' ;")
	t.Setenv("EDITORSTATE_SHARE_TTL_SECONDS", "3600")
	t.Setenv("EDITORSTATE_LOG_LEVEL", "debug")

	cfg := Load()
	if cfg.Format != "base64" {
		t.Fatalf("expected base64, got %q", cfg.Format)
	}
	if !reflect.DeepEqual(cfg.Rules, []string{"grid == true", "viewMode == 'code'"}) {
		t.Fatalf("unexpected rules %v", cfg.Rules)
	}
	if cfg.ShareTTL != time.Hour {
		t.Fatalf("expected one hour ttl, got %v", cfg.ShareTTL)
	}
	if cfg.Level() != slog.LevelDebug {
		t.Fatalf("expected debug level, got %v", cfg.Level())
	}
}

func TestLoadFileOverlaysEnv(t *testing.T) {
	t.Setenv("EDITORSTATE_FORMAT", "base64")
	path := filepath.Join(t.TempDir(), "editorstate.yaml")
	body := `format: pako
rules:
  - rough == false
share_ttl: 30m
overrides:
  rough: false
  viewMode: config
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load file: %v", err)
	}
	if cfg.Format != "pako" {
		t.Fatalf("expected file format to win, got %q", cfg.Format)
	}
	if cfg.ShareTTL != 30*time.Minute {
		t.Fatalf("expected 30m ttl, got %v", cfg.ShareTTL)
	}

	opts, err := cfg.EngineOptions(nil)
	if err != nil {
		t.Fatalf("engine options: %v", err)
	}
	engine, err := editorstate.NewEngine(opts...)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if engine.DefaultFormat() != editorstate.FormatPako {
		t.Fatalf("expected pako engine format, got %q", engine.DefaultFormat())
	}

	roughState := editorstate.DefaultState()
	roughState.Rough = true
	token, err := engine.Serialize(roughState, editorstate.FormatBase64)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	inspection, err := engine.Inspect(token)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if inspection.State.Rough || inspection.State.ViewMode != editorstate.ViewModeConfig {
		t.Fatalf("expected overrides to win, got %+v", inspection.State)
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestEngineOptionsRejectUnknownOverride(t *testing.T) {
	cfg := Config{Format: "pako", Overrides: map[string]any{"theme": "dark"}}
	opts, err := cfg.EngineOptions(nil)
	if err != nil {
		t.Fatalf("engine options: %v", err)
	}
	if _, err := editorstate.NewEngine(opts...); err == nil {
		t.Fatalf("expected unknown override field to be rejected")
	}
}
