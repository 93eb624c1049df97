// Package config reads binary configuration from the environment and an
// optional YAML file.
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-editorstate"
	"github.com/goliatone/go-editorstate/pkg/activity"
)

type Config struct {
	Format     string         `yaml:"format,omitempty"`
	RuleEngine string         `yaml:"rule_engine,omitempty"`
	Rules      []string       `yaml:"rules,omitempty"`
	JSONFields []string       `yaml:"json_fields,omitempty"`
	Overrides  map[string]any `yaml:"overrides,omitempty"`
	// Redis and Postgres back share-link storage; Redis wins when both are set.
	RedisURL    string        `yaml:"redis_url,omitempty"`
	DatabaseURL string        `yaml:"database_url,omitempty"`
	ShareTable  string        `yaml:"share_table,omitempty"`
	ShareTTL    time.Duration `yaml:"share_ttl,omitempty"`
	LogLevel    string        `yaml:"log_level,omitempty"`
	Channel     string        `yaml:"activity_channel,omitempty"`
}

func Load() Config {
	return Config{
		Format:      getenv("EDITORSTATE_FORMAT", string(editorstate.DefaultFormat)),
		RuleEngine:  getenv("EDITORSTATE_RULE_ENGINE", string(editorstate.RuleEngineExpr)),
		Rules:       splitRules(getenv("EDITORSTATE_RULES", "")),
		RedisURL:    getenv("EDITORSTATE_REDIS_URL", ""),
		DatabaseURL: getenv("EDITORSTATE_DATABASE_URL", ""),
		ShareTable:  getenv("EDITORSTATE_SHARE_TABLE", "editorstate_shares"),
		ShareTTL:    time.Duration(getenvInt("EDITORSTATE_SHARE_TTL_SECONDS", 0)) * time.Second,
		LogLevel:    getenv("EDITORSTATE_LOG_LEVEL", "info"),
		Channel:     getenv("EDITORSTATE_ACTIVITY_CHANNEL", activity.DefaultChannel),
	}
}

// LoadFile reads the environment and then overlays the YAML file at path.
// Values present in the file win.
func LoadFile(path string) (Config, error) {
	cfg := Load()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg.overlay(file), nil
}

func (c Config) overlay(file Config) Config {
	if file.Format != "" {
		c.Format = file.Format
	}
	if file.RuleEngine != "" {
		c.RuleEngine = file.RuleEngine
	}
	if len(file.Rules) > 0 {
		c.Rules = file.Rules
	}
	if len(file.JSONFields) > 0 {
		c.JSONFields = file.JSONFields
	}
	if len(file.Overrides) > 0 {
		c.Overrides = file.Overrides
	}
	if file.RedisURL != "" {
		c.RedisURL = file.RedisURL
	}
	if file.DatabaseURL != "" {
		c.DatabaseURL = file.DatabaseURL
	}
	if file.ShareTable != "" {
		c.ShareTable = file.ShareTable
	}
	if file.ShareTTL > 0 {
		c.ShareTTL = file.ShareTTL
	}
	if file.LogLevel != "" {
		c.LogLevel = file.LogLevel
	}
	if file.Channel != "" {
		c.Channel = file.Channel
	}
	return c
}

// EngineOptions turns the configuration into engine options. logger may be
// nil.
func (c Config) EngineOptions(logger *slog.Logger) ([]editorstate.Option, error) {
	opts := []editorstate.Option{
		editorstate.WithDefaultFormat(editorstate.Format(c.Format)),
		editorstate.WithActivityChannel(c.Channel),
	}
	if logger != nil {
		opts = append(opts, editorstate.WithLogger(editorstate.NewSlogLogger(logger)))
	}
	if len(c.JSONFields) > 0 {
		opts = append(opts, editorstate.WithJSONFields(c.JSONFields...))
	}
	if len(c.Overrides) > 0 {
		overrides, err := toRecord(c.Overrides)
		if err != nil {
			return nil, err
		}
		opts = append(opts, editorstate.WithOverrides(overrides))
	}
	if len(c.Rules) > 0 {
		opts = append(opts, editorstate.WithLoadRules(editorstate.RuleEngine(c.RuleEngine), c.Rules...))
	}
	return opts, nil
}

// Level maps LogLevel onto a slog level, defaulting to info.
func (c Config) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return slog.LevelInfo
	}
	return level
}

// NewLogger builds the text logger used by the binaries.
func (c Config) NewLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: c.Level()}))
}

func toRecord(values map[string]any) (editorstate.Record, error) {
	record := make(editorstate.Record, len(values))
	for key, value := range values {
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("config: override %s: %w", key, err)
		}
		record[key] = raw
	}
	return record, nil
}

func splitRules(value string) []string {
	var rules []string
	for _, rule := range strings.Split(value, ";") {
		if rule = strings.TrimSpace(rule); rule != "" {
			rules = append(rules, rule)
		}
	}
	return rules
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
