// Package config loads the bot configuration from TOML with compiled
// defaults for every setting the file may omit.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

const (
	DefaultConfigPath      = "config.toml"
	DefaultHTTPAddr        = ":8080"
	DefaultBotName         = "whiteCat"
	DefaultMaxVideoBytes   = 100 * 1024 * 1024
	DefaultFetchTimeoutSec = 120
	DefaultAttemptTimeout  = 30
	DefaultGenAITimeoutSec = 60
	DefaultGenAIModel      = "gpt-4o-mini"
	DefaultHistoryCapacity = 200
	DefaultChatCapacity    = 50
)

type Config struct {
	Log      LogConfig      `toml:"log"`
	Server   ServerConfig   `toml:"server"`
	Bot      BotConfig      `toml:"bot"`
	Telegram TelegramConfig `toml:"telegram"`
	Video    VideoConfig    `toml:"video"`
	GenAI    GenAIConfig    `toml:"genai"`
	Summary  SummaryConfig  `toml:"summary"`

	// Units maps uppercase unit names to per-unit overrides, e.g.
	// [units.VIDEO_DOWNLOAD] enabled = false.
	Units map[string]ComponentConfig `toml:"units"`

	// Triggers maps uppercase trigger rule names to overrides, e.g.
	// [triggers.AI_REPLY] enabled = false.
	Triggers map[string]ComponentConfig `toml:"triggers"`

	// Providers maps uppercase provider names to overrides, e.g.
	// [providers.INSTAGRAM120] priority = 90.
	Providers map[string]ComponentConfig `toml:"providers"`
}

type LogConfig struct {
	Level  string `toml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `toml:"format" validate:"omitempty,oneof=text json"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type BotConfig struct {
	Name string `toml:"name" validate:"required"`
}

type TelegramConfig struct {
	Token          string `toml:"token" validate:"required"`
	UpdateTimeout  int    `toml:"update_timeout" validate:"gte=0"`
	DropPendingAge int    `toml:"drop_pending_age" validate:"gte=0"`
}

type VideoConfig struct {
	RapidAPIKey        string `toml:"rapidapi_key"`
	MaxBytes           int64  `toml:"max_bytes" validate:"gt=0"`
	FetchTimeoutSec    int    `toml:"fetch_timeout_seconds" validate:"gt=0"`
	AttemptTimeoutSec  int    `toml:"attempt_timeout_seconds" validate:"gt=0"`
	ProviderTimeoutSec int    `toml:"provider_timeout_seconds" validate:"gt=0"`
}

type GenAIConfig struct {
	BaseURL     string  `toml:"base_url"`
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model" validate:"required"`
	Instruction string  `toml:"instruction"`
	Temperature float64 `toml:"temperature" validate:"gte=0,lte=2"`
	TimeoutSec  int     `toml:"timeout_seconds" validate:"gt=0"`
	ChatWindow  int     `toml:"chat_window" validate:"gt=0"`
}

type SummaryConfig struct {
	HistoryWindow int      `toml:"history_window" validate:"gt=0"`
	Keywords      []string `toml:"keywords"`
}

// ComponentConfig overrides registration settings for a single unit,
// group or provider. Nil fields leave the compiled default in place.
type ComponentConfig struct {
	Enabled  *bool `toml:"enabled"`
	Priority *int  `toml:"priority" validate:"omitempty,gte=0,lte=100"`
}

// IsEnabled reports the override with the given default.
func (c ComponentConfig) IsEnabled(def bool) bool {
	if c.Enabled == nil {
		return def
	}
	return *c.Enabled
}

// PriorityOr reports the override with the given default.
func (c ComponentConfig) PriorityOr(def int) int {
	if c.Priority == nil {
		return def
	}
	return *c.Priority
}

// Load reads path (falling back to DefaultConfigPath) on top of the
// compiled defaults. A missing file is not an error; a file that fails
// validation is.
func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Bot: BotConfig{
			Name: DefaultBotName,
		},
		Telegram: TelegramConfig{
			UpdateTimeout: 60,
		},
		Video: VideoConfig{
			MaxBytes:           DefaultMaxVideoBytes,
			FetchTimeoutSec:    DefaultFetchTimeoutSec,
			AttemptTimeoutSec:  DefaultAttemptTimeout,
			ProviderTimeoutSec: DefaultAttemptTimeout,
		},
		GenAI: GenAIConfig{
			Model:       DefaultGenAIModel,
			Temperature: 1.0,
			TimeoutSec:  DefaultGenAITimeoutSec,
			ChatWindow:  DefaultChatCapacity,
		},
		Summary: SummaryConfig{
			HistoryWindow: DefaultHistoryCapacity,
			Keywords:      []string{"/summarize", "/summary", "/самарі"},
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	normalize(&cfg)

	if err := validator.New().Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// normalize uppercases override keys so [units.video_download] and
// [units.VIDEO_DOWNLOAD] address the same unit.
func normalize(cfg *Config) {
	cfg.Units = upperKeys(cfg.Units)
	cfg.Triggers = upperKeys(cfg.Triggers)
	cfg.Providers = upperKeys(cfg.Providers)
}

func upperKeys(m map[string]ComponentConfig) map[string]ComponentConfig {
	if len(m) == 0 {
		return m
	}
	out := make(map[string]ComponentConfig, len(m))
	for k, v := range m {
		out[strings.ToUpper(k)] = v
	}
	return out
}
