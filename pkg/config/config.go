package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

// FlexibleStringSlice is a []string that also accepts JSON numbers,
// so allow_from can contain both "123" and 123.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}

	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

type Config struct {
	Engine   EngineConfig   `json:"engine"`
	Channels ChannelsConfig `json:"channels"`
	Logging  LoggingConfig  `json:"logging"`
}

// EngineConfig tunes the flow engine: control tokens, command cooldown and
// the inbound flood guard.
type EngineConfig struct {
	CooldownSeconds int                 `json:"cooldown_seconds" env:"CARAVEL_ENGINE_COOLDOWN_SECONDS"`
	HelpToken       string              `json:"help_token" env:"CARAVEL_ENGINE_HELP_TOKEN"`
	StopToken       string              `json:"stop_token" env:"CARAVEL_ENGINE_STOP_TOKEN"`
	DoneToken       string              `json:"done_token" env:"CARAVEL_ENGINE_DONE_TOKEN"`
	Admins          FlexibleStringSlice `json:"admins" env:"CARAVEL_ENGINE_ADMINS"`
	FloodPerMinute  int                 `json:"flood_per_minute" env:"CARAVEL_ENGINE_FLOOD_PER_MINUTE"`
	FloodBurst      int                 `json:"flood_burst" env:"CARAVEL_ENGINE_FLOOD_BURST"`
}

type ChannelsConfig struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Discord   DiscordConfig   `json:"discord"`
	WebSocket WebSocketConfig `json:"websocket"`
}

type TelegramConfig struct {
	Enabled   bool                `json:"enabled" env:"CARAVEL_CHANNELS_TELEGRAM_ENABLED"`
	Token     string              `json:"token" env:"CARAVEL_CHANNELS_TELEGRAM_TOKEN"`
	Proxy     string              `json:"proxy" env:"CARAVEL_CHANNELS_TELEGRAM_PROXY"`
	AllowFrom FlexibleStringSlice `json:"allow_from" env:"CARAVEL_CHANNELS_TELEGRAM_ALLOW_FROM"`
}

type DiscordConfig struct {
	Enabled   bool                `json:"enabled" env:"CARAVEL_CHANNELS_DISCORD_ENABLED"`
	Token     string              `json:"token" env:"CARAVEL_CHANNELS_DISCORD_TOKEN"`
	AllowFrom FlexibleStringSlice `json:"allow_from" env:"CARAVEL_CHANNELS_DISCORD_ALLOW_FROM"`
}

type WebSocketConfig struct {
	Enabled   bool                `json:"enabled" env:"CARAVEL_CHANNELS_WEBSOCKET_ENABLED"`
	Host      string              `json:"host" env:"CARAVEL_CHANNELS_WEBSOCKET_HOST"`
	Port      int                 `json:"port" env:"CARAVEL_CHANNELS_WEBSOCKET_PORT"`
	Path      string              `json:"path" env:"CARAVEL_CHANNELS_WEBSOCKET_PATH"`
	AllowFrom FlexibleStringSlice `json:"allow_from" env:"CARAVEL_CHANNELS_WEBSOCKET_ALLOW_FROM"`
}

type LoggingConfig struct {
	Level string `json:"level" env:"CARAVEL_LOGGING_LEVEL"`
	File  string `json:"file" env:"CARAVEL_LOGGING_FILE"`
}

func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			CooldownSeconds: 3,
			HelpToken:       "help",
			StopToken:       "stop",
			DoneToken:       "done",
			Admins:          FlexibleStringSlice{},
			FloodPerMinute:  60,
			FloodBurst:      10,
		},
		Channels: ChannelsConfig{
			Telegram: TelegramConfig{
				Enabled:   false,
				AllowFrom: FlexibleStringSlice{},
			},
			Discord: DiscordConfig{
				Enabled:   false,
				AllowFrom: FlexibleStringSlice{},
			},
			WebSocket: WebSocketConfig{
				Enabled:   false,
				Host:      "127.0.0.1",
				Port:      8790,
				Path:      "/ws",
				AllowFrom: FlexibleStringSlice{},
			},
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfig reads the JSON config at path (missing file means defaults) and
// applies CARAVEL_* environment overrides on top.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := env.Parse(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// DefaultConfigPath resolves the per-user config location,
// ~/.caravel/config.json.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.json"
	}
	return filepath.Join(home, ".caravel", "config.json")
}
