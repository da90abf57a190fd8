package config

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type ModerationConfig struct {
	Preset    []string `mapstructure:"preset"`
	Extra     []string `mapstructure:"extra"`
	Allowlist []string `mapstructure:"allowlist"`
}

type Config struct {
	Mode     string `mapstructure:"mode"`
	Port     int    `mapstructure:"port"`
	Secret   string `mapstructure:"secret"`
	RedisURL string `mapstructure:"redis_url"`

	ReadLimit          int64         `mapstructure:"read_limit"`
	MaxFrameBytes      int           `mapstructure:"max_frame_bytes"`
	MaxInvalidPayloads int           `mapstructure:"max_invalid_payloads"`
	PresenceWindow     time.Duration `mapstructure:"presence_window"`
	RateLimitMessages  int           `mapstructure:"ratelimit_messages"`
	RateLimitWindow    time.Duration `mapstructure:"ratelimit_window"`
	HistoryLimit       int           `mapstructure:"history_limit"`

	Moderation ModerationConfig `mapstructure:"moderation"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("read_limit", 32768)
	v.SetDefault("max_frame_bytes", 16384)
	v.SetDefault("max_invalid_payloads", 3)
	v.SetDefault("presence_window", "200ms")
	v.SetDefault("ratelimit_messages", 10)
	v.SetDefault("ratelimit_window", "10s")
	v.SetDefault("history_limit", 200)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
