// Package config loads application configuration from an optional YAML
// file and CEDA_-prefixed environment variables, env taking precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "CEDA_"

// Config is the full application configuration.
type Config struct {
	Server ServerConfig `koanf:"server"`
	Log    LogConfig    `koanf:"log"`
	Slack  SlackConfig  `koanf:"slack"`
	GitHub GitHubConfig `koanf:"github"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port" validate:"required"`
	MetricsPort       string        `koanf:"metrics_port" validate:"required"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json text"`
}

// SlackConfig holds Slack app credentials and the edit allowlist.
type SlackConfig struct {
	SigningSecret   string   `koanf:"signing_secret" validate:"required"`
	BotToken        string   `koanf:"bot_token" validate:"required"`
	APIBaseURL      string   `koanf:"api_base_url"`
	AuthorizedUsers []string `koanf:"authorized_users" validate:"min=1"`
	RateLimit       float64  `koanf:"rate_limit"`
}

// GitHubConfig holds the status repository coordinates.
type GitHubConfig struct {
	Owner      string        `koanf:"owner" validate:"required"`
	Repo       string        `koanf:"repo" validate:"required"`
	Path       string        `koanf:"path"`
	Branch     string        `koanf:"branch"`
	Token      string        `koanf:"token" validate:"required"`
	APIBaseURL string        `koanf:"api_base_url"`
	Timeout    time.Duration `koanf:"timeout"`
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              "8080",
			MetricsPort:       "9090",
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Slack: SlackConfig{
			RateLimit: 5,
		},
		GitHub: GitHubConfig{
			Path:    "status.json",
			Branch:  "main",
			Timeout: 10 * time.Second,
		},
	}
}

// Load reads configuration from the given YAML file (skipped when path
// is empty) and the environment, validates it and returns the result.
//
// Environment variables map section_key pairs, e.g.
// CEDA_SLACK_SIGNING_SECRET -> slack.signing_secret. The allowlist
// CEDA_SLACK_AUTHORIZED_USERS is a comma-separated list of user ids.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	err := k.Load(env.ProviderWithValue(envPrefix, ".", func(key, value string) (string, interface{}) {
		key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
		// First underscore separates the section from the key.
		key = strings.Replace(key, "_", ".", 1)

		if key == "slack.authorized_users" {
			var users []string
			for _, u := range strings.Split(value, ",") {
				if u = strings.TrimSpace(u); u != "" {
					users = append(users, u)
				}
			}
			return key, users
		}
		return key, value
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := defaults()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}
