// Package config loads the igcache process configuration from YAML with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/git-pkgs/igcache/client"
	"github.com/git-pkgs/igcache/fetch"
	"github.com/git-pkgs/igcache/registry"
)

// Config is the process configuration.
type Config struct {
	Server       ServerConfig   `yaml:"server"`
	Database     DatabaseConfig `yaml:"database"`
	Registries   []string       `yaml:"registries" validate:"dive,url"`
	HTTP         HTTPConfig     `yaml:"http"`
	ParseWorkers int            `yaml:"parse_workers" validate:"gte=0"`
	Logging      LoggingConfig  `yaml:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Address string `yaml:"address" validate:"required"`
}

// DatabaseConfig selects and configures the cache store.
type DatabaseConfig struct {
	Driver       string `yaml:"driver" validate:"oneof=postgres memory"`
	DSN          string `yaml:"dsn" validate:"required_if=Driver postgres"`
	MaxConns     int32  `yaml:"max_conns" validate:"gte=0"`
	CreateSchema bool   `yaml:"create_schema"`
}

// HTTPConfig configures registry requests.
type HTTPConfig struct {
	Timeout          time.Duration `yaml:"timeout" validate:"gt=0"`
	MaxRetries       int           `yaml:"max_retries" validate:"gte=0,lte=10"`
	UserAgent        string        `yaml:"user_agent" validate:"required"`
	BreakerThreshold int64         `yaml:"breaker_threshold" validate:"gte=0"`

	// AuthToken is sent in AuthHeader to the configured registries only.
	AuthHeader string `yaml:"auth_header" validate:"required_with=AuthToken"`
	AuthToken  string `yaml:"auth_token"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json console"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Address: ":8080"},
		Database: DatabaseConfig{
			Driver:   "memory",
			MaxConns: 10,
		},
		HTTP: HTTPConfig{
			Timeout:          30 * time.Second,
			MaxRetries:       2,
			UserAgent:        "igcache/1.0",
			BreakerThreshold: 5,
			AuthHeader:       "Authorization",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv(os.Getenv)

	if len(cfg.Registries) == 0 {
		cfg.Registries = append([]string(nil), registry.DefaultRegistries...)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides fields from IGCACHE_DATABASE_DSN, IGCACHE_REGISTRIES,
// IGCACHE_REGISTRY_TOKEN, IGCACHE_LOG_LEVEL and PORT.
func (c *Config) applyEnv(getenv func(string) string) {
	if dsn := getenv("IGCACHE_DATABASE_DSN"); dsn != "" {
		c.Database.DSN = dsn
		c.Database.Driver = "postgres"
	}
	if regs := getenv("IGCACHE_REGISTRIES"); regs != "" {
		c.Registries = nil
		for _, r := range strings.Split(regs, ",") {
			if r = strings.TrimSpace(r); r != "" {
				c.Registries = append(c.Registries, r)
			}
		}
	}
	if token := getenv("IGCACHE_REGISTRY_TOKEN"); token != "" {
		c.HTTP.AuthToken = token
	}
	if level := getenv("IGCACHE_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if port := getenv("PORT"); port != "" {
		c.Server.Address = ":" + port
	}
}

// Validate checks the struct constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// FetchOptions returns the fetcher options for the HTTP settings. The auth
// token is only attached to requests under a configured registry URL.
func (c *Config) FetchOptions() []fetch.Option {
	opts := []fetch.Option{
		fetch.WithTimeout(c.HTTP.Timeout),
		fetch.WithMaxRetries(c.HTTP.MaxRetries),
		fetch.WithUserAgent(c.HTTP.UserAgent),
	}
	if c.HTTP.AuthToken == "" {
		return opts
	}

	prefixes := make([]string, len(c.Registries))
	for i, r := range c.Registries {
		prefixes[i] = client.NormalizeBaseURL(r) + "/"
	}
	header, token := c.HTTP.AuthHeader, c.HTTP.AuthToken
	return append(opts, fetch.WithAuthFunc(func(url string) (string, string) {
		for _, p := range prefixes {
			if strings.HasPrefix(url, p) {
				return header, token
			}
		}
		return "", ""
	}))
}
