// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads the accounts configuration from defaults, an
// optional YAML file, the DATABASE_URL environment variable and
// command-line flags, in increasing order of precedence.
package config

import (
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/accounts/internal/auth"
)

// Store kinds.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// EnvDatabaseURL overrides database.url when set.
const EnvDatabaseURL = "DATABASE_URL"

// Config is the complete accounts configuration.
type Config struct {
	Database DatabaseConfig `koanf:"database"`
	Store    string         `koanf:"store"`
	Auth     AuthConfig     `koanf:"auth"`
	Hasher   HasherConfig   `koanf:"hasher"`
	Log      LogConfig      `koanf:"log"`
}

// DatabaseConfig configures the PostgreSQL connection.
type DatabaseConfig struct {
	URL string `koanf:"url"`
}

// AuthConfig configures the identity services.
type AuthConfig struct {
	// RequireEmailConfirmation creates identities unconfirmed until their
	// confirmation token is redeemed. When false they start confirmed.
	RequireEmailConfirmation bool `koanf:"require_email_confirmation"`
	ResetTokenExpiryMinutes  int  `koanf:"reset_token_expiry_minutes"`
	TokenBytes               int  `koanf:"token_bytes"`
}

// HasherConfig holds the argon2id cost parameters.
type HasherConfig struct {
	MemoryKiB uint32 `koanf:"memory_kib"`
	Time      uint32 `koanf:"time"`
	Threads   uint8  `koanf:"threads"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// Default returns the built-in configuration.
func Default() Config {
	params := auth.DefaultArgon2Params()
	return Config{
		Store: StorePostgres,
		Auth: AuthConfig{
			RequireEmailConfirmation: true,
			ResetTokenExpiryMinutes:  60,
			TokenBytes:               auth.DefaultTokenBytes,
		},
		Hasher: HasherConfig{
			MemoryKiB: params.Memory,
			Time:      params.Time,
			Threads:   params.Threads,
		},
		Log: LogConfig{Format: "json", Level: "info"},
	}
}

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"database-url":               "database.url",
	"store":                      "store",
	"require-email-confirmation": "auth.require_email_confirmation",
	"reset-token-expiry":         "auth.reset_token_expiry_minutes",
	"log-format":                 "log.format",
	"log-level":                  "log.level",
}

// RegisterFlags adds the configuration flags to fs. Defaults shown in help
// come from Default; only flags set explicitly override other sources.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("database-url", d.Database.URL, "PostgreSQL connection URL")
	fs.String("store", d.Store, "identity store: postgres or memory")
	fs.Bool("require-email-confirmation", d.Auth.RequireEmailConfirmation,
		"create identities unconfirmed until their email address is confirmed")
	fs.Int("reset-token-expiry", d.Auth.ResetTokenExpiryMinutes, "password reset token lifetime in minutes")
	fs.String("log-format", d.Log.Format, "log format: json or text")
	fs.String("log-level", d.Log.Level, "log level: debug, info, warn or error")
}

// Load builds the configuration. path may be empty to skip the file;
// flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").
				With("operation", "load config file").
				With("path", path).
				Wrap(err)
		}
	}

	if url := os.Getenv(EnvDatabaseURL); url != "" {
		if err := k.Set("database.url", url); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("operation", "apply environment").Wrap(err)
		}
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("operation", "load flags").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("operation", "unmarshal config").Wrap(err)
	}
	cfg.Store = strings.ToLower(cfg.Store)
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)
	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Store {
	case StorePostgres:
		if c.Database.URL == "" {
			return invalid("database.url", "database.url is required for the postgres store")
		}
	case StoreMemory:
	default:
		return invalid("store", "unknown store %q", c.Store)
	}

	switch c.Log.Format {
	case "json", "text":
	default:
		return invalid("log.format", "unknown log format %q", c.Log.Format)
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}

	if c.Auth.ResetTokenExpiryMinutes < 1 {
		return invalid("auth.reset_token_expiry_minutes", "reset token expiry must be at least 1 minute")
	}
	if c.Auth.TokenBytes < 16 {
		return invalid("auth.token_bytes", "tokens must carry at least 16 random bytes")
	}
	if err := c.Hasher.Params().Validate(); err != nil {
		return invalid("hasher", "weak hasher parameters: %v", err)
	}
	return nil
}

// Params returns the argon2id parameters, keeping the default salt and key
// lengths.
func (h HasherConfig) Params() auth.Argon2Params {
	p := auth.DefaultArgon2Params()
	p.Memory = h.MemoryKiB
	p.Time = h.Time
	p.Threads = h.Threads
	return p
}

func invalid(key, format string, args ...any) error {
	return oops.Code("CONFIG_INVALID").With("key", key).Errorf(format, args...)
}
