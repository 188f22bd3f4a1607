// Package config loads docreduce settings from a YAML file, DOCREDUCE_*
// environment variables and built-in defaults, in that order of
// precedence (env wins over file).
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	"github.com/roach88/docreduce/internal/ir"
)

// EnvPrefix is the prefix of environment overrides, e.g. DOCREDUCE_HASH.
const EnvPrefix = "DOCREDUCE"

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Config holds the settings shared by every command.
type Config struct {
	// Database is the SQLite file documents are stored in.
	Database string `mapstructure:"database"`

	// Hash is the state hash algorithm name, see ir.HasherFor.
	Hash string `mapstructure:"hash"`

	// Format is the CLI output format: text or json.
	Format string `mapstructure:"format"`

	// LogLevel is a slog level name: debug, info, warn or error.
	LogLevel string `mapstructure:"log_level"`

	// Memoize stores resulting states on dispatched operations and resumes
	// replays from them.
	Memoize bool `mapstructure:"memoize"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Database: "docreduce.db",
		Hash:     ir.AlgorithmSHA1Base64,
		Format:   FormatText,
		LogLevel: "info",
		Memoize:  false,
	}
}

// Load reads configuration. An explicit path must exist; without one,
// docreduce.yaml is looked up in the working directory and ./config and
// may be absent.
func Load(path string) (*Config, error) {
	v := viper.New()

	d := Defaults()
	v.SetDefault("database", d.Database)
	v.SetDefault("hash", d.Hash)
	v.SetDefault("format", d.Format)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("memoize", d.Memoize)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("docreduce")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	if _, err := ir.HasherFor(c.Hash); err != nil {
		return fmt.Errorf("config hash: %w", err)
	}
	switch c.Format {
	case FormatText, FormatJSON:
	default:
		return fmt.Errorf("config format: unknown format %q (want text or json)", c.Format)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Hasher returns the configured state hasher.
func (c *Config) Hasher() ir.Hasher {
	h, err := ir.HasherFor(c.Hash)
	if err != nil {
		return ir.SHA1Base64{}
	}
	return h
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("config log_level: %w", err)
	}
	return level, nil
}
