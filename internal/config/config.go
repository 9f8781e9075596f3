// Package config loads the demo CLI's settings from config.yaml or
// config.toml (with environment variable overrides), the way beads's
// cmd/bd/config.go and internal/labelmutex/policy.go each spin up a
// scoped viper.New() rather than relying on viper's global singleton.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

// Config is the settings the demo CLI needs to open a sqlprovider.Provider.
type Config struct {
	Driver string `mapstructure:"driver" toml:"driver"`
	DSN    string `mapstructure:"dsn" toml:"dsn"`
}

func defaults() Config {
	return Config{Driver: "sqlite", DSN: "entitysession.db"}
}

// Load reads configPath (if it exists), then applies
// ENTITYSESSION_-prefixed environment variable overrides on top — env
// beats file, matching viper's own precedence order. A ".toml" path is
// decoded directly with github.com/BurntSushi/toml against Config's
// toml tags, the same straight toml.DecodeFile-into-a-tagged-struct
// beads uses for its recipe definitions (internal/recipes); any other
// path is read as YAML through viper.
func Load(configPath string) (Config, error) {
	cfg := defaults()

	if strings.HasSuffix(configPath, ".toml") {
		if _, err := toml.DecodeFile(configPath, &cfg); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return Config{}, fmt.Errorf("config: reading %s: %w", configPath, err)
			}
			cfg = defaults()
		}
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("ENTITYSESSION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("driver", cfg.Driver)
	v.SetDefault("dsn", cfg.DSN)

	if configPath != "" && !strings.HasSuffix(configPath, ".toml") {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return Config{}, fmt.Errorf("config: reading %s: %w", configPath, err)
			}
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}
