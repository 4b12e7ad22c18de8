// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all harvester configuration knobs loaded via Viper.
type Config struct {
	Engine  EngineConfig  `mapstructure:"engine"`
	Batch   BatchConfig   `mapstructure:"batch"`
	Journal JournalConfig `mapstructure:"journal"`
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// EngineConfig describes how to invoke the external crawl engine.
type EngineConfig struct {
	Binary         string   `mapstructure:"binary"`
	BaseArgs       []string `mapstructure:"base_args"`
	WorkDir        string   `mapstructure:"work_dir"`
	TimeoutSeconds int      `mapstructure:"timeout_seconds"`
}

// BatchConfig governs how a job is split into engine invocations.
type BatchConfig struct {
	Size       int    `mapstructure:"size"`
	OutputPath string `mapstructure:"output_path"`
	LogPath    string `mapstructure:"log_path"`
	Headerless bool   `mapstructure:"headerless"`
	Sort       string `mapstructure:"sort"`
}

// JournalConfig controls run bookkeeping.
type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// ServerConfig controls the optional status HTTP server. Port 0 leaves
// the server disabled.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HARVESTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Defaults exist for every key so environment overrides are always
	// visible to Unmarshal.
	v.SetDefault("engine.binary", "")
	v.SetDefault("engine.base_args", []string{})
	v.SetDefault("engine.work_dir", "")
	v.SetDefault("engine.timeout_seconds", 1800)
	v.SetDefault("batch.log_path", "")
	v.SetDefault("batch.headerless", false)
	v.SetDefault("batch.size", 500)
	v.SetDefault("batch.output_path", "data/output.csv")
	v.SetDefault("batch.sort", "none")
	v.SetDefault("journal.enabled", true)
	v.SetDefault("journal.path", "data/harvester.db")
	v.SetDefault("server.port", 0)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits. Configuration
// errors surface here, before any batch is launched.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Engine.Binary) == "" {
		return fmt.Errorf("engine.binary must be set")
	}
	if c.Engine.TimeoutSeconds < 0 {
		return fmt.Errorf("engine.timeout_seconds must be >= 0")
	}
	if c.Batch.Size <= 0 {
		return fmt.Errorf("batch.size must be > 0")
	}
	if strings.TrimSpace(c.Batch.OutputPath) == "" {
		return fmt.Errorf("batch.output_path must be set")
	}
	switch c.Batch.Sort {
	case "none", "lines", "csv":
	default:
		return fmt.Errorf("batch.sort must be none, lines or csv")
	}
	if c.Journal.Enabled && strings.TrimSpace(c.Journal.Path) == "" {
		return fmt.Errorf("journal.path must be set when the journal is enabled")
	}
	if c.Server.Port < 0 {
		return fmt.Errorf("server.port must be >= 0")
	}
	return nil
}

// EngineTimeout converts the configured timeout into a duration.
func (c Config) EngineTimeout() time.Duration {
	return time.Duration(c.Engine.TimeoutSeconds) * time.Second
}
