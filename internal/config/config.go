package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Errors
var (
	ErrInvalidWorkers  = errors.New("workers must be at least 1")
	ErrInvalidLogLevel = errors.New("unknown log level")
	ErrNoPatternFile   = errors.New("no pattern config file found")
)

// DefaultRareLog is where rare finds are appended when no path is given.
const DefaultRareLog = "rare_wallets.txt"

// DefaultPatternFiles are searched in order when --config is not set.
var DefaultPatternFiles = []string{
	"config.json",
	filepath.Join("vanity_gen", "config.json"),
}

var knownLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true, "fatal": true}

// Config holds the application configuration
type Config struct {
	Workers           int    `mapstructure:"workers"`
	PatternFile       string `mapstructure:"config"`
	RareLog           string `mapstructure:"rare-log"`
	LogLevel          string `mapstructure:"log-level"`
	LogFile           string `mapstructure:"log-file"`
	MetricsAddr       string `mapstructure:"metrics-addr"`
	PerWorkerProgress bool   `mapstructure:"per-worker-progress"`
}

// NewConfig creates a new configuration with default values
func NewConfig() *Config {
	return &Config{
		Workers:  runtime.NumCPU(),
		RareLog:  DefaultRareLog,
		LogLevel: "info",
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return ErrInvalidWorkers
	}
	if !knownLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.LogLevel)
	}
	return nil
}

// Load merges cmd's flags with VANITY_* environment variables into a Config.
// Flags explicitly set on the command line win over the environment.
func Load(cmd *cobra.Command) (*Config, error) {
	defaults := NewConfig()
	v := viper.New()
	v.SetDefault("workers", defaults.Workers)
	v.SetDefault("rare-log", defaults.RareLog)
	v.SetDefault("log-level", defaults.LogLevel)

	v.SetEnvPrefix("vanity")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	return &c, nil
}

// PatternConfig is one rarity rule as written in the pattern file.
type PatternConfig struct {
	Pattern   string `mapstructure:"pattern" json:"pattern"`
	MinLength int    `mapstructure:"minLength" json:"minLength"`
}

type patternFile struct {
	Patterns []PatternConfig `mapstructure:"patterns"`
}

// FindPatternFile returns explicit if set, otherwise the first default
// location that exists.
func FindPatternFile(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	for _, p := range DefaultPatternFiles {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", ErrNoPatternFile
}

// LoadPatterns reads the rarity rules from path. The format follows the file
// extension (JSON, YAML or TOML); files without one are read as JSON.
func LoadPatterns(path string) ([]PatternConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if filepath.Ext(path) == "" {
		v.SetConfigType("json")
	}
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read pattern config %s: %w", path, err)
	}
	if !v.IsSet("patterns") {
		return nil, fmt.Errorf("pattern config %s: missing \"patterns\"", path)
	}

	var pf patternFile
	if err := v.Unmarshal(&pf); err != nil {
		return nil, fmt.Errorf("decode pattern config %s: %w", path, err)
	}
	return pf.Patterns, nil
}
