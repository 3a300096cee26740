package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/l3aro/go-blockmap/internal/log"
)

// Config holds all configuration for blockmap
type Config struct {
	// FirstBlockID is the id given to the first block of every method
	FirstBlockID int `yaml:"first_block_id" env:"BLOCKMAP_FIRST_BLOCK_ID"`

	// ComputeStoresInLoops enables the loop-store pass. When disabled every
	// local is reported as stored in a loop.
	ComputeStoresInLoops bool `yaml:"compute_stores_in_loops" env:"BLOCKMAP_COMPUTE_STORES_IN_LOOPS"`

	// RegisterFinalizers treats the returns of java.lang.Object.<init> as trapping
	RegisterFinalizers bool `yaml:"register_finalizers" env:"BLOCKMAP_REGISTER_FINALIZERS"`

	// Result cache
	CacheFile string `yaml:"cache_file" env:"BLOCKMAP_CACHE_FILE"`
	CacheSize int    `yaml:"cache_size" env:"BLOCKMAP_CACHE_SIZE"`

	// Logging
	LogLevel string `yaml:"log_level" env:"BLOCKMAP_LOG_LEVEL"`
	JSONLogs bool   `yaml:"json_logs" env:"BLOCKMAP_JSON_LOGS"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		FirstBlockID:         0,
		ComputeStoresInLoops: true,
		RegisterFinalizers:   false,
		CacheFile:            filepath.Join(".blockmap", "cache.msgpack"),
		CacheSize:            1024,
		LogLevel:             "info",
		JSONLogs:             false,
	}
}

// globalConfigFilePath returns the global config file path (~/.blockmap/config.yaml)
func globalConfigFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ProjectConfigFilePath()
	}
	return filepath.Join(home, ".blockmap", "config.yaml")
}

// ProjectConfigFilePath returns the project-level config file path (./.blockmap/config.yaml)
func ProjectConfigFilePath() string {
	return filepath.Join(".blockmap", "config.yaml")
}

// Load reads configuration with the following priority (highest to lowest):
// 1. Environment variables
// 2. Project-level config (./.blockmap/config.yaml)
// 3. Global config (~/.blockmap/config.yaml)
// 4. Defaults
func Load() (*Config, error) {
	cfg := DefaultConfig()

	for _, path := range []string{globalConfigFilePath(), ProjectConfigFilePath()} {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile reads configuration from a specific YAML file path
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	if data, err := os.ReadFile(path); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to the specified YAML file path.
// It creates parent directories if they don't exist.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BLOCKMAP_FIRST_BLOCK_ID"); v != "" {
		if i, ok := parseInt(v); ok {
			cfg.FirstBlockID = i
		}
	}
	if v := os.Getenv("BLOCKMAP_COMPUTE_STORES_IN_LOOPS"); v != "" {
		cfg.ComputeStoresInLoops = parseBool(v)
	}
	if v := os.Getenv("BLOCKMAP_REGISTER_FINALIZERS"); v != "" {
		cfg.RegisterFinalizers = parseBool(v)
	}
	if v, ok := os.LookupEnv("BLOCKMAP_CACHE_FILE"); ok {
		cfg.CacheFile = v
	}
	if v := os.Getenv("BLOCKMAP_CACHE_SIZE"); v != "" {
		if i, ok := parseInt(v); ok && i > 0 {
			cfg.CacheSize = i
		}
	}
	if v := os.Getenv("BLOCKMAP_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("BLOCKMAP_JSON_LOGS"); v != "" {
		cfg.JSONLogs = parseBool(v)
	}
}

// Validate checks that the configuration has valid fields
func (c *Config) Validate() error {
	if c.FirstBlockID < 0 {
		return fmt.Errorf("first_block_id must be non-negative")
	}
	if c.CacheSize <= 0 {
		return fmt.Errorf("cache_size must be positive")
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level: %w", err)
	}
	return nil
}

// Level returns the configured log level. Validate has checked it.
func (c *Config) Level() log.Level {
	level, _ := log.ParseLevel(c.LogLevel)
	return level
}

// NewLogger builds the logger described by the configuration.
func (c *Config) NewLogger() log.Logger {
	return log.New(log.LoggerConfig{
		Level:      c.Level(),
		JSONOutput: c.JSONLogs,
	})
}

func parseBool(s string) bool {
	switch strings.ToLower(s) {
	case "true", "1", "yes":
		return true
	}
	return false
}

// parseInt attempts to parse a string as int
func parseInt(s string) (int, bool) {
	var i int
	if _, err := fmt.Sscanf(s, "%d", &i); err != nil {
		return 0, false
	}
	return i, true
}
