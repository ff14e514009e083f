package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/goccy/go-yaml"

	"github.com/tailored-agentic-units/kvcache/cache"
	"github.com/tailored-agentic-units/kvcache/storage"
)

// Config holds initialization parameters for the store and its subsystems.
type Config struct {
	Storage        storage.Config `json:"storage" toml:"storage" yaml:"storage"`
	Cache          cache.Config   `json:"cache" toml:"cache" yaml:"cache"`
	CollectionKeys []string       `json:"collection_keys,omitempty" toml:"collection_keys,omitempty" yaml:"collection_keys,omitempty"`
	Observer       string         `json:"observer,omitempty" toml:"observer,omitempty" yaml:"observer,omitempty"`    // Comma separated registered observer names; empty uses the default slog logger.
	LogLevel       string         `json:"log_level,omitempty" toml:"log_level,omitempty" yaml:"log_level,omitempty"` // Minimum event level forwarded to the observer.
}

// DefaultConfig returns a Config with defaults for every subsystem.
func DefaultConfig() Config {
	return Config{
		Storage: storage.DefaultConfig(),
		Cache:   cache.DefaultConfig(),
	}
}

// Merge applies non-zero values from source into c, delegating to each
// subsystem's Merge method. Collection keys accumulate.
func (c *Config) Merge(source *Config) {
	c.Storage.Merge(&source.Storage)
	c.Cache.Merge(&source.Cache)

	for _, key := range source.CollectionKeys {
		if !slices.Contains(c.CollectionKeys, key) {
			c.CollectionKeys = append(c.CollectionKeys, key)
		}
	}
	if source.Observer != "" {
		c.Observer = source.Observer
	}
	if source.LogLevel != "" {
		c.LogLevel = source.LogLevel
	}
}

// LoadConfig reads a config file, merges it with defaults, and returns the
// resulting Config. The format follows the file extension: .json, .toml,
// or .yaml/.yml.
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var loaded Config
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".json":
		err = json.Unmarshal(data, &loaded)
	case ".toml":
		err = toml.Unmarshal(data, &loaded)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &loaded)
	default:
		return nil, fmt.Errorf("unsupported config format %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Merge(&loaded)
	return &cfg, nil
}
