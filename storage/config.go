package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Provider types understood by NewProvider.
const (
	TypeMemory   = "memory"
	TypeFile     = "file"
	TypeSQLite   = "sqlite"
	TypePostgres = "postgres"
)

// Config selects and parameterizes the storage provider.
type Config struct {
	Type string `json:"type,omitempty" toml:"type,omitempty" yaml:"type,omitempty"` // Provider type; see NewProvider.
	Path string `json:"path,omitempty" toml:"path,omitempty" yaml:"path,omitempty"` // File root directory or SQLite database file.
	URL  string `json:"url,omitempty" toml:"url,omitempty" yaml:"url,omitempty"`    // PostgreSQL connection URL or remote provider base URL.
}

// DefaultConfig returns the default storage configuration (in-memory).
func DefaultConfig() Config {
	return Config{Type: TypeMemory}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Type != "" {
		c.Type = source.Type
	}
	if source.Path != "" {
		c.Path = source.Path
	}
	if source.URL != "" {
		c.URL = source.URL
	}
}

// Factory creates a Provider from configuration.
type Factory func(ctx context.Context, cfg *Config) (Provider, error)

var (
	factories = map[string]Factory{
		TypeMemory: func(_ context.Context, _ *Config) (Provider, error) {
			return NewMemoryProvider(), nil
		},
		TypeFile: func(_ context.Context, cfg *Config) (Provider, error) {
			if cfg.Path == "" {
				return nil, fmt.Errorf("file storage requires a path")
			}
			return NewFileProvider(cfg.Path), nil
		},
		TypeSQLite: func(ctx context.Context, cfg *Config) (Provider, error) {
			if cfg.Path == "" {
				return nil, fmt.Errorf("sqlite storage requires a path")
			}
			return OpenSQLite(ctx, cfg.Path)
		},
		TypePostgres: func(ctx context.Context, cfg *Config) (Provider, error) {
			if cfg.URL == "" {
				return nil, fmt.Errorf("postgres storage requires a url")
			}
			return OpenPostgres(ctx, cfg.URL)
		},
	}
	mutex sync.RWMutex
)

// Register adds or replaces a named provider factory.
func Register(name string, factory Factory) {
	mutex.Lock()
	defer mutex.Unlock()

	factories[name] = factory
}

// Types returns the registered provider type names in sorted order.
func Types() []string {
	mutex.RLock()
	defer mutex.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewProvider creates a Provider from configuration. An empty Type selects
// the in-memory provider.
func NewProvider(ctx context.Context, cfg *Config) (Provider, error) {
	typ := cfg.Type
	if typ == "" {
		typ = TypeMemory
	}

	mutex.RLock()
	factory, exists := factories[typ]
	mutex.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, typ)
	}
	return factory(ctx, cfg)
}
