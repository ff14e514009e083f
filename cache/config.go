package cache

const defaultMaxRecentKeys = 1000

// Config holds cache sizing parameters.
type Config struct {
	// MaxRecentKeys bounds how many values stay resident. Zero or negative
	// disables eviction.
	MaxRecentKeys int `json:"max_recent_keys,omitempty" toml:"max_recent_keys,omitempty" yaml:"max_recent_keys,omitempty"`
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() Config {
	return Config{MaxRecentKeys: defaultMaxRecentKeys}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.MaxRecentKeys != 0 {
		c.MaxRecentKeys = source.MaxRecentKeys
	}
}
