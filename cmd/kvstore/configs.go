package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/scott-cotton/cli"

	"github.com/tailored-agentic-units/kvcache/storage"
	"github.com/tailored-agentic-units/kvcache/store"
)

type MainConfig struct {
	ConfigFile  string `cli:"name=config desc='store config file (.json, .toml, .yaml)'"`
	StorageType string `cli:"name=storage desc='storage provider: memory, file, sqlite, postgres, rpc'"`
	Path        string `cli:"name=path desc='file provider directory or sqlite database file'"`
	URL         string `cli:"name=url desc='postgres connection URL or rpc base URL'"`
	Collections string `cli:"name=collection desc='comma separated collection keys'"`
	Verbose     bool   `cli:"name=v aliases=verbose desc='verbose logging to stderr'"`

	Main *cli.Command

	ctx    context.Context
	logger *slog.Logger
}

func (cfg *MainConfig) runContext() context.Context {
	if cfg.ctx == nil {
		return context.Background()
	}
	return cfg.ctx
}

func (cfg *MainConfig) storeConfig() (*store.Config, error) {
	var sc *store.Config
	if cfg.ConfigFile != "" {
		loaded, err := store.LoadConfig(cfg.ConfigFile)
		if err != nil {
			return nil, err
		}
		sc = loaded
	} else {
		def := store.DefaultConfig()
		sc = &def
	}

	override := store.Config{
		Storage: storage.Config{
			Type: cfg.StorageType,
			Path: cfg.Path,
			URL:  cfg.URL,
		},
	}
	for _, key := range strings.Split(cfg.Collections, ",") {
		if key = strings.TrimSpace(key); key != "" {
			override.CollectionKeys = append(override.CollectionKeys, key)
		}
	}
	sc.Merge(&override)
	return sc, nil
}

func (cfg *MainConfig) newLogger() *slog.Logger {
	if cfg.logger != nil {
		return cfg.logger
	}
	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	cfg.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	return cfg.logger
}

// openStore creates and initializes a store from the command line options.
func (cfg *MainConfig) openStore() (*store.Store, error) {
	sc, err := cfg.storeConfig()
	if err != nil {
		return nil, err
	}

	var opts []store.Option
	if sc.Observer == "" {
		opts = append(opts, store.WithLogger(cfg.newLogger()))
	}

	s, err := store.New(sc, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	if err := s.Init(cfg.runContext()); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	return s, nil
}

type GetConfig struct {
	*MainConfig
	Get *cli.Command
}

type SetConfig struct {
	*MainConfig
	Set *cli.Command
}

type MergeConfig struct {
	*MainConfig
	Merge *cli.Command
}

type MergeCollectionConfig struct {
	*MainConfig
	MergeCollection *cli.Command
}

type KeysConfig struct {
	*MainConfig
	Keys *cli.Command
}

type ClearConfig struct {
	*MainConfig
	Keep string `cli:"name=keep desc='comma separated keys to preserve'"`

	Clear *cli.Command
}

type UpdateConfig struct {
	*MainConfig
	Update *cli.Command
}

type ApplyConfig struct {
	*MainConfig
	Watch     string `cli:"name=watch desc='key or collection key to watch while applying'"`
	Where     string `cli:"name=where desc='expression over key and value selecting deliveries to print'"`
	Aggregate bool   `cli:"name=aggregate desc='deliver a watched collection as one mapping'"`

	Apply *cli.Command
}

type ServeConfig struct {
	*MainConfig
	Addr string `cli:"name=addr desc='TCP listen address' default=localhost:9140"`

	Serve *cli.Command
}
