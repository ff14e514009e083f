// Package store is the reactive key/value store: a storage provider behind
// an in-memory cache, with subscribers notified of every change.
//
// Every mutation runs through one write sequencer, so writes to any keys
// take effect strictly in submission order. A write reaches storage first,
// then the cache, and then the matching subscribers are queued for
// delivery before the call returns. Deliveries run on their own sequencer
// in the order they were queued.
//
//	s, err := store.New(&cfg)
//	err = s.Init(ctx)
//	id, err := s.Connect(subscription.Options{Key: "session", Callback: onSession})
//	err = s.Merge(ctx, "session", map[string]any{"user": "ada"})
//
// Callbacks run on the delivery goroutine. They may call any store method
// except Flush, which waits for the delivery queue to drain.
package store

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/tailored-agentic-units/kvcache/cache"
	"github.com/tailored-agentic-units/kvcache/merge"
	"github.com/tailored-agentic-units/kvcache/observability"
	"github.com/tailored-agentic-units/kvcache/sequencer"
	"github.com/tailored-agentic-units/kvcache/storage"
	"github.com/tailored-agentic-units/kvcache/subscription"
)

// Option configures a Store during New. Options run before config-driven
// defaults are filled in, so they take precedence over config.
type Option func(*Store)

// WithProvider overrides the config-created storage provider.
func WithProvider(p storage.Provider) Option {
	return func(s *Store) { s.provider = p }
}

// WithObserver overrides the config-selected observer.
func WithObserver(o observability.Observer) Option {
	return func(s *Store) { s.observer = o }
}

// WithLogger routes store events to logger through a SlogObserver.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.observer = observability.NewSlogObserver(logger) }
}

// WithCollectionKeys registers collection keys in addition to those in
// config.
func WithCollectionKeys(keys ...string) Option {
	return func(s *Store) { s.collections.Register(keys...) }
}

// Store is the public entry point. All methods are safe for concurrent use.
type Store struct {
	provider    storage.Provider
	cache       *cache.Cache
	collections *subscription.Collections
	registry    *subscription.Registry
	writes      *sequencer.Sequencer[func() error]
	deliveries  *sequencer.Sequencer[delivery]
	observer    observability.Observer
	metrics     Metrics
	closed      atomic.Bool
	delivering  atomic.Bool
}

// New creates a Store from configuration.
func New(cfg *Config, opts ...Option) (*Store, error) {
	collections := subscription.NewCollections(cfg.CollectionKeys...)

	s := &Store{
		cache:       cache.New(&cfg.Cache),
		collections: collections,
		registry:    subscription.NewRegistry(collections),
	}
	s.writes = sequencer.New(func(job func() error) error { return job() })
	s.deliveries = sequencer.New(s.deliver)

	for _, opt := range opts {
		opt(s)
	}

	if s.observer == nil {
		obs, err := newObserver(cfg)
		if err != nil {
			return nil, err
		}
		s.observer = obs
	}

	if s.provider == nil {
		p, err := storage.NewProvider(context.Background(), &cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage provider: %w", err)
		}
		s.provider = p
	}

	return s, nil
}

func newObserver(cfg *Config) (observability.Observer, error) {
	var obs observability.Observer = observability.NewSlogObserver(slog.Default())
	if cfg.Observer != "" {
		var named []observability.Observer
		for _, name := range strings.Split(cfg.Observer, ",") {
			o, err := observability.GetObserver(strings.TrimSpace(name))
			if err != nil {
				return nil, fmt.Errorf("failed to resolve observer: %w", err)
			}
			named = append(named, o)
		}
		obs = observability.NewMultiObserver(named...)
	}

	if cfg.LogLevel != "" {
		level, ok := observability.ParseLevel(cfg.LogLevel)
		if !ok {
			return nil, fmt.Errorf("unknown log level %q", cfg.LogLevel)
		}
		obs = observability.NewLevelFilter(level, obs)
	}
	return obs, nil
}

func (s *Store) emit(ctx context.Context, typ observability.EventType, level observability.Level, source string, data map[string]any) {
	s.observer.OnEvent(ctx, observability.Event{
		Type:      typ,
		Level:     level,
		Timestamp: time.Now(),
		Source:    source,
		Data:      data,
	})
}

// Init loads the set of keys present in storage so collection lookups see
// members that have not been read yet. Values load lazily.
func (s *Store) Init(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}

	keys, err := s.provider.GetAllKeys(ctx)
	if err != nil {
		s.metrics.storageFailures.Add(1)
		return storageFailure("get all keys", "", err)
	}
	s.cache.AddKnownKeys(keys...)

	s.emit(ctx, EventInit, observability.LevelInfo, "store.Init", map[string]any{
		"keys":        len(keys),
		"collections": s.collections.Keys(),
	})
	return nil
}

// Provider returns the storage provider behind the store.
func (s *Store) Provider() storage.Provider {
	return s.provider
}

// Metrics returns a snapshot of the store counters.
func (s *Store) Metrics() MetricsSnapshot {
	return s.metrics.Snapshot()
}

// KnownKeys returns the keys known to exist that start with prefix.
func (s *Store) KnownKeys(prefix string) []string {
	return s.cache.KnownKeys(prefix)
}

// Get returns the value for key, reading storage on a cache miss. Absent
// keys return nil. Concurrent misses for one key share a single read.
func (s *Store) Get(ctx context.Context, key string) (any, error) {
	if key == "" {
		return nil, invalidArgument("empty key")
	}
	if s.closed.Load() {
		return nil, ErrClosed
	}

	if v, ok := s.cache.Get(key); ok {
		s.metrics.cacheHits.Add(1)
		return v, nil
	}
	s.metrics.cacheMisses.Add(1)

	v, err := s.load(ctx, key)
	if err != nil {
		return nil, err
	}
	s.evict(ctx)
	return merge.Clone(v), nil
}

// load reads key through the pending-task table and fills the cache.
func (s *Store) load(ctx context.Context, key string) (any, error) {
	if v, ok := s.cache.Get(key); ok {
		return v, nil
	}

	task := s.cache.CaptureTask("get:"+key, func() (any, error) {
		gen := s.cache.Generation(key)
		s.metrics.storageReads.Add(1)
		v, err := s.provider.GetItem(context.WithoutCancel(ctx), key)
		if err != nil {
			s.metrics.storageFailures.Add(1)
			return nil, storageFailure("get", key, err)
		}

		s.emit(ctx, EventRead, observability.LevelVerbose, "store.load", map[string]any{
			"key":   key,
			"found": v != nil,
		})

		if v == nil {
			if cached, ok := s.cache.Get(key); ok {
				return cached, nil
			}
			return nil, nil
		}
		return s.cache.AddIfCurrent(key, v, gen), nil
	})

	v, err := task.Wait(ctx)
	if err != nil {
		s.emit(ctx, EventStorageError, observability.LevelError, "store.load", map[string]any{
			"key":   key,
			"error": err.Error(),
		})
	}
	return v, err
}

func (s *Store) evict(ctx context.Context) {
	evicted := s.cache.EvictLeastRecentlyUsed(s.registry.IsPinned)
	if len(evicted) == 0 {
		return
	}
	s.metrics.evictions.Add(int64(len(evicted)))
	s.emit(ctx, EventEvict, observability.LevelVerbose, "store.evict", map[string]any{
		"keys": evicted,
	})
}

// Connect registers a subscription and returns its ID. Unless
// SkipInitialValue is set, the current value is delivered after Connect
// returns, ordered after every write submitted before it.
func (s *Store) Connect(opts subscription.Options) (string, error) {
	if s.closed.Load() {
		return "", ErrClosed
	}

	sub, err := s.registry.Connect(opts)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	s.emit(context.Background(), EventConnect, observability.LevelVerbose, "store.Connect", map[string]any{
		"id":         sub.ID,
		"key":        sub.Key,
		"collection": sub.Collection,
	})

	if !opts.SkipInitialValue {
		s.writes.Enqueue(func() error {
			return s.deliverInitial(context.Background(), sub)
		})
	}
	return sub.ID, nil
}

// Disconnect ends a subscription. No delivery reaches its callback
// afterwards, including deliveries already queued. It reports whether id
// was active.
func (s *Store) Disconnect(id string) bool {
	ok := s.registry.Disconnect(id)
	if ok {
		s.emit(context.Background(), EventDisconnect, observability.LevelVerbose, "store.Disconnect", map[string]any{
			"id": id,
		})
	}
	return ok
}

// Flush waits until every write submitted so far has completed and every
// delivery it queued has run. It must not be called from a callback.
func (s *Store) Flush(ctx context.Context) error {
	if err := s.writes.Wait(ctx); err != nil {
		return err
	}
	return s.deliveries.Wait(ctx)
}

// Reset returns the store to its initial state without touching storage:
// queued writes and deliveries are discarded (their callers receive
// sequencer.ErrAborted), every subscription is disconnected, and the cache
// is emptied. Call Init to reload known keys.
func (s *Store) Reset() {
	writes := s.writes.Abort()
	deliveries := s.deliveries.Abort()
	s.registry.Reset()
	s.cache.Reset()

	s.emit(context.Background(), EventReset, observability.LevelInfo, "store.Reset", map[string]any{
		"aborted_writes":     writes,
		"aborted_deliveries": deliveries,
	})
}

// Close resets the store, waits for a write already in progress, and closes
// the provider when it holds resources.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.Reset()
	s.writes.Wait(context.Background())

	if c, ok := s.provider.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
