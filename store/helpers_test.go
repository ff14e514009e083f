package store_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/tailored-agentic-units/kvcache/observability"
	"github.com/tailored-agentic-units/kvcache/storage"
	"github.com/tailored-agentic-units/kvcache/store"
)

var errDisk = errors.New("disk full")

// faultyProvider wraps a memory provider with read counting, optional
// read gates, and switchable write failures. gate blocks a read before it
// reaches storage. When hold is set, a read closes held once it has read
// storage and blocks until hold is closed. Only the first read is held.
type faultyProvider struct {
	storage.Provider
	reads      atomic.Int32
	writes     atomic.Int32
	failWrites atomic.Bool
	gate       chan struct{}
	hold       chan struct{}
	held       chan struct{}
	holdOnce   sync.Once
}

func newFaultyProvider() *faultyProvider {
	return &faultyProvider{Provider: storage.NewMemoryProvider()}
}

func (p *faultyProvider) GetItem(ctx context.Context, key string) (any, error) {
	p.reads.Add(1)
	if p.gate != nil {
		<-p.gate
	}
	v, err := p.Provider.GetItem(ctx, key)
	if p.hold != nil {
		p.holdOnce.Do(func() {
			close(p.held)
			<-p.hold
		})
	}
	return v, err
}

func (p *faultyProvider) SetItem(ctx context.Context, key string, value any) error {
	p.writes.Add(1)
	if p.failWrites.Load() {
		return errDisk
	}
	return p.Provider.SetItem(ctx, key, value)
}

func (p *faultyProvider) MultiSet(ctx context.Context, entries ...storage.Entry) error {
	p.writes.Add(1)
	if p.failWrites.Load() {
		return errDisk
	}
	return p.Provider.MultiSet(ctx, entries...)
}

func (p *faultyProvider) MultiMerge(ctx context.Context, entries ...storage.Entry) error {
	p.writes.Add(1)
	if p.failWrites.Load() {
		return errDisk
	}
	return p.Provider.MultiMerge(ctx, entries...)
}

type call struct {
	Value any
	Key   string
}

type callRecorder struct {
	mu    sync.Mutex
	calls []call
}

func (r *callRecorder) callback(value any, key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call{Value: value, Key: key})
}

func (r *callRecorder) Calls() []call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]call, len(r.calls))
	copy(out, r.calls)
	return out
}

func newStore(t *testing.T, p storage.Provider, mutate ...func(*store.Config)) *store.Store {
	t.Helper()

	cfg := store.DefaultConfig()
	cfg.CollectionKeys = []string{"report_"}
	for _, m := range mutate {
		m(&cfg)
	}

	s, err := store.New(&cfg,
		store.WithProvider(p),
		store.WithObserver(observability.NoOpObserver{}),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func flush(t *testing.T, s *store.Store) {
	t.Helper()
	if err := s.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
}
