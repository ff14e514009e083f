package storage

import (
	"context"
	"slices"
	"sort"
	"sync"
)

type memoryProvider struct {
	items map[string][]byte
	mu    sync.RWMutex
}

// NewMemoryProvider creates a Provider that keeps encoded values in process
// memory. Useful for tests and ephemeral stores.
func NewMemoryProvider() Provider {
	return &memoryProvider{items: make(map[string][]byte)}
}

func (p *memoryProvider) GetItem(_ context.Context, key string) (any, error) {
	p.mu.RLock()
	data, ok := p.items[key]
	p.mu.RUnlock()

	if !ok {
		return nil, nil
	}
	return Decode(data)
}

func (p *memoryProvider) MultiGet(_ context.Context, keys ...string) ([]Entry, error) {
	entries := make([]Entry, 0, len(keys))
	for _, key := range keys {
		p.mu.RLock()
		data, ok := p.items[key]
		p.mu.RUnlock()
		if !ok {
			continue
		}

		value, err := Decode(data)
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Key: key, Value: value})
	}
	return entries, nil
}

func (p *memoryProvider) SetItem(ctx context.Context, key string, value any) error {
	return p.MultiSet(ctx, Entry{Key: key, Value: value})
}

func (p *memoryProvider) MultiSet(_ context.Context, entries ...Entry) error {
	encoded := make([][]byte, len(entries))
	for i, e := range entries {
		data, err := Encode(e.Value)
		if err != nil {
			return err
		}
		encoded[i] = data
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for i, e := range entries {
		if encoded[i] == nil {
			delete(p.items, e.Key)
			continue
		}
		p.items[e.Key] = encoded[i]
	}
	return nil
}

func (p *memoryProvider) MultiMerge(_ context.Context, entries ...Entry) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, e := range entries {
		out, err := MergeJSON(p.items[e.Key], e.Value)
		if err != nil {
			return err
		}
		if out == nil {
			delete(p.items, e.Key)
			continue
		}
		p.items[e.Key] = slices.Clone(out)
	}
	return nil
}

func (p *memoryProvider) GetAllKeys(_ context.Context) ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	keys := make([]string, 0, len(p.items))
	for key := range p.items {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

func (p *memoryProvider) RemoveItem(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.items, key)
	return nil
}

func (p *memoryProvider) Clear(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.items = make(map[string][]byte)
	return nil
}
