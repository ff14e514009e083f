// Package storage defines the persistence contract behind the store and the
// providers that implement it. Providers are stateless with respect to the
// cache: every call performs I/O against the backing medium.
//
// Values cross the provider boundary as JSON-shaped data. Anything that is
// written is encoded as JSON and anything that is read is decoded from JSON,
// so numbers come back as float64.
package storage

import "context"

// Provider is the asynchronous key/value backend consumed by the store.
type Provider interface {
	// GetItem returns the value for key, or nil when the key is absent.
	GetItem(ctx context.Context, key string) (any, error)
	// MultiGet returns entries for the keys that exist, in request order.
	MultiGet(ctx context.Context, keys ...string) ([]Entry, error)
	// SetItem writes value under key. A nil value removes the key.
	SetItem(ctx context.Context, key string, value any) error
	// MultiSet writes every entry. Nil values remove their keys.
	MultiSet(ctx context.Context, entries ...Entry) error
	// MultiMerge applies each entry's value as a JSON merge patch over the
	// stored value. Nil entries inside a patch delete the matching path and
	// a non-mapping patch replaces the stored value.
	MultiMerge(ctx context.Context, entries ...Entry) error
	// GetAllKeys returns every stored key in ascending order.
	GetAllKeys(ctx context.Context) ([]string, error)
	// RemoveItem deletes key. Missing keys are ignored.
	RemoveItem(ctx context.Context, key string) error
	// Clear deletes every key.
	Clear(ctx context.Context) error
}

// Entry is a key/value pair exchanged with a Provider.
type Entry struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}
