// Package subscription tracks who is interested in which keys.
//
// A subscription targets either one key or a collection key. Subscriptions
// are Active from Connect until Disconnect; a disconnected subscription
// never becomes active again.
package subscription

import (
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// ErrInvalidOptions is returned by Connect for a subscription without a key
// or callback.
var ErrInvalidOptions = errors.New("invalid subscription options")

// Callback receives a delivered value together with the key it belongs to.
// Aggregate collection deliveries pass a map of member suffix to value and
// the collection key.
type Callback func(value any, key string)

// Options describe a subscription.
type Options struct {
	Key      string
	Callback Callback
	// WaitForCollectionCallback delivers a collection as one aggregate
	// mapping instead of one call per member.
	WaitForCollectionCallback bool
	// SkipInitialValue suppresses the delivery of the cached value on
	// connect. Such subscriptions are notified on every write to their key,
	// even when the value is unchanged.
	SkipInitialValue bool
}

// Subscription is a registered interest in a key or collection.
type Subscription struct {
	Options
	ID         string
	Collection bool
	seq        uint64
}

// Aggregate reports whether deliveries are whole-collection mappings.
func (s *Subscription) Aggregate() bool {
	return s.Collection && s.WaitForCollectionCallback
}

// Registry holds the active subscriptions. All methods are safe for
// concurrent use.
type Registry struct {
	collections *Collections
	subs        map[string]*Subscription
	seq         uint64
	mu          sync.RWMutex
}

// NewRegistry creates an empty Registry resolving collection membership
// through collections.
func NewRegistry(collections *Collections) *Registry {
	return &Registry{
		collections: collections,
		subs:        make(map[string]*Subscription),
	}
}

// Connect registers a subscription and returns it with a fresh ID.
func (r *Registry) Connect(opts Options) (*Subscription, error) {
	if opts.Key == "" || opts.Callback == nil {
		return nil, ErrInvalidOptions
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	sub := &Subscription{
		Options:    opts,
		ID:         uuid.Must(uuid.NewV7()).String(),
		Collection: r.collections.IsCollectionKey(opts.Key),
		seq:        r.seq,
	}
	r.subs[sub.ID] = sub
	return sub, nil
}

// Disconnect removes the subscription. It reports whether id was active.
func (r *Registry) Disconnect(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.subs[id]; !ok {
		return false
	}
	delete(r.subs, id)
	return true
}

// IsActive reports whether id names a connected subscription.
func (r *Registry) IsActive(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.subs[id]
	return ok
}

// Get returns the active subscription with id.
func (r *Registry) Get(id string) (*Subscription, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sub, ok := r.subs[id]
	return sub, ok
}

// Matching returns the subscriptions affected by a change to key, in the
// order they connected: those targeting key itself and those targeting the
// collection key is a member of.
func (r *Registry) Matching(key string) []*Subscription {
	collection, inCollection := r.collections.CollectionFor(key)

	r.mu.RLock()
	var matched []*Subscription
	for _, sub := range r.subs {
		if sub.Key == key || (inCollection && sub.Collection && sub.Key == collection) {
			matched = append(matched, sub)
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].seq < matched[j].seq
	})
	return matched
}

// IsPinned reports whether any active subscription targets key directly or
// through its collection. Pinned keys are exempt from cache eviction.
func (r *Registry) IsPinned(key string) bool {
	collection, inCollection := r.collections.CollectionFor(key)

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, sub := range r.subs {
		if sub.Key == key || (inCollection && sub.Key == collection) {
			return true
		}
	}
	return false
}

// All returns every active subscription in connection order.
func (r *Registry) All() []*Subscription {
	r.mu.RLock()
	all := make([]*Subscription, 0, len(r.subs))
	for _, sub := range r.subs {
		all = append(all, sub)
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		return all[i].seq < all[j].seq
	})
	return all
}

// Len returns the number of active subscriptions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// Reset disconnects every subscription.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = make(map[string]*Subscription)
}
