package store

import (
	"context"
	"fmt"

	"github.com/tailored-agentic-units/kvcache/merge"
	"github.com/tailored-agentic-units/kvcache/observability"
	"github.com/tailored-agentic-units/kvcache/subscription"
)

type delivery struct {
	sub   *subscription.Subscription
	value any
	key   string
}

// receipts collects the completion channels of the deliveries one write
// queued. A nil *receipts discards them.
type receipts struct {
	pending []<-chan error
}

func (r *receipts) add(done <-chan error) {
	if r != nil {
		r.pending = append(r.pending, done)
	}
}

// settle waits until every delivery in r has run. Inside a callback it
// returns at once: those deliveries are queued behind the running callback.
func (s *Store) settle(ctx context.Context, r *receipts) error {
	if s.delivering.Load() {
		return nil
	}
	for _, done := range r.pending {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// notify queues deliveries for a batch of committed changes. Subscriptions
// to a single key, and per-member collection subscriptions, get one
// delivery per change. Aggregate collection subscriptions get one delivery
// per batch carrying the whole collection. Unchanged values reach only
// subscriptions that skipped their initial value.
func (s *Store) notify(ctx context.Context, changes []change, r *receipts) {
	var aggregates []*subscription.Subscription
	seen := make(map[string]bool)

	for _, c := range changes {
		for _, sub := range s.registry.Matching(c.key) {
			if !c.changed && !sub.SkipInitialValue {
				continue
			}
			if sub.Aggregate() {
				if !seen[sub.ID] {
					seen[sub.ID] = true
					aggregates = append(aggregates, sub)
				}
				continue
			}
			s.queue(sub, c.value, c.key, r)
		}
	}

	for _, sub := range aggregates {
		snapshot, err := s.collectionSnapshot(ctx, sub.Key)
		if err != nil {
			continue
		}
		s.queue(sub, snapshot, sub.Key, r)
	}
}

func (s *Store) queue(sub *subscription.Subscription, value any, key string, r *receipts) {
	r.add(s.deliveries.Enqueue(delivery{sub: sub, value: merge.Clone(value), key: key}))
}

// deliver is the delivery sequencer worker. A subscription disconnected
// after the delivery was queued is skipped, and a panicking callback is
// contained so later deliveries still run.
func (s *Store) deliver(d delivery) error {
	if !s.registry.IsActive(d.sub.ID) {
		s.metrics.droppedDeliveries.Add(1)
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			s.metrics.callbackPanics.Add(1)
			s.emit(context.Background(), EventCallbackPanic, observability.LevelError, "store.deliver", map[string]any{
				"id":    d.sub.ID,
				"key":   d.key,
				"panic": fmt.Sprint(r),
			})
		}
	}()

	s.delivering.Store(true)
	defer s.delivering.Store(false)

	s.metrics.deliveries.Add(1)
	d.sub.Callback(d.value, d.key)
	return nil
}

// deliverInitial runs on the write sequencer so the initial value reflects
// every write submitted before Connect.
func (s *Store) deliverInitial(ctx context.Context, sub *subscription.Subscription) error {
	if !s.registry.IsActive(sub.ID) {
		return nil
	}
	defer s.evict(ctx)

	if sub.Aggregate() {
		snapshot, err := s.collectionSnapshot(ctx, sub.Key)
		if err != nil {
			return err
		}
		s.queue(sub, snapshot, sub.Key, nil)
		return nil
	}

	if sub.Collection {
		for _, key := range s.members(sub.Key) {
			v, err := s.load(ctx, key)
			if err != nil {
				return err
			}
			if v != nil {
				s.queue(sub, v, key, nil)
			}
		}
		return nil
	}

	v, err := s.load(ctx, sub.Key)
	if err != nil {
		return err
	}
	s.queue(sub, v, sub.Key, nil)
	return nil
}

// members returns the known keys belonging to collection. Keys that belong
// to a longer, nested collection key are excluded.
func (s *Store) members(collection string) []string {
	var out []string
	for _, key := range s.cache.KnownKeys(collection) {
		if owner, ok := s.collections.CollectionFor(key); ok && owner == collection {
			out = append(out, key)
		}
	}
	return out
}

// collectionSnapshot maps each member suffix to the member's current value.
func (s *Store) collectionSnapshot(ctx context.Context, collection string) (map[string]any, error) {
	snapshot := make(map[string]any)
	for _, key := range s.members(collection) {
		v, err := s.load(ctx, key)
		if err != nil {
			return nil, err
		}
		if v != nil {
			snapshot[subscription.Suffix(collection, key)] = v
		}
	}
	return snapshot, nil
}
