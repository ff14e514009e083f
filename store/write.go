package store

import (
	"context"
	"errors"
	"sort"

	"github.com/tailored-agentic-units/kvcache/merge"
	"github.com/tailored-agentic-units/kvcache/observability"
	"github.com/tailored-agentic-units/kvcache/storage"
	"github.com/tailored-agentic-units/kvcache/subscription"
)

// change is one key's new value after a write. changed is false when the
// value deep-equals what the cache held before.
type change struct {
	key     string
	value   any
	changed bool
}

// Set replaces the value of key. A nil value removes the key. Writing a
// value equal to the cached one skips storage and notifies only
// subscriptions that opted out of the initial value.
//
// Set, like every mutation, returns after the callbacks of matching
// subscriptions have run. A write issued from inside a callback returns
// once its deliveries are queued behind the running callback.
func (s *Store) Set(ctx context.Context, key string, value any) error {
	return s.run(ctx, SetOp{Key: key, Value: value})
}

// Merge deep-merges patch into the value of key. Mappings merge
// recursively, arrays and scalars replace, and nil entries inside patch
// delete the matching path. A nil patch removes the key.
func (s *Store) Merge(ctx context.Context, key string, patch any) error {
	return s.run(ctx, MergeOp{Key: key, Value: patch})
}

// MultiSet replaces the values of every key in values in one storage
// batch.
func (s *Store) MultiSet(ctx context.Context, values map[string]any) error {
	return s.run(ctx, MultiSetOp{Values: values})
}

// MergeCollection merges values into members of collectionKey in one
// storage batch. Existing members are merged, new ones are set, and
// aggregate collection subscribers receive one delivery for the whole
// batch. It fails with ErrInvalidArgument, writing nothing, when:
//
//   - collectionKey is not one of the registered collection keys
//   - a key does not start with collectionKey or equals it
func (s *Store) MergeCollection(ctx context.Context, collectionKey string, values map[string]any) error {
	return s.run(ctx, MergeCollectionOp{CollectionKey: collectionKey, Values: values})
}

// Update runs a batch of operations in order. The whole batch is validated
// before anything runs. Once running, a failing operation does not stop
// the rest; the joined errors are returned after every operation settled.
func (s *Store) Update(ctx context.Context, ops []Operation) error {
	if s.closed.Load() {
		return ErrClosed
	}

	jobs := make([]job, len(ops))
	for i, op := range ops {
		j, err := s.prepare(ctx, op)
		if err != nil {
			return err
		}
		jobs[i] = j
	}

	results := make([]<-chan error, len(jobs))
	pending := make([]receipts, len(jobs))
	for i, j := range jobs {
		r := &pending[i]
		results[i] = s.writes.Enqueue(func() error { return j(r) })
	}

	s.emit(ctx, EventUpdate, observability.LevelVerbose, "store.Update", map[string]any{
		"operations": len(ops),
	})

	var errs []error
	for _, r := range results {
		select {
		case err := <-r:
			errs = append(errs, err)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	for i := range pending {
		if err := s.settle(ctx, &pending[i]); err != nil {
			return err
		}
	}
	return errors.Join(errs...)
}

// Clear removes every key from storage and cache except those listed in
// keep, whose current values are preserved. Subscribers of removed keys
// receive nil.
func (s *Store) Clear(ctx context.Context, keep ...string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	wctx := context.WithoutCancel(ctx)
	return s.submit(ctx, func(r *receipts) error { return s.clear(wctx, keep, r) })
}

// job is one write run on the write sequencer. It records the deliveries
// it queues in r.
type job func(r *receipts) error

func (s *Store) run(ctx context.Context, op Operation) error {
	if s.closed.Load() {
		return ErrClosed
	}
	j, err := s.prepare(ctx, op)
	if err != nil {
		return err
	}
	return s.submit(ctx, j)
}

// submit runs j on the write sequencer and waits for it and its
// deliveries.
func (s *Store) submit(ctx context.Context, j job) error {
	var r receipts
	if err := s.writes.Submit(ctx, func() error { return j(&r) }); err != nil {
		return err
	}
	return s.settle(ctx, &r)
}

// prepare validates op and returns the job that performs it. Validation
// never touches storage.
func (s *Store) prepare(ctx context.Context, op Operation) (job, error) {
	wctx := context.WithoutCancel(ctx)

	switch o := op.(type) {
	case SetOp:
		if o.Key == "" {
			return nil, invalidArgument("set: empty key")
		}
		value := merge.Clone(o.Value)
		return func(r *receipts) error { return s.multiSet(wctx, "set", map[string]any{o.Key: value}, r) }, nil

	case MergeOp:
		if o.Key == "" {
			return nil, invalidArgument("merge: empty key")
		}
		patch := merge.Clone(o.Value)
		return func(r *receipts) error { return s.merge(wctx, o.Key, patch, r) }, nil

	case MultiSetOp:
		if err := validateKeys("multiSet", o.Values); err != nil {
			return nil, err
		}
		values := merge.Clone(o.Values).(map[string]any)
		return func(r *receipts) error { return s.multiSet(wctx, "multiSet", values, r) }, nil

	case MergeCollectionOp:
		if !s.collections.IsCollectionKey(o.CollectionKey) {
			return nil, invalidArgument("mergeCollection: %q is not a collection key", o.CollectionKey)
		}
		for key := range o.Values {
			if !subscription.IsMember(o.CollectionKey, key) {
				return nil, invalidArgument("mergeCollection: %q is not a member of %q", key, o.CollectionKey)
			}
		}
		values := merge.Clone(o.Values).(map[string]any)
		return func(r *receipts) error { return s.mergeCollection(wctx, values, r) }, nil

	case nil:
		return nil, invalidArgument("nil operation")
	}
	return nil, invalidArgument("unsupported operation %T", op)
}

func validateKeys(method string, values map[string]any) error {
	for key := range values {
		if key == "" {
			return invalidArgument("%s: empty key", method)
		}
	}
	return nil
}

func sortedKeys(values map[string]any) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (s *Store) failed(ctx context.Context, op, key string, err error) error {
	s.metrics.storageFailures.Add(1)
	s.emit(ctx, EventStorageError, observability.LevelError, "store."+op, map[string]any{
		"key":   key,
		"error": err.Error(),
	})
	return storageFailure(op, key, err)
}

// multiSet writes values in one provider batch. Nil values remove keys.
// Unchanged values are not written.
func (s *Store) multiSet(ctx context.Context, op string, values map[string]any, r *receipts) error {
	keys := sortedKeys(values)
	changes := make([]change, 0, len(keys))
	var entries []storage.Entry

	for _, key := range keys {
		value := values[key]
		changed := s.cache.HasValueChanged(key, value) || (value == nil && s.cache.IsKnown(key))
		changes = append(changes, change{key: key, value: value, changed: changed})
		if changed {
			entries = append(entries, storage.Entry{Key: key, Value: value})
		}
	}

	if len(entries) > 0 {
		s.metrics.storageWrites.Add(1)
		if err := s.provider.MultiSet(ctx, entries...); err != nil {
			return s.failed(ctx, op, firstKey(entries), err)
		}
	}

	s.commit(changes)
	s.emit(ctx, EventWrite, observability.LevelVerbose, "store."+op, map[string]any{
		"keys":    keys,
		"written": len(entries),
	})
	s.notify(ctx, changes, r)
	s.evict(ctx)
	return nil
}

func (s *Store) merge(ctx context.Context, key string, patch any, r *receipts) error {
	if patch == nil {
		return s.multiSet(ctx, "merge", map[string]any{key: nil}, r)
	}

	existing, err := s.load(ctx, key)
	if err != nil {
		return err
	}

	value := merge.Apply(existing, patch)
	changed := s.cache.HasValueChanged(key, value)

	if changed {
		s.metrics.storageWrites.Add(1)
		if err := s.provider.MultiMerge(ctx, storage.Entry{Key: key, Value: patch}); err != nil {
			return s.failed(ctx, "merge", key, err)
		}
	}

	changes := []change{{key: key, value: value, changed: changed}}
	s.commit(changes)
	s.emit(ctx, EventWrite, observability.LevelVerbose, "store.merge", map[string]any{
		"keys":    []string{key},
		"written": boolToInt(changed),
	})
	s.notify(ctx, changes, r)
	s.evict(ctx)
	return nil
}

// mergeCollection writes every changed member in one MultiMerge batch. A
// merge patch over an absent document sets it, so new and existing members
// travel together.
func (s *Store) mergeCollection(ctx context.Context, values map[string]any, r *receipts) error {
	keys := sortedKeys(values)
	changes := make([]change, 0, len(keys))
	var entries []storage.Entry

	for _, key := range keys {
		patch := values[key]
		existing, err := s.load(ctx, key)
		if err != nil {
			return err
		}

		value := merge.Apply(existing, patch)
		changed := s.cache.HasValueChanged(key, value) || (value == nil && s.cache.IsKnown(key))
		changes = append(changes, change{key: key, value: value, changed: changed})
		if changed {
			entries = append(entries, storage.Entry{Key: key, Value: patch})
		}
	}

	if len(entries) > 0 {
		s.metrics.storageWrites.Add(1)
		if err := s.provider.MultiMerge(ctx, entries...); err != nil {
			return s.failed(ctx, "mergeCollection", firstKey(entries), err)
		}
	}

	s.commit(changes)
	s.emit(ctx, EventWrite, observability.LevelVerbose, "store.mergeCollection", map[string]any{
		"keys":    keys,
		"written": len(entries),
	})
	s.notify(ctx, changes, r)
	s.evict(ctx)
	return nil
}

// clear removes every stored or known key not in keep. With nothing to
// keep storage is cleared outright; otherwise the removals go out as one
// batch of nil entries and kept keys are never written.
func (s *Store) clear(ctx context.Context, keep []string, r *receipts) error {
	stored, err := s.provider.GetAllKeys(ctx)
	if err != nil {
		return s.failed(ctx, "clear", "", err)
	}

	kept := make(map[string]bool, len(keep))
	for _, key := range keep {
		kept[key] = true
	}

	removed := make(map[string]any)
	for _, key := range append(stored, s.cache.KnownKeys("")...) {
		if !kept[key] {
			removed[key] = nil
		}
	}
	keys := sortedKeys(removed)

	if len(kept) == 0 {
		s.metrics.storageWrites.Add(1)
		if err := s.provider.Clear(ctx); err != nil {
			return s.failed(ctx, "clear", "", err)
		}
	} else if len(keys) > 0 {
		entries := make([]storage.Entry, 0, len(keys))
		for _, key := range keys {
			entries = append(entries, storage.Entry{Key: key})
		}
		s.metrics.storageWrites.Add(1)
		if err := s.provider.MultiSet(ctx, entries...); err != nil {
			return s.failed(ctx, "clear", firstKey(entries), err)
		}
	}

	changes := make([]change, 0, len(keys))
	for _, key := range keys {
		changes = append(changes, change{key: key, changed: true})
	}

	s.commit(changes)
	s.emit(ctx, EventClear, observability.LevelInfo, "store.Clear", map[string]any{
		"removed": len(changes),
		"kept":    len(kept),
	})
	s.notify(ctx, changes, r)
	return nil
}

// commit applies successful writes to the cache.
func (s *Store) commit(changes []change) {
	for _, c := range changes {
		if !c.changed {
			continue
		}
		if c.value == nil {
			s.cache.Drop(c.key)
			continue
		}
		s.cache.Set(c.key, c.value)
	}
}

func firstKey(entries []storage.Entry) string {
	if len(entries) == 0 {
		return ""
	}
	return entries[0].Key
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
