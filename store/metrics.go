package store

import "sync/atomic"

// MetricsSnapshot is a point-in-time copy of Metrics.
type MetricsSnapshot struct {
	CacheHits         int64
	CacheMisses       int64
	StorageReads      int64
	StorageWrites     int64
	StorageFailures   int64
	Deliveries        int64
	DroppedDeliveries int64
	CallbackPanics    int64
	Evictions         int64
}

// Metrics counts store activity.
type Metrics struct {
	cacheHits         atomic.Int64
	cacheMisses       atomic.Int64
	storageReads      atomic.Int64
	storageWrites     atomic.Int64
	storageFailures   atomic.Int64
	deliveries        atomic.Int64
	droppedDeliveries atomic.Int64
	callbackPanics    atomic.Int64
	evictions         atomic.Int64
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		CacheHits:         m.cacheHits.Load(),
		CacheMisses:       m.cacheMisses.Load(),
		StorageReads:      m.storageReads.Load(),
		StorageWrites:     m.storageWrites.Load(),
		StorageFailures:   m.storageFailures.Load(),
		Deliveries:        m.deliveries.Load(),
		DroppedDeliveries: m.droppedDeliveries.Load(),
		CallbackPanics:    m.callbackPanics.Load(),
		Evictions:         m.evictions.Load(),
	}
}
