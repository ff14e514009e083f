package store

import "github.com/tailored-agentic-units/kvcache/observability"

// Store event types.
const (
	EventInit          observability.EventType = "store.init"
	EventRead          observability.EventType = "store.read"
	EventWrite         observability.EventType = "store.write"
	EventClear         observability.EventType = "store.clear"
	EventUpdate        observability.EventType = "store.update"
	EventConnect       observability.EventType = "store.connect"
	EventDisconnect    observability.EventType = "store.disconnect"
	EventStorageError  observability.EventType = "store.storage.error"
	EventCallbackPanic observability.EventType = "store.callback.panic"
	EventReset         observability.EventType = "store.reset"
	EventEvict         observability.EventType = "cache.evict"
)
