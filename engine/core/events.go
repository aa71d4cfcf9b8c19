package core

import "sync"

type EventCode int

const (
	// Stops the engine at the end of the current frame.
	EventApplicationQuit EventCode = iota + 1
	// A new configuration was applied. Payload: *EngineConfig.
	EventConfigReloaded
	// The GPU scene re-uploaded every buffer this frame. Payload: frame number (uint64).
	EventSceneRebuilt
	// The spatial index was rebuilt. Payload: node count (int).
	EventSpatialRebuilt
)

// Should return true if handled. A handled event is not passed to later listeners.
type EventHandler func(code EventCode, sender interface{}, payload interface{}) bool

type registeredEvent struct {
	listener interface{}
	handler  EventHandler
}

// EventBus dispatches engine events synchronously on the calling goroutine.
type EventBus struct {
	mu         sync.RWMutex
	registered map[EventCode][]registeredEvent
}

func NewEventBus() *EventBus {
	return &EventBus{
		registered: make(map[EventCode][]registeredEvent),
	}
}

// Register returns false when listener is already registered for code.
func (b *EventBus) Register(code EventCode, listener interface{}, handler EventHandler) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, e := range b.registered[code] {
		if e.listener == listener {
			LogWarn("listener already registered for event code %d", code)
			return false
		}
	}
	b.registered[code] = append(b.registered[code], registeredEvent{listener: listener, handler: handler})
	return true
}

func (b *EventBus) Unregister(code EventCode, listener interface{}) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	events := b.registered[code]
	for i, e := range events {
		if e.listener == listener {
			b.registered[code] = append(events[:i], events[i+1:]...)
			return true
		}
	}
	return false
}

// Fire returns true if a listener handled the event.
func (b *EventBus) Fire(code EventCode, sender interface{}, payload interface{}) bool {
	b.mu.RLock()
	events := append([]registeredEvent(nil), b.registered[code]...)
	b.mu.RUnlock()

	for _, e := range events {
		if e.handler(code, sender, payload) {
			return true
		}
	}
	return false
}
