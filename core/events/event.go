package events

import "offerchain/core/types"

// Event represents a structured state change emitted by a program.
type Event interface {
	EventType() string
}

// Typed is implemented by events that can render themselves as a flat
// types.Event for receipts, the index and the websocket stream.
type Typed interface {
	Event
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Buffer collects events in emission order until the caller decides whether
// they are published or dropped.
type Buffer struct {
	events []Event
}

// Emit implements the Emitter interface.
func (b *Buffer) Emit(e Event) {
	if e == nil {
		return
	}
	b.events = append(b.events, e)
}

// Events returns the buffered events.
func (b *Buffer) Events() []Event {
	out := make([]Event, len(b.events))
	copy(out, b.events)
	return out
}

// Reset drops everything buffered so far.
func (b *Buffer) Reset() {
	b.events = nil
}

// Flatten converts events to their flat form. Events that do not implement
// Typed are rendered with their type only.
func Flatten(list []Event) []types.Event {
	out := make([]types.Event, 0, len(list))
	for _, e := range list {
		if typed, ok := e.(Typed); ok {
			if flat := typed.Event(); flat != nil {
				out = append(out, *flat)
				continue
			}
		}
		out = append(out, types.Event{Type: e.EventType(), Attributes: map[string]string{}})
	}
	return out
}
