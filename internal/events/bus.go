package events

import (
	"github.com/kelindar/event"
)

// Bus wraps a kelindar/event dispatcher. Delivery is asynchronous: a
// subscriber never runs on the publisher's goroutine.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers.
// Usage: bus.Publish(SessionOpenedEvent{...})
func (b *Bus) Publish(ev Event) {
	switch e := ev.(type) {
	case PipelineInstantiatedEvent:
		event.Publish(b.dispatcher, e)
	case PipelineConfiguredEvent:
		event.Publish(b.dispatcher, e)
	case PipelineTeardownEvent:
		event.Publish(b.dispatcher, e)
	case PipelineExitedEvent:
		event.Publish(b.dispatcher, e)
	case SessionOpenedEvent:
		event.Publish(b.dispatcher, e)
	case SessionClosedEvent:
		event.Publish(b.dispatcher, e)
	case ConfigReloadedEvent:
		event.Publish(b.dispatcher, e)
	case PipelineStatsEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe registers handler for the event type of its argument and
// returns an unsubscribe function. Unknown handler types are ignored.
// Usage: unsub := bus.Subscribe(func(e SessionOpenedEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(PipelineInstantiatedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(PipelineConfiguredEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(PipelineTeardownEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(PipelineExitedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(SessionOpenedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(SessionClosedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ConfigReloadedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(PipelineStatsEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}

// Publisher is the publishing side of a Bus.
type Publisher interface {
	Publish(ev Event)
}
