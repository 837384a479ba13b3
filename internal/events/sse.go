package events

import "github.com/kelindar/event"

// SubscribeToChannel forwards events of type T to ch without blocking the
// dispatcher. Events are dropped when ch is full.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- any) func() {
	return event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case ch <- e:
		default:
		}
	})
}

// SubscribeAll forwards every event type to ch and returns a function
// that removes all the subscriptions.
func SubscribeAll(bus *Bus, ch chan<- any) func() {
	unsubs := []func(){
		SubscribeToChannel[PipelineInstantiatedEvent](bus, ch),
		SubscribeToChannel[PipelineConfiguredEvent](bus, ch),
		SubscribeToChannel[PipelineTeardownEvent](bus, ch),
		SubscribeToChannel[PipelineExitedEvent](bus, ch),
		SubscribeToChannel[SessionOpenedEvent](bus, ch),
		SubscribeToChannel[SessionClosedEvent](bus, ch),
		SubscribeToChannel[ConfigReloadedEvent](bus, ch),
		SubscribeToChannel[PipelineStatsEvent](bus, ch),
	}
	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}
