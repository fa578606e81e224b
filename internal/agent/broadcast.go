package agent

// Broadcaster publishes progress events to connected observers.
type Broadcaster interface {
	Broadcast(event any)
}

// NopBroadcaster discards events; used by CLI runs with no websocket
// listener.
type NopBroadcaster struct{}

func (NopBroadcaster) Broadcast(any) {}
