package hub

import "log/slog"

// Frame is a single payload broadcast to subscribers. RoomID scopes the frame
// to one conversation; an empty RoomID means the frame concerns the whole
// directory and is delivered to everyone.
type Frame struct {
	RoomID  string
	Payload []byte
}

// Subscriber represents a single client listening for conversation events.
// A subscriber with a non-empty RoomID only receives frames for that room
// (plus directory-wide frames).
type Subscriber struct {
	// RoomID optionally narrows the subscription to one conversation.
	RoomID string

	// Send is a buffered channel of outbound payloads. The Hub sends frames
	// to this channel, and the client is responsible for reading from it.
	Send chan []byte
}

// Hub is a concurrent event bus for conversation change events. It maintains
// the set of active subscribers and fans frames out to the interested ones.
type Hub struct {
	// Registered subscribers.
	subscribers map[*Subscriber]bool

	// Broadcast is the channel for inbound frames from any component.
	Broadcast chan Frame

	// Register is a channel for new subscribers to register with the hub.
	Register chan *Subscriber

	// Unregister is a channel for subscribers to unregister from the hub.
	Unregister chan *Subscriber
}

// NewHub creates and returns a new Hub instance.
func NewHub() *Hub {
	return &Hub{
		Broadcast:   make(chan Frame),
		Register:    make(chan *Subscriber),
		Unregister:  make(chan *Subscriber),
		subscribers: make(map[*Subscriber]bool),
	}
}

// wants reports whether the subscriber should receive the frame.
func (s *Subscriber) wants(f Frame) bool {
	return s.RoomID == "" || f.RoomID == "" || s.RoomID == f.RoomID
}

// Run starts the Hub's message processing loop. It must be run in a separate
// goroutine. It listens on its channels and orchestrates all delivery.
func (h *Hub) Run() {
	for {
		select {
		case subscriber := <-h.Register:
			h.subscribers[subscriber] = true
			slog.Info("New subscriber registered", "room_id", subscriber.RoomID, "total_subscribers", len(h.subscribers))

		case subscriber := <-h.Unregister:
			if _, ok := h.subscribers[subscriber]; ok {
				delete(h.subscribers, subscriber)
				close(subscriber.Send)
				slog.Info("Subscriber unregistered", "total_subscribers", len(h.subscribers))
			}

		case frame := <-h.Broadcast:
			for subscriber := range h.subscribers {
				if !subscriber.wants(frame) {
					continue
				}
				// Use a non-blocking send. If the subscriber's buffer is full,
				// it suggests the client is lagging or disconnected.
				select {
				case subscriber.Send <- frame.Payload:
				default:
					// The client's send buffer is full. We assume it's dead or stuck,
					// so we unregister it and close its channel.
					close(subscriber.Send)
					delete(h.subscribers, subscriber)
					slog.Warn("Unregistering slow subscriber", "total_subscribers", len(h.subscribers))
				}
			}
		}
	}
}
