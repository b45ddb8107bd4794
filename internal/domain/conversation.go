package domain

import (
	"context"
	"time"
)

// Participant is one party in a conversation, as reported by the upstream API.
type Participant struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email,omitempty"`
	Avatar string `json:"avatar,omitempty"`
	Role   string `json:"role,omitempty"`
	Online bool   `json:"online"`
}

// Room is a conversation between a set of participants. Rooms are discovered
// only via the room-list fetch; they are never created or deleted locally.
//
// The four timestamp fields are activity hints. The upstream API populates
// them inconsistently, so none is authoritative on its own; the activity
// resolver evaluates them in a fixed precedence order.
type Room struct {
	ID           string
	Participants []Participant

	// LatestMessageAt and LastMessageAt are the explicit "most recent message"
	// hints on the room record, in decreasing precedence.
	LatestMessageAt *time.Time
	LastMessageAt   *time.Time

	UpdatedAt *time.Time
	CreatedAt *time.Time

	// Preview is the most recently known message body for list display.
	// Not authoritative; it may lag the true server state.
	Preview string

	// FetchIndex records the room's position in the directory fetch that
	// produced it. Rooms with equal activity timestamps keep this order.
	FetchIndex int
}

// Message is a single chat entry. ID is empty for a provisional message until
// the server confirms the send.
type Message struct {
	ID         string
	RoomID     string
	SenderID   string
	SenderName string
	Body       string
	CreatedAt  time.Time

	// Pending is true while the message awaits server confirmation. It is
	// never persisted upstream; it exists for display and rollback targeting.
	Pending bool
}

// FromOperator reports whether the message was sent by the system/operator
// side of the conversation. An explicitly absent sender means operator.
func (m Message) FromOperator() bool {
	return m.SenderID == ""
}

// RoomPatch is a partial update merged into a cached room. Nil fields are
// left untouched.
type RoomPatch struct {
	Preview         *string
	LatestMessageAt *time.Time
	UpdatedAt       *time.Time
}

// Directory is the remote data access contract for the conversation sync
// core. Implementations make no ordering or consistency promises beyond
// "current server state at request time".
type Directory interface {
	// ListRooms returns the current room directory.
	ListRooms(ctx context.Context) ([]Room, error)

	// ListMessages returns the current message log for a room.
	ListMessages(ctx context.Context, roomID string) ([]Message, error)

	// SendMessage posts a message and returns the server-confirmed entry.
	// The returned id and timestamp are authoritative.
	SendMessage(ctx context.Context, roomID, senderID, body string) (Message, error)
}
