package domain

import "errors"

// Sentinel errors for the domain layer. These provide consistent, checkable
// errors for common failures in the sync core.
var (
	// ErrRoomNotFound is returned when an operation targets a room id the
	// directory cache has never seen. Rooms are only ever discovered through
	// the room-list fetch, never created locally.
	ErrRoomNotFound = errors.New("room not found")

	// ErrEmptyBody is returned when a send is attempted with a blank message body.
	ErrEmptyBody = errors.New("message body is empty")

	// ErrSendQueueFull is returned when a room's pending-send queue cannot
	// accept another message.
	ErrSendQueueFull = errors.New("send queue full for room")

	// ErrShuttingDown is returned for operations attempted after shutdown began.
	ErrShuttingDown = errors.New("conversation service is shutting down")
)
