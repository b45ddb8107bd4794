package conversations

// Topics published by the conversation sync core. The websocket feed relays
// them to connected clients; any other consumer can subscribe through the
// pubsub bridge.
const (
	// TopicCacheUpdated carries a CacheUpdatedEvent for every cache mutation.
	TopicCacheUpdated = "conversations.cache.updated"

	// TopicSendFailed carries a SendFailedEvent after a rolled-back send.
	TopicSendFailed = "conversations.send.failed"
)

// ChangeKind identifies what a cache mutation did.
type ChangeKind string

const (
	ChangeRoomsReplaced    ChangeKind = "rooms_replaced"
	ChangeRoomPatched      ChangeKind = "room_patched"
	ChangeMessagesReplaced ChangeKind = "messages_replaced"
	ChangeMessageAppended  ChangeKind = "message_appended"
	ChangeMessageConfirmed ChangeKind = "message_confirmed"
	ChangeSendRolledBack   ChangeKind = "send_rolled_back"
)

// CacheUpdatedEvent is the payload for TopicCacheUpdated. RoomID is empty for
// directory-wide changes.
type CacheUpdatedEvent struct {
	RoomID string     `json:"room_id,omitempty"`
	Kind   ChangeKind `json:"kind"`
}

// SendFailedEvent is the payload for TopicSendFailed.
type SendFailedEvent struct {
	RoomID        string `json:"room_id"`
	ProvisionalID string `json:"provisional_id"`
	Reason        string `json:"reason"`
}
