package conversations

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/riseselfesteem/convosync/internal/domain"
	"github.com/riseselfesteem/convosync/internal/pubsub"
)

// Cache is the single source of truth for what the client currently believes:
// the last known room directory and, per room, the last known message log.
// It is independent of any fetch in flight; readers always get the latest
// applied snapshot.
//
// The cache is an explicit, constructible object injected into its consumers.
// It is created at application start and torn down never.
type Cache struct {
	mu sync.RWMutex

	// rooms holds the directory in original fetch order. index maps room id
	// to its position in rooms.
	rooms []domain.Room
	index map[string]int

	// messages holds the last known log per room id. Logs are sets keyed by
	// message id: refetches never introduce duplicate ids.
	messages map[string][]domain.Message

	// rolledBack tombstones provisional ids whose send failed, settled marks
	// provisional ids replaced by a confirmed entry. A snapshot taken by a
	// concurrent send may still contain such an entry; restoring it must not
	// resurrect the dead provisional in either case.
	rolledBack map[string]bool
	settled    map[string]bool

	publisher pubsub.Publisher
	logger    *slog.Logger
}

// NewCache creates an empty cache. The publisher may be nil, in which case
// change events are not emitted (used by tests that only exercise state).
func NewCache(publisher pubsub.Publisher) *Cache {
	return &Cache{
		index:      make(map[string]int),
		messages:   make(map[string][]domain.Message),
		rolledBack: make(map[string]bool),
		settled:    make(map[string]bool),
		publisher:  publisher,
		logger:     slog.Default().With("component", "conversations.cache"),
	}
}

// RoomSnapshot captures the exact cache state for one room: the room record
// and its message log. It is plain data so a rollback can restore the
// pre-mutation state verbatim.
type RoomSnapshot struct {
	roomID   string
	hasRoom  bool
	room     domain.Room
	messages []domain.Message
}

// Rooms returns a copy of the current room directory in original fetch order.
// It may be empty before the first successful load.
func (c *Cache) Rooms() []domain.Room {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]domain.Room, len(c.rooms))
	for i, r := range c.rooms {
		out[i] = copyRoom(r)
	}
	return out
}

// Room returns the cached room record for an id, if known.
func (c *Cache) Room(roomID string) (domain.Room, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	i, ok := c.index[roomID]
	if !ok {
		return domain.Room{}, false
	}
	return copyRoom(c.rooms[i]), true
}

// Messages returns a copy of the cached message log for a room. It returns
// an empty slice for rooms that have never been fetched; it never fails.
func (c *Cache) Messages(roomID string) []domain.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	log := c.messages[roomID]
	out := make([]domain.Message, len(log))
	copy(out, log)
	return out
}

// SetRooms replaces the room directory with the result of a fetch, assigning
// fetch order. Local activity hints and previews that reflect a still-pending
// optimistic send are carried forward so an in-flight send is not visually
// undone by a concurrent directory refresh.
func (c *Cache) SetRooms(rooms []domain.Room) {
	c.mu.Lock()

	next := make([]domain.Room, len(rooms))
	index := make(map[string]int, len(rooms))
	for i, r := range rooms {
		room := copyRoom(r)
		room.FetchIndex = i

		if prevIdx, ok := c.index[r.ID]; ok && c.hasPendingLocked(r.ID) {
			prev := c.rooms[prevIdx]
			if prev.LatestMessageAt != nil && (room.LatestMessageAt == nil || prev.LatestMessageAt.After(*room.LatestMessageAt)) {
				room.LatestMessageAt = copyTime(prev.LatestMessageAt)
				room.Preview = prev.Preview
			}
		}

		next[i] = room
		index[r.ID] = i
	}

	c.rooms = next
	c.index = index
	c.mu.Unlock()

	c.publish("", ChangeRoomsReplaced)
}

// PatchRoom merges the given fields into the matching room without touching
// unspecified ones. It is a no-op for unknown room ids: a patch never inserts
// a phantom room.
func (c *Cache) PatchRoom(roomID string, patch domain.RoomPatch) {
	c.mu.Lock()

	i, ok := c.index[roomID]
	if !ok {
		c.mu.Unlock()
		c.logger.Debug("Ignoring patch for unknown room", "room_id", roomID)
		return
	}

	if patch.Preview != nil {
		c.rooms[i].Preview = *patch.Preview
	}
	if patch.LatestMessageAt != nil {
		c.rooms[i].LatestMessageAt = copyTime(patch.LatestMessageAt)
	}
	if patch.UpdatedAt != nil {
		c.rooms[i].UpdatedAt = copyTime(patch.UpdatedAt)
	}
	c.mu.Unlock()

	c.publish(roomID, ChangeRoomPatched)
}

// SetMessages replaces the authoritative message log for a room after a real
// fetch. The incoming list is deduplicated by id, and any still-pending
// optimistic message not present by id is preserved at the tail so a
// concurrent send is never dropped by a refresh.
func (c *Cache) SetMessages(roomID string, messages []domain.Message) {
	c.mu.Lock()

	seen := make(map[string]bool, len(messages))
	next := make([]domain.Message, 0, len(messages))
	for _, m := range messages {
		if m.ID != "" && seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		next = append(next, m)
	}

	for _, m := range c.messages[roomID] {
		if m.Pending && !seen[m.ID] {
			next = append(next, m)
		}
	}

	c.messages[roomID] = next
	c.mu.Unlock()

	c.publish(roomID, ChangeMessagesReplaced)
}

// AppendMessage appends a message (typically a provisional one) to a room's
// cached log.
func (c *Cache) AppendMessage(roomID string, msg domain.Message) {
	c.mu.Lock()
	c.messages[roomID] = append(c.messages[roomID], msg)
	c.mu.Unlock()

	c.publish(roomID, ChangeMessageAppended)
}

// ConfirmMessage replaces the provisional entry identified by tempID with the
// server-confirmed message. If the confirmed id is already present (the
// read-back refresh won the race), the provisional entry is removed instead
// so the log never holds two entries with the same id.
func (c *Cache) ConfirmMessage(roomID, tempID string, confirmed domain.Message) {
	c.mu.Lock()

	// A concurrent send's snapshot may still hold the provisional entry; mark
	// it settled so a later restore cannot bring it back as a pending ghost.
	c.settled[tempID] = true

	log := c.messages[roomID]
	confirmedPresent := false
	if confirmed.ID != "" {
		for _, m := range log {
			if m.ID == confirmed.ID {
				confirmedPresent = true
				break
			}
		}
	}

	next := log[:0]
	for _, m := range log {
		if m.ID != tempID {
			next = append(next, m)
			continue
		}
		if !confirmedPresent {
			confirmed.Pending = false
			next = append(next, confirmed)
		}
	}
	c.messages[roomID] = next
	c.mu.Unlock()

	c.publish(roomID, ChangeMessageConfirmed)
}

// Snapshot captures the current state for one room: its record and message
// log, deep-copied. Used by the send controller before any optimistic patch.
func (c *Cache) Snapshot(roomID string) RoomSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := RoomSnapshot{roomID: roomID}
	if i, ok := c.index[roomID]; ok {
		snap.hasRoom = true
		snap.room = copyRoom(c.rooms[i])
	}
	log := c.messages[roomID]
	snap.messages = make([]domain.Message, len(log))
	copy(snap.messages, log)
	return snap
}

// Restore writes a snapshot back verbatim: the room record (if it still
// exists in the directory) and the message log are returned to their exact
// captured state.
func (c *Cache) Restore(snap RoomSnapshot) {
	c.mu.Lock()
	c.restoreLocked(snap)
	c.mu.Unlock()

	c.publish(snap.roomID, ChangeSendRolledBack)
}

// RollbackSend restores the snapshot taken before a failed send, then
// re-appends every message that entered the log after the snapshot, except
// the failed send's own entry (tempID). Another send's provisional entry, a
// confirmation that replaced one, and entries delivered by a refetch all
// survive the rollback.
func (c *Cache) RollbackSend(snap RoomSnapshot, tempID string) {
	c.mu.Lock()
	c.rolledBack[tempID] = true

	inSnapshot := make(map[string]bool, len(snap.messages))
	for _, m := range snap.messages {
		inSnapshot[m.ID] = true
	}

	var keep []domain.Message
	for _, m := range c.messages[snap.roomID] {
		if m.ID != tempID && !inSnapshot[m.ID] {
			keep = append(keep, m)
		}
	}

	c.restoreLocked(snap)
	c.messages[snap.roomID] = append(c.messages[snap.roomID], keep...)
	c.mu.Unlock()

	c.publish(snap.roomID, ChangeSendRolledBack)
}

func (c *Cache) restoreLocked(snap RoomSnapshot) {
	if snap.hasRoom {
		if i, ok := c.index[snap.roomID]; ok {
			restored := copyRoom(snap.room)
			restored.FetchIndex = c.rooms[i].FetchIndex
			c.rooms[i] = restored
		}
	}
	log := make([]domain.Message, 0, len(snap.messages))
	for _, m := range snap.messages {
		if m.Pending && (c.rolledBack[m.ID] || c.settled[m.ID]) {
			continue
		}
		log = append(log, m)
	}
	c.messages[snap.roomID] = log
}

func (c *Cache) hasPendingLocked(roomID string) bool {
	for _, m := range c.messages[roomID] {
		if m.Pending {
			return true
		}
	}
	return false
}

func (c *Cache) publish(roomID string, kind ChangeKind) {
	if c.publisher == nil {
		return
	}

	payload, err := json.Marshal(CacheUpdatedEvent{RoomID: roomID, Kind: kind})
	if err != nil {
		c.logger.Error("Failed to marshal cache event", "error", err)
		return
	}

	err = c.publisher.Publish(context.Background(), pubsub.Message{
		Topic:   TopicCacheUpdated,
		RoomID:  roomID,
		Payload: payload,
	})
	if err != nil {
		c.logger.Error("Failed to publish cache event", "kind", kind, "room_id", roomID, "error", err)
	}
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func copyRoom(r domain.Room) domain.Room {
	out := r
	out.Participants = append([]domain.Participant(nil), r.Participants...)
	out.LatestMessageAt = copyTime(r.LatestMessageAt)
	out.LastMessageAt = copyTime(r.LastMessageAt)
	out.UpdatedAt = copyTime(r.UpdatedAt)
	out.CreatedAt = copyTime(r.CreatedAt)
	return out
}
