package conversations

import (
	"sort"
	"strings"
	"time"

	"github.com/riseselfesteem/convosync/internal/domain"
)

// The activity resolver derives "when was this room last active" from the
// heterogeneous hints the upstream populates. It is pure: a derived view over
// the cache with no state of its own, re-evaluated on every read.

// activitySource classifies where a room's resolved timestamp came from.
// Message-derived activity outranks record metadata when ordering rooms: a
// room with an actual last message sorts above a room that was merely created
// recently and has never seen a message.
type activitySource int

const (
	sourceNone activitySource = iota
	sourceRecord
	sourceMessage
)

// resolveActivity resolves a room's activity timestamp and its source class.
// Sources are evaluated in fixed precedence:
//
//  1. the room's explicit latest-message hint
//  2. the room's explicit last-message hint
//  3. the newest message currently cached for the room
//  4. the room's updatedAt
//  5. the room's createdAt
//
// A room with none of these resolves to the zero time, which sorts last.
func resolveActivity(room domain.Room, messages []domain.Message) (time.Time, activitySource) {
	if room.LatestMessageAt != nil {
		return *room.LatestMessageAt, sourceMessage
	}
	if room.LastMessageAt != nil {
		return *room.LastMessageAt, sourceMessage
	}
	if len(messages) > 0 {
		newest := messages[0].CreatedAt
		for _, m := range messages[1:] {
			if m.CreatedAt.After(newest) {
				newest = m.CreatedAt
			}
		}
		return newest, sourceMessage
	}
	if room.UpdatedAt != nil {
		return *room.UpdatedAt, sourceRecord
	}
	if room.CreatedAt != nil {
		return *room.CreatedAt, sourceRecord
	}
	return time.Time{}, sourceNone
}

// LastActivity resolves a room's activity timestamp, ignoring the source
// class. Used for display labels.
func LastActivity(room domain.Room, messages []domain.Message) time.Time {
	t, _ := resolveActivity(room, messages)
	return t
}

// OrderRooms returns the rooms sorted most-recently-active first. Rooms whose
// activity comes from message evidence (an explicit hint or a cached message)
// rank above rooms that only have record metadata, regardless of the raw
// timestamps; within the same class, newer first. Rooms that compare equal
// keep their original fetch order; the sort is stable so equal rooms never
// flip between reads.
func OrderRooms(rooms []domain.Room, messagesFor func(roomID string) []domain.Message) []domain.Room {
	type ranked struct {
		at     time.Time
		source activitySource
	}

	out := make([]domain.Room, len(rooms))
	copy(out, rooms)

	resolved := make(map[string]ranked, len(out))
	for _, r := range out {
		at, src := resolveActivity(r, messagesFor(r.ID))
		resolved[r.ID] = ranked{at: at, source: src}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := resolved[out[i].ID], resolved[out[j].ID]
		if a.source != b.source {
			return a.source > b.source
		}
		return a.at.After(b.at)
	})
	return out
}

// FilterRooms keeps rooms matching the query by case-insensitive substring
// against participant name, participant email, or preview text. The relative
// order of survivors is unchanged. An empty query keeps everything.
func FilterRooms(rooms []domain.Room, query string) []domain.Room {
	if query == "" {
		return rooms
	}
	q := strings.ToLower(query)

	out := make([]domain.Room, 0, len(rooms))
	for _, r := range rooms {
		if roomMatches(r, q) {
			out = append(out, r)
		}
	}
	return out
}

func roomMatches(r domain.Room, q string) bool {
	if strings.Contains(strings.ToLower(r.Preview), q) {
		return true
	}
	for _, p := range r.Participants {
		if strings.Contains(strings.ToLower(p.Name), q) || strings.Contains(strings.ToLower(p.Email), q) {
			return true
		}
	}
	return false
}
