package conversations

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/riseselfesteem/convosync/internal/domain"
	"github.com/riseselfesteem/convosync/internal/pubsub"
)

// Service ties the sync core together: it decides when the cache is stale
// enough to warrant a real fetch, keeps the selected room's log fresh, and
// fronts the send controller. Staleness is resolved lazily on read; there is
// no background polling loop.
type Service struct {
	cache     *Cache
	sender    *Sender
	directory domain.Directory
	logger    *slog.Logger

	roomsTTL    time.Duration
	messagesTTL time.Duration
	now         func() time.Time

	// Fetch bookkeeping, keyed by room id for message logs. A late response
	// is recorded against the room it was fetched for, never "the currently
	// selected room".
	mu             sync.Mutex
	roomsFetchedAt time.Time
	logFetchedAt   map[string]time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithRoomsTTL sets how long a fetched room directory is considered fresh.
func WithRoomsTTL(d time.Duration) Option {
	return func(s *Service) { s.roomsTTL = d }
}

// WithMessagesTTL sets how long a fetched message log is considered fresh.
func WithMessagesTTL(d time.Duration) Option {
	return func(s *Service) { s.messagesTTL = d }
}

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates the conversation service. The cache must be the same
// instance the sender mutates.
func NewService(cache *Cache, directory domain.Directory, publisher pubsub.Publisher, actingUserID string, opts ...Option) *Service {
	s := &Service{
		cache:        cache,
		directory:    directory,
		logger:       slog.Default().With("component", "conversations.service"),
		roomsTTL:     30 * time.Second,
		messagesTTL:  10 * time.Second,
		now:          func() time.Time { return time.Now().UTC() },
		logFetchedAt: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.sender = NewSender(cache, directory, publisher, actingUserID, func(ctx context.Context, roomID string) {
		// Read-back after a confirmed send. A failure here leaves the cache
		// as-is; the next selection will retry.
		if err := s.RefreshMessages(ctx, roomID); err != nil {
			s.logger.Warn("Read-back refresh failed", "room_id", roomID, "error", err)
		}
	})
	return s
}

// Rooms returns the room directory ordered most-recently-active first and
// filtered by the query. When the directory is stale it is refetched first;
// a fetch failure leaves the cache untouched and is returned alongside the
// stale snapshot (stale-but-available).
func (s *Service) Rooms(ctx context.Context, query string) ([]domain.Room, error) {
	var fetchErr error
	if s.roomsStale() {
		if err := s.refreshRooms(ctx); err != nil {
			fetchErr = err
		}
	}

	rooms := OrderRooms(s.cache.Rooms(), s.cache.Messages)
	return FilterRooms(rooms, query), fetchErr
}

// SelectRoom makes roomID the subject of interest: it refreshes the room's
// message log if stale and returns the current log. Like Rooms, a fetch
// failure is returned alongside whatever the cache already holds.
func (s *Service) SelectRoom(ctx context.Context, roomID string) ([]domain.Message, error) {
	if _, ok := s.cache.Room(roomID); !ok {
		// The directory may simply not be loaded yet.
		if err := s.refreshRooms(ctx); err != nil {
			return nil, fmt.Errorf("room %s: %w", roomID, err)
		}
		if _, ok := s.cache.Room(roomID); !ok {
			return nil, domain.ErrRoomNotFound
		}
	}

	var fetchErr error
	if s.logStale(roomID) {
		if err := s.RefreshMessages(ctx, roomID); err != nil {
			fetchErr = err
		}
	}

	return s.cache.Messages(roomID), fetchErr
}

// Send starts an optimistic send to the room. It returns the provisional
// message synchronously and a channel that reports the final outcome.
func (s *Service) Send(roomID, body string) (domain.Message, <-chan SendResult, error) {
	return s.sender.Send(roomID, body)
}

// RefreshMessages fetches a room's log unconditionally and applies it to the
// cache entry for that room id. On failure the cache is left untouched.
func (s *Service) RefreshMessages(ctx context.Context, roomID string) error {
	messages, err := s.directory.ListMessages(ctx, roomID)
	if err != nil {
		s.logger.Warn("Message fetch failed, keeping cached log", "room_id", roomID, "error", err)
		return err
	}

	s.cache.SetMessages(roomID, messages)

	s.mu.Lock()
	s.logFetchedAt[roomID] = s.now()
	s.mu.Unlock()
	return nil
}

// Room exposes a single cached room record.
func (s *Service) Room(roomID string) (domain.Room, bool) {
	return s.cache.Room(roomID)
}

// Close drains the send queues.
func (s *Service) Close() {
	s.sender.Close()
}

func (s *Service) refreshRooms(ctx context.Context) error {
	rooms, err := s.directory.ListRooms(ctx)
	if err != nil {
		s.logger.Warn("Room directory fetch failed, keeping cached directory", "error", err)
		return err
	}

	s.cache.SetRooms(rooms)

	s.mu.Lock()
	s.roomsFetchedAt = s.now()
	s.mu.Unlock()
	return nil
}

func (s *Service) roomsStale() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomsFetchedAt.IsZero() || s.now().Sub(s.roomsFetchedAt) > s.roomsTTL
}

func (s *Service) logStale(roomID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	fetched, ok := s.logFetchedAt[roomID]
	return !ok || s.now().Sub(fetched) > s.messagesTTL
}
