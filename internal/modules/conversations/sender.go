package conversations

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/riseselfesteem/convosync/internal/domain"
	"github.com/riseselfesteem/convosync/internal/pubsub"
)

// sendQueueCapacity bounds how many sends can wait per room before Send
// starts refusing.
const sendQueueCapacity = 64

// SendResult reports the outcome of one send: the confirmed message on
// success, or the error that caused the rollback.
type SendResult struct {
	Message domain.Message
	Err     error
}

type sendJob struct {
	snapshot    RoomSnapshot
	provisional domain.Message
	result      chan SendResult
}

// Sender executes send-message operations against the upstream while
// immediately reflecting the pending effect in the cache, with rollback on
// failure.
//
// Each send moves through idle -> pending -> confirmed | rolled-back. Sends
// to different rooms run independently; sends to the same room are queued and
// executed in submission order so a second send never overwrites the first
// (there is no lock against the remote store, so cross-client ordering stays
// best-effort).
type Sender struct {
	cache     *Cache
	directory domain.Directory
	publisher pubsub.Publisher
	logger    *slog.Logger

	actingUserID string

	// onConfirmed triggers the read-back refresh of a room's log after a
	// confirmed send. It runs on the room's send worker.
	onConfirmed func(ctx context.Context, roomID string)

	now func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	queues map[string]chan sendJob
	closed bool
	wg     sync.WaitGroup
}

// NewSender creates a send controller. onConfirmed may be nil when no
// read-back reconciliation is wanted (tests).
func NewSender(cache *Cache, directory domain.Directory, publisher pubsub.Publisher, actingUserID string, onConfirmed func(ctx context.Context, roomID string)) *Sender {
	ctx, cancel := context.WithCancel(context.Background())
	return &Sender{
		cache:        cache,
		directory:    directory,
		publisher:    publisher,
		logger:       slog.Default().With("component", "conversations.sender"),
		actingUserID: actingUserID,
		onConfirmed:  onConfirmed,
		now:          func() time.Time { return time.Now().UTC() },
		ctx:          ctx,
		cancel:       cancel,
		queues:       make(map[string]chan sendJob),
	}
}

// Send starts a send for the given room. Before returning it snapshots the
// room's cache state, appends a provisional message, and patches the room's
// preview and activity hint, so the room jumps to the top of the activity
// order before any network round-trip.
//
// The returned channel receives exactly one SendResult when the send is
// confirmed or rolled back. A failed send is never retried automatically; a
// retry is a fresh call.
func (s *Sender) Send(roomID, body string) (domain.Message, <-chan SendResult, error) {
	if body == "" {
		return domain.Message{}, nil, domain.ErrEmptyBody
	}
	if _, ok := s.cache.Room(roomID); !ok {
		return domain.Message{}, nil, domain.ErrRoomNotFound
	}

	queue, err := s.queueFor(roomID)
	if err != nil {
		return domain.Message{}, nil, err
	}

	// Snapshot first, then patch: the snapshot is the rollback target and
	// must predate this send's own mutations.
	snapshot := s.cache.Snapshot(roomID)

	now := s.now()
	provisional := domain.Message{
		ID:        "pending-" + uuid.New().String(),
		RoomID:    roomID,
		SenderID:  s.actingUserID,
		Body:      body,
		CreatedAt: now,
		Pending:   true,
	}

	s.cache.AppendMessage(roomID, provisional)
	s.cache.PatchRoom(roomID, domain.RoomPatch{
		Preview:         &body,
		LatestMessageAt: &now,
	})

	job := sendJob{
		snapshot:    snapshot,
		provisional: provisional,
		result:      make(chan SendResult, 1),
	}

	select {
	case queue <- job:
		return provisional, job.result, nil
	default:
		// The queue is full. Undo this send's optimistic effect and refuse.
		s.cache.RollbackSend(snapshot, provisional.ID)
		return domain.Message{}, nil, domain.ErrSendQueueFull
	}
}

// queueFor returns the room's send queue, starting its worker on first use.
func (s *Sender) queueFor(roomID string) (chan sendJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, domain.ErrShuttingDown
	}
	if q, ok := s.queues[roomID]; ok {
		return q, nil
	}

	q := make(chan sendJob, sendQueueCapacity)
	s.queues[roomID] = q
	s.wg.Add(1)
	go s.worker(roomID, q)
	return q, nil
}

// worker drains one room's queue in submission order.
func (s *Sender) worker(roomID string, queue chan sendJob) {
	defer s.wg.Done()
	for job := range queue {
		s.resolve(roomID, job)
	}
}

func (s *Sender) resolve(roomID string, job sendJob) {
	confirmed, err := s.directory.SendMessage(s.ctx, roomID, s.actingUserID, job.provisional.Body)
	if err != nil {
		s.logger.Warn("Send failed, rolling back", "room_id", roomID, "provisional_id", job.provisional.ID, "error", err)
		s.cache.RollbackSend(job.snapshot, job.provisional.ID)
		s.publishFailure(roomID, job.provisional.ID, err)
		job.result <- SendResult{Err: err}
		return
	}

	// The server may omit an id; the provisional entry is then final.
	if confirmed.ID == "" {
		confirmed = job.provisional
		confirmed.Pending = false
	}
	if confirmed.CreatedAt.IsZero() {
		confirmed.CreatedAt = job.provisional.CreatedAt
	}
	if confirmed.SenderID == "" {
		confirmed.SenderID = job.provisional.SenderID
	}

	s.cache.ConfirmMessage(roomID, job.provisional.ID, confirmed)
	s.cache.PatchRoom(roomID, domain.RoomPatch{
		Preview:         &confirmed.Body,
		LatestMessageAt: &confirmed.CreatedAt,
	})

	// Read-back: reconcile against messages from other senders that arrived
	// while this send was in flight. A late completion still applies to this
	// room regardless of what the user is looking at now.
	if s.onConfirmed != nil {
		s.onConfirmed(s.ctx, roomID)
	}

	job.result <- SendResult{Message: confirmed}
}

func (s *Sender) publishFailure(roomID, provisionalID string, cause error) {
	if s.publisher == nil {
		return
	}

	payload, err := json.Marshal(SendFailedEvent{
		RoomID:        roomID,
		ProvisionalID: provisionalID,
		Reason:        cause.Error(),
	})
	if err != nil {
		return
	}

	if err := s.publisher.Publish(context.Background(), pubsub.Message{
		Topic:   TopicSendFailed,
		RoomID:  roomID,
		Payload: payload,
	}); err != nil {
		s.logger.Error("Failed to publish send failure", "room_id", roomID, "error", err)
	}
}

// Close stops accepting sends and waits for all queued sends to resolve.
func (s *Sender) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for _, q := range s.queues {
		close(q)
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.cancel()
}
