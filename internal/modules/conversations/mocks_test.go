package conversations

import (
	"context"
	"sync"

	"github.com/riseselfesteem/convosync/internal/domain"
	"github.com/riseselfesteem/convosync/internal/pubsub"
)

// mockPublisher captures published messages for inspection.
type mockPublisher struct {
	mu       sync.Mutex
	messages []pubsub.Message
}

func (p *mockPublisher) Publish(ctx context.Context, msg pubsub.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
	return nil
}

func (p *mockPublisher) Close() error { return nil }

func (p *mockPublisher) getMessages() []pubsub.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]pubsub.Message, len(p.messages))
	copy(out, p.messages)
	return out
}

// mockDirectory is a configurable in-memory Directory. The function fields
// are called outside the mutex so a test can block inside one without
// deadlocking the call counters.
type mockDirectory struct {
	mu             sync.Mutex
	listRoomsFn    func(ctx context.Context) ([]domain.Room, error)
	listMessagesFn func(ctx context.Context, roomID string) ([]domain.Message, error)
	sendMessageFn  func(ctx context.Context, roomID, senderID, body string) (domain.Message, error)

	roomsCalls    int
	messagesCalls map[string]int
	sentBodies    []string
}

func newMockDirectory() *mockDirectory {
	return &mockDirectory{messagesCalls: make(map[string]int)}
}

func (d *mockDirectory) ListRooms(ctx context.Context) ([]domain.Room, error) {
	d.mu.Lock()
	d.roomsCalls++
	fn := d.listRoomsFn
	d.mu.Unlock()

	if fn == nil {
		return nil, nil
	}
	return fn(ctx)
}

func (d *mockDirectory) ListMessages(ctx context.Context, roomID string) ([]domain.Message, error) {
	d.mu.Lock()
	d.messagesCalls[roomID]++
	fn := d.listMessagesFn
	d.mu.Unlock()

	if fn == nil {
		return nil, nil
	}
	return fn(ctx, roomID)
}

func (d *mockDirectory) SendMessage(ctx context.Context, roomID, senderID, body string) (domain.Message, error) {
	d.mu.Lock()
	d.sentBodies = append(d.sentBodies, body)
	fn := d.sendMessageFn
	d.mu.Unlock()

	if fn == nil {
		return domain.Message{}, nil
	}
	return fn(ctx, roomID, senderID, body)
}

func (d *mockDirectory) getRoomsCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.roomsCalls
}

func (d *mockDirectory) getMessagesCalls(roomID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.messagesCalls[roomID]
}

func (d *mockDirectory) getSentBodies() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.sentBodies))
	copy(out, d.sentBodies)
	return out
}
