package conversations

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riseselfesteem/convosync/internal/domain"
)

// fakeClock is a controllable time source for TTL tests.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func singleRoomDirectory(roomID string) *mockDirectory {
	dir := newMockDirectory()
	dir.listRoomsFn = func(context.Context) ([]domain.Room, error) {
		return []domain.Room{{ID: roomID}}, nil
	}
	return dir
}

func TestServiceRoomsFetchesOncePerTTL(t *testing.T) {
	clock := newFakeClock()
	dir := singleRoomDirectory("r1")

	svc := NewService(NewCache(nil), dir, nil, "agent-1",
		WithNow(clock.Now), WithRoomsTTL(30*time.Second))
	defer svc.Close()

	rooms, err := svc.Rooms(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, rooms, 1)

	_, err = svc.Rooms(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, dir.getRoomsCalls())

	clock.Advance(31 * time.Second)
	_, err = svc.Rooms(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 2, dir.getRoomsCalls())
}

func TestServiceRoomsStaleButAvailableOnFetchFailure(t *testing.T) {
	clock := newFakeClock()
	dir := singleRoomDirectory("r1")

	svc := NewService(NewCache(nil), dir, nil, "agent-1",
		WithNow(clock.Now), WithRoomsTTL(30*time.Second))
	defer svc.Close()

	_, err := svc.Rooms(context.Background(), "")
	require.NoError(t, err)

	clock.Advance(time.Minute)
	dir.mu.Lock()
	dir.listRoomsFn = func(context.Context) ([]domain.Room, error) {
		return nil, errors.New("upstream down")
	}
	dir.mu.Unlock()

	rooms, err := svc.Rooms(context.Background(), "")
	assert.Error(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, "r1", rooms[0].ID)
}

func TestServiceSelectRoomLoadsDirectoryOnDemand(t *testing.T) {
	dir := singleRoomDirectory("r1")
	dir.listMessagesFn = func(_ context.Context, roomID string) ([]domain.Message, error) {
		return []domain.Message{{ID: "m1", RoomID: roomID, Body: "hi", CreatedAt: time.Now().UTC()}}, nil
	}

	svc := NewService(NewCache(nil), dir, nil, "agent-1")
	defer svc.Close()

	messages, err := svc.SelectRoom(context.Background(), "r1")
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "m1", messages[0].ID)
	assert.Equal(t, 1, dir.getRoomsCalls())
}

func TestServiceSelectRoomUnknown(t *testing.T) {
	svc := NewService(NewCache(nil), singleRoomDirectory("r1"), nil, "agent-1")
	defer svc.Close()

	_, err := svc.SelectRoom(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestServiceSelectRoomRefetchesLogOncePerTTL(t *testing.T) {
	clock := newFakeClock()
	dir := singleRoomDirectory("r1")

	svc := NewService(NewCache(nil), dir, nil, "agent-1",
		WithNow(clock.Now), WithMessagesTTL(10*time.Second))
	defer svc.Close()

	_, err := svc.SelectRoom(context.Background(), "r1")
	require.NoError(t, err)
	_, err = svc.SelectRoom(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, 1, dir.getMessagesCalls("r1"))

	clock.Advance(11 * time.Second)
	_, err = svc.SelectRoom(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, 2, dir.getMessagesCalls("r1"))
}

func TestServiceSelectRoomKeepsLogOnFetchFailure(t *testing.T) {
	clock := newFakeClock()
	dir := singleRoomDirectory("r1")
	dir.listMessagesFn = func(_ context.Context, roomID string) ([]domain.Message, error) {
		return []domain.Message{{ID: "m1", RoomID: roomID, Body: "hi", CreatedAt: clock.Now()}}, nil
	}

	svc := NewService(NewCache(nil), dir, nil, "agent-1",
		WithNow(clock.Now), WithMessagesTTL(10*time.Second))
	defer svc.Close()

	_, err := svc.SelectRoom(context.Background(), "r1")
	require.NoError(t, err)

	clock.Advance(time.Minute)
	dir.mu.Lock()
	dir.listMessagesFn = func(context.Context, string) ([]domain.Message, error) {
		return nil, errors.New("upstream down")
	}
	dir.mu.Unlock()

	messages, err := svc.SelectRoom(context.Background(), "r1")
	assert.Error(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "m1", messages[0].ID)
}

func TestServiceLateFetchAppliesToFetchedRoom(t *testing.T) {
	dir := newMockDirectory()
	dir.listRoomsFn = func(context.Context) ([]domain.Room, error) {
		return []domain.Room{{ID: "slow"}, {ID: "fast"}}, nil
	}

	started := make(chan struct{})
	gate := make(chan struct{})
	dir.listMessagesFn = func(_ context.Context, roomID string) ([]domain.Message, error) {
		if roomID == "slow" {
			close(started)
			<-gate
			return []domain.Message{{ID: "m-slow", RoomID: "slow", Body: "late", CreatedAt: time.Now().UTC()}}, nil
		}
		return []domain.Message{{ID: "m-fast", RoomID: "fast", Body: "quick", CreatedAt: time.Now().UTC()}}, nil
	}

	cache := NewCache(nil)
	svc := NewService(cache, dir, nil, "agent-1")
	defer svc.Close()

	_, err := svc.Rooms(context.Background(), "")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := svc.SelectRoom(context.Background(), "slow")
		done <- err
	}()

	// The user moves on to another room while the first fetch hangs.
	<-started
	messages, err := svc.SelectRoom(context.Background(), "fast")
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "m-fast", messages[0].ID)

	close(gate)
	require.NoError(t, <-done)

	// The late response landed on the room it was fetched for.
	slowLog := cache.Messages("slow")
	require.Len(t, slowLog, 1)
	assert.Equal(t, "m-slow", slowLog[0].ID)

	fastLog := cache.Messages("fast")
	require.Len(t, fastLog, 1)
	assert.Equal(t, "m-fast", fastLog[0].ID)
}

func TestServiceSendReadBackReconcilesLog(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	dir := singleRoomDirectory("r1")
	dir.sendMessageFn = func(_ context.Context, roomID, senderID, body string) (domain.Message, error) {
		return domain.Message{ID: "srv-1", RoomID: roomID, SenderID: senderID, Body: body, CreatedAt: base.Add(time.Minute)}, nil
	}
	dir.listMessagesFn = func(_ context.Context, roomID string) ([]domain.Message, error) {
		// The fetch sees a message from the other side plus the confirmed send.
		return []domain.Message{
			{ID: "m-other", RoomID: roomID, Body: "meanwhile", CreatedAt: base},
			{ID: "srv-1", RoomID: roomID, SenderID: "agent-1", Body: "hello", CreatedAt: base.Add(time.Minute)},
		}, nil
	}

	cache := NewCache(nil)
	svc := NewService(cache, dir, nil, "agent-1")
	defer svc.Close()

	_, err := svc.Rooms(context.Background(), "")
	require.NoError(t, err)

	_, result, err := svc.Send("r1", "hello")
	require.NoError(t, err)
	res := waitResult(t, result)
	require.NoError(t, res.Err)

	messages := cache.Messages("r1")
	require.Len(t, messages, 2)
	assert.Equal(t, "m-other", messages[0].ID)
	assert.Equal(t, "srv-1", messages[1].ID)
	for _, m := range messages {
		assert.False(t, m.Pending)
	}
}
