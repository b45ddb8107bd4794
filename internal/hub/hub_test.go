package hub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recvFrame(t *testing.T, ch chan []byte) []byte {
	t.Helper()
	select {
	case payload := <-ch:
		return payload
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

func TestHubRoutesFramesByRoom(t *testing.T) {
	h := NewHub()
	go h.Run()

	all := &Subscriber{Send: make(chan []byte, 8)}
	roomOnly := &Subscriber{RoomID: "r1", Send: make(chan []byte, 8)}
	h.Register <- all
	h.Register <- roomOnly

	h.Broadcast <- Frame{RoomID: "r1", Payload: []byte("a")}
	h.Broadcast <- Frame{RoomID: "r2", Payload: []byte("b")}
	h.Broadcast <- Frame{RoomID: "", Payload: []byte("c")}

	// The unscoped subscriber sees everything.
	assert.Equal(t, []byte("a"), recvFrame(t, all.Send))
	assert.Equal(t, []byte("b"), recvFrame(t, all.Send))
	assert.Equal(t, []byte("c"), recvFrame(t, all.Send))

	// The scoped subscriber sees its room plus directory-wide frames; the
	// frame for the other room was skipped.
	assert.Equal(t, []byte("a"), recvFrame(t, roomOnly.Send))
	assert.Equal(t, []byte("c"), recvFrame(t, roomOnly.Send))
}

func TestHubUnregisterClosesChannel(t *testing.T) {
	h := NewHub()
	go h.Run()

	sub := &Subscriber{Send: make(chan []byte, 1)}
	h.Register <- sub
	h.Unregister <- sub

	select {
	case _, open := <-sub.Send:
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("expected channel to be closed")
	}
}

func TestHubDropsSlowSubscriber(t *testing.T) {
	h := NewHub()
	go h.Run()

	slow := &Subscriber{Send: make(chan []byte, 1)}
	healthy := &Subscriber{Send: make(chan []byte, 8)}
	h.Register <- slow
	h.Register <- healthy

	// The second frame overflows the slow subscriber's buffer.
	h.Broadcast <- Frame{Payload: []byte("a")}
	h.Broadcast <- Frame{Payload: []byte("b")}

	assert.Equal(t, []byte("a"), recvFrame(t, slow.Send))
	_, open := <-slow.Send
	assert.False(t, open, "expected the slow subscriber to be dropped")

	// The healthy subscriber is unaffected and keeps receiving.
	assert.Equal(t, []byte("a"), recvFrame(t, healthy.Send))
	assert.Equal(t, []byte("b"), recvFrame(t, healthy.Send))

	h.Broadcast <- Frame{Payload: []byte("c")}
	require.Equal(t, []byte("c"), recvFrame(t, healthy.Send))
}
