package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/hospital-scheduling/internal/chat"
)

func TestHubRegisterUnregister(t *testing.T) {
	hub := NewHub(nil, nil)
	sessionID := uuid.New()
	a := newClient(sessionID, uuid.New())
	b := newClient(sessionID, uuid.New())
	other := newClient(uuid.New(), uuid.New())

	hub.Register(a)
	hub.Register(b)
	hub.Register(other)
	assert.Equal(t, 3, hub.ClientCount())
	assert.Equal(t, 2, hub.GroupSize(sessionID))

	hub.Unregister(a)
	hub.Unregister(a)
	assert.Equal(t, 1, hub.GroupSize(sessionID))

	_, open := <-a.send
	assert.False(t, open)

	hub.Unregister(b)
	assert.Zero(t, hub.GroupSize(sessionID))
	assert.Equal(t, 1, hub.ClientCount())
}

func TestHubBroadcastStaysInGroup(t *testing.T) {
	hub := NewHub(nil, nil)
	sessionID := uuid.New()
	member := newClient(sessionID, uuid.New())
	outsider := newClient(uuid.New(), uuid.New())
	hub.Register(member)
	hub.Register(outsider)

	msg := chat.Message{ID: 7, SessionID: sessionID, SenderID: member.UserID, Body: "hello", SentAt: time.Now().UTC()}
	require.NoError(t, hub.Broadcast(context.Background(), msg))

	select {
	case data := <-member.send:
		var got chat.Message
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, int64(7), got.ID)
		assert.Equal(t, "hello", got.Body)
	case <-time.After(time.Second):
		t.Fatal("member did not receive the message")
	}

	select {
	case <-outsider.send:
		t.Fatal("outsider received a message of another session")
	default:
	}
}

func TestHubForceClose(t *testing.T) {
	hub := NewHub(nil, nil)
	sessionID := uuid.New()
	c := newClient(sessionID, uuid.New())
	hub.Register(c)

	require.NoError(t, hub.ForceClose(context.Background(), sessionID))
	require.NoError(t, hub.ForceClose(context.Background(), sessionID))

	f := <-c.kick
	assert.Equal(t, CloseSessionEnded, f.code)
	assert.Empty(t, c.kick)
}

func TestHubDisconnectsSlowClient(t *testing.T) {
	hub := NewHub(nil, nil)
	sessionID := uuid.New()
	c := newClient(sessionID, uuid.New())
	hub.Register(c)

	for i := 0; i < sendBuffer+1; i++ {
		hub.Deliver(sessionID, []byte(`{}`))
	}

	f := <-c.kick
	assert.Equal(t, websocket.CloseTryAgainLater, f.code)
	assert.Len(t, c.send, sendBuffer)
}

func TestHubSequenceSerializes(t *testing.T) {
	hub := NewHub(nil, nil)
	sessionID := uuid.New()

	var (
		wg      sync.WaitGroup
		inside  int
		overlap bool
		order   []int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			hub.Sequence(sessionID, func() {
				inside++
				if inside > 1 {
					overlap = true
				}
				order = append(order, i)
				time.Sleep(time.Millisecond)
				inside--
			})
		}(i)
	}
	wg.Wait()

	assert.False(t, overlap)
	assert.Len(t, order, 50)
}
