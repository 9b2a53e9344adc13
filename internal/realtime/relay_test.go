package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/hackgods/hospital-scheduling/internal/chat"
)

func TestRedisRelayDeliversAcrossInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	logger := zaptest.NewLogger(t)

	hub := NewHub(nil, logger)
	sessionID := uuid.New()
	member := newClient(sessionID, uuid.New())
	hub.Register(member)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewRedisRelay(client, hub, logger).Run(ctx) }()
	require.Eventually(t, func() bool { return mr.PubSubNumPat() == 1 }, 2*time.Second, 10*time.Millisecond)

	// A publish-only relay, as used by the reconciler process.
	publisher := NewRedisRelay(client, nil, logger)
	msg := chat.Message{ID: 3, SessionID: sessionID, SenderID: uuid.New(), Body: "hi", SentAt: time.Now().UTC()}
	require.NoError(t, publisher.Broadcast(ctx, msg))

	select {
	case data := <-member.send:
		var got chat.Message
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, msg.ID, got.ID)
		assert.Equal(t, "hi", got.Body)
	case <-time.After(2 * time.Second):
		t.Fatal("relayed message not delivered")
	}

	require.NoError(t, publisher.ForceClose(ctx, sessionID))
	select {
	case f := <-member.kick:
		assert.Equal(t, CloseSessionEnded, f.code)
	case <-time.After(2 * time.Second):
		t.Fatal("relayed close not delivered")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop")
	}
}

func TestRedisRelayServeResubscribesAfterOutage(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	logger := zaptest.NewLogger(t)

	hub := NewHub(nil, logger)
	sessionID := uuid.New()
	member := newClient(sessionID, uuid.New())
	hub.Register(member)

	// Redis is down when the server starts.
	mr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewRedisRelay(client, hub, logger).Serve(ctx) }()

	time.Sleep(300 * time.Millisecond)
	require.NoError(t, mr.Restart())
	require.Eventually(t, func() bool { return mr.PubSubNumPat() == 1 }, 5*time.Second, 20*time.Millisecond)

	msg := chat.Message{ID: 9, SessionID: sessionID, SenderID: uuid.New(), Body: "back", SentAt: time.Now().UTC()}
	require.NoError(t, NewRedisRelay(client, nil, logger).Broadcast(ctx, msg))

	select {
	case data := <-member.send:
		var got chat.Message
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, msg.ID, got.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered after resubscribe")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop")
	}
}

func TestRedisRelayRunNeedsHub(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	assert.ErrorIs(t, NewRedisRelay(client, nil, nil).Run(context.Background()), errNoHub)
	assert.ErrorIs(t, NewRedisRelay(client, nil, nil).Serve(context.Background()), errNoHub)
}
