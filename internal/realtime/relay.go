package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/hospital-scheduling/internal/chat"
	"github.com/hackgods/hospital-scheduling/pkg/logging"
)

const channelPrefix = "chat:"

var (
	errNoHub              = errors.New("relay has no hub to deliver to")
	errSubscriptionClosed = errors.New("chat relay subscription closed")
)

const (
	eventMessage = "message"
	eventClose   = "close"
)

type envelope struct {
	Type    string        `json:"type"`
	Message *chat.Message `json:"message,omitempty"`
}

func channelFor(sessionID uuid.UUID) string {
	return channelPrefix + sessionID.String()
}

// RedisRelay publishes chat traffic on chat:<sessionID> so every api-server
// instance can deliver it to its own connections. A relay without a hub only
// publishes, which is how the reconciler signals closes.
type RedisRelay struct {
	client *redis.Client
	hub    *Hub
	logger *zap.Logger
}

func NewRedisRelay(client *redis.Client, hub *Hub, logger *zap.Logger) *RedisRelay {
	return &RedisRelay{
		client: client,
		hub:    hub,
		logger: logging.OrNop(logger).Named("relay"),
	}
}

func (r *RedisRelay) Broadcast(ctx context.Context, msg chat.Message) error {
	return r.publish(ctx, msg.SessionID, envelope{Type: eventMessage, Message: &msg})
}

func (r *RedisRelay) ForceClose(ctx context.Context, sessionID uuid.UUID) error {
	return r.publish(ctx, sessionID, envelope{Type: eventClose})
}

func (r *RedisRelay) publish(ctx context.Context, sessionID uuid.UUID, e envelope) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal relay event: %w", err)
	}
	if err := r.client.Publish(ctx, channelFor(sessionID), payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", e.Type, err)
	}
	return nil
}

// Serve runs the relay until ctx is done, resubscribing with exponential
// backoff whenever the subscription fails.
func (r *RedisRelay) Serve(ctx context.Context) error {
	if r.hub == nil {
		return errNoHub
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 0

	op := func() error {
		if err := r.Run(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	}
	notify := func(err error, wait time.Duration) {
		r.logger.Warn("chat relay unavailable, resubscribing",
			zap.Duration("retry_in", wait),
			zap.Error(err),
		)
	}

	err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// Run subscribes to every chat channel and hands events to the local hub
// until ctx is done.
func (r *RedisRelay) Run(ctx context.Context) error {
	if r.hub == nil {
		return errNoHub
	}

	sub := r.client.PSubscribe(ctx, channelPrefix+"*")
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe chat relay: %w", err)
	}
	r.logger.Info("chat relay subscribed")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return errSubscriptionClosed
			}
			r.dispatch(ctx, m)
		}
	}
}

func (r *RedisRelay) dispatch(ctx context.Context, m *redis.Message) {
	sessionID, err := uuid.Parse(strings.TrimPrefix(m.Channel, channelPrefix))
	if err != nil {
		r.logger.Warn("relay event on unexpected channel", zap.String("channel", m.Channel))
		return
	}

	var e envelope
	if err := json.Unmarshal([]byte(m.Payload), &e); err != nil {
		r.logger.Warn("malformed relay event", zap.String("channel", m.Channel), zap.Error(err))
		return
	}

	switch e.Type {
	case eventMessage:
		if e.Message == nil {
			return
		}
		_ = r.hub.Broadcast(ctx, *e.Message)
	case eventClose:
		_ = r.hub.ForceClose(ctx, sessionID)
	default:
		r.logger.Warn("unknown relay event", zap.String("type", e.Type))
	}
}
