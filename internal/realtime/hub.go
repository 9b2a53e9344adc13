// Package realtime carries chat traffic over websockets. Connections are
// grouped by chat session; the hub fans messages and close events out to the
// local members of a group.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hackgods/hospital-scheduling/internal/chat"
	"github.com/hackgods/hospital-scheduling/internal/metrics"
	"github.com/hackgods/hospital-scheduling/pkg/logging"
)

// Close codes sent to chat clients.
const (
	CloseSessionEnded    = 4000
	CloseUnauthenticated = 4001
	CloseForbidden       = 4003
	CloseNotFound        = 4004
)

const sendBuffer = 64

// Fanout delivers a persisted message or a close event to every connection
// of a session, wherever it is attached.
type Fanout interface {
	Broadcast(ctx context.Context, msg chat.Message) error
	ForceClose(ctx context.Context, sessionID uuid.UUID) error
}

type closeFrame struct {
	code   int
	reason string
}

// Client is one websocket connection joined to a session group.
type Client struct {
	ID        string
	SessionID uuid.UUID
	UserID    uuid.UUID

	send chan []byte
	kick chan closeFrame
}

func newClient(sessionID, userID uuid.UUID) *Client {
	return &Client{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		UserID:    userID,
		send:      make(chan []byte, sendBuffer),
		kick:      make(chan closeFrame, 1),
	}
}

// disconnect asks the write pump to send a close frame. Only the first
// request is kept.
func (c *Client) disconnect(code int, reason string) {
	select {
	case c.kick <- closeFrame{code: code, reason: reason}:
	default:
	}
}

type Hub struct {
	mu      sync.RWMutex
	groups  map[uuid.UUID]map[*Client]struct{}
	seqMu   sync.Mutex
	seq     map[uuid.UUID]*sync.Mutex
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewHub(m *metrics.Metrics, logger *zap.Logger) *Hub {
	return &Hub{
		groups:  make(map[uuid.UUID]map[*Client]struct{}),
		seq:     make(map[uuid.UUID]*sync.Mutex),
		metrics: m,
		logger:  logging.OrNop(logger).Named("hub"),
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	group := h.groups[c.SessionID]
	if group == nil {
		group = make(map[*Client]struct{})
		h.groups[c.SessionID] = group
	}
	group[c] = struct{}{}
	h.metrics.ChatConnected()
}

// Unregister removes c from its group and closes its send channel. Calling
// it twice is harmless.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	group, ok := h.groups[c.SessionID]
	if !ok {
		return
	}
	if _, ok := group[c]; !ok {
		return
	}
	delete(group, c)
	close(c.send)
	h.metrics.ChatDisconnected()

	if len(group) == 0 {
		delete(h.groups, c.SessionID)
		h.seqMu.Lock()
		delete(h.seq, c.SessionID)
		h.seqMu.Unlock()
	}
}

// Sequence runs fn while holding the session's local posting lock. Local
// posters queue here instead of each holding a database connection while
// waiting on the session's cross-instance lock.
func (h *Hub) Sequence(sessionID uuid.UUID, fn func()) {
	h.seqMu.Lock()
	mu, ok := h.seq[sessionID]
	if !ok {
		mu = &sync.Mutex{}
		h.seq[sessionID] = mu
	}
	h.seqMu.Unlock()

	mu.Lock()
	defer mu.Unlock()
	fn()
}

// Deliver queues data for every local member of the session. A member whose
// buffer is full is disconnected; it can reconnect and page the backlog.
func (h *Hub) Deliver(sessionID uuid.UUID, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.groups[sessionID] {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("chat client too slow, disconnecting",
				zap.String("session_id", sessionID.String()),
				zap.String("client_id", c.ID),
			)
			c.disconnect(websocket.CloseTryAgainLater, "too slow")
		}
	}
}

// Broadcast delivers msg to the local group.
func (h *Hub) Broadcast(_ context.Context, msg chat.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal chat message: %w", err)
	}
	h.Deliver(msg.SessionID, data)
	return nil
}

// ForceClose disconnects every local member of the session with 4000.
func (h *Hub) ForceClose(_ context.Context, sessionID uuid.UUID) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.groups[sessionID] {
		c.disconnect(CloseSessionEnded, "session ended")
	}
	return nil
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, group := range h.groups {
		n += len(group)
	}
	return n
}

func (h *Hub) GroupSize(sessionID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[sessionID])
}
