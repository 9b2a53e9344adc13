package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hackgods/hospital-scheduling/internal/apperr"
	"github.com/hackgods/hospital-scheduling/internal/auth"
	"github.com/hackgods/hospital-scheduling/internal/chat"
	"github.com/hackgods/hospital-scheduling/internal/metrics"
	"github.com/hackgods/hospital-scheduling/pkg/logging"
)

const maxMessageSize = 8 << 10

type ChatService interface {
	Authorize(ctx context.Context, p auth.Principal, sessionID uuid.UUID) (*chat.Session, error)
	PostMessage(ctx context.Context, p auth.Principal, sess *chat.Session, body string, publish chat.Publish) (*chat.Message, error)
}

type TokenParser interface {
	Parse(token string) (auth.Principal, error)
}

type Options struct {
	WriteTimeout time.Duration
	PingInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	return o
}

type inbound struct {
	Body string `json:"body"`
}

// Handler upgrades GET /ws/chat/{sessionID}. Credentials and membership are
// checked after the upgrade so the client learns the reason from the close
// code.
type Handler struct {
	hub      *Hub
	fanout   Fanout
	chats    ChatService
	tokens   TokenParser
	opts     Options
	upgrader websocket.Upgrader
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewHandler wires the transport. fanout is the hub itself for a single
// instance or a relay that reaches every instance.
func NewHandler(hub *Hub, fanout Fanout, chats ChatService, tokens TokenParser, opts Options, m *metrics.Metrics, logger *zap.Logger) *Handler {
	if fanout == nil {
		fanout = hub
	}
	return &Handler{
		hub:    hub,
		fanout: fanout,
		chats:  chats,
		tokens: tokens,
		opts:   opts.withDefaults(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		metrics: m,
		logger:  logging.OrNop(logger).Named("ws"),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return
	}

	ctx := r.Context()
	p, sess, code, reason := h.admit(ctx, r)
	if code != 0 {
		h.reject(ws, code, reason)
		return
	}

	client := newClient(sess.ID, p.ID)
	h.hub.Register(client)
	h.logger.Debug("chat client joined",
		zap.String("session_id", sess.ID.String()),
		zap.String("user_id", p.ID.String()),
	)

	go h.writePump(client, ws)
	h.readPump(ctx, client, ws, p, sess)
}

// admit returns a non-zero close code when the connection must be refused.
func (h *Handler) admit(ctx context.Context, r *http.Request) (auth.Principal, *chat.Session, int, string) {
	p, err := h.tokens.Parse(auth.TokenFromRequest(r))
	if err != nil {
		return p, nil, CloseUnauthenticated, "unauthenticated"
	}

	sessionID, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		return p, nil, CloseNotFound, "session not found"
	}

	sess, err := h.chats.Authorize(ctx, p, sessionID)
	if err != nil {
		switch apperr.KindOf(err) {
		case apperr.KindUnauthenticated:
			return p, nil, CloseUnauthenticated, "unauthenticated"
		case apperr.KindNotFound:
			return p, nil, CloseNotFound, "session not found"
		case apperr.KindForbidden:
			return p, nil, CloseForbidden, "not a participant"
		}
		h.logger.Error("authorize chat connection", zap.String("session_id", sessionID.String()), zap.Error(err))
		return p, nil, websocket.CloseInternalServerErr, "internal error"
	}
	if sess.IsClosed() {
		return p, nil, CloseSessionEnded, "session ended"
	}
	return p, sess, 0, ""
}

func (h *Handler) reject(ws *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(h.opts.WriteTimeout)
	_ = ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	_ = ws.Close()
}

func (h *Handler) readPump(ctx context.Context, c *Client, ws *websocket.Conn, p auth.Principal, sess *chat.Session) {
	defer func() {
		h.hub.Unregister(c)
		_ = ws.Close()
	}()

	pongWait := 2 * h.opts.PingInterval
	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, CloseSessionEnded) {
				h.logger.Debug("chat read failed", zap.String("client_id", c.ID), zap.Error(err))
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))

		var in inbound
		if err := json.Unmarshal(data, &in); err != nil {
			continue
		}
		if strings.TrimSpace(in.Body) == "" {
			continue
		}

		if ended := h.post(ctx, p, sess, in.Body); ended {
			c.disconnect(CloseSessionEnded, "session ended")
		}
	}
}

// post persists and broadcasts under the session's ordering lock. It reports
// whether the session turned out to be closed.
func (h *Handler) post(ctx context.Context, p auth.Principal, sess *chat.Session, body string) (ended bool) {
	publish := func(ctx context.Context, msg chat.Message) {
		if err := h.fanout.Broadcast(ctx, msg); err != nil {
			h.logger.Error("broadcast chat message", zap.String("session_id", sess.ID.String()), zap.Error(err))
		}
	}

	h.hub.Sequence(sess.ID, func() {
		_, err := h.chats.PostMessage(ctx, p, sess, body, publish)
		switch {
		case errors.Is(err, chat.ErrSessionClosed):
			ended = true
			return
		case errors.Is(err, chat.ErrEmptyMessage):
			return
		case err != nil:
			h.logger.Error("persist chat message", zap.String("session_id", sess.ID.String()), zap.Error(err))
			return
		}

		h.metrics.ChatMessage()
	})
	return ended
}

func (h *Handler) writePump(c *Client, ws *websocket.Conn) {
	ticker := time.NewTicker(h.opts.PingInterval)
	defer func() {
		ticker.Stop()
		_ = ws.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				_ = ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(h.opts.WriteTimeout))
				return
			}
			_ = ws.SetWriteDeadline(time.Now().Add(h.opts.WriteTimeout))
			if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case f := <-c.kick:
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(f.code, f.reason),
				time.Now().Add(h.opts.WriteTimeout))
			return
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.opts.WriteTimeout)); err != nil {
				return
			}
		}
	}
}
