package chat

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/hospital-scheduling/internal/apperr"
)

var (
	ErrSessionNotFound = apperr.NotFound("session_not_found", "chat session not found")
	ErrNotParticipant  = apperr.Forbidden("not_participant", "you are not a participant of this chat session")
	ErrSessionClosed   = apperr.Conflict("session_closed", "chat session has ended")
	ErrEmptyMessage    = apperr.Validation("empty_message", "message body must not be empty")
	ErrInvalidCursor   = apperr.Validation("invalid_cursor", "after must be a non-negative message id")
)

type Repository interface {
	// UpcomingWithoutSession lists online pending or confirmed appointments
	// dated within [from, to] that have no session.
	UpcomingWithoutSession(ctx context.Context, from, to time.Time) ([]Candidate, error)
	// CreateSession inserts an opened session unless the appointment already
	// has one. It reports whether a row was created.
	CreateSession(ctx context.Context, appointmentID uuid.UUID, openedAt time.Time) (bool, error)

	GetSession(ctx context.Context, id uuid.UUID) (*Session, error)
	ListSessions(ctx context.Context) ([]Session, error)

	// CloseSession sets closed_at and closed_by if the session is still open.
	// It reports whether the row changed.
	CloseSession(ctx context.Context, id, by uuid.UUID, at time.Time) (bool, error)
	// MarkClosed time-closes the given open sessions and returns those it changed.
	MarkClosed(ctx context.Context, ids []uuid.UUID, at time.Time) ([]uuid.UUID, error)
	DeleteSessions(ctx context.Context, ids []uuid.UUID) (int64, error)

	// AppendMessage persists a message if the session exists and is not
	// closed, otherwise it fails with ErrSessionClosed. publish runs while the
	// session's message lock is held, across every process sharing the
	// database, so a session's messages are published in id order.
	AppendMessage(ctx context.Context, sessionID, senderID uuid.UUID, body string, at time.Time, publish Publish) (*Message, error)
	ListMessages(ctx context.Context, sessionID uuid.UUID, after int64, limit int) ([]Message, error)
}

// Publish hands a stored message to connected clients.
type Publish func(ctx context.Context, msg Message)

// Notifier tells connected clients that a session ended.
type Notifier interface {
	ForceClose(ctx context.Context, sessionID uuid.UUID) error
}
