package chat

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/hospital-scheduling/internal/apperr"
	"github.com/hackgods/hospital-scheduling/internal/auth"
	"github.com/hackgods/hospital-scheduling/internal/clock"
	"github.com/hackgods/hospital-scheduling/pkg/logging"
)

const defaultBacklogPage = 20

type Config struct {
	PrepareHorizon time.Duration
	ExpiryFactor   float64
	BacklogMaxPage int
}

func (c Config) withDefaults() Config {
	if c.PrepareHorizon <= 0 {
		c.PrepareHorizon = 15 * time.Minute
	}
	if c.ExpiryFactor < 1 {
		c.ExpiryFactor = 2.5
	}
	if c.BacklogMaxPage <= 0 {
		c.BacklogMaxPage = 100
	}
	return c
}

type Service struct {
	repo     Repository
	notifier Notifier
	clock    clock.Clock
	cfg      Config
	logger   *zap.Logger
}

func NewService(repo Repository, notifier Notifier, clk clock.Clock, cfg Config, logger *zap.Logger) *Service {
	return &Service{
		repo:     repo,
		notifier: notifier,
		clock:    clk,
		cfg:      cfg.withDefaults(),
		logger:   logging.OrNop(logger).Named("chat"),
	}
}

// PrepareUpcoming opens a session for every online appointment starting
// within the preparation horizon. Running it twice creates nothing new.
func (s *Service) PrepareUpcoming(ctx context.Context) (int, error) {
	now := s.clock.Now()
	until := now.Add(s.cfg.PrepareHorizon)

	candidates, err := s.repo.UpcomingWithoutSession(ctx, clock.DateOf(now), clock.DateOf(until))
	if err != nil {
		return 0, err
	}

	created := 0
	for _, c := range candidates {
		start := c.StartsAt(now.Location())
		if start.Before(now) || start.After(until) {
			continue
		}
		ok, err := s.repo.CreateSession(ctx, c.AppointmentID, now)
		if err != nil {
			return created, err
		}
		if ok {
			created++
			s.logger.Info("chat session prepared", zap.String("appointment_id", c.AppointmentID.String()))
		}
	}
	return created, nil
}

// Authorize returns the session if p is its doctor or patient.
func (s *Service) Authorize(ctx context.Context, p auth.Principal, sessionID uuid.UUID) (*Session, error) {
	if !p.Authenticated() {
		return nil, apperr.ErrUnauthenticated
	}
	sess, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := auth.Require(p, auth.Capabilities(p, sess.PatientID, sess.DoctorID), auth.Participant, ErrNotParticipant); err != nil {
		return nil, err
	}
	return sess, nil
}

// Close ends a session on behalf of a participant, disconnects its clients
// and purges it right away. Closing an already closed session is a no-op.
// A failed purge is left to the next purge sweep.
func (s *Service) Close(ctx context.Context, p auth.Principal, sessionID uuid.UUID) (*Session, error) {
	sess, err := s.Authorize(ctx, p, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.IsClosed() {
		return sess, nil
	}

	now := s.clock.Now()
	changed, err := s.repo.CloseSession(ctx, sessionID, p.ID, now)
	if err != nil {
		return nil, err
	}
	if !changed {
		return s.repo.GetSession(ctx, sessionID)
	}
	sess.ClosedAt = &now
	sess.ClosedBy = &p.ID

	s.forceClose(ctx, sessionID)
	if _, err := s.repo.DeleteSessions(ctx, []uuid.UUID{sessionID}); err != nil {
		s.logger.Warn("purge after close failed, deferring to sweep",
			zap.String("session_id", sessionID.String()),
			zap.Error(err),
		)
	}

	s.logger.Info("chat session closed",
		zap.String("session_id", sessionID.String()),
		zap.String("closed_by", p.ID.String()),
	)
	return sess, nil
}

// PurgeExpired deletes manually closed sessions and sessions time-closed on a
// previous pass, then time-closes open sessions past start+factor*duration.
// Time-closed sessions survive until the next pass.
func (s *Service) PurgeExpired(ctx context.Context) (closed, purged int, err error) {
	sessions, err := s.repo.ListSessions(ctx)
	if err != nil {
		return 0, 0, err
	}

	now := s.clock.Now()
	var toDelete, toClose []uuid.UUID
	for _, sess := range sessions {
		switch {
		case sess.ClosedBy != nil, sess.ClosedAt != nil:
			toDelete = append(toDelete, sess.ID)
		case !now.Before(sess.ExpiresAt(now.Location(), s.cfg.ExpiryFactor)):
			toClose = append(toClose, sess.ID)
		}
	}

	n, err := s.repo.DeleteSessions(ctx, toDelete)
	if err != nil {
		return 0, 0, err
	}
	purged = int(n)

	changed, err := s.repo.MarkClosed(ctx, toClose, now)
	if err != nil {
		return 0, purged, err
	}
	for _, id := range changed {
		s.forceClose(ctx, id)
	}

	if purged > 0 || len(changed) > 0 {
		s.logger.Info("chat sessions swept", zap.Int("closed", len(changed)), zap.Int("purged", purged))
	}
	return len(changed), purged, nil
}

// PostMessage trims and persists a message from a participant, then hands it
// to publish before another message of the session can be stored.
func (s *Service) PostMessage(ctx context.Context, p auth.Principal, sess *Session, body string, publish Publish) (*Message, error) {
	if !auth.Capabilities(p, sess.PatientID, sess.DoctorID).Any(auth.Participant) {
		return nil, ErrNotParticipant
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, ErrEmptyMessage
	}
	if sess.IsClosed() {
		return nil, ErrSessionClosed
	}
	return s.repo.AppendMessage(ctx, sess.ID, p.ID, body, s.clock.Now(), publish)
}

// Backlog pages through a session's messages in id order, starting after the
// given id.
func (s *Service) Backlog(ctx context.Context, p auth.Principal, sessionID uuid.UUID, after int64, limit int) ([]Message, error) {
	if after < 0 {
		return nil, ErrInvalidCursor.WithField("after", "must be >= 0")
	}
	if _, err := s.Authorize(ctx, p, sessionID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultBacklogPage
	}
	if limit > s.cfg.BacklogMaxPage {
		limit = s.cfg.BacklogMaxPage
	}
	return s.repo.ListMessages(ctx, sessionID, after, limit)
}

func (s *Service) forceClose(ctx context.Context, sessionID uuid.UUID) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.ForceClose(ctx, sessionID); err != nil {
		s.logger.Warn("force close notification failed",
			zap.String("session_id", sessionID.String()),
			zap.Error(err),
		)
	}
}
