package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hackgods/hospital-scheduling/internal/db"
)

const sessionSelect = `
	SELECT cs.id, cs.appointment_id, cs.opened_at, cs.closed_at, cs.closed_by, cs.created_at,
	       a.patient_id, a.doctor_id, a.date, a.start_time, a.end_time
	FROM chat_sessions cs
	JOIN appointments a ON a.id = cs.appointment_id`

type PgRepository struct {
	db db.Conn
}

func NewPgRepository(conn db.Conn) *PgRepository {
	return &PgRepository{db: conn}
}

func scanSession(row pgx.Row) (*Session, error) {
	var s Session

	err := row.Scan(
		&s.ID,
		&s.AppointmentID,
		&s.OpenedAt,
		&s.ClosedAt,
		&s.ClosedBy,
		&s.CreatedAt,
		&s.PatientID,
		&s.DoctorID,
		&s.Date,
		&s.StartTime,
		&s.EndTime,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	return &s, nil
}

func scanMessage(row pgx.Row) (*Message, error) {
	var m Message
	if err := row.Scan(&m.ID, &m.SessionID, &m.SenderID, &m.Body, &m.SentAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionClosed
		}
		return nil, err
	}
	return &m, nil
}

func (r *PgRepository) UpcomingWithoutSession(ctx context.Context, from, to time.Time) ([]Candidate, error) {
	rows, err := r.db.Query(ctx, `
		SELECT a.id, a.date, a.start_time
		FROM appointments a
		LEFT JOIN chat_sessions cs ON cs.appointment_id = a.id
		WHERE a.appointment_type = 'online'
		  AND a.status IN ('pending', 'confirmed')
		  AND a.date BETWEEN $1 AND $2
		  AND cs.id IS NULL
		ORDER BY a.date, a.start_time
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("list chat candidates: %w", err)
	}
	defer rows.Close()

	var result []Candidate
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(&c.AppointmentID, &c.Date, &c.StartTime); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) CreateSession(ctx context.Context, appointmentID uuid.UUID, openedAt time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO chat_sessions (id, appointment_id, opened_at, created_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (appointment_id) DO NOTHING
	`, uuid.New(), appointmentID, openedAt)
	if err != nil {
		return false, fmt.Errorf("create chat session: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PgRepository) GetSession(ctx context.Context, id uuid.UUID) (*Session, error) {
	row := r.db.QueryRow(ctx, sessionSelect+`
		WHERE cs.id = $1
	`, id)
	return scanSession(row)
}

func (r *PgRepository) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := r.db.Query(ctx, sessionSelect+`
		ORDER BY a.date, a.start_time
	`)
	if err != nil {
		return nil, fmt.Errorf("list chat sessions: %w", err)
	}
	defer rows.Close()

	var result []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) CloseSession(ctx context.Context, id, by uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE chat_sessions
		SET closed_at = $3,
		    closed_by = $2
		WHERE id = $1
		  AND closed_at IS NULL
	`, id, by, at)
	if err != nil {
		return false, fmt.Errorf("close chat session: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PgRepository) MarkClosed(ctx context.Context, ids []uuid.UUID, at time.Time) ([]uuid.UUID, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := r.db.Query(ctx, `
		UPDATE chat_sessions
		SET closed_at = $2
		WHERE id = ANY($1)
		  AND closed_at IS NULL
		RETURNING id
	`, ids, at)
	if err != nil {
		return nil, fmt.Errorf("mark chat sessions closed: %w", err)
	}
	defer rows.Close()

	var closed []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		closed = append(closed, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return closed, nil
}

func (r *PgRepository) DeleteSessions(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tag, err := r.db.Exec(ctx, `DELETE FROM chat_sessions WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, fmt.Errorf("delete chat sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PgRepository) InsertMessage(ctx context.Context, sessionID, senderID uuid.UUID, body string, at time.Time) (*Message, error) {
	return insertMessage(ctx, r.db, sessionID, senderID, body, at)
}

// AppendMessage takes a transaction-scoped advisory lock keyed by the session
// before inserting, and publishes before committing. Posters on other
// instances queue on the lock, so ids and publish order agree.
func (r *PgRepository) AppendMessage(ctx context.Context, sessionID, senderID uuid.UUID, body string, at time.Time, publish Publish) (*Message, error) {
	var msg *Message
	err := db.InTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0))`, sessionID.String()); err != nil {
			return fmt.Errorf("lock chat session: %w", err)
		}
		m, err := insertMessage(ctx, tx, sessionID, senderID, body, at)
		if err != nil {
			return err
		}
		if publish != nil {
			publish(ctx, *m)
		}
		msg = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func insertMessage(ctx context.Context, q db.Querier, sessionID, senderID uuid.UUID, body string, at time.Time) (*Message, error) {
	row := q.QueryRow(ctx, `
		INSERT INTO chat_messages (session_id, sender_id, body, sent_at)
		SELECT id, $2, $3, $4
		FROM chat_sessions
		WHERE id = $1
		  AND closed_at IS NULL
		RETURNING id, session_id, sender_id, body, sent_at
	`, sessionID, senderID, body, at)
	return scanMessage(row)
}

func (r *PgRepository) ListMessages(ctx context.Context, sessionID uuid.UUID, after int64, limit int) ([]Message, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, session_id, sender_id, body, sent_at
		FROM chat_messages
		WHERE session_id = $1
		  AND id > $2
		ORDER BY id
		LIMIT $3
	`, sessionID, after, limit)
	if err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	defer rows.Close()

	result := []Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}
