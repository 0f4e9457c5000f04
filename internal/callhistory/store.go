// Package callhistory persists finished call and message sessions for the
// dashboard and auditing.
package callhistory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/quickagent/callminder/internal/callflow"
)

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Summary is one archived session as shown on the dashboard.
type Summary struct {
	SessionID     string          `json:"session_id"`
	Direction     string          `json:"direction"`
	Channel       string          `json:"channel"`
	AppointmentID *uuid.UUID      `json:"appointment_id,omitempty"`
	ReminderKind  string          `json:"reminder_kind,omitempty"`
	CallerPhone   string          `json:"caller_phone,omitempty"`
	FinalAction   string          `json:"final_action"`
	Transcript    []callflow.Turn `json:"transcript,omitempty"`
	StartedAt     time.Time       `json:"started_at"`
	EndedAt       *time.Time      `json:"ended_at,omitempty"`
}

// Store writes and reads archived sessions.
type Store struct {
	db DB
}

func NewStore(db DB) *Store {
	return &Store{db: db}
}

// Archive persists a terminated session. Re-archiving the same session id
// overwrites the previous row, so replayed hangup events stay idempotent.
func (s *Store) Archive(ctx context.Context, sess *callflow.Session) error {
	transcript, err := json.Marshal(sess.Turns)
	if err != nil {
		return fmt.Errorf("callhistory: archive: marshal transcript: %w", err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO call_sessions (session_id, direction, channel, appointment_id, reminder_kind, caller_phone, final_action, transcript, started_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (session_id) DO UPDATE SET
			final_action = EXCLUDED.final_action,
			transcript = EXCLUDED.transcript,
			ended_at = EXCLUDED.ended_at`,
		sess.ID, string(sess.Direction), string(sess.Channel), sess.AppointmentID,
		sess.ReminderKind, sess.CallerPhone, string(sess.FinalAction),
		transcript, sess.StartedAt, sess.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("callhistory: archive: %w", err)
	}
	return nil
}

// ListRecent returns the most recently started sessions, newest first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `
		SELECT session_id, direction, channel, appointment_id, reminder_kind, caller_phone, final_action, transcript, started_at, ended_at
		FROM call_sessions
		ORDER BY started_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("callhistory: list recent: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sum Summary
		var transcript []byte
		err := rows.Scan(
			&sum.SessionID, &sum.Direction, &sum.Channel, &sum.AppointmentID,
			&sum.ReminderKind, &sum.CallerPhone, &sum.FinalAction,
			&transcript, &sum.StartedAt, &sum.EndedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("callhistory: list recent: scan: %w", err)
		}
		if len(transcript) > 0 {
			if err := json.Unmarshal(transcript, &sum.Transcript); err != nil {
				return nil, fmt.Errorf("callhistory: list recent: transcript: %w", err)
			}
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// CountByOutcome returns archived session counts grouped by final action.
func (s *Store) CountByOutcome(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.Query(ctx, `
		SELECT final_action, COUNT(*)
		FROM call_sessions
		GROUP BY final_action`)
	if err != nil {
		return nil, fmt.Errorf("callhistory: count by outcome: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var action string
		var n int64
		if err := rows.Scan(&action, &n); err != nil {
			return nil, fmt.Errorf("callhistory: count by outcome: scan: %w", err)
		}
		out[action] = n
	}
	return out, rows.Err()
}
