package reminders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Outcome records how a dispatch attempt concluded.
type Outcome string

const (
	// OutcomeInitiated means the call request was handed to the gateway (or
	// is about to be; the record is written before dispatch).
	OutcomeInitiated Outcome = "initiated"
	// OutcomeFailed means the gateway rejected the dispatch synchronously.
	// Failed attempts do not block a retry on a later tick.
	OutcomeFailed Outcome = "failed"
)

// Record is one dispatch attempt for an (appointment, kind) pair.
type Record struct {
	ID            uuid.UUID `json:"id"`
	AppointmentID uuid.UUID `json:"appointment_id"`
	Kind          Kind      `json:"kind"`
	Outcome       Outcome   `json:"outcome"`
	SentAt        time.Time `json:"sent_at"`
}

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Ledger is the durable record of which reminders have been dispatched,
// and the de-duplication authority. A partial unique index on
// (appointment_id, kind) WHERE outcome = 'initiated' makes RecordAttempt
// atomic: no check-then-act race, and restarts cannot double-send.
type Ledger struct {
	db DB
}

// NewLedger creates a reminder ledger.
func NewLedger(db DB) *Ledger {
	return &Ledger{db: db}
}

// RecordAttempt atomically inserts an initiated record for the pair.
// Returns ErrAlreadyRecorded when an initiated record already exists.
func (l *Ledger) RecordAttempt(ctx context.Context, appointmentID uuid.UUID, kind Kind) (uuid.UUID, error) {
	id := uuid.New()
	row := l.db.QueryRow(ctx, `
		INSERT INTO reminder_records (id, appointment_id, kind, outcome, sent_at)
		VALUES ($1, $2, $3, 'initiated', $4)
		ON CONFLICT (appointment_id, kind) WHERE outcome = 'initiated' DO NOTHING
		RETURNING id`,
		id, appointmentID, string(kind), time.Now().UTC())

	var returned uuid.UUID
	if err := row.Scan(&returned); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, ErrAlreadyRecorded
		}
		return uuid.Nil, fmt.Errorf("reminders: record attempt: %w", err)
	}
	return returned, nil
}

// MarkOutcome updates the outcome of an existing record.
func (l *Ledger) MarkOutcome(ctx context.Context, recordID uuid.UUID, outcome Outcome) error {
	tag, err := l.db.Exec(ctx, `
		UPDATE reminder_records SET outcome = $1
		WHERE id = $2`, string(outcome), recordID)
	if err != nil {
		return fmt.Errorf("reminders: mark outcome: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("reminders: mark outcome: no record with id %s", recordID)
	}
	return nil
}

// HasInitiated reports whether an initiated record exists for the pair.
func (l *Ledger) HasInitiated(ctx context.Context, appointmentID uuid.UUID, kind Kind) (bool, error) {
	var exists int
	err := l.db.QueryRow(ctx, `
		SELECT 1 FROM reminder_records
		WHERE appointment_id = $1 AND kind = $2 AND outcome = 'initiated'`,
		appointmentID, string(kind)).Scan(&exists)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("reminders: has initiated: %w", err)
	}
	return true, nil
}

// InitiatedKinds returns the set of kinds already initiated for an appointment.
func (l *Ledger) InitiatedKinds(ctx context.Context, appointmentID uuid.UUID) (map[Kind]bool, error) {
	rows, err := l.db.Query(ctx, `
		SELECT kind FROM reminder_records
		WHERE appointment_id = $1 AND outcome = 'initiated'`, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("reminders: initiated kinds: %w", err)
	}
	defer rows.Close()

	out := make(map[Kind]bool)
	for rows.Next() {
		var kind string
		if err := rows.Scan(&kind); err != nil {
			return nil, fmt.Errorf("reminders: initiated kinds: scan: %w", err)
		}
		out[Kind(kind)] = true
	}
	return out, rows.Err()
}

// CountFailed returns how many failed attempts exist for the pair. The
// scheduler uses this to bound retries after transient gateway failures.
func (l *Ledger) CountFailed(ctx context.Context, appointmentID uuid.UUID, kind Kind) (int, error) {
	var n int
	err := l.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM reminder_records
		WHERE appointment_id = $1 AND kind = $2 AND outcome = 'failed'`,
		appointmentID, string(kind)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("reminders: count failed: %w", err)
	}
	return n, nil
}
