package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when no appointment exists for the given id.
var ErrNotFound = errors.New("appointments: not found")

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store provides CRUD operations for appointments.
type Store struct {
	db DB
}

// NewStore creates a new appointment store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

const appointmentColumns = `id, name, phone_number, appointment_at, status, notes, follow_up_needed, follow_up_reason, created_at, updated_at`

// Create inserts a new appointment.
func (s *Store) Create(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	if a.Status == "" {
		a.Status = StatusScheduled
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO appointments (id, name, phone_number, appointment_at, status, notes, follow_up_needed, follow_up_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		a.ID, a.Name, a.PhoneNumber, a.At, string(a.Status), a.Notes,
		a.FollowUpNeeded, a.FollowUpReason, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("appointments: create: %w", err)
	}
	return nil
}

// Get returns a single appointment by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1`, id)
	a, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("appointments: get: %w", err)
	}
	return a, nil
}

// List returns appointments, newest first, optionally filtered by a name substring.
func (s *Store) List(ctx context.Context, nameFilter string, limit int) ([]Appointment, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows pgx.Rows
	var err error
	if nameFilter != "" {
		rows, err = s.db.Query(ctx, `
			SELECT `+appointmentColumns+`
			FROM appointments
			WHERE name ILIKE '%' || $1 || '%'
			ORDER BY appointment_at DESC LIMIT $2`, nameFilter, limit)
	} else {
		rows, err = s.db.Query(ctx, `
			SELECT `+appointmentColumns+`
			FROM appointments
			ORDER BY appointment_at DESC LIMIT $1`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("appointments: list: %w", err)
	}
	defer rows.Close()
	return scanAppointments(rows)
}

// ListUpcoming returns non-canceled appointments scheduled between asOf and
// asOf+horizon, soonest first. The horizon bounds the scheduler's working set.
func (s *Store) ListUpcoming(ctx context.Context, asOf time.Time, horizon time.Duration) ([]Appointment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE appointment_at > $1 AND appointment_at <= $2 AND status <> 'canceled'
		ORDER BY appointment_at ASC`, asOf, asOf.Add(horizon))
	if err != nil {
		return nil, fmt.Errorf("appointments: list upcoming: %w", err)
	}
	defer rows.Close()
	return scanAppointments(rows)
}

// SetStatus updates the appointment status.
func (s *Store) SetStatus(ctx context.Context, id uuid.UUID, status Status) error {
	if !status.Valid() {
		return fmt.Errorf("appointments: set status: invalid status %q", status)
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE appointments SET status = $1, updated_at = $2
		WHERE id = $3`, string(status), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("appointments: set status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// FlagFollowUp marks an appointment for human follow-up without changing its
// status. Used when a caller asks to reschedule; no calendar negotiation
// happens automatically.
func (s *Store) FlagFollowUp(ctx context.Context, id uuid.UUID, reason string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE appointments SET follow_up_needed = TRUE, follow_up_reason = $1, updated_at = $2
		WHERE id = $3`, reason, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("appointments: flag follow-up: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CountByTimeframe returns how many appointments fall before and after asOf.
func (s *Store) CountByTimeframe(ctx context.Context, asOf time.Time) (upcoming, past int64, err error) {
	row := s.db.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE appointment_at >= $1) AS upcoming,
			COUNT(*) FILTER (WHERE appointment_at < $1) AS past
		FROM appointments`, asOf)
	if err := row.Scan(&upcoming, &past); err != nil {
		return 0, 0, fmt.Errorf("appointments: count: %w", err)
	}
	return upcoming, past, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var status string
	err := row.Scan(
		&a.ID, &a.Name, &a.PhoneNumber, &a.At, &status, &a.Notes,
		&a.FollowUpNeeded, &a.FollowUpReason, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Status = Status(status)
	return &a, nil
}

func scanAppointments(rows pgx.Rows) ([]Appointment, error) {
	var result []Appointment
	for rows.Next() {
		var a Appointment
		var status string
		err := rows.Scan(
			&a.ID, &a.Name, &a.PhoneNumber, &a.At, &status, &a.Notes,
			&a.FollowUpNeeded, &a.FollowUpReason, &a.CreatedAt, &a.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("appointments: scan: %w", err)
		}
		a.Status = Status(status)
		result = append(result, a)
	}
	return result, rows.Err()
}
