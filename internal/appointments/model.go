package appointments

import (
	"time"

	"github.com/google/uuid"
)

// Status tracks the lifecycle of an appointment.
type Status string

const (
	StatusScheduled   Status = "scheduled"
	StatusConfirmed   Status = "confirmed"
	StatusRescheduled Status = "rescheduled"
	StatusCanceled    Status = "canceled"
)

// Valid reports whether s is a known appointment status.
func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusRescheduled, StatusCanceled:
		return true
	}
	return false
}

// Appointment is a scheduled visit owned by the appointment store.
// The reminder core references appointments but never manipulates rows
// directly; all mutation goes through Store.
type Appointment struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	PhoneNumber    string    `json:"phone_number,omitempty"`
	At             time.Time `json:"appointment_at"`
	Status         Status    `json:"status"`
	Notes          string    `json:"notes,omitempty"`
	FollowUpNeeded bool      `json:"follow_up_needed"`
	FollowUpReason string    `json:"follow_up_reason,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// FirstName returns the leading word of the client name for spoken scripts.
func (a *Appointment) FirstName() string {
	if a.Name == "" {
		return "there"
	}
	for i := 0; i < len(a.Name); i++ {
		if a.Name[i] == ' ' {
			return a.Name[:i]
		}
	}
	return a.Name
}
