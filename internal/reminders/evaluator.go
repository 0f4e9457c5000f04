package reminders

import (
	"fmt"
	"time"

	"github.com/quickagent/callminder/internal/appointments"
)

// EvaluatorConfig holds the timing windows for automatic reminder kinds.
type EvaluatorConfig struct {
	// DayBeforeLead is how far ahead of the appointment the day-before
	// reminder fires (default 24h).
	DayBeforeLead time.Duration
	// ThirtyMinLead is the lead time for the close-in reminder (default 30m).
	ThirtyMinLead time.Duration
	// Window is the width of each eligibility window. It must be at least
	// the scheduler poll interval: a narrower window lets appointments slip
	// between two ticks unreminded.
	Window time.Duration
	// ConfirmedSuppressesThirtyMin controls whether a confirmed appointment
	// still receives the thirty-minute reminder. Default false: confirmation
	// does not suppress the closer-in call.
	ConfirmedSuppressesThirtyMin bool
}

// Evaluator decides which reminder kinds are newly due for an appointment.
// It is a pure function of (now, appointment, already-initiated kinds).
type Evaluator struct {
	cfg EvaluatorConfig
}

// NewEvaluator validates the window configuration against the poll interval.
func NewEvaluator(cfg EvaluatorConfig, pollInterval time.Duration) (*Evaluator, error) {
	if cfg.DayBeforeLead <= 0 {
		cfg.DayBeforeLead = 24 * time.Hour
	}
	if cfg.ThirtyMinLead <= 0 {
		cfg.ThirtyMinLead = 30 * time.Minute
	}
	if cfg.Window <= 0 {
		cfg.Window = pollInterval
	}
	if cfg.Window < pollInterval {
		return nil, fmt.Errorf("reminders: evaluator window %s is narrower than poll interval %s", cfg.Window, pollInterval)
	}
	return &Evaluator{cfg: cfg}, nil
}

// Due returns the automatic reminder kinds now due for the appointment,
// excluding kinds already present in initiated.
func (e *Evaluator) Due(now time.Time, appt *appointments.Appointment, initiated map[Kind]bool) []Kind {
	if appt.Status == appointments.StatusCanceled {
		return nil
	}

	until := appt.At.Sub(now)
	if until <= 0 {
		return nil
	}

	var due []Kind
	if e.inWindow(until, e.cfg.DayBeforeLead) && !initiated[KindDayBefore] {
		due = append(due, KindDayBefore)
	}
	if e.inWindow(until, e.cfg.ThirtyMinLead) && !initiated[KindThirtyMinBefore] {
		if !(e.cfg.ConfirmedSuppressesThirtyMin && appt.Status == appointments.StatusConfirmed) {
			due = append(due, KindThirtyMinBefore)
		}
	}
	return due
}

// LookupHorizon is how far ahead the scheduler needs to fetch appointments
// for the evaluator to see every candidate.
func (e *Evaluator) LookupHorizon() time.Duration {
	return e.cfg.DayBeforeLead + 2*e.cfg.Window
}

// inWindow reports whether time-until-appointment falls in [lead, lead+window).
func (e *Evaluator) inWindow(until, lead time.Duration) bool {
	return until >= lead && until < lead+e.cfg.Window
}
