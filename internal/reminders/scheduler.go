package reminders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/quickagent/callminder/internal/appointments"
	"github.com/quickagent/callminder/internal/observability/metrics"
	"github.com/quickagent/callminder/pkg/logging"
)

// AppointmentSource is the slice of the appointment store the scheduler reads.
type AppointmentSource interface {
	ListUpcoming(ctx context.Context, asOf time.Time, horizon time.Duration) ([]appointments.Appointment, error)
}

// LedgerAPI is the dedup authority the scheduler consults and writes.
// Satisfied by *Ledger.
type LedgerAPI interface {
	RecordAttempt(ctx context.Context, appointmentID uuid.UUID, kind Kind) (uuid.UUID, error)
	MarkOutcome(ctx context.Context, recordID uuid.UUID, outcome Outcome) error
	InitiatedKinds(ctx context.Context, appointmentID uuid.UUID) (map[Kind]bool, error)
	CountFailed(ctx context.Context, appointmentID uuid.UUID, kind Kind) (int, error)
}

// Dispatcher places one reminder call. Satisfied by *Initiator.
type Dispatcher interface {
	Dispatch(ctx context.Context, appt *appointments.Appointment, kind Kind) (string, error)
}

// SchedulerConfig tunes the reminder loop.
type SchedulerConfig struct {
	// PollInterval is the time between ticks (default 15m).
	PollInterval time.Duration
	// MaxDispatchAttempts caps retries for a pair that keeps failing at the
	// gateway. Once reached the pair is left for operator attention.
	MaxDispatchAttempts int
}

// Scheduler drives the reminder loop: every tick it fetches upcoming
// appointments, asks the evaluator which reminders are due, records each
// attempt in the ledger, and dispatches the call. Recording happens before
// dispatch: a crash between the two loses at most one call and never sends
// a duplicate.
type Scheduler struct {
	appts      AppointmentSource
	ledger     LedgerAPI
	evaluator  *Evaluator
	dispatcher Dispatcher
	cfg        SchedulerConfig
	logger     *logging.Logger
	metrics    *metrics.ReminderMetrics
}

func NewScheduler(appts AppointmentSource, ledger LedgerAPI, evaluator *Evaluator, dispatcher Dispatcher, cfg SchedulerConfig, logger *logging.Logger, m *metrics.ReminderMetrics) (*Scheduler, error) {
	if appts == nil || ledger == nil || evaluator == nil || dispatcher == nil {
		return nil, fmt.Errorf("reminders: scheduler: all collaborators are required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 15 * time.Minute
	}
	if cfg.MaxDispatchAttempts <= 0 {
		cfg.MaxDispatchAttempts = 3
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Scheduler{
		appts:      appts,
		ledger:     ledger,
		evaluator:  evaluator,
		dispatcher: dispatcher,
		cfg:        cfg,
		logger:     logger,
		metrics:    m,
	}, nil
}

// Run ticks immediately, then on every poll interval until ctx is canceled.
// A tick in progress finishes before Run returns; work is never cut off
// mid-appointment.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("reminder scheduler started", "poll_interval", s.cfg.PollInterval.String())

	// Ticks run on a detached context: cancellation stops scheduling new
	// ticks, but the tick in flight keeps its store and gateway calls alive
	// until it completes.
	tickCtx := context.WithoutCancel(ctx)
	s.tick(tickCtx)

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("reminder scheduler stopped")
			return
		case <-ticker.C:
			s.tick(tickCtx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	started := time.Now()
	if err := s.RunTick(ctx, started.UTC()); err != nil {
		s.logger.Error("scheduler tick finished with errors", "error", err)
	}
	s.metrics.ObserveTick(time.Since(started))
}

// RunTick processes one pass over upcoming appointments. Failures are
// isolated per appointment: one bad record never blocks the rest of the
// batch. The combined error is returned for logging.
func (s *Scheduler) RunTick(ctx context.Context, now time.Time) error {
	upcoming, err := s.appts.ListUpcoming(ctx, now, s.evaluator.LookupHorizon())
	if err != nil {
		return fmt.Errorf("reminders: tick: list upcoming: %w", err)
	}

	var errs []error
	for i := range upcoming {
		appt := &upcoming[i]
		if err := s.processAppointment(ctx, now, appt); err != nil {
			errs = append(errs, fmt.Errorf("appointment %s: %w", appt.ID, err))
			continue
		}
	}
	return errors.Join(errs...)
}

func (s *Scheduler) processAppointment(ctx context.Context, now time.Time, appt *appointments.Appointment) error {
	initiated, err := s.ledger.InitiatedKinds(ctx, appt.ID)
	if err != nil {
		return err
	}

	var errs []error
	for _, kind := range s.evaluator.Due(now, appt, initiated) {
		if err := s.dispatchOne(ctx, appt, kind); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Scheduler) dispatchOne(ctx context.Context, appt *appointments.Appointment, kind Kind) error {
	failed, err := s.ledger.CountFailed(ctx, appt.ID, kind)
	if err != nil {
		return err
	}
	if failed >= s.cfg.MaxDispatchAttempts {
		s.logger.Warn("reminder retry budget exhausted",
			"appointment_id", appt.ID, "kind", string(kind), "failed_attempts", failed)
		return nil
	}

	recordID, err := s.ledger.RecordAttempt(ctx, appt.ID, kind)
	if err != nil {
		if errors.Is(err, ErrAlreadyRecorded) {
			s.metrics.IncDedupSkip(string(kind))
			return nil
		}
		return err
	}

	if _, err := s.dispatcher.Dispatch(ctx, appt, kind); err != nil {
		s.metrics.IncDispatchError(string(kind), dispatchErrorReason(err))
		if markErr := s.ledger.MarkOutcome(ctx, recordID, OutcomeFailed); markErr != nil {
			// The initiated record stands, which blocks retries. Safe
			// failure mode: we under-send rather than double-send.
			s.logger.Error("failed to mark dispatch failure",
				"record_id", recordID, "error", markErr)
		}
		if IsDispatchError(err) {
			s.logger.Error("reminder not dispatchable",
				"appointment_id", appt.ID, "kind", string(kind), "error", err)
			return nil
		}
		return err
	}

	s.metrics.IncDispatch(string(kind))
	return nil
}

func dispatchErrorReason(err error) string {
	switch {
	case IsDispatchError(err):
		return "bad_input"
	case errors.Is(err, ErrGatewayUnavailable):
		return "gateway"
	default:
		return "other"
	}
}
