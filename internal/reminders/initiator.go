package reminders

import (
	"context"
	"fmt"
	"time"

	"github.com/quickagent/callminder/internal/appointments"
	"github.com/quickagent/callminder/internal/callflow"
	"github.com/quickagent/callminder/internal/telephony"
	"github.com/quickagent/callminder/pkg/logging"
)

// sessionRegistrar pre-registers the call session so the answer webhook can
// resume it. Satisfied by callflow.SessionStore.
type sessionRegistrar interface {
	Save(ctx context.Context, sess *callflow.Session) error
}

// Initiator places reminder calls. It validates the callee number, builds the
// greeting script, asks the gateway for the call, and registers the session
// before any webhook for it can arrive.
type Initiator struct {
	gateway  telephony.Gateway
	sessions sessionRegistrar
	from     string
	logger   *logging.Logger
}

func NewInitiator(gateway telephony.Gateway, sessions sessionRegistrar, from string, logger *logging.Logger) (*Initiator, error) {
	if gateway == nil {
		return nil, fmt.Errorf("reminders: initiator: gateway is required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("reminders: initiator: session registrar is required")
	}
	if !telephony.ValidE164(telephony.NormalizeE164(from)) {
		return nil, fmt.Errorf("reminders: initiator: invalid from number")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Initiator{
		gateway:  gateway,
		sessions: sessions,
		from:     telephony.NormalizeE164(from),
		logger:   logger,
	}, nil
}

// Dispatch places one reminder call and returns the gateway session id.
// A missing or malformed phone number returns a DispatchError before any
// gateway traffic; gateway failures wrap ErrGatewayUnavailable.
func (i *Initiator) Dispatch(ctx context.Context, appt *appointments.Appointment, kind Kind) (string, error) {
	to := telephony.NormalizeE164(appt.PhoneNumber)
	if to == "" {
		return "", &DispatchError{Reason: fmt.Sprintf("appointment %s has no phone number", appt.ID)}
	}
	if !telephony.ValidE164(to) {
		return "", &DispatchError{Reason: fmt.Sprintf("appointment %s has malformed phone number", appt.ID)}
	}

	state, err := telephony.EncodeClientState(telephony.ClientState{
		AppointmentID: appt.ID.String(),
		Kind:          string(kind),
	})
	if err != nil {
		return "", fmt.Errorf("reminders: dispatch: encode client state: %w", err)
	}

	greeting := BuildGreeting(appt, kind)

	sessionID, err := i.gateway.OriginateCall(ctx, telephony.OriginateRequest{
		From:        i.from,
		To:          to,
		ClientState: state,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	apptID := appt.ID
	sess := &callflow.Session{
		ID:            sessionID,
		Direction:     callflow.DirectionOutbound,
		Channel:       callflow.ChannelVoice,
		AppointmentID: &apptID,
		ReminderKind:  string(kind),
		Greeting:      greeting,
		CallerPhone:   to,
		State:         callflow.StateIdle,
		StartedAt:     time.Now().UTC(),
	}
	if err := i.sessions.Save(ctx, sess); err != nil {
		// The call is already in flight; the webhook handler will rebuild
		// an unlinked session from the echoed client state if this is lost.
		i.logger.Error("failed to pre-register call session",
			"session_id", sessionID, "appointment_id", appt.ID, "error", err)
	}

	i.logger.Info("reminder call dispatched",
		"appointment_id", appt.ID,
		"kind", string(kind),
		"session_id", sessionID,
		"to", telephony.MaskPhone(to))
	return sessionID, nil
}
