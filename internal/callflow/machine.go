package callflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/quickagent/callminder/internal/appointments"
	"github.com/quickagent/callminder/internal/observability/metrics"
	"github.com/quickagent/callminder/internal/telephony"
	"github.com/quickagent/callminder/pkg/logging"
)

// AppointmentWriter is the slice of the appointment store the machine needs
// to act on a caller's decision.
type AppointmentWriter interface {
	Get(ctx context.Context, id uuid.UUID) (*appointments.Appointment, error)
	SetStatus(ctx context.Context, id uuid.UUID, status appointments.Status) error
	FlagFollowUp(ctx context.Context, id uuid.UUID, reason string) error
}

// Archiver receives terminated sessions for durable call history.
type Archiver interface {
	Archive(ctx context.Context, sess *Session) error
}

// MachineConfig tunes call interaction behavior.
type MachineConfig struct {
	// InputTimeoutSecs bounds each gather before the gateway reports a
	// timeout event.
	InputTimeoutSecs int
	// MaxReprompts is how many unclear or absent inputs are retried before
	// the call is handed off or ended.
	MaxReprompts int
	// TransferNumber, when set, receives callers the machine gives up on.
	// When empty those calls end as no-input instead.
	TransferNumber string
}

const (
	promptMenu = "Press 1 or say yes to confirm, press 2 to reschedule, or press 3 to cancel."

	repromptLine      = "Sorry, I didn't catch that. " + promptMenu
	confirmedLine     = "Great, your appointment is confirmed. We'll see you then. Goodbye."
	rescheduleLine    = "No problem. Someone from our office will call you shortly to find a new time. Goodbye."
	canceledLine      = "Your appointment has been canceled. We hope to see you another time. Goodbye."
	transferLine      = "Let me connect you with our front desk."
	noInputLine       = "We didn't receive a response. We'll try to reach you another way. Goodbye."
	inboundGreeting   = "Hello, you've reached our appointment line. Are you calling to confirm, reschedule, or cancel an appointment?"
	fallbackGreeting  = "Hello, this is a reminder about your upcoming appointment. " + promptMenu
	msgRepromptLine   = "Sorry, I didn't understand that. Reply 1 to confirm, 2 to reschedule, or 3 to cancel."
	msgNoResponseLine = "We couldn't process your request. Please call our office directly."
)

// Machine drives call sessions through their lifecycle. Each webhook event
// is one step: load the session, apply the event, persist the session, and
// return the instructions the gateway should execute next.
type Machine struct {
	sessions *SessionStore
	appts    AppointmentWriter
	interp   Interpreter
	archive  Archiver
	cfg      MachineConfig
	logger   *logging.Logger
	metrics  *metrics.CallMetrics
}

func NewMachine(sessions *SessionStore, appts AppointmentWriter, interp Interpreter, archive Archiver, cfg MachineConfig, logger *logging.Logger, m *metrics.CallMetrics) (*Machine, error) {
	if sessions == nil {
		return nil, fmt.Errorf("callflow: machine: session store is required")
	}
	if interp == nil {
		return nil, fmt.Errorf("callflow: machine: interpreter is required")
	}
	if cfg.InputTimeoutSecs <= 0 {
		cfg.InputTimeoutSecs = 5
	}
	if cfg.MaxReprompts <= 0 {
		cfg.MaxReprompts = 3
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Machine{
		sessions: sessions,
		appts:    appts,
		interp:   interp,
		archive:  archive,
		cfg:      cfg,
		logger:   logger,
		metrics:  m,
	}, nil
}

// HandleEvent applies one gateway event to its session and returns the
// instructions for the gateway. Events for ended sessions are replays and
// produce no instructions and no side effects, except a new inbound message
// on an ended thread, which starts over.
func (m *Machine) HandleEvent(ctx context.Context, ev *telephony.Event) ([]telephony.Instruction, error) {
	m.metrics.IncEvent(ev.EventType)

	sess, err := m.sessions.Get(ctx, ev.SessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		sess = m.newSessionFor(ev)
		if sess == nil {
			// An event for a session we never created and cannot start
			// (e.g. a stray timeout). Acknowledge and move on.
			m.logger.Warn("event for unknown session",
				"session_id", ev.SessionID, "event_type", ev.EventType)
			return nil, nil
		}
	}

	if sess.State == StateEnded {
		// Ended sessions only see replayed deliveries, with one exception:
		// message threads reuse the caller's number as their session key, so
		// a new text after a resolved thread opens a fresh exchange.
		if sess.Channel == ChannelMessage && ev.EventType == telephony.EventMessageIn {
			sess = m.newSessionFor(ev)
		} else {
			return nil, nil
		}
	}

	instrs, err := m.step(ctx, sess, ev)
	if err != nil {
		return nil, err
	}

	if err := m.sessions.Save(ctx, sess); err != nil {
		return nil, err
	}
	return instrs, nil
}

// newSessionFor starts a session for events that legitimately open one.
func (m *Machine) newSessionFor(ev *telephony.Event) *Session {
	now := time.Now().UTC()
	switch ev.EventType {
	case telephony.EventCallInitiated, telephony.EventCallAnswered:
		dir := DirectionInbound
		if ev.Direction == "outbound" {
			dir = DirectionOutbound
		}
		sess := &Session{
			ID:          ev.SessionID,
			Direction:   dir,
			Channel:     ChannelVoice,
			CallerPhone: ev.From,
			State:       StateIdle,
			StartedAt:   now,
		}
		// Outbound calls echo the appointment link in client state; use it
		// to relink when the pre-registered session record was lost.
		if ev.ClientState != "" {
			if cs, err := telephony.DecodeClientState(ev.ClientState); err == nil {
				if id, err := uuid.Parse(cs.AppointmentID); err == nil {
					sess.Direction = DirectionOutbound
					sess.AppointmentID = &id
					sess.ReminderKind = cs.Kind
				}
			}
		}
		return sess
	case telephony.EventMessageIn:
		return &Session{
			ID:          ev.SessionID,
			Direction:   DirectionInbound,
			Channel:     ChannelMessage,
			CallerPhone: ev.From,
			State:       StateIdle,
			StartedAt:   now,
		}
	}
	return nil
}

func (m *Machine) step(ctx context.Context, sess *Session, ev *telephony.Event) ([]telephony.Instruction, error) {
	switch ev.EventType {
	case telephony.EventCallInitiated:
		// Outbound legs report initiated before answered; nothing to do yet.
		// Inbound calls are greeted on this event.
		if sess.Direction == DirectionInbound {
			return m.greet(sess)
		}
		return nil, nil

	case telephony.EventCallAnswered:
		return m.greet(sess)

	case telephony.EventDTMFReceived:
		if !sess.State.AcceptsInput() {
			return nil, nil
		}
		sess.AddTurn("caller", "pressed "+ev.Digit)
		return m.handleDigit(ctx, sess, ev.Digit)

	case telephony.EventSpeechGathered:
		if !sess.State.AcceptsInput() {
			return nil, nil
		}
		sess.AddTurn("caller", ev.Transcript)
		return m.handleUtterance(ctx, sess, ev.Transcript)

	case telephony.EventMessageIn:
		if !sess.State.AcceptsInput() {
			return nil, nil
		}
		sess.AddTurn("caller", ev.Text)
		if instrs, handled, err := m.tryDigitText(ctx, sess, ev.Text); handled {
			return instrs, err
		}
		return m.handleUtterance(ctx, sess, ev.Text)

	case telephony.EventGatherTimeout:
		if !sess.State.AcceptsInput() {
			return nil, nil
		}
		return m.reprompt(ctx, sess, repromptLine)

	case telephony.EventCallHangup:
		return nil, m.handleHangup(ctx, sess)
	}

	m.logger.Warn("unhandled event type", "event_type", ev.EventType, "session_id", sess.ID)
	return nil, nil
}

func (m *Machine) greet(sess *Session) ([]telephony.Instruction, error) {
	greeting := sess.Greeting
	if greeting == "" {
		if sess.Direction == DirectionInbound {
			greeting = inboundGreeting
		} else {
			greeting = fallbackGreeting
		}
	}
	m.setState(sess, StateGreeting)
	sess.AddTurn("assistant", greeting)
	return []telephony.Instruction{
		telephony.Speak(greeting),
		telephony.Gather(m.cfg.InputTimeoutSecs),
	}, nil
}

// handleDigit maps the keypad menu. Digits outside the menu count as unclear
// input.
func (m *Machine) handleDigit(ctx context.Context, sess *Session, digit string) ([]telephony.Instruction, error) {
	switch digit {
	case "1":
		return m.resolve(ctx, sess, IntentConfirm, "")
	case "2":
		return m.resolve(ctx, sess, IntentReschedule, "")
	case "3":
		return m.resolve(ctx, sess, IntentCancel, "")
	}
	return m.reprompt(ctx, sess, repromptLine)
}

// tryDigitText lets message-channel users reply "1", "2", or "3" without
// going through interpretation.
func (m *Machine) tryDigitText(ctx context.Context, sess *Session, text string) ([]telephony.Instruction, bool, error) {
	switch text {
	case "1", "2", "3":
		instrs, err := m.handleDigit(ctx, sess, text)
		return instrs, true, err
	}
	return nil, false, nil
}

func (m *Machine) handleUtterance(ctx context.Context, sess *Session, transcript string) ([]telephony.Instruction, error) {
	m.setState(sess, StateInterpreting)

	started := time.Now()
	result, err := m.interp.Interpret(ctx, transcript, m.interpretContext(ctx, sess))
	m.metrics.ObserveInterpret(time.Since(started))
	if err != nil {
		// Interpretation failures are recoverable: treat as unclear and
		// keep the caller in the loop.
		m.logger.Warn("interpretation failed", "session_id", sess.ID, "error", err)
		result = Interpretation{Intent: IntentUnclear}
	}

	if result.Intent == IntentUnclear {
		line := repromptLine
		if sess.Channel == ChannelMessage {
			line = msgRepromptLine
		}
		if result.Reply != "" {
			line = result.Reply
		}
		return m.reprompt(ctx, sess, line)
	}
	return m.resolve(ctx, sess, result.Intent, result.Reply)
}

// interpretContext assembles call facts for the interpreter. Lookup failures
// degrade to an empty context rather than failing the event.
func (m *Machine) interpretContext(ctx context.Context, sess *Session) InterpretContext {
	ic := InterpretContext{
		ReminderKind: sess.ReminderKind,
		Direction:    sess.Direction,
	}
	if sess.AppointmentID == nil || m.appts == nil {
		return ic
	}
	appt, err := m.appts.Get(ctx, *sess.AppointmentID)
	if err != nil {
		m.logger.Warn("appointment lookup for interpretation failed",
			"session_id", sess.ID, "error", err)
		return ic
	}
	ic.ClientName = appt.FirstName()
	ic.AppointmentTime = appt.At.Format("Monday, January 2 at 3:04 PM")
	return ic
}

// reprompt re-asks the menu, or gives up once the caller has exhausted
// MaxReprompts.
func (m *Machine) reprompt(ctx context.Context, sess *Session, line string) ([]telephony.Instruction, error) {
	sess.Reprompts++
	if sess.Reprompts > m.cfg.MaxReprompts {
		return m.giveUp(ctx, sess)
	}

	m.setState(sess, StateAwaitingInput)
	sess.AddTurn("assistant", line)
	if sess.Channel == ChannelMessage {
		return []telephony.Instruction{telephony.Message(line)}, nil
	}
	return []telephony.Instruction{
		telephony.Speak(line),
		telephony.Gather(m.cfg.InputTimeoutSecs),
	}, nil
}

// giveUp ends the interaction after too many unusable inputs: hand the caller
// to a human when a transfer number is configured, otherwise end as no-input.
func (m *Machine) giveUp(ctx context.Context, sess *Session) ([]telephony.Instruction, error) {
	if sess.Channel == ChannelVoice && m.cfg.TransferNumber != "" {
		m.setState(sess, StateTransferred)
		m.finish(ctx, sess, FinalTransferred)
		sess.AddTurn("assistant", transferLine)
		return []telephony.Instruction{
			telephony.Speak(transferLine),
			telephony.Transfer(m.cfg.TransferNumber),
		}, nil
	}

	m.setState(sess, StateNoInput)
	m.finish(ctx, sess, FinalNoInput)
	if sess.Channel == ChannelMessage {
		sess.AddTurn("assistant", msgNoResponseLine)
		return []telephony.Instruction{telephony.Message(msgNoResponseLine)}, nil
	}
	sess.AddTurn("assistant", noInputLine)
	return []telephony.Instruction{
		telephony.Speak(noInputLine),
		telephony.Hangup(),
	}, nil
}

// resolve acts on a decided intent: update the appointment, close out the
// session, and script the goodbye.
func (m *Machine) resolve(ctx context.Context, sess *Session, intent Intent, reply string) ([]telephony.Instruction, error) {
	var (
		state State
		final FinalAction
		line  string
	)
	switch intent {
	case IntentConfirm:
		state, final, line = StateConfirmed, FinalConfirmed, confirmedLine
	case IntentReschedule:
		state, final, line = StateRescheduleRequested, FinalRescheduleRequested, rescheduleLine
	case IntentCancel:
		state, final, line = StateCancelRequested, FinalCancelRequested, canceledLine
	default:
		return nil, fmt.Errorf("callflow: machine: cannot resolve intent %q", intent)
	}

	if err := m.applyDecision(ctx, sess, intent); err != nil {
		return nil, err
	}

	m.setState(sess, state)
	m.finish(ctx, sess, final)

	if reply != "" {
		line = reply
	}
	sess.AddTurn("assistant", line)
	if sess.Channel == ChannelMessage {
		return []telephony.Instruction{telephony.Message(line)}, nil
	}
	return []telephony.Instruction{
		telephony.Speak(line),
		telephony.Hangup(),
	}, nil
}

// applyDecision mutates the appointment at most once per session. An error
// here fails the event so the gateway redelivers it; StatusApplied stays
// false and the retry repeats the mutation attempt.
func (m *Machine) applyDecision(ctx context.Context, sess *Session, intent Intent) error {
	if sess.AppointmentID == nil || sess.StatusApplied || m.appts == nil {
		return nil
	}
	id := *sess.AppointmentID

	var err error
	switch intent {
	case IntentConfirm:
		err = m.appts.SetStatus(ctx, id, appointments.StatusConfirmed)
	case IntentCancel:
		err = m.appts.SetStatus(ctx, id, appointments.StatusCanceled)
	case IntentReschedule:
		// A reschedule keeps the current booking until staff follow up.
		err = m.appts.FlagFollowUp(ctx, id, "caller requested reschedule during reminder call")
	}
	if err != nil {
		return fmt.Errorf("callflow: machine: apply %s: %w", intent, err)
	}
	sess.StatusApplied = true
	return nil
}

// handleHangup terminates the session from any state. A hangup never mutates
// the appointment: a caller who hung up before deciding has decided nothing.
func (m *Machine) handleHangup(ctx context.Context, sess *Session) error {
	if sess.FinalAction == "" {
		sess.FinalAction = FinalHangup
	}
	m.setState(sess, StateEnded)
	now := time.Now().UTC()
	if sess.EndedAt == nil {
		sess.EndedAt = &now
	}
	m.metrics.IncOutcome(string(sess.FinalAction))

	if m.archive != nil {
		if err := m.archive.Archive(ctx, sess); err != nil {
			// History is best effort; the call outcome already stands.
			m.logger.Error("session archive failed", "session_id", sess.ID, "error", err)
		}
	}
	return nil
}

// finish marks the resolution. Voice sessions stay in their resolution state
// until the hangup event lands; message threads have no hangup event and
// close immediately.
func (m *Machine) finish(ctx context.Context, sess *Session, final FinalAction) {
	sess.FinalAction = final
	now := time.Now().UTC()
	sess.EndedAt = &now
	if sess.Channel == ChannelMessage {
		m.setState(sess, StateEnded)
		m.metrics.IncOutcome(string(final))
		if m.archive != nil {
			if err := m.archive.Archive(ctx, sess); err != nil {
				m.logger.Error("session archive failed", "session_id", sess.ID, "error", err)
			}
		}
	}
}

func (m *Machine) setState(sess *Session, to State) {
	if sess.State == to {
		return
	}
	m.metrics.IncTransition(string(sess.State), string(to))
	sess.State = to
}
