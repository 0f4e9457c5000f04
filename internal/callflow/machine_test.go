package callflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quickagent/callminder/internal/appointments"
	"github.com/quickagent/callminder/internal/telephony"
)

type fakeAppointments struct {
	appt        *appointments.Appointment
	statuses    []appointments.Status
	followUps   []string
	setErr      error
	followUpErr error
}

func (f *fakeAppointments) Get(_ context.Context, _ uuid.UUID) (*appointments.Appointment, error) {
	if f.appt == nil {
		return nil, appointments.ErrNotFound
	}
	return f.appt, nil
}

func (f *fakeAppointments) SetStatus(_ context.Context, _ uuid.UUID, status appointments.Status) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.statuses = append(f.statuses, status)
	return nil
}

func (f *fakeAppointments) FlagFollowUp(_ context.Context, _ uuid.UUID, reason string) error {
	if f.followUpErr != nil {
		return f.followUpErr
	}
	f.followUps = append(f.followUps, reason)
	return nil
}

type fakeInterpreter struct {
	result Interpretation
	err    error
}

func (f *fakeInterpreter) Interpret(_ context.Context, _ string, _ InterpretContext) (Interpretation, error) {
	return f.result, f.err
}

type fakeArchiver struct {
	archived []*Session
}

func (f *fakeArchiver) Archive(_ context.Context, sess *Session) error {
	f.archived = append(f.archived, sess)
	return nil
}

type machineFixture struct {
	machine  *Machine
	sessions *SessionStore
	appts    *fakeAppointments
	interp   *fakeInterpreter
	archive  *fakeArchiver
	apptID   uuid.UUID
}

func newMachineFixture(t *testing.T, cfg MachineConfig) *machineFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	apptID := uuid.New()
	appts := &fakeAppointments{appt: &appointments.Appointment{
		ID:          apptID,
		Name:        "Dana Smith",
		PhoneNumber: "+15550001111",
		At:          time.Now().Add(24 * time.Hour),
		Status:      appointments.StatusScheduled,
	}}
	interp := &fakeInterpreter{result: Interpretation{Intent: IntentUnclear}}
	archive := &fakeArchiver{}
	sessions := NewSessionStore(rdb)

	m, err := NewMachine(sessions, appts, interp, archive, cfg, nil, nil)
	require.NoError(t, err)
	return &machineFixture{
		machine:  m,
		sessions: sessions,
		appts:    appts,
		interp:   interp,
		archive:  archive,
		apptID:   apptID,
	}
}

// seedOutboundSession registers a session the way the initiator does before
// any webhook arrives.
func (fx *machineFixture) seedOutboundSession(t *testing.T) {
	t.Helper()
	id := fx.apptID
	require.NoError(t, fx.sessions.Save(context.Background(), &Session{
		ID:            "sess-1",
		Direction:     DirectionOutbound,
		Channel:       ChannelVoice,
		AppointmentID: &id,
		ReminderKind:  "day_before",
		Greeting:      "Hello Dana, reminder call. Press 1 to confirm.",
		State:         StateIdle,
		StartedAt:     time.Now().UTC(),
	}))
}

func (fx *machineFixture) session(t *testing.T) *Session {
	t.Helper()
	sess, err := fx.sessions.Get(context.Background(), "sess-1")
	require.NoError(t, err)
	require.NotNil(t, sess)
	return sess
}

func answeredEvent() *telephony.Event {
	return &telephony.Event{ID: "ev-ans", EventType: telephony.EventCallAnswered, SessionID: "sess-1"}
}

func digitEvent(digit string) *telephony.Event {
	return &telephony.Event{ID: "ev-" + digit, EventType: telephony.EventDTMFReceived, SessionID: "sess-1", Digit: digit}
}

func hangupEvent() *telephony.Event {
	return &telephony.Event{ID: "ev-hup", EventType: telephony.EventCallHangup, SessionID: "sess-1"}
}

func TestAnsweredSpeaksGreetingAndGathers(t *testing.T) {
	fx := newMachineFixture(t, MachineConfig{})
	fx.seedOutboundSession(t)

	instrs, err := fx.machine.HandleEvent(context.Background(), answeredEvent())
	require.NoError(t, err)
	require.Len(t, instrs, 2)
	assert.Equal(t, "speak", instrs[0].Type)
	assert.Contains(t, instrs[0].Text, "Hello Dana")
	assert.Equal(t, "gather", instrs[1].Type)

	assert.Equal(t, StateGreeting, fx.session(t).State)
}

func TestPressOneConfirms(t *testing.T) {
	fx := newMachineFixture(t, MachineConfig{})
	fx.seedOutboundSession(t)

	_, err := fx.machine.HandleEvent(context.Background(), answeredEvent())
	require.NoError(t, err)

	instrs, err := fx.machine.HandleEvent(context.Background(), digitEvent("1"))
	require.NoError(t, err)
	require.Len(t, instrs, 2)
	assert.Equal(t, "speak", instrs[0].Type)
	assert.Equal(t, "hangup", instrs[1].Type)

	assert.Equal(t, []appointments.Status{appointments.StatusConfirmed}, fx.appts.statuses)
	sess := fx.session(t)
	assert.Equal(t, StateConfirmed, sess.State)
	assert.Equal(t, FinalConfirmed, sess.FinalAction)
	assert.True(t, sess.StatusApplied)
}

func TestPressTwoFlagsFollowUpWithoutStatusChange(t *testing.T) {
	fx := newMachineFixture(t, MachineConfig{})
	fx.seedOutboundSession(t)

	_, err := fx.machine.HandleEvent(context.Background(), answeredEvent())
	require.NoError(t, err)

	_, err = fx.machine.HandleEvent(context.Background(), digitEvent("2"))
	require.NoError(t, err)

	assert.Empty(t, fx.appts.statuses)
	assert.Len(t, fx.appts.followUps, 1)
	assert.Equal(t, StateRescheduleRequested, fx.session(t).State)
}

func TestPressThreeCancels(t *testing.T) {
	fx := newMachineFixture(t, MachineConfig{})
	fx.seedOutboundSession(t)

	_, err := fx.machine.HandleEvent(context.Background(), answeredEvent())
	require.NoError(t, err)

	_, err = fx.machine.HandleEvent(context.Background(), digitEvent("3"))
	require.NoError(t, err)

	assert.Equal(t, []appointments.Status{appointments.StatusCanceled}, fx.appts.statuses)
	assert.Equal(t, StateCancelRequested, fx.session(t).State)
}

// Barge-in: a digit during the greeting resolves without waiting for a
// gather-timeout round trip.
func TestDigitDuringGreetingIsAccepted(t *testing.T) {
	fx := newMachineFixture(t, MachineConfig{})
	fx.seedOutboundSession(t)

	_, err := fx.machine.HandleEvent(context.Background(), answeredEvent())
	require.NoError(t, err)
	require.Equal(t, StateGreeting, fx.session(t).State)

	_, err = fx.machine.HandleEvent(context.Background(), digitEvent("1"))
	require.NoError(t, err)
	assert.Equal(t, StateConfirmed, fx.session(t).State)
}

func TestInvalidDigitReprompts(t *testing.T) {
	fx := newMachineFixture(t, MachineConfig{})
	fx.seedOutboundSession(t)

	_, err := fx.machine.HandleEvent(context.Background(), answeredEvent())
	require.NoError(t, err)

	instrs, err := fx.machine.HandleEvent(context.Background(), digitEvent("9"))
	require.NoError(t, err)
	require.Len(t, instrs, 2)
	assert.Equal(t, "speak", instrs[0].Type)
	assert.Equal(t, "gather", instrs[1].Type)

	sess := fx.session(t)
	assert.Equal(t, StateAwaitingInput, sess.State)
	assert.Equal(t, 1, sess.Reprompts)
	assert.Empty(t, fx.appts.statuses)
}

func TestRepeatedTimeoutsEndAsNoInput(t *testing.T) {
	fx := newMachineFixture(t, MachineConfig{MaxReprompts: 3})
	fx.seedOutboundSession(t)

	_, err := fx.machine.HandleEvent(context.Background(), answeredEvent())
	require.NoError(t, err)

	timeout := &telephony.Event{EventType: telephony.EventGatherTimeout, SessionID: "sess-1"}
	for i := 0; i < 3; i++ {
		instrs, err := fx.machine.HandleEvent(context.Background(), timeout)
		require.NoError(t, err)
		assert.Equal(t, "gather", instrs[len(instrs)-1].Type)
	}

	instrs, err := fx.machine.HandleEvent(context.Background(), timeout)
	require.NoError(t, err)
	require.Len(t, instrs, 2)
	assert.Equal(t, "hangup", instrs[1].Type)

	sess := fx.session(t)
	assert.Equal(t, StateNoInput, sess.State)
	assert.Equal(t, FinalNoInput, sess.FinalAction)
	assert.Empty(t, fx.appts.statuses)
}

func TestExhaustedRepromptsTransferWhenConfigured(t *testing.T) {
	fx := newMachineFixture(t, MachineConfig{MaxReprompts: 1, TransferNumber: "+15558887777"})
	fx.seedOutboundSession(t)

	_, err := fx.machine.HandleEvent(context.Background(), answeredEvent())
	require.NoError(t, err)

	timeout := &telephony.Event{EventType: telephony.EventGatherTimeout, SessionID: "sess-1"}
	_, err = fx.machine.HandleEvent(context.Background(), timeout)
	require.NoError(t, err)

	instrs, err := fx.machine.HandleEvent(context.Background(), timeout)
	require.NoError(t, err)
	require.Len(t, instrs, 2)
	assert.Equal(t, "transfer", instrs[1].Type)
	assert.Equal(t, "+15558887777", instrs[1].To)
	assert.Equal(t, StateTransferred, fx.session(t).State)
}

func TestHangupBeforeDecisionMutatesNothing(t *testing.T) {
	fx := newMachineFixture(t, MachineConfig{})
	fx.seedOutboundSession(t)

	_, err := fx.machine.HandleEvent(context.Background(), answeredEvent())
	require.NoError(t, err)

	instrs, err := fx.machine.HandleEvent(context.Background(), hangupEvent())
	require.NoError(t, err)
	assert.Empty(t, instrs)

	sess := fx.session(t)
	assert.Equal(t, StateEnded, sess.State)
	assert.Equal(t, FinalHangup, sess.FinalAction)
	assert.Empty(t, fx.appts.statuses)
	assert.Empty(t, fx.appts.followUps)
	require.Len(t, fx.archive.archived, 1)
}

func TestReplayAfterEndedIsNoOp(t *testing.T) {
	fx := newMachineFixture(t, MachineConfig{})
	fx.seedOutboundSession(t)

	_, err := fx.machine.HandleEvent(context.Background(), answeredEvent())
	require.NoError(t, err)
	_, err = fx.machine.HandleEvent(context.Background(), digitEvent("1"))
	require.NoError(t, err)
	_, err = fx.machine.HandleEvent(context.Background(), hangupEvent())
	require.NoError(t, err)

	// Replay the whole terminal tail; nothing may change.
	for _, ev := range []*telephony.Event{digitEvent("3"), hangupEvent(), answeredEvent()} {
		instrs, err := fx.machine.HandleEvent(context.Background(), ev)
		require.NoError(t, err)
		assert.Empty(t, instrs)
	}
	assert.Equal(t, []appointments.Status{appointments.StatusConfirmed}, fx.appts.statuses)
	assert.Len(t, fx.archive.archived, 1)
}

func TestStatusStoreFailurePropagatesAndRetries(t *testing.T) {
	fx := newMachineFixture(t, MachineConfig{})
	fx.seedOutboundSession(t)

	_, err := fx.machine.HandleEvent(context.Background(), answeredEvent())
	require.NoError(t, err)

	fx.appts.setErr = errors.New("db down")
	_, err = fx.machine.HandleEvent(context.Background(), digitEvent("1"))
	require.Error(t, err)

	// The session was not saved in a resolved state, and StatusApplied
	// stayed false; a redelivered event succeeds.
	sess := fx.session(t)
	assert.False(t, sess.StatusApplied)

	fx.appts.setErr = nil
	_, err = fx.machine.HandleEvent(context.Background(), digitEvent("1"))
	require.NoError(t, err)
	assert.Equal(t, []appointments.Status{appointments.StatusConfirmed}, fx.appts.statuses)
	assert.True(t, fx.session(t).StatusApplied)
}

func TestSpeechIntentConfirms(t *testing.T) {
	fx := newMachineFixture(t, MachineConfig{})
	fx.seedOutboundSession(t)
	fx.interp.result = Interpretation{Intent: IntentConfirm, Reply: "Wonderful, see you tomorrow."}

	_, err := fx.machine.HandleEvent(context.Background(), answeredEvent())
	require.NoError(t, err)

	speech := &telephony.Event{EventType: telephony.EventSpeechGathered, SessionID: "sess-1", Transcript: "yes I'll be there"}
	instrs, err := fx.machine.HandleEvent(context.Background(), speech)
	require.NoError(t, err)
	assert.Equal(t, "Wonderful, see you tomorrow.", instrs[0].Text)
	assert.Equal(t, []appointments.Status{appointments.StatusConfirmed}, fx.appts.statuses)
}

func TestInterpreterFailureTreatedAsUnclear(t *testing.T) {
	fx := newMachineFixture(t, MachineConfig{})
	fx.seedOutboundSession(t)
	fx.interp.err = errors.New("model timeout")

	_, err := fx.machine.HandleEvent(context.Background(), answeredEvent())
	require.NoError(t, err)

	speech := &telephony.Event{EventType: telephony.EventSpeechGathered, SessionID: "sess-1", Transcript: "mumble"}
	instrs, err := fx.machine.HandleEvent(context.Background(), speech)
	require.NoError(t, err)
	assert.Equal(t, "gather", instrs[len(instrs)-1].Type)
	assert.Equal(t, 1, fx.session(t).Reprompts)
}

func TestInboundCallGreetedOnInitiated(t *testing.T) {
	fx := newMachineFixture(t, MachineConfig{})

	ev := &telephony.Event{
		EventType: telephony.EventCallInitiated,
		SessionID: "sess-1",
		Direction: "inbound",
		From:      "+15550003333",
	}
	instrs, err := fx.machine.HandleEvent(context.Background(), ev)
	require.NoError(t, err)
	require.Len(t, instrs, 2)
	assert.Contains(t, instrs[0].Text, "appointment line")

	sess := fx.session(t)
	assert.Equal(t, DirectionInbound, sess.Direction)
	assert.Nil(t, sess.AppointmentID)
}

func TestOutboundSessionRebuiltFromClientState(t *testing.T) {
	fx := newMachineFixture(t, MachineConfig{})

	state, err := telephony.EncodeClientState(telephony.ClientState{
		AppointmentID: fx.apptID.String(),
		Kind:          "day_before",
	})
	require.NoError(t, err)

	ev := answeredEvent()
	ev.ClientState = state
	_, err = fx.machine.HandleEvent(context.Background(), ev)
	require.NoError(t, err)

	sess := fx.session(t)
	assert.Equal(t, DirectionOutbound, sess.Direction)
	require.NotNil(t, sess.AppointmentID)
	assert.Equal(t, fx.apptID, *sess.AppointmentID)
}

func TestMessageThreadResolvesWithReply(t *testing.T) {
	fx := newMachineFixture(t, MachineConfig{})

	id := fx.apptID
	require.NoError(t, fx.sessions.Save(context.Background(), &Session{
		ID:            "sess-1",
		Direction:     DirectionOutbound,
		Channel:       ChannelMessage,
		AppointmentID: &id,
		State:         StateAwaitingInput,
		StartedAt:     time.Now().UTC(),
	}))

	ev := &telephony.Event{EventType: telephony.EventMessageIn, SessionID: "sess-1", Text: "1"}
	instrs, err := fx.machine.HandleEvent(context.Background(), ev)
	require.NoError(t, err)
	require.Len(t, instrs, 1)
	assert.Equal(t, "message", instrs[0].Type)

	sess := fx.session(t)
	assert.Equal(t, StateEnded, sess.State)
	assert.Equal(t, []appointments.Status{appointments.StatusConfirmed}, fx.appts.statuses)
	assert.Len(t, fx.archive.archived, 1)
}

// Message threads key sessions by the caller's number, so a resolved thread
// lingers in the store until its TTL. A later text from the same number must
// start a fresh exchange, not disappear into the ended session.
func TestNewMessageAfterEndedThreadStartsOver(t *testing.T) {
	fx := newMachineFixture(t, MachineConfig{})

	id := fx.apptID
	require.NoError(t, fx.sessions.Save(context.Background(), &Session{
		ID:            "msg:15550001111",
		Direction:     DirectionOutbound,
		Channel:       ChannelMessage,
		AppointmentID: &id,
		State:         StateAwaitingInput,
		StartedAt:     time.Now().UTC(),
	}))

	first := &telephony.Event{EventType: telephony.EventMessageIn, SessionID: "msg:15550001111", From: "+15550001111", Text: "1"}
	_, err := fx.machine.HandleEvent(context.Background(), first)
	require.NoError(t, err)

	second := &telephony.Event{EventType: telephony.EventMessageIn, SessionID: "msg:15550001111", From: "+15550001111", Text: "when is my appointment?"}
	instrs, err := fx.machine.HandleEvent(context.Background(), second)
	require.NoError(t, err)
	require.NotEmpty(t, instrs)
	assert.Equal(t, "message", instrs[0].Type)

	sess, err := fx.sessions.Get(context.Background(), "msg:15550001111")
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.NotEqual(t, StateEnded, sess.State)
	// Only the resolved first thread was archived.
	assert.Len(t, fx.archive.archived, 1)
}
