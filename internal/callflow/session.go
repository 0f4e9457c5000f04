package callflow

import (
	"time"

	"github.com/google/uuid"
)

// State is where a call session sits in its lifecycle. Sessions advance
// Idle → Greeting → AwaitingInput → Interpreting → a resolution state →
// Ended. Ended is absorbing.
type State string

const (
	StateIdle                State = "idle"
	StateGreeting            State = "greeting"
	StateAwaitingInput       State = "awaiting_input"
	StateInterpreting        State = "interpreting"
	StateConfirmed           State = "confirmed"
	StateRescheduleRequested State = "reschedule_requested"
	StateCancelRequested     State = "cancel_requested"
	StateTransferred         State = "transferred"
	StateNoInput             State = "no_input"
	StateEnded               State = "ended"
)

// AcceptsInput reports whether an input event (digit, speech, message) is
// processable in this state. Input during Greeting is barge-in: the gateway
// buffers it and we route it as if the session were already awaiting input.
func (s State) AcceptsInput() bool {
	switch s {
	case StateIdle, StateGreeting, StateAwaitingInput:
		return true
	}
	return false
}

// Direction distinguishes calls we placed from calls we received.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Channel distinguishes live voice calls from text-message exchanges.
type Channel string

const (
	ChannelVoice   Channel = "voice"
	ChannelMessage Channel = "message"
)

// FinalAction summarizes how a session concluded.
type FinalAction string

const (
	FinalConfirmed           FinalAction = "confirmed"
	FinalRescheduleRequested FinalAction = "reschedule_requested"
	FinalCancelRequested     FinalAction = "cancel_requested"
	FinalTransferred         FinalAction = "transferred"
	FinalNoInput             FinalAction = "no_input"
	FinalHangup              FinalAction = "hangup"
	FinalUnknown             FinalAction = "unknown"
)

// Turn is one exchange in the session transcript.
type Turn struct {
	Speaker string    `json:"speaker"` // "caller" or "assistant"
	Text    string    `json:"text"`
	At      time.Time `json:"at"`
}

// Session is the live state of one telephony interaction. It is created when
// the gateway reports a new call or message, mutated only by the owning
// state machine (events per session arrive strictly ordered), and archived
// on termination.
type Session struct {
	// ID is the gateway-assigned session id.
	ID        string    `json:"id"`
	Direction Direction `json:"direction"`
	Channel   Channel   `json:"channel"`

	// AppointmentID links the session to an appointment when the call
	// originated from a reminder or was matched later. Nil for unlinked
	// inbound sessions.
	AppointmentID *uuid.UUID `json:"appointment_id,omitempty"`
	// ReminderKind is set on outbound reminder calls.
	ReminderKind string `json:"reminder_kind,omitempty"`
	// Greeting is the opening script, prepared at call origination so the
	// answer event can speak it without a second appointment lookup.
	Greeting string `json:"greeting,omitempty"`

	CallerPhone string `json:"caller_phone,omitempty"`

	State State `json:"state"`
	// Reprompts counts unclear or absent inputs so far.
	Reprompts int `json:"reprompts"`
	// StatusApplied guards the appointment mutation: applied at most once
	// per session even if terminal events are replayed.
	StatusApplied bool `json:"status_applied"`

	Turns       []Turn      `json:"turns,omitempty"`
	StartedAt   time.Time   `json:"started_at"`
	EndedAt     *time.Time  `json:"ended_at,omitempty"`
	FinalAction FinalAction `json:"final_action,omitempty"`
}

// AddTurn appends to the transcript.
func (s *Session) AddTurn(speaker, text string) {
	if text == "" {
		return
	}
	s.Turns = append(s.Turns, Turn{Speaker: speaker, Text: text, At: time.Now().UTC()})
}
