package telephony

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Webhook event types delivered by the gateway.
const (
	EventCallInitiated  = "call.initiated"
	EventCallAnswered   = "call.answered"
	EventDTMFReceived   = "call.dtmf.received"
	EventSpeechGathered = "call.speech.gathered"
	EventGatherTimeout  = "call.gather.timeout"
	EventCallHangup     = "call.hangup"
	EventMessageIn      = "message.received"
)

// Event is an inbound gateway webhook event. Events for one session arrive
// in chronological order.
type Event struct {
	// ID uniquely identifies this delivery; replays carry the same ID.
	ID string
	// EventType is one of the Event* constants.
	EventType string
	// SessionID is the gateway call/message session id.
	SessionID string
	// Direction is "inbound" or "outbound" on call.initiated events.
	Direction string
	From      string
	To        string
	// Digit carries the pressed key on call.dtmf.received.
	Digit string
	// Transcript carries recognized speech on call.speech.gathered.
	Transcript string
	// Text carries the message body on message.received.
	Text string
	// ClientState echoes the opaque state set at origination.
	ClientState string
}

type eventEnvelope struct {
	Data struct {
		ID        string `json:"id"`
		EventType string `json:"event_type"`
		Payload   struct {
			CallSessionID string `json:"call_session_id"`
			MessageID     string `json:"message_id"`
			Direction     string `json:"direction"`
			From          string `json:"from"`
			To            string `json:"to"`
			Digit         string `json:"digit"`
			Transcript    string `json:"transcript"`
			Text          string `json:"text"`
			ClientState   string `json:"client_state"`
		} `json:"payload"`
	} `json:"data"`
}

// ParseEvent decodes a gateway webhook body.
func ParseEvent(body []byte) (*Event, error) {
	var env eventEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("telephony: parse event: %w", err)
	}
	if env.Data.EventType == "" {
		return nil, errors.New("telephony: parse event: missing event_type")
	}
	sessionID := env.Data.Payload.CallSessionID
	if sessionID == "" && env.Data.EventType == EventMessageIn {
		// Message exchanges have no call session; key the session on the
		// counterpart phone number so the thread resumes across messages.
		sessionID = "msg:" + strings.TrimPrefix(NormalizeE164(env.Data.Payload.From), "+")
	}
	if sessionID == "" {
		return nil, errors.New("telephony: parse event: missing call_session_id")
	}
	return &Event{
		ID:          env.Data.ID,
		EventType:   env.Data.EventType,
		SessionID:   sessionID,
		Direction:   env.Data.Payload.Direction,
		From:        env.Data.Payload.From,
		To:          env.Data.Payload.To,
		Digit:       env.Data.Payload.Digit,
		Transcript:  env.Data.Payload.Transcript,
		Text:        env.Data.Payload.Text,
		ClientState: env.Data.Payload.ClientState,
	}, nil
}
