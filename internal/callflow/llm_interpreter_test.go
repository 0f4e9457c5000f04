package callflow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLLM struct {
	resp LLMResponse
	err  error
	last LLMRequest
}

func (s *stubLLM) Complete(_ context.Context, req LLMRequest) (LLMResponse, error) {
	s.last = req
	return s.resp, s.err
}

func newTestLLMInterpreter(t *testing.T, client LLMClient) *LLMInterpreter {
	t.Helper()
	interp, err := NewLLMInterpreter(client, LLMInterpreterConfig{ModelID: "model-1"}, nil)
	require.NoError(t, err)
	return interp
}

func TestParseInterpretationMarkers(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		want  Intent
		reply string
	}{
		{"confirm with reply", "APPOINTMENT_CONFIRMED | See you tomorrow!", IntentConfirm, "See you tomorrow!"},
		{"confirm bare", "APPOINTMENT_CONFIRMED", IntentConfirm, ""},
		{"reschedule", "RESCHEDULE_APPOINTMENT | We'll call you back.", IntentReschedule, "We'll call you back."},
		{"cancel", "CANCEL_APPOINTMENT", IntentCancel, ""},
		{"unclear marker", "UNCLEAR | Could you repeat that?", IntentUnclear, "Could you repeat that?"},
		{"off-script reply", "Sure thing, you're all set!", IntentUnclear, ""},
		{"empty", "", IntentUnclear, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseInterpretation(tt.text)
			assert.Equal(t, tt.want, got.Intent)
			assert.Equal(t, tt.reply, got.Reply)
		})
	}
}

func TestLLMInterpreterSendsCallFacts(t *testing.T) {
	stub := &stubLLM{resp: LLMResponse{Text: "APPOINTMENT_CONFIRMED"}}
	interp := newTestLLMInterpreter(t, stub)

	got, err := interp.Interpret(context.Background(), "yes that works", InterpretContext{
		ClientName:      "Dana",
		AppointmentTime: "Wednesday, March 11 at 2:30 PM",
	})
	require.NoError(t, err)
	assert.Equal(t, IntentConfirm, got.Intent)

	require.Len(t, stub.last.System, 2)
	assert.Contains(t, stub.last.System[1], "Dana")
	assert.Contains(t, stub.last.System[1], "March 11")
	require.Len(t, stub.last.Messages, 1)
	assert.Equal(t, "yes that works", stub.last.Messages[0].Content)
}

func TestLLMInterpreterEmptyTranscriptSkipsModel(t *testing.T) {
	stub := &stubLLM{resp: LLMResponse{Text: "APPOINTMENT_CONFIRMED"}}
	interp := newTestLLMInterpreter(t, stub)

	got, err := interp.Interpret(context.Background(), "   ", InterpretContext{})
	require.NoError(t, err)
	assert.Equal(t, IntentUnclear, got.Intent)
	assert.Empty(t, stub.last.Messages)
}

func TestLLMInterpreterErrorDegradesToUnclear(t *testing.T) {
	stub := &stubLLM{err: errors.New("throttled")}
	interp := newTestLLMInterpreter(t, stub)

	got, err := interp.Interpret(context.Background(), "yes", InterpretContext{})
	assert.Error(t, err)
	assert.Equal(t, IntentUnclear, got.Intent)
}

func TestKeywordInterpreter(t *testing.T) {
	k := NewKeywordInterpreter()

	tests := []struct {
		transcript string
		want       Intent
	}{
		{"yes I'll be there", IntentConfirm},
		{"sounds good", IntentConfirm},
		{"I need to cancel", IntentCancel},
		{"can't make it, sorry", IntentCancel},
		{"can we reschedule to another time", IntentReschedule},
		{"can't make it but could we move it", IntentReschedule},
		{"what is this about", IntentUnclear},
		{"", IntentUnclear},
	}
	for _, tt := range tests {
		got, err := k.Interpret(context.Background(), tt.transcript, InterpretContext{})
		require.NoError(t, err)
		assert.Equal(t, tt.want, got.Intent, "transcript %q", tt.transcript)
	}
}
