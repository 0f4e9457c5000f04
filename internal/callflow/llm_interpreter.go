package callflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/quickagent/callminder/pkg/logging"
)

// Intent markers the model is instructed to lead its reply with. Parsing keys
// off the marker, never off the prose.
const (
	markerConfirm    = "APPOINTMENT_CONFIRMED"
	markerCancel     = "CANCEL_APPOINTMENT"
	markerReschedule = "RESCHEDULE_APPOINTMENT"
	markerUnclear    = "UNCLEAR"
)

const interpreterSystemPrompt = `You are a phone assistant handling an appointment reminder call.
The caller was asked whether they want to confirm, reschedule, or cancel their appointment.
Classify the caller's latest utterance into exactly one of these intents and respond with the
matching marker as the FIRST token of your reply:

APPOINTMENT_CONFIRMED - the caller is keeping the appointment
RESCHEDULE_APPOINTMENT - the caller wants a different time
CANCEL_APPOINTMENT - the caller wants to cancel
UNCLEAR - you cannot tell

After the marker you may add " | " followed by one short, natural sentence to speak back to the
caller. Keep it under 25 words. Do not ask for information you already have. Never output
anything before the marker.`

// LLMInterpreterConfig configures the model-backed interpreter.
type LLMInterpreterConfig struct {
	ModelID string
	// Timeout bounds each interpretation round trip. Calls are live audio;
	// a slow answer is worse than an unclear one.
	Timeout time.Duration
}

// LLMInterpreter classifies utterances with a language model. Failures and
// timeouts degrade to IntentUnclear so the call keeps moving.
type LLMInterpreter struct {
	client LLMClient
	cfg    LLMInterpreterConfig
	logger *logging.Logger
}

func NewLLMInterpreter(client LLMClient, cfg LLMInterpreterConfig, logger *logging.Logger) (*LLMInterpreter, error) {
	if client == nil {
		return nil, fmt.Errorf("callflow: llm interpreter: client is required")
	}
	if strings.TrimSpace(cfg.ModelID) == "" {
		return nil, fmt.Errorf("callflow: llm interpreter: model id is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &LLMInterpreter{client: client, cfg: cfg, logger: logger}, nil
}

func (i *LLMInterpreter) Interpret(ctx context.Context, transcript string, callCtx InterpretContext) (Interpretation, error) {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return Interpretation{Intent: IntentUnclear}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, i.cfg.Timeout)
	defer cancel()

	resp, err := i.client.Complete(ctx, LLMRequest{
		Model:  i.cfg.ModelID,
		System: []string{interpreterSystemPrompt, callFacts(callCtx)},
		Messages: []ChatMessage{
			{Role: ChatRoleUser, Content: transcript},
		},
		MaxTokens:   120,
		Temperature: 0.2,
	})
	if err != nil {
		i.logger.Warn("interpreter completion failed", "error", err)
		return Interpretation{Intent: IntentUnclear}, err
	}

	return parseInterpretation(resp.Text), nil
}

func callFacts(callCtx InterpretContext) string {
	var b strings.Builder
	b.WriteString("Call facts:\n")
	if callCtx.ClientName != "" {
		fmt.Fprintf(&b, "- Caller name: %s\n", callCtx.ClientName)
	}
	if callCtx.AppointmentTime != "" {
		fmt.Fprintf(&b, "- Appointment time: %s\n", callCtx.AppointmentTime)
	}
	if callCtx.ReminderKind != "" {
		fmt.Fprintf(&b, "- Reminder type: %s\n", callCtx.ReminderKind)
	}
	return b.String()
}

// parseInterpretation maps a model reply to an intent. Markers are matched at
// the start of the reply; anything after " | " becomes the spoken reply.
func parseInterpretation(text string) Interpretation {
	text = strings.TrimSpace(text)

	intent := IntentUnclear
	switch {
	case strings.HasPrefix(text, markerConfirm):
		intent = IntentConfirm
		text = strings.TrimPrefix(text, markerConfirm)
	case strings.HasPrefix(text, markerReschedule):
		intent = IntentReschedule
		text = strings.TrimPrefix(text, markerReschedule)
	case strings.HasPrefix(text, markerCancel):
		intent = IntentCancel
		text = strings.TrimPrefix(text, markerCancel)
	case strings.HasPrefix(text, markerUnclear):
		text = strings.TrimPrefix(text, markerUnclear)
	default:
		// No marker at all means the model went off script. Treat the
		// whole reply as unusable rather than guessing.
		return Interpretation{Intent: IntentUnclear}
	}

	reply := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(text), "|"))
	return Interpretation{Intent: intent, Reply: reply}
}
