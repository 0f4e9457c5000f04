package callflow

import "context"

// Intent is what the caller wants, as understood from a free-form utterance.
type Intent string

const (
	IntentConfirm    Intent = "confirm"
	IntentReschedule Intent = "reschedule"
	IntentCancel     Intent = "cancel"
	IntentUnclear    Intent = "unclear"
)

// Interpretation is the result of understanding one utterance.
type Interpretation struct {
	Intent Intent
	// Reply is optional text to speak back to the caller before acting on
	// the intent (or as the re-prompt when the intent is unclear).
	Reply string
}

// InterpretContext gives the interpreter the facts of the call so its reply
// can reference the appointment.
type InterpretContext struct {
	ClientName      string
	AppointmentTime string
	ReminderKind    string
	Direction       Direction
}

// Interpreter turns a caller utterance into an intent. Implementations wrap
// an external language-understanding capability; the state machine's control
// flow does not depend on which one.
type Interpreter interface {
	Interpret(ctx context.Context, transcript string, callCtx InterpretContext) (Interpretation, error)
}
