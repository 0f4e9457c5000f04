package callflow

import (
	"context"
	"strings"
)

var (
	confirmPhrases = []string{
		"confirm", "yes", "yep", "yeah", "i'll be there", "see you then",
		"sounds good", "keep it", "that works",
	}
	reschedulePhrases = []string{
		"reschedule", "different time", "another time", "move it", "change it",
		"can't make it but", "push it", "later date",
	}
	cancelPhrases = []string{
		"cancel", "can't make it", "cannot make it", "won't be there",
		"not coming", "call it off",
	}
)

// KeywordInterpreter classifies utterances by phrase matching. It backs up
// the model-based interpreter when no model is configured and keeps the
// interpreter seam testable without network calls.
type KeywordInterpreter struct{}

func NewKeywordInterpreter() *KeywordInterpreter {
	return &KeywordInterpreter{}
}

func (k *KeywordInterpreter) Interpret(_ context.Context, transcript string, _ InterpretContext) (Interpretation, error) {
	normalized := strings.ToLower(strings.TrimSpace(transcript))
	if normalized == "" {
		return Interpretation{Intent: IntentUnclear}, nil
	}

	// Cancel and reschedule share vocabulary ("can't make it"); check
	// reschedule first so "can't make it, can we reschedule" lands right.
	if containsAny(normalized, reschedulePhrases) {
		return Interpretation{Intent: IntentReschedule}, nil
	}
	if containsAny(normalized, cancelPhrases) {
		return Interpretation{Intent: IntentCancel}, nil
	}
	if containsAny(normalized, confirmPhrases) {
		return Interpretation{Intent: IntentConfirm}, nil
	}
	return Interpretation{Intent: IntentUnclear}, nil
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
