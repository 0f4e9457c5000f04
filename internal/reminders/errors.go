package reminders

import (
	"errors"
	"fmt"
)

// ErrAlreadyRecorded is returned by the ledger when an initiated record
// already exists for the (appointment, kind) pair.
var ErrAlreadyRecorded = errors.New("reminders: attempt already recorded")

// ErrGatewayUnavailable indicates a transient telephony gateway failure.
// The attempt is marked failed and stays eligible for a later tick.
var ErrGatewayUnavailable = errors.New("reminders: telephony gateway unavailable")

// DispatchError indicates a reminder could not be dispatched because of bad
// input (missing or malformed phone number). Not retryable; the appointment
// is left for operator attention.
type DispatchError struct {
	Reason string
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("reminders: dispatch: %s", e.Reason)
}

// IsDispatchError reports whether err is a DispatchError.
func IsDispatchError(err error) bool {
	var de *DispatchError
	return errors.As(err, &de)
}
