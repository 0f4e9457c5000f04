package reminders

import (
	"fmt"

	"github.com/quickagent/callminder/internal/appointments"
)

const menuPrompt = "Press 1 or say yes to confirm, press 2 to reschedule, or press 3 to cancel."

// BuildGreeting composes the opening line for a reminder call. It is built at
// dispatch time and carried on the session so the answer event can speak it
// without another appointment lookup.
func BuildGreeting(appt *appointments.Appointment, kind Kind) string {
	name := appt.FirstName()
	when := appt.At.Format("Monday, January 2 at 3:04 PM")

	switch kind {
	case KindDayBefore:
		return fmt.Sprintf(
			"Hello %s, this is a reminder that you have an appointment tomorrow, %s. %s",
			name, when, menuPrompt)
	case KindThirtyMinBefore:
		return fmt.Sprintf(
			"Hello %s, this is a reminder that your appointment is coming up at %s. %s",
			name, appt.At.Format("3:04 PM"), menuPrompt)
	default:
		return fmt.Sprintf(
			"Hello %s, this is a courtesy call about your appointment on %s. %s",
			name, when, menuPrompt)
	}
}
