package reminders

// Kind is a named lead-time category. At most one call is ever initiated per
// (appointment, kind) pair; the ledger enforces this.
type Kind string

const (
	// KindDayBefore is the reminder placed roughly 24 hours out.
	KindDayBefore Kind = "day_before"
	// KindThirtyMinBefore is the close-in reminder placed ~30 minutes out.
	KindThirtyMinBefore Kind = "thirty_min_before"
	// KindGeneral is a manually triggered reminder with no timing window.
	KindGeneral Kind = "general"
)

// Valid reports whether k is a known reminder kind.
func (k Kind) Valid() bool {
	switch k {
	case KindDayBefore, KindThirtyMinBefore, KindGeneral:
		return true
	}
	return false
}
