package telephony

import "strings"

// NormalizeE164 ensures the value begins with + and only contains digits afterward.
// Returns "" when nothing usable remains.
func NormalizeE164(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	digits := sanitizePhone(value)
	if digits == "" {
		return ""
	}
	// Bare 10-digit US numbers get the country code prefixed.
	if len(digits) == 10 {
		digits = "1" + digits
	}
	return "+" + digits
}

// ValidE164 reports whether the value normalizes to a plausible E.164 number.
func ValidE164(value string) bool {
	n := NormalizeE164(value)
	// + plus 11–15 digits
	return len(n) >= 12 && len(n) <= 16
}

func sanitizePhone(value string) string {
	var b strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
