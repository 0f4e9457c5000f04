package telephony

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeE164(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"+15550001111", "+15550001111"},
		{"5550001111", "+15550001111"},
		{"(555) 000-1111", "+15550001111"},
		{"1-555-000-1111", "+15550001111"},
		{"  +44 20 7946 0958 ", "+442079460958"},
		{"", ""},
		{"no digits here", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeE164(tt.in), "input %q", tt.in)
	}
}

func TestValidE164(t *testing.T) {
	assert.True(t, ValidE164("+15550001111"))
	assert.True(t, ValidE164("5550001111"))
	assert.False(t, ValidE164(""))
	assert.False(t, ValidE164("12345"))
	assert.False(t, ValidE164("not-a-number"))
}

func TestMaskPhone(t *testing.T) {
	assert.Equal(t, "***1111", MaskPhone("+15550001111"))
	assert.Equal(t, "****", MaskPhone("12"))
	assert.Equal(t, "****", MaskPhone(""))
}
