package imessage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeAddress(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"formatted phone", "(555) 123-4567", "5551234567"},
		{"dashed phone", "555-123-4567", "5551234567"},
		{"international", "+1 (555) 123-4567", "+15551234567"},
		{"mixed case email", "John@Example.COM", "john@example.com"},
		{"short code", "242733", "242733"},
		{"whitespace", "  +15551234567  ", "+15551234567"},
		{"plus not leading", "555+1234567", "5551234567"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeAddress(tt.input))
		})
	}
}

func TestNormalizeAddresses(t *testing.T) {
	out := NormalizeAddresses([]string{
		"(555) 123-4567",
		"555-123-4567", // duplicate after normalization
		"John@Example.COM",
		"   ",
	})
	assert.Equal(t, []string{"5551234567", "john@example.com"}, out)
}

func TestIsPhone(t *testing.T) {
	assert.True(t, IsPhone("+15551234567"))
	assert.True(t, IsPhone("(555) 123-4567"))
	assert.False(t, IsPhone("user@example.com"))
	assert.False(t, IsPhone(""))
	assert.False(t, IsPhone("+"))
}
