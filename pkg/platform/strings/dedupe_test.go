package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{
			name:     "nil slice",
			input:    nil,
			expected: nil,
		},
		{
			name:     "split of empty list",
			input:    []string{""},
			expected: []string{},
		},
		{
			name:     "trims codes",
			input:    []string{" FO", "WA ", " SA "},
			expected: []string{"FO", "WA", "SA"},
		},
		{
			name:     "repeated codes collapse in first-seen order",
			input:    []string{"WA", "FO", "WA", "FO"},
			expected: []string{"WA", "FO"},
		},
		{
			name:     "case is preserved",
			input:    []string{"fo", "FO"},
			expected: []string{"fo", "FO"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DedupeAndTrim(tt.input))
		})
	}
}
