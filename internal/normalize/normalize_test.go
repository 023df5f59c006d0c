package normalize_test

import (
	"testing"

	"github.com/pixelbridge/conversion-bridge/internal/normalize"
	"github.com/stretchr/testify/assert"
)

func TestLowerTrim(t *testing.T) {
	assert.Equal(t, "user@example.com", normalize.LowerTrim("  USER@Example.COM "))
	assert.Equal(t, "", normalize.LowerTrim("   "))
}

func TestDigitsOnly(t *testing.T) {
	assert.Equal(t, "34612345678", normalize.DigitsOnly("+34 (612) 345-678"))
	assert.Equal(t, "", normalize.DigitsOnly("no digits"))
}

func TestCollapseSpaces(t *testing.T) {
	assert.Equal(t, "john smith", normalize.CollapseSpaces("john \t smith"))
	assert.Equal(t, "", normalize.CollapseSpaces("  "))
}

func TestLettersAndSpaces(t *testing.T) {
	assert.Equal(t, "New York", normalize.LettersAndSpaces("New York!!1"))
	assert.Equal(t, "Sao Paulo", normalize.LettersAndSpaces("S4ao Paulo9"))
}

func TestStripSpaces(t *testing.T) {
	assert.Equal(t, "SW1A1AA", normalize.StripSpaces(" SW1A 1AA "))
}

func TestPhone(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected string
	}{
		{"International with punctuation", "+34 612 345 678", "34612345678"},
		{"National mobile gets country code", "612345678", "34612345678"},
		{"National mobile starting 7", "712 345 678", "34712345678"},
		{"Leading zeros stripped", "0034612345678", "34612345678"},
		{"Too short rejected", "12345", ""},
		{"Landline without code rejected", "912345678", ""},
		{"Empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, normalize.Phone(tt.raw, "34"))
		})
	}
}
