package hashing_test

import (
	"testing"

	"github.com/pixelbridge/conversion-bridge/internal/hashing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashNormalization(t *testing.T) {
	tests := []struct {
		name      string
		value     string
		fieldType hashing.FieldType
		want      string
	}{
		{
			"Contact lowercased and trimmed",
			"  USER@Example.COM ", hashing.FieldContact,
			"b4c9a289323b21a01c3e940f150eb9b8c542587f1abfd8f0e1cc1ffc5e475514", // sha256("user@example.com")
		},
		{
			"Name collapses whitespace",
			" John \t Smith ", hashing.FieldName,
			"32ddaf65cc3aa8d3e6eda3ca2da7c18b71e169e9aa444cccb479c9ca759dd095", // sha256("john smith")
		},
		{
			"Phone digits only",
			"+1 (555) 123-4567", hashing.FieldPhone,
			"d6736136ea896c1bfdc553e0e86e702c70d060d805696ca3e4e9e0961353860a", // sha256("15551234567")
		},
		{
			"Locality strips non-letters",
			" New  York!!1 ", hashing.FieldLocality,
			"bd732730bd39834d83bf92a114960180d3bd4a6f1309307165e6f30ed9846fdd", // sha256("new york")
		},
		{
			"Country lowercased",
			"Spain", hashing.FieldCountry,
			"4c799454ccf37279d378848bf41ad9ee12cc4f3d2a4740a54b42412c36af60c0", // sha256("spain")
		},
		{
			"Region lowercased",
			"Madrid", hashing.FieldRegion,
			"1579a6e3112caba1b6031ef7c507f3014d7b0a408fefd1b4d4a2c8c32d2274ff", // sha256("madrid")
		},
		{
			"Postal code strips spaces",
			" SW1A 1AA ", hashing.FieldPostalCode,
			"830e1d4b9838bab1f5c2acdb23e0b502ff13a9832c4632e8d67a1d43d3b7f614", // sha256("sw1a1aa")
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := hashing.Hash(tt.value, tt.fieldType)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
			assert.Len(t, got, 64)

			// Pure function: repeated calls agree.
			again, _ := hashing.Hash(tt.value, tt.fieldType)
			assert.Equal(t, got, again)
		})
	}
}

func TestHashEmptyReturnsNotOK(t *testing.T) {
	_, ok := hashing.Hash("", hashing.FieldContact)
	assert.False(t, ok)

	_, ok = hashing.Hash("   ", hashing.FieldName)
	assert.False(t, ok)

	// Phone with no digits normalizes to empty.
	_, ok = hashing.Hash("no digits here", hashing.FieldPhone)
	assert.False(t, ok)
}
