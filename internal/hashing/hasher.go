// Package hashing one-way hashes personally identifying fields before they
// leave the trust boundary, using the per-field normalization the downstream
// API expects for matching.
package hashing

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/pixelbridge/conversion-bridge/internal/normalize"
)

// FieldType selects the normalization applied before hashing.
type FieldType string

const (
	FieldContact    FieldType = "contact"
	FieldPhone      FieldType = "phone"
	FieldName       FieldType = "name"
	FieldLocality   FieldType = "locality"
	FieldRegion     FieldType = "region"
	FieldCountry    FieldType = "country"
	FieldPostalCode FieldType = "postalCode"
	FieldGeneric    FieldType = "generic"
)

// Hash normalizes value per its field type and returns the SHA-256 hex
// digest. ok is false for empty/absent input: callers must omit the field
// entirely rather than send the hash of an empty string, which would poison
// matching downstream.
func Hash(value string, fieldType FieldType) (string, bool) {
	normalized := normalizeField(value, fieldType)
	if normalized == "" {
		return "", false
	}
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:]), true
}

func normalizeField(value string, fieldType FieldType) string {
	switch fieldType {
	case FieldPhone:
		return normalize.LowerTrim(normalize.DigitsOnly(value))
	case FieldName:
		return normalize.LowerTrim(normalize.CollapseSpaces(value))
	case FieldLocality, FieldRegion, FieldCountry:
		return normalize.LowerTrim(normalize.CollapseSpaces(normalize.LettersAndSpaces(value)))
	case FieldPostalCode:
		return normalize.LowerTrim(normalize.StripSpaces(value))
	default: // FieldContact, FieldGeneric
		return normalize.LowerTrim(value)
	}
}
