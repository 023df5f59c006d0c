// Package normalize canonicalizes raw user-supplied strings before they are
// hashed or fed into identity derivation. Every function is total: malformed
// input yields an empty string, never an error.
package normalize

import "strings"

// LowerTrim is the baseline canonical form (emails, names, generic values).
func LowerTrim(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// DigitsOnly strips everything but ASCII digits.
func DigitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// CollapseSpaces reduces internal whitespace runs to single spaces.
func CollapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// LettersAndSpaces drops every rune that is not a letter or whitespace.
// Used for locality/region/country values before hashing.
func LettersAndSpaces(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == ' ' || r == '\t' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// StripSpaces removes all spaces (postal codes).
func StripSpaces(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), " ", "")
}

// Phone canonicalizes a raw phone number: digits only, leading zeros
// stripped, national mobile numbers prefixed with the default country code.
// Returns "" when fewer than 10 digits remain, which callers treat as
// "no usable phone".
//
// The 9-digit 6/7 heuristic covers the national mobile format the original
// deployment saw most (Spain); the country code is configurable.
func Phone(raw, defaultCountryCode string) string {
	p := DigitsOnly(raw)
	p = strings.TrimLeft(p, "0")

	if len(p) == 9 && (p[0] == '6' || p[0] == '7') {
		p = defaultCountryCode + p
	}

	if len(p) < 10 {
		return ""
	}
	return p
}
