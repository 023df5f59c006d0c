package token_test

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/pixelbridge/conversion-bridge/internal/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

func newCipher(t *testing.T, opts token.Options) *token.Cipher {
	t.Helper()
	c, err := token.New(testKey, opts)
	require.NoError(t, err)
	return c
}

func TestNewRejectsBadKey(t *testing.T) {
	_, err := token.New([]byte("short"), token.Options{})
	assert.Error(t, err)

	_, err = token.New(testKey, token.Options{Version: 7})
	assert.Error(t, err)
}

func TestRoundTrip(t *testing.T) {
	for _, version := range []int{token.Version1, token.Version2} {
		c := newCipher(t, token.Options{Version: version})

		tok, err := c.Encode("123456789012345", "EAAexampleaccesstoken123")
		require.NoError(t, err)
		assert.True(t, token.IsWellFormed(tok))

		creds, err := c.Decode(tok)
		require.NoError(t, err)
		assert.Equal(t, "123456789012345", creds.PixelID)
		assert.Equal(t, "EAAexampleaccesstoken123", creds.AccessToken)
	}
}

func TestEncodeDeterministicByDefault(t *testing.T) {
	c := newCipher(t, token.Options{Version: token.Version2})

	a, err := c.Encode("123456789012345", "EAAexampleaccesstoken123")
	require.NoError(t, err)
	b, err := c.Encode("123456789012345", "EAAexampleaccesstoken123")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestEncodeRandomIVVariant(t *testing.T) {
	c := newCipher(t, token.Options{Version: token.Version2, RandomIV: true})

	a, err := c.Encode("123456789012345", "EAAexampleaccesstoken123")
	require.NoError(t, err)
	b, err := c.Encode("123456789012345", "EAAexampleaccesstoken123")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	// Both still decode to the same pair.
	ca, err := c.Decode(a)
	require.NoError(t, err)
	cb, err := c.Decode(b)
	require.NoError(t, err)
	assert.Equal(t, ca, cb)
}

func TestEncodeValidation(t *testing.T) {
	c := newCipher(t, token.Options{})

	_, err := c.Encode("", "EAAexample")
	assert.Error(t, err)
	_, err = c.Encode("123", "")
	assert.Error(t, err)
	_, err = c.Encode("12|3", "EAAexample")
	assert.Error(t, err)
}

func TestDecodeTamperRejection(t *testing.T) {
	c := newCipher(t, token.Options{Version: token.Version2})

	tok, err := c.Encode("123456789012345", "EAAexampleaccesstoken123")
	require.NoError(t, err)

	raw, err := base64.RawURLEncoding.DecodeString(tok)
	require.NoError(t, err)

	// Flipping any single byte must collapse to ErrTokenInvalid, never to a
	// different-looking valid tuple.
	for i := range raw {
		mutated := make([]byte, len(raw))
		copy(mutated, raw)
		mutated[i] ^= 0x01

		_, err := c.Decode(base64.RawURLEncoding.EncodeToString(mutated))
		assert.ErrorIs(t, err, token.ErrTokenInvalid, "byte %d", i)
	}
}

func TestDecodeWrongKey(t *testing.T) {
	a := newCipher(t, token.Options{})
	b, err := token.New([]byte("fedcba9876543210fedcba9876543210"), token.Options{})
	require.NoError(t, err)

	tok, err := a.Encode("123456789012345", "EAAexampleaccesstoken123")
	require.NoError(t, err)

	_, err = b.Decode(tok)
	assert.ErrorIs(t, err, token.ErrTokenInvalid)
}

func TestDecodeMalformedInput(t *testing.T) {
	c := newCipher(t, token.Options{})

	for _, tok := range []string{
		"",
		"short",
		"not base64url!!!",
		strings.Repeat("A", 200) + "$",
	} {
		_, err := c.Decode(tok)
		assert.ErrorIs(t, err, token.ErrTokenInvalid, "input %q", tok)
	}
}

func TestDecodeFailureIsGeneric(t *testing.T) {
	c := newCipher(t, token.Options{})

	_, errFormat := c.Decode("short")
	tok, err := c.Encode("123456789012345", "EAAexampleaccesstoken123")
	require.NoError(t, err)
	_, errTamper := c.Decode(strings.Repeat("B", len(tok)))

	// Both collapse to the same sentinel for external callers.
	assert.True(t, errors.Is(errFormat, token.ErrTokenInvalid))
	assert.True(t, errors.Is(errTamper, token.ErrTokenInvalid))
}

func TestIsWellFormed(t *testing.T) {
	assert.False(t, token.IsWellFormed(""))
	assert.False(t, token.IsWellFormed("abc"))
	assert.False(t, token.IsWellFormed(strings.Repeat("A", 100)+"+"))
	assert.True(t, token.IsWellFormed(strings.Repeat("A-_z9", 20)))
}

func TestDecodeCacheIdempotent(t *testing.T) {
	c := newCipher(t, token.Options{})

	tok, err := c.Encode("123456789012345", "EAAexampleaccesstoken123")
	require.NoError(t, err)

	first, err := c.Decode(tok)
	require.NoError(t, err)
	second, err := c.Decode(tok)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
