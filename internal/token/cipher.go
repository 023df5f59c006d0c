// Package token encodes account credentials (pixel id + access token) into
// the URL-safe authenticated token embedded in public webhook and script
// URLs. The construction is encrypt-then-MAC: AES-256-CBC under a 32-byte
// key, HMAC-SHA256 over the version byte, IV and ciphertext, base64url
// without padding.
//
// Two wire versions exist and Decode dispatches on the leading version byte:
//
//	v1: payload "pixel|token|unixCreated", random IV, rejected after MaxAge.
//	v2: payload "pixel|token", permanent. The IV defaults to a digest of the
//	    credentials so Encode is idempotent and the emitted URL is stable;
//	    set RandomIV to trade that for ciphertext unlinkability.
package token

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrTokenInvalid is the only failure Decode reports. Format, MAC, padding,
// field-count and expiry failures all collapse into it so external callers
// cannot distinguish the cause; the wrapped detail is for operator logs only.
var ErrTokenInvalid = errors.New("token invalid")

const (
	Version1 = 1 // expiring, three-field payload
	Version2 = 2 // permanent, two-field payload

	separator = "|"

	macSize = sha256.Size
	ivSize  = aes.BlockSize

	// version + mac + iv + at least one cipher block
	minDecodedLen = 1 + macSize + ivSize + aes.BlockSize
)

// Credentials is the decoded 2-tuple carried by a token.
type Credentials struct {
	PixelID     string
	AccessToken string
}

type Options struct {
	// Version selects the wire format for Encode (Decode accepts both).
	// Zero means Version2.
	Version int

	// RandomIV switches v2 encoding to a fresh random IV per call.
	RandomIV bool

	// MaxAge bounds v1 token age on decode. Zero means one year.
	MaxAge time.Duration
}

type Cipher struct {
	key      []byte
	version  int
	randomIV bool
	maxAge   time.Duration

	now func() time.Time

	// Decode cache: purely a performance optimization. Decoding is a pure
	// function, so a racing double-compute and overwrite is harmless, and
	// the cache is safe to evict at any time.
	cache sync.Map // token string -> Credentials
}

func New(key []byte, opts Options) (*Cipher, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("token: key must be 32 bytes, got %d", len(key))
	}
	version := opts.Version
	if version == 0 {
		version = Version2
	}
	if version != Version1 && version != Version2 {
		return nil, fmt.Errorf("token: unsupported version %d", version)
	}
	maxAge := opts.MaxAge
	if maxAge <= 0 {
		maxAge = 365 * 24 * time.Hour
	}
	return &Cipher{
		key:      key,
		version:  version,
		randomIV: opts.RandomIV,
		maxAge:   maxAge,
		now:      time.Now,
	}, nil
}

// Encode encrypts the credential pair into a URL-safe token.
func (c *Cipher) Encode(pixelID, accessToken string) (string, error) {
	if pixelID == "" || accessToken == "" {
		return "", fmt.Errorf("token: pixel id and access token are required")
	}
	if strings.Contains(pixelID, separator) || strings.Contains(accessToken, separator) {
		return "", fmt.Errorf("token: credentials must not contain %q", separator)
	}

	var payload string
	var iv []byte
	switch c.version {
	case Version1:
		payload = strings.Join([]string{pixelID, accessToken, strconv.FormatInt(c.now().Unix(), 10)}, separator)
		var err error
		if iv, err = randomIV(); err != nil {
			return "", err
		}
	case Version2:
		payload = strings.Join([]string{pixelID, accessToken}, separator)
		if c.randomIV {
			var err error
			if iv, err = randomIV(); err != nil {
				return "", err
			}
		} else {
			iv = deterministicIV(pixelID, accessToken)
		}
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", err
	}

	plain := pkcs7Pad([]byte(payload), aes.BlockSize)
	ct := make([]byte, len(plain))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ct, plain)

	authed := make([]byte, 0, 1+len(iv)+len(ct))
	authed = append(authed, byte(c.version))
	authed = append(authed, iv...)
	authed = append(authed, ct...)

	mac := hmac.New(sha256.New, c.key)
	mac.Write(authed)

	final := make([]byte, 0, 1+macSize+len(iv)+len(ct))
	final = append(final, byte(c.version))
	final = append(final, mac.Sum(nil)...)
	final = append(final, iv...)
	final = append(final, ct...)

	return base64.RawURLEncoding.EncodeToString(final), nil
}

// Decode authenticates and decrypts a token. The MAC is verified in constant
// time before any field is parsed or trusted.
func (c *Cipher) Decode(tok string) (Credentials, error) {
	if cached, ok := c.cache.Load(tok); ok {
		return cached.(Credentials), nil
	}

	creds, err := c.decode(tok)
	if err != nil {
		return Credentials{}, err
	}
	c.cache.Store(tok, creds)
	return creds, nil
}

func (c *Cipher) decode(tok string) (Credentials, error) {
	if !IsWellFormed(tok) {
		return Credentials{}, fmt.Errorf("%w: malformed", ErrTokenInvalid)
	}

	raw, err := base64.RawURLEncoding.DecodeString(tok)
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: base64", ErrTokenInvalid)
	}

	version := raw[0]
	if version != Version1 && version != Version2 {
		return Credentials{}, fmt.Errorf("%w: unknown version", ErrTokenInvalid)
	}

	providedMAC := raw[1 : 1+macSize]
	ivAndCT := raw[1+macSize:]

	mac := hmac.New(sha256.New, c.key)
	mac.Write([]byte{version})
	mac.Write(ivAndCT)
	if subtle.ConstantTimeCompare(providedMAC, mac.Sum(nil)) != 1 {
		return Credentials{}, fmt.Errorf("%w: mac mismatch", ErrTokenInvalid)
	}

	iv := ivAndCT[:ivSize]
	ct := ivAndCT[ivSize:]
	if len(ct) == 0 || len(ct)%aes.BlockSize != 0 {
		return Credentials{}, fmt.Errorf("%w: ciphertext length", ErrTokenInvalid)
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: cipher init", ErrTokenInvalid)
	}

	plain := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ct)

	plain, err = pkcs7Unpad(plain, aes.BlockSize)
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: padding", ErrTokenInvalid)
	}

	parts := strings.Split(string(plain), separator)
	switch version {
	case Version1:
		if len(parts) != 3 {
			return Credentials{}, fmt.Errorf("%w: payload fields", ErrTokenInvalid)
		}
		created, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			return Credentials{}, fmt.Errorf("%w: payload timestamp", ErrTokenInvalid)
		}
		if c.now().Sub(time.Unix(created, 0)) > c.maxAge {
			// Expired tokens are not a distinct outcome externally.
			return Credentials{}, fmt.Errorf("%w: expired", ErrTokenInvalid)
		}
	case Version2:
		if len(parts) != 2 {
			return Credentials{}, fmt.Errorf("%w: payload fields", ErrTokenInvalid)
		}
	}

	if parts[0] == "" || parts[1] == "" {
		return Credentials{}, fmt.Errorf("%w: empty field", ErrTokenInvalid)
	}
	return Credentials{PixelID: parts[0], AccessToken: parts[1]}, nil
}

// IsWellFormed is a cheap pre-check so callers can reject obviously bad
// input without invoking the cipher: base64url alphabet and minimum length.
func IsWellFormed(tok string) bool {
	if len(tok) < base64.RawURLEncoding.EncodedLen(minDecodedLen) {
		return false
	}
	for i := 0; i < len(tok); i++ {
		c := tok[i]
		switch {
		case c >= 'A' && c <= 'Z':
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '_':
		default:
			return false
		}
	}
	return true
}

func randomIV() ([]byte, error) {
	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("token: iv generation: %w", err)
	}
	return iv, nil
}

// deterministicIV derives the IV from the credentials themselves, so the
// same pair always encrypts to the same token.
func deterministicIV(pixelID, accessToken string) []byte {
	sum := sha256.Sum256([]byte(pixelID + separator + accessToken))
	return sum[:ivSize]
}

func pkcs7Pad(b []byte, blockSize int) []byte {
	n := blockSize - len(b)%blockSize
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte, blockSize int) ([]byte, error) {
	if len(b) == 0 || len(b)%blockSize != 0 {
		return nil, errors.New("invalid padded length")
	}
	n := int(b[len(b)-1])
	if n == 0 || n > blockSize || n > len(b) {
		return nil, errors.New("invalid padding byte")
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, errors.New("inconsistent padding")
		}
	}
	return b[:len(b)-n], nil
}
