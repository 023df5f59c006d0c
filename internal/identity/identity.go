// Package identity derives the deduplication event id shared by the webhook
// and browser pipelines. Both paths must produce byte-identical ids for the
// same underlying action without communicating, so derivation is a pure
// function of the captured signals and a coarse time bucket. The algorithm is
// pinned by golden vectors in testdata/derive_vectors.json; the browser
// script carries the same vectors.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"github.com/pixelbridge/conversion-bridge/internal/normalize"
)

// Deduplication windows. Contact-based ids tolerate up to 30 minutes of
// webhook delivery delay; alternate identifiers are less certain to be
// stable, so they get a tighter window.
const (
	ContactWindowSeconds   = 1800
	AlternateWindowSeconds = 900
)

// Alternate identifier kinds.
const (
	KindExternalID = "external_id"
	KindPhone      = "phone"
)

// AlternateID is a weaker identity signal used when neither a click token
// nor a contact address is available.
type AlternateID struct {
	Kind  string
	Value string
}

// Signals carries the optional identity inputs captured from one pipeline.
// All fields may be empty; priority is ClickToken > PrimaryContact >
// Alternate.
type Signals struct {
	// ClickToken is the ad-network click identifier (fbclid). Unique per ad
	// click, so no time bucketing is needed.
	ClickToken string

	// PrimaryContact is the submitted email address.
	PrimaryContact string

	Alternate AlternateID
}

// Engine derives event ids. It owns no state beyond the country code used
// for phone canonicalization, which must match across both call sites.
type Engine struct {
	defaultCountryCode string
}

func NewEngine(defaultCountryCode string) *Engine {
	return &Engine{defaultCountryCode: defaultCountryCode}
}

// Derive returns the correlation id for the given signals, or ok=false when
// no usable signal exists. Callers must not substitute a fabricated id: a
// made-up id still looks valid downstream and would mask pairing failures.
func (e *Engine) Derive(s Signals, eventEpoch int64) (string, bool) {
	if s.ClickToken != "" {
		contact := normalize.LowerTrim(s.PrimaryContact)
		if contact == "" {
			contact = "no_email"
		}
		return digest(s.ClickToken + "_" + contact), true
	}

	if contact := normalize.LowerTrim(s.PrimaryContact); contact != "" {
		return digest(contact + "_" + bucket(eventEpoch, ContactWindowSeconds)), true
	}

	if s.Alternate.Value != "" {
		value := e.normalizeAlternate(s.Alternate)
		if value != "" {
			return digest(s.Alternate.Kind + "_" + value + "_" + bucket(eventEpoch, AlternateWindowSeconds)), true
		}
	}

	return "", false
}

func (e *Engine) normalizeAlternate(a AlternateID) string {
	if a.Kind == KindPhone {
		return normalize.Phone(a.Value, e.defaultCountryCode)
	}
	return normalize.LowerTrim(a.Value)
}

// bucket floors the epoch to the window so two captures of the same action
// land on the same value even when their wall clocks disagree by up to
// window-1 seconds.
func bucket(epoch, window int64) string {
	return strconv.FormatInt(epoch/window*window, 10)
}

func digest(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}
