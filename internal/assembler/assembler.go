// Package assembler builds the outbound event record from one pipeline's
// view of an action: derives the correlation id, hashes identity fields, and
// attaches the opaque browser tokens and context the sink uses for matching.
package assembler

import (
	"fmt"
	"time"

	"github.com/pixelbridge/conversion-bridge/internal/domain"
	"github.com/pixelbridge/conversion-bridge/internal/hashing"
	"github.com/pixelbridge/conversion-bridge/internal/identity"
	"github.com/pixelbridge/conversion-bridge/internal/normalize"
)

// Input is the normalized capture from either ingestion path. All fields are
// optional; the assembler degrades instead of failing.
type Input struct {
	Source    domain.Source
	EventName string
	EventTime int64

	// Identity signals (raw, pre-normalization).
	ClickToken string
	Email      string
	Phone      string
	ExternalID string

	// PII fields to hash.
	FirstName string
	LastName  string
	City      string
	State     string
	Zip       string
	Country   string

	// Opaque browser correlation tokens; never hashed.
	FBC string
	FBP string

	ClientIP string
	ClientUA string

	EventSourceURL string

	// Donation value; nil for non-monetary events.
	Value    *float64
	Currency string

	// Extra source-specific fields merged into custom_data.
	Custom map[string]any
}

type Assembler struct {
	engine             *identity.Engine
	defaultCountryCode string

	now func() time.Time
}

func New(engine *identity.Engine, defaultCountryCode string) *Assembler {
	return &Assembler{
		engine:             engine,
		defaultCountryCode: defaultCountryCode,
		now:                time.Now,
	}
}

// Build assembles the outbound record. A record without any identity hash is
// still produced — the sink may accept it with degraded match quality — but
// is flagged so the condition is observable.
func (a *Assembler) Build(in Input) domain.EventRecord {
	eventID, method := a.deriveID(in)

	user := domain.UserData{
		ClientIP: in.ClientIP,
		ClientUA: in.ClientUA,
		FBP:      in.FBP,
	}

	setHash(&user.Email, in.Email, hashing.FieldContact)
	setHash(&user.FirstName, in.FirstName, hashing.FieldName)
	setHash(&user.LastName, in.LastName, hashing.FieldName)
	setHash(&user.City, in.City, hashing.FieldLocality)
	setHash(&user.State, in.State, hashing.FieldRegion)
	setHash(&user.Zip, in.Zip, hashing.FieldPostalCode)
	setHash(&user.Country, in.Country, hashing.FieldCountry)

	if phone := normalize.Phone(in.Phone, a.defaultCountryCode); phone != "" {
		setHash(&user.Phone, phone, hashing.FieldPhone)
	}

	// The source's own person id wins; hashed email is the stable fallback
	// so the sink sees a consistent external_id across both paths.
	if in.ExternalID != "" {
		user.ExternalID = in.ExternalID
	} else {
		setHash(&user.ExternalID, in.Email, hashing.FieldContact)
	}

	// fbc carries the click token in cookie format. A real cookie value from
	// the browser wins over one reconstructed server-side.
	user.FBC = in.FBC
	if user.FBC == "" && in.ClickToken != "" {
		user.FBC = fmt.Sprintf("fb.1.%d.%s", a.now().UnixMilli(), in.ClickToken)
	}

	record := domain.EventRecord{
		EventName:        in.EventName,
		EventTime:        in.EventTime,
		EventID:          eventID,
		ActionSource:     "website",
		EventSourceURL:   in.EventSourceURL,
		Value:            in.Value,
		Currency:         in.Currency,
		UserData:         user,
		CustomData:       a.customData(in, eventID),
		Degraded:         !user.HasIdentity(),
		DerivationMethod: method,
	}
	return record
}

// deriveID applies the signal priority: click token, then contact, then
// external id, then phone.
func (a *Assembler) deriveID(in Input) (string, string) {
	signals := identity.Signals{
		ClickToken:     in.ClickToken,
		PrimaryContact: in.Email,
	}
	if id, ok := a.engine.Derive(signals, in.EventTime); ok {
		if in.ClickToken != "" {
			return id, "click_token"
		}
		return id, "contact"
	}

	for _, alt := range []identity.AlternateID{
		{Kind: identity.KindExternalID, Value: in.ExternalID},
		{Kind: identity.KindPhone, Value: in.Phone},
	} {
		if alt.Value == "" {
			continue
		}
		if id, ok := a.engine.Derive(identity.Signals{Alternate: alt}, in.EventTime); ok {
			return id, "alternate"
		}
	}
	return "", "none"
}

func (a *Assembler) customData(in Input, eventID string) map[string]any {
	custom := map[string]any{
		"content_category": "form_submission",
		"content_name":     in.EventName + "_" + string(in.Source),
		"tracking_source":  string(in.Source),
	}
	if eventID != "" {
		custom["order_id"] = eventID
	}
	for k, v := range in.Custom {
		custom[k] = v
	}
	return custom
}

func setHash(dst *string, value string, fieldType hashing.FieldType) {
	if digest, ok := hashing.Hash(value, fieldType); ok {
		*dst = digest
	}
}
