package assembler_test

import (
	"strings"
	"testing"

	"github.com/pixelbridge/conversion-bridge/internal/assembler"
	"github.com/pixelbridge/conversion-bridge/internal/domain"
	"github.com/pixelbridge/conversion-bridge/internal/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAssembler() *assembler.Assembler {
	return assembler.New(identity.NewEngine("34"), "34")
}

func TestBuildFullRecord(t *testing.T) {
	a := newAssembler()

	rec := a.Build(assembler.Input{
		Source:     domain.SourceWebhook,
		EventName:  "CompleteRegistration",
		EventTime:  1700000000,
		ClickToken: "IwAR2abc",
		Email:      "  Maria.Lopez@Example.com ",
		Phone:      "612 345 678",
		FirstName:  "Maria",
		LastName:   "Lopez",
		City:       "Madrid",
		Zip:        "28001",
		Country:    "ES",
		ExternalID: "person-uuid-1",
		ClientIP:   "203.0.113.7",
		ClientUA:   "curl/8",
	})

	assert.Equal(t, "CompleteRegistration", rec.EventName)
	assert.Equal(t, int64(1700000000), rec.EventTime)
	assert.Equal(t, "website", rec.ActionSource)
	assert.Equal(t, "click_token", rec.DerivationMethod)
	assert.Len(t, rec.EventID, 64)
	assert.False(t, rec.Degraded)

	// PII is hashed, 64-char hex each.
	for _, digest := range []string{
		rec.UserData.Email, rec.UserData.Phone,
		rec.UserData.FirstName, rec.UserData.LastName,
		rec.UserData.City, rec.UserData.Zip, rec.UserData.Country,
	} {
		assert.Len(t, digest, 64)
	}

	// Raw values must not leak.
	assert.NotContains(t, rec.UserData.Email, "@")
	assert.Equal(t, "person-uuid-1", rec.UserData.ExternalID)

	// fbc reconstructed from the click token, unhashed.
	assert.True(t, strings.HasPrefix(rec.UserData.FBC, "fb.1."))
	assert.True(t, strings.HasSuffix(rec.UserData.FBC, ".IwAR2abc"))

	assert.Equal(t, rec.EventID, rec.CustomData["order_id"])
	assert.Equal(t, "form_submission", rec.CustomData["content_category"])
}

func TestBuildBrowserTokensNotHashed(t *testing.T) {
	a := newAssembler()

	rec := a.Build(assembler.Input{
		Source:    domain.SourceBrowser,
		EventName: "CompleteRegistration",
		EventTime: 1700000000,
		Email:     "a@b.com",
		FBC:       "fb.1.1700000000000.IwAR2abc",
		FBP:       "fb.1.1700000000000.987654",
	})

	assert.Equal(t, "fb.1.1700000000000.IwAR2abc", rec.UserData.FBC)
	assert.Equal(t, "fb.1.1700000000000.987654", rec.UserData.FBP)
}

func TestBuildCrossPathAgreement(t *testing.T) {
	a := newAssembler()

	webhook := a.Build(assembler.Input{
		Source:    domain.SourceWebhook,
		EventName: "CompleteRegistration",
		EventTime: 1700000100,
		Email:     "USER@Example.com ",
	})
	browser := a.Build(assembler.Input{
		Source:    domain.SourceBrowser,
		EventName: "CompleteRegistration",
		EventTime: 1700000900, // same 30-minute bucket
		Email:     "  user@example.com",
	})

	require.NotEmpty(t, webhook.EventID)
	assert.Equal(t, webhook.EventID, browser.EventID)
}

func TestBuildFallbackOrder(t *testing.T) {
	a := newAssembler()

	ext := a.Build(assembler.Input{
		EventName:  "CompleteRegistration",
		EventTime:  1700000000,
		ExternalID: "person-1",
		Phone:      "+34612345678",
	})
	assert.Equal(t, "alternate", ext.DerivationMethod)

	phone := a.Build(assembler.Input{
		EventName: "CompleteRegistration",
		EventTime: 1700000000,
		Phone:     "+34612345678",
	})
	assert.Equal(t, "alternate", phone.DerivationMethod)
	assert.NotEqual(t, ext.EventID, phone.EventID)
}

func TestBuildExternalIDFallsBackToHashedEmail(t *testing.T) {
	a := newAssembler()

	rec := a.Build(assembler.Input{
		EventName: "CompleteRegistration",
		EventTime: 1700000000,
		Email:     "user@example.com",
	})

	assert.Equal(t, rec.UserData.Email, rec.UserData.ExternalID)
}

func TestBuildDegradedWithoutSignals(t *testing.T) {
	a := newAssembler()

	rec := a.Build(assembler.Input{
		Source:    domain.SourceWebhook,
		EventName: "CompleteRegistration",
		EventTime: 1700000000,
		City:      "Madrid",
	})

	assert.True(t, rec.Degraded)
	assert.Empty(t, rec.EventID)
	assert.Equal(t, "none", rec.DerivationMethod)
	_, hasOrder := rec.CustomData["order_id"]
	assert.False(t, hasOrder)
}

func TestBuildDegradedWithOnlyBrowserTokens(t *testing.T) {
	a := newAssembler()

	// fbc/fbp are correlation tokens, not identity hashes; a record carrying
	// nothing else is still degraded.
	rec := a.Build(assembler.Input{
		Source:    domain.SourceBrowser,
		EventName: "CompleteRegistration",
		EventTime: 1700000000,
		FBC:       "fb.1.1700000000000.IwAR2abc",
		FBP:       "fb.1.1700000000000.987654",
	})

	assert.True(t, rec.Degraded)
	assert.Equal(t, "fb.1.1700000000000.987654", rec.UserData.FBP)
}

func TestBuildDonationValue(t *testing.T) {
	a := newAssembler()
	value := 25.5

	rec := a.Build(assembler.Input{
		EventName: "Donate",
		EventTime: 1700000000,
		Email:     "donor@example.org",
		Value:     &value,
		Currency:  "USD",
	})

	require.NotNil(t, rec.Value)
	assert.Equal(t, 25.5, *rec.Value)
	assert.Equal(t, "USD", rec.Currency)
}
