package osdi_test

import (
	"testing"
	"time"

	"github.com/pixelbridge/conversion-bridge/internal/contracts/osdi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const submissionPayload = `[
  {
    "osdi:submission": {
      "created_date": "2026-01-10T12:34:56Z",
      "identifiers": ["action_network:abc-123"],
      "person": {
        "given_name": "Maria",
        "family_name": "Lopez",
        "email_addresses": [{"address": "Maria.Lopez@Example.com"}],
        "phone_numbers": [{"number": "+34 612 345 678"}],
        "postal_addresses": [{"locality": "Madrid", "region": "Madrid", "postal_code": "28001", "country": "ES"}],
        "custom_fields": {"FBCLID_field": "IwAR2abc.def-123"}
      },
      "_links": {
        "osdi:person": {"href": "https://actionnetwork.org/api/v2/people/11112222-3333-4444-5555-666677778888"}
      },
      "action_network:referrer_data": {"source": "facebook", "website": "https://example.org/sign"}
    }
  }
]`

func TestParseSubmission(t *testing.T) {
	action, kind, err := osdi.Parse([]byte(submissionPayload))
	require.NoError(t, err)
	assert.Equal(t, "osdi:submission", kind)
	assert.Equal(t, "CompleteRegistration", osdi.EventName(kind))

	assert.Equal(t, "Maria.Lopez@Example.com", action.Email())
	assert.Equal(t, "+34 612 345 678", action.Phone())

	first, last := action.Names()
	assert.Equal(t, "Maria", first)
	assert.Equal(t, "Lopez", last)

	addr := action.Address()
	assert.Equal(t, "Madrid", addr.Locality)
	assert.Equal(t, "28001", addr.PostalCode)
	assert.Equal(t, "ES", addr.Country)

	assert.Equal(t, "IwAR2abc.def-123", action.ClickToken())
	assert.Equal(t, "11112222-3333-4444-5555-666677778888", action.ExternalID())
	assert.Equal(t, int64(1768048496), action.EventTime(time.Now()))
	assert.False(t, action.IsTest())
}

func TestParseDonation(t *testing.T) {
	payload := `[
	  {
	    "osdi:donation": {
	      "amount": 25.50,
	      "currency": "usd",
	      "person": {"email_addresses": [{"address": "donor@example.org"}]}
	    }
	  }
	]`

	action, kind, err := osdi.Parse([]byte(payload))
	require.NoError(t, err)
	assert.Equal(t, "Donate", osdi.EventName(kind))

	amount, currency := action.DonationAmount()
	assert.Equal(t, 25.50, amount)
	assert.Equal(t, "USD", currency)
}

func TestParseDonationDefaults(t *testing.T) {
	payload := `[{"osdi:donation": {"person": {}}}]`

	action, _, err := osdi.Parse([]byte(payload))
	require.NoError(t, err)

	amount, currency := action.DonationAmount()
	assert.Equal(t, 1.00, amount)
	assert.Equal(t, "EUR", currency)
}

func TestParseDonationRecipientAmount(t *testing.T) {
	payload := `[{"osdi:donation": {"recipients": [{"amount": "12.00"}], "person": {}}}]`

	action, _, err := osdi.Parse([]byte(payload))
	require.NoError(t, err)

	amount, _ := action.DonationAmount()
	assert.Equal(t, 12.00, amount)
}

func TestParseRejectsUnknownShape(t *testing.T) {
	_, _, err := osdi.Parse([]byte(`[{"something:else": {}}]`))
	assert.Error(t, err)

	_, _, err = osdi.Parse([]byte(`[]`))
	assert.Error(t, err)

	_, _, err = osdi.Parse([]byte(`{"not": "an array"}`))
	assert.Error(t, err)
}

func TestClickTokenLocations(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{
			"Action custom fields",
			`[{"osdi:signature": {"custom_fields": {"fbclid": "tok_1"}, "person": {}}}]`,
			"tok_1",
		},
		{
			"Form answers",
			`[{"osdi:submission": {"answers": [{"key": "FBCLID", "value": "tok_2"}], "person": {}}}]`,
			"tok_2",
		},
		{
			"Top level key",
			`[{"osdi:signature": {"an_fbclid": "tok_3", "person": {}}}]`,
			"tok_3",
		},
		{
			"Invalid format discarded",
			`[{"osdi:signature": {"custom_fields": {"fbclid": "bad token!"}, "person": {}}}]`,
			"",
		},
		{
			"Absent",
			`[{"osdi:signature": {"person": {}}}]`,
			"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			action, _, err := osdi.Parse([]byte(tt.payload))
			require.NoError(t, err)
			assert.Equal(t, tt.want, action.ClickToken())
		})
	}
}

func TestIsTest(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    bool
	}{
		{
			"Sandbox email",
			`[{"osdi:signature": {"person": {"email_addresses": [{"address": "jsmith@mail.com"}]}}}]`,
			true,
		},
		{
			"Sandbox name",
			`[{"osdi:signature": {"person": {"given_name": "John", "family_name": "Smith"}}}]`,
			true,
		},
		{
			"Sandbox identifier",
			`[{"osdi:signature": {"identifiers": ["action_network:d6bdf50e-c3a4-4981-a948-3d8c086066d7"], "person": {}}}]`,
			true,
		},
		{
			"Real person",
			`[{"osdi:signature": {"person": {"email_addresses": [{"address": "real@person.net"}]}}}]`,
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			action, _, err := osdi.Parse([]byte(tt.payload))
			require.NoError(t, err)
			assert.Equal(t, tt.want, action.IsTest())
		})
	}
}
