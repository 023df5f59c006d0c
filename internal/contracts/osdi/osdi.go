// Package osdi models the inbound Action Network webhook payload (OSDI
// vocabulary) and the field extraction rules the pipeline depends on. The
// payload shape is loose — custom fields can appear at several levels — so
// extraction is defensive and total: missing pieces yield zero values.
package osdi

import (
	"encoding/json"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Recognized action kinds, in detection order.
var actionKinds = []string{
	"osdi:signature",
	"osdi:submission",
	"osdi:outreach",
	"osdi:donation",
	"osdi:attendance",
}

var (
	clickTokenRe = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)
	personHrefRe = regexp.MustCompile(`/([a-f0-9-]+)$`)
)

type EmailAddress struct {
	Address string `json:"address"`
}

type PhoneNumber struct {
	Number string `json:"number"`
}

type PostalAddress struct {
	Locality   string `json:"locality"`
	Region     string `json:"region"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

type Person struct {
	GivenName       string          `json:"given_name"`
	FamilyName      string          `json:"family_name"`
	EmailAddresses  []EmailAddress  `json:"email_addresses"`
	PhoneNumbers    []PhoneNumber   `json:"phone_numbers"`
	PostalAddresses []PostalAddress `json:"postal_addresses"`
	CustomFields    map[string]any  `json:"custom_fields"`
}

type Answer struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

type ReferrerData struct {
	Source   string `json:"source"`
	Referrer string `json:"referrer"`
	Website  string `json:"website"`
}

// Amount tolerates both JSON numbers and numeric strings; Action Network
// has sent both.
type Amount struct {
	value float64
	valid bool
}

func (m *Amount) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		// junk amount is treated as absent, not a parse failure
		return nil
	}
	m.value, m.valid = v, true
	return nil
}

// Float returns the parsed amount and whether one was present.
func (m Amount) Float() (float64, bool) {
	return m.value, m.valid
}

type Recipient struct {
	Amount Amount `json:"amount"`
}

type links struct {
	Person struct {
		Href string `json:"href"`
	} `json:"osdi:person"`
}

// Action is one OSDI action record (signature, submission, donation, ...).
type Action struct {
	Person       *Person        `json:"person"`
	CustomFields map[string]any `json:"custom_fields"`
	Answers      []Answer       `json:"answers"`
	Identifiers  []string       `json:"identifiers"`
	CreatedDate  string         `json:"created_date"`
	Amount       Amount         `json:"amount"`
	Currency     string         `json:"currency"`
	Recipients   []Recipient    `json:"recipients"`
	AddTags      []string       `json:"add_tags"`
	ReferrerData *ReferrerData  `json:"action_network:referrer_data"`
	Links        links          `json:"_links"`

	// raw keeps the undecoded top level for the click-token scan; forms
	// sometimes stash it under arbitrary keys.
	raw map[string]any
}

func (a *Action) UnmarshalJSON(b []byte) error {
	type alias Action
	var decoded alias
	if err := json.Unmarshal(b, &decoded); err != nil {
		return err
	}
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*a = Action(decoded)
	a.raw = raw
	return nil
}

// Parse decodes a webhook body. Action Network sends an array with a single
// object keyed by action kind.
func Parse(body []byte) (*Action, string, error) {
	var items []map[string]json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, "", err
	}
	if len(items) == 0 {
		return nil, "", errNoAction
	}

	for _, kind := range actionKinds {
		rawAction, ok := items[0][kind]
		if !ok {
			continue
		}
		var action Action
		if err := json.Unmarshal(rawAction, &action); err != nil {
			return nil, "", err
		}
		return &action, kind, nil
	}
	return nil, "", errNoAction
}

var errNoAction = errors.New("no recognized action type in webhook payload")

// EventName maps the action kind to the sink event name. Donations carry
// monetary value; everything else is a registration-style conversion.
func EventName(kind string) string {
	if kind == "osdi:donation" {
		return "Donate"
	}
	return "CompleteRegistration"
}

func (a *Action) person() *Person {
	if a.Person == nil {
		return &Person{}
	}
	return a.Person
}

func (a *Action) Email() string {
	p := a.person()
	if len(p.EmailAddresses) > 0 {
		return p.EmailAddresses[0].Address
	}
	return ""
}

func (a *Action) Phone() string {
	p := a.person()
	if len(p.PhoneNumbers) > 0 {
		return p.PhoneNumbers[0].Number
	}
	return ""
}

func (a *Action) Names() (first, last string) {
	p := a.person()
	return p.GivenName, p.FamilyName
}

func (a *Action) Address() PostalAddress {
	p := a.person()
	if len(p.PostalAddresses) > 0 {
		return p.PostalAddresses[0]
	}
	return PostalAddress{}
}

// ClickToken digs the ad-click identifier out of the payload: person custom
// fields, action custom fields, form answers, then any top-level key whose
// name contains "fbclid". Values failing the format check are discarded.
func (a *Action) ClickToken() string {
	if v := scanFields(a.person().CustomFields); v != "" {
		return v
	}
	if v := scanFields(a.CustomFields); v != "" {
		return v
	}
	for _, ans := range a.Answers {
		if keyMatches(ans.Key) {
			if v := validToken(ans.Value); v != "" {
				return v
			}
		}
	}
	if v := scanFields(a.raw); v != "" {
		return v
	}
	return ""
}

func scanFields(fields map[string]any) string {
	for key, value := range fields {
		if keyMatches(key) {
			if v := validToken(value); v != "" {
				return v
			}
		}
	}
	return ""
}

func keyMatches(key string) bool {
	return strings.Contains(strings.ToLower(key), "fbclid")
}

func validToken(value any) string {
	s, ok := value.(string)
	if !ok || s == "" || !clickTokenRe.MatchString(s) {
		return ""
	}
	return s
}

// ExternalID extracts the person id from the osdi:person link, e.g.
// .../api/v2/people/12345-6789-abcd -> 12345-6789-abcd.
func (a *Action) ExternalID() string {
	href := a.Links.Person.Href
	if href == "" {
		return ""
	}
	m := personHrefRe.FindStringSubmatch(href)
	if len(m) != 2 {
		return ""
	}
	return m[1]
}

// EventTime parses created_date, falling back to now for unparseable or
// missing values.
func (a *Action) EventTime(now time.Time) int64 {
	if a.CreatedDate != "" {
		if t, err := time.Parse(time.RFC3339, a.CreatedDate); err == nil {
			return t.Unix()
		}
	}
	return now.Unix()
}

// DonationAmount returns the donation value and currency with the historical
// defaults (1.00 EUR) when the payload omits them.
func (a *Action) DonationAmount() (float64, string) {
	amount := 1.00
	if v, ok := a.Amount.Float(); ok && v > 0 {
		amount = v
	} else if len(a.Recipients) > 0 {
		if v, ok := a.Recipients[0].Amount.Float(); ok && v > 0 {
			amount = v
		}
	}

	currency := "EUR"
	if a.Currency != "" {
		currency = strings.ToUpper(a.Currency)
	}
	return amount, currency
}

// Sandbox values Action Network uses for its "send test" button. Test hits
// are acknowledged and recorded for the wizard, never forwarded.
var (
	testEmails = map[string]bool{
		"jsmith@mail.com":  true,
		"test@example.com": true,
		"demo@example.com": true,
	}
	testNames = map[string]bool{
		"john smith": true,
		"jane doe":   true,
		"test user":  true,
		"demo user":  true,
	}
	testPhones = map[string]bool{
		"11234567890": true,
		"1234567890":  true,
		"5555555555":  true,
	}
	testIDs = []string{"d6bdf50e-c3a4-4981-a948-3d8c086066d7"}
)

// IsTest reports whether the action matches a known sandbox payload.
func (a *Action) IsTest() bool {
	if testEmails[strings.ToLower(a.Email())] {
		return true
	}
	first, last := a.Names()
	if testNames[strings.ToLower(strings.TrimSpace(first+" "+last))] {
		return true
	}
	if testPhones[a.Phone()] {
		return true
	}
	for _, id := range a.Identifiers {
		for _, known := range testIDs {
			if strings.Contains(id, known) {
				return true
			}
		}
	}
	return false
}
