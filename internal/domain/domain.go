package domain

import (
	"context"
	"errors"
	"time"
)

// Ingestion paths. Pairing statistics key on an event id having been seen
// from both sources.
type Source string

const (
	SourceWebhook Source = "webhook"
	SourceBrowser Source = "browser"
)

var (
	// ErrValidation covers malformed or missing required input; reported to
	// the caller as a 4xx.
	ErrValidation = errors.New("invalid request")

	// ErrUpstreamDelivery means the sink was unreachable or rejected the
	// event. Detail goes to logs; callers get a generic failure and no
	// retry from the core.
	ErrUpstreamDelivery = errors.New("upstream delivery failed")
)

// UserData is the identity section of an outbound event. Personally
// identifying fields hold SHA-256 hex digests; fbc/fbp are opaque browser
// correlation tokens and are deliberately NOT hashed.
type UserData struct {
	Email      string `json:"em,omitempty"`
	Phone      string `json:"ph,omitempty"`
	FirstName  string `json:"fn,omitempty"`
	LastName   string `json:"ln,omitempty"`
	City       string `json:"ct,omitempty"`
	State      string `json:"st,omitempty"`
	Zip        string `json:"zp,omitempty"`
	Country    string `json:"country,omitempty"`
	ExternalID string `json:"external_id,omitempty"`

	ClientIP string `json:"client_ip_address,omitempty"`
	ClientUA string `json:"client_user_agent,omitempty"`

	FBC string `json:"fbc,omitempty"`
	FBP string `json:"fbp,omitempty"`
}

// HasIdentity reports whether at least one hashed identity field is set.
// The fbc/fbp cookies are correlation tokens, not identity hashes, so a
// record carrying only those still counts as degraded.
func (u UserData) HasIdentity() bool {
	return u.Email != "" || u.Phone != "" || u.ExternalID != ""
}

// EventRecord is the outbound record handed to the sink. The JSON shape
// follows the Conversions API event payload.
type EventRecord struct {
	EventName      string         `json:"event_name"`
	EventTime      int64          `json:"event_time"`
	EventID        string         `json:"event_id,omitempty"`
	ActionSource   string         `json:"action_source"`
	EventSourceURL string         `json:"event_source_url,omitempty"`
	Value          *float64       `json:"value,omitempty"`
	Currency       string         `json:"currency,omitempty"`
	UserData       UserData       `json:"user_data"`
	CustomData     map[string]any `json:"custom_data,omitempty"`

	// Degraded marks a record assembled without any identity hash. The sink
	// may still accept it, just with poor match quality; flagged for
	// observability rather than rejected.
	Degraded bool `json:"-"`

	// DerivationMethod records which identity branch produced EventID
	// ("click_token", "contact", "alternate", "none").
	DerivationMethod string `json:"-"`
}

// Delivery is the structured outcome of one sink call, recorded for the
// pairing dashboard. It is observability data only: correlation never reads
// it back.
type Delivery struct {
	PixelID        string
	Source         Source
	EventName      string
	EventID        string
	Degraded       bool
	Accepted       bool
	EventsReceived int
	CreatedAt      time.Time
}

// PairingStats summarizes recent deliveries for the dashboard.
type PairingStats struct {
	Total    int
	Webhook  int
	Browser  int
	Accepted int
	Degraded int

	// Paired counts event ids reported by both sources.
	Paired int
}

type DeliveryRepository interface {
	Insert(ctx context.Context, d Delivery) error
	Stats(ctx context.Context, since time.Time) (PairingStats, error)
}

// CacheRepository backs rate limiting and the setup wizard's short-lived
// verification markers.
type CacheRepository interface {
	AllowRequest(ctx context.Context, ip string, limit int, window time.Duration) (bool, error)

	MarkWebhookTest(ctx context.Context, pixelID string) error
	MarkScriptTest(ctx context.Context, pixelID string) error
	WebhookTestSeen(ctx context.Context, pixelID string) (bool, error)
	ScriptTestSeen(ctx context.Context, pixelID string) (bool, error)
}

// EventPublisher fans assembled outcomes out to interested consumers.
// Publishing is fire-and-forget; failures are logged, never surfaced.
type EventPublisher interface {
	PublishEvent(ctx context.Context, routingKey, messageID string, body []byte) error
}
