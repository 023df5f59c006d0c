// Package service orchestrates the two ingestion paths: credential token
// decode, payload capture, record assembly, sink delivery and the
// observability fanout (delivery log, broker, metrics).
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/pixelbridge/conversion-bridge/internal/assembler"
	"github.com/pixelbridge/conversion-bridge/internal/contracts/osdi"
	"github.com/pixelbridge/conversion-bridge/internal/domain"
	"github.com/pixelbridge/conversion-bridge/internal/metrics"
	"github.com/pixelbridge/conversion-bridge/internal/pkg/logger"
	"github.com/pixelbridge/conversion-bridge/internal/token"
)

// Sink delivers one assembled record to the Conversions API.
type Sink interface {
	Send(ctx context.Context, pixelID, accessToken string, record domain.EventRecord) (int, error)
}

var (
	pixelIDRe     = regexp.MustCompile(`^\d{10,20}$`)
	accessTokenRe = regexp.MustCompile(`^EAA[A-Za-z0-9_-]{18,}$`)
)

// scriptTestEmail is the magic address the setup wizard's snippet submits to
// prove the tracker script is installed.
const scriptTestEmail = "test@test.com"

type TrackingService struct {
	cipher    *token.Cipher
	asm       *assembler.Assembler
	sink      Sink
	repo      domain.DeliveryRepository
	cache     domain.CacheRepository
	publisher domain.EventPublisher

	publicBaseURL   string
	deliveryTimeout time.Duration
	validate        *validator.Validate

	// inflight tracks detached webhook deliveries for shutdown draining.
	inflight sync.WaitGroup

	now func() time.Time
}

func NewTrackingService(
	cipher *token.Cipher,
	asm *assembler.Assembler,
	sink Sink,
	repo domain.DeliveryRepository,
	cache domain.CacheRepository,
	publisher domain.EventPublisher,
	publicBaseURL string,
	deliveryTimeout time.Duration,
) *TrackingService {
	v := validator.New()
	_ = v.RegisterValidation("pixelid", func(fl validator.FieldLevel) bool {
		return pixelIDRe.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("metatoken", func(fl validator.FieldLevel) bool {
		return accessTokenRe.MatchString(fl.Field().String())
	})

	return &TrackingService{
		cipher:          cipher,
		asm:             asm,
		sink:            sink,
		repo:            repo,
		cache:           cache,
		publisher:       publisher,
		publicBaseURL:   strings.TrimRight(publicBaseURL, "/"),
		deliveryTimeout: deliveryTimeout,
		validate:        v,
		now:             time.Now,
	}
}

// DecodeCredentials resolves a credential token from a URL or request body.
// The well-formedness pre-check rejects obvious garbage before touching the
// cipher.
func (s *TrackingService) DecodeCredentials(tok string) (token.Credentials, error) {
	if !token.IsWellFormed(tok) {
		return token.Credentials{}, token.ErrTokenInvalid
	}
	return s.cipher.Decode(tok)
}

// ClientContext carries transport-level enrichment for the server path: the
// caller's network identity plus browser correlation tokens relayed through
// the X-FB-* request headers. All fields are optional.
type ClientContext struct {
	IP        string
	UserAgent string

	// Relayed browser tokens. FBC wins over any reconstruction; ClickID is
	// only used to rebuild fbc when neither FBC nor a payload click token
	// exists. It never participates in id derivation.
	FBC     string
	FBP     string
	ClickID string
}

// ProcessWebhook handles one server-path payload. It fails fast on the
// credential token and payload shape; everything after that happens in a
// detached goroutine so the source gets its acknowledgment immediately.
func (s *TrackingService) ProcessWebhook(ctx context.Context, tok string, body []byte, client ClientContext) error {
	log := logger.WithCtx(ctx)

	creds, err := s.DecodeCredentials(tok)
	if err != nil {
		return err
	}

	action, kind, err := osdi.Parse(body)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	eventName := osdi.EventName(kind)
	metrics.RecordEventReceived(string(domain.SourceWebhook), eventName)

	if action.IsTest() {
		if err := s.cache.MarkWebhookTest(ctx, creds.PixelID); err != nil {
			log.Warn().Err(err).Msg("failed to record webhook test marker")
		}
		metrics.RecordEventRejected(string(domain.SourceWebhook), "test_payload")
		log.Info().Str("pixel_id", creds.PixelID).Str("action", kind).Msg("test webhook recorded, not forwarded")
		return nil
	}

	first, last := action.Names()
	addr := action.Address()
	clickToken := action.ClickToken()

	in := assembler.Input{
		Source:     domain.SourceWebhook,
		EventName:  eventName,
		EventTime:  action.EventTime(s.now()),
		ClickToken: clickToken,
		Email:      action.Email(),
		Phone:      action.Phone(),
		ExternalID: action.ExternalID(),
		FirstName:  first,
		LastName:   last,
		City:       addr.Locality,
		State:      addr.Region,
		Zip:        addr.PostalCode,
		Country:    addr.Country,
		FBC:        client.FBC,
		FBP:        client.FBP,
		ClientIP:   client.IP,
		ClientUA:   client.UserAgent,
	}
	if action.ReferrerData != nil {
		in.EventSourceURL = action.ReferrerData.Website
	}
	// A relayed fbclid header is the last-resort fbc source: a real fbc
	// header or a payload click token (which the assembler rebuilds from)
	// both take precedence.
	if in.FBC == "" && clickToken == "" && client.ClickID != "" {
		in.FBC = fmt.Sprintf("fb.1.%d.%s", s.now().UnixMilli(), client.ClickID)
	}
	if kind == "osdi:donation" {
		value, currency := action.DonationAmount()
		in.Value = &value
		in.Currency = currency
	}

	// Ack now, deliver in the background. WithoutCancel keeps the request id
	// for log correlation while detaching from the request lifetime.
	bgCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.deliveryTimeout)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer cancel()
		record := s.asm.Build(in)
		if _, err := s.deliver(bgCtx, creds, domain.SourceWebhook, record); err != nil {
			log := logger.WithCtx(bgCtx)
			log.Error().Err(err).Str("event_id", record.EventID).Msg("webhook delivery failed")
		}
	}()
	return nil
}

// Drain blocks until all detached webhook deliveries have finished, or the
// context expires. Called on shutdown so acked events are not lost.
func (s *TrackingService) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Browser-path request body, as sent by the tracker script. Hash is the
// legacy name for the credential token; old snippets still send it.
type BrowserEvent struct {
	Token string      `json:"token"`
	Hash  string      `json:"hash"`
	Data  BrowserData `json:"data"`
}

func (e BrowserEvent) credentialToken() string {
	if e.Token != "" {
		return e.Token
	}
	return e.Hash
}

type BrowserData struct {
	EventType string     `json:"event_type"`
	EventTime int64      `json:"event_time"`
	FormData  FormFields `json:"form_data"`
	Browser   struct {
		UserAgent string `json:"user_agent"`
	} `json:"browser_data"`
	FB struct {
		FBCLID string `json:"fbclid"`
		FBC    string `json:"fbc"`
		FBP    string `json:"fbp"`
	} `json:"fb_data"`
	Page struct {
		URL string `json:"url"`
	} `json:"page_data"`
	Value    *float64 `json:"value"`
	Currency string   `json:"currency"`
}

type FormFields struct {
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	City      string `json:"city"`
	State     string `json:"state"`
	Zip       string `json:"zip"`
	Country   string `json:"country"`
}

// ProcessBrowser handles one browser-path event synchronously and returns
// the assembled record so the caller can report the correlation id.
func (s *TrackingService) ProcessBrowser(ctx context.Context, ev BrowserEvent, clientIP string) (domain.EventRecord, error) {
	log := logger.WithCtx(ctx)

	creds, err := s.DecodeCredentials(ev.credentialToken())
	if err != nil {
		return domain.EventRecord{}, err
	}

	eventName := ev.Data.EventType
	if eventName == "" {
		eventName = "CompleteRegistration"
	}
	eventTime := ev.Data.EventTime
	if eventTime <= 0 {
		eventTime = s.now().Unix()
	}

	metrics.RecordEventReceived(string(domain.SourceBrowser), eventName)

	// The wizard's script test is recorded but still forwarded; it is a real
	// submission against the sandbox address.
	if strings.EqualFold(strings.TrimSpace(ev.Data.FormData.Email), scriptTestEmail) {
		if err := s.cache.MarkScriptTest(ctx, creds.PixelID); err != nil {
			log.Warn().Err(err).Msg("failed to record script test marker")
		}
		log.Info().Str("pixel_id", creds.PixelID).Msg("script test submission detected")
	}

	in := assembler.Input{
		Source:         domain.SourceBrowser,
		EventName:      eventName,
		EventTime:      eventTime,
		ClickToken:     ev.Data.FB.FBCLID,
		Email:          ev.Data.FormData.Email,
		Phone:          ev.Data.FormData.Phone,
		FirstName:      ev.Data.FormData.FirstName,
		LastName:       ev.Data.FormData.LastName,
		City:           ev.Data.FormData.City,
		State:          ev.Data.FormData.State,
		Zip:            ev.Data.FormData.Zip,
		Country:        ev.Data.FormData.Country,
		FBC:            ev.Data.FB.FBC,
		FBP:            ev.Data.FB.FBP,
		ClientIP:       clientIP,
		ClientUA:       ev.Data.Browser.UserAgent,
		EventSourceURL: ev.Data.Page.URL,
	}
	if eventName == "Donate" {
		value, currency := 1.00, "EUR"
		if ev.Data.Value != nil && *ev.Data.Value > 0 {
			value = *ev.Data.Value
		}
		if ev.Data.Currency != "" {
			currency = strings.ToUpper(ev.Data.Currency)
		}
		in.Value = &value
		in.Currency = currency
	}

	record := s.asm.Build(in)
	if _, err := s.deliver(ctx, creds, domain.SourceBrowser, record); err != nil {
		return record, err
	}
	return record, nil
}

// publishedEvent is the broker message body.
type publishedEvent struct {
	PixelID string             `json:"pixel_id"`
	Source  domain.Source      `json:"source"`
	Record  domain.EventRecord `json:"record"`
}

// deliver sends the record to the sink and fans the outcome out to the
// delivery log, the broker and metrics. Log and broker failures are
// swallowed: observability must never fail an ingestion.
func (s *TrackingService) deliver(ctx context.Context, creds token.Credentials, source domain.Source, record domain.EventRecord) (int, error) {
	log := logger.WithCtx(ctx)

	metrics.RecordDerivation(record.DerivationMethod)
	if record.Degraded {
		log.Warn().Str("event_name", record.EventName).Str("source", string(source)).
			Msg("no identity signal, sending degraded record")
	}

	start := s.now()
	received, err := s.sink.Send(ctx, creds.PixelID, creds.AccessToken, record)
	elapsed := time.Since(start)

	outcome := "accepted"
	if err != nil {
		outcome = "failed"
	}
	metrics.RecordDelivery(string(source), outcome, elapsed)

	if insertErr := s.repo.Insert(ctx, domain.Delivery{
		PixelID:        creds.PixelID,
		Source:         source,
		EventName:      record.EventName,
		EventID:        record.EventID,
		Degraded:       record.Degraded,
		Accepted:       err == nil,
		EventsReceived: received,
		CreatedAt:      s.now().UTC(),
	}); insertErr != nil {
		log.Warn().Err(insertErr).Msg("failed to record delivery")
	}

	s.publish(ctx, creds.PixelID, source, record)

	if err != nil {
		return received, err
	}
	log.Info().
		Str("source", string(source)).
		Str("event_name", record.EventName).
		Str("event_id", record.EventID).
		Str("derivation", record.DerivationMethod).
		Dur("took", elapsed).
		Msg("event delivered")
	return received, nil
}

func (s *TrackingService) publish(ctx context.Context, pixelID string, source domain.Source, record domain.EventRecord) {
	body, err := json.Marshal(publishedEvent{PixelID: pixelID, Source: source, Record: record})
	if err != nil {
		return
	}
	messageID := record.EventID
	if messageID == "" {
		messageID = uuid.NewString()
	}
	routingKey := "conversion." + string(source) + "." + strings.ToLower(record.EventName)
	if err := s.publisher.PublishEvent(ctx, routingKey, messageID, body); err != nil {
		log := logger.WithCtx(ctx)
		log.Warn().Err(err).Msg("failed to publish conversion event")
	}
}

// Setup wizard.

type SetupRequest struct {
	PixelID     string `json:"pixel_id" validate:"required,pixelid"`
	AccessToken string `json:"access_token" validate:"required,metatoken"`
}

type SetupResult struct {
	Token      string `json:"token"`
	WebhookURL string `json:"webhook_url"`
	ScriptURL  string `json:"script_url"`
}

// IssueSetupToken validates the operator-supplied credentials and returns
// the credential token plus ready-to-paste integration URLs.
func (s *TrackingService) IssueSetupToken(ctx context.Context, req SetupRequest) (SetupResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return SetupResult{}, fmt.Errorf("%w: pixel id must be 10-20 digits and access token a Meta token", domain.ErrValidation)
	}

	tok, err := s.cipher.Encode(req.PixelID, req.AccessToken)
	if err != nil {
		return SetupResult{}, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	return SetupResult{
		Token:      tok,
		WebhookURL: s.publicBaseURL + "/webhook?id=" + tok,
		ScriptURL:  s.publicBaseURL + "/script.js?id=" + tok,
	}, nil
}

type SetupStatus struct {
	PixelID     string `json:"pixel_id"`
	WebhookSeen bool   `json:"webhook_seen"`
	ScriptSeen  bool   `json:"script_seen"`
}

// VerifySetup reports whether test traffic was seen recently for the token's
// pixel. The wizard polls this while the operator clicks "send test".
func (s *TrackingService) VerifySetup(ctx context.Context, tok string) (SetupStatus, error) {
	creds, err := s.DecodeCredentials(tok)
	if err != nil {
		return SetupStatus{}, err
	}

	log := logger.WithCtx(ctx)
	webhookSeen, err := s.cache.WebhookTestSeen(ctx, creds.PixelID)
	if err != nil {
		log.Warn().Err(err).Msg("webhook marker lookup failed")
	}
	scriptSeen, err := s.cache.ScriptTestSeen(ctx, creds.PixelID)
	if err != nil {
		log.Warn().Err(err).Msg("script marker lookup failed")
	}

	return SetupStatus{
		PixelID:     creds.PixelID,
		WebhookSeen: webhookSeen,
		ScriptSeen:  scriptSeen,
	}, nil
}

// Stats summarizes deliveries over the window (default 24h).
func (s *TrackingService) Stats(ctx context.Context, window time.Duration) (domain.PairingStats, error) {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return s.repo.Stats(ctx, s.now().Add(-window))
}
