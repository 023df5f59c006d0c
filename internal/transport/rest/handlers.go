package rest

import (
	"bytes"
	_ "embed"
	"errors"
	"io"
	"net/http"
	"strings"
	"text/template"
	"time"

	"github.com/go-chi/render"
	"github.com/pixelbridge/conversion-bridge/internal/domain"
	appCtx "github.com/pixelbridge/conversion-bridge/internal/pkg/context"
	"github.com/pixelbridge/conversion-bridge/internal/service"
	"github.com/pixelbridge/conversion-bridge/internal/token"
	"github.com/pixelbridge/conversion-bridge/internal/transport/rest/response"
)

// Webhook bodies are small JSON documents; anything bigger is abuse.
const maxWebhookBody = 1 << 20

//go:embed assets/tracker.js
var trackerScript string

var trackerTmpl = template.Must(template.New("tracker").Parse(trackerScript))

type Handler struct {
	svc           *service.TrackingService
	publicBaseURL string
}

func NewHandler(svc *service.TrackingService, publicBaseURL string) *Handler {
	return &Handler{svc: svc, publicBaseURL: strings.TrimRight(publicBaseURL, "/")}
}

// Webhook accepts the server-path payload. A 200 here means "payload
// accepted", not "delivered": delivery continues after the response so the
// source never retries on slow sink days.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	tok := strings.TrimSpace(r.URL.Query().Get("id"))
	if tok == "" {
		fail(w, r, http.StatusUnauthorized, "auth.invalid_token", "missing or invalid credential token", nil)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil || len(body) == 0 {
		fail(w, r, http.StatusBadRequest, "request.invalid", "empty or unreadable body", nil)
		return
	}

	// Browser correlation tokens relayed through custom headers; absent
	// headers simply leave the fields empty.
	client := service.ClientContext{
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
		FBC:       strings.TrimSpace(r.Header.Get("X-FB-FBC")),
		FBP:       strings.TrimSpace(r.Header.Get("X-FB-FBP")),
		ClickID:   strings.TrimSpace(r.Header.Get("X-FB-FBCLID")),
	}

	if err := h.svc.ProcessWebhook(r.Context(), tok, body, client); err != nil {
		handleErr(w, r, err)
		return
	}

	response.Data(w, http.StatusOK, map[string]string{"status": "accepted"})
}

// Track accepts the browser-path payload and delivers synchronously.
func (h *Handler) Track(w http.ResponseWriter, r *http.Request) {
	var ev service.BrowserEvent
	if err := render.DecodeJSON(r.Body, &ev); err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid body", nil)
		return
	}

	record, err := h.svc.ProcessBrowser(r.Context(), ev, clientIP(r))
	if err != nil {
		handleErr(w, r, err)
		return
	}

	response.Data(w, http.StatusOK, map[string]any{
		"status":   "delivered",
		"event_id": record.EventID,
	})
}

// Script serves the tracker JavaScript with the ingest endpoint and the
// caller's credential token templated in. The token is validated first so a
// broken copy-paste fails here, not silently in the browser.
func (h *Handler) Script(w http.ResponseWriter, r *http.Request) {
	tok := strings.TrimSpace(r.URL.Query().Get("id"))
	if _, err := h.svc.DecodeCredentials(tok); err != nil {
		fail(w, r, http.StatusUnauthorized, "auth.invalid_token", "missing or invalid credential token", nil)
		return
	}

	var buf bytes.Buffer
	if err := trackerTmpl.Execute(&buf, map[string]string{
		"Endpoint": h.publicBaseURL + "/api/track",
		"Token":    tok,
	}); err != nil {
		fail(w, r, http.StatusInternalServerError, "internal", "internal error", nil)
		return
	}

	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) SetupToken(w http.ResponseWriter, r *http.Request) {
	var req service.SetupRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid body", nil)
		return
	}

	res, err := h.svc.IssueSetupToken(r.Context(), req)
	if err != nil {
		handleErr(w, r, err)
		return
	}

	response.Data(w, http.StatusOK, res)
}

func (h *Handler) SetupVerify(w http.ResponseWriter, r *http.Request) {
	tok := strings.TrimSpace(r.URL.Query().Get("token"))
	if tok == "" {
		tok = strings.TrimSpace(r.URL.Query().Get("id"))
	}

	status, err := h.svc.VerifySetup(r.Context(), tok)
	if err != nil {
		handleErr(w, r, err)
		return
	}

	response.Data(w, http.StatusOK, status)
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	var window time.Duration
	if s := strings.TrimSpace(r.URL.Query().Get("window")); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil || d <= 0 {
			fail(w, r, http.StatusBadRequest, "request.invalid", "invalid window", map[string]string{
				"window": "must be a positive duration, e.g. 24h",
			})
			return
		}
		window = d
	}

	stats, err := h.svc.Stats(r.Context(), window)
	if err != nil {
		handleErr(w, r, err)
		return
	}

	response.Data(w, http.StatusOK, map[string]any{
		"total":    stats.Total,
		"webhook":  stats.Webhook,
		"browser":  stats.Browser,
		"accepted": stats.Accepted,
		"degraded": stats.Degraded,
		"paired":   stats.Paired,
	})
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	response.Data(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		fail(w, r, http.StatusBadRequest, "request.invalid", err.Error(), nil)

	case errors.Is(err, token.ErrTokenInvalid):
		// One generic message regardless of cause; detail stays in logs.
		fail(w, r, http.StatusUnauthorized, "auth.invalid_token", "missing or invalid credential token", nil)

	case errors.Is(err, domain.ErrUpstreamDelivery):
		fail(w, r, http.StatusBadGateway, "delivery.failed", "event could not be delivered", nil)

	default:
		fail(w, r, http.StatusInternalServerError, "internal", "internal error", nil)
	}
}

func fail(w http.ResponseWriter, r *http.Request, status int, code, message string, meta map[string]string) {
	reqID := appCtx.GetRequestID(r.Context())
	if reqID == "" {
		reqID = "no-request-id"
	}
	response.Fail(w, status, code, message, meta, reqID)
}
