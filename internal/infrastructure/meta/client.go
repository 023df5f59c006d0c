// Package meta is the Conversions API sink client. The core treats the sink
// as an idempotent event store keyed by event_id; this client only delivers
// and reports, it never retries.
package meta

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pixelbridge/conversion-bridge/internal/domain"
)

type Client struct {
	baseURL    string
	apiVersion string
	httpClient *http.Client
}

func NewClient(baseURL, apiVersion string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		apiVersion: apiVersion,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type eventsRequest struct {
	Data        []domain.EventRecord `json:"data"`
	AccessToken string               `json:"access_token"`
}

type eventsResponse struct {
	EventsReceived int `json:"events_received"`
	Error          *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// Send delivers one event and returns the sink's acceptance count. Non-2xx
// responses and transport errors both surface as ErrUpstreamDelivery with
// the cause attached for logging; callers must not forward the detail to the
// original request source.
func (c *Client) Send(ctx context.Context, pixelID, accessToken string, record domain.EventRecord) (int, error) {
	url := fmt.Sprintf("%s/%s/%s/events", c.baseURL, c.apiVersion, pixelID)

	body, err := json.Marshal(eventsRequest{
		Data:        []domain.EventRecord{record},
		AccessToken: accessToken,
	})
	if err != nil {
		return 0, fmt.Errorf("%w: encode: %v", domain.ErrUpstreamDelivery, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("%w: request: %v", domain.ErrUpstreamDelivery, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "conversion-bridge/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrUpstreamDelivery, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, fmt.Errorf("%w: read response: %v", domain.ErrUpstreamDelivery, err)
	}

	var parsed eventsResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return 0, fmt.Errorf("%w: malformed response (status %d)", domain.ErrUpstreamDelivery, resp.StatusCode)
	}

	if resp.StatusCode != http.StatusOK {
		if parsed.Error != nil {
			return 0, fmt.Errorf("%w: status %d: %s", domain.ErrUpstreamDelivery, resp.StatusCode, parsed.Error.Message)
		}
		return 0, fmt.Errorf("%w: status %d", domain.ErrUpstreamDelivery, resp.StatusCode)
	}

	if parsed.EventsReceived == 0 {
		return 0, fmt.Errorf("%w: sink accepted no events", domain.ErrUpstreamDelivery)
	}
	return parsed.EventsReceived, nil
}
