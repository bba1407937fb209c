package vapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is the subset of the calling-provider API this service consumes.
// The full provider surface (assistant/number/call CRUD) lives with the
// dashboard backend; event processing only ever reads calls back.
type Client interface {
	GetCall(ctx context.Context, callID string) (Call, error)
}

// Factory builds a tenant-scoped client. The webhook pipeline resolves
// credentials per organization, so clients are constructed per tenant rather
// than shared.
type Factory func(ctx context.Context, orgID string) (Client, error)

// ErrNotFound means the provider does not know the call id.
var ErrNotFound = errors.New("vapi: call not found")

// Call is the provider's call resource, trimmed to the fields the event
// pipeline reads back.
type Call struct {
	ID           string     `json:"id"`
	Status       string     `json:"status"`
	StartedAt    *time.Time `json:"startedAt"`
	EndedAt      *time.Time `json:"endedAt"`
	EndedReason  string     `json:"endedReason"`
	Transcript   string     `json:"transcript"`
	Summary      string     `json:"summary"`
	RecordingURL string     `json:"recordingUrl"`
	Cost         float64    `json:"cost"`
	// Duration is reported in seconds, fractional.
	Duration float64 `json:"duration"`
}

// HasTranscript distinguishes "call exists but transcript not ready" from a
// populated call, so the backfill poller can retry instead of giving up.
func (c Call) HasTranscript() bool {
	return strings.TrimSpace(c.Transcript) != ""
}

type HTTPClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) GetCall(ctx context.Context, callID string) (Call, error) {
	if callID == "" {
		return Call{}, errors.New("vapi: call id is required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/call/"+callID, nil)
	if err != nil {
		return Call{}, fmt.Errorf("vapi: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Call{}, fmt.Errorf("vapi: get call: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Call{}, ErrNotFound
	case resp.StatusCode >= 400:
		// Drain a little for the error message, never the whole body.
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Call{}, fmt.Errorf("vapi: get call: status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var out Call
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Call{}, fmt.Errorf("vapi: decode call: %w", err)
	}
	return out, nil
}
