package aitrigger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Trigger kicks off downstream transcript analysis for a call.
// Callers fire-and-forget: the pipeline never waits on or inspects analysis
// results beyond logging a synchronous failure.
type Trigger interface {
	ProcessCall(ctx context.Context, callID string) error
}

// Noop is used when no analysis endpoint is configured.
type Noop struct{}

func (Noop) ProcessCall(ctx context.Context, callID string) error { return nil }

// HTTPTrigger POSTs the call id to the analysis service.
type HTTPTrigger struct {
	endpoint string
	http     *http.Client
}

func NewHTTPTrigger(endpoint string, timeout time.Duration) *HTTPTrigger {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPTrigger{
		endpoint: endpoint,
		http:     &http.Client{Timeout: timeout},
	}
}

func (t *HTTPTrigger) ProcessCall(ctx context.Context, callID string) error {
	body, err := json.Marshal(map[string]string{"callId": callID})
	if err != nil {
		return fmt.Errorf("aitrigger: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("aitrigger: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.http.Do(req)
	if err != nil {
		return fmt.Errorf("aitrigger: post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("aitrigger: post: status %d", resp.StatusCode)
	}
	return nil
}
