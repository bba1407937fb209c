package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"voicegw-platform/internal/auditlog"
	"voicegw-platform/internal/auth"
	"voicegw-platform/internal/calls"
	"voicegw-platform/internal/config"
	"voicegw-platform/internal/webhook"

	"github.com/gin-gonic/gin"
)

type fixture struct {
	router *gin.Engine
	audit  *auditlog.MemoryRepo
	calls  *calls.MemoryRepo
	mgr    *auth.Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mgr, err := auth.NewManager(config.OpsConfig{JWTSecret: "test-secret", TokenTTL: time.Minute})
	if err != nil {
		t.Fatal(err)
	}

	f := &fixture{
		audit: auditlog.NewMemoryRepo(),
		calls: calls.NewMemoryRepo(),
		mgr:   mgr,
	}
	proc := webhook.NewProcessor(webhook.ProcessorConfig{
		Calls: f.calls,
		Audit: auditlog.NewWriter(f.audit, nil),
		Dedup: webhook.NewMemoryDeduplicator(),
	})
	h := Handlers{
		Auth:         mgr,
		Audit:        f.audit,
		Processor:    proc,
		SharedSecret: "ops-shared",
	}

	f.router = gin.New()
	f.router.POST("/internal/token", h.IssueToken)
	protected := f.router.Group("/internal", auth.RequireOpsToken(mgr))
	protected.GET("/webhook/logs", h.ListWebhookLogs)
	protected.POST("/webhook/replay/:log_id", h.ReplayWebhookLog)
	return f
}

func (f *fixture) token(t *testing.T) string {
	t.Helper()
	tok, err := f.mgr.Issue(time.Now(), "tester")
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestIssueToken(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/internal/token", "", map[string]string{
		"secret": "ops-shared", "operator": "oncall",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp.Token == "" {
		t.Fatalf("token response: %s", w.Body.String())
	}
	claims, err := f.mgr.Verify(resp.Token, time.Now())
	if err != nil || claims.Operator != "oncall" {
		t.Fatalf("issued token does not verify: %v %+v", err, claims)
	}
}

func TestIssueToken_WrongSecret(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/internal/token", "", map[string]string{
		"secret": "wrong", "operator": "oncall",
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestListWebhookLogs_RequiresToken(t *testing.T) {
	f := newFixture(t)

	if w := f.do(t, http.MethodGet, "/internal/webhook/logs", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if w := f.do(t, http.MethodGet, "/internal/webhook/logs", "not-a-jwt", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestListWebhookLogs(t *testing.T) {
	f := newFixture(t)
	w0 := auditlog.NewWriter(f.audit, nil)
	w0.RecordReceived(context.Background(), "evt-1", "call-started", "c-1", "org-1", []byte(`{}`))
	w0.RecordReceived(context.Background(), "evt-2", "call-ended", "c-1", "org-1", []byte(`{}`))

	w := f.do(t, http.MethodGet, "/internal/webhook/logs?limit=1", f.token(t), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp.Count != 1 {
		t.Fatalf("body = %s", w.Body.String())
	}

	if w := f.do(t, http.MethodGet, "/internal/webhook/logs?limit=9999", f.token(t), nil); w.Code != http.StatusBadRequest {
		t.Fatalf("oversized limit: status = %d, want 400", w.Code)
	}
}

func TestReplayWebhookLog(t *testing.T) {
	f := newFixture(t)
	payload := `{"type":"call-started","id":"evt-1","call":{"id":"c-7"}}`
	auditlog.NewWriter(f.audit, nil).RecordReceived(
		context.Background(), "evt-1", "call-started", "c-7", "org-1", []byte(payload))
	entryID := f.audit.Entries()[0].ID

	w := f.do(t, http.MethodPost, "/internal/webhook/replay/"+entryID, f.token(t), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	// Replay bypasses dedup and hits the store directly.
	c, err := f.calls.GetByRef(context.Background(), "c-7")
	if err != nil {
		t.Fatalf("replayed event not applied: %v", err)
	}
	if c.OrganizationID != "org-1" {
		t.Fatalf("org from archived entry not used: %+v", c)
	}
}

func TestReplayWebhookLog_NotFound(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/internal/webhook/replay/missing", f.token(t), nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}
