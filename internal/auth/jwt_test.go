package auth

import (
	"testing"
	"time"

	"voicegw-platform/internal/config"
)

func TestIssueAndVerifyOpsToken(t *testing.T) {
	m, err := NewManager(config.OpsConfig{
		JWTSecret:   "secret",
		JWTIssuer:   "issuer",
		JWTAudience: "aud",
		TokenTTL:    15 * time.Minute,
	})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}

	now := time.Unix(1700000000, 0).UTC()
	tok, err := m.Issue(now, "oncall")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if tok == "" {
		t.Fatal("expected token string")
	}

	claims, err := m.Verify(tok, now.Add(1*time.Minute))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Operator != "oncall" || claims.TokenType != TokenTypeOps {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	m, _ := NewManager(config.OpsConfig{JWTSecret: "secret", TokenTTL: time.Minute})
	now := time.Unix(1700000000, 0).UTC()
	tok, err := m.Issue(now, "oncall")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Verify(tok, now.Add(10*time.Minute)); err == nil {
		t.Fatal("expected expired token to fail")
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	a, _ := NewManager(config.OpsConfig{JWTSecret: "secret-a", TokenTTL: time.Minute})
	b, _ := NewManager(config.OpsConfig{JWTSecret: "secret-b", TokenTTL: time.Minute})

	tok, err := a.Issue(time.Now(), "oncall")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := b.Verify(tok, time.Now()); err == nil {
		t.Fatal("expected signature mismatch")
	}
}

func TestIssueRequiresOperator(t *testing.T) {
	m, _ := NewManager(config.OpsConfig{JWTSecret: "secret", TokenTTL: time.Minute})
	if _, err := m.Issue(time.Now(), ""); err == nil {
		t.Fatal("expected error for empty operator")
	}
}
