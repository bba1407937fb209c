package config

import (
	"strings"
	"testing"
)

func validBase() Config {
	return Config{
		App:   AppConfig{Env: "local", Port: 8080},
		DB:    DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "voicegw", SSLMode: "disable"},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Ops:   OpsConfig{JWTSecret: "secret", SharedSecret: "shared"},
		Vapi:  VapiConfig{APIBaseURL: "https://api.vapi.ai"},
	}
}

func TestValidate_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := validBase()
	c.App.Env = "production"
	c.DB.SSLMode = ""
	c.Ops.JWTIssuer = "voicegw"
	c.Ops.JWTAudience = "ops"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE")
	}
}

func TestValidate_LocalDefaultsSSLMode(t *testing.T) {
	c := validBase()
	c.DB.SSLMode = ""
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
}

func TestValidate_RejectsUnsignedInProduction(t *testing.T) {
	c := validBase()
	c.App.Env = "production"
	c.DB.SSLMode = "require"
	c.Ops.JWTIssuer = "voicegw"
	c.Ops.JWTAudience = "ops"
	c.Vapi.AllowUnsigned = true
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected error for VAPI_ALLOW_UNSIGNED in production")
	}
	if !strings.Contains(err.Error(), "VAPI_ALLOW_UNSIGNED") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_RedisDedupRequiresRedis(t *testing.T) {
	c := validBase()
	c.Webhook.DedupBackend = "redis"
	c.Redis = RedisConfig{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for redis dedup without redis config")
	}
}

func TestValidate_DefaultsDedupAndBackfill(t *testing.T) {
	c := validBase()
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if c.Webhook.DedupBackend != "memory" {
		t.Fatalf("expected memory dedup default, got %q", c.Webhook.DedupBackend)
	}
	if c.Webhook.DedupTTL <= 0 || c.Webhook.BackfillInitialDelay <= 0 {
		t.Fatalf("expected positive defaults, got %+v", c.Webhook)
	}
}
