package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the API process.
// All values must come from env (or env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App     AppConfig
	DB      DBConfig
	Redis   RedisConfig
	Ops     OpsConfig
	Vapi    VapiConfig
	Webhook WebhookConfig
	AI      AIConfig
}

type AppConfig struct {
	Env  string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// SSLMode is kept explicit for AWS-ready posture.
	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host string
	Port int
}

// OpsConfig configures the internal operator API (token issuance + verification).
type OpsConfig struct {
	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
	TokenTTL    time.Duration

	// SharedSecret is exchanged for a short-lived ops token at /internal/token.
	SharedSecret string
}

// VapiConfig configures the calling-provider client boundary.
// Per-tenant API keys come from the credential resolver, not from here.
type VapiConfig struct {
	APIBaseURL     string
	RequestTimeout time.Duration

	// AllowUnsigned lets unsigned webhooks through with a warning.
	// Only honored outside production; Validate() rejects it in production.
	AllowUnsigned bool
}

type WebhookConfig struct {
	// DedupBackend selects the processed-event store: "memory" or "redis".
	DedupBackend string
	// DedupTTL bounds how long redis-backed event ids are remembered.
	DedupTTL time.Duration

	// BackfillInitialDelay is the first transcript poll delay after call-ended.
	BackfillInitialDelay time.Duration
}

type AIConfig struct {
	// TriggerURL is the post-processing endpoint notified when a transcript lands.
	// Empty disables the trigger.
	TriggerURL string
	Timeout    time.Duration
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	if v := strings.TrimSpace(os.Getenv("REDIS_PORT")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			parseErrs = append(parseErrs, fmt.Errorf("REDIS_PORT must be an integer, got %q", v))
		}
		c.Redis.Port = n
	}

	c.Ops.JWTSecret = os.Getenv("OPS_JWT_SECRET")
	c.Ops.JWTIssuer = strings.TrimSpace(os.Getenv("OPS_JWT_ISSUER"))
	c.Ops.JWTAudience = strings.TrimSpace(os.Getenv("OPS_JWT_AUDIENCE"))
	c.Ops.TokenTTL = mustDuration("OPS_TOKEN_TTL")
	c.Ops.SharedSecret = os.Getenv("OPS_SHARED_SECRET")

	c.Vapi.APIBaseURL = strings.TrimSpace(os.Getenv("VAPI_API_BASE_URL"))
	c.Vapi.RequestTimeout = mustDuration("VAPI_REQUEST_TIMEOUT")
	c.Vapi.AllowUnsigned = boolEnv("VAPI_ALLOW_UNSIGNED")

	c.Webhook.DedupBackend = strings.TrimSpace(os.Getenv("WEBHOOK_DEDUP_BACKEND"))
	c.Webhook.DedupTTL = mustDuration("WEBHOOK_DEDUP_TTL")
	c.Webhook.BackfillInitialDelay = mustDuration("WEBHOOK_BACKFILL_INITIAL_DELAY")

	c.AI.TriggerURL = strings.TrimSpace(os.Getenv("AI_TRIGGER_URL"))
	c.AI.Timeout = mustDuration("AI_TRIGGER_TIMEOUT")

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if strings.TrimSpace(c.DB.SSLMode) == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			// Local-friendly default; production must be explicit.
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Webhook.DedupBackend == "" {
		c.Webhook.DedupBackend = "memory"
	}
	switch c.Webhook.DedupBackend {
	case "memory":
		// Redis config is optional for single-instance deployments.
	case "redis":
		if c.Redis.Host == "" {
			errs = append(errs, errors.New("REDIS_HOST is required when WEBHOOK_DEDUP_BACKEND=redis"))
		}
		if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
			errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
		}
	default:
		errs = append(errs, fmt.Errorf("WEBHOOK_DEDUP_BACKEND must be memory or redis, got %q", c.Webhook.DedupBackend))
	}
	if c.Webhook.DedupTTL <= 0 {
		// Bounds redis key retention; the memory dedup set ignores it.
		c.Webhook.DedupTTL = 24 * time.Hour
	}
	if c.Webhook.BackfillInitialDelay <= 0 {
		c.Webhook.BackfillInitialDelay = 30 * time.Second
	}

	if c.Ops.JWTSecret == "" {
		errs = append(errs, errors.New("OPS_JWT_SECRET is required"))
	}
	if c.Ops.SharedSecret == "" {
		errs = append(errs, errors.New("OPS_SHARED_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Ops.JWTIssuer == "" {
			errs = append(errs, errors.New("OPS_JWT_ISSUER is required in production"))
		}
		if c.Ops.JWTAudience == "" {
			errs = append(errs, errors.New("OPS_JWT_AUDIENCE is required in production"))
		}
	}
	if c.Ops.TokenTTL <= 0 {
		c.Ops.TokenTTL = 15 * time.Minute
	}

	if c.Vapi.APIBaseURL == "" {
		errs = append(errs, errors.New("VAPI_API_BASE_URL is required"))
	}
	if c.Vapi.RequestTimeout <= 0 {
		c.Vapi.RequestTimeout = 10 * time.Second
	}
	if c.Vapi.AllowUnsigned && c.IsProduction() {
		// The unsigned escape hatch exists for local development only.
		errs = append(errs, errors.New("VAPI_ALLOW_UNSIGNED must not be set in production"))
	}

	if c.AI.Timeout <= 0 {
		c.AI.Timeout = 10 * time.Second
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func mustDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func boolEnv(key string) bool {
	v := strings.TrimSpace(os.Getenv(key))
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false
	}
	return b
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
