package httpapi

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"time"

	"voicegw-platform/internal/auditlog"
	"voicegw-platform/internal/auth"
	"voicegw-platform/internal/webhook"
	"voicegw-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups the operator API handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Auth      *auth.Manager
	Audit     auditlog.Repository
	Processor *webhook.Processor

	// SharedSecret authorizes token issuance at /internal/token.
	SharedSecret string
}

// --- Token issuance ---

type tokenRequest struct {
	Secret   string `json:"secret"`
	Operator string `json:"operator"`
}

// IssueToken exchanges the shared operator secret for a short-lived JWT.
func (h Handlers) IssueToken(c *gin.Context) {
	if h.Auth == nil || h.SharedSecret == "" {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "ops auth not configured"})
		return
	}
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.Operator == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "operator required"})
		return
	}
	if subtle.ConstantTimeCompare([]byte(req.Secret), []byte(h.SharedSecret)) != 1 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid secret"})
		return
	}
	tok, err := h.Auth.Issue(time.Now(), req.Operator)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": tok})
}

// --- Webhook logs ---

// ListWebhookLogs returns the most recent archived deliveries and failures.
func (h Handlers) ListWebhookLogs(c *gin.Context) {
	if h.Audit == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "audit log not configured"})
		return
	}
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "limit must be 1-500"})
			return
		}
		limit = n
	}
	entries, err := h.Audit.ListRecent(c.Request.Context(), limit)
	if err != nil {
		logger.FromGin(c).Error("webhook log listing failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "listing failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": entries, "count": len(entries)})
}

// --- Replay ---

// ReplayWebhookLog re-runs the pipeline for one archived delivery.
// Replay bypasses dedup on purpose: the whole point is re-processing an
// event that was already seen.
func (h Handlers) ReplayWebhookLog(c *gin.Context) {
	if h.Audit == nil || h.Processor == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "replay not configured"})
		return
	}
	logID := c.Param("log_id")
	if logID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "log_id required"})
		return
	}

	entry, err := h.Audit.Get(c.Request.Context(), logID)
	if err != nil {
		if errors.Is(err, auditlog.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "log entry not found"})
			return
		}
		logger.FromGin(c).Error("webhook log lookup failed", "log_id", logID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	if entry.Payload == "" {
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": "entry has no payload"})
		return
	}

	raw := []byte(entry.Payload)
	ev, err := webhook.ParseEvent(raw)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": "archived payload unparseable"})
		return
	}

	operator, _ := auth.Operator(c.Request.Context())
	logger.FromGin(c).Info("webhook replay requested",
		"log_id", logID, "event_type", ev.Type, "operator", operator)

	if err := h.Processor.Replay(c.Request.Context(), ev, raw, entry.OrganizationID); err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"replayed": true, "log_id": logID, "event_type": ev.Type})
}
