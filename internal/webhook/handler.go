package webhook

import (
	"context"
	"errors"
	"net/http"
	"time"

	"voicegw-platform/internal/auditlog"
	"voicegw-platform/internal/calls"
	"voicegw-platform/internal/credentials"
	"voicegw-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handler is the inbound webhook boundary.
//
// The contract with the provider is ack-first: the 200 goes out as soon as
// the signature checks, and every side effect happens on a background
// goroutine. The provider retries on slow acks, so business-logic latency
// must never sit on the response path.
type Handler struct {
	Credentials *credentials.Resolver
	Calls       calls.Store
	Processor   *Processor
	Audit       auditlog.Repository

	// Production rejects unsigned traffic outright. AllowUnsigned is the
	// config-gated local-development escape hatch; it is never honored when
	// Production is set.
	Production    bool
	AllowUnsigned bool

	Now func() time.Time
}

// auditRow is the status-endpoint projection of a webhook log entry.
// The raw payload is deliberately excluded from the listing.
type auditRow struct {
	ID        string    `json:"id"`
	EventID   string    `json:"event_id"`
	Type      string    `json:"type"`
	EventType string    `json:"event_type,omitempty"`
	CallID    string    `json:"call_id,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// HandleEvent implements POST /webhook.
func (h *Handler) HandleEvent(c *gin.Context) {
	log := logger.FromGin(c)
	now := time.Now
	if h.Now != nil {
		now = h.Now
	}

	raw, err := c.GetRawData()
	if err != nil || len(raw) == 0 {
		if h.Production {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "raw body required"})
			return
		}
		log.Warn("webhook raw body unavailable", "err", err)
	}

	ev, err := ParseEvent(raw)
	if err != nil {
		log.Error("webhook parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "invalid payload"})
		return
	}

	orgID := h.resolveOrganization(c.Request.Context(), ev)

	verified := false
	sig := c.GetHeader(SignatureHeader)
	if orgID != "" {
		creds, cerr := h.Credentials.Resolve(c.Request.Context(), orgID)
		if cerr == nil {
			verified = VerifySignature(raw, sig, creds.PublicKey)
		} else {
			log.Warn("tenant has no provider credentials, cannot verify", "organization_id", orgID)
		}
	} else {
		log.Warn("webhook tenant unresolved, cannot verify", "type", ev.Type, "call_id", ev.ResolveCallID())
	}

	if !verified {
		// Unsigned traffic passes only via the explicit non-production
		// escape hatch; a present-but-wrong signature never does.
		if h.Production || !h.AllowUnsigned || sig != "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
			return
		}
		log.Warn("unsigned webhook allowed through", "type", ev.Type, "organization_id", orgID)
	}

	// Acknowledge before any side effect.
	c.JSON(http.StatusOK, gin.H{"received": true})

	h.Processor.ProcessAsync(ev, raw, orgID, now())
}

// resolveOrganization finds the owning tenant: payload hint, then a call
// lookup by provider id, then a phone-number lookup.
func (h *Handler) resolveOrganization(ctx context.Context, ev Event) string {
	if org := ev.OrganizationHint(); org != "" {
		return org
	}
	if h.Calls == nil {
		return ""
	}
	if callID := ev.ResolveCallID(); callID != "" {
		org, err := h.Calls.OrganizationForProviderCall(ctx, callID)
		if err == nil {
			return org
		}
		if !errors.Is(err, calls.ErrNotFound) {
			logger.From(ctx).Warn("call org lookup failed", "call_id", callID, "err", err)
		}
	}
	if number := h.phoneNumberHint(ev); number != "" {
		org, err := h.Calls.OrganizationForPhoneNumber(ctx, number)
		if err == nil {
			return org
		}
		if !errors.Is(err, calls.ErrNotFound) {
			logger.From(ctx).Warn("phone number org lookup failed", "number", number, "err", err)
		}
	}
	return ""
}

func (h *Handler) phoneNumberHint(ev Event) string {
	if ev.PhoneNumber != nil && ev.PhoneNumber.Number != "" {
		return ev.PhoneNumber.Number
	}
	if ev.Call != nil && ev.Call.Customer != nil {
		return ev.Call.Customer.Number
	}
	return ""
}

// HandleStatus implements GET /webhook/status: in-memory processing
// counters, recent audit rows, and static metadata. Operational surface
// only; no tenant data beyond what the audit log stores.
func (h *Handler) HandleStatus(c *gin.Context) {
	var processed int64
	if h.Processor != nil && h.Processor.dedup != nil {
		if n, err := h.Processor.dedup.Size(c.Request.Context()); err == nil {
			processed = n
		}
	}

	recent := []auditRow{}
	if h.Audit != nil {
		entries, err := h.Audit.ListRecent(c.Request.Context(), 20)
		if err != nil {
			logger.FromGin(c).Warn("status audit listing failed", "err", err)
		}
		for _, e := range entries {
			recent = append(recent, auditRow{
				ID:        e.ID,
				EventID:   e.EventID,
				Type:      string(e.Type),
				EventType: e.EventType,
				CallID:    e.CallID,
				Error:     e.Error,
				CreatedAt: e.CreatedAt,
			})
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"processed_events": processed,
		"recent_logs":      recent,
		"supported_events": SupportedEventTypes,
		"signature_header": SignatureHeader,
		"unsigned_allowed": h.AllowUnsigned && !h.Production,
		"production":       h.Production,
	})
}
