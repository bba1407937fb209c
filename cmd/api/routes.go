package main

import (
	"database/sql"
	"net/http"
	"time"

	"voicegw-platform/internal/auditlog"
	"voicegw-platform/internal/auth"
	"voicegw-platform/internal/calls"
	"voicegw-platform/internal/config"
	"voicegw-platform/internal/credentials"
	"voicegw-platform/internal/httpapi"
	"voicegw-platform/internal/webhook"
	"voicegw-platform/pkg/utils"

	"github.com/gin-gonic/gin"
)

type registerDeps struct {
	cfg       config.Config
	db        *sql.DB
	ops       *auth.Manager
	resolver  *credentials.Resolver
	calls     calls.Store
	audit     auditlog.Repository
	processor *webhook.Processor
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, deps registerDeps) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), deps.db, 2*time.Second); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "postgres": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Provider webhooks (public, protected by per-tenant HMAC signatures).
	wh := &webhook.Handler{
		Credentials:   deps.resolver,
		Calls:         deps.calls,
		Processor:     deps.processor,
		Audit:         deps.audit,
		Production:    deps.cfg.IsProduction(),
		AllowUnsigned: deps.cfg.Vapi.AllowUnsigned,
	}
	r.POST("/webhook", wh.HandleEvent)
	r.GET("/webhook/status", wh.HandleStatus)

	// operator API
	ops := httpapi.Handlers{
		Auth:         deps.ops,
		Audit:        deps.audit,
		Processor:    deps.processor,
		SharedSecret: deps.cfg.Ops.SharedSecret,
	}
	r.POST("/internal/token", ops.IssueToken)

	internal := r.Group("/internal", auth.RequireOpsToken(deps.ops))
	{
		internal.GET("/webhook/logs", ops.ListWebhookLogs)
		internal.POST("/webhook/replay/:log_id", ops.ReplayWebhookLog)
	}
}
