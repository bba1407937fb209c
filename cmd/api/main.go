package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"voicegw-platform/internal/aitrigger"
	"voicegw-platform/internal/auditlog"
	"voicegw-platform/internal/auth"
	"voicegw-platform/internal/backfill"
	"voicegw-platform/internal/calls"
	"voicegw-platform/internal/config"
	"voicegw-platform/internal/credentials"
	"voicegw-platform/internal/vapi"
	"voicegw-platform/internal/webhook"
	"voicegw-platform/pkg/logger"
	"voicegw-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Optional env file for local runs; real deployments inject env directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	opsManager, err := auth.NewManager(cfg.Ops)
	if err != nil {
		log.Error("ops auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	var dedup webhook.Deduplicator
	switch cfg.Webhook.DedupBackend {
	case "redis":
		rdb, rerr := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
		if rerr != nil {
			log.Error("redis init failed", "err", rerr)
			os.Exit(1)
		}
		defer rdb.Close()
		dedup = webhook.NewRedisDeduplicator(rdb, cfg.Webhook.DedupTTL)
	default:
		dedup = webhook.NewMemoryDeduplicator()
	}

	callStore := calls.NewPostgresRepo(db)
	auditRepo := auditlog.NewPostgresRepo(db)
	resolver := credentials.NewResolver(credentials.NewPostgresStore(db), log)

	var trigger aitrigger.Trigger = aitrigger.Noop{}
	if cfg.AI.TriggerURL != "" {
		trigger = aitrigger.NewHTTPTrigger(cfg.AI.TriggerURL, cfg.AI.Timeout)
	}

	// Provider API clients are per-tenant: each org's private key comes from
	// the credential resolver at call time.
	clientFactory := vapi.Factory(func(ctx context.Context, orgID string) (vapi.Client, error) {
		creds, cerr := resolver.Resolve(ctx, orgID)
		if cerr != nil {
			return nil, cerr
		}
		return vapi.NewHTTPClient(cfg.Vapi.APIBaseURL, creds.PrivateKey, cfg.Vapi.RequestTimeout), nil
	})

	backfiller := backfill.NewScheduler(callStore, clientFactory, func(callID string) {
		if terr := trigger.ProcessCall(context.Background(), callID); terr != nil {
			log.Warn("ai trigger after backfill failed", "call_id", callID, "err", terr)
		}
	}, log)

	processor := webhook.NewProcessor(webhook.ProcessorConfig{
		Calls:                callStore,
		Audit:                auditlog.NewWriter(auditRepo, log),
		Dedup:                dedup,
		Backfill:             backfiller,
		Trigger:              trigger,
		Log:                  log,
		BackfillInitialDelay: cfg.Webhook.BackfillInitialDelay,
	})

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, registerDeps{
		cfg:       cfg,
		db:        db,
		ops:       opsManager,
		resolver:  resolver,
		calls:     callStore,
		audit:     auditRepo,
		processor: processor,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "dedup", cfg.Webhook.DedupBackend)
		if serr := srv.ListenAndServe(); serr != nil && !errors.Is(serr, http.ErrServerClosed) {
			log.Error("http server failed", "err", serr)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	// Events acked before processing must finish; pending transcript polls
	// are abandoned and recovered by a later replay if needed.
	if err := processor.Drain(shutdownCtx); err != nil {
		log.Warn("processor drain incomplete", "err", err)
	}
	backfiller.Stop()
	log.Info("shutdown complete")
}
