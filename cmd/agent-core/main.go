package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	goredis "github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"

	"github.com/MuhamadAgungGumelar/micro-system-ai-agent-be/internal/agent"
	"github.com/MuhamadAgungGumelar/micro-system-ai-agent-be/internal/api"
	"github.com/MuhamadAgungGumelar/micro-system-ai-agent-be/internal/auth"
	"github.com/MuhamadAgungGumelar/micro-system-ai-agent-be/internal/bridge"
	"github.com/MuhamadAgungGumelar/micro-system-ai-agent-be/internal/config"
	"github.com/MuhamadAgungGumelar/micro-system-ai-agent-be/internal/crypto"
	"github.com/MuhamadAgungGumelar/micro-system-ai-agent-be/internal/messages"
	"github.com/MuhamadAgungGumelar/micro-system-ai-agent-be/internal/orchestrator"
	"github.com/MuhamadAgungGumelar/micro-system-ai-agent-be/internal/platform/database"
	"github.com/MuhamadAgungGumelar/micro-system-ai-agent-be/internal/platform/logging"
	"github.com/MuhamadAgungGumelar/micro-system-ai-agent-be/internal/processor"
	"github.com/MuhamadAgungGumelar/micro-system-ai-agent-be/internal/queue"
	"github.com/MuhamadAgungGumelar/micro-system-ai-agent-be/internal/repository"
	"github.com/MuhamadAgungGumelar/micro-system-ai-agent-be/internal/webhook"
)

func main() {
	cfg := config.Load()
	logging.Init(cfg.Env)
	log.Info().Str("env", cfg.Env).Msg("🚀 starting agent-core")

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	redisOpts, err := goredis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to parse REDIS_URL")
	}
	redisOpts.PoolSize = cfg.RedisPoolSize
	redisClient := goredis.NewClient(redisOpts)
	defer redisClient.Close()

	encryptor, err := crypto.New(cfg.EncryptionKey)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize encryption")
	}

	users := repository.NewUserRepository(db.GORM)
	sessions := repository.NewSessionRepository(db.GORM)
	messageRepo := repository.NewMessageRepository(db.GORM)
	llmConfigs := repository.NewLLMConfigRepository(db.GORM)
	authCodes := repository.NewAuthCodeRepository(db.GORM)
	adminCreds := repository.NewAdminCredentialRepository(db.GORM)
	refreshTokens := repository.NewRefreshTokenRepository(db.GORM)

	messageSvc := messages.NewService(users, sessions, messageRepo)
	agentSvc := agent.NewService(messageSvc, users, llmConfigs, encryptor)

	bridgeClient := bridge.New(cfg.WhatsAppBridgeURL, cfg.BridgeTimeout)
	q := queue.New(redisClient, cfg.QueuePrefix, cfg.QueueTTL, cfg.QueueMaxRetry, cfg.QueueBaseDelay)

	proc := processor.New(q, agentSvc, bridgeClient, users, cfg.MessageProcessorWorkers)
	monitor := orchestrator.NewMonitor(db, redisClient, bridgeClient, q)
	orch := orchestrator.New(bridgeClient, q, proc, monitor, cfg.WebhookBaseURL, cfg.HealthCheckInterval)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := orch.Initialize(ctx); err != nil {
		log.Error().Err(err).Msg("integration initialization reported an error, continuing in degraded mode")
	}

	go reapStaleProcessing(ctx, q, cfg.StaleProcessingTimeout)

	webhookHandler := webhook.NewHandler(users, sessions, messageSvc, q, cfg.WhatsAppSystemNumber, cfg.WebhookSecret)

	jwtSvc := auth.NewJWTService(cfg.JWTSecret)
	authSvc := auth.NewService(jwtSvc, users, authCodes, adminCreds, refreshTokens, bridgeClient)
	authHandler := auth.NewHandler(authSvc)
	apiHandler := api.NewHandler(users, messageSvc, llmConfigs, encryptor, orch)

	app := fiber.New()
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(orch.GetStatus(c.Context()))
	})
	webhookHandler.Register(app, "/api/v1/webhooks")

	public := app.Group("/api/v1/public")
	public.Post("/auth/request-code", authHandler.RequestCode)
	public.Post("/auth/verify-code", authHandler.VerifyCode)
	public.Post("/auth/refresh", authHandler.Refresh)

	publicAuthed := public.Group("", auth.RequireAuth(jwtSvc))
	publicAuthed.Get("/messages", apiHandler.GetMessages)
	publicAuthed.Get("/llm-config", apiHandler.GetLLMConfig)
	publicAuthed.Put("/llm-config", apiHandler.PutLLMConfig)

	private := app.Group("/api/v1/private")
	private.Post("/auth/login", authHandler.AdminLogin)

	admin := app.Group("/api/v1/admin", auth.RequireAuth(jwtSvc), auth.RequireAdmin)
	admin.Get("/integration/status", func(c *fiber.Ctx) error {
		return c.JSON(orch.GetStatus(c.Context()))
	})
	admin.Post("/integration/reinitialize", apiHandler.Reinitialize)
	admin.Get("/users", apiHandler.ListUsers)

	go func() {
		log.Info().Str("port", cfg.ServerPort).Msg("🌐 agent-core HTTP server listening")
		if err := app.Listen(":" + cfg.ServerPort); err != nil {
			log.Error().Err(err).Msg("HTTP server stopped")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info().Msg("🛑 shutting down agent-core")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = app.ShutdownWithContext(shutdownCtx)
	if _, err := orch.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during integration shutdown")
	}

	log.Info().Msg("👋 goodbye")
}

// reapStaleProcessing periodically moves processing entries whose worker
// crashed mid-turn back onto the low priority lane, per the reaper decision
// recorded in DESIGN.md.
func reapStaleProcessing(ctx context.Context, q *queue.Queue, threshold time.Duration) {
	ticker := time.NewTicker(threshold)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := q.ReapStaleProcessing(ctx, threshold)
			if err != nil {
				log.Error().Err(err).Msg("stale processing reaper failed")
				continue
			}
			if n > 0 {
				log.Warn().Int("count", n).Msg("reaped stale processing entries")
			}
		}
	}
}
