package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"skein/internal/ai"
	"skein/internal/app"
	"skein/internal/audit"
	"skein/internal/config"
	"skein/internal/corpus"
	"skein/internal/export"
	"skein/internal/media"
	"skein/internal/search"
	"skein/internal/session"
	"skein/internal/snapshot"
)

func main() {
	if err := godotenv.Load(); err == nil {
		log.Printf("loaded environment from .env")
	}

	cfg := config.Load()
	ctx := context.Background()

	store := corpus.NewStore()

	deps := app.Deps{
		Store:    store,
		Exporter: export.NewService(store),
	}

	if strings.TrimSpace(cfg.GeminiAPIKey) != "" {
		deps.Collab = ai.NewGemini(cfg.GeminiAPIKey)
	} else {
		log.Printf("GEMINI_API_KEY not set, AI features disabled")
	}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisStore, err := session.NewRedisStore(cfg.RedisURL, cfg.ChatHistoryTTL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisStore.Close()
		deps.History = redisStore
		log.Printf("using Redis for chat history")
	} else {
		deps.History = session.NewMemoryStore()
		log.Printf("using in-memory chat history")
	}

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	deps.Search = search.NewService(meiliClient, store)

	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		db, err := snapshot.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("database connection failed: %v", err)
		}
		defer db.Close()
		snapStore := snapshot.NewStore(db)
		if err := snapStore.EnsureSchema(ctx); err != nil {
			log.Fatalf("snapshot schema failed: %v", err)
		}
		deps.Snapshots = snapStore
	} else {
		log.Printf("DATABASE_URL not set, snapshot persistence disabled")
	}

	if strings.TrimSpace(cfg.AuditDir) != "" {
		if err := os.MkdirAll(cfg.AuditDir, 0o755); err != nil {
			log.Fatalf("failed to create audit dir: %v", err)
		}
		trail, err := audit.New(cfg.AuditDir)
		if err != nil {
			log.Fatalf("audit trail init failed: %v", err)
		}
		deps.Trail = trail
	}

	if strings.TrimSpace(cfg.MinIOEndpoint) != "" {
		mediaStore, err := media.New(ctx, cfg.MinIOEndpoint, cfg.MinIOAccessKey, cfg.MinIOSecretKey, cfg.MinIOBucket, cfg.MinIOUseSSL)
		if err != nil {
			log.Fatalf("media storage init failed: %v", err)
		}
		deps.Media = mediaStore
	} else {
		log.Printf("MINIO_ENDPOINT not set, media storage disabled")
	}

	service := app.New(deps)
	if err := service.Bootstrap(ctx); err != nil {
		log.Printf("WARNING: bootstrap error (will retry on next restart): %v", err)
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Skein API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
