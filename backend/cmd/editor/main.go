package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"prompt-studio/backend/internal/httpapi"
	"prompt-studio/backend/internal/layout"
	"prompt-studio/backend/internal/prompt"
	"prompt-studio/backend/internal/promptapi"
	"prompt-studio/backend/pkg/config"
	"prompt-studio/backend/pkg/logger"
)

func main() {
	// Initialize logger
	if err := logger.Init(os.Getenv("ENV")); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting structure editor...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	client := newClient(cfg, log)
	sessions := httpapi.NewRegistry(client, sessionOptions(cfg), log.Named("editor"))
	router := newRouter(cfg, sessions, log)

	srv := &http.Server{
		Addr:    ":" + cfg.EditorPort,
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	log.Info("Editor started",
		zap.String("port", cfg.EditorPort),
		zap.String("prompt_api", cfg.PromptAPIURL),
	)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down editor...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	// Views are abandoned; position writes already issued still land.
	sessions.Shutdown()

	log.Info("Editor exited")
}

func newClient(cfg *config.Config, log *zap.Logger) *promptapi.Client {
	breaker := promptapi.DefaultBreakerSettings()
	breaker.FailureThreshold = cfg.BreakerFailureThreshold
	breaker.MinRequests = cfg.BreakerMinRequests
	breaker.Timeout = cfg.BreakerTimeout

	return promptapi.NewClient(cfg.PromptAPIURL,
		promptapi.WithTimeout(cfg.PromptAPITimeout),
		promptapi.WithPolicy(promptapi.NewPolicy(promptapi.DefaultRules(), breaker)),
		promptapi.WithLogger(log.Named("promptapi")),
	)
}

func sessionOptions(cfg *config.Config) httpapi.SessionOptions {
	return httpapi.SessionOptions{
		Layout: layout.Config{
			VerticalSpacing:   cfg.VerticalSpacing,
			HorizontalSpacing: cfg.HorizontalSpacing,
		},
		RootDefault: prompt.Position{X: cfg.RootDefaultX, Y: cfg.RootDefaultY},
	}
}

func newRouter(cfg *config.Config, sessions *httpapi.Registry, log *zap.Logger) *gin.Engine {
	router := httpapi.NewRouter(log, cfg.CORSOrigin, cfg.IsProduction())
	httpapi.NewEditorHandler(sessions, log.Named("editor")).Register(router)
	return router
}
