// Package main is the entry point for the chat API server.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/codechat-ai/codechat/internal/config"
	"github.com/codechat-ai/codechat/internal/events"
	"github.com/codechat-ai/codechat/internal/handler"
	"github.com/codechat-ai/codechat/internal/llm"
	"github.com/codechat-ai/codechat/internal/middleware"
	"github.com/codechat-ai/codechat/internal/service"
	"github.com/codechat-ai/codechat/internal/session"
	"github.com/codechat-ai/codechat/internal/store"
	"github.com/codechat-ai/codechat/pkg/logger"
	"github.com/codechat-ai/codechat/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting API server")

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "codechat", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Connect to Postgres and ensure the schema. A failure here is
	// fatal unless degraded mode is explicitly allowed; degraded mode
	// serves health endpoints only and surfaces 503 for everything
	// else.
	var db *sql.DB
	db, err = store.Open(cfg)
	if err == nil {
		migrateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		err = store.EnsureSchema(migrateCtx, db)
		cancel()
	}
	if err != nil {
		if !cfg.AllowDegraded {
			log.Error("database initialization failed", zap.Error(err))
			os.Exit(1)
		}
		log.Error("database initialization failed, continuing without persistence", zap.Error(err))
		db = nil
	}
	if db != nil {
		defer db.Close()
	}

	// Connect to NATS for event publishing when configured. The event
	// bus is optional; a nil publisher is a no-op.
	var publisher *events.Publisher
	if cfg.NATSURL != "" {
		publisher, err = events.Connect(cfg.NATSURL, cfg.NATSToken, log)
		if err != nil {
			log.Warn("failed to connect to NATS, events disabled", zap.Error(err))
			publisher = nil
		} else {
			defer publisher.Close()
		}
	}

	// Initialize LLM client
	var llmClient llm.Client
	switch {
	case cfg.DefaultProvider == string(llm.ProviderOpenAI) && cfg.OpenAIAPIKey != "":
		llmClient, err = llm.NewClient(llm.ProviderOpenAI, cfg.OpenAIAPIKey)
	case cfg.AnthropicAPIKey != "":
		llmClient, err = llm.NewClient(llm.ProviderAnthropic, cfg.AnthropicAPIKey)
	case cfg.OpenAIAPIKey != "":
		llmClient, err = llm.NewClient(llm.ProviderOpenAI, cfg.OpenAIAPIKey)
	}
	if err != nil {
		log.Warn("failed to create LLM client, model calls will fail in-band", zap.Error(err))
		llmClient = nil
	}
	if llmClient == nil {
		log.Warn("no LLM provider configured")
	}

	identity := &middleware.Identity{Secret: cfg.SessionSecret, TTL: cfg.SessionTTL}
	sessions := session.NewManager()

	healthHandler := handler.NewHealthHandler(db, publisher)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	if db == nil {
		r.Route("/api/v1", func(r chi.Router) {
			r.HandleFunc("/*", func(w http.ResponseWriter, req *http.Request) {
				http.Error(w, `{"error":"persistence unavailable"}`, http.StatusServiceUnavailable)
			})
		})
	} else {
		userStore := store.NewUserStore(db)
		conversationStore := store.NewConversationStore(db)

		authSvc := service.NewAuthService(userStore, cfg.ResetTokenTTL, log)
		chatSvc := service.NewChatService(
			conversationStore, llmClient, publisher, log,
			cfg.SystemPrompt, cfg.Model, cfg.ModelTimeout,
		)

		authHandler := handler.NewAuthHandler(authSvc, chatSvc, sessions, identity, log)
		chatHandler := handler.NewChatHandler(chatSvc, sessions, log)

		// Expired reset tokens are also rejected at consumption; this
		// just keeps the table from growing without bound.
		go func() {
			ticker := time.NewTicker(time.Hour)
			defer ticker.Stop()
			for range ticker.C {
				cleanCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
				n, err := userStore.DeleteExpiredResetTokens(cleanCtx)
				cancel()
				if err != nil {
					log.Warn("failed to delete expired reset tokens", zap.Error(err))
				} else if n > 0 {
					log.Info("deleted expired reset tokens", zap.Int64("count", n))
				}
			}
		}()

		r.Route("/api/v1", func(r chi.Router) {
			r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

			r.Route("/auth", func(r chi.Router) {
				r.Post("/register", authHandler.Register)
				r.Post("/login", authHandler.Login)
				r.Post("/password-reset/request", authHandler.RequestReset)
				r.Post("/password-reset/confirm", authHandler.ConfirmReset)

				r.Group(func(r chi.Router) {
					r.Use(middleware.Auth(identity, authSvc))
					r.Post("/logout", authHandler.Logout)
				})
			})

			// Everything below requires a restored identity.
			r.Group(func(r chi.Router) {
				r.Use(middleware.Auth(identity, authSvc))

				r.Route("/chat", func(r chi.Router) {
					r.Get("/", chatHandler.View)
					r.Post("/new", chatHandler.New)
					r.Post("/select", chatHandler.Select)
					r.Post("/messages", chatHandler.Send)
				})

				r.Route("/conversations", func(r chi.Router) {
					r.Get("/", chatHandler.List)
					r.Get("/{id}/messages", chatHandler.Messages)
					r.Delete("/{id}", chatHandler.Delete)
				})
			})
		})
	}

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
