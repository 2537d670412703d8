// HeliXR - Conversational Plant Control Server
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

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"google.golang.org/genai"

	"github.com/alphaq-labs/helixr/internal/api"
	"github.com/alphaq-labs/helixr/internal/config"
	"github.com/alphaq-labs/helixr/internal/devstate"
	"github.com/alphaq-labs/helixr/internal/identity"
	"github.com/alphaq-labs/helixr/internal/middleware"
	"github.com/alphaq-labs/helixr/internal/model"
	"github.com/alphaq-labs/helixr/internal/retry"
	"github.com/alphaq-labs/helixr/internal/session"
	"github.com/alphaq-labs/helixr/internal/speech"
	"github.com/alphaq-labs/helixr/internal/turn"
	"github.com/alphaq-labs/helixr/internal/ws"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize dependencies.
	store, err := devstate.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Error("Failed to close state store", "error", closeErr)
		}
	}()

	if err := store.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		slog.Error("Failed to initialize generative client", "error", err)
		os.Exit(1)
	}

	generator := model.NewClient(genaiClient, model.DefaultConfig(cfg.ChatModel), logger)
	updater := devstate.NewUpdater(store, logger)

	var synth speech.Synthesizer
	if cfg.SynthesisEnabled {
		dispatcher, err := speech.NewDispatcher(genaiClient, speech.Config{
			Model:    cfg.TTSModel,
			Voice:    cfg.TTSVoice,
			Dir:      cfg.AudioDir,
			URLBase:  "/audio",
			MaxRunes: cfg.MaxSynthesisRunes,
		}, logger)
		if err != nil {
			slog.Error("Failed to initialize speech dispatcher", "error", err)
			os.Exit(1)
		}
		synth = dispatcher
		slog.Info("Speech synthesis enabled", "model", cfg.TTSModel, "voice", cfg.TTSVoice)
	} else {
		slog.Info("Speech synthesis disabled, replies will be text-only")
	}

	processor := turn.NewProcessor(turn.Options{
		Generator:     generator,
		Synth:         synth,
		Devices:       updater,
		ChatRetry:     retry.Policy{MaxRetries: cfg.ChatRetries, BaseDelay: cfg.ChatRetryBase},
		SynthRetry:    retry.Policy{MaxRetries: cfg.SynthRetries, BaseDelay: cfg.SynthRetryBase},
		MaxAudioBytes: cfg.MaxAudioTurnBytes,
		MaxTextBytes:  int(cfg.MaxTextTurnBytes),
		Logger:        logger,
	})

	registry := session.NewRegistry(ctx, cfg.TurnQueueDepth, processor.Process)
	registry.StartIdleSweeper(ctx, time.Minute, cfg.SessionIdleTTL)
	slog.Info("Session registry started", "idle_ttl", cfg.SessionIdleTTL)

	// Initialize handlers.
	apiHandler := api.NewHandler(updater, store)
	wsHandler := ws.NewHandler(registry, processor, cfg.MaxAudioTurnBytes, cfg.FrontendURL, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS([]string{"*"}))
	r.Use(identity.Middleware(cfg.IsDevelopment()))

	// Device control and state routes.
	r.Post("/api/device/control", apiHandler.ControlDevice)
	r.Get("/api/state/latest", apiHandler.LatestState)
	r.Post("/api/state", apiHandler.IngestState)

	// WebSocket endpoint.
	r.Get("/ws/session", wsHandler.ServeHTTP)

	// Synthesized audio artifacts.
	r.Handle("/audio/*", http.StripPrefix("/audio/", http.FileServer(http.Dir(cfg.AudioDir))))

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // WebSocket connections stay open indefinitely
		IdleTimeout:  120 * time.Second,
	}

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
