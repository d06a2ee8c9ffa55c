package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatvault/cmd"
	"chatvault/internal/api"
	"chatvault/internal/chatdb"
	"chatvault/internal/config"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func createServer(cfg config.Config, store *chatdb.ChatDB, saver *chatdb.SessionSaver) *http.Server {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"X-Storage-Path"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	chatHandler := api.NewChatService(store, saver, slog.Default())

	r.Route("/api/v1", func(r chi.Router) {
		chatHandler.AddRoutes(r)
	})

	return &http.Server{
		Addr:    fmt.Sprintf("127.0.0.1:%d", cfg.Port),
		Handler: r,
	}
}

func main() {
	cfg := cmd.LoadConfig()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if err := os.MkdirAll(cfg.Root, os.ModePerm); err != nil {
		log.Fatalf("error creating root directory: %v", err)
	}

	logger, closeLog := config.SetupLogger(cfg.LogFile(), cfg.Level())
	defer closeLog() //nolint:errcheck
	slog.SetDefault(logger)

	slog.Info("starting chatvault", "root", cfg.Root, "origin", cfg.Origin, "port", cfg.Port, "debounce", cfg.SessionSaveDebounce)

	store, closeStore, err := cmd.OpenChatDB(cfg, logger, chatdb.WithOutcomeHook(func(op string, outcome chatdb.Outcome) {
		if outcome.Degraded() {
			slog.Warn("storage degraded", "op", op, "storage", outcome.Path, "error", outcome.Err)
		}
	}))
	if err != nil {
		log.Fatalf("error opening chat storage: %v", err)
	}

	// Open eagerly so legacy data is migrated before the first request.
	if status := store.Status(context.Background()); !status.EngineAvailable {
		slog.Warn("storage engine unavailable, serving from fallback", "error", status.EngineError)
	}

	var saver *chatdb.SessionSaver
	if cfg.SessionSaveDebounce > 0 {
		saver = chatdb.NewSessionSaver(store, cfg.SessionSaveDebounce)
	}

	server := createServer(cfg, store, saver)

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		slog.Info("shutting down server")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Fatalf("Server forced to shutdown: %v", err)
		}
	}()

	slog.Info("server started", "port", cfg.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Could not listen on %d: %v\n", cfg.Port, err)
	}
	<-stopped

	if saver != nil {
		saver.Close(context.Background())
	}
	if err := closeStore(); err != nil {
		slog.Error("error closing storage engine", "error", err)
	}

	slog.Info("server stopped")
}
