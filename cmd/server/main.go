package main

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	legalwebui "github.com/MegaGrindStone/legal-web-ui"
	"github.com/MegaGrindStone/legal-web-ui/internal/handlers"
	"github.com/MegaGrindStone/legal-web-ui/internal/prompts"
	"github.com/MegaGrindStone/legal-web-ui/internal/services"
	"github.com/MegaGrindStone/legal-web-ui/internal/session"
	"github.com/joho/godotenv"
)

func main() {
	// A missing .env is fine, the environment may already carry the credentials.
	_ = godotenv.Load()

	cfgFilePath, err := configPath()
	if err != nil {
		log.Fatal(err)
	}
	cfg, err := loadConfig(cfgFilePath)
	if err != nil {
		log.Fatal(err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	logger.Info("Configuration loaded",
		slog.String("path", cfgFilePath),
		slog.String("provider", cfg.LLM.provider()),
		slog.String("model", cfg.LLM.model()))

	journalPath := cfg.JournalPath
	if journalPath == "" {
		journalPath, err = defaultJournalPath()
		if err != nil {
			log.Fatal(err)
		}
	}
	boltDB, err := services.NewBoltDB(journalPath, cfg.JournalLimit)
	if err != nil {
		log.Fatal(err)
	}

	llm, err := cfg.LLM.completer(context.Background(), prompts.SystemInstruction, logger)
	if err != nil {
		log.Fatal(err)
	}
	completer := services.NewJournaled(llm, boltDB, cfg.LLM.provider(), cfg.LLM.model(), logger)

	manager := session.NewManager(completer, logger, session.WithTimeout(cfg.CompletionTimeout))

	m, err := handlers.NewMain(manager, boltDB, logger)
	if err != nil {
		log.Fatal(err)
	}

	staticFS, err := fs.Sub(legalwebui.StaticFS, "static")
	if err != nil {
		log.Fatal(err)
	}

	// Create custom server
	srv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: m.Routes(handlers.RouterConfig{
			StaticFS:       staticFS,
			AllowedOrigins: cfg.AllowedOrigins,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	srv.RegisterOnShutdown(func() {
		if err := m.Shutdown(context.Background()); err != nil {
			logger.Error("Failed to shutdown sse server", slog.String("err", err.Error()))
		}
	})

	// Channel to listen for errors coming from the listener
	serverErrors := make(chan error, 1)

	// Start server in goroutine
	go func() {
		logger.Info("Server starting", slog.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	// Channel to listen for interrupt/terminate signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Blocking select waiting for either interrupt or server error
	select {
	case err := <-serverErrors:
		logger.Error("Server error", slog.String("err", err.Error()))

	case sig := <-shutdown:
		logger.Info("Start shutdown", slog.String("signal", sig.String()))

		// Create context with timeout for shutdown
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		// Gracefully shutdown the server
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Graceful shutdown failed", slog.String("err", err.Error()))
			if err := srv.Close(); err != nil {
				logger.Error("Forcing server close", slog.String("err", err.Error()))
			}
		}
	}

	if err := boltDB.Close(); err != nil {
		logger.Error("Failed to close journal", slog.String("err", err.Error()))
	}
}

func defaultJournalPath() (string, error) {
	cfgDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("error getting user config dir: %w", err)
	}
	dir := filepath.Join(cfgDir, "legalwebui")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating config directory: %w", err)
	}
	return filepath.Join(dir, "journal.db"), nil
}
