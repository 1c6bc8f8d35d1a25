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

	"github.com/destucr/chatroom-backend/internal/api"
	"github.com/destucr/chatroom-backend/internal/config"
	"github.com/destucr/chatroom-backend/internal/store"
	"github.com/destucr/chatroom-backend/internal/websocket"
	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Level(),
	}))
	slog.SetDefault(logger)

	// Initialize the message store with retries
	var messages store.MessageStore
	for i := 0; i < 10; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		messages, err = store.Open(ctx, cfg.Store)
		cancel()
		if err == nil {
			break
		}
		slog.Warn("Waiting for message store to be ready...", "driver", cfg.Store.Driver, "attempt", i+1, "error", err)
		time.Sleep(2 * time.Second)
	}

	if err != nil {
		slog.Error("Failed to initialize message store after retries", "driver", cfg.Store.Driver, "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := messages.Close(); err != nil {
			slog.Error("Failed to close message store", "error", err)
		}
	}()
	slog.Info("Message store initialized", "driver", cfg.Store.Driver)

	hub := websocket.NewHub(messages, websocket.NewRegistry(), websocket.Config{
		SendTimeout:    cfg.SendTimeout,
		StoreTimeout:   cfg.StoreTimeout,
		SendBuffer:     cfg.SendBuffer,
		MaxMessageSize: cfg.MaxMessageSize,
		AllowedOrigins: cfg.AllowedOrigins,
	})
	go hub.Run()

	gin.SetMode(gin.ReleaseMode)
	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           api.NewRouter(hub, messages, cfg.AllowedOrigins),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		slog.Info("Starting server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("Shutting down gracefully...")
	case err := <-errChan:
		slog.Error("Server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}
	if err := hub.Shutdown(5 * time.Second); err != nil {
		slog.Warn("Hub shutdown incomplete", "error", err)
	}
	slog.Info("Server stopped")
}
