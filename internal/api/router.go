// Package api exposes the chat hub over HTTP: message history, synchronous
// submission, the websocket stream and a health check.
package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/destucr/chatroom-backend/internal/message"
	internalws "github.com/destucr/chatroom-backend/internal/websocket"
	"github.com/gin-gonic/gin"
)

// Lister reads the full message history.
type Lister interface {
	ListAll(ctx context.Context) ([]message.Message, error)
}

func NewRouter(hub *internalws.Hub, messages Lister, allowedOrigins []string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(), cors(allowedOrigins))

	h := &handlers{hub: hub, messages: messages}
	r.GET("/messages", h.listMessages)
	r.POST("/messages", h.postMessage)
	r.GET("/ws", h.serveWs)
	r.GET("/healthz", h.health)
	return r
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
