package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/destucr/chatroom-backend/internal/message"
	"github.com/destucr/chatroom-backend/internal/store"
	internalws "github.com/destucr/chatroom-backend/internal/websocket"
	"github.com/gin-gonic/gin"
)

type handlers struct {
	hub      *internalws.Hub
	messages Lister
}

func (h *handlers) listMessages(c *gin.Context) {
	messages, err := h.messages.ListAll(c.Request.Context())
	if err != nil {
		slog.Error("Failed to list messages", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "message store unavailable"})
		return
	}
	c.JSON(http.StatusOK, messages)
}

func (h *handlers) postMessage(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	accepted, err := h.hub.Submit(c.Request.Context(), raw)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": internalws.PublicError(err)})
		return
	}
	c.JSON(http.StatusOK, accepted)
}

func (h *handlers) serveWs(c *gin.Context) {
	internalws.ServeWs(h.hub, c.Writer, c.Request)
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"connections": h.hub.Registry().Len(),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, message.ErrDecode):
		return http.StatusBadRequest
	case errors.Is(err, message.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, store.ErrStore), errors.Is(err, internalws.ErrHubStopped):
		slog.Error("Failed to submit message", "error", err)
		return http.StatusServiceUnavailable
	default:
		slog.Error("Unexpected submission error", "error", err)
		return http.StatusInternalServerError
	}
}
