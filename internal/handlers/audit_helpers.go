package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"dm-service/internal/middleware"
	"dm-service/internal/models"
)

// Emitter publishes audit events for committed mutations.
type Emitter interface {
	Emit(ctx context.Context, eventType, requestID string, userID int, payload any)
}

// Notifier pushes realtime events to connected users.
type Notifier interface {
	NotifyMessage(msg models.Message)
	NotifyRead(senderID, readerID int, count int64)
}

func requestIDFromContext(c *gin.Context) string {
	if id := c.GetString(middleware.RequestIDKey); id != "" {
		return id
	}

	requestID := c.GetHeader(middleware.RequestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(middleware.RequestIDKey, requestID)
	return requestID
}

func emit(c *gin.Context, emitter Emitter, eventType string, payload any) {
	if emitter == nil {
		return
	}
	emitter.Emit(c.Request.Context(), eventType, requestIDFromContext(c), c.GetInt("userID"), payload)
}
