package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"dm-service/internal/services"
	"dm-service/internal/telemetry"
)

const (
	defaultPage    = 1
	defaultPerPage = 20
)

// MessageHandler serves the direct message endpoints.
type MessageHandler struct {
	messages services.MessageService
	notifier Notifier
	emitter  Emitter
}

// NewMessageHandler builds a MessageHandler. notifier and emitter may be nil.
func NewMessageHandler(messages services.MessageService, notifier Notifier, emitter Emitter) *MessageHandler {
	return &MessageHandler{messages: messages, notifier: notifier, emitter: emitter}
}

// Register mounts the message routes on group.
func (h *MessageHandler) Register(group *gin.RouterGroup) {
	group.POST("/messages/send", h.Send)
	group.GET("/messages/history", h.History)
	group.GET("/messages/chats", h.Chats)
	group.GET("/messages/last", h.Last)
	group.POST("/messages/mark_read", h.MarkRead)
}

// Send stores a message to a friend and pushes it to the receiver.
func (h *MessageHandler) Send(c *gin.Context) {
	var req struct {
		ReceiverID  int    `json:"receiver_id"`
		Content     string `json:"content"`
		MessageType string `json:"message_type"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	userID := c.GetInt("userID")
	msg, err := h.messages.Send(c.Request.Context(), userID, req.ReceiverID, req.Content, req.MessageType)
	if err != nil {
		respondError(c, err)
		return
	}

	if h.notifier != nil {
		h.notifier.NotifyMessage(msg)
	}
	emit(c, h.emitter, telemetry.EventMessageSent, telemetry.MessageSentPayload{
		MessageID:   msg.ID,
		ReceiverID:  msg.ReceiverID,
		MessageType: msg.MessageType,
	})
	c.JSON(http.StatusOK, gin.H{"message": "message sent", "data": msg})
}

// History returns one page of the conversation with friend_id and marks the
// friend's messages as read.
func (h *MessageHandler) History(c *gin.Context) {
	friendID, ok := intQuery(c, "friend_id", 0)
	if !ok {
		return
	}
	page, ok := intQuery(c, "page", defaultPage)
	if !ok {
		return
	}
	perPage, ok := intQuery(c, "per_page", defaultPerPage)
	if !ok {
		return
	}

	userID := c.GetInt("userID")
	history, err := h.messages.FetchHistory(c.Request.Context(), userID, friendID, page, perPage)
	if err != nil {
		respondError(c, err)
		return
	}

	h.readDone(c, friendID, history.MarkedRead)
	c.JSON(http.StatusOK, history)
}

// Chats returns the caller's conversations, most recent first.
func (h *MessageHandler) Chats(c *gin.Context) {
	chats, err := h.messages.BuildChatList(c.Request.Context(), c.GetInt("userID"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chats": chats, "count": len(chats)})
}

// Last returns the latest message exchanged with friend_id without changing
// read state.
func (h *MessageHandler) Last(c *gin.Context) {
	friendID, ok := intQuery(c, "friend_id", 0)
	if !ok {
		return
	}

	msg, err := h.messages.GetLast(c.Request.Context(), c.GetInt("userID"), friendID)
	if err != nil {
		respondError(c, err)
		return
	}
	if msg == nil {
		c.JSON(http.StatusOK, gin.H{"message": "no messages yet"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"last_message": msg})
}

// MarkRead marks every unread message from sender_id as read.
func (h *MessageHandler) MarkRead(c *gin.Context) {
	var req struct {
		SenderID int `json:"sender_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	marked, err := h.messages.MarkRead(c.Request.Context(), c.GetInt("userID"), req.SenderID)
	if err != nil {
		respondError(c, err)
		return
	}

	h.readDone(c, req.SenderID, marked)
	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("marked %d messages as read", marked),
		"marked":  marked,
	})
}

func (h *MessageHandler) readDone(c *gin.Context, senderID int, marked int64) {
	if marked == 0 {
		return
	}
	if h.notifier != nil {
		h.notifier.NotifyRead(senderID, c.GetInt("userID"), marked)
	}
	emit(c, h.emitter, telemetry.EventMessageRead, telemetry.MessageReadPayload{SenderID: senderID, Count: marked})
}

// intQuery parses an optional integer query parameter. It writes a 400 and
// returns false when the value is not a number.
func intQuery(c *gin.Context, name string, fallback int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid %s", name)})
		return 0, false
	}
	return v, true
}
