package services

import (
	"context"

	"dm-service/internal/models"
)

// MessageService is the messaging surface exposed to transports.
type MessageService interface {
	Send(ctx context.Context, senderID, receiverID int, content, messageType string) (models.Message, error)
	FetchHistory(ctx context.Context, selfID, friendID, page, perPage int) (models.HistoryPage, error)
	BuildChatList(ctx context.Context, selfID int) ([]models.Conversation, error)
	GetLast(ctx context.Context, selfID, friendID int) (*models.MessageView, error)
	MarkRead(ctx context.Context, selfID, senderID int) (int64, error)
}

// Messaging bundles the message-side components behind MessageService.
type Messaging struct {
	*MessageStore
	*ReadTracker
	*ConversationIndex
}

var (
	_ MessageService = (*Messaging)(nil)
	_ FriendService  = (*FriendGraph)(nil)
)
