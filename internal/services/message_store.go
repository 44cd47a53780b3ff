package services

import (
	"context"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"

	"dm-service/internal/db"
	"dm-service/internal/models"
	"dm-service/internal/repositories"
)

// MessageStore owns the append-only message log.
type MessageStore struct {
	db            *sqlx.DB
	users         Directory
	friendships   repositories.FriendshipRepository
	messages      repositories.MessageRepository
	conversations repositories.ConversationRepository
}

// NewMessageStore constructs a MessageStore.
func NewMessageStore(database *sqlx.DB, users Directory, friendships repositories.FriendshipRepository, messages repositories.MessageRepository, conversations repositories.ConversationRepository) *MessageStore {
	return &MessageStore{
		db:            database,
		users:         users,
		friendships:   friendships,
		messages:      messages,
		conversations: conversations,
	}
}

// Send appends a message from senderID to receiverID. The sender must own an
// accepted edge to the receiver. The insert and both conversation index rows
// commit together.
func (s *MessageStore) Send(ctx context.Context, senderID, receiverID int, content, messageType string) (_ models.Message, err error) {
	ctx, span := startSpan(ctx, "messages.send")
	defer func() { endSpan(span, "send_message", err) }()

	content = strings.TrimSpace(content)
	if receiverID == 0 || content == "" {
		return models.Message{}, validationf("receiver id and content are required")
	}
	if senderID == receiverID {
		return models.Message{}, conflictf("cannot send a message to yourself")
	}
	messageType = strings.TrimSpace(messageType)
	if messageType == "" {
		messageType = models.DefaultMessageType
	}

	if _, err := s.users.GetByID(ctx, receiverID); err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return models.Message{}, notFoundf("receiver %d does not exist", receiverID)
		}
		return models.Message{}, internal("resolve receiver", err)
	}

	var msg models.Message
	err = db.WithTx(ctx, s.db, nil, func(tx *sqlx.Tx) error {
		if err := requireAccepted(ctx, tx, s.friendships, senderID, receiverID, "send messages"); err != nil {
			return err
		}

		var err error
		msg, err = s.messages.Create(ctx, tx, senderID, receiverID, content, messageType)
		if err != nil {
			return internal("insert message", err)
		}

		// Lower owner id first so concurrent sends in both directions lock the
		// index rows in the same order.
		rows := [2]struct{ owner, partner, unread int }{
			{senderID, receiverID, 0},
			{receiverID, senderID, 1},
		}
		if rows[1].owner < rows[0].owner {
			rows[0], rows[1] = rows[1], rows[0]
		}
		for _, row := range rows {
			if err := s.conversations.Touch(ctx, tx, row.owner, row.partner, msg, row.unread); err != nil {
				return internal("update conversation index", err)
			}
		}
		return nil
	})
	if err != nil {
		return models.Message{}, internal("send message", err)
	}
	return msg, nil
}

// RangeBetween returns every message exchanged by the pair, newest first.
func (s *MessageStore) RangeBetween(ctx context.Context, userA, userB int) ([]models.Message, error) {
	msgs, err := s.messages.Between(ctx, s.db, userA, userB)
	if err != nil {
		return nil, internal("range between", err)
	}
	return msgs, nil
}
