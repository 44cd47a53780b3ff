package services

import (
	"context"
	"sort"

	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"

	"dm-service/internal/config"
	"dm-service/internal/db"
	"dm-service/internal/models"
	"dm-service/internal/repositories"
)

// ConversationIndex derives each user's chat list. In index mode it reads
// the maintained conversations table; in scan mode it groups the full message
// log. Both produce the same entries in the same order.
type ConversationIndex struct {
	db            *sqlx.DB
	users         Directory
	messages      repositories.MessageRepository
	conversations repositories.ConversationRepository
	mode          string
}

// NewConversationIndex constructs a ConversationIndex. mode is
// config.ChatListIndex or config.ChatListScan.
func NewConversationIndex(database *sqlx.DB, users Directory, messages repositories.MessageRepository, conversations repositories.ConversationRepository, mode string) *ConversationIndex {
	return &ConversationIndex{
		db:            database,
		users:         users,
		messages:      messages,
		conversations: conversations,
		mode:          mode,
	}
}

// BuildChatList returns selfID's conversations, most recent first. It never
// writes.
func (c *ConversationIndex) BuildChatList(ctx context.Context, selfID int) (_ []models.Conversation, err error) {
	ctx, span := startSpan(ctx, "messages.chats")
	defer func() { endSpan(span, "build_chat_list", err) }()

	var rows []models.ConversationRow
	if c.mode == config.ChatListScan {
		rows, err = c.scan(ctx, selfID)
	} else {
		rows, err = c.conversations.List(ctx, c.db, selfID)
	}
	if err != nil {
		return nil, internal("build chat list", err)
	}
	return c.resolvePartners(ctx, rows)
}

// RebuildIndex recomputes the conversations table from the message log.
func (c *ConversationIndex) RebuildIndex(ctx context.Context) (int64, error) {
	var written int64
	err := db.WithTx(ctx, c.db, nil, func(tx *sqlx.Tx) error {
		var err error
		written, err = c.conversations.Rebuild(ctx, tx)
		return err
	})
	if err != nil {
		return 0, internal("rebuild conversation index", err)
	}
	return written, nil
}

// scan reads the user's messages and unread counts from one snapshot.
func (c *ConversationIndex) scan(ctx context.Context, selfID int) ([]models.ConversationRow, error) {
	var (
		msgs   []models.Message
		unread map[int]int
	)
	err := db.WithTx(ctx, c.db, db.SnapshotOptions(c.db), func(tx *sqlx.Tx) error {
		var err error
		if msgs, err = c.messages.ListForUser(ctx, tx, selfID); err != nil {
			return err
		}
		unread, err = c.messages.UnreadCountsBySender(ctx, tx, selfID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return groupConversations(selfID, msgs, unread), nil
}

// groupConversations keeps the greatest (created_at, id) message per partner
// and orders the result by that message, newest first.
func groupConversations(selfID int, msgs []models.Message, unread map[int]int) []models.ConversationRow {
	latest := map[int]models.Message{}
	for _, m := range msgs {
		partner := m.SenderID
		if partner == selfID {
			partner = m.ReceiverID
		}
		if cur, ok := latest[partner]; !ok || m.After(cur) {
			latest[partner] = m
		}
	}

	rows := make([]models.ConversationRow, 0, len(latest))
	for partner, m := range latest {
		rows = append(rows, models.ConversationRow{PartnerID: partner, LastMessage: m, UnreadCount: unread[partner]})
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].LastMessage.After(rows[j].LastMessage)
	})
	return rows
}

// resolvePartners attaches partner records, dropping partners that no longer
// resolve.
func (c *ConversationIndex) resolvePartners(ctx context.Context, rows []models.ConversationRow) ([]models.Conversation, error) {
	users, err := c.users.GetByIDs(ctx, lo.Map(rows, func(r models.ConversationRow, _ int) int { return r.PartnerID }))
	if err != nil {
		return nil, internal("resolve partners", err)
	}
	byID := lo.KeyBy(users, func(u models.User) int { return u.ID })

	chats := make([]models.Conversation, 0, len(rows))
	for _, row := range rows {
		partner, ok := byID[row.PartnerID]
		if !ok {
			continue
		}
		chats = append(chats, models.Conversation{
			Partner:     partner,
			LastMessage: row.LastMessage,
			UnreadCount: row.UnreadCount,
		})
	}
	return chats, nil
}
