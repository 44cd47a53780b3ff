package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"

	"dm-service/internal/models"
)

// ConversationRepository maintains the per-user conversation index: one row
// per (owner, partner) holding the latest message and the owner's unread count.
type ConversationRepository interface {
	Touch(ctx context.Context, q sqlx.ExtContext, ownerID, partnerID int, msg models.Message, unreadDelta int) error
	DecrementUnread(ctx context.Context, q sqlx.ExtContext, ownerID, partnerID int, n int64) error
	List(ctx context.Context, q sqlx.ExtContext, ownerID int) ([]models.ConversationRow, error)
	Rebuild(ctx context.Context, q sqlx.ExtContext) (int64, error)
}

// ConversationRepo is a sqlx implementation of ConversationRepository.
type ConversationRepo struct{}

// NewConversationRepo constructs a ConversationRepo.
func NewConversationRepo() *ConversationRepo {
	return &ConversationRepo{}
}

// newerThanStored is true when the excluded row's (created_at, id) beats the stored one.
const newerThanStored = `(excluded.last_created_at > conversations.last_created_at
            OR (excluded.last_created_at = conversations.last_created_at AND excluded.last_message_id > conversations.last_message_id))`

// Touch records msg on the owner's row for partner, creating it if needed.
// The last message only moves forward under the (created_at, id) order.
func (r *ConversationRepo) Touch(ctx context.Context, q sqlx.ExtContext, ownerID, partnerID int, msg models.Message, unreadDelta int) error {
	query := `INSERT INTO conversations (owner_id, partner_id, last_message_id, last_created_at, unread_count)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT (owner_id, partner_id) DO UPDATE SET
            last_message_id = CASE WHEN ` + newerThanStored + ` THEN excluded.last_message_id ELSE conversations.last_message_id END,
            last_created_at = CASE WHEN ` + newerThanStored + ` THEN excluded.last_created_at ELSE conversations.last_created_at END,
            unread_count = conversations.unread_count + excluded.unread_count`
	_, err := q.ExecContext(ctx, q.Rebind(query), ownerID, partnerID, msg.ID, msg.CreatedAt, unreadDelta)
	return err
}

// DecrementUnread subtracts n read-marked messages from the owner's row.
func (r *ConversationRepo) DecrementUnread(ctx context.Context, q sqlx.ExtContext, ownerID, partnerID int, n int64) error {
	if n == 0 {
		return nil
	}
	_, err := q.ExecContext(ctx, q.Rebind(`UPDATE conversations SET unread_count = unread_count - ?
        WHERE owner_id = ? AND partner_id = ?`), n, ownerID, partnerID)
	return err
}

type conversationRow struct {
	PartnerID   int `db:"partner_id"`
	UnreadCount int `db:"unread_count"`
	models.Message
}

// List returns the owner's index rows, most recent conversation first.
func (r *ConversationRepo) List(ctx context.Context, q sqlx.ExtContext, ownerID int) ([]models.ConversationRow, error) {
	query := `SELECT c.partner_id, c.unread_count,
            m.id, m.sender_id, m.receiver_id, m.content, m.message_type, m.is_read, m.created_at
        FROM conversations c
        JOIN messages m ON m.id = c.last_message_id
        WHERE c.owner_id = ?
        ORDER BY m.created_at DESC, m.id DESC`
	var rows []conversationRow
	if err := sqlx.SelectContext(ctx, q, &rows, q.Rebind(query), ownerID); err != nil {
		return nil, err
	}

	result := make([]models.ConversationRow, 0, len(rows))
	for _, row := range rows {
		result = append(result, models.ConversationRow{
			PartnerID:   row.PartnerID,
			LastMessage: row.Message,
			UnreadCount: row.UnreadCount,
		})
	}
	return result, nil
}

// Rebuild recomputes the whole index from the message log and returns the
// number of rows written. Run it inside a transaction.
func (r *ConversationRepo) Rebuild(ctx context.Context, q sqlx.ExtContext) (int64, error) {
	if _, err := q.ExecContext(ctx, `DELETE FROM conversations`); err != nil {
		return 0, err
	}
	res, err := q.ExecContext(ctx, `INSERT INTO conversations (owner_id, partner_id, last_message_id, last_created_at, unread_count)
        SELECT owner_id, partner_id, id, created_at, unread
        FROM (
            SELECT x.owner_id, x.partner_id, x.id, x.created_at,
                ROW_NUMBER() OVER (PARTITION BY x.owner_id, x.partner_id ORDER BY x.created_at DESC, x.id DESC) AS rn,
                SUM(x.unread) OVER (PARTITION BY x.owner_id, x.partner_id) AS unread
            FROM (
                SELECT sender_id AS owner_id, receiver_id AS partner_id, id, created_at, 0 AS unread FROM messages
                UNION ALL
                SELECT receiver_id AS owner_id, sender_id AS partner_id, id, created_at,
                    CASE WHEN is_read THEN 0 ELSE 1 END AS unread FROM messages
            ) x
        ) ranked
        WHERE rn = 1`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
