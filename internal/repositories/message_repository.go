package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"dm-service/internal/models"
)

const messageColumns = `id, sender_id, receiver_id, content, message_type, is_read, created_at`

// betweenClause selects both directions of a pair; bind (a, b, b, a).
const betweenClause = `((sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?))`

// MessageRepository defines interactions for direct messages.
type MessageRepository interface {
	Create(ctx context.Context, q sqlx.ExtContext, senderID, receiverID int, content, messageType string) (models.Message, error)
	Between(ctx context.Context, q sqlx.ExtContext, userA, userB int) ([]models.Message, error)
	StatsBetween(ctx context.Context, q sqlx.ExtContext, userA, userB int) (total int, maxID int, err error)
	PageBetween(ctx context.Context, q sqlx.ExtContext, userA, userB, limit, offset int) ([]models.Message, error)
	LatestBetween(ctx context.Context, q sqlx.ExtContext, userA, userB int) (models.Message, error)
	MarkRead(ctx context.Context, q sqlx.ExtContext, senderID, receiverID int) (int64, error)
	MarkReadThrough(ctx context.Context, q sqlx.ExtContext, senderID, receiverID, maxID int) (int64, error)
	ListForUser(ctx context.Context, q sqlx.ExtContext, userID int) ([]models.Message, error)
	UnreadCountsBySender(ctx context.Context, q sqlx.ExtContext, receiverID int) (map[int]int, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct{}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo() *MessageRepo {
	return &MessageRepo{}
}

// Create appends an unread message stamped with the current time.
func (r *MessageRepo) Create(ctx context.Context, q sqlx.ExtContext, senderID, receiverID int, content, messageType string) (models.Message, error) {
	msg := models.Message{
		SenderID:    senderID,
		ReceiverID:  receiverID,
		Content:     content,
		MessageType: messageType,
		CreatedAt:   now(),
	}
	err := q.QueryRowxContext(ctx, q.Rebind(`INSERT INTO messages (sender_id, receiver_id, content, message_type, is_read, created_at)
        VALUES (?, ?, ?, ?, FALSE, ?) RETURNING id`),
		msg.SenderID, msg.ReceiverID, msg.Content, msg.MessageType, msg.CreatedAt).Scan(&msg.ID)
	return msg, err
}

// Between returns every message exchanged by the pair, newest first.
func (r *MessageRepo) Between(ctx context.Context, q sqlx.ExtContext, userA, userB int) ([]models.Message, error) {
	var msgs []models.Message
	query := `SELECT ` + messageColumns + ` FROM messages WHERE ` + betweenClause + ` ORDER BY created_at DESC, id DESC`
	err := sqlx.SelectContext(ctx, q, &msgs, q.Rebind(query), userA, userB, userB, userA)
	return msgs, err
}

// StatsBetween counts the pair's messages and reports the highest id among them.
func (r *MessageRepo) StatsBetween(ctx context.Context, q sqlx.ExtContext, userA, userB int) (int, int, error) {
	var stats struct {
		Total int `db:"total"`
		MaxID int `db:"max_id"`
	}
	err := sqlx.GetContext(ctx, q, &stats, q.Rebind(`SELECT COUNT(*) AS total, COALESCE(MAX(id), 0) AS max_id FROM messages WHERE `+betweenClause),
		userA, userB, userB, userA)
	return stats.Total, stats.MaxID, err
}

// PageBetween returns one newest-first slice of the pair's messages.
func (r *MessageRepo) PageBetween(ctx context.Context, q sqlx.ExtContext, userA, userB, limit, offset int) ([]models.Message, error) {
	var msgs []models.Message
	query := `SELECT ` + messageColumns + ` FROM messages WHERE ` + betweenClause + `
        ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	err := sqlx.SelectContext(ctx, q, &msgs, q.Rebind(query), userA, userB, userB, userA, limit, offset)
	return msgs, err
}

// LatestBetween returns the pair's most recent message.
func (r *MessageRepo) LatestBetween(ctx context.Context, q sqlx.ExtContext, userA, userB int) (models.Message, error) {
	var msg models.Message
	query := `SELECT ` + messageColumns + ` FROM messages WHERE ` + betweenClause + ` ORDER BY created_at DESC, id DESC LIMIT 1`
	err := sqlx.GetContext(ctx, q, &msg, q.Rebind(query), userA, userB, userB, userA)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// MarkRead flips every unread senderID -> receiverID message in a single
// conditional update and returns the number of rows it changed.
func (r *MessageRepo) MarkRead(ctx context.Context, q sqlx.ExtContext, senderID, receiverID int) (int64, error) {
	return r.exec(ctx, q, `UPDATE messages SET is_read = TRUE
        WHERE sender_id = ? AND receiver_id = ? AND is_read = FALSE`, senderID, receiverID)
}

// MarkReadThrough is MarkRead restricted to ids up to maxID, so messages that
// arrive after a history scan stay unread.
func (r *MessageRepo) MarkReadThrough(ctx context.Context, q sqlx.ExtContext, senderID, receiverID, maxID int) (int64, error) {
	return r.exec(ctx, q, `UPDATE messages SET is_read = TRUE
        WHERE sender_id = ? AND receiver_id = ? AND is_read = FALSE AND id <= ?`, senderID, receiverID, maxID)
}

func (r *MessageRepo) exec(ctx context.Context, q sqlx.ExtContext, query string, args ...any) (int64, error) {
	res, err := q.ExecContext(ctx, q.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListForUser returns every message the user sent or received, newest first.
func (r *MessageRepo) ListForUser(ctx context.Context, q sqlx.ExtContext, userID int) ([]models.Message, error) {
	var msgs []models.Message
	query := `SELECT ` + messageColumns + ` FROM messages WHERE sender_id = ? OR receiver_id = ? ORDER BY created_at DESC, id DESC`
	err := sqlx.SelectContext(ctx, q, &msgs, q.Rebind(query), userID, userID)
	return msgs, err
}

// UnreadCountsBySender counts unread messages addressed to receiverID,
// keyed by sender.
func (r *MessageRepo) UnreadCountsBySender(ctx context.Context, q sqlx.ExtContext, receiverID int) (map[int]int, error) {
	rows, err := q.QueryxContext(ctx, q.Rebind(`SELECT sender_id, COUNT(*) FROM messages
        WHERE receiver_id = ? AND is_read = FALSE GROUP BY sender_id`), receiverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[int]int{}
	for rows.Next() {
		var senderID, count int
		if err := rows.Scan(&senderID, &count); err != nil {
			return nil, err
		}
		counts[senderID] = count
	}
	return counts, rows.Err()
}
