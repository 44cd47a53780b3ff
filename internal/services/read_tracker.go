package services

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"

	"dm-service/internal/db"
	"dm-service/internal/models"
	"dm-service/internal/observability"
	"dm-service/internal/repositories"
)

// UnknownSender labels messages whose sender no longer resolves.
const UnknownSender = "Unknown"

// ReadTracker moves messages from unread to read. History retrieval and its
// read-mark share one transaction.
type ReadTracker struct {
	db            *sqlx.DB
	users         Directory
	friendships   repositories.FriendshipRepository
	messages      repositories.MessageRepository
	conversations repositories.ConversationRepository
}

// NewReadTracker constructs a ReadTracker.
func NewReadTracker(database *sqlx.DB, users Directory, friendships repositories.FriendshipRepository, messages repositories.MessageRepository, conversations repositories.ConversationRepository) *ReadTracker {
	return &ReadTracker{
		db:            database,
		users:         users,
		friendships:   friendships,
		messages:      messages,
		conversations: conversations,
	}
}

// FetchHistory returns one page of the conversation with friendID and marks
// the friend's unread messages to selfID as read. Pages are counted newest
// first; the returned page is ordered oldest first.
func (t *ReadTracker) FetchHistory(ctx context.Context, selfID, friendID, page, perPage int) (_ models.HistoryPage, err error) {
	ctx, span := startSpan(ctx, "messages.history")
	defer func() { endSpan(span, "fetch_history", err) }()

	if friendID == 0 {
		return models.HistoryPage{}, validationf("friend id is required")
	}
	if page < 1 || perPage < 1 {
		return models.HistoryPage{}, validationf("page and per_page must be positive")
	}

	var (
		msgs   []models.Message
		total  int
		maxID  int
		marked int64
	)
	err = db.WithTx(ctx, t.db, nil, func(tx *sqlx.Tx) error {
		if err := requireAccepted(ctx, tx, t.friendships, selfID, friendID, "view chat history"); err != nil {
			return err
		}

		var err error
		total, maxID, err = t.messages.StatsBetween(ctx, tx, selfID, friendID)
		if err != nil {
			return internal("count history", err)
		}
		msgs, err = t.messages.PageBetween(ctx, tx, selfID, friendID, perPage, (page-1)*perPage)
		if err != nil {
			return internal("load history", err)
		}

		marked, err = t.messages.MarkReadThrough(ctx, tx, friendID, selfID, maxID)
		if err != nil {
			return internal("mark read", err)
		}
		if err := t.conversations.DecrementUnread(ctx, tx, selfID, friendID, marked); err != nil {
			return internal("update conversation index", err)
		}
		return nil
	})
	if err != nil {
		return models.HistoryPage{}, internal("fetch history", err)
	}
	observability.AddMarkedRead(marked)

	markPageRead(msgs, selfID, friendID, maxID)

	views, err := t.withSenderNames(ctx, msgs)
	if err != nil {
		return models.HistoryPage{}, err
	}
	// newest-first page to display order
	for i, j := 0, len(views)-1; i < j; i, j = i+1, j-1 {
		views[i], views[j] = views[j], views[i]
	}

	return models.HistoryPage{
		Messages:   views,
		Pagination: models.NewPagination(page, perPage, total),
		MarkedRead: marked,
	}, nil
}

// markPageRead mirrors the read-mark onto a page loaded before it ran. Rows
// above maxID were not covered by the update and keep their stored state.
func markPageRead(msgs []models.Message, selfID, friendID, maxID int) {
	for i := range msgs {
		if msgs[i].SenderID == friendID && msgs[i].ReceiverID == selfID && msgs[i].ID <= maxID {
			msgs[i].IsRead = true
		}
	}
}

// MarkRead marks every unread senderID -> selfID message as read and returns
// how many changed.
func (t *ReadTracker) MarkRead(ctx context.Context, selfID, senderID int) (_ int64, err error) {
	ctx, span := startSpan(ctx, "messages.mark_read")
	defer func() { endSpan(span, "mark_read", err) }()

	if senderID == 0 {
		return 0, validationf("sender id is required")
	}

	var marked int64
	err = db.WithTx(ctx, t.db, nil, func(tx *sqlx.Tx) error {
		var err error
		marked, err = t.messages.MarkRead(ctx, tx, senderID, selfID)
		if err != nil {
			return internal("mark read", err)
		}
		return t.conversations.DecrementUnread(ctx, tx, selfID, senderID, marked)
	})
	if err != nil {
		return 0, internal("mark read", err)
	}
	observability.AddMarkedRead(marked)
	return marked, nil
}

// GetLast returns the most recent message between selfID and friendID, or nil
// when they have none. Read state is left untouched.
func (t *ReadTracker) GetLast(ctx context.Context, selfID, friendID int) (_ *models.MessageView, err error) {
	ctx, span := startSpan(ctx, "messages.last")
	defer func() { endSpan(span, "get_last_message", err) }()

	if friendID == 0 {
		return nil, validationf("friend id is required")
	}
	if err := requireAccepted(ctx, t.db, t.friendships, selfID, friendID, "view messages"); err != nil {
		return nil, err
	}

	msg, err := t.messages.LatestBetween(ctx, t.db, selfID, friendID)
	if errors.Is(err, repositories.ErrMessageNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, internal("load last message", err)
	}

	views, err := t.withSenderNames(ctx, []models.Message{msg})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

func (t *ReadTracker) withSenderNames(ctx context.Context, msgs []models.Message) ([]models.MessageView, error) {
	senderIDs := lo.Uniq(lo.Map(msgs, func(m models.Message, _ int) int { return m.SenderID }))
	users, err := t.users.GetByIDs(ctx, senderIDs)
	if err != nil {
		return nil, internal("resolve senders", err)
	}
	names := lo.SliceToMap(users, func(u models.User) (int, string) { return u.ID, u.Username })

	views := make([]models.MessageView, 0, len(msgs))
	for _, m := range msgs {
		name, ok := names[m.SenderID]
		if !ok {
			name = UnknownSender
		}
		views = append(views, models.MessageView{Message: m, SenderUsername: name})
	}
	return views, nil
}
