package services

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"dm-service/internal/config"
	"dm-service/internal/db"
	"dm-service/internal/models"
	"dm-service/internal/repositories"
)

type testEnv struct {
	db        *sqlx.DB
	users     *repositories.UserRepo
	friends   *FriendGraph
	messaging *Messaging
	scan      *ConversationIndex
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithDirectory(t, nil)
}

// newTestEnvWithDirectory builds the services over a fresh SQLite file. wrap,
// when set, decorates the directory the services see.
func newTestEnvWithDirectory(t *testing.T, wrap func(Directory) Directory) *testEnv {
	t.Helper()
	database, err := db.Connect(context.Background(), config.Database{
		Driver:     config.DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "dm.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	users := repositories.NewUserRepo(database)
	var dir Directory = users
	if wrap != nil {
		dir = wrap(users)
	}
	friendships := repositories.NewFriendshipRepo()
	messages := repositories.NewMessageRepo()
	conversations := repositories.NewConversationRepo()

	return &testEnv{
		db:      database,
		users:   users,
		friends: NewFriendGraph(database, dir, friendships),
		messaging: &Messaging{
			MessageStore:      NewMessageStore(database, dir, friendships, messages, conversations),
			ReadTracker:       NewReadTracker(database, dir, friendships, messages, conversations),
			ConversationIndex: NewConversationIndex(database, dir, messages, conversations, config.ChatListIndex),
		},
		scan: NewConversationIndex(database, dir, messages, conversations, config.ChatListScan),
	}
}

func (e *testEnv) user(t *testing.T, username string) models.User {
	t.Helper()
	u, err := e.users.Create(context.Background(), username, username+"@example.com")
	require.NoError(t, err)
	return u
}

func (e *testEnv) befriend(t *testing.T, a, b models.User) {
	t.Helper()
	_, err := e.friends.AddFriend(context.Background(), a.ID, b.Username)
	require.NoError(t, err)
}

func (e *testEnv) send(t *testing.T, from, to models.User, content string) models.Message {
	t.Helper()
	msg, err := e.messaging.Send(context.Background(), from.ID, to.ID, content, "")
	require.NoError(t, err)
	return msg
}

func (e *testEnv) countRows(t *testing.T, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, e.db.Get(&n, query, args...))
	return n
}

func (e *testEnv) edgeCount(t *testing.T, a, b models.User) int {
	return e.countRows(t, `SELECT COUNT(*) FROM friendships
        WHERE (owner_id = ? AND other_id = ?) OR (owner_id = ? AND other_id = ?)`, a.ID, b.ID, b.ID, a.ID)
}

func (e *testEnv) unreadFrom(t *testing.T, sender, receiver models.User) int {
	return e.countRows(t, `SELECT COUNT(*) FROM messages WHERE sender_id = ? AND receiver_id = ? AND is_read = FALSE`, sender.ID, receiver.ID)
}

// hidingDirectory pretends some users no longer exist.
type hidingDirectory struct {
	Directory
	hidden map[int]bool
}

func (d *hidingDirectory) GetByID(ctx context.Context, id int) (models.User, error) {
	if d.hidden[id] {
		return models.User{}, repositories.ErrUserNotFound
	}
	return d.Directory.GetByID(ctx, id)
}

func (d *hidingDirectory) GetByIDs(ctx context.Context, ids []int) ([]models.User, error) {
	users, err := d.Directory.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	visible := users[:0]
	for _, u := range users {
		if !d.hidden[u.ID] {
			visible = append(visible, u)
		}
	}
	return visible, nil
}

type chatSummary struct {
	PartnerID     int
	LastMessageID int
	UnreadCount   int
}

func summarize(chats []models.Conversation) []chatSummary {
	out := make([]chatSummary, 0, len(chats))
	for _, c := range chats {
		out = append(out, chatSummary{PartnerID: c.Partner.ID, LastMessageID: c.LastMessage.ID, UnreadCount: c.UnreadCount})
	}
	return out
}

func names(n int, prefix string) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s%02d", prefix, i)
	}
	return out
}
