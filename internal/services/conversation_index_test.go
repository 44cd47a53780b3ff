package services

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dm-service/internal/models"
)

func TestBuildChatList(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	me, bob, carol := env.user(t, "me"), env.user(t, "bob"), env.user(t, "carol")
	env.befriend(t, me, bob)
	env.befriend(t, me, carol)

	env.send(t, bob, me, "b1")
	env.send(t, bob, me, "b2")
	env.send(t, me, carol, "c1")
	lastCarol := env.send(t, carol, me, "c2")
	lastBob := env.send(t, me, bob, "b3")

	for _, idx := range []*ConversationIndex{env.messaging.ConversationIndex, env.scan} {
		chats, err := idx.BuildChatList(ctx, me.ID)
		require.NoError(t, err)
		assert.Equal(t, []chatSummary{
			{PartnerID: bob.ID, LastMessageID: lastBob.ID, UnreadCount: 2},
			{PartnerID: carol.ID, LastMessageID: lastCarol.ID, UnreadCount: 1},
		}, summarize(chats), "mode %s", idx.mode)
		assert.Equal(t, "bob", chats[0].Partner.Username)
		assert.Equal(t, "b3", chats[0].LastMessage.Content)
	}

	_, err := env.messaging.MarkRead(ctx, me.ID, bob.ID)
	require.NoError(t, err)
	chats, err := env.messaging.BuildChatList(ctx, me.ID)
	require.NoError(t, err)
	assert.Zero(t, chats[0].UnreadCount)
	assert.Equal(t, 1, chats[1].UnreadCount)

	empty, err := env.messaging.BuildChatList(ctx, env.user(t, "loner").ID)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestChatListSurvivesUnfriending(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	me, bob := env.user(t, "me"), env.user(t, "bob")
	env.befriend(t, me, bob)
	env.send(t, bob, me, "hi")
	require.NoError(t, env.friends.RemoveFriend(ctx, me.ID, bob.ID))

	chats, err := env.messaging.BuildChatList(ctx, me.ID)
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, bob.ID, chats[0].Partner.ID)
}

func TestChatListSkipsUnresolvedPartners(t *testing.T) {
	hidden := map[int]bool{}
	env := newTestEnvWithDirectory(t, func(d Directory) Directory {
		return &hidingDirectory{Directory: d, hidden: hidden}
	})
	ctx := context.Background()
	me, bob, carol := env.user(t, "me"), env.user(t, "bob"), env.user(t, "carol")
	env.befriend(t, me, bob)
	env.befriend(t, me, carol)
	env.send(t, bob, me, "b")
	env.send(t, carol, me, "c")
	hidden[carol.ID] = true

	for _, idx := range []*ConversationIndex{env.messaging.ConversationIndex, env.scan} {
		chats, err := idx.BuildChatList(ctx, me.ID)
		require.NoError(t, err)
		require.Len(t, chats, 1, "mode %s", idx.mode)
		assert.Equal(t, bob.ID, chats[0].Partner.ID)
	}
}

func TestScanAndIndexAgree(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	var users []models.User
	for _, name := range names(5, "u") {
		users = append(users, env.user(t, name))
	}
	for i := range users {
		for j := i + 1; j < len(users); j++ {
			env.befriend(t, users[i], users[j])
		}
	}

	rng := rand.New(rand.NewSource(7))
	for step := 0; step < 120; step++ {
		a := users[rng.Intn(len(users))]
		b := users[rng.Intn(len(users))]
		if a.ID == b.ID {
			continue
		}
		switch rng.Intn(4) {
		case 0:
			_, err := env.messaging.MarkRead(ctx, a.ID, b.ID)
			require.NoError(t, err)
		case 1:
			_, err := env.messaging.FetchHistory(ctx, a.ID, b.ID, 1, 3)
			require.NoError(t, err)
		default:
			env.send(t, a, b, "x")
		}
	}

	expect := map[int][]chatSummary{}
	for _, u := range users {
		indexed, err := env.messaging.BuildChatList(ctx, u.ID)
		require.NoError(t, err)
		scanned, err := env.scan.BuildChatList(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, summarize(scanned), summarize(indexed), "user %s", u.Username)
		expect[u.ID] = summarize(indexed)
	}

	_, err := env.db.Exec(`UPDATE conversations SET unread_count = 99`)
	require.NoError(t, err)
	written, err := env.messaging.RebuildIndex(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, env.countRows(t, `SELECT COUNT(*) FROM conversations`), written)

	for _, u := range users {
		rebuilt, err := env.messaging.BuildChatList(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, expect[u.ID], summarize(rebuilt), "user %s after rebuild", u.Username)
	}
}

func TestGroupConversations(t *testing.T) {
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	msgs := []models.Message{
		{ID: 1, SenderID: 1, ReceiverID: 2, CreatedAt: base},
		{ID: 2, SenderID: 2, ReceiverID: 1, CreatedAt: base.Add(time.Minute)},
		{ID: 4, SenderID: 3, ReceiverID: 1, CreatedAt: base.Add(time.Minute)},
		{ID: 3, SenderID: 1, ReceiverID: 3, CreatedAt: base.Add(time.Minute)},
		{ID: 5, SenderID: 1, ReceiverID: 4, CreatedAt: base.Add(-time.Hour)},
	}

	rows := groupConversations(1, msgs, map[int]int{2: 1, 3: 2})

	require.Len(t, rows, 3)
	// equal timestamps fall back to id
	assert.Equal(t, 3, rows[0].PartnerID)
	assert.Equal(t, 4, rows[0].LastMessage.ID)
	assert.Equal(t, 2, rows[0].UnreadCount)
	assert.Equal(t, 2, rows[1].PartnerID)
	assert.Equal(t, 2, rows[1].LastMessage.ID)
	assert.Equal(t, 4, rows[2].PartnerID)
	assert.Zero(t, rows[2].UnreadCount)

	assert.Empty(t, groupConversations(1, nil, nil))
}
