package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dm-service/internal/models"
	"dm-service/internal/repositories"
)

func TestAddFriendCreatesMirroredEdges(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := env.user(t, "alice"), env.user(t, "bob")

	friend, err := env.friends.AddFriend(ctx, alice.ID, "  bob ")
	require.NoError(t, err)
	assert.Equal(t, bob.ID, friend.ID)

	assert.Equal(t, 2, env.edgeCount(t, alice, bob))
	for _, pair := range [][2]int{{alice.ID, bob.ID}, {bob.ID, alice.ID}} {
		ok, err := repositories.NewFriendshipRepo().HasAccepted(ctx, env.db, pair[0], pair[1])
		require.NoError(t, err)
		assert.True(t, ok, "edge %d -> %d", pair[0], pair[1])
	}
}

func TestAddFriendErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := env.user(t, "alice"), env.user(t, "bob")

	_, err := env.friends.AddFriend(ctx, alice.ID, "   ")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.friends.AddFriend(ctx, alice.ID, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = env.friends.AddFriend(ctx, alice.ID, "alice")
	assert.ErrorIs(t, err, ErrConflict)

	env.befriend(t, alice, bob)

	_, err = env.friends.AddFriend(ctx, alice.ID, "bob")
	assert.ErrorIs(t, err, ErrConflict)
	assert.Contains(t, err.Error(), "already friends")

	_, err = env.friends.AddFriend(ctx, bob.ID, "alice")
	assert.ErrorIs(t, err, ErrConflict)

	assert.Equal(t, 2, env.edgeCount(t, alice, bob))
}

func TestAddFriendPendingEdge(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := env.user(t, "alice"), env.user(t, "bob")

	_, err := env.db.Exec(`INSERT INTO friendships (owner_id, other_id, status, created_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)`,
		bob.ID, alice.ID, models.StatusPending)
	require.NoError(t, err)

	_, err = env.friends.AddFriend(ctx, alice.ID, "bob")
	assert.ErrorIs(t, err, ErrConflict)
	assert.Contains(t, err.Error(), "pending")
	assert.Equal(t, 1, env.edgeCount(t, alice, bob))
}

func TestAddFriendConcurrentSingleWinner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := env.user(t, "alice"), env.user(t, "bob")

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		self, other := alice, bob
		if i%2 == 1 {
			self, other = bob, alice
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.friends.AddFriend(ctx, self.ID, other.Username)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, conflicts)
	assert.Equal(t, 2, env.edgeCount(t, alice, bob))
}

// staleFriendships misses every existing edge, like a pre-check that ran
// before a concurrent AddFriend committed.
type staleFriendships struct {
	repositories.FriendshipRepository
}

func (staleFriendships) FindBetween(context.Context, sqlx.ExtContext, int, int) (*models.Friendship, error) {
	return nil, nil
}

func TestAddFriendConstraintViolationIsConflict(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := env.user(t, "alice"), env.user(t, "bob")
	env.befriend(t, alice, bob)

	graph := NewFriendGraph(env.db, env.users, staleFriendships{repositories.NewFriendshipRepo()})
	for _, tc := range []struct {
		self  int
		other string
	}{
		{alice.ID, "bob"},
		{bob.ID, "alice"},
	} {
		_, err := graph.AddFriend(ctx, tc.self, tc.other)
		assert.ErrorIs(t, err, ErrConflict)
		assert.NotErrorIs(t, err, ErrInternal)
	}
	assert.Equal(t, 2, env.edgeCount(t, alice, bob))
}

func TestRemoveFriendIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob, carol := env.user(t, "alice"), env.user(t, "bob"), env.user(t, "carol")
	env.befriend(t, alice, bob)
	env.send(t, alice, bob, "before")

	require.NoError(t, env.friends.RemoveFriend(ctx, bob.ID, alice.ID))
	assert.Equal(t, 0, env.edgeCount(t, alice, bob))

	require.NoError(t, env.friends.RemoveFriend(ctx, bob.ID, alice.ID))
	require.NoError(t, env.friends.RemoveFriend(ctx, alice.ID, carol.ID))

	_, err := env.messaging.Send(ctx, alice.ID, bob.ID, "after", "")
	assert.ErrorIs(t, err, ErrForbidden)

	// history survives the removal
	assert.Equal(t, 1, env.countRows(t, `SELECT COUNT(*) FROM messages`))

	env.befriend(t, bob, alice)
	assert.Equal(t, 2, env.edgeCount(t, alice, bob))
}

func TestListFriends(t *testing.T) {
	hidden := map[int]bool{}
	env := newTestEnvWithDirectory(t, func(d Directory) Directory {
		return &hidingDirectory{Directory: d, hidden: hidden}
	})
	ctx := context.Background()
	me := env.user(t, "me")
	carol, alice, bob, dave := env.user(t, "carol"), env.user(t, "alice"), env.user(t, "bob"), env.user(t, "dave")
	for _, u := range []models.User{carol, alice, bob, dave} {
		env.befriend(t, me, u)
	}
	hidden[dave.ID] = true

	friends, err := env.friends.ListFriends(ctx, me.ID)
	require.NoError(t, err)
	require.Len(t, friends, 3)
	assert.Equal(t, []string{"alice", "bob", "carol"}, []string{friends[0].Username, friends[1].Username, friends[2].Username})
	for _, f := range friends {
		assert.False(t, f.FriendshipCreated.IsZero())
	}

	empty, err := env.friends.ListFriends(ctx, alice.ID+1000)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSearchUsers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	for _, name := range names(25, "user") {
		env.user(t, name)
	}
	env.user(t, "Alice")
	env.user(t, "malice")

	found, err := env.friends.SearchUsers(ctx, "user")
	require.NoError(t, err)
	assert.Len(t, found, SearchLimit)

	found, err = env.friends.SearchUsers(ctx, "lice")
	require.NoError(t, err)
	assert.Len(t, found, 2)

	found, err = env.friends.SearchUsers(ctx, "Ali")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Alice", found[0].Username)

	found, err = env.friends.SearchUsers(ctx, "nobody")
	require.NoError(t, err)
	assert.NotNil(t, found)
	assert.Empty(t, found)

	_, err = env.friends.SearchUsers(ctx, "  ")
	assert.ErrorIs(t, err, ErrValidation)
}
