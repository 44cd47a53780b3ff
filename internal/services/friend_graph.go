package services

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"

	"dm-service/internal/db"
	"dm-service/internal/models"
	"dm-service/internal/repositories"
)

// SearchLimit caps SearchUsers results.
const SearchLimit = 20

// Directory resolves user identities. It is never called while a
// transaction is open.
type Directory interface {
	GetByID(ctx context.Context, id int) (models.User, error)
	GetByUsername(ctx context.Context, username string) (models.User, error)
	GetByIDs(ctx context.Context, ids []int) ([]models.User, error)
	Search(ctx context.Context, keyword string, limit int) ([]models.User, error)
}

// FriendService is the relationship surface exposed to transports.
type FriendService interface {
	AddFriend(ctx context.Context, selfID int, otherUsername string) (models.User, error)
	ListFriends(ctx context.Context, selfID int) ([]models.Friend, error)
	RemoveFriend(ctx context.Context, selfID, otherID int) error
	SearchUsers(ctx context.Context, keyword string) ([]models.User, error)
}

// FriendGraph keeps the symmetric accepted relation. Both directions of a
// friendship are written and removed together in one transaction.
type FriendGraph struct {
	db          *sqlx.DB
	users       Directory
	friendships repositories.FriendshipRepository
}

// NewFriendGraph constructs a FriendGraph.
func NewFriendGraph(database *sqlx.DB, users Directory, friendships repositories.FriendshipRepository) *FriendGraph {
	return &FriendGraph{db: database, users: users, friendships: friendships}
}

// AddFriend creates the mirrored accepted edges between selfID and the user
// named otherUsername and returns that user.
func (g *FriendGraph) AddFriend(ctx context.Context, selfID int, otherUsername string) (_ models.User, err error) {
	ctx, span := startSpan(ctx, "friends.add")
	defer func() { endSpan(span, "add_friend", err) }()

	otherUsername = strings.TrimSpace(otherUsername)
	if otherUsername == "" {
		return models.User{}, validationf("friend username is required")
	}

	other, err := g.users.GetByUsername(ctx, otherUsername)
	if errors.Is(err, repositories.ErrUserNotFound) {
		return models.User{}, notFoundf("user %q does not exist", otherUsername)
	}
	if err != nil {
		return models.User{}, internal("resolve username", err)
	}
	if other.ID == selfID {
		return models.User{}, conflictf("cannot add yourself as a friend")
	}

	err = db.WithTx(ctx, g.db, nil, func(tx *sqlx.Tx) error {
		existing, err := g.friendships.FindBetween(ctx, tx, selfID, other.ID)
		if err != nil {
			return internal("find friendship", err)
		}
		if existing != nil {
			switch existing.Status {
			case models.StatusAccepted:
				return conflictf("already friends")
			case models.StatusPending:
				return conflictf("friend request pending")
			}
		}

		if err := g.friendships.InsertMirrored(ctx, tx, selfID, other.ID, models.StatusAccepted); err != nil {
			if errors.Is(err, repositories.ErrDuplicateFriendship) {
				return conflictf("already friends")
			}
			return internal("insert friendship", err)
		}
		return nil
	})
	if err != nil {
		return models.User{}, internal("add friend", err)
	}
	return other, nil
}

// ListFriends returns the accepted friends of selfID ordered by username.
func (g *FriendGraph) ListFriends(ctx context.Context, selfID int) (_ []models.Friend, err error) {
	ctx, span := startSpan(ctx, "friends.list")
	defer func() { endSpan(span, "list_friends", err) }()

	edges, err := g.friendships.ListAccepted(ctx, g.db, selfID)
	if err != nil {
		return nil, internal("list friendships", err)
	}

	users, err := g.users.GetByIDs(ctx, lo.Map(edges, func(e models.Friendship, _ int) int { return e.OtherID }))
	if err != nil {
		return nil, internal("resolve friends", err)
	}
	byID := lo.KeyBy(users, func(u models.User) int { return u.ID })

	friends := make([]models.Friend, 0, len(edges))
	for _, edge := range edges {
		user, ok := byID[edge.OtherID]
		if !ok {
			continue
		}
		friends = append(friends, models.Friend{User: user, FriendshipCreated: edge.CreatedAt})
	}
	sort.Slice(friends, func(i, j int) bool {
		if friends[i].Username != friends[j].Username {
			return friends[i].Username < friends[j].Username
		}
		return friends[i].ID < friends[j].ID
	})
	return friends, nil
}

// RemoveFriend deletes both directions. Removing a missing friendship succeeds.
func (g *FriendGraph) RemoveFriend(ctx context.Context, selfID, otherID int) (err error) {
	ctx, span := startSpan(ctx, "friends.remove")
	defer func() { endSpan(span, "remove_friend", err) }()

	err = db.WithTx(ctx, g.db, nil, func(tx *sqlx.Tx) error {
		_, err := g.friendships.DeleteMirrored(ctx, tx, selfID, otherID)
		return err
	})
	if err != nil {
		return internal("remove friend", err)
	}
	return nil
}

// SearchUsers returns up to SearchLimit users whose username contains keyword.
func (g *FriendGraph) SearchUsers(ctx context.Context, keyword string) (_ []models.User, err error) {
	ctx, span := startSpan(ctx, "friends.search")
	defer func() { endSpan(span, "search_users", err) }()

	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, validationf("search keyword must not be empty")
	}
	users, err := g.users.Search(ctx, keyword, SearchLimit)
	if err != nil {
		return nil, internal("search users", err)
	}
	if users == nil {
		users = []models.User{}
	}
	return users, nil
}

// requireAccepted is the friendship gate: ownerID must own an accepted edge
// to otherID.
func requireAccepted(ctx context.Context, q sqlx.ExtContext, friendships repositories.FriendshipRepository, ownerID, otherID int, action string) error {
	ok, err := friendships.HasAccepted(ctx, q, ownerID, otherID)
	if err != nil {
		return internal("check friendship", err)
	}
	if !ok {
		return forbiddenf("only friends can %s", action)
	}
	return nil
}
