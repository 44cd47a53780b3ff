package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"dm-service/internal/models"
)

const friendshipColumns = `id, owner_id, other_id, status, created_at`

// FriendshipRepository persists directed friendship edges. Every method takes
// the executor so callers decide the transaction boundary.
type FriendshipRepository interface {
	FindBetween(ctx context.Context, q sqlx.ExtContext, userA, userB int) (*models.Friendship, error)
	HasAccepted(ctx context.Context, q sqlx.ExtContext, ownerID, otherID int) (bool, error)
	InsertMirrored(ctx context.Context, q sqlx.ExtContext, userA, userB int, status models.FriendshipStatus) error
	DeleteMirrored(ctx context.Context, q sqlx.ExtContext, userA, userB int) (int64, error)
	ListAccepted(ctx context.Context, q sqlx.ExtContext, ownerID int) ([]models.Friendship, error)
}

// FriendshipRepo is a sqlx implementation of FriendshipRepository.
type FriendshipRepo struct{}

// NewFriendshipRepo constructs a FriendshipRepo.
func NewFriendshipRepo() *FriendshipRepo {
	return &FriendshipRepo{}
}

// FindBetween returns any edge between the two users in either direction,
// or nil when none exists.
func (r *FriendshipRepo) FindBetween(ctx context.Context, q sqlx.ExtContext, userA, userB int) (*models.Friendship, error) {
	var edge models.Friendship
	query := `SELECT ` + friendshipColumns + ` FROM friendships
        WHERE (owner_id = ? AND other_id = ?) OR (owner_id = ? AND other_id = ?)
        ORDER BY id LIMIT 1`
	err := sqlx.GetContext(ctx, q, &edge, q.Rebind(query), userA, userB, userB, userA)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &edge, nil
}

// HasAccepted checks the edge owned by ownerID only; the mirror is not consulted.
func (r *FriendshipRepo) HasAccepted(ctx context.Context, q sqlx.ExtContext, ownerID, otherID int) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM friendships WHERE owner_id = ? AND other_id = ? AND status = ?)`
	err := sqlx.GetContext(ctx, q, &exists, q.Rebind(query), ownerID, otherID, models.StatusAccepted)
	return exists, err
}

// InsertMirrored inserts both directions between userA and userB. Run it
// inside a transaction; a unique violation on either row yields
// ErrDuplicateFriendship.
//
// The lower id's row always goes first, so two concurrent inserts of the same
// pair queue on one key and the loser sees a unique violation, not a deadlock.
func (r *FriendshipRepo) InsertMirrored(ctx context.Context, q sqlx.ExtContext, userA, userB int, status models.FriendshipStatus) error {
	ts := now()
	query := q.Rebind(`INSERT INTO friendships (owner_id, other_id, status, created_at) VALUES (?, ?, ?, ?)`)
	low, high := min(userA, userB), max(userA, userB)
	for _, pair := range [][2]int{{low, high}, {high, low}} {
		if _, err := q.ExecContext(ctx, query, pair[0], pair[1], status, ts); err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicateFriendship
			}
			return err
		}
	}
	return nil
}

// DeleteMirrored removes both directions in one statement and reports how
// many rows went away.
func (r *FriendshipRepo) DeleteMirrored(ctx context.Context, q sqlx.ExtContext, userA, userB int) (int64, error) {
	res, err := q.ExecContext(ctx, q.Rebind(`DELETE FROM friendships
        WHERE (owner_id = ? AND other_id = ?) OR (owner_id = ? AND other_id = ?)`), userA, userB, userB, userA)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListAccepted returns the accepted edges owned by ownerID.
func (r *FriendshipRepo) ListAccepted(ctx context.Context, q sqlx.ExtContext, ownerID int) ([]models.Friendship, error) {
	var edges []models.Friendship
	query := `SELECT ` + friendshipColumns + ` FROM friendships WHERE owner_id = ? AND status = ? ORDER BY id`
	err := sqlx.SelectContext(ctx, q, &edges, q.Rebind(query), ownerID, models.StatusAccepted)
	return edges, err
}
