package models

import "time"

// FriendshipStatus is the state of one directed friendship edge.
// Only StatusAccepted is produced or consulted; the others are reserved.
type FriendshipStatus string

const (
	StatusPending  FriendshipStatus = "pending"
	StatusAccepted FriendshipStatus = "accepted"
	StatusBlocked  FriendshipStatus = "blocked"
)

// Friendship is a directed edge owned by OwnerID. An accepted friendship is
// always stored as two mirrored edges.
type Friendship struct {
	ID        int              `db:"id" json:"id"`
	OwnerID   int              `db:"owner_id" json:"user_id"`
	OtherID   int              `db:"other_id" json:"friend_id"`
	Status    FriendshipStatus `db:"status" json:"status"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
}

// Friend is a ListFriends entry.
type Friend struct {
	User
	FriendshipCreated time.Time `json:"friendship_created"`
}
