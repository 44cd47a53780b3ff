package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dm-service/internal/services"
	"dm-service/internal/telemetry"
)

// FriendHandler serves the friend endpoints.
type FriendHandler struct {
	friends services.FriendService
	emitter Emitter
}

// NewFriendHandler builds a FriendHandler. emitter may be nil.
func NewFriendHandler(friends services.FriendService, emitter Emitter) *FriendHandler {
	return &FriendHandler{friends: friends, emitter: emitter}
}

// Register mounts the friend routes on group.
func (h *FriendHandler) Register(group *gin.RouterGroup) {
	group.POST("/friends/add", h.AddFriend)
	group.GET("/friends/list", h.ListFriends)
	group.POST("/friends/remove", h.RemoveFriend)
	group.GET("/friends/search", h.SearchUsers)
}

// AddFriend befriends the user named in the request body.
func (h *FriendHandler) AddFriend(c *gin.Context) {
	var req struct {
		FriendUsername string `json:"friend_username" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "friend_username is required"})
		return
	}

	friend, err := h.friends.AddFriend(c.Request.Context(), c.GetInt("userID"), req.FriendUsername)
	if err != nil {
		respondError(c, err)
		return
	}

	emit(c, h.emitter, telemetry.EventFriendAdded, telemetry.FriendPayload{FriendID: friend.ID})
	c.JSON(http.StatusOK, gin.H{"message": "friend added", "friend": friend})
}

// ListFriends returns the caller's friends.
func (h *FriendHandler) ListFriends(c *gin.Context) {
	friends, err := h.friends.ListFriends(c.Request.Context(), c.GetInt("userID"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"friends": friends, "count": len(friends)})
}

// RemoveFriend drops the friendship in both directions. Removing a
// non-friend succeeds.
func (h *FriendHandler) RemoveFriend(c *gin.Context) {
	var req struct {
		FriendID int `json:"friend_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "friend_id is required"})
		return
	}

	if err := h.friends.RemoveFriend(c.Request.Context(), c.GetInt("userID"), req.FriendID); err != nil {
		respondError(c, err)
		return
	}

	emit(c, h.emitter, telemetry.EventFriendRemoved, telemetry.FriendPayload{FriendID: req.FriendID})
	c.JSON(http.StatusOK, gin.H{"message": "friend removed"})
}

// SearchUsers finds users whose username contains the keyword.
func (h *FriendHandler) SearchUsers(c *gin.Context) {
	users, err := h.friends.SearchUsers(c.Request.Context(), c.Query("keyword"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users, "count": len(users)})
}
