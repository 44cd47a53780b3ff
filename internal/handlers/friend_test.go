package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"dm-service/internal/mocks"
	"dm-service/internal/models"
	"dm-service/internal/services"
	"dm-service/internal/telemetry"
)

func setupFriendRouter(handler *FriendHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", 1)
		c.Next()
	})
	handler.Register(r.Group("/api"))
	return r
}

func TestAddFriendSuccess(t *testing.T) {
	friends := new(mocks.FriendServiceMock)
	emitter := new(mocks.EmitterMock)
	router := setupFriendRouter(NewFriendHandler(friends, emitter))

	friends.On("AddFriend", mock.Anything, 1, "bob").Return(models.User{ID: 2, Username: "bob"}, nil).Once()
	emitter.On("Emit", mock.Anything, telemetry.EventFriendAdded, mock.AnythingOfType("string"), 1, telemetry.FriendPayload{FriendID: 2}).Once()

	req := httptest.NewRequest(http.MethodPost, "/api/friends/add", bytes.NewBufferString(`{"friend_username":"bob"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Friend models.User `json:"friend"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "bob", resp.Friend.Username)

	friends.AssertExpectations(t)
	emitter.AssertExpectations(t)
}

func TestAddFriendMissingUsername(t *testing.T) {
	friends := new(mocks.FriendServiceMock)
	router := setupFriendRouter(NewFriendHandler(friends, nil))

	req := httptest.NewRequest(http.MethodPost, "/api/friends/add", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	friends.AssertNotCalled(t, "AddFriend", mock.Anything, mock.Anything, mock.Anything)
}

func TestAddFriendErrorKinds(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"not found", fmt.Errorf("%w: user ghost does not exist", services.ErrNotFound), http.StatusNotFound},
		{"already friends", fmt.Errorf("%w: already friends", services.ErrConflict), http.StatusConflict},
		{"validation", fmt.Errorf("%w: friend username is required", services.ErrValidation), http.StatusBadRequest},
		{"internal", fmt.Errorf("%w: insert: %w", services.ErrInternal, assert.AnError), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			friends := new(mocks.FriendServiceMock)
			emitter := new(mocks.EmitterMock)
			router := setupFriendRouter(NewFriendHandler(friends, emitter))

			friends.On("AddFriend", mock.Anything, 1, "ghost").Return(nil, tc.err).Once()

			req := httptest.NewRequest(http.MethodPost, "/api/friends/add", bytes.NewBufferString(`{"friend_username":"ghost"}`))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			require.Equal(t, tc.status, rec.Code)
			emitter.AssertNotCalled(t, "Emit", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestAddFriendInternalErrorIsHidden(t *testing.T) {
	friends := new(mocks.FriendServiceMock)
	router := setupFriendRouter(NewFriendHandler(friends, nil))

	friends.On("AddFriend", mock.Anything, 1, "bob").Return(nil, fmt.Errorf("%w: insert: pq: connection refused", services.ErrInternal)).Once()

	req := httptest.NewRequest(http.MethodPost, "/api/friends/add", bytes.NewBufferString(`{"friend_username":"bob"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestListFriends(t *testing.T) {
	friends := new(mocks.FriendServiceMock)
	router := setupFriendRouter(NewFriendHandler(friends, nil))

	friends.On("ListFriends", mock.Anything, 1).Return([]models.Friend{
		{User: models.User{ID: 2, Username: "alice"}},
		{User: models.User{ID: 3, Username: "bob"}},
	}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/api/friends/list", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Friends []models.Friend `json:"friends"`
		Count   int             `json:"count"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 2, resp.Count)
	assert.Len(t, resp.Friends, 2)
	friends.AssertExpectations(t)
}

func TestRemoveFriend(t *testing.T) {
	friends := new(mocks.FriendServiceMock)
	emitter := new(mocks.EmitterMock)
	router := setupFriendRouter(NewFriendHandler(friends, emitter))

	friends.On("RemoveFriend", mock.Anything, 1, 4).Return(nil).Once()
	emitter.On("Emit", mock.Anything, telemetry.EventFriendRemoved, mock.Anything, 1, telemetry.FriendPayload{FriendID: 4}).Once()

	req := httptest.NewRequest(http.MethodPost, "/api/friends/remove", bytes.NewBufferString(`{"friend_id":4}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	friends.AssertExpectations(t)
	emitter.AssertExpectations(t)
}

func TestRemoveFriendMissingID(t *testing.T) {
	router := setupFriendRouter(NewFriendHandler(new(mocks.FriendServiceMock), nil))

	req := httptest.NewRequest(http.MethodPost, "/api/friends/remove", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchUsers(t *testing.T) {
	friends := new(mocks.FriendServiceMock)
	router := setupFriendRouter(NewFriendHandler(friends, nil))

	friends.On("SearchUsers", mock.Anything, "ali").Return([]models.User{{ID: 2, Username: "alice"}}, nil).Once()
	friends.On("SearchUsers", mock.Anything, "").Return(nil, fmt.Errorf("%w: keyword is required", services.ErrValidation)).Once()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/friends/search?keyword=ali", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/friends/search", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "keyword is required")

	friends.AssertExpectations(t)
}
