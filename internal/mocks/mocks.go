package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"dm-service/internal/models"
	"dm-service/internal/services"
)

type FriendServiceMock struct {
	mock.Mock
}

func (m *FriendServiceMock) AddFriend(ctx context.Context, selfID int, otherUsername string) (models.User, error) {
	args := m.Called(ctx, selfID, otherUsername)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *FriendServiceMock) ListFriends(ctx context.Context, selfID int) ([]models.Friend, error) {
	args := m.Called(ctx, selfID)
	var friends []models.Friend
	if val := args.Get(0); val != nil {
		friends = val.([]models.Friend)
	}
	return friends, args.Error(1)
}

func (m *FriendServiceMock) RemoveFriend(ctx context.Context, selfID, otherID int) error {
	args := m.Called(ctx, selfID, otherID)
	return args.Error(0)
}

func (m *FriendServiceMock) SearchUsers(ctx context.Context, keyword string) ([]models.User, error) {
	args := m.Called(ctx, keyword)
	var users []models.User
	if val := args.Get(0); val != nil {
		users = val.([]models.User)
	}
	return users, args.Error(1)
}

type MessageServiceMock struct {
	mock.Mock
}

func (m *MessageServiceMock) Send(ctx context.Context, senderID, receiverID int, content, messageType string) (models.Message, error) {
	args := m.Called(ctx, senderID, receiverID, content, messageType)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageServiceMock) FetchHistory(ctx context.Context, selfID, friendID, page, perPage int) (models.HistoryPage, error) {
	args := m.Called(ctx, selfID, friendID, page, perPage)
	var history models.HistoryPage
	if val := args.Get(0); val != nil {
		history = val.(models.HistoryPage)
	}
	return history, args.Error(1)
}

func (m *MessageServiceMock) BuildChatList(ctx context.Context, selfID int) ([]models.Conversation, error) {
	args := m.Called(ctx, selfID)
	var chats []models.Conversation
	if val := args.Get(0); val != nil {
		chats = val.([]models.Conversation)
	}
	return chats, args.Error(1)
}

func (m *MessageServiceMock) GetLast(ctx context.Context, selfID, friendID int) (*models.MessageView, error) {
	args := m.Called(ctx, selfID, friendID)
	var msg *models.MessageView
	if val := args.Get(0); val != nil {
		msg = val.(*models.MessageView)
	}
	return msg, args.Error(1)
}

func (m *MessageServiceMock) MarkRead(ctx context.Context, selfID, senderID int) (int64, error) {
	args := m.Called(ctx, selfID, senderID)
	return args.Get(0).(int64), args.Error(1)
}

type NotifierMock struct {
	mock.Mock
}

func (m *NotifierMock) NotifyMessage(msg models.Message) {
	m.Called(msg)
}

func (m *NotifierMock) NotifyRead(senderID, readerID int, count int64) {
	m.Called(senderID, readerID, count)
}

type EmitterMock struct {
	mock.Mock
}

func (m *EmitterMock) Emit(ctx context.Context, eventType, requestID string, userID int, payload any) {
	m.Called(ctx, eventType, requestID, userID, payload)
}

var _ services.FriendService = (*FriendServiceMock)(nil)
var _ services.MessageService = (*MessageServiceMock)(nil)
