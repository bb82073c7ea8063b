package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"thinkshare/internal/models"
	"thinkshare/internal/repositories"
)

type ConversationRepositoryMock struct {
	mock.Mock
}

func (m *ConversationRepositoryMock) CreateOrGetDirect(ctx context.Context, accountID string, otherID string) (models.Conversation, error) {
	args := m.Called(ctx, accountID, otherID)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) CreateGroup(ctx context.Context, ownerID string, name string, memberIDs []string) (models.Conversation, error) {
	args := m.Called(ctx, ownerID, name, memberIDs)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) ListForAccount(ctx context.Context, accountID string) ([]models.Conversation, error) {
	args := m.Called(ctx, accountID)
	var list []models.Conversation
	if val := args.Get(0); val != nil {
		list = val.([]models.Conversation)
	}
	return list, args.Error(1)
}

func (m *ConversationRepositoryMock) GetConversation(ctx context.Context, conversationID string) (models.Conversation, error) {
	args := m.Called(ctx, conversationID)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) IsParticipant(ctx context.Context, conversationID string, accountID string) (bool, error) {
	args := m.Called(ctx, conversationID, accountID)
	return args.Bool(0), args.Error(1)
}

func (m *ConversationRepositoryMock) MarkRead(ctx context.Context, conversationID string, accountID string) error {
	args := m.Called(ctx, conversationID, accountID)
	return args.Error(0)
}

func (m *ConversationRepositoryMock) Touch(ctx context.Context, conversationID string, at time.Time) error {
	args := m.Called(ctx, conversationID, at)
	return args.Error(0)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, conversationID string, senderID string, req models.SendMessageRequest) (models.Message, error) {
	args := m.Called(ctx, conversationID, senderID, req)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	args := m.Called(ctx, conversationID)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, messageID string) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) EditMessage(ctx context.Context, messageID string, senderID string, content string) (models.Message, error) {
	args := m.Called(ctx, messageID, senderID, content)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) DeleteForAll(ctx context.Context, messageID string, senderID string) error {
	args := m.Called(ctx, messageID, senderID)
	return args.Error(0)
}

func (m *MessageRepositoryMock) AddReaction(ctx context.Context, messageID string, accountID string, reaction string) error {
	args := m.Called(ctx, messageID, accountID, reaction)
	return args.Error(0)
}

func (m *MessageRepositoryMock) RemoveReaction(ctx context.Context, messageID string, accountID string, reaction string) error {
	args := m.Called(ctx, messageID, accountID, reaction)
	return args.Error(0)
}

type AccountRepositoryMock struct {
	mock.Mock
}

func (m *AccountRepositoryMock) GetAccount(ctx context.Context, accountID string) (models.Account, error) {
	args := m.Called(ctx, accountID)
	var acc models.Account
	if val := args.Get(0); val != nil {
		acc = val.(models.Account)
	}
	return acc, args.Error(1)
}

func (m *AccountRepositoryMock) BulkAccounts(ctx context.Context, ids []string) ([]models.Account, error) {
	args := m.Called(ctx, ids)
	var accounts []models.Account
	if val := args.Get(0); val != nil {
		accounts = val.([]models.Account)
	}
	return accounts, args.Error(1)
}

type BroadcasterMock struct {
	mock.Mock
}

func (m *BroadcasterMock) Broadcast(conversationID string, event models.Event) {
	m.Called(conversationID, event)
}

var _ repositories.ConversationRepository = (*ConversationRepositoryMock)(nil)
var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
var _ repositories.AccountRepository = (*AccountRepositoryMock)(nil)
