package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// ChannelMock stands in for the push channel client.
type ChannelMock struct {
	mock.Mock
}

func (m *ChannelMock) Subscribe(ctx context.Context, conversationID string) error {
	args := m.Called(ctx, conversationID)
	return args.Error(0)
}

func (m *ChannelMock) Unsubscribe(ctx context.Context, conversationID string) error {
	args := m.Called(ctx, conversationID)
	return args.Error(0)
}

func (m *ChannelMock) SendTyping(ctx context.Context, conversationID string, isTyping bool) error {
	args := m.Called(ctx, conversationID, isTyping)
	return args.Error(0)
}
