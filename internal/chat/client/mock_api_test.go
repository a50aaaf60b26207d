package client

import (
	"context"
	"sync"

	"quickchat/internal/chat/domain"

	"github.com/stretchr/testify/mock"
)

// MockAPI Mock API
type MockAPI struct {
	mock.Mock
}

func (m *MockAPI) Sidebar(ctx context.Context) (*domain.Sidebar, error) {
	args := m.Called(ctx)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Sidebar), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAPI) Messages(ctx context.Context, counterpart string) ([]domain.Message, error) {
	args := m.Called(ctx, counterpart)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAPI) Send(ctx context.Context, to string, content domain.MessageContent) (*domain.Message, error) {
	args := m.Called(ctx, to, content)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAPI) MarkSeen(ctx context.Context, ids []string) (int64, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockAPI) Delete(ctx context.Context, id string) (*domain.Message, error) {
	args := m.Called(ctx, id)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

// recordingNotifier keeps every realtime seen acknowledgment
type recordingNotifier struct {
	mu   sync.Mutex
	sent []domain.SeenPayload
}

func (n *recordingNotifier) SendSeen(ids []string, by string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, domain.SeenPayload{IDs: ids, By: by})
	return nil
}

func (n *recordingNotifier) all() []domain.SeenPayload {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]domain.SeenPayload(nil), n.sent...)
}
