package app

import (
	"context"
	"sync"
	"time"

	"quickchat/internal/chat/domain"
	memberdomain "quickchat/internal/member/domain"

	"github.com/stretchr/testify/mock"
)

// MockMessageRepository Mock MessageRepository
type MockMessageRepository struct {
	mock.Mock
}

// EnsureIndexes mock
func (m *MockMessageRepository) EnsureIndexes(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// Create mock, assigns an id like the store does
func (m *MockMessageRepository) Create(ctx context.Context, msg *domain.Message) error {
	args := m.Called(ctx, msg)
	if args.Error(0) == nil && msg.ID == "" {
		msg.ID = "msg-" + msg.Sender + "-" + msg.Receiver
		msg.CreatedAt = time.Now().UTC()
	}
	return args.Error(0)
}

// ListConversation mock
func (m *MockMessageRepository) ListConversation(ctx context.Context, a, b string, page domain.PageQuery) ([]domain.Message, error) {
	args := m.Called(ctx, a, b, page)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

// FindByIDs mock
func (m *MockMessageRepository) FindByIDs(ctx context.Context, ids []string) ([]domain.Message, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

// UnseenIDs mock
func (m *MockMessageRepository) UnseenIDs(ctx context.Context, sender, receiver string) ([]string, error) {
	args := m.Called(ctx, sender, receiver)
	if args.Get(0) != nil {
		return args.Get(0).([]string), args.Error(1)
	}
	return nil, args.Error(1)
}

// MarkSeen mock
func (m *MockMessageRepository) MarkSeen(ctx context.Context, ids []string, receiver string) (int64, error) {
	args := m.Called(ctx, ids, receiver)
	return args.Get(0).(int64), args.Error(1)
}

// MarkDeleted mock
func (m *MockMessageRepository) MarkDeleted(ctx context.Context, id, requester string) (*domain.Message, error) {
	args := m.Called(ctx, id, requester)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

// CountUnseenPerSender mock
func (m *MockMessageRepository) CountUnseenPerSender(ctx context.Context, receiver string) (map[string]int, error) {
	args := m.Called(ctx, receiver)
	if args.Get(0) != nil {
		return args.Get(0).(map[string]int), args.Error(1)
	}
	return nil, args.Error(1)
}

// LastMessageTimestamp mock
func (m *MockMessageRepository) LastMessageTimestamp(ctx context.Context, a, b string) (*time.Time, error) {
	args := m.Called(ctx, a, b)
	if args.Get(0) != nil {
		return args.Get(0).(*time.Time), args.Error(1)
	}
	return nil, args.Error(1)
}

// LastMessageTimestamps mock
func (m *MockMessageRepository) LastMessageTimestamps(ctx context.Context, viewer string) (map[string]time.Time, error) {
	args := m.Called(ctx, viewer)
	if args.Get(0) != nil {
		return args.Get(0).(map[string]time.Time), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockMemberDirectory Mock MemberDirectory
type MockMemberDirectory struct {
	mock.Mock
}

// ListOthers mock
func (m *MockMemberDirectory) ListOthers(ctx context.Context, memberID string) ([]memberdomain.Member, error) {
	args := m.Called(ctx, memberID)
	if args.Get(0) != nil {
		return args.Get(0).([]memberdomain.Member), args.Error(1)
	}
	return nil, args.Error(1)
}

// FindByIDs mock
func (m *MockMemberDirectory) FindByIDs(ctx context.Context, memberIDs []string) ([]memberdomain.Member, error) {
	args := m.Called(ctx, memberIDs)
	if args.Get(0) != nil {
		return args.Get(0).([]memberdomain.Member), args.Error(1)
	}
	return nil, args.Error(1)
}

// EmittedEvent one recorded realtime event
type EmittedEvent struct {
	To      string
	Event   domain.Action
	Payload interface{}
}

// RecordingEmitter Emitter that records every event; online decides delivery
type RecordingEmitter struct {
	mu     sync.Mutex
	online map[string]bool
	events []EmittedEvent
}

// NewRecordingEmitter create an emitter where ids are online
func NewRecordingEmitter(ids ...string) *RecordingEmitter {
	e := &RecordingEmitter{online: map[string]bool{}}
	for _, id := range ids {
		e.online[id] = true
	}
	return e
}

// EmitToUser record
func (e *RecordingEmitter) EmitToUser(memberID string, event domain.Action, payload interface{}) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, EmittedEvent{To: memberID, Event: event, Payload: payload})
	return e.online[memberID]
}

// EmitBroadcast record with empty To
func (e *RecordingEmitter) EmitBroadcast(event domain.Action, payload interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, EmittedEvent{Event: event, Payload: payload})
}

// IsOnline mock
func (e *RecordingEmitter) IsOnline(memberID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.online[memberID]
}

// Events recorded events for event
func (e *RecordingEmitter) Events(event domain.Action) []EmittedEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []EmittedEvent
	for _, ev := range e.events {
		if ev.Event == event {
			out = append(out, ev)
		}
	}
	return out
}

// MockImageStore Mock ImageStore
type MockImageStore struct {
	mock.Mock
}

// Store mock
func (m *MockImageStore) Store(ctx context.Context, owner, image string) (string, error) {
	args := m.Called(ctx, owner, image)
	return args.String(0), args.Error(1)
}

// MockEventPublisher Mock EventPublisher
type MockEventPublisher struct {
	mock.Mock
}

// Publish mock
func (m *MockEventPublisher) Publish(ctx context.Context, ev domain.StreamEvent) error {
	return m.Called(ctx, ev).Error(0)
}

// Close mock
func (m *MockEventPublisher) Close() error {
	return m.Called().Error(0)
}

// MockRelay Mock Relay
type MockRelay struct {
	mock.Mock
}

// Publish mock
func (m *MockRelay) Publish(ctx context.Context, channel string, message interface{}) error {
	return m.Called(channel, message).Error(0)
}

// Subscribe mock
func (m *MockRelay) Subscribe(ctx context.Context, channel string, handler func(payload []byte)) error {
	return m.Called(channel, handler).Error(0)
}
