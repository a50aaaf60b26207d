package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"quickchat/internal/chat/domain"
	memberdomain "quickchat/internal/member/domain"
	errprocess "quickchat/pkg/err"
	"quickchat/pkg/logger"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	alice = memberdomain.Member{MemberID: "alice", FullName: "Alice", Email: "alice@example.com"}
	bob   = memberdomain.Member{MemberID: "bob", FullName: "Bob", Email: "bob@example.com"}
	carol = memberdomain.Member{MemberID: "carol", FullName: "Carol"}
)

type usecaseFixture struct {
	repo    *MockMessageRepository
	members *MockMemberDirectory
	emitter *RecordingEmitter
	events  *MockEventPublisher
	metrics *Metrics
	uc      *MessageUseCase
}

func newUsecaseFixture(echo bool, online ...string) *usecaseFixture {
	logger.SetNewNop()
	f := &usecaseFixture{
		repo:    new(MockMessageRepository),
		members: new(MockMemberDirectory),
		emitter: NewRecordingEmitter(online...),
		events:  new(MockEventPublisher),
		metrics: NewMetrics(nil),
	}
	f.events.On("Publish", mock.Anything, mock.Anything).Return(nil).Maybe()
	f.uc = NewMessageUseCase(MessageDeps{
		Repo:         f.repo,
		Members:      f.members,
		Emitter:      f.emitter,
		Events:       f.events,
		Metrics:      f.metrics,
		EchoToSender: echo,
	})
	return f
}

// 測試 Send
func TestMessageUseCase_Send(t *testing.T) {
	ctx := context.Background()

	t.Run("receiver online gets newMessage", func(t *testing.T) {
		f := newUsecaseFixture(false, "bob")
		f.members.On("FindByIDs", ctx, []string{"alice", "bob"}).Return([]memberdomain.Member{alice, bob}, nil).Once()
		f.repo.On("Create", ctx, mock.AnythingOfType("*domain.Message")).Return(nil).Once()

		msg, err := f.uc.Send(ctx, "alice", "bob", domain.MessageContent{Text: "hi"})
		require.NoError(t, err)
		assert.NotEmpty(t, msg.ID)
		assert.Equal(t, "hi", msg.Text)
		require.NotNil(t, msg.SenderProfile)
		assert.Equal(t, "Alice", msg.SenderProfile.FullName)
		assert.Equal(t, "Bob", msg.ReceiverProfile.FullName)

		events := f.emitter.Events(domain.ActionNewMessage)
		require.Len(t, events, 1)
		assert.Equal(t, "bob", events[0].To)
		assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.MessagesSent))

		f.events.AssertCalled(t, "Publish", mock.Anything, mock.MatchedBy(func(ev domain.StreamEvent) bool {
			return ev.Type == domain.StreamMessageCreated && ev.ReceiverOnline && ev.MessageIDs[0] == msg.ID
		}))
	})

	t.Run("echo to sender when enabled", func(t *testing.T) {
		f := newUsecaseFixture(true, "alice", "bob")
		f.members.On("FindByIDs", ctx, []string{"alice", "bob"}).Return([]memberdomain.Member{alice, bob}, nil).Once()
		f.repo.On("Create", ctx, mock.Anything).Return(nil).Once()

		_, err := f.uc.Send(ctx, "alice", "bob", domain.MessageContent{Text: "hi"})
		require.NoError(t, err)

		events := f.emitter.Events(domain.ActionNewMessage)
		require.Len(t, events, 2)
		assert.Equal(t, "bob", events[0].To)
		assert.Equal(t, "alice", events[1].To)
	})

	t.Run("empty content is a validation error", func(t *testing.T) {
		f := newUsecaseFixture(false)
		_, err := f.uc.Send(ctx, "alice", "bob", domain.MessageContent{Text: "   "})
		assert.ErrorIs(t, err, errprocess.ErrValidation)
		f.repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("unknown receiver", func(t *testing.T) {
		f := newUsecaseFixture(false)
		f.members.On("FindByIDs", ctx, []string{"alice", "ghost"}).Return([]memberdomain.Member{alice}, nil).Once()

		_, err := f.uc.Send(ctx, "alice", "ghost", domain.MessageContent{Text: "hi"})
		assert.ErrorIs(t, err, errprocess.ErrNotFound)
		f.repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("store failure propagates, nothing emitted", func(t *testing.T) {
		f := newUsecaseFixture(false, "bob")
		f.members.On("FindByIDs", ctx, mock.Anything).Return([]memberdomain.Member{alice, bob}, nil).Once()
		f.repo.On("Create", ctx, mock.Anything).Return(errprocess.Transport(errors.New("no primary"), "save message")).Once()

		_, err := f.uc.Send(ctx, "alice", "bob", domain.MessageContent{Text: "hi"})
		assert.ErrorIs(t, err, errprocess.ErrTransport)
		assert.Empty(t, f.emitter.Events(domain.ActionNewMessage))
	})

	t.Run("inline image goes to the image store", func(t *testing.T) {
		f := newUsecaseFixture(false)
		images := new(MockImageStore)
		f.uc.images = images

		f.members.On("FindByIDs", ctx, mock.Anything).Return([]memberdomain.Member{alice, bob}, nil).Once()
		images.On("Store", ctx, "alice", "data:image/png;base64,AAAA").Return("https://cdn/messages/alice/x.png", nil).Once()
		f.repo.On("Create", ctx, mock.MatchedBy(func(m *domain.Message) bool {
			return m.Image == "https://cdn/messages/alice/x.png"
		})).Return(nil).Once()

		msg, err := f.uc.Send(ctx, "alice", "bob", domain.MessageContent{Image: "data:image/png;base64,AAAA"})
		require.NoError(t, err)
		assert.Equal(t, "https://cdn/messages/alice/x.png", msg.Image)
		images.AssertExpectations(t)
	})

	t.Run("publish failure does not fail send", func(t *testing.T) {
		f := newUsecaseFixture(false)
		events := new(MockEventPublisher)
		events.On("Publish", mock.Anything, mock.Anything).Return(errors.New("broker down"))
		f.uc.events = events

		f.members.On("FindByIDs", ctx, mock.Anything).Return([]memberdomain.Member{alice, bob}, nil).Once()
		f.repo.On("Create", ctx, mock.Anything).Return(nil).Once()

		_, err := f.uc.Send(ctx, "alice", "bob", domain.MessageContent{Text: "hi"})
		assert.NoError(t, err)
	})
}

// 測試 FetchConversation
func TestMessageUseCase_FetchConversation(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	history := []domain.Message{
		{ID: "m1", Sender: "alice", Receiver: "bob", Text: "hi", Seen: true, CreatedAt: now},
		{ID: "m2", Sender: "bob", Receiver: "alice", Text: "yo", CreatedAt: now.Add(time.Second)},
	}

	t.Run("marks unseen and notifies counterpart", func(t *testing.T) {
		f := newUsecaseFixture(false, "alice")
		f.repo.On("UnseenIDs", ctx, "alice", "bob").Return([]string{"m1"}, nil).Once()
		f.repo.On("MarkSeen", ctx, []string{"m1"}, "bob").Return(int64(1), nil).Once()
		f.repo.On("ListConversation", ctx, "bob", "alice", domain.PageQuery{}).Return(history, nil).Once()
		f.members.On("FindByIDs", ctx, []string{"bob", "alice"}).Return([]memberdomain.Member{alice, bob}, nil).Once()

		msgs, err := f.uc.FetchConversation(ctx, "bob", "alice", domain.PageQuery{})
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		assert.Equal(t, "Alice", msgs[0].SenderProfile.FullName)

		seen := f.emitter.Events(domain.MessagesSeen)
		require.Len(t, seen, 1)
		assert.Equal(t, "alice", seen[0].To)
		assert.Equal(t, domain.SeenPayload{IDs: []string{"m1"}, By: "bob"}, seen[0].Payload)
		assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.MessagesSeen))
	})

	t.Run("nothing unseen emits nothing", func(t *testing.T) {
		f := newUsecaseFixture(false, "alice")
		f.repo.On("UnseenIDs", ctx, "alice", "bob").Return([]string{}, nil).Once()
		f.repo.On("ListConversation", ctx, "bob", "alice", domain.PageQuery{}).Return(history, nil).Once()
		f.members.On("FindByIDs", ctx, mock.Anything).Return(nil, errors.New("pg down")).Once()

		msgs, err := f.uc.FetchConversation(ctx, "bob", "alice", domain.PageQuery{})
		require.NoError(t, err, "profiles are display data only")
		assert.Len(t, msgs, 2)
		assert.Empty(t, f.emitter.Events(domain.MessagesSeen))
		f.repo.AssertNotCalled(t, "MarkSeen", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("store failure", func(t *testing.T) {
		f := newUsecaseFixture(false)
		f.repo.On("UnseenIDs", ctx, "alice", "bob").Return(nil, errprocess.Transport(errors.New("timeout"), "")).Once()

		_, err := f.uc.FetchConversation(ctx, "bob", "alice", domain.PageQuery{})
		assert.ErrorIs(t, err, errprocess.ErrTransport)
	})
}

// 測試 MarkSeen
func TestMessageUseCase_MarkSeen(t *testing.T) {
	ctx := context.Background()

	t.Run("groups notifications by original sender", func(t *testing.T) {
		f := newUsecaseFixture(false, "alice", "carol")
		ids := []string{"m1", "m2", "m3"}
		f.repo.On("MarkSeen", ctx, ids, "bob").Return(int64(3), nil).Once()
		f.repo.On("FindByIDs", ctx, ids).Return([]domain.Message{
			{ID: "m1", Sender: "alice", Receiver: "bob", Seen: true},
			{ID: "m2", Sender: "carol", Receiver: "bob", Seen: true},
			{ID: "m3", Sender: "alice", Receiver: "bob", Seen: true},
		}, nil).Once()

		n, err := f.uc.MarkSeen(ctx, []string{"m1", "m2", "m3", "m1"}, "bob")
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)

		seen := f.emitter.Events(domain.MessagesSeen)
		require.Len(t, seen, 2)
		assert.Equal(t, "alice", seen[0].To)
		assert.Equal(t, domain.SeenPayload{IDs: []string{"m1", "m3"}, By: "bob"}, seen[0].Payload)
		assert.Equal(t, "carol", seen[1].To)
		assert.Equal(t, domain.SeenPayload{IDs: []string{"m2"}, By: "bob"}, seen[1].Payload)
	})

	t.Run("second call is a no-op", func(t *testing.T) {
		f := newUsecaseFixture(false, "alice")
		f.repo.On("MarkSeen", ctx, []string{"m1"}, "bob").Return(int64(0), nil).Once()

		n, err := f.uc.MarkSeen(ctx, []string{"m1"}, "bob")
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.Empty(t, f.emitter.Events(domain.MessagesSeen))
		f.repo.AssertNotCalled(t, "FindByIDs", mock.Anything, mock.Anything)
	})

	t.Run("messages of other receivers are not reported", func(t *testing.T) {
		f := newUsecaseFixture(false, "alice")
		f.repo.On("MarkSeen", ctx, []string{"m1", "m9"}, "bob").Return(int64(1), nil).Once()
		f.repo.On("FindByIDs", ctx, []string{"m1", "m9"}).Return([]domain.Message{
			{ID: "m1", Sender: "alice", Receiver: "bob", Seen: true},
			{ID: "m9", Sender: "alice", Receiver: "carol", Seen: false},
		}, nil).Once()

		_, err := f.uc.MarkSeen(ctx, []string{"m1", "m9"}, "bob")
		require.NoError(t, err)
		seen := f.emitter.Events(domain.MessagesSeen)
		require.Len(t, seen, 1)
		assert.Equal(t, []string{"m1"}, seen[0].Payload.(domain.SeenPayload).IDs)
	})

	t.Run("empty ids", func(t *testing.T) {
		f := newUsecaseFixture(false)
		_, err := f.uc.MarkSeen(ctx, []string{"", ""}, "bob")
		assert.ErrorIs(t, err, errprocess.ErrValidation)
	})

	t.Run("lookup failure after mark still succeeds", func(t *testing.T) {
		f := newUsecaseFixture(false)
		f.repo.On("MarkSeen", ctx, []string{"m1"}, "bob").Return(int64(1), nil).Once()
		f.repo.On("FindByIDs", ctx, []string{"m1"}).Return(nil, errors.New("timeout")).Once()

		n, err := f.uc.MarkSeen(ctx, []string{"m1"}, "bob")
		assert.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})
}

// 測試 Delete
func TestMessageUseCase_Delete(t *testing.T) {
	ctx := context.Background()

	t.Run("both parties get messageDeleted", func(t *testing.T) {
		f := newUsecaseFixture(false, "alice", "bob")
		tomb := &domain.Message{ID: "m1", Sender: "alice", Receiver: "bob", Text: domain.DeletedText, Deleted: true}
		f.repo.On("MarkDeleted", ctx, "m1", "alice").Return(tomb, nil).Once()
		f.members.On("FindByIDs", ctx, []string{"alice", "bob"}).Return([]memberdomain.Member{alice, bob}, nil).Once()

		msg, err := f.uc.Delete(ctx, "m1", "alice")
		require.NoError(t, err)
		assert.True(t, msg.Deleted)
		assert.Empty(t, msg.Image)

		deleted := f.emitter.Events(domain.MessageDeleted)
		require.Len(t, deleted, 2)
		assert.Equal(t, "alice", deleted[0].To)
		assert.Equal(t, "bob", deleted[1].To)
		assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.MessagesDeleted))
	})

	t.Run("non sender is rejected", func(t *testing.T) {
		f := newUsecaseFixture(false, "alice", "bob")
		f.repo.On("MarkDeleted", ctx, "m1", "bob").Return(nil, errprocess.Authorization("Not authorized to delete this message")).Once()

		_, err := f.uc.Delete(ctx, "m1", "bob")
		assert.ErrorIs(t, err, errprocess.ErrAuthorization)
		assert.Empty(t, f.emitter.Events(domain.MessageDeleted))
	})

	t.Run("missing id", func(t *testing.T) {
		f := newUsecaseFixture(false)
		_, err := f.uc.Delete(ctx, "", "alice")
		assert.ErrorIs(t, err, errprocess.ErrValidation)
	})
}

// 測試 ListSidebar
func TestMessageUseCase_ListSidebar(t *testing.T) {
	ctx := context.Background()
	f := newUsecaseFixture(false)
	last := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	f.members.On("ListOthers", ctx, "bob").Return([]memberdomain.Member{alice, carol}, nil).Once()
	f.repo.On("CountUnseenPerSender", ctx, "bob").Return(map[string]int{"alice": 2, "dave": 7}, nil).Once()
	f.repo.On("LastMessageTimestamps", ctx, "bob").Return(map[string]time.Time{"alice": last}, nil).Once()

	sidebar, err := f.uc.ListSidebar(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, sidebar.Users, 2)

	assert.Equal(t, "alice", sidebar.Users[0].ID)
	require.NotNil(t, sidebar.Users[0].LastMessageAt)
	assert.True(t, sidebar.Users[0].LastMessageAt.Equal(last))
	assert.Nil(t, sidebar.Users[1].LastMessageAt)
	assert.Equal(t, map[string]int{"alice": 2}, sidebar.UnseenMessages)
}
