package app

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"quickchat/internal/chat/domain"
	"quickchat/internal/chat/repository"
	"quickchat/pkg/logger"

	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// fakeSocket records writes made by the writer goroutine
type fakeSocket struct {
	mu        sync.Mutex
	frames    [][]byte
	closeCode int
	closed    bool
	failWrite bool
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{}
}

func (s *fakeSocket) WriteMessage(_ int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrite {
		return errors.New("broken pipe")
	}
	s.frames = append(s.frames, data)
	return nil
}

func (s *fakeSocket) WriteControl(messageType int, data []byte, _ time.Time) error {
	if messageType == websocket.CloseMessage && len(data) >= 2 {
		s.mu.Lock()
		s.closeCode = int(data[0])<<8 | int(data[1])
		s.mu.Unlock()
	}
	return nil
}

func (s *fakeSocket) SetWriteDeadline(time.Time) error { return nil }

func (s *fakeSocket) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fakeSocket) responses(t *testing.T) []domain.WSResponse {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.WSResponse, 0, len(s.frames))
	for _, f := range s.frames {
		var r domain.WSResponse
		require.NoError(t, json.Unmarshal(f, &r))
		out = append(out, r)
	}
	return out
}

func (s *fakeSocket) waitFrames(t *testing.T, n int) []domain.WSResponse {
	t.Helper()
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.frames) >= n
	}, time.Second, 5*time.Millisecond)
	return s.responses(t)
}

func startConn(memberID string, buffer int) (*Connection, *fakeSocket) {
	s := newFakeSocket()
	c := NewConnection(memberID, s, ConnOptions{PingInterval: time.Hour, SendBuffer: buffer})
	go c.WritePump()
	return c, s
}

func onlineSet(t *testing.T, r domain.WSResponse) []string {
	t.Helper()
	require.Equal(t, string(domain.GetOnlineUsers), r.Action)
	raw, err := json.Marshal(r.Payload)
	require.NoError(t, err)
	var ids []string
	require.NoError(t, json.Unmarshal(raw, &ids))
	return ids
}

func TestHub_PresenceBroadcast(t *testing.T) {
	logger.SetNewNop()
	hub := NewHub(NewMetrics(nil), nil)

	alice, aliceSock := startConn("alice", 8)
	hub.Attach(alice)
	frames := aliceSock.waitFrames(t, 1)
	assert.Equal(t, []string{"alice"}, onlineSet(t, frames[0]))

	bob, _ := startConn("bob", 8)
	hub.Attach(bob)
	frames = aliceSock.waitFrames(t, 2)
	assert.Equal(t, []string{"alice", "bob"}, onlineSet(t, frames[1]))
	assert.Equal(t, float64(2), testutil.ToFloat64(hub.metrics.ConnectedClients))

	assert.True(t, hub.Detach(bob))
	frames = aliceSock.waitFrames(t, 3)
	assert.Equal(t, []string{"alice"}, onlineSet(t, frames[2]))
	assert.False(t, hub.IsOnline("bob"))
}

func TestHub_ReplacedConnection(t *testing.T) {
	logger.SetNewNop()
	hub := NewHub(NewMetrics(nil), nil)

	first, firstSock := startConn("alice", 8)
	hub.Attach(first)
	second, _ := startConn("alice", 8)
	hub.Attach(second)

	<-first.Stopped()
	firstSock.mu.Lock()
	assert.Equal(t, CloseReplaced, firstSock.closeCode)
	assert.True(t, firstSock.closed)
	firstSock.mu.Unlock()

	// 舊連線的斷線處理不會影響新連線
	assert.False(t, hub.Detach(first))
	assert.True(t, hub.IsOnline("alice"))
	assert.Equal(t, []string{"alice"}, hub.OnlineUsers())
}

func TestHub_EmitToUser(t *testing.T) {
	logger.SetNewNop()
	hub := NewHub(NewMetrics(nil), nil)

	bob, bobSock := startConn("bob", 8)
	hub.Attach(bob)
	bobSock.waitFrames(t, 1)

	msg := domain.Message{ID: "m1", Sender: "alice", Receiver: "bob", Text: "hi"}
	assert.True(t, hub.EmitToUser("bob", domain.ActionNewMessage, msg))
	assert.False(t, hub.EmitToUser("carol", domain.ActionNewMessage, msg))

	frames := bobSock.waitFrames(t, 2)
	assert.Equal(t, string(domain.ActionNewMessage), frames[1].Action)
	assert.True(t, frames[1].Success)

	assert.Equal(t, float64(1), testutil.ToFloat64(hub.metrics.EventsEmitted.WithLabelValues("newMessage", "true")))
	assert.Equal(t, float64(1), testutil.ToFloat64(hub.metrics.EventsEmitted.WithLabelValues("newMessage", "false")))
}

func TestHub_FullQueueDrops(t *testing.T) {
	logger.SetNewNop()
	hub := NewHub(NewMetrics(nil), nil)

	// 沒有啟動 writer，佇列不會被消化
	s := newFakeSocket()
	c := NewConnection("bob", s, ConnOptions{SendBuffer: 1})
	hub.Attach(c) // online snapshot 佔掉唯一的位置

	assert.False(t, hub.EmitToUser("bob", domain.ActionNewMessage, domain.Message{ID: "m1"}))
	assert.Equal(t, float64(1), testutil.ToFloat64(hub.metrics.EventsDropped.WithLabelValues("newMessage")))
}

func TestHub_WriteFailureStopsConnection(t *testing.T) {
	logger.SetNewNop()
	hub := NewHub(nil, nil)

	s := newFakeSocket()
	s.failWrite = true
	c := NewConnection("bob", s, ConnOptions{PingInterval: time.Hour})
	go c.WritePump()
	hub.Attach(c)

	select {
	case <-c.Stopped():
	case <-time.After(time.Second):
		t.Fatal("writer did not stop")
	}
	assert.False(t, c.Enqueue([]byte("late")))
}

func TestHub_RelayWhenNotLocal(t *testing.T) {
	logger.SetNewNop()
	relay := new(MockRelay)
	hub := NewHub(nil, relay)

	relay.On("Publish", repository.UserChannel("carol"), mock.AnythingOfType("[]uint8")).Return(nil).Once()
	assert.False(t, hub.EmitToUser("carol", domain.MessagesSeen, domain.SeenPayload{IDs: []string{"m1"}, By: "bob"}))
	relay.AssertExpectations(t)

	var handler func([]byte)
	relay.On("Subscribe", repository.UserChannel("alice"), mock.Anything).
		Run(func(args mock.Arguments) { handler = args.Get(1).(func([]byte)) }).
		Return(nil).Once()

	alice, aliceSock := startConn("alice", 8)
	hub.Attach(alice)
	require.NotNil(t, handler)

	frame, err := encodeFrame(domain.ActionNewMessage, domain.Message{ID: "remote"})
	require.NoError(t, err)
	handler(frame)

	frames := aliceSock.waitFrames(t, 2)
	assert.Equal(t, string(domain.ActionNewMessage), frames[1].Action)
}

func TestHub_Shutdown(t *testing.T) {
	logger.SetNewNop()
	hub := NewHub(nil, nil)
	c, s := startConn("alice", 8)
	hub.Attach(c)

	hub.Shutdown()
	<-c.Stopped()
	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Equal(t, websocket.CloseGoingAway, s.closeCode)
}
