package router

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"quickchat/internal/chat/app"
	"quickchat/internal/chat/domain"
	memberdomain "quickchat/internal/member/domain"
	"quickchat/pkg/logger"

	"github.com/gofiber/fiber/v2"
	gws "github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	addr    string
	repo    *app.MockMessageRepository
	members *app.MockMemberDirectory
	hub     *app.Hub
}

// token 直接當作 member id
func identityVerifier(_ context.Context, tok string) (string, error) {
	return tok, nil
}

func startServer(t *testing.T) *testServer {
	t.Helper()
	logger.SetNewNop()

	reg := prometheus.NewRegistry()
	metrics := app.NewMetrics(reg)
	s := &testServer{
		repo:    new(app.MockMessageRepository),
		members: new(app.MockMemberDirectory),
		hub:     app.NewHub(metrics, nil),
	}
	uc := app.NewMessageUseCase(app.MessageDeps{
		Repo:    s.repo,
		Members: s.members,
		Emitter: s.hub,
		Metrics: metrics,
	})

	r := fiber.New(fiber.Config{DisableStartupMessage: true})
	RegisterRoutes(r, Handlers{
		Message:   app.NewMessageHandler(uc, time.Second),
		Websocket: app.NewChatWebsocketHandler(s.hub, uc, app.ConnOptions{PingInterval: time.Second}, time.Second),
	}, Options{
		Verify:   identityVerifier,
		Gatherer: reg,
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s.addr = ln.Addr().String()
	go func() { _ = r.Listener(ln) }()

	t.Cleanup(func() {
		s.hub.Shutdown()
		_ = r.ShutdownWithTimeout(2 * time.Second)
	})
	return s
}

func (s *testServer) dial(t *testing.T, query string) *gws.Conn {
	t.Helper()
	conn, _, err := gws.DefaultDialer.Dial("ws://"+s.addr+"/ws?"+query, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func (s *testServer) do(t *testing.T, method, path, member, body string) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, "http://"+s.addr+path, reader)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if member != "" {
		req.Header.Set("Authorization", "Bearer "+member)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, raw
}

type frame struct {
	Action  string          `json:"action"`
	Success bool            `json:"success"`
	Payload json.RawMessage `json:"payload"`
	Error   string          `json:"error"`
}

// readUntil 讀到指定 action 且 match 成立為止
func readUntil(t *testing.T, conn *gws.Conn, action string, match func(frame) bool) frame {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %s", action)

		var f frame
		require.NoError(t, json.Unmarshal(data, &f))
		if f.Action == action && (match == nil || match(f)) {
			return f
		}
	}
}

func onlineIs(ids ...string) func(frame) bool {
	return func(f frame) bool {
		var online []string
		if err := json.Unmarshal(f.Payload, &online); err != nil {
			return false
		}
		if len(online) != len(ids) {
			return false
		}
		for i := range ids {
			if online[i] != ids[i] {
				return false
			}
		}
		return true
	}
}

func TestRoutes_StatusAndMetrics(t *testing.T) {
	s := startServer(t)

	status, body := s.do(t, http.MethodGet, "/api/status", "", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Server is live", string(body))

	status, body = s.do(t, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), "quickchat_connected_clients")

	status, _ = s.do(t, http.MethodGet, "/conversations/users", "", "")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = s.do(t, http.MethodGet, "/ws?auth=alice", "", "")
	assert.Equal(t, http.StatusUpgradeRequired, status)
}

func TestRoutes_WebsocketRejectsForeignIdentity(t *testing.T) {
	s := startServer(t)

	conn := s.dial(t, "auth=alice&userId=bob")
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, gws.IsCloseError(err, gws.ClosePolicyViolation), err.Error())
	assert.False(t, s.hub.IsOnline("alice"))
}

func TestRoutes_RealtimeFlow(t *testing.T) {
	s := startServer(t)

	aliceWS := s.dial(t, "auth=alice&userId=alice")
	readUntil(t, aliceWS, string(domain.GetOnlineUsers), onlineIs("alice"))

	bobWS := s.dial(t, "auth=bob")
	readUntil(t, bobWS, string(domain.GetOnlineUsers), onlineIs("alice", "bob"))
	readUntil(t, aliceWS, string(domain.GetOnlineUsers), onlineIs("alice", "bob"))

	// alice 透過 REST 傳訊息，bob 收到 newMessage
	s.members.On("FindByIDs", mock.Anything, []string{"alice", "bob"}).Return([]memberdomain.Member{
		{MemberID: "alice", FullName: "Alice"},
		{MemberID: "bob", FullName: "Bob"},
	}, nil)
	s.repo.On("Create", mock.Anything, mock.AnythingOfType("*domain.Message")).Return(nil).Once()

	status, body := s.do(t, http.MethodPost, "/conversations/bob/messages", "alice", `{"text":"hello bob"}`)
	require.Equal(t, http.StatusOK, status, string(body))

	got := readUntil(t, bobWS, string(domain.ActionNewMessage), nil)
	var msg domain.Message
	require.NoError(t, json.Unmarshal(got.Payload, &msg))
	assert.Equal(t, "hello bob", msg.Text)
	assert.Equal(t, "alice", msg.Sender)
	require.NotNil(t, msg.SenderProfile)
	assert.Equal(t, "Alice", msg.SenderProfile.FullName)

	// bob 回報已讀，alice 收到 messagesSeen
	s.repo.On("MarkSeen", mock.Anything, []string{msg.ID}, "bob").Return(int64(1), nil).Once()
	s.repo.On("FindByIDs", mock.Anything, []string{msg.ID}).
		Return([]domain.Message{{ID: msg.ID, Sender: "alice", Receiver: "bob", Seen: true}}, nil).Once()

	require.NoError(t, bobWS.WriteJSON(domain.WSRequest{Action: string(domain.MessagesSeen), IDs: []string{msg.ID}, By: "bob"}))
	seen := readUntil(t, aliceWS, string(domain.MessagesSeen), nil)
	var payload domain.SeenPayload
	require.NoError(t, json.Unmarshal(seen.Payload, &payload))
	assert.Equal(t, domain.SeenPayload{IDs: []string{msg.ID}, By: "bob"}, payload)

	// by 不是自己
	require.NoError(t, bobWS.WriteJSON(domain.WSRequest{Action: string(domain.MessagesSeen), IDs: []string{msg.ID}, By: "alice"}))
	errFrame := readUntil(t, bobWS, string(domain.ActionError), nil)
	assert.False(t, errFrame.Success)
	assert.Equal(t, "by does not match the authenticated user", errFrame.Error)

	// 重新取得在線名單
	require.NoError(t, bobWS.WriteJSON(domain.WSRequest{Action: string(domain.GetOnlineUsers)}))
	readUntil(t, bobWS, string(domain.GetOnlineUsers), onlineIs("alice", "bob"))

	// bob 離線後 alice 收到新的名單
	require.NoError(t, bobWS.Close())
	readUntil(t, aliceWS, string(domain.GetOnlineUsers), onlineIs("alice"))
	s.repo.AssertExpectations(t)
}

func TestRoutes_SecondConnectionReplacesFirst(t *testing.T) {
	s := startServer(t)

	first := s.dial(t, "auth=alice")
	readUntil(t, first, string(domain.GetOnlineUsers), onlineIs("alice"))

	second := s.dial(t, "auth=alice")
	readUntil(t, second, string(domain.GetOnlineUsers), onlineIs("alice"))

	require.NoError(t, first.SetReadDeadline(time.Now().Add(3*time.Second)))
	var err error
	for err == nil {
		_, _, err = first.ReadMessage()
	}
	assert.True(t, gws.IsCloseError(err, app.CloseReplaced), err.Error())

	// 舊連線的 detach 不會把新連線踢掉
	time.Sleep(50 * time.Millisecond)
	assert.True(t, s.hub.IsOnline("alice"))
}
