package app

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"quickchat/internal/chat/domain"
	memberdomain "quickchat/internal/member/domain"
	errprocess "quickchat/pkg/err"
	"quickchat/pkg/middlewares"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// token 直接當作 member id
func identityVerifier(_ context.Context, tok string) (string, error) {
	if tok == "expired" {
		return "", errprocess.Auth("Token expired, please log in again")
	}
	return tok, nil
}

func newHandlerApp(f *usecaseFixture) *fiber.App {
	h := NewMessageHandler(f.uc, time.Second)
	r := fiber.New()
	auth := middlewares.JWTMiddleware(identityVerifier)

	conv := r.Group("/conversations", auth)
	conv.Get("/users", h.ListSidebar)
	conv.Get("/:id/messages", h.GetMessages)
	conv.Post("/:id/messages", h.SendMessage)
	conv.Put("/:id/seen", h.MarkConversationSeen)

	msgs := r.Group("/messages", auth)
	msgs.Put("/seen-batch", h.MarkSeenBatch)
	msgs.Put("/seen/:messageId", h.MarkSeen)
	msgs.Delete("/:messageId", h.DeleteMessage)
	return r
}

func doRequest(t *testing.T, r *fiber.App, method, path, member, body string) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if member != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+member)
	}

	resp, err := r.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]interface{}{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func TestMessageHandler_Auth(t *testing.T) {
	f := newUsecaseFixture(false)
	r := newHandlerApp(f)

	status, body := doRequest(t, r, http.MethodGet, "/conversations/users", "", "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "No token provided", body["message"])

	status, body = doRequest(t, r, http.MethodGet, "/conversations/users", "expired", "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Token expired, please log in again", body["message"])
}

func TestMessageHandler_ListSidebar(t *testing.T) {
	f := newUsecaseFixture(false)
	r := newHandlerApp(f)

	last := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	f.members.On("ListOthers", mock.Anything, "alice").Return([]memberdomain.Member{bob, carol}, nil).Once()
	f.repo.On("CountUnseenPerSender", mock.Anything, "alice").Return(map[string]int{"bob": 2}, nil).Once()
	f.repo.On("LastMessageTimestamps", mock.Anything, "alice").Return(map[string]time.Time{"bob": last}, nil).Once()

	status, body := doRequest(t, r, http.MethodGet, "/conversations/users", "alice", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])

	users := body["users"].([]interface{})
	require.Len(t, users, 2)
	assert.Equal(t, "bob", users[0].(map[string]interface{})["id"])
	assert.Equal(t, map[string]interface{}{"bob": float64(2)}, body["unseenMessages"])
}

func TestMessageHandler_GetMessages(t *testing.T) {
	t.Run("marks seen then lists", func(t *testing.T) {
		f := newUsecaseFixture(false, "bob")
		r := newHandlerApp(f)

		f.repo.On("UnseenIDs", mock.Anything, "bob", "alice").Return([]string{"m1"}, nil).Once()
		f.repo.On("MarkSeen", mock.Anything, []string{"m1"}, "alice").Return(int64(1), nil).Once()
		f.repo.On("ListConversation", mock.Anything, "alice", "bob", domain.PageQuery{Limit: 20}).
			Return([]domain.Message{{ID: "m1", Sender: "bob", Receiver: "alice", Text: "yo", Seen: true}}, nil).Once()
		f.members.On("FindByIDs", mock.Anything, []string{"alice", "bob"}).Return([]memberdomain.Member{alice, bob}, nil).Once()

		status, body := doRequest(t, r, http.MethodGet, "/conversations/bob/messages?limit=20", "alice", "")
		require.Equal(t, http.StatusOK, status)
		msgs := body["messages"].([]interface{})
		require.Len(t, msgs, 1)
		assert.Equal(t, true, msgs[0].(map[string]interface{})["seen"])

		seen := f.emitter.Events(domain.MessagesSeen)
		require.Len(t, seen, 1)
		assert.Equal(t, "bob", seen[0].To)
	})

	t.Run("bad limit", func(t *testing.T) {
		f := newUsecaseFixture(false)
		r := newHandlerApp(f)

		status, body := doRequest(t, r, http.MethodGet, "/conversations/bob/messages?limit=abc", "alice", "")
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "limit must be a positive number", body["message"])
		f.repo.AssertNotCalled(t, "ListConversation", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("bad before", func(t *testing.T) {
		f := newUsecaseFixture(false)
		r := newHandlerApp(f)

		status, _ := doRequest(t, r, http.MethodGet, "/conversations/bob/messages?limit=5&before=yesterday", "alice", "")
		assert.Equal(t, http.StatusBadRequest, status)
	})
}

func TestMessageHandler_SendMessage(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		f := newUsecaseFixture(false, "bob")
		r := newHandlerApp(f)
		f.members.On("FindByIDs", mock.Anything, []string{"alice", "bob"}).Return([]memberdomain.Member{alice, bob}, nil).Once()
		f.repo.On("Create", mock.Anything, mock.AnythingOfType("*domain.Message")).Return(nil).Once()

		status, body := doRequest(t, r, http.MethodPost, "/conversations/bob/messages", "alice", `{"text":"hello"}`)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, "hello", body["text"])
		assert.Equal(t, "alice", body["sender"])
		assert.Equal(t, "bob", body["receiver"])
		assert.NotEmpty(t, body["id"])
		require.Len(t, f.emitter.Events(domain.ActionNewMessage), 1)
	})

	t.Run("empty message", func(t *testing.T) {
		f := newUsecaseFixture(false)
		r := newHandlerApp(f)

		status, body := doRequest(t, r, http.MethodPost, "/conversations/bob/messages", "alice", `{"text":"  "}`)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "Message cannot be empty", body["message"])
	})

	t.Run("unknown receiver", func(t *testing.T) {
		f := newUsecaseFixture(false)
		r := newHandlerApp(f)
		f.members.On("FindByIDs", mock.Anything, []string{"alice", "ghost"}).Return([]memberdomain.Member{alice}, nil).Once()

		status, body := doRequest(t, r, http.MethodPost, "/conversations/ghost/messages", "alice", `{"text":"anyone?"}`)
		assert.Equal(t, http.StatusNotFound, status)
		assert.Equal(t, "User not found", body["message"])
		f.repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("store failure hides the cause", func(t *testing.T) {
		f := newUsecaseFixture(false)
		r := newHandlerApp(f)
		f.members.On("FindByIDs", mock.Anything, []string{"alice", "bob"}).Return([]memberdomain.Member{alice, bob}, nil).Once()
		f.repo.On("Create", mock.Anything, mock.Anything).Return(errprocess.Transport(assert.AnError, "")).Once()

		status, body := doRequest(t, r, http.MethodPost, "/conversations/bob/messages", "alice", `{"text":"hello"}`)
		assert.Equal(t, http.StatusInternalServerError, status)
		assert.Equal(t, "internal server error", body["message"])
	})
}

func TestMessageHandler_MarkSeenBatch(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		ids     []string
		status  int
		message string
	}{
		{name: "single id", body: `{"messageIds":"m1"}`, ids: []string{"m1"}, status: http.StatusOK, message: "1 messages marked as seen"},
		{name: "array", body: `{"messageIds":["m1","m2"]}`, ids: []string{"m1", "m2"}, status: http.StatusOK, message: "1 messages marked as seen"},
		{name: "missing", body: `{}`, status: http.StatusBadRequest, message: "messageIds is required"},
		{name: "empty string", body: `{"messageIds":""}`, status: http.StatusBadRequest, message: "messageIds is required"},
		{name: "empty array", body: `{"messageIds":[]}`, status: http.StatusBadRequest, message: "messageIds must not be empty"},
		{name: "wrong type", body: `{"messageIds":5}`, status: http.StatusBadRequest, message: "invalid request body"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newUsecaseFixture(false)
			r := newHandlerApp(f)
			if tc.ids != nil {
				f.repo.On("MarkSeen", mock.Anything, tc.ids, "bob").Return(int64(1), nil).Once()
				f.repo.On("FindByIDs", mock.Anything, tc.ids).
					Return([]domain.Message{{ID: "m1", Sender: "alice", Receiver: "bob", Seen: true}}, nil).Once()
			}

			status, body := doRequest(t, r, http.MethodPut, "/messages/seen-batch", "bob", tc.body)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.message, body["message"])
			if tc.ids == nil {
				f.repo.AssertNotCalled(t, "MarkSeen", mock.Anything, mock.Anything, mock.Anything)
				return
			}
			assert.Equal(t, float64(1), body["count"])

			seen := f.emitter.Events(domain.MessagesSeen)
			require.Len(t, seen, 1)
			assert.Equal(t, "alice", seen[0].To)
			assert.Equal(t, domain.SeenPayload{IDs: []string{"m1"}, By: "bob"}, seen[0].Payload)
		})
	}
}

func TestMessageHandler_MarkSeenSingle(t *testing.T) {
	f := newUsecaseFixture(false)
	r := newHandlerApp(f)
	f.repo.On("MarkSeen", mock.Anything, []string{"m9"}, "bob").Return(int64(0), nil).Once()

	status, body := doRequest(t, r, http.MethodPut, "/messages/seen/m9", "bob", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(0), body["count"])
	assert.Empty(t, f.emitter.Events(domain.MessagesSeen))
}

func TestMessageHandler_MarkConversationSeen(t *testing.T) {
	f := newUsecaseFixture(false)
	r := newHandlerApp(f)
	f.repo.On("UnseenIDs", mock.Anything, "alice", "bob").Return([]string{}, nil).Once()

	status, body := doRequest(t, r, http.MethodPut, "/conversations/alice/seen", "bob", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(0), body["count"])
}

func TestMessageHandler_DeleteMessage(t *testing.T) {
	t.Run("sender deletes", func(t *testing.T) {
		f := newUsecaseFixture(false, "alice", "bob")
		r := newHandlerApp(f)
		tomb := &domain.Message{ID: "m1", Sender: "alice", Receiver: "bob"}
		tomb.Tombstone()
		f.repo.On("MarkDeleted", mock.Anything, "m1", "alice").Return(tomb, nil).Once()
		f.members.On("FindByIDs", mock.Anything, []string{"alice", "bob"}).Return([]memberdomain.Member{alice, bob}, nil).Once()

		status, body := doRequest(t, r, http.MethodDelete, "/messages/m1", "alice", "")
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, "Message deleted", body["message"])
		data := body["data"].(map[string]interface{})
		assert.Equal(t, true, data["deleted"])
		assert.Equal(t, domain.DeletedText, data["text"])
		assert.Len(t, f.emitter.Events(domain.MessageDeleted), 2)
	})

	t.Run("not the sender", func(t *testing.T) {
		f := newUsecaseFixture(false)
		r := newHandlerApp(f)
		f.repo.On("MarkDeleted", mock.Anything, "m1", "bob").
			Return(nil, errprocess.Authorization("Not authorized to delete this message")).Once()

		status, body := doRequest(t, r, http.MethodDelete, "/messages/m1", "bob", "")
		assert.Equal(t, http.StatusForbidden, status)
		assert.Equal(t, "Not authorized to delete this message", body["message"])
		assert.Empty(t, f.emitter.Events(domain.MessageDeleted))
	})

	t.Run("missing", func(t *testing.T) {
		f := newUsecaseFixture(false)
		r := newHandlerApp(f)
		f.repo.On("MarkDeleted", mock.Anything, "nope", "alice").Return(nil, errprocess.NotFound("Message not found")).Once()

		status, body := doRequest(t, r, http.MethodDelete, "/messages/nope", "alice", "")
		assert.Equal(t, http.StatusNotFound, status)
		assert.Equal(t, "Message not found", body["message"])
	})
}
