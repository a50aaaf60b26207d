package client

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"quickchat/internal/chat/domain"
	errprocess "quickchat/pkg/err"

	"github.com/gofiber/fiber/v2"
)

// RESTClient API over the chat service REST endpoints
type RESTClient struct {
	baseURL string
	token   string
	client  *fiber.Client
	timeout time.Duration
}

// NewRESTClient baseURL like http://localhost:5000, token is the session JWT
func NewRESTClient(baseURL, token string, timeout time.Duration) *RESTClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RESTClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  fiber.AcquireClient(),
		timeout: timeout,
	}
}

var _ API = (*RESTClient)(nil)

type errorBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// call 發送請求，非 2xx 轉成對應的 error kind
func (c *RESTClient) call(ctx context.Context, method, path string, body, out interface{}) error {
	if err := ctx.Err(); err != nil {
		return errprocess.Transport(err, "request cancelled")
	}

	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}

	var a *fiber.Agent
	uri := c.baseURL + path
	switch method {
	case fiber.MethodGet:
		a = c.client.Get(uri)
	case fiber.MethodPost:
		a = c.client.Post(uri)
	case fiber.MethodPut:
		a = c.client.Put(uri)
	case fiber.MethodDelete:
		a = c.client.Delete(uri)
	default:
		return errprocess.Validation("unsupported method " + method)
	}

	a.Set(fiber.HeaderAuthorization, "Bearer "+c.token)
	a.Timeout(timeout)
	if body != nil {
		a.JSON(body)
	}

	code, raw, errs := a.Bytes()
	if len(errs) > 0 {
		return errprocess.Transport(errs[0], "request failed")
	}
	if code >= fiber.StatusBadRequest {
		var e errorBody
		_ = json.Unmarshal(raw, &e)
		if e.Message == "" {
			e.Message = strings.TrimSpace(string(raw))
		}
		return errprocess.FromStatus(code, e.Message)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errprocess.Transport(err, "decode response")
	}
	return nil
}

// Sidebar GET /conversations/users
func (c *RESTClient) Sidebar(ctx context.Context) (*domain.Sidebar, error) {
	var resp struct {
		Users          []domain.UserSummary `json:"users"`
		UnseenMessages map[string]int       `json:"unseenMessages"`
	}
	if err := c.call(ctx, fiber.MethodGet, "/conversations/users", nil, &resp); err != nil {
		return nil, err
	}
	return &domain.Sidebar{Users: resp.Users, UnseenMessages: resp.UnseenMessages}, nil
}

// Messages GET /conversations/{id}/messages
func (c *RESTClient) Messages(ctx context.Context, counterpart string) ([]domain.Message, error) {
	var resp struct {
		Messages []domain.Message `json:"messages"`
	}
	path := "/conversations/" + url.PathEscape(counterpart) + "/messages"
	if err := c.call(ctx, fiber.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// Send POST /conversations/{id}/messages
func (c *RESTClient) Send(ctx context.Context, to string, content domain.MessageContent) (*domain.Message, error) {
	var msg domain.Message
	path := "/conversations/" + url.PathEscape(to) + "/messages"
	if err := c.call(ctx, fiber.MethodPost, path, content, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// MarkSeen PUT /messages/seen-batch
func (c *RESTClient) MarkSeen(ctx context.Context, ids []string) (int64, error) {
	var resp struct {
		Count int64 `json:"count"`
	}
	body := map[string][]string{"messageIds": ids}
	if err := c.call(ctx, fiber.MethodPut, "/messages/seen-batch", body, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

// Delete DELETE /messages/{id}
func (c *RESTClient) Delete(ctx context.Context, id string) (*domain.Message, error) {
	var resp struct {
		Data *domain.Message `json:"data"`
	}
	if err := c.call(ctx, fiber.MethodDelete, "/messages/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return nil, errprocess.New(errprocess.KindTransport, "empty delete response")
	}
	return resp.Data, nil
}
