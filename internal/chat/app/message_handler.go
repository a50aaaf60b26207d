package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"quickchat/internal/chat/domain"
	errprocess "quickchat/pkg/err"
	"quickchat/pkg/logger"
	"quickchat/pkg/middlewares"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// MessageHandler REST handlers of the message service
type MessageHandler struct {
	messageUC *MessageUseCase
	timeout   time.Duration
}

// NewMessageHandler create MessageHandler
func NewMessageHandler(messageUC *MessageUseCase, timeout time.Duration) *MessageHandler {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &MessageHandler{messageUC: messageUC, timeout: timeout}
}

// ErrorResponse failure body
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// SidebarResponse body of GET /conversations/users
type SidebarResponse struct {
	Success        bool                 `json:"success"`
	Users          []domain.UserSummary `json:"users"`
	UnseenMessages map[string]int       `json:"unseenMessages"`
}

// MessagesResponse body of GET /conversations/{id}/messages
type MessagesResponse struct {
	Success  bool             `json:"success"`
	Messages []domain.Message `json:"messages"`
}

// CountResponse body of the seen endpoints
type CountResponse struct {
	Success bool   `json:"success"`
	Count   int64  `json:"count"`
	Message string `json:"message,omitempty"`
}

// DeleteResponse body of DELETE /messages/{id}
type DeleteResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    *domain.Message `json:"data"`
}

// MessageIDs accept a single id or an array of ids
type MessageIDs []string

// UnmarshalJSON "" and null leave the value nil, [] stays an empty slice
func (m *MessageIDs) UnmarshalJSON(b []byte) error {
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		if one == "" {
			*m = nil
		} else {
			*m = MessageIDs{one}
		}
		return nil
	}

	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	if many == nil {
		*m = nil
		return nil
	}
	*m = many
	return nil
}

// SeenBatchRequest body of PUT /messages/seen-batch
type SeenBatchRequest struct {
	MessageIDs MessageIDs `json:"messageIds" swaggertype:"array,string"`
}

func (h *MessageHandler) context(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), h.timeout)
}

func fail(c *fiber.Ctx, err error) error {
	status := errprocess.HTTPStatus(err)
	if status >= fiber.StatusInternalServerError {
		logger.Log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	} else {
		logger.Log.Debug("request rejected", zap.String("path", c.Path()), zap.Int("status", status), zap.Error(err))
	}
	return c.Status(status).JSON(ErrorResponse{Success: false, Message: errprocess.Message(err)})
}

// ListSidebar godoc
// @Summary Sidebar users
// @Description Every other member with the last message time and unseen badge counts
// @Tags Conversations
// @Produce json
// @Security BearerAuth
// @Success 200 {object} SidebarResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /conversations/users [get]
func (h *MessageHandler) ListSidebar(c *fiber.Ctx) error {
	ctx, cancel := h.context(c)
	defer cancel()

	sidebar, err := h.messageUC.ListSidebar(ctx, middlewares.MemberID(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(SidebarResponse{
		Success:        true,
		Users:          sidebar.Users,
		UnseenMessages: sidebar.UnseenMessages,
	})
}

// GetMessages godoc
// @Summary Conversation history
// @Description Messages between the caller and {id} ascending by createdAt; unseen messages from {id} are marked seen
// @Tags Conversations
// @Produce json
// @Security BearerAuth
// @Param id path string true "Counterpart member id"
// @Param limit query int false "Return only the latest N messages"
// @Param before query string false "RFC3339Nano upper bound (exclusive) used with limit"
// @Success 200 {object} MessagesResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /conversations/{id}/messages [get]
func (h *MessageHandler) GetMessages(c *fiber.Ctx) error {
	page, err := parsePage(c)
	if err != nil {
		return fail(c, err)
	}

	ctx, cancel := h.context(c)
	defer cancel()

	msgs, err := h.messageUC.FetchConversation(ctx, middlewares.MemberID(c), c.Params("id"), page)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(MessagesResponse{Success: true, Messages: msgs})
}

func parsePage(c *fiber.Ctx) (domain.PageQuery, error) {
	var page domain.PageQuery
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return page, errprocess.Validation("limit must be a positive number")
		}
		page.Limit = n
	}
	if v := c.Query("before"); v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return page, errprocess.Validation("before must be an RFC3339 timestamp")
		}
		page.Before = t
	}
	return page, nil
}

// SendMessage godoc
// @Summary Send a message
// @Description Persist a text or image message to {id} and push it to the receiver
// @Tags Conversations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Receiver member id"
// @Param body body domain.MessageContent true "text and/or image (URL or data URL)"
// @Success 200 {object} domain.Message
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /conversations/{id}/messages [post]
func (h *MessageHandler) SendMessage(c *fiber.Ctx) error {
	var content domain.MessageContent
	if err := c.BodyParser(&content); err != nil {
		return fail(c, errprocess.Validation("invalid request body"))
	}

	ctx, cancel := h.context(c)
	defer cancel()

	msg, err := h.messageUC.Send(ctx, middlewares.MemberID(c), c.Params("id"), content)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(msg)
}

// MarkConversationSeen godoc
// @Summary Mark a conversation seen
// @Description Mark every unseen message sent by {id} to the caller as seen
// @Tags Conversations
// @Produce json
// @Security BearerAuth
// @Param id path string true "Sender member id"
// @Success 200 {object} CountResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /conversations/{id}/seen [put]
func (h *MessageHandler) MarkConversationSeen(c *fiber.Ctx) error {
	ctx, cancel := h.context(c)
	defer cancel()

	n, err := h.messageUC.MarkConversationSeen(ctx, middlewares.MemberID(c), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(CountResponse{Success: true, Count: n, Message: "Messages marked as seen"})
}

// MarkSeen godoc
// @Summary Mark one message seen
// @Tags Messages
// @Produce json
// @Security BearerAuth
// @Param messageId path string true "Message id"
// @Success 200 {object} CountResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /messages/seen/{messageId} [put]
func (h *MessageHandler) MarkSeen(c *fiber.Ctx) error {
	ctx, cancel := h.context(c)
	defer cancel()

	n, err := h.messageUC.MarkSeen(ctx, []string{c.Params("messageId")}, middlewares.MemberID(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(CountResponse{Success: true, Count: n})
}

// MarkSeenBatch godoc
// @Summary Mark messages seen
// @Description messageIds may be a single id or an array
// @Tags Messages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body SeenBatchRequest true "message ids"
// @Success 200 {object} CountResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /messages/seen-batch [put]
func (h *MessageHandler) MarkSeenBatch(c *fiber.Ctx) error {
	var req SeenBatchRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, errprocess.Validation("invalid request body"))
	}
	if req.MessageIDs == nil {
		return fail(c, errprocess.Validation("messageIds is required"))
	}
	if len(req.MessageIDs) == 0 {
		return fail(c, errprocess.Validation("messageIds must not be empty"))
	}

	ctx, cancel := h.context(c)
	defer cancel()

	n, err := h.messageUC.MarkSeen(ctx, req.MessageIDs, middlewares.MemberID(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(CountResponse{
		Success: true,
		Count:   n,
		Message: fmt.Sprintf("%d messages marked as seen", n),
	})
}

// DeleteMessage godoc
// @Summary Delete a message for everyone
// @Description Only the sender may delete; the message is kept as a tombstone
// @Tags Messages
// @Produce json
// @Security BearerAuth
// @Param messageId path string true "Message id"
// @Success 200 {object} DeleteResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /messages/{messageId} [delete]
func (h *MessageHandler) DeleteMessage(c *fiber.Ctx) error {
	ctx, cancel := h.context(c)
	defer cancel()

	msg, err := h.messageUC.Delete(ctx, c.Params("messageId"), middlewares.MemberID(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(DeleteResponse{Success: true, Message: "Message deleted", Data: msg})
}
