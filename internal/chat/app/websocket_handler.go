package app

import (
	"context"
	"encoding/json"
	"time"

	"quickchat/internal/chat/domain"
	errprocess "quickchat/pkg/err"
	"quickchat/pkg/logger"
	"quickchat/pkg/middlewares"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
)

// QueryUserID optional identity claimed by the client at handshake
const QueryUserID = "userId"

const maxFrameSize = 1 << 20

// ChatWebsocketHandler realtime entry point; identity comes from the JWT middleware
type ChatWebsocketHandler struct {
	hub       *Hub
	messageUC *MessageUseCase
	opts      ConnOptions
	timeout   time.Duration
}

// NewChatWebsocketHandler create ChatWebsocketHandler
func NewChatWebsocketHandler(hub *Hub, messageUC *MessageUseCase, opts ConnOptions, timeout time.Duration) *ChatWebsocketHandler {
	opts.defaults()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ChatWebsocketHandler{
		hub:       hub,
		messageUC: messageUC,
		opts:      opts,
		timeout:   timeout,
	}
}

// HandleConnection 是 WebSocket 連線的進入點
func (h *ChatWebsocketHandler) HandleConnection(conn *websocket.Conn) {
	memberID, _ := conn.Locals(middlewares.TokenMemberID).(string)
	if memberID == "" {
		rejectConnection(conn, websocket.ClosePolicyViolation, "unauthenticated")
		return
	}
	// handshake 帶的 userId 只能是自己
	if claimed := conn.Query(QueryUserID); claimed != "" && claimed != memberID {
		logger.Log.Warn("websocket identity mismatch", zap.String("memberID", memberID), zap.String("claimed", claimed))
		rejectConnection(conn, websocket.ClosePolicyViolation, "userId does not match the session")
		return
	}

	c := NewConnection(memberID, conn, h.opts)
	readWait := h.opts.PingInterval * 2

	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(readWait))

	//client發出close
	//fiber會自動處理(在read msg 回傳err),故需要SetCloseHandler另外接出
	conn.SetCloseHandler(func(code int, text string) error {
		logger.Log.Debug("websocket close frame", zap.String("memberID", memberID), zap.Int("code", code), zap.String("text", text))
		return nil
	})

	//server發出ping之後client連線正常會回pong
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readWait))
	})

	//client發出ping
	conn.SetPingHandler(func(appData string) error {
		_ = conn.SetReadDeadline(time.Now().Add(readWait))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(time.Second))
	})

	go c.WritePump()
	h.hub.Attach(c)
	logger.Log.Info("websocket connected", zap.String("memberID", memberID))

	defer func() {
		h.hub.Detach(c)
		c.Close(websocket.CloseNormalClosure, "")
		<-c.Stopped()
		logger.Log.Info("websocket close", zap.String("memberID", memberID))
	}()

	for {
		mt, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived, //1005
			) {
				logger.Log.Debug("connection closed", zap.String("memberID", memberID), zap.Error(err))
			} else {
				//直接斷線 1006 或被新連線取代
				logger.Log.Debug("websocket read error", zap.String("memberID", memberID), zap.Error(err))
			}
			return
		}
		h.execWebsocketAction(c, mt, message)
	}
}

func (h *ChatWebsocketHandler) execWebsocketAction(c *Connection, mt int, msg []byte) {
	switch mt {
	case websocket.TextMessage:
		h.textMessageAction(c, msg)

	// close ping pong fiber會自動處理，故使用 setHandler 處理
	default:
		h.sendError(c, "unsupported message type")
	}
}

func (h *ChatWebsocketHandler) textMessageAction(c *Connection, msg []byte) {
	var req domain.WSRequest
	if err := json.Unmarshal(msg, &req); err != nil {
		h.sendError(c, "invalid payload")
		return
	}

	ctx, cancel := context.WithTimeout(c.Context(), h.timeout)
	defer cancel()

	switch req.Action {
	//已讀回報，與 REST 走同一個 MarkSeen
	case string(domain.MessagesSeen):
		if req.By != "" && req.By != c.MemberID {
			h.sendError(c, "by does not match the authenticated user")
			return
		}
		if _, err := h.messageUC.MarkSeen(ctx, req.IDs, c.MemberID); err != nil {
			logger.Log.Error("websocket err ", zap.String("MemberID", c.MemberID), zap.String("Action", req.Action), zap.Error(err))
			h.sendError(c, errprocess.Message(err))
		}

	//重新取得在線名單
	case string(domain.GetOnlineUsers):
		h.sendResponse(c, domain.WSResponse{
			Action:  string(domain.GetOnlineUsers),
			Success: true,
			Payload: h.hub.OnlineUsers(),
		})

	default:
		h.sendError(c, "unknown action")
	}
}

// sendResponse - 排入 JSON 給前端，實際寫入由 WritePump 負責
func (h *ChatWebsocketHandler) sendResponse(c *Connection, resp domain.WSResponse) {
	b, err := json.Marshal(resp)
	if err != nil {
		logger.Log.Error("marshal websocket response", zap.Error(err))
		return
	}
	if !c.Enqueue(b) {
		logger.Log.Warn("send queue full, response dropped", zap.String("memberID", c.MemberID), zap.String("action", resp.Action))
	}
}

func (h *ChatWebsocketHandler) sendError(c *Connection, errorMsg string) {
	h.sendResponse(c, domain.WSResponse{
		Action:  string(domain.ActionError),
		Success: false,
		Error:   errorMsg,
		Payload: map[string]interface{}{
			"error": errorMsg,
		},
	})
}

func rejectConnection(conn *websocket.Conn, code int, reason string) {
	if err := conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second)); err != nil {
		logger.Log.Warn("Failed to send CloseMessage", zap.Error(err))
	}
	conn.Close()
}
