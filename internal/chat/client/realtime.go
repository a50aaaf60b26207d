package client

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"sync"
	"time"

	"quickchat/internal/chat/domain"
	errprocess "quickchat/pkg/err"
	"quickchat/pkg/logger"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeWait = 10 * time.Second

// Realtime client side of the /ws channel
type Realtime struct {
	conn *websocket.Conn
	// gorilla 同時只允許一個 writer
	writeMu sync.Mutex
}

var _ Notifier = (*Realtime)(nil)

// DialRealtime connect to baseURL (http or ws scheme) as memberID with the session token
func DialRealtime(ctx context.Context, baseURL, token, memberID string) (*Realtime, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/ws")
	if err != nil {
		return nil, errprocess.Validation("invalid server url")
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	q := u.Query()
	q.Set("auth", token)
	q.Set("userId", memberID)
	u.RawQuery = q.Encode()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, errprocess.FromStatus(resp.StatusCode, "websocket handshake rejected")
		}
		return nil, errprocess.Transport(err, "websocket dial")
	}
	return &Realtime{conn: conn}, nil
}

func (r *Realtime) write(v interface{}) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	_ = r.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := r.conn.WriteJSON(v); err != nil {
		return errprocess.Transport(err, "websocket write")
	}
	return nil
}

// SendSeen report ids as seen by the viewer
func (r *Realtime) SendSeen(ids []string, by string) error {
	return r.write(domain.WSRequest{Action: string(domain.MessagesSeen), IDs: ids, By: by})
}

// RequestOnlineUsers ask for a fresh presence snapshot
func (r *Realtime) RequestOnlineUsers() error {
	return r.write(domain.WSRequest{Action: string(domain.GetOnlineUsers)})
}

// Run read frames into e until the connection ends or ctx is done.
// The engine's presence is cleared when Run returns.
func (r *Realtime) Run(ctx context.Context, e *Engine) error {
	e.SetNotifier(r)
	defer e.OnDisconnect()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			r.Close()
		case <-stop:
		}
	}()

	for {
		_, data, err := r.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return errprocess.Transport(err, "websocket read")
		}
		if err := e.HandleFrame(ctx, data); err != nil {
			logger.Log.Warn("realtime frame", zap.Error(err))
		}
	}
}

// Close send a close frame and drop the connection
func (r *Realtime) Close() error {
	r.writeMu.Lock()
	_ = r.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	r.writeMu.Unlock()
	return r.conn.Close()
}

type inboundFrame struct {
	Action  string          `json:"action"`
	Success bool            `json:"success"`
	Payload json.RawMessage `json:"payload"`
	Error   string          `json:"error"`
}

// HandleFrame decode one server frame and apply it
func (e *Engine) HandleFrame(ctx context.Context, data []byte) error {
	var f inboundFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return errprocess.Validation("invalid frame")
	}

	switch domain.Action(f.Action) {
	case domain.ActionNewMessage:
		var msg domain.Message
		if err := json.Unmarshal(f.Payload, &msg); err != nil {
			return errprocess.Validation("invalid newMessage payload")
		}
		e.OnRealtimeNewMessage(ctx, msg)

	case domain.MessagesSeen:
		var p domain.SeenPayload
		if err := json.Unmarshal(f.Payload, &p); err != nil {
			return errprocess.Validation("invalid messagesSeen payload")
		}
		e.OnRealtimeSeen(p)

	case domain.MessageDeleted:
		var msg domain.Message
		if err := json.Unmarshal(f.Payload, &msg); err != nil {
			return errprocess.Validation("invalid messageDeleted payload")
		}
		e.OnRealtimeDeleted(msg)

	case domain.GetOnlineUsers:
		var ids []string
		if err := json.Unmarshal(f.Payload, &ids); err != nil {
			return errprocess.Validation("invalid getOnlineUsers payload")
		}
		e.OnOnlineUsers(ids)

	case domain.ActionError:
		logger.Log.Warn("server rejected frame", zap.String("error", f.Error))

	default:
		logger.Log.Debug("unknown frame", zap.String("action", f.Action))
	}
	return nil
}
