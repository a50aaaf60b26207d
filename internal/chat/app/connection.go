package app

import (
	"context"
	"sync"
	"time"

	"quickchat/pkg/logger"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
)

// CloseReplaced close code sent to a connection superseded by a newer one of the same member
const CloseReplaced = 4001

// Socket the part of a websocket connection the writer uses
type Socket interface {
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// ConnOptions writer settings
type ConnOptions struct {
	PingInterval time.Duration
	WriteWait    time.Duration
	SendBuffer   int
}

func (o *ConnOptions) defaults() {
	if o.PingInterval <= 0 {
		o.PingInterval = 25 * time.Second
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
}

// Connection 一條已驗證的 realtime 連線；只有 WritePump 會寫 socket
type Connection struct {
	MemberID string

	socket Socket
	opts   ConnOptions
	send   chan []byte

	ctx    context.Context
	cancel context.CancelFunc

	closeOnce   sync.Once
	closeCode   int
	closeReason string
	stopped     chan struct{}
}

// NewConnection wrap socket of memberID
func NewConnection(memberID string, socket Socket, opts ConnOptions) *Connection {
	opts.defaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		MemberID: memberID,
		socket:   socket,
		opts:     opts,
		send:     make(chan []byte, opts.SendBuffer),
		ctx:      ctx,
		cancel:   cancel,
		stopped:  make(chan struct{}),
	}
}

// Context done once the connection is closed
func (c *Connection) Context() context.Context { return c.ctx }

// Stopped closed when the writer has exited
func (c *Connection) Stopped() <-chan struct{} { return c.stopped }

// Enqueue queue a frame without blocking; false when closed or the queue is full
func (c *Connection) Enqueue(frame []byte) bool {
	select {
	case <-c.ctx.Done():
		return false
	default:
	}

	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Close ask the writer to send a close frame with code and stop; only the first call counts
func (c *Connection) Close(code int, reason string) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeReason = reason
		c.cancel()
	})
}

// WritePump 負責所有寫入：佇列中的 frame、定期 ping、最後的 close frame
func (c *Connection) WritePump() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer func() {
		ticker.Stop()
		c.socket.Close()
		close(c.stopped)
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.socket.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.socket.WriteMessage(websocket.TextMessage, frame); err != nil {
				logger.Log.Warn("websocket write failed", zap.String("memberID", c.MemberID), zap.Error(err))
				c.Close(websocket.CloseAbnormalClosure, "")
				return
			}

		case <-ticker.C:
			if err := c.socket.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(c.opts.WriteWait)); err != nil {
				logger.Log.Warn("websocket ping failed", zap.String("memberID", c.MemberID), zap.Error(err))
				c.Close(websocket.CloseAbnormalClosure, "")
				return
			}

		case <-c.ctx.Done():
			if c.closeCode != websocket.CloseAbnormalClosure {
				msg := websocket.FormatCloseMessage(c.closeCode, c.closeReason)
				_ = c.socket.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.opts.WriteWait))
			}
			return
		}
	}
}
