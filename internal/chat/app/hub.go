package app

import (
	"context"
	"encoding/json"
	"sync"

	"quickchat/internal/chat/domain"
	"quickchat/internal/chat/repository"
	"quickchat/pkg/logger"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
)

// Relay forwards frames to members attached to other instances
type Relay interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channel string, handler func(payload []byte)) error
}

// Emitter 推送 realtime 事件，MessageUseCase 只依賴這個介面
type Emitter interface {
	EmitToUser(memberID string, event domain.Action, payload interface{}) bool
	EmitBroadcast(event domain.Action, payload interface{})
	IsOnline(memberID string) bool
}

// Hub owns the realtime connections of this instance
type Hub struct {
	// mu 讓 presence 變更與 online snapshot 的排入保持同一順序
	mu       sync.Mutex
	presence *PresenceTracker[*Connection]
	metrics  *Metrics
	relay    Relay
}

// NewHub create a Hub; relay may be nil
func NewHub(metrics *Metrics, relay Relay) *Hub {
	return &Hub{
		presence: NewPresenceTracker[*Connection](),
		metrics:  metrics,
		relay:    relay,
	}
}

func encodeFrame(event domain.Action, payload interface{}) ([]byte, error) {
	return json.Marshal(domain.WSResponse{
		Action:  string(event),
		Success: true,
		Payload: payload,
	})
}

// Attach register c as the live connection of its member and broadcast the online set
func (h *Hub) Attach(c *Connection) {
	h.mu.Lock()
	previous, replaced := h.presence.Register(c.MemberID, c)
	h.broadcastOnlineLocked()
	h.metrics.connected(h.presence.Len())
	h.mu.Unlock()

	if replaced {
		logger.Log.Info("websocket replaced", zap.String("memberID", c.MemberID))
		previous.Close(CloseReplaced, "replaced by a newer connection")
	}

	if h.relay != nil {
		err := h.relay.Subscribe(c.Context(), repository.UserChannel(c.MemberID), func(payload []byte) {
			c.Enqueue(payload)
		})
		if err != nil {
			logger.Log.Warn("relay subscribe failed", zap.String("memberID", c.MemberID), zap.Error(err))
		}
	}
}

// Detach remove c if it is still the live connection of its member
func (h *Hub) Detach(c *Connection) bool {
	h.mu.Lock()
	removed := h.presence.UnregisterIf(c.MemberID, c)
	if removed {
		h.broadcastOnlineLocked()
		h.metrics.connected(h.presence.Len())
	}
	h.mu.Unlock()
	return removed
}

func (h *Hub) broadcastOnlineLocked() {
	h.broadcastLocked(domain.GetOnlineUsers, h.presence.ListOnline())
}

func (h *Hub) broadcastLocked(event domain.Action, payload interface{}) {
	frame, err := encodeFrame(event, payload)
	if err != nil {
		logger.Log.Error("encode frame", zap.String("event", string(event)), zap.Error(err))
		return
	}
	for _, c := range h.presence.Handles() {
		if !c.Enqueue(frame) {
			h.metrics.dropped(string(event))
			logger.Log.Warn("send queue full, event dropped", zap.String("memberID", c.MemberID), zap.String("event", string(event)))
		}
	}
}

// EmitToUser deliver to the local connection of memberID; false when not connected here
func (h *Hub) EmitToUser(memberID string, event domain.Action, payload interface{}) bool {
	frame, err := encodeFrame(event, payload)
	if err != nil {
		logger.Log.Error("encode frame", zap.String("event", string(event)), zap.Error(err))
		return false
	}

	c, ok := h.presence.Lookup(memberID)
	if !ok {
		h.metrics.emitted(string(event), false)
		if h.relay != nil {
			if err := h.relay.Publish(context.Background(), repository.UserChannel(memberID), frame); err != nil {
				logger.Log.Warn("relay publish failed", zap.String("memberID", memberID), zap.Error(err))
			}
		}
		return false
	}

	delivered := c.Enqueue(frame)
	if !delivered {
		h.metrics.dropped(string(event))
		logger.Log.Warn("send queue full, event dropped", zap.String("memberID", memberID), zap.String("event", string(event)))
	}
	h.metrics.emitted(string(event), delivered)
	return delivered
}

// EmitBroadcast deliver to every local connection
func (h *Hub) EmitBroadcast(event domain.Action, payload interface{}) {
	h.mu.Lock()
	h.broadcastLocked(event, payload)
	h.mu.Unlock()
}

// IsOnline member has a connection on this instance
func (h *Hub) IsOnline(memberID string) bool {
	_, ok := h.presence.Lookup(memberID)
	return ok
}

// OnlineUsers sorted ids of locally connected members
func (h *Hub) OnlineUsers() []string {
	return h.presence.ListOnline()
}

// Shutdown close every connection with going away
func (h *Hub) Shutdown() {
	h.mu.Lock()
	conns := h.presence.Handles()
	h.mu.Unlock()

	for _, c := range conns {
		c.Close(websocket.CloseGoingAway, "server shutting down")
	}
}
