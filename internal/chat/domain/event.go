package domain

import "time"

// StreamEventType activity stream record type
type StreamEventType string

const (
	// StreamMessageCreated message persisted
	StreamMessageCreated StreamEventType = "message.created"
	// StreamMessageSeen messages marked seen
	StreamMessageSeen StreamEventType = "message.seen"
	// StreamMessageDeleted message tombstoned
	StreamMessageDeleted StreamEventType = "message.deleted"
)

// StreamEvent record published to the activity stream for downstream consumers
type StreamEvent struct {
	Type           StreamEventType `json:"type"`
	MessageIDs     []string        `json:"message_ids"`
	Sender         string          `json:"sender"`
	Receiver       string          `json:"receiver"`
	By             string          `json:"by,omitempty"`
	ReceiverOnline bool            `json:"receiver_online"`
	At             time.Time       `json:"at"`
}

// Key partition key, events of one conversation keep their order
func (e StreamEvent) Key() string {
	return ConversationKey(e.Sender, e.Receiver)
}
