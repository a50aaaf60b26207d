package domain

import (
	"sort"
	"strings"
	"time"

	errprocess "quickchat/pkg/err"
)

// DeletedText text of a message after delete-for-everyone
const DeletedText = "This message was deleted"

// Message 一則私訊，sender / receiver 永遠是 member id
type Message struct {
	ID        string    `bson:"_id" json:"id"`
	Sender    string    `bson:"sender" json:"sender"`
	Receiver  string    `bson:"receiver" json:"receiver"`
	Text      string    `bson:"text" json:"text"`
	Image     string    `bson:"image" json:"image"`
	Seen      bool      `bson:"seen" json:"seen"`
	Deleted   bool      `bson:"deleted" json:"deleted"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`

	// display data, filled by the service and never stored
	SenderProfile   *Profile `bson:"-" json:"senderProfile,omitempty"`
	ReceiverProfile *Profile `bson:"-" json:"receiverProfile,omitempty"`
}

// Profile display fields of a member
type Profile struct {
	ID         string `json:"id"`
	FullName   string `json:"fullName"`
	ProfilePic string `json:"profilePic"`
	Email      string `json:"email,omitempty"`
}

// MessageContent body of a send request
type MessageContent struct {
	Text  string `json:"text"`
	Image string `json:"image"`
}

// Empty true when neither text nor image carries anything
func (c MessageContent) Empty() bool {
	return strings.TrimSpace(c.Text) == "" && c.Image == ""
}

// NewMessage build an unsaved message; id and createdAt are assigned by the store
func NewMessage(sender, receiver string, content MessageContent) (*Message, error) {
	if receiver == "" {
		return nil, errprocess.Validation("Receiver is required")
	}
	if content.Empty() {
		return nil, errprocess.Validation("Message cannot be empty")
	}
	return &Message{
		Sender:   sender,
		Receiver: receiver,
		Text:     content.Text,
		Image:    content.Image,
	}, nil
}

// Tombstone apply delete-for-everyone in place
func (m *Message) Tombstone() {
	m.Deleted = true
	m.Text = DeletedText
	m.Image = ""
}

// Counterpart the other side of the conversation as seen by viewer
func (m *Message) Counterpart(viewer string) string {
	if m.Sender == viewer {
		return m.Receiver
	}
	return m.Sender
}

// Between true when the message belongs to the a/b conversation
func (m *Message) Between(a, b string) bool {
	return (m.Sender == a && m.Receiver == b) || (m.Sender == b && m.Receiver == a)
}

// ConversationKey stable key of the a/b pair regardless of direction
func ConversationKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}

// MessageBefore ordering of a conversation: createdAt, then id
func MessageBefore(a, b Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// SortMessages sort ascending by createdAt, ties by id
func SortMessages(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return MessageBefore(msgs[i], msgs[j])
	})
}

// PageQuery optional window of a conversation; zero value means the whole history
type PageQuery struct {
	Limit  int
	Before time.Time
}
