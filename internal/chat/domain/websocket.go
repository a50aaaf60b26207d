package domain

// Action websocket event name
type Action string

const (
	// ActionNewMessage a message was sent to (or by) the connection owner
	ActionNewMessage Action = "newMessage"
	// MessagesSeen receiver read messages; inbound it is the client's seen acknowledgment
	MessagesSeen Action = "messagesSeen"
	// MessageDeleted a message was deleted for everyone
	MessageDeleted Action = "messageDeleted"
	// GetOnlineUsers full snapshot of online member ids
	GetOnlineUsers Action = "getOnlineUsers"
	// ActionError reply to a rejected inbound frame
	ActionError Action = "error"
)

// WSRequest websocket inbound frame
type WSRequest struct {
	Action string   `json:"action"`
	IDs    []string `json:"ids"`
	By     string   `json:"by"`
}

// WSResponse websocket outbound frame
type WSResponse struct {
	Action  string      `json:"action"`
	Success bool        `json:"success"`
	Payload interface{} `json:"payload,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// SeenPayload payload of messagesSeen
type SeenPayload struct {
	IDs []string `json:"ids"`
	By  string   `json:"by"`
}
