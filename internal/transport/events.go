package transport

import "encoding/json"

// Envelope is the wire frame for every socket event, in both directions.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Outbound event types.
const (
	EventSendMessage   = "send_message"
	EventJoinChat      = "join_chat"
	EventLeaveChat     = "leave_chat"
	EventTyping        = "typing"
	EventStoppedTyping = "stopped_typing"
)

// Inbound event types.
const (
	EventMessageReceived   = "message_received"
	EventMessageStatus     = "message_status"
	EventUserTyping        = "user_typing"
	EventUserStoppedTyping = "user_stopped_typing"
)

// MessagePayload carries a persisted message pushed over the socket for
// low-latency delivery. The REST record remains the durable copy.
type MessagePayload struct {
	ID        string `json:"id"`
	Room      string `json:"room"`
	Sender    string `json:"sender"`
	Receiver  string `json:"receiver"`
	Content   string `json:"content"`
	FileURL   string `json:"fileUrl,omitempty"`
	FileName  string `json:"fileName,omitempty"`
	FileType  string `json:"fileType,omitempty"`
	FileSize  int64  `json:"fileSize,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// StatusPayload signals a delivery-state change for a message.
type StatusPayload struct {
	ID     string `json:"id"`
	Room   string `json:"room"`
	Status string `json:"status"`
}

// TypingPayload is the advisory composing signal. No acknowledgment is
// expected in either direction.
type TypingPayload struct {
	Room string `json:"room"`
	User string `json:"user"`
}

// RoomPayload scopes a join or leave to one conversation channel.
type RoomPayload struct {
	Room string `json:"room"`
}
