package bus

import "time"

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Event kinds published by the coordinator and the transport. Subscribers
// filter by namespace prefix ("chat.", "conn.", "notice.").
const (
	KindMessagesChanged = "chat.messages_changed"
	KindTypingChanged   = "chat.typing_changed"
	KindContactsChanged = "chat.contacts_changed"
	KindPeersChanged    = "chat.peers_changed"
	KindLoadingChanged  = "chat.loading_changed"

	KindConnStatusChanged = "conn.status_changed"

	KindNoticeInfo  = "notice.info"
	KindNoticeError = "notice.error"
)

// Notice is the payload for notice.* events surfaced to the user.
type Notice struct {
	Text string
}

// Now builds an event stamped with the current time.
func Now(kind string, payload any) Event {
	return Event{Kind: kind, Timestamp: time.Now(), Payload: payload}
}
