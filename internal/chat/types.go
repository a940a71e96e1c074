package chat

import (
	"time"

	"github.com/TERAMED-SA/provision-chat/internal/api"
)

// Status is the delivery lifecycle of a message.
type Status string

const (
	StatusSending   Status = "sending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
	StatusFailed    Status = "failed"
)

// statusRank orders the forward-only lifecycle. A status update that would
// move a message backwards is ignored.
var statusRank = map[Status]int{
	StatusSending:   0,
	StatusSent:      1,
	StatusDelivered: 2,
	StatusRead:      3,
}

// Attachment describes a file carried by a message.
type Attachment struct {
	URL      string
	Name     string
	MIMEType string
	Size     int64
}

// Message is one entry in the active conversation list. Before the server
// confirms a send, ID holds a locally generated provisional identity; it is
// promoted in place once the REST response arrives.
type Message struct {
	ID         string
	Sender     string
	Receiver   string
	Content    string
	Status     Status
	Attachment *Attachment
	Timestamp  time.Time
	IsUser     bool
}

// Peer is a supervisor the local user can converse with.
type Peer struct {
	EmployeeID  string
	Name        string
	CompanyID   string
	Presence    string // online|offline|away|busy
	LastPreview string
	Unread      int
}

// messageFromRecord maps a persisted REST record into the local shape.
// isUser is derived against the identity fixed at construction, never
// re-read per message.
func messageFromRecord(r api.MessageRecord, localID string) Message {
	m := Message{
		ID:        r.ID,
		Sender:    r.Sender,
		Receiver:  r.Receiver,
		Content:   r.Content,
		Status:    Status(r.Status),
		Timestamp: r.CreatedAt,
		IsUser:    r.Sender == localID,
	}
	if m.Status == "" {
		m.Status = StatusSent
	}
	if r.AttachmentURL != "" {
		m.Attachment = &Attachment{
			URL:      r.AttachmentURL,
			Name:     r.AttachmentName,
			MIMEType: r.AttachmentType,
			Size:     r.AttachmentSize,
		}
	}
	return m
}
