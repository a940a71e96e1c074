package chat

import (
	"context"

	"github.com/TERAMED-SA/provision-chat/internal/api"
	"github.com/TERAMED-SA/provision-chat/internal/store"
	"github.com/TERAMED-SA/provision-chat/internal/transport"
)

// Transport is the connection-manager surface the coordinator depends on.
// *transport.Manager satisfies it; tests substitute a fake.
type Transport interface {
	Connect(localID string) error
	Disconnect()
	IsConnected() bool
	SendMessage(p transport.MessagePayload)
	JoinRoom(roomID string)
	LeaveRoom(roomID string)
	EmitTyping(roomID, userID string)
	EmitStoppedTyping(roomID, userID string)
	OnMessageReceived(h func(transport.MessagePayload)) func()
	OnMessageStatus(h func(transport.StatusPayload)) func()
	OnTyping(h func(transport.TypingPayload)) func()
	OnStoppedTyping(h func(transport.TypingPayload)) func()
}

// API is the REST collaborator contract. *api.Client satisfies it.
type API interface {
	History(ctx context.Context, localID, peerID string) ([]api.MessageRecord, error)
	Send(ctx context.Context, localID, peerID, content string, file *api.Upload) (*api.MessageRecord, error)
	Delete(ctx context.Context, messageID, counterpartID string) error
	Update(ctx context.Context, messageID, counterpartID, content string) error
	Directory(ctx context.Context) ([]api.Supervisor, error)
}

// ContactStore persists the per-owner contact list. *store.DB satisfies it.
type ContactStore interface {
	Contacts(ownerID string) ([]store.Contact, error)
	ReplaceContacts(ownerID string, contacts []store.Contact) error
}
