// Package chat holds the conversation state coordinator: the single owner of
// the peer directory, the contact list, the active conversation's messages
// and the typing set. It reconciles user actions, REST responses and inbound
// socket events into one consistent view.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/TERAMED-SA/provision-chat/internal/api"
	"github.com/TERAMED-SA/provision-chat/internal/bus"
	"github.com/TERAMED-SA/provision-chat/internal/store"
	"github.com/TERAMED-SA/provision-chat/internal/transport"
)

// Errors reported before any network call is made.
var (
	ErrMissingIdentity = errors.New("chat: no local identity")
	ErrEmptyMessage    = errors.New("chat: empty message and no attachment")
	ErrNotLoaded       = errors.New("chat: message not in the loaded conversation")
)

// DefaultTypingTTL is how long a peer stays in the typing set without a
// renewed signal.
const DefaultTypingTTL = time.Second

// Params identifies the local user. The identity is fixed for the lifetime
// of the coordinator; holding it in a field set once makes stale-identity
// capture structurally impossible.
type Params struct {
	UserID    string
	CompanyID string
	TypingTTL time.Duration
}

// Coordinator mediates between user actions, the REST API and the socket
// transport. All exported methods are safe for concurrent use.
type Coordinator struct {
	localID   string
	companyID string
	typingTTL time.Duration

	api    API
	tr     Transport
	store  ContactStore
	bus    *bus.Bus
	logger *zap.Logger

	mu         sync.Mutex
	peers      []Peer
	contacts   []store.Contact
	messages   []Message
	activePeer string
	fetchGen   int
	loading    bool
	typing     map[string]*time.Timer
	unsubs     []func()
}

// New creates a coordinator for the given local identity. A missing identity
// is the one fatal condition: without it no conversation can be addressed.
// The contact list is loaded from durable storage here; a load failure is
// reported but leaves the coordinator usable with an empty list.
func New(p Params, a API, tr Transport, st ContactStore, b *bus.Bus, logger *zap.Logger) (*Coordinator, error) {
	if p.UserID == "" {
		return nil, ErrMissingIdentity
	}
	ttl := p.TypingTTL
	if ttl <= 0 {
		ttl = DefaultTypingTTL
	}

	c := &Coordinator{
		localID:   p.UserID,
		companyID: p.CompanyID,
		typingTTL: ttl,
		api:       a,
		tr:        tr,
		store:     st,
		bus:       b,
		logger:    logger,
		typing:    make(map[string]*time.Timer),
	}

	contacts, err := st.Contacts(p.UserID)
	if err != nil {
		logger.Error("load contacts", zap.Error(err))
		c.notifyError("could not load saved contacts")
	} else {
		c.contacts = contacts
	}

	return c, nil
}

// Start opens the socket connection and registers the inbound handlers. A
// connect failure is not fatal: the UI stays interactive and sends fall back
// to REST only.
func (c *Coordinator) Start() {
	if err := c.tr.Connect(c.localID); err != nil {
		c.logger.Warn("socket connect failed, continuing REST-only", zap.Error(err))
	}

	c.mu.Lock()
	c.unsubs = []func(){
		c.tr.OnMessageReceived(c.handleMessageReceived),
		c.tr.OnMessageStatus(c.handleMessageStatus),
		c.tr.OnTyping(c.handleTyping),
		c.tr.OnStoppedTyping(c.handleStoppedTyping),
	}
	c.mu.Unlock()
}

// Stop unsubscribes every inbound handler, stops typing timers and closes
// the connection.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	unsubs := c.unsubs
	c.unsubs = nil
	for user, t := range c.typing {
		t.Stop()
		delete(c.typing, user)
	}
	c.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
	c.tr.Disconnect()
}

// LocalID returns the identity the coordinator was constructed with.
func (c *Coordinator) LocalID() string { return c.localID }

// OpenConversation switches the active conversation to peerID: the previous
// list is discarded synchronously, the room membership moves over, and the
// history is fetched fresh. A fetch still in flight for the previous peer is
// invalidated by the generation bump and its late result is discarded.
func (c *Coordinator) OpenConversation(ctx context.Context, peerID string) error {
	c.mu.Lock()
	prev := c.activePeer
	c.activePeer = peerID
	c.fetchGen++
	gen := c.fetchGen
	c.messages = nil
	c.loading = true
	for i := range c.peers {
		if c.peers[i].EmployeeID == peerID {
			c.peers[i].Unread = 0
		}
	}
	c.mu.Unlock()

	c.bus.Publish(bus.Now(bus.KindMessagesChanged, nil))
	c.bus.Publish(bus.Now(bus.KindLoadingChanged, true))
	c.bus.Publish(bus.Now(bus.KindPeersChanged, nil))

	if prev != "" && prev != peerID {
		c.tr.LeaveRoom(transport.RoomID(c.localID, prev))
	}
	c.tr.JoinRoom(transport.RoomID(c.localID, peerID))

	records, err := c.api.History(ctx, c.localID, peerID)

	c.mu.Lock()
	if gen != c.fetchGen {
		// A newer conversation owns the list now; this result is stale.
		c.mu.Unlock()
		return nil
	}
	c.loading = false
	if err != nil {
		c.messages = nil
		c.mu.Unlock()
		c.bus.Publish(bus.Now(bus.KindLoadingChanged, false))
		c.bus.Publish(bus.Now(bus.KindMessagesChanged, nil))
		c.notifyError("could not load conversation")
		return fmt.Errorf("load history: %w", err)
	}
	msgs := make([]Message, 0, len(records))
	for _, r := range records {
		msgs = append(msgs, messageFromRecord(r, c.localID))
	}
	c.messages = msgs
	c.mu.Unlock()

	c.bus.Publish(bus.Now(bus.KindLoadingChanged, false))
	c.bus.Publish(bus.Now(bus.KindMessagesChanged, nil))
	return nil
}

// SendMessage validates, appends a provisional entry, persists over REST and
// promotes the entry in place. The optimistic append happens before any
// network round trip; on REST failure the same entry flips to failed and is
// never removed, so the user can see and retry it.
func (c *Coordinator) SendMessage(ctx context.Context, content, peerID string, file *api.Upload) error {
	if strings.TrimSpace(content) == "" && file == nil {
		c.notifyError("message is empty")
		return ErrEmptyMessage
	}

	provisional := Message{
		ID:        "local-" + uuid.NewString(),
		Sender:    c.localID,
		Receiver:  peerID,
		Content:   content,
		Status:    StatusSending,
		Timestamp: time.Now(),
		IsUser:    true,
	}
	if file != nil {
		provisional.Attachment = &Attachment{
			Name:     file.Filename,
			MIMEType: file.ContentType,
			Size:     int64(len(file.Data)),
		}
	}

	c.mu.Lock()
	c.messages = append(c.messages, provisional)
	c.mu.Unlock()
	c.bus.Publish(bus.Now(bus.KindMessagesChanged, nil))

	record, err := c.api.Send(ctx, c.localID, peerID, content, file)
	if err != nil {
		c.mu.Lock()
		for i := range c.messages {
			if c.messages[i].ID == provisional.ID {
				c.messages[i].Status = StatusFailed
				break
			}
		}
		c.mu.Unlock()
		c.bus.Publish(bus.Now(bus.KindMessagesChanged, nil))
		c.notifyError("message failed to send")
		return fmt.Errorf("send message: %w", err)
	}

	// Identity promotion: the provisional entry becomes the persisted one,
	// in place, so list order never changes.
	c.mu.Lock()
	for i := range c.messages {
		if c.messages[i].ID == provisional.ID {
			c.messages[i].ID = record.ID
			c.messages[i].Status = StatusSent
			if !record.CreatedAt.IsZero() {
				c.messages[i].Timestamp = record.CreatedAt
			}
			if record.AttachmentURL != "" && c.messages[i].Attachment != nil {
				c.messages[i].Attachment.URL = record.AttachmentURL
			}
			break
		}
	}
	c.mu.Unlock()
	c.bus.Publish(bus.Now(bus.KindMessagesChanged, nil))

	// Best-effort low-latency push to the peer. The sender's view is already
	// correct; skipping this while disconnected loses nothing durable.
	if c.tr.IsConnected() {
		payload := transport.MessagePayload{
			ID:        record.ID,
			Room:      transport.RoomID(c.localID, peerID),
			Sender:    c.localID,
			Receiver:  peerID,
			Content:   content,
			Timestamp: time.Now().UnixMilli(),
		}
		if record.AttachmentURL != "" {
			payload.FileURL = record.AttachmentURL
			if file != nil {
				payload.FileName = file.Filename
				payload.FileType = file.ContentType
				payload.FileSize = int64(len(file.Data))
			}
		}
		c.tr.SendMessage(payload)
	}
	return nil
}

// DeleteMessage removes a message that is present in the loaded
// conversation. Not optimistic: the local list only changes after the server
// confirms.
func (c *Coordinator) DeleteMessage(ctx context.Context, messageID string) error {
	msg, ok := c.findMessage(messageID)
	if !ok {
		c.notifyError("message not found")
		return ErrNotLoaded
	}

	if err := c.api.Delete(ctx, messageID, counterpart(msg, c.localID)); err != nil {
		c.notifyError("could not delete message")
		return fmt.Errorf("delete message: %w", err)
	}

	c.mu.Lock()
	kept := c.messages[:0]
	for _, m := range c.messages {
		if m.ID != messageID {
			kept = append(kept, m)
		}
	}
	c.messages = kept
	c.mu.Unlock()
	c.bus.Publish(bus.Now(bus.KindMessagesChanged, nil))
	return nil
}

// UpdateMessage replaces the content of a message present in the loaded
// conversation. Like delete, it mutates local state only on server success.
func (c *Coordinator) UpdateMessage(ctx context.Context, messageID, content string) error {
	msg, ok := c.findMessage(messageID)
	if !ok {
		c.notifyError("message not found")
		return ErrNotLoaded
	}

	if err := c.api.Update(ctx, messageID, counterpart(msg, c.localID), content); err != nil {
		c.notifyError("could not edit message")
		return fmt.Errorf("update message: %w", err)
	}

	c.mu.Lock()
	for i := range c.messages {
		if c.messages[i].ID == messageID {
			c.messages[i].Content = content
			break
		}
	}
	c.mu.Unlock()
	c.bus.Publish(bus.Now(bus.KindMessagesChanged, nil))
	return nil
}

// RefreshDirectory fetches the supervisor directory, excluding the local
// user and everyone in the local user's own company grouping. On failure the
// directory resets to empty rather than keeping half-stale entries.
func (c *Coordinator) RefreshDirectory(ctx context.Context) error {
	sups, err := c.api.Directory(ctx)
	if err != nil {
		c.mu.Lock()
		c.peers = nil
		c.mu.Unlock()
		c.bus.Publish(bus.Now(bus.KindPeersChanged, nil))
		c.notifyError("could not load supervisors")
		return fmt.Errorf("load directory: %w", err)
	}

	peers := make([]Peer, 0, len(sups))
	for _, s := range sups {
		if s.EmployeeID == c.localID {
			continue
		}
		if c.companyID != "" && s.CompanyID == c.companyID {
			continue
		}
		presence := "offline"
		if s.Online {
			presence = "online"
		}
		peers = append(peers, Peer{
			EmployeeID: s.EmployeeID,
			Name:       s.Name,
			CompanyID:  s.CompanyID,
			Presence:   presence,
		})
	}

	c.mu.Lock()
	// Carry over unread counters and previews for peers that persist.
	for i := range peers {
		for _, old := range c.peers {
			if old.EmployeeID == peers[i].EmployeeID {
				peers[i].Unread = old.Unread
				peers[i].LastPreview = old.LastPreview
				break
			}
		}
	}
	c.peers = peers
	c.mu.Unlock()
	c.bus.Publish(bus.Now(bus.KindPeersChanged, nil))
	return nil
}

// AddContact marks a peer as a contact and rewrites the stored snapshot.
// Durable storage is written first; the in-memory list only changes if the
// write succeeds, so the two never diverge.
func (c *Coordinator) AddContact(peer Peer) error {
	c.mu.Lock()
	for _, ct := range c.contacts {
		if ct.PeerID == peer.EmployeeID {
			c.mu.Unlock()
			return nil
		}
	}
	next := append(append([]store.Contact(nil), c.contacts...), store.Contact{
		OwnerID:   c.localID,
		PeerID:    peer.EmployeeID,
		Name:      peer.Name,
		CompanyID: peer.CompanyID,
	})
	c.mu.Unlock()

	if err := c.store.ReplaceContacts(c.localID, next); err != nil {
		c.notifyError("could not save contact")
		return fmt.Errorf("save contacts: %w", err)
	}

	c.mu.Lock()
	c.contacts = next
	c.mu.Unlock()
	c.bus.Publish(bus.Now(bus.KindContactsChanged, nil))
	return nil
}

// RemoveContact drops a peer from the contact list and rewrites the stored
// snapshot.
func (c *Coordinator) RemoveContact(peerID string) error {
	c.mu.Lock()
	next := make([]store.Contact, 0, len(c.contacts))
	for _, ct := range c.contacts {
		if ct.PeerID != peerID {
			next = append(next, ct)
		}
	}
	if len(next) == len(c.contacts) {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if err := c.store.ReplaceContacts(c.localID, next); err != nil {
		c.notifyError("could not remove contact")
		return fmt.Errorf("save contacts: %w", err)
	}

	c.mu.Lock()
	c.contacts = next
	c.mu.Unlock()
	c.bus.Publish(bus.Now(bus.KindContactsChanged, nil))
	return nil
}

// NotifyTyping tells the peer's room the local user is composing.
func (c *Coordinator) NotifyTyping(peerID string) {
	c.tr.EmitTyping(transport.RoomID(c.localID, peerID), c.localID)
}

// NotifyStoppedTyping tells the peer's room the local user stopped.
func (c *Coordinator) NotifyStoppedTyping(peerID string) {
	c.tr.EmitStoppedTyping(transport.RoomID(c.localID, peerID), c.localID)
}

// Messages returns a snapshot of the active conversation.
func (c *Coordinator) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.messages...)
}

// Peers returns a snapshot of the filtered directory.
func (c *Coordinator) Peers() []Peer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Peer(nil), c.peers...)
}

// Contacts returns a snapshot of the contact list.
func (c *Coordinator) Contacts() []store.Contact {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]store.Contact(nil), c.contacts...)
}

// TypingPeers returns the identities currently known to be composing.
func (c *Coordinator) TypingPeers() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	users := make([]string, 0, len(c.typing))
	for user := range c.typing {
		users = append(users, user)
	}
	return users
}

// Loading reports whether a history fetch is in flight.
func (c *Coordinator) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

// IsConnected reports live socket connectivity.
func (c *Coordinator) IsConnected() bool {
	return c.tr.IsConnected()
}

// ActivePeer returns the identity of the open conversation, or empty.
func (c *Coordinator) ActivePeer() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activePeer
}

func (c *Coordinator) findMessage(messageID string) (Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range c.messages {
		if m.ID == messageID {
			return m, true
		}
	}
	return Message{}, false
}

// counterpart resolves whichever of sender/receiver is not the local
// identity; the delete/update endpoints are addressed by it.
func counterpart(m Message, localID string) string {
	if m.Sender == localID {
		return m.Receiver
	}
	return m.Sender
}

func (c *Coordinator) notifyError(text string) {
	c.bus.Publish(bus.Now(bus.KindNoticeError, bus.Notice{Text: text}))
}

// handleMessageReceived appends an inbound live message. Room scoping means
// only events for joined conversations arrive here.
func (c *Coordinator) handleMessageReceived(p transport.MessagePayload) {
	msg := Message{
		ID:        p.ID,
		Sender:    p.Sender,
		Receiver:  p.Receiver,
		Content:   p.Content,
		Status:    StatusDelivered,
		Timestamp: time.UnixMilli(p.Timestamp),
		IsUser:    p.Sender == c.localID,
	}
	if p.FileURL != "" {
		msg.Attachment = &Attachment{URL: p.FileURL, Name: p.FileName, MIMEType: p.FileType, Size: p.FileSize}
	}

	senderName := p.Sender
	c.mu.Lock()
	// The sender's own broadcast can echo back through the room; the
	// provisional-or-promoted entry is already in the list, so drop echoes.
	if msg.IsUser {
		for _, m := range c.messages {
			if m.ID == msg.ID {
				c.mu.Unlock()
				return
			}
		}
	}
	// Own messages can arrive live too (a broadcast echo, or a send made
	// from another device); they belong to the list only when their
	// counterpart is the open conversation.
	if p.Sender == c.activePeer || (msg.IsUser && p.Receiver == c.activePeer) {
		c.messages = append(c.messages, msg)
	}
	for i := range c.peers {
		if c.peers[i].EmployeeID == p.Sender {
			senderName = c.peers[i].Name
			c.peers[i].LastPreview = p.Content
			if p.Sender != c.activePeer {
				c.peers[i].Unread++
			}
			break
		}
	}
	c.mu.Unlock()

	c.bus.Publish(bus.Now(bus.KindMessagesChanged, nil))
	c.bus.Publish(bus.Now(bus.KindPeersChanged, nil))
	if !msg.IsUser {
		c.bus.Publish(bus.Now(bus.KindNoticeInfo, bus.Notice{Text: "New message from " + senderName}))
	}
}

// handleMessageStatus replaces only the status of the referenced message.
// Updates that would regress the lifecycle are ignored; unknown ids are a
// no-op (the message may belong to a conversation no longer loaded).
func (c *Coordinator) handleMessageStatus(p transport.StatusPayload) {
	next := Status(p.Status)
	nextRank, known := statusRank[next]
	if !known {
		return
	}

	changed := false
	c.mu.Lock()
	for i := range c.messages {
		if c.messages[i].ID == p.ID {
			if c.messages[i].Status == StatusFailed {
				break
			}
			if rank, ok := statusRank[c.messages[i].Status]; ok && nextRank <= rank {
				break
			}
			c.messages[i].Status = next
			changed = true
			break
		}
	}
	c.mu.Unlock()

	if changed {
		c.bus.Publish(bus.Now(bus.KindMessagesChanged, nil))
	}
}

// handleTyping adds the peer to the typing set; membership expires after the
// TTL unless renewed. Adding an already-present peer only resets its timer.
func (c *Coordinator) handleTyping(p transport.TypingPayload) {
	if p.User == c.localID {
		return
	}

	c.mu.Lock()
	if t, ok := c.typing[p.User]; ok {
		t.Reset(c.typingTTL)
		c.mu.Unlock()
		return
	}
	user := p.User
	c.typing[user] = time.AfterFunc(c.typingTTL, func() {
		c.expireTyping(user)
	})
	c.mu.Unlock()

	c.bus.Publish(bus.Now(bus.KindTypingChanged, nil))
}

// handleStoppedTyping removes the peer from the typing set. Removing an
// absent peer is a no-op.
func (c *Coordinator) handleStoppedTyping(p transport.TypingPayload) {
	c.expireTyping(p.User)
}

func (c *Coordinator) expireTyping(user string) {
	c.mu.Lock()
	t, ok := c.typing[user]
	if !ok {
		c.mu.Unlock()
		return
	}
	t.Stop()
	delete(c.typing, user)
	c.mu.Unlock()

	c.bus.Publish(bus.Now(bus.KindTypingChanged, nil))
}
