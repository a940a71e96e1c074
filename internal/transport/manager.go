// Package transport owns the single live socket connection to the messaging
// server. It exposes typed subscription and fire-and-forget emission so the
// coordinator never touches framing or connection details.
package transport

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/TERAMED-SA/provision-chat/internal/bus"
	"github.com/TERAMED-SA/provision-chat/internal/status"
)

// Manager maintains at most one websocket connection, tagged with the local
// identity for server-side routing. A dropped connection is retried with
// backoff before giving up.
type Manager struct {
	serverURL string
	bus       *bus.Bus
	machine   *status.Machine
	logger    *zap.Logger

	// connectMu serializes Connect end to end. Without it, two callers can
	// both observe a nil connection, both dial, and the loser's socket and
	// read pump leak while the server holds two connections for one
	// identity.
	connectMu sync.Mutex

	reconnectDelay time.Duration
	maxReconnects  int

	mu      sync.Mutex
	conn    *websocket.Conn
	localID string
	done    chan struct{}
	dropGen int
	nextID  int

	msgHandlers     map[int]func(MessagePayload)
	statusHandlers  map[int]func(StatusPayload)
	typingHandlers  map[int]func(TypingPayload)
	stoppedHandlers map[int]func(TypingPayload)
}

// NewManager creates a disconnected manager for the given socket server URL
// (e.g. ws://host:4001).
func NewManager(serverURL string, b *bus.Bus, machine *status.Machine, logger *zap.Logger) *Manager {
	return &Manager{
		serverURL:       serverURL,
		bus:             b,
		machine:         machine,
		logger:          logger,
		reconnectDelay:  time.Second,
		maxReconnects:   5,
		msgHandlers:     make(map[int]func(MessagePayload)),
		statusHandlers:  make(map[int]func(StatusPayload)),
		typingHandlers:  make(map[int]func(TypingPayload)),
		stoppedHandlers: make(map[int]func(TypingPayload)),
	}
}

// Connect opens the connection for the given local identity. Idempotent: a
// second call for the same identity while the connection is live is a no-op,
// so re-render-style double initialization cannot open duplicate sockets.
// Connecting as a different identity tears down the old connection first.
func (m *Manager) Connect(localID string) error {
	if localID == "" {
		return fmt.Errorf("connect: empty local identity")
	}

	// One Connect at a time: the loser of a race waits and then sees the
	// winner's live connection instead of dialing a second one.
	m.connectMu.Lock()
	defer m.connectMu.Unlock()

	m.mu.Lock()
	if m.conn != nil {
		if m.localID == localID {
			m.mu.Unlock()
			return nil
		}
		m.teardownLocked()
		m.mu.Unlock()
		if err := m.machine.Transition(status.Disconnected); err != nil {
			m.logger.Warn("unexpected connection state", zap.Error(err))
		}
		m.mu.Lock()
	}
	m.mu.Unlock()

	if err := m.machine.Transition(status.Connecting); err != nil {
		m.logger.Warn("unexpected connection state", zap.Error(err))
	}

	u, err := url.Parse(m.serverURL)
	if err != nil {
		_ = m.machine.Transition(status.Error)
		return fmt.Errorf("parse socket url: %w", err)
	}
	u.Path = "/ws"
	u.RawQuery = url.Values{"userId": {localID}}.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		_ = m.machine.Transition(status.Error)
		m.bus.Publish(bus.Now(bus.KindNoticeError, bus.Notice{Text: "chat connection failed"}))
		return fmt.Errorf("dial socket: %w", err)
	}

	m.mu.Lock()
	m.conn = conn
	m.localID = localID
	m.done = make(chan struct{})
	done := m.done
	m.mu.Unlock()

	if err := m.machine.Transition(status.Connected); err != nil {
		m.logger.Warn("unexpected connection state", zap.Error(err))
	}
	m.logger.Info("socket connected", zap.String("user", localID))

	go m.readPump(conn, done)
	return nil
}

// IsConnected reports whether a live connection exists. Never errors.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn != nil
}

// Disconnect tears down the active connection, cancels any pending
// reconnect attempts and releases all handler references. Safe to call when
// already disconnected.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	hadConn := m.conn != nil
	m.dropGen++
	m.teardownLocked()
	m.msgHandlers = make(map[int]func(MessagePayload))
	m.statusHandlers = make(map[int]func(StatusPayload))
	m.typingHandlers = make(map[int]func(TypingPayload))
	m.stoppedHandlers = make(map[int]func(TypingPayload))
	m.mu.Unlock()

	if hadConn || m.machine.Current() != status.Disconnected {
		if err := m.machine.Transition(status.Disconnected); err != nil {
			m.logger.Warn("unexpected connection state", zap.Error(err))
		}
	}
	if hadConn {
		m.logger.Info("socket disconnected")
	}
}

// teardownLocked closes the connection. Caller holds m.mu.
func (m *Manager) teardownLocked() {
	if m.conn == nil {
		return
	}
	close(m.done)
	_ = m.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = m.conn.Close()
	m.conn = nil
	m.localID = ""
}

// readPump drains inbound frames and dispatches them to subscribers.
// Separating reads from emits keeps a slow handler from blocking writes.
func (m *Manager) readPump(conn *websocket.Conn, done chan struct{}) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-done:
				// Intentional teardown; state already handled.
			default:
				m.handleDrop(err)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			m.logger.Warn("malformed socket frame", zap.Error(err))
			continue
		}
		m.dispatch(env)
	}
}

// handleDrop flips connectivity, raises a notice and kicks off the
// reconnect loop. Connection failures are never fatal: REST send still works
// while disconnected.
func (m *Manager) handleDrop(err error) {
	m.mu.Lock()
	localID := m.localID
	m.conn = nil
	m.localID = ""
	m.dropGen++
	gen := m.dropGen
	m.mu.Unlock()

	m.logger.Warn("socket dropped", zap.Error(err))
	if terr := m.machine.Transition(status.Reconnecting); terr != nil {
		m.logger.Warn("unexpected connection state", zap.Error(terr))
	}
	m.bus.Publish(bus.Now(bus.KindNoticeError, bus.Notice{Text: "chat connection lost, reconnecting"}))

	go m.reconnect(localID, gen)
}

// reconnect redials with exponential backoff. A Disconnect or a newer drop
// bumps dropGen, which cancels this loop; a successful manual Connect is
// caught by the live-connection check.
func (m *Manager) reconnect(localID string, gen int) {
	delay := m.reconnectDelay
	for attempt := 1; attempt <= m.maxReconnects; attempt++ {
		time.Sleep(delay)
		delay *= 2

		m.mu.Lock()
		stale := m.dropGen != gen || m.conn != nil
		m.mu.Unlock()
		if stale {
			return
		}

		if err := m.Connect(localID); err == nil {
			m.bus.Publish(bus.Now(bus.KindNoticeInfo, bus.Notice{Text: "chat connection restored"}))
			return
		}
		m.logger.Warn("reconnect attempt failed", zap.Int("attempt", attempt), zap.String("user", localID))
	}
	m.logger.Error("giving up reconnecting", zap.Int("attempts", m.maxReconnects))
}

func (m *Manager) dispatch(env Envelope) {
	switch env.Type {
	case EventMessageReceived:
		var p MessagePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			m.logger.Warn("bad message_received payload", zap.Error(err))
			return
		}
		for _, h := range m.snapshotMsgHandlers() {
			h(p)
		}
	case EventMessageStatus:
		var p StatusPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			m.logger.Warn("bad message_status payload", zap.Error(err))
			return
		}
		m.mu.Lock()
		hs := make([]func(StatusPayload), 0, len(m.statusHandlers))
		for _, h := range m.statusHandlers {
			hs = append(hs, h)
		}
		m.mu.Unlock()
		for _, h := range hs {
			h(p)
		}
	case EventUserTyping, EventUserStoppedTyping:
		var p TypingPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			m.logger.Warn("bad typing payload", zap.Error(err))
			return
		}
		m.mu.Lock()
		src := m.typingHandlers
		if env.Type == EventUserStoppedTyping {
			src = m.stoppedHandlers
		}
		hs := make([]func(TypingPayload), 0, len(src))
		for _, h := range src {
			hs = append(hs, h)
		}
		m.mu.Unlock()
		for _, h := range hs {
			h(p)
		}
	default:
		m.logger.Warn("unknown socket event", zap.String("type", env.Type))
	}
}

func (m *Manager) snapshotMsgHandlers() []func(MessagePayload) {
	m.mu.Lock()
	defer m.mu.Unlock()
	hs := make([]func(MessagePayload), 0, len(m.msgHandlers))
	for _, h := range m.msgHandlers {
		hs = append(hs, h)
	}
	return hs
}

// emit marshals and writes an envelope. Emissions while disconnected are
// silently dropped: socket delivery is best-effort, REST persistence is the
// authoritative path.
func (m *Manager) emit(eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		m.logger.Warn("encode socket event", zap.String("type", eventType), zap.Error(err))
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil {
		return
	}
	if err := m.conn.WriteJSON(Envelope{Type: eventType, Data: data}); err != nil {
		m.logger.Warn("write socket event", zap.String("type", eventType), zap.Error(err))
	}
}

// SendMessage broadcasts a persisted message to its room. Fire-and-forget.
func (m *Manager) SendMessage(p MessagePayload) {
	m.emit(EventSendMessage, p)
}

// JoinRoom scopes inbound events to a conversation channel.
func (m *Manager) JoinRoom(roomID string) {
	m.emit(EventJoinChat, RoomPayload{Room: roomID})
}

// LeaveRoom leaves a conversation channel.
func (m *Manager) LeaveRoom(roomID string) {
	m.emit(EventLeaveChat, RoomPayload{Room: roomID})
}

// EmitTyping signals that userID is composing in roomID.
func (m *Manager) EmitTyping(roomID, userID string) {
	m.emit(EventTyping, TypingPayload{Room: roomID, User: userID})
}

// EmitStoppedTyping signals that userID stopped composing in roomID.
func (m *Manager) EmitStoppedTyping(roomID, userID string) {
	m.emit(EventStoppedTyping, TypingPayload{Room: roomID, User: userID})
}

// OnMessageReceived subscribes to inbound peer messages. The returned
// function removes exactly this handler; subscribing without unsubscribing
// on every conversation switch accumulates duplicate deliveries.
func (m *Manager) OnMessageReceived(h func(MessagePayload)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.msgHandlers[id] = h
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.msgHandlers, id)
		m.mu.Unlock()
	}
}

// OnMessageStatus subscribes to delivery-state updates.
func (m *Manager) OnMessageStatus(h func(StatusPayload)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.statusHandlers[id] = h
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.statusHandlers, id)
		m.mu.Unlock()
	}
}

// OnTyping subscribes to composing signals.
func (m *Manager) OnTyping(h func(TypingPayload)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.typingHandlers[id] = h
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.typingHandlers, id)
		m.mu.Unlock()
	}
}

// OnStoppedTyping subscribes to stopped-composing signals.
func (m *Manager) OnStoppedTyping(h func(TypingPayload)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.stoppedHandlers[id] = h
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.stoppedHandlers, id)
		m.mu.Unlock()
	}
}
