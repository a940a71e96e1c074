package transport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/TERAMED-SA/provision-chat/internal/bus"
	"github.com/TERAMED-SA/provision-chat/internal/status"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// testServer is a minimal socket endpoint: records connections, echoes
// nothing on its own, and lets tests push frames to the client.
type testServer struct {
	t  *testing.T
	mu sync.Mutex

	dials   int
	userIDs []string
	conns   []*websocket.Conn
	frames  []Envelope
}

func (s *testServer) handler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.t.Errorf("upgrade failed: %v", err)
		return
	}
	s.mu.Lock()
	s.dials++
	s.userIDs = append(s.userIDs, r.URL.Query().Get("userId"))
	s.conns = append(s.conns, conn)
	s.mu.Unlock()

	go func() {
		for {
			var env Envelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			s.mu.Lock()
			s.frames = append(s.frames, env)
			s.mu.Unlock()
		}
	}()
}

func (s *testServer) push(t *testing.T, env Envelope) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.conns) == 0 {
		t.Fatal("no connection to push on")
	}
	if err := s.conns[len(s.conns)-1].WriteJSON(env); err != nil {
		t.Fatalf("push frame: %v", err)
	}
}

func (s *testServer) dialCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dials
}

func (s *testServer) lastFrames() []Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Envelope(nil), s.frames...)
}

func newTestManager(t *testing.T) (*Manager, *testServer) {
	t.Helper()
	srv := &testServer{t: t}
	hs := httptest.NewServer(http.HandlerFunc(srv.handler))
	t.Cleanup(hs.Close)

	wsURL := "ws" + strings.TrimPrefix(hs.URL, "http")
	m := NewManager(wsURL, bus.New(), status.NewMachine(nil), zap.NewNop())
	t.Cleanup(m.Disconnect)
	return m, srv
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestConnectTagsIdentity(t *testing.T) {
	m, srv := newTestManager(t)

	if err := m.Connect("u1"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if !m.IsConnected() {
		t.Error("IsConnected() = false after Connect")
	}

	srv.mu.Lock()
	defer srv.mu.Unlock()
	if len(srv.userIDs) != 1 || srv.userIDs[0] != "u1" {
		t.Errorf("server saw userIds %v, want [u1]", srv.userIDs)
	}
}

func TestConnectIdempotent(t *testing.T) {
	m, srv := newTestManager(t)

	for i := 0; i < 3; i++ {
		if err := m.Connect("u1"); err != nil {
			t.Fatalf("Connect() #%d error = %v", i, err)
		}
	}
	if got := srv.dialCount(); got != 1 {
		t.Errorf("dial count = %d, want 1 (idempotent connect)", got)
	}
}

func TestConnectConcurrentCallsShareOneDial(t *testing.T) {
	m, srv := newTestManager(t)

	// Rapid-succession double initialization must not open two sockets for
	// the same identity.
	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = m.Connect("u1")
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("Connect() #%d error = %v", i, err)
		}
	}
	if got := srv.dialCount(); got != 1 {
		t.Errorf("dial count = %d, want 1 (single shared connection)", got)
	}
	if !m.IsConnected() {
		t.Error("IsConnected() = false after concurrent Connect")
	}
}

func TestConnectNewIdentityReplacesConnection(t *testing.T) {
	m, srv := newTestManager(t)

	if err := m.Connect("u1"); err != nil {
		t.Fatal(err)
	}
	if err := m.Connect("u2"); err != nil {
		t.Fatal(err)
	}
	if got := srv.dialCount(); got != 2 {
		t.Errorf("dial count = %d, want 2", got)
	}
	srv.mu.Lock()
	last := srv.userIDs[len(srv.userIDs)-1]
	srv.mu.Unlock()
	if last != "u2" {
		t.Errorf("last identity = %q, want u2", last)
	}
}

func TestDisconnectSafeWhenDisconnected(t *testing.T) {
	m, _ := newTestManager(t)
	m.Disconnect()
	m.Disconnect()
	if m.IsConnected() {
		t.Error("IsConnected() = true after Disconnect")
	}
}

func TestInboundDispatch(t *testing.T) {
	m, srv := newTestManager(t)
	if err := m.Connect("u1"); err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	var got []MessagePayload
	unsub := m.OnMessageReceived(func(p MessagePayload) {
		mu.Lock()
		got = append(got, p)
		mu.Unlock()
	})
	defer unsub()

	data, _ := json.Marshal(MessagePayload{ID: "srv-1", Sender: "sup-100", Content: "oi"})
	srv.push(t, Envelope{Type: EventMessageReceived, Data: data})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, "timeout waiting for dispatched message")

	mu.Lock()
	defer mu.Unlock()
	if got[0].ID != "srv-1" || got[0].Content != "oi" {
		t.Errorf("payload = %+v", got[0])
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	m, srv := newTestManager(t)
	if err := m.Connect("u1"); err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	count := 0
	unsub := m.OnTyping(func(TypingPayload) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	data, _ := json.Marshal(TypingPayload{Room: "a:b", User: "sup-100"})
	srv.push(t, Envelope{Type: EventUserTyping, Data: data})
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 1
	}, "timeout waiting for first typing event")

	unsub()
	srv.push(t, Envelope{Type: EventUserTyping, Data: data})
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Errorf("handler ran %d times, want 1 (unsubscribed)", count)
	}
}

func TestEmitWhileDisconnectedIsSilentDrop(t *testing.T) {
	m, _ := newTestManager(t)

	// None of these may panic or error; socket delivery is best-effort.
	m.SendMessage(MessagePayload{ID: "x"})
	m.JoinRoom("a:b")
	m.LeaveRoom("a:b")
	m.EmitTyping("a:b", "u1")
	m.EmitStoppedTyping("a:b", "u1")
}

func TestOutboundFrames(t *testing.T) {
	m, srv := newTestManager(t)
	if err := m.Connect("u1"); err != nil {
		t.Fatal(err)
	}

	m.JoinRoom(RoomID("u1", "sup-100"))
	m.EmitTyping(RoomID("u1", "sup-100"), "u1")
	m.SendMessage(MessagePayload{ID: "srv-9", Room: RoomID("u1", "sup-100"), Sender: "u1"})

	waitFor(t, func() bool { return len(srv.lastFrames()) == 3 }, "timeout waiting for outbound frames")

	frames := srv.lastFrames()
	wantTypes := []string{EventJoinChat, EventTyping, EventSendMessage}
	for i, want := range wantTypes {
		if frames[i].Type != want {
			t.Errorf("frame %d type = %q, want %q", i, frames[i].Type, want)
		}
	}

	var join RoomPayload
	if err := json.Unmarshal(frames[0].Data, &join); err != nil {
		t.Fatal(err)
	}
	if join.Room != "sup-100:u1" {
		t.Errorf("join room = %q, want sup-100:u1", join.Room)
	}
}

func TestServerCloseFlipsConnectivity(t *testing.T) {
	m, srv := newTestManager(t)
	if err := m.Connect("u1"); err != nil {
		t.Fatal(err)
	}

	srv.mu.Lock()
	_ = srv.conns[0].Close()
	srv.mu.Unlock()

	waitFor(t, func() bool { return !m.IsConnected() }, "timeout waiting for drop detection")
	if got := m.machine.Current(); got != status.Reconnecting {
		t.Errorf("state after drop = %v, want %v", got, status.Reconnecting)
	}
}

func TestDropReconnectsWithSameIdentity(t *testing.T) {
	m, srv := newTestManager(t)
	m.reconnectDelay = 20 * time.Millisecond
	if err := m.Connect("u1"); err != nil {
		t.Fatal(err)
	}

	srv.mu.Lock()
	_ = srv.conns[0].Close()
	srv.mu.Unlock()

	waitFor(t, func() bool { return srv.dialCount() == 2 && m.IsConnected() },
		"timeout waiting for automatic reconnect")

	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.userIDs[1] != "u1" {
		t.Errorf("reconnect identity = %q, want u1", srv.userIDs[1])
	}
}

func TestDisconnectCancelsReconnect(t *testing.T) {
	m, srv := newTestManager(t)
	m.reconnectDelay = 50 * time.Millisecond
	if err := m.Connect("u1"); err != nil {
		t.Fatal(err)
	}

	srv.mu.Lock()
	_ = srv.conns[0].Close()
	srv.mu.Unlock()

	waitFor(t, func() bool { return !m.IsConnected() }, "timeout waiting for drop detection")
	m.Disconnect()

	time.Sleep(200 * time.Millisecond)
	if got := srv.dialCount(); got != 1 {
		t.Errorf("dial count = %d, want 1 (reconnect must stop after Disconnect)", got)
	}
	if m.IsConnected() {
		t.Error("IsConnected() = true after Disconnect")
	}
}
