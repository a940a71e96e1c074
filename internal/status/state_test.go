package status

import (
	"testing"

	"github.com/TERAMED-SA/provision-chat/internal/bus"
)

func TestInitialState(t *testing.T) {
	m := NewMachine(nil)
	if m.Current() != Disconnected {
		t.Errorf("initial state = %s, want DISCONNECTED", m.Current())
	}
	if m.Online() {
		t.Error("Online() = true before any connection")
	}
}

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		from State
		to   State
	}{
		{Disconnected, Connecting},
		{Connecting, Connected},
		{Connecting, Error},
		{Connected, Reconnecting},
		{Connected, Disconnected},
		{Reconnecting, Connecting},
		{Error, Connecting},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			m := NewMachine(nil)
			walkTo(t, m, tt.from)
			if err := m.Transition(tt.to); err != nil {
				t.Errorf("Transition(%s -> %s) error = %v", tt.from, tt.to, err)
			}
			if m.Current() != tt.to {
				t.Errorf("state = %s, want %s", m.Current(), tt.to)
			}
		})
	}
}

func TestInvalidTransition(t *testing.T) {
	m := NewMachine(nil)
	if err := m.Transition(Connected); err == nil {
		t.Error("Transition(DISCONNECTED -> CONNECTED) should fail; must pass through CONNECTING")
	}
	if m.Current() != Disconnected {
		t.Errorf("state = %s, want DISCONNECTED (should not have changed)", m.Current())
	}
}

func TestTransitionEmitsEvent(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("conn.", 10)
	defer unsub()

	m := NewMachine(b)
	if err := m.Transition(Connecting); err != nil {
		t.Fatal(err)
	}

	evt := <-ch
	if evt.Kind != bus.KindConnStatusChanged {
		t.Errorf("event kind = %q, want %q", evt.Kind, bus.KindConnStatusChanged)
	}
	change, ok := evt.Payload.(StatusChange)
	if !ok {
		t.Fatalf("payload type = %T, want StatusChange", evt.Payload)
	}
	if change.From != Disconnected || change.To != Connecting {
		t.Errorf("change = %v -> %v, want DISCONNECTED -> CONNECTING", change.From, change.To)
	}
}

// TestDropReconnectCycle exercises the lifecycle around a dropped socket:
// CONNECTED → RECONNECTING → CONNECTING → CONNECTED.
func TestDropReconnectCycle(t *testing.T) {
	m := NewMachine(nil)
	walkTo(t, m, Connected)

	steps := []State{Reconnecting, Connecting, Connected}
	for _, s := range steps {
		if err := m.Transition(s); err != nil {
			t.Fatalf("Transition to %s: %v (current: %s)", s, err, m.Current())
		}
	}
	if !m.Online() {
		t.Error("Online() = false after reconnect cycle")
	}
}

// TestLogoutFromConnected verifies explicit teardown returns to DISCONNECTED.
func TestLogoutFromConnected(t *testing.T) {
	m := NewMachine(nil)
	walkTo(t, m, Connected)

	if err := m.Transition(Disconnected); err != nil {
		t.Fatalf("CONNECTED -> DISCONNECTED: %v", err)
	}
	if m.Current() != Disconnected {
		t.Errorf("state = %s, want DISCONNECTED", m.Current())
	}
}

// walkTo is a helper that transitions the machine to a target state.
func walkTo(t *testing.T, m *Machine, target State) {
	t.Helper()
	paths := map[State][]State{
		Disconnected: {},
		Connecting:   {Connecting},
		Connected:    {Connecting, Connected},
		Reconnecting: {Connecting, Connected, Reconnecting},
		Error:        {Connecting, Error},
	}
	for _, s := range paths[target] {
		if err := m.Transition(s); err != nil {
			t.Fatalf("walkTo(%s): %v", target, err)
		}
	}
}
