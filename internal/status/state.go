package status

import (
	"fmt"
	"slices"
	"sync"

	"github.com/TERAMED-SA/provision-chat/internal/bus"
)

// State represents the connection lifecycle state.
type State string

const (
	Disconnected State = "DISCONNECTED"
	Connecting   State = "CONNECTING"
	Connected    State = "CONNECTED"
	Reconnecting State = "RECONNECTING"
	Error        State = "ERROR"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Disconnected: {Connecting},
	Connecting:   {Connected, Disconnected, Error},
	Connected:    {Reconnecting, Disconnected, Error},
	Reconnecting: {Connecting, Disconnected, Error},
	Error:        {Connecting, Disconnected},
}

// Machine tracks and enforces connection state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Disconnected state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Disconnected,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Online reports whether the connection is usable for live delivery.
func (m *Machine) Online() bool {
	return m.Current() == Connected
}

// Transition attempts to move to a new state. Returns error if the
// transition is invalid; the state is left unchanged in that case.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Publish(bus.Now(bus.KindConnStatusChanged, StatusChange{
			From: from,
			To:   to,
		}))
	}
	return nil
}

// StatusChange is the payload for conn.status_changed events.
type StatusChange struct {
	From State
	To   State
}
