package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/thegamersstation/gsm/internal/bus"
)

// State is a lifecycle state of the worker or the messaging connection.
type State string

// Messaging connection states.
const (
	Disconnected State = "DISCONNECTED"
	Connecting   State = "CONNECTING"
	Connected    State = "CONNECTED"
)

// Worker states.
const (
	Installing State = "INSTALLING"
	Waiting    State = "WAITING"
	Active     State = "ACTIVE"
	Redundant  State = "REDUNDANT"
)

// Table is the transition graph of one machine and the event kind it
// publishes on.
type Table struct {
	Kind        string
	Initial     State
	Transitions map[State][]State
}

// Connection drives the messaging transport.
var Connection = Table{
	Kind:    bus.KindMessagingStatus,
	Initial: Disconnected,
	Transitions: map[State][]State{
		Disconnected: {Connecting},
		Connecting:   {Connected, Disconnected},
		Connected:    {Disconnected},
	},
}

// Worker drives the cache engine lifecycle. A failed install ends in Redundant.
var Worker = Table{
	Kind:    bus.KindWorkerStatus,
	Initial: Installing,
	Transitions: map[State][]State{
		Installing: {Waiting, Redundant},
		Waiting:    {Active, Redundant},
		Active:     {Redundant},
	},
}

// Machine tracks and enforces state transitions.
type Machine struct {
	mu      sync.RWMutex
	table   Table
	current State
	bus     *bus.Bus
}

// NewMachine creates a machine in the table's initial state. b may be nil.
func NewMachine(b *bus.Bus, t Table) *Machine {
	return &Machine{
		table:   t,
		current: t.Initial,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := m.table.Transitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:      m.table.Kind,
			Timestamp: time.Now(),
			Payload: StatusChange{
				From: from,
				To:   to,
			},
		})
	}
	return nil
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State
	To   State
}
