// Package session implements the authoritative session state machine and
// the inactivity watchdog. Routing and UI subscribe to the machine; they
// never read tokens directly.
package session

import (
	"context"
	"sync"

	"github.com/fieldlink/fieldlink-go/internal/client/models"
	"github.com/fieldlink/fieldlink-go/internal/logging"
)

// Status enumerates the session states.
type Status int

const (
	StatusUnknown Status = iota
	StatusAuthenticated
	StatusUnauthenticated
	StatusRefreshing
)

func (s Status) String() string {
	switch s {
	case StatusUnknown:
		return "unknown"
	case StatusAuthenticated:
		return "authenticated"
	case StatusUnauthenticated:
		return "unauthenticated"
	case StatusRefreshing:
		return "refreshing"
	default:
		return "invalid"
	}
}

// State is a session state value as delivered to subscribers. User is set
// for StatusAuthenticated and StatusRefreshing (a refreshing session is
// still logically authenticated to the user).
type State struct {
	Status Status
	User   models.User

	// Reason is set on transitions to StatusUnauthenticated to tell the UI
	// why the session ended: "logout", "session timeout", "unauthorized",
	// "refresh failed".
	Reason string
}

type subscriber struct {
	id int
	fn func(State)
}

// Machine holds the current session state and broadcasts every transition
// to subscribers in registration order. Delivery is serialized: a
// subscriber always observes transitions in the order they happened, after
// the state mutation is complete.
type Machine struct {
	mu    sync.Mutex // guards state and subscriber list
	state State
	subs  []subscriber
	nqid  int

	deliverMu sync.Mutex // serializes broadcasts
	log       logging.Logger
}

func NewMachine(log logging.Logger) *Machine {
	return &Machine{
		state: State{Status: StatusUnknown},
		log:   log,
	}
}

// Current returns the present state.
func (m *Machine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe registers fn for every subsequent transition and returns an
// unsubscribe function. fn runs synchronously on the broadcasting
// goroutine; subscribers must not block.
func (m *Machine) Subscribe(fn func(State)) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nqid++
	id := m.nqid
	m.subs = append(m.subs, subscriber{id: id, fn: fn})
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, s := range m.subs {
			if s.id == id {
				m.subs = append(m.subs[:i], m.subs[i+1:]...)
				return
			}
		}
	}
}

// ResolveStartup leaves StatusUnknown exactly once, at process start, after
// the persisted credential check: to Authenticated when a usable record was
// found, else to Unauthenticated. Calls after the machine has left
// StatusUnknown are ignored.
func (m *Machine) ResolveStartup(user *models.User) {
	next := State{Status: StatusUnauthenticated}
	if user != nil {
		next = State{Status: StatusAuthenticated, User: *user}
	}
	m.transition(func(cur State) (State, bool) {
		return next, cur.Status == StatusUnknown
	})
}

// LoggedIn records a successful login or registration.
func (m *Machine) LoggedIn(user models.User) {
	m.transition(func(cur State) (State, bool) {
		return State{Status: StatusAuthenticated, User: user},
			cur.Status == StatusUnauthenticated || cur.Status == StatusAuthenticated
	})
}

// RefreshStarted marks the beginning of a token refresh.
func (m *Machine) RefreshStarted() {
	m.transition(func(cur State) (State, bool) {
		return State{Status: StatusRefreshing, User: cur.User},
			cur.Status == StatusAuthenticated
	})
}

// RefreshSucceeded returns the machine to Authenticated after a successful
// refresh.
func (m *Machine) RefreshSucceeded() {
	m.transition(func(cur State) (State, bool) {
		return State{Status: StatusAuthenticated, User: cur.User},
			cur.Status == StatusRefreshing
	})
}

// RefreshAbandoned returns the machine to Authenticated after a
// non-terminal refresh failure; the session is still logically live and a
// later trigger will retry.
func (m *Machine) RefreshAbandoned() {
	m.transition(func(cur State) (State, bool) {
		return State{Status: StatusAuthenticated, User: cur.User},
			cur.Status == StatusRefreshing
	})
}

// LoggedOut forces Unauthenticated from any state: explicit logout, session
// timeout, terminal refresh failure, or irrecoverable 401.
func (m *Machine) LoggedOut(reason string) {
	m.transition(func(cur State) (State, bool) {
		return State{Status: StatusUnauthenticated, Reason: reason},
			cur.Status != StatusUnauthenticated
	})
}

// transition applies decide under the state lock, then broadcasts the new
// state outside it. Broadcasts are serialized so subscribers see
// transitions in order.
func (m *Machine) transition(decide func(cur State) (State, bool)) {
	m.deliverMu.Lock()
	defer m.deliverMu.Unlock()

	m.mu.Lock()
	next, ok := decide(m.state)
	if !ok {
		m.mu.Unlock()
		return
	}
	prev := m.state
	m.state = next
	subs := make([]subscriber, len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	m.log.Info(context.Background(), "session state changed",
		"from", prev.Status.String(), "to", next.Status.String(), "reason", next.Reason)

	for _, s := range subs {
		s.fn(next)
	}
}
