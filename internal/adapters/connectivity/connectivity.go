// Package connectivity reports whether the remote store is reachable and
// notifies subscribers when that changes.
package connectivity

import (
	"sync"
)

// Monitor is the connectivity signal.
type Monitor interface {
	IsConnected() bool
	// Subscribe registers fn for transitions and returns a func that removes it.
	Subscribe(fn func(connected bool)) (unsubscribe func())
}

// hub holds the current state and the subscribers shared by monitors.
type hub struct {
	mu        sync.RWMutex
	connected bool
	nextID    int
	subs      map[int]func(bool)
}

func newHub(initial bool) *hub {
	return &hub{connected: initial, subs: make(map[int]func(bool))}
}

func (h *hub) IsConnected() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.connected
}

func (h *hub) Subscribe(fn func(bool)) func() {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = fn
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

// set stores the state and, on a transition, calls subscribers outside the lock.
// It reports whether the state changed.
func (h *hub) set(connected bool) bool {
	h.mu.Lock()
	if h.connected == connected {
		h.mu.Unlock()
		return false
	}
	h.connected = connected
	subs := make([]func(bool), 0, len(h.subs))
	for _, fn := range h.subs {
		subs = append(subs, fn)
	}
	h.mu.Unlock()

	for _, fn := range subs {
		fn(connected)
	}
	return true
}

// Switch is a monitor whose state is set by hand.
type Switch struct {
	*hub
}

// NewSwitch creates a switch in the given state.
func NewSwitch(connected bool) *Switch {
	return &Switch{hub: newHub(connected)}
}

// Set changes the state, notifying subscribers on a transition.
func (s *Switch) Set(connected bool) {
	s.set(connected)
}
