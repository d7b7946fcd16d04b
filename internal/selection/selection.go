// Package selection holds the player's cross-view selections (active company,
// market good, chart good, map location). A Selection is created explicitly
// and handed to every component that depends on it.
package selection

import (
	"sync"
)

// Listener is invoked after the value changes. prev and next are nil when
// nothing is selected.
type Listener func(prev, next *int64)

// Selection is an optional identifier with change notification.
type Selection struct {
	name      string
	mu        sync.RWMutex
	value     *int64
	listeners []Listener
}

// New creates an empty selection.
func New(name string) *Selection {
	return &Selection{name: name}
}

// Name returns the selection name used in logs.
func (s *Selection) Name() string {
	return s.name
}

// Get returns the selected identifier, or false when nothing is selected.
func (s *Selection) Get() (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.value == nil {
		return 0, false
	}
	return *s.value, true
}

// Ptr returns a copy of the selected identifier, or nil.
func (s *Selection) Ptr() *int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.value)
}

// Set selects id. Listeners run synchronously, in registration order, only
// when the value actually changes.
func (s *Selection) Set(id int64) {
	s.update(&id)
}

// Clear removes the selection.
func (s *Selection) Clear() {
	s.update(nil)
}

// SetPtr selects *id, or clears when id is nil.
func (s *Selection) SetPtr(id *int64) {
	s.update(clone(id))
}

// Subscribe registers a change listener.
func (s *Selection) Subscribe(l Listener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()
}

// Is reports whether id is the current selection.
func (s *Selection) Is(id int64) bool {
	cur, ok := s.Get()
	return ok && cur == id
}

func (s *Selection) update(next *int64) {
	s.mu.Lock()
	prev := s.value
	if equal(prev, next) {
		s.mu.Unlock()
		return
	}
	s.value = next
	listeners := make([]Listener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	for _, l := range listeners {
		l(clone(prev), clone(next))
	}
}

func equal(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func clone(v *int64) *int64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
