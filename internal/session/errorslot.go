package session

import (
	"sync"
	"time"
)

// ErrorEntry is the failure currently shown to the player.
type ErrorEntry struct {
	Source  string    `json:"source"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// ErrorSlot holds the most recent failure. A new failure replaces the
// previous one; a successful mutation clears it.
type ErrorSlot struct {
	mu       sync.Mutex
	entry    *ErrorEntry
	watchers []func()
}

// Set records err from source. A nil err is ignored.
func (e *ErrorSlot) Set(source string, err error) {
	if err == nil {
		return
	}
	e.mu.Lock()
	e.entry = &ErrorEntry{Source: source, Message: err.Error(), At: time.Now()}
	watchers := append([]func(){}, e.watchers...)
	e.mu.Unlock()
	for _, fn := range watchers {
		fn()
	}
}

// Clear empties the slot.
func (e *ErrorSlot) Clear() {
	e.mu.Lock()
	had := e.entry != nil
	e.entry = nil
	watchers := append([]func(){}, e.watchers...)
	e.mu.Unlock()
	if !had {
		return
	}
	for _, fn := range watchers {
		fn()
	}
}

// Get returns the current entry.
func (e *ErrorSlot) Get() (ErrorEntry, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.entry == nil {
		return ErrorEntry{}, false
	}
	return *e.entry, true
}

// OnChange registers fn to run whenever the slot changes.
func (e *ErrorSlot) OnChange(fn func()) {
	e.mu.Lock()
	e.watchers = append(e.watchers, fn)
	e.mu.Unlock()
}
