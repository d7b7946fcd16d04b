// Package notify raises terminal notifications for events the player cares
// about while watching: fills of their own orders and new failures.
package notify

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"econsim-terminal/internal/models"
)

// Type is the kind of notification.
type Type string

const (
	TypeFill  Type = "fill"
	TypeError Type = "error"
	TypeInfo  Type = "info"
)

// Notification is one message for the player.
type Notification struct {
	Type      Type      `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	// Priority above zero rings the terminal bell.
	Priority int `json:"priority"`
}

// Handler receives processed notifications.
type Handler func(n Notification)

// Notifier queues notifications and hands them to handlers on its own
// goroutine. When the queue is full the oldest notification is dropped.
type Notifier struct {
	queue    chan Notification
	handlers []Handler
	bell     io.Writer
	history  []Notification
	keep     int
	mu       sync.RWMutex
}

// New creates a notifier. bell receives "\a" for priority notifications;
// nil disables the bell.
func New(bufferSize, keep int, bell io.Writer) *Notifier {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	if keep <= 0 {
		keep = 5
	}
	return &Notifier{
		queue: make(chan Notification, bufferSize),
		bell:  bell,
		keep:  keep,
	}
}

// AddHandler registers a handler.
func (n *Notifier) AddHandler(h Handler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers = append(n.handlers, h)
}

// Notify queues a notification without blocking.
func (n *Notifier) Notify(note Notification) {
	if note.Timestamp.IsZero() {
		note.Timestamp = time.Now()
	}
	for {
		select {
		case n.queue <- note:
			return
		default:
		}
		select {
		case <-n.queue:
		default:
		}
	}
}

// Start processes notifications until ctx is done.
func (n *Notifier) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case note := <-n.queue:
				n.process(note)
			}
		}
	}()
}

func (n *Notifier) process(note Notification) {
	n.mu.Lock()
	n.history = append(n.history, note)
	if len(n.history) > n.keep {
		n.history = n.history[len(n.history)-n.keep:]
	}
	handlers := append([]Handler(nil), n.handlers...)
	n.mu.Unlock()

	if n.bell != nil && note.Priority > 0 {
		_, _ = io.WriteString(n.bell, "\a")
	}
	for _, h := range handlers {
		h(note)
	}
}

// Recent returns the last processed notifications, newest first.
func (n *Notifier) Recent() []Notification {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]Notification, len(n.history))
	for i, note := range n.history {
		out[len(n.history)-1-i] = note
	}
	return out
}

// FillTracker turns successive trades snapshots into fill notifications
// for one company. The first snapshot only sets the baseline.
type FillTracker struct {
	companyID int64
	goodNames func(id int64) string

	mu       sync.Mutex
	lastSeen int64
	primed   bool
}

// NewFillTracker tracks fills of companyID. goodNames resolves good names
// for messages and may be nil.
func NewFillTracker(companyID int64, goodNames func(id int64) string) *FillTracker {
	if goodNames == nil {
		goodNames = func(id int64) string { return fmt.Sprintf("good #%d", id) }
	}
	return &FillTracker{companyID: companyID, goodNames: goodNames}
}

// Observe returns notifications for trades newer than any seen before in
// which the company bought or sold.
func (f *FillTracker) Observe(trades []models.Trade) []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()

	maxID := f.lastSeen
	var out []Notification
	for _, t := range trades {
		maxID = max(maxID, t.ID)
		if !f.primed || t.ID <= f.lastSeen {
			continue
		}
		var verb string
		switch f.companyID {
		case t.BuyerCompanyID:
			verb = "Bought"
		case t.SellerCompanyID:
			verb = "Sold"
		default:
			continue
		}
		out = append(out, Notification{
			Type:     TypeFill,
			Message:  fmt.Sprintf("%s %d %s @ %d", verb, t.Quantity, f.goodNames(t.GoodID), t.PricePerUnit),
			Priority: 1,
		})
	}
	f.lastSeen = maxID
	f.primed = true
	return out
}
