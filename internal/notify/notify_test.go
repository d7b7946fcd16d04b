package notify

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"econsim-terminal/internal/models"
)

func TestFillTrackerBaselineThenFills(t *testing.T) {
	names := map[int64]string{10: "Iron"}
	f := NewFillTracker(1, func(id int64) string { return names[id] })

	initial := []models.Trade{{ID: 1, GoodID: 10, BuyerCompanyID: 1, SellerCompanyID: 2, Quantity: 3, PricePerUnit: 9}}
	if got := f.Observe(initial); len(got) != 0 {
		t.Fatalf("first snapshot should only set the baseline, got %+v", got)
	}

	next := append([]models.Trade{
		{ID: 3, GoodID: 10, BuyerCompanyID: 2, SellerCompanyID: 1, Quantity: 4, PricePerUnit: 12},
		{ID: 2, GoodID: 10, BuyerCompanyID: 2, SellerCompanyID: 3, Quantity: 1, PricePerUnit: 11},
	}, initial...)
	got := f.Observe(next)
	if len(got) != 1 || got[0].Message != "Sold 4 Iron @ 12" || got[0].Type != TypeFill {
		t.Fatalf("fills = %+v", got)
	}

	if again := f.Observe(next); len(again) != 0 {
		t.Fatalf("repeated snapshot notified again: %+v", again)
	}
}

func TestNotifierRingsAndKeepsHistory(t *testing.T) {
	var bell bytes.Buffer
	var mu sync.Mutex
	var seen []string

	n := New(4, 2, &syncWriter{w: &bell, mu: &mu})
	n.AddHandler(func(note Notification) {
		mu.Lock()
		seen = append(seen, note.Message)
		mu.Unlock()
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	n.Start(ctx)

	n.Notify(Notification{Type: TypeInfo, Message: "a"})
	n.Notify(Notification{Type: TypeFill, Message: "b", Priority: 1})
	n.Notify(Notification{Type: TypeError, Message: "c", Priority: 1})

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		done := len(seen) == 3
		mu.Unlock()
		if done {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("handled = %v", seen)
		}
		time.Sleep(5 * time.Millisecond)
	}

	recent := n.Recent()
	if len(recent) != 2 || recent[0].Message != "c" || recent[1].Message != "b" {
		t.Fatalf("recent = %+v", recent)
	}
	mu.Lock()
	defer mu.Unlock()
	if got := strings.Count(bell.String(), "\a"); got != 2 {
		t.Fatalf("bell rang %d times", got)
	}
}

func TestNotifyDropsOldestWhenFull(t *testing.T) {
	n := New(2, 5, nil)
	n.Notify(Notification{Message: "1"})
	n.Notify(Notification{Message: "2"})
	n.Notify(Notification{Message: "3"})

	first := <-n.queue
	second := <-n.queue
	if first.Message != "2" || second.Message != "3" {
		t.Fatalf("queue = %q %q", first.Message, second.Message)
	}
}

type syncWriter struct {
	w  *bytes.Buffer
	mu *sync.Mutex
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
