package selection

import (
	"testing"
)

func TestSelection_StartsEmpty(t *testing.T) {
	s := New("company")
	if _, ok := s.Get(); ok {
		t.Fatal("new selection should be empty")
	}
	if s.Ptr() != nil {
		t.Fatal("Ptr should be nil for an empty selection")
	}
}

func TestSelection_NotifiesOnChangeOnly(t *testing.T) {
	s := New("company")

	var calls []string
	s.Subscribe(func(prev, next *int64) {
		switch {
		case prev == nil && next != nil:
			calls = append(calls, "set")
		case prev != nil && next == nil:
			calls = append(calls, "clear")
		default:
			calls = append(calls, "change")
		}
	})

	s.Set(1)
	s.Set(1)
	s.Set(2)
	s.Clear()
	s.Clear()

	want := []string{"set", "change", "clear"}
	if len(calls) != len(want) {
		t.Fatalf("got %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("got %v, want %v", calls, want)
		}
	}
}

func TestSelection_ListenerSeesNewValue(t *testing.T) {
	s := New("good")
	var seen int64
	s.Subscribe(func(prev, next *int64) {
		v, ok := s.Get()
		if !ok {
			t.Error("value should be visible inside listener")
			return
		}
		seen = v
	})
	s.Set(7)
	if seen != 7 {
		t.Fatalf("listener saw %d, want 7", seen)
	}
	if !s.Is(7) || s.Is(8) {
		t.Fatal("Is should match only the current value")
	}
}

func TestSelection_PtrIsCopy(t *testing.T) {
	s := New("location")
	id := int64(3)
	s.SetPtr(&id)
	id = 4
	p := s.Ptr()
	if p == nil || *p != 3 {
		t.Fatalf("selection should hold its own copy, got %v", p)
	}
	*p = 9
	if !s.Is(3) {
		t.Fatal("mutating Ptr result must not change the selection")
	}
}
