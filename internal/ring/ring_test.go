package ring

import "testing"

func TestNewFillsAllSlots(t *testing.T) {
	r := New(4)
	if r.Len() != 4 || !r.Full() {
		t.Fatalf("expected full ring of 4, got len=%d full=%v", r.Len(), r.Full())
	}
	seen := map[int]bool{}
	for i := 0; i < 4; i++ {
		slot, ok := r.Pop()
		if !ok {
			t.Fatalf("pop %d: expected ok", i)
		}
		seen[slot] = true
	}
	if len(seen) != 4 {
		t.Fatalf("expected 4 distinct slots, got %v", seen)
	}
	if !r.Empty() {
		t.Fatalf("expected empty ring after draining")
	}
}

func TestPopOnEmpty(t *testing.T) {
	r := New(1)
	r.Pop()
	if _, ok := r.Pop(); ok {
		t.Fatalf("expected pop on empty ring to fail")
	}
}

func TestPushAfterPopRecycles(t *testing.T) {
	r := New(2)
	a, _ := r.Pop()
	r.Push(a)
	if r.Len() != 2 {
		t.Fatalf("expected len 2 after recycle, got %d", r.Len())
	}
}

func TestPushOnFullPanics(t *testing.T) {
	r := New(1)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic pushing onto a full ring")
		}
	}()
	r.Push(0)
}

func TestFIFOOrdering(t *testing.T) {
	r := New(3)
	r.Pop()
	r.Pop()
	r.Pop()
	r.Push(2)
	r.Push(0)
	r.Push(1)
	got, _ := r.Pop()
	if got != 2 {
		t.Fatalf("expected FIFO order to return 2 first, got %d", got)
	}
}
