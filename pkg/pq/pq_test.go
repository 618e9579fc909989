package pq

import "testing"

func TestQueueOrdersByKey(t *testing.T) {
	q := New[string]()
	q.Add(5, "five")
	q.Add(1, "one")
	q.Add(3, "three")

	want := []string{"one", "three", "five"}
	for _, w := range want {
		v, _, ok := q.RemoveMin()
		if !ok {
			t.Fatalf("RemoveMin() ok = false, want true")
		}
		if v != w {
			t.Fatalf("RemoveMin() = %q, want %q", v, w)
		}
	}
	if !q.Empty() {
		t.Fatalf("Empty() = false after draining, want true")
	}
}

func TestQueueStableFIFOOnTies(t *testing.T) {
	q := New[int]()
	for i := 0; i < 5; i++ {
		q.Add(10, i)
	}
	for i := 0; i < 5; i++ {
		v, key, ok := q.RemoveMin()
		if !ok || key != 10 {
			t.Fatalf("RemoveMin() = (%d, %d, %v), want (_, 10, true)", v, key, ok)
		}
		if v != i {
			t.Fatalf("RemoveMin() value = %d, want %d (FIFO order on tie)", v, i)
		}
	}
}

func TestQueuePeekMinDoesNotRemove(t *testing.T) {
	q := New[int]()
	q.Add(1, 100)

	v, key, ok := q.PeekMin()
	if !ok || v != 100 || key != 1 {
		t.Fatalf("PeekMin() = (%d, %d, %v), want (100, 1, true)", v, key, ok)
	}
	if q.Len() != 1 {
		t.Fatalf("Len() = %d after PeekMin, want 1", q.Len())
	}
}

func TestQueueEmptyRemoveMin(t *testing.T) {
	q := New[int]()
	_, _, ok := q.RemoveMin()
	if ok {
		t.Fatalf("RemoveMin() ok = true on empty queue, want false")
	}
}
