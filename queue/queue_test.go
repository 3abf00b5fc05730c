package queue

import (
	"sync"
	"testing"
	"time"
)

func TestBounded_PushPopFIFO(t *testing.T) {
	q := NewBounded[int](4)
	for i := 0; i < 4; i++ {
		if ok := q.Push(i); !ok {
			t.Fatalf("Push(%d) returned false", i)
		}
	}
	for i := 0; i < 4; i++ {
		v, ok := q.Pop()
		if !ok {
			t.Fatalf("Pop() returned ok=false")
		}
		if v != i {
			t.Fatalf("Pop()=%d want=%d", v, i)
		}
	}
}

func TestBounded_PushBlocksWhileFull(t *testing.T) {
	q := NewBounded[int](1)
	if ok := q.Push(1); !ok {
		t.Fatalf("Push(1) returned false")
	}

	done := make(chan struct{})
	go func() {
		q.Push(2)
		close(done)
	}()

	select {
	case <-done:
		t.Fatalf("Push(2) returned before queue had room")
	case <-time.After(50 * time.Millisecond):
	}

	v, _ := q.Pop()
	if v != 1 {
		t.Fatalf("Pop()=%d want=1", v)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Push(2) did not unblock after room was made")
	}
}

func TestBounded_TryPopNonBlocking(t *testing.T) {
	q := NewBounded[int](2)
	if _, ok := q.TryPop(); ok {
		t.Fatalf("TryPop() on empty queue returned ok=true")
	}
	q.Push(7)
	v, ok := q.TryPop()
	if !ok || v != 7 {
		t.Fatalf("TryPop()=(%d,%v) want=(7,true)", v, ok)
	}
}

func TestBounded_BlockNewValuesWakesWaiters(t *testing.T) {
	q := NewBounded[int](1)

	var wg sync.WaitGroup
	wg.Add(1)
	var popOK bool
	go func() {
		defer wg.Done()
		_, popOK = q.Pop()
	}()

	time.Sleep(20 * time.Millisecond)
	q.BlockNewValues()
	wg.Wait()

	if popOK {
		t.Fatalf("Pop() on a closed, empty queue returned ok=true")
	}
	if ok := q.Push(1); ok {
		t.Fatalf("Push() after BlockNewValues returned true")
	}
}

func TestBounded_Clear(t *testing.T) {
	q := NewBounded[int](4)
	q.Push(1)
	q.Push(2)
	q.Clear()
	if q.Size() != 0 {
		t.Fatalf("Size()=%d want=0 after Clear", q.Size())
	}
	if !q.Empty() {
		t.Fatalf("Empty()=false after Clear")
	}
}
