package workerpool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestRun_PreservesInputOrderDespiteStaggeredCompletion(t *testing.T) {
	inputs := []int{5, 4, 3, 2, 1, 0, 5, 4, 3, 2, 1, 0}
	fn := func(n int) int {
		// Larger inputs sleep longer, so workers finish jobs out of order.
		time.Sleep(time.Duration(n) * time.Millisecond)
		return n * n
	}

	got := Run(context.Background(), 4, inputs, fn)
	if len(got) != len(inputs) {
		t.Fatalf("len(got)=%d want=%d", len(got), len(inputs))
	}
	for i, n := range inputs {
		if got[i] != n*n {
			t.Fatalf("got[%d]=%d want=%d", i, got[i], n*n)
		}
	}
}

func TestRun_AllJobsRunExactlyOnce(t *testing.T) {
	var calls atomic.Int64
	inputs := make([]int, 200)
	for i := range inputs {
		inputs[i] = i
	}

	got := Run(context.Background(), 8, inputs, func(n int) int {
		calls.Add(1)
		return n
	})

	if calls.Load() != int64(len(inputs)) {
		t.Fatalf("fn called %d times, want %d", calls.Load(), len(inputs))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("got[%d]=%d want=%d", i, v, i)
		}
	}
}

func TestRun_SingleWorkerIsSequentialButStillOrdered(t *testing.T) {
	inputs := []string{"a", "b", "c", "d"}
	got := Run(context.Background(), 1, inputs, func(s string) string { return s + s })

	want := []string{"aa", "bb", "cc", "dd"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got[%d]=%q want=%q", i, got[i], want[i])
		}
	}
}

func TestRun_EmptyInputReturnsEmptyOutput(t *testing.T) {
	got := Run(context.Background(), 4, []int{}, func(n int) int { return n })
	if len(got) != 0 {
		t.Fatalf("len(got)=%d want=0", len(got))
	}
}
