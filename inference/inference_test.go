package inference

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// spyPredictor records every Infer call it receives and echoes back one
// Output per input observation, so callers can be matched to their slice of
// results without needing a real model.
type spyPredictor struct {
	mu    sync.Mutex
	calls int
	seen  int

	failNext bool
}

func (s *spyPredictor) Infer(inputs []Observation) ([]Output, error) {
	s.mu.Lock()
	s.calls++
	s.seen += len(inputs)
	fail := s.failNext
	s.mu.Unlock()

	if fail {
		return nil, errors.New("spy: forced failure")
	}
	out := make([]Output, len(inputs))
	for i, in := range inputs {
		out[i] = Output{Policy: []float64{float64(len(in))}, Heuristic: float64(len(in))}
	}
	return out, nil
}

func (s *spyPredictor) Shape() Shape { return Shape{C: 1, H: 1, W: 1} }
func (s *spyPredictor) Close() error { return nil }

func (s *spyPredictor) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestModelEvaluator_MergesConcurrentCallersIntoFewerBatches(t *testing.T) {
	predictor := &spyPredictor{}
	evaluator := NewModelEvaluator(predictor, 32, 32, 20*time.Millisecond)
	defer evaluator.Close()

	const callers = 16
	var wg sync.WaitGroup
	wg.Add(callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer wg.Done()
			_, err := evaluator.Infer([]Observation{{1, 2, 3}})
			errs[i] = err
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d: Infer returned %v", i, err)
		}
	}
	if got := predictor.callCount(); got >= callers {
		t.Fatalf("predictor.Infer called %d times for %d concurrent callers, expected batching to merge some", got, callers)
	}

	batches, requests, observations := evaluator.Stats().Snapshot()
	if requests != callers {
		t.Fatalf("Stats requests=%d want=%d", requests, callers)
	}
	if observations != callers {
		t.Fatalf("Stats observations=%d want=%d", observations, callers)
	}
	if batches == 0 || batches > int64(callers) {
		t.Fatalf("Stats batches=%d out of expected range (1..%d)", batches, callers)
	}
}

func TestModelEvaluator_SplitsResultsBackToCorrectCaller(t *testing.T) {
	predictor := &spyPredictor{}
	evaluator := NewModelEvaluator(predictor, 8, 32, 5*time.Millisecond)
	defer evaluator.Close()

	inputs := []Observation{{1}, {1, 2}, {1, 2, 3}}
	outputs, err := evaluator.Infer(inputs)
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	for i, in := range inputs {
		if outputs[i].Heuristic != float64(len(in)) {
			t.Fatalf("outputs[%d].Heuristic=%v want=%v", i, outputs[i].Heuristic, len(in))
		}
	}
}

func TestModelEvaluator_PropagatesPredictorError(t *testing.T) {
	predictor := &spyPredictor{failNext: true}
	evaluator := NewModelEvaluator(predictor, 8, 32, 5*time.Millisecond)
	defer evaluator.Close()

	if _, err := evaluator.Infer([]Observation{{1}}); err == nil {
		t.Fatalf("expected an error from a failing predictor")
	}
}

func TestModelEvaluator_InferAfterCloseReturnsErrClosed(t *testing.T) {
	predictor := &spyPredictor{}
	evaluator := NewModelEvaluator(predictor, 4, 32, time.Millisecond)
	if err := evaluator.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := evaluator.Infer([]Observation{{1}}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Infer after Close returned %v, want ErrClosed", err)
	}
}

func TestPool_RoundRobinsAcrossEvaluators(t *testing.T) {
	e1 := NewModelEvaluator(&spyPredictor{}, 4, 32, time.Millisecond)
	e2 := NewModelEvaluator(&spyPredictor{}, 4, 32, time.Millisecond)
	defer e1.Close()
	defer e2.Close()

	pool := NewPool(e1, e2)
	seen := map[*ModelEvaluator]int{}
	for i := 0; i < 10; i++ {
		seen[pool.Next()]++
	}
	if seen[e1] != 5 || seen[e2] != 5 {
		t.Fatalf("round-robin split=%v want 5/5 across two evaluators", seen)
	}
}

func TestRuntimeStats_SnapshotIsCumulative(t *testing.T) {
	var stats RuntimeStats
	stats.record(2, 5)
	stats.record(1, 1)

	batches, requests, observations := stats.Snapshot()
	if batches != 2 || requests != 3 || observations != 6 {
		t.Fatalf("Snapshot()=(%d,%d,%d) want=(2,3,6)", batches, requests, observations)
	}
}

func TestModelEvaluator_ConcurrentInferDoesNotRace(t *testing.T) {
	predictor := &spyPredictor{}
	evaluator := NewModelEvaluator(predictor, 64, 8, time.Millisecond)
	defer evaluator.Close()

	var wg sync.WaitGroup
	var failures atomic.Int64
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := evaluator.Infer([]Observation{{0}}); err != nil {
				failures.Add(1)
			}
		}()
	}
	wg.Wait()
	if failures.Load() != 0 {
		t.Fatalf("%d of 64 concurrent Infer calls failed", failures.Load())
	}
}
