// Package inference serves batched neural-network evaluation to many
// concurrent search workers. A Predictor wraps one model (ONNX Runtime or a
// deterministic reference oracle); a ModelEvaluator owns a single dedicated
// goroutine that drains a bounded queue and merges whatever requests arrive
// within a short window into one predictor call, in the spirit of the
// original single-inference-thread design fused with the teacher's
// ticker/size-threshold batch loop. A Pool round-robins work across several
// evaluators the way independent model instances were assigned to
// alternating search threads.
package inference

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/kepford/phsstar/queue"
)

// ErrClosed is returned by Infer once the evaluator has been closed.
var ErrClosed = errors.New("inference: evaluator closed")

// Observation is a flat, channel-major one-hot tensor: game.GameState's
// GetObservation output.
type Observation []float32

// Shape describes an observation tensor as (channels, rows, cols).
type Shape struct {
	C, H, W int
}

// Output is one predictor result: an action distribution and a scalar
// heuristic estimate of remaining cost/distance to a solution.
type Output struct {
	Policy    []float64
	Heuristic float64
}

// Predictor evaluates a batch of observations. Implementations must be safe
// to call from the single goroutine a ModelEvaluator dedicates to it; they
// need not be safe for concurrent calls from multiple goroutines.
type Predictor interface {
	Infer(inputs []Observation) ([]Output, error)
	Shape() Shape
	Close() error
}

// RuntimeStats accumulates counters describing how well requests are being
// batched, for driver-side diagnostics.
type RuntimeStats struct {
	batches      atomic.Int64
	observations atomic.Int64
	requests     atomic.Int64
}

func (r *RuntimeStats) record(requests, observations int) {
	r.batches.Add(1)
	r.requests.Add(int64(requests))
	r.observations.Add(int64(observations))
}

// Snapshot returns the running totals: batches run, caller requests folded
// into them, and total observations evaluated.
func (r *RuntimeStats) Snapshot() (batches, requests, observations int64) {
	return r.batches.Load(), r.requests.Load(), r.observations.Load()
}

type inferRequest struct {
	inputs []Observation
	respCh chan inferResponse
}

type inferResponse struct {
	outputs []Output
	err     error
}

// ModelEvaluator serializes access to one Predictor across many callers,
// opportunistically merging concurrent requests into a single underlying
// call when they arrive close together.
type ModelEvaluator struct {
	predictor    Predictor
	queue        *queue.Bounded[inferRequest]
	batchSize    int
	batchWindow  time.Duration
	stats        RuntimeStats
	done         chan struct{}
}

// NewModelEvaluator starts the evaluator's runner goroutine. queueCapacity
// bounds how many in-flight caller requests may be pending at once (the
// source sizes this at four times the number of search threads sharing the
// evaluator); batchSize and batchWindow cap how large a merged call can grow
// and how long the runner waits for more requests to arrive before running
// what it has.
func NewModelEvaluator(p Predictor, queueCapacity, batchSize int, batchWindow time.Duration) *ModelEvaluator {
	if batchSize <= 0 {
		batchSize = 32
	}
	if batchWindow <= 0 {
		batchWindow = time.Millisecond
	}
	e := &ModelEvaluator{
		predictor:   p,
		queue:       queue.NewBounded[inferRequest](queueCapacity),
		batchSize:   batchSize,
		batchWindow: batchWindow,
		done:        make(chan struct{}),
	}
	go e.run()
	return e
}

// Infer submits a batch of observations and blocks until the predictor has
// evaluated all of them.
func (e *ModelEvaluator) Infer(inputs []Observation) ([]Output, error) {
	respCh := make(chan inferResponse, 1)
	if !e.queue.Push(inferRequest{inputs: inputs, respCh: respCh}) {
		return nil, ErrClosed
	}
	resp := <-respCh
	return resp.outputs, resp.err
}

// Close stops accepting new requests, waits for the runner to drain, and
// closes the underlying predictor.
func (e *ModelEvaluator) Close() error {
	e.queue.BlockNewValues()
	<-e.done
	return e.predictor.Close()
}

// Stats returns the evaluator's running batching statistics.
func (e *ModelEvaluator) Stats() *RuntimeStats { return &e.stats }

func (e *ModelEvaluator) run() {
	defer close(e.done)
	for {
		first, ok := e.queue.Pop()
		if !ok {
			return
		}
		batch := []inferRequest{first}
		total := len(first.inputs)
		deadline := time.Now().Add(e.batchWindow)
		for total < e.batchSize && time.Now().Before(deadline) {
			req, ok := e.queue.TryPop()
			if !ok {
				time.Sleep(50 * time.Microsecond)
				continue
			}
			batch = append(batch, req)
			total += len(req.inputs)
		}
		e.runBatch(batch)
	}
}

func (e *ModelEvaluator) runBatch(batch []inferRequest) {
	counts := make([]int, len(batch))
	var flat []Observation
	for i, req := range batch {
		counts[i] = len(req.inputs)
		flat = append(flat, req.inputs...)
	}

	outputs, err := e.predictor.Infer(flat)
	e.stats.record(len(batch), len(flat))
	if err != nil {
		for _, req := range batch {
			req.respCh <- inferResponse{err: err}
		}
		return
	}

	offset := 0
	for i, req := range batch {
		n := counts[i]
		req.respCh <- inferResponse{outputs: outputs[offset : offset+n]}
		offset += n
	}
}

// Pool round-robins Infer calls across a fixed set of evaluators, matching
// how independent model instances were dealt out to alternating search
// threads.
type Pool struct {
	evaluators []*ModelEvaluator
	next       atomic.Uint64
}

// NewPool builds a pool over the given evaluators. At least one is required.
func NewPool(evaluators ...*ModelEvaluator) *Pool {
	return &Pool{evaluators: evaluators}
}

// Next returns the next evaluator in round-robin order.
func (p *Pool) Next() *ModelEvaluator {
	i := p.next.Add(1) - 1
	return p.evaluators[i%uint64(len(p.evaluators))]
}

// Close closes every evaluator in the pool, returning the first error
// encountered, if any.
func (p *Pool) Close() error {
	var first error
	for _, e := range p.evaluators {
		if err := e.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
