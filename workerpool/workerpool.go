// Package workerpool runs a function over a slice of jobs on a fixed number
// of goroutines, restoring the caller's original job order in the result
// regardless of which worker finished which job first. Jobs are tagged with
// their position on the way in, worker goroutines drain the input queue and
// store tagged results in a mutex-guarded map, and a final pass over the
// tags in order reassembles the answer.
package workerpool

import (
	"context"
	"sync"

	"github.com/kepford/phsstar/queue"
)

type job[InputT any] struct {
	input InputT
	id    int
}

// Run executes fn over every element of inputs using numWorkers goroutines
// and returns the results in the same order as inputs. It blocks until every
// job has been processed or ctx is cancelled, in which case results for
// jobs that never ran are the zero value of OutputT.
func Run[InputT, OutputT any](ctx context.Context, numWorkers int, inputs []InputT, fn func(InputT) OutputT) []OutputT {
	if numWorkers <= 0 {
		numWorkers = 1
	}

	inputQueue := queue.NewBounded[job[InputT]](len(inputs) + 1)
	for i, in := range inputs {
		inputQueue.Push(job[InputT]{input: in, id: i})
	}
	inputQueue.BlockNewValues()

	var mu sync.Mutex
	results := make(map[int]OutputT, len(inputs))

	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				default:
				}
				j, ok := inputQueue.Pop()
				if !ok {
					return
				}
				out := fn(j.input)
				mu.Lock()
				results[j.id] = out
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	ordered := make([]OutputT, len(inputs))
	for i := range inputs {
		ordered[i] = results[i]
	}
	return ordered
}
