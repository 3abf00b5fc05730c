// Package search implements PHS* (policy-and-heuristic search), a best-first
// search over game.GameState guided by a learned policy and heuristic. Nodes
// and states are block-allocated in fixed-size arenas rather than allocated
// one at a time, and visited states are deduplicated by Zobrist hash plus
// full equality, mirroring the arena/hash-set shape of the search this
// package generalizes.
package search

import (
	"container/heap"
	"math"

	"github.com/kepford/phsstar/game"
	"github.com/kepford/phsstar/inference"
	"github.com/kepford/phsstar/rules"
)

// allocateIncrement is the arena block size states and nodes grow by.
const allocateIncrement = 2000

// BudgetNodes bounds how many nodes a single search may expand before it
// gives up and reports failure.
const BudgetNodes = 2000

// childBatchSize is how many pending children accumulate before a batch is
// flushed to the evaluator, independent of whether the open set is empty.
const childBatchSize = 32

// Node is one entry in the search tree. Nodes are owned by a nodeArena and
// never freed individually.
type Node struct {
	parent          *Node
	state           *game.GameState
	p               float64
	g               float64
	levinCost       float64
	h               float64
	action          game.Direction
	actionLogPolicy []float64
}

// Action returns the direction taken to reach this node from its parent.
func (n *Node) Action() game.Direction { return n.action }

// Parent returns the node's predecessor, or nil for the root.
func (n *Node) Parent() *Node { return n.parent }

// State returns the game state this node represents.
func (n *Node) State() *game.GameState { return n.state }

// stateArena deduplicates visited states by Zobrist hash plus full equality
// and owns their backing memory in fixed-size blocks.
type stateArena struct {
	blocks [][]*game.GameState
	byHash map[uint64][]*game.GameState
}

func newStateArena() *stateArena {
	return &stateArena{byHash: make(map[uint64][]*game.GameState)}
}

// intern returns the arena's canonical copy of state, adding it if this is
// the first time an equal state has been seen.
func (a *stateArena) intern(state *game.GameState) *game.GameState {
	h := state.Hash()
	for _, existing := range a.byHash[h] {
		if existing.Equal(state) {
			return existing
		}
	}
	if len(a.blocks) == 0 || len(a.blocks[len(a.blocks)-1]) >= allocateIncrement {
		a.blocks = append(a.blocks, make([]*game.GameState, 0, allocateIncrement))
	}
	last := &a.blocks[len(a.blocks)-1]
	*last = append(*last, state)
	a.byHash[h] = append(a.byHash[h], state)
	return state
}

// nodeArena owns Node memory in fixed-size blocks so search allocates in
// bulk rather than one node at a time.
type nodeArena struct {
	blocks [][]Node
}

func newNodeArena() *nodeArena {
	return &nodeArena{}
}

func (a *nodeArena) alloc() *Node {
	if len(a.blocks) == 0 || len(a.blocks[len(a.blocks)-1]) >= allocateIncrement {
		a.blocks = append(a.blocks, make([]Node, 0, allocateIncrement))
	}
	last := &a.blocks[len(a.blocks)-1]
	*last = append(*last, Node{})
	return &(*last)[len(*last)-1]
}

// openQueue is a container/heap-backed min-priority-queue of nodes ordered
// by levinCost, breaking ties toward the smaller g. No suitable third-party
// priority queue appears anywhere in the available library set, and
// container/heap is the standard idiom for this shape in Go.
type openQueue []*Node

func (q openQueue) Len() int { return len(q) }
func (q openQueue) Less(i, j int) bool {
	if q[i].levinCost != q[j].levinCost {
		return q[i].levinCost < q[j].levinCost
	}
	return q[i].g < q[j].g
}
func (q openQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *openQueue) Push(x any)        { *q = append(*q, x.(*Node)) }
func (q *openQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// logPolicyNoise takes the elementwise log of policy, optionally mixed with
// uniform noise weighted by epsilon.
func logPolicyNoise(policy []float64, epsilon float64) []float64 {
	out := make([]float64, len(policy))
	noise := 1.0 / float64(len(policy))
	for i, p := range policy {
		out[i] = math.Log((1.0-epsilon)*p + epsilon*noise + 1e-8)
	}
	return out
}

// phsCost is the PHS* priority: log(h+g+eps) - p*(1+h/g), with h clamped to
// be non-negative. Callers must not evaluate this on a root node (g=0).
func phsCost(node *Node, predictedH float64) float64 {
	h := predictedH
	if h < 0 {
		h = 0
	}
	return math.Log(h+node.g+1e-8) - node.p*(1.0+h/node.g)
}

// Trace records what a Search call did, for observability and offline
// analysis of search behavior.
type Trace struct {
	Expanded int
	Solved   bool
	Actions  []game.Direction
}

// Search runs PHS* from start using evaluator for policy/heuristic
// predictions, returning whether a solution was found, the path of actions
// to reach it (nil if not solved), and a trace of the run.
func Search(start *game.GameState, evaluator *inference.ModelEvaluator) (bool, []game.Direction, *Trace, error) {
	trace := &Trace{}

	states := newStateArena()
	nodes := newNodeArena()

	rootState := start.Clone()
	rootPreds, err := evaluator.Infer([]inference.Observation{rootState.GetObservation()})
	if err != nil {
		return false, nil, trace, err
	}

	root := nodes.alloc()
	root.state = states.intern(rootState)
	root.p = 0
	root.g = 0
	root.action = -1
	root.actionLogPolicy = logPolicyNoise(rootPreds[0].Policy, 0)

	open := &openQueue{root}
	heap.Init(open)
	closed := make(map[*game.GameState]bool)

	var childrenToPredict []*Node
	var childObservations []inference.Observation

	for open.Len() > 0 {
		node := heap.Pop(open).(*Node)
		closed[node.state] = true
		trace.Expanded++

		if node.state.IsSolution() {
			trace.Solved = true
			trace.Actions = path(node)
			return true, trace.Actions, trace, nil
		}

		if trace.Expanded >= BudgetNodes {
			break
		}

		actions := rules.LegalActions()
		for i, action := range actions {
			childState := node.state.Clone()
			if err := rules.ApplyAction(childState, action); err != nil {
				return false, nil, trace, err
			}

			if childState.IsTerminal() && !childState.IsSolution() {
				continue
			}

			interned := states.intern(childState)
			child := nodes.alloc()
			child.parent = node
			child.state = interned
			child.p = node.p + node.actionLogPolicy[i]
			child.g = node.g + 1
			child.action = action

			childrenToPredict = append(childrenToPredict, child)
			childObservations = append(childObservations, interned.GetObservation())
		}

		if len(childrenToPredict) >= childBatchSize || open.Len() == 0 {
			if len(childrenToPredict) > 0 {
				predictions, err := evaluator.Infer(childObservations)
				if err != nil {
					return false, nil, trace, err
				}
				for i, child := range childrenToPredict {
					if closed[child.state] {
						continue
					}
					pred := predictions[i]
					child.actionLogPolicy = logPolicyNoise(pred.Policy, 0)
					child.h = pred.Heuristic
					child.levinCost = phsCost(child, pred.Heuristic)
					heap.Push(open, child)
				}
			}
			childrenToPredict = childrenToPredict[:0]
			childObservations = childObservations[:0]
		}
	}

	return false, nil, trace, nil
}

// path walks parent links from node back to the root, returning the action
// sequence that reaches it in forward order.
func path(node *Node) []game.Direction {
	var actions []game.Direction
	for n := node; n != nil && n.parent != nil; n = n.parent {
		actions = append(actions, n.action)
	}
	for i, j := 0, len(actions)-1; i < j; i, j = i+1, j-1 {
		actions[i], actions[j] = actions[j], actions[i]
	}
	return actions
}
