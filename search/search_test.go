package search

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/kepford/phsstar/game"
	"github.com/kepford/phsstar/inference"
	"github.com/kepford/phsstar/inference/refpredictor"
)

func newEvaluator(t *testing.T, shape inference.Shape) *inference.ModelEvaluator {
	t.Helper()
	predictor := refpredictor.New(shape)
	evaluator := inference.NewModelEvaluator(predictor, 16, 32, time.Millisecond)
	t.Cleanup(func() { _ = evaluator.Close() })
	return evaluator
}

func TestSearch_ShortCorridorToOpenExit(t *testing.T) {
	boardStr := fmt.Sprintf("1|3|10|0|%d|%d|%d", game.CellAgent, game.CellEmpty, game.CellExitClosed)
	state, err := game.NewGameState(game.Params{"game_board_str": boardStr})
	if err != nil {
		t.Fatalf("NewGameState: %v", err)
	}

	c, h, w := state.ObservationShape()
	evaluator := newEvaluator(t, inference.Shape{C: c, H: h, W: w})

	solved, actions, trace, err := Search(state, evaluator)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !solved {
		t.Fatalf("expected a solution for a two-step open corridor, trace=%+v", trace)
	}
	if len(actions) == 0 {
		t.Fatalf("solved but returned no action path")
	}
	t.Logf("solved in %d expansions with actions %v", trace.Expanded, actions)
}

func TestSearch_UnsolvableWithinBudgetReturnsFalse(t *testing.T) {
	// No exit anywhere on the board: is_solution() can never be true, so the
	// search must run out of new states (or hit its node budget) and report
	// failure rather than loop forever.
	boardStr := fmt.Sprintf("1|2|-1|0|%d|%d", game.CellAgent, game.CellEmpty)
	state, err := game.NewGameState(game.Params{"game_board_str": boardStr})
	if err != nil {
		t.Fatalf("NewGameState: %v", err)
	}

	c, h, w := state.ObservationShape()
	evaluator := newEvaluator(t, inference.Shape{C: c, H: h, W: w})

	solved, _, trace, err := Search(state, evaluator)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if solved {
		t.Fatalf("board has no exit; should never report solved")
	}
	if trace.Expanded == 0 {
		t.Fatalf("expected at least one expansion")
	}
}

func TestPhsCost_PrefersLowerCost(t *testing.T) {
	cheap := &Node{p: -0.1, g: 1}
	expensive := &Node{p: -2.0, g: 1}

	cheapCost := phsCost(cheap, 0)
	expensiveCost := phsCost(expensive, 0)
	if cheapCost >= expensiveCost {
		t.Fatalf("expected higher log-policy node to have lower cost: cheap=%v expensive=%v", cheapCost, expensiveCost)
	}
}

func TestLogPolicyNoise_MatchesPlainLogAtZeroEpsilon(t *testing.T) {
	policy := []float64{0.25, 0.25, 0.25, 0.25}
	got := logPolicyNoise(policy, 0)
	if len(got) != len(policy) {
		t.Fatalf("len(got)=%d want=%d", len(got), len(policy))
	}
	for i, v := range got {
		if v > 0 {
			t.Fatalf("log of a probability should be <= 0, got %v at %d", v, i)
		}
		if want := math.Log(policy[i]); math.Abs(v-want) > 1e-6 {
			t.Fatalf("got[%d]=%v want=%v (plain log)", i, v, want)
		}
	}
}
