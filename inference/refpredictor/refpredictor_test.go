package refpredictor

import (
	"fmt"
	"testing"

	"github.com/kepford/phsstar/game"
	"github.com/kepford/phsstar/inference"
)

func TestInfer_CountsUncollectedDiamonds(t *testing.T) {
	boardStr := fmt.Sprintf("1|3|10|1|0|%d|0", game.CellDiamond)
	state, err := game.NewGameState(game.Params{"game_board_str": boardStr})
	if err != nil {
		t.Fatalf("NewGameState: %v", err)
	}

	c, h, w := state.ObservationShape()
	p := New(inference.Shape{C: c, H: h, W: w})

	outputs, err := p.Infer([]inference.Observation{state.GetObservation()})
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	if len(outputs) != 1 {
		t.Fatalf("len(outputs)=%d want=1", len(outputs))
	}
	if outputs[0].Heuristic != 1 {
		t.Fatalf("Heuristic=%v want=1 (one uncollected diamond)", outputs[0].Heuristic)
	}
	if len(outputs[0].Policy) != game.NumActions {
		t.Fatalf("len(Policy)=%d want=%d", len(outputs[0].Policy), game.NumActions)
	}
	var sum float64
	for _, p := range outputs[0].Policy {
		sum += p
	}
	if sum < 0.999 || sum > 1.001 {
		t.Fatalf("policy does not sum to 1: %v", sum)
	}
}
