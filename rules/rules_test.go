package rules

import (
	"fmt"
	"strings"
	"testing"

	"github.com/kepford/phsstar/game"
)

func dumpState(state *game.GameState) string {
	if state == nil {
		return "<nil state>"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Rows=%d Cols=%d AgentPos=%d Steps=%d Gems=%d Reward=%d\n",
		state.Board.Rows, state.Board.Cols, state.Board.AgentPos,
		state.Local.StepsRemaining, state.Local.GemsCollected, state.Local.RewardSignal)

	rows, cols := state.Board.Rows, state.Board.Cols
	if rows > 0 && cols > 0 && rows <= 20 && cols <= 20 {
		b.WriteString("Board:\n")
		for r := 0; r < rows; r++ {
			for c := 0; c < cols; c++ {
				idx := state.Board.PositionToIndex(r, c)
				fmt.Fprintf(&b, "%3d", int(state.Board.Item(idx)))
			}
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func logApply(t *testing.T, name string, before *game.GameState, action game.Direction, after *game.GameState) {
	t.Helper()
	t.Logf("=== %s ===\nBefore:\n%sAction: %d\nAfter:\n%s", name, dumpState(before), action, dumpState(after))
}

func newState(t *testing.T, boardStr string) *game.GameState {
	t.Helper()
	s, err := game.NewGameState(game.Params{"game_board_str": boardStr, "gravity": true})
	if err != nil {
		t.Fatalf("NewGameState: %v", err)
	}
	return s
}

// board3x3 places an agent at (2,0), a diamond at (2,2), empty elsewhere.
// Both sit on the bottom row so the diamond rests instead of falling.
func board3x3AgentDiamond() string {
	return "3|3|10|1|" +
		fmt.Sprintf("%d|%d|%d|", game.CellEmpty, game.CellEmpty, game.CellEmpty) +
		fmt.Sprintf("%d|%d|%d|", game.CellEmpty, game.CellEmpty, game.CellEmpty) +
		fmt.Sprintf("%d|%d|%d", game.CellAgent, game.CellEmpty, game.CellDiamond)
}

func TestApplyAction_CollectDiamond(t *testing.T) {
	before := newState(t, board3x3AgentDiamond())
	after := before.Clone()

	if err := ApplyAction(after, game.DirRight); err != nil {
		t.Fatalf("ApplyAction: %v", err)
	}
	if err := ApplyAction(after, game.DirRight); err != nil {
		t.Fatalf("ApplyAction: %v", err)
	}
	logApply(t, "collect diamond", before, game.DirRight, after)

	if after.Local.GemsCollected != 1 {
		t.Fatalf("gems collected=%d want=1", after.Local.GemsCollected)
	}
	if after.Local.RewardSignal&game.RewardCollectDiamond == 0 {
		t.Fatalf("reward signal missing RewardCollectDiamond: %#x", after.Local.RewardSignal)
	}
	if IsSolution(after) {
		t.Fatalf("board has no exit; should not be a solution")
	}
}

func TestApplyAction_StoneFallsWhenAgentStepsAside(t *testing.T) {
	// 3x3: stone at (0,0) resting on the agent at (1,0). Once the agent
	// steps right, the stone turns into its falling variant and drops into
	// the vacated cell in the same scan. Row-major: index = row*cols+col.
	boardStr := "3|3|20|0|" +
		fmt.Sprintf("%d|%d|%d|", game.CellStone, game.CellEmpty, game.CellEmpty) +
		fmt.Sprintf("%d|%d|%d|", game.CellAgent, game.CellEmpty, game.CellEmpty) +
		fmt.Sprintf("%d|%d|%d", game.CellEmpty, game.CellEmpty, game.CellEmpty)

	before := newState(t, boardStr)
	after := before.Clone()

	if err := ApplyAction(after, game.DirRight); err != nil {
		t.Fatalf("ApplyAction: %v", err)
	}
	logApply(t, "agent steps aside, stone begins to fall", before, game.DirRight, after)

	idxOldAgent := after.Board.PositionToIndex(1, 0)
	falling := after.GetIndexItem(idxOldAgent)
	if ct, _ := game.ToFalling(game.CellStone); falling != ct {
		t.Fatalf("expected falling stone at (1,0), got %d", falling)
	}
}

func TestLegalActions_FixedFiveActionSet(t *testing.T) {
	got := LegalActions()
	want := []game.Direction{game.DirNoop, game.DirUp, game.DirRight, game.DirDown, game.DirLeft}
	if len(got) != len(want) {
		t.Fatalf("legal actions len=%d want=%d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("legal actions[%d]=%d want=%d", i, got[i], want[i])
		}
	}
}

func TestApplyAction_InvalidActionRejected(t *testing.T) {
	s := newState(t, board3x3AgentDiamond())
	if err := ApplyAction(s, game.Direction(99)); err == nil {
		t.Fatalf("expected error for out-of-range action")
	}
}

func TestIsTerminal_TimeoutAndAgentDeath(t *testing.T) {
	s := newState(t, board3x3AgentDiamond())
	s.Local.StepsRemaining = 0
	if !IsTerminal(s) {
		t.Fatalf("expected terminal on timeout")
	}

	s2 := newState(t, board3x3AgentDiamond())
	s2.Board.AgentPos = game.AgentPosDie
	if !IsTerminal(s2) {
		t.Fatalf("expected terminal on agent death")
	}
	if IsSolution(s2) {
		t.Fatalf("agent death is not a solution")
	}
}
