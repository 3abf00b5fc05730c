package game

import (
	"fmt"
	"testing"
)

func agentOnlyBoard(maxSteps, gemsRequired int) string {
	return fmt.Sprintf("1|3|%d|%d|%d|%d|%d", maxSteps, gemsRequired, CellAgent, CellEmpty, CellExitClosed)
}

func TestNewGameState_ParsesBoardAndInitialState(t *testing.T) {
	s, err := NewGameState(Params{"game_board_str": agentOnlyBoard(10, 0)})
	if err != nil {
		t.Fatalf("NewGameState: %v", err)
	}
	if s.Board.Rows != 1 || s.Board.Cols != 3 {
		t.Fatalf("dims=%dx%d want=1x3", s.Board.Rows, s.Board.Cols)
	}
	if s.Local.StepsRemaining != 10 {
		t.Fatalf("StepsRemaining=%d want=10", s.Local.StepsRemaining)
	}
	if s.IsTerminal() {
		t.Fatalf("freshly parsed state should not be terminal")
	}
}

func TestGameState_CloneIsIndependentAndEqual(t *testing.T) {
	s, err := NewGameState(Params{"game_board_str": agentOnlyBoard(10, 0)})
	if err != nil {
		t.Fatalf("NewGameState: %v", err)
	}
	clone := s.Clone()
	if !s.Equal(clone) {
		t.Fatalf("freshly cloned state should equal its source")
	}

	clone.Local.StepsRemaining--
	if s.Local.StepsRemaining == clone.Local.StepsRemaining {
		t.Fatalf("mutating the clone's local state also mutated the source")
	}
	if s.Equal(clone) {
		t.Fatalf("states with different StepsRemaining should not be equal")
	}
}

func TestGameState_HashChangesWithBoardMutation(t *testing.T) {
	s, err := NewGameState(Params{"game_board_str": agentOnlyBoard(10, 0)})
	if err != nil {
		t.Fatalf("NewGameState: %v", err)
	}
	before := s.Hash()
	s.SetItemAt(1, CellDiamond, DirNoop)
	after := s.Hash()
	if before == after {
		t.Fatalf("Zobrist hash did not change after mutating a cell")
	}
}

func TestGameState_IsTerminalOnTimeoutAndDeath(t *testing.T) {
	s, err := NewGameState(Params{"game_board_str": agentOnlyBoard(1, 0)})
	if err != nil {
		t.Fatalf("NewGameState: %v", err)
	}
	s.Local.StepsRemaining = 0
	if !s.IsTerminal() {
		t.Fatalf("expected terminal once steps run out")
	}
	if s.IsSolution() {
		t.Fatalf("timing out is not a solution")
	}

	s2, err := NewGameState(Params{"game_board_str": agentOnlyBoard(1, 0)})
	if err != nil {
		t.Fatalf("NewGameState: %v", err)
	}
	s2.Board.AgentPos = AgentPosDie
	if !s2.IsTerminal() {
		t.Fatalf("expected terminal on agent death")
	}
}

func TestGameState_IsSolutionOnlyAtExitBeforeTimeout(t *testing.T) {
	s, err := NewGameState(Params{"game_board_str": agentOnlyBoard(10, 0)})
	if err != nil {
		t.Fatalf("NewGameState: %v", err)
	}
	if s.IsSolution() {
		t.Fatalf("agent not yet at the exit should not be a solution")
	}
	s.Board.AgentPos = AgentPosExit
	if !s.IsSolution() {
		t.Fatalf("agent at AgentPosExit before timeout should be a solution")
	}
}

func TestGameState_ObservationShapeAndOneHotEncoding(t *testing.T) {
	s, err := NewGameState(Params{"game_board_str": agentOnlyBoard(10, 0)})
	if err != nil {
		t.Fatalf("NewGameState: %v", err)
	}
	c, h, w := s.ObservationShape()
	if c != NumVisibleCellType || h != 1 || w != 3 {
		t.Fatalf("ObservationShape()=(%d,%d,%d) want=(%d,1,3)", c, h, w, NumVisibleCellType)
	}
	obs := s.GetObservation()
	if len(obs) != c*h*w {
		t.Fatalf("len(obs)=%d want=%d", len(obs), c*h*w)
	}
	cellCount := h * w
	var onesPerCell [3]int
	for ch := 0; ch < c; ch++ {
		for cell := 0; cell < cellCount; cell++ {
			if obs[ch*cellCount+cell] == 1 {
				onesPerCell[cell]++
			}
		}
	}
	for cell, count := range onesPerCell {
		if count != 1 {
			t.Fatalf("cell %d has %d one-hot channels set, want exactly 1", cell, count)
		}
	}
}
