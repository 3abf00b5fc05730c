// Package rules implements the scan-based cellular update dispatch that
// advances a game.GameState by one action: agent movement/collection/
// pushing, gravity and rolling for stones/diamonds/nuts/bombs, magic walls,
// the wandering enemies (firefly/butterfly/orange), the growing blob, chain
// explosions, and keyed gates. game owns storage; rules owns transitions.
package rules

import (
	"errors"
	"fmt"

	"github.com/kepford/phsstar/game"
)

// ErrInvalidAction is returned by ApplyAction when the action is outside the
// agent's action space.
var ErrInvalidAction = errors.New("rules: action out of range")

// LegalActions returns the fixed agent action space: noop plus the four
// orthogonal moves.
func LegalActions() []game.Direction {
	return []game.Direction{game.DirNoop, game.DirUp, game.DirRight, game.DirDown, game.DirLeft}
}

// IsTerminal reports whether s is terminal (timeout, death, or exit).
func IsTerminal(s *game.GameState) bool { return s.IsTerminal() }

// IsSolution reports whether s is terminal with the agent successfully in
// the exit.
func IsSolution(s *game.GameState) bool { return s.IsSolution() }

// ApplyAction advances the state by one scan: it moves the agent, then
// dispatches every not-yet-updated cell to its update rule exactly once, in
// ascending index order, then closes out blob/magic-wall bookkeeping for the
// scan.
func ApplyAction(s *game.GameState, action game.Direction) error {
	if action < 0 || int(action) >= game.NumActions {
		return fmt.Errorf("%w: %d", ErrInvalidAction, action)
	}

	startScan(s)

	updateAgent(s, s.Board.AgentIdx, action)

	cellCount := s.Board.Rows * s.Board.Cols
	for i := 0; i < cellCount; i++ {
		if s.Board.HasUpdated[i] {
			continue
		}
		dispatch(s, i)
	}

	endScan(s)
	return nil
}

func dispatch(s *game.GameState, index int) {
	switch s.Board.Item(index) {
	case game.CellStone:
		updateStone(s, index)
	case game.CellStoneFalling:
		updateStoneFalling(s, index)
	case game.CellDiamond:
		updateDiamond(s, index)
	case game.CellDiamondFalling:
		updateDiamondFalling(s, index)
	case game.CellNut:
		updateNut(s, index)
	case game.CellNutFalling:
		updateNutFalling(s, index)
	case game.CellBomb:
		updateBomb(s, index)
	case game.CellBombFalling:
		updateBombFalling(s, index)
	case game.CellExitClosed:
		updateExit(s, index)
	case game.CellBlob:
		updateBlob(s, index)
	default:
		ct := s.Board.Item(index)
		if dir, ok := game.ButterflyDirection(ct); ok {
			updateButterfly(s, index, dir)
		} else if dir, ok := game.FireflyDirection(ct); ok {
			updateFirefly(s, index, dir)
		} else if dir, ok := game.OrangeDirection(ct); ok {
			updateOrange(s, index, dir)
		} else if isMagicWall(ct) {
			updateMagicWall(s, index)
		} else if isExplosion(ct) {
			updateExplosion(s, index)
		}
	}
}

func isMagicWall(ct game.CellType) bool {
	switch ct {
	case game.CellWallMagicOn, game.CellWallMagicDormant, game.CellWallMagicExpired:
		return true
	default:
		return false
	}
}

func isExplosion(ct game.CellType) bool {
	switch ct {
	case game.CellExplosionDeep, game.CellExplosionLong, game.CellExplosionShort:
		return true
	default:
		return false
	}
}

func startScan(s *game.GameState) {
	if s.Local.StepsRemaining > 0 {
		s.Local.StepsRemaining--
	}
	s.Local.CurrentReward = 0
	s.Local.BlobSize = 0
	s.Local.BlobEnclosed = true
	s.Local.RewardSignal = 0
	s.Board.ResetUpdated()
}

func endScan(s *game.GameState) {
	if s.Local.BlobSwap == game.CellNull {
		if s.Local.BlobEnclosed {
			s.Local.BlobSwap = game.CellDiamond
		}
		if s.Local.BlobSize > s.Shared.BlobMaxSize {
			s.Local.BlobSwap = game.CellStone
		}
	}
	if s.Local.MagicActive {
		if s.Local.MagicWallSteps > 0 {
			s.Local.MagicWallSteps--
		}
	}
	s.Local.MagicActive = s.Local.MagicActive && s.Local.MagicWallSteps > 0
}

// --- rolling / pushing / magic / explosions -------------------------------

func canRollLeft(s *game.GameState, index int) bool {
	return s.HasProperty(index, game.PropRounded, game.DirDown) &&
		s.IsType(index, game.CellEmpty, game.DirLeft) &&
		s.IsType(index, game.CellEmpty, game.DirDownLeft)
}

func canRollRight(s *game.GameState, index int) bool {
	return s.HasProperty(index, game.PropRounded, game.DirDown) &&
		s.IsType(index, game.CellEmpty, game.DirRight) &&
		s.IsType(index, game.CellEmpty, game.DirDownRight)
}

func rollLeft(s *game.GameState, index int, ct game.CellType) {
	s.SetItemAt(index, ct, game.DirNoop)
	s.MoveItem(index, game.DirLeft)
}

func rollRight(s *game.GameState, index int, ct game.CellType) {
	s.SetItemAt(index, ct, game.DirNoop)
	s.MoveItem(index, game.DirRight)
}

// push moves a pushable stone/nut/bomb one cell further if there is room,
// and moves the agent into the vacated cell.
func push(s *game.GameState, index int, dir game.Direction) {
	pushedIndex := s.IndexFromAction(index, dir)
	pushed := s.GetItemAt(pushedIndex, game.DirNoop).Cell
	falling, _ := game.ToFalling(pushed)

	if !s.IsType(pushedIndex, game.CellEmpty, dir) {
		return
	}
	landIndex := s.IndexFromAction(pushedIndex, dir)
	isEmpty := s.IsType(landIndex, game.CellEmpty, game.DirDown)

	s.MoveItem(pushedIndex, dir)
	if isEmpty {
		s.SetItemAt(landIndex, falling, game.DirNoop)
	} else {
		s.SetItemAt(landIndex, pushed, game.DirNoop)
	}

	s.MoveItem(index, dir)
	s.Board.AgentPos = pushedIndex
	s.Board.AgentIdx = pushedIndex
}

// moveThroughMagic passes an item down through an active magic wall,
// converting it (stone<->diamond) if the cell directly below the wall is
// empty.
func moveThroughMagic(s *game.GameState, index int, converted game.CellType) {
	if s.Local.MagicWallSteps <= 0 {
		return
	}
	s.Local.MagicActive = true
	wallIndex := s.IndexFromAction(index, game.DirDown)
	belowWallIndex := s.IndexFromAction(wallIndex, game.DirDown)
	if s.IsType(belowWallIndex, game.CellEmpty, game.DirNoop) {
		s.SetItemAt(index, game.CellEmpty, game.DirNoop)
		s.SetItemAt(belowWallIndex, converted, game.DirNoop)
		s.UpdateIDIndex(index, belowWallIndex)
	}
}

// explode consumes the cell reached from index via dir and everything
// chain-reachable from it: explodable neighbours explode in turn, consumable
// neighbours (dirt, empty, the agent) are simply cleared. All exploded cells
// pass through the same explosion-stage family regardless of what they were.
func explode(s *game.GameState, index int, dir game.Direction) {
	target := s.IndexFromAction(index, dir)
	if s.GetItemAt(target, game.DirNoop).Cell == game.CellAgent {
		s.Board.AgentPos = game.AgentPosDie
	}
	s.SetItemAt(target, game.CellExplosionDeep, game.DirNoop)
	s.RemoveIndexID(target)

	for d := game.Direction(0); d < game.NumDirections; d++ {
		if d == game.DirNoop || !s.InBounds(target, d) {
			continue
		}
		if s.HasProperty(target, game.PropCanExplode, d) {
			explode(s, target, d)
		} else if s.HasProperty(target, game.PropConsumable, d) {
			victim := s.GetItemAt(target, d).Cell
			s.SetItemAt(target, game.CellExplosionDeep, d)
			if victim == game.CellAgent {
				s.Board.AgentPos = game.AgentPosDie
			}
		}
	}
}

func openGate(s *game.GameState, closed game.CellType) {
	open, ok := game.GateOpenOf(closed)
	if !ok {
		return
	}
	for _, idx := range s.Board.FindAll(closed) {
		s.SetItemAt(idx, open, game.DirNoop)
	}
}

// --- stone / diamond / nut / bomb -----------------------------------------

func updateStone(s *game.GameState, index int) {
	if !s.Shared.Gravity {
		return
	}
	if s.IsType(index, game.CellEmpty, game.DirDown) {
		s.SetItemAt(index, game.CellStoneFalling, game.DirNoop)
		updateStoneFalling(s, index)
	} else if canRollLeft(s, index) {
		rollLeft(s, index, game.CellStoneFalling)
	} else if canRollRight(s, index) {
		rollRight(s, index, game.CellStoneFalling)
	}
}

func updateStoneFalling(s *game.GameState, index int) {
	switch {
	case s.IsType(index, game.CellEmpty, game.DirDown):
		s.MoveItem(index, game.DirDown)
	case s.HasProperty(index, game.PropCanExplode, game.DirDown):
		explode(s, index, game.DirDown)
	case s.IsType(index, game.CellWallMagicOn, game.DirDown) || s.IsType(index, game.CellWallMagicDormant, game.DirDown):
		converted, _ := game.MagicWallConversion(s.GetItemAt(index, game.DirNoop).Cell)
		moveThroughMagic(s, index, converted)
	case s.IsType(index, game.CellNut, game.DirDown):
		// Cracks the nut open to reveal a diamond.
		s.SetItemAt(index, game.CellDiamond, game.DirDown)
		s.UpdateIndexID(s.IndexFromAction(index, game.DirDown))
	case s.IsType(index, game.CellNut, game.DirDown):
		// Unreachable: identical to the branch above, so this never fires.
		explode(s, index, game.DirNoop)
	case canRollLeft(s, index):
		rollLeft(s, index, game.CellStoneFalling)
	case canRollRight(s, index):
		rollRight(s, index, game.CellStoneFalling)
	default:
		s.SetItemAt(index, game.CellStone, game.DirNoop)
	}
}

func updateDiamond(s *game.GameState, index int) {
	if !s.Shared.Gravity {
		return
	}
	if s.IsType(index, game.CellEmpty, game.DirDown) {
		s.SetItemAt(index, game.CellDiamondFalling, game.DirNoop)
		updateDiamondFalling(s, index)
	} else if canRollLeft(s, index) {
		rollLeft(s, index, game.CellDiamondFalling)
	} else if canRollRight(s, index) {
		rollRight(s, index, game.CellDiamondFalling)
	}
}

func updateDiamondFalling(s *game.GameState, index int) {
	switch {
	case s.IsType(index, game.CellEmpty, game.DirDown):
		s.MoveItem(index, game.DirDown)
	case s.HasProperty(index, game.PropCanExplode, game.DirDown) &&
		!s.IsType(index, game.CellBomb, game.DirDown) && !s.IsType(index, game.CellBombFalling, game.DirDown):
		// Falling diamonds trigger chain explosions, but never detonate bombs.
		explode(s, index, game.DirDown)
	case s.IsType(index, game.CellWallMagicOn, game.DirDown) || s.IsType(index, game.CellWallMagicDormant, game.DirDown):
		converted, _ := game.MagicWallConversion(s.GetItemAt(index, game.DirNoop).Cell)
		moveThroughMagic(s, index, converted)
	case canRollLeft(s, index):
		rollLeft(s, index, game.CellDiamondFalling)
	case canRollRight(s, index):
		rollRight(s, index, game.CellDiamondFalling)
	default:
		s.SetItemAt(index, game.CellDiamond, game.DirNoop)
	}
}

func updateNut(s *game.GameState, index int) {
	if !s.Shared.Gravity {
		return
	}
	if s.IsType(index, game.CellEmpty, game.DirDown) {
		s.SetItemAt(index, game.CellNutFalling, game.DirNoop)
		updateNutFalling(s, index)
	} else if canRollLeft(s, index) {
		rollLeft(s, index, game.CellNutFalling)
	} else if canRollRight(s, index) {
		rollRight(s, index, game.CellNutFalling)
	}
}

func updateNutFalling(s *game.GameState, index int) {
	switch {
	case s.IsType(index, game.CellEmpty, game.DirDown):
		s.MoveItem(index, game.DirDown)
	case canRollLeft(s, index):
		rollLeft(s, index, game.CellNutFalling)
	case canRollRight(s, index):
		rollRight(s, index, game.CellNutFalling)
	default:
		s.SetItemAt(index, game.CellNut, game.DirNoop)
	}
}

func updateBomb(s *game.GameState, index int) {
	if !s.Shared.Gravity {
		return
	}
	if s.IsType(index, game.CellEmpty, game.DirDown) {
		s.SetItemAt(index, game.CellBombFalling, game.DirNoop)
		updateBombFalling(s, index)
	} else if canRollLeft(s, index) {
		rollLeft(s, index, game.CellBomb)
	} else if canRollRight(s, index) {
		rollRight(s, index, game.CellBomb)
	}
}

func updateBombFalling(s *game.GameState, index int) {
	switch {
	case s.IsType(index, game.CellEmpty, game.DirDown):
		s.MoveItem(index, game.DirDown)
	case canRollLeft(s, index):
		rollLeft(s, index, game.CellBombFalling)
	case canRollRight(s, index):
		rollRight(s, index, game.CellBombFalling)
	default:
		// Stopped falling: detonates in place.
		explode(s, index, game.DirNoop)
	}
}

func updateExit(s *game.GameState, index int) {
	if int(s.Local.GemsCollected) >= s.Board.GemsRequired {
		s.SetItemAt(index, game.CellExitOpen, game.DirNoop)
	}
}

// --- agent -----------------------------------------------------------------

func isActionHorizontal(dir game.Direction) bool { return dir == game.DirLeft || dir == game.DirRight }

func updateAgent(s *game.GameState, index int, action game.Direction) {
	if !s.InBounds(index, action) {
		return
	}

	switch {
	case s.IsType(index, game.CellEmpty, action) || s.IsType(index, game.CellDirt, action):
		s.MoveItem(index, action)
		moved := s.IndexFromAction(index, action)
		s.Board.AgentPos, s.Board.AgentIdx = moved, moved

	case s.IsType(index, game.CellDiamond, action) || s.IsType(index, game.CellDiamondFalling, action):
		s.Local.GemsCollected++
		s.Local.CurrentReward += uint8(s.GetItemAt(index, action).Points)
		s.Local.RewardSignal |= game.RewardCollectDiamond
		s.MoveItem(index, action)
		moved := s.IndexFromAction(index, action)
		s.RemoveIndexID(moved)
		s.Board.AgentPos, s.Board.AgentIdx = moved, moved

	case isActionHorizontal(action) && s.HasProperty(index, game.PropPushable, action):
		push(s, index, action)

	case game.IsKey(s.GetItemAt(index, action).Cell):
		key := s.GetItemAt(index, action).Cell
		if gate, ok := game.KeyToGate(key); ok {
			openGate(s, gate)
		}
		s.MoveItem(index, action)
		moved := s.IndexFromAction(index, action)
		s.Board.AgentPos, s.Board.AgentIdx = moved, moved
		s.Local.RewardSignal |= game.RewardCollectKey | game.KeyToSignal(key)

	case game.IsOpenGate(s.GetItemAt(index, action).Cell):
		gateIndex := s.IndexFromAction(index, action)
		if s.HasProperty(gateIndex, game.PropTraversable, action) {
			if s.IsType(gateIndex, game.CellDiamond, action) || s.IsType(gateIndex, game.CellDiamondFalling, action) {
				s.Local.GemsCollected++
				s.Local.CurrentReward += uint8(s.GetItemAt(gateIndex, action).Points)
				s.Local.RewardSignal |= game.RewardCollectDiamond
			} else if game.IsKey(s.GetItemAt(gateIndex, action).Cell) {
				key := s.GetItemAt(gateIndex, action).Cell
				if gate, ok := game.KeyToGate(key); ok {
					openGate(s, gate)
				}
				s.Local.RewardSignal |= game.RewardCollectKey | game.KeyToSignal(key)
			}
			gateType := s.GetItemAt(gateIndex, game.DirNoop).Cell
			s.SetItemAt(gateIndex, game.CellAgent, action)
			s.SetItemAt(index, game.CellEmpty, game.DirNoop)
			moved := s.IndexFromAction(gateIndex, action)
			s.Board.AgentPos, s.Board.AgentIdx = moved, moved
			s.Local.RewardSignal |= game.RewardWalkThroughGate | game.GateToSignal(gateType)
		}

	case s.IsType(index, game.CellExitOpen, action):
		s.MoveItem(index, action)
		s.SetItemAt(index, game.CellAgentInExit, action)
		moved := s.IndexFromAction(index, action)
		s.Board.AgentPos, s.Board.AgentIdx = game.AgentPosExit, moved
		s.Local.RewardSignal |= game.RewardWalkThroughExit
		s.Local.CurrentReward += uint8(s.Local.StepsRemaining * 100 / s.Board.MaxSteps)
	}
}

// --- wandering enemies -------------------------------------------------

func updateFirefly(s *game.GameState, index int, action game.Direction) {
	newDir := game.RotateLeft[action]
	switch {
	case s.IsTypeAdjacent(index, game.CellAgent) || s.IsTypeAdjacent(index, game.CellBlob):
		explode(s, index, game.DirNoop)
	case s.IsType(index, game.CellEmpty, newDir):
		s.SetItemAt(index, game.DirectionFirefly[newDir], game.DirNoop)
		s.MoveItem(index, newDir)
	case s.IsType(index, game.CellEmpty, action):
		s.SetItemAt(index, game.DirectionFirefly[action], game.DirNoop)
		s.MoveItem(index, action)
	default:
		s.SetItemAt(index, game.DirectionFirefly[game.RotateRight[action]], game.DirNoop)
	}
}

func updateButterfly(s *game.GameState, index int, action game.Direction) {
	newDir := game.RotateRight[action]
	switch {
	case s.IsTypeAdjacent(index, game.CellAgent) || s.IsTypeAdjacent(index, game.CellBlob):
		explode(s, index, game.DirNoop)
	case s.IsType(index, game.CellEmpty, newDir):
		s.SetItemAt(index, game.DirectionButterfly[newDir], game.DirNoop)
		s.MoveItem(index, newDir)
	case s.IsType(index, game.CellEmpty, action):
		s.SetItemAt(index, game.DirectionButterfly[action], game.DirNoop)
		s.MoveItem(index, action)
	default:
		s.SetItemAt(index, game.DirectionButterfly[game.RotateLeft[action]], game.DirNoop)
	}
}

func updateOrange(s *game.GameState, index int, action game.Direction) {
	switch {
	case s.IsType(index, game.CellEmpty, action):
		s.MoveItem(index, action)
	case s.IsTypeAdjacent(index, game.CellAgent):
		explode(s, index, game.DirNoop)
	default:
		var open []game.Direction
		for d := 0; d < game.NumActions; d++ {
			dir := game.Direction(d)
			if dir == game.DirNoop || !s.InBounds(index, dir) {
				continue
			}
			if s.IsType(index, game.CellEmpty, dir) {
				open = append(open, dir)
			}
		}
		if len(open) > 0 {
			newDir := open[s.NextRandom()%uint64(len(open))]
			s.SetItemAt(index, game.DirectionOrange[newDir], game.DirNoop)
		}
	}
}

// --- magic wall / blob / explosion decay -----------------------------------

func updateMagicWall(s *game.GameState, index int) {
	switch {
	case s.Local.MagicActive:
		s.SetItemAt(index, game.CellWallMagicOn, game.DirNoop)
	case s.Local.MagicWallSteps > 0:
		s.SetItemAt(index, game.CellWallMagicDormant, game.DirNoop)
	default:
		s.SetItemAt(index, game.CellWallMagicExpired, game.DirNoop)
	}
}

func updateBlob(s *game.GameState, index int) {
	if s.Local.BlobSwap != game.CellNull {
		s.SetItemAt(index, s.Local.BlobSwap, game.DirNoop)
		s.AddIndexID(index)
		return
	}
	s.Local.BlobSize++
	if s.IsTypeAdjacent(index, game.CellEmpty) || s.IsTypeAdjacent(index, game.CellDirt) {
		s.Local.BlobEnclosed = false
	}

	willGrow := s.NextRandom()%256 < uint64(s.Shared.BlobChance)
	growDir := game.Direction(s.NextRandom() % uint64(game.NumActions))
	if willGrow && (s.IsType(index, game.CellEmpty, growDir) || s.IsType(index, game.CellDirt, growDir)) {
		s.SetItemAt(index, game.CellBlob, growDir)
		s.RemoveIndexID(s.IndexFromAction(index, growDir))
	}
}

func updateExplosion(s *game.GameState, index int) {
	s.SetItemAt(index, game.ExplosionNext(s.Board.Item(index)), game.DirNoop)
	s.AddIndexID(index)
}
