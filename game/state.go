package game

import "fmt"

// SharedStateInfo is the immutable configuration shared by every GameState
// cloned from the same root: parameters, the Zobrist table and the in-bounds
// mask. It is built once at construction and never mutated afterward, so
// clones can share the pointer instead of deep-copying it.
type SharedStateInfo struct {
	Params            Params
	ObsShowIDs        bool
	MagicWallSteps    uint16
	BlobChance        uint8
	BlobMaxSize       uint16
	BlobMaxPercentage float64
	RNGSeed           int64
	GameBoardStr      string
	Gravity           bool

	Zrbht           []uint64
	InBoundsBoard   []bool
	BoardToInBounds []int
}

// LocalState is the mutable, per-state data that must be cloned whenever a
// GameState is cloned for search expansion.
type LocalState struct {
	MagicWallSteps uint16
	BlobSize       uint16
	BlobSwap       CellType // CellNull when unset
	GemsCollected  uint8
	CurrentReward  uint8
	RewardSignal   uint64
	MagicActive    bool
	BlobEnclosed   bool
	StepsRemaining int
	RandomState    uint64
	IDState        uint16
	IndexIDMap     map[int]uint16
	IDIndexMap     map[uint16]int
}

// Equal compares the subset of LocalState fields that define game-state
// identity for search deduplication, including the step counter (a state
// closer to its timeout is a different state). Reward bookkeeping
// (CurrentReward, RewardSignal), BlobSwap and the rng/id-issuing state are
// not compared.
func (l *LocalState) Equal(o *LocalState) bool {
	return l.MagicWallSteps == o.MagicWallSteps &&
		l.BlobSize == o.BlobSize &&
		l.GemsCollected == o.GemsCollected &&
		l.MagicActive == o.MagicActive &&
		l.BlobEnclosed == o.BlobEnclosed &&
		l.StepsRemaining == o.StepsRemaining
}

func newLocalState() LocalState {
	return LocalState{
		BlobSwap:       CellNull,
		BlobEnclosed:   true,
		StepsRemaining: -1,
		RandomState:    1,
		IndexIDMap:     make(map[int]uint16),
		IDIndexMap:     make(map[uint16]int),
	}
}

func (l *LocalState) clone() LocalState {
	out := *l
	out.IndexIDMap = make(map[int]uint16, len(l.IndexIDMap))
	for k, v := range l.IndexIDMap {
		out.IndexIDMap[k] = v
	}
	out.IDIndexMap = make(map[uint16]int, len(l.IDIndexMap))
	for k, v := range l.IDIndexMap {
		out.IDIndexMap[k] = v
	}
	return out
}

// GameState is the full state of one board: shared configuration, the board
// grid and the mutable local bookkeeping. It owns Board and LocalState by
// value; Shared is borrowed and never copied.
type GameState struct {
	Shared *SharedStateInfo
	Board  Board
	Local  LocalState
}

// NewGameState builds a state from parameters and resets it, parsing
// game_board_str and seeding the Zobrist table.
func NewGameState(params Params) (*GameState, error) {
	p := params.withDefaults()
	shared := &SharedStateInfo{
		Params:            p,
		ObsShowIDs:        p.boolAt("obs_show_ids"),
		MagicWallSteps:    uint16(p.intAt("magic_wall_steps")),
		BlobChance:        uint8(p.intAt("blob_chance")),
		BlobMaxPercentage: p.floatAt("blob_max_percentage"),
		RNGSeed:           int64(p.intAt("rng_seed")),
		GameBoardStr:      p.stringAt("game_board_str"),
		Gravity:           p.boolAt("gravity"),
	}
	s := &GameState{Shared: shared}
	if err := s.Reset(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reset re-parses the board string and rebuilds all derived state: the
// Zobrist table, the in-bounds mask, and the trackable-id maps.
func (s *GameState) Reset() error {
	board, err := ParseBoardString(s.Shared.GameBoardStr)
	if err != nil {
		return err
	}
	s.Board = board
	s.Local = newLocalState()
	s.Local.RandomState = splitmix64(uint64(s.Shared.RNGSeed))
	s.Local.StepsRemaining = board.MaxSteps

	// LocalState.MagicWallSteps must start at the configured countdown, not
	// zero, or a magic wall would expire before ever conducting anything.
	s.Local.MagicWallSteps = s.Shared.MagicWallSteps

	// blob_max_size is derived from the board area and the configured
	// percentage; blob_chance keeps the value the caller configured.
	cellCount := board.Rows * board.Cols
	s.Shared.BlobMaxSize = uint16(float64(cellCount) * s.Shared.BlobMaxPercentage)

	for i := 0; i < cellCount; i++ {
		s.AddIndexID(i)
	}

	gen := newMT19937(uint32(s.Shared.RNGSeed))
	s.Shared.Zrbht = make([]uint64, NumHiddenCellType*cellCount)
	for channel := 0; channel < NumHiddenCellType; channel++ {
		for i := 0; i < cellCount; i++ {
			s.Shared.Zrbht[channel*cellCount+i] = gen.next64()
		}
	}

	s.Board.ZorbHash = 0
	for i := 0; i < cellCount; i++ {
		s.Board.ZorbHash ^= s.Shared.Zrbht[int(s.Board.Item(i))*cellCount+i]
	}

	paddedRows, paddedCols := board.Rows+2, board.Cols+2
	s.Shared.InBoundsBoard = make([]bool, paddedRows*paddedCols)
	for i := range s.Shared.InBoundsBoard {
		s.Shared.InBoundsBoard[i] = true
	}
	for c := 0; c < paddedCols; c++ {
		s.Shared.InBoundsBoard[c] = false
		s.Shared.InBoundsBoard[(paddedRows-1)*paddedCols+c] = false
	}
	for r := 0; r < paddedRows; r++ {
		s.Shared.InBoundsBoard[r*paddedCols] = false
		s.Shared.InBoundsBoard[r*paddedCols+paddedCols-1] = false
	}

	s.Shared.BoardToInBounds = make([]int, cellCount)
	for r := 0; r < board.Rows; r++ {
		for c := 0; c < board.Cols; c++ {
			s.Shared.BoardToInBounds[board.PositionToIndex(r, c)] = paddedCols*(r+1) + c + 1
		}
	}
	return nil
}

// Clone deep-copies the board and local state; Shared is shared by
// reference since it is immutable after Reset.
func (s *GameState) Clone() *GameState {
	board := s.Board.Clone()
	return &GameState{Shared: s.Shared, Board: board, Local: s.Local.clone()}
}

// Equal implements the closed-set equality contract: full board equality
// plus the subset of local state that defines observable identity.
func (s *GameState) Equal(o *GameState) bool {
	return s.Board.Equal(&o.Board) && s.Local.Equal(&o.Local)
}

// Hash returns the incremental Zobrist hash. Cheap: it is just a field read.
func (s *GameState) Hash() uint64 { return s.Board.ZorbHash }

// NextRandom draws the next xorshift64 value from this state's rng stream.
func (s *GameState) NextRandom() uint64 { return xorshift64(&s.Local.RandomState) }

// IsTerminal reports whether the state is terminal: timed out, dead, or in
// the exit.
func (s *GameState) IsTerminal() bool {
	outOfTime := s.Board.MaxSteps > 0 && s.Local.StepsRemaining <= 0
	return outOfTime || s.Board.AgentPos < 0
}

// IsSolution reports whether the agent reached the exit before timing out.
func (s *GameState) IsSolution() bool {
	outOfTime := s.Board.MaxSteps > 0 && s.Local.StepsRemaining <= 0
	return !outOfTime && s.Board.AgentPos == AgentPosExit
}

// ObservationShape returns (channels, rows, cols).
func (s *GameState) ObservationShape() (int, int, int) {
	return NumVisibleCellType, s.Board.Rows, s.Board.Cols
}

// GetObservation returns a flat one-hot f32 tensor of shape (V, rows, cols)
// in C order.
func (s *GameState) GetObservation() []float32 {
	cellCount := s.Board.Rows * s.Board.Cols
	obs := make([]float32, NumVisibleCellType*cellCount)
	for i := 0; i < cellCount; i++ {
		v := ElementFor(s.Board.Item(i)).Visible
		obs[int(v)*cellCount+i] = 1
	}
	return obs
}

// GetRewardSignal returns the OR-accumulated reward bits from the most
// recent apply_action.
func (s *GameState) GetRewardSignal() uint64 { return s.Local.RewardSignal }

// GetPositions returns every (row, col) currently holding the given cell
// type.
func (s *GameState) GetPositions(ct CellType) [][2]int {
	var out [][2]int
	for _, idx := range s.Board.FindAll(ct) {
		r, c := s.Board.IndexToPosition(idx)
		out = append(out, [2]int{r, c})
	}
	return out
}

// GetIndices returns every flat index currently holding the given cell type.
func (s *GameState) GetIndices(ct CellType) []int { return s.Board.FindAll(ct) }

// IsPosInBounds reports whether a (row, col) pair lies on the board.
func (s *GameState) IsPosInBounds(row, col int) bool {
	return row >= 0 && col >= 0 && row < s.Board.Rows && col < s.Board.Cols
}

// GetIndexID returns the trackable id at index, or -1 if untracked.
func (s *GameState) GetIndexID(index int) int {
	if id, ok := s.Local.IndexIDMap[index]; ok {
		return int(id)
	}
	return -1
}

// GetIDIndex returns the index of a trackable id, or -1 if unknown.
func (s *GameState) GetIDIndex(id int) int {
	if idx, ok := s.Local.IDIndexMap[uint16(id)]; ok {
		return idx
	}
	return -1
}

// GetAgentPos returns AgentPosExit, AgentPosDie, or the agent's flat index.
func (s *GameState) GetAgentPos() int { return s.Board.AgentPos }

// GetAgentIndex returns the flat index the agent occupies, even if it has
// since died or exited.
func (s *GameState) GetAgentIndex() int { return s.Board.AgentIdx }

// GetIndexItem returns the raw cell-type code at index.
func (s *GameState) GetIndexItem(index int) CellType { return s.Board.Item(index) }

// ValidRewards returns the set of reward-signal bits that could possibly be
// produced by acting on this board, based on which collectible elements are
// currently present. Useful for sanity-checking generated boards and for
// test/diagnostic tooling; it does not affect search or update-rule
// semantics.
func (s *GameState) ValidRewards() uint64 {
	var bits uint64
	for _, ct := range s.Board.Grid {
		switch {
		case ct == CellDiamond || ct == CellDiamondFalling:
			bits |= RewardCollectDiamond
		case IsKey(ct):
			bits |= RewardCollectKey | KeyToSignal(ct)
		case IsOpenGate(ct):
			bits |= RewardWalkThroughGate | GateToSignal(ct)
		case ct == CellExitOpen:
			bits |= RewardWalkThroughExit
		}
	}
	return bits
}

// --- low-level primitives used by the rules package's update dispatch ---

// IndexFromAction returns the flat index reached from index by moving one
// step in the given direction, without any bounds checking. Callers must
// have already established the move is in bounds (via InBounds) unless the
// direction is guaranteed safe by construction.
func (s *GameState) IndexFromAction(index int, dir Direction) int {
	return index + deltaRow[dir]*s.Board.Cols + deltaCol[dir]
}

// BoundsIndexFromAction is IndexFromAction over the padded in-bounds frame.
func (s *GameState) BoundsIndexFromAction(paddedIndex int, dir Direction) int {
	paddedCols := s.Board.Cols + 2
	return paddedIndex + deltaRow[dir]*paddedCols + deltaCol[dir]
}

// InBounds reports whether stepping from index in the given direction stays
// on the board, in O(1) via the precomputed padded frame.
func (s *GameState) InBounds(index int, dir Direction) bool {
	return s.Shared.InBoundsBoard[s.BoundsIndexFromAction(s.Shared.BoardToInBounds[index], dir)]
}

// GetItemAt returns the element at index (optionally offset by dir), without
// bounds checking.
func (s *GameState) GetItemAt(index int, dir Direction) Element {
	return ElementFor(s.Board.Item(s.IndexFromAction(index, dir)))
}

// IsType reports whether the cell reached from index via dir is in bounds
// and holds the given cell type.
func (s *GameState) IsType(index int, ct CellType, dir Direction) bool {
	return s.InBounds(index, dir) && s.Board.Item(s.IndexFromAction(index, dir)) == ct
}

// HasProperty reports whether the cell reached from index via dir is in
// bounds and has the given property.
func (s *GameState) HasProperty(index int, prop Property, dir Direction) bool {
	return s.InBounds(index, dir) && ElementFor(s.Board.Item(s.IndexFromAction(index, dir))).Properties.has(prop)
}

// IsTypeAdjacent reports whether any of the four orthogonal neighbours of
// index holds the given cell type.
func (s *GameState) IsTypeAdjacent(index int, ct CellType) bool {
	return s.IsType(index, ct, DirUp) || s.IsType(index, ct, DirLeft) ||
		s.IsType(index, ct, DirDown) || s.IsType(index, ct, DirRight)
}

func (s *GameState) cellCount() int { return s.Board.Rows * s.Board.Cols }

func (s *GameState) xorZobrist(index int) {
	s.Board.ZorbHash ^= s.Shared.Zrbht[int(s.Board.Item(index))*s.cellCount()+index]
}

// SetItemAt writes a cell type at index (optionally offset by dir), keeping
// the Zobrist hash and the has-updated bitset consistent.
func (s *GameState) SetItemAt(index int, ct CellType, dir Direction) {
	target := s.IndexFromAction(index, dir)
	s.xorZobrist(target)
	s.Board.Grid[target] = ct
	s.xorZobrist(target)
	s.Board.HasUpdated[target] = true
}

// MoveItem moves the item at index one step in dir, leaving index empty. It
// preserves the item's trackable id and keeps the Zobrist hash consistent.
func (s *GameState) MoveItem(index int, dir Direction) {
	target := s.IndexFromAction(index, dir)
	s.xorZobrist(target)
	s.Board.Grid[target] = s.Board.Grid[index]
	s.xorZobrist(target)

	s.xorZobrist(index)
	s.Board.Grid[index] = CellEmpty
	s.xorZobrist(index)

	s.Board.HasUpdated[target] = true
	s.UpdateIDIndex(index, target)
}

// UpdateIDIndex moves a trackable id from indexOld to indexNew, e.g. when an
// item slides or falls.
func (s *GameState) UpdateIDIndex(indexOld, indexNew int) {
	id, ok := s.Local.IndexIDMap[indexOld]
	if !ok {
		return
	}
	delete(s.Local.IndexIDMap, indexOld)
	s.Local.IndexIDMap[indexNew] = id
	s.Local.IDIndexMap[id] = indexNew
}

// UpdateIndexID reissues a fresh id for the trackable item at index, used
// when an item's identity changes (a nut cracking open into a diamond).
func (s *GameState) UpdateIndexID(index int) {
	idOld, ok := s.Local.IndexIDMap[index]
	if !ok {
		return
	}
	s.Local.IDState++
	idNew := s.Local.IDState
	delete(s.Local.IDIndexMap, idOld)
	s.Local.IDIndexMap[idNew] = index
	s.Local.IndexIDMap[index] = idNew
}

// AddIndexID issues a fresh id for the item at index if it is trackable.
func (s *GameState) AddIndexID(index int) {
	if !isTrackable(s.Board.Item(index)) {
		return
	}
	s.Local.IDState++
	id := s.Local.IDState
	s.Local.IDIndexMap[id] = index
	s.Local.IndexIDMap[index] = id
}

// RemoveIndexID drops the trackable id at index, if any.
func (s *GameState) RemoveIndexID(index int) {
	id, ok := s.Local.IndexIDMap[index]
	if !ok {
		return
	}
	delete(s.Local.IDIndexMap, id)
	delete(s.Local.IndexIDMap, index)
}

// CheckCatalogue returns an error if a cell code on the board has no
// registered element; this is a catalogue invariant, never expected to
// trigger outside of a programming error.
func (s *GameState) CheckCatalogue() error {
	for i, ct := range s.Board.Grid {
		if ct < 0 || int(ct) >= NumHiddenCellType {
			return fmt.Errorf("game: cell %d has unknown code %d", i, ct)
		}
	}
	return nil
}
