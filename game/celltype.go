// Package game defines the grid-world state for the Boulder-Dash-style
// environment: the element catalogue, the board, and the per-state data a
// search needs to clone and hash cheaply. It intentionally knows nothing
// about how a cell transitions to another cell during a scan; that lives in
// the rules package. game only knows how to store, clone, hash, parse and
// serialize a state.
package game

// Direction indexes both agent actions and the 8-neighbourhood used by
// rolling, explosions and the wandering enemies. Values match the layout the
// simulator was ported from: orthogonal directions come first (so the first
// NumActions of them form the agent's action space), diagonals follow in a
// fixed, otherwise arbitrary order.
type Direction int

const (
	DirNoop Direction = iota
	DirUp
	DirRight
	DirDown
	DirLeft
	DirUpRight
	DirDownRight
	DirDownLeft
	DirUpLeft
	NumDirections
)

// NumActions is the size of the agent's action space: noop plus the four
// orthogonal moves. Diagonal directions exist only for neighbourhood scans
// (explosions, adjacency checks) and are never legal agent actions.
const NumActions = 5

// RotateLeft and RotateRight give the 90-degree rotation of an orthogonal
// direction, used by fireflies (prefer left) and butterflies (prefer right).
// Entries for Noop and the diagonals are unused.
var RotateLeft = [NumDirections]Direction{
	DirNoop:  DirNoop,
	DirUp:    DirLeft,
	DirLeft:  DirDown,
	DirDown:  DirRight,
	DirRight: DirUp,
}

var RotateRight = [NumDirections]Direction{
	DirNoop:  DirNoop,
	DirUp:    DirRight,
	DirRight: DirDown,
	DirDown:  DirLeft,
	DirLeft:  DirUp,
}

// deltaRow, deltaCol give the row/col offset for a direction on an
// unbounded grid; used to build the padded in-bounds frame at reset time.
var deltaRow = [NumDirections]int{
	DirNoop: 0, DirUp: -1, DirRight: 0, DirDown: 1, DirLeft: 0,
	DirUpRight: -1, DirDownRight: 1, DirDownLeft: 1, DirUpLeft: -1,
}

var deltaCol = [NumDirections]int{
	DirNoop: 0, DirUp: 0, DirRight: 1, DirDown: 0, DirLeft: -1,
	DirUpRight: 1, DirDownRight: 1, DirDownLeft: -1, DirUpLeft: -1,
}

// Property is a bitmask describing how an element participates in the
// update rules.
type Property uint8

const (
	PropRounded Property = 1 << iota
	PropCanExplode
	PropConsumable
	PropTraversable
	PropPushable
)

// CellType is the hidden cell-type code stored in a Board's grid. CellNull
// (-1) is a sentinel meaning "no element" (used only for blob_swap-unset and
// similar not-yet-decided fields, never stored on the board itself).
type CellType int8

const (
	CellEmpty CellType = iota
	CellDirt
	CellWall
	CellWallMagicOn
	CellWallMagicDormant
	CellWallMagicExpired
	CellStone
	CellStoneFalling
	CellDiamond
	CellDiamondFalling
	CellNut
	CellNutFalling
	CellBomb
	CellBombFalling
	CellExplosionDeep
	CellExplosionLong
	CellExplosionShort
	CellBlob
	CellButterflyUp
	CellButterflyRight
	CellButterflyDown
	CellButterflyLeft
	CellFireflyUp
	CellFireflyRight
	CellFireflyDown
	CellFireflyLeft
	CellOrangeUp
	CellOrangeRight
	CellOrangeDown
	CellOrangeLeft
	CellKeyRed
	CellKeyBlue
	CellKeyGreen
	CellKeyYellow
	CellGateRedClosed
	CellGateBlueClosed
	CellGateGreenClosed
	CellGateYellowClosed
	CellGateRedOpen
	CellGateBlueOpen
	CellGateGreenOpen
	CellGateYellowOpen
	CellAgent
	CellAgentInExit
	CellExitClosed
	CellExitOpen
	numCellTypes
)

// CellNull marks the absence of an element. It is never a valid board cell.
const CellNull CellType = -1

// NumHiddenCellType is the number of real (non-null) cell types, i.e. the
// number of Zobrist channels.
const NumHiddenCellType = int(numCellTypes)

// VisibleType collapses directional variants (a butterfly facing up looks
// the same as one facing left) into the smaller alphabet used for
// observations and rendering.
type VisibleType int8

const (
	VisEmpty VisibleType = iota
	VisDirt
	VisWall
	VisWallMagicOn
	VisWallMagicDormant
	VisWallMagicExpired
	VisStone
	VisStoneFalling
	VisDiamond
	VisDiamondFalling
	VisNut
	VisNutFalling
	VisBomb
	VisBombFalling
	VisExplosionDeep
	VisExplosionLong
	VisExplosionShort
	VisBlob
	VisButterfly
	VisFirefly
	VisOrange
	VisKeyRed
	VisKeyBlue
	VisKeyGreen
	VisKeyYellow
	VisGateRedClosed
	VisGateBlueClosed
	VisGateGreenClosed
	VisGateYellowClosed
	VisGateRedOpen
	VisGateBlueOpen
	VisGateGreenOpen
	VisGateYellowOpen
	VisAgent
	VisAgentInExit
	VisExitClosed
	VisExitOpen
	numVisibleCellTypes
)

// NumVisibleCellType is the size of the one-hot observation channel axis.
const NumVisibleCellType = int(numVisibleCellTypes)

// pointsDiamond is the score awarded for collecting a diamond, direct or
// through an open gate.
const pointsDiamond = 10

// Element is the static descriptor for a cell type: how it renders, what it
// is worth, and how the update rules may treat it.
type Element struct {
	Cell       CellType
	Visible    VisibleType
	Properties Property
	Points     int
}

func (p Property) has(x Property) bool { return p&x != 0 }

var elementTable [numCellTypes]Element

func reg(cell CellType, vis VisibleType, props Property, points int) {
	elementTable[cell] = Element{Cell: cell, Visible: vis, Properties: props, Points: points}
}

func init() {
	rounded := PropRounded
	explodes := PropCanExplode
	consumes := PropConsumable
	trav := PropTraversable
	push := PropPushable

	reg(CellEmpty, VisEmpty, consumes|trav, 0)
	reg(CellDirt, VisDirt, consumes|trav, 0)
	reg(CellWall, VisWall, 0, 0)
	reg(CellWallMagicOn, VisWallMagicOn, 0, 0)
	reg(CellWallMagicDormant, VisWallMagicDormant, 0, 0)
	reg(CellWallMagicExpired, VisWallMagicExpired, 0, 0)

	reg(CellStone, VisStone, rounded|push, 0)
	reg(CellStoneFalling, VisStoneFalling, rounded|explodes, 0)
	reg(CellDiamond, VisDiamond, rounded|trav, pointsDiamond)
	reg(CellDiamondFalling, VisDiamondFalling, rounded|explodes|trav, pointsDiamond)
	reg(CellNut, VisNut, rounded|push, 0)
	reg(CellNutFalling, VisNutFalling, rounded|explodes, 0)
	reg(CellBomb, VisBomb, rounded|push|explodes, 0)
	reg(CellBombFalling, VisBombFalling, rounded|explodes, 0)

	reg(CellExplosionDeep, VisExplosionDeep, 0, 0)
	reg(CellExplosionLong, VisExplosionLong, 0, 0)
	reg(CellExplosionShort, VisExplosionShort, 0, 0)

	reg(CellBlob, VisBlob, explodes, 0)

	for _, c := range []CellType{CellButterflyUp, CellButterflyRight, CellButterflyDown, CellButterflyLeft} {
		reg(c, VisButterfly, explodes, 0)
	}
	for _, c := range []CellType{CellFireflyUp, CellFireflyRight, CellFireflyDown, CellFireflyLeft} {
		reg(c, VisFirefly, explodes, 0)
	}
	for _, c := range []CellType{CellOrangeUp, CellOrangeRight, CellOrangeDown, CellOrangeLeft} {
		reg(c, VisOrange, explodes, 0)
	}

	reg(CellKeyRed, VisKeyRed, trav, 0)
	reg(CellKeyBlue, VisKeyBlue, trav, 0)
	reg(CellKeyGreen, VisKeyGreen, trav, 0)
	reg(CellKeyYellow, VisKeyYellow, trav, 0)

	reg(CellGateRedClosed, VisGateRedClosed, 0, 0)
	reg(CellGateBlueClosed, VisGateBlueClosed, 0, 0)
	reg(CellGateGreenClosed, VisGateGreenClosed, 0, 0)
	reg(CellGateYellowClosed, VisGateYellowClosed, 0, 0)
	reg(CellGateRedOpen, VisGateRedOpen, 0, 0)
	reg(CellGateBlueOpen, VisGateBlueOpen, 0, 0)
	reg(CellGateGreenOpen, VisGateGreenOpen, 0, 0)
	reg(CellGateYellowOpen, VisGateYellowOpen, 0, 0)

	reg(CellAgent, VisAgent, consumes, 0)
	reg(CellAgentInExit, VisAgentInExit, 0, 0)
	reg(CellExitClosed, VisExitClosed, 0, 0)
	reg(CellExitOpen, VisExitOpen, trav, 0)
}

// ElementFor returns the static descriptor for a cell type. CellNull returns
// the empty Element (properties/points all zero); the board never stores
// CellNull so callers only see it via defensive lookups.
func ElementFor(ct CellType) Element {
	if ct < 0 || int(ct) >= len(elementTable) {
		return Element{Cell: CellNull, Visible: VisEmpty}
	}
	return elementTable[ct]
}

// explosionStart is the initial stage every element enters when it is
// consumed by an explosion; three scans later it decays to CellEmpty. All
// explodable/consumable elements share this single family: the source table
// this was ported from is not available, and a uniform blast that always
// clears to empty is the simplest reading consistent with the observable
// contract (an explosion consumes a 3x3 neighbourhood over three scans).
const explosionStart = CellExplosionDeep

// ExplosionNext advances an explosion-stage cell to the next stage, or
// reports the terminal (non-explosion) element it settles into.
func ExplosionNext(ct CellType) CellType {
	switch ct {
	case CellExplosionDeep:
		return CellExplosionLong
	case CellExplosionLong:
		return CellExplosionShort
	case CellExplosionShort:
		return CellEmpty
	default:
		return CellEmpty
	}
}

// MagicWallConversion returns what a falling stone/diamond becomes after
// passing through an active magic wall.
func MagicWallConversion(falling CellType) (CellType, bool) {
	switch falling {
	case CellStoneFalling:
		return CellDiamond, true
	case CellDiamondFalling:
		return CellStone, true
	default:
		return CellNull, false
	}
}

// ToFalling returns the falling variant of a pushable stationary element.
func ToFalling(ct CellType) (CellType, bool) {
	switch ct {
	case CellStone:
		return CellStoneFalling, true
	case CellNut:
		return CellNutFalling, true
	case CellBomb:
		return CellBombFalling, true
	default:
		return CellNull, false
	}
}

// ButterflyDirection reports the facing direction of a butterfly variant.
func ButterflyDirection(ct CellType) (Direction, bool) {
	switch ct {
	case CellButterflyUp:
		return DirUp, true
	case CellButterflyRight:
		return DirRight, true
	case CellButterflyDown:
		return DirDown, true
	case CellButterflyLeft:
		return DirLeft, true
	default:
		return DirNoop, false
	}
}

// DirectionButterfly is the inverse of ButterflyDirection.
var DirectionButterfly = map[Direction]CellType{
	DirUp: CellButterflyUp, DirRight: CellButterflyRight, DirDown: CellButterflyDown, DirLeft: CellButterflyLeft,
}

// FireflyDirection reports the facing direction of a firefly variant.
func FireflyDirection(ct CellType) (Direction, bool) {
	switch ct {
	case CellFireflyUp:
		return DirUp, true
	case CellFireflyRight:
		return DirRight, true
	case CellFireflyDown:
		return DirDown, true
	case CellFireflyLeft:
		return DirLeft, true
	default:
		return DirNoop, false
	}
}

// DirectionFirefly is the inverse of FireflyDirection.
var DirectionFirefly = map[Direction]CellType{
	DirUp: CellFireflyUp, DirRight: CellFireflyRight, DirDown: CellFireflyDown, DirLeft: CellFireflyLeft,
}

// OrangeDirection reports the facing direction of an orange variant.
func OrangeDirection(ct CellType) (Direction, bool) {
	switch ct {
	case CellOrangeUp:
		return DirUp, true
	case CellOrangeRight:
		return DirRight, true
	case CellOrangeDown:
		return DirDown, true
	case CellOrangeLeft:
		return DirLeft, true
	default:
		return DirNoop, false
	}
}

// DirectionOrange is the inverse of OrangeDirection.
var DirectionOrange = map[Direction]CellType{
	DirUp: CellOrangeUp, DirRight: CellOrangeRight, DirDown: CellOrangeDown, DirLeft: CellOrangeLeft,
}

// IsKey reports whether a cell type is one of the four colored keys.
func IsKey(ct CellType) bool {
	switch ct {
	case CellKeyRed, CellKeyBlue, CellKeyGreen, CellKeyYellow:
		return true
	default:
		return false
	}
}

// IsOpenGate reports whether a cell type is an open (walkable) gate.
func IsOpenGate(ct CellType) bool {
	switch ct {
	case CellGateRedOpen, CellGateBlueOpen, CellGateGreenOpen, CellGateYellowOpen:
		return true
	default:
		return false
	}
}

// KeyToGate maps a key to the closed gate color it opens.
func KeyToGate(key CellType) (CellType, bool) {
	switch key {
	case CellKeyRed:
		return CellGateRedClosed, true
	case CellKeyBlue:
		return CellGateBlueClosed, true
	case CellKeyGreen:
		return CellGateGreenClosed, true
	case CellKeyYellow:
		return CellGateYellowClosed, true
	default:
		return CellNull, false
	}
}

// GateOpenOf maps a closed gate to its open variant.
func GateOpenOf(closed CellType) (CellType, bool) {
	switch closed {
	case CellGateRedClosed:
		return CellGateRedOpen, true
	case CellGateBlueClosed:
		return CellGateBlueOpen, true
	case CellGateGreenClosed:
		return CellGateGreenOpen, true
	case CellGateYellowClosed:
		return CellGateYellowOpen, true
	default:
		return CellNull, false
	}
}

// Reward-signal bits, OR-accumulated into LocalState.RewardSignal once per
// scan and cleared at the start of the next.
const (
	RewardCollectDiamond uint64 = 1 << iota
	RewardCollectKey
	RewardCollectKeyRed
	RewardCollectKeyBlue
	RewardCollectKeyGreen
	RewardCollectKeyYellow
	RewardWalkThroughGate
	RewardWalkThroughGateRed
	RewardWalkThroughGateBlue
	RewardWalkThroughGateGreen
	RewardWalkThroughGateYellow
	RewardWalkThroughExit
)

// KeyToSignal maps a key color to its specific reward bit.
func KeyToSignal(key CellType) uint64 {
	switch key {
	case CellKeyRed:
		return RewardCollectKeyRed
	case CellKeyBlue:
		return RewardCollectKeyBlue
	case CellKeyGreen:
		return RewardCollectKeyGreen
	case CellKeyYellow:
		return RewardCollectKeyYellow
	default:
		return 0
	}
}

// GateToSignal maps an open gate color to its specific reward bit.
func GateToSignal(gate CellType) uint64 {
	switch gate {
	case CellGateRedOpen:
		return RewardWalkThroughGateRed
	case CellGateBlueOpen:
		return RewardWalkThroughGateBlue
	case CellGateGreenOpen:
		return RewardWalkThroughGateGreen
	case CellGateYellowOpen:
		return RewardWalkThroughGateYellow
	default:
		return 0
	}
}

// AgentPosExit and AgentPosDie are sentinel values for Board.AgentPos: the
// agent reached the exit, or the agent died, respectively. Board.AgentIdx
// keeps pointing at the cell the agent occupied even after death or exit,
// which is why AgentPos and AgentIdx are tracked separately.
const (
	AgentPosExit = -1
	AgentPosDie  = -2
)

// isTrackable reports whether a cell type carries a persistent id (stones,
// diamonds, nuts and their falling variants).
func isTrackable(ct CellType) bool {
	switch ct {
	case CellStone, CellStoneFalling, CellDiamond, CellDiamondFalling, CellNut, CellNutFalling:
		return true
	default:
		return false
	}
}
