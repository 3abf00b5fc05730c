package game

import (
	"fmt"
	"strconv"
	"strings"
)

// Board is the flat grid plus the per-scan bookkeeping the update rules
// need. It carries no configuration (that lives in SharedStateInfo) and no
// randomness (that lives in LocalState), so two boards can be compared with
// reflect.DeepEqual-style field equality.
type Board struct {
	Rows, Cols   int
	MaxSteps     int
	GemsRequired int
	Grid         []CellType
	HasUpdated   []bool
	AgentPos     int
	AgentIdx     int
	ZorbHash     uint64
}

// Item returns the cell type at a flat index.
func (b *Board) Item(i int) CellType { return b.Grid[i] }

// PositionToIndex converts a (row, col) pair to a flat index.
func (b *Board) PositionToIndex(row, col int) int { return row*b.Cols + col }

// IndexToPosition converts a flat index to a (row, col) pair.
func (b *Board) IndexToPosition(index int) (row, col int) { return index / b.Cols, index % b.Cols }

// FindAll returns every flat index currently holding the given cell type, in
// ascending order.
func (b *Board) FindAll(ct CellType) []int {
	var out []int
	for i, c := range b.Grid {
		if c == ct {
			out = append(out, i)
		}
	}
	return out
}

// ResetUpdated clears the has-updated bitset at the start of a scan.
func (b *Board) ResetUpdated() {
	for i := range b.HasUpdated {
		b.HasUpdated[i] = false
	}
}

// Equal compares two boards field by field. Used by the search's closed-set
// membership test, which needs full-state equality beyond the Zobrist hash.
func (b *Board) Equal(o *Board) bool {
	if b.Rows != o.Rows || b.Cols != o.Cols || b.MaxSteps != o.MaxSteps ||
		b.GemsRequired != o.GemsRequired || b.AgentPos != o.AgentPos || b.AgentIdx != o.AgentIdx {
		return false
	}
	if len(b.Grid) != len(o.Grid) {
		return false
	}
	for i := range b.Grid {
		if b.Grid[i] != o.Grid[i] {
			return false
		}
	}
	return true
}

// Clone deep-copies a board.
func (b *Board) Clone() Board {
	out := Board{
		Rows: b.Rows, Cols: b.Cols, MaxSteps: b.MaxSteps, GemsRequired: b.GemsRequired,
		AgentPos: b.AgentPos, AgentIdx: b.AgentIdx, ZorbHash: b.ZorbHash,
	}
	out.Grid = append([]CellType(nil), b.Grid...)
	out.HasUpdated = append([]bool(nil), b.HasUpdated...)
	return out
}

// ParseBoardString parses the literal board-text contract: pipe-separated
// decimal integers, `rows|cols|max_steps|gems_required|cell0|cell1|...` in
// row-major order.
func ParseBoardString(s string) (Board, error) {
	fields := strings.Split(strings.TrimSpace(s), "|")
	if len(fields) < 4 {
		return Board{}, fmt.Errorf("game: board string has %d fields, need at least 4", len(fields))
	}
	nums := make([]int, len(fields))
	for i, f := range fields {
		n, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return Board{}, fmt.Errorf("game: board string field %d (%q) is not an integer: %w", i, f, err)
		}
		nums[i] = n
	}
	rows, cols, maxSteps, gemsRequired := nums[0], nums[1], nums[2], nums[3]
	if rows <= 0 || cols <= 0 {
		return Board{}, fmt.Errorf("game: board string has non-positive dimensions %dx%d", rows, cols)
	}
	wantCells := rows * cols
	gotCells := len(nums) - 4
	if gotCells != wantCells {
		return Board{}, fmt.Errorf("game: board string declares %dx%d=%d cells but has %d", rows, cols, wantCells, gotCells)
	}

	b := Board{
		Rows: rows, Cols: cols, MaxSteps: maxSteps, GemsRequired: gemsRequired,
		Grid:       make([]CellType, wantCells),
		HasUpdated: make([]bool, wantCells),
		AgentPos:   -1,
		AgentIdx:   -1,
	}
	for i := 0; i < wantCells; i++ {
		code := nums[4+i]
		if code < 0 || code >= NumHiddenCellType {
			return Board{}, fmt.Errorf("game: board string cell %d has out-of-range code %d", i, code)
		}
		ct := CellType(code)
		b.Grid[i] = ct
		if ct == CellAgent {
			b.AgentPos = i
			b.AgentIdx = i
		}
	}
	return b, nil
}

// String serializes the board back into the literal board-text format. It
// intentionally ignores dynamic metadata (agent death/exit, falling
// variants mid-flight are captured as-is since they're just cell codes) so
// that ParseBoardString(b.String()) round-trips any board reachable purely
// through cell-type mutation.
func (b *Board) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d|%d|%d|%d", b.Rows, b.Cols, b.MaxSteps, b.GemsRequired)
	for _, c := range b.Grid {
		fmt.Fprintf(&sb, "|%d", int(c))
	}
	return sb.String()
}
