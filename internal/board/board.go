package board

import "errors"

// Size is the board edge length.
const Size = 3

var (
	ErrOutOfRange   = errors.New("cell out of range")
	ErrCellOccupied = errors.New("cell already occupied")
)

// Cell is one grid position. Slot 0 plays X, slot 1 plays O.
type Cell uint8

const (
	Empty Cell = iota
	X
	O
)

// Verdict is the evaluation of a board position.
type Verdict uint8

const (
	Ongoing Verdict = iota
	Win
	Draw
)

// Board is a 3x3 tic-tac-toe grid, indexed [row][col]. The zero value is an
// empty board. Board carries no I/O and no turn state; callers enforce turn
// order.
type Board struct {
	cells [Size][Size]Cell
	marks int
}

func symbolFor(slot int) Cell {
	if slot == 0 {
		return X
	}
	return O
}

// Apply places slot's symbol at (row, col). The grid is only written on
// success.
func (b *Board) Apply(slot, row, col int) error {
	if row < 0 || row >= Size || col < 0 || col >= Size {
		return ErrOutOfRange
	}
	if b.cells[row][col] != Empty {
		return ErrCellOccupied
	}
	b.cells[row][col] = symbolFor(slot)
	b.marks++
	return nil
}

// Evaluate reports the position after the most recent move. On Win the
// returned slot identifies the winner; otherwise the slot is -1.
func (b *Board) Evaluate() (Verdict, int) {
	for slot := 0; slot <= 1; slot++ {
		if b.wins(symbolFor(slot)) {
			return Win, slot
		}
	}
	if b.marks == Size*Size {
		return Draw, -1
	}
	return Ongoing, -1
}

func (b *Board) wins(sym Cell) bool {
	for i := 0; i < Size; i++ {
		if b.cells[i][0] == sym && b.cells[i][1] == sym && b.cells[i][2] == sym {
			return true
		}
		if b.cells[0][i] == sym && b.cells[1][i] == sym && b.cells[2][i] == sym {
			return true
		}
	}
	if b.cells[0][0] == sym && b.cells[1][1] == sym && b.cells[2][2] == sym {
		return true
	}
	return b.cells[0][2] == sym && b.cells[1][1] == sym && b.cells[2][0] == sym
}

// Marks returns the number of occupied cells.
func (b *Board) Marks() int { return b.marks }

// Encode renders the grid as nine digits in row-major order: 0 empty, 1 X,
// 2 O. This is the wire snapshot format.
func (b *Board) Encode() string {
	out := make([]byte, 0, Size*Size)
	for r := 0; r < Size; r++ {
		for c := 0; c < Size; c++ {
			out = append(out, '0'+byte(b.cells[r][c]))
		}
	}
	return string(out)
}
