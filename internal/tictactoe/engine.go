package tictactoe

import (
	"fmt"

	"github.com/prsweeeet/tictactoe-pvp/internal/apperror"
	"github.com/prsweeeet/tictactoe-pvp/internal/entity"
)

// WinCombos are the 8 winning triples of a 3x3 board: 3 rows, 3 columns
// and 2 diagonals, indices row-major.
var WinCombos = [][3]int{
	{0, 1, 2},
	{3, 4, 5},
	{6, 7, 8},
	{0, 3, 6},
	{1, 4, 7},
	{2, 5, 8},
	{0, 4, 8},
	{2, 4, 6},
}

// ApplyMove validates a proposed move against the session and applies it.
// The same function gates locally-originated moves and incoming remote
// updates, so both writers agree on what a legal move is. It is
// deterministic and does no I/O; the caller decides what to do with the
// mutated session.
func ApplyMove(session *entity.Session, cell int, moverIdentity string) error {
	if !session.IsInProgress() {
		return apperror.ErrGameNotInProgress
	}

	if cell < 0 || cell >= len(session.Board) {
		return fmt.Errorf("%w: cell %d", apperror.ErrInvalidCell, cell)
	}

	mark, ok := session.MarkOf(moverIdentity)
	if !ok {
		return fmt.Errorf("%w: %s", apperror.ErrWrongIdentity, moverIdentity)
	}

	if session.Turn != mark {
		return apperror.ErrNotYourTurn
	}

	if session.Board[cell] != entity.EmptyCell {
		return apperror.ErrCellOccupied
	}

	session.Board[cell] = mark
	session.MoveSeq++
	updateStatus(session, mark)

	return nil
}

// ReplayMove re-validates an incoming remote state that claims to be exactly
// one move ahead of the local one. It finds the single changed cell, replays
// it through ApplyMove on a copy of the local session and compares the
// outcome against what the remote writer published.
func ReplayMove(local, incoming *entity.Session) error {
	cell, err := changedCell(local, incoming)
	if err != nil {
		return err
	}

	replayed := local.Clone()
	if err := ApplyMove(replayed, cell, local.IdentityOf(incoming.Board[cell])); err != nil {
		return err
	}

	if replayed.Board != incoming.Board || replayed.Status != incoming.Status || replayed.Winner != incoming.Winner {
		return fmt.Errorf("%w: replayed move does not match published state", apperror.ErrStaleUpdate)
	}

	return nil
}

// changedCell expects exactly one cell to differ, from empty to a mark.
func changedCell(local, incoming *entity.Session) (int, error) {
	changed := -1
	for i := range local.Board {
		if local.Board[i] == incoming.Board[i] {
			continue
		}
		if local.Board[i] != entity.EmptyCell || changed != -1 {
			return -1, fmt.Errorf("%w: boards differ by more than one move", apperror.ErrStaleUpdate)
		}
		changed = i
	}
	if changed == -1 {
		return -1, fmt.Errorf("%w: no board change behind move counter", apperror.ErrStaleUpdate)
	}
	return changed, nil
}

// updateStatus evaluates the board after a placed mark: either the game is
// over (win or draw, turn frozen) or the turn passes to the other player.
func updateStatus(session *entity.Session, mark string) {
	switch winner, line := DetermineResult(session.Board); winner {
	case entity.PlayerX, entity.PlayerO:
		session.Winner = winner
		session.WinLine = line
		session.Status = entity.StatusWon
		session.Turn = entity.EmptyCell
	case drawResult:
		session.Status = entity.StatusDraw
		session.Turn = entity.EmptyCell
	default:
		session.Turn = toggleMark(mark)
	}
}

const drawResult = "-"

// DetermineResult returns the winning mark and its completed triple, the
// draw marker when the board is full without a winner, or "" while the game
// can continue. A single move can complete at most one triple, so the first
// uniform line found is the only one.
func DetermineResult(board [9]string) (string, []int) {
	for _, combo := range WinCombos {
		a, b, c := board[combo[0]], board[combo[1]], board[combo[2]]
		if a != entity.EmptyCell && a == b && b == c {
			return a, []int{combo[0], combo[1], combo[2]}
		}
	}

	for _, cell := range board {
		if cell == entity.EmptyCell {
			return "", nil
		}
	}

	return drawResult, nil
}

func toggleMark(currentMark string) string {
	if currentMark == entity.PlayerX {
		return entity.PlayerO
	}
	return entity.PlayerX
}
