// Package game implements the tic-tac-toe match played between two sessions.
// The session layer depends only on the exported surface here: parse a move,
// apply it, resign, ask whether the game is over and who won, and render the
// board for humans.
package game

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Role is a participant's side in a game.
type Role uint8

const (
	RoleNone   Role = 0
	RoleFirst  Role = 1 // plays X, moves first
	RoleSecond Role = 2 // plays O
)

func (r Role) String() string {
	switch r {
	case RoleFirst:
		return "FIRST_PLAYER"
	case RoleSecond:
		return "SECOND_PLAYER"
	case RoleNone:
		return "NULL"
	default:
		return "UNKNOWN"
	}
}

// Mark returns the board character for the role: X, O or space.
func (r Role) Mark() byte {
	switch r {
	case RoleFirst:
		return 'X'
	case RoleSecond:
		return 'O'
	default:
		return ' '
	}
}

// Opponent returns the other playing role.
func (r Role) Opponent() Role {
	switch r {
	case RoleFirst:
		return RoleSecond
	case RoleSecond:
		return RoleFirst
	default:
		return RoleNone
	}
}

var (
	ErrGameOver    = errors.New("game already terminated")
	ErrOutOfTurn   = errors.New("not this player's turn")
	ErrCellTaken   = errors.New("cell already occupied")
	ErrBadMove     = errors.New("unparseable move")
	ErrNotOverYet  = errors.New("game not terminated")
	ErrInvalidRole = errors.New("invalid role")
)

// Move is an immutable parsed move: a cell and the role playing it.
type Move struct {
	cell int // 0..8, row-major from top-left
	role Role
}

// Role returns the role making the move.
func (m Move) Role() Role { return m.role }

// String renders the move in the form ParseMove accepts, e.g. "5<-X".
func (m Move) String() string {
	return fmt.Sprintf("%d<-%c", m.cell+1, m.role.Mark())
}

// Game is a single tic-tac-toe match. All methods are safe for concurrent
// use; both participants' service goroutines touch the same Game.
type Game struct {
	mu     sync.Mutex
	board  [9]Role
	next   Role
	winner Role
	over   bool
}

// New creates a game in its initial state with the first player to move.
func New() *Game {
	return &Game{next: RoleFirst}
}

// ParseMove interprets s as a move by role. The syntax is a digit 1-9
// selecting a cell, optionally followed by "<-X" or "<-O" asserting the
// mover's mark. An assertion that does not match the role is an error.
func (g *Game) ParseMove(role Role, s string) (Move, error) {
	if role != RoleFirst && role != RoleSecond {
		return Move{}, ErrInvalidRole
	}
	if len(s) == 0 || s[0] < '1' || s[0] > '9' {
		return Move{}, fmt.Errorf("%w: %q", ErrBadMove, s)
	}
	if rest := s[1:]; rest != "" && rest != "<-"+string(role.Mark()) {
		return Move{}, fmt.Errorf("%w: %q", ErrBadMove, s)
	}
	return Move{cell: int(s[0] - '1'), role: role}, nil
}

// ApplyMove applies a parsed move. It fails if the game is over, the cell is
// occupied, or it is not the mover's turn.
func (g *Game) ApplyMove(m Move) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.over {
		return ErrGameOver
	}
	if m.role != g.next {
		return ErrOutOfTurn
	}
	if g.board[m.cell] != RoleNone {
		return ErrCellTaken
	}

	g.board[m.cell] = m.role
	g.next = m.role.Opponent()

	if w, done := winnerOf(&g.board); done {
		g.over = true
		g.winner = w
	}
	return nil
}

// Resign terminates the game with role's opponent as the winner. It is an
// error if the game has already terminated.
func (g *Game) Resign(role Role) error {
	if role != RoleFirst && role != RoleSecond {
		return ErrInvalidRole
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.over {
		return ErrGameOver
	}
	g.over = true
	g.winner = role.Opponent()
	return nil
}

// Over reports whether the game has terminated.
func (g *Game) Over() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.over
}

// Winner returns the winning role once the game is over, RoleNone for a draw.
func (g *Game) Winner() Role {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.winner
}

// State renders the board for humans: three rows of cells separated by rule
// lines, then a trailer naming whose move it is.
//
//	 X| |O
//	 -----
//	  |X|
//	 -----
//	  | |O
//	 X to move
func (g *Game) State() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	var b strings.Builder
	b.Grow(40)
	for row := 0; row < 3; row++ {
		if row > 0 {
			b.WriteString("-----\n")
		}
		b.WriteByte(g.board[row*3].Mark())
		b.WriteByte('|')
		b.WriteByte(g.board[row*3+1].Mark())
		b.WriteByte('|')
		b.WriteByte(g.board[row*3+2].Mark())
		b.WriteByte('\n')
	}
	b.WriteByte(g.next.Mark())
	b.WriteString(" to move\n")
	return b.String()
}

var lines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8}, // rows
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8}, // columns
	{0, 4, 8}, {2, 4, 6}, // diagonals
}

// winnerOf reports the terminal outcome of a board: (role, true) for a
// three-in-a-row, (RoleNone, true) for a full board, (RoleNone, false)
// while the game continues.
func winnerOf(board *[9]Role) (Role, bool) {
	for _, l := range lines {
		if r := board[l[0]]; r != RoleNone && r == board[l[1]] && r == board[l[2]] {
			return r, true
		}
	}
	for _, c := range board {
		if c == RoleNone {
			return RoleNone, false
		}
	}
	return RoleNone, true
}
