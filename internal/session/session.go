package session

import (
	"time"

	"scramble/internal/board"
)

// Session is one hosted board game.
type Session struct {
	Code      string
	Board     *board.Board
	CreatedAt time.Time
}

// Info is the client-facing summary of a session.
type Info struct {
	Code      string         `json:"code"`
	Rows      int            `json:"rows"`
	Cols      int            `json:"cols"`
	Remaining int            `json:"remaining"`
	Scores    map[string]int `json:"scores"`
}

func (s *Session) Info() Info {
	rows, cols := s.Board.Size()
	return Info{
		Code:      s.Code,
		Rows:      rows,
		Cols:      cols,
		Remaining: s.Board.Remaining(),
		Scores:    s.Board.Scores(),
	}
}

// Done reports whether every card has been matched and removed.
func (s *Session) Done() bool {
	return s.Board.Remaining() == 0
}
