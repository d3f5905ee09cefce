// internal/game/player.go
package game

import (
	"strings"
	"time"

	"github.com/samyarj/polyhoot/internal/models"
)

// Player is one participant of a session. It is owned by the session that
// admitted it and only mutated under that session's lock.
type Player struct {
	ConnID      string
	Name        string
	IsOrganizer bool

	Points float64

	// Per-question state, reset by ResetForQuestion.
	IsFirstCorrectResponder bool
	Submitted               bool
	SubmittedAt             time.Time
	CurrentChoices          []bool
	NumericAnswer           *float64

	// Eligible is false for players who joined after the current question opened.
	Eligible bool

	conn Conn
}

// NewPlayer builds a player bound to conn.
func NewPlayer(conn Conn, name string, isOrganizer bool) *Player {
	return &Player{
		ConnID:      conn.ID(),
		Name:        strings.TrimSpace(name),
		IsOrganizer: isOrganizer,
		conn:        conn,
	}
}

// Conn returns the connection handle of the player.
func (p *Player) Conn() Conn { return p.conn }

// ResetForQuestion clears per-question state and sizes the choice vector to q.
func (p *Player) ResetForQuestion(q models.Question) {
	p.IsFirstCorrectResponder = false
	p.Submitted = false
	p.SubmittedAt = time.Time{}
	p.NumericAnswer = nil
	if q.Type == models.QuestionTypeQCM {
		p.CurrentChoices = make([]bool, len(q.Choices))
	} else {
		p.CurrentChoices = nil
	}
	p.Eligible = true
}

// normalizeName returns the key used for name uniqueness and ban checks.
func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
