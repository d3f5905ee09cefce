// internal/models/game_record.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// PlayerResult is one row of a finished game's standings.
type PlayerResult struct {
	Name   string  `json:"name"`
	Points float64 `json:"points"`
	Rank   int     `json:"rank"`
}

// GameRecord is the summary handed to the game-record store when a session ends.
type GameRecord struct {
	ID          uuid.UUID      `json:"id"`
	RoomCode    string         `json:"room_code"`
	QuizID      uuid.UUID      `json:"quiz_id"`
	QuizTitle   string         `json:"quiz_title"`
	TestMode    bool           `json:"test_mode"`
	StartedAt   time.Time      `json:"started_at"`
	EndedAt     time.Time      `json:"ended_at"`
	PlayerCount int            `json:"player_count"`
	Results     []PlayerResult `json:"results"`
}

// Winner returns the top-ranked player name, or "" when nobody played.
func (r GameRecord) Winner() string {
	if len(r.Results) == 0 {
		return ""
	}
	return r.Results[0].Name
}
