// internal/game/events.go
package game

import "github.com/samyarj/polyhoot/internal/models"

// GameEventType is an enum-like type for events sent to room members.
type GameEventType string

const (
	// Broadcast to every room member and mirrored to the organizer.
	EventPhaseChanged          GameEventType = "phase_changed"
	EventTick                  GameEventType = "tick"
	EventPauseStateChanged     GameEventType = "pause_state_changed"
	EventAlertModeStarted      GameEventType = "alert_mode_started"
	EventRosterChanged         GameEventType = "player_roster_changed"
	EventAnswerFinalized       GameEventType = "answer_finalized"
	EventGameEnded             GameEventType = "game_ended"
	EventLockStateChanged      GameEventType = "lock_state_changed"
	EventOrganizerDisconnected GameEventType = "organizer_disconnected"
	EventOrganizerReconnected  GameEventType = "organizer_reconnected"
	EventSessionClosed         GameEventType = "session_closed"

	// Organizer only.
	EventAnswerStats GameEventType = "answer_stats"
	EventSyncState   GameEventType = "sync_state"

	// Direct replies to a single connection.
	EventGameCreated        GameEventType = "game_created"
	EventJoinAccepted       GameEventType = "join_accepted"
	EventJoinRejected       GameEventType = "join_rejected"
	EventSubmissionAccepted GameEventType = "submission_accepted"
	EventSubmissionRejected GameEventType = "submission_rejected"
	EventActionRejected     GameEventType = "action_rejected"
	EventBanned             GameEventType = "banned"
	EventError              GameEventType = "error"
	EventPong               GameEventType = "pong"
)

// QuestionPayload is what players see of a question. Correct answers are never included.
type QuestionPayload struct {
	Index           int                 `json:"index"`
	Total           int                 `json:"total"`
	Type            models.QuestionType `json:"type"`
	Text            string              `json:"text"`
	Points          float64             `json:"points"`
	Choices         []string            `json:"choices,omitempty"`
	Min             *float64            `json:"min,omitempty"`
	Max             *float64            `json:"max,omitempty"`
	DurationSeconds int                 `json:"durationSeconds,omitempty"`
}

// RosterEntry is one line of the player list.
type RosterEntry struct {
	Name        string  `json:"name"`
	Points      float64 `json:"points"`
	Submitted   bool    `json:"submitted"`
	IsOrganizer bool    `json:"isOrganizer,omitempty"`
}

// PointDelta is the outcome of one player on a closed question.
type PointDelta struct {
	Name    string  `json:"name"`
	Correct bool    `json:"correct"`
	Bonus   bool    `json:"bonus"`
	Delta   float64 `json:"delta"`
	Total   float64 `json:"total"`
}

// Standing is one rank of the scoreboard.
type Standing struct {
	Rank   int     `json:"rank"`
	Name   string  `json:"name"`
	Points float64 `json:"points"`
}

// GameEvent holds data about an event sent to clients in a consistent format.
type GameEvent struct {
	Type      GameEventType    `json:"type"`
	RoomCode  string           `json:"roomCode,omitempty"`
	Phase     Phase            `json:"phase,omitempty"`
	Question  *QuestionPayload `json:"question,omitempty"`
	Remaining *int             `json:"remaining,omitempty"`
	Paused    *bool            `json:"paused,omitempty"`
	Locked    *bool            `json:"locked,omitempty"`
	Roster    []RosterEntry    `json:"roster,omitempty"`
	Deltas    []PointDelta     `json:"deltas,omitempty"`
	Standings []Standing       `json:"standings,omitempty"`
	Reason    string           `json:"reason,omitempty"`

	// Payload carries the less structured fields (tokens, correct answers, counts).
	Payload map[string]interface{} `json:"payload,omitempty"`
}

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

// RejectedJoinEvent builds the reply sent to a client whose join was refused.
func RejectedJoinEvent(roomCode string, reason RejectReason) GameEvent {
	return GameEvent{
		Type:     EventJoinRejected,
		RoomCode: roomCode,
		Reason:   string(reason),
		Payload:  map[string]interface{}{"message": reason.Message()},
	}
}

// ErrorEvent builds a generic error reply.
func ErrorEvent(t GameEventType, err error) GameEvent {
	return GameEvent{Type: t, Reason: err.Error()}
}
