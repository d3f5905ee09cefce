// internal/game/errors.go
package game

import "errors"

// RejectReason tells a client why its join attempt was refused.
// Rejections are an expected outcome, not a fault, so they are returned as values.
type RejectReason string

const (
	RejectNone          RejectReason = ""
	RejectRoomNotFound  RejectReason = "room_not_found"
	RejectRoomLocked    RejectReason = "room_locked"
	RejectNameBanned    RejectReason = "name_banned"
	RejectNameTaken     RejectReason = "name_taken"
	RejectNameReserved  RejectReason = "name_reserved"
	RejectNameInvalid   RejectReason = "name_invalid"
	RejectAlreadyJoined RejectReason = "already_joined"
	RejectTestSession   RejectReason = "test_session"
)

// Message returns a human readable description for the client.
func (r RejectReason) Message() string {
	switch r {
	case RejectRoomNotFound:
		return "No game exists with this room code."
	case RejectRoomLocked:
		return "The organizer has locked this game."
	case RejectNameBanned:
		return "This name has been banned from the game."
	case RejectNameTaken:
		return "Another player already uses this name."
	case RejectNameReserved:
		return "This name is reserved."
	case RejectNameInvalid:
		return "Please choose a non-empty name."
	case RejectAlreadyJoined:
		return "This connection already joined the game."
	case RejectTestSession:
		return "This game is an organizer test run and does not accept players."
	default:
		return ""
	}
}

var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrEmptyQuiz          = errors.New("quiz has no questions")
	ErrRoomCodesExhausted = errors.New("could not allocate a free room code")

	ErrNotOrganizer     = errors.New("action reserved to the organizer")
	ErrInvalidPhase     = errors.New("action not allowed in the current phase")
	ErrNoActiveTimer    = errors.New("no active timer")
	ErrAlertUnavailable = errors.New("alert mode unavailable")
	ErrInvalidTarget    = errors.New("invalid ban target")
	ErrOrganizerPresent = errors.New("organizer already connected")
	ErrUnknownAction    = errors.New("unknown organizer action")

	ErrNotInSession     = errors.New("connection is not a player of this session")
	ErrQuestionLocked   = errors.New("question is not open for answers")
	ErrNotEligible      = errors.New("player joined after the question opened")
	ErrAlreadySubmitted = errors.New("answer already submitted")
	ErrMalformedAnswer  = errors.New("malformed answer")
)
