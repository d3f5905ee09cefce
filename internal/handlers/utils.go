package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samyarj/polyhoot/internal/auth"
	"github.com/samyarj/polyhoot/internal/game"
)

// rejectionReasons maps engine errors to the machine readable reason sent to clients.
var rejectionReasons = []struct {
	err    error
	reason string
}{
	{game.ErrSessionNotFound, "session_not_found"},
	{game.ErrEmptyQuiz, "empty_quiz"},
	{game.ErrRoomCodesExhausted, "room_codes_exhausted"},
	{game.ErrNotOrganizer, "not_organizer"},
	{game.ErrInvalidPhase, "invalid_phase"},
	{game.ErrNoActiveTimer, "no_active_timer"},
	{game.ErrAlertUnavailable, "alert_unavailable"},
	{game.ErrInvalidTarget, "invalid_target"},
	{game.ErrOrganizerPresent, "organizer_present"},
	{game.ErrUnknownAction, "unknown_action"},
	{game.ErrNotInSession, "not_in_session"},
	{game.ErrQuestionLocked, "question_locked"},
	{game.ErrNotEligible, "not_eligible"},
	{game.ErrAlreadySubmitted, "already_submitted"},
	{game.ErrMalformedAnswer, "malformed_answer"},
	{auth.ErrWrongRoom, "invalid_token"},
	{jwt.ErrTokenMalformed, "invalid_token"},
	{jwt.ErrTokenExpired, "invalid_token"},
	{jwt.ErrTokenSignatureInvalid, "invalid_token"},
	{errQuizRequired, "quiz_required"},
	{errQuizUnavailable, "quiz_unavailable"},
}

func rejectionReason(err error) string {
	for _, r := range rejectionReasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return "bad_request"
}

// rejection builds a reply of type t explaining err.
func rejection(t game.GameEventType, err error) game.GameEvent {
	return game.GameEvent{
		Type:    t,
		Reason:  rejectionReason(err),
		Payload: map[string]interface{}{"message": err.Error()},
	}
}

// originPatterns turns CORS origins into the host patterns websocket.Accept expects.
func originPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))
	for _, o := range origins {
		o = strings.TrimSpace(o)
		o = strings.TrimPrefix(o, "https://")
		o = strings.TrimPrefix(o, "http://")
		if o != "" {
			patterns = append(patterns, o)
		}
	}
	return patterns
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
