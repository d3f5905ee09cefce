// internal/game/session_controls.go
package game

import (
	"fmt"
	"math"

	"github.com/samyarj/polyhoot/internal/models"
	"github.com/samyarj/polyhoot/internal/timer"
)

// ControlAction is an organizer command.
type ControlAction string

const (
	ActionStart          ControlAction = "start"
	ActionPause          ControlAction = "pause"
	ActionNextQuestion   ControlAction = "next_question"
	ActionEnd            ControlAction = "end"
	ActionToggleLock     ControlAction = "toggle_lock"
	ActionBan            ControlAction = "ban"
	ActionStartAlertMode ControlAction = "start_alert_mode"
)

// Answer is a submitted answer. A nil field falls back to the selection the
// player built with SelectChoice or SetNumericAnswer.
type Answer struct {
	Choices []bool   `json:"choices,omitempty"`
	Value   *float64 `json:"value,omitempty"`
}

// requireOrganizerLocked checks that conn drives this session. Assumes lock is held.
func (s *GameSession) requireOrganizerLocked(conn Conn) error {
	if s.closed {
		return ErrSessionNotFound
	}
	if !sameConn(s.organizer, conn) {
		return ErrNotOrganizer
	}
	return nil
}

// Control dispatches an organizer action. Ending the game is handled by the
// registry since it also deregisters the session.
func (s *GameSession) Control(conn Conn, action ControlAction, target string) error {
	switch action {
	case ActionStart:
		return s.StartGame(conn)
	case ActionPause:
		_, err := s.TogglePause(conn)
		return err
	case ActionNextQuestion:
		return s.NextQuestion(conn)
	case ActionToggleLock:
		_, err := s.ToggleLock(conn)
		return err
	case ActionBan:
		return s.BanPlayer(conn, target)
	case ActionStartAlertMode:
		return s.StartAlertMode(conn)
	default:
		return fmt.Errorf("%q: %w", action, ErrUnknownAction)
	}
}

// --- Membership ---

// Admit adds a player under name after re-checking every join rule under the
// session lock. Rejections are reported only to the rejected connection.
func (s *GameSession) Admit(conn Conn, name string) RejectReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.phase == PhaseEnded {
		return RejectRoomNotFound
	}
	// Test runs have no question timer, so only the organizer may play.
	if s.TestMode {
		return RejectTestSession
	}
	if s.locked {
		return RejectRoomLocked
	}
	key := normalizeName(name)
	if key == "" {
		return RejectNameInvalid
	}
	if _, banned := s.banned[key]; banned {
		return RejectNameBanned
	}
	if s.playerByNameLocked(key) != nil {
		return RejectNameTaken
	}
	for _, reserved := range ReservedNames {
		if key == reserved {
			return RejectNameReserved
		}
	}
	if _, dup := s.players[conn.ID()]; dup || sameConn(s.organizer, conn) {
		return RejectAlreadyJoined
	}

	p := NewPlayer(conn, name, false)
	if s.phase == PhaseQuestionOpen {
		// Late joiners watch the current question but only play from the next one.
		p.ResetForQuestion(s.Quiz.Questions[s.questionIndex])
		p.Eligible = false
	}
	s.players[p.ConnID] = p

	s.sendLocked(conn, s.syncStateLocked(EventJoinAccepted))
	s.broadcastRosterLocked()
	s.logAction(p.Name, "player_joined", nil)
	s.log.WithField("player", p.Name).Info("player joined")
	return RejectNone
}

// Leave handles a voluntary departure. An organizer leaving ends the session.
func (s *GameSession) Leave(conn Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeConnLocked(conn, true)
}

// Disconnect handles a dropped connection. For the organizer the configured
// OrganizerPolicy applies.
func (s *GameSession) Disconnect(conn Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeConnLocked(conn, false)
}

// removeConnLocked never changes the phase for player removals. Assumes lock is held.
func (s *GameSession) removeConnLocked(conn Conn, voluntary bool) {
	if s.closed || conn == nil {
		return
	}
	if sameConn(s.organizer, conn) {
		if s.organizerPlayer != nil {
			delete(s.players, s.organizerPlayer.ConnID)
		}
		s.organizerGoneLocked(voluntary)
		return
	}
	p, ok := s.players[conn.ID()]
	if !ok {
		return
	}
	delete(s.players, conn.ID())
	s.logAction(p.Name, "player_left", map[string]interface{}{"voluntary": voluntary})
	s.log.WithField("player", p.Name).Info("player left")
	s.broadcastRosterLocked()

	if s.organizer == nil && len(s.players) == 0 {
		s.terminateLocked("empty")
	}
}

// organizerGoneLocked applies the organizer disconnect policy. Assumes lock is held.
func (s *GameSession) organizerGoneLocked(voluntary bool) {
	if voluntary || s.phase == PhaseEnded || s.settings.OrganizerPolicy != OrganizerPolicyGrace {
		s.terminateLocked("organizer_left")
		return
	}
	s.organizer = nil
	s.logAction("organizer", "organizer_disconnected", nil)
	s.log.Warnf("organizer disconnected, waiting %s for reconnect", s.settings.OrganizerGrace)
	s.broadcastLocked(GameEvent{
		Type:    EventOrganizerDisconnected,
		Phase:   s.phase,
		Payload: map[string]interface{}{"graceSeconds": int(s.settings.OrganizerGrace.Seconds())},
	})
	if len(s.players) == 0 {
		s.terminateLocked("empty")
		return
	}

	s.stopGraceLocked()
	gen := s.graceGen
	s.graceTimer = s.settings.Clock.AfterFunc(s.settings.OrganizerGrace, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if gen != s.graceGen || s.organizer != nil {
			return
		}
		s.terminateLocked("organizer_timeout")
	})
}

func (s *GameSession) stopGraceLocked() {
	s.graceGen++
	if s.graceTimer != nil {
		s.graceTimer.Stop()
		s.graceTimer = nil
	}
}

// ReconnectOrganizer rebinds the organizer role to conn during the grace period.
// The caller is responsible for authenticating conn.
func (s *GameSession) ReconnectOrganizer(conn Conn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionNotFound
	}
	if s.organizer != nil {
		return ErrOrganizerPresent
	}
	s.stopGraceLocked()
	s.organizer = conn
	if s.organizerPlayer != nil {
		p := s.organizerPlayer
		p.ConnID = conn.ID()
		p.conn = conn
		s.players[p.ConnID] = p
	}
	s.logAction("organizer", "organizer_reconnected", nil)
	s.log.Info("organizer reconnected")
	s.sendLocked(conn, s.syncStateLocked(EventSyncState))
	s.broadcastLocked(GameEvent{Type: EventOrganizerReconnected, Phase: s.phase})
	return nil
}

// --- Answers ---

// playerForAnswerLocked returns the player of conn if it may still change its
// answer to the current question. Assumes lock is held.
func (s *GameSession) playerForAnswerLocked(conn Conn) (*Player, models.Question, error) {
	if s.closed {
		return nil, models.Question{}, ErrSessionNotFound
	}
	p, ok := s.players[conn.ID()]
	if !ok {
		return nil, models.Question{}, ErrNotInSession
	}
	if s.phase != PhaseQuestionOpen {
		return nil, models.Question{}, ErrQuestionLocked
	}
	if !p.Eligible {
		return nil, models.Question{}, ErrNotEligible
	}
	if p.Submitted {
		return nil, models.Question{}, ErrAlreadySubmitted
	}
	return p, s.Quiz.Questions[s.questionIndex], nil
}

// SelectChoice toggles one choice of the pending QCM answer of conn.
func (s *GameSession) SelectChoice(conn Conn, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, q, err := s.playerForAnswerLocked(conn)
	if err != nil {
		return err
	}
	if q.Type != models.QuestionTypeQCM || index < 0 || index >= len(p.CurrentChoices) {
		return fmt.Errorf("choice %d: %w", index, ErrMalformedAnswer)
	}
	p.CurrentChoices[index] = !p.CurrentChoices[index]
	s.sendToOrganizerLocked(s.answerStatsLocked(q))
	return nil
}

// SetNumericAnswer sets the pending QRE answer of conn.
func (s *GameSession) SetNumericAnswer(conn Conn, value float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, q, err := s.playerForAnswerLocked(conn)
	if err != nil {
		return err
	}
	if err := validateNumeric(q, value); err != nil {
		return err
	}
	p.NumericAnswer = &value
	return nil
}

// SubmitAnswer finalizes the answer of conn for the open question. The first
// accepted correct submission takes the first-correct-responder marker.
func (s *GameSession) SubmitAnswer(conn Conn, ans Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, q, err := s.playerForAnswerLocked(conn)
	if err != nil {
		return err
	}

	switch q.Type {
	case models.QuestionTypeQCM:
		if ans.Value != nil {
			return fmt.Errorf("numeric value on a choice question: %w", ErrMalformedAnswer)
		}
		if ans.Choices != nil {
			if len(ans.Choices) != len(q.Choices) {
				return fmt.Errorf("got %d choices, want %d: %w", len(ans.Choices), len(q.Choices), ErrMalformedAnswer)
			}
			p.CurrentChoices = append([]bool(nil), ans.Choices...)
		}
	case models.QuestionTypeQRE:
		if ans.Choices != nil {
			return fmt.Errorf("choices on a range question: %w", ErrMalformedAnswer)
		}
		if ans.Value != nil {
			if err := validateNumeric(q, *ans.Value); err != nil {
				return err
			}
			v := *ans.Value
			p.NumericAnswer = &v
		}
		if p.NumericAnswer == nil {
			return fmt.Errorf("missing value: %w", ErrMalformedAnswer)
		}
	default:
		s.abortLocked("question %d has unknown type %q", s.questionIndex, q.Type)
		return ErrSessionNotFound
	}

	p.Submitted = true
	p.SubmittedAt = s.settings.Clock.Now()
	if !s.firstAssigned && VerifyAnswerCorrect(p, q) {
		p.IsFirstCorrectResponder = true
		s.firstAssigned = true
	}

	s.sendLocked(conn, GameEvent{Type: EventSubmissionAccepted, Phase: s.phase})
	s.sendToOrganizerLocked(s.answerStatsLocked(q))
	s.logAction(p.Name, "submit_answer", map[string]interface{}{
		"index":   s.questionIndex,
		"choices": p.CurrentChoices,
		"value":   p.NumericAnswer,
	})

	if s.shouldCloseEarlyLocked() {
		s.closeQuestionLocked()
	}
	return nil
}

func validateNumeric(q models.Question, v float64) error {
	if q.Type != models.QuestionTypeQRE || q.Range == nil {
		return fmt.Errorf("numeric answer on a %s question: %w", q.Type, ErrMalformedAnswer)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("non-finite value: %w", ErrMalformedAnswer)
	}
	if q.Range.Max > q.Range.Min && (v < q.Range.Min || v > q.Range.Max) {
		return fmt.Errorf("value %v outside [%v, %v]: %w", v, q.Range.Min, q.Range.Max, ErrMalformedAnswer)
	}
	return nil
}

// answerStatsLocked summarizes live answers for the organizer. Assumes lock is held.
func (s *GameSession) answerStatsLocked(q models.Question) GameEvent {
	submitted, eligible := 0, 0
	counts := make([]int, len(q.Choices))
	for _, p := range s.players {
		if !p.Eligible {
			continue
		}
		eligible++
		if p.Submitted {
			submitted++
		}
		for i, sel := range p.CurrentChoices {
			if sel && i < len(counts) {
				counts[i]++
			}
		}
	}
	payload := map[string]interface{}{
		"index":     s.questionIndex,
		"submitted": submitted,
		"eligible":  eligible,
	}
	if q.Type == models.QuestionTypeQCM {
		payload["choiceCounts"] = counts
	}
	return GameEvent{Type: EventAnswerStats, Phase: s.phase, Payload: payload}
}

// --- Organizer controls ---

// TogglePause pauses or resumes the active countdown and returns the new pause state.
func (s *GameSession) TogglePause(conn Conn) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireOrganizerLocked(conn); err != nil {
		return false, err
	}
	if s.timer == nil {
		return false, ErrNoActiveTimer
	}
	paused := true
	if s.timer.Paused() {
		s.timer.Resume()
		paused = false
	} else if !s.timer.Pause() {
		return false, ErrNoActiveTimer
	}
	s.broadcastLocked(GameEvent{
		Type:      EventPauseStateChanged,
		Phase:     s.phase,
		Paused:    boolPtr(paused),
		Remaining: intPtr(s.timer.Remaining()),
	})
	s.logAction("organizer", "toggle_pause", map[string]interface{}{"paused": paused})
	return paused, nil
}

// StartAlertMode switches the question countdown to the fast cadence. It is
// only available once per question, while the countdown still ticks at the
// normal cadence with at least AlertThresholdSeconds remaining.
func (s *GameSession) StartAlertMode(conn Conn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireOrganizerLocked(conn); err != nil {
		return err
	}
	if s.phase != PhaseQuestionOpen {
		return fmt.Errorf("alert mode in %s: %w", s.phase, ErrInvalidPhase)
	}
	if s.timer == nil {
		return ErrNoActiveTimer
	}
	if s.alertStarted || s.timer.Mode() != timer.ModeNormal {
		return fmt.Errorf("already in alert mode: %w", ErrAlertUnavailable)
	}
	remaining := s.timer.Remaining()
	if remaining < s.settings.AlertThresholdSeconds {
		return fmt.Errorf("%ds remaining, need %d: %w", remaining, s.settings.AlertThresholdSeconds, ErrAlertUnavailable)
	}
	if !s.timer.StartAlert() {
		return ErrAlertUnavailable
	}
	s.alertStarted = true
	s.broadcastLocked(GameEvent{Type: EventAlertModeStarted, Phase: s.phase, Remaining: intPtr(remaining)})
	s.logAction("organizer", "start_alert_mode", map[string]interface{}{"remaining": remaining})
	return nil
}

// ToggleLock flips join gating and returns the new lock state. Existing players are unaffected.
func (s *GameSession) ToggleLock(conn Conn) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireOrganizerLocked(conn); err != nil {
		return false, err
	}
	s.locked = !s.locked
	s.broadcastLocked(GameEvent{Type: EventLockStateChanged, Phase: s.phase, Locked: boolPtr(s.locked)})
	s.logAction("organizer", "toggle_lock", map[string]interface{}{"locked": s.locked})
	return s.locked, nil
}

// BanPlayer blocks name for the rest of the session and disconnects the player using it, if any.
func (s *GameSession) BanPlayer(conn Conn, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireOrganizerLocked(conn); err != nil {
		return err
	}
	key := normalizeName(name)
	if key == "" {
		return ErrInvalidTarget
	}
	for _, reserved := range ReservedNames {
		if key == reserved {
			return ErrInvalidTarget
		}
	}
	if p := s.playerByNameLocked(key); p != nil && p.IsOrganizer {
		return ErrInvalidTarget
	}

	s.banned[key] = struct{}{}
	s.logAction("organizer", "ban_player", map[string]interface{}{"name": name})
	if p := s.playerByNameLocked(key); p != nil {
		delete(s.players, p.ConnID)
		s.log.WithField("player", p.Name).Info("player banned")
		if p.conn != nil {
			s.sendLocked(p.conn, GameEvent{Type: EventBanned, Reason: "banned"})
			p.conn.Close("banned")
		}
		s.broadcastRosterLocked()
	}
	return nil
}
