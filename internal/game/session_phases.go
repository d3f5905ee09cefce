// internal/game/session_phases.go
package game

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/samyarj/polyhoot/internal/models"
)

// StartGame leaves the lobby. A start countdown runs first unless the session
// is in test mode or the countdown is configured to zero.
func (s *GameSession) StartGame(conn Conn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireOrganizerLocked(conn); err != nil {
		return err
	}
	if s.phase != PhaseLobby {
		return fmt.Errorf("start game in %s: %w", s.phase, ErrInvalidPhase)
	}
	s.startedAt = s.settings.Clock.Now()
	s.logAction("organizer", "start_game", map[string]interface{}{"players": len(s.players)})
	s.log.Infof("game started with %d players", len(s.players))

	if s.TestMode || s.settings.StartCountdownSeconds == 0 {
		s.openQuestionLocked(0)
		return nil
	}
	s.beginCountdownLocked(0, s.settings.StartCountdownSeconds)
	return nil
}

// NextQuestion moves past the results of the current question. After the
// last question the game ends and final standings are broadcast.
func (s *GameSession) NextQuestion(conn Conn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireOrganizerLocked(conn); err != nil {
		return err
	}
	if s.phase != PhaseResults {
		return fmt.Errorf("next question in %s: %w", s.phase, ErrInvalidPhase)
	}
	next := s.questionIndex + 1
	s.logAction("organizer", "next_question", map[string]interface{}{"index": next})
	if next >= len(s.Quiz.Questions) {
		s.finishGameLocked()
		return nil
	}
	if s.TestMode || s.settings.BetweenQuestionsSeconds == 0 {
		s.openQuestionLocked(next)
		return nil
	}
	s.beginCountdownLocked(next, s.settings.BetweenQuestionsSeconds)
	return nil
}

// beginCountdownLocked enters the countdown phase that precedes question idx. Assumes lock is held.
func (s *GameSession) beginCountdownLocked(idx int, seconds int) {
	s.phase = PhaseCountdown
	s.pendingIndex = idx
	s.startTimerLocked(seconds, func() {
		if s.phase == PhaseCountdown {
			s.openQuestionLocked(s.pendingIndex)
		}
	})
	s.broadcastPhaseLocked()
}

// openQuestionLocked resets every player and opens question idx. Assumes lock is held.
func (s *GameSession) openQuestionLocked(idx int) {
	if idx < s.questionIndex || idx >= len(s.Quiz.Questions) {
		s.abortLocked("question index %d invalid (current %d, total %d)", idx, s.questionIndex, len(s.Quiz.Questions))
		return
	}
	s.questionIndex = idx
	q := s.Quiz.Questions[idx]
	for _, p := range s.players {
		p.ResetForQuestion(q)
	}
	s.firstAssigned = false
	s.alertStarted = false
	s.phase = PhaseQuestionOpen

	if s.TestMode {
		s.stopTimerLocked()
	} else {
		s.startTimerLocked(s.questionDurationLocked(q), s.closeQuestionLocked)
	}
	s.broadcastPhaseLocked()
	s.broadcastRosterLocked()
	s.logAction("system", "question_opened", map[string]interface{}{"index": idx})
}

// closeQuestionLocked freezes submissions, scores every eligible player and
// moves to the results phase. Assumes lock is held.
func (s *GameSession) closeQuestionLocked() {
	if s.phase != PhaseQuestionOpen {
		return
	}
	if s.questionIndex >= len(s.Quiz.Questions) {
		s.abortLocked("closing question %d of %d", s.questionIndex, len(s.Quiz.Questions))
		return
	}
	s.stopTimerLocked()
	s.phase = PhaseQuestionLocked
	s.broadcastPhaseLocked()

	q := s.Quiz.Questions[s.questionIndex]
	deltas := make([]PointDelta, 0, len(s.players))
	for _, id := range s.sortedConnIDsLocked() {
		p := s.players[id]
		if !p.Eligible {
			continue
		}
		correct := VerifyAnswerCorrect(p, q)
		delta := UpdatePlayerPoints(p, q, s.settings.BonusMultiplier)
		deltas = append(deltas, PointDelta{
			Name:    p.Name,
			Correct: correct,
			Bonus:   correct && p.IsFirstCorrectResponder,
			Delta:   delta,
			Total:   p.Points,
		})
	}

	s.broadcastLocked(GameEvent{
		Type:      EventAnswerFinalized,
		Phase:     s.phase,
		Deltas:    deltas,
		Standings: s.standingsLocked(),
		Payload:   correctAnswerPayload(q, s.questionIndex),
	})
	s.logAction("system", "question_closed", map[string]interface{}{"index": s.questionIndex, "scored": len(deltas)})

	s.phase = PhaseResults
	s.broadcastPhaseLocked()
}

// finishGameLocked ends the game and hands the summary to the recorder. Assumes lock is held.
func (s *GameSession) finishGameLocked() {
	s.stopTimerLocked()
	s.phase = PhaseEnded
	s.endedAt = s.settings.Clock.Now()
	standings := s.standingsLocked()

	s.broadcastLocked(GameEvent{Type: EventGameEnded, Phase: s.phase, Standings: standings})
	s.logAction("system", "game_ended", map[string]interface{}{"players": len(standings)})
	s.log.Infof("game ended with %d players", len(standings))

	if s.hooks.Recorder == nil {
		return
	}
	rec := models.GameRecord{
		ID:          uuid.New(),
		RoomCode:    s.RoomCode,
		QuizID:      s.Quiz.ID,
		QuizTitle:   s.Quiz.Title,
		TestMode:    s.TestMode,
		StartedAt:   s.startedAt,
		EndedAt:     s.endedAt,
		PlayerCount: len(standings),
	}
	for _, st := range standings {
		rec.Results = append(rec.Results, models.PlayerResult{Name: st.Name, Points: st.Points, Rank: st.Rank})
	}
	recorder := s.hooks.Recorder
	logger := s.log
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := recorder.RecordGame(ctx, rec); err != nil {
			logger.Errorf("failed to record game %s: %v", rec.ID, err)
		}
	}()
}

// shouldCloseEarlyLocked reports whether every eligible player has submitted. Assumes lock is held.
func (s *GameSession) shouldCloseEarlyLocked() bool {
	if !s.settings.EarlyClose && !s.TestMode {
		return false
	}
	eligible := 0
	for _, p := range s.players {
		if !p.Eligible {
			continue
		}
		if !p.Submitted {
			return false
		}
		eligible++
	}
	return eligible > 0
}

func correctAnswerPayload(q models.Question, idx int) map[string]interface{} {
	payload := map[string]interface{}{"index": idx}
	switch q.Type {
	case models.QuestionTypeQCM:
		payload["correctChoices"] = q.CorrectChoices()
	case models.QuestionTypeQRE:
		if q.Range != nil {
			payload["goodAnswer"] = q.Range.GoodAnswer
			payload["tolerance"] = q.Range.Tolerance
		}
	}
	return payload
}
