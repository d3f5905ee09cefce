// internal/game/session.go
package game

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/samyarj/polyhoot/internal/models"
	"github.com/samyarj/polyhoot/internal/timer"
	"github.com/sirupsen/logrus"
)

// Phase is the current stage of a session's state machine.
type Phase string

const (
	PhaseLobby          Phase = "lobby"
	PhaseCountdown      Phase = "countdown"
	PhaseQuestionOpen   Phase = "question_open"
	PhaseQuestionLocked Phase = "question_locked"
	PhaseResults        Phase = "results"
	PhaseEnded          Phase = "ended"
)

// organizerDisplayName is the name the organizer plays under in test mode.
const organizerDisplayName = "Organisateur"

// GameSession holds the entire state of one live room in memory.
// Every exported method acquires mu; timer callbacks acquire it too and check
// that the countdown they belong to is still the active one.
type GameSession struct {
	ID        uuid.UUID
	RoomCode  string
	Quiz      models.Quiz
	TestMode  bool
	CreatedAt time.Time

	mu       sync.Mutex
	settings Settings
	hooks    Hooks
	log      *logrus.Entry

	phase         Phase
	questionIndex int
	pendingIndex  int
	locked        bool
	banned        map[string]struct{}
	players       map[string]*Player // keyed by connection ID

	organizer       Conn
	organizerPlayer *Player // only set in test mode

	timer         *timer.Countdown
	alertStarted  bool
	firstAssigned bool

	graceTimer clockwork.Timer
	graceGen   int

	actionIndex  int
	startedAt    time.Time
	endedAt      time.Time
	lastActivity time.Time
	closed       bool

	// onClosed runs with mu held once the session is torn down. It must not call back into the session.
	onClosed func(*GameSession)
}

// NewGameSession builds a session in the lobby phase. The quiz must contain at least one question.
func NewGameSession(roomCode string, quiz models.Quiz, organizer Conn, testMode bool, settings Settings, hooks Hooks, logger *logrus.Logger) *GameSession {
	settings = settings.withDefaults()
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	now := settings.Clock.Now()
	s := &GameSession{
		ID:           uuid.New(),
		RoomCode:     roomCode,
		Quiz:         quiz,
		TestMode:     testMode,
		CreatedAt:    now,
		settings:     settings,
		hooks:        hooks,
		phase:        PhaseLobby,
		banned:       make(map[string]struct{}),
		players:      make(map[string]*Player),
		organizer:    organizer,
		lastActivity: now,
	}
	s.log = logger.WithFields(logrus.Fields{"room": roomCode, "session": s.ID})
	if testMode && organizer != nil {
		p := NewPlayer(organizer, organizerDisplayName, true)
		s.players[p.ConnID] = p
		s.organizerPlayer = p
	}
	return s
}

// --- Read accessors ---

func (s *GameSession) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *GameSession) QuestionIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.questionIndex
}

func (s *GameSession) IsLocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locked
}

func (s *GameSession) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// IsOrganizer reports whether conn is the session's current organizer connection.
func (s *GameSession) IsOrganizer(conn Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sameConn(s.organizer, conn)
}

// IsBanned reports whether name was banned from this session.
func (s *GameSession) IsBanned(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.banned[normalizeName(name)]
	return ok
}

// PlayerByName returns a copy of the player using name, if any.
func (s *GameSession) PlayerByName(name string) (Player, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p := s.playerByNameLocked(normalizeName(name)); p != nil {
		cp := *p
		cp.CurrentChoices = append([]bool(nil), p.CurrentChoices...)
		return cp, true
	}
	return Player{}, false
}

// PlayerCount returns the number of admitted players, the test-mode organizer included.
func (s *GameSession) PlayerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.players)
}

// Remaining returns the active countdown value, if a countdown runs.
func (s *GameSession) Remaining() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer == nil {
		return 0, false
	}
	return s.timer.Remaining(), true
}

// Standings returns the current scoreboard.
func (s *GameSession) Standings() []Standing {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.standingsLocked()
}

// SessionInfo is the public view used by pre-join validation.
type SessionInfo struct {
	RoomCode      string `json:"roomCode"`
	QuizTitle     string `json:"quizTitle"`
	Phase         Phase  `json:"phase"`
	Locked        bool   `json:"locked"`
	PlayerCount   int    `json:"playerCount"`
	QuestionIndex int    `json:"questionIndex"`
	QuestionCount int    `json:"questionCount"`
	TestMode      bool   `json:"testMode"`
}

func (s *GameSession) Info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionInfo{
		RoomCode:      s.RoomCode,
		QuizTitle:     s.Quiz.Title,
		Phase:         s.phase,
		Locked:        s.locked,
		PlayerCount:   len(s.players),
		QuestionIndex: s.questionIndex,
		QuestionCount: len(s.Quiz.Questions),
		TestMode:      s.TestMode,
	}
}

// --- Broadcast helpers. All assume lock is held. ---

// broadcastLocked sends ev to every player and the organizer, in apply order,
// and mirrors it to the event sink. Ticks are not mirrored.
func (s *GameSession) broadcastLocked(ev GameEvent) {
	ev.RoomCode = s.RoomCode
	sent := make(map[string]struct{}, len(s.players)+1)
	for _, id := range s.sortedConnIDsLocked() {
		p := s.players[id]
		if p.conn == nil {
			continue
		}
		sent[id] = struct{}{}
		p.conn.Send(ev)
	}
	if s.organizer != nil {
		if _, dup := sent[s.organizer.ID()]; !dup {
			s.organizer.Send(ev)
		}
	}
	if s.hooks.Sink != nil && ev.Type != EventTick {
		if err := s.hooks.Sink.Publish(s.RoomCode, ev); err != nil {
			s.log.Warnf("failed to publish %s event: %v", ev.Type, err)
		}
	}
}

func (s *GameSession) sendToOrganizerLocked(ev GameEvent) {
	if s.organizer == nil {
		return
	}
	ev.RoomCode = s.RoomCode
	s.organizer.Send(ev)
}

func (s *GameSession) sendLocked(conn Conn, ev GameEvent) {
	if conn == nil {
		return
	}
	ev.RoomCode = s.RoomCode
	conn.Send(ev)
}

func (s *GameSession) broadcastPhaseLocked() {
	ev := GameEvent{Type: EventPhaseChanged, Phase: s.phase}
	switch s.phase {
	case PhaseQuestionOpen, PhaseQuestionLocked, PhaseResults:
		ev.Question = s.questionPayloadLocked()
	}
	if s.timer != nil {
		ev.Remaining = intPtr(s.timer.Remaining())
	}
	if s.phase == PhaseResults {
		ev.Payload = map[string]interface{}{"isLastQuestion": s.questionIndex == len(s.Quiz.Questions)-1}
	}
	s.broadcastLocked(ev)
}

func (s *GameSession) broadcastRosterLocked() {
	s.broadcastLocked(GameEvent{Type: EventRosterChanged, Roster: s.rosterLocked()})
}

// syncStateLocked builds the full view handed to a (re)joining connection.
func (s *GameSession) syncStateLocked(t GameEventType) GameEvent {
	ev := GameEvent{
		Type:      t,
		RoomCode:  s.RoomCode,
		Phase:     s.phase,
		Locked:    boolPtr(s.locked),
		Roster:    s.rosterLocked(),
		Standings: s.standingsLocked(),
		Payload: map[string]interface{}{
			"quizTitle":     s.Quiz.Title,
			"questionCount": len(s.Quiz.Questions),
			"testMode":      s.TestMode,
		},
	}
	if s.phase != PhaseLobby && s.phase != PhaseEnded {
		ev.Question = s.questionPayloadLocked()
	}
	if s.timer != nil {
		ev.Remaining = intPtr(s.timer.Remaining())
		ev.Paused = boolPtr(s.timer.Paused())
	}
	return ev
}

func (s *GameSession) questionPayloadLocked() *QuestionPayload {
	if s.questionIndex < 0 || s.questionIndex >= len(s.Quiz.Questions) {
		return nil
	}
	q := s.Quiz.Questions[s.questionIndex]
	qp := &QuestionPayload{
		Index:           s.questionIndex,
		Total:           len(s.Quiz.Questions),
		Type:            q.Type,
		Text:            q.Text,
		Points:          q.Points,
		DurationSeconds: s.questionDurationLocked(q),
	}
	for _, c := range q.Choices {
		qp.Choices = append(qp.Choices, c.Text)
	}
	if q.Range != nil {
		min, max := q.Range.Min, q.Range.Max
		qp.Min, qp.Max = &min, &max
	}
	return qp
}

func (s *GameSession) questionDurationLocked(q models.Question) int {
	if q.DurationSeconds > 0 {
		return q.DurationSeconds
	}
	return s.settings.QuestionDurationSeconds
}

// --- Roster helpers. All assume lock is held. ---

func (s *GameSession) sortedConnIDsLocked() []string {
	ids := make([]string, 0, len(s.players))
	for id := range s.players {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *GameSession) playerByNameLocked(key string) *Player {
	for _, p := range s.players {
		if normalizeName(p.Name) == key {
			return p
		}
	}
	return nil
}

func (s *GameSession) rosterLocked() []RosterEntry {
	roster := make([]RosterEntry, 0, len(s.players))
	for _, p := range s.players {
		roster = append(roster, RosterEntry{
			Name:        p.Name,
			Points:      p.Points,
			Submitted:   p.Submitted,
			IsOrganizer: p.IsOrganizer,
		})
	}
	sort.Slice(roster, func(i, j int) bool { return normalizeName(roster[i].Name) < normalizeName(roster[j].Name) })
	return roster
}

// standingsLocked ranks players by points. Ties share a rank.
func (s *GameSession) standingsLocked() []Standing {
	standings := make([]Standing, 0, len(s.players))
	for _, p := range s.players {
		standings = append(standings, Standing{Name: p.Name, Points: p.Points})
	}
	sort.Slice(standings, func(i, j int) bool {
		if standings[i].Points != standings[j].Points {
			return standings[i].Points > standings[j].Points
		}
		return normalizeName(standings[i].Name) < normalizeName(standings[j].Name)
	})
	for i := range standings {
		if i > 0 && standings[i].Points == standings[i-1].Points {
			standings[i].Rank = standings[i-1].Rank
		} else {
			standings[i].Rank = i + 1
		}
	}
	return standings
}

// --- Timer management. All assume lock is held. ---

// startTimerLocked replaces the active countdown with a new instance.
// onExpire runs with the lock held, and only if the instance is still current.
func (s *GameSession) startTimerLocked(seconds int, onExpire func()) {
	s.stopTimerLocked()
	var cd *timer.Countdown
	cd = timer.New(seconds, timer.Options{
		Clock:         s.settings.Clock,
		Interval:      s.settings.TickInterval,
		AlertInterval: s.settings.AlertTickInterval,
		OnTick:        func(v int) { s.handleTick(cd, v) },
		OnExpire:      func() { s.handleExpire(cd, onExpire) },
	})
	s.timer = cd
	cd.Start()
}

func (s *GameSession) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *GameSession) handleTick(cd *timer.Countdown, remaining int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != cd || s.closed {
		return
	}
	s.broadcastLocked(GameEvent{Type: EventTick, Phase: s.phase, Remaining: intPtr(remaining)})
}

func (s *GameSession) handleExpire(cd *timer.Countdown, onExpire func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != cd || s.closed {
		return
	}
	s.timer = nil
	onExpire()
}

// --- Historian ---

// logAction records an applied action asynchronously. Assumes lock is held.
func (s *GameSession) logAction(actor string, actionType string, payload map[string]interface{}) {
	s.actionIndex++
	s.lastActivity = s.settings.Clock.Now()
	if s.hooks.Actions == nil {
		return
	}
	action := models.GameAction{
		RoomCode:    s.RoomCode,
		SessionID:   s.ID.String(),
		ActionIndex: s.actionIndex,
		Actor:       actor,
		ActionType:  actionType,
		Payload:     payload,
		Timestamp:   s.lastActivity.UnixMilli(),
	}
	logger := s.log
	actions := s.hooks.Actions
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := actions.LogAction(ctx, action); err != nil {
			logger.Warnf("failed to log action %s (#%d): %v", action.ActionType, action.ActionIndex, err)
		}
	}()
}

// --- Teardown ---

// Close tears the session down and notifies every member. It is idempotent.
func (s *GameSession) Close(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.terminateLocked(reason)
}

// terminateLocked stops all timers, tells members the session is gone and
// deregisters it. Assumes lock is held.
func (s *GameSession) terminateLocked(reason string) {
	if s.closed {
		return
	}
	s.closed = true
	s.stopTimerLocked()
	s.stopGraceLocked()
	if s.phase != PhaseEnded {
		s.phase = PhaseEnded
		s.endedAt = s.settings.Clock.Now()
	}
	s.broadcastLocked(GameEvent{Type: EventSessionClosed, Phase: s.phase, Reason: reason})
	s.logAction("system", "session_closed", map[string]interface{}{"reason": reason})
	s.log.Infof("session closed: %s", reason)
	if s.onClosed != nil {
		s.onClosed(s)
	}
}

// abortLocked ends a session whose state became inconsistent. Assumes lock is held.
func (s *GameSession) abortLocked(format string, args ...interface{}) {
	s.log.Errorf("aborting session: "+format, args...)
	s.terminateLocked("internal_error")
}

// reapable reports whether the registry may drop the session.
func (s *GameSession) reapable(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	if s.phase == PhaseEnded {
		return now.Sub(s.endedAt) >= s.settings.EndedRetention
	}
	return s.phase == PhaseLobby && now.Sub(s.lastActivity) >= s.settings.IdleTTL
}
