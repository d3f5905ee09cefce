// internal/game/registry.go
package game

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/samyarj/polyhoot/internal/models"
	"github.com/sirupsen/logrus"
)

// Registry is the process-wide table of live sessions keyed by room code.
// It never holds its own lock while calling into a session.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*GameSession

	settings Settings
	hooks    Hooks
	logger   *logrus.Logger

	// newCode is swapped in tests to force collisions.
	newCode func(length int) (string, error)
}

// NewRegistry returns an empty registry whose sessions share settings and hooks.
func NewRegistry(settings Settings, hooks Hooks, logger *logrus.Logger) *Registry {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Registry{
		sessions: make(map[string]*GameSession),
		settings: settings.withDefaults(),
		hooks:    hooks,
		logger:   logger,
		newCode:  GenerateRoomCode,
	}
}

// Settings returns the settings new sessions are created with.
func (r *Registry) Settings() Settings { return r.settings }

// CreateGame registers a new lobby for quiz driven by organizer and returns its room code.
func (r *Registry) CreateGame(quiz *models.Quiz, organizer Conn, testMode bool) (string, error) {
	if quiz == nil || len(quiz.Questions) == 0 {
		return "", ErrEmptyQuiz
	}
	snapshot := *quiz
	snapshot.Questions = append([]models.Question(nil), quiz.Questions...)

	r.mu.Lock()
	defer r.mu.Unlock()
	for attempt := 0; attempt < r.settings.MaxCodeAttempts; attempt++ {
		code, err := r.newCode(r.settings.RoomCodeLength)
		if err != nil {
			return "", err
		}
		if _, taken := r.sessions[code]; taken {
			continue
		}
		s := NewGameSession(code, snapshot, organizer, testMode, r.settings, r.hooks, r.logger)
		s.onClosed = r.RemoveSession
		r.sessions[code] = s
		r.logger.WithFields(logrus.Fields{"room": code, "quiz": snapshot.Title, "testMode": testMode}).Info("game created")
		return code, nil
	}
	r.logger.Errorf("no free room code after %d attempts (%d live sessions)", r.settings.MaxCodeAttempts, len(r.sessions))
	return "", fmt.Errorf("after %d attempts: %w", r.settings.MaxCodeAttempts, ErrRoomCodesExhausted)
}

// GetSessionByRoomCode looks a session up. A missing session is a normal outcome.
func (r *Registry) GetSessionByRoomCode(code string) (*GameSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[strings.TrimSpace(code)]
	return s, ok
}

// JoinGame admits conn as name into the room. It reports false with a reason
// when the room is missing or the session refuses the join.
func (r *Registry) JoinGame(roomCode string, name string, conn Conn) (bool, RejectReason) {
	_, reason := r.Join(roomCode, name, conn)
	return reason == RejectNone, reason
}

// Join is JoinGame returning the session conn was admitted into, so callers
// never need a second lookup that could race with removal.
func (r *Registry) Join(roomCode string, name string, conn Conn) (*GameSession, RejectReason) {
	s, ok := r.GetSessionByRoomCode(roomCode)
	if !ok {
		return nil, RejectRoomNotFound
	}
	if reason := s.Admit(conn, name); reason != RejectNone {
		return nil, reason
	}
	return s, RejectNone
}

// RemoveSession deregisters s. Removing an absent session is a no-op.
func (r *Registry) RemoveSession(s *GameSession) {
	if s == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[s.RoomCode]; ok && cur == s {
		delete(r.sessions, s.RoomCode)
		r.logger.WithField("room", s.RoomCode).Debug("session removed")
	}
}

// EndGame stops the session's timers, notifies its members and removes it.
func (r *Registry) EndGame(roomCode string) error {
	s, ok := r.GetSessionByRoomCode(roomCode)
	if !ok {
		return fmt.Errorf("room %s: %w", roomCode, ErrSessionNotFound)
	}
	s.Close("ended_by_organizer")
	r.RemoveSession(s)
	return nil
}

// Reap drops ended sessions past their retention and lobbies idle past their TTL.
// It returns how many sessions were removed.
func (r *Registry) Reap(now time.Time) int {
	r.mu.RLock()
	candidates := make([]*GameSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		candidates = append(candidates, s)
	}
	r.mu.RUnlock()

	reaped := 0
	for _, s := range candidates {
		if !s.reapable(now) {
			continue
		}
		s.Close("expired")
		r.RemoveSession(s)
		reaped++
	}
	if reaped > 0 {
		r.logger.Infof("reaped %d sessions", reaped)
	}
	return reaped
}

// RunReaper calls Reap every interval until ctx is done.
func (r *Registry) RunReaper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := r.settings.Clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			r.Reap(r.settings.Clock.Now())
		}
	}
}

// Stats is a snapshot of registry occupancy.
type Stats struct {
	Sessions int           `json:"sessions"`
	Players  int           `json:"players"`
	ByPhase  map[Phase]int `json:"byPhase"`
}

func (r *Registry) Stats() Stats {
	r.mu.RLock()
	sessions := make([]*GameSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	st := Stats{Sessions: len(sessions), ByPhase: make(map[Phase]int)}
	for _, s := range sessions {
		info := s.Info()
		st.Players += info.PlayerCount
		st.ByPhase[info.Phase]++
	}
	return st
}

// CloseAll tears every session down, used on shutdown.
func (r *Registry) CloseAll(reason string) {
	r.mu.RLock()
	sessions := make([]*GameSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()
	for _, s := range sessions {
		s.Close(reason)
	}
}
