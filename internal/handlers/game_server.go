// internal/handlers/game_server.go
package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samyarj/polyhoot/internal/auth"
	"github.com/samyarj/polyhoot/internal/game"
	"github.com/samyarj/polyhoot/internal/models"
	"github.com/sirupsen/logrus"
)

var (
	errQuizRequired    = errors.New("either quiz or quizId is required")
	errQuizUnavailable = errors.New("quiz lookup is not configured")
)

// GameServer ties the session registry to its transports.
type GameServer struct {
	Registry *game.Registry
	Tokens   *auth.TokenIssuer
	Logger   *logrus.Logger

	// Quizzes resolves create_game requests that reference a stored quiz. Optional.
	Quizzes game.QuizSource

	// PublicURL prefixes the join link encoded in QR codes.
	PublicURL string

	// AllowedOrigins are CORS origins; websocket origin patterns are derived from them.
	AllowedOrigins []string
}

func NewGameServer(registry *game.Registry, tokens *auth.TokenIssuer, logger *logrus.Logger) *GameServer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &GameServer{
		Registry: registry,
		Tokens:   tokens,
		Logger:   logger,
	}
}

// JoinURL is the link players open to join roomCode.
func (gs *GameServer) JoinURL(roomCode string) string {
	return strings.TrimSuffix(gs.PublicURL, "/") + "/join/" + roomCode
}

// resolveQuiz returns the inline quiz of msg or loads the referenced one.
func (gs *GameServer) resolveQuiz(ctx context.Context, msg ClientMessage) (*models.Quiz, error) {
	if msg.Quiz != nil {
		return msg.Quiz, nil
	}
	if msg.QuizID == "" {
		return nil, errQuizRequired
	}
	if gs.Quizzes == nil {
		return nil, errQuizUnavailable
	}
	id, err := uuid.Parse(msg.QuizID)
	if err != nil {
		return nil, fmt.Errorf("invalid quizId: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return gs.Quizzes.GetQuiz(ctx, id)
}

// createGame registers a session organized by conn and replies with its room
// code and the organizer reconnect token.
func (gs *GameServer) createGame(ctx context.Context, conn *wsConn, msg ClientMessage) {
	quiz, err := gs.resolveQuiz(ctx, msg)
	if err != nil {
		conn.log.Warnf("create_game: %v", err)
		conn.Send(rejection(game.EventError, err))
		return
	}
	code, err := gs.Registry.CreateGame(quiz, conn, msg.TestMode)
	if err != nil {
		conn.log.Warnf("create_game: %v", err)
		conn.Send(rejection(game.EventError, err))
		return
	}
	sess, ok := gs.Registry.GetSessionByRoomCode(code)
	if !ok {
		conn.Send(rejection(game.EventError, game.ErrSessionNotFound))
		return
	}
	conn.session = sess

	payload := map[string]interface{}{
		"sessionId":     sess.ID.String(),
		"quizTitle":     quiz.Title,
		"questionCount": len(quiz.Questions),
		"testMode":      msg.TestMode,
		"joinUrl":       gs.JoinURL(code),
	}
	if gs.Tokens != nil {
		token, err := gs.Tokens.CreateOrganizerToken(code, sess.ID.String())
		if err != nil {
			conn.log.Errorf("failed to sign organizer token for room %s: %v", code, err)
		} else {
			payload["token"] = token
		}
	}
	conn.Send(game.GameEvent{
		Type:     game.EventGameCreated,
		RoomCode: code,
		Phase:    game.PhaseLobby,
		Payload:  payload,
	})
}

// reconnectOrganizer hands the organizer role of a waiting session to conn.
func (gs *GameServer) reconnectOrganizer(conn *wsConn, msg ClientMessage) {
	if gs.Tokens == nil {
		conn.Send(rejection(game.EventActionRejected, auth.ErrWrongRoom))
		return
	}
	code := strings.TrimSpace(msg.RoomCode)
	claims, err := gs.Tokens.AuthenticateOrganizerToken(msg.Token, code)
	if err != nil {
		conn.log.Warnf("reconnect_organizer to %s: %v", code, err)
		conn.Send(rejection(game.EventActionRejected, err))
		return
	}
	sess, ok := gs.Registry.GetSessionByRoomCode(code)
	if !ok || sess.ID.String() != claims.SessionID {
		conn.Send(rejection(game.EventActionRejected, game.ErrSessionNotFound))
		return
	}
	if err := sess.ReconnectOrganizer(conn); err != nil {
		conn.Send(rejection(game.EventActionRejected, err))
		return
	}
	conn.session = sess
}
