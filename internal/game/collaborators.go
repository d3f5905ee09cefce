package game

import (
	"context"

	"github.com/google/uuid"
	"github.com/samyarj/polyhoot/internal/models"
)

// QuizSource loads the quiz snapshot a session is created from.
type QuizSource interface {
	GetQuiz(ctx context.Context, id uuid.UUID) (*models.Quiz, error)
}

// GameRecorder persists the summary of a finished game.
type GameRecorder interface {
	RecordGame(ctx context.Context, rec models.GameRecord) error
}

// ActionLogger receives every applied session action for the historian.
type ActionLogger interface {
	LogAction(ctx context.Context, action models.GameAction) error
}

// EventSink mirrors broadcast events to other processes.
type EventSink interface {
	Publish(roomCode string, ev GameEvent) error
}

// Hooks groups the optional collaborators of a session. Nil fields are skipped.
type Hooks struct {
	Recorder GameRecorder
	Actions  ActionLogger
	Sink     EventSink
}
