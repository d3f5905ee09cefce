package database

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/samyarj/polyhoot/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStore needs POLYHOOT_TEST_DATABASE_URL pointing at a disposable database.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("POLYHOOT_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("POLYHOOT_TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	require.NoError(t, s.EnsureSchema(ctx))
	return s
}

func TestQuizRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	quiz := models.Quiz{
		ID:    uuid.New(),
		Title: "capitals",
		Questions: []models.Question{
			{Type: models.QuestionTypeQCM, Text: "France?", Points: 10, Choices: []models.Choice{{Text: "Paris", IsCorrect: true}, {Text: "Lyon"}}},
			{Type: models.QuestionTypeQRE, Text: "Year?", Points: 20, Range: &models.RangeAnswer{GoodAnswer: 1789, Tolerance: 2, Min: 1700, Max: 1900}},
		},
	}
	require.NoError(t, s.SaveQuiz(ctx, quiz))

	got, err := s.GetQuiz(ctx, quiz.ID)
	require.NoError(t, err)
	assert.Equal(t, quiz, *got)

	_, err = s.GetQuiz(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrQuizNotFound)
}

func TestRecordGameAndActions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sessionID := uuid.New()
	now := time.Now()

	actions := []models.GameAction{
		{RoomCode: "1234", SessionID: sessionID.String(), ActionIndex: 1, Actor: "p", ActionType: "player_joined", Timestamp: now.UnixMilli()},
		{RoomCode: "1234", SessionID: sessionID.String(), ActionIndex: 2, Actor: "system", ActionType: "game_ended", Timestamp: now.UnixMilli()},
	}
	require.NoError(t, s.InsertGameActions(ctx, actions))
	// replays are ignored
	require.NoError(t, s.InsertGameActions(ctx, actions))

	var status string
	require.NoError(t, s.Pool.QueryRow(ctx, `SELECT status FROM game_sessions WHERE id = $1`, sessionID).Scan(&status))
	assert.Equal(t, StatusCompleted, status)

	rec := models.GameRecord{
		ID:          uuid.New(),
		RoomCode:    "1234",
		QuizTitle:   "capitals",
		EndedAt:     now,
		PlayerCount: 1,
		Results:     []models.PlayerResult{{Name: "p", Points: 12, Rank: 1}},
	}
	require.NoError(t, s.RecordGame(ctx, rec))

	var winner string
	require.NoError(t, s.Pool.QueryRow(ctx, `SELECT winner FROM game_records WHERE id = $1`, rec.ID).Scan(&winner))
	assert.Equal(t, "p", winner)
}
