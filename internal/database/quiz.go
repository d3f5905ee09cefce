// internal/database/quiz.go
package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/samyarj/polyhoot/internal/models"
)

var ErrQuizNotFound = errors.New("quiz not found")

// GetQuiz loads a quiz snapshot by id.
func (s *Store) GetQuiz(ctx context.Context, id uuid.UUID) (*models.Quiz, error) {
	var (
		quiz      models.Quiz
		questions []byte
	)
	q := `SELECT id, title, description, questions FROM quizzes WHERE id = $1`
	err := s.Pool.QueryRow(ctx, q, id).Scan(&quiz.ID, &quiz.Title, &quiz.Description, &questions)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("quiz %s: %w", id, ErrQuizNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("select quiz: %w", err)
	}
	if err := json.Unmarshal(questions, &quiz.Questions); err != nil {
		return nil, fmt.Errorf("decode questions of quiz %s: %w", id, err)
	}
	return &quiz, nil
}

// SaveQuiz upserts a quiz snapshot. Authoring rules are validated upstream.
func (s *Store) SaveQuiz(ctx context.Context, quiz models.Quiz) error {
	questions, err := json.Marshal(quiz.Questions)
	if err != nil {
		return fmt.Errorf("encode questions: %w", err)
	}
	q := `
		INSERT INTO quizzes (id, title, description, questions)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id)
		DO UPDATE SET title = $2, description = $3, questions = $4
	`
	if _, err := s.Pool.Exec(ctx, q, quiz.ID, quiz.Title, quiz.Description, questions); err != nil {
		return fmt.Errorf("upsert quiz: %w", err)
	}
	return nil
}
