// internal/database/game.go
package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/samyarj/polyhoot/internal/models"
)

// Session status values of game_sessions.
const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusClosed     = "closed"
	StatusAbandoned  = "abandoned"
)

// RecordGame persists the final outcome of a game.
func (s *Store) RecordGame(ctx context.Context, rec models.GameRecord) error {
	results, err := json.Marshal(rec.Results)
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	var startedAt *time.Time
	if !rec.StartedAt.IsZero() {
		startedAt = &rec.StartedAt
	}

	err = pgx.BeginTxFunc(ctx, s.Pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		q := `
			INSERT INTO game_records (
				id, room_code, quiz_id, quiz_title, test_mode,
				started_at, ended_at, player_count, winner, results
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`
		_, e := tx.Exec(ctx, q,
			rec.ID, rec.RoomCode, rec.QuizID, rec.QuizTitle, rec.TestMode,
			startedAt, rec.EndedAt, rec.PlayerCount, rec.Winner(), results,
		)
		return e
	})
	if err != nil {
		return fmt.Errorf("tx insert game record: %w", err)
	}
	return nil
}

// InsertGameActions writes a batch of actions in a single transaction. The
// owning session row is created on first sight and finalized when the batch
// carries its end.
func (s *Store) InsertGameActions(ctx context.Context, actions []models.GameAction) error {
	if len(actions) == 0 {
		return nil
	}
	return pgx.BeginTxFunc(ctx, s.Pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, a := range actions {
			if err := insertGameActionTx(ctx, tx, a); err != nil {
				return fmt.Errorf("insertGameActionTx: %w", err)
			}
		}
		return nil
	})
}

func insertGameActionTx(ctx context.Context, tx pgx.Tx, a models.GameAction) error {
	upsertSession := `
		INSERT INTO game_sessions (id, room_code, status, start_time)
		VALUES ($1, $2, 'in_progress', $3)
		ON CONFLICT (id) DO NOTHING
	`
	at := time.UnixMilli(a.Timestamp)
	if _, err := tx.Exec(ctx, upsertSession, a.SessionID, a.RoomCode, at); err != nil {
		return err
	}

	payload, err := json.Marshal(a.Payload)
	if err != nil {
		return err
	}
	insertAction := `
		INSERT INTO game_actions (session_id, action_index, actor, action_type, action_payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (session_id, action_index) DO NOTHING
	`
	if _, err := tx.Exec(ctx, insertAction, a.SessionID, a.ActionIndex, a.Actor, a.ActionType, payload, at); err != nil {
		return err
	}

	status := ""
	switch a.ActionType {
	case "game_ended":
		status = StatusCompleted
	case "session_closed":
		status = StatusClosed
	}
	if status == "" {
		return nil
	}
	finalize := `
		UPDATE game_sessions
		SET status = $2, end_time = $3
		WHERE id = $1 AND status = 'in_progress'
	`
	_, err = tx.Exec(ctx, finalize, a.SessionID, status, at)
	return err
}

// MarkSessionAbandoned flags a session that stopped producing actions without ending.
func (s *Store) MarkSessionAbandoned(ctx context.Context, sessionID string) error {
	return pgx.BeginTxFunc(ctx, s.Pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		q := `
			UPDATE game_sessions
			SET status = 'abandoned', end_time = NOW()
			WHERE id = $1 AND status = 'in_progress'
		`
		_, e := tx.Exec(ctx, q, sessionID)
		return e
	})
}
