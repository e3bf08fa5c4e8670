package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrConflictingOutcome is returned by CompleteOutcome when the action was
// already completed with a different result.
var ErrConflictingOutcome = errors.New("storage: outcome already completed with a conflicting result")

// Outcome mirrors the Outcome entity (C6).
type Outcome struct {
	ActionID    string
	Kind        string
	StartedAt   time.Time
	CompletedAt *time.Time
	Result      string
	Details     string
	Feedback    string
}

// StartOutcome writes the initial row for a newly started action.
func (s *Store) StartOutcome(ctx context.Context, actionID, kind, details string) error {
	_, err := s.state.ExecContext(ctx,
		`INSERT INTO outcomes (action_id, kind, started_at, details) VALUES (?, ?, ?, ?)`,
		actionID, kind, time.Now().UnixMilli(), details,
	)
	return err
}

// CompleteOutcome sets the terminal result. Calling it twice with the same
// result is a no-op; calling it twice with a conflicting result is an
// error, per C6's idempotency invariant.
func (s *Store) CompleteOutcome(ctx context.Context, actionID, result, details string) error {
	var existing sql.NullString
	err := s.state.QueryRowContext(ctx, `SELECT result FROM outcomes WHERE action_id = ?`, actionID).Scan(&existing)
	if err != nil {
		return fmt.Errorf("complete outcome: %w", err)
	}
	if existing.Valid && existing.String != "" {
		if existing.String == result {
			return nil
		}
		return ErrConflictingOutcome
	}
	_, err = s.state.ExecContext(ctx,
		`UPDATE outcomes SET result = ?, completed_at = ?, details = ? WHERE action_id = ?`,
		result, time.Now().UnixMilli(), details, actionID,
	)
	return err
}

// RecordFeedback appends sentiment/note feedback to a completed outcome.
func (s *Store) RecordFeedback(ctx context.Context, actionID, feedback string) error {
	_, err := s.state.ExecContext(ctx, `UPDATE outcomes SET feedback = ? WHERE action_id = ?`, feedback, actionID)
	return err
}

// RecentOutcomes returns the most recent n outcomes across all actions,
// newest first. Outcomes carry no user id, so the list is not filtered
// per user.
func (s *Store) RecentOutcomes(ctx context.Context, n int) ([]Outcome, error) {
	rows, err := s.state.QueryContext(ctx,
		`SELECT action_id, kind, started_at, completed_at, result, details, feedback
		 FROM outcomes ORDER BY started_at DESC LIMIT ?`, n,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var outcomes []Outcome
	for rows.Next() {
		var o Outcome
		var startedAt int64
		var completedAt *int64
		var result, details, feedback sql.NullString
		if err := rows.Scan(&o.ActionID, &o.Kind, &startedAt, &completedAt, &result, &details, &feedback); err != nil {
			return nil, err
		}
		o.StartedAt = time.UnixMilli(startedAt)
		if completedAt != nil {
			ts := time.UnixMilli(*completedAt)
			o.CompletedAt = &ts
		}
		o.Result = result.String
		o.Details = details.String
		o.Feedback = feedback.String
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}
