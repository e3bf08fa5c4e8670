package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Pending-action states, forming the DAG pending → {confirmed, rejected,
// expired}; confirmed → executing → {complete, failed}.
const (
	ActionPending   = "pending"
	ActionConfirmed = "confirmed"
	ActionRejected  = "rejected"
	ActionExpired   = "expired"
	ActionExecuting = "executing"
	ActionComplete  = "complete"
	ActionFailed    = "failed"
)

// ErrActionNotFound is returned when a pending action id has no row.
var ErrActionNotFound = errors.New("storage: pending action not found")

// PendingAction mirrors the PendingAction entity.
type PendingAction struct {
	ID         string
	UserID     string
	Kind       string
	Params     string
	ProposedAt time.Time
	ExpiresAt  time.Time
	State      string
}

// CreatePendingAction inserts a new pending row. Callers are responsible
// for the "at most one pending row per user" invariant (internal/actions
// enforces it with a per-user lock before calling this).
func (s *Store) CreatePendingAction(ctx context.Context, a PendingAction) error {
	_, err := s.state.ExecContext(ctx,
		`INSERT INTO pending_actions (id, user_id, kind, params, proposed_at, expires_at, state)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.Kind, a.Params, a.ProposedAt.UnixMilli(), a.ExpiresAt.UnixMilli(), ActionPending,
	)
	return err
}

// GetPendingAction reads a row by id. If it is still in state=pending but
// past its expiresAt, the read atomically flips it to expired first.
func (s *Store) GetPendingAction(ctx context.Context, id string, now time.Time) (PendingAction, error) {
	tx, err := s.state.BeginTx(ctx, nil)
	if err != nil {
		return PendingAction{}, err
	}
	defer tx.Rollback()

	a, err := scanPendingAction(tx.QueryRowContext(ctx,
		`SELECT id, user_id, kind, params, proposed_at, expires_at, state FROM pending_actions WHERE id = ?`, id))
	if err != nil {
		return PendingAction{}, err
	}

	if a.State == ActionPending && !now.Before(a.ExpiresAt) {
		if _, err := tx.ExecContext(ctx, `UPDATE pending_actions SET state = ? WHERE id = ?`, ActionExpired, id); err != nil {
			return PendingAction{}, err
		}
		a.State = ActionExpired
	}

	if err := tx.Commit(); err != nil {
		return PendingAction{}, err
	}
	return a, nil
}

// CurrentPending returns the at-most-one state=pending row for a user, if
// any. A row past expiresAt is flipped to expired first.
func (s *Store) CurrentPending(ctx context.Context, userID string, now time.Time) (*PendingAction, error) {
	var id string
	err := s.state.QueryRowContext(ctx,
		`SELECT id FROM pending_actions WHERE user_id = ? AND state = ? LIMIT 1`, userID, ActionPending,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a, err := s.GetPendingAction(ctx, id, now)
	if err != nil {
		return nil, err
	}
	if a.State != ActionPending {
		return nil, nil
	}
	return &a, nil
}

// TransitionPendingAction moves a row from fromState to toState. It does
// not check the pair against the DAG above; callers pass the expected
// current state to avoid racing a concurrent transition, and a mismatch
// returns ErrActionNotFound.
func (s *Store) TransitionPendingAction(ctx context.Context, id, fromState, toState string) error {
	res, err := s.state.ExecContext(ctx,
		`UPDATE pending_actions SET state = ? WHERE id = ? AND state = ?`,
		toState, id, fromState,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrActionNotFound
	}
	return nil
}

// ExpirePendingActions flips every state=pending row past expiresAt to
// expired in one statement, for the 60s sweeper. Returns the row count
// affected.
func (s *Store) ExpirePendingActions(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.state.ExecContext(ctx,
		`UPDATE pending_actions SET state = ? WHERE state = ? AND expires_at <= ?`,
		ActionExpired, ActionPending, now.UnixMilli(),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CompletedAction is a pending action joined with its outcome, for the
// undo lookup.
type CompletedAction struct {
	ID          string
	Kind        string
	Params      string
	CompletedAt time.Time
}

// MostRecentComplete returns the most recently completed pending action
// for userID, or nil if none exist. Both pending_actions and outcomes
// share the action id as primary key.
func (s *Store) MostRecentComplete(ctx context.Context, userID string) (*CompletedAction, error) {
	var a CompletedAction
	var completedAt sql.NullInt64
	err := s.state.QueryRowContext(ctx,
		`SELECT p.id, p.kind, p.params, o.completed_at
		 FROM pending_actions p JOIN outcomes o ON o.action_id = p.id
		 WHERE p.user_id = ? AND p.state = ? AND o.completed_at IS NOT NULL
		 ORDER BY o.completed_at DESC LIMIT 1`,
		userID, ActionComplete,
	).Scan(&a.ID, &a.Kind, &a.Params, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if completedAt.Valid {
		a.CompletedAt = time.UnixMilli(completedAt.Int64)
	}
	return &a, nil
}

func scanPendingAction(row *sql.Row) (PendingAction, error) {
	var a PendingAction
	var proposedAt, expiresAt int64
	if err := row.Scan(&a.ID, &a.UserID, &a.Kind, &a.Params, &proposedAt, &expiresAt, &a.State); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return PendingAction{}, ErrActionNotFound
		}
		return PendingAction{}, err
	}
	a.ProposedAt = time.UnixMilli(proposedAt)
	a.ExpiresAt = time.UnixMilli(expiresAt)
	return a, nil
}
