package storage

import (
	"context"
	"database/sql"
	"time"
)

// FileOp is one entry in a Plan's fileOps sequence.
type FileOp struct {
	Op         string // read | write | create | delete
	Path       string
	ContentRef string
}

// Plan mirrors the Plan entity (C10).
type Plan struct {
	ID              string
	UserID          string
	InstructionText string
	TargetProject   string
	FileOps         []FileOp
	Status          string
	CreatedAt       time.Time
	PRUrl           string
}

// CreatePlan inserts a new plan row. fileOps is persisted pre-encoded by
// the caller (internal/plan owns the encoding).
func (s *Store) CreatePlan(ctx context.Context, id, userID, instructionText, targetProject, fileOpsJSON, status string) error {
	_, err := s.state.ExecContext(ctx,
		`INSERT INTO plans (id, user_id, instruction_text, target_project, file_ops, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, userID, instructionText, targetProject, fileOpsJSON, status, time.Now().UnixMilli(),
	)
	return err
}

// UpdatePlanStatus updates a plan's status and, once known, its PR URL.
func (s *Store) UpdatePlanStatus(ctx context.Context, id, status, prURL string) error {
	_, err := s.state.ExecContext(ctx, `UPDATE plans SET status = ?, pr_url = ? WHERE id = ?`, status, prURL, id)
	return err
}

// RecentPlans returns a user's most recent n plans, newest first.
func (s *Store) RecentPlans(ctx context.Context, userID string, n int) ([]Plan, error) {
	rows, err := s.state.QueryContext(ctx,
		`SELECT id, user_id, instruction_text, target_project, file_ops, status, created_at, pr_url
		 FROM plans WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`, userID, n,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []Plan
	for rows.Next() {
		var p Plan
		var createdAt int64
		var fileOps, prURL sql.NullString
		if err := rows.Scan(&p.ID, &p.UserID, &p.InstructionText, &p.TargetProject, &fileOps, &p.Status, &createdAt, &prURL); err != nil {
			return nil, err
		}
		p.CreatedAt = time.UnixMilli(createdAt)
		p.PRUrl = prURL.String
		_ = fileOps // decoded by internal/plan, which owns the FileOp encoding
		plans = append(plans, p)
	}
	return plans, rows.Err()
}
