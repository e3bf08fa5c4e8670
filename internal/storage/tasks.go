package storage

import (
	"context"
	"time"
)

// Task is a user-facing to-do item, surfaced by the "status" skill.
type Task struct {
	ID          int64
	UserID      string
	Description string
	Done        bool
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// AddTask inserts an open task and returns its id.
func (s *Store) AddTask(ctx context.Context, userID, description string) (int64, error) {
	res, err := s.memory.ExecContext(ctx,
		`INSERT INTO tasks (user_id, description, done, created_at) VALUES (?, ?, 0, ?)`,
		userID, description, time.Now().UnixMilli(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// CompleteTask marks a task done.
func (s *Store) CompleteTask(ctx context.Context, id int64) error {
	_, err := s.memory.ExecContext(ctx,
		`UPDATE tasks SET done = 1, completed_at = ? WHERE id = ?`,
		time.Now().UnixMilli(), id,
	)
	return err
}

// OpenTasks returns a user's incomplete tasks, oldest first.
func (s *Store) OpenTasks(ctx context.Context, userID string) ([]Task, error) {
	rows, err := s.memory.QueryContext(ctx,
		`SELECT id, user_id, description, done, created_at, completed_at FROM tasks
		 WHERE user_id = ? AND done = 0 ORDER BY created_at`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		var t Task
		var createdAt int64
		var completedAt *int64
		if err := rows.Scan(&t.ID, &t.UserID, &t.Description, &t.Done, &createdAt, &completedAt); err != nil {
			return nil, err
		}
		t.CreatedAt = time.UnixMilli(createdAt)
		if completedAt != nil {
			ts := time.UnixMilli(*completedAt)
			t.CompletedAt = &ts
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}
