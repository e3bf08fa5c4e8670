package storage

import (
	"context"
	"time"
)

// Fact is a single remembered user fact, addressed by key.
type Fact struct {
	UserID    string
	Key       string
	Value     string
	UpdatedAt time.Time
}

// SetFact upserts a fact for a user.
func (s *Store) SetFact(ctx context.Context, userID, key, value string) {
	_, err := s.memory.ExecContext(ctx,
		`INSERT INTO facts (user_id, key, value, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		userID, key, value, time.Now().UnixMilli(),
	)
	swallowMemoryWrite("set fact", err)
}

// Facts returns up to limit facts for a user, most recently updated first.
func (s *Store) Facts(ctx context.Context, userID string, limit int) ([]Fact, error) {
	rows, err := s.memory.QueryContext(ctx,
		`SELECT user_id, key, value, updated_at FROM facts
		 WHERE user_id = ? ORDER BY updated_at DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var facts []Fact
	for rows.Next() {
		var f Fact
		var updatedAt int64
		if err := rows.Scan(&f.UserID, &f.Key, &f.Value, &updatedAt); err != nil {
			return nil, err
		}
		f.UpdatedAt = time.UnixMilli(updatedAt)
		facts = append(facts, f)
	}
	return facts, rows.Err()
}
