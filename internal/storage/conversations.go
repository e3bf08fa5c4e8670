package storage

import (
	"context"
	"time"
)

// ConversationEntry is one turn of chat history.
type ConversationEntry struct {
	UserID    string
	ChatID    string
	Role      string
	Content   string
	CreatedAt time.Time
}

// AppendConversation writes one entry. Per C2's failure mode, a write
// error here is logged and swallowed rather than returned.
func (s *Store) AppendConversation(ctx context.Context, e ConversationEntry) {
	_, err := s.memory.ExecContext(ctx,
		`INSERT INTO conversations (user_id, chat_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		e.UserID, e.ChatID, e.Role, e.Content, e.CreatedAt.UnixMilli(),
	)
	swallowMemoryWrite("append conversation", err)
}

// RecentConversation returns the last n entries for a chat, oldest first.
func (s *Store) RecentConversation(ctx context.Context, chatID string, n int) ([]ConversationEntry, error) {
	rows, err := s.memory.QueryContext(ctx,
		`SELECT user_id, chat_id, role, content, created_at FROM conversations
		 WHERE chat_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		chatID, n,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []ConversationEntry
	for rows.Next() {
		var e ConversationEntry
		var createdAt int64
		if err := rows.Scan(&e.UserID, &e.ChatID, &e.Role, &e.Content, &createdAt); err != nil {
			return nil, err
		}
		e.CreatedAt = time.UnixMilli(createdAt)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}
