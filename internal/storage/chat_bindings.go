package storage

import "context"

// ChatBinding associates a platform chat with a registry entry (C3).
type ChatBinding struct {
	Platform   string
	ChatID     string
	Type       string
	Value      string
	NotifLevel string
}

// UpsertChatBinding writes a binding, replacing any existing one for the
// same (platform, chatID).
func (s *Store) UpsertChatBinding(ctx context.Context, b ChatBinding) error {
	_, err := s.memory.ExecContext(ctx,
		`INSERT INTO chat_bindings (platform, chat_id, type, value, notif_level)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(platform, chat_id) DO UPDATE SET
			type = excluded.type, value = excluded.value, notif_level = excluded.notif_level`,
		b.Platform, b.ChatID, b.Type, b.Value, b.NotifLevel,
	)
	return err
}

// ChatBindings returns every persisted binding, used to rebuild the
// in-memory registry at startup.
func (s *Store) ChatBindings(ctx context.Context) ([]ChatBinding, error) {
	rows, err := s.memory.QueryContext(ctx, `SELECT platform, chat_id, type, value, notif_level FROM chat_bindings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bindings []ChatBinding
	for rows.Next() {
		var b ChatBinding
		if err := rows.Scan(&b.Platform, &b.ChatID, &b.Type, &b.Value, &b.NotifLevel); err != nil {
			return nil, err
		}
		bindings = append(bindings, b)
	}
	return bindings, rows.Err()
}
