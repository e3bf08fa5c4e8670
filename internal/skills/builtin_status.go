package skills

import (
	"context"
	"fmt"
	"strings"

	"github.com/local/steward/internal/storage"
)

// StatusSkill reports a user's open tasks, the skill
// equivalent of the "what's left" query the NLP preprocessor (C8) rewrites
// to "project status".
type StatusSkill struct {
	store *storage.Store
}

// NewStatusSkill constructs the "status" built-in.
func NewStatusSkill(store *storage.Store) *StatusSkill {
	return &StatusSkill{store: store}
}

func (s *StatusSkill) Name() string        { return "status" }
func (s *StatusSkill) Description() string { return "Shows your open tasks." }
func (s *StatusSkill) Priority() int        { return 40 }

func (s *StatusSkill) Commands() []Command {
	return []Command{
		{Pattern: "status", Description: "Show open tasks", Usage: "status"},
		{Pattern: "project status", Description: "Show open tasks", Usage: "project status"},
	}
}

func (s *StatusSkill) Execute(ctx context.Context, command string, sc Context) (Response, error) {
	tasks, err := s.store.OpenTasks(ctx, sc.UserID)
	if err != nil {
		return Response{}, fmt.Errorf("status: %w", err)
	}
	if len(tasks) == 0 {
		return Response{OK: true, Message: "nothing open right now."}, nil
	}
	var b strings.Builder
	b.WriteString("open tasks:\n")
	for _, t := range tasks {
		fmt.Fprintf(&b, "- %s\n", t.Description)
	}
	return Response{OK: true, Message: strings.TrimRight(b.String(), "\n")}, nil
}
