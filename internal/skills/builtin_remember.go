package skills

import (
	"context"
	"strings"

	"github.com/local/steward/internal/storage"
)

// RememberSkill persists short user facts ("remember X") for the context
// engine to surface on later calls.
type RememberSkill struct {
	store *storage.Store
}

// NewRememberSkill constructs the "remember" built-in.
func NewRememberSkill(store *storage.Store) *RememberSkill {
	return &RememberSkill{store: store}
}

func (s *RememberSkill) Name() string        { return "remember" }
func (s *RememberSkill) Description() string { return "Remembers a short fact about you." }
func (s *RememberSkill) Priority() int        { return 50 }

func (s *RememberSkill) Commands() []Command {
	return []Command{
		{Pattern: "remember", Description: "Remember a fact", Usage: "remember <fact>"},
	}
}

func (s *RememberSkill) Execute(ctx context.Context, command string, sc Context) (Response, error) {
	fact := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(command), "remember"))
	if fact == "" {
		return Response{OK: false, Message: "what should I remember?"}, nil
	}
	s.store.SetFact(ctx, sc.UserID, factKey(fact), fact)
	return Response{OK: true, Message: "got it, I'll remember that."}, nil
}

// factKey derives a stable key from the fact's leading words so repeated
// "remember" calls about the same topic overwrite rather than pile up.
func factKey(fact string) string {
	words := strings.Fields(strings.ToLower(fact))
	if len(words) > 4 {
		words = words[:4]
	}
	return strings.Join(words, "-")
}
