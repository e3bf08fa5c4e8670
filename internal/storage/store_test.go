package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "memory.db"), filepath.Join(dir, "state.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("second Migrate failed: %v", err)
	}
}

func TestConversationRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()
	s.AppendConversation(ctx, ConversationEntry{UserID: "u1", ChatID: "c1", Role: "user", Content: "hi", CreatedAt: now})
	s.AppendConversation(ctx, ConversationEntry{UserID: "u1", ChatID: "c1", Role: "assistant", Content: "hello", CreatedAt: now.Add(time.Second)})

	entries, err := s.RecentConversation(ctx, "c1", 15)
	if err != nil {
		t.Fatalf("RecentConversation failed: %v", err)
	}
	if len(entries) != 2 || entries[0].Content != "hi" || entries[1].Content != "hello" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestFactUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.SetFact(ctx, "u1", "favorite-color", "blue")
	s.SetFact(ctx, "u1", "favorite-color", "green")

	facts, err := s.Facts(ctx, "u1", 20)
	if err != nil {
		t.Fatalf("Facts failed: %v", err)
	}
	if len(facts) != 1 || facts[0].Value != "green" {
		t.Fatalf("expected single overwritten fact, got %+v", facts)
	}
}

func TestPendingActionExpiryFlip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	err := s.CreatePendingAction(ctx, PendingAction{
		ID: "a1", UserID: "u1", Kind: "deploy",
		ProposedAt: now.Add(-10 * time.Minute),
		ExpiresAt:  now.Add(-5 * time.Minute),
	})
	if err != nil {
		t.Fatalf("CreatePendingAction failed: %v", err)
	}

	got, err := s.GetPendingAction(ctx, "a1", now)
	if err != nil {
		t.Fatalf("GetPendingAction failed: %v", err)
	}
	if got.State != ActionExpired {
		t.Fatalf("expected state to flip to expired, got %q", got.State)
	}
}

func TestCurrentPendingAtMostOne(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	if err := s.CreatePendingAction(ctx, PendingAction{
		ID: "a1", UserID: "u1", Kind: "deploy",
		ProposedAt: now, ExpiresAt: now.Add(5 * time.Minute),
	}); err != nil {
		t.Fatalf("CreatePendingAction failed: %v", err)
	}

	got, err := s.CurrentPending(ctx, "u1", now)
	if err != nil {
		t.Fatalf("CurrentPending failed: %v", err)
	}
	if got == nil || got.ID != "a1" {
		t.Fatalf("expected to find pending action a1, got %+v", got)
	}

	if err := s.TransitionPendingAction(ctx, "a1", ActionPending, ActionConfirmed); err != nil {
		t.Fatalf("TransitionPendingAction failed: %v", err)
	}
	got, err = s.CurrentPending(ctx, "u1", now)
	if err != nil {
		t.Fatalf("CurrentPending after transition failed: %v", err)
	}
	if got != nil {
		t.Fatalf("expected no pending action after confirm, got %+v", got)
	}
}

func TestOutcomeIdempotentCompletion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.StartOutcome(ctx, "act1", "deploy", "deploying"); err != nil {
		t.Fatalf("StartOutcome failed: %v", err)
	}
	if err := s.CompleteOutcome(ctx, "act1", "success", "done"); err != nil {
		t.Fatalf("first CompleteOutcome failed: %v", err)
	}
	if err := s.CompleteOutcome(ctx, "act1", "success", "done"); err != nil {
		t.Fatalf("idempotent CompleteOutcome should be a no-op, got error: %v", err)
	}
	if err := s.CompleteOutcome(ctx, "act1", "failed", "done"); err != ErrConflictingOutcome {
		t.Fatalf("expected ErrConflictingOutcome, got %v", err)
	}
}

func TestChatBindingUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	b := ChatBinding{Platform: "telegram", ChatID: "123", Type: "repo", Value: "myproj", NotifLevel: "all"}
	if err := s.UpsertChatBinding(ctx, b); err != nil {
		t.Fatalf("UpsertChatBinding failed: %v", err)
	}
	bindings, err := s.ChatBindings(ctx)
	if err != nil {
		t.Fatalf("ChatBindings failed: %v", err)
	}
	if len(bindings) != 1 || bindings[0].Value != "myproj" {
		t.Fatalf("unexpected bindings: %+v", bindings)
	}
}
