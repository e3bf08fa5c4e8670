package alert

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/local/steward/internal/storage"
)

func newTestLadder(t *testing.T) (*Ladder, *storage.Store, *[]string) {
	t.Helper()
	dir := t.TempDir()
	s, err := storage.Open(filepath.Join(dir, "memory.db"), filepath.Join(dir, "state.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	var mu sync.Mutex
	var tiers []string
	l := New(s, func(ctx context.Context, tier, body string) error {
		mu.Lock()
		tiers = append(tiers, tier)
		mu.Unlock()
		return nil
	})
	l.now = func() time.Time { return time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC) }
	return l, s, &tiers
}

func TestRaiseInfoGoesToPrimary(t *testing.T) {
	l, _, tiers := newTestLadder(t)
	if _, err := l.Raise(context.Background(), "k1", LevelInfo, "disk low"); err != nil {
		t.Fatalf("Raise failed: %v", err)
	}
	if len(*tiers) != 1 || (*tiers)[0] != TierPrimary {
		t.Fatalf("expected primary notify, got %v", *tiers)
	}
}

func TestRaiseEmergencyGoesToVoiceImmediately(t *testing.T) {
	l, _, tiers := newTestLadder(t)
	if _, err := l.Raise(context.Background(), "k1", LevelEmergency, "fire"); err != nil {
		t.Fatalf("Raise failed: %v", err)
	}
	if len(*tiers) != 1 || (*tiers)[0] != TierVoice {
		t.Fatalf("expected voice notify, got %v", *tiers)
	}
}

func TestRaiseDedupsWithinWindow(t *testing.T) {
	l, _, tiers := newTestLadder(t)
	ctx := context.Background()
	id1, err := l.Raise(ctx, "dup", LevelWarning, "x")
	if err != nil {
		t.Fatalf("Raise failed: %v", err)
	}
	id2, err := l.Raise(ctx, "dup", LevelWarning, "x")
	if err != nil {
		t.Fatalf("Raise failed: %v", err)
	}
	if id2 != "" {
		t.Fatalf("expected deduplicated raise to return no id, got %q", id2)
	}
	if id1 == "" {
		t.Fatal("expected first raise to return an id")
	}
	if len(*tiers) != 1 {
		t.Fatalf("expected exactly one notify, got %d", len(*tiers))
	}
}

func TestAcknowledgeStopsEscalation(t *testing.T) {
	l, s, _ := newTestLadder(t)
	ctx := context.Background()
	id, err := l.Raise(ctx, "k", LevelCritical, "x")
	if err != nil {
		t.Fatalf("Raise failed: %v", err)
	}
	if err := l.Acknowledge(ctx, id); err != nil {
		t.Fatalf("Acknowledge failed: %v", err)
	}
	open, err := s.OpenAlerts(ctx)
	if err != nil {
		t.Fatalf("OpenAlerts failed: %v", err)
	}
	for _, a := range open {
		if a.ID == id {
			t.Fatal("acknowledged alert still reported open")
		}
	}
}

func TestTickEscalatesPastDueCritical(t *testing.T) {
	l, _, tiers := newTestLadder(t)
	ctx := context.Background()
	if _, err := l.Raise(ctx, "k", LevelCritical, "x"); err != nil {
		t.Fatalf("Raise failed: %v", err)
	}

	base := l.now()
	l.now = func() time.Time { return base.Add(16 * time.Minute) }
	l.Tick(ctx)

	if len(*tiers) != 2 || (*tiers)[1] != TierSecondary {
		t.Fatalf("expected escalation to secondary, got %v", *tiers)
	}
}

// TestCriticalReachesVoiceAt30MinFromProposal covers scenario S5: voice
// escalation is 30 min after the alert was raised, not 30 min after it
// reached secondary (which would put it at 45 min).
func TestCriticalReachesVoiceAt30MinFromProposal(t *testing.T) {
	l, _, tiers := newTestLadder(t)
	ctx := context.Background()
	if _, err := l.Raise(ctx, "k", LevelCritical, "x"); err != nil {
		t.Fatalf("Raise failed: %v", err)
	}
	base := l.now()

	l.now = func() time.Time { return base.Add(16 * time.Minute) }
	l.Tick(ctx)
	if len(*tiers) != 2 || (*tiers)[1] != TierSecondary {
		t.Fatalf("expected escalation to secondary at 16min, got %v", *tiers)
	}

	l.now = func() time.Time { return base.Add(29 * time.Minute) }
	l.Tick(ctx)
	if len(*tiers) != 2 {
		t.Fatalf("expected no voice escalation yet at 29min, got %v", *tiers)
	}

	l.now = func() time.Time { return base.Add(31 * time.Minute) }
	l.Tick(ctx)
	if len(*tiers) != 3 || (*tiers)[2] != TierVoice {
		t.Fatalf("expected voice escalation by 31min (30min from proposal), got %v", *tiers)
	}
}
