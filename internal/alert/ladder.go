// Package alert implements the alert escalation ladder (C11): tiered
// notification delivery that escalates from primary to secondary to
// voice contact tiers depending on level, honoring do-not-disturb hours
// and user acknowledgement.
package alert

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/local/steward/internal/cache"
	"github.com/local/steward/internal/storage"
)

// Levels.
const (
	LevelInfo      = "info"
	LevelWarning   = "warning"
	LevelCritical  = "critical"
	LevelEmergency = "emergency"
)

// Tiers.
const (
	TierPrimary   = "primary"
	TierSecondary = "secondary"
	TierVoice     = "voice"
)

const (
	secondaryDelay = 15 * time.Minute
	voiceDelay     = 30 * time.Minute
	dedupTTL       = 5 * time.Minute
	tickInterval   = 30 * time.Second
)

// DND is the default quiet-hours window, 23:00-07:00 local.
type DND struct {
	StartHour int
	EndHour   int
}

var defaultDND = DND{StartHour: 23, EndHour: 7}

// Notifier delivers a rendered alert body to a tier. Implementations wrap
// the primary/secondary chat channel or the voice provider.
type Notifier func(ctx context.Context, tier, body string) error

// Ladder runs the tick loop that escalates open alerts and dedups
// caller-supplied keys using the same LRU primitive C4 caches AI
// responses with.
type Ladder struct {
	store  *storage.Store
	notify Notifier
	dedup  *cache.LRU
	dnd    DND
	now    func() time.Time
}

// New constructs a Ladder. notify is called once per escalation step.
func New(store *storage.Store, notify Notifier) *Ladder {
	return &Ladder{
		store:  store,
		notify: notify,
		dedup:  cache.New(1024, dedupTTL),
		dnd:    defaultDND,
		now:    time.Now,
	}
}

// Raise creates a new alert unless key was seen within the dedup window.
// Returns the alert id (new or the deduplicated existing one is not
// tracked; callers needing the original id should keep it themselves).
func (l *Ladder) Raise(ctx context.Context, key, level, body string) (string, error) {
	if _, hit := l.dedup.Get(key); hit {
		return "", nil
	}

	now := l.now()
	tier, bypassDND := initialTier(level)
	a := storage.Alert{
		ID:        uuid.NewString(),
		Level:     level,
		Body:      body,
		Tier:      tier,
		CreatedAt: now,
	}
	if next, ok := nextEscalation(level, tier, now); ok {
		a.NextEscalateAt = &next
	}
	if err := l.store.CreateAlert(ctx, a); err != nil {
		return "", err
	}
	l.dedup.Set(key, a.ID)

	if l.withinDND(now) && !bypassDND {
		return a.ID, nil
	}
	if err := l.notify(ctx, tier, body); err != nil {
		log.Printf("alert: notify failed for %s: %v", a.ID, err)
	}
	return a.ID, nil
}

// Acknowledge halts escalation for an alert.
func (l *Ladder) Acknowledge(ctx context.Context, id string) error {
	return l.store.AcknowledgeAlert(ctx, id)
}

// Tick escalates every open alert whose nextEscalateAt has passed. Call
// this from a periodic goroutine (Run starts one automatically).
func (l *Ladder) Tick(ctx context.Context) {
	open, err := l.store.OpenAlerts(ctx)
	if err != nil {
		log.Printf("alert: list open alerts failed: %v", err)
		return
	}
	now := l.now()
	for _, a := range open {
		if a.NextEscalateAt == nil || now.Before(*a.NextEscalateAt) {
			continue
		}
		next, bypassDND, ok := advance(a.Level, a.Tier, now)
		if !ok {
			continue
		}
		if err := l.store.EscalateAlert(ctx, a.ID, next, mustEscalateAt(a.Level, next, a.CreatedAt)); err != nil {
			log.Printf("alert: escalate %s failed: %v", a.ID, err)
			continue
		}
		if l.withinDND(now) && !bypassDND {
			continue
		}
		if err := l.notify(ctx, next, a.Body); err != nil {
			log.Printf("alert: notify failed for %s: %v", a.ID, err)
		}
	}
}

// Run starts the tick loop goroutine until ctx is done.
func (l *Ladder) Run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.Tick(ctx)
			}
		}
	}()
}

func (l *Ladder) withinDND(t time.Time) bool {
	h := t.Hour()
	if l.dnd.StartHour < l.dnd.EndHour {
		return h >= l.dnd.StartHour && h < l.dnd.EndHour
	}
	return h >= l.dnd.StartHour || h < l.dnd.EndHour
}

// initialTier returns the starting tier for a level and whether that
// tier bypasses DND.
func initialTier(level string) (tier string, bypassDND bool) {
	switch level {
	case LevelEmergency:
		return TierVoice, true
	default:
		return TierPrimary, false
	}
}

// nextEscalation returns the time the alert should next escalate, if the
// level auto-escalates. Delays are relative to createdAt (the alert's
// original proposal time), not the current tier's start: critical's
// voice tier fires 30 min after proposal, i.e. 15 min after secondary,
// not 30 min after secondary.
func nextEscalation(level, tier string, createdAt time.Time) (time.Time, bool) {
	switch level {
	case LevelWarning:
		if tier == TierPrimary {
			return createdAt.Add(secondaryDelay), true
		}
	case LevelCritical:
		if tier == TierPrimary {
			return createdAt.Add(secondaryDelay), true
		}
		if tier == TierSecondary {
			return createdAt.Add(voiceDelay), true
		}
	}
	return time.Time{}, false
}

// advance computes the next tier for an alert whose escalation time has
// arrived, and whether that tier bypasses DND.
func advance(level, currentTier string, now time.Time) (tier string, bypassDND, ok bool) {
	switch level {
	case LevelWarning:
		if currentTier == TierPrimary {
			return TierSecondary, false, true
		}
	case LevelCritical:
		if currentTier == TierPrimary {
			return TierSecondary, false, true
		}
		if currentTier == TierSecondary {
			return TierVoice, true, true
		}
	}
	return "", false, false
}

func mustEscalateAt(level, tier string, createdAt time.Time) time.Time {
	if next, ok := nextEscalation(level, tier, createdAt); ok {
		return next
	}
	// No further escalation past this tier; keep a far-future placeholder
	// so the tick loop's NextEscalateAt-passed check never re-fires.
	return createdAt.Add(24 * time.Hour * 365)
}
