// Package outcomes implements the outcome tracker (C6): recording what
// actions were started, how they finished, and surfacing a short rendered
// history for the context engine.
package outcomes

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/local/steward/internal/storage"
)

// Sentiment values accepted by RecordFeedback.
const (
	SentimentPositive = "positive"
	SentimentNegative = "negative"
	SentimentNeutral  = "neutral"
)

// Result values accepted by CompleteAction.
const (
	ResultSuccess   = "success"
	ResultFailed    = "failed"
	ResultCancelled = "cancelled"
)

// Tracker wraps storage with C6's action-lifecycle API.
type Tracker struct {
	store *storage.Store
}

// New constructs a Tracker.
func New(store *storage.Store) *Tracker {
	return &Tracker{store: store}
}

// StartAction writes a started row keyed on actionID, the id of the
// pending action this outcome belongs to — callers must pass the same id
// storage.MostRecentComplete joins on, so Undo can find it later.
func (t *Tracker) StartAction(ctx context.Context, actionID, kind, description string, meta map[string]string) error {
	details := description
	if len(meta) > 0 {
		details = fmt.Sprintf("%s %s", description, formatMeta(meta))
	}
	if err := t.store.StartOutcome(ctx, actionID, kind, details); err != nil {
		return fmt.Errorf("start action: %w", err)
	}
	return nil
}

// CompleteAction records the terminal result. Idempotent on the terminal
// state: calling twice with the same result is a no-op, calling twice
// with a conflicting result is a hard error.
func (t *Tracker) CompleteAction(ctx context.Context, actionID, result string, meta map[string]string) error {
	details := formatMeta(meta)
	if err := t.store.CompleteOutcome(ctx, actionID, result, details); err != nil {
		return fmt.Errorf("complete action: %w", err)
	}
	return nil
}

// RecordFeedback appends sentiment/note feedback to a completed action.
func (t *Tracker) RecordFeedback(ctx context.Context, actionID, sentiment, note string) error {
	feedback := sentiment
	if note != "" {
		feedback = fmt.Sprintf("%s: %s", sentiment, note)
	}
	return t.store.RecordFeedback(ctx, actionID, feedback)
}

// Recent returns the n most recent outcomes, newest first. Storage errors
// are logged and an empty slice is returned, matching the context
// engine's read-only, best-effort use of this data.
func (t *Tracker) Recent(ctx context.Context, n int) []storage.Outcome {
	list, err := t.store.RecentOutcomes(ctx, n)
	if err != nil {
		log.Printf("outcomes: recent outcomes lookup failed: %v", err)
		return nil
	}
	return list
}

// FormatForContext renders the most recent n outcomes as a short text
// block for inclusion in a system prompt.
func (t *Tracker) FormatForContext(ctx context.Context, n int) string {
	list := t.Recent(ctx, n)
	if len(list) == 0 {
		return ""
	}
	var b strings.Builder
	for _, o := range list {
		status := o.Result
		if status == "" {
			status = "in progress"
		}
		fmt.Fprintf(&b, "- %s: %s (%s)\n", o.Kind, status, o.Details)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatMeta(meta map[string]string) string {
	if len(meta) == 0 {
		return ""
	}
	parts := make([]string, 0, len(meta))
	for k, v := range meta {
		parts = append(parts, fmt.Sprintf("%s=%s", k, v))
	}
	return strings.Join(parts, " ")
}
