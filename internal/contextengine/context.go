// Package contextengine implements the context builder (C5): assembling a
// per-call snapshot of chat binding, facts, project state, outcomes, and
// history into a single system-prompt text block.
package contextengine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/local/steward/internal/outcomes"
	"github.com/local/steward/internal/registry"
	"github.com/local/steward/internal/storage"
)

// renderCap bounds the total size of the rendered system-prompt block;
// sections are dropped from the bottom (history, then outcomes) when over.
const renderCap = 6000

const (
	maxConversation = 15
	maxFacts        = 20
	maxOutcomes     = 8
	maxPlans        = 5
)

// ProjectSummary is the cached active-project state (TODO extract + open
// PRs). Callers refresh it on their own cadence (60 min per the contract);
// Build does not refresh it itself.
type ProjectSummary struct {
	Name      string
	Todos     []string
	OpenPRs   []string
	RefreshAt time.Time
}

// Context is what Build returns: everything a single AI call needs to
// ground its response, assembled fresh every call.
type Context struct {
	Binding   *registry.Binding
	Facts     []storage.Fact
	Project   *ProjectSummary
	Outcomes  []storage.Outcome
	Plans     []storage.Plan
	History   []storage.ConversationEntry
	Now       time.Time
	DayOfWeek string
}

// Engine wires storage and the registry together to build Context values.
type Engine struct {
	store    *storage.Store
	registry *registry.Registry
	tracker  *outcomes.Tracker
	projects func(name string) *ProjectSummary
}

// New constructs an Engine. projects may be nil; when set, it supplies the
// cached active-project summary for a chat's bound project.
func New(store *storage.Store, reg *registry.Registry, tracker *outcomes.Tracker, projects func(name string) *ProjectSummary) *Engine {
	return &Engine{store: store, registry: reg, tracker: tracker, projects: projects}
}

// Build assembles a Context for a single AI call. It is never cached
// across calls; the data it reads is cached by its owning components.
func (e *Engine) Build(ctx context.Context, userID, chatID, platform string) (Context, error) {
	now := time.Now()
	c := Context{Now: now, DayOfWeek: now.Weekday().String()}

	if b, ok := e.registry.Lookup(platform, chatID); ok {
		bind := b
		c.Binding = &bind
		if e.projects != nil && b.Type == "repo" {
			c.Project = e.projects(b.Value)
		}
	}

	facts, err := e.store.Facts(ctx, userID, maxFacts)
	if err != nil {
		return Context{}, fmt.Errorf("build context: facts: %w", err)
	}
	c.Facts = facts

	if e.tracker != nil {
		c.Outcomes = e.tracker.Recent(ctx, maxOutcomes)
	}

	plans, err := e.store.RecentPlans(ctx, userID, maxPlans)
	if err != nil {
		return Context{}, fmt.Errorf("build context: plans: %w", err)
	}
	c.Plans = plans

	history, err := e.store.RecentConversation(ctx, chatID, maxConversation)
	if err != nil {
		return Context{}, fmt.Errorf("build context: history: %w", err)
	}
	c.History = history

	return c, nil
}

// FormatForSystemPrompt renders c into a single ordered text block: time,
// chat binding, user facts, project, outcomes, history. If the result
// exceeds renderCap, sections are dropped from the bottom (history first,
// then outcomes) until it fits.
func FormatForSystemPrompt(c Context) string {
	sections := []string{
		formatTime(c),
		formatBinding(c.Binding),
		formatFacts(c.Facts),
		formatProject(c.Project),
	}
	outcomeSection := formatOutcomes(c.Outcomes)
	historySection := formatHistory(c.History)

	all := append(append(sections, outcomeSection), historySection)
	rendered := joinNonEmpty(all)
	if len(rendered) <= renderCap {
		return rendered
	}

	all = append(sections, outcomeSection)
	rendered = joinNonEmpty(all)
	if len(rendered) <= renderCap {
		return rendered
	}

	rendered = joinNonEmpty(sections)
	if len(rendered) > renderCap {
		rendered = rendered[:renderCap]
	}
	return rendered
}

func joinNonEmpty(parts []string) string {
	var kept []string
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n\n")
}

func formatTime(c Context) string {
	return fmt.Sprintf("Current time: %s (%s)", c.Now.Format(time.RFC1123), c.DayOfWeek)
}

func formatBinding(b *registry.Binding) string {
	if b == nil {
		return ""
	}
	return fmt.Sprintf("This chat is bound to %s %q (notification level: %s).", b.Type, b.Value, b.NotifLevel)
}

func formatFacts(facts []storage.Fact) string {
	if len(facts) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Known facts about this user:\n")
	for _, f := range facts {
		fmt.Fprintf(&b, "- %s: %s\n", f.Key, f.Value)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatProject(p *ProjectSummary) string {
	if p == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Active project: %s\n", p.Name)
	if len(p.Todos) > 0 {
		fmt.Fprintf(&b, "Open TODOs: %s\n", strings.Join(p.Todos, "; "))
	}
	if len(p.OpenPRs) > 0 {
		fmt.Fprintf(&b, "Open PRs: %s\n", strings.Join(p.OpenPRs, "; "))
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatOutcomes(list []storage.Outcome) string {
	if len(list) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Recent outcomes:\n")
	for _, o := range list {
		fmt.Fprintf(&b, "- %s (%s): %s\n", o.Kind, o.Result, o.Details)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatHistory(entries []storage.ConversationEntry) string {
	if len(entries) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Recent conversation:\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "%s: %s\n", e.Role, e.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}
