package skills

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
)

// Registry holds the priority-sorted, de-duplicated set of loaded skills
// and dispatches commands against them.
type Registry struct {
	mu     sync.RWMutex
	sorted []Skill
	byName map[string]Skill
}

// NewRegistry builds an empty registry. Register built-ins, then call
// Discover for directory-loaded skills, then Sort once before Dispatch is
// used.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Skill)}
}

// Register adds a skill directly (used for built-ins compiled into the
// binary, e.g. status/remember/deploy).
func (r *Registry) Register(s Skill) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[s.Name()] = s
}

// Discover scans dirs in order (universal, then local) for skill
// definitions, registering each. Directories scanned later take priority:
// a local skill with the same name as a universal one replaces it, and
// the replaced entry is logged.
//
// loader is supplied by the caller so directory-backed skill formats
// (e.g. SKILL.md front matter) stay decoupled from this package; it
// receives a directory path and returns the skills found directly inside
// it, or an error if the directory is unreadable.
func (r *Registry) Discover(dirs []string, loader func(dir string) ([]Skill, error)) error {
	for _, dir := range dirs {
		found, err := loader(dir)
		if err != nil {
			return fmt.Errorf("discover skills in %s: %w", dir, err)
		}
		for _, s := range found {
			r.mu.Lock()
			if _, exists := r.byName[s.Name()]; exists {
				log.Printf("skills: %q overridden by directory %s entry", s.Name(), dir)
			}
			r.byName[s.Name()] = s
			r.mu.Unlock()
		}
	}
	return nil
}

// Sort orders skills by descending priority, stable tie-break by name.
// Call after Register/Discover and before Dispatch.
func (r *Registry) Sort() {
	r.mu.Lock()
	defer r.mu.Unlock()
	sorted := make([]Skill, 0, len(r.byName))
	for _, s := range r.byName {
		sorted = append(sorted, s)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Priority() != sorted[j].Priority() {
			return sorted[i].Priority() > sorted[j].Priority()
		}
		return sorted[i].Name() < sorted[j].Name()
	})
	r.sorted = sorted
}

// Dispatch walks skills in priority order and runs the first one whose
// CanHandle (or the default any-pattern-matches behavior) accepts the
// command. Returns NoMatch if nothing handles it.
func (r *Registry) Dispatch(ctx context.Context, command string, sc Context) (Response, error) {
	r.mu.RLock()
	sorted := r.sorted
	r.mu.RUnlock()

	for _, s := range sorted {
		if canHandle(s, command, sc) {
			return s.Execute(ctx, command, sc)
		}
	}
	return NoMatch, nil
}

func canHandle(s Skill, command string, sc Context) bool {
	if ch, ok := s.(CanHandler); ok {
		return ch.CanHandle(command, sc)
	}
	return defaultCanHandle(s, command)
}

// defaultCanHandle reports whether any of the skill's declared patterns
// matches the command. Patterns are matched as a case-insensitive prefix
// of the command, which is the shape the built-in skills and SKILL.md
// commands both use.
func defaultCanHandle(s Skill, command string) bool {
	lower := strings.ToLower(strings.TrimSpace(command))
	for _, c := range s.Commands() {
		if strings.HasPrefix(lower, strings.ToLower(c.Pattern)) {
			return true
		}
	}
	return false
}
