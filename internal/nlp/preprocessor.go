// Package nlp implements the natural-language preprocessor (C8): a small,
// ordered set of rewrite rules that translate conversational phrasings
// into canonical skill commands, with passthrough guards that leave
// conversational input alone so it reaches the AI handler unchanged.
package nlp

import "strings"

// Rule rewrites text: when Match reports true for the lower-cased input,
// Apply returns the replacement. Rules are tried in order; the first match
// wins.
type Rule struct {
	Name  string
	Match func(lower string) bool
	Apply func(text, lower string) string
}

// Preprocessor holds the ordered rule list and the tunable keyword lists
// the passthrough guards consult. Keyword lists are struct fields rather
// than package constants so a deployment can tune them at construction
// without a rebuild.
type Preprocessor struct {
	Greetings   []string
	CodingVerbs []string
	Rules       []Rule
}

// New builds a Preprocessor with the default keyword lists and rule set.
func New() *Preprocessor {
	p := &Preprocessor{
		Greetings:   defaultGreetings,
		CodingVerbs: defaultCodingVerbs,
	}
	p.Rules = defaultRules()
	return p
}

var defaultGreetings = []string{
	"hi", "hello", "hey", "good morning", "good afternoon", "good evening",
	"what's up", "whats up", "howdy",
}

var defaultCodingVerbs = []string{"add", "make", "fix", "implement", "refactor", "remove"}

// Rewrite applies passthrough guards, then the ordered rule list. ctx is
// reserved for per-chat state a future guard or rule might need; none of
// the current rules use it.
func (p *Preprocessor) Rewrite(text string, ctx map[string]any) string {
	trimmed := strings.TrimSpace(text)
	lower := strings.ToLower(trimmed)

	if p.isGreeting(lower) || p.isQuestion(trimmed) || p.isCodingVerbPhrase(lower) {
		return text
	}

	for _, r := range p.Rules {
		if r.Match(lower) {
			return r.Apply(trimmed, lower)
		}
	}
	return text
}

func (p *Preprocessor) isGreeting(lower string) bool {
	for _, g := range p.Greetings {
		if lower == g || strings.HasPrefix(lower, g+" ") || strings.HasPrefix(lower, g+",") {
			return true
		}
	}
	return false
}

func (p *Preprocessor) isQuestion(trimmed string) bool {
	if strings.HasSuffix(trimmed, "?") {
		return true
	}
	lower := strings.ToLower(trimmed)
	for _, w := range []string{"what", "why", "how", "when", "who", "can you", "could you"} {
		if strings.HasPrefix(lower, w+" ") {
			return true
		}
	}
	return false
}

func (p *Preprocessor) isCodingVerbPhrase(lower string) bool {
	for _, v := range p.CodingVerbs {
		if strings.HasPrefix(lower, v+" ") {
			return true
		}
	}
	return false
}

// defaultRules returns the built-in rewrite rules. Each rule is self
// contained: Match decides applicability, Apply produces the canonical
// command text.
func defaultRules() []Rule {
	return []Rule{
		{
			Name:  "whats-left-on",
			Match: func(lower string) bool { return containsAny(lower, "what's left on", "whats left on") },
			Apply: func(text, lower string) string {
				return "project status " + strings.TrimSpace(afterAny(text, lower, "what's left on", "whats left on"))
			},
		},
		{
			Name:  "remind-me-to",
			Match: func(lower string) bool { return strings.HasPrefix(lower, "remind me to ") },
			Apply: func(text, lower string) string {
				return "remember " + strings.TrimSpace(text[len("remind me to "):])
			},
		},
		{
			Name:  "whats-my-status",
			Match: func(lower string) bool {
				return containsAny(lower, "what's my status", "whats my status", "how am i doing")
			},
			Apply: func(text, lower string) string { return "status" },
		},
		{
			Name:  "ship-it",
			Match: func(lower string) bool { return containsAny(lower, "ship it", "ship this") },
			Apply: func(text, lower string) string { return "deploy" },
		},
	}
}

func containsAny(haystack string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

// afterAny returns the text following whichever needle matched first in
// lower, taken from the original-cased text at the same byte offset.
func afterAny(text, lower string, needles ...string) string {
	for _, n := range needles {
		if idx := strings.Index(lower, n); idx >= 0 {
			return text[idx+len(n):]
		}
	}
	return ""
}
