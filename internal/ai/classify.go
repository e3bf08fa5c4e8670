package ai

import (
	"strings"

	"github.com/local/steward/internal/providers"
)

var greetingWords = map[string]bool{
	"hi": true, "hello": true, "hey": true, "yo": true,
	"morning": true, "evening": true, "sup": true,
}

var planningWords = []string{"plan", "should i", "roadmap", "strategy", "prioritize"}
var codingWords = []string{"code", "bug", "function", "deploy", "refactor", "implement", "fix", "error", "stack trace"}
var socialWords = []string{"lol", "haha", "joke", "funny", "how are you"}
var researchWords = []string{"research", "compare", "summarize", "find out", "look up", "explain"}

// ClassifyQuery is the default keyword/heuristic classifier. taskType
// inference order favors the most specific class: greeting, then short
// inputs, then keyword buckets, with complex as the catch-all.
func ClassifyQuery(query string) providers.TaskClass {
	trimmed := strings.TrimSpace(query)
	lower := strings.ToLower(trimmed)
	tokens := strings.Fields(lower)

	if len(tokens) > 0 && greetingWords[strings.Trim(tokens[0], "!.,?")] {
		return providers.ClassGreeting
	}
	if len(tokens) <= 3 {
		return providers.ClassSimple
	}
	if containsAny(lower, planningWords) {
		return providers.ClassPlanning
	}
	if containsAny(lower, codingWords) {
		return providers.ClassCoding
	}
	if containsAny(lower, socialWords) {
		return providers.ClassSocial
	}
	if containsAny(lower, researchWords) {
		return providers.ClassResearch
	}
	return providers.ClassComplex
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
