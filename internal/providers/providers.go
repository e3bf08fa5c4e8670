// Package providers adapts upstream AI APIs to a single narrow interface
// consumed by internal/ai's router (C4). Each concrete adapter wraps the
// vendor SDK used elsewhere in the corpus for the same vendor: OpenAI's
// chat-completions client, Anthropic's messages client, and Google's genai
// client.
package providers

import (
	"context"
	"errors"
)

// ErrRateLimited is returned by a provider that is currently throttling the
// caller; the router falls through to the next provider in the class's
// ordering.
var ErrRateLimited = errors.New("providers: rate limited")

// ErrTransient is returned for timeouts and 5xx responses; the router
// retries once with a fixed back-off before giving up on this provider.
var ErrTransient = errors.New("providers: transient failure")

// ErrProvider is returned for anything else the provider reports (auth
// failure, bad model, malformed response).
var ErrProvider = errors.New("providers: call failed")

// Options carries the tunable knobs a call site may set; zero values mean
// "use the adapter's default".
type Options struct {
	Model       string
	MaxTokens   int
	Temperature float64
}

// Result is what a successful Call returns.
type Result struct {
	Text   string
	Tokens int
}

// TaskClass is one of the seven classes the router's classifier produces.
type TaskClass string

const (
	ClassGreeting TaskClass = "greeting"
	ClassSimple   TaskClass = "simple"
	ClassPlanning TaskClass = "planning"
	ClassCoding   TaskClass = "coding"
	ClassSocial   TaskClass = "social"
	ClassResearch TaskClass = "research"
	ClassComplex  TaskClass = "complex"
)

// Provider is the contract every upstream adapter satisfies.
type Provider interface {
	Name() string
	Supports(class TaskClass) bool
	Call(ctx context.Context, prompt, system string, opts Options) (Result, error)
}
