package providers

import "context"

// Stub is used when no upstream provider is configured for a class. It
// never fails and never talks to the network, mirroring the teacher's
// NewStubProvider used as a zero-config fallback.
type Stub struct{}

func NewStub() *Stub { return &Stub{} }

func (s *Stub) Name() string { return "stub" }

func (s *Stub) Supports(class TaskClass) bool { return true }

func (s *Stub) Call(ctx context.Context, prompt, system string, opts Options) (Result, error) {
	return Result{Text: "no AI provider is configured; set OPENAI_API_KEY, ANTHROPIC_API_KEY, or GEMINI_API_KEY"}, nil
}
