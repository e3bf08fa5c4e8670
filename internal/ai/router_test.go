package ai

import (
	"context"
	"testing"
	"time"

	"github.com/local/steward/internal/cache"
	"github.com/local/steward/internal/providers"
)

type fakeProvider struct {
	name    string
	calls   int
	failN   int // fail this many calls before succeeding
	failErr error
	text    string
}

func (f *fakeProvider) Name() string                              { return f.name }
func (f *fakeProvider) Supports(class providers.TaskClass) bool    { return true }
func (f *fakeProvider) Call(ctx context.Context, prompt, system string, opts providers.Options) (providers.Result, error) {
	f.calls++
	if f.calls <= f.failN {
		return providers.Result{}, f.failErr
	}
	return providers.Result{Text: f.text}, nil
}

func TestRunSelectsConfiguredProvider(t *testing.T) {
	p := &fakeProvider{name: "primary", text: "hello"}
	table := map[providers.TaskClass][]providers.Provider{
		providers.ClassSimple: {p},
	}
	r := NewRouter(table, nil, nil, false, 0)
	res, err := r.Run(context.Background(), "hi", providers.ClassSimple, "")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Provider != "primary" || res.Text != "hello" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestRunFallsBackToDefaultCoder(t *testing.T) {
	def := &fakeProvider{name: "default", text: "fallback"}
	r := NewRouter(map[providers.TaskClass][]providers.Provider{}, def, nil, false, 0)
	res, err := r.Run(context.Background(), "some query here", providers.ClassComplex, "")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Provider != "default" {
		t.Fatalf("expected default coder, got %q", res.Provider)
	}
}

func TestRunRetriesOnceOnTransientError(t *testing.T) {
	p := &fakeProvider{name: "flaky", failN: 1, failErr: providers.ErrTransient, text: "recovered"}
	table := map[providers.TaskClass][]providers.Provider{providers.ClassSimple: {p}}
	r := NewRouter(table, nil, nil, false, 0)

	start := time.Now()
	res, err := r.Run(context.Background(), "hi", providers.ClassSimple, "")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed < retryBackoff {
		t.Fatalf("expected retry back-off of at least %v, got %v", retryBackoff, elapsed)
	}
	if res.Text != "recovered" || p.calls != 2 {
		t.Fatalf("expected one retry; calls=%d result=%+v", p.calls, res)
	}
}

func TestRunFallsThroughOnRateLimit(t *testing.T) {
	limited := &fakeProvider{name: "limited", failN: 100, failErr: providers.ErrRateLimited}
	backup := &fakeProvider{name: "backup", text: "ok"}
	table := map[providers.TaskClass][]providers.Provider{
		providers.ClassSimple: {limited, backup},
	}
	r := NewRouter(table, nil, nil, false, 0)
	res, err := r.Run(context.Background(), "hi", providers.ClassSimple, "")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Provider != "backup" {
		t.Fatalf("expected fall-through to backup, got %q", res.Provider)
	}
}

func TestRunUsesCache(t *testing.T) {
	p := &fakeProvider{name: "primary", text: "hello"}
	table := map[providers.TaskClass][]providers.Provider{providers.ClassSimple: {p}}
	c := cache.New(10, 300*time.Second)
	r := NewRouter(table, nil, c, true, 300)

	if _, err := r.Run(context.Background(), "a cacheable query", providers.ClassSimple, ""); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}
	res, err := r.Run(context.Background(), "a cacheable query", providers.ClassSimple, "")
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if !res.Cached {
		t.Fatal("expected second call to be served from cache")
	}
	if p.calls != 1 {
		t.Fatalf("provider called %d times, want 1 (cache should have short-circuited)", p.calls)
	}
}

func TestRunBypassesCacheForBypassKeywords(t *testing.T) {
	p := &fakeProvider{name: "primary", text: "hello"}
	table := map[providers.TaskClass][]providers.Provider{providers.ClassSimple: {p}}
	c := cache.New(10, 300*time.Second)
	r := NewRouter(table, nil, c, true, 300)

	if _, err := r.Run(context.Background(), "what is the current status", providers.ClassSimple, ""); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}
	if _, err := r.Run(context.Background(), "what is the current status", providers.ClassSimple, ""); err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if p.calls != 2 {
		t.Fatalf("provider called %d times, want 2 (bypass keyword should skip cache)", p.calls)
	}
}

func TestRunFailsWhenNoProviderConfigured(t *testing.T) {
	r := NewRouter(map[providers.TaskClass][]providers.Provider{}, nil, nil, false, 0)
	if _, err := r.Run(context.Background(), "hi", providers.ClassSimple, ""); err == nil {
		t.Fatal("expected error when no provider is configured")
	}
}
