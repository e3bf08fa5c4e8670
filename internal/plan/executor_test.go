package plan

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/local/steward/internal/ai"
	"github.com/local/steward/internal/providers"
	"github.com/local/steward/internal/storage"
)

type fakeProvider struct{}

func (fakeProvider) Name() string                        { return "fake" }
func (fakeProvider) Supports(providers.TaskClass) bool    { return true }
func (fakeProvider) Call(ctx context.Context, prompt, system string, opts providers.Options) (providers.Result, error) {
	return providers.Result{Text: "generated content"}, nil
}

type fakeRepo struct {
	failCommit    bool
	failPR        bool
	deletedBranch string
	reads         []string
}

func (r *fakeRepo) ReadFile(ctx context.Context, project, path string) (string, error) {
	r.reads = append(r.reads, path)
	return "old content", nil
}
func (r *fakeRepo) CreateBranch(ctx context.Context, project, base, name string) error { return nil }
func (r *fakeRepo) CommitFiles(ctx context.Context, project, branch, message string, files map[string]string) error {
	if r.failCommit {
		return errors.New("commit failed")
	}
	return nil
}
func (r *fakeRepo) CreatePR(ctx context.Context, project, branch, base, title, body string) (string, error) {
	if r.failPR {
		return "", errors.New("pr failed")
	}
	return "https://example.com/pr/1", nil
}
func (r *fakeRepo) DeleteBranch(ctx context.Context, project, branch string) error {
	r.deletedBranch = branch
	return nil
}

func newTestExecutor(t *testing.T, repo RepoProvider) (*Executor, *storage.Store) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.Open(filepath.Join(dir, "memory.db"), filepath.Join(dir, "state.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	table := map[providers.TaskClass][]providers.Provider{
		providers.ClassCoding: {fakeProvider{}},
	}
	router := ai.NewRouter(table, fakeProvider{}, nil, false, 0)
	return New(store, router, repo), store
}

func TestRunCreatesPR(t *testing.T) {
	repo := &fakeRepo{}
	e, store := newTestExecutor(t, repo)

	url, err := e.Run(context.Background(), "u1", "fix the login bug", "proj", nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if url != "https://example.com/pr/1" {
		t.Fatalf("unexpected url: %q", url)
	}

	plans, err := store.RecentPlans(context.Background(), "u1", 1)
	if err != nil {
		t.Fatalf("RecentPlans failed: %v", err)
	}
	if len(plans) != 1 || plans[0].Status != "complete" {
		t.Fatalf("expected a complete plan row, got %+v", plans)
	}
}

func TestRunRollsBackOnCommitFailure(t *testing.T) {
	repo := &fakeRepo{failCommit: true}
	e, store := newTestExecutor(t, repo)

	_, err := e.Run(context.Background(), "u1", "fix the login bug", "proj", nil)
	if err == nil {
		t.Fatal("expected an error")
	}
	if repo.deletedBranch == "" {
		t.Fatal("expected a rollback delete-branch call")
	}

	plans, err := store.RecentPlans(context.Background(), "u1", 1)
	if err != nil {
		t.Fatalf("RecentPlans failed: %v", err)
	}
	if len(plans) != 1 || plans[0].Status != "failed" {
		t.Fatalf("expected a failed plan row, got %+v", plans)
	}
}

func TestRunReportsProgress(t *testing.T) {
	repo := &fakeRepo{}
	e, _ := newTestExecutor(t, repo)

	var phases []string
	_, err := e.Run(context.Background(), "u1", "add a retry", "proj", func(phase, detail string) {
		phases = append(phases, phase)
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	want := []string{"analyze", "read", "generate", "branch", "commit", "pr"}
	if len(phases) != len(want) {
		t.Fatalf("got phases %v, want %v", phases, want)
	}
	for i, p := range want {
		if phases[i] != p {
			t.Fatalf("phase %d: got %q, want %q", i, phases[i], p)
		}
	}
}

func TestAnalyzeExtractsExplicitPaths(t *testing.T) {
	e, _ := newTestExecutor(t, &fakeRepo{})
	ops, err := e.analyze(context.Background(), "update cmd/steward/main.go and internal/plan/executor.go to log retries")
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	want := map[string]bool{"cmd/steward/main.go": true, "internal/plan/executor.go": true}
	if len(ops) != 2 {
		t.Fatalf("expected 2 ops, got %+v", ops)
	}
	for _, op := range ops {
		if !want[op.Path] {
			t.Fatalf("unexpected path %q in %+v", op.Path, ops)
		}
		if op.Op != "write" {
			t.Fatalf("expected write op, got %q", op.Op)
		}
	}
}

func TestAnalyzeFallsBackToKeywordHint(t *testing.T) {
	e, _ := newTestExecutor(t, &fakeRepo{})
	ops, err := e.analyze(context.Background(), "delete the stale section from the readme")
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	if len(ops) != 1 || ops[0].Path != "README.md" || ops[0].Op != "delete" {
		t.Fatalf("unexpected ops: %+v", ops)
	}
}

func TestReadFilesCachesRepeatedPaths(t *testing.T) {
	e, _ := newTestExecutor(t, &fakeRepo{})
	repo := &fakeRepo{}
	e.repo = repo

	ops := []storage.FileOp{
		{Op: "write", Path: "README.md"},
		{Op: "write", Path: "README.md"},
		{Op: "write", Path: "CHANGELOG.md"},
	}
	contents, err := e.readFiles(context.Background(), "proj", ops)
	if err != nil {
		t.Fatalf("readFiles failed: %v", err)
	}
	if len(contents) != 2 {
		t.Fatalf("expected 2 distinct contents, got %+v", contents)
	}
	if len(repo.reads) != 2 {
		t.Fatalf("expected the repeated path to be fetched once, got %v", repo.reads)
	}
}
