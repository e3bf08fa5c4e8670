// Package plan implements the plan executor (C10): given a free-form
// instruction and a target project, it drives six phases that end in an
// upstream pull request, reporting progress to a caller-supplied
// ProgressFunc; it does not format or send status messages itself.
package plan

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/local/steward/internal/ai"
	"github.com/local/steward/internal/providers"
	"github.com/local/steward/internal/storage"
)

// RepoProvider is the adapter contract for the upstream repo provider.
// No concrete SDK is wired: branch/commit/PR operations are provider
// specific wire protocol, out of scope per the interface-only design.
type RepoProvider interface {
	ReadFile(ctx context.Context, project, path string) (string, error)
	CreateBranch(ctx context.Context, project, base, name string) error
	CommitFiles(ctx context.Context, project, branch, message string, files map[string]string) error
	CreatePR(ctx context.Context, project, branch, base, title, body string) (url string, err error)
	DeleteBranch(ctx context.Context, project, branch string) error
}

// FileDiff is one generated file change.
type FileDiff struct {
	Path    string
	Content string
}

// ProgressFunc receives a phase-transition or throttled in-phase progress
// event.
type ProgressFunc func(phase string, detail string)

const progressThrottle = 30 * time.Second

// Executor runs the six-phase plan lifecycle.
type Executor struct {
	store  *storage.Store
	router *ai.Router
	repo   RepoProvider
}

// New constructs an Executor.
func New(store *storage.Store, router *ai.Router, repo RepoProvider) *Executor {
	return &Executor{store: store, router: router, repo: repo}
}

// Run executes the full lifecycle for one instruction against a target
// project, returning the created PR URL. Progress is reported through
// report as each phase begins.
func (e *Executor) Run(ctx context.Context, userID, instruction, targetProject string, report ProgressFunc) (string, error) {
	if report == nil {
		report = func(string, string) {}
	}
	planID := uuid.NewString()

	report("analyze", "classifying instruction")
	ops, err := e.analyze(ctx, instruction)
	if err != nil {
		return "", e.fail(ctx, planID, userID, instruction, targetProject, nil, fmt.Errorf("analyze plan: %w", err))
	}

	fileOpsJSON, _ := json.Marshal(ops)
	if err := e.store.CreatePlan(ctx, planID, userID, instruction, targetProject, string(fileOpsJSON), "analyzing"); err != nil {
		return "", fmt.Errorf("create plan: %w", err)
	}

	report("read", "reading project files")
	contents, err := e.readFiles(ctx, targetProject, ops)
	if err != nil {
		return "", e.fail(ctx, planID, userID, instruction, targetProject, ops, fmt.Errorf("read project files: %w", err))
	}

	report("generate", "generating changes")
	diffs, err := e.generate(ctx, instruction, ops, contents, report)
	if err != nil {
		return "", e.fail(ctx, planID, userID, instruction, targetProject, ops, fmt.Errorf("generate code: %w", err))
	}

	// Phases 4-6 mutate remote state; a failure here rolls back on a
	// best-effort basis rather than leaving no trace.
	branch := branchName(instruction, planID)
	report("branch", "creating branch "+branch)
	if err := e.repo.CreateBranch(ctx, targetProject, "", branch); err != nil {
		return "", e.fail(ctx, planID, userID, instruction, targetProject, ops, fmt.Errorf("create branch: %w", err))
	}

	report("commit", "committing changes")
	files := make(map[string]string, len(diffs))
	for _, d := range diffs {
		files[d.Path] = d.Content
	}
	if err := e.repo.CommitFiles(ctx, targetProject, branch, commitMessage(instruction), files); err != nil {
		e.rollback(ctx, targetProject, branch)
		return "", e.fail(ctx, planID, userID, instruction, targetProject, ops, fmt.Errorf("commit changes: %w", err))
	}

	report("pr", "opening pull request")
	url, err := e.repo.CreatePR(ctx, targetProject, branch, "", prTitle(instruction), prBody(instruction, ops))
	if err != nil {
		e.rollback(ctx, targetProject, branch)
		return "", e.fail(ctx, planID, userID, instruction, targetProject, ops, fmt.Errorf("create PR: %w", err))
	}

	if err := e.store.UpdatePlanStatus(ctx, planID, "complete", url); err != nil {
		log.Printf("plan: update status for %s failed: %v", planID, err)
	}
	return url, nil
}

func (e *Executor) fail(ctx context.Context, planID, userID, instruction, targetProject string, ops []storage.FileOp, cause error) error {
	if err := e.store.UpdatePlanStatus(ctx, planID, "failed", ""); err != nil {
		log.Printf("plan: update status for %s failed: %v", planID, err)
	}
	return cause
}

func (e *Executor) rollback(ctx context.Context, project, branch string) {
	if err := e.repo.DeleteBranch(ctx, project, branch); err != nil {
		log.Printf("plan: best-effort rollback of branch %s failed: %v", branch, err)
	}
}

var (
	deleteWords = []string{"delete", "remove", "drop"}
	createWords = []string{"create", "add a new", "new file", "scaffold"}
	pathWord    = regexp.MustCompile(`[A-Za-z0-9_./-]+\.[A-Za-z0-9]+`)
)

// pathHints maps a keyword found in the instruction to the file it most
// often refers to in this corpus's projects. Checked in order; first match
// wins.
var pathHints = []struct {
	word string
	path string
}{
	{"readme", "README.md"},
	{"changelog", "CHANGELOG.md"},
	{"license", "LICENSE"},
	{"dockerfile", "Dockerfile"},
	{"ci", ".github/workflows/ci.yml"},
	{"github action", ".github/workflows/ci.yml"},
	{"config", "config.yaml"},
	{"dependenc", "go.mod"},
}

// analyze classifies the instruction and enumerates the file operations it
// implies. A real classifier would inspect the project tree; lacking that
// here, it extracts explicit paths from the wording, falls back to keyword
// hints, and otherwise treats the instruction as a single write against
// README.md. The verb (delete/create/otherwise write) is inferred the same
// keyword-bucket way internal/ai.ClassifyQuery classifies queries.
func (e *Executor) analyze(ctx context.Context, instruction string) ([]storage.FileOp, error) {
	lower := strings.ToLower(instruction)

	op := "write"
	switch {
	case containsAny(lower, deleteWords):
		op = "delete"
	case containsAny(lower, createWords):
		op = "create"
	}

	paths := pathWord.FindAllString(instruction, -1)
	if len(paths) == 0 {
		paths = []string{inferPath(lower)}
	}

	ops := make([]storage.FileOp, 0, len(paths))
	seen := make(map[string]bool, len(paths))
	for _, p := range paths {
		if seen[p] {
			continue
		}
		seen[p] = true
		ops = append(ops, storage.FileOp{Op: op, Path: p})
	}
	return ops, nil
}

// readFiles fetches the current contents of every op's path, with a
// per-call cache so a plan touching the same path from two ops (e.g. a
// read-then-write pair) only fetches it once.
func (e *Executor) readFiles(ctx context.Context, project string, ops []storage.FileOp) (map[string]string, error) {
	contents := make(map[string]string, len(ops))
	for _, op := range ops {
		if op.Op == "create" {
			continue
		}
		if _, ok := contents[op.Path]; ok {
			continue
		}
		c, err := e.repo.ReadFile(ctx, project, op.Path)
		if err != nil {
			return nil, err
		}
		contents[op.Path] = c
	}
	return contents, nil
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

func (e *Executor) generate(ctx context.Context, instruction string, ops []storage.FileOp, contents map[string]string, report ProgressFunc) ([]FileDiff, error) {
	var diffs []FileDiff
	lastReport := time.Now()
	for _, op := range ops {
		prompt := fmt.Sprintf("Instruction: %s\n\nFile: %s\n\nCurrent contents:\n%s", instruction, op.Path, contents[op.Path])
		result, err := e.router.Run(ctx, prompt, providers.ClassCoding, "")
		if err != nil {
			return nil, err
		}
		diffs = append(diffs, FileDiff{Path: op.Path, Content: result.Text})

		if time.Since(lastReport) >= progressThrottle {
			report("generate", "updated "+op.Path)
			lastReport = time.Now()
		}
	}
	return diffs, nil
}

func branchName(instruction, planID string) string {
	return slug(instruction) + "-" + planID[:8]
}

func commitMessage(instruction string) string {
	return instruction
}

func prTitle(instruction string) string {
	return instruction
}

func prBody(instruction string, ops []storage.FileOp) string {
	body := instruction + "\n\nFiles touched:\n"
	for _, op := range ops {
		body += "- " + op.Path + "\n"
	}
	return body
}

// inferPath guesses a target path from lower-cased instruction wording when
// no explicit path appears in it.
func inferPath(lower string) string {
	for _, hint := range pathHints {
		if strings.Contains(lower, hint.word) {
			return hint.path
		}
	}
	return "README.md"
}

func slug(s string) string {
	out := make([]rune, 0, len(s))
	lastDash := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			out = append(out, r)
			lastDash = false
		case r >= 'A' && r <= 'Z':
			out = append(out, r-'A'+'a')
			lastDash = false
		default:
			if !lastDash && len(out) > 0 {
				out = append(out, '-')
				lastDash = true
			}
		}
	}
	for len(out) > 0 && out[len(out)-1] == '-' {
		out = out[:len(out)-1]
	}
	if len(out) > 40 {
		out = out[:40]
	}
	return string(out)
}
