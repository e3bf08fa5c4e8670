package skills

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

type fakeSkill struct {
	name     string
	priority int
	pattern  string
	reply    string
}

func (s *fakeSkill) Name() string        { return s.name }
func (s *fakeSkill) Description() string { return "fake" }
func (s *fakeSkill) Priority() int       { return s.priority }
func (s *fakeSkill) Commands() []Command { return []Command{{Pattern: s.pattern}} }
func (s *fakeSkill) Execute(ctx context.Context, command string, sc Context) (Response, error) {
	return Response{OK: true, Message: s.reply}, nil
}

func TestRegisterSortPriorityOrder(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeSkill{name: "low", priority: 10, pattern: "x", reply: "low"})
	r.Register(&fakeSkill{name: "high", priority: 90, pattern: "x", reply: "high"})
	r.Register(&fakeSkill{name: "mid", priority: 50, pattern: "x", reply: "mid"})
	r.Sort()

	resp, err := r.Dispatch(context.Background(), "x", Context{})
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if resp.Message != "high" {
		t.Fatalf("expected the highest-priority skill to win, got %q", resp.Message)
	}
}

func TestSortStableTieBreakByName(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeSkill{name: "zeta", priority: 10, pattern: "cmd", reply: "zeta"})
	r.Register(&fakeSkill{name: "alpha", priority: 10, pattern: "cmd", reply: "alpha"})
	r.Sort()

	resp, err := r.Dispatch(context.Background(), "cmd", Context{})
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if resp.Message != "alpha" {
		t.Fatalf("expected alpha (tie-broken by name) to win, got %q", resp.Message)
	}
}

func TestDispatchNoMatch(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeSkill{name: "only", priority: 10, pattern: "hello"})
	r.Sort()

	resp, err := r.Dispatch(context.Background(), "goodbye", Context{})
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if resp != NoMatch {
		t.Fatalf("expected NoMatch, got %+v", resp)
	}
}

func writeSkillFile(t *testing.T, dir, name, body string) {
	t.Helper()
	skillDir := filepath.Join(dir, name)
	if err := os.MkdirAll(skillDir, 0o755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(skillDir, "SKILL.md"), []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
}

func TestDiscoverLocalOverridesUniversal(t *testing.T) {
	universal := t.TempDir()
	local := t.TempDir()

	writeSkillFile(t, universal, "weather", "# weather\n\nUniversal weather lookup.\n\n## Commands\n\n- `weather` — universal weather.\n")
	writeSkillFile(t, local, "weather", "# weather\n\nLocal override.\n\n## Commands\n\n- `weather` — local weather.\n")

	r := NewRegistry()
	if err := r.Discover([]string{universal, local}, LoadDir); err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	r.Sort()

	resp, err := r.Dispatch(context.Background(), "weather", Context{})
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if resp.Message != "Local override." {
		t.Fatalf("expected local skill to win collision, got %q", resp.Message)
	}
}

func TestDiscoverSkipsDirsWithoutSkillFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "empty"), 0o755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}

	found, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir failed: %v", err)
	}
	if len(found) != 0 {
		t.Fatalf("expected no skills, got %d", len(found))
	}
}

func TestDiscoverMissingDirIsNotAnError(t *testing.T) {
	found, err := LoadDir(filepath.Join(t.TempDir(), "does-not-exist"))
	if err != nil {
		t.Fatalf("LoadDir failed: %v", err)
	}
	if found != nil {
		t.Fatalf("expected nil, got %v", found)
	}
}

func TestParseSkillFileCommandAndUsage(t *testing.T) {
	dir := t.TempDir()
	writeSkillFile(t, dir, "example", "# example\n\nA sample skill.\n\n## Commands\n\n- `ping` — replies \"pong\" (usage: `ping`)\n")

	found, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir failed: %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("expected 1 skill, got %d", len(found))
	}
	cmds := found[0].Commands()
	if len(cmds) != 1 || cmds[0].Pattern != "ping" {
		t.Fatalf("unexpected commands: %+v", cmds)
	}
	if cmds[0].Usage != "ping" {
		t.Fatalf("expected usage %q, got %q", "ping", cmds[0].Usage)
	}
}
