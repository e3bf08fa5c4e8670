package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestOnboardCreatesSkillDirs(t *testing.T) {
	d := t.TempDir()
	cfg := &Config{
		SkillsUniversalDir: filepath.Join(d, "universal"),
		SkillsLocalDir:     filepath.Join(d, "local"),
	}
	if err := Onboard(cfg); err != nil {
		t.Fatalf("Onboard failed: %v", err)
	}
	for _, dir := range []string{cfg.SkillsUniversalDir, cfg.SkillsLocalDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s to exist", dir)
		}
	}
	examplePath := filepath.Join(cfg.SkillsLocalDir, "example", "SKILL.md")
	b, err := os.ReadFile(examplePath)
	if err != nil {
		t.Fatalf("expected example skill to exist: %v", err)
	}
	if len(b) == 0 {
		t.Fatal("expected example skill to be non-empty")
	}
}

func TestOnboardIdempotent(t *testing.T) {
	d := t.TempDir()
	cfg := &Config{
		SkillsUniversalDir: filepath.Join(d, "universal"),
		SkillsLocalDir:     filepath.Join(d, "local"),
	}
	if err := Onboard(cfg); err != nil {
		t.Fatalf("first Onboard failed: %v", err)
	}
	examplePath := filepath.Join(cfg.SkillsLocalDir, "example", "SKILL.md")
	custom := []byte("# example\n\ncustomized by user\n")
	if err := os.WriteFile(examplePath, custom, 0o644); err != nil {
		t.Fatalf("writing customization: %v", err)
	}
	if err := Onboard(cfg); err != nil {
		t.Fatalf("second Onboard failed: %v", err)
	}
	b, err := os.ReadFile(examplePath)
	if err != nil {
		t.Fatalf("reading example skill: %v", err)
	}
	if string(b) != string(custom) {
		t.Fatal("Onboard must not overwrite an existing skill file")
	}
}
