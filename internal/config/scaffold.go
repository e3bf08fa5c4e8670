package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// sampleSkill is written into the local skills directory on first onboard so
// a fresh deployment has at least one discoverable skill to look at.
const sampleSkill = `# example

A sample skill demonstrating the internal/skills.Skill interface.

## Commands

- ` + "`ping`" + ` — replies with this skill's description.
`

// Onboard creates the universal and local skill-discovery directories (see
// SPEC_FULL.md §4.7's dual-path discovery) if they do not already exist, and
// drops a sample skill into the local directory.
func Onboard(cfg *Config) error {
	for _, dir := range []string{cfg.SkillsUniversalDir, cfg.SkillsLocalDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating skill directory %s: %w", dir, err)
		}
	}

	examplePath := filepath.Join(cfg.SkillsLocalDir, "example", "SKILL.md")
	if _, err := os.Stat(examplePath); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(examplePath), 0o755); err != nil {
			return fmt.Errorf("creating example skill dir: %w", err)
		}
		if err := os.WriteFile(examplePath, []byte(sampleSkill), 0o644); err != nil {
			return fmt.Errorf("writing example skill: %w", err)
		}
	}

	return nil
}
