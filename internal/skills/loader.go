package skills

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// LoadDir implements the loader contract Registry.Discover expects: it
// walks the immediate subdirectories of dir, parses a SKILL.md out of each,
// and returns one fileSkill per parseable file. Subdirectories without a
// SKILL.md are skipped silently; a malformed SKILL.md is reported as an
// error for that one file but does not abort the rest of the scan.
func LoadDir(dir string) ([]Skill, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read skills dir %s: %w", dir, err)
	}

	var out []Skill
	var errs []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name(), "SKILL.md")
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		sk, err := parseSkillFile(path)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", path, err))
			continue
		}
		out = append(out, sk)
	}
	if len(errs) > 0 {
		return out, fmt.Errorf("parse errors: %s", strings.Join(errs, "; "))
	}
	return out, nil
}

// fileSkill is a directory-discovered skill whose body is declarative: its
// commands, description, and priority come from SKILL.md and its Execute
// replies with the skill's own description, since the spec leaves concrete
// skill bodies pluggable rather than defining their business logic.
type fileSkill struct {
	name        string
	description string
	priority    int
	commands    []Command
}

func (s *fileSkill) Name() string        { return s.name }
func (s *fileSkill) Description() string { return s.description }
func (s *fileSkill) Priority() int       { return s.priority }
func (s *fileSkill) Commands() []Command { return s.commands }

func (s *fileSkill) Execute(ctx context.Context, command string, sc Context) (Response, error) {
	return Response{OK: true, Message: s.description}, nil
}

// parseSkillFile reads the teacher-style SKILL.md layout:
//
//	# <name>
//
//	<description, one or more lines>
//
//	## Commands
//
//	- `pattern` — description (usage: `usage`)
//
//	## Priority
//
//	<int>
//
// The Commands and Priority sections are optional; a missing priority
// defaults to 20, below every built-in skill's priority.
func parseSkillFile(path string) (*fileSkill, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sk := &fileSkill{priority: 20}
	var descLines []string
	section := ""

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " \t")
		trimmed := strings.TrimSpace(line)

		switch {
		case strings.HasPrefix(trimmed, "# "):
			sk.name = strings.TrimSpace(strings.TrimPrefix(trimmed, "# "))
			section = ""
			continue
		case strings.HasPrefix(trimmed, "## "):
			section = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(trimmed, "## ")))
			continue
		}

		switch section {
		case "":
			if trimmed != "" {
				descLines = append(descLines, trimmed)
			}
		case "commands":
			if c, ok := parseCommandLine(trimmed); ok {
				sk.commands = append(sk.commands, c)
			}
		case "priority":
			if trimmed != "" {
				if n, err := strconv.Atoi(trimmed); err == nil {
					sk.priority = n
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if sk.name == "" {
		return nil, fmt.Errorf("missing `# name` heading")
	}
	sk.description = strings.Join(descLines, " ")
	if len(sk.commands) == 0 {
		sk.commands = []Command{{Pattern: sk.name, Description: sk.description}}
	}
	return sk, nil
}

// parseCommandLine parses one "- `pattern` — description" bullet, with an
// optional trailing "(usage: `...`)".
func parseCommandLine(line string) (Command, bool) {
	line = strings.TrimPrefix(strings.TrimSpace(line), "-")
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "`") {
		return Command{}, false
	}
	line = line[1:]
	idx := strings.Index(line, "`")
	if idx < 0 {
		return Command{}, false
	}
	pattern := line[:idx]
	rest := strings.TrimSpace(line[idx+1:])
	rest = strings.TrimPrefix(rest, "—")
	rest = strings.TrimPrefix(rest, "-")
	rest = strings.TrimSpace(rest)

	usage := ""
	if i := strings.Index(rest, "(usage:"); i >= 0 {
		usagePart := rest[i:]
		rest = strings.TrimSpace(rest[:i])
		usagePart = strings.TrimSuffix(strings.TrimPrefix(usagePart, "(usage:"), ")")
		usage = strings.Trim(strings.TrimSpace(usagePart), "`")
	}

	return Command{Pattern: pattern, Description: rest, Usage: usage}, true
}
