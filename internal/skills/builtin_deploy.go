package skills

import (
	"context"
	"strings"
)

// DeploySkill is the reference example of a skill whose effect requires
// confirmation (C9) rather than running immediately: its Execute only
// acknowledges the request and names the target, leaving the actual
// propose/confirm/execute lifecycle to the caller that owns the pending
// action machinery. It exists to demonstrate the Skill interface the way
// the onboarding sample demonstrates it for directory-loaded skills.
type DeploySkill struct{}

// NewDeploySkill constructs the "deploy" built-in.
func NewDeploySkill() *DeploySkill {
	return &DeploySkill{}
}

func (s *DeploySkill) Name() string        { return "deploy" }
func (s *DeploySkill) Description() string { return "Deploys a project. Requires confirmation." }
func (s *DeploySkill) Priority() int        { return 60 }

func (s *DeploySkill) Commands() []Command {
	return []Command{
		{Pattern: "deploy", Description: "Deploy a project", Usage: "deploy <project>"},
	}
}

func (s *DeploySkill) Execute(ctx context.Context, command string, sc Context) (Response, error) {
	target := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(command), "deploy"))
	if target == "" {
		return Response{OK: false, Message: "deploy what? usage: deploy <project>"}, nil
	}
	return Response{
		OK:      true,
		Message: "got it, I'll need your confirmation before deploying " + target + ".",
		Data:    map[string]any{"kind": "deploy", "target": target},
	}, nil
}
