package skills

import (
	"context"
	"strings"
)

// PlanSkill requests the six-phase plan executor (C10) run against a
// target project. Like DeploySkill, it only proposes the action; the
// caller owning the pending-action machinery invokes the registered
// runner once the user confirms.
type PlanSkill struct{}

// NewPlanSkill constructs the "plan" built-in.
func NewPlanSkill() *PlanSkill {
	return &PlanSkill{}
}

func (s *PlanSkill) Name() string        { return "plan" }
func (s *PlanSkill) Description() string { return "Runs a plan against a project. Requires confirmation." }
func (s *PlanSkill) Priority() int        { return 60 }

func (s *PlanSkill) Commands() []Command {
	return []Command{
		{Pattern: "plan", Description: "Plan and open a PR for a project", Usage: "plan <project> <instruction>"},
	}
}

func (s *PlanSkill) Execute(ctx context.Context, command string, sc Context) (Response, error) {
	rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(command), "plan"))
	parts := strings.SplitN(rest, " ", 2)
	if len(parts) < 2 || parts[0] == "" || strings.TrimSpace(parts[1]) == "" {
		return Response{OK: false, Message: "usage: plan <project> <instruction>"}, nil
	}
	project, instruction := parts[0], strings.TrimSpace(parts[1])
	return Response{
		OK:      true,
		Message: "I'll plan \"" + instruction + "\" against " + project + " and open a PR once you confirm.",
		Data:    map[string]any{"kind": "plan", "target": sc.UserID + "|" + project + "|" + instruction},
	}, nil
}
