// Package status implements the status messenger (C14): stateless
// formatters for the six status kinds the pipeline, scheduler, and plan
// executor use to report progress and outcomes to users. Every formatter
// produces a bold header line, an indented body, and an optional trailing
// metadata line, rendered with or without markdown depending on the
// target platform's capability.
package status

import (
	"fmt"
	"strings"
)

// Kind enumerates the six status kinds.
type Kind string

const (
	ApprovalNeeded Kind = "APPROVAL_NEEDED"
	Working        Kind = "WORKING"
	Progress       Kind = "PROGRESS"
	Complete       Kind = "COMPLETE"
	Failed         Kind = "FAILED"
	Info           Kind = "INFO"
)

var headers = map[Kind]string{
	ApprovalNeeded: "Approval needed",
	Working:        "Working",
	Progress:       "Progress",
	Complete:       "Done",
	Failed:         "Failed",
	Info:           "Info",
}

// Meta is the optional trailing metadata line: cost estimate,
// estimated-time, or next-steps. Empty fields are omitted.
type Meta struct {
	CostEstimate string
	ETA          string
	NextSteps    string
}

func (m Meta) String() string {
	var parts []string
	if m.CostEstimate != "" {
		parts = append(parts, "cost: "+m.CostEstimate)
	}
	if m.ETA != "" {
		parts = append(parts, "eta: "+m.ETA)
	}
	if m.NextSteps != "" {
		parts = append(parts, "next: "+m.NextSteps)
	}
	return strings.Join(parts, " · ")
}

// Formatter renders status messages for one platform's markdown
// capability.
type Formatter struct {
	// Markdown reports whether the target platform renders markdown; if
	// false, bold markers are stripped.
	Markdown bool
}

// New constructs a Formatter for a platform's markdown capability.
func New(markdown bool) Formatter {
	return Formatter{Markdown: markdown}
}

func (f Formatter) bold(s string) string {
	if !f.Markdown {
		return s
	}
	return "*" + s + "*"
}

func (f Formatter) render(kind Kind, body string, meta Meta) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n  %s", f.bold(headers[kind]), indent(body))
	if m := meta.String(); m != "" {
		fmt.Fprintf(&b, "\n  %s", m)
	}
	return b.String()
}

func indent(body string) string {
	lines := strings.Split(body, "\n")
	return strings.Join(lines, "\n  ")
}

func (f Formatter) ApprovalNeeded(body string, meta Meta) string { return f.render(ApprovalNeeded, body, meta) }
func (f Formatter) Working(body string, meta Meta) string        { return f.render(Working, body, meta) }
func (f Formatter) Progress(body string, meta Meta) string       { return f.render(Progress, body, meta) }
func (f Formatter) Complete(body string, meta Meta) string       { return f.render(Complete, body, meta) }
func (f Formatter) Failed(body string, meta Meta) string         { return f.render(Failed, body, meta) }
func (f Formatter) Info(body string, meta Meta) string           { return f.render(Info, body, meta) }
