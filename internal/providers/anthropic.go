package providers

import (
	"context"
	"errors"
	"strconv"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Anthropic adapts the Messages API. The corpus routes "planning" and
// "complex" classes here first; see internal/ai's class→provider table.
type Anthropic struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

func NewAnthropic(apiKey, model string) *Anthropic {
	if model == "" {
		model = string(anthropic.ModelClaude3_7SonnetLatest)
	}
	return &Anthropic{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     model,
		maxTokens: 1024,
	}
}

func (p *Anthropic) Name() string { return "anthropic" }

func (p *Anthropic) Supports(class TaskClass) bool {
	switch class {
	case ClassPlanning, ClassCoding, ClassComplex, ClassResearch:
		return true
	default:
		return true
	}
}

func (p *Anthropic) Call(ctx context.Context, prompt, system string, opts Options) (Result, error) {
	model := opts.Model
	if model == "" {
		model = p.model
	}
	maxTokens := p.maxTokens
	if opts.MaxTokens > 0 {
		maxTokens = int64(opts.MaxTokens)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return Result{}, classifyAnthropicError(err)
	}
	var text strings.Builder
	for _, block := range resp.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(tb.Text)
		}
	}
	return Result{
		Text:   text.String(),
		Tokens: int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
	}, nil
}

func classifyAnthropicError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "429"):
		return errors.Join(ErrRateLimited, err)
	case strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "deadline") ||
		strings.Contains(msg, strconv.Itoa(500)) ||
		strings.Contains(msg, strconv.Itoa(502)) ||
		strings.Contains(msg, strconv.Itoa(503)):
		return errors.Join(ErrTransient, err)
	default:
		return errors.Join(ErrProvider, err)
	}
}
