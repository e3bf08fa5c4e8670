package providers

import (
	"context"
	"errors"
	"strconv"
	"strings"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// OpenAI adapts the chat-completions API. It supports every task class
// except none are excluded; it is the usual "default coder" provider.
type OpenAI struct {
	client sdk.Client
	model  string
}

// NewOpenAI constructs an OpenAI adapter. model is used when Options.Model
// is empty.
func NewOpenAI(apiKey, model string) *OpenAI {
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAI{
		client: sdk.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

func (p *OpenAI) Name() string { return "openai" }

func (p *OpenAI) Supports(class TaskClass) bool {
	return true
}

func (p *OpenAI) Call(ctx context.Context, prompt, system string, opts Options) (Result, error) {
	model := opts.Model
	if model == "" {
		model = p.model
	}

	messages := []sdk.ChatCompletionMessageParamUnion{}
	if system != "" {
		messages = append(messages, sdk.SystemMessage(system))
	}
	messages = append(messages, sdk.UserMessage(prompt))

	params := sdk.ChatCompletionNewParams{
		Model:    sdk.ChatModel(model),
		Messages: messages,
	}
	if opts.MaxTokens > 0 {
		params.MaxTokens = sdk.Int(int64(opts.MaxTokens))
	}
	if opts.Temperature > 0 {
		params.Temperature = sdk.Float(opts.Temperature)
	}

	comp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return Result{}, classifyOpenAIError(err)
	}
	if len(comp.Choices) == 0 {
		return Result{}, ErrProvider
	}
	return Result{
		Text:   comp.Choices[0].Message.Content,
		Tokens: int(comp.Usage.TotalTokens),
	}, nil
}

func classifyOpenAIError(err error) error {
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
