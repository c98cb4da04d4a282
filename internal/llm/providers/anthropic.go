package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"

	"github.com/gosuda/deskchat/internal/llm"
)

const defaultAnthropicModel = "claude-3-5-haiku-latest"

// AnthropicMessages is the subset of the Anthropic SDK used here.
type AnthropicMessages interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...anthropicopt.RequestOption) (*anthropic.Message, error)
}

// Anthropic generates replies with the Anthropic Messages API.
type Anthropic struct {
	messages AnthropicMessages
}

// NewAnthropic builds a provider from an SDK client with its own retries
// disabled, so only the llm retry loop decides about retries.
func NewAnthropic(cfg llm.ProviderConfig) (llm.Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("providers.NewAnthropic: API key is required")
	}

	opts := []anthropicopt.RequestOption{
		anthropicopt.WithAPIKey(cfg.APIKey),
		anthropicopt.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, anthropicopt.WithBaseURL(cfg.BaseURL))
	}

	client := anthropic.NewClient(opts...)
	return NewAnthropicWithAPI(&client.Messages), nil
}

// NewAnthropicWithAPI wraps an existing messages API.
func NewAnthropicWithAPI(messages AnthropicMessages) *Anthropic {
	return &Anthropic{messages: messages}
}

func (p *Anthropic) Name() string { return "Anthropic Claude" }

func (p *Anthropic) Generate(ctx context.Context, req llm.Request) (string, error) {
	msg, err := p.messages.New(ctx, anthropicParams(req))
	if err != nil {
		return "", fmt.Errorf("anthropic messages: %w", normalizeAnthropicError(err))
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}

	reply := strings.TrimSpace(b.String())
	if reply == "" {
		return "", fmt.Errorf("anthropic messages: %w", llm.ErrEmptyReply)
	}
	return reply, nil
}

func anthropicParams(req llm.Request) anthropic.MessageNewParams {
	model := req.Model
	if model == "" {
		model = defaultAnthropicModel
	}

	messages := make([]anthropic.MessageParam, 0, len(req.History)+1)
	for _, m := range req.History {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == llm.RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(block))
		} else {
			messages = append(messages, anthropic.NewUserMessage(block))
		}
	}
	messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)))

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		MaxTokens:   req.MaxTokens,
		Messages:    messages,
		Temperature: anthropic.Float(req.Temperature),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	return params
}

func normalizeAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &llm.APIError{StatusCode: apiErr.StatusCode, Message: apiErr.Error(), Err: err}
	}
	return err
}
