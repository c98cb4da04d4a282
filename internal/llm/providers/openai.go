package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	openaiopt "github.com/openai/openai-go/option"

	"github.com/gosuda/deskchat/internal/llm"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAICompletions is the subset of the OpenAI SDK used here.
type OpenAICompletions interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...openaiopt.RequestOption) (*openai.ChatCompletion, error)
}

// OpenAI generates replies with the Chat Completions API. BaseURL lets it
// target any compatible endpoint.
type OpenAI struct {
	completions OpenAICompletions
}

func NewOpenAI(cfg llm.ProviderConfig) (llm.Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("providers.NewOpenAI: API key is required")
	}

	opts := []openaiopt.RequestOption{
		openaiopt.WithAPIKey(cfg.APIKey),
		openaiopt.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openaiopt.WithBaseURL(cfg.BaseURL))
	}

	client := openai.NewClient(opts...)
	return NewOpenAIWithAPI(&client.Chat.Completions), nil
}

// NewOpenAIWithAPI wraps an existing completions API.
func NewOpenAIWithAPI(completions OpenAICompletions) *OpenAI {
	return &OpenAI{completions: completions}
}

func (p *OpenAI) Name() string { return "OpenAI" }

func (p *OpenAI) Generate(ctx context.Context, req llm.Request) (string, error) {
	resp, err := p.completions.New(ctx, openAIParams(req))
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", normalizeOpenAIError(err))
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai chat completion: %w", llm.ErrEmptyReply)
	}

	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	if reply == "" {
		return "", fmt.Errorf("openai chat completion: %w", llm.ErrEmptyReply)
	}
	return reply, nil
}

func openAIParams(req llm.Request) openai.ChatCompletionNewParams {
	model := req.Model
	if model == "" {
		model = defaultOpenAIModel
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.History)+2)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	for _, m := range req.History {
		if m.Role == llm.RoleAssistant {
			messages = append(messages, openai.AssistantMessage(m.Content))
		} else {
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	return openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(model),
		Messages:    messages,
		MaxTokens:   openai.Int(req.MaxTokens),
		Temperature: openai.Float(req.Temperature),
	}
}

func normalizeOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &llm.APIError{StatusCode: apiErr.StatusCode, Message: apiErr.Error(), Err: err}
	}
	return err
}
