package upstream

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/cchalm/tsundere-chat/internal/chat"
)

const anthropicMaxOutputTokens = 2048

// AnthropicGenerator generates replies with the Anthropic Messages API
type AnthropicGenerator struct {
	client anthropic.Client
	model  anthropic.Model
}

func NewAnthropicGenerator(cfg Config) *AnthropicGenerator {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(cfg.HTTPClient),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &AnthropicGenerator{
		client: anthropic.NewClient(opts...),
		model:  anthropic.Model(cfg.Model),
	}
}

func (ag *AnthropicGenerator) Name() string {
	return ProviderAnthropic
}

func (ag *AnthropicGenerator) Generate(ctx context.Context, prompt chat.Prompt) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     ag.model,
		MaxTokens: anthropicMaxOutputTokens,
		Messages:  anthropicMessages(prompt),
	}
	if prompt.SystemInstruction != "" {
		params.System = []anthropic.TextBlockParam{{Text: prompt.SystemInstruction}}
	}

	response, err := ag.client.Messages.New(ctx, params)
	if err != nil {
		return "", anthropicError(err)
	}

	var reply strings.Builder
	for _, block := range response.Content {
		if block.Type == "text" {
			reply.WriteString(block.Text)
		}
	}
	return reply.String(), nil
}

func anthropicMessages(prompt chat.Prompt) []anthropic.MessageParam {
	messages := make([]anthropic.MessageParam, 0, len(prompt.History)+1)
	for _, turn := range prompt.History {
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(turn.Parts))
		for _, p := range turn.Parts {
			blocks = append(blocks, anthropic.NewTextBlock(p))
		}
		if turn.Role == chat.UpstreamModel {
			messages = append(messages, anthropic.NewAssistantMessage(blocks...))
		} else {
			messages = append(messages, anthropic.NewUserMessage(blocks...))
		}
	}
	return append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(prompt.Message)))
}

func anthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &chat.UpstreamError{
			Provider:   ProviderAnthropic,
			StatusCode: apiErr.StatusCode,
			Message:    apiErr.Error(),
			Err:        err,
		}
	}
	return genericError(ProviderAnthropic, err)
}
