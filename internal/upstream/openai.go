package upstream

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/cchalm/tsundere-chat/internal/chat"
)

// OpenAIGenerator generates replies with an OpenAI-compatible chat completions API
type OpenAIGenerator struct {
	client openai.Client
	model  string
}

func NewOpenAIGenerator(cfg Config) *OpenAIGenerator {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(cfg.HTTPClient),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAIGenerator{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
	}
}

func (og *OpenAIGenerator) Name() string {
	return ProviderOpenAI
}

func (og *OpenAIGenerator) Generate(ctx context.Context, prompt chat.Prompt) (string, error) {
	completion, err := og.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(og.model),
		Messages: openAIMessages(prompt),
	})
	if err != nil {
		return "", openAIError(err)
	}
	if len(completion.Choices) == 0 {
		return "", &chat.UpstreamError{
			Provider: ProviderOpenAI,
			Message:  "response contained no choices",
			Err:      fmt.Errorf("empty completion %s", completion.ID),
		}
	}
	return completion.Choices[0].Message.Content, nil
}

func openAIMessages(prompt chat.Prompt) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(prompt.History)+2)
	if prompt.SystemInstruction != "" {
		messages = append(messages, openai.SystemMessage(prompt.SystemInstruction))
	}
	for _, turn := range prompt.History {
		text := strings.Join(turn.Parts, "\n")
		if turn.Role == chat.UpstreamModel {
			messages = append(messages, openai.AssistantMessage(text))
		} else {
			messages = append(messages, openai.UserMessage(text))
		}
	}
	return append(messages, openai.UserMessage(prompt.Message))
}

func openAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		message := apiErr.Message
		if message == "" {
			message = apiErr.Error()
		}
		return &chat.UpstreamError{
			Provider:   ProviderOpenAI,
			StatusCode: apiErr.StatusCode,
			Message:    message,
			Err:        err,
		}
	}
	return genericError(ProviderOpenAI, err)
}
