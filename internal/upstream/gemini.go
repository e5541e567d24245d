package upstream

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/cchalm/tsundere-chat/internal/chat"
)

// GeminiGenerator generates replies with the Gemini API
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

func NewGeminiGenerator(ctx context.Context, cfg Config) (*GeminiGenerator, error) {
	clientConfig := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiGenerator{
		client: client,
		model:  cfg.Model,
	}, nil
}

func (gg *GeminiGenerator) Name() string {
	return ProviderGemini
}

func (gg *GeminiGenerator) Generate(ctx context.Context, prompt chat.Prompt) (string, error) {
	var config *genai.GenerateContentConfig
	if prompt.SystemInstruction != "" {
		config = &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(prompt.SystemInstruction, genai.RoleUser),
		}
	}

	resp, err := gg.client.Models.GenerateContent(ctx, gg.model, geminiContents(prompt), config)
	if err != nil {
		return "", geminiError(err)
	}
	return resp.Text(), nil
}

// geminiContents lays out the prior turns followed by the live user message
func geminiContents(prompt chat.Prompt) []*genai.Content {
	contents := make([]*genai.Content, 0, len(prompt.History)+1)
	for _, turn := range prompt.History {
		role := genai.RoleUser
		if turn.Role == chat.UpstreamModel {
			role = genai.RoleModel
		}
		parts := make([]*genai.Part, 0, len(turn.Parts))
		for _, p := range turn.Parts {
			parts = append(parts, genai.NewPartFromText(p))
		}
		contents = append(contents, genai.NewContentFromParts(parts, role))
	}
	return append(contents, genai.NewContentFromText(prompt.Message, genai.RoleUser))
}

func geminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return geminiAPIError(apiErr, err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return geminiAPIError(*apiErrPtr, err)
	}
	return genericError(ProviderGemini, err)
}

func geminiAPIError(apiErr genai.APIError, err error) error {
	var details any
	if len(apiErr.Details) > 0 {
		details = apiErr.Details
	}
	return &chat.UpstreamError{
		Provider:   ProviderGemini,
		StatusCode: apiErr.Code,
		Message:    apiErr.Message,
		Details:    details,
		Err:        err,
	}
}
