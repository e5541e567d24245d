// Package upstream adapts hosted generative-language APIs to chat.Generator.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"

	"github.com/cchalm/tsundere-chat/internal/chat"
)

const (
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

// DefaultModels maps each provider to the model used when none is configured
var DefaultModels = map[string]string{
	ProviderGemini:    "gemini-2.5-flash",
	ProviderAnthropic: "claude-sonnet-4-20250514",
	ProviderOpenAI:    "gpt-4o-mini",
}

// Config selects and configures a provider
type Config struct {
	Provider   string
	APIKey     string
	Model      string       // Empty selects DefaultModels[Provider]
	BaseURL    string       // Empty selects the SDK default
	HTTPClient *http.Client // Nil selects http.DefaultClient
}

// New builds the Generator for cfg.Provider
func New(ctx context.Context, cfg Config) (chat.Generator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("missing API key for provider '%s'", cfg.Provider)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModels[cfg.Provider]
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}

	switch cfg.Provider {
	case ProviderGemini:
		return NewGeminiGenerator(ctx, cfg)
	case ProviderAnthropic:
		return NewAnthropicGenerator(cfg), nil
	case ProviderOpenAI:
		return NewOpenAIGenerator(cfg), nil
	default:
		return nil, fmt.Errorf("unknown provider '%s'", cfg.Provider)
	}
}

// transportError wraps err as a chat.TransportError if it stems from failing to reach the provider, and returns nil
// otherwise
func transportError(provider string, err error) error {
	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &chat.TransportError{Provider: provider, Err: err}
	}
	return nil
}

// genericError classifies an error that the provider-specific checks did not recognize
func genericError(provider string, err error) error {
	if tErr := transportError(provider, err); tErr != nil {
		return tErr
	}
	return &chat.UpstreamError{
		Provider: provider,
		Message:  err.Error(),
		Err:      err,
	}
}
