// Package config provides configuration management for the tsundere-chat server.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/cchalm/tsundere-chat/internal/chat"
	"github.com/cchalm/tsundere-chat/internal/upstream"
)

const (
	DefaultPort         = 8080
	DefaultOTLPEndpoint = "http://localhost:4318"

	keyTailLength = 6
)

var geminiKeyPattern = regexp.MustCompile(`^AIza[0-9A-Za-z_\-]{10,}$`)

// Config holds the configuration for the server
type Config struct {
	Provider        string
	APIKey          string
	Model           string
	UpstreamBaseURL string
	Port            int
	PersonaFile     string
	MaxHistoryTurns int

	LogLevel string
	LogFile  string

	TelemetryEnabled bool
	OTLPEndpoint     string
}

// Load loads configuration from environment variables. getenv is usually os.Getenv.
func Load(getenv func(string) string) (Config, error) {
	config := Config{
		Provider:        strings.ToLower(strings.TrimSpace(getenv("PROVIDER"))),
		Model:           getenv("MODEL"),
		UpstreamBaseURL: getenv("UPSTREAM_BASE_URL"),
		Port:            DefaultPort,
		PersonaFile:     getenv("PERSONA_FILE"),
		MaxHistoryTurns: chat.DefaultMaxHistoryTurns,
		LogLevel:        firstNonEmpty(getenv("LOG_LEVEL"), "info"),
		LogFile:         getenv("LOG_FILE"),
		OTLPEndpoint:    firstNonEmpty(getenv("OTLP_ENDPOINT"), DefaultOTLPEndpoint),
	}
	if config.Provider == "" {
		config.Provider = upstream.ProviderGemini
	}

	switch config.Provider {
	case upstream.ProviderGemini:
		config.APIKey = SanitizeKey(firstNonEmpty(getenv("GEMINI_API_KEY"), getenv("GOOGLE_API_KEY")))
		config.Model = firstNonEmpty(config.Model, getenv("GEMINI_MODEL"))
	case upstream.ProviderAnthropic:
		config.APIKey = SanitizeKey(getenv("ANTHROPIC_API_KEY"))
	case upstream.ProviderOpenAI:
		config.APIKey = SanitizeKey(getenv("OPENAI_API_KEY"))
	}

	if err := parseOptional(getenv, "PORT", &config.Port, strconv.Atoi); err != nil {
		return Config{}, err
	}
	if err := parseOptional(getenv, "MAX_HISTORY_TURNS", &config.MaxHistoryTurns, strconv.Atoi); err != nil {
		return Config{}, err
	}
	if err := parseOptional(getenv, "TELEMETRY_ENABLED", &config.TelemetryEnabled, strconv.ParseBool); err != nil {
		return Config{}, err
	}

	return config, nil
}

// Validate checks if the required configuration is present
func (c Config) Validate() error {
	if _, ok := upstream.DefaultModels[c.Provider]; !ok {
		return fmt.Errorf("unsupported provider '%s'", c.Provider)
	}
	if c.APIKey == "" {
		return fmt.Errorf("missing API key for provider '%s': %s", c.Provider, strings.Join(KeyVariables(c.Provider), " or "))
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.MaxHistoryTurns < 0 {
		return fmt.Errorf("invalid history window %d", c.MaxHistoryTurns)
	}
	return nil
}

// Warnings returns non-fatal configuration problems worth logging
func (c Config) Warnings() []string {
	var warnings []string
	if c.Provider == upstream.ProviderGemini && c.APIKey != "" && !geminiKeyPattern.MatchString(c.APIKey) {
		warnings = append(warnings, "API key does not look like a Gemini key (AIza...); check that it was issued by AI Studio")
	}
	return warnings
}

// KeyTail returns the last few characters of the API key, which is all that may ever be shown to clients
func (c Config) KeyTail() string {
	if len(c.APIKey) <= keyTailLength {
		return c.APIKey
	}
	return c.APIKey[len(c.APIKey)-keyTailLength:]
}

// Persona returns the persona instruction, read from PersonaFile when set
func (c Config) Persona() (string, error) {
	if c.PersonaFile == "" {
		return chat.DefaultPersona, nil
	}
	b, err := os.ReadFile(c.PersonaFile)
	if err != nil {
		return "", fmt.Errorf("failed to read persona file: %w", err)
	}
	return string(b), nil
}

// KeyVariables lists the environment variables that carry the API key for provider
func KeyVariables(provider string) []string {
	switch provider {
	case upstream.ProviderGemini:
		return []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"}
	case upstream.ProviderAnthropic:
		return []string{"ANTHROPIC_API_KEY"}
	case upstream.ProviderOpenAI:
		return []string{"OPENAI_API_KEY"}
	}
	return nil
}

// SanitizeKey strips zero-width characters and surrounding whitespace, plus at most one quote character from each end.
// These tend to sneak in when keys are pasted into .env files.
func SanitizeKey(v string) string {
	v = strings.NewReplacer("\u200B", "", "\uFEFF", "").Replace(v)
	v = strings.TrimSpace(v)
	if len(v) > 0 && isQuote(v[0]) {
		v = v[1:]
	}
	if len(v) > 0 && isQuote(v[len(v)-1]) {
		v = v[:len(v)-1]
	}
	return v
}

func isQuote(c byte) bool {
	return c == '"' || c == '\''
}

func parseOptional[T any](getenv func(string) string, key string, dest *T, parseFn func(string) (T, error)) error {
	str := strings.TrimSpace(getenv(key))
	if str == "" {
		return nil // Leave default value
	}
	v, err := parseFn(str)
	if err != nil {
		return fmt.Errorf("failed to parse environment variable '%s' value '%s' as '%T': %w", key, str, *dest, err)
	}
	*dest = v
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
