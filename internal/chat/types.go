// Package chat holds the conversation model, the history normalizer, and the service that relays a message plus
// recent history to an upstream generative model under a fixed persona.
package chat

import (
	"context"
	"strings"
	"time"
)

// Role attributes a client-side Turn to one of the two conversation participants
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in a client-held conversation
type Turn struct {
	Role      Role   `json:"role"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp,omitempty"` // Unix milliseconds
}

// NewTurn creates a Turn stamped with the given time
func NewTurn(role Role, text string, at time.Time) Turn {
	return Turn{
		Role:      role,
		Text:      text,
		Timestamp: at.UnixMilli(),
	}
}

// UpstreamRole is the role vocabulary understood by the upstream chat APIs
type UpstreamRole string

const (
	UpstreamUser  UpstreamRole = "user"
	UpstreamModel UpstreamRole = "model"
)

// NormalizedTurn is the upstream-facing shape of a Turn
type NormalizedTurn struct {
	Role  UpstreamRole `json:"role"`
	Parts []string     `json:"parts"`
}

// Text returns the turn's parts joined by a single space
func (nt NormalizedTurn) Text() string {
	return strings.Join(nt.Parts, " ")
}

// Prompt is a provider-neutral generation request
type Prompt struct {
	SystemInstruction string           // May be empty
	History           []NormalizedTurn // Prior context; strictly alternating, starting with a user turn
	Message           string           // The live user turn
}

// Generator produces a reply for a Prompt. Implementations live in the upstream package.
type Generator interface {
	Generate(ctx context.Context, prompt Prompt) (string, error)
	// Name identifies the provider, e.g. "gemini"
	Name() string
}
