package chat

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultMaxHistoryTurns is how many of the most recent client turns are considered for each reply
const DefaultMaxHistoryTurns = 24

// DiagnosticPing is the fixed text sent upstream by Diagnose
const DiagnosticPing = "ping"

//go:embed persona.md
var DefaultPersona string

// Request is a validated inbound chat request
type Request struct {
	Message string
	History []Turn
}

// Service relays chat requests to a Generator. It holds no per-request state and is safe for concurrent use.
type Service struct {
	generator Generator
	persona   string
	maxTurns  int
	tracer    trace.Tracer
}

func NewService(generator Generator, persona string, maxTurns int, tracer trace.Tracer) *Service {
	return &Service{
		generator: generator,
		persona:   persona,
		maxTurns:  maxTurns,
		tracer:    tracer,
	}
}

// Provider names the upstream provider behind this service
func (s *Service) Provider() string {
	return s.generator.Name()
}

// Reply generates the assistant's answer to req.Message. Only the most recent turns of req.History are used, and
// they are normalized before being sent upstream.
func (s *Service) Reply(ctx context.Context, req Request) (string, error) {
	ctx, span := s.tracer.Start(ctx, "chat.reply")
	defer span.End()

	if req.Message == "" {
		err := &ValidationError{Field: "message", Reason: "required"}
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	history := Normalize(MapHistory(Window(req.History, s.maxTurns)), req.Message)
	span.SetAttributes(
		attribute.String("chat.provider", s.generator.Name()),
		attribute.Int("chat.history.received", len(req.History)),
		attribute.Int("chat.history.sent", len(history)),
	)

	reply, err := s.generator.Generate(ctx, Prompt{
		SystemInstruction: s.persona,
		History:           history,
		Message:           req.Message,
	})
	if err != nil {
		err = s.classify(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation failed")
		return "", fmt.Errorf("failed to generate reply: %w", err)
	}
	return reply, nil
}

// Diagnose sends a fixed ping upstream with no persona and no history
func (s *Service) Diagnose(ctx context.Context) (string, error) {
	ctx, span := s.tracer.Start(ctx, "chat.diagnose")
	defer span.End()

	text, err := s.generator.Generate(ctx, Prompt{Message: DiagnosticPing})
	if err != nil {
		err = s.classify(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "diagnostic ping failed")
		return "", fmt.Errorf("diagnostic ping failed: %w", err)
	}
	return text, nil
}

// classify ensures err carries one of the upstream failure kinds
func (s *Service) classify(err error) error {
	var upstreamErr *UpstreamError
	var transportErr *TransportError
	if errors.As(err, &upstreamErr) || errors.As(err, &transportErr) {
		return err
	}
	return &UpstreamError{
		Provider: s.generator.Name(),
		Message:  err.Error(),
		Err:      err,
	}
}
