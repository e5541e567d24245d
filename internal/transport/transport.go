package transport

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracedTransport records a span and a log line for every upstream round trip. It never retries. Query strings and
// headers are left out of both, since providers may carry credentials in either.
type TracedTransport struct {
	base   http.RoundTripper
	tracer trace.Tracer
	logger zerolog.Logger
}

func WithTracing(base http.RoundTripper, tracer trace.Tracer, logger zerolog.Logger) *TracedTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &TracedTransport{base: base, tracer: tracer, logger: logger}
}

func (t *TracedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx, span := t.tracer.Start(req.Context(), fmt.Sprintf("upstream %s", req.URL.Host),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("server.address", req.URL.Host),
			attribute.String("url.path", req.URL.Path),
		),
	)
	defer span.End()

	start := time.Now()
	resp, err := t.base.RoundTrip(req.WithContext(ctx))
	elapsed := time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "round trip failed")
		t.logger.Warn().
			Err(err).
			Str("method", req.Method).
			Str("host", req.URL.Host).
			Str("path", req.URL.Path).
			Dur("elapsed", elapsed).
			Msg("Upstream request failed")
		return resp, err
	}

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	if resp.StatusCode >= http.StatusBadRequest {
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
	}
	t.logger.Debug().
		Str("method", req.Method).
		Str("host", req.URL.Host).
		Str("path", req.URL.Path).
		Int("status", resp.StatusCode).
		Dur("elapsed", elapsed).
		Msg("Upstream request")
	return resp, nil
}
