// Package server exposes the chat service and the embedded front-end over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/cchalm/tsundere-chat/internal/chat"
	"github.com/cchalm/tsundere-chat/internal/web"
)

// User-facing messages. Failures never expose internal detail.
const (
	MissingMessageText = "message 가 필요합니다."
	InvalidHistoryText = "history 는 배열이어야 합니다."
	InvalidBodyText    = "요청 형식이 올바르지 않습니다."
	BodyTooLargeText   = "요청이 너무 커."
	FailureText        = "서버 오류가 발생했어. 잠깐 삐진 거 아니거든? (조금 뒤에 다시 시도해봐)"
	HealthText         = "ok"
)

const (
	requestIDHeader = "X-Request-Id"
	shutdownTimeout = 10 * time.Second
)

// Server serves the chat API and the front-end
type Server struct {
	chat    *chat.Service
	assets  fs.FS
	keyTail string
	logger  zerolog.Logger
	tracer  trace.Tracer
}

func New(chatService *chat.Service, assets fs.FS, keyTail string, logger zerolog.Logger, tracer trace.Tracer) *Server {
	return &Server{
		chat:    chatService,
		assets:  assets,
		keyTail: keyTail,
		logger:  logger,
		tracer:  tracer,
	}
}

// Handler returns the routed HTTP handler
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST /api/chat", s.instrument("/api/chat", s.handleChat))
	mux.Handle("GET /api/diag", s.instrument("/api/diag", s.handleDiag))
	mux.Handle("GET /healthz", s.instrument("/healthz", s.handleHealth))
	mux.Handle("GET /", s.instrument("/", s.handleAssets))
	return mux
}

// ListenAndServe serves on addr until ctx is cancelled, then drains in-flight requests
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Str("provider", s.chat.Provider()).Msg("Tsundere chat listening")
		errs <- srv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
		s.logger.Info().Msg("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down server: %w", err)
		}
		return nil
	}
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	logger := zerolog.Ctx(r.Context())

	req, err := parseChatRequest(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if errors.Is(err, errBodyTooLarge) {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: BodyTooLargeText})
		return
	}
	var validationErr *chat.ValidationError
	if errors.As(err, &validationErr) {
		logger.Debug().Err(err).Msg("Rejected chat request")
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: validationText(validationErr)})
		return
	}

	// Once accepted, a request runs to completion even if the client goes away
	reply, err := s.chat.Reply(context.WithoutCancel(r.Context()), req)
	if err != nil {
		if errors.As(err, &validationErr) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: validationText(validationErr)})
			return
		}
		logFailure(logger, err, "Chat request failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: FailureText})
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{Reply: reply})
}

func (s *Server) handleDiag(w http.ResponseWriter, r *http.Request) {
	text, err := s.chat.Diagnose(r.Context())
	if err != nil {
		logFailure(zerolog.Ctx(r.Context()), err, "Diagnostic ping failed")

		resp := diagFailure{OK: false, Message: err.Error(), KeyTail: s.keyTail}
		var upstreamErr *chat.UpstreamError
		if errors.As(err, &upstreamErr) {
			resp.Message = upstreamErr.Message
			resp.Details = upstreamErr.Details
		}
		writeJSON(w, http.StatusInternalServerError, resp)
		return
	}
	writeJSON(w, http.StatusOK, diagSuccess{OK: true, Text: text, KeyTail: s.keyTail})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(HealthText))
}

// handleAssets serves embedded files, falling back to the index page for any path that is not an asset
func (s *Server) handleAssets(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
	if name == "" {
		name = web.IndexFile
	}
	if info, err := fs.Stat(s.assets, name); err != nil || info.IsDir() {
		name = web.IndexFile
	}
	http.ServeFileFS(w, r, s.assets, name)
}

// instrument wraps a handler with a request id, a server span, and an access log line
func (s *Server) instrument(route string, handler http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := uuid.NewString()
		w.Header().Set(requestIDHeader, requestID)

		ctx, span := s.tracer.Start(r.Context(), "http "+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", r.Method),
				attribute.String("http.route", route),
				attribute.String("request.id", requestID),
			),
		)
		defer span.End()

		logger := s.logger.With().Str("request_id", requestID).Logger()
		ctx = logger.WithContext(ctx)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		handler(rec, r.WithContext(ctx))

		span.SetAttributes(attribute.Int("http.response.status_code", rec.status))
		if rec.status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(rec.status))
		}
		logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("elapsed", time.Since(start)).
			Msg("Handled request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(status int) {
	sr.status = status
	sr.ResponseWriter.WriteHeader(status)
}

func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

func validationText(err *chat.ValidationError) string {
	switch err.Field {
	case "message":
		return MissingMessageText
	case "history":
		return InvalidHistoryText
	default:
		return InvalidBodyText
	}
}

// logFailure records the full error server-side, including which kind of failure it was
func logFailure(logger *zerolog.Logger, err error, msg string) {
	event := logger.Error().Err(err)
	var upstreamErr *chat.UpstreamError
	var transportErr *chat.TransportError
	switch {
	case errors.As(err, &upstreamErr):
		event = event.Str("kind", "upstream").Str("provider", upstreamErr.Provider).Int("upstream_status", upstreamErr.StatusCode)
	case errors.As(err, &transportErr):
		event = event.Str("kind", "transport").Str("provider", transportErr.Provider)
	default:
		event = event.Str("kind", "internal")
	}
	event.Msg(msg)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
