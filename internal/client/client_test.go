package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/cchalm/tsundere-chat/internal/chat"
	"github.com/cchalm/tsundere-chat/internal/server"
	"github.com/cchalm/tsundere-chat/internal/web"
)

type stubGenerator struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []chat.Prompt
}

func (sg *stubGenerator) Generate(_ context.Context, prompt chat.Prompt) (string, error) {
	sg.mu.Lock()
	defer sg.mu.Unlock()
	sg.prompts = append(sg.prompts, prompt)
	return sg.reply, sg.err
}

func (sg *stubGenerator) Name() string {
	return "stub"
}

// startRelay runs the real HTTP server in front of gen
func startRelay(t *testing.T, gen chat.Generator) *httptest.Server {
	t.Helper()
	tracer := noop.NewTracerProvider().Tracer("test")
	svc := chat.NewService(gen, "persona", chat.DefaultMaxHistoryTurns, tracer)
	srv := httptest.NewServer(server.New(svc, web.Assets(), "tail", zerolog.Nop(), tracer).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Send(t *testing.T) {
	gen := &stubGenerator{reply: "not that I care"}
	relay := startRelay(t, gen)

	reply, err := New(relay.URL+"/", nil).Send(context.Background(), "hi", []chat.Turn{
		{Role: chat.RoleAssistant, Text: "greeting"},
		{Role: chat.RoleUser, Text: "earlier"},
		{Role: chat.RoleAssistant, Text: "answer"},
	})

	require.NoError(t, err)
	assert.Equal(t, "not that I care", reply)
	require.Len(t, gen.prompts, 1)
	assert.Len(t, gen.prompts[0].History, 2)
}

func TestClient_ServerError(t *testing.T) {
	relay := startRelay(t, &stubGenerator{err: errors.New("boom")})

	_, err := New(relay.URL, nil).Send(context.Background(), "hi", nil)

	var serverErr *ServerError
	require.ErrorAs(t, err, &serverErr)
	assert.Equal(t, http.StatusInternalServerError, serverErr.StatusCode)
	assert.Equal(t, server.FailureText, serverErr.Message)
}

func TestClient_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url, nil).Send(context.Background(), "hi", nil)

	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
}

func TestSession_SubmitSuccess(t *testing.T) {
	gen := &stubGenerator{reply: "fine"}
	relay := startRelay(t, gen)
	store := NewFileHistoryStore(filepath.Join(t.TempDir(), "history.json"))
	session := NewSession(store, New(relay.URL, nil))

	_, err := session.Start()
	require.NoError(t, err)
	turn, err := session.Submit(context.Background(), "  hello  ")

	require.NoError(t, err)
	require.NotNil(t, turn)
	assert.Equal(t, "fine", turn.Text)

	history := store.Load()
	require.Len(t, history, 3)
	assert.Equal(t, Greeting, history[0].Text)
	assert.Equal(t, chat.Turn{Role: chat.RoleUser, Text: "hello", Timestamp: history[1].Timestamp}, history[1])
	assert.Equal(t, "fine", history[2].Text)

	// The in-flight message is sent once, not also as part of the history
	require.Len(t, gen.prompts, 1)
	assert.Equal(t, "hello", gen.prompts[0].Message)
	assert.Empty(t, gen.prompts[0].History)
}

func TestSession_SubmitFailurePreservesUserTurn(t *testing.T) {
	relay := startRelay(t, &stubGenerator{err: errors.New("upstream exploded")})
	store := NewFileHistoryStore(filepath.Join(t.TempDir(), "history.json"))
	session := NewSession(store, New(relay.URL, nil))

	turn, err := session.Submit(context.Background(), "hello")

	var serverErr *ServerError
	require.ErrorAs(t, err, &serverErr)
	require.NotNil(t, turn)
	assert.Equal(t, ErrorReply, turn.Text)

	history := store.Load()
	require.Len(t, history, 2)
	assert.Equal(t, chat.RoleUser, history[0].Role)
	assert.Equal(t, "hello", history[0].Text)
	assert.Equal(t, chat.RoleAssistant, history[1].Role)
	assert.Equal(t, ErrorReply, history[1].Text)
}

func TestSession_BlankInputIgnored(t *testing.T) {
	store := NewFileHistoryStore(filepath.Join(t.TempDir(), "history.json"))
	session := NewSession(store, New("http://unused.invalid", nil))

	turn, err := session.Submit(context.Background(), " \n\t")

	require.NoError(t, err)
	assert.Nil(t, turn)
	assert.Empty(t, store.Load())
}

// blockingSender holds every send until released
type blockingSender struct {
	started chan struct{}
	release chan struct{}
}

func (bs *blockingSender) Send(ctx context.Context, _ string, _ []chat.Turn) (string, error) {
	close(bs.started)
	<-bs.release
	return "done", nil
}

func TestSession_OneInFlight(t *testing.T) {
	store := NewFileHistoryStore(filepath.Join(t.TempDir(), "history.json"))
	sender := &blockingSender{started: make(chan struct{}), release: make(chan struct{})}
	session := NewSession(store, sender)

	done := make(chan error, 1)
	go func() {
		_, err := session.Submit(context.Background(), "first")
		done <- err
	}()
	<-sender.started

	_, err := session.Submit(context.Background(), "second")
	assert.ErrorIs(t, err, ErrBusy)

	close(sender.release)
	require.NoError(t, <-done)
	assert.Len(t, store.Load(), 2)
}

func TestSession_StartKeepsExistingHistory(t *testing.T) {
	store := NewFileHistoryStore(filepath.Join(t.TempDir(), "history.json"))
	require.NoError(t, store.Save([]chat.Turn{{Role: chat.RoleUser, Text: "kept"}}))

	turns, err := NewSession(store, nil).Start()

	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "kept", turns[0].Text)
}
