package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/cchalm/tsundere-chat/internal/chat"
)

// maxBodyBytes caps the size of a chat request body
const maxBodyBytes = 1 << 20

type chatResponse struct {
	Reply string `json:"reply"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type diagSuccess struct {
	OK      bool   `json:"ok"`
	Text    string `json:"text"`
	KeyTail string `json:"keyTail"`
}

type diagFailure struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
	Details any    `json:"details"`
	KeyTail string `json:"keyTail"`
}

// rawChatRequest defers decoding of each field so that wrongly-typed values can be rejected or coerced individually
type rawChatRequest struct {
	Message json.RawMessage `json:"message"`
	History json.RawMessage `json:"history"`
}

var errBodyTooLarge = errors.New("request body too large")

// parseChatRequest is the validation boundary between untrusted JSON and the chat service. The message must be a
// non-empty string and the history, when present, an array. Within the history, entries that are not objects are
// dropped, a non-string role counts as the user, and a non-string text becomes empty.
func parseChatRequest(body io.Reader) (chat.Request, error) {
	var raw rawChatRequest
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return chat.Request{}, errBodyTooLarge
		}
		return chat.Request{}, &chat.ValidationError{Field: "body", Reason: "must be a JSON object"}
	}

	if isAbsent(raw.Message) {
		return chat.Request{}, &chat.ValidationError{Field: "message", Reason: "required"}
	}
	var message string
	if err := json.Unmarshal(raw.Message, &message); err != nil {
		return chat.Request{}, &chat.ValidationError{Field: "message", Reason: "must be a string"}
	}
	if message == "" {
		return chat.Request{}, &chat.ValidationError{Field: "message", Reason: "required"}
	}

	history, err := parseHistory(raw.History)
	if err != nil {
		return chat.Request{}, err
	}

	return chat.Request{Message: message, History: history}, nil
}

func parseHistory(raw json.RawMessage) ([]chat.Turn, error) {
	if isAbsent(raw) {
		return nil, nil
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, &chat.ValidationError{Field: "history", Reason: "must be an array"}
	}

	turns := make([]chat.Turn, 0, len(entries))
	for _, entry := range entries {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(entry, &fields); err != nil || fields == nil {
			continue
		}
		var role, text string
		_ = json.Unmarshal(fields["role"], &role)
		_ = json.Unmarshal(fields["text"], &text)
		turns = append(turns, chat.Turn{Role: chat.Role(role), Text: text})
	}
	return turns, nil
}

func isAbsent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
