// Package client is a Go counterpart of the browser front-end: a chat client for the relay's HTTP API, a file-backed
// history store, and a session that ties the two together.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cchalm/tsundere-chat/internal/chat"
)

// TransportError reports that the relay could not be reached
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("failed to reach chat server: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ServerError reports a non-success response from the relay
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("chat server responded %d: %s", e.StatusCode, e.Message)
}

// Client talks to the relay's chat endpoint
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
	}
}

type wireTurn struct {
	Role chat.Role `json:"role"`
	Text string    `json:"text"`
}

type chatRequest struct {
	Message string     `json:"message"`
	History []wireTurn `json:"history"`
}

type chatResponse struct {
	Reply string `json:"reply"`
	Error string `json:"error"`
}

// Send posts message with its prior history and returns the assistant's reply
func (c *Client) Send(ctx context.Context, message string, history []chat.Turn) (string, error) {
	wire := make([]wireTurn, 0, len(history))
	for _, t := range history {
		wire = append(wire, wireTurn{Role: t.Role, Text: t.Text})
	}
	body, err := json.Marshal(chatRequest{Message: message, History: wire})
	if err != nil {
		return "", fmt.Errorf("failed to marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &TransportError{Err: err}
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &TransportError{Err: fmt.Errorf("failed to read response: %w", err)}
	}
	var decoded chatResponse
	decodeErr := json.Unmarshal(b, &decoded)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		message := decoded.Error
		if message == "" {
			message = http.StatusText(resp.StatusCode)
		}
		return "", &ServerError{StatusCode: resp.StatusCode, Message: message}
	}
	if decodeErr != nil {
		return "", &ServerError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("malformed response: %v", decodeErr)}
	}
	return decoded.Reply, nil
}
