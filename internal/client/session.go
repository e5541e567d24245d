package client

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cchalm/tsundere-chat/internal/chat"
)

// ErrorReply stands in for the assistant's answer when a send fails
const ErrorReply = "에휴… 잠깐 오류 났어. 네 탓은 아니고, 재시도해 봐."

// ErrBusy is returned by Submit while a previous submission is still in flight
var ErrBusy = errors.New("a message is already being sent")

// Sender delivers a message and its prior history, returning the reply
type Sender interface {
	Send(ctx context.Context, message string, history []chat.Turn) (string, error)
}

// Session drives one conversation: it records the user's turn before sending, records the reply or a fixed error turn
// afterwards, and persists the history after each change
type Session struct {
	store   FileHistoryStore
	sender  Sender
	now     func() time.Time
	sending atomic.Bool
}

func NewSession(store FileHistoryStore, sender Sender) *Session {
	return &Session{
		store:  store,
		sender: sender,
		now:    time.Now,
	}
}

// Start returns the history to display, seeding the greeting when the store is empty
func (s *Session) Start() ([]chat.Turn, error) {
	turns := s.store.Load()
	if len(turns) > 0 {
		return turns, nil
	}
	return s.store.Clear(s.now())
}

// Clear resets the conversation to the greeting
func (s *Session) Clear() ([]chat.Turn, error) {
	return s.store.Clear(s.now())
}

// Submit sends text and returns the assistant turn that was recorded for it. Blank text is ignored and yields a nil
// turn. When sending fails the returned turn is the fixed error reply and the returned error describes the failure;
// the user's turn stays in the history either way.
func (s *Session) Submit(ctx context.Context, text string) (*chat.Turn, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	if !s.sending.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer s.sending.Store(false)

	turns, err := s.store.Append(chat.NewTurn(chat.RoleUser, text, s.now()))
	if err != nil {
		return nil, err
	}

	reply, sendErr := s.sender.Send(ctx, text, turns[:len(turns)-1])
	botTurn := chat.NewTurn(chat.RoleAssistant, reply, s.now())
	if sendErr != nil {
		botTurn.Text = ErrorReply
	}

	if _, err := s.store.Append(botTurn); err != nil {
		return nil, errors.Join(sendErr, err)
	}
	return &botTurn, sendErr
}
