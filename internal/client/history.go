package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cchalm/tsundere-chat/internal/chat"
)

// Greeting seeds a fresh conversation
const Greeting = "왔네? …뭐, 반가워서 그런 건 아니고. 도움이 필요하면 말해."

// FileHistoryStore keeps a single conversation as a JSON array of turns in one file
type FileHistoryStore struct {
	path string
}

func NewFileHistoryStore(path string) FileHistoryStore {
	return FileHistoryStore{
		path: path,
	}
}

// Load returns the stored turns. A missing or unreadable history is treated as empty rather than as an error, so a
// corrupt file never blocks the conversation.
func (fhs FileHistoryStore) Load() []chat.Turn {
	b, err := os.ReadFile(fhs.path)
	if err != nil {
		return []chat.Turn{}
	}
	var turns []chat.Turn
	if err := json.Unmarshal(b, &turns); err != nil || turns == nil {
		return []chat.Turn{}
	}
	return turns
}

func (fhs FileHistoryStore) Save(turns []chat.Turn) error {
	b, err := json.Marshal(turns)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(fhs.path), 0o755); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}
	// Write then rename so a crash mid-write leaves the previous history intact
	tmp := fhs.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return fmt.Errorf("failed to write history: %w", err)
	}
	if err := os.Rename(tmp, fhs.path); err != nil {
		return fmt.Errorf("failed to replace history: %w", err)
	}
	return nil
}

// Append adds turn to the stored history and returns the updated history
func (fhs FileHistoryStore) Append(turn chat.Turn) ([]chat.Turn, error) {
	turns := append(fhs.Load(), turn)
	if err := fhs.Save(turns); err != nil {
		return nil, err
	}
	return turns, nil
}

// Clear resets the history to just the greeting
func (fhs FileHistoryStore) Clear(now time.Time) ([]chat.Turn, error) {
	if err := os.Remove(fhs.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to delete history: %w", err)
	}
	turns := []chat.Turn{chat.NewTurn(chat.RoleAssistant, Greeting, now)}
	if err := fhs.Save(turns); err != nil {
		return nil, err
	}
	return turns, nil
}
