package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/cchalm/tsundere-chat/internal/chat"
	"github.com/cchalm/tsundere-chat/internal/client"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with a running server from the terminal",
	Long: `Starts an interactive terminal conversation against a running server. The
history is kept in a local file and survives restarts. Type /clear to start over
or /quit to leave.`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&flags.ServerURL, "server", "http://localhost:8080", "Base URL of the chat server")
	chatCmd.Flags().StringVar(&flags.HistoryFile, "history-file", defaultHistoryFile(), "File the conversation is kept in")

	rootCmd.AddCommand(chatCmd)
}

func defaultHistoryFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "tsundere_chat_history.json"
	}
	return filepath.Join(dir, "tsundere-chat", "history.json")
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := setupContext()
	out := cmd.OutOrStdout()

	session := client.NewSession(client.NewFileHistoryStore(flags.HistoryFile), client.New(flags.ServerURL, nil))
	turns, err := session.Start()
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}
	printTurns(out, turns)

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()

		switch strings.TrimSpace(line) {
		case "/quit":
			return nil
		case "/clear":
			turns, err := session.Clear()
			if err != nil {
				return fmt.Errorf("failed to clear history: %w", err)
			}
			printTurns(out, turns)
			continue
		}

		turn, err := session.Submit(ctx, line)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to send message")
		}
		if turn != nil {
			printTurns(out, []chat.Turn{*turn})
		}
		if ctx.Err() != nil {
			return nil
		}
	}
	return scanner.Err()
}

func printTurns(out io.Writer, turns []chat.Turn) {
	for _, t := range turns {
		who := "봇"
		if t.Role == chat.RoleUser {
			who = "나"
		}
		at := time.UnixMilli(t.Timestamp).Format("15:04")
		fmt.Fprintf(out, "%s · %s\n%s\n\n", who, at, t.Text)
	}
}
