package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cchalm/tsundere-chat/internal/chat"
	"github.com/cchalm/tsundere-chat/internal/telemetry"
)

var diagCmd = &cobra.Command{
	Use:   "diag",
	Short: "Check that the upstream model answers",
	Long: `Sends a fixed ping to the configured upstream model and reports the answer or
the error. Only the last characters of the API key are ever printed.`,
	RunE: runDiag,
}

func init() {
	rootCmd.AddCommand(diagCmd)
}

func runDiag(cmd *cobra.Command, args []string) error {
	requireServerConfig()

	ctx, cancel := context.WithTimeout(setupContext(), time.Minute)
	defer cancel()

	chatService, err := createChatService(ctx, telemetry.Disabled())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "provider: %s\nkey tail: %s\n", chatService.Provider(), cfg.KeyTail())

	text, err := chatService.Diagnose(ctx)
	if err != nil {
		var upstreamErr *chat.UpstreamError
		if errors.As(err, &upstreamErr) && upstreamErr.Details != nil {
			fmt.Fprintf(out, "details: %v\n", upstreamErr.Details)
		}
		return err
	}
	fmt.Fprintf(out, "ok: %s\n", text)
	return nil
}
