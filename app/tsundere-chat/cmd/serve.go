package cmd

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/cchalm/tsundere-chat/internal/server"
	"github.com/cchalm/tsundere-chat/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat server",
	Long: `Serves the chat front-end and the /api/chat, /api/diag, and /healthz endpoints
until interrupted.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&flags.Port, "port", 0, "Port to listen on")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	requireServerConfig()
	ctx := setupContext()

	tp, err := createTelemetryProvider(ctx)
	if err != nil {
		return fmt.Errorf("failed to set up telemetry: %w", err)
	}
	defer shutdownTelemetry(tp)

	chatService, err := createChatService(ctx, tp)
	if err != nil {
		return err
	}

	srv := server.New(chatService, web.Assets(), cfg.KeyTail(), log.Logger, tp.Tracer())
	return srv.ListenAndServe(ctx, fmt.Sprintf(":%d", cfg.Port))
}
