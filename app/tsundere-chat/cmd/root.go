package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/cchalm/tsundere-chat/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "tsundere-chat",
	Short: "Chat relay with a tsundere persona",
	Long: `Tsundere chat serves a single-page chat front-end and relays each message, with
recent conversation history, to a hosted generative model under a fixed persona.
Running without a subcommand starts the server.`,
	PersistentPreRunE: loadRootConfig,
	RunE:              runServe,
	SilenceUsage:      true,
}

func Execute() error {
	return rootCmd.Execute()
}

func loadRootConfig(cmd *cobra.Command, _ []string) error {
	// Load .env file
	envErr := godotenv.Load(flags.EnvFile)

	loaded, err := config.Load(os.Getenv)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg = loaded
	if err := applyFlagOverrides(cmd); err != nil {
		return err
	}

	closeLog, err := setupLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return err
	}
	cobra.OnFinalize(closeLog)

	if envErr != nil {
		log.Debug().Str("path", flags.EnvFile).Msg("No .env file found, using environment variables")
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flags.EnvFile, "env-file", ".env", "File of KEY=value pairs loaded into the environment")
	rootCmd.PersistentFlags().StringVar(&flags.Provider, "provider", "", "Upstream provider: gemini, anthropic, or openai")
	rootCmd.PersistentFlags().StringVar(&flags.Model, "model", "", "Upstream model name")
	rootCmd.PersistentFlags().StringVar(&flags.LogLevel, "log-level", "", "Log level: debug, info, warn, or error")
	rootCmd.Flags().IntVar(&flags.Port, "port", 0, "Port to listen on")
}
