package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cchalm/tsundere-chat/internal/config"
)

// cfg is loaded from the environment before any command runs, then overridden by explicitly set flags
var cfg config.Config

// flags holds command-line values that override the environment
var flags struct {
	EnvFile  string
	Provider string
	Model    string
	LogLevel string
	Port     int

	ServerURL   string
	HistoryFile string
}

func applyFlagOverrides(cmd *cobra.Command) error {
	if changed(cmd, "provider") {
		// The provider decides which key variable applies, so reload from the environment
		reloaded, err := config.Load(func(key string) string {
			if key == "PROVIDER" {
				return flags.Provider
			}
			return os.Getenv(key)
		})
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		cfg = reloaded
	}
	if changed(cmd, "model") {
		cfg.Model = flags.Model
	}
	if changed(cmd, "log-level") {
		cfg.LogLevel = strings.ToLower(flags.LogLevel)
	}
	if changed(cmd, "port") {
		cfg.Port = flags.Port
	}
	return nil
}

func changed(cmd *cobra.Command, name string) bool {
	f := cmd.Flags().Lookup(name)
	return f != nil && f.Changed
}
