// Package main provides the CLI entry point for the frontdesk voice assistant.
//
// frontdesk answers phone calls for a medical front desk. The gateway
// receives transcribed caller speech over the telephony provider's relay
// websocket, asks an LLM for a reply (optionally after looking up insurance
// or appointment availability) and speaks the answer back.
//
// # Basic Usage
//
// Start the voice gateway:
//
//	frontdesk serve --config frontdesk.yaml
//
// Start the lookup backend and prepare its database:
//
//	frontdesk migrate up
//	frontdesk backend
//
// # Environment Variables
//
// A .env file in the working directory is loaded first. Recognized variables:
//
//   - FRONTDESK_CONFIG: Path to the configuration file
//   - OPENAI_API_KEY: OpenAI API key
//   - GPT_MODEL: Chat model name
//   - NGROK_URL: Public host the telephony provider connects to
//   - POSTGRESQL_BASE_URL: Base URL of the lookup backend
//   - ELEVENLABS_VOICE_ID: Voice for text-to-speech
//   - DATABASE_URL: Backend database connection string
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// envConfigPath names the configuration file when --config is not given.
const envConfigPath = "FRONTDESK_CONFIG"

func main() {
	// A missing .env is normal in production.
	_ = godotenv.Load() //nolint:errcheck

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
func buildRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "frontdesk",
		Short: "frontdesk - voice front desk assistant",
		Long: `frontdesk answers calls for a medical office front desk.

The gateway bridges the telephony provider's conversation relay to an LLM
that can check accepted insurance and open appointment slots through the
lookup backend.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"Path to YAML or JSON5 configuration file (or set "+envConfigPath+")")

	resolve := func() string {
		return resolveConfigPath(configPath)
	}
	rootCmd.AddCommand(
		buildServeCmd(resolve),
		buildBackendCmd(resolve),
		buildMigrateCmd(resolve),
		buildConfigCmd(resolve),
	)
	return rootCmd
}

// resolveConfigPath prefers the flag, then the environment. An empty result
// means defaults plus environment overrides only.
func resolveConfigPath(flag string) string {
	if path := strings.TrimSpace(flag); path != "" {
		return path
	}
	return strings.TrimSpace(os.Getenv(envConfigPath))
}
