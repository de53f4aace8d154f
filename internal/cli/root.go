package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	cfg    *Config
	client *Client
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cfg = DefaultConfig()

	rootCmd := &cobra.Command{
		Use:   "grimoire",
		Short: "CLI tool for the grimoire lobby server",
		Long: `grimoire is a CLI tool for running Blood on the Clocktower lobbies.

Storytellers create lobbies, select characters and start the game over the
JSON API. Players join and follow the lobby over the websocket stream.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load credential from file if not provided via flag/env
			if err := cfg.LoadCredential(); err != nil {
				return err
			}

			client = NewClient(cfg.ServerURL, cfg.Credential)
			return nil
		},
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfg.ServerURL, "server", cfg.ServerURL, "Server URL (env: GRIMOIRE_SERVER)")
	rootCmd.PersistentFlags().StringVar(&cfg.Credential, "credential", cfg.Credential, "Player credential (env: GRIMOIRE_CREDENTIAL)")
	rootCmd.PersistentFlags().StringVar(&cfg.CredentialFile, "credential-file", cfg.CredentialFile, "Credential file path (env: GRIMOIRE_CREDENTIAL_FILE)")
	rootCmd.PersistentFlags().StringVarP(&cfg.Output, "output", "o", cfg.Output, "Output format: text, json")
	rootCmd.PersistentFlags().BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "Verbose output")

	rootCmd.AddCommand(newLobbyCmd())
	rootCmd.AddCommand(newScriptCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newHealthCmd())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
