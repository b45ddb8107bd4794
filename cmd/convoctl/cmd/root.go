package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var serverURL string

var rootCmd = &cobra.Command{
	Use:   "convoctl",
	Short: "Convosync CLI tool",
	Long: `Convoctl is a command-line interface for a running convosync server.

Available commands:
  rooms      List conversations, most recently active first
  messages   Print the message log for a conversation
  send       Send a message to a conversation

Use "convoctl [command] --help" for more information about a specific command.`,
}

// Execute executes the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Base URL of the convosync server")
}
