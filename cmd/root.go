package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "draft-server",
	Short: "Draft server: coin toss, timed ban/pick turns, live state over WebSocket",
	Long:  `HTTP + WebSocket API for live two-team hero drafts. Commands: serve, seed.`,
	RunE:  runServe, // default: run the server (same as "draft-server serve")
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(seedCmd)
}

// Execute runs the root command and returns the error (for main to log.Fatal).
func Execute() error {
	return rootCmd.Execute()
}
