package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/herodraft/draft-server/internal/application"
	"github.com/herodraft/draft-server/internal/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the draft server (HTTP + WebSocket)",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	api, err := application.NewAPI(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return api.Run(ctx)
}
