package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/herodraft/draft-server/internal/catalog"
	"github.com/herodraft/draft-server/internal/config"
	"github.com/herodraft/draft-server/internal/store"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Run migrations and seed the hero roster",
	RunE:  runSeed,
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	st, err := store.Open(cfg.DSN())
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := st.AutoMigrate(); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if err := st.SeedHeroes(cmd.Context(), catalog.Defaults); err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	fmt.Printf("seeded %d heroes\n", len(catalog.Defaults))
	return nil
}
