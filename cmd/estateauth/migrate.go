package main

import (
	"context"
	"log"

	"github.com/spf13/cobra"

	"github.com/panyam/estateauth/config"
)

func newMigrateCommand(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create tables or indexes for the configured store",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cfg, err := config.Load(*envFile)
			if err != nil {
				return err
			}
			b, err := openBackends(ctx, cfg)
			if err != nil {
				return err
			}
			defer b.Close()

			if b.migrate == nil {
				log.Printf("%s store needs no migration", cfg.Store)
				return nil
			}
			if err := b.Migrate(ctx); err != nil {
				return err
			}
			log.Printf("%s store migrated", cfg.Store)
			return nil
		},
	}
}
