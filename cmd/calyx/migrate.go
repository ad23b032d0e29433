package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sanchita-suni/Calyx/pkg/core/evidence"
)

func newMigrateCmd(stderr io.Writer, deps serveDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the evidence archive schema to DATABASE_URL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if deps.loadConfig == nil {
				return errors.New("missing loadConfig dependency")
			}
			cfg, err := deps.loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL is not set")
			}
			logger := newLogger(cfg, stderr)

			ctx := cmd.Context()
			pg, err := evidence.OpenPostgres(ctx, cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("open evidence archive: %w", err)
			}
			defer pg.Close()
			if err := pg.Migrate(ctx); err != nil {
				return err
			}
			logger.Info("evidence archive migrated")
			return nil
		},
	}
}
