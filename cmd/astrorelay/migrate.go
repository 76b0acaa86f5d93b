package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tbourn/astro-chat-relay/internal/services"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}
			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer closeDB(db)

			log.Info().Str("driver", cfg.Storage.Driver).Msg("schema up to date")
			return nil
		},
	}
}

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired sessions, idempotency records and searches once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}
			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer closeDB(db)

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			reaper := &services.Reaper{DB: db, ProfileRetention: cfg.Chat.ProfileRetention}
			res, err := reaper.Sweep(ctx)
			if err != nil {
				return fmt.Errorf("sweep: %w", err)
			}
			log.Info().
				Int64("sessions", res.Sessions).
				Int64("idempotency", res.Idempotency).
				Int64("searches", res.Searches).
				Int64("profiles", res.Profiles).
				Msg("sweep complete")
			return nil
		},
	}
}
