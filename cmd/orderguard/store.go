package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/orderguard/backend/config"
	"github.com/orderguard/backend/internal/infrastructure/storage"
	"github.com/spf13/cobra"
)

const storagePingTimeout = 10 * time.Second

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema of the configured store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.Storage.Driver == storage.DriverMemory {
				fmt.Fprintln(cmd.OutOrStdout(), "Storage driver is memory, nothing to migrate")
				return nil
			}

			logger, err := config.NewLogger(cfg.Log)
			if err != nil {
				return err
			}

			// Open migrates the schema
			store, err := storage.Open(cmd.Context(), storageConfig(cfg), logger)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			defer store.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "Schema up to date (%s)\n", cfg.Storage.Driver)
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configuration summary and storage connectivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger, err := config.NewLogger(cfg.Log)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "OrderGuard Status")
			fmt.Fprintln(out, strings.Repeat("=", 40))
			fmt.Fprintf(out, "  Environment: %s\n", cfg.Server.Environment)
			fmt.Fprintf(out, "  LLM:         %s (key %s)\n", cfg.LLM.Provider, keyStatus(cfg.LLM.APIKey))
			fmt.Fprintf(out, "  Cache:       %s, ttl %s\n", cfg.Cache.Type, cfg.Cache.TTL)
			fmt.Fprintf(out, "  Storage:     %s\n", cfg.Storage.Driver)

			ctx, cancel := context.WithTimeout(cmd.Context(), storagePingTimeout)
			defer cancel()

			store, err := storage.Open(ctx, storageConfig(cfg), logger)
			if err != nil {
				fmt.Fprintf(out, "  Status:      FAILED (%s)\n", err)
				return nil
			}
			defer store.Close()

			if err := store.Ping(ctx); err != nil {
				fmt.Fprintf(out, "  Status:      FAILED (%s)\n", err)
				return nil
			}
			fmt.Fprintln(out, "  Status:      CONNECTED")
			return nil
		},
	}
}

func storageConfig(cfg *config.Config) storage.Config {
	return storage.Config{
		Driver:   cfg.Storage.Driver,
		DSN:      cfg.Storage.DSN,
		MaxConns: cfg.Storage.MaxConns,
	}
}

func keyStatus(key string) string {
	if key == "" {
		return "missing"
	}
	return "configured"
}
