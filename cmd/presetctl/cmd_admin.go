package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"pixshop/internal/infra"
	"pixshop/internal/infra/credentials"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := databaseConfig()
			if err != nil {
				return err
			}
			if err := infra.Migrate(cfg.DatabaseURL, cliLogger(cmd)); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied.")
			return nil
		},
	}
}

func newAPIKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage the generation service API key stored in Postgres",
		Long: `The API uses GEMINI_API_KEY when set and falls back to the key stored
here otherwise.`,
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "set <key>",
			Short: "Store the API key",
			Args:  cobra.ExactArgs(1),
			RunE: withCredentials(func(cmd *cobra.Command, store *credentials.Store, args []string) error {
				if err := store.SetGeminiAPIKey(cmd.Context(), args[0], "presetctl"); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "API key stored.")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "show",
			Short: "Show the stored API key, masked",
			Args:  cobra.NoArgs,
			RunE: withCredentials(func(cmd *cobra.Command, store *credentials.Store, args []string) error {
				c, err := store.Lookup(cmd.Context(), credentials.ProviderGemini)
				if err != nil {
					return err
				}
				if c.Token == "" {
					fmt.Fprintln(cmd.OutOrStdout(), "No API key stored.")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s (updated %s)\n", c.Masked(), c.UpdatedAt.Format("2006-01-02 15:04"))
				return nil
			}),
		},
		&cobra.Command{
			Use:   "delete",
			Short: "Remove the stored API key",
			Args:  cobra.NoArgs,
			RunE: withCredentials(func(cmd *cobra.Command, store *credentials.Store, args []string) error {
				if err := store.Delete(cmd.Context(), credentials.ProviderGemini); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "API key removed.")
				return nil
			}),
		},
	)
	return cmd
}

func databaseConfig() (*infra.Config, error) {
	cfg, err := infra.LoadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}
	return cfg, nil
}

// withCredentials opens a pool for the duration of one command.
func withCredentials(run func(*cobra.Command, *credentials.Store, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := databaseConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			return err
		}
		defer pool.Close()
		return run(cmd, credentials.NewStore(infra.NewSQLRunner(pool, cliLogger(cmd)), 0), args)
	}
}
