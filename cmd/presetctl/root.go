package main

import (
	"context"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"pixshop/internal/bootstrap"
	"pixshop/internal/infra"
)

var version = "1.0.0"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "presetctl",
		Short: "Manage pixshop style presets",
		Long: `presetctl manages the pixshop preset library from the terminal.

It reads the same environment as the API (PRESET_BACKEND, DATABASE_URL,
REDIS_URL, GEMINI_API_KEY ...), loading .env first when present.

Examples:
  presetctl list --panel filter_panel
  presetctl export -o backup.json
  presetctl import backup.json
  presetctl clear
  presetctl apikey set AIza...
  presetctl preview --touch --out ./previews`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			_ = godotenv.Load()
		},
	}
	root.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")

	root.AddCommand(
		newListCmd(),
		newExportCmd(),
		newImportCmd(),
		newClearCmd(),
		newMigrateCmd(),
		newAPIKeyCmd(),
		newPreviewCmd(),
	)
	return root
}

func cliLogger(cmd *cobra.Command) infra.Logger {
	verbose, _ := cmd.Flags().GetBool("verbose")
	return infra.NewCLILogger(verbose)
}

// openServices loads configuration and wires the preset services.
func openServices(ctx context.Context, cmd *cobra.Command) (*bootstrap.Services, error) {
	cfg, err := infra.LoadConfig()
	if err != nil {
		return nil, err
	}
	return bootstrap.New(ctx, cfg, cliLogger(cmd))
}
