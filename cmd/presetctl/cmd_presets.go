package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"pixshop/internal/domain"
	"pixshop/internal/presets"
)

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved presets",
		Args:  cobra.NoArgs,
		RunE:  runList,
	}
	cmd.Flags().String("panel", "", "Only show presets recommended for this panel")
	return cmd
}

func runList(cmd *cobra.Command, args []string) error {
	var panel domain.Panel
	if raw, _ := cmd.Flags().GetString("panel"); raw != "" {
		p, ok := domain.ParsePanel(raw)
		if !ok {
			return fmt.Errorf("unknown panel %q", raw)
		}
		panel = p
	}

	ctx := cmd.Context()
	services, err := openServices(ctx, cmd)
	if err != nil {
		return err
	}
	defer services.Close()

	items, err := services.Presets.List(ctx, panel)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(items) == 0 {
		fmt.Fprintln(out, "No presets saved.")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCATEGORY\tPANEL\tSAVED")
	for _, p := range items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", p.ID, p.Name, p.Category, p.RecommendedPanel, p.Timestamp.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export presets to a portable JSON file",
		Args:  cobra.NoArgs,
		RunE:  runExport,
	}
	cmd.Flags().StringP("output", "o", "", "Output file (\"-\" for stdout, default pixshop_dna_backup_<date>.json)")
	return cmd
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	services, err := openServices(ctx, cmd)
	if err != nil {
		return err
	}
	defer services.Close()

	data, filename, err := services.Presets.Export(ctx)
	if err != nil {
		return err
	}
	target, _ := cmd.Flags().GetString("output")
	if target == "-" {
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
	if target == "" {
		target = filename
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", target, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Exported presets to %s\n", target)
	return nil
}

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Merge presets from an exported JSON file",
		Args:  cobra.ExactArgs(1),
		RunE:  runImport,
	}
}

func runImport(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}

	ctx := cmd.Context()
	services, err := openServices(ctx, cmd)
	if err != nil {
		return err
	}
	defer services.Close()

	res, err := services.Presets.Import(ctx, data)
	if errors.Is(err, domain.ErrNoNewRecords) {
		fmt.Fprintln(cmd.OutOrStdout(), "No new unique presets found.")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d presets (%d total)\n", res.Added, res.Total)
	return nil
}

func newClearCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every saved preset",
		Args:  cobra.NoArgs,
		RunE:  runClear,
	}
	cmd.Flags().BoolP("yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

func runClear(cmd *cobra.Command, args []string) error {
	var confirm presets.Confirmer = promptConfirmer(cmd.InOrStdin(), cmd.OutOrStdout())
	if yes, _ := cmd.Flags().GetBool("yes"); yes {
		confirm = presets.Confirmed
	}

	ctx := cmd.Context()
	services, err := openServices(ctx, cmd)
	if err != nil {
		return err
	}
	defer services.Close()

	err = services.Presets.Clear(ctx, confirm)
	if errors.Is(err, domain.ErrClearDeclined) {
		fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "All presets deleted.")
	return nil
}

// promptConfirmer asks a y/N question on out and reads the answer from in.
// Anything but y/yes declines, including EOF.
func promptConfirmer(in io.Reader, out io.Writer) presets.Confirmer {
	reader := bufio.NewReader(in)
	return presets.ConfirmFunc(func(ctx context.Context, question string) (bool, error) {
		fmt.Fprintf(out, "%s (y/N): ", question)
		response, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return false, err
		}
		response = strings.TrimSpace(strings.ToLower(response))
		return response == "y" || response == "yes", nil
	})
}
