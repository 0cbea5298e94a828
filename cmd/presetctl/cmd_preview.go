package main

import (
	"bufio"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"pixshop/internal/preview"
	"pixshop/internal/providers/genai"
	"pixshop/internal/storage"
)

func newPreviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Render live previews of prompts read from stdin",
		Long: `Reads prompt edits from stdin, one per line. Once typing pauses for the
debounce interval the latest line is rendered and written as an image file.`,
		Args: cobra.NoArgs,
		RunE: runPreview,
	}
	cmd.Flags().Bool("touch", false, "Use the longer touch-device debounce")
	cmd.Flags().Bool("fast", false, "Use the fast image model")
	cmd.Flags().String("out", ".", "Directory for preview images")
	return cmd
}

func runPreview(cmd *cobra.Command, args []string) error {
	touch, _ := cmd.Flags().GetBool("touch")
	fast, _ := cmd.Flags().GetBool("fast")
	outDir, _ := cmd.Flags().GetString("out")

	store, err := storage.NewFileStore(outDir)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	services, err := openServices(ctx, cmd)
	if err != nil {
		return err
	}
	defer services.Close()

	out := cmd.OutOrStdout()
	delivered := make(chan struct{}, 1)
	var (
		mu sync.Mutex
		n  int
	)
	sink := func(img *genai.ImageInput) {
		defer func() {
			select {
			case delivered <- struct{}{}:
			default:
			}
		}()
		if img == nil {
			fmt.Fprintln(out, "preview cleared")
			return
		}
		mu.Lock()
		n++
		key := fmt.Sprintf("preview_%03d%s", n, img.Extension())
		mu.Unlock()
		if _, err := store.Write(ctx, key, img.Data); err != nil {
			services.Logger.Error().Err(err).Str("key", key).Msg("failed to write preview")
			return
		}
		fmt.Fprintf(out, "preview written to %s\n", key)
	}

	cfg := services.Config
	loop, err := preview.NewLoop(preview.Options{
		Renderer:      services.GenAI,
		Sink:          sink,
		Debounce:      cfg.PreviewDebounce,
		TouchDebounce: cfg.PreviewTouchDebounce,
		Fast:          fast,
		Catalog:       services.Catalog,
		Logger:        &services.Logger,
	})
	if err != nil {
		return err
	}
	defer loop.Close()
	loop.SetTouch(touch)
	loop.SetEnabled(true)

	var pending bool
	scanner := bufio.NewScanner(cmd.InOrStdin())
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		// drop deliveries from earlier edits so the final wait sees this one
		select {
		case <-delivered:
		default:
		}
		loop.Edit(line)
		pending = true
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if !pending {
		return nil
	}

	wait := cfg.PreviewDebounce
	if touch {
		wait = cfg.PreviewTouchDebounce
	}
	select {
	case <-delivered:
	case <-time.After(wait + cfg.GeminiTimeout):
		fmt.Fprintln(out, "preview timed out")
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}
