package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sandevgo/kaidesk/internal/config"
	"github.com/sandevgo/kaidesk/internal/service/ui"
	"github.com/sandevgo/kaidesk/pkg/log"
	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:          "ingest <file...>",
	Short:        "Add documents to the knowledge index",
	Long:         `Copies each document into the runtime knowledge folder, then chunks, embeds and indexes it.`,
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, flushLog := setupLogger(cmd.Context())
		defer flushLog()

		if err := initEnv(ctx, config.GetRuntimePath()); err != nil {
			return err
		}
		appCfg := config.NewAppConfig(ctx)
		ragCfg := config.NewRAGConfig(ctx)

		_, library, err := initKnowledge(ctx, appCfg, ragCfg)
		if err != nil {
			return err
		}

		failed := 0
		for _, path := range args {
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", path, err)
			}

			n, err := library.Add(ctx, filepath.Base(path), data)
			if err != nil {
				log.FromCtx(ctx).Error().Err(err).Str("file", path).Msg("ingestion failed")
				failed++
				continue
			}
			fmt.Printf("%s %s\n", ui.UsageStyle.Render(filepath.Base(path)), ui.DescStyle.Render(fmt.Sprintf("%d chunks", n)))
		}

		if failed > 0 {
			return fmt.Errorf("%d of %d files failed", failed, len(args))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}
