package main

import (
	"fmt"

	"github.com/sandevgo/kaidesk/internal/config"
	"github.com/sandevgo/kaidesk/internal/service/ui"
	"github.com/sandevgo/kaidesk/pkg/env"
	"github.com/spf13/cobra"
)

var showSecrets bool

var configCmd = &cobra.Command{
	Use:          "config",
	Short:        "Print the effective configuration",
	Long:         `Prints every setting as .env lines. Secrets are masked unless --show-secrets is given.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, flushLog := setupLogger(cmd.Context())
		defer flushLog()

		if err := initEnv(ctx, config.GetRuntimePath()); err != nil {
			return err
		}

		appCfg := config.NewAppConfig(ctx)
		sections := []struct {
			title string
			cfg   any
		}{
			{"APP", appCfg},
			{"AUTH", config.NewAuthConfig(ctx)},
			{"LLM", config.NewLLMConfig(ctx)},
			{"MEMORY", config.NewMemoryConfig(ctx)},
			{"RAG", config.NewRAGConfig(ctx)},
			{"RECORDS", config.NewRecordsConfig(ctx, appCfg)},
		}
		if appCfg.IsTelegramSelected() {
			sections = append(sections, struct {
				title string
				cfg   any
			}{"TELEGRAM", config.NewTelegramConfig(ctx)})
		}

		for _, s := range sections {
			out, err := env.MarshalEnv(s.cfg, !showSecrets)
			if err != nil {
				return fmt.Errorf("failed to render %s config: %w", s.title, err)
			}
			fmt.Println(ui.TitleStyle.Render("# " + s.title))
			fmt.Println(out)
		}
		return nil
	},
}

func init() {
	configCmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "print secrets in clear text")
	rootCmd.AddCommand(configCmd)
}
