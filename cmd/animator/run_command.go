package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"Cloud_Animator/internal/models"
	"Cloud_Animator/pkg/scanner"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var products, years []string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "选择、合成并编码指定产品和年份的动画",
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx, cancel := signalContext(cmd.Context())
			defer cancel()

			store, err := ctx.openStore(runCtx)
			if err != nil {
				return err
			}
			if store != nil {
				defer store.Close(context.Background())
			}

			orchestrator, err := scanner.NewOrchestrator(ctx.config, scanner.Deps{Store: store}, slog.Default())
			if err != nil {
				return err
			}
			reports, runErr := orchestrator.Run(runCtx, products, years)

			out := cmd.OutOrStdout()
			if len(reports) > 0 {
				fmt.Fprintln(out, renderReports(reports, isTerminal(out)))
			}
			if runErr != nil {
				return runErr
			}
			failed := 0
			for _, r := range reports {
				if r.State == models.StateFailed {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d 个年份处理失败", failed)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&products, "product", nil, "只处理这些产品（默认使用配置中的产品）")
	cmd.Flags().StringSliceVar(&years, "year", nil, "只处理这些年份")
	return cmd
}
