package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"Cloud_Animator/pkg/database"
)

func newReportsCommand(ctx *commandContext) *cobra.Command {
	var page, limit int

	cmd := &cobra.Command{
		Use:   "reports",
		Short: "列出目录库中最近的年度报告",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore(cmd.Context())
			if err != nil {
				return err
			}
			if store == nil {
				return errors.New("未配置目录数据库 (database.driver=none)")
			}
			defer store.Close(context.Background())

			page, limit = database.NormalizePage(page, limit)
			reports, total, err := store.Reports().List(cmd.Context(), page, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(reports) == 0 {
				fmt.Fprintln(out, "目录库中没有报告")
				return nil
			}
			fmt.Fprintln(out, renderReports(reports, isTerminal(out)))
			fmt.Fprintf(out, "第 %d 页，共 %d 条\n", page, total)
			return nil
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "分页页码")
	cmd.Flags().IntVar(&limit, "limit", 20, "每页数量")
	return cmd
}
