package main

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"Cloud_Animator/pkg/scanner"
)

func newSelectCommand(ctx *commandContext) *cobra.Command {
	var product, year string

	cmd := &cobra.Command{
		Use:   "select",
		Short: "只运行选择阶段，列出每天每个目标小时选中的文件",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.config
			if product == "" {
				if len(cfg.Pipeline.Products) == 0 {
					return errors.New("必须提供 --product")
				}
				product = cfg.Pipeline.Products[0]
			}
			yearDir := filepath.Join(cfg.Pipeline.InputRoot, product, year)
			selector := scanner.NewSelector(cfg.Pipeline.TargetHours, scanner.DayPolicy(cfg.Pipeline.DayPolicy), cfg.Annotation.Location(), slog.Default())
			sel, err := selector.Select(yearDir)
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(sel.Candidates))
			for _, rf := range sel.Candidates {
				rows = append(rows, []string{rf.Date(), rf.Clock(), rf.Name})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable([]string{"日期", "时刻", "文件"}, rows, nil, isTerminal(out)))
			fmt.Fprintf(out, "发现 %d 个文件，%d 天，选中 %d 个，跳过 %d 个\n", sel.Discovered, sel.Days, len(sel.Candidates), len(sel.Skips))
			for _, s := range sel.Skips {
				fmt.Fprintf(out, "  跳过 %s: %s\n", s.Reason, s.Path)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&product, "product", "", "产品名（默认取配置中的第一个）")
	cmd.Flags().StringVar(&year, "year", "", "年份目录名")
	_ = cmd.MarkFlagRequired("year")
	return cmd
}
