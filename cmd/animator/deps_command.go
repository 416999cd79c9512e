package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"Cloud_Animator/pkg/external"
)

func newCheckDepsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check-deps",
		Short: "检查 gdalwarp 与 ffmpeg 是否可用",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses := external.CheckBinaries(external.Requirements(ctx.config))
			rows := make([][]string, 0, len(statuses))
			for _, s := range statuses {
				state := "可用"
				if !s.Available {
					state = "缺失"
					if s.Optional {
						state = "缺失（可选）"
					}
				}
				rows = append(rows, []string{s.Name, s.Command, state, s.Detail})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable([]string{"工具", "命令", "状态", "说明"}, rows, nil, isTerminal(out)))
			if missing := external.Missing(statuses); len(missing) > 0 {
				return fmt.Errorf("缺少 %d 个必需的外部工具", len(missing))
			}
			return nil
		},
	}
}
