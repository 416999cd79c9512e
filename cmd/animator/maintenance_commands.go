package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"Cloud_Animator/pkg/maintenance"
)

func newMaintenance(ctx *commandContext) maintenance.Maintenance {
	return maintenance.NewMaintenance(slog.Default(), ctx.config.Pipeline.WorkerCountOrDefault())
}

func newManifestCommand(ctx *commandContext) *cobra.Command {
	var outputRoot, manifestDir string

	cmd := &cobra.Command{
		Use:   "manifest",
		Short: "为输出目录中的视频和报告生成 sha256 清单",
		RunE: func(cmd *cobra.Command, args []string) error {
			if outputRoot == "" {
				outputRoot = ctx.config.Pipeline.OutputRoot
			}
			path, err := newMaintenance(ctx).GenerateFileManifest(cmd.Context(), outputRoot, manifestDir)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().StringVar(&outputRoot, "output-root", "", "要生成清单的目录（默认 pipeline.outputRoot）")
	cmd.Flags().StringVar(&manifestDir, "manifest-dir", "./manifests", "清单写入目录")
	return cmd
}

func newPurgeWorkspaceCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "purge-workspace",
		Short: "删除中断运行留下的工作目录",
		RunE: func(cmd *cobra.Command, args []string) error {
			removed, err := newMaintenance(ctx).PurgeWorkspace(cmd.Context(), ctx.config.Pipeline.WorkspaceRoot)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, dir := range removed {
				fmt.Fprintln(out, dir)
			}
			fmt.Fprintf(out, "已删除 %d 个工作目录\n", len(removed))
			return nil
		},
	}
}

func newDumpDatabaseCommand(ctx *commandContext) *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "dump-database",
		Short: "备份目录库",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore(cmd.Context())
			if err != nil {
				return err
			}
			if store != nil {
				defer store.Close(context.Background())
			}
			path, err := newMaintenance(ctx).BackupDatabase(cmd.Context(), ctx.config.Database, store, outputPath)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().StringVar(&outputPath, "output", "./backups", "备份写入目录")
	return cmd
}
