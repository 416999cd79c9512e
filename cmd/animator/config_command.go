package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"Cloud_Animator/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "配置相关命令",
	}
	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "输出生效的配置（数据库连接串已隐藏）",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := redactedYAML(ctx.config)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), string(data))
			return nil
		},
	})
	return configCmd
}

func redactedYAML(cfg *config.Config) ([]byte, error) {
	shown := *cfg
	if shown.Database.URI != "" {
		shown.Database.URI = "******"
	}
	return yaml.Marshal(&shown)
}
