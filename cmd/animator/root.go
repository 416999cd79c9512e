package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"Cloud_Animator/config"
	"Cloud_Animator/pkg/database"
	"Cloud_Animator/pkg/database/driver"
	"Cloud_Animator/pkg/logger"
)

func newRootCommand() *cobra.Command {
	var configDir string
	ctx := &commandContext{configDir: &configDir}

	rootCmd := &cobra.Command{
		Use:           "animator",
		Short:         "把 GOES-16 合成影像整理成逐年的延时动画",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := ctx.ensureConfig()
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			ctx.close()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configDir, "config", "c", ".", "config.yaml 所在目录")

	rootCmd.AddCommand(newRunCommand(ctx))
	rootCmd.AddCommand(newSelectCommand(ctx))
	rootCmd.AddCommand(newCheckDepsCommand(ctx))
	rootCmd.AddCommand(newReportsCommand(ctx))
	rootCmd.AddCommand(newManifestCommand(ctx))
	rootCmd.AddCommand(newPurgeWorkspaceCommand(ctx))
	rootCmd.AddCommand(newDumpDatabaseCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}

type commandContext struct {
	configDir *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
	closeLog   func()
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		dir := strings.TrimSpace(*c.configDir)
		if dir == "" {
			dir = "."
		}
		cfg, err := config.LoadConfig(dir)
		if err != nil {
			c.configErr = err
			return
		}
		closeLog, err := logger.InitLogger(cfg.Logger)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.closeLog = closeLog
	})
	return c.config, c.configErr
}

func (c *commandContext) close() {
	if c.closeLog != nil {
		c.closeLog()
	}
}

// openStore 打开配置中的目录库，驱动为 none 时返回 nil。
func (c *commandContext) openStore(ctx context.Context) (database.Store, error) {
	return driver.Open(ctx, c.config)
}

// signalContext 在收到 SIGINT/SIGTERM 时取消。
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
