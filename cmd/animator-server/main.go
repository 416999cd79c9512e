package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"Cloud_Animator/config"
	"Cloud_Animator/internal/api"
	"Cloud_Animator/internal/task"
	"Cloud_Animator/pkg/database/driver"
	"Cloud_Animator/pkg/external"
	"Cloud_Animator/pkg/logger"
	"Cloud_Animator/pkg/metrics"
	"Cloud_Animator/pkg/scanner"
)

func main() {
	configDir := flag.String("config", ".", "config.yaml 所在目录")
	flag.Parse()

	// --- 1. 初始化 ---
	cfg, err := config.LoadConfig(*configDir)
	if err != nil {
		log.Fatalf("FATAL: 无法加载配置: %v", err)
	}
	closeLog, err := logger.InitLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("FATAL: 无法初始化日志: %v", err)
	}
	defer closeLog()
	slog.Info("应用启动")
	defer slog.Info("应用关闭")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for _, s := range external.Missing(external.CheckBinaries(external.Requirements(cfg))) {
		slog.Warn("缺少外部工具，渲染任务将会失败", "tool", s.Name, "command", s.Command, "detail", s.Detail)
	}

	// --- 2. 连接目录库 ---
	db, err := driver.Open(ctx, cfg)
	if err != nil {
		slog.Error("FATAL: 无法打开目录库", "error", err)
		os.Exit(1)
	}
	if db != nil {
		defer db.Close(context.Background())
		slog.Info("目录库已就绪", "driver", cfg.Database.Driver)
	}

	// --- 3. 创建核心服务实例 ---
	m := metrics.New()
	orchestrator, err := scanner.NewOrchestrator(cfg, scanner.Deps{Store: db, Metrics: m}, slog.Default())
	if err != nil {
		slog.Error("FATAL: 无法创建动画协调器", "error", err)
		os.Exit(1)
	}
	taskManager := task.NewManager(ctx, orchestrator, slog.Default())

	// --- 4. 启动HTTP服务器 ---
	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      api.RegisterRoutes(taskManager, db, m),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Warn("HTTP服务器关闭失败", "error", err)
		}
	}()

	slog.Info("HTTP服务器正在启动...", "地址", cfg.Server.Port)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("无法启动HTTP服务器", "error", err)
		os.Exit(1)
	}
	// 等待正在运行的渲染任务随 ctx 取消后退出
	taskManager.Wait()
}
