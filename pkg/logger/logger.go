package logger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"Cloud_Animator/config"
)

const logFileName = "animator.log"

// InitLogger 根据配置初始化全局的 slog 日志记录器。
// 配置了日志目录时同时写入 animator.log，返回的函数用于关闭该文件。
func InitLogger(cfg config.LoggerConfig) (func(), error) {
	logLevel := new(slog.LevelVar)
	if err := setLogLevel(cfg.Level, logLevel); err != nil {
		return nil, err
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}

	var out io.Writer = os.Stdout
	closeFn := func() {}
	if strings.TrimSpace(cfg.Path) != "" {
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return nil, fmt.Errorf("无法创建日志目录: %w", err)
		}
		file, err := os.OpenFile(filepath.Join(cfg.Path, logFileName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("无法打开日志文件: %w", err)
		}
		out = io.MultiWriter(os.Stdout, file)
		closeFn = func() { file.Close() }
	}

	slog.SetDefault(slog.New(newHandler(out, cfg.Format, handlerOpts)))
	return closeFn, nil
}

func newHandler(w io.Writer, format string, opts *slog.HandlerOptions) slog.Handler {
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// setLogLevel 将字符串形式的日志级别转换为 slog.Level 类型
func setLogLevel(levelStr string, levelVar *slog.LevelVar) error {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "debug":
		levelVar.Set(slog.LevelDebug)
	case "info", "":
		levelVar.Set(slog.LevelInfo)
	case "warn":
		levelVar.Set(slog.LevelWarn)
	case "error":
		levelVar.Set(slog.LevelError)
	default:
		return errors.New("无效的日志级别: " + levelStr)
	}
	return nil
}

// ForYear 返回带有产品和年份字段的 logger。
func ForYear(base *slog.Logger, product, year string) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	return base.With("product", product, "year", year)
}

// Discard 返回一个丢弃所有日志的 logger，主要用于测试，避免不必要的日志输出。
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
