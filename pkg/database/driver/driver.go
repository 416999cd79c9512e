// Package driver 根据配置选择目录库的实现。
package driver

import (
	"context"
	"fmt"
	"log/slog"

	"Cloud_Animator/config"
	"Cloud_Animator/pkg/database"
	"Cloud_Animator/pkg/database/mongo"
	"Cloud_Animator/pkg/database/sqlite"
)

// Open 按 database.driver 打开目录库并确保索引存在。driver 为 none 时返回 nil, nil。
func Open(ctx context.Context, cfg *config.Config) (database.Store, error) {
	var (
		store database.Store
		err   error
	)
	switch cfg.Database.Driver {
	case config.DriverNone, "":
		slog.Info("未启用目录库")
		return nil, nil
	case config.DriverMongo:
		store, err = mongo.NewStore(ctx, cfg.Database.URI, cfg.Database.Name)
	case config.DriverSQLite:
		store, err = sqlite.NewStore(ctx, cfg.Database.Path)
	default:
		return nil, fmt.Errorf("未知的数据库驱动 '%s'", cfg.Database.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("打开目录库 (%s) 失败: %w", cfg.Database.Driver, err)
	}
	if err := store.EnsureIndexes(ctx); err != nil {
		_ = store.Close(ctx)
		return nil, fmt.Errorf("创建索引失败: %w", err)
	}
	return store, nil
}
