package database

import (
	"context"

	"Cloud_Animator/internal/models"
)

// Store 是运行目录库的顶层接口，组合了年度报告与帧记录两类存储。
// 查询不到记录时返回 nil, nil。
type Store interface {
	Reports() ReportStore
	Frames() FrameStore
	EnsureIndexes(ctx context.Context) error
	DropAllCollections(ctx context.Context) error
	Close(ctx context.Context) error
}

// ReportStore 定义了与 YearReport 相关的操作。
type ReportStore interface {
	// Save 按 RunID 插入或覆盖一份报告。
	Save(ctx context.Context, report *models.YearReport) error
	// Get 返回某个 (产品, 年份) 最近一次运行的报告。
	Get(ctx context.Context, product, year string) (*models.YearReport, error)
	GetByRunID(ctx context.Context, runID string) (*models.YearReport, error)
	// List 按结束时间倒序分页，page 从 1 开始。
	List(ctx context.Context, page, limit int) ([]models.YearReport, int64, error)
}

// FrameStore 定义了与 FrameRecord 相关的操作。
type FrameStore interface {
	// ReplaceForRun 用 frames 替换某次运行已有的全部帧记录。
	ReplaceForRun(ctx context.Context, runID string, frames []models.FrameRecord) error
	ListByRun(ctx context.Context, runID string) ([]models.FrameRecord, error)
}

// ListFramesByYear 返回某个 (产品, 年份) 最近一次运行的帧记录，按序号升序。
func ListFramesByYear(ctx context.Context, store Store, product, year string) (*models.YearReport, []models.FrameRecord, error) {
	report, err := store.Reports().Get(ctx, product, year)
	if err != nil || report == nil {
		return nil, nil, err
	}
	frames, err := store.Frames().ListByRun(ctx, report.RunID)
	if err != nil {
		return report, nil, err
	}
	return report, frames, nil
}

// NormalizePage 把非法的分页参数修正为默认值。
func NormalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 200 {
		limit = 20
	}
	return page, limit
}
