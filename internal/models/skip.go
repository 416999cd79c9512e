package models

import "errors"

// 跳过原因
const (
	ReasonUnreadableRaster     = "unreadable_raster"
	ReasonFilenameFormat       = "filename_format"
	ReasonChannelShapeMismatch = "channel_shape_mismatch"
	ReasonReprojectionFailed   = "reprojection_failed"
	ReasonAssetMissing         = "asset_missing"
	ReasonMissingTimestamp     = "missing_timestamp"
	ReasonDuplicateTimestamp   = "duplicate_timestamp"
	ReasonIncompleteDay        = "incomplete_day"
	ReasonUnknown              = "error"
)

// SkipReasoner 由可以被单帧恢复的错误类型实现。
type SkipReasoner interface {
	SkipReason() string
}

// SkipReasonFor 返回错误链中第一个 SkipReasoner 给出的原因。
func SkipReasonFor(err error) string {
	var r SkipReasoner
	if errors.As(err, &r) {
		return r.SkipReason()
	}
	return ReasonUnknown
}

// NewSkip 根据错误构造一条跳过记录。
func NewSkip(path, stage string, err error) SkipRecord {
	rec := SkipRecord{Path: path, Stage: stage, Reason: SkipReasonFor(err)}
	if err != nil {
		rec.Detail = err.Error()
	}
	return rec
}

// ErrWorkspaceIO 标记写工作区失败（磁盘已满等），这是整个运行唯一的致命错误。
var ErrWorkspaceIO = errors.New("工作区写入失败")
