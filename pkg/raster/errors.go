package raster

import (
	"fmt"

	"Cloud_Animator/internal/models"
)

// FilenameFormatError 表示文件名不符合 `_` 分隔的字段约定。
type FilenameFormatError struct {
	Name   string
	Token  int
	Reason string
}

func (e *FilenameFormatError) Error() string {
	if e.Token >= 0 {
		return fmt.Sprintf("文件名格式错误 '%s' (字段 %d): %s", e.Name, e.Token, e.Reason)
	}
	return fmt.Sprintf("文件名格式错误 '%s': %s", e.Name, e.Reason)
}

func (e *FilenameFormatError) SkipReason() string { return models.ReasonFilenameFormat }

// UnreadableRasterError 表示栅格文件无法打开、无法解码或少于 3 个波段。
type UnreadableRasterError struct {
	Path   string
	Reason string
	Err    error
}

func (e *UnreadableRasterError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("无法读取栅格 '%s': %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("无法读取栅格 '%s': %s", e.Path, e.Reason)
}

func (e *UnreadableRasterError) Unwrap() error { return e.Err }

func (e *UnreadableRasterError) SkipReason() string { return models.ReasonUnreadableRaster }
