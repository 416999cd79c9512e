package external

import (
	"fmt"

	"Cloud_Animator/internal/models"
)

// ReprojectionFailedError 表示单个栅格的重投影失败，该帧会被跳过。
type ReprojectionFailedError struct {
	Source string
	Output string
	Err    error
}

func (e *ReprojectionFailedError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("重投影 %s 失败: %v: %s", e.Source, e.Err, e.Output)
	}
	return fmt.Sprintf("重投影 %s 失败: %v", e.Source, e.Err)
}

func (e *ReprojectionFailedError) Unwrap() error { return e.Err }

func (e *ReprojectionFailedError) SkipReason() string { return models.ReasonReprojectionFailed }

// EncodingFailedError 表示编码器对整个年份序列失败。
type EncodingFailedError struct {
	Destination string
	Output      string
	Err         error
}

func (e *EncodingFailedError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("编码 %s 失败: %v: %s", e.Destination, e.Err, e.Output)
	}
	return fmt.Sprintf("编码 %s 失败: %v", e.Destination, e.Err)
}

func (e *EncodingFailedError) Unwrap() error { return e.Err }
