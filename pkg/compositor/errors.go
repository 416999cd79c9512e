package compositor

import (
	"fmt"

	"Cloud_Animator/internal/models"
)

// ChannelShapeMismatchError 表示三个通道的尺寸不一致。
type ChannelShapeMismatchError struct {
	Shapes [3][2]int
}

func (e *ChannelShapeMismatchError) Error() string {
	s := e.Shapes
	return fmt.Sprintf("通道尺寸不一致: R=%dx%d G=%dx%d B=%dx%d", s[0][0], s[0][1], s[1][0], s[1][1], s[2][0], s[2][1])
}

func (e *ChannelShapeMismatchError) SkipReason() string { return models.ReasonChannelShapeMismatch }

// AssetMissingError 表示字体或标志资源无法加载。
type AssetMissingError struct {
	Asset string
	Path  string
	Err   error
}

func (e *AssetMissingError) Error() string {
	return fmt.Sprintf("无法加载%s资源 '%s': %v", e.Asset, e.Path, e.Err)
}

func (e *AssetMissingError) Unwrap() error { return e.Err }

func (e *AssetMissingError) SkipReason() string { return models.ReasonAssetMissing }
