package external

import (
	"context"
	"errors"
	"os/exec"
	"strings"

	"Cloud_Animator/pkg/fileutil"
)

// RasterTransform 把一个栅格重投影到目标坐标系并写到 dst。
type RasterTransform interface {
	Reproject(ctx context.Context, src, dst, crs string) error
}

// GDALWarp 调用 gdalwarp 完成重投影。
type GDALWarp struct {
	Binary string
}

func NewGDALWarp(binary string) *GDALWarp {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "gdalwarp"
	}
	return &GDALWarp{Binary: binary}
}

// Args 返回传给 gdalwarp 的参数。
func (g *GDALWarp) Args(src, dst, crs string) []string {
	return []string{"-overwrite", "-q", "-t_srs", crs, src, dst}
}

func (g *GDALWarp) Reproject(ctx context.Context, src, dst, crs string) error {
	if strings.TrimSpace(crs) == "" {
		return &ReprojectionFailedError{Source: src, Err: errors.New("未指定目标坐标系")}
	}
	cmd := exec.CommandContext(ctx, g.Binary, g.Args(src, dst, crs)...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return &ReprojectionFailedError{Source: src, Output: strings.TrimSpace(string(output)), Err: err}
	}
	if !fileutil.Exists(dst) {
		return &ReprojectionFailedError{Source: src, Err: errors.New("gdalwarp 没有生成输出文件")}
	}
	return nil
}

// Passthrough 在关闭重投影时使用，把源文件原样放到 dst。
type Passthrough struct{}

func (Passthrough) Reproject(_ context.Context, src, dst, _ string) error {
	if err := fileutil.LinkOrCopy(src, dst); err != nil {
		return &ReprojectionFailedError{Source: src, Err: err}
	}
	return nil
}
