package compositor

import (
	"image"
	"image/draw"

	"github.com/disintegration/imaging"
)

// LoadMark 读取标志图片并等比缩放到 size×size 的框内。
func LoadMark(path string, size int) (image.Image, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, &AssetMissingError{Asset: "标志", Path: path, Err: err}
	}
	if size > 0 {
		img = imaging.Fit(img, size, size, imaging.Lanczos)
	}
	return img, nil
}

// OverlayMark 以 alpha 合成把标志贴到右上角，透明像素不遮挡底图。
func OverlayMark(dst *image.RGBA, mark image.Image, margin int) {
	if mark == nil {
		return
	}
	mb := mark.Bounds()
	db := dst.Bounds()
	x := db.Max.X - margin - mb.Dx()
	y := db.Min.Y + margin
	rect := image.Rect(x, y, x+mb.Dx(), y+mb.Dy())
	draw.Draw(dst, rect, mark, mb.Min, draw.Over)
}
