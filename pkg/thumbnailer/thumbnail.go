package thumbnailer

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/jpeg"

	"github.com/disintegration/imaging"
)

// 报告封面的默认尺寸
const (
	CoverWidth  = 320
	CoverHeight = 180
)

// CreateBase64 把图像缩放裁剪到 width×height，返回 JPEG 的 data URI。
func CreateBase64(srcImage image.Image, width, height int) (string, error) {
	thumbImage := imaging.Thumbnail(srcImage, width, height, imaging.Lanczos)

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, thumbImage, &jpeg.Options{Quality: 80}); err != nil {
		return "", err
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Cover 读取一帧并生成报告封面。
func Cover(framePath string) (string, error) {
	img, err := imaging.Open(framePath)
	if err != nil {
		return "", err
	}
	return CreateBase64(img, CoverWidth, CoverHeight)
}
