package raster

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"

	_ "golang.org/x/image/tiff"
)

// Band 是单个波段的数值数组，按行优先存放。
type Band struct {
	Width  int
	Height int
	Data   []float64
}

// BandStatistics 是一个波段的数值范围。
type BandStatistics struct {
	Min float64
	Max float64
}

// Statistics 计算波段的最小值与最大值，NaN 不参与统计；全为 NaN 时返回 {0,0}。
func (b Band) Statistics() BandStatistics {
	stats := BandStatistics{Min: math.Inf(1), Max: math.Inf(-1)}
	for _, v := range b.Data {
		if math.IsNaN(v) {
			continue
		}
		if v < stats.Min {
			stats.Min = v
		}
		if v > stats.Max {
			stats.Max = v
		}
	}
	if math.IsInf(stats.Min, 1) {
		return BandStatistics{}
	}
	return stats
}

// Bands 持有一个栅格的三个显示波段：通道 1→R，2→G，3→B。
type Bands struct {
	Path   string
	Width  int
	Height int
	// BitDepth 是原始采样位数（8 或 16）。
	BitDepth int
	Red      Band
	Green    Band
	Blue     Band
}

// All 按 R、G、B 顺序返回三个波段。
func (b *Bands) All() [3]Band {
	return [3]Band{b.Red, b.Green, b.Blue}
}

// Statistics 返回三个波段各自的 (min, max)。
func (b *Bands) Statistics() [3]BandStatistics {
	return [3]BandStatistics{b.Red.Statistics(), b.Green.Statistics(), b.Blue.Statistics()}
}

// Open 读取一个地理编码的栅格文件并返回三个波段。文件只读，不做任何修改。
func Open(path string) (*Bands, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, &UnreadableRasterError{Path: path, Reason: "无法打开文件", Err: err}
	}
	defer file.Close()

	img, format, err := image.Decode(file)
	if err != nil {
		return nil, &UnreadableRasterError{Path: path, Reason: "无法解码", Err: err}
	}
	bands, err := FromImage(img)
	if err != nil {
		return nil, &UnreadableRasterError{Path: path, Reason: fmt.Sprintf("%s: %v", format, err)}
	}
	bands.Path = path
	return bands, nil
}

// FromImage 从已解码的图像中提取三个波段。单通道图像返回错误。
func FromImage(img image.Image) (*Bands, error) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("空图像")
	}

	switch img.(type) {
	case *image.Gray, *image.Gray16, *image.Alpha, *image.Alpha16:
		return nil, fmt.Errorf("只有 1 个波段，至少需要 3 个")
	}

	out := &Bands{
		Width:  w,
		Height: h,
		Red:    Band{Width: w, Height: h, Data: make([]float64, w*h)},
		Green:  Band{Width: w, Height: h, Data: make([]float64, w*h)},
		Blue:   Band{Width: w, Height: h, Data: make([]float64, w*h)},
	}

	switch src := img.(type) {
	case *image.RGBA:
		out.BitDepth = 8
		copy8(out, src.Pix, src.Stride, bounds.Min, src.Rect.Min)
	case *image.NRGBA:
		out.BitDepth = 8
		copy8(out, src.Pix, src.Stride, bounds.Min, src.Rect.Min)
	case *image.RGBA64:
		out.BitDepth = 16
		copy16(out, src.Pix, src.Stride, bounds.Min, src.Rect.Min)
	case *image.NRGBA64:
		out.BitDepth = 16
		copy16(out, src.Pix, src.Stride, bounds.Min, src.Rect.Min)
	default:
		// 调色板、YCbCr、CMYK 等格式统一走 16 位通用路径
		out.BitDepth = 16
		i := 0
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				r, g, b, _ := img.At(x, y).RGBA()
				out.Red.Data[i] = float64(r)
				out.Green.Data[i] = float64(g)
				out.Blue.Data[i] = float64(b)
				i++
			}
		}
	}
	return out, nil
}

func copy8(out *Bands, pix []uint8, stride int, min, origin image.Point) {
	i := 0
	for y := 0; y < out.Height; y++ {
		row := (min.Y-origin.Y+y)*stride + (min.X-origin.X)*4
		for x := 0; x < out.Width; x++ {
			p := row + x*4
			out.Red.Data[i] = float64(pix[p])
			out.Green.Data[i] = float64(pix[p+1])
			out.Blue.Data[i] = float64(pix[p+2])
			i++
		}
	}
}

func copy16(out *Bands, pix []uint8, stride int, min, origin image.Point) {
	i := 0
	for y := 0; y < out.Height; y++ {
		row := (min.Y-origin.Y+y)*stride + (min.X-origin.X)*8
		for x := 0; x < out.Width; x++ {
			p := row + x*8
			out.Red.Data[i] = float64(uint16(pix[p])<<8 | uint16(pix[p+1]))
			out.Green.Data[i] = float64(uint16(pix[p+2])<<8 | uint16(pix[p+3]))
			out.Blue.Data[i] = float64(uint16(pix[p+4])<<8 | uint16(pix[p+5]))
			i++
		}
	}
}
