package compositor

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/mozillazg/go-unidecode"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"Cloud_Animator/internal/models"
)

type AnnotationOptions struct {
	Label         string
	FontPath      string
	FontSize      float64
	Color         string
	TimezoneLabel string
	Margin        int
}

// Annotator 在帧的左下角绘制两行文字：产品标签和本地时间。
// font.Face 不能并发使用，绘制时加锁。
type Annotator struct {
	mu     sync.Mutex
	face   font.Face
	color  color.Color
	label  string
	tz     string
	margin int
}

// NewAnnotator 加载字体。未配置字体路径时使用内置的 7x13 点阵字体，
// 该字体只有 ASCII 字形，所以标签会先做音译。
func NewAnnotator(opts AnnotationOptions) (*Annotator, error) {
	col, err := ParseHexColor(opts.Color)
	if err != nil {
		return nil, err
	}
	a := &Annotator{
		color:  col,
		label:  opts.Label,
		tz:     opts.TimezoneLabel,
		margin: opts.Margin,
	}

	if strings.TrimSpace(opts.FontPath) == "" {
		a.face = basicfont.Face7x13
		a.label = unidecode.Unidecode(opts.Label)
		return a, nil
	}

	data, err := os.ReadFile(opts.FontPath)
	if err != nil {
		return nil, &AssetMissingError{Asset: "字体", Path: opts.FontPath, Err: err}
	}
	parsed, err := opentype.Parse(data)
	if err != nil {
		return nil, &AssetMissingError{Asset: "字体", Path: opts.FontPath, Err: err}
	}
	size := opts.FontSize
	if size <= 0 {
		size = 28
	}
	face, err := opentype.NewFace(parsed, &opentype.FaceOptions{Size: size, DPI: 72, Hinting: font.HintingFull})
	if err != nil {
		return nil, &AssetMissingError{Asset: "字体", Path: opts.FontPath, Err: err}
	}
	a.face = face
	return a, nil
}

// TimestampText 返回 "YYYY-MM-DD HH:MM <时区>" 形式的时间行。
func (a *Annotator) TimestampText(rf models.RasterFile) string {
	return TimestampText(rf, a.tz)
}

func TimestampText(rf models.RasterFile, tz string) string {
	text := rf.Date() + " " + rf.Clock()
	if tz != "" {
		text += " " + tz
	}
	return text
}

// Lines 返回要绘制的文字行，自上而下。
func (a *Annotator) Lines(rf models.RasterFile) []string {
	var lines []string
	if strings.TrimSpace(a.label) != "" {
		lines = append(lines, a.label)
	}
	return append(lines, a.TimestampText(rf))
}

// Annotate 把文字行绘制到 img 上，最后一行紧贴左下角边距。
func (a *Annotator) Annotate(img *image.RGBA, rf models.RasterFile) {
	a.mu.Lock()
	defer a.mu.Unlock()

	lines := a.Lines(rf)
	metrics := a.face.Metrics()
	lineHeight := metrics.Height.Ceil()
	descent := metrics.Descent.Ceil()
	bounds := img.Bounds()

	x := bounds.Min.X + a.margin
	baseline := bounds.Max.Y - a.margin - descent - (len(lines)-1)*lineHeight

	shadow := &font.Drawer{Dst: img, Src: image.NewUniform(color.RGBA{A: 0xc0}), Face: a.face}
	drawer := &font.Drawer{Dst: img, Src: image.NewUniform(a.color), Face: a.face}
	for i, line := range lines {
		y := baseline + i*lineHeight
		shadow.Dot = fixed.P(x+1, y+1)
		shadow.DrawString(line)
		drawer.Dot = fixed.P(x, y)
		drawer.DrawString(line)
	}
}

// ParseHexColor 解析 #RRGGBB 或 #RRGGBBAA。空字符串表示白色。
func ParseHexColor(s string) (color.RGBA, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if s == "" {
		return color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}, nil
	}
	if len(s) != 6 && len(s) != 8 {
		return color.RGBA{}, fmt.Errorf("无效的颜色 '%s'", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("无效的颜色 '%s': %w", s, err)
	}
	if len(s) == 6 {
		v = v<<8 | 0xff
	}
	return color.RGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}
