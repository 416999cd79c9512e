package compositor

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"

	"Cloud_Animator/internal/models"
	"Cloud_Animator/pkg/hasher"
	"Cloud_Animator/pkg/raster"
)

type Options struct {
	Calibration raster.Calibration
	Annotation  AnnotationOptions
	LogoPath    string
	LogoSize    int
	// Cache 为 nil 时关闭帧缓存。
	Cache *FrameCache
	// FingerprintExtra 是影响像素但不属于本包的参数，例如重投影的目标坐标系。
	FingerprintExtra []string
}

// Compositor 把一个栅格文件渲染成一帧加注的 PNG。
// 各帧之间没有共享的可变状态，可以并发调用 Render。
type Compositor struct {
	calibration raster.Calibration
	annotator   *Annotator
	mark        image.Image
	margin      int
	cache       *FrameCache
	fingerprint string
	logger      *slog.Logger
}

// New 创建合成器。字体或标志缺失不会导致失败：对应的叠加被关闭，
// 错误以 warnings 返回给调用方记录。
func New(opts Options, logger *slog.Logger) (*Compositor, []error) {
	if logger == nil {
		logger = slog.Default()
	}
	var warnings []error
	c := &Compositor{
		calibration: opts.Calibration,
		margin:      opts.Annotation.Margin,
		cache:       opts.Cache,
		logger:      logger,
	}

	annotator, err := NewAnnotator(opts.Annotation)
	if err != nil {
		logger.Warn("文字标注不可用，帧将不带文字输出", "error", err)
		warnings = append(warnings, err)
	} else {
		c.annotator = annotator
	}

	if strings.TrimSpace(opts.LogoPath) != "" {
		mark, err := LoadMark(opts.LogoPath, opts.LogoSize)
		if err != nil {
			logger.Warn("标志不可用，帧将不带标志输出", "error", err)
			warnings = append(warnings, err)
		} else {
			c.mark = mark
		}
	}

	c.fingerprint = strings.Join(append([]string{
		opts.Calibration.String(),
		strconv.FormatBool(c.annotator != nil),
		opts.Annotation.Label,
		opts.Annotation.FontPath,
		strconv.FormatFloat(opts.Annotation.FontSize, 'f', -1, 64),
		opts.Annotation.Color,
		opts.Annotation.TimezoneLabel,
		strconv.Itoa(opts.Annotation.Margin),
		strconv.FormatBool(c.mark != nil),
		opts.LogoPath,
		strconv.Itoa(opts.LogoSize),
	}, opts.FingerprintExtra...), "|")
	return c, warnings
}

// Annotated 报告是否会绘制文字。
func (c *Compositor) Annotated() bool { return c.annotator != nil }

// frameFingerprint 在渲染指纹之外加入本帧的文字，内容相同但时间不同的栅格不会共用缓存。
func (c *Compositor) frameFingerprint(rf models.RasterFile) string {
	if c.annotator == nil {
		return c.fingerprint
	}
	return c.fingerprint + "|" + c.annotator.TimestampText(rf)
}

// Render 依次执行 读取 → 定标归一化 → 合成 → 加注 → 贴标志 → 写出 PNG。
// srcPath 是实际读取的栅格（可能是重投影后的临时文件），rf 提供时间信息。
func (c *Compositor) Render(ctx context.Context, rf models.RasterFile, srcPath, outPath string) (models.Frame, error) {
	frame := models.Frame{
		Source:    rf,
		Timestamp: rf.AcquiredAt,
		Path:      outPath,
		Annotated: c.annotator != nil,
	}
	if err := ctx.Err(); err != nil {
		return frame, err
	}

	var cacheKey string
	if c.cache != nil {
		key, err := c.cache.Key(srcPath, c.frameFingerprint(rf))
		if err != nil {
			c.logger.Warn("无法计算缓存键，直接渲染", "file", rf.Name, "error", err)
		} else {
			cacheKey = key
			hit, err := c.cache.Lookup(key, outPath)
			if err != nil {
				c.logger.Warn("缓存读取失败，直接渲染", "file", rf.Name, "error", err)
			}
			if hit {
				frame.Cached = true
				if img, err := imaging.Open(outPath); err == nil {
					frame.PerceptualHash = hasher.CalculatePerceptualHashFromImage(img)
				}
				return frame, nil
			}
		}
	}

	bands, err := raster.Open(srcPath)
	if err != nil {
		return frame, err
	}
	channels := c.calibration.Apply(bands)
	img, err := Compose(
		Channel{Width: bands.Width, Height: bands.Height, Pix: channels[0]},
		Channel{Width: bands.Width, Height: bands.Height, Pix: channels[1]},
		Channel{Width: bands.Width, Height: bands.Height, Pix: channels[2]},
	)
	if err != nil {
		return frame, err
	}

	if c.annotator != nil {
		c.annotator.Annotate(img, rf)
	}
	OverlayMark(img, c.mark, c.margin)

	if err := imaging.Save(img, outPath); err != nil {
		return frame, fmt.Errorf("%w: 写出帧 %s: %v", models.ErrWorkspaceIO, outPath, err)
	}
	frame.PerceptualHash = hasher.CalculatePerceptualHashFromImage(img)

	if cacheKey != "" {
		if err := c.cache.Store(cacheKey, outPath); err != nil {
			c.logger.Warn("写入帧缓存失败", "file", rf.Name, "error", err)
		}
	}
	return frame, nil
}
