// Package sequence 把合成好的帧按采集时间排成连续编号的序列，交给编码器。
package sequence

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/mozillazg/go-unidecode"

	"Cloud_Animator/internal/models"
	"Cloud_Animator/pkg/fileutil"
)

// IndexWidth 是序列编号的位数，编码器的输入模式依赖它。
const IndexWidth = 4

// Sequence 是按时间严格递增、编号从 1 连续的帧列表。
type Sequence struct {
	Frames   []models.Frame
	Warnings []string
}

func (s Sequence) Len() int { return len(s.Frames) }

// Assemble 排除缺少时间戳和时间戳重复的帧，其余按时间升序排列并重新编号。
// 时间戳重复时保留先出现的那一帧。
func Assemble(frames []models.Frame, logger *slog.Logger) (Sequence, []models.SkipRecord) {
	if logger == nil {
		logger = slog.Default()
	}
	// 渲染池的完成顺序不确定，先按源文件名排序
	frames = slices.Clone(frames)
	sort.SliceStable(frames, func(i, j int) bool {
		return frames[i].Source.Name < frames[j].Source.Name
	})

	var skips []models.SkipRecord
	seen := make(map[int64]string, len(frames))
	kept := make([]models.Frame, 0, len(frames))

	for _, f := range frames {
		if f.Timestamp.IsZero() {
			skips = append(skips, models.SkipRecord{
				Path:   f.Source.Path,
				Stage:  models.StageSequence,
				Reason: models.ReasonMissingTimestamp,
				Detail: "帧没有采集时间",
			})
			logger.Warn("帧缺少时间戳，排除", "file", f.Source.Name)
			continue
		}
		key := f.Timestamp.UnixNano()
		if first, dup := seen[key]; dup {
			skips = append(skips, models.SkipRecord{
				Path:   f.Source.Path,
				Stage:  models.StageSequence,
				Reason: models.ReasonDuplicateTimestamp,
				Detail: fmt.Sprintf("与 %s 的时间 %s 相同", first, f.Timestamp.Format(time.RFC3339)),
			})
			logger.Warn("帧时间戳重复，排除", "file", f.Source.Name, "first", first)
			continue
		}
		seen[key] = f.Source.Name
		kept = append(kept, f)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Timestamp.Before(kept[j].Timestamp)
	})

	seq := Sequence{Frames: kept}
	for i := range seq.Frames {
		seq.Frames[i].Index = i + 1
		seq.Frames[i].SequenceName = fmt.Sprintf("%0*d", IndexWidth, i+1)
		if i > 0 {
			prev := seq.Frames[i-1]
			cur := seq.Frames[i]
			if cur.PerceptualHash != "" && cur.PerceptualHash == prev.PerceptualHash {
				msg := fmt.Sprintf("帧 %s 与 %s 的感知哈希相同，可能是重复影像", cur.Source.Name, prev.Source.Name)
				seq.Warnings = append(seq.Warnings, msg)
				logger.Warn("相邻帧内容相同", "previous", prev.Source.Name, "current", cur.Source.Name)
			}
		}
	}
	return seq, skips
}

// Materialize 把序列帧以 <prefix>_0001.png 的形式放进 dir，返回编码器输入模式。
// dir 中原有的同前缀帧会被清掉，保证编号没有空洞。
func Materialize(seq Sequence, dir, prefix string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("无法创建序列目录: %w", err)
	}
	stale, _ := filepath.Glob(filepath.Join(dir, prefix+"_*.png"))
	for _, p := range stale {
		os.Remove(p)
	}
	for _, f := range seq.Frames {
		dst := filepath.Join(dir, FrameName(prefix, f.Index))
		if err := fileutil.LinkOrCopy(f.Path, dst); err != nil {
			return "", fmt.Errorf("放置序列帧 %s 失败: %w", dst, err)
		}
	}
	return filepath.Join(dir, fmt.Sprintf("%s_%%0%dd.png", prefix, IndexWidth)), nil
}

// FrameName 返回序列中第 index 帧的文件名。
func FrameName(prefix string, index int) string {
	return fmt.Sprintf("%s_%0*d.png", prefix, IndexWidth, index)
}

// Prefix 是年份序列帧的文件名前缀，例如 s2018。
func Prefix(year string) string {
	return "s" + year
}

// OutputName 返回视频文件名 <sensor>_<product>_<year>.<ext>，非 ASCII 字符会被音译。
func OutputName(sensor, product, year, ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		ext = "mp4"
	}
	parts := make([]string, 0, 3)
	for _, p := range []string{sensor, product, year} {
		p = strings.TrimSpace(unidecode.Unidecode(p))
		p = strings.ReplaceAll(p, " ", "-")
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "_") + "." + ext
}
