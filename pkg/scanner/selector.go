package scanner

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"Cloud_Animator/config"
	"Cloud_Animator/internal/models"
	"Cloud_Animator/pkg/raster"
)

// DayPolicy 决定缺少部分目标小时的日期如何处理。
type DayPolicy string

const (
	// DayPolicyPartial 保留缺小时的日期已选中的文件。
	DayPolicyPartial DayPolicy = config.DayPolicyPartial
	// DayPolicyComplete 丢弃没有凑齐所有目标小时的日期。
	DayPolicyComplete DayPolicy = config.DayPolicyComplete
)

// Selection 是一个年份目录的选择结果。
type Selection struct {
	// Candidates 按日期目录、文件名排序。
	Candidates []models.RasterFile
	// Discovered 是年份目录下找到的栅格文件总数。
	Discovered int
	// Days 是至少贡献了一个文件的日期数。
	Days  int
	Skips []models.SkipRecord
}

// DaySelector 从一个年份目录（每天一个子目录）中为每天的每个目标小时挑出至多一个文件。
type DaySelector interface {
	Select(yearDir string) (Selection, error)
}

type hourSelector struct {
	hours  []int
	want   map[int]bool
	policy DayPolicy
	loc    *time.Location
	logger *slog.Logger
}

// NewSelector 创建按小时选择的选择器。
func NewSelector(hours []int, policy DayPolicy, loc *time.Location, logger *slog.Logger) DaySelector {
	if logger == nil {
		logger = slog.Default()
	}
	if policy == "" {
		policy = DayPolicyPartial
	}
	want := make(map[int]bool, len(hours))
	for _, h := range hours {
		want[h] = true
	}
	return &hourSelector{
		hours:  append([]int(nil), hours...),
		want:   want,
		policy: policy,
		loc:    loc,
		logger: logger.With("stage", models.StageSelect),
	}
}

func (s *hourSelector) Select(yearDir string) (Selection, error) {
	var sel Selection
	entries, err := os.ReadDir(yearDir)
	if err != nil {
		return sel, fmt.Errorf("读取年份目录 %s 失败: %w", yearDir, err)
	}

	var days []string
	for _, e := range entries {
		if e.IsDir() {
			days = append(days, e.Name())
		} else if isRasterExtension(e.Name()) {
			s.logger.Debug("忽略年份目录下的散落文件", "file", e.Name())
		}
	}
	sort.Strings(days)

	for _, day := range days {
		picked, discovered, skips, err := s.selectDay(filepath.Join(yearDir, day))
		sel.Discovered += discovered
		sel.Skips = append(sel.Skips, skips...)
		if err != nil {
			// 单个日期目录不可读不影响其他日期
			s.logger.Warn("读取日期目录失败，跳过该日", "day", day, "error", err)
			continue
		}
		if len(picked) == 0 {
			continue
		}
		if s.policy == DayPolicyComplete && len(picked) < len(s.hours) {
			for _, rf := range picked {
				sel.Skips = append(sel.Skips, models.SkipRecord{
					Path:   rf.Path,
					Stage:  models.StageSelect,
					Reason: models.ReasonIncompleteDay,
					Detail: fmt.Sprintf("该日只有 %d/%d 个目标小时", len(picked), len(s.hours)),
				})
			}
			s.logger.Info("日期缺少目标小时，按 complete 策略丢弃", "day", day, "found", len(picked))
			continue
		}
		sel.Days++
		sel.Candidates = append(sel.Candidates, picked...)
	}
	return sel, nil
}

// selectDay 按文件名顺序扫描一天的文件，所有目标小时都找到后提前结束。
func (s *hourSelector) selectDay(dayDir string) ([]models.RasterFile, int, []models.SkipRecord, error) {
	entries, err := os.ReadDir(dayDir)
	if err != nil {
		return nil, 0, nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && isRasterExtension(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var (
		picked []models.RasterFile
		skips  []models.SkipRecord
	)
	filled := make(map[int]bool, len(s.hours))
	for _, name := range names {
		if len(filled) == len(s.want) {
			break
		}
		path := filepath.Join(dayDir, name)
		rf, err := raster.ParseFilenameIn(path, s.loc)
		if err != nil {
			skips = append(skips, models.NewSkip(path, models.StageSelect, err))
			s.logger.Warn("文件名不符合约定，跳过", "file", name, "error", err)
			continue
		}
		h := rf.Hour()
		if !s.want[h] || filled[h] {
			continue
		}
		filled[h] = true
		picked = append(picked, rf)
	}
	return picked, len(names), skips, nil
}

func isRasterExtension(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".tif", ".tiff", ".png", ".jpg", ".jpeg":
		return true
	default:
		return false
	}
}
