package models

import (
	"time"
)

// RasterFile 代表一次卫星合成影像的采集，所有时间信息都来自文件名。
type RasterFile struct {
	// Path 是原始文件的完整路径。
	Path string `bson:"path" json:"path" yaml:"path"`

	// Name 是文件名（不含目录）。
	Name string `bson:"name" json:"name" yaml:"name"`

	// Satellite 取自文件名第 3 个字段，例如 G16。
	Satellite string `bson:"satellite,omitempty" json:"satellite,omitempty" yaml:"satellite,omitempty"`

	// Product 是合成产品名，例如 DayLandCloudFire。
	Product string `bson:"product,omitempty" json:"product,omitempty" yaml:"product,omitempty"`

	// AcquiredAt 是本地采集时间，时区为配置中的固定时区。
	AcquiredAt time.Time `bson:"acquiredAt" json:"acquiredAt" yaml:"acquiredAt"`
}

// Date 返回 YYYY-MM-DD 形式的采集日期。
func (r RasterFile) Date() string {
	return r.AcquiredAt.Format("2006-01-02")
}

// Clock 返回 HH:MM 形式的本地采集时刻。
func (r RasterFile) Clock() string {
	return r.AcquiredAt.Format("15:04")
}

func (r RasterFile) Hour() int {
	return r.AcquiredAt.Hour()
}

// Frame 是一帧已经合成并加注的 RGB 图像，像素数据已写入 Path 指向的 PNG。
type Frame struct {
	Source         RasterFile
	Timestamp      time.Time
	Path           string
	Index          int
	SequenceName   string
	PerceptualHash string
	Cached         bool
	Annotated      bool
}

// RunState 是单个年份处理过程的状态。
type RunState string

const (
	StateDiscover       RunState = "discover"
	StateSelect         RunState = "select"
	StateCompose        RunState = "compose"
	StateSort           RunState = "sort"
	StateRenumber       RunState = "renumber"
	StateHandoff        RunState = "handoff"
	StateCleanup        RunState = "cleanup"
	StateCompleted      RunState = "completed"
	StateCompletedEmpty RunState = "completed_empty"
	StateFailed         RunState = "failed"
)

// Terminal 报告状态是否为终止状态。
func (s RunState) Terminal() bool {
	return s == StateCompleted || s == StateCompletedEmpty || s == StateFailed
}

// 跳过发生的阶段
const (
	StageSelect    = "select"
	StageReproject = "reproject"
	StageRead      = "read"
	StageCompose   = "compose"
	StageAnnotate  = "annotate"
	StageSequence  = "sequence"
)

// SkipRecord 记录一帧被跳过的原因，属于可恢复的单帧错误。
type SkipRecord struct {
	Path   string `bson:"path" json:"path" yaml:"path"`
	Stage  string `bson:"stage" json:"stage" yaml:"stage"`
	Reason string `bson:"reason" json:"reason" yaml:"reason"`
	Detail string `bson:"detail,omitempty" json:"detail,omitempty" yaml:"detail,omitempty"`
}

// YearReport 是一个 (产品, 年份) 处理结束后的汇总。
type YearReport struct {
	RunID       string       `bson:"runId" json:"runId" yaml:"runId"`
	Sensor      string       `bson:"sensor" json:"sensor" yaml:"sensor"`
	Product     string       `bson:"product" json:"product" yaml:"product"`
	Year        string       `bson:"year" json:"year" yaml:"year"`
	State       RunState     `bson:"state" json:"state" yaml:"state"`
	Discovered  int          `bson:"discovered" json:"discovered" yaml:"discovered"`
	Selected    int          `bson:"selected" json:"selected" yaml:"selected"`
	Composed    int          `bson:"composed" json:"composed" yaml:"composed"`
	Sequenced   int          `bson:"sequenced" json:"sequenced" yaml:"sequenced"`
	CacheHits   int          `bson:"cacheHits" json:"cacheHits" yaml:"cacheHits"`
	Skips       []SkipRecord `bson:"skips" json:"skips" yaml:"skips,omitempty"`
	Warnings    []string     `bson:"warnings" json:"warnings" yaml:"warnings,omitempty"`
	Calibration string       `bson:"calibration" json:"calibration" yaml:"calibration"`
	Output      string       `bson:"output,omitempty" json:"output,omitempty" yaml:"output,omitempty"`
	Thumbnail   string       `bson:"thumbnail,omitempty" json:"thumbnail,omitempty" yaml:"-"`
	EncodeError string       `bson:"encodeError,omitempty" json:"encodeError,omitempty" yaml:"encodeError,omitempty"`
	StartedAt   time.Time    `bson:"startedAt" json:"startedAt" yaml:"startedAt"`
	FinishedAt  time.Time    `bson:"finishedAt" json:"finishedAt" yaml:"finishedAt"`
}

// SkipCounts 按原因统计跳过的帧数。
func (r *YearReport) SkipCounts() map[string]int {
	counts := make(map[string]int)
	for _, s := range r.Skips {
		counts[s.Reason]++
	}
	return counts
}

// FrameRecord 是目录库中已排序帧的一条记录。
type FrameRecord struct {
	RunID          string    `bson:"runId" json:"runId"`
	Product        string    `bson:"product" json:"product"`
	Year           string    `bson:"year" json:"year"`
	Index          int       `bson:"index" json:"index"`
	SequenceName   string    `bson:"sequenceName" json:"sequenceName"`
	SourceName     string    `bson:"sourceName" json:"sourceName"`
	AcquiredAt     time.Time `bson:"acquiredAt" json:"acquiredAt"`
	PerceptualHash string    `bson:"perceptualHash,omitempty" json:"perceptualHash,omitempty"`
}
