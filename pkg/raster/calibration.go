package raster

import (
	"fmt"

	"Cloud_Animator/config"
)

// Policy 决定归一化区间的来源。
type Policy string

const (
	// PolicyFixed 对整年所有帧使用同一组按合成产品配置的区间。
	PolicyFixed Policy = config.CalibrationFixed
	// PolicyPerFile 对每个文件读取实际的波段极值。
	PolicyPerFile Policy = config.CalibrationPerFile
)

// Calibration 在一次年度运行开始时解析一次，之后只读。
type Calibration struct {
	Composite string
	Policy    Policy
	Ranges    [3]BandStatistics
}

// ResolveCalibration 根据配置为某个合成产品确定定标策略和固定区间。
func ResolveCalibration(cfg config.CalibrationConfig, composite string) (Calibration, error) {
	policy := Policy(cfg.Policy)
	if policy == "" {
		policy = PolicyFixed
	}
	if policy != PolicyFixed && policy != PolicyPerFile {
		return Calibration{}, fmt.Errorf("未知的定标策略 '%s'", cfg.Policy)
	}
	cc := cfg.CalibrationFor(composite)
	return Calibration{
		Composite: composite,
		Policy:    policy,
		Ranges: [3]BandStatistics{
			{Min: cc.Red.Min, Max: cc.Red.Max},
			{Min: cc.Green.Min, Max: cc.Green.Max},
			{Min: cc.Blue.Min, Max: cc.Blue.Max},
		},
	}, nil
}

// RangesFor 返回用于归一化 bands 的三个区间。
func (c Calibration) RangesFor(bands *Bands) [3]BandStatistics {
	if c.Policy == PolicyPerFile {
		return bands.Statistics()
	}
	return c.Ranges
}

// Apply 把三个波段按定标区间归一化为 8 位通道。
func (c Calibration) Apply(bands *Bands) [3][]uint8 {
	ranges := c.RangesFor(bands)
	all := bands.All()
	var out [3][]uint8
	for i := range all {
		out[i] = Normalize(all[i], ranges[i].Min, ranges[i].Max)
	}
	return out
}

// String 用于报告和缓存指纹。
func (c Calibration) String() string {
	if c.Policy == PolicyPerFile {
		return string(PolicyPerFile)
	}
	r := c.Ranges
	return fmt.Sprintf("%s[%g,%g|%g,%g|%g,%g]", c.Policy, r[0].Min, r[0].Max, r[1].Min, r[1].Max, r[2].Min, r[2].Max)
}
