package external

import (
	"fmt"
	"os/exec"
	"strings"

	"Cloud_Animator/config"
)

// Requirement 描述流水线依赖的一个外部程序。
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status 是一次可用性检查的结果。
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Requirements 根据配置列出需要检查的外部程序。关闭重投影时 gdalwarp 为可选。
func Requirements(cfg *config.Config) []Requirement {
	return []Requirement{
		{
			Name:        "GDAL",
			Command:     cfg.Reprojection.Command,
			Description: "重投影到 " + cfg.Reprojection.TargetSRS,
			Optional:    !cfg.Reprojection.Enabled,
		},
		{
			Name:        "FFmpeg",
			Command:     cfg.Encoder.Command,
			Description: "编码年度视频",
		},
	}
}

// CheckBinaries 在 PATH 中查找每个程序。
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		switch {
		case cmd == "":
			status.Detail = "未配置命令"
		default:
			if _, err := exec.LookPath(cmd); err != nil {
				status.Detail = fmt.Sprintf("找不到程序 %q", cmd)
			} else {
				status.Available = true
			}
		}
		results = append(results, status)
	}
	return results
}

// Missing 返回不可用且非可选的依赖。
func Missing(statuses []Status) []Status {
	var out []Status
	for _, s := range statuses {
		if !s.Available && !s.Optional {
			out = append(out, s)
		}
	}
	return out
}
