package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// 日级选择策略
const (
	DayPolicyPartial  = "partial"
	DayPolicyComplete = "complete"
)

// 定标策略
const (
	CalibrationFixed   = "fixed"
	CalibrationPerFile = "per-file"
)

// 目录存储驱动
const (
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
	DriverNone   = "none"
)

type BandRange struct {
	Min float64 `mapstructure:"min" yaml:"min" json:"min"`
	Max float64 `mapstructure:"max" yaml:"max" json:"max"`
}

// CompositeCalibration 是某一种合成产品三个波段的固定定标区间。
type CompositeCalibration struct {
	Red   BandRange `mapstructure:"red" yaml:"red" json:"red"`
	Green BandRange `mapstructure:"green" yaml:"green" json:"green"`
	Blue  BandRange `mapstructure:"blue" yaml:"blue" json:"blue"`
}

type CalibrationConfig struct {
	Policy     string                          `mapstructure:"policy" yaml:"policy" json:"policy"`
	Default    CompositeCalibration            `mapstructure:"default" yaml:"default" json:"default"`
	Composites map[string]CompositeCalibration `mapstructure:"composites" yaml:"composites" json:"composites"`
}

type AnnotationConfig struct {
	Label          string  `mapstructure:"label" yaml:"label" json:"label"`
	FontPath       string  `mapstructure:"fontPath" yaml:"fontPath" json:"fontPath"`
	FontSize       float64 `mapstructure:"fontSize" yaml:"fontSize" json:"fontSize"`
	FontColor      string  `mapstructure:"fontColor" yaml:"fontColor" json:"fontColor"`
	LogoPath       string  `mapstructure:"logoPath" yaml:"logoPath" json:"logoPath"`
	LogoSize       int     `mapstructure:"logoSize" yaml:"logoSize" json:"logoSize"`
	Margin         int     `mapstructure:"margin" yaml:"margin" json:"margin"`
	TimezoneLabel  string  `mapstructure:"timezoneLabel" yaml:"timezoneLabel" json:"timezoneLabel"`
	TimezoneOffset int     `mapstructure:"timezoneOffset" yaml:"timezoneOffset" json:"timezoneOffset"`
}

type ReprojectionConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Command   string `mapstructure:"command" yaml:"command" json:"command"`
	TargetSRS string `mapstructure:"targetSRS" yaml:"targetSRS" json:"targetSRS"`
}

type EncoderConfig struct {
	Command         string `mapstructure:"command" yaml:"command" json:"command"`
	InputFrameRate  int    `mapstructure:"inputFrameRate" yaml:"inputFrameRate" json:"inputFrameRate"`
	OutputFrameRate int    `mapstructure:"outputFrameRate" yaml:"outputFrameRate" json:"outputFrameRate"`
	Scale           int    `mapstructure:"scale" yaml:"scale" json:"scale"`
	Codec           string `mapstructure:"codec" yaml:"codec" json:"codec"`
	Extension       string `mapstructure:"extension" yaml:"extension" json:"extension"`
}

type PipelineConfig struct {
	InputRoot     string   `mapstructure:"inputRoot" yaml:"inputRoot" json:"inputRoot"`
	OutputRoot    string   `mapstructure:"outputRoot" yaml:"outputRoot" json:"outputRoot"`
	WorkspaceRoot string   `mapstructure:"workspaceRoot" yaml:"workspaceRoot" json:"workspaceRoot"`
	Sensor        string   `mapstructure:"sensor" yaml:"sensor" json:"sensor"`
	Products      []string `mapstructure:"products" yaml:"products" json:"products"`
	Years         []string `mapstructure:"years" yaml:"years" json:"years"`
	TargetHours   []int    `mapstructure:"targetHours" yaml:"targetHours" json:"targetHours"`
	DayPolicy     string   `mapstructure:"dayPolicy" yaml:"dayPolicy" json:"dayPolicy"`
	WorkerCount   int      `mapstructure:"workerCount" yaml:"workerCount" json:"workerCount"`
	YearWorkers   int      `mapstructure:"yearWorkers" yaml:"yearWorkers" json:"yearWorkers"`
	FrameCache    bool     `mapstructure:"frameCache" yaml:"frameCache" json:"frameCache"`
	KeepWorkspace bool     `mapstructure:"keepWorkspace" yaml:"keepWorkspace" json:"keepWorkspace"`
}

type ServerConfig struct {
	Port    string        `mapstructure:"port" yaml:"port" json:"port"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver" json:"driver"`
	URI    string `mapstructure:"uri" yaml:"uri" json:"-"`
	Name   string `mapstructure:"name" yaml:"name" json:"name"`
	Path   string `mapstructure:"path" yaml:"path" json:"path"`
}

type LoggerConfig struct {
	Level  string `mapstructure:"level" yaml:"level" json:"level"`
	Format string `mapstructure:"format" yaml:"format" json:"format"`
	// Path 不为空时，日志同时写入该目录下的 animator.log。
	Path string `mapstructure:"path" yaml:"path" json:"path"`
}

type Config struct {
	Server       ServerConfig       `mapstructure:"server" yaml:"server" json:"server"`
	Database     DatabaseConfig     `mapstructure:"database" yaml:"database" json:"database"`
	Logger       LoggerConfig       `mapstructure:"logger" yaml:"logger" json:"logger"`
	Pipeline     PipelineConfig     `mapstructure:"pipeline" yaml:"pipeline" json:"pipeline"`
	Calibration  CalibrationConfig  `mapstructure:"calibration" yaml:"calibration" json:"calibration"`
	Annotation   AnnotationConfig   `mapstructure:"annotation" yaml:"annotation" json:"annotation"`
	Reprojection ReprojectionConfig `mapstructure:"reprojection" yaml:"reprojection" json:"reprojection"`
	Encoder      EncoderConfig      `mapstructure:"encoder" yaml:"encoder" json:"encoder"`
}

var C *Config

// LoadConfig 从 path 目录读取 config.yaml，同目录下的 .env 会先被载入环境变量。
// 结果同时保存在全局的 C 中。
func LoadConfig(path string) (*Config, error) {
	envFile := filepath.Join(path, ".env")
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("无法加载 %s: %w", envFile, err)
		}
	}

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.SetEnvPrefix("ANIMATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("读取配置失败: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	C = cfg
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.timeout", 30*time.Second)

	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.name", "cloud_animator")
	v.SetDefault("database.path", "./data/catalog.db")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "text")

	v.SetDefault("pipeline.inputRoot", "./input")
	v.SetDefault("pipeline.outputRoot", "./output")
	v.SetDefault("pipeline.workspaceRoot", "./tmp")
	v.SetDefault("pipeline.sensor", "GOES16_ABI")
	v.SetDefault("pipeline.products", []string{"DayLandCloudFire"})
	v.SetDefault("pipeline.targetHours", []int{11, 13, 15})
	v.SetDefault("pipeline.dayPolicy", DayPolicyPartial)
	v.SetDefault("pipeline.workerCount", runtime.NumCPU())
	v.SetDefault("pipeline.yearWorkers", 1)
	v.SetDefault("pipeline.frameCache", true)

	v.SetDefault("calibration.policy", CalibrationFixed)
	for _, band := range []string{"red", "green", "blue"} {
		v.SetDefault("calibration.default."+band+".min", 0.0)
		v.SetDefault("calibration.default."+band+".max", 255.0)
	}

	v.SetDefault("annotation.label", "GOES-16 ABI")
	v.SetDefault("annotation.fontSize", 28.0)
	v.SetDefault("annotation.fontColor", "#FFFFFF")
	v.SetDefault("annotation.logoSize", 120)
	v.SetDefault("annotation.margin", 20)
	v.SetDefault("annotation.timezoneLabel", "GMT-6")
	v.SetDefault("annotation.timezoneOffset", -6)

	v.SetDefault("reprojection.enabled", true)
	v.SetDefault("reprojection.command", "gdalwarp")
	v.SetDefault("reprojection.targetSRS", "EPSG:6372")

	v.SetDefault("encoder.command", "ffmpeg")
	v.SetDefault("encoder.inputFrameRate", 1)
	v.SetDefault("encoder.outputFrameRate", 24)
	v.SetDefault("encoder.scale", 1080)
	v.SetDefault("encoder.codec", "libx264")
	v.SetDefault("encoder.extension", "mp4")
}

// Validate 检查配置中会让流水线产生错误结果的组合。
func (c *Config) Validate() error {
	p := c.Pipeline
	if strings.TrimSpace(p.InputRoot) == "" || strings.TrimSpace(p.OutputRoot) == "" || strings.TrimSpace(p.WorkspaceRoot) == "" {
		return errors.New("配置错误: inputRoot、outputRoot 与 workspaceRoot 均不能为空")
	}
	for _, product := range p.Products {
		if err := ValidProductName(product); err != nil {
			return err
		}
	}
	if len(p.TargetHours) == 0 {
		return errors.New("配置错误: targetHours 不能为空")
	}
	seen := make(map[int]bool, len(p.TargetHours))
	for _, h := range p.TargetHours {
		if h < 0 || h > 23 {
			return fmt.Errorf("配置错误: 目标小时 %d 超出 0-23", h)
		}
		if seen[h] {
			return fmt.Errorf("配置错误: 目标小时 %d 重复", h)
		}
		seen[h] = true
	}
	switch p.DayPolicy {
	case DayPolicyPartial, DayPolicyComplete:
	default:
		return fmt.Errorf("配置错误: 未知的 dayPolicy '%s'", p.DayPolicy)
	}
	switch c.Calibration.Policy {
	case CalibrationFixed, CalibrationPerFile:
	default:
		return fmt.Errorf("配置错误: 未知的定标策略 '%s'", c.Calibration.Policy)
	}
	if err := c.Calibration.Default.check("default"); err != nil {
		return err
	}
	for name, cal := range c.Calibration.Composites {
		if err := cal.check(name); err != nil {
			return err
		}
	}
	if c.Encoder.InputFrameRate <= 0 || c.Encoder.OutputFrameRate <= 0 {
		return errors.New("配置错误: 帧率必须为正数")
	}
	if c.Encoder.Scale < 0 {
		return errors.New("配置错误: encoder.scale 不能为负数")
	}
	switch c.Database.Driver {
	case DriverSQLite, DriverMongo, DriverNone:
	default:
		return fmt.Errorf("配置错误: 未知的数据库驱动 '%s'", c.Database.Driver)
	}
	return nil
}

// ValidProductName 检查产品名能否直接用作目录名。以点开头的名字留给工作区内部目录。
func ValidProductName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return errors.New("配置错误: 产品名不能为空")
	case strings.HasPrefix(name, "."):
		return fmt.Errorf("配置错误: 产品名 '%s' 不能以 '.' 开头", name)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("配置错误: 产品名 '%s' 不能包含路径分隔符", name)
	}
	return nil
}

func (cc CompositeCalibration) check(name string) error {
	for _, r := range []BandRange{cc.Red, cc.Green, cc.Blue} {
		if r.Max < r.Min {
			return fmt.Errorf("配置错误: 合成产品 '%s' 的定标区间 max(%g) < min(%g)", name, r.Max, r.Min)
		}
	}
	return nil
}

// CalibrationFor 返回合成产品的定标区间；viper 会把 map 的键转为小写，所以这里忽略大小写。
func (c CalibrationConfig) CalibrationFor(composite string) CompositeCalibration {
	key := strings.ToLower(strings.TrimSpace(composite))
	for name, cal := range c.Composites {
		if strings.ToLower(name) == key {
			return cal
		}
	}
	return c.Default
}

// Location 返回文件名中本地时间所使用的固定时区。
func (a AnnotationConfig) Location() *time.Location {
	return time.FixedZone(a.TimezoneLabel, a.TimezoneOffset*3600)
}

// WorkerCountOrDefault 返回有效的并发数。
func (p PipelineConfig) WorkerCountOrDefault() int {
	if p.WorkerCount <= 0 {
		return runtime.NumCPU()
	}
	return p.WorkerCount
}
