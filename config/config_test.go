package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if got := cfg.Pipeline.TargetHours; len(got) != 3 || got[0] != 11 || got[1] != 13 || got[2] != 15 {
		t.Fatalf("target hours = %v", got)
	}
	if cfg.Pipeline.DayPolicy != DayPolicyPartial || cfg.Calibration.Policy != CalibrationFixed {
		t.Fatalf("policies = %s / %s", cfg.Pipeline.DayPolicy, cfg.Calibration.Policy)
	}
	if cfg.Reprojection.TargetSRS != "EPSG:6372" || cfg.Encoder.InputFrameRate != 1 {
		t.Fatalf("reprojection/encoder defaults = %+v / %+v", cfg.Reprojection, cfg.Encoder)
	}
	if cfg.Calibration.Default.Red.Max != 255 {
		t.Fatalf("default calibration = %+v", cfg.Calibration.Default)
	}
	if C != cfg {
		t.Fatal("LoadConfig must publish the global config")
	}
	_, offset := time.Now().In(cfg.Annotation.Location()).Zone()
	if offset != -6*3600 {
		t.Fatalf("offset = %d", offset)
	}
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	dir := writeConfig(t, `
pipeline:
  targetHours: [12]
  dayPolicy: complete
calibration:
  composites:
    DayLandCloudFire:
      red: {min: 10, max: 20}
      green: {min: 0, max: 255}
      blue: {min: 0, max: 255}
`)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("ANIMATOR_DATABASE_DRIVER=none\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("ANIMATOR_DATABASE_DRIVER") })

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if len(cfg.Pipeline.TargetHours) != 1 || cfg.Pipeline.TargetHours[0] != 12 {
		t.Fatalf("target hours = %v", cfg.Pipeline.TargetHours)
	}
	if cfg.Database.Driver != DriverNone {
		t.Fatalf("driver = %s, want value from .env", cfg.Database.Driver)
	}
	if cal := cfg.Calibration.CalibrationFor("DayLandCloudFire"); cal.Red.Min != 10 || cal.Red.Max != 20 {
		t.Fatalf("composite calibration = %+v", cal)
	}
	if cal := cfg.Calibration.CalibrationFor("Other"); cal.Red.Max != 255 {
		t.Fatalf("fallback calibration = %+v", cal)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"hour out of range", "pipeline:\n  targetHours: [24]\n", "0-23"},
		{"duplicate hour", "pipeline:\n  targetHours: [11, 11]\n", "重复"},
		{"unknown day policy", "pipeline:\n  dayPolicy: weekly\n", "dayPolicy"},
		{"unknown calibration", "calibration:\n  policy: auto\n", "定标策略"},
		{"inverted range", "calibration:\n  default:\n    red: {min: 200, max: 100}\n", "max"},
		{"bad driver", "database:\n  driver: postgres\n", "数据库驱动"},
		{"hidden product", "pipeline:\n  products: [.cache]\n", "'.'"},
		{"nested product", "pipeline:\n  products: [a/b]\n", "路径分隔符"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tc.body))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want mention of %q", err, tc.want)
			}
		})
	}
}
