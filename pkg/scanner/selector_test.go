package scanner

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"Cloud_Animator/internal/models"
	"Cloud_Animator/pkg/logger"
)

var gmt6 = time.FixedZone("GMT-6", -6*3600)

func rasterName(date, clock string) string {
	return "OR_ABI-L2-MCMIPC-M3_G16_s" + date + "_" + clock + "CDMX_s" + date + "_0000UTC_DayLandCloudFire_Mex_Geo.tif"
}

func touch(t *testing.T, dir, name string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte("stub"), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestSelectOnePerDayHour(t *testing.T) {
	year := t.TempDir()
	day := filepath.Join(year, "186")
	for _, clock := range []string{"1015", "1101", "1130", "1358", "1300", "1500", "1559", "1700"} {
		touch(t, day, rasterName("20180705", clock))
	}
	touch(t, day, "notes.txt")
	touch(t, day, "broken_name.tif")

	sel, err := NewSelector([]int{11, 13, 15}, DayPolicyPartial, gmt6, logger.Discard()).Select(year)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	got := map[int]string{}
	for _, rf := range sel.Candidates {
		h := rf.Hour()
		if _, dup := got[h]; dup {
			t.Fatalf("more than one file selected for hour %d", h)
		}
		if h != 11 && h != 13 && h != 15 {
			t.Fatalf("selected file outside target hours: %s", rf.Name)
		}
		got[h] = rf.Clock()
	}
	// 按文件名排序后的第一个匹配
	want := map[int]string{11: "11:01", 13: "13:00", 15: "15:00"}
	for h, clock := range want {
		if got[h] != clock {
			t.Fatalf("hour %d picked %s, want %s", h, got[h], clock)
		}
	}
	if sel.Days != 1 {
		t.Fatalf("days = %d", sel.Days)
	}
	// broken_name.tif 在排序上位于所有 OR_ 文件之后，提前结束后不会被解析
	if sel.Discovered != 9 {
		t.Fatalf("discovered = %d, want 9", sel.Discovered)
	}
}

func TestSelectEarlyExitMatchesExhaustive(t *testing.T) {
	year := t.TempDir()
	day := filepath.Join(year, "001")
	for _, clock := range []string{"1100", "1300", "1500", "1510", "1120"} {
		touch(t, day, rasterName("20190101", clock))
	}
	sel, err := NewSelector([]int{11, 13, 15}, DayPolicyPartial, gmt6, logger.Discard()).Select(year)
	if err != nil {
		t.Fatal(err)
	}
	if len(sel.Candidates) != 3 {
		t.Fatalf("candidates = %d", len(sel.Candidates))
	}
	for _, rf := range sel.Candidates {
		if rf.AcquiredAt.Minute() != 0 {
			t.Fatalf("expected first match per hour, got %s", rf.Clock())
		}
	}
}

func TestSelectSkipsMalformedAndMissingHours(t *testing.T) {
	year := t.TempDir()
	touch(t, filepath.Join(year, "001"), "OR_ABI_G16_20180101_1100CDMX_x.tif")
	touch(t, filepath.Join(year, "001"), rasterName("20180101", "1305"))
	touch(t, filepath.Join(year, "002"), rasterName("20180102", "0900"))
	if err := os.MkdirAll(filepath.Join(year, "003"), 0o755); err != nil {
		t.Fatal(err)
	}

	sel, err := NewSelector([]int{11, 13, 15}, DayPolicyPartial, gmt6, logger.Discard()).Select(year)
	if err != nil {
		t.Fatal(err)
	}
	if len(sel.Candidates) != 1 || sel.Candidates[0].Clock() != "13:05" {
		t.Fatalf("candidates = %+v", sel.Candidates)
	}
	if sel.Days != 1 {
		t.Fatalf("days = %d, want 1 (days without matches contribute nothing)", sel.Days)
	}
	if len(sel.Skips) != 1 || sel.Skips[0].Reason != models.ReasonFilenameFormat {
		t.Fatalf("skips = %+v", sel.Skips)
	}
}

func TestSelectCompletePolicy(t *testing.T) {
	year := t.TempDir()
	for _, clock := range []string{"1100", "1300", "1500"} {
		touch(t, filepath.Join(year, "001"), rasterName("20180101", clock))
	}
	for _, clock := range []string{"1100", "1500"} {
		touch(t, filepath.Join(year, "002"), rasterName("20180102", clock))
	}

	sel, err := NewSelector([]int{11, 13, 15}, DayPolicyComplete, gmt6, logger.Discard()).Select(year)
	if err != nil {
		t.Fatal(err)
	}
	if len(sel.Candidates) != 3 || sel.Days != 1 {
		t.Fatalf("candidates = %d, days = %d", len(sel.Candidates), sel.Days)
	}
	incomplete := 0
	for _, s := range sel.Skips {
		if s.Reason == models.ReasonIncompleteDay {
			incomplete++
		}
	}
	if incomplete != 2 {
		t.Fatalf("incomplete_day skips = %d, want 2", incomplete)
	}
}

func TestSelectEmptyYear(t *testing.T) {
	sel, err := NewSelector([]int{11, 13, 15}, DayPolicyPartial, gmt6, logger.Discard()).Select(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if len(sel.Candidates) != 0 || sel.Discovered != 0 {
		t.Fatalf("unexpected selection %+v", sel)
	}
	if _, err := NewSelector([]int{11}, DayPolicyPartial, gmt6, nil).Select(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatalf("expected error for missing year dir")
	}
}
