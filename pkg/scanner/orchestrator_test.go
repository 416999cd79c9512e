package scanner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/disintegration/imaging"
	"golang.org/x/image/tiff"
	"gopkg.in/yaml.v3"

	"Cloud_Animator/config"
	"Cloud_Animator/internal/models"
	"Cloud_Animator/pkg/compositor"
	"Cloud_Animator/pkg/database"
	"Cloud_Animator/pkg/database/sqlite"
	"Cloud_Animator/pkg/external"
	"Cloud_Animator/pkg/logger"
	"Cloud_Animator/pkg/metrics"
	"Cloud_Animator/pkg/raster"
	"Cloud_Animator/pkg/workspace"
)

const testProduct = "DayLandCloudFire"

// fakeEncoder 记录每次调用看到的序列文件及其内容，工作区释放后仍可检查。
type fakeEncoder struct {
	mu       sync.Mutex
	jobs     []external.EncodeJob
	frames   [][]string
	contents [][][]byte
	fail     error
}

func (f *fakeEncoder) Encode(_ context.Context, job external.EncodeJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, job)
	var (
		names []string
		data  [][]byte
	)
	for i := 1; ; i++ {
		p := fmt.Sprintf(job.Pattern, i)
		b, err := os.ReadFile(p)
		if err != nil {
			break
		}
		names = append(names, p)
		data = append(data, b)
	}
	f.frames = append(f.frames, names)
	f.contents = append(f.contents, data)
	if f.fail != nil {
		return f.fail
	}
	return os.WriteFile(job.Output, []byte("video"), 0o644)
}

type failingTransform struct {
	bad string
}

func (t failingTransform) Reproject(ctx context.Context, src, dst, crs string) error {
	if filepath.Base(src) == t.bad {
		return &external.ReprojectionFailedError{Source: src, Err: errors.New("exit status 1")}
	}
	return external.Passthrough{}.Reproject(ctx, src, dst, crs)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	cfg := &config.Config{}
	cfg.Pipeline = config.PipelineConfig{
		InputRoot:     filepath.Join(root, "input"),
		OutputRoot:    filepath.Join(root, "output"),
		WorkspaceRoot: filepath.Join(root, "tmp"),
		Sensor:        "GOES16_ABI",
		Products:      []string{testProduct},
		TargetHours:   []int{11, 13, 15},
		DayPolicy:     config.DayPolicyPartial,
		WorkerCount:   3,
		YearWorkers:   2,
		FrameCache:    true,
	}
	full := config.BandRange{Min: 0, Max: 255}
	cfg.Calibration = config.CalibrationConfig{
		Policy:  config.CalibrationFixed,
		Default: config.CompositeCalibration{Red: full, Green: full, Blue: full},
	}
	cfg.Annotation = config.AnnotationConfig{
		Label:          "GOES-16",
		FontColor:      "#FFFFFF",
		Margin:         4,
		TimezoneLabel:  "GMT-6",
		TimezoneOffset: -6,
	}
	cfg.Encoder = config.EncoderConfig{InputFrameRate: 1, OutputFrameRate: 24, Scale: 1080, Codec: "libx264", Extension: "mp4"}
	return cfg
}

// writeRaster 写一个三波段 TIFF；seed 不同的文件像素和各波段极值都不同。
func writeRaster(t *testing.T, dir, name string, seed int) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	img := image.NewRGBA(image.Rect(0, 0, 96, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 96; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(20 + x + seed*25), G: uint8(40 + y + seed*10), B: uint8(60 + (x+y)/2 - seed*15), A: 255})
		}
	}
	p := filepath.Join(dir, name)
	f, err := os.Create(p)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := tiff.Encode(f, img, nil); err != nil {
		t.Fatal(err)
	}
	return p
}

func yearDir(cfg *config.Config, year string) string {
	return filepath.Join(cfg.Pipeline.InputRoot, testProduct, year)
}

func TestRunYearEndToEnd(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	day := filepath.Join(yearDir(cfg, "2018"), "186")
	// 故意打乱写入顺序
	for i, clock := range []string{"1500", "1101", "1358"} {
		writeRaster(t, day, rasterName("20180705", clock), i)
	}

	store, err := sqlite.NewStore(ctx, filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close(ctx)

	enc := &fakeEncoder{}
	m := metrics.New()
	o, err := NewOrchestrator(cfg, Deps{Transform: external.Passthrough{}, Encoder: enc, Store: store, Metrics: m}, logger.Discard())
	if err != nil {
		t.Fatal(err)
	}
	report, err := o.RunYear(ctx, testProduct, yearDir(cfg, "2018"))
	if err != nil {
		t.Fatalf("RunYear: %v", err)
	}
	if report.State != models.StateCompleted {
		t.Fatalf("state = %s, warnings %v, encode error %q", report.State, report.Warnings, report.EncodeError)
	}
	if report.Discovered != 3 || report.Selected != 3 || report.Sequenced != 3 || len(report.Skips) != 0 {
		t.Fatalf("report counts = %+v", report)
	}

	if len(enc.jobs) != 1 {
		t.Fatalf("encoder calls = %d, want 1", len(enc.jobs))
	}
	job := enc.jobs[0]
	wantOutput := filepath.Join(cfg.Pipeline.OutputRoot, testProduct, "2018", "GOES16_ABI_DayLandCloudFire_2018.mp4")
	if job.Output != wantOutput || report.Output != wantOutput {
		t.Fatalf("output = %s / %s", job.Output, report.Output)
	}
	// 输出目录由协调器创建，编码器只负责写文件
	if _, err := os.Stat(wantOutput); err != nil {
		t.Fatalf("encoder output not written: %v", err)
	}
	if filepath.Base(job.Pattern) != "s2018_%04d.png" {
		t.Fatalf("pattern = %s", job.Pattern)
	}
	if len(enc.frames[0]) != 3 {
		t.Fatalf("encoder saw %d frames", len(enc.frames[0]))
	}

	// 每一帧都应与不经缓存单独渲染的参考帧一致，且三帧的文字各不相同
	reference := referenceFrames(t, cfg)
	assertFramesMatch(t, enc.contents[0], reference)
	for i := 1; i < len(reference); i++ {
		if bytes.Equal(reference[i], reference[0]) {
			t.Fatalf("frame %04d identical to frame 0001", i+1)
		}
	}
	first, err := imaging.Decode(bytes.NewReader(enc.contents[0][0]))
	if err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	white := 0
	b := first.Bounds()
	for y := b.Max.Y / 2; y < b.Max.Y; y++ {
		for x := 0; x < b.Max.X; x++ {
			r, g, bl, _ := first.At(x, y).RGBA()
			if r == 0xffff && g == 0xffff && bl == 0xffff {
				white++
			}
		}
	}
	if white == 0 {
		t.Fatalf("frame 0001 carries no annotation")
	}

	_, records, err := database.ListFramesByYear(ctx, store, testProduct, "2018")
	if err != nil {
		t.Fatalf("ListFramesByYear: %v", err)
	}
	want := []string{"2018-07-05 11:01 GMT-6", "2018-07-05 13:58 GMT-6", "2018-07-05 15:00 GMT-6"}
	if len(records) != 3 {
		t.Fatalf("catalog frames = %d", len(records))
	}
	for i, rec := range records {
		if rec.SequenceName != fmt.Sprintf("%04d", i+1) {
			t.Fatalf("frame %d sequence name = %s", i, rec.SequenceName)
		}
		rf := models.RasterFile{AcquiredAt: rec.AcquiredAt.In(cfg.Annotation.Location())}
		if got := compositor.TimestampText(rf, "GMT-6"); got != want[i] {
			t.Fatalf("frame %d annotation = %q, want %q", i+1, got, want[i])
		}
	}

	data, err := os.ReadFile(filepath.Join(cfg.Pipeline.OutputRoot, testProduct, "2018", "GOES16_ABI_DayLandCloudFire_2018.yaml"))
	if err != nil {
		t.Fatalf("yaml report: %v", err)
	}
	var fromYAML models.YearReport
	if err := yaml.Unmarshal(data, &fromYAML); err != nil {
		t.Fatalf("parse yaml: %v", err)
	}
	if fromYAML.State != models.StateCompleted || fromYAML.Sequenced != 3 {
		t.Fatalf("yaml report = %+v", fromYAML)
	}

	saved, err := store.Reports().Get(ctx, testProduct, "2018")
	if err != nil || saved == nil || saved.Thumbnail == "" {
		t.Fatalf("catalog report missing or without cover: %v", err)
	}

	// 工作区在结束后被清理
	runs, _ := os.ReadDir(filepath.Join(cfg.Pipeline.WorkspaceRoot, testProduct, "2018"))
	if len(runs) != 0 {
		t.Fatalf("workspace not cleaned: %d entries", len(runs))
	}

	// 第二次运行命中帧缓存
	again, err := o.RunYear(ctx, testProduct, yearDir(cfg, "2018"))
	if err != nil {
		t.Fatal(err)
	}
	if again.CacheHits != 3 || again.State != models.StateCompleted {
		t.Fatalf("second run cache hits = %d, state %s", again.CacheHits, again.State)
	}
	assertFramesMatch(t, enc.contents[1], reference)
}

// referenceFrames 不经缓存、逐个渲染 2018-07-05 的三个输入，按时间顺序返回 PNG 内容。
func referenceFrames(t *testing.T, cfg *config.Config) [][]byte {
	t.Helper()
	plain := *cfg
	plain.Pipeline.FrameCache = false
	o, err := NewOrchestrator(&plain, Deps{Encoder: &fakeEncoder{}}, logger.Discard())
	if err != nil {
		t.Fatal(err)
	}
	comp, err := o.newCompositor(&yearRun{report: &models.YearReport{Product: testProduct}, logger: logger.Discard()})
	if err != nil {
		t.Fatal(err)
	}
	out := t.TempDir()
	day := filepath.Join(yearDir(cfg, "2018"), "186")
	var frames [][]byte
	for _, clock := range []string{"1101", "1358", "1500"} {
		src := filepath.Join(day, rasterName("20180705", clock))
		rf, err := raster.ParseFilenameIn(src, cfg.Annotation.Location())
		if err != nil {
			t.Fatal(err)
		}
		dst := filepath.Join(out, clock+".png")
		if _, err := comp.Render(context.Background(), rf, src, dst); err != nil {
			t.Fatalf("reference render %s: %v", clock, err)
		}
		data, err := os.ReadFile(dst)
		if err != nil {
			t.Fatal(err)
		}
		frames = append(frames, data)
	}
	return frames
}

func assertFramesMatch(t *testing.T, got, want [][]byte) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("encoder saw %d frames, want %d", len(got), len(want))
	}
	for i := range want {
		if !bytes.Equal(got[i], want[i]) {
			t.Fatalf("frame %04d differs from its reference rendering", i+1)
		}
	}
}

func TestRunYearEmpty(t *testing.T) {
	cfg := testConfig(t)
	if err := os.MkdirAll(filepath.Join(yearDir(cfg, "2017"), "001"), 0o755); err != nil {
		t.Fatal(err)
	}
	enc := &fakeEncoder{}
	o, _ := NewOrchestrator(cfg, Deps{Encoder: enc}, logger.Discard())
	report, err := o.RunYear(context.Background(), testProduct, yearDir(cfg, "2017"))
	if err != nil {
		t.Fatal(err)
	}
	if report.State != models.StateCompletedEmpty {
		t.Fatalf("state = %s", report.State)
	}
	if len(enc.jobs) != 0 {
		t.Fatalf("encoder must not be called for an empty year")
	}
}

func TestRunYearSkipsBadFrames(t *testing.T) {
	cfg := testConfig(t)
	cfg.Pipeline.FrameCache = false
	day := filepath.Join(yearDir(cfg, "2019"), "010")
	writeRaster(t, day, rasterName("20190110", "1100"), 0)
	bad := rasterName("20190110", "1300")
	writeRaster(t, day, bad, 1)
	if err := os.WriteFile(filepath.Join(day, rasterName("20190110", "1500")), []byte("not a tiff"), 0o644); err != nil {
		t.Fatal(err)
	}

	enc := &fakeEncoder{}
	o, _ := NewOrchestrator(cfg, Deps{Transform: failingTransform{bad: bad}, Encoder: enc}, logger.Discard())
	report, err := o.RunYear(context.Background(), testProduct, yearDir(cfg, "2019"))
	if err != nil {
		t.Fatal(err)
	}
	if report.State != models.StateCompleted || report.Sequenced != 1 {
		t.Fatalf("state = %s, sequenced = %d", report.State, report.Sequenced)
	}
	counts := report.SkipCounts()
	if counts[models.ReasonReprojectionFailed] != 1 || counts[models.ReasonUnreadableRaster] != 1 {
		t.Fatalf("skip counts = %v", counts)
	}
}

func TestRunYearEncoderFailureDoesNotStopOtherYears(t *testing.T) {
	cfg := testConfig(t)
	for _, year := range []string{"2018", "2019"} {
		writeRaster(t, filepath.Join(yearDir(cfg, year), "001"), rasterName(year+"0101", "1100"), 0)
	}
	if err := os.MkdirAll(filepath.Join(yearDir(cfg, "2020"), "001"), 0o755); err != nil {
		t.Fatal(err)
	}
	enc := &fakeEncoder{fail: &external.EncodingFailedError{Destination: "x", Err: errors.New("exit status 1")}}
	o, _ := NewOrchestrator(cfg, Deps{Encoder: enc}, logger.Discard())

	reports, err := o.RunAll(context.Background())
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if len(reports) != 3 {
		t.Fatalf("reports = %d", len(reports))
	}
	states := map[string]models.RunState{}
	for _, r := range reports {
		states[r.Year] = r.State
	}
	if states["2018"] != models.StateFailed || states["2019"] != models.StateFailed || states["2020"] != models.StateCompletedEmpty {
		t.Fatalf("states = %v", states)
	}
	for _, r := range reports {
		if r.State == models.StateFailed && r.EncodeError == "" {
			t.Fatalf("failed report without encode error: %+v", r)
		}
	}
	if len(enc.jobs) != 2 {
		t.Fatalf("encoder calls = %d", len(enc.jobs))
	}
}

func TestJobsFiltersYears(t *testing.T) {
	cfg := testConfig(t)
	for _, year := range []string{"2017", "2018", "2019"} {
		if err := os.MkdirAll(yearDir(cfg, year), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	o, _ := NewOrchestrator(cfg, Deps{Encoder: &fakeEncoder{}}, logger.Discard())
	jobs, err := o.Jobs(nil, []string{"2018"})
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 1 || jobs[0].Year != "2018" {
		t.Fatalf("jobs = %+v", jobs)
	}
	jobs, _ = o.Jobs([]string{".cache"}, nil)
	if len(jobs) != 0 {
		t.Fatalf("hidden product name should yield no jobs")
	}
	jobs, _ = o.Jobs([]string{"Missing"}, nil)
	if len(jobs) != 0 {
		t.Fatalf("missing product should yield no jobs")
	}
}

func TestRunYearLockedYear(t *testing.T) {
	cfg := testConfig(t)
	writeRaster(t, filepath.Join(yearDir(cfg, "2018"), "001"), rasterName("20180101", "1100"), 0)
	o, _ := NewOrchestrator(cfg, Deps{Encoder: &fakeEncoder{}}, logger.Discard())

	held, err := acquireForTest(cfg, "2018")
	if err != nil {
		t.Fatal(err)
	}
	defer held()

	report, err := o.RunYear(context.Background(), testProduct, yearDir(cfg, "2018"))
	if err != nil {
		t.Fatalf("locked year should not be fatal: %v", err)
	}
	if report.State != models.StateFailed || len(report.Warnings) == 0 {
		t.Fatalf("report = %+v", report)
	}
}

func acquireForTest(cfg *config.Config, year string) (func(), error) {
	ws, err := workspace.Acquire(cfg.Pipeline.WorkspaceRoot, testProduct, year, false)
	if err != nil {
		return nil, err
	}
	return func() { ws.Release() }, nil
}

type fatalRenderer struct {
	mu    sync.Mutex
	calls int
}

func (r *fatalRenderer) RenderAll(context.Context, RenderJob) (RenderResult, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	return RenderResult{}, fmt.Errorf("%w: disk full", models.ErrWorkspaceIO)
}

func TestRunStopsDispatchAfterFatalError(t *testing.T) {
	cfg := testConfig(t)
	cfg.Pipeline.YearWorkers = 1
	for _, year := range []string{"2017", "2018", "2019"} {
		writeRaster(t, filepath.Join(yearDir(cfg, year), "001"), rasterName(year+"0101", "1100"), 0)
	}
	enc := &fakeEncoder{}
	o, _ := NewOrchestrator(cfg, Deps{Encoder: enc}, logger.Discard())
	renderer := &fatalRenderer{}
	o.Renderer = renderer

	reports, err := o.RunAll(context.Background())
	if !errors.Is(err, models.ErrWorkspaceIO) {
		t.Fatalf("err = %v, want workspace error", err)
	}
	if len(reports) != 1 || reports[0].Year != "2017" || reports[0].State != models.StateFailed {
		t.Fatalf("reports = %+v, want only the year that ran", reports)
	}
	if renderer.calls != 1 || len(enc.jobs) != 0 {
		t.Fatalf("renderer calls = %d, encoder calls = %d", renderer.calls, len(enc.jobs))
	}
}
