package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"Cloud_Animator/config"
	"Cloud_Animator/internal/models"
	"Cloud_Animator/pkg/compositor"
	"Cloud_Animator/pkg/database"
	"Cloud_Animator/pkg/external"
	"Cloud_Animator/pkg/logger"
	"Cloud_Animator/pkg/metrics"
	"Cloud_Animator/pkg/raster"
	"Cloud_Animator/pkg/sequence"
	"Cloud_Animator/pkg/workspace"
)

// Deps 是协调器的外部协作者，为空的字段按配置创建默认实现。
type Deps struct {
	Transform external.RasterTransform
	Encoder   external.VideoEncoder
	Store     database.Store
	Metrics   *metrics.Metrics
}

// Orchestrator 按 产品 → 年份 驱动整条流水线。
type Orchestrator struct {
	cfg       *config.Config
	Selector  DaySelector
	Renderer  FrameRenderer
	Encoder   external.VideoEncoder
	Ingestor  ReportIngestor
	Metrics   *metrics.Metrics
	transform string
	logger    *slog.Logger
}

// NewOrchestrator 依次创建所有阶段模块。
func NewOrchestrator(cfg *config.Config, deps Deps, log *slog.Logger) (*Orchestrator, error) {
	if log == nil {
		log = slog.Default()
	}
	log.Info("初始化动画协调器 (Orchestrator)...")

	transform := deps.Transform
	targetSRS := ""
	if cfg.Reprojection.Enabled {
		targetSRS = cfg.Reprojection.TargetSRS
		if transform == nil {
			transform = external.NewGDALWarp(cfg.Reprojection.Command)
		}
	} else if transform == nil {
		transform = external.Passthrough{}
	}
	encoder := deps.Encoder
	if encoder == nil {
		encoder = external.NewFFmpeg(cfg.Encoder.Command)
	}

	o := &Orchestrator{
		cfg:       cfg,
		Selector:  NewSelector(cfg.Pipeline.TargetHours, DayPolicy(cfg.Pipeline.DayPolicy), cfg.Annotation.Location(), log),
		Renderer:  NewRenderer(transform, targetSRS, cfg.Pipeline.WorkerCountOrDefault(), log),
		Encoder:   encoder,
		Ingestor:  NewIngestor(deps.Store, log),
		Metrics:   deps.Metrics,
		transform: "srs=" + targetSRS,
		logger:    log,
	}
	log.Info("动画协调器初始化成功。", "workers", cfg.Pipeline.WorkerCountOrDefault(), "yearWorkers", cfg.Pipeline.YearWorkers)
	return o, nil
}

// YearJob 是一个待处理的 (产品, 年份目录)。
type YearJob struct {
	Product string
	Year    string
	Dir     string
}

// Jobs 列出输入目录下 <product>/<year> 形式的全部年份，products 或 years 为空表示不过滤年份、使用配置中的产品。
func (o *Orchestrator) Jobs(products, years []string) ([]YearJob, error) {
	if len(products) == 0 {
		products = o.cfg.Pipeline.Products
	}
	if len(years) == 0 {
		years = o.cfg.Pipeline.Years
	}
	var jobs []YearJob
	for _, product := range products {
		if err := config.ValidProductName(product); err != nil {
			o.logger.Warn("产品名不可用，跳过", "product", product, "error", err)
			continue
		}
		productDir := filepath.Join(o.cfg.Pipeline.InputRoot, product)
		entries, err := os.ReadDir(productDir)
		if err != nil {
			if os.IsNotExist(err) {
				o.logger.Warn("产品目录不存在，跳过", "product", product, "dir", productDir)
				continue
			}
			return nil, fmt.Errorf("读取产品目录 %s 失败: %w", productDir, err)
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			if len(years) > 0 && !slices.Contains(years, e.Name()) {
				continue
			}
			jobs = append(jobs, YearJob{Product: product, Year: e.Name(), Dir: filepath.Join(productDir, e.Name())})
		}
	}
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].Product != jobs[j].Product {
			return jobs[i].Product < jobs[j].Product
		}
		return jobs[i].Year < jobs[j].Year
	})
	return jobs, nil
}

// RunAll 处理配置中的全部产品和年份。
func (o *Orchestrator) RunAll(ctx context.Context) ([]models.YearReport, error) {
	return o.Run(ctx, nil, nil)
}

// Run 处理指定的产品和年份。年份之间互不影响，只有工作区写入失败或 ctx 取消会中止整个运行；
// 此时已完成年份的报告仍会返回。
func (o *Orchestrator) Run(ctx context.Context, products, years []string) ([]models.YearReport, error) {
	o.logger.Info("--- 任务开始：扫描输入目录 ---", "input", o.cfg.Pipeline.InputRoot)
	jobs, err := o.Jobs(products, years)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		o.logger.Info("没有找到需要处理的年份，任务结束。")
		return nil, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	workers := o.cfg.Pipeline.YearWorkers
	if workers <= 0 {
		workers = 1
	}
	workers = min(workers, len(jobs))

	reports := make([]*models.YearReport, len(jobs))
	tasks := make(chan int)
	var (
		wg       sync.WaitGroup
		fatalMu  sync.Mutex
		fatalErr error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range tasks {
				// 取消后才收到的年份不运行，也不出现在报告中
				if ctx.Err() != nil {
					continue
				}
				job := jobs[idx]
				report, err := o.RunYear(ctx, job.Product, job.Dir)
				reports[idx] = &report
				if err != nil {
					fatalMu.Lock()
					if fatalErr == nil {
						fatalErr = err
						cancel()
					}
					fatalMu.Unlock()
				}
			}
		}()
	}
dispatch:
	for idx := range jobs {
		select {
		case <-ctx.Done():
			break dispatch
		case tasks <- idx:
		}
	}
	close(tasks)
	wg.Wait()

	var out []models.YearReport
	for _, r := range reports {
		if r != nil {
			out = append(out, *r)
		}
	}
	if fatalErr != nil {
		o.logger.Error("运行中止", "error", fatalErr)
		return out, fatalErr
	}
	o.logger.Info("🎉 全部年份处理完成。", "years", len(out))
	return out, nil
}

// yearRun 保存单个年份状态机的运行数据。
type yearRun struct {
	report  *models.YearReport
	logger  *slog.Logger
	ws      *workspace.Workspace
	seq     sequence.Sequence
	yearDir string
	outDir  string
}

func (y *yearRun) enter(state models.RunState) {
	y.report.State = state
	y.logger.Debug("进入状态", "state", state)
}

func (y *yearRun) warn(msg string) {
	y.report.Warnings = append(y.report.Warnings, msg)
}

// RunYear 驱动一个年份的状态机：
// Discover → Select → Compose → Sort → Renumber → Handoff → Cleanup。
// 返回的报告总是处于终止状态；返回的错误只表示致命的工作区错误或取消。
func (o *Orchestrator) RunYear(ctx context.Context, product, yearDir string) (models.YearReport, error) {
	year := filepath.Base(yearDir)
	report := models.YearReport{
		RunID:     uuid.NewString(),
		Sensor:    o.cfg.Pipeline.Sensor,
		Product:   product,
		Year:      year,
		StartedAt: time.Now(),
	}
	run := &yearRun{
		report:  &report,
		logger:  logger.ForYear(o.logger, product, year),
		yearDir: yearDir,
		outDir:  filepath.Join(o.cfg.Pipeline.OutputRoot, product, year),
	}
	o.Metrics.YearStarted()

	fatal := o.drive(ctx, run)

	if run.report.State != models.StateCompleted && run.report.State != models.StateCompletedEmpty {
		run.report.State = models.StateFailed
	}
	run.report.FinishedAt = time.Now()
	o.cleanup(ctx, run)
	o.Metrics.YearFinished(product, string(run.report.State))

	counts := run.report.SkipCounts()
	run.logger.Info("年份处理结束",
		"state", run.report.State,
		"discovered", run.report.Discovered,
		"selected", run.report.Selected,
		"sequenced", run.report.Sequenced,
		"skipped", len(run.report.Skips),
		"skipReasons", counts,
	)
	return report, fatal
}

// drive 执行到 Handoff 为止的各个状态，最终状态写入 run.report.State。
func (o *Orchestrator) drive(ctx context.Context, run *yearRun) error {
	report := run.report

	// Discover
	run.enter(models.StateDiscover)
	ws, err := workspace.Acquire(o.cfg.Pipeline.WorkspaceRoot, report.Product, report.Year, o.cfg.Pipeline.KeepWorkspace)
	if err != nil {
		if errors.Is(err, workspace.ErrLocked) {
			run.warn(err.Error())
			run.logger.Warn("年份已被其他运行锁定", "error", err)
			return nil
		}
		return err
	}
	run.ws = ws
	report.RunID = ws.RunID

	// Select
	run.enter(models.StateSelect)
	sel, err := o.Selector.Select(run.yearDir)
	if err != nil {
		run.warn(err.Error())
		run.logger.Error("选择阶段失败", "error", err)
		return nil
	}
	report.Discovered = sel.Discovered
	report.Selected = len(sel.Candidates)
	o.addSkips(run, sel.Skips)
	o.Metrics.AddDiscovered(report.Product, sel.Discovered)
	run.logger.Info("选择完成", "discovered", sel.Discovered, "selected", len(sel.Candidates), "days", sel.Days)
	if len(sel.Candidates) == 0 {
		run.enter(models.StateCompletedEmpty)
		return nil
	}

	// Compose
	run.enter(models.StateCompose)
	comp, err := o.newCompositor(run)
	if err != nil {
		run.warn(err.Error())
		return nil
	}
	result, err := o.Renderer.RenderAll(ctx, RenderJob{
		Candidates:       sel.Candidates,
		Compositor:       comp,
		ReprojectedDir:   ws.Reprojected,
		FramesDir:        ws.Frames,
		KeepIntermediate: o.cfg.Pipeline.KeepWorkspace,
		OnFrame: func(frame *models.Frame, _ *models.SkipRecord) {
			if frame != nil {
				o.Metrics.IncComposed(report.Product, frame.Cached)
			}
		},
	})
	if err != nil {
		run.warn(err.Error())
		return err
	}
	report.Composed = len(result.Frames)
	for _, f := range result.Frames {
		if f.Cached {
			report.CacheHits++
		}
	}
	o.addSkips(run, result.Skips)

	// Sort / Renumber
	run.enter(models.StateSort)
	seq, skips := sequence.Assemble(result.Frames, run.logger)
	o.addSkips(run, skips)
	run.enter(models.StateRenumber)
	run.seq = seq
	report.Sequenced = seq.Len()
	report.Warnings = append(report.Warnings, seq.Warnings...)
	if seq.Len() == 0 {
		run.warn("所有选中的文件都未能合成，没有可编码的帧")
		return nil
	}

	// Handoff
	run.enter(models.StateHandoff)
	pattern, err := sequence.Materialize(seq, ws.Sequence, sequence.Prefix(report.Year))
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrWorkspaceIO, err)
	}
	if err := os.MkdirAll(run.outDir, 0o755); err != nil {
		return fmt.Errorf("%w: 创建输出目录 %s: %v", models.ErrWorkspaceIO, run.outDir, err)
	}
	output := filepath.Join(run.outDir, sequence.OutputName(report.Sensor, report.Product, report.Year, o.cfg.Encoder.Extension))
	job := external.EncodeJob{
		Pattern:         pattern,
		Output:          output,
		InputFrameRate:  o.cfg.Encoder.InputFrameRate,
		OutputFrameRate: o.cfg.Encoder.OutputFrameRate,
		Height:          o.cfg.Encoder.Scale,
		Codec:           o.cfg.Encoder.Codec,
	}
	run.logger.Info("开始编码", "frames", seq.Len(), "output", output)
	if err := o.Encoder.Encode(ctx, job); err != nil {
		report.EncodeError = err.Error()
		o.Metrics.IncEncode(report.Product, "failure")
		run.logger.Error("编码失败", "error", err)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return nil
	}
	o.Metrics.IncEncode(report.Product, "success")
	report.Output = output
	run.enter(models.StateCompleted)
	return nil
}

func (o *Orchestrator) newCompositor(run *yearRun) (*compositor.Compositor, error) {
	cal, err := raster.ResolveCalibration(o.cfg.Calibration, run.report.Product)
	if err != nil {
		return nil, err
	}
	run.report.Calibration = cal.String()

	var cache *compositor.FrameCache
	if o.cfg.Pipeline.FrameCache {
		cache, err = compositor.NewFrameCache(workspace.CacheDir(o.cfg.Pipeline.WorkspaceRoot))
		if err != nil {
			run.logger.Warn("帧缓存不可用", "error", err)
			cache = nil
		}
	}

	a := o.cfg.Annotation
	comp, warnings := compositor.New(compositor.Options{
		Calibration: cal,
		Annotation: compositor.AnnotationOptions{
			Label:         a.Label,
			FontPath:      a.FontPath,
			FontSize:      a.FontSize,
			Color:         a.FontColor,
			TimezoneLabel: a.TimezoneLabel,
			Margin:        a.Margin,
		},
		LogoPath:         a.LogoPath,
		LogoSize:         a.LogoSize,
		Cache:            cache,
		FingerprintExtra: []string{o.transform},
	}, run.logger)
	for _, w := range warnings {
		run.warn(w.Error())
	}
	return comp, nil
}

func (o *Orchestrator) addSkips(run *yearRun, skips []models.SkipRecord) {
	run.report.Skips = append(run.report.Skips, skips...)
	for _, s := range skips {
		o.Metrics.IncSkipped(run.report.Product, s.Reason)
	}
}

// cleanup 持久化报告并释放工作区。
func (o *Orchestrator) cleanup(ctx context.Context, run *yearRun) {
	run.logger.Debug("进入状态", "state", models.StateCleanup, "final", run.report.State)

	// 取消后仍然尽量写出报告
	ingestCtx := context.WithoutCancel(ctx)
	if err := o.Ingestor.Ingest(ingestCtx, run.report, run.seq, run.outDir); err != nil {
		run.report.Warnings = append(run.report.Warnings, err.Error())
	}
	if run.ws != nil {
		if err := run.ws.Release(); err != nil {
			run.logger.Warn("释放工作区失败", "error", err)
		}
	}
}
