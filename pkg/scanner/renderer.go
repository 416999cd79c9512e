package scanner

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"Cloud_Animator/internal/models"
	"Cloud_Animator/pkg/compositor"
	"Cloud_Animator/pkg/external"
	"Cloud_Animator/pkg/raster"
)

// FrameRenderer 把选中的栅格并发地重投影并合成为帧。结果的顺序没有意义，
// 排序只在序列组装阶段进行。
type FrameRenderer interface {
	RenderAll(ctx context.Context, job RenderJob) (RenderResult, error)
}

// RenderJob 描述一个年份的合成任务。
type RenderJob struct {
	Candidates     []models.RasterFile
	Compositor     *compositor.Compositor
	ReprojectedDir string
	FramesDir      string
	// KeepIntermediate 为 false 时，帧写出后立即删除重投影的中间文件。
	KeepIntermediate bool
	// OnFrame 在每帧结束后被调用（可并发），用于计数。
	OnFrame func(frame *models.Frame, skip *models.SkipRecord)
}

type RenderResult struct {
	Frames []models.Frame
	Skips  []models.SkipRecord
}

type renderOutcome struct {
	frame *models.Frame
	skip  *models.SkipRecord
	fatal error
}

type poolRenderer struct {
	transform  external.RasterTransform
	targetSRS  string
	numWorkers int
	logger     *slog.Logger
}

// NewRenderer 创建带固定大小工作池的渲染器。
func NewRenderer(transform external.RasterTransform, targetSRS string, workerCount int, logger *slog.Logger) FrameRenderer {
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}
	if transform == nil {
		transform = external.Passthrough{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &poolRenderer{
		transform:  transform,
		targetSRS:  targetSRS,
		numWorkers: workerCount,
		logger:     logger.With("stage", models.StageCompose),
	}
}

// RenderAll 只有在工作区写入失败时才返回错误，其余错误都记为单帧跳过。
func (r *poolRenderer) RenderAll(ctx context.Context, job RenderJob) (RenderResult, error) {
	var result RenderResult
	if len(job.Candidates) == 0 {
		return result, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tasks := make(chan models.RasterFile)
	outcomes := make(chan renderOutcome, len(job.Candidates))
	var wg sync.WaitGroup
	workers := min(r.numWorkers, len(job.Candidates))
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go r.renderWorker(ctx, &wg, job, tasks, outcomes)
	}

	go func() {
		defer close(tasks)
		for _, rf := range job.Candidates {
			select {
			case tasks <- rf:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	var fatal error
	for out := range outcomes {
		switch {
		case out.fatal != nil:
			if fatal == nil {
				fatal = out.fatal
				cancel()
			}
		case out.frame != nil:
			result.Frames = append(result.Frames, *out.frame)
		case out.skip != nil:
			result.Skips = append(result.Skips, *out.skip)
		}
		if job.OnFrame != nil && out.fatal == nil {
			job.OnFrame(out.frame, out.skip)
		}
	}
	if fatal != nil {
		return result, fatal
	}
	return result, ctx.Err()
}

func (r *poolRenderer) renderWorker(ctx context.Context, wg *sync.WaitGroup, job RenderJob, tasks <-chan models.RasterFile, outcomes chan<- renderOutcome) {
	defer wg.Done()
	for rf := range tasks {
		if ctx.Err() != nil {
			return
		}
		outcomes <- r.renderOne(ctx, job, rf)
	}
}

func (r *poolRenderer) renderOne(ctx context.Context, job RenderJob, rf models.RasterFile) renderOutcome {
	intermediate := filepath.Join(job.ReprojectedDir, raster.ReprojectedName(rf.Name))
	if err := r.transform.Reproject(ctx, rf.Path, intermediate, r.targetSRS); err != nil {
		if ctx.Err() != nil {
			return renderOutcome{fatal: ctx.Err()}
		}
		r.logger.Warn("重投影失败，跳过该帧", "file", rf.Name, "error", err)
		skip := models.NewSkip(rf.Path, models.StageReproject, err)
		return renderOutcome{skip: &skip}
	}
	if !job.KeepIntermediate {
		defer os.Remove(intermediate)
	}

	framePath := filepath.Join(job.FramesDir, strings.TrimSuffix(rf.Name, filepath.Ext(rf.Name))+".png")
	frame, err := job.Compositor.Render(ctx, rf, intermediate, framePath)
	if err != nil {
		if errors.Is(err, models.ErrWorkspaceIO) {
			return renderOutcome{fatal: err}
		}
		if ctx.Err() != nil {
			return renderOutcome{fatal: ctx.Err()}
		}
		r.logger.Warn("合成失败，跳过该帧", "file", rf.Name, "error", err)
		skip := models.NewSkip(rf.Path, stageFor(err), err)
		return renderOutcome{skip: &skip}
	}
	r.logger.Debug("帧已合成", "file", rf.Name, "cached", frame.Cached)
	return renderOutcome{frame: &frame}
}

func stageFor(err error) string {
	var unreadable *raster.UnreadableRasterError
	if errors.As(err, &unreadable) {
		return models.StageRead
	}
	var asset *compositor.AssetMissingError
	if errors.As(err, &asset) {
		return models.StageAnnotate
	}
	return models.StageCompose
}
