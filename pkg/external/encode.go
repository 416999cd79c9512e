package external

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// EncodeJob 描述一次年度视频编码。
type EncodeJob struct {
	// Pattern 是 printf 风格的帧输入模式，例如 /ws/sequence/s2018_%04d.png。
	Pattern         string
	Output          string
	InputFrameRate  int
	OutputFrameRate int
	// Height 为 0 表示不缩放。
	Height int
	Codec  string
}

// VideoEncoder 把连续编号的帧编码成一个视频文件。
type VideoEncoder interface {
	Encode(ctx context.Context, job EncodeJob) error
}

// FFmpeg 调用 ffmpeg 编码。输出先写到同目录的临时文件，成功后才改名，
// 失败时不会留下半个视频。
type FFmpeg struct {
	Binary string
}

func NewFFmpeg(binary string) *FFmpeg {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	return &FFmpeg{Binary: binary}
}

// Args 返回编码到 output 的 ffmpeg 参数。
func (f *FFmpeg) Args(job EncodeJob, output string) []string {
	in := job.InputFrameRate
	if in <= 0 {
		in = 1
	}
	out := job.OutputFrameRate
	if out <= 0 {
		out = in
	}
	codec := job.Codec
	if codec == "" {
		codec = "libx264"
	}
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-framerate", fmt.Sprintf("%d", in),
		"-start_number", "1",
		"-i", job.Pattern,
	}
	if job.Height > 0 {
		args = append(args, "-vf", fmt.Sprintf("scale=-2:%d", job.Height))
	}
	return append(args,
		"-r", fmt.Sprintf("%d", out),
		"-c:v", codec,
		"-pix_fmt", "yuv420p",
		output,
	)
}

func (f *FFmpeg) Encode(ctx context.Context, job EncodeJob) error {
	if strings.TrimSpace(job.Pattern) == "" || strings.TrimSpace(job.Output) == "" {
		return &EncodingFailedError{Destination: job.Output, Err: errors.New("缺少输入模式或输出路径")}
	}
	if err := os.MkdirAll(filepath.Dir(job.Output), 0o755); err != nil {
		return &EncodingFailedError{Destination: job.Output, Err: err}
	}
	ext := filepath.Ext(job.Output)
	partial := strings.TrimSuffix(job.Output, ext) + ".partial" + ext

	cmd := exec.CommandContext(ctx, f.Binary, f.Args(job, partial)...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		os.Remove(partial)
		return &EncodingFailedError{Destination: job.Output, Output: strings.TrimSpace(string(output)), Err: err}
	}
	if err := os.Rename(partial, job.Output); err != nil {
		os.Remove(partial)
		return &EncodingFailedError{Destination: job.Output, Err: err}
	}
	return nil
}
