package media

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/wyxpro/CubeAI-FlowDecompose/types"
	"go.uber.org/zap"
)

const segmenterCapability = "segmenter"

const (
	// DefaultSceneThreshold 0-100 的内容差异阈值
	DefaultSceneThreshold = 27.0
	// DefaultMinSceneLen 最短镜头长度（帧）
	DefaultMinSceneLen = 15
)

// SceneOptions 镜头切分参数，零值使用默认值
type SceneOptions struct {
	Threshold   float64
	MinSceneLen int
}

func (o SceneOptions) withDefaults() SceneOptions {
	if o.Threshold <= 0 {
		o.Threshold = DefaultSceneThreshold
	}
	if o.MinSceneLen <= 0 {
		o.MinSceneLen = DefaultMinSceneLen
	}
	return o
}

// SceneDetector 把视频切成覆盖 [0, duration] 的有序连续片段
type SceneDetector interface {
	Detect(ctx context.Context, videoPath string, opts SceneOptions) ([]types.Segment, error)
}

var _ SceneDetector = (*FFmpeg)(nil)

// Detect 运行 ffmpeg 的 scene 分数过滤器，把切点转成片段
// 没有切点时返回覆盖全片的单个片段
func (f *FFmpeg) Detect(ctx context.Context, videoPath string, opts SceneOptions) ([]types.Segment, error) {
	opts = opts.withDefaults()

	meta, err := f.Probe(ctx, videoPath)
	if err != nil {
		return nil, types.NewExternalError(segmenterCapability, "probe video for scene detection", err)
	}

	f.logger.Info("detecting scene changes",
		zap.String("input", videoPath),
		zap.Float64("threshold", opts.Threshold),
		zap.Int("min_scene_len", opts.MinSceneLen),
	)

	_, stderr, err := f.runner.Run(ctx, f.ffmpeg,
		"-hide_banner",
		"-i", videoPath,
		"-vf", fmt.Sprintf("select='gt(scene,%.4f)',showinfo", opts.Threshold/100),
		"-f", "null",
		"-",
	)
	if err != nil {
		return nil, types.NewExternalError(segmenterCapability, "scene detection failed", err)
	}

	minGapMs := 0.0
	if meta.FPS > 0 {
		minGapMs = float64(opts.MinSceneLen) / meta.FPS * 1000
	}
	segments := BuildSegments(ParseSceneCuts(string(stderr)), meta.DurationMs, minGapMs)
	if len(segments) == 0 {
		return nil, types.NewExternalError(segmenterCapability,
			fmt.Sprintf("video has no duration: %s", videoPath), nil)
	}

	f.logger.Info("scene detection complete", zap.Int("segments", len(segments)))
	return segments, nil
}

// ParseSceneCuts 从 showinfo 输出中提取 pts_time（毫秒）
func ParseSceneCuts(output string) []float64 {
	var cuts []float64
	for _, line := range strings.Split(output, "\n") {
		_, rest, ok := strings.Cut(line, "pts_time:")
		if !ok {
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			continue
		}
		if seconds, err := strconv.ParseFloat(fields[0], 64); err == nil {
			cuts = append(cuts, seconds*1000)
		}
	}
	return cuts
}

// BuildSegments 把切点转成覆盖 [0, durationMs] 的 seg_%03d 片段
// 距上一个边界不足 minGapMs 或不在 (0, durationMs) 内的切点被忽略
func BuildSegments(cuts []float64, durationMs, minGapMs float64) []types.Segment {
	if durationMs <= 0 {
		return nil
	}

	bounds := []float64{0}
	for _, c := range cuts {
		last := bounds[len(bounds)-1]
		if c <= last || c >= durationMs {
			continue
		}
		if c-last < minGapMs {
			continue
		}
		bounds = append(bounds, c)
	}
	bounds = append(bounds, durationMs)

	segments := make([]types.Segment, 0, len(bounds)-1)
	for i := 0; i+1 < len(bounds); i++ {
		segments = append(segments, types.NewSegment(fmt.Sprintf("seg_%03d", i+1), bounds[i], bounds[i+1]))
	}
	return segments
}
