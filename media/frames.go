package media

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/wyxpro/CubeAI-FlowDecompose/types"
	"go.uber.org/zap"
)

const (
	DefaultFPS       = 2.0
	DefaultMaxFrames = 240

	// FrameIndexFile 与帧目录同级的索引文件
	FrameIndexFile = "frames_index.json"
	framesDirName  = "frames"
)

// FrameOptions 抽帧参数，零值使用默认值
type FrameOptions struct {
	FPS       float64
	MaxFrames int
}

func (o FrameOptions) withDefaults() FrameOptions {
	if o.FPS <= 0 {
		o.FPS = DefaultFPS
	}
	if o.MaxFrames <= 0 {
		o.MaxFrames = DefaultMaxFrames
	}
	return o
}

// ExtractFrames 抽取 JPEG 帧到 <outDir>/frames，并写出 <outDir>/frames_index.json
func (f *FFmpeg) ExtractFrames(ctx context.Context, videoPath, outDir string, opts FrameOptions) ([]types.Frame, error) {
	opts = opts.withDefaults()
	framesDir := filepath.Join(outDir, framesDirName)
	if err := os.MkdirAll(framesDir, 0o755); err != nil {
		return nil, types.NewResourceError("create frames directory", err)
	}

	f.logger.Info("extracting frames",
		zap.String("input", videoPath),
		zap.Float64("fps", opts.FPS),
		zap.Int("max_frames", opts.MaxFrames),
	)

	_, _, err := f.runner.Run(ctx, f.ffmpeg,
		"-hide_banner", "-y",
		"-i", videoPath,
		"-vf", "fps="+strconv.FormatFloat(opts.FPS, 'f', -1, 64),
		"-frames:v", strconv.Itoa(opts.MaxFrames),
		"-q:v", "2",
		filepath.Join(framesDir, "frame_%05d.jpg"),
	)
	if err != nil {
		return nil, types.NewResourceError("ffmpeg frame extraction failed", err)
	}

	frames, err := BuildFrameIndex(framesDir, opts.FPS)
	if err != nil {
		return nil, err
	}
	if err := WriteJSON(filepath.Join(outDir, FrameIndexFile), frames); err != nil {
		return nil, err
	}

	f.logger.Info("frames extracted", zap.Int("frames", len(frames)))
	return frames, nil
}

// BuildFrameIndex 按文件名顺序列出 frame_*.jpg，第 i 帧时间为 i*1000/fps
func BuildFrameIndex(framesDir string, fps float64) ([]types.Frame, error) {
	if fps <= 0 {
		return nil, types.NewResourceError(fmt.Sprintf("invalid frame rate %v", fps), nil)
	}
	paths, err := filepath.Glob(filepath.Join(framesDir, "frame_*.jpg"))
	if err != nil {
		return nil, types.NewResourceError("list frames", err)
	}
	sort.Strings(paths)

	interval := 1000.0 / fps
	frames := make([]types.Frame, 0, len(paths))
	for i, p := range paths {
		frames = append(frames, types.Frame{
			FrameID: fmt.Sprintf("f_%05d", i),
			TsMs:    float64(i) * interval,
			Path:    p,
		})
	}
	return frames, nil
}

// LoadFrameIndex 读取 ExtractFrames 写出的帧索引
func LoadFrameIndex(path string) ([]types.Frame, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, types.NewResourceError("read frame index", err)
	}
	var frames []types.Frame
	if err := json.Unmarshal(data, &frames); err != nil {
		return nil, types.NewResourceError("decode frame index", err)
	}
	return frames, nil
}
