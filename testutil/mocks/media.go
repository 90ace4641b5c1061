// Package mocks 提供流水线外部能力的可编程替身
package mocks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/wyxpro/CubeAI-FlowDecompose/media"
	"github.com/wyxpro/CubeAI-FlowDecompose/types"
)

// =============================================================================
// 📥 Ingestor
// =============================================================================

// Ingestor 不下载也不探测，直接返回工作目录中的资产记录
type Ingestor struct {
	Workspace  *media.Workspace
	DurationMs float64
	Err        error
}

// NewIngestor 返回时长为 durationMs 的替身
func NewIngestor(ws *media.Workspace, durationMs float64) *Ingestor {
	return &Ingestor{Workspace: ws, DurationMs: durationMs}
}

func (f *Ingestor) Ingest(_ context.Context, jobID string, role types.AssetRole, src types.VideoSource) (*types.Asset, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return &types.Asset{
		ID:         types.AssetID(jobID, role),
		JobID:      jobID,
		Role:       role,
		Source:     src,
		LocalPath:  f.Workspace.InputPath(jobID, role),
		DurationMs: f.DurationMs,
		Width:      1280,
		Height:     720,
		FPS:        25,
		Codec:      "h264",
	}, nil
}

// =============================================================================
// 🖼️ FrameExtractor
// =============================================================================

// Frames 每帧写一个小文件，间隔 IntervalMs（默认 500ms）
type Frames struct {
	Count      int
	IntervalMs float64
	Err        error
}

// NewFrames 返回生成 count 帧的替身
func NewFrames(count int) *Frames {
	return &Frames{Count: count, IntervalMs: 500}
}

func (f *Frames) ExtractFrames(_ context.Context, _ string, outDir string, _ media.FrameOptions) ([]types.Frame, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	interval := f.IntervalMs
	if interval <= 0 {
		interval = 500
	}
	dir := filepath.Join(outDir, "frames")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	frames := make([]types.Frame, 0, f.Count)
	for i := 0; i < f.Count; i++ {
		path := filepath.Join(dir, fmt.Sprintf("frame_%05d.jpg", i+1))
		if err := os.WriteFile(path, []byte{byte(i)}, 0o644); err != nil {
			return nil, err
		}
		frames = append(frames, types.Frame{FrameID: fmt.Sprintf("f_%05d", i), TsMs: float64(i) * interval, Path: path})
	}
	return frames, nil
}

// =============================================================================
// ✂️ SceneDetector
// =============================================================================

// Scenes 返回固定的场景切分
type Scenes struct {
	Segments []types.Segment
	Err      error

	mu    sync.Mutex
	calls int
}

// NewScenes 返回固定切分的替身
func NewScenes(segments ...types.Segment) *Scenes {
	return &Scenes{Segments: segments}
}

func (f *Scenes) Detect(context.Context, string, media.SceneOptions) ([]types.Segment, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Segments, nil
}

// Calls 返回 Detect 的调用次数
func (f *Scenes) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
