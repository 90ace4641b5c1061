package analyzer

import (
	"math"

	"github.com/wyxpro/CubeAI-FlowDecompose/types"
)

const (
	// MaxBoundaryFrames 边界提议最多发送的帧数
	MaxBoundaryFrames = 20
	// MaxSegmentFrames 单个片段特征分析最多发送的帧数
	MaxSegmentFrames = 5
)

// SampleFrames 在 frames 中均匀抽取至多 max 帧
func SampleFrames(frames []types.Frame, max int) []types.Frame {
	if max <= 0 || len(frames) <= max {
		return frames
	}
	step := float64(len(frames)) / float64(max)
	out := make([]types.Frame, 0, max)
	for i := 0; i < max; i++ {
		out = append(out, frames[int(float64(i)*step)])
	}
	return out
}

// FramesForSegment 返回时间戳落在 [startMs, endMs] 内的帧
// 没有命中时返回最接近 startMs 的一帧；索引为空返回 nil
func FramesForSegment(frames []types.Frame, startMs, endMs float64) []types.Frame {
	var in []types.Frame
	for _, f := range frames {
		if f.TsMs >= startMs && f.TsMs <= endMs {
			in = append(in, f)
		}
	}
	if len(in) > 0 || len(frames) == 0 {
		return in
	}

	closest := frames[0]
	best := math.Abs(closest.TsMs - startMs)
	for _, f := range frames[1:] {
		if d := math.Abs(f.TsMs - startMs); d < best {
			best = d
			closest = f
		}
	}
	return []types.Frame{closest}
}
