package compare

import (
	"fmt"
	"math"

	"github.com/wyxpro/CubeAI-FlowDecompose/types"
	"go.uber.org/zap"
)

const (
	positionWeight = 0.6
	durationWeight = 0.4
)

// Aligner 为每个 user 片段找到最匹配的 target 片段
//
// 映射不是一一对应的，多个 user 片段可以指向同一个 target 片段。
type Aligner struct {
	logger *zap.Logger
}

// NewAligner 创建对齐器
func NewAligner(logger *zap.Logger) *Aligner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aligner{logger: logger.With(zap.String("component", "aligner"))}
}

// Align target 非空时每个 user 片段恰好产生一条映射，target 为空时不产生映射
func (a *Aligner) Align(target, user []types.Segment) []types.Mapping {
	a.logger.Info("aligning segments",
		zap.Int("target_segments", len(target)),
		zap.Int("user_segments", len(user)),
	)

	mappings := make([]types.Mapping, 0, len(user))
	if len(target) == 0 {
		return mappings
	}

	targetTotal := totalDuration(target)
	userTotal := totalDuration(user)

	for _, u := range user {
		userPos := relativePosition(u.StartMs, userTotal)

		best := -1
		bestScore := math.Inf(-1)
		for i, t := range target {
			score := Score(userPos, relativePosition(t.StartMs, targetTotal), u.DurationMs, t.DurationMs)
			// 严格大于：同分保留靠前的 target
			if score > bestScore {
				bestScore = score
				best = i
			}
		}

		if best < 0 {
			best = 0
		}
		confidence := clamp01(bestScore)
		mappings = append(mappings, types.Mapping{
			UserSegmentID:   u.SegmentID,
			TargetSegmentID: target[best].SegmentID,
			Confidence:      confidence,
			Reason:          fmt.Sprintf("position and duration similarity: %.2f", confidence),
		})
	}

	a.logger.Info("alignment complete", zap.Int("mappings", len(mappings)))
	return mappings
}

// Score 综合位置相似度与时长比
func Score(userPos, targetPos, userDur, targetDur float64) float64 {
	posSimilarity := 1 - math.Abs(userPos-targetPos)
	return positionWeight*posSimilarity + durationWeight*DurationRatio(userDur, targetDur)
}

// DurationRatio 两段时长的 min/max，任一不为正时返回 0
func DurationRatio(a, b float64) float64 {
	if a <= 0 || b <= 0 {
		return 0
	}
	return math.Min(a, b) / math.Max(a, b)
}

func relativePosition(startMs, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return startMs / total
}

func totalDuration(segments []types.Segment) float64 {
	var total float64
	for _, s := range segments {
		total += s.DurationMs
	}
	return total
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
