package analyzer

import (
	"context"

	"github.com/wyxpro/CubeAI-FlowDecompose/types"
)

// Analyzer 多模态特征分析器
type Analyzer interface {
	// ProposeBoundaries 基于全部帧提出有序的片段边界
	ProposeBoundaries(ctx context.Context, frames []types.Frame) ([]types.Segment, error)
	// AnalyzeFeatures 为一个固定片段归纳特征，不重新切分边界
	AnalyzeFeatures(ctx context.Context, req SegmentRequest) ([]types.Feature, error)
}

// ModelSelector 支持切换模型的分析器实现该接口
type ModelSelector interface {
	WithModel(model string) Analyzer
}

// SegmentRequest 单个片段的特征分析请求
type SegmentRequest struct {
	SegmentID  string
	StartMs    float64
	EndMs      float64
	Categories []types.Category
	// Frames 片段内的候选帧，最多发送 MaxSegmentFrames 张
	Frames []types.Frame
}

// ForModel 在 a 支持时返回切换到 model 的分析器，否则原样返回
func ForModel(a Analyzer, model string) Analyzer {
	if model == "" {
		return a
	}
	if s, ok := a.(ModelSelector); ok {
		return s.WithModel(model)
	}
	return a
}
