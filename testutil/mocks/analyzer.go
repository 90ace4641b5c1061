package mocks

import (
	"context"
	"sync"

	"github.com/wyxpro/CubeAI-FlowDecompose/analyzer"
	"github.com/wyxpro/CubeAI-FlowDecompose/types"
)

// Analyzer 是可编程的多模态分析器替身。
//
// Gate 非空时 AnalyzeFeatures 先向 Started 发送信号（非阻塞），再等待 Gate 关闭或 ctx 取消。
type Analyzer struct {
	Boundaries []types.Segment
	// FailOn 指定返回 Err 的片段，PanicOn 指定触发 panic 的片段
	FailOn   string
	Err      error
	PanicOn  string
	Features func(req analyzer.SegmentRequest) []types.Feature

	Gate    chan struct{}
	Started chan struct{}

	mu           sync.Mutex
	model        string
	proposeCalls int
	requests     []analyzer.SegmentRequest
}

var (
	_ analyzer.Analyzer      = (*Analyzer)(nil)
	_ analyzer.ModelSelector = (*Analyzer)(nil)
)

// NewAnalyzer 创建默认对每个片段返回一个 push_in 运镜特征的替身
func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// WithBoundaries 设置 ProposeBoundaries 的返回值
func (f *Analyzer) WithBoundaries(segments ...types.Segment) *Analyzer {
	f.Boundaries = segments
	return f
}

// WithError 让 segmentID 的特征分析失败
func (f *Analyzer) WithError(segmentID string, err error) *Analyzer {
	f.FailOn = segmentID
	f.Err = err
	return f
}

// WithModel 记录模型覆盖，返回自身
func (f *Analyzer) WithModel(model string) analyzer.Analyzer {
	f.mu.Lock()
	f.model = model
	f.mu.Unlock()
	return f
}

func (f *Analyzer) ProposeBoundaries(context.Context, []types.Frame) ([]types.Segment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.proposeCalls++
	return f.Boundaries, nil
}

func (f *Analyzer) AnalyzeFeatures(ctx context.Context, req analyzer.SegmentRequest) ([]types.Feature, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.Gate != nil {
		select {
		case f.Started <- struct{}{}:
		default:
		}
		select {
		case <-f.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.PanicOn != "" && req.SegmentID == f.PanicOn {
		panic("analyzer exploded")
	}
	if f.FailOn != "" && req.SegmentID == f.FailOn {
		return nil, f.Err
	}
	if f.Features != nil {
		return f.Features(req), nil
	}
	return []types.Feature{{
		Category:   types.CategoryCameraMotion,
		Type:       "push_in",
		Value:      "推镜头",
		Confidence: 0.8,
		Evidence:   types.Evidence{TimeRangesMs: []types.TimeRange{{req.StartMs, req.EndMs}}},
	}}, nil
}

// Snapshot 返回 ProposeBoundaries 调用次数、全部特征请求与最近一次模型覆盖
func (f *Analyzer) Snapshot() (int, []analyzer.SegmentRequest, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.proposeCalls, append([]analyzer.SegmentRequest(nil), f.requests...), f.model
}
