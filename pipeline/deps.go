package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/wyxpro/CubeAI-FlowDecompose/analyzer"
	"github.com/wyxpro/CubeAI-FlowDecompose/compare"
	"github.com/wyxpro/CubeAI-FlowDecompose/media"
	"github.com/wyxpro/CubeAI-FlowDecompose/store"
	"github.com/wyxpro/CubeAI-FlowDecompose/types"
	"github.com/wyxpro/CubeAI-FlowDecompose/validator"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/wyxpro/CubeAI-FlowDecompose/pipeline"

// Ingestor 把输入视频落到本地并读取元数据
type Ingestor interface {
	Ingest(ctx context.Context, jobID string, role types.AssetRole, src types.VideoSource) (*types.Asset, error)
}

// FrameExtractor 从本地视频抽帧
type FrameExtractor interface {
	ExtractFrames(ctx context.Context, videoPath, outDir string, opts media.FrameOptions) ([]types.Frame, error)
}

// Recorder 接收任务与阶段指标
type Recorder interface {
	RecordJobSubmitted(mode string)
	RecordJobFinished(mode, status, errorKind string, duration time.Duration)
	RecordStage(mode, stage, status string, duration time.Duration)
	RecordPartialSnapshot(mode string)
}

// MultiRecorder 把每次记录依次转发给 rs，nil 项被跳过
func MultiRecorder(rs ...Recorder) Recorder {
	out := make(multiRecorder, 0, len(rs))
	for _, r := range rs {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

type multiRecorder []Recorder

func (m multiRecorder) RecordJobSubmitted(mode string) {
	for _, r := range m {
		r.RecordJobSubmitted(mode)
	}
}

func (m multiRecorder) RecordJobFinished(mode, status, errorKind string, d time.Duration) {
	for _, r := range m {
		r.RecordJobFinished(mode, status, errorKind, d)
	}
}

func (m multiRecorder) RecordStage(mode, stage, status string, d time.Duration) {
	for _, r := range m {
		r.RecordStage(mode, stage, status, d)
	}
}

func (m multiRecorder) RecordPartialSnapshot(mode string) {
	for _, r := range m {
		r.RecordPartialSnapshot(mode)
	}
}

type nopRecorder struct{}

func (nopRecorder) RecordJobSubmitted(string)                               {}
func (nopRecorder) RecordJobFinished(string, string, string, time.Duration) {}
func (nopRecorder) RecordStage(string, string, string, time.Duration)       {}
func (nopRecorder) RecordPartialSnapshot(string)                            {}

// Deps 所有流水线运行共享的依赖
type Deps struct {
	Store     store.JobStore
	Workspace *media.Workspace
	Ingestor  Ingestor
	Frames    FrameExtractor
	Scenes    media.SceneDetector
	Analyzer  analyzer.Analyzer

	// 可选，为 nil 时使用默认实现
	Validator   *validator.Validator
	Aligner     *compare.Aligner
	Synthesizer *compare.Synthesizer
	Metrics     Recorder
	Tracer      trace.Tracer
	Logger      *zap.Logger
}

func (d Deps) withDefaults() (Deps, error) {
	var missing []error
	if d.Store == nil {
		missing = append(missing, errors.New("store is required"))
	}
	if d.Workspace == nil {
		missing = append(missing, errors.New("workspace is required"))
	}
	if d.Ingestor == nil {
		missing = append(missing, errors.New("ingestor is required"))
	}
	if d.Frames == nil {
		missing = append(missing, errors.New("frame extractor is required"))
	}
	if d.Scenes == nil {
		missing = append(missing, errors.New("scene detector is required"))
	}
	if d.Analyzer == nil {
		missing = append(missing, errors.New("analyzer is required"))
	}
	if err := errors.Join(missing...); err != nil {
		return d, err
	}

	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Validator == nil {
		d.Validator = validator.New(d.Logger)
	}
	if d.Aligner == nil {
		d.Aligner = compare.NewAligner(d.Logger)
	}
	if d.Synthesizer == nil {
		d.Synthesizer = compare.NewSynthesizer(d.Logger)
	}
	if d.Metrics == nil {
		d.Metrics = nopRecorder{}
	}
	if d.Tracer == nil {
		d.Tracer = otel.Tracer(tracerName)
	}
	return d, nil
}
