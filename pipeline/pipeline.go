package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wyxpro/CubeAI-FlowDecompose/analyzer"
	"github.com/wyxpro/CubeAI-FlowDecompose/types"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Pipeline 运行一个任务并返回最终结果
// 进度、素材、产物与中间快照在运行中写入 store，最终结果由调用方保存
type Pipeline interface {
	Run(ctx context.Context) (*types.Result, error)
}

// StageError 记录失败发生的阶段
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// StageOf 返回 err 中记录的阶段，没有时返回空串
func StageOf(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

type factory func(r *run) Pipeline

var factories = map[types.JobMode]factory{
	types.ModeLearn:   func(r *run) Pipeline { return &LearnPipeline{run: r} },
	types.ModeCompare: func(r *run) Pipeline { return &ComparePipeline{run: r} },
}

// New 根据 cfg.Mode 选择流水线实现
func New(jobID string, cfg types.JobConfig, deps Deps) (Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	mk, ok := factories[cfg.Mode]
	if !ok {
		return nil, types.NewError(types.ErrInvalidRequest, fmt.Sprintf("unsupported mode: %q", cfg.Mode))
	}
	deps, err := deps.withDefaults()
	if err != nil {
		return nil, fmt.Errorf("pipeline dependencies: %w", err)
	}
	return mk(newRun(jobID, cfg, deps)), nil
}

// run 单个任务内各流水线共享的状态
type run struct {
	jobID    string
	cfg      types.JobConfig
	deps     Deps
	analyzer analyzer.Analyzer
	logger   *zap.Logger
}

func newRun(jobID string, cfg types.JobConfig, deps Deps) *run {
	return &run{
		jobID:    jobID,
		cfg:      cfg,
		deps:     deps,
		analyzer: analyzer.ForModel(deps.Analyzer, cfg.Options.LLM.Model),
		logger: deps.Logger.With(
			zap.String("component", "pipeline"),
			zap.String("job_id", jobID),
			zap.String("mode", string(cfg.Mode)),
		),
	}
}

func (r *run) mode() string { return string(r.cfg.Mode) }

// report 把 cp 写为任务当前进度
func (r *run) report(ctx context.Context, cp Checkpoint) error {
	if err := r.deps.Store.UpdateProgress(ctx, r.jobID, cp.Progress()); err != nil {
		return types.NewResourceError("update job progress", err)
	}
	r.logger.Debug("progress",
		zap.String("stage", cp.Stage),
		zap.Float64("percent", cp.Percent),
		zap.String("message", cp.Message),
	)
	return nil
}

// stage 上报 cp 后在 span 中执行 fn，错误归到 cp.Stage
func (r *run) stage(ctx context.Context, cp Checkpoint, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return &StageError{Stage: cp.Stage, Err: err}
	}
	if err := r.report(ctx, cp); err != nil {
		return &StageError{Stage: cp.Stage, Err: err}
	}

	ctx, span := r.deps.Tracer.Start(ctx, "pipeline.stage."+cp.Stage,
		trace.WithAttributes(
			attribute.String("job.id", r.jobID),
			attribute.String("job.mode", r.mode()),
			attribute.String("stage", cp.Stage),
		),
	)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Warn("stage failed", zap.String("stage", cp.Stage), zap.Error(err))
	}
	r.deps.Metrics.RecordStage(r.mode(), cp.Stage, status, time.Since(start))
	if err != nil {
		return &StageError{Stage: cp.Stage, Err: err}
	}
	return nil
}

func (r *run) categories() []types.Category {
	if m := r.cfg.Options.Analysis.EnabledModules; len(m) > 0 {
		return m
	}
	return types.Categories()
}

func (r *run) input(role types.AssetRole) types.VideoInput {
	if role == types.RoleUser && r.cfg.UserVideo != nil {
		return *r.cfg.UserVideo
	}
	return r.cfg.TargetVideo
}
