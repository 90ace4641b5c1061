package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/wyxpro/CubeAI-FlowDecompose/types"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var (
	ErrDispatcherClosed = errors.New("dispatcher is shut down")
	ErrAlreadyRunning   = errors.New("job is already running")
)

// RunningJob 注册表中运行中的任务
type RunningJob struct {
	JobID     string        `json:"job_id"`
	Mode      types.JobMode `json:"mode"`
	StartedAt time.Time     `json:"started_at"`
}

type execution struct {
	info   RunningJob
	cancel context.CancelFunc
	done   chan struct{}
}

// Dispatcher 为每个提交的任务启动独立 goroutine，并维护运行中任务的注册表
// 不做准入控制
type Dispatcher struct {
	deps   Deps
	logger *zap.Logger

	baseCtx    context.Context
	cancelBase context.CancelFunc

	mu      sync.RWMutex
	running map[string]*execution
	closed  bool
	wg      sync.WaitGroup
}

// NewDispatcher 校验依赖并创建调度器
func NewDispatcher(deps Deps) (*Dispatcher, error) {
	deps, err := deps.withDefaults()
	if err != nil {
		return nil, fmt.Errorf("pipeline dependencies: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		deps:       deps,
		logger:     deps.Logger.With(zap.String("component", "dispatcher")),
		baseCtx:    ctx,
		cancelBase: cancel,
		running:    make(map[string]*execution),
	}, nil
}

// Submit 把任务标记为 running 并在后台启动流水线
// 任务必须已以 queued 状态存在于 store 中
func (d *Dispatcher) Submit(ctx context.Context, jobID string, cfg types.JobConfig) error {
	p, err := New(jobID, cfg, d.deps)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	if _, ok := d.running[jobID]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, jobID)
	}
	if err := d.deps.Store.UpdateStatus(ctx, jobID, types.JobStatusRunning, nil); err != nil {
		return fmt.Errorf("mark job running: %w", err)
	}

	runCtx, cancel := context.WithCancel(d.baseCtx)
	exec := &execution{
		info:   RunningJob{JobID: jobID, Mode: cfg.Mode, StartedAt: time.Now().UTC()},
		cancel: cancel,
		done:   make(chan struct{}),
	}
	d.running[jobID] = exec
	d.wg.Add(1)
	d.deps.Metrics.RecordJobSubmitted(string(cfg.Mode))

	d.logger.Info("job submitted", zap.String("job_id", jobID), zap.String("mode", string(cfg.Mode)))

	go d.execute(runCtx, exec, p)
	return nil
}

func (d *Dispatcher) execute(ctx context.Context, exec *execution, p Pipeline) {
	jobID, mode := exec.info.JobID, string(exec.info.Mode)
	defer func() {
		exec.cancel()
		d.mu.Lock()
		delete(d.running, jobID)
		d.mu.Unlock()
		close(exec.done)
		d.wg.Done()
	}()

	ctx, span := d.deps.Tracer.Start(ctx, "pipeline.job",
		trace.WithAttributes(
			attribute.String("job.id", jobID),
			attribute.String("job.mode", mode),
		),
	)
	defer span.End()

	start := time.Now()
	result, err := d.runSafely(ctx, p)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.fail(ctx, jobID, mode, err, time.Since(start))
		return
	}

	if err := d.deps.Store.SaveResult(context.WithoutCancel(ctx), jobID, result); err != nil {
		d.fail(ctx, jobID, mode, types.NewResourceError("save result", err), time.Since(start))
		return
	}
	d.deps.Metrics.RecordJobFinished(mode, string(types.JobStatusSucceeded), "", time.Since(start))
	d.logger.Info("job succeeded",
		zap.String("job_id", jobID),
		zap.Duration("duration", time.Since(start)),
	)
}

// runSafely 把流水线 panic 转成 unclassified 错误
func (d *Dispatcher) runSafely(ctx context.Context, p Pipeline) (result *types.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = types.NewError(types.ErrUnclassified, fmt.Sprintf("pipeline panic: %v", r))
		}
	}()
	return p.Run(ctx)
}

func (d *Dispatcher) fail(ctx context.Context, jobID, mode string, err error, elapsed time.Duration) {
	stage := StageOf(err)
	cause := err
	var se *StageError
	if errors.As(err, &se) {
		cause = se.Err
	}
	jobErr := types.NewJobError(cause, stage)

	// 运行上下文可能已取消，失败状态仍需写入
	if uerr := d.deps.Store.UpdateStatus(context.WithoutCancel(ctx), jobID, types.JobStatusFailed, jobErr); uerr != nil {
		d.logger.Error("failed to record job failure", zap.String("job_id", jobID), zap.Error(uerr))
	}
	d.deps.Metrics.RecordJobFinished(mode, string(types.JobStatusFailed), string(jobErr.Kind()), elapsed)
	d.logger.Error("job failed",
		zap.String("job_id", jobID),
		zap.String("stage", stage),
		zap.String("kind", string(jobErr.Kind())),
		zap.Error(err),
	)
}

// Running jobID 是否在运行
func (d *Dispatcher) Running(jobID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.running[jobID]
	return ok
}

// List 返回运行中的任务，按启动时间升序
func (d *Dispatcher) List() []RunningJob {
	d.mu.RLock()
	out := make([]RunningJob, 0, len(d.running))
	for _, e := range d.running {
		out = append(out, e.info)
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].JobID < out[j].JobID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// Wait 阻塞到 jobID 结束，未注册的任务立即返回
func (d *Dispatcher) Wait(ctx context.Context, jobID string) error {
	d.mu.RLock()
	exec, ok := d.running[jobID]
	d.mu.RUnlock()
	if !ok {
		return nil
	}
	select {
	case <-exec.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown 停止接收任务并等待运行中的任务
// ctx 先到期时取消运行中的任务并返回 ctx.Err()，被取消的任务由各自的 goroutine 记为 failed
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	inFlight := len(d.running)
	d.mu.Unlock()

	d.logger.Info("dispatcher shutting down", zap.Int("running", inFlight))

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancelBase()
		return nil
	case <-ctx.Done():
		d.cancelBase()
		return ctx.Err()
	}
}
