package motion

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/wyxpro/CubeAI-FlowDecompose/media"
	"github.com/wyxpro/CubeAI-FlowDecompose/store"
	"github.com/wyxpro/CubeAI-FlowDecompose/types"
	"go.uber.org/zap"
)

// ErrServiceClosed Shutdown 之后调用 Create 返回该错误
var ErrServiceClosed = errors.New("virtual motion service is shut down")

// CreateRequest 为已完成任务的某个片段请求预览
type CreateRequest struct {
	ParentJobID  string             `json:"parent_job_id"`
	AssetRole    types.AssetRole    `json:"asset_role"`
	SegmentID    string             `json:"segment_id"`
	MotionRecipe types.MotionRecipe `json:"motion_recipe"`
}

// Recorder 接收虚拟运镜指标
type Recorder interface {
	RecordVirtualMotion(status string, mock bool)
}

type nopRecorder struct{}

func (nopRecorder) RecordVirtualMotion(string, bool) {}

// Service 管理虚拟运镜子任务
type Service struct {
	store    store.JobStore
	renderer Renderer
	ws       *media.Workspace
	metrics  Recorder
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// NewService 创建服务，metrics 可为 nil
func NewService(st store.JobStore, renderer Renderer, ws *media.Workspace, metrics Recorder, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = nopRecorder{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		store:    st,
		renderer: renderer,
		ws:       ws,
		metrics:  metrics,
		logger:   logger.With(zap.String("component", "virtual_motion")),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Create 校验请求，记录 queued 子任务并开始渲染
func (s *Service) Create(ctx context.Context, req CreateRequest) (*types.VirtualMotionJob, error) {
	if req.ParentJobID == "" {
		return nil, types.NewValidationError("parent_job_id", "is required")
	}
	if req.AssetRole != types.RoleTarget && req.AssetRole != types.RoleUser {
		return nil, types.NewValidationError("asset_role", "must be target or user")
	}
	if req.SegmentID == "" {
		return nil, types.NewValidationError("segment_id", "is required")
	}
	recipe, err := NormalizeRecipe(req.MotionRecipe)
	if err != nil {
		return nil, err
	}

	// 先占位，Shutdown 之后不再接受新任务
	if !s.acquire() {
		return nil, types.NewError(types.ErrServiceUnavailable, ErrServiceClosed.Error()).
			WithCause(ErrServiceClosed).
			WithHTTPStatus(http.StatusServiceUnavailable)
	}
	started := false
	defer func() {
		if !started {
			s.wg.Done()
		}
	}()

	parent, err := s.store.Get(ctx, req.ParentJobID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, types.NewError(types.ErrNotFound, fmt.Sprintf("parent job %s not found", req.ParentJobID)).
			WithHTTPStatus(http.StatusNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load parent job: %w", err)
	}
	if parent.Status != types.JobStatusSucceeded {
		return nil, types.NewError(types.ErrInvalidRequest,
			fmt.Sprintf("parent job %s is %s, not succeeded", parent.ID, parent.Status)).
			WithHTTPStatus(http.StatusBadRequest)
	}

	vm := &types.VirtualMotionJob{
		ID:           types.NewVirtualMotionID(),
		ParentJobID:  parent.ID,
		Status:       types.JobStatusQueued,
		AssetRole:    req.AssetRole,
		SegmentID:    req.SegmentID,
		MotionRecipe: recipe,
	}
	if err := s.store.CreateVirtualMotion(ctx, vm); err != nil {
		return nil, fmt.Errorf("create virtual motion job: %w", err)
	}

	s.logger.Info("virtual motion job created",
		zap.String("subtask_id", vm.ID),
		zap.String("parent_job_id", vm.ParentJobID),
		zap.String("segment_id", vm.SegmentID),
		zap.String("recipe", recipe.Type),
	)

	started = true
	go s.run(*vm, parent.Result)
	return vm, nil
}

func (s *Service) acquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.wg.Add(1)
	return true
}

// Get 按 id 查询子任务
func (s *Service) Get(ctx context.Context, id string) (*types.VirtualMotionJob, error) {
	vm, err := s.store.GetVirtualMotion(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, types.NewError(types.ErrNotFound, fmt.Sprintf("virtual motion job %s not found", id)).
			WithHTTPStatus(http.StatusNotFound)
	}
	return vm, err
}

// Wait 阻塞到所有已启动的子任务结束
func (s *Service) Wait() {
	s.wg.Wait()
}

// Shutdown 拒绝新的子任务并等待正在渲染的任务，ctx 到期后取消它们
// 可重复调用
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		return ctx.Err()
	}
}

func (s *Service) run(vm types.VirtualMotionJob, parentResult *types.Result) {
	defer s.wg.Done()
	ctx := s.ctx
	logger := s.logger.With(zap.String("subtask_id", vm.ID))

	vm.Status = types.JobStatusRunning
	if err := s.store.UpdateVirtualMotion(ctx, &vm); err != nil {
		logger.Error("failed to mark virtual motion running", zap.Error(err))
		return
	}

	result, err := s.render(ctx, vm, parentResult)
	if err != nil {
		vm.Status = types.JobStatusFailed
		vm.ErrorMessage = err.Error()
		if uerr := s.store.UpdateVirtualMotion(context.WithoutCancel(ctx), &vm); uerr != nil {
			logger.Error("failed to record virtual motion failure", zap.Error(uerr))
		}
		s.metrics.RecordVirtualMotion(string(types.JobStatusFailed), false)
		logger.Error("virtual motion job failed", zap.Error(err))
		return
	}

	vm.Status = types.JobStatusSucceeded
	vm.ResultVideoPath = result.VideoPath
	if err := s.store.UpdateVirtualMotion(context.WithoutCancel(ctx), &vm); err != nil {
		logger.Error("failed to record virtual motion result", zap.Error(err))
		return
	}
	s.metrics.RecordVirtualMotion(string(types.JobStatusSucceeded), result.Mock)
	logger.Info("virtual motion job succeeded",
		zap.String("video", result.VideoPath),
		zap.Bool("mock", result.Mock),
	)
}

func (s *Service) render(ctx context.Context, vm types.VirtualMotionJob, parentResult *types.Result) (*RenderResult, error) {
	keyframes := SegmentKeyframes(parentResult, vm.AssetRole, vm.SegmentID)
	if len(keyframes) == 0 {
		return nil, types.NewResourceError(fmt.Sprintf("no keyframe for %s segment %s", vm.AssetRole, vm.SegmentID), nil)
	}

	start := time.Now()
	result, err := s.renderer.Render(ctx, RenderRequest{
		Keyframes:  keyframes,
		Recipe:     vm.MotionRecipe,
		OutputPath: s.ws.PreviewPath(vm.ParentJobID, vm.ID),
	})
	if err != nil {
		return nil, err
	}

	artifact := types.NewArtifact(vm.ParentJobID, types.ArtifactPreviewVideo, result.VideoPath)
	artifact.AssetRole = vm.AssetRole
	artifact.SegmentID = vm.SegmentID
	artifact.Metadata = map[string]string{
		"subtask_id":  vm.ID,
		"motion_type": vm.MotionRecipe.Type,
		"mock":        fmt.Sprint(result.Mock),
		"render_ms":   fmt.Sprint(time.Since(start).Milliseconds()),
	}
	if err := s.store.SaveArtifact(ctx, artifact); err != nil {
		return nil, types.NewResourceError("save preview artifact", err)
	}
	return result, nil
}

// SegmentKeyframes 返回 result 中某个角色某个片段的关键帧路径
func SegmentKeyframes(result *types.Result, role types.AssetRole, segmentID string) []string {
	if result == nil {
		return nil
	}
	asset := &result.Target
	if role == types.RoleUser {
		asset = result.User
	}
	if asset == nil {
		return nil
	}
	var paths []string
	for _, kf := range asset.Keyframes {
		if kf.SegmentID == segmentID {
			paths = append(paths, kf.KeyframePath)
		}
	}
	return paths
}
