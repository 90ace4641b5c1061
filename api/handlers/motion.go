package handlers

import (
	"context"
	"net/http"

	"github.com/wyxpro/CubeAI-FlowDecompose/api"
	"github.com/wyxpro/CubeAI-FlowDecompose/motion"
	"github.com/wyxpro/CubeAI-FlowDecompose/types"
	"go.uber.org/zap"
)

// VirtualMotionService 虚拟运镜子任务服务
type VirtualMotionService interface {
	Create(ctx context.Context, req motion.CreateRequest) (*types.VirtualMotionJob, error)
	Get(ctx context.Context, id string) (*types.VirtualMotionJob, error)
}

// =============================================================================
// 🎥 虚拟运镜 Handler
// =============================================================================

// MotionHandler 虚拟运镜预览子任务处理器
type MotionHandler struct {
	service VirtualMotionService
	logger  *zap.Logger
}

// NewMotionHandler 创建虚拟运镜处理器
func NewMotionHandler(service VirtualMotionService, logger *zap.Logger) *MotionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MotionHandler{
		service: service,
		logger:  logger.With(zap.String("component", "motion_handler")),
	}
}

// HandleCreate 处理 POST /v1/video-analysis/virtual-motion/jobs
func (h *MotionHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req motion.CreateRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	vm, err := h.service.Create(r.Context(), req)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}

	WriteSuccessStatus(w, r, http.StatusAccepted, api.CreateVirtualMotionResponse{
		SubtaskID: vm.ID,
		Status:    vm.Status,
		StatusURL: api.VirtualMotionStatusURL(vm.ID),
	})
}

// HandleGet 处理 GET /v1/video-analysis/virtual-motion/jobs/{subtask_id}
func (h *MotionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	vm, err := h.service.Get(r.Context(), r.PathValue("subtask_id"))
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, vm)
}
