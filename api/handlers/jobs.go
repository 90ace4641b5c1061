package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/wyxpro/CubeAI-FlowDecompose/api"
	"github.com/wyxpro/CubeAI-FlowDecompose/store"
	"github.com/wyxpro/CubeAI-FlowDecompose/types"
	"go.uber.org/zap"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// JobSubmitter 接收已创建的任务并在后台执行
type JobSubmitter interface {
	Submit(ctx context.Context, jobID string, cfg types.JobConfig) error
}

// =============================================================================
// 🎬 视频分析任务 Handler
// =============================================================================

// JobHandler 视频分析任务处理器
type JobHandler struct {
	store     store.JobStore
	submitter JobSubmitter
	logger    *zap.Logger
}

// NewJobHandler 创建任务处理器
func NewJobHandler(st store.JobStore, submitter JobSubmitter, logger *zap.Logger) *JobHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JobHandler{
		store:     st,
		submitter: submitter,
		logger:    logger.With(zap.String("component", "job_handler")),
	}
}

// HandleSubmit 处理 POST /v1/video-analysis/jobs
func (h *JobHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req api.SubmitJobRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if err := req.Validate(); err != nil {
		WriteError(w, r, err, h.logger)
		return
	}

	job := types.NewJob(req.Mode)
	if err := h.store.Create(r.Context(), job); err != nil {
		WriteError(w, r, types.NewResourceError("create job", err), h.logger)
		return
	}

	if err := h.submitter.Submit(r.Context(), job.ID, req); err != nil {
		// 未能调度的任务直接置为失败，避免永远停留在 queued
		if uerr := h.store.UpdateStatus(context.WithoutCancel(r.Context()), job.ID, types.JobStatusFailed, types.NewJobError(err, "")); uerr != nil {
			h.logger.Error("failed to mark unscheduled job", zap.String("job_id", job.ID), zap.Error(uerr))
		}
		WriteError(w, r, types.NewError(types.ErrServiceUnavailable, "job could not be scheduled").
			WithCause(err).
			WithHTTPStatus(http.StatusServiceUnavailable).
			WithRetryable(true), h.logger)
		return
	}

	h.logger.Info("job submitted",
		zap.String("job_id", job.ID),
		zap.String("mode", string(job.Mode)),
	)
	WriteSuccessStatus(w, r, http.StatusAccepted, api.SubmitJobResponse{
		JobID:     job.ID,
		Status:    types.JobStatusQueued,
		StatusURL: api.JobStatusURL(job.ID),
	})
}

// HandleGet 处理 GET /v1/video-analysis/jobs/{job_id}
func (h *JobHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("job_id")
	job, err := h.store.Get(r.Context(), jobID)
	if err != nil {
		WriteError(w, r, storeError(err, "job not found: "+jobID), h.logger)
		return
	}
	WriteSuccess(w, r, api.NewJobView(job))
}

// HandleList 处理 GET /v1/video-analysis/jobs?status=running,queued&mode=learn&limit=20
func (h *JobHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	filter, err := parseJobFilter(r)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}

	jobs, err := h.store.List(r.Context(), filter)
	if err != nil {
		WriteError(w, r, types.NewResourceError("list jobs", err), h.logger)
		return
	}

	views := make([]*api.JobView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, api.NewJobView(job))
	}
	WriteSuccess(w, r, api.JobListResponse{Jobs: views, Total: len(views)})
}

func parseJobFilter(r *http.Request) (store.JobFilter, error) {
	q := r.URL.Query()
	filter := store.JobFilter{Limit: defaultListLimit}

	if raw := q.Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			status := types.JobStatus(strings.TrimSpace(s))
			switch status {
			case types.JobStatusQueued, types.JobStatusRunning, types.JobStatusSucceeded, types.JobStatusFailed:
				filter.Status = append(filter.Status, status)
			default:
				return filter, types.NewError(types.ErrInvalidRequest, "unknown status: "+string(status))
			}
		}
	}

	if raw := q.Get("mode"); raw != "" {
		mode := types.JobMode(raw)
		if !mode.IsValid() {
			return filter, types.NewError(types.ErrInvalidRequest, "unknown mode: "+raw)
		}
		filter.Mode = mode
	}

	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return filter, types.NewError(types.ErrInvalidRequest, "limit must be a positive integer")
		}
		filter.Limit = min(n, maxListLimit)
	}

	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return filter, types.NewError(types.ErrInvalidRequest, "offset must be a non-negative integer")
		}
		filter.Offset = n
	}
	return filter, nil
}

// storeError 把存储层错误映射为 API 错误
func storeError(err error, notFound string) error {
	if errors.Is(err, store.ErrNotFound) {
		return types.NewError(types.ErrNotFound, notFound).WithCause(err)
	}
	return types.NewResourceError("job store", err)
}
