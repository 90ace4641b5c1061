package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/wyxpro/CubeAI-FlowDecompose/api"
	"github.com/wyxpro/CubeAI-FlowDecompose/store"
	"github.com/wyxpro/CubeAI-FlowDecompose/types"
	"go.uber.org/zap"
)

// DefaultStreamInterval 任务状态轮询间隔
const DefaultStreamInterval = 500 * time.Millisecond

const streamWriteTimeout = 5 * time.Second

// =============================================================================
// 📡 任务进度推送 Handler（WebSocket）
// =============================================================================

// StreamHandler 通过 WebSocket 推送任务视图，直到任务进入终态
type StreamHandler struct {
	store    store.JobStore
	interval time.Duration
	origins  []string
	logger   *zap.Logger
}

// NewStreamHandler 创建推送处理器；interval <= 0 时使用默认值
func NewStreamHandler(st store.JobStore, interval time.Duration, origins []string, logger *zap.Logger) *StreamHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = DefaultStreamInterval
	}
	return &StreamHandler{
		store:    st,
		interval: interval,
		origins:  origins,
		logger:   logger.With(zap.String("component", "job_stream")),
	}
}

// HandleStream 处理 GET /v1/video-analysis/jobs/{job_id}/stream
func (h *StreamHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("job_id")
	job, err := h.store.Get(r.Context(), jobID)
	if err != nil {
		WriteError(w, r, storeError(err, "job not found: "+jobID), h.logger)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		// Accept 已写出错误响应
		h.logger.Warn("websocket accept failed", zap.String("job_id", jobID), zap.Error(err))
		return
	}
	defer conn.CloseNow()

	// 客户端只接收不发送；CloseRead 在对端关闭时取消 ctx
	ctx := conn.CloseRead(r.Context())

	h.logger.Debug("stream opened", zap.String("job_id", jobID))
	if err := h.pump(ctx, conn, job); err != nil {
		h.logger.Debug("stream ended", zap.String("job_id", jobID), zap.Error(err))
		return
	}
	conn.Close(websocket.StatusNormalClosure, "job finished")
}

// pump 发送初始视图，之后每次变化发送一次，终态后返回 nil
func (h *StreamHandler) pump(ctx context.Context, conn *websocket.Conn, job *types.Job) error {
	if err := h.send(ctx, conn, job); err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return nil
	}

	last := job
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		current, err := h.store.Get(ctx, last.ID)
		if err != nil {
			conn.Close(websocket.StatusInternalError, "job store unavailable")
			return err
		}
		if !changed(last, current) {
			continue
		}
		if err := h.send(ctx, conn, current); err != nil {
			return err
		}
		if current.Status.IsTerminal() {
			return nil
		}
		last = current
	}
}

func (h *StreamHandler) send(ctx context.Context, conn *websocket.Conn, job *types.Job) error {
	ctx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, api.NewJobView(job))
}

func changed(prev, next *types.Job) bool {
	return prev.Status != next.Status ||
		prev.Progress != next.Progress ||
		!prev.UpdatedAt.Equal(next.UpdatedAt)
}
