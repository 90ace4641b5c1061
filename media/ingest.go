package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/wyxpro/CubeAI-FlowDecompose/internal/tlsutil"
	"github.com/wyxpro/CubeAI-FlowDecompose/types"
	"go.uber.org/zap"
)

// DownloadTimeout 单次 url 下载的总超时
const DownloadTimeout = 300 * time.Second

// Prober 读取视频元数据，*FFmpeg 实现了该接口
type Prober interface {
	Probe(ctx context.Context, path string) (*Metadata, error)
}

// Ingestor 把输入视频摄取到任务工作目录
type Ingestor struct {
	ws     *Workspace
	prober Prober
	http   *http.Client
	logger *zap.Logger
}

// NewIngestor 创建摄取器，client 为 nil 时使用带 DownloadTimeout 的默认下载客户端
func NewIngestor(ws *Workspace, prober Prober, client *http.Client, logger *zap.Logger) *Ingestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if client == nil {
		client = tlsutil.DownloadClient(DownloadTimeout)
	}
	return &Ingestor{
		ws:     ws,
		prober: prober,
		http:   client,
		logger: logger.With(zap.String("component", "ingest")),
	}
}

// Ingest 下载或复制 src 到 <job>/<role>/input_video.mp4 并读取元数据
func (i *Ingestor) Ingest(ctx context.Context, jobID string, role types.AssetRole, src types.VideoSource) (*types.Asset, error) {
	dst := i.ws.InputPath(jobID, role)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return nil, types.NewResourceError("create asset directory", err)
	}

	switch src.Type {
	case types.SourceURL:
		if err := i.download(ctx, src.URL, dst); err != nil {
			return nil, err
		}
	case types.SourceFile:
		if err := copyFile(src.Path, dst); err != nil {
			return nil, types.NewResourceError(fmt.Sprintf("copy source video %s", src.Path), err)
		}
	default:
		return nil, types.NewError(types.ErrInvalidRequest, fmt.Sprintf("unsupported source type: %q", src.Type))
	}

	meta, err := i.prober.Probe(ctx, dst)
	if err != nil {
		return nil, err
	}

	asset := &types.Asset{
		ID:         types.AssetID(jobID, role),
		JobID:      jobID,
		Role:       role,
		Source:     src,
		LocalPath:  dst,
		DurationMs: meta.DurationMs,
		Width:      meta.Width,
		Height:     meta.Height,
		FPS:        meta.FPS,
		Codec:      meta.Codec,
		CreatedAt:  time.Now().UTC(),
	}
	i.logger.Info("video ingested",
		zap.String("job_id", jobID),
		zap.String("role", string(role)),
		zap.Stringer("metadata", meta),
	)
	return asset, nil
}

func (i *Ingestor) download(ctx context.Context, url, dst string) error {
	i.logger.Info("downloading video", zap.String("url", url))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return types.NewResourceError("build download request", err)
	}
	resp, err := i.http.Do(req)
	if err != nil {
		return types.NewResourceError("download video", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return types.NewResourceError(fmt.Sprintf("download video: status %d", resp.StatusCode), nil)
	}

	out, err := os.Create(dst)
	if err != nil {
		return types.NewResourceError("create input video", err)
	}
	n, err := io.Copy(out, resp.Body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(dst)
		return types.NewResourceError("write input video", err)
	}

	i.logger.Info("video downloaded", zap.String("path", dst), zap.Int64("bytes", n))
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
