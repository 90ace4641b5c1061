package motion

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/wyxpro/CubeAI-FlowDecompose/internal/retry"
	"github.com/wyxpro/CubeAI-FlowDecompose/internal/tlsutil"
	"github.com/wyxpro/CubeAI-FlowDecompose/types"
	"go.uber.org/zap"
)

const capabilityName = "img2video"

// Config 图生视频接口配置，APIKey 为空时使用 mock 模式
// MaxRetries 作用于生成与下载两步的可重试失败（网络错误、429、5xx）
type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Model:      "img2video-default",
		Timeout:    300 * time.Second,
		MaxRetries: 2,
		RetryDelay: 2 * time.Second,
	}
}

// RenderRequest 单个预览视频的渲染请求
type RenderRequest struct {
	Keyframes  []string
	Recipe     types.MotionRecipe
	OutputPath string
}

// RenderResult 渲染结果
type RenderResult struct {
	VideoPath  string
	DurationMs int
	Mock       bool
}

// Renderer 根据关键帧与运镜参数生成预览视频
type Renderer interface {
	Render(ctx context.Context, req RenderRequest) (*RenderResult, error)
}

// Client 图生视频 HTTP 客户端
type Client struct {
	cfg     Config
	http    *http.Client
	retryer *retry.Retryer
	logger  *zap.Logger
}

var _ Renderer = (*Client)(nil)

// NewClient 创建渲染客户端，httpClient 为 nil 时使用加固的默认客户端
func NewClient(cfg Config, httpClient *http.Client, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.Model == "" {
		cfg.Model = DefaultConfig().Model
	}
	if httpClient == nil {
		httpClient = tlsutil.SecureHTTPClient(cfg.Timeout)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "img2video"))

	policy := retry.DefaultPolicy()
	policy.MaxRetries = cfg.MaxRetries
	if cfg.RetryDelay > 0 {
		policy.InitialDelay = cfg.RetryDelay
		policy.MaxDelay = 10 * cfg.RetryDelay
	}
	return &Client{
		cfg:     cfg,
		http:    httpClient,
		retryer: retry.New(policy, logger),
		logger:  logger,
	}
}

// Mock 是否只生成占位文件
func (c *Client) Mock() bool {
	return c.cfg.APIKey == "" || c.cfg.BaseURL == ""
}

// Render 生成 req 对应的预览
func (c *Client) Render(ctx context.Context, req RenderRequest) (*RenderResult, error) {
	if len(req.Keyframes) == 0 {
		return nil, types.NewResourceError("no keyframe to render", nil)
	}
	if err := os.MkdirAll(filepath.Dir(req.OutputPath), 0o755); err != nil {
		return nil, types.NewResourceError("create preview directory", err)
	}

	c.logger.Info("rendering virtual motion",
		zap.String("type", req.Recipe.Type),
		zap.String("output", req.OutputPath),
		zap.Bool("mock", c.Mock()),
	)

	if c.Mock() {
		if err := os.WriteFile(req.OutputPath, nil, 0o644); err != nil {
			return nil, types.NewResourceError("write placeholder preview", err)
		}
		return &RenderResult{VideoPath: req.OutputPath, DurationMs: req.Recipe.DurationMs, Mock: true}, nil
	}

	videoURL, err := retry.DoWithResult(ctx, c.retryer, func() (string, error) {
		return c.generate(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	if err := c.retryer.Do(ctx, func() error {
		return c.download(ctx, videoURL, req.OutputPath)
	}); err != nil {
		return nil, err
	}
	return &RenderResult{VideoPath: req.OutputPath, DurationMs: req.Recipe.DurationMs}, nil
}

type generateRequest struct {
	Model  string             `json:"model"`
	Images []string           `json:"images"`
	Motion types.MotionRecipe `json:"motion"`
}

func (c *Client) generate(ctx context.Context, req RenderRequest) (string, error) {
	images := make([]string, 0, len(req.Keyframes))
	for _, path := range req.Keyframes {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", types.NewResourceError(fmt.Sprintf("read keyframe %s", filepath.Base(path)), err)
		}
		images = append(images, "data:image/jpeg;base64,"+base64.StdEncoding.EncodeToString(data))
	}

	payload, err := json.Marshal(generateRequest{Model: c.cfg.Model, Images: images, Motion: req.Recipe})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/videos/generations"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", types.NewExternalError(capabilityName, "img2video request failed", err).WithRetryable(true)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", types.NewExternalError(capabilityName, "read img2video response", err)
	}
	if resp.StatusCode >= 400 {
		msg := gjson.GetBytes(raw, "error.message").String()
		if msg == "" {
			msg = string(raw)
		}
		return "", types.NewExternalError(capabilityName,
			fmt.Sprintf("img2video status=%d msg=%s", resp.StatusCode, msg), nil).
			WithRetryable(resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500)
	}

	for _, path := range []string{"video_url", "data.0.url"} {
		if u := gjson.GetBytes(raw, path).String(); u != "" {
			return u, nil
		}
	}
	return "", types.NewExternalError(capabilityName, "img2video response has no video url", nil)
}

func (c *Client) download(ctx context.Context, url, dst string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return types.NewExternalError(capabilityName, "download preview", err).WithRetryable(true)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return types.NewExternalError(capabilityName, fmt.Sprintf("download preview: HTTP %d", resp.StatusCode), nil).
			WithRetryable(resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500)
	}

	tmp := dst + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return types.NewResourceError("create preview file", err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return types.NewResourceError("write preview file", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return types.NewResourceError("write preview file", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		return types.NewResourceError("move preview file", err)
	}
	return nil
}
