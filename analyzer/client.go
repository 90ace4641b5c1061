package analyzer

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/wyxpro/CubeAI-FlowDecompose/internal/cache"
	"github.com/wyxpro/CubeAI-FlowDecompose/internal/tlsutil"
	"github.com/wyxpro/CubeAI-FlowDecompose/terminology"
	"github.com/wyxpro/CubeAI-FlowDecompose/types"
	"go.uber.org/zap"
)

const capabilityName = "analyzer"

const (
	callBoundaries = "boundaries"
	callFeatures   = "features"
)

// Config 多模态对话接口的连接配置
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
	// CacheTTL 成功应答在缓存中的保留时间
	CacheTTL time.Duration
	// TokenEncoding 统计提示词 token 用的 tiktoken 编码；为空时按字符估算
	TokenEncoding string
}

// DefaultConfig 返回托管 Qwen-VL 接口的默认配置
func DefaultConfig() Config {
	return Config{
		BaseURL:       "https://www.sophnet.com/api/open-apis/v1",
		Model:         "Qwen2.5-VL-7B-Instruct",
		Timeout:       120 * time.Second,
		CacheTTL:      24 * time.Hour,
		TokenEncoding: "cl100k_base",
	}
}

// ResponseCache 缓存模型原始应答，*cache.Manager 实现了该接口
type ResponseCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// Recorder 接收分析调用指标，*metrics.Collector 实现了该接口
type Recorder interface {
	RecordAnalyzerRequest(model, call, status string, duration time.Duration, promptTokens int)
	RecordFeatures(category string, n int)
	RecordCacheHit(cacheType string)
	RecordCacheMiss(cacheType string)
}

type nopRecorder struct{}

func (nopRecorder) RecordAnalyzerRequest(string, string, string, time.Duration, int) {}
func (nopRecorder) RecordFeatures(string, int)                                      {}
func (nopRecorder) RecordCacheHit(string)                                           {}
func (nopRecorder) RecordCacheMiss(string)                                          {}

// Option 客户端选项
type Option func(*Client)

// WithCache 启用应答缓存
func WithCache(c ResponseCache) Option {
	return func(cl *Client) { cl.cache = c }
}

// WithRecorder 设置指标记录器
func WithRecorder(r Recorder) Option {
	return func(cl *Client) {
		if r != nil {
			cl.metrics = r
		}
	}
}

// WithHTTPClient 替换默认的加固 HTTP 客户端
func WithHTTPClient(h *http.Client) Option {
	return func(cl *Client) {
		if h != nil {
			cl.http = h
		}
	}
}

// WithTerminology 设置注入特征提示词的镜头术语表
func WithTerminology(t *terminology.Catalogue) Option {
	return func(cl *Client) { cl.terms = t }
}

// Client OpenAI 兼容的多模态 chat completions 客户端
type Client struct {
	cfg     Config
	http    *http.Client
	cache   ResponseCache
	metrics Recorder
	terms   *terminology.Catalogue
	tokens  *tokenCounter
	logger  *zap.Logger
}

var _ Analyzer = (*Client)(nil)

// NewClient 创建分析客户端
// 缺少 API Key 时在首次调用才报错，服务可以不带凭证启动
func NewClient(cfg Config, logger *zap.Logger, opts ...Option) *Client {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Client{
		cfg:     cfg,
		http:    tlsutil.SecureHTTPClient(cfg.Timeout),
		metrics: nopRecorder{},
		terms:   terminology.Default(),
		tokens:  newTokenCounter(cfg.TokenEncoding),
		logger:  logger.With(zap.String("component", "analyzer")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Model 返回请求使用的模型
func (c *Client) Model() string { return c.cfg.Model }

// WithModel 返回共享传输层、缓存与指标但改用 model 的客户端；model 为空时返回 c
func (c *Client) WithModel(model string) Analyzer {
	if model == "" || model == c.cfg.Model {
		return c
	}
	cp := *c
	cp.cfg.Model = model
	return &cp
}

// ProposeBoundaries 请模型基于全部帧给出镜头边界
func (c *Client) ProposeBoundaries(ctx context.Context, frames []types.Frame) ([]types.Segment, error) {
	if len(frames) == 0 {
		return nil, types.NewResourceError("no frames available for boundary proposal", nil)
	}

	sampled := SampleFrames(frames, MaxBoundaryFrames)
	durationMs := frames[len(frames)-1].TsMs
	prompt := BoundaryPrompt(durationMs, len(sampled))

	payload, err := c.complete(ctx, callBoundaries, prompt, sampled)
	if err != nil {
		return nil, err
	}

	segments := ParseBoundaries(payload, durationMs)
	if len(segments) == 0 {
		c.logger.Warn("analyzer proposed no usable boundaries, using one full segment",
			zap.Float64("duration_ms", durationMs))
		segments = []types.Segment{types.NewSegment("seg_001", 0, durationMs)}
	}

	c.logger.Info("boundaries proposed",
		zap.Int("frames", len(sampled)),
		zap.Int("segments", len(segments)),
	)
	return segments, nil
}

// AnalyzeFeatures 分析单个固定片段的特征
func (c *Client) AnalyzeFeatures(ctx context.Context, req SegmentRequest) ([]types.Feature, error) {
	frames := SampleFrames(req.Frames, MaxSegmentFrames)
	if len(frames) == 0 {
		return nil, types.NewResourceError(fmt.Sprintf("no frames available for segment %s", req.SegmentID), nil)
	}
	categories := req.Categories
	if len(categories) == 0 {
		categories = types.Categories()
	}

	prompt := FeaturePrompt(req.SegmentID, req.StartMs, req.EndMs, categories, c.terms)
	payload, err := c.complete(ctx, callFeatures, prompt, frames)
	if err != nil {
		return nil, err
	}

	if list := unwrap(payload, "features"); !list.IsArray() {
		c.logger.Warn("analyzer features payload is not a list",
			zap.String("segment_id", req.SegmentID),
			zap.String("type", list.Type.String()),
		)
	}
	features := NormalizeFeatures(payload, req.StartMs, req.EndMs)

	perCategory := make(map[types.Category]int)
	for _, f := range features {
		perCategory[f.Category]++
	}
	for cat, n := range perCategory {
		c.metrics.RecordFeatures(string(cat), n)
	}

	c.logger.Info("segment analyzed",
		zap.String("segment_id", req.SegmentID),
		zap.Int("frames", len(frames)),
		zap.Int("features", len(features)),
	)
	return features, nil
}

// complete 发送提示词与图片并返回应答中的 JSON
// 只有能解析的应答才写入缓存
func (c *Client) complete(ctx context.Context, call, prompt string, frames []types.Frame) (gjson.Result, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return gjson.Result{}, types.NewExternalError(capabilityName, "analyzer API key not configured", nil)
	}

	parts, digest, err := buildContent(prompt, frames)
	if err != nil {
		return gjson.Result{}, err
	}
	key := c.cacheKey(prompt, digest)

	if reply, ok := c.cached(ctx, key); ok {
		if doc, err := ExtractJSON(reply); err == nil {
			return doc, nil
		}
	}

	reply, err := c.chat(ctx, call, prompt, parts)
	if err != nil {
		return gjson.Result{}, err
	}
	doc, err := ExtractJSON(reply)
	if err != nil {
		return gjson.Result{}, err
	}
	c.remember(ctx, key, reply)
	return doc, nil
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

func (c *Client) chat(ctx context.Context, call, prompt string, parts []contentPart) (string, error) {
	start := time.Now()
	promptTokens := c.tokens.Count(prompt)
	status := "error"
	defer func() {
		c.metrics.RecordAnalyzerRequest(c.cfg.Model, call, status, time.Since(start), promptTokens)
	}()

	body := chatRequest{
		Model:    c.cfg.Model,
		Messages: []chatMessage{{Role: "user", Content: parts}},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", types.NewExternalError(capabilityName, "analyzer request failed", err).WithRetryable(true)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", types.NewExternalError(capabilityName, "read analyzer response", err)
	}

	if resp.StatusCode >= 400 {
		msg := readErrorMessage(raw)
		c.logger.Error("analyzer returned error status",
			zap.String("call", call),
			zap.Int("status", resp.StatusCode),
			zap.String("message", msg),
		)
		return "", types.NewExternalError(capabilityName,
			fmt.Sprintf("analyzer status=%d msg=%s", resp.StatusCode, msg), nil).
			WithRetryable(resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500)
	}

	content := gjson.GetBytes(raw, "choices.0.message.content")
	if !content.Exists() {
		return "", types.NewExternalError(capabilityName,
			fmt.Sprintf("unexpected analyzer response: %s", truncate(string(raw), 200)), nil)
	}

	status = "success"
	c.logger.Debug("analyzer call completed",
		zap.String("call", call),
		zap.Duration("latency", time.Since(start)),
		zap.Int("prompt_tokens", promptTokens),
	)
	return content.String(), nil
}

func readErrorMessage(raw []byte) string {
	if msg := gjson.GetBytes(raw, "error.message"); msg.Exists() && msg.String() != "" {
		if typ := gjson.GetBytes(raw, "error.type").String(); typ != "" {
			return fmt.Sprintf("%s (type: %s)", msg.String(), typ)
		}
		return msg.String()
	}
	return truncate(string(raw), 500)
}

var imageMIME = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// buildContent 编码提示词与帧图片，同时返回图片摘要用于缓存键
func buildContent(prompt string, frames []types.Frame) ([]contentPart, string, error) {
	parts := make([]contentPart, 0, len(frames)+1)
	parts = append(parts, contentPart{Type: "text", Text: prompt})

	h := sha256.New()
	for _, f := range frames {
		data, err := os.ReadFile(f.Path)
		if err != nil {
			return nil, "", types.NewResourceError(fmt.Sprintf("read frame %s", f.Path), err)
		}
		h.Write(data)

		mime, ok := imageMIME[strings.ToLower(filepath.Ext(f.Path))]
		if !ok {
			mime = "image/jpeg"
		}
		parts = append(parts, contentPart{
			Type:     "image_url",
			ImageURL: &imageURL{URL: "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)},
		})
	}
	return parts, hex.EncodeToString(h.Sum(nil)), nil
}

// CacheNamespace 分析应答缓存键的命名空间
const CacheNamespace = "analyzer"

func (c *Client) cacheKey(prompt, frameDigest string) string {
	return cache.Key(CacheNamespace, c.cfg.Model, prompt, frameDigest)
}

func (c *Client) cached(ctx context.Context, key string) (string, bool) {
	if c.cache == nil {
		return "", false
	}
	reply, err := c.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn("analyzer cache lookup failed", zap.Error(err))
		}
		c.metrics.RecordCacheMiss(capabilityName)
		return "", false
	}
	c.metrics.RecordCacheHit(capabilityName)
	return reply, true
}

func (c *Client) remember(ctx context.Context, key, reply string) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Set(ctx, key, reply, c.cfg.CacheTTL); err != nil {
		c.logger.Warn("analyzer cache store failed", zap.Error(err))
	}
}
