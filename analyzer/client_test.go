package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"github.com/wyxpro/CubeAI-FlowDecompose/internal/cache"
	"github.com/wyxpro/CubeAI-FlowDecompose/types"
	"go.uber.org/zap"
)

func writeFrames(t *testing.T, n int, intervalMs float64) []types.Frame {
	t.Helper()
	dir := t.TempDir()
	frames := make([]types.Frame, 0, n)
	for i := 0; i < n; i++ {
		p := filepath.Join(dir, fmt.Sprintf("frame_%05d.jpg", i+1))
		require.NoError(t, os.WriteFile(p, []byte(fmt.Sprintf("jpeg-%d", i)), 0o644))
		frames = append(frames, types.Frame{
			FrameID: fmt.Sprintf("f_%05d", i+1),
			TsMs:    float64(i) * intervalMs,
			Path:    p,
		})
	}
	return frames
}

func chatReply(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []any{map[string]any{"message": map[string]any{"role": "assistant", "content": content}}},
	})
	return string(b)
}

type capturedRequest struct {
	auth   string
	path   string
	model  string
	text   string
	images []string
}

func newChatServer(t *testing.T, reply string, calls *int32, captured *capturedRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		raw, _ := json.Marshal(body)

		if captured != nil {
			captured.auth = r.Header.Get("Authorization")
			captured.path = r.URL.Path
			captured.model = gjson.GetBytes(raw, "model").String()
			captured.text = gjson.GetBytes(raw, "messages.0.content.0.text").String()
			captured.images = nil
			for _, u := range gjson.GetBytes(raw, `messages.0.content.#(type=="image_url")#.image_url.url`).Array() {
				captured.images = append(captured.images, u.String())
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_AnalyzeFeatures(t *testing.T) {
	var calls int32
	var got capturedRequest
	content := "分析如下：\n```json\n[" +
		`{"category": "camera_motion", "type": "push_in", "value": "推镜头"},` +
		`{"category": "sound", "type": "music", "value": "钢琴"},` +
		`"not an object",` +
		`{"category": "lighting", "type": "side_light", "value": "侧光", "confidence": 0.9, "evidence": {"time_ranges_ms": [[1000, 2000]]},` +
		` "detailed_description": {"summary": "侧面主光", "technical_terms": ["Side Light", 3], "parameters": {"angle": 90}}}` +
		"]\n```"
	srv := newChatServer(t, chatReply(content), &calls, &got)

	c := NewClient(Config{BaseURL: srv.URL + "/v1", APIKey: "sk-test", Model: "qwen-vl"}, zap.NewNop())
	frames := writeFrames(t, 12, 500)

	features, err := c.AnalyzeFeatures(context.Background(), SegmentRequest{
		SegmentID: "seg_002",
		StartMs:   1000,
		EndMs:     4000,
		Frames:    frames,
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer sk-test", got.auth)
	assert.Equal(t, "/v1/chat/completions", got.path)
	assert.Equal(t, "qwen-vl", got.model)
	assert.Contains(t, got.text, "片段ID: seg_002")
	assert.Contains(t, got.text, "1000ms - 4000ms")
	assert.Contains(t, got.text, "标准中文术语")
	assert.Contains(t, got.text, "**景别分类 (Shot Size)**")
	require.Len(t, got.images, MaxSegmentFrames)
	assert.True(t, strings.HasPrefix(got.images[0], "data:image/jpeg;base64,"))

	require.Len(t, features, 2)
	assert.Equal(t, types.CategoryCameraMotion, features[0].Category)
	assert.Equal(t, DefaultConfidence, features[0].Confidence)
	assert.Equal(t, []types.TimeRange{{1000, 4000}}, features[0].Evidence.TimeRangesMs)

	assert.Equal(t, 0.9, features[1].Confidence)
	assert.Equal(t, []types.TimeRange{{1000, 2000}}, features[1].Evidence.TimeRangesMs)
	require.NotNil(t, features[1].DetailedDescription)
	assert.Equal(t, "侧面主光", features[1].DetailedDescription.Summary)
	assert.Equal(t, []string{"Side Light"}, features[1].DetailedDescription.TechnicalTerms)
	assert.Equal(t, 90.0, features[1].DetailedDescription.Parameters["angle"])
}

func TestClient_ProposeBoundaries(t *testing.T) {
	var calls int32
	var got capturedRequest
	content := `{"segments": [
		{"segment_id": "seg_001", "start_ms": 100, "end_ms": 3000},
		{"segment_id": "seg_002", "start_ms": 2500, "end_ms": 6000},
		{"segment_id": "seg_003", "start_ms": 6000, "end_ms": 6000}
	]}`
	srv := newChatServer(t, chatReply(content), &calls, &got)

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "k"}, nil)
	frames := writeFrames(t, 30, 200)

	segments, err := c.ProposeBoundaries(context.Background(), frames)
	require.NoError(t, err)

	require.Len(t, got.images, MaxBoundaryFrames)
	assert.Contains(t, got.text, "视频总时长: 5800ms")
	assert.Equal(t, DefaultConfig().Model, got.model)

	require.Len(t, segments, 2)
	assert.Equal(t, types.NewSegment("seg_001", 0, 3000), segments[0])
	assert.Equal(t, types.NewSegment("seg_002", 3000, 6000), segments[1])
}

func TestClient_ProposeBoundariesFallsBackToFullSegment(t *testing.T) {
	var calls int32
	srv := newChatServer(t, chatReply(`[]`), &calls, nil)

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "k"}, nil)
	segments, err := c.ProposeBoundaries(context.Background(), writeFrames(t, 4, 1000))
	require.NoError(t, err)
	require.Len(t, segments, 1)
	assert.Equal(t, 3000.0, segments[0].EndMs)
}

func TestClient_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error": {"message": "overloaded", "type": "server_error"}}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "k"}, nil)
	_, err := c.AnalyzeFeatures(context.Background(), SegmentRequest{SegmentID: "s", EndMs: 1000, Frames: writeFrames(t, 1, 0)})
	require.Error(t, err)

	assert.Equal(t, types.KindExternalCapability, types.KindOf(err))
	assert.True(t, types.IsRetryable(err))
	assert.Contains(t, err.Error(), "overloaded (type: server_error)")
}

func TestClient_UnparseableReply(t *testing.T) {
	var calls int32
	srv := newChatServer(t, chatReply("抱歉，我无法分析这些图片。"), &calls, nil)

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "k"}, nil)
	_, err := c.AnalyzeFeatures(context.Background(), SegmentRequest{SegmentID: "s", EndMs: 1000, Frames: writeFrames(t, 1, 0)})
	require.Error(t, err)
	assert.Equal(t, types.KindExternalCapability, types.KindOf(err))
}

func TestClient_MalformedEnvelope(t *testing.T) {
	var calls int32
	srv := newChatServer(t, `{"id": "x"}`, &calls, nil)

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "k"}, nil)
	_, err := c.AnalyzeFeatures(context.Background(), SegmentRequest{SegmentID: "s", EndMs: 1000, Frames: writeFrames(t, 1, 0)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected analyzer response")
}

func TestClient_MissingAPIKey(t *testing.T) {
	var calls int32
	srv := newChatServer(t, chatReply(`[]`), &calls, nil)

	c := NewClient(Config{BaseURL: srv.URL}, nil)
	_, err := c.AnalyzeFeatures(context.Background(), SegmentRequest{SegmentID: "s", Frames: writeFrames(t, 1, 0)})
	require.Error(t, err)
	assert.Equal(t, types.KindExternalCapability, types.KindOf(err))
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestClient_MissingFrameFile(t *testing.T) {
	c := NewClient(Config{APIKey: "k"}, nil)
	_, err := c.AnalyzeFeatures(context.Background(), SegmentRequest{
		SegmentID: "s",
		Frames:    []types.Frame{{FrameID: "f_00001", Path: filepath.Join(t.TempDir(), "missing.jpg")}},
	})
	require.Error(t, err)
	assert.Equal(t, types.KindResource, types.KindOf(err))
}

func TestClient_NoFrames(t *testing.T) {
	c := NewClient(Config{APIKey: "k"}, nil)

	_, err := c.ProposeBoundaries(context.Background(), nil)
	assert.Equal(t, types.KindResource, types.KindOf(err))

	_, err = c.AnalyzeFeatures(context.Background(), SegmentRequest{SegmentID: "s"})
	assert.Equal(t, types.KindResource, types.KindOf(err))
}

func TestClient_CachesParsedReplies(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	mgr, err := cache.NewManager(cache.Config{Addr: mr.Addr(), KeyPrefix: "t:", DefaultTTL: time.Minute}, zap.NewNop())
	require.NoError(t, err)
	defer mgr.Close()

	var calls int32
	srv := newChatServer(t, chatReply(`[{"category": "lighting", "type": "soft", "value": "柔光"}]`), &calls, nil)

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "k", CacheTTL: time.Hour}, nil, WithCache(mgr))
	req := SegmentRequest{SegmentID: "s", EndMs: 1000, Frames: writeFrames(t, 2, 500)}

	first, err := c.AnalyzeFeatures(context.Background(), req)
	require.NoError(t, err)
	second, err := c.AnalyzeFeatures(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	keys := mr.Keys()
	require.Len(t, keys, 1)
	assert.True(t, strings.HasPrefix(keys[0], "t:analyzer:"))

	// 切换模型后缓存键不同
	_, err = c.WithModel("other-model").AnalyzeFeatures(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestForModel(t *testing.T) {
	c := NewClient(Config{APIKey: "k", Model: "a"}, nil)

	assert.Same(t, c, ForModel(c, ""))
	assert.Same(t, c, ForModel(c, "a"))

	other, ok := ForModel(c, "b").(*Client)
	require.True(t, ok)
	assert.Equal(t, "b", other.Model())
	assert.Equal(t, "a", c.Model())
}
