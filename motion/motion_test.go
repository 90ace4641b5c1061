package motion

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"github.com/wyxpro/CubeAI-FlowDecompose/media"
	"github.com/wyxpro/CubeAI-FlowDecompose/store"
	"github.com/wyxpro/CubeAI-FlowDecompose/types"
	"go.uber.org/zap"
)

func TestNormalizeRecipe(t *testing.T) {
	tests := []struct {
		name     string
		in       types.MotionRecipe
		want     types.MotionRecipe
		wantPath string
	}{
		{
			name: "defaults",
			in:   types.MotionRecipe{Type: " push_in "},
			want: types.MotionRecipe{Type: "push_in", Strength: DefaultStrength, DurationMs: DefaultDurationMs},
		},
		{
			name: "explicit values kept",
			in:   types.MotionRecipe{Type: "pan", Direction: "left", Strength: 0.5, DurationMs: 10000},
			want: types.MotionRecipe{Type: "pan", Direction: "left", Strength: 0.5, DurationMs: 10000},
		},
		{name: "missing type", in: types.MotionRecipe{}, wantPath: "motion_recipe.type"},
		{name: "strength too high", in: types.MotionRecipe{Type: "tilt", Strength: 1.2}, wantPath: "motion_recipe.strength"},
		{name: "negative strength", in: types.MotionRecipe{Type: "tilt", Strength: -0.1}, wantPath: "motion_recipe.strength"},
		{name: "too short", in: types.MotionRecipe{Type: "tilt", DurationMs: 500}, wantPath: "motion_recipe.duration_ms"},
		{name: "too long", in: types.MotionRecipe{Type: "tilt", DurationMs: 12000}, wantPath: "motion_recipe.duration_ms"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeRecipe(tt.in)
			if tt.wantPath != "" {
				e, ok := types.AsError(err)
				require.True(t, ok, "want *types.Error, got %v", err)
				assert.Equal(t, tt.wantPath, e.Path)
				assert.Equal(t, types.KindValidation, types.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func writeKeyframe(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "target_seg_001_key.jpg")
	require.NoError(t, os.WriteFile(path, []byte("jpeg-bytes"), 0o644))
	return path
}

func TestClient_MockWritesPlaceholder(t *testing.T) {
	dir := t.TempDir()
	c := NewClient(Config{}, nil, zap.NewNop())
	require.True(t, c.Mock())

	out := filepath.Join(dir, "previews", "vm_1.mp4")
	res, err := c.Render(context.Background(), RenderRequest{
		Keyframes:  []string{writeKeyframe(t, dir)},
		Recipe:     types.MotionRecipe{Type: "push_in", Strength: 0.18, DurationMs: 3000},
		OutputPath: out,
	})
	require.NoError(t, err)
	assert.True(t, res.Mock)
	assert.Equal(t, out, res.VideoPath)
	assert.Equal(t, 3000, res.DurationMs)
	assert.FileExists(t, out)

	_, err = c.Render(context.Background(), RenderRequest{OutputPath: out})
	assert.Equal(t, types.KindResource, types.KindOf(err))
}

func TestClient_Render(t *testing.T) {
	dir := t.TempDir()
	var (
		mu      sync.Mutex
		auth    string
		payload []byte
	)
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/videos/generations":
			body, _ := io.ReadAll(r.Body)
			mu.Lock()
			auth = r.Header.Get("Authorization")
			payload = body
			mu.Unlock()
			_ = json.NewEncoder(w).Encode(map[string]string{"video_url": srv.URL + "/files/preview.mp4"})
		case "/files/preview.mp4":
			_, _ = w.Write([]byte("mp4-bytes"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL + "/v1", APIKey: "secret", Model: "i2v"}, srv.Client(), nil)
	require.False(t, c.Mock())

	out := filepath.Join(dir, "previews", "vm_2.mp4")
	res, err := c.Render(context.Background(), RenderRequest{
		Keyframes:  []string{writeKeyframe(t, dir)},
		Recipe:     types.MotionRecipe{Type: "pan", Direction: "left", Strength: 0.15, DurationMs: 3000},
		OutputPath: out,
	})
	require.NoError(t, err)
	assert.False(t, res.Mock)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "mp4-bytes", string(data))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "Bearer secret", auth)
	assert.Equal(t, "i2v", gjson.GetBytes(payload, "model").String())
	assert.Equal(t, "pan", gjson.GetBytes(payload, "motion.type").String())
	assert.Equal(t, "left", gjson.GetBytes(payload, "motion.direction").String())
	assert.True(t, strings.HasPrefix(gjson.GetBytes(payload, "images.0").String(), "data:image/jpeg;base64,"))
}

func TestClient_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"busy"}}`))
	}))
	defer srv.Close()

	dir := t.TempDir()
	c := NewClient(Config{BaseURL: srv.URL, APIKey: "k"}, srv.Client(), nil)
	_, err := c.Render(context.Background(), RenderRequest{
		Keyframes:  []string{writeKeyframe(t, dir)},
		Recipe:     types.MotionRecipe{Type: "push_in", DurationMs: 3000},
		OutputPath: filepath.Join(dir, "out.mp4"),
	})
	require.Error(t, err)
	assert.Equal(t, types.KindExternalCapability, types.KindOf(err))
	assert.True(t, types.IsRetryable(err))
	assert.Contains(t, err.Error(), "busy")
	assert.NoFileExists(t, filepath.Join(dir, "out.mp4"))
}

// =============================================================================
// Service
// =============================================================================

type fakeRecorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *fakeRecorder) RecordVirtualMotion(status string, mock bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if mock {
		status += "/mock"
	}
	r.calls = append(r.calls, status)
}

type serviceFixture struct {
	svc     *Service
	store   *store.MemoryStore
	ws      *media.Workspace
	metrics *fakeRecorder
	parent  *types.Job
}

func newServiceFixture(t *testing.T, finishParent bool) *serviceFixture {
	t.Helper()
	ctx := context.Background()
	ws := media.NewWorkspace(t.TempDir())
	st := store.NewMemoryStore()
	rec := &fakeRecorder{}

	parent := types.NewJob(types.ModeLearn)
	require.NoError(t, st.Create(ctx, parent))
	require.NoError(t, st.UpdateStatus(ctx, parent.ID, types.JobStatusRunning, nil))

	if finishParent {
		dir := ws.KeyframeDir(parent.ID)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		result := &types.Result{
			Mode: types.ModeLearn,
			Target: types.AssetResult{
				AssetID:  types.AssetID(parent.ID, types.RoleTarget),
				Segments: []types.Segment{types.NewSegment("seg_001", 0, 2000)},
				Keyframes: []types.Keyframe{
					{SegmentID: "seg_001", KeyframePath: writeKeyframe(t, dir), TsMs: 1000},
				},
				DetectionMethod: types.DetectionCV,
			},
		}
		require.NoError(t, st.SaveResult(ctx, parent.ID, result))
	}

	svc := NewService(st, NewClient(Config{}, nil, nil), ws, rec, zap.NewNop())
	t.Cleanup(func() { _ = svc.Shutdown(context.Background()) })
	return &serviceFixture{svc: svc, store: st, ws: ws, metrics: rec, parent: parent}
}

func TestService_CreateRendersMockPreview(t *testing.T) {
	f := newServiceFixture(t, true)
	ctx := context.Background()

	vm, err := f.svc.Create(ctx, CreateRequest{
		ParentJobID:  f.parent.ID,
		AssetRole:    types.RoleTarget,
		SegmentID:    "seg_001",
		MotionRecipe: types.MotionRecipe{Type: "push_in"},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(vm.ID, "vm_"))
	assert.Equal(t, types.JobStatusQueued, vm.Status)
	assert.Equal(t, DefaultStrength, vm.MotionRecipe.Strength)

	f.svc.Wait()

	got, err := f.svc.Get(ctx, vm.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusSucceeded, got.Status)
	assert.Equal(t, f.ws.PreviewPath(f.parent.ID, vm.ID), got.ResultVideoPath)
	assert.NotNil(t, got.CompletedAt)
	assert.FileExists(t, got.ResultVideoPath)

	artifacts, err := f.store.ListArtifacts(ctx, f.parent.ID)
	require.NoError(t, err)
	var previews []*types.Artifact
	for _, a := range artifacts {
		if a.Type == types.ArtifactPreviewVideo {
			previews = append(previews, a)
		}
	}
	require.Len(t, previews, 1)
	assert.Equal(t, "seg_001", previews[0].SegmentID)
	assert.Equal(t, vm.ID, previews[0].Metadata["subtask_id"])

	assert.Equal(t, []string{"succeeded/mock"}, f.metrics.calls)
}

func TestService_MissingKeyframeFailsSubJob(t *testing.T) {
	f := newServiceFixture(t, true)
	ctx := context.Background()

	vm, err := f.svc.Create(ctx, CreateRequest{
		ParentJobID:  f.parent.ID,
		AssetRole:    types.RoleUser,
		SegmentID:    "seg_001",
		MotionRecipe: types.MotionRecipe{Type: "tilt", Direction: "up"},
	})
	require.NoError(t, err)
	f.svc.Wait()

	got, err := f.svc.Get(ctx, vm.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, "no keyframe for user segment seg_001")
	assert.Equal(t, []string{"failed"}, f.metrics.calls)
}

func TestService_CreateRejects(t *testing.T) {
	f := newServiceFixture(t, false)
	ctx := context.Background()
	valid := CreateRequest{
		ParentJobID:  f.parent.ID,
		AssetRole:    types.RoleTarget,
		SegmentID:    "seg_001",
		MotionRecipe: types.MotionRecipe{Type: "push_in"},
	}

	tests := []struct {
		name   string
		mutate func(r *CreateRequest)
		code   types.ErrorCode
	}{
		{"parent not finished", func(r *CreateRequest) {}, types.ErrInvalidRequest},
		{"unknown parent", func(r *CreateRequest) { r.ParentJobID = "job_missing" }, types.ErrNotFound},
		{"bad role", func(r *CreateRequest) { r.AssetRole = "director" }, types.ErrValidation},
		{"missing segment", func(r *CreateRequest) { r.SegmentID = "" }, types.ErrValidation},
		{"bad recipe", func(r *CreateRequest) { r.MotionRecipe.DurationMs = 20000 }, types.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			_, err := f.svc.Create(ctx, req)
			assert.Equal(t, tt.code, types.GetErrorCode(err))
		})
	}

	_, err := f.svc.Get(ctx, "vm_missing")
	assert.Equal(t, types.ErrNotFound, types.GetErrorCode(err))
}

func TestService_CreateAfterShutdown(t *testing.T) {
	f := newServiceFixture(t, true)
	ctx := context.Background()

	require.NoError(t, f.svc.Shutdown(ctx))

	_, err := f.svc.Create(ctx, CreateRequest{
		ParentJobID:  f.parent.ID,
		AssetRole:    types.RoleTarget,
		SegmentID:    "seg_001",
		MotionRecipe: types.MotionRecipe{Type: "push_in"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrServiceClosed)
	assert.Equal(t, types.ErrServiceUnavailable, types.GetErrorCode(err))
	assert.Empty(t, f.metrics.calls)
	f.svc.Wait()
}

func TestSegmentKeyframes(t *testing.T) {
	result := &types.Result{
		Target: types.AssetResult{Keyframes: []types.Keyframe{
			{SegmentID: "seg_001", KeyframePath: "/k/t1.jpg"},
			{SegmentID: "seg_002", KeyframePath: "/k/t2.jpg"},
		}},
		User: &types.AssetResult{Keyframes: []types.Keyframe{
			{SegmentID: "seg_001", KeyframePath: "/k/u1.jpg"},
		}},
	}
	assert.Equal(t, []string{"/k/t2.jpg"}, SegmentKeyframes(result, types.RoleTarget, "seg_002"))
	assert.Equal(t, []string{"/k/u1.jpg"}, SegmentKeyframes(result, types.RoleUser, "seg_001"))
	assert.Empty(t, SegmentKeyframes(result, types.RoleUser, "seg_009"))
	assert.Empty(t, SegmentKeyframes(nil, types.RoleTarget, "seg_001"))

	result.User = nil
	assert.Empty(t, SegmentKeyframes(result, types.RoleUser, "seg_001"))
}

func TestClient_RetriesTransientFailure(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
	)
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/videos/generations":
			mu.Lock()
			calls++
			n := calls
			mu.Unlock()
			if n == 1 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"data": []map[string]string{{"url": srv.URL + "/files/p.mp4"}}})
		case "/files/p.mp4":
			_, _ = w.Write([]byte("ok"))
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	c := NewClient(Config{BaseURL: srv.URL, APIKey: "k", MaxRetries: 2, RetryDelay: 5 * time.Millisecond}, srv.Client(), zap.NewNop())
	out := filepath.Join(dir, "out.mp4")
	_, err := c.Render(context.Background(), RenderRequest{
		Keyframes:  []string{writeKeyframe(t, dir)},
		Recipe:     types.MotionRecipe{Type: "push_in", DurationMs: 3000},
		OutputPath: out,
	})
	require.NoError(t, err)
	assert.FileExists(t, out)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, calls)
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad image"}}`))
	}))
	defer srv.Close()

	dir := t.TempDir()
	c := NewClient(Config{BaseURL: srv.URL, APIKey: "k", MaxRetries: 3, RetryDelay: 5 * time.Millisecond}, srv.Client(), nil)
	_, err := c.Render(context.Background(), RenderRequest{
		Keyframes:  []string{writeKeyframe(t, dir)},
		Recipe:     types.MotionRecipe{Type: "push_in", DurationMs: 3000},
		OutputPath: filepath.Join(dir, "out.mp4"),
	})
	require.Error(t, err)
	assert.False(t, types.IsRetryable(err))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
}
