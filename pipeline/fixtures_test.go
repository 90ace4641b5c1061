package pipeline

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wyxpro/CubeAI-FlowDecompose/analyzer"
	"github.com/wyxpro/CubeAI-FlowDecompose/media"
	"github.com/wyxpro/CubeAI-FlowDecompose/store"
	"github.com/wyxpro/CubeAI-FlowDecompose/testutil/fixtures"
	"github.com/wyxpro/CubeAI-FlowDecompose/testutil/mocks"
	"github.com/wyxpro/CubeAI-FlowDecompose/types"
	"go.uber.org/zap"
)

// =============================================================================
// Fakes
// =============================================================================

type recordingStore struct {
	*store.MemoryStore

	mu       sync.Mutex
	progress []types.Progress
	partials []*types.PartialResult
}

func newRecordingStore() *recordingStore {
	return &recordingStore{MemoryStore: store.NewMemoryStore()}
}

func (s *recordingStore) UpdateProgress(ctx context.Context, jobID string, p types.Progress) error {
	s.mu.Lock()
	s.progress = append(s.progress, p)
	s.mu.Unlock()
	return s.MemoryStore.UpdateProgress(ctx, jobID, p)
}

func (s *recordingStore) SavePartialResult(ctx context.Context, jobID string, p *types.PartialResult) error {
	s.mu.Lock()
	s.partials = append(s.partials, p)
	s.mu.Unlock()
	return s.MemoryStore.SavePartialResult(ctx, jobID, p)
}

func (s *recordingStore) recorded() ([]types.Progress, []*types.PartialResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.Progress(nil), s.progress...), append([]*types.PartialResult(nil), s.partials...)
}

func feature(c types.Category, typ, value string, req analyzer.SegmentRequest) types.Feature {
	return fixtures.Feature(c, typ, value, req.StartMs, req.EndMs)
}

func isUserRequest(req analyzer.SegmentRequest) bool {
	return len(req.Frames) > 0 && strings.Contains(req.Frames[0].Path, string(filepath.Separator)+string(types.RoleUser)+string(filepath.Separator))
}

func threeSegments() []types.Segment {
	return fixtures.Segments(0, 2000, 4000, 6000)
}

// =============================================================================
// Harness
// =============================================================================

type harness struct {
	store    *recordingStore
	ws       *media.Workspace
	ingestor *mocks.Ingestor
	frames   *mocks.Frames
	scenes   *mocks.Scenes
	analyzer *mocks.Analyzer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ws := media.NewWorkspace(t.TempDir())
	return &harness{
		store:    newRecordingStore(),
		ws:       ws,
		ingestor: mocks.NewIngestor(ws, 6000),
		frames:   mocks.NewFrames(12),
		scenes:   mocks.NewScenes(threeSegments()...),
		analyzer: mocks.NewAnalyzer().WithBoundaries(fixtures.Segments(0, 3000, 6000)...),
	}
}

func (h *harness) deps() Deps {
	return Deps{
		Store:     h.store,
		Workspace: h.ws,
		Ingestor:  h.ingestor,
		Frames:    h.frames,
		Scenes:    h.scenes,
		Analyzer:  h.analyzer,
		Logger:    zap.NewNop(),
	}
}

func (h *harness) dispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(h.deps())
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Shutdown(context.Background()) })
	return d
}

// createJob stores a queued job for cfg.
func (h *harness) createJob(t *testing.T, cfg types.JobConfig) *types.Job {
	t.Helper()
	job := types.NewJob(cfg.Mode)
	require.NoError(t, h.store.Create(context.Background(), job))
	return job
}

// runJob submits cfg and waits for the job to reach a terminal state.
func (h *harness) runJob(t *testing.T, cfg types.JobConfig) *types.Job {
	t.Helper()
	ctx := context.Background()
	d := h.dispatcher(t)
	job := h.createJob(t, cfg)
	require.NoError(t, d.Submit(ctx, job.ID, cfg))
	require.NoError(t, d.Wait(ctx, job.ID))

	got, err := h.store.Get(ctx, job.ID)
	require.NoError(t, err)
	require.True(t, got.Status.IsTerminal(), "job should be terminal, got %s", got.Status)
	return got
}

func learnConfig() types.JobConfig { return fixtures.LearnConfig() }

func compareConfig() types.JobConfig { return fixtures.CompareConfig() }

func withoutSceneDetection(cfg types.JobConfig) types.JobConfig {
	return fixtures.WithoutSceneDetection(cfg)
}
